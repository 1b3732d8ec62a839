// Package consensus implements the block-level transaction ledger: the
// running UTXO view, coinbase reward accounting, and the cheap proof
// predicate that binds a block to its contents. Fork resolution and mint
// eligibility, which need a notion of "the network" beyond a single block,
// live in package node.
package consensus

import (
	"errors"
	"time"

	"go.stakecore.dev/core/types"
)

// BaseReward is the coinbase amount awarded to a newly-created block, before
// any fees are collected from admitted transactions.
const BaseReward = 50

// A BlockID uniquely identifies a Block.
type BlockID types.Hash256

// GenesisPrevBlockHash is the sentinel prevBlockHash of a genesis block.
var GenesisPrevBlockHash BlockID

// A Block is an ordered list of transactions extending a parent block (or,
// for a genesis block, extending nothing), together with the UTXO view that
// results from applying them in order. A Block is "open" — it accepts
// transactions via AddTransaction — until its miner finds a valid proof, at
// which point peers treat it as sealed and only ever read it or use it as a
// parent.
type Block struct {
	PrevBlockHash BlockID
	ChainLength   uint64
	Timestamp     time.Time
	RewardAddress types.Address
	CoinbaseTX    *types.Transaction
	Transactions  []*types.Transaction
	UTXOs         types.UTXOView
	Proof         uint64
}

// now is overridable in tests; production code always uses time.Now.
var now = time.Now

// NewGenesisBlock creates the chain's first block: chainLength 0, sentinel
// prevBlockHash, no transactions beyond its own coinbase.
func NewGenesisBlock(rewardAddress types.Address) *Block {
	b := &Block{
		PrevBlockHash: GenesisPrevBlockHash,
		ChainLength:   0,
		Timestamp:     now(),
		RewardAddress: rewardAddress,
		UTXOs:         make(types.UTXOView),
	}
	b.mintCoinbase()
	return b
}

// NewBlock creates a new Block extending parent.
func NewBlock(rewardAddress types.Address, parent *Block) *Block {
	b := &Block{
		PrevBlockHash: parent.HashVal(),
		ChainLength:   parent.ChainLength + 1,
		Timestamp:     now(),
		RewardAddress: rewardAddress,
		UTXOs:         parent.UTXOs.Clone(),
	}
	b.mintCoinbase()
	return b
}

func (b *Block) mintCoinbase() {
	b.CoinbaseTX = types.NewTransaction(nil, []types.Output{{Amount: BaseReward, Address: b.RewardAddress}})
	b.UTXOs[b.CoinbaseTX.ID()] = outputPointers(b.CoinbaseTX.Outputs)
}

func outputPointers(outs []types.Output) []*types.Output {
	ptrs := make([]*types.Output, len(outs))
	for i := range outs {
		ptrs[i] = &outs[i]
	}
	return ptrs
}

// A Balance is a client's address paired with the amount the genesis block
// should credit it, used by MakeGenesisBlock.
type Balance struct {
	Address types.Address
	Amount  uint64
}

// Receiver is anything that wants to be notified of a confirmed
// transaction, so it can absorb whichever of its outputs belong to it.
// MakeGenesisBlock uses this to credit participants directly instead of
// the caller re-deriving which outputs belong to whom.
type Receiver interface {
	ReceiveOutput(txn *types.Transaction)
}

// MakeGenesisBlock builds the chain's genesis block, seeding one
// coinbase-style transaction per participant and crediting each
// participant's receiver with the requested amount.
func MakeGenesisBlock(balances []Balance, receivers []Receiver) *Block {
	b := &Block{
		PrevBlockHash: GenesisPrevBlockHash,
		ChainLength:   0,
		Timestamp:     now(),
		UTXOs:         make(types.UTXOView),
	}
	// The genesis block has no distinguished miner, so its own "coinbase" is
	// an empty-reward placeholder; real value is seeded via the per-balance
	// transactions below.
	b.CoinbaseTX = types.NewTransaction(nil, []types.Output{{Amount: 0}})
	b.UTXOs[b.CoinbaseTX.ID()] = outputPointers(b.CoinbaseTX.Outputs)

	for i, bal := range balances {
		txn := types.NewTransaction(nil, []types.Output{{Amount: bal.Amount, Address: bal.Address}})
		b.UTXOs[txn.ID()] = outputPointers(txn.Outputs)
		b.Transactions = append(b.Transactions, txn)
		if i < len(receivers) && receivers[i] != nil {
			receivers[i].ReceiveOutput(txn)
		}
	}
	return b
}

// Errors surfaced by AddTransaction's precondition.
var ErrTransactionRejected = errors.New("block: transaction rejected by WillAcceptTransaction")

// WillAcceptTransaction reports whether txn is valid against b's current
// UTXO view and does not collide with a transaction id already present in
// that view.
func (b *Block) WillAcceptTransaction(txn *types.Transaction) bool {
	if _, exists := b.UTXOs[txn.ID()]; exists {
		return false
	}
	return txn.IsValid(b.UTXOs)
}

// AddTransaction admits txn into the block: it clears each spent output
// slot from the UTXO view, inserts txn's own outputs, and routes the
// resulting fee (inputs minus outputs) into the block's coinbase via
// AddFee. Precondition: WillAcceptTransaction(txn) is true.
func (b *Block) AddTransaction(txn *types.Transaction) error {
	if !b.WillAcceptTransaction(txn) {
		return ErrTransactionRejected
	}

	var inSum uint64
	for _, in := range txn.Inputs {
		outs := b.UTXOs[in.TxID]
		inSum += outs[in.OutputIndex].Amount
		outs[in.OutputIndex] = nil
	}
	b.UTXOs[txn.ID()] = outputPointers(txn.Outputs)
	b.Transactions = append(b.Transactions, txn)

	fee := inSum - txn.TotalOutput()
	if fee > 0 {
		b.CoinbaseTX.AddFee(fee)
		// Refresh the coinbase slot only while it is unspent: a coinbase
		// output already consumed by an input in this block stays spent.
		if slot := b.UTXOs[b.CoinbaseTX.ID()]; len(slot) > 0 && slot[0] != nil {
			slot[0] = &b.CoinbaseTX.Outputs[0]
		}
	}
	return nil
}

// HashVal returns the deterministic content hash of the sealed block,
// including Proof. This is the same hash VerifyProof tests against the
// proof predicate, and it is what a child block's PrevBlockHash commits to:
// a sealed block's identity is everything about it, including the proof
// that won it the right to extend the chain.
func (b *Block) HashVal() BlockID {
	h := hashBlock(b, true)
	return BlockID(h)
}

func hashBlock(b *Block, includeProof bool) types.Hash256 {
	var buf []byte
	w := &growWriter{&buf}
	e := types.NewEncoder(w)
	b.PrevBlockHash.EncodeTo(e)
	e.WriteUint64(b.ChainLength)
	e.WriteUint64(uint64(b.Timestamp.UnixMilli()))
	b.RewardAddress.EncodeTo(e)
	b.CoinbaseTX.EncodeTo(e)
	types.EncodeSlice(e, dereferenceAll(b.Transactions))
	if includeProof {
		e.WriteUint64(b.Proof)
	}
	e.Flush()
	return types.HashBytes(buf)
}

type growWriter struct{ buf *[]byte }

func (w *growWriter) Write(p []byte) (int, error) {
	*w.buf = append(*w.buf, p...)
	return len(p), nil
}

// txnEncoder adapts []*types.Transaction to the []T EncoderTo shape
// EncodeSlice expects.
type txnEncoder struct{ txn *types.Transaction }

func (t txnEncoder) EncodeTo(e *types.Encoder) { t.txn.EncodeTo(e) }

func dereferenceAll(txns []*types.Transaction) []txnEncoder {
	out := make([]txnEncoder, len(txns))
	for i, t := range txns {
		out[i] = txnEncoder{t}
	}
	return out
}

// EncodeTo implements EncoderTo.
func (id BlockID) EncodeTo(e *types.Encoder) { e.Write(id[:]) }

// DecodeFrom implements DecoderFrom.
func (id *BlockID) DecodeFrom(d *types.Decoder) { d.Read(id[:]) }

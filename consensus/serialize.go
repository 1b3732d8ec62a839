package consensus

import (
	"errors"
	"io"
	"time"

	"go.stakecore.dev/core/types"
)

// ProofDifficulty is the number of leading zero bits VerifyProof requires of
// a sealed block's hash. The predicate itself is interchangeable — what
// matters is that it is cheap to verify and binds the proof field to the
// block's exact contents; mining cost is governed by mint eligibility, not
// by this predicate's difficulty.
const ProofDifficulty = 8

// VerifyProof recomputes the block's content hash including the proof (the
// same hash HashVal returns) and checks it against the fixed proof
// predicate. That hash covers the same fields as Serialize(true) except the
// coinbase id, which Serialize writes explicitly and the hash does not.
func (b *Block) VerifyProof() bool {
	h := hashBlock(b, true)
	return leadingZeroBits(h[:]) >= ProofDifficulty
}

func leadingZeroBits(b []byte) int {
	n := 0
	for _, by := range b {
		if by == 0 {
			n += 8
			continue
		}
		for mask := byte(0x80); mask != 0 && by&mask == 0; mask >>= 1 {
			n++
		}
		break
	}
	return n
}

// Serialize returns the canonical encoding of b. When includeProof is true,
// the proof field is appended last, and this is the form Deserialize reads;
// when false, the proof field is omitted.
func (b *Block) Serialize(includeProof bool) []byte {
	var buf []byte
	e := types.NewEncoder(&growWriter{&buf})
	b.PrevBlockHash.EncodeTo(e)
	e.WriteUint64(b.ChainLength)
	e.WriteUint64(uint64(b.Timestamp.UnixMilli()))
	b.RewardAddress.EncodeTo(e)
	encodeCoinbase(e, b.CoinbaseTX)
	types.EncodeSlice(e, dereferenceAll(b.Transactions))
	if includeProof {
		e.WriteUint64(b.Proof)
	}
	e.Flush()
	return buf
}

// encodeCoinbase writes a coinbase transaction's id explicitly, since its
// current outputs (post AddFee) no longer hash to that id.
func encodeCoinbase(e *types.Encoder, txn *types.Transaction) {
	id := txn.ID()
	id.EncodeTo(e)
	txn.EncodeTo(e)
}

func decodeCoinbase(d *types.Decoder) *types.Transaction {
	var id types.TransactionID
	id.DecodeFrom(d)
	txn := new(types.Transaction)
	txn.DecodeFrom(d)
	txn.SetID(id)
	return txn
}

// Deserialize reconstructs a Block from data written by Serialize(true). The
// returned block's UTXOs field is nil: a receiver must call ReplayUTXOs
// against a trusted parent (or MakeGenesisBlock, for the genesis case)
// before treating the block as validated, per the chain's requirement that
// every transaction in an incoming block be re-checked against a
// reconstructed parent view rather than trusted verbatim off the wire.
func Deserialize(data []byte) (*Block, error) {
	d := types.NewDecoder(io.LimitedReader{R: &sliceReader{data}, N: int64(len(data))})
	b := new(Block)
	b.PrevBlockHash.DecodeFrom(d)
	b.ChainLength = d.ReadUint64()
	b.Timestamp = time.UnixMilli(int64(d.ReadUint64()))
	b.RewardAddress.DecodeFrom(d)
	b.CoinbaseTX = decodeCoinbase(d)
	var wire []types.Transaction
	types.DecodeSlice[types.Transaction](d, &wire)
	b.Transactions = make([]*types.Transaction, len(wire))
	for i := range wire {
		b.Transactions[i] = types.NewTransaction(wire[i].Inputs, wire[i].Outputs)
	}
	b.Proof = d.ReadUint64()
	if err := d.Err(); err != nil {
		return nil, err
	}
	return b, nil
}

type sliceReader struct{ b []byte }

func (r *sliceReader) Read(p []byte) (int, error) {
	n := copy(p, r.b)
	if n == 0 {
		return 0, io.EOF
	}
	r.b = r.b[n:]
	return n, nil
}

// ErrCoinbaseMismatch is returned by ReplayUTXOs when a block's claimed
// coinbase amount does not match the base reward plus fees recomputed by
// replaying its transactions.
var ErrCoinbaseMismatch = errors.New("consensus: claimed coinbase amount does not match recomputed fees")

// ReplayUTXOs reconstructs b.UTXOs by cloning parent's view (or starting
// empty, for a genesis block) and re-admitting b.Transactions through the
// same WillAcceptTransaction/AddTransaction path a locally-built block would
// have used. It returns an error the moment any transaction fails
// admission, or if the block's claimed coinbase amount disagrees with the
// amount recomputed from the base reward plus replayed fees — which is how
// the chain re-validates a peer's block instead of trusting its claimed
// contents.
func (b *Block) ReplayUTXOs(parent *Block) error {
	claimedCoinbase := b.CoinbaseTX.TotalOutput()

	if parent != nil {
		b.UTXOs = parent.UTXOs.Clone()
	} else {
		b.UTXOs = make(types.UTXOView)
	}
	b.CoinbaseTX = types.NewTransaction(nil, []types.Output{{Amount: BaseReward, Address: b.RewardAddress}})
	b.UTXOs[b.CoinbaseTX.ID()] = outputPointers(b.CoinbaseTX.Outputs)

	txns := b.Transactions
	b.Transactions = nil
	for _, txn := range txns {
		if err := b.AddTransaction(txn); err != nil {
			return err
		}
	}
	if b.CoinbaseTX.TotalOutput() != claimedCoinbase {
		return ErrCoinbaseMismatch
	}
	return nil
}

// Equal reports whether b and other are structurally identical at the
// wire level: prevBlockHash, chainLength, timestamp, rewardAddress,
// coinbase contents, transactions (by id and contents), and proof. The
// derived UTXOs view is intentionally excluded — it is a function of the
// other fields, not independent state.
func (b *Block) Equal(other *Block) bool {
	if b.PrevBlockHash != other.PrevBlockHash ||
		b.ChainLength != other.ChainLength ||
		!b.Timestamp.Equal(other.Timestamp) ||
		b.RewardAddress != other.RewardAddress ||
		b.Proof != other.Proof ||
		len(b.Transactions) != len(other.Transactions) {
		return false
	}
	if b.CoinbaseTX.ID() != other.CoinbaseTX.ID() || !sameOutputs(b.CoinbaseTX.Outputs, other.CoinbaseTX.Outputs) {
		return false
	}
	for i := range b.Transactions {
		if !b.Transactions[i].Equal(other.Transactions[i]) {
			return false
		}
	}
	return true
}

func sameOutputs(a, c []types.Output) bool {
	if len(a) != len(c) {
		return false
	}
	for i := range a {
		if a[i] != c[i] {
			return false
		}
	}
	return true
}

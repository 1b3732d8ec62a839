// Package types defines the core data model of the ledger: addresses,
// outputs, inputs, and transactions.
package types

import (
	"errors"

	"go.stakecore.dev/core/crypto"
)

// A Hash256 is a generic 256-bit digest.
type Hash256 = crypto.Hash

// A PublicKey identifies a keyholder.
type PublicKey = crypto.PublicKey

// A PrivateKey signs on behalf of a PublicKey.
type PrivateKey = crypto.PrivateKey

// A Signature authenticates a message.
type Signature = crypto.Signature

// A Keypair is a matched PublicKey/PrivateKey pair.
type Keypair = crypto.Keypair

// An Address is the hash of a public key. Equality is by value.
type Address Hash256

// EncodeTo implements EncoderTo.
func (a Address) EncodeTo(e *Encoder) { e.Write(a[:]) }

// DecodeFrom implements DecoderFrom.
func (a *Address) DecodeFrom(d *Decoder) { d.Read(a[:]) }

// String returns a is a short hex representation of a, for logs.
func (a Address) String() string {
	const hextable = "0123456789abcdef"
	buf := make([]byte, 8)
	for i := 0; i < 4; i++ {
		buf[i*2] = hextable[a[i]>>4]
		buf[i*2+1] = hextable[a[i]&0xf]
	}
	return string(buf)
}

// CalcAddress derives the Address that corresponds to pk: hash(pk).
func CalcAddress(pk PublicKey) Address {
	return Address(crypto.CalcAddress(pk))
}

// GenerateKeypair creates a fresh Keypair.
func GenerateKeypair() Keypair { return crypto.GenerateKeypair() }

// HashBytes computes the module's generic hash of b.
func HashBytes(b []byte) Hash256 { return crypto.HashBytes(b) }

// A TransactionID uniquely identifies a Transaction.
type TransactionID Hash256

// EncodeTo implements EncoderTo.
func (id TransactionID) EncodeTo(e *Encoder) { e.Write(id[:]) }

// DecodeFrom implements DecoderFrom.
func (id *TransactionID) DecodeFrom(d *Decoder) { d.Read(id[:]) }

// An Output is the recipient of some amount of currency spent in a
// transaction. Once added to a confirmed transaction, an Output is
// immutable.
type Output struct {
	Amount  uint64
	Address Address
}

// EncodeTo implements EncoderTo.
func (o Output) EncodeTo(e *Encoder) {
	e.WriteUint64(o.Amount)
	o.Address.EncodeTo(e)
}

// DecodeFrom implements DecoderFrom.
func (o *Output) DecodeFrom(d *Decoder) {
	o.Amount = d.ReadUint64()
	o.Address.DecodeFrom(d)
}

// signingBytes returns the canonical encoding of o, the message that is
// signed and verified when an Input spends it.
func (o Output) signingBytes() []byte {
	var buf []byte
	e := NewEncoder(bufWriter{&buf})
	o.EncodeTo(e)
	e.Flush()
	return buf
}

// bufWriter adapts a *[]byte to io.Writer without an intermediate
// bytes.Buffer allocation.
type bufWriter struct{ buf *[]byte }

func (w bufWriter) Write(p []byte) (int, error) {
	*w.buf = append(*w.buf, p...)
	return len(p), nil
}

// SignOutput signs o with priv, producing the Signature an Input needs to
// spend o.
func SignOutput(priv PrivateKey, o Output) Signature {
	return crypto.Sign(priv, o.signingBytes())
}

// An Input references a specific Output of a prior transaction and proves
// authorization to spend it.
type Input struct {
	TxID        TransactionID
	OutputIndex uint64
	PubKey      PublicKey
	Signature   Signature
}

// EncodeTo implements EncoderTo.
func (in Input) EncodeTo(e *Encoder) {
	in.TxID.EncodeTo(e)
	e.WriteUint64(in.OutputIndex)
	e.Write(in.PubKey[:])
	e.Write(in.Signature[:])
}

// DecodeFrom implements DecoderFrom.
func (in *Input) DecodeFrom(d *Decoder) {
	in.TxID.DecodeFrom(d)
	in.OutputIndex = d.ReadUint64()
	d.Read(in.PubKey[:])
	d.Read(in.Signature[:])
}

// Errors returned by Transaction.SpendOutput and Transaction.AddFee. Each is
// fatal to the caller:
// a peer offering a transaction that trips one of these is silently
// rejected by Block.WillAcceptTransaction, but a local caller that
// constructs a bad Input has a programming bug and should see the error.
var (
	ErrWrongTxID          = errors.New("input does not reference this transaction")
	ErrOutputIndexInvalid = errors.New("input references a nonexistent output index")
	ErrAddressMismatch    = errors.New("public key does not match referenced output's address")
	ErrBadSignature       = errors.New("signature does not verify")
	ErrNotCoinbase        = errors.New("operation only valid on a coinbase transaction")
)

// A Transaction moves currency from a set of referenced Outputs (its Inputs)
// to a new set of Outputs. A Transaction with no Inputs is a coinbase
// transaction: a miner's block reward plus collected fees.
//
// ID is fixed at construction and never changes, even though a coinbase
// transaction's Outputs[0].Amount is mutated later by AddFee to collect
// fees. ID is therefore a commitment to the transaction's shape at
// construction time, not a content hash of its current state.
type Transaction struct {
	id      TransactionID
	Inputs  []Input
	Outputs []Output
}

// NewTransaction constructs a Transaction and freezes its ID.
func NewTransaction(inputs []Input, outputs []Output) *Transaction {
	txn := &Transaction{Inputs: inputs, Outputs: outputs}
	txn.id = TransactionID(hashTransaction(inputs, outputs))
	return txn
}

func hashTransaction(inputs []Input, outputs []Output) Hash256 {
	h := crypto.NewHasher()
	e := NewEncoder(h)
	EncodeSlice(e, inputs)
	EncodeSlice(e, outputs)
	e.Flush()
	return h.Sum()
}

// ID returns the transaction's frozen id.
func (txn *Transaction) ID() TransactionID { return txn.id }

// IsCoinbase reports whether txn has no inputs.
func (txn *Transaction) IsCoinbase() bool { return len(txn.Inputs) == 0 }

// EncodeTo implements EncoderTo. The id is not part of the encoding: it is
// always recomputed from Inputs/Outputs by the receiver via NewTransaction,
// or carried out-of-band in the coinbase case (see consensus.Deserialize).
func (txn *Transaction) EncodeTo(e *Encoder) {
	EncodeSlice(e, txn.Inputs)
	EncodeSlice(e, txn.Outputs)
}

// DecodeFrom implements DecoderFrom. It does not set txn.id; callers must
// call Transaction.SetID (coinbase) or recompute it (non-coinbase) after
// decoding.
func (txn *Transaction) DecodeFrom(d *Decoder) {
	DecodeSlice[Input](d, &txn.Inputs)
	DecodeSlice[Output](d, &txn.Outputs)
}

// SetID overrides the transaction's id. Used only by deserialization, where
// the id is transmitted explicitly because a coinbase transaction's current
// encoding no longer hashes to its construction-time id (see AddFee).
func (txn *Transaction) SetID(id TransactionID) { txn.id = id }

// SpendOutput validates that input authorizes spending one of txn's
// outputs, and returns its amount. It is a pure function of txn: it does
// not consult any UTXO view, and does not check whether the output has
// already been spent elsewhere.
func (txn *Transaction) SpendOutput(input Input) (uint64, error) {
	if input.TxID != txn.id {
		return 0, ErrWrongTxID
	}
	if input.OutputIndex >= uint64(len(txn.Outputs)) {
		return 0, ErrOutputIndexInvalid
	}
	out := txn.Outputs[input.OutputIndex]
	if CalcAddress(input.PubKey) != out.Address {
		return 0, ErrAddressMismatch
	}
	if !crypto.Verify(input.PubKey, out.signingBytes(), input.Signature) {
		return 0, ErrBadSignature
	}
	return out.Amount, nil
}

// outputRef identifies one specific output of one specific transaction, the
// granularity at which IsValid tracks "already referenced by this
// transaction" to reject internal double-spends.
type outputRef struct {
	TxID        TransactionID
	OutputIndex uint64
}

// IsValid reports whether txn is a well-formed spend against view: every
// input must reference a still-unspent output in view, with a matching
// address and a valid signature, no two inputs may reference the same
// output, and the total input amount must be at least the total output
// amount. IsValid never panics on a structural problem (a missing
// transaction or output slot in view, or a duplicate input) — it returns
// false. It is not meaningful to call IsValid on a coinbase transaction.
func (txn *Transaction) IsValid(view UTXOView) bool {
	var inSum uint64
	seen := make(map[outputRef]struct{}, len(txn.Inputs))
	for _, in := range txn.Inputs {
		ref := outputRef{in.TxID, in.OutputIndex}
		if _, dup := seen[ref]; dup {
			return false // same output spent twice within this transaction
		}
		seen[ref] = struct{}{}

		outs, ok := view[in.TxID]
		if !ok || in.OutputIndex >= uint64(len(outs)) {
			return false
		}
		out := outs[in.OutputIndex]
		if out == nil {
			return false // already spent in this view
		}
		if CalcAddress(in.PubKey) != out.Address {
			return false
		}
		if !crypto.Verify(in.PubKey, out.signingBytes(), in.Signature) {
			return false
		}
		inSum += out.Amount
	}
	return inSum >= txn.TotalOutput()
}

// AddFee adds amount to txn's first output. Legal only on a coinbase
// transaction; it is how a block credits its miner with collected fees
// after txn.id has already been frozen.
func (txn *Transaction) AddFee(amount uint64) error {
	if !txn.IsCoinbase() {
		return ErrNotCoinbase
	}
	if len(txn.Outputs) == 0 {
		return ErrOutputIndexInvalid
	}
	txn.Outputs[0].Amount += amount
	return nil
}

// TotalOutput returns the sum of txn's output amounts.
func (txn *Transaction) TotalOutput() uint64 {
	var sum uint64
	for _, o := range txn.Outputs {
		sum += o.Amount
	}
	return sum
}

// Equal reports whether txn and other are structurally identical,
// including id. Used by tests to check serialization round-trips (P6).
func (txn *Transaction) Equal(other *Transaction) bool {
	if txn.id != other.id || len(txn.Inputs) != len(other.Inputs) || len(txn.Outputs) != len(other.Outputs) {
		return false
	}
	for i := range txn.Inputs {
		if txn.Inputs[i] != other.Inputs[i] {
			return false
		}
	}
	for i := range txn.Outputs {
		if txn.Outputs[i] != other.Outputs[i] {
			return false
		}
	}
	return true
}

// A UTXOView maps a transaction id to its outputs as currently known to a
// particular block: a nil slot means the output at that index has been
// spent, and a missing key means the view has no knowledge of that
// transaction at all.
type UTXOView map[TransactionID][]*Output

// Clone returns a deep-enough copy of v suitable for a child block: slices
// of *Output are copied so that spending in the child does not mutate the
// parent's view, but the pointed-to Outputs themselves are shared (they are
// immutable once created).
func (v UTXOView) Clone() UTXOView {
	clone := make(UTXOView, len(v))
	for id, outs := range v {
		cp := make([]*Output, len(outs))
		copy(cp, outs)
		clone[id] = cp
	}
	return clone
}

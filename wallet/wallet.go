// Package wallet implements a participant's view of their own spendable
// coins: which keypairs they hold, and which unspent outputs they believe
// are currently theirs to spend.
package wallet

import (
	"errors"
	"sync"

	"go.stakecore.dev/core/types"
)

// Errors returned by Wallet. Both are a local participant doing something
// wrong (spending more than they have, crediting an address the wallet
// never generated) and are surfaced rather than silently swallowed.
var (
	ErrInsufficientFunds = errors.New("wallet: insufficient funds")
	ErrUnknownAddress    = errors.New("wallet: no keypair for address")
)

// A Coin is the wallet's own record of a UTXO it believes is spendable,
// together with the output index and transaction id needed to spend it.
type Coin struct {
	Output      types.Output
	TxID        types.TransactionID
	OutputIndex uint64
}

// A Wallet owns a set of keypairs and a FIFO queue of coins it believes are
// spendable. Coins are removed optimistically when minted into inputs; the
// underlying keypair is always retained, so the wallet can re-derive its
// coin set from the chain if a spend is ever rejected.
type Wallet struct {
	mu sync.Mutex

	keys  map[types.Address]types.Keypair
	order []types.Address // insertion order, for SaveEligibilityProof

	coins []Coin // front = most recent, back = oldest

	eligibilityAddr types.Address
}

// New returns an empty Wallet.
func New() *Wallet {
	return &Wallet{keys: make(map[types.Address]types.Keypair)}
}

// Balance returns the sum of the wallet's coins' amounts.
func (w *Wallet) Balance() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	var sum uint64
	for _, c := range w.coins {
		sum += c.Output.Amount
	}
	return sum
}

// HasKey reports whether the wallet holds a keypair for addr.
func (w *Wallet) HasKey(addr types.Address) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.keys[addr]
	return ok
}

// MakeAddress generates a fresh keypair, stores it, and returns its address.
func (w *Wallet) MakeAddress() types.Address {
	kp := types.GenerateKeypair()
	addr := types.CalcAddress(kp.Public)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.keys[addr] = kp
	w.order = append(w.order, addr)
	return addr
}

// AddUTXO records output (from transaction txID, at outputIndex) as a
// spendable coin. The wallet must already hold the keypair for the
// output's address, or this is a programming bug and AddUTXO surfaces it.
func (w *Wallet) AddUTXO(output types.Output, txID types.TransactionID, outputIndex uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.keys[output.Address]; !ok {
		return ErrUnknownAddress
	}
	w.coins = append([]Coin{{Output: output, TxID: txID, OutputIndex: outputIndex}}, w.coins...)
	return nil
}

// SpendUTXOs consumes coins from the oldest end of the queue until their
// total reaches requestedAmount, signing an Input for each, and returns the
// signed inputs plus any change (the amount consumed in excess of
// requestedAmount). Consumed coins are removed from the queue; the
// underlying keypairs are retained.
func (w *Wallet) SpendUTXOs(requestedAmount uint64) (inputs []types.Input, changeAmount uint64, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if requestedAmount > w.balanceLocked() {
		return nil, 0, ErrInsufficientFunds
	}

	var accumulated uint64
	consumed := 0
	for i := len(w.coins) - 1; i >= 0 && accumulated < requestedAmount; i-- {
		c := w.coins[i]
		kp := w.keys[c.Output.Address]
		inputs = append(inputs, types.Input{
			TxID:        c.TxID,
			OutputIndex: c.OutputIndex,
			PubKey:      kp.Public,
			Signature:   types.SignOutput(kp.Private, c.Output),
		})
		accumulated += c.Output.Amount
		consumed++
	}
	w.coins = w.coins[:len(w.coins)-consumed]
	return inputs, accumulated - requestedAmount, nil
}

func (w *Wallet) balanceLocked() uint64 {
	var sum uint64
	for _, c := range w.coins {
		sum += c.Output.Amount
	}
	return sum
}

// SaveEligibilityProof captures the address currently used as the wallet's
// eligibility key for mint-eligibility checks. It is, by construction, the
// most recently generated address: the wallet walks its addresses in
// insertion order and the last one wins. This preserves a documented quirk
// (see DESIGN.md) rather than silently picking a "better" key: a faithful
// redesign would instead hash all owned addresses together or use a
// dedicated staking key, but callers that rely on today's single-address
// behavior must see it stay deterministic.
func (w *Wallet) SaveEligibilityProof() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.order) == 0 {
		return
	}
	w.eligibilityAddr = w.order[len(w.order)-1]
}

// GetEligibilityAddress returns the address captured by the most recent
// SaveEligibilityProof call.
func (w *Wallet) GetEligibilityAddress() types.Address {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.eligibilityAddr
}

// EligibilityPublicKey returns the public key backing GetEligibilityAddress,
// the actual bytes the eligibility predicate does its prefix-bit match
// against.
func (w *Wallet) EligibilityPublicKey() types.PublicKey {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.keys[w.eligibilityAddr].Public
}

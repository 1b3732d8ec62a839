// Package node implements the network's two kinds of participant: a plain
// Client that holds a wallet and reacts to confirmed blocks, and a Miner
// that additionally runs the consensus loop. Each participant owns exactly
// one goroutine that drains its own inbox in order, which is what gives the
// system its "no parallelism inside a participant" guarantee — the Go
// analogue of the teacher's one-goroutine-per-peer connection loop
// (gateway.Peer), applied to local state instead of a socket.
package node

import (
	"go.stakecore.dev/core/bus"
	"go.stakecore.dev/core/consensus"
	"go.stakecore.dev/core/types"
	"go.stakecore.dev/core/wallet"
	"go.uber.org/zap"
)

// A Client holds a wallet, listens to the bus, and absorbs outputs
// addressed to it as blocks are confirmed.
type Client struct {
	Name   string
	Wallet *wallet.Wallet

	bus *bus.Bus
	sub *bus.Subscription
	log *zap.Logger

	inbox chan func()
	done  chan struct{}
}

// NewClient returns a Client subscribed to b, with its event loop running.
func NewClient(name string, b *bus.Bus, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		Name:   name,
		Wallet: wallet.New(),
		bus:    b,
		sub:    b.Subscribe(),
		log:    log,
		inbox:  make(chan func(), 256),
		done:   make(chan struct{}),
	}
	c.sub.On(bus.ProofFound, func(payload any) { c.enqueue(func() { c.onProofFound(payload) }) })
	c.sub.On(bus.PostTransaction, func(payload any) {}) // no required reaction for a plain Client
	go c.run()
	return c
}

// enqueue schedules fn to run on c's own event-loop goroutine, preserving
// FIFO order relative to every other message c has received.
func (c *Client) enqueue(fn func()) {
	select {
	case c.inbox <- fn:
	case <-c.done:
	}
}

func (c *Client) run() {
	for {
		select {
		case fn := <-c.inbox:
			fn()
		case <-c.done:
			return
		}
	}
}

// Stop terminates the client's event loop.
func (c *Client) Stop() { close(c.done) }

func (c *Client) onProofFound(payload any) {
	pf, ok := payload.(ProofFoundPayload)
	if !ok {
		return
	}
	b, err := consensus.Deserialize(pf.Data)
	if err != nil {
		c.log.Debug("dropping malformed PROOF_FOUND payload", zap.Error(err))
		return
	}
	c.absorbBlock(b)
}

// absorbBlock credits the client's wallet with any outputs, in b's coinbase
// or transactions, addressed to it.
func (c *Client) absorbBlock(b *consensus.Block) {
	c.ReceiveOutput(b.CoinbaseTX)
	for _, txn := range b.Transactions {
		c.ReceiveOutput(txn)
	}
}

// ReceiveOutput absorbs every output of txn whose address this client
// holds a key for.
func (c *Client) ReceiveOutput(txn *types.Transaction) {
	for i, out := range txn.Outputs {
		if !c.Wallet.HasKey(out.Address) {
			continue
		}
		if err := c.Wallet.AddUTXO(out, txn.ID(), uint64(i)); err != nil {
			c.log.Error("wallet rejected an output addressed to one of its own keys", zap.Error(err))
		}
	}
}

// PostTransaction spends outputs' total amount from the wallet, appends a
// change output to a fresh address if the wallet overshoots, and
// broadcasts the resulting transaction on POST_TRANSACTION.
func (c *Client) PostTransaction(outputs []types.Output) (*types.Transaction, error) {
	var total uint64
	for _, o := range outputs {
		total += o.Amount
	}
	inputs, change, err := c.Wallet.SpendUTXOs(total)
	if err != nil {
		return nil, err
	}
	if change > 0 {
		outputs = append(outputs, types.Output{Amount: change, Address: c.Wallet.MakeAddress()})
	}
	txn := types.NewTransaction(inputs, outputs)
	c.bus.Broadcast(bus.PostTransaction, txn)
	return txn, nil
}

// ProofFoundPayload is the wire-level payload of a PROOF_FOUND event: the
// canonical serialization of the announced block, plus a reference to the
// miner that found it. Every announcement carries the announcing miner's
// non-empty name. A Miner skips its own announcements, so a block it mined
// itself never passes through Miner.isValidBlock; that is the one case in
// which mint eligibility is not re-checked, since a miner trivially knows
// its own block was eligible.
type ProofFoundPayload struct {
	Data  []byte
	Miner string
}

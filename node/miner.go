package node

import (
	"time"

	"go.stakecore.dev/core/bus"
	"go.stakecore.dev/core/consensus"
	"go.stakecore.dev/core/types"
	"go.uber.org/zap"
)

// Config tunes a Miner's consensus loop. Unlike the teacher's fixed
// protocol constants, these are runtime fields of Config passed to
// NewMiner, so a simulation can run miners with different mining quanta
// or eligibility windows side by side.
type Config struct {
	// NumRoundsMining bounds how many proof guesses findProof makes before
	// yielding back to the inbox, so a long search never starves a pending
	// PROOF_FOUND or POST_TRANSACTION message.
	NumRoundsMining int
	// MintEligibilityDifficulty is the starting number of leading bits a
	// miner's eligibility key must share with the parent block's hash.
	MintEligibilityDifficulty int
	// TimeUntilEligibilityDecrease is how long a miner waits, after failing
	// an eligibility check, before retrying with the target lowered by one.
	TimeUntilEligibilityDecrease time.Duration
}

// DefaultConfig returns reasonable defaults for a local simulation.
func DefaultConfig() Config {
	return Config{
		NumRoundsMining:              2000,
		MintEligibilityDifficulty:    2,
		TimeUntilEligibilityDecrease: 5 * time.Second,
	}
}

// A Miner is a Client that additionally competes to extend the chain. It
// holds the one open block it is currently building or searching for a
// proof on, plus every sealed block it has accepted, keyed by id, so it can
// look up a block's parent when a peer announces a longer chain.
type Miner struct {
	*Client

	cfg      Config
	registry *Registry

	blocks  map[consensus.BlockID]*consensus.Block
	current *consensus.Block

	searching bool

	rewardAddr types.Address
}

// now is overridable in tests; production code always uses time.Now.
var now = time.Now

// NewMiner returns a Miner subscribed to b, with its event loop running.
// genesis is the chain's starting block, already accepted without
// validation (it has no miner and no proof to check). registry is shared
// across every Miner in the simulation, so each can check the others'
// eligibility claims.
func NewMiner(name string, b *bus.Bus, log *zap.Logger, cfg Config, genesis *consensus.Block, registry *Registry) *Miner {
	return newMinerFromClient(NewClient(name, b, log), cfg, genesis, registry)
}

// PromoteToMiner upgrades an already-constructed Client into a Miner that
// additionally runs the consensus loop, reusing its wallet, bus
// subscription, and name instead of starting over with an empty one. This
// is how a simulation credits a participant with genesis funds (via
// consensus.MakeGenesisBlock's Receiver callback) before that participant
// ever starts mining: build the Client first, let it absorb genesis, then
// promote it.
func PromoteToMiner(c *Client, cfg Config, genesis *consensus.Block, registry *Registry) *Miner {
	return newMinerFromClient(c, cfg, genesis, registry)
}

func newMinerFromClient(c *Client, cfg Config, genesis *consensus.Block, registry *Registry) *Miner {
	m := &Miner{
		Client:   c,
		cfg:      cfg,
		registry: registry,
		blocks:   map[consensus.BlockID]*consensus.Block{genesis.HashVal(): genesis},
	}
	m.rewardAddr = m.Wallet.MakeAddress()
	m.Wallet.SaveEligibilityProof()
	registry.register(c.Name, m.Wallet.EligibilityPublicKey())

	// A Miner additionally reacts to PROOF_FOUND (to check whether a peer's
	// block should replace its own in-progress search) and POST_TRANSACTION
	// (to admit the transaction into the block it is building). Both run
	// after Client's own PROOF_FOUND handler, which has already credited the
	// wallet with anything addressed to it.
	m.sub.On(bus.ProofFound, func(payload any) { m.enqueue(func() { m.onPeerProof(payload) }) })
	m.sub.On(bus.PostTransaction, func(payload any) { m.enqueue(func() { m.onPostTransaction(payload) }) })

	// The reward address used for the very first search was just minted
	// above, so reuse it rather than burning a second address before a
	// single block has been built.
	m.enqueue(func() { m.startNewSearch(genesis, true) })
	return m
}

// startNewSearch opens a fresh block extending parent, posts the miner's
// coinage transaction (a small self-payment that makes it visible as a
// stakeholder to anyone watching POST_TRANSACTION), and begins checking for
// mint eligibility. Normal preparation (after announcing a block of its own)
// mints a fresh reward address so a watcher can't link successive blocks to
// the same address; a fork cutover passes reuseRewardAddress=true instead,
// since abandoning an in-progress search shouldn't burn another address.
func (m *Miner) startNewSearch(parent *consensus.Block, reuseRewardAddress bool) {
	if !reuseRewardAddress {
		m.rewardAddr = m.Wallet.MakeAddress()
	}
	m.current = consensus.NewBlock(m.rewardAddr, parent)
	m.postCoinageTransaction()
	m.tryEligibility(parent)
}

// postCoinageTransaction pays a small, fresh self-address through the
// normal PostTransaction path, the same admission route a user payment
// takes. It is a best-effort signal, not a precondition of mining: a miner
// with no balance yet (e.g. before its first block reward) simply skips
// it.
func (m *Miner) postCoinageTransaction() {
	const coinageAmount = 1
	if m.Wallet.Balance() < coinageAmount {
		return
	}
	addr := m.Wallet.MakeAddress()
	if _, err := m.PostTransaction([]types.Output{{Amount: coinageAmount, Address: addr}}); err != nil {
		m.log.Debug("skipping coinage transaction", zap.Error(err))
	}
}

// targetAt computes the mint-eligibility target that applies at
// checkedAt, given parent was created at parentTime: the target starts at
// base and drops by one for every full decreaseEvery interval that has
// elapsed since, floored at zero. Both a searching miner and a validator
// checking a remote claim compute this the same way, from the same public
// timestamps, so eligibility never depends on trusting the announcer's
// private retry count.
func targetAt(parentTime, checkedAt time.Time, base int, decreaseEvery time.Duration) int {
	if decreaseEvery <= 0 {
		return base
	}
	decrements := int(checkedAt.Sub(parentTime) / decreaseEvery)
	target := base - decrements
	if target < 0 {
		target = 0
	}
	return target
}

// tryEligibility checks the miner's eligibility key against parent's hash
// at the target implied by how long parent has stood uncontested. If
// eligible, it begins the proof search immediately; otherwise it retries
// after TimeUntilEligibilityDecrease, which is this miner's only
// self-timed suspension point besides the mining quantum itself.
func (m *Miner) tryEligibility(parent *consensus.Block) {
	target := targetAt(parent.Timestamp, now(), m.cfg.MintEligibilityDifficulty, m.cfg.TimeUntilEligibilityDecrease)
	if isEligibleToMint(m.Wallet.EligibilityPublicKey(), parent.HashVal(), target) {
		// Re-stamp the block's timestamp to the moment eligibility was
		// actually confirmed, not the earlier moment it was opened: a
		// decay-wait retry can span several TimeUntilEligibilityDecrease
		// intervals, and a receiver recomputes this same target from
		// parent.Timestamp and b.Timestamp. If the block still carried its
		// creation-time stamp, the receiver would see a higher, unmet target
		// and reject a legitimately-mined block.
		m.current.Timestamp = now()
		m.searching = true
		m.findProof()
		return
	}
	time.AfterFunc(m.cfg.TimeUntilEligibilityDecrease, func() {
		m.enqueue(func() {
			if m.current != nil && m.current.PrevBlockHash == parent.HashVal() {
				m.tryEligibility(parent)
			}
		})
	})
}

// findProof runs up to NumRoundsMining proof guesses against the miner's
// current block. If none succeed it re-enqueues itself, which lets any
// message that arrived during the quantum (most importantly a peer's
// PROOF_FOUND) run before the search resumes. The re-enqueued quantum only
// resumes if that block is still current; once a new block has been opened,
// the old search ends there.
func (m *Miner) findProof() {
	if !m.searching {
		return
	}
	b := m.current
	for i := 0; i < m.cfg.NumRoundsMining; i++ {
		if b.VerifyProof() {
			m.announce(b)
			return
		}
		b.Proof++
	}
	m.enqueue(func() {
		if m.current == b {
			m.findProof()
		}
	})
}

// announce seals the block it just found a proof for, accepts it locally,
// and broadcasts it on PROOF_FOUND so every other participant can absorb
// its payments and race to extend it next.
func (m *Miner) announce(b *consensus.Block) {
	m.searching = false
	m.blocks[b.HashVal()] = b
	m.current = nil
	m.bus.Broadcast(bus.ProofFound, ProofFoundPayload{Data: b.Serialize(true), Miner: m.Name})
	m.startNewSearch(b, false)
}

// onPeerProof handles a PROOF_FOUND broadcast, including the miner's own:
// Broadcast reaches every subscription, this miner's included. A block
// this miner just announced itself is already in m.blocks and is skipped;
// everything else is validated against its claimed parent before being
// accepted, and if it extends a longer chain than the miner's own current
// branch, the miner abandons its in-progress search and builds on top of it
// instead.
func (m *Miner) onPeerProof(payload any) {
	pf, ok := payload.(ProofFoundPayload)
	if !ok {
		return
	}
	candidate, err := consensus.Deserialize(pf.Data)
	if err != nil {
		m.log.Debug("dropping malformed PROOF_FOUND payload", zap.Error(err))
		return
	}
	id := candidate.HashVal()
	if _, seen := m.blocks[id]; seen {
		return
	}

	if _, ok := m.blocks[candidate.PrevBlockHash]; !ok {
		m.log.Debug("dropping block with unknown parent", zap.String("miner", pf.Miner))
		return
	}
	if !m.isValidBlock(candidate, pf.Miner) {
		m.log.Debug("rejecting invalid block", zap.String("miner", pf.Miner))
		return
	}

	m.blocks[id] = candidate
	if m.current == nil || candidate.ChainLength >= m.current.ChainLength {
		m.searching = false
		// Cutting over to a peer's fork reuses the current reward address
		// rather than minting a fresh one, per the documented asymmetry: a
		// block abandoned mid-search never shipped, so there is no address
		// leak to avoid by burning it.
		m.startNewSearch(candidate, true)
	}
}

// isValidBlock checks a peer-announced block's proof, re-validates every
// one of its transactions against a UTXO view reconstructed from its
// parent (never the claimed wire contents), and checks that minerName was
// actually eligible to mint against its parent's hash at the time it
// claims to have sealed the block. A block this miner sealed itself never
// reaches isValidBlock; announce() admits it directly on the strength of
// having just searched for it locally.
func (m *Miner) isValidBlock(b *consensus.Block, minerName string) bool {
	if !b.VerifyProof() {
		return false
	}
	parent, ok := m.blocks[b.PrevBlockHash]
	if !ok {
		return false
	}
	pub, ok := m.registry.Lookup(minerName)
	if !ok {
		return false
	}
	target := targetAt(parent.Timestamp, b.Timestamp, m.cfg.MintEligibilityDifficulty, m.cfg.TimeUntilEligibilityDecrease)
	if !isEligibleToMint(pub, parent.HashVal(), target) {
		return false
	}
	if err := b.ReplayUTXOs(parent); err != nil {
		return false
	}
	return true
}

// onPostTransaction admits a transaction announced on POST_TRANSACTION
// into the block this miner is currently building, silently ignoring it if
// the block won't accept it (e.g. it spends an output this miner hasn't
// seen yet, or was already included).
func (m *Miner) onPostTransaction(payload any) {
	txn, ok := payload.(*types.Transaction)
	if !ok || m.current == nil {
		return
	}
	if m.current.WillAcceptTransaction(txn) {
		_ = m.current.AddTransaction(txn)
	}
}

// bin16 packs the first two bytes of b into a 16-bit value, zero-padding
// if b is shorter. Every caller here passes a fixed 32-byte hash or a
// fixed-size public key, so the "two differently-sized inputs" failure
// mode a raw bit-string comparison would need to guard against cannot
// arise: the 16-bit width is structural, not checked.
func bin16(b []byte) uint16 {
	var v uint16
	if len(b) > 0 {
		v |= uint16(b[0]) << 8
	}
	if len(b) > 1 {
		v |= uint16(b[1])
	}
	return v
}

// matchingPrefixBits counts the leading bits a and b have in common.
func matchingPrefixBits(a, b uint16) int {
	x := a ^ b
	n := 0
	for mask := uint16(0x8000); mask != 0 && x&mask == 0; mask >>= 1 {
		n++
	}
	return n
}

// isEligibleToMint reports whether pubKey shares at least target leading
// bits with prevHash, the mint-eligibility predicate every miner checks
// against its own eligibility key before it is allowed to search for a
// proof extending prevHash.
func isEligibleToMint(pubKey types.PublicKey, prevHash consensus.BlockID, target int) bool {
	return matchingPrefixBits(bin16(prevHash[:]), bin16(pubKey[:])) >= target
}

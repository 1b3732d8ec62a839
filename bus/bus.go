// Package bus implements the named-event broadcaster that every
// participant (Client or Miner) uses to talk to itself and to the rest of
// the network. It models a shared, logical publish/subscribe channel, not
// a network transport: the teacher's gateway dials real TCP peers, but
// this system's participants share one process and one bus.
package bus

import "sync"

// The four named events the system ever emits.
const (
	InitMinting     = "INIT_MINTING"
	StartMining     = "START_MINING"
	ProofFound      = "PROOF_FOUND"
	PostTransaction = "POST_TRANSACTION"
)

// A Handler receives an event's payload. Handlers run synchronously, in
// the order messages were delivered to their subscription.
type Handler func(payload any)

// A Subscription is one participant's private view of the bus: handlers
// registered through it fire only for events addressed to it, whether by
// a local self-signal (Emit) or by a network-wide broadcast (the owning
// Bus's Broadcast).
type Subscription struct {
	mu       sync.Mutex
	handlers map[string][]Handler
}

// On registers handler for event on this subscription.
func (s *Subscription) On(event string, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = append(s.handlers[event], handler)
}

// Emit delivers payload to this subscription's own handlers for event —
// a self-signal, used by a miner to schedule its own next step. It never
// reaches any other participant.
func (s *Subscription) Emit(event string, payload any) {
	s.deliver(event, payload)
}

func (s *Subscription) deliver(event string, payload any) {
	s.mu.Lock()
	handlers := append([]Handler(nil), s.handlers[event]...)
	s.mu.Unlock()
	for _, h := range handlers {
		h(payload)
	}
}

// A Bus fans a broadcast out to every participant's Subscription. It is the
// only state shared between participants; subscriptions are private.
type Bus struct {
	mu   sync.Mutex
	subs []*Subscription
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe returns a new Subscription attached to the bus, representing
// one participant.
func (b *Bus) Subscribe() *Subscription {
	s := &Subscription{handlers: make(map[string][]Handler)}
	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()
	return s
}

// Broadcast delivers payload, for event, to every subscriber's handlers in
// subscription order. The bus serializes broadcasts: b.mu is held for the
// full delivery loop, not just the subscriber snapshot, so two concurrent
// Broadcast calls can never interleave their delivery to different
// subscribers — every subscriber sees broadcasts in the same total order.
// Handlers must not block or call back into the bus, since they run with
// b.mu held.
func (b *Bus) Broadcast(event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		s.deliver(event, payload)
	}
}

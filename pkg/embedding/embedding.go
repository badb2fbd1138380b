// Package embedding declares the external sentence-embedding collaborator.
//
// The model itself is out of scope for this module: callers wire in any
// implementation (a local model, a remote API) that satisfies Provider.
// What lives here is the contract and the status broadcast that the rest of
// the system reacts to while the provider warms up or fails.
package embedding

import "context"

// Status is the lifecycle state of the embedding provider.
type Status int

const (
	// StatusIdle is the initial state before anything has requested an embedding.
	StatusIdle Status = iota
	// StatusLoading means the provider is warming up (model load, connection handshake).
	StatusLoading
	// StatusReady means embed calls are expected to succeed.
	StatusReady
	// StatusError means the provider failed; it is retryable from idle.
	StatusError
)

// String renders the status for logging.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Provider is the external embedding collaborator: embed(text) -> vector<float>[D].
type Provider interface {
	// Embed converts text into an L2-normalized, mean-pooled vector.
	// Implementations must be deterministic for identical input.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns D, the length of vectors this provider produces.
	Dimension() int

	// Status returns the current lifecycle state.
	Status() Status

	// Subscribe registers cb to be called on every status transition, and
	// immediately delivers the current status. It returns an unsubscribe func.
	Subscribe(cb func(Status)) (unsubscribe func())
}

// Broadcaster is a small publish/subscribe helper that Provider implementations
// can embed to get Subscribe/notify behavior for free. It records whatever
// status Set is given; it does not check transitions against the
// idle -> loading -> ready | error lifecycle.
type Broadcaster struct {
	current     Status
	subscribers map[int]func(Status)
	nextID      int
}

// NewBroadcaster creates a Broadcaster starting at StatusIdle.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		current:     StatusIdle,
		subscribers: make(map[int]func(Status)),
	}
}

// Current returns the broadcaster's current status.
func (b *Broadcaster) Current() Status {
	return b.current
}

// Set transitions to s and notifies every subscriber; the order in which
// subscribers are called is not defined.
func (b *Broadcaster) Set(s Status) {
	b.current = s
	for _, cb := range b.subscribers {
		cb(s)
	}
}

// Subscribe registers cb, delivers the current status immediately, and
// returns a function that removes the subscription.
func (b *Broadcaster) Subscribe(cb func(Status)) func() {
	id := b.nextID
	b.nextID++
	b.subscribers[id] = cb
	cb(b.current)
	return func() { delete(b.subscribers, id) }
}

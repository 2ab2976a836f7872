package emit

import (
	"context"
	"sync"
)

// Envelope wraps whichever of the three event kinds is being delivered to
// a Broadcaster subscriber, tagged by Kind so a single channel can carry
// all three without a type switch on every receive.
type Envelope struct {
	Kind         EnvelopeKind
	NodeStatus   NodeStatusEvent
	EdgeStatus   EdgeStatusEvent
	Progress     ProgressEvent
}

// EnvelopeKind discriminates the populated field of an Envelope.
type EnvelopeKind int

const (
	KindNodeStatus EnvelopeKind = iota
	KindEdgeStatus
	KindProgress
)

// Broadcaster is the engine's default Emitter: every event published to
// it is forwarded, in publication order, to every currently-subscribed
// channel. A subscriber whose buffer is full has the event dropped for it
// specifically — other subscribers are unaffected — which keeps the
// dropping "best-effort" while the per-(workflowId, nodeId) ordering
// within a single subscriber's stream is still preserved, since sends to
// one subscriber are always issued from the same publishing goroutine in
// call order.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[int]chan Envelope
	nextID      int
	bufferSize  int
}

// NewBroadcaster returns a Broadcaster whose subscriber channels are
// buffered to bufferSize (a slow subscriber drops events past that
// backlog rather than blocking the publisher).
func NewBroadcaster(bufferSize int) *Broadcaster {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Broadcaster{
		subscribers: map[int]chan Envelope{},
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a new listener and returns its channel plus an
// unsubscribe function. The channel is never closed by the broadcaster
// except via the returned unsubscribe call, so callers must eventually
// call it to avoid leaking the entry.
func (b *Broadcaster) Subscribe() (<-chan Envelope, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Envelope, b.bufferSize)
	b.subscribers[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(c)
		}
	}
	return ch, unsubscribe
}

func (b *Broadcaster) publish(env Envelope) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- env:
		default:
			// subscriber backlog full: drop, per the best-effort delivery contract
		}
	}
}

func (b *Broadcaster) EmitNodeStatus(e NodeStatusEvent) {
	b.publish(Envelope{Kind: KindNodeStatus, NodeStatus: e})
}

func (b *Broadcaster) EmitEdgeStatus(e EdgeStatusEvent) {
	b.publish(Envelope{Kind: KindEdgeStatus, EdgeStatus: e})
}

func (b *Broadcaster) EmitProgress(e ProgressEvent) {
	b.publish(Envelope{Kind: KindProgress, Progress: e})
}

func (b *Broadcaster) Flush(ctx context.Context) error { return nil }

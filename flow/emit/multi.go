package emit

import "context"

// Multi fans a single event out to several Emitters, e.g. a Broadcaster
// serving live subscribers plus an OTelEmitter recording spans for
// tracing. Each member is called in order; a member's Flush error is
// collected but does not stop the remaining members from flushing.
type Multi struct {
	Emitters []Emitter
}

func NewMulti(emitters ...Emitter) *Multi {
	return &Multi{Emitters: emitters}
}

func (m *Multi) EmitNodeStatus(e NodeStatusEvent) {
	for _, em := range m.Emitters {
		em.EmitNodeStatus(e)
	}
}

func (m *Multi) EmitEdgeStatus(e EdgeStatusEvent) {
	for _, em := range m.Emitters {
		em.EmitEdgeStatus(e)
	}
}

func (m *Multi) EmitProgress(e ProgressEvent) {
	for _, em := range m.Emitters {
		em.EmitProgress(e)
	}
}

func (m *Multi) Flush(ctx context.Context) error {
	var first error
	for _, em := range m.Emitters {
		if err := em.Flush(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

package emit

import (
	"testing"
	"time"
)

func TestBroadcasterDeliversInPublicationOrder(t *testing.T) {
	b := NewBroadcaster(16)
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	b.EmitNodeStatus(NodeStatusEvent{NodeID: "a", Status: NodeRunning})
	b.EmitNodeStatus(NodeStatusEvent{NodeID: "a", Status: NodeConfirmed})
	b.EmitEdgeStatus(EdgeStatusEvent{EdgeID: "e1", Status: EdgeHasData})

	want := []EnvelopeKind{KindNodeStatus, KindNodeStatus, KindEdgeStatus}
	for i, k := range want {
		select {
		case env := <-ch:
			if env.Kind != k {
				t.Fatalf("event %d: kind = %v, want %v", i, env.Kind, k)
			}
		case <-time.After(time.Second):
			t.Fatalf("event %d: timed out waiting for delivery", i)
		}
	}
}

func TestBroadcasterDropsWithoutBlockingOnFullSubscriber(t *testing.T) {
	b := NewBroadcaster(1)
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.EmitProgress(ProgressEvent{NodeID: "a", Progress: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a full subscriber buffer")
	}
	<-ch // drain whatever made it through; the point is the publisher never blocked
}

func TestBroadcasterMultipleSubscribersAllSeeEvents(t *testing.T) {
	b := NewBroadcaster(8)
	ch1, unsub1 := b.Subscribe()
	ch2, unsub2 := b.Subscribe()
	defer unsub1()
	defer unsub2()

	b.EmitNodeStatus(NodeStatusEvent{NodeID: "a", Status: NodeRunning})

	for _, ch := range []<-chan Envelope{ch1, ch2} {
		select {
		case env := <-ch:
			if env.NodeStatus.NodeID != "a" {
				t.Fatalf("got nodeId %q, want a", env.NodeStatus.NodeID)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

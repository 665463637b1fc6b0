package live

import (
	"testing"
	"time"

	"github.com/Layr-Labs/zugzwang/pkg/gamedto"
)

func TestPublishReachesSubscriber(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("g1")
	defer cancel()

	h.Publish("g1", gamedto.GameEvent{Type: "move", GameID: "g1"})
	select {
	case evt := <-ch:
		if evt.Type != "move" || evt.GameID != "g1" {
			t.Fatalf("unexpected event: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatalf("event not delivered")
	}
}

func TestPublishScopedToGame(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("g1")
	defer cancel()

	h.Publish("g2", gamedto.GameEvent{Type: "move", GameID: "g2"})
	select {
	case evt := <-ch:
		t.Fatalf("cross-game delivery: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	h := NewHub()
	_, cancel := h.Subscribe("g1")
	cancel()
	cancel() // idempotent
	if n := h.SubscriberCount("g1"); n != 0 {
		t.Fatalf("subscribers after cancel: %d", n)
	}
	// Publishing to a game with no subscribers must not panic or block.
	h.Publish("g1", gamedto.GameEvent{Type: "settled", GameID: "g1"})
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	h := NewHub()
	_, cancel := h.Subscribe("g1")
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			h.Publish("g1", gamedto.GameEvent{Type: "move", GameID: "g1"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked on slow subscriber")
	}
}

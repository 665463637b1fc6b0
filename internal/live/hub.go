package live

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Layr-Labs/zugzwang/internal/obslog"
	"github.com/Layr-Labs/zugzwang/pkg/gamedto"
)

const subscriberBuffer = 16

// Hub fans game events out to websocket subscribers, keyed by game id.
// Publishing never blocks: a subscriber that cannot keep up loses events
// and is expected to refetch state over the REST surface.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan gamedto.GameEvent]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan gamedto.GameEvent]struct{})}
}

// Publish delivers evt to every subscriber of gameID.
func (h *Hub) Publish(gameID string, evt gamedto.GameEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[gameID] {
		select {
		case ch <- evt:
		default:
			obslog.L().Debug("live_subscriber_lagging", zap.String("game_id", gameID))
		}
	}
}

// Subscribe registers a listener for one game. The returned cancel func
// must be called when the listener goes away; it closes the channel.
func (h *Hub) Subscribe(gameID string) (<-chan gamedto.GameEvent, func()) {
	ch := make(chan gamedto.GameEvent, subscriberBuffer)
	h.mu.Lock()
	if h.subs[gameID] == nil {
		h.subs[gameID] = make(map[chan gamedto.GameEvent]struct{})
	}
	h.subs[gameID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[gameID], ch)
			if len(h.subs[gameID]) == 0 {
				delete(h.subs, gameID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// SubscriberCount reports active listeners for one game.
func (h *Hub) SubscriberCount(gameID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[gameID])
}

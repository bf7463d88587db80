package server

import (
	"sync"

	"github.com/sirupsen/logrus"

	"gridsim/internal/model"
)

const subscriberBuffer = 16

// hub fans tick summaries out to websocket subscribers. A subscriber that
// falls behind loses summaries rather than blocking the tick loop.
type hub struct {
	log logrus.FieldLogger

	mu   sync.Mutex
	subs map[chan model.TickSummary]struct{}
}

func newHub(log logrus.FieldLogger) *hub {
	return &hub{log: log, subs: make(map[chan model.TickSummary]struct{})}
}

func (h *hub) subscribe() chan model.TickSummary {
	ch := make(chan model.TickSummary, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *hub) unsubscribe(ch chan model.TickSummary) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

func (h *hub) publish(summary model.TickSummary) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- summary:
		default:
			h.log.WithField("tick", summary.Tick).Debug("subscriber behind, dropping tick")
		}
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

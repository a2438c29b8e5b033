// Package gateway exposes runs, batches, profiles and live progress over
// HTTP. It is a thin shell: every decision stays in the converge
// controller, the gateway only translates requests and streams events.
package gateway

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"attune/internal/converge"
)

const subscriberBuffer = 32

// Hub fans run progress events out to any number of subscribers. Slow
// subscribers lose their oldest buffered event instead of blocking the
// run that produced it.
type Hub struct {
	mu   sync.RWMutex
	next int
	subs map[int]*subscriber
	log  *zap.Logger
}

type subscriber struct {
	runID string // empty subscribes to every run
	ch    chan converge.Event
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{subs: make(map[int]*subscriber), log: log}
}

// Observer adapts the hub into the controller's observer callback.
func (h *Hub) Observer() converge.Observer {
	return func(ev converge.Event) { h.Publish(ev) }
}

// Publish delivers an event to every matching subscriber.
func (h *Hub) Publish(ev converge.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.runID != "" && sub.runID != ev.RunID {
			continue
		}
		push(sub.ch, ev)
	}
}

// Subscribe registers a listener, optionally narrowed to one run. The
// returned cancel closes the channel; extra calls are no-ops.
func (h *Hub) Subscribe(runID string) (<-chan converge.Event, func()) {
	sub := &subscriber{
		runID: strings.TrimSpace(runID),
		ch:    make(chan converge.Event, subscriberBuffer),
	}
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = sub
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub.ch)
		}
		h.mu.Unlock()
	}
	return sub.ch, cancel
}

// Subscribers reports the number of live listeners.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// push enqueues without blocking, evicting the oldest buffered event
// when the subscriber is full.
func push(ch chan converge.Event, ev converge.Event) {
	select {
	case ch <- ev:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- ev:
	default:
	}
}

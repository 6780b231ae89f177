package broadcast

import (
	"log"
	"sync"

	"sitmon/internal/models"
)

// Observer receives one published stream event. Observers should return
// quickly; delivery is synchronous and a slow observer holds up the
// publisher.
type Observer func(models.StreamEvent)

// Hub fans stream events out to the currently registered observers.
// Delivery is at-most-once with no replay: an observer registered after a
// publish never sees that event, and an unregistered observer stops
// receiving immediately.
type Hub struct {
	mu        sync.RWMutex
	observers map[int]Observer
	nextID    int
}

func NewHub() *Hub {
	return &Hub{
		observers: make(map[int]Observer),
	}
}

// Register adds an observer to the live set and returns the function that
// removes it again. The returned function is safe to call more than once.
func (h *Hub) Register(observer Observer) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.observers[id] = observer
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.observers, id)
		h.mu.Unlock()
	}
}

// Publish delivers event to every observer registered at call time. A
// panicking observer is logged and skipped; the remaining observers still
// receive the event.
func (h *Hub) Publish(event models.StreamEvent) {
	h.mu.RLock()
	observers := make([]Observer, 0, len(h.observers))
	for _, observer := range h.observers {
		observers = append(observers, observer)
	}
	h.mu.RUnlock()

	for _, observer := range observers {
		h.deliver(observer, event)
	}
}

func (h *Hub) deliver(observer Observer, event models.StreamEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Broadcast observer failed on '%s' event: %v", event.Type, r)
		}
	}()
	observer(event)
}

// Len returns the number of currently registered observers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

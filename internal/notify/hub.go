// Package notify is the fire-and-forget pub/sub used for progress reporting.
// Delivery failures never fail a translation unit; slow subscribers drop
// events instead of blocking publishers.
package notify

import "sync"

const (
	TopicProgress    = "translation.progress"
	TopicActiveCount = "requests.active"
	TopicSettings    = "settings.changed"
)

// ProgressEvent reports per-unit translation progress.
type ProgressEvent struct {
	JobID     string `json:"jobId"`
	Progress  int    `json:"progress"`
	Completed bool   `json:"completed"`
}

// ActiveCountEvent reports the current number of non-terminal requests.
type ActiveCountEvent struct {
	ActiveRequestCount int `json:"activeRequestCount"`
}

// Event is what subscribers receive.
type Event struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

// Publisher is the producer-side contract.
type Publisher interface {
	Publish(topic string, payload any)
}

// Hub fans events out to in-process subscribers (the SSE stream among them).
type Hub struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Event)}
}

// Publish delivers to every subscriber without blocking; a subscriber whose
// buffer is full misses the event.
func (h *Hub) Publish(topic string, payload any) {
	event := Event{Topic: topic, Payload: payload}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe registers a buffered listener. The returned cancel func must be
// called to release the subscription.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// NopPublisher discards everything; used where notifications are optional.
type NopPublisher struct{}

func (NopPublisher) Publish(string, any) {}

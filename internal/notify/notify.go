// Package notify carries change events to connected clients. Publishing is
// fire and forget: nothing waits for delivery.
package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	FileCreated    = "file.created"
	FileUpdated    = "file.updated"
	FileDeleted    = "file.deleted"
	FileDownloaded = "file.downloaded"
)

// FileEvent identifies the file an event is about. Private files are only
// streamed to their owner.
type FileEvent struct {
	ID            string `json:"id"`
	OwnerID       string `json:"owner_id,omitempty"`
	Private       bool   `json:"private"`
	DownloadCount int64  `json:"download_count,omitempty"`
}

type Event struct {
	Kind string    `json:"kind"`
	File FileEvent `json:"file"`
	At   time.Time `json:"at"`
}

// VisibleTo reports whether userID may receive the event
func (e Event) VisibleTo(userID string) bool {
	return !e.File.Private || (userID != "" && e.File.OwnerID == userID)
}

type Notifier interface {
	Publish(kind string, f FileEvent)
}

// Nop drops every event
type Nop struct{}

func (Nop) Publish(string, FileEvent) {}

// Hub fans events out to in-process subscribers. Slow subscribers lose events
// instead of blocking the publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	buffer int
	closed bool
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}

	return &Hub{
		subs:   make(map[chan Event]struct{}),
		buffer: buffer,
	}
}

func (h *Hub) Publish(kind string, f FileEvent) {
	h.Deliver(Event{Kind: kind, File: f, At: time.Now().UTC()})
}

// Deliver hands an already built event to every subscriber
func (h *Hub) Deliver(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs {
		select {
		case ch <- e:
		default:
			zap.L().Debug("Dropping event for slow subscriber", zap.String("kind", e.Kind))
		}
	}
}

// Subscribe registers a new subscriber. The returned func unsubscribes and
// closes the channel; it's safe to call more than once.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	if h.closed {
		close(ch)
	} else {
		h.subs[ch] = struct{}{}
	}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()

			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
}

// Close ends every subscription. Later subscribers get a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

// Subscribers returns the number of active subscribers
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subs)
}

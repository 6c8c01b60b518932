// Package events fans receiver anomalies out to the status stream, the
// watch TUI and the report recorder.
package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
)

// Event types published by the command receiver and the service lifecycle.
const (
	TypeCommandSlow      = "command.slow"
	TypeDispatchFailed   = "command.dispatch_failed"
	TypeReceiveFailed    = "receiver.receive_failed"
	TypeBatchReport      = "receiver.batch"
	TypeDiscoveryStarted = "discovery.started"
)

type Event struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

const subscriberBuffer = 128

type subscriber struct {
	ch    chan Event
	types map[string]bool // nil means every type
}

func (s *subscriber) wants(eventType string) bool {
	return s.types == nil || s.types[eventType]
}

// Hub is an in-memory pub/sub. The most recent events are kept in a bounded
// replay queue for clients that connect late.
type Hub struct {
	nextID  atomic.Int64
	dropped atomic.Uint64

	mu       sync.Mutex
	replay   *queue.Queue
	capacity int
	subs     map[int]*subscriber
	nextSub  int
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{
		replay:   queue.New(),
		capacity: capacity,
		subs:     make(map[int]*subscriber),
	}
}

// Publish stamps and fans out one event. It never blocks: a subscriber whose
// buffer is full misses the event and Dropped is incremented.
func (h *Hub) Publish(eventType string, data any) {
	payload := []byte("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ev := Event{
		ID:   h.nextID.Add(1),
		Type: eventType,
		At:   time.Now().UTC(),
		Data: payload,
	}

	h.replay.Add(ev)
	if h.replay.Length() > h.capacity {
		h.replay.Remove()
	}

	for _, s := range h.subs {
		if !s.wants(eventType) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribe registers a listener for the given event types, or for all
// types when none are given. cancel closes the channel.
func (h *Hub) Subscribe(types ...string) (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, subscriberBuffer)}
	if len(types) > 0 {
		s.types = make(map[string]bool, len(types))
		for _, t := range types {
			s.types[t] = true
		}
	}

	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.subs[id] = s
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(s.ch)
		})
	}
	return s.ch, cancel
}

// SnapshotSince returns replayed events with ID > lastID, oldest first.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.replay.Length()
	out := make([]Event, 0, n)
	for i := range n {
		if ev := h.replay.Get(i).(Event); ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

// Dropped counts deliveries skipped because a subscriber was full.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/classlens/cl-engine/internal/api"
	"github.com/classlens/cl-engine/internal/metrics"
)

// EventBus provides pub-sub event distribution for SSE subscribers.
// It maintains a ring buffer for replay on reconnect.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[uint64]subscriber
	nextID      uint64
	seq         atomic.Uint64
	dropped     atomic.Int64

	// Ring buffer for replay on reconnect
	ring     []api.SSEEvent
	ringSize int
	ringHead int
	ringMu   sync.RWMutex
}

type subscriber struct {
	ch     chan api.SSEEvent
	filter api.EventFilter
}

// NewEventBus creates an event bus with the given ring buffer size.
func NewEventBus(ringSize int) *EventBus {
	return &EventBus{
		subscribers: make(map[uint64]subscriber),
		ring:        make([]api.SSEEvent, ringSize),
		ringSize:    ringSize,
	}
}

// Subscribe registers a new subscriber and returns a channel and cancel function.
func (eb *EventBus) Subscribe(filter api.EventFilter) (<-chan api.SSEEvent, func()) {
	eb.mu.Lock()
	id := eb.nextID
	eb.nextID++
	ch := make(chan api.SSEEvent, 64)
	eb.subscribers[id] = subscriber{ch: ch, filter: filter}
	eb.mu.Unlock()

	cancel := func() {
		eb.mu.Lock()
		delete(eb.subscribers, id)
		eb.mu.Unlock()
	}
	return ch, cancel
}

// SubscriberCount returns the number of live subscribers.
func (eb *EventBus) SubscriberCount() int {
	eb.mu.RLock()
	n := len(eb.subscribers)
	eb.mu.RUnlock()
	return n
}

// Dropped returns the number of events dropped on slow subscribers.
func (eb *EventBus) Dropped() int64 { return eb.dropped.Load() }

// ReplaySince returns buffered events since the given event ID.
func (eb *EventBus) ReplaySince(lastEventID string, filter api.EventFilter) []api.SSEEvent {
	eb.ringMu.RLock()
	defer eb.ringMu.RUnlock()

	var events []api.SSEEvent
	found := lastEventID == ""

	for i := 0; i < eb.ringSize; i++ {
		idx := (eb.ringHead + i) % eb.ringSize
		e := eb.ring[idx]
		if e.ID == "" {
			continue
		}
		if !found {
			if e.ID == lastEventID {
				found = true
			}
			continue
		}
		if matchesFilter(e, filter) {
			events = append(events, e)
		}
	}
	return events
}

// EventData holds all fields needed to publish an SSE event.
type EventData struct {
	Type         string
	TranscriptID int64
	Room         string
	Payload      any
}

// Publish sends an event to all matching subscribers and adds it to the ring buffer.
func (eb *EventBus) Publish(e EventData) {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return
	}

	seq := eb.seq.Add(1)
	event := api.SSEEvent{
		ID:           fmt.Sprintf("%d-%d", time.Now().UnixMilli(), seq),
		Type:         e.Type,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		TranscriptID: e.TranscriptID,
		Room:         e.Room,
		Data:         data,
	}

	// Add to ring buffer
	eb.ringMu.Lock()
	eb.ring[eb.ringHead] = event
	eb.ringHead = (eb.ringHead + 1) % eb.ringSize
	eb.ringMu.Unlock()

	metrics.SSEEventsPublishedTotal.Inc()

	// Distribute to subscribers
	eb.mu.RLock()
	for _, sub := range eb.subscribers {
		if matchesFilter(event, sub.filter) {
			select {
			case sub.ch <- event:
			default:
				// Slow subscriber: drop rather than block ingest
				eb.dropped.Add(1)
				metrics.SSEEventsDroppedTotal.Inc()
			}
		}
	}
	eb.mu.RUnlock()
}

func matchesFilter(e api.SSEEvent, f api.EventFilter) bool {
	if len(f.Types) > 0 {
		match := false
		for _, t := range f.Types {
			if strings.TrimSpace(t) == e.Type {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	if len(f.Rooms) > 0 && e.Room != "" {
		match := false
		for _, room := range f.Rooms {
			if room == e.Room {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	if len(f.Transcripts) > 0 && e.TranscriptID != 0 {
		match := false
		for _, id := range f.Transcripts {
			if id == e.TranscriptID {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	return true
}

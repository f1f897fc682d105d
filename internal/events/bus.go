// Package events distributes library change notifications to SSE
// subscribers and, when a broker is configured, to MQTT.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Event is one library notification as delivered to subscribers.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Filter selects events by type. An empty filter matches everything.
// A trailing "*" matches a prefix, e.g. "recording.*".
type Filter struct {
	Types []string
}

// Bus provides pub-sub event distribution with a ring buffer for replay on
// reconnect.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uint64]subscriber
	nextID      uint64
	seq         atomic.Uint64

	ring     []Event
	ringSize int
	ringHead int
	ringMu   sync.RWMutex

	now func() time.Time
}

type subscriber struct {
	ch     chan Event
	filter Filter
}

// NewBus creates a bus that keeps the last ringSize events for replay.
func NewBus(ringSize int) *Bus {
	if ringSize < 1 {
		ringSize = 1
	}
	return &Bus{
		subscribers: make(map[uint64]subscriber),
		ring:        make([]Event, ringSize),
		ringSize:    ringSize,
		now:         time.Now,
	}
}

// Subscribe registers a subscriber and returns its channel and a cancel
// function. The channel is closed by cancel.
func (b *Bus) Subscribe(filter Filter) (<-chan Event, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, 64)
	b.subscribers[id] = subscriber{ch: ch, filter: filter}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// ReplaySince returns buffered events after lastEventID, oldest first.
// An unknown id replays nothing.
func (b *Bus) ReplaySince(lastEventID string, filter Filter) []Event {
	b.ringMu.RLock()
	defer b.ringMu.RUnlock()

	var out []Event
	found := lastEventID == ""
	for i := 0; i < b.ringSize; i++ {
		e := b.ring[(b.ringHead+i)%b.ringSize]
		if e.ID == "" {
			continue
		}
		if !found {
			if e.ID == lastEventID {
				found = true
			}
			continue
		}
		if filter.matches(e.Type) {
			out = append(out, e)
		}
	}
	return out
}

// Publish sends an event to matching subscribers and the replay buffer.
// Slow subscribers drop events rather than block the publisher.
func (b *Bus) Publish(eventType string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}

	now := b.now()
	e := Event{
		ID:        fmt.Sprintf("%d-%d", now.UnixMilli(), b.seq.Add(1)),
		Type:      eventType,
		Timestamp: now.UTC().Format(time.RFC3339),
		Data:      data,
	}

	b.ringMu.Lock()
	b.ring[b.ringHead] = e
	b.ringHead = (b.ringHead + 1) % b.ringSize
	b.ringMu.Unlock()

	b.mu.RLock()
	for _, sub := range b.subscribers {
		if !sub.filter.matches(e.Type) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
		}
	}
	b.mu.RUnlock()
	return e, nil
}

func (f Filter) matches(eventType string) bool {
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		t = strings.TrimSpace(t)
		if prefix, ok := strings.CutSuffix(t, "*"); ok {
			if strings.HasPrefix(eventType, prefix) {
				return true
			}
			continue
		}
		if t == eventType {
			return true
		}
	}
	return false
}

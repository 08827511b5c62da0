// Package events provides the in-process event bus used to stream progress to clients.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// EventType names a published event.
type EventType string

const (
	RepriceItem    EventType = "reprice.item"
	RepriceDone    EventType = "reprice.done"
	ReconcileDone  EventType = "reconcile.done"
	ForecastRun    EventType = "forecast.run"
	AccuracyScored EventType = "accuracy.scored"
	MarketRefresh  EventType = "market.refresh"
	WorkStarted    EventType = "work.started"
	WorkProgress   EventType = "work.progress"
	WorkCompleted  EventType = "work.completed"
	WorkFailed     EventType = "work.failed"
	SystemStatus   EventType = "system.status"
)

// Event is one published message.
type Event struct {
	Type      EventType   `json:"type"`
	Module    string      `json:"module"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Subscription receives events on C until Close is called.
type Subscription struct {
	C <-chan *Event

	ch      chan *Event
	types   map[EventType]bool
	bus     *Bus
	id      int64
	dropped atomic.Int64
	once    sync.Once
}

// Dropped returns how many events were discarded because C was full.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Close unsubscribes and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.remove(s.id)
		close(s.ch)
	})
}

func (s *Subscription) wants(t EventType) bool {
	return len(s.types) == 0 || s.types[t]
}

// Bus fans events out to subscribers. Emit never blocks: a subscriber whose
// buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int64]*Subscription
	nextID int64
	log    zerolog.Logger
}

// NewBus creates an empty bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subs: make(map[int64]*Subscription),
		log:  log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a subscriber with the given buffer size. With no types it
// receives every event.
func (b *Bus) Subscribe(buffer int, types ...EventType) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan *Event, buffer)
	sub := &Subscription{C: ch, ch: ch, bus: b}
	if len(types) > 0 {
		sub.types = make(map[EventType]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}

	b.mu.Lock()
	b.nextID++
	sub.id = b.nextID
	b.subs[sub.id] = sub
	b.mu.Unlock()
	return sub
}

func (b *Bus) remove(id int64) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Emit publishes an event stamped with the current time.
func (b *Bus) Emit(eventType EventType, module string, data interface{}) {
	b.Publish(&Event{Type: eventType, Module: module, Timestamp: time.Now().UTC(), Data: data})
}

// Publish delivers e to every interested subscriber without blocking.
func (b *Bus) Publish(e *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if !sub.wants(e.Type) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			sub.dropped.Add(1)
			b.log.Debug().Str("event_type", string(e.Type)).Int64("subscriber", sub.id).Msg("Subscriber full, dropping event")
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

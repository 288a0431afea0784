package events

import (
	"sync"
	"time"
)

// Type labels an event on the bus
type Type string

const (
	TypeSignalSent     Type = "signal_sent"
	TypePositionOpened Type = "position_opened"
	TypePositionClosed Type = "position_closed"
	TypePartialExit    Type = "partial_exit_advice"
	TypeSourceDown     Type = "source_down"
)

// Event is one bus message.
type Event struct {
	Type      Type        `json:"type"`
	Symbol    string      `json:"symbol,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Bus is a small in-process pub/sub fanout. Slow subscribers drop
// events rather than blocking the publisher.
type Bus struct {
	mu   sync.RWMutex
	subs []chan Event
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe returns a buffered channel of future events.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers an event to every subscriber without blocking.
func (b *Bus) Publish(eventType Type, symbol string, payload interface{}) {
	event := Event{
		Type:      eventType,
		Symbol:    symbol,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

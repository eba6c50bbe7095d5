package transport

import (
	"sync"
)

// StoredEvent is one replayable outbound message
type StoredEvent struct {
	ID      int
	Payload []byte
}

// EventStore is the resumability interface: an ordered per-stream append
// log supporting replay after a Last-Event-ID.
type EventStore interface {
	CreateStream(streamID string)
	StoreEvent(streamID string, payload []byte) int
	ReplayEventsAfter(streamID string, lastEventID int, limit int) []StoredEvent
	GetTailID(streamID string) int
	DeleteStream(streamID string)
}

// InMemoryEventStore keeps per-stream events in memory, trimming FIFO once
// a stream exceeds the cap. Event ids are strictly monotonic per stream.
type InMemoryEventStore struct {
	mu       sync.Mutex
	events   map[string][]StoredEvent
	counters map[string]int
	max      int
}

// NewInMemoryEventStore creates a store capped at maxEventsPerStream
// events per stream. A cap of 0 uses the default of 1000.
func NewInMemoryEventStore(maxEventsPerStream int) *InMemoryEventStore {
	if maxEventsPerStream <= 0 {
		maxEventsPerStream = 1000
	}
	return &InMemoryEventStore{
		events:   make(map[string][]StoredEvent),
		counters: make(map[string]int),
		max:      maxEventsPerStream,
	}
}

// CreateStream initializes a stream's counter. Streams are also created
// lazily on first StoreEvent, so this is optional bookkeeping.
func (s *InMemoryEventStore) CreateStream(streamID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.counters[streamID]; !ok {
		s.counters[streamID] = 0
	}
}

// StoreEvent appends a payload to the stream and returns the assigned id
func (s *InMemoryEventStore) StoreEvent(streamID string, payload []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters[streamID]++
	id := s.counters[streamID]
	stream := append(s.events[streamID], StoredEvent{ID: id, Payload: payload})
	if len(stream) > s.max {
		stream = stream[len(stream)-s.max:]
	}
	s.events[streamID] = stream
	return id
}

// ReplayEventsAfter returns events with id > lastEventID in order, bounded
// by limit when positive.
func (s *InMemoryEventStore) ReplayEventsAfter(streamID string, lastEventID int, limit int) []StoredEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.events[streamID]
	var out []StoredEvent
	for _, event := range stream {
		if event.ID > lastEventID {
			out = append(out, event)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}

// GetTailID returns the highest event id for the stream, or 0 when empty
func (s *InMemoryEventStore) GetTailID(streamID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.events[streamID]
	if len(stream) == 0 {
		return 0
	}
	return stream[len(stream)-1].ID
}

// DeleteStream drops the stream and its counter
func (s *InMemoryEventStore) DeleteStream(streamID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.events, streamID)
	delete(s.counters, streamID)
}

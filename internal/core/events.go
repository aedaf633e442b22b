package core

// events.go carries session notifications to subscribers.
//
// Each Session owns one EventStream. Subscribers receive events on buffered
// channels; a slow subscriber misses events rather than stalling a save.
// Closing the session closes every subscriber channel.

import (
	"sync"
	"time"
)

// EventType names a session notification.
type EventType string

const (
	// EventBusy is published with Busy=true before and Busy=false after
	// every executor call.
	EventBusy           EventType = "busy"
	EventState          EventType = "state"
	EventChildSaved     EventType = "child_saved"
	EventChildDeleted   EventType = "child_deleted"
	EventRecordSelected EventType = "record_selected"
	EventSaved          EventType = "saved"
	EventSaveFailed     EventType = "save_failed"
	EventWarning        EventType = "warning"
)

// DefaultEventBuffer is the per-subscriber channel size.
const DefaultEventBuffer = 32

// Event is one session notification.
type Event struct {
	Type        EventType `json:"type"`
	SessionID   string    `json:"sessionId"`
	State       string    `json:"state,omitempty"`
	Index       int       `json:"index,omitempty"`
	Busy        bool      `json:"busy,omitempty"`
	RowID       string    `json:"rowId,omitempty"`
	ChildFormID string    `json:"childFormId,omitempty"`
	Message     string    `json:"message,omitempty"`
	Time        time.Time `json:"time"`
}

// Publisher receives session events.
type Publisher interface {
	Publish(Event)
}

// EventStream fans events out to the subscribers of one session.
type EventStream struct {
	sessionID string
	bufSize   int

	mu        sync.Mutex
	listeners map[int]chan Event
	nextID    int
	closed    bool
}

// NewEventStream creates a stream for the given session.
func NewEventStream(sessionID string, bufSize int) *EventStream {
	if bufSize <= 0 {
		bufSize = DefaultEventBuffer
	}
	return &EventStream{
		sessionID: sessionID,
		bufSize:   bufSize,
		listeners: make(map[int]chan Event),
	}
}

// Subscribe returns a channel receiving every later event and a function
// that unsubscribes and closes it. A closed stream returns a closed channel.
func (s *EventStream) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, s.bufSize)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextID
	s.nextID++
	s.listeners[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if l, ok := s.listeners[id]; ok {
				delete(s.listeners, id)
				close(l)
			}
		})
	}
}

// Publish sends e to every subscriber without blocking.
func (s *EventStream) Publish(e Event) {
	if e.SessionID == "" {
		e.SessionID = s.sessionID
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.listeners {
		select {
		case ch <- e:
		default:
			// Listener is slow, skip this event
		}
	}
}

// Close closes every subscriber channel. Later publishes are dropped.
func (s *EventStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.listeners {
		close(ch)
		delete(s.listeners, id)
	}
}

// Subscribers returns the number of active subscribers.
func (s *EventStream) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

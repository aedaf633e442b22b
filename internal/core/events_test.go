package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventStream_SlowSubscriberSkipsEvents(t *testing.T) {
	s := NewEventStream("sess-1", 1)
	ch, cancel := s.Subscribe()
	defer cancel()

	s.Publish(Event{Type: EventBusy, Busy: true})
	s.Publish(Event{Type: EventBusy, Busy: false})

	ev := <-ch
	assert.Equal(t, "sess-1", ev.SessionID)
	assert.True(t, ev.Busy)
	assert.False(t, ev.Time.IsZero())

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestEventStream_UnsubscribeAndClose(t *testing.T) {
	s := NewEventStream("sess-1", 0)
	_, cancel := s.Subscribe()
	other, _ := s.Subscribe()
	assert.Equal(t, 2, s.Subscribers())

	cancel()
	cancel()
	assert.Equal(t, 1, s.Subscribers())

	s.Close()
	_, ok := <-other
	assert.False(t, ok)
	assert.Zero(t, s.Subscribers())

	late, _ := s.Subscribe()
	_, ok = <-late
	assert.False(t, ok, "subscribing to a closed stream yields a closed channel")
	s.Publish(Event{Type: EventSaved})
}

package core

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/dynforms/internal/form"
)

var (
	// ErrSessionNotFound is returned for unknown or closed sessions.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSaveInProgress is returned when a session is saved while its
	// previous save is still running.
	ErrSaveInProgress = errors.New("save already in progress for this session")
	// ErrTooManySessions is returned when the open session limit is reached.
	ErrTooManySessions = errors.New("too many open sessions")
)

// LookupRecord identifies a selectable row of a form's table.
type LookupRecord struct {
	ID    form.ID `json:"id"`
	Label string  `json:"label"`
	// Populated is false for the placeholder returned when no rows exist.
	Populated bool `json:"populated"`
}

// Session is one user's editing flow over a loaded form. The form, its
// child rows and the pending save queue belong to the session; every method
// touching them runs under the session lock.
type Session struct {
	ID        string
	FormID    string
	CreatedAt time.Time

	mu       sync.Mutex
	form     *form.Form
	def      *form.Definition
	selected *LookupRecord
	warnings []string

	saving atomic.Bool
	events *EventStream
}

// NewSession wraps a loaded form in a session with its own event stream.
func NewSession(f *form.Form, eventBuffer int) *Session {
	id := uuid.New().String()
	return &Session{
		ID:        id,
		FormID:    f.ID,
		CreatedAt: time.Now(),
		form:      f,
		events:    NewEventStream(id, eventBuffer),
	}
}

// Form returns the session's current form. Callers outside the session's
// own methods must hold the lock (see With).
func (s *Session) Form() *form.Form {
	return s.form
}

// With runs fn with the session locked.
func (s *Session) With(fn func(f *form.Form) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.form)
}

// Events returns the session's event stream.
func (s *Session) Events() *EventStream {
	return s.events
}

// Selected returns the selected lookup record, if any.
func (s *Session) Selected() *LookupRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Warnings returns the notices collected by the last clone.
func (s *Session) Warnings() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.warnings...)
}

// Saving reports whether a save is running.
func (s *Session) Saving() bool {
	return s.saving.Load()
}

// beginSave marks the session as saving. It fails when a save is running.
func (s *Session) beginSave() error {
	if !s.saving.CompareAndSwap(false, true) {
		return ErrSaveInProgress
	}
	return nil
}

func (s *Session) endSave() {
	s.saving.Store(false)
}

// replaceForm swaps in a freshly loaded form. The change flags of the old
// form are discarded with it.
func (s *Session) replaceForm(f *form.Form) {
	s.form = f
	s.FormID = f.ID
}

func (s *Session) publish(e Event) {
	s.events.Publish(e)
}

func (s *Session) close() {
	s.events.Close()
}

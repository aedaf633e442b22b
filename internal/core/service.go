package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/dynforms/internal/form"
	"github.com/JonMunkholm/dynforms/internal/logging"
)

var (
	// ErrRecordNotFound is returned when a selected row does not exist.
	ErrRecordNotFound = errors.New("record not found")
	// ErrChildFormNotFound is returned for unknown child form ids.
	ErrChildFormNotFound = errors.New("child form not found")
	// ErrRowNotFound is returned when a child row does not exist.
	ErrRowNotFound = errors.New("child row not found")
	// ErrNotEditable is returned when a user writes a column they may not edit.
	ErrNotEditable = errors.New("column is not editable")
)

// NoRecordsLabel labels the placeholder lookup record of an empty table.
const NoRecordsLabel = "No records available"

// Options tunes a Service.
type Options struct {
	SchemaVersion      int
	SaveTimeout        time.Duration
	MaxSessions        int
	EventBuffer        int
	MaxConcurrentSaves int
	MaxSaveWait        time.Duration
}

// DefaultOptions returns the options used for zero fields.
func DefaultOptions() Options {
	return Options{
		SchemaVersion:      form.ReturningSchemaVersion,
		SaveTimeout:        2 * time.Minute,
		MaxSessions:        1000,
		EventBuffer:        DefaultEventBuffer,
		MaxConcurrentSaves: DefaultMaxConcurrentSaves,
		MaxSaveWait:        DefaultMaxSaveWait,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SchemaVersion <= 0 {
		o.SchemaVersion = d.SchemaVersion
	}
	if o.SaveTimeout <= 0 {
		o.SaveTimeout = d.SaveTimeout
	}
	if o.MaxSessions <= 0 {
		o.MaxSessions = d.MaxSessions
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = d.EventBuffer
	}
	if o.MaxConcurrentSaves <= 0 {
		o.MaxConcurrentSaves = d.MaxConcurrentSaves
	}
	if o.MaxSaveWait <= 0 {
		o.MaxSaveWait = d.MaxSaveWait
	}
	return o
}

// Service provides form sessions over an executor and a metadata source.
type Service struct {
	exec     Executor
	registry *registry
	orch     *Orchestrator
	limiter  *SaveLimiter
	opts     Options

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewService creates a new Service instance.
func NewService(exec Executor, meta MetadataSource, opts Options) *Service {
	opts = opts.withDefaults()
	return &Service{
		exec:     exec,
		registry: newRegistry(meta),
		orch:     NewOrchestrator(exec, opts.SchemaVersion),
		limiter:  NewSaveLimiter(opts.MaxConcurrentSaves, opts.MaxSaveWait),
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Options returns the effective options.
func (s *Service) Options() Options {
	return s.opts
}

// OpenSession loads a form, and the row rowID when it is persisted, into a
// new session.
func (s *Service) OpenSession(ctx context.Context, formID string, rowID form.ID) (*Session, error) {
	s.mu.RLock()
	open := len(s.sessions)
	s.mu.RUnlock()
	if open >= s.opts.MaxSessions {
		return nil, ErrTooManySessions
	}

	f, err := s.loadForm(ctx, nil, formID, rowID)
	if err != nil {
		return nil, err
	}

	sess := NewSession(f, s.opts.EventBuffer)
	if rowID.IsPersisted() {
		sess.selected = &LookupRecord{ID: rowID, Label: displayValue(f), Populated: true}
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	logging.WithFields(ctx, "session_id", sess.ID, "form_id", formID, "row_id", rowID.String()).
		Info("session opened")
	return sess, nil
}

// Session returns an open session.
func (s *Service) Session(id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// Sessions returns the ids of open sessions, sorted.
func (s *Service) Sessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CloseSession discards a session and closes its event subscribers.
func (s *Service) CloseSession(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.close()
	return nil
}

// Subscribe returns the session's event channel and its unsubscribe function.
func (s *Service) Subscribe(sessionID string) (<-chan Event, func(), error) {
	sess, err := s.Session(sessionID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := sess.events.Subscribe()
	return ch, cancel, nil
}

// UpdateField sets a root field from user input. Flattened child fields
// linked to the same column receive the value and are committed at once.
func (s *Service) UpdateField(ctx context.Context, sessionID string, sectionIdx, fieldIdx int, raw string) error {
	sess, err := s.Session(sessionID)
	if err != nil {
		return err
	}
	return sess.With(func(f *form.Form) error {
		if sectionIdx < 0 || sectionIdx >= len(f.Sections) || fieldIdx < 0 || fieldIdx >= len(f.Sections[sectionIdx].Fields) {
			return fmt.Errorf("field %d/%d out of range", sectionIdx, fieldIdx)
		}
		fld := f.Sections[sectionIdx].Fields[fieldIdx]
		if fld.ChildForm != nil {
			return fmt.Errorf("field %q holds a child form", fld.Label)
		}
		if !fld.Column.CanEdit {
			return fmt.Errorf("%w: %s", ErrNotEditable, fld.Label)
		}
		v, err := fld.ParseInput(raw)
		if err != nil {
			return err
		}
		if err := f.UpdateFieldValue(sectionIdx, fieldIdx, v); err != nil {
			return err
		}

		linked, err := f.PropagateLinked(fld.Column.Name)
		if err != nil {
			return err
		}
		for _, child := range linked {
			if _, err := f.CommitFlattenedChild(child); err != nil {
				var verrs form.ValidationErrors
				if errors.As(err, &verrs) {
					logging.FromContext(ctx).Warn("linked child not committed",
						"session_id", sess.ID, "child_form_id", child.ID, "error", err)
					continue
				}
				return err
			}
		}
		return nil
	})
}

// AttachFile stores an uploaded file on a Binary root field. The bytes are
// written through the file side-channel on the next save.
func (s *Service) AttachFile(ctx context.Context, sessionID, column, fileName, content string) error {
	sess, err := s.Session(sessionID)
	if err != nil {
		return err
	}
	return sess.With(func(f *form.Form) error {
		fld, ok := f.Field(column)
		if !ok || fld.Column.DataType != form.TypeBinary {
			return fmt.Errorf("form %q has no binary column %q", f.ID, column)
		}
		if !fld.Column.CanEdit {
			return fmt.Errorf("%w: %s", ErrNotEditable, fld.Label)
		}
		if err := f.SetValue(column, form.Text(content)); err != nil {
			return err
		}
		logging.FromContext(ctx).Debug("file attached", "session_id", sess.ID, "column", column, "file_name", fileName)
		return f.SetFileName(column, fileName)
	})
}

// Validate runs root form validation.
func (s *Service) Validate(sessionID string) (form.ValidationResult, error) {
	sess, err := s.Session(sessionID)
	if err != nil {
		return form.ValidationResult{}, err
	}
	var res form.ValidationResult
	_ = sess.With(func(f *form.Form) error {
		res = f.CheckFormValidation()
		return nil
	})
	return res, nil
}

// ChildRowView is a child row prepared for editing.
type ChildRowView struct {
	ChildFormID string          `json:"childFormId"`
	RowID       form.ID         `json:"rowId"`
	Values      map[string]any  `json:"values"`
	CanEdit     map[string]bool `json:"canEdit"`
}

// OpenChildRow prepares a child row for editing: its values are loaded into
// the child form and its entitlements resolved. A zero rowID prepares a new
// row. With ensureSaved an unsaved root is validated and saved first.
func (s *Service) OpenChildRow(ctx context.Context, sessionID, childFormID string, rowID form.ID, ensureSaved bool) (*ChildRowView, error) {
	if ensureSaved {
		if _, err := s.EnsureSaved(ctx, sessionID); err != nil {
			return nil, err
		}
	}
	sess, err := s.Session(sessionID)
	if err != nil {
		return nil, err
	}

	var view *ChildRowView
	err = sess.With(func(f *form.Form) error {
		child, err := findChild(f, childFormID)
		if err != nil {
			return err
		}
		rowID = f.ResolveRowID(child.ID, rowID)
		if err := s.prepareChildRow(ctx, sess, child, rowID); err != nil {
			return err
		}
		view = &ChildRowView{
			ChildFormID: child.ID,
			RowID:       child.RowID,
			Values:      make(map[string]any),
			CanEdit:     Entitlements(child),
		}
		for _, fld := range child.Fields() {
			if fld.ChildForm == nil {
				view.Values[fld.Column.Name] = fld.Value.Any()
			}
		}
		return nil
	})
	return view, err
}

// CommitChildRow applies user input to a child row and queues its save.
// A zero rowID adds a new row, except on flattened forms where it edits
// the single existing row. Validation failures are returned as
// form.ValidationErrors.
func (s *Service) CommitChildRow(ctx context.Context, sessionID, childFormID string, rowID form.ID, values map[string]string) (*form.ChildSave, error) {
	sess, err := s.Session(sessionID)
	if err != nil {
		return nil, err
	}

	var entry *form.ChildSave
	err = sess.With(func(f *form.Form) error {
		child, err := findChild(f, childFormID)
		if err != nil {
			return err
		}
		rowID = f.ResolveRowID(child.ID, rowID)
		if child.Flatten && rowID.IsZero() {
			rowID = child.LastRowID()
		}
		if err := s.prepareChildRow(ctx, sess, child, rowID); err != nil {
			return err
		}

		cols := make([]string, 0, len(values))
		for col := range values {
			cols = append(cols, col)
		}
		sort.Strings(cols)
		for _, col := range cols {
			fld, ok := child.Field(col)
			if !ok || fld.ChildForm != nil {
				return fmt.Errorf("child form %q has no column %q", child.ID, col)
			}
			if !fld.Column.CanEdit {
				return fmt.Errorf("%w: %s", ErrNotEditable, fld.Label)
			}
			v, err := fld.ParseInput(values[col])
			if err != nil {
				return err
			}
			if err := child.SetValue(col, v); err != nil {
				return err
			}
		}

		entry, err = child.Parent().CommitChildRow(child, rowID, false)
		return err
	})
	return entry, err
}

// prepareChildRow resolves entitlements for rowID and loads its current
// values into the child form. When the prepared row changes, the rows of
// child forms nested under it are loaded for the new row.
func (s *Service) prepareChildRow(ctx context.Context, sess *Session, child *form.Form, rowID form.ID) error {
	if err := ResolveEntitlements(ctx, s.exec, sess, child, rowID); err != nil {
		return err
	}
	prev := child.RowID
	child.ClearValues()
	if !rowID.IsZero() {
		found := false
		for _, raw := range child.RawRows() {
			if raw.ID() == rowID {
				child.LoadRecord(raw)
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrRowNotFound, rowID)
		}
	}
	if rowID == prev {
		return nil
	}
	return s.loadNestedRows(ctx, sess, child)
}

// loadNestedRows replaces the rows of every child form of f with the rows
// stored for f's current row. An unsaved row has none.
func (s *Service) loadNestedRows(ctx context.Context, sess *Session, f *form.Form) error {
	run := func(ctx context.Context, text string, params map[string]any) (*Result, error) {
		return runStatement(ctx, s.exec, sess, text, params)
	}
	for _, cf := range f.ChildFields() {
		nested := cf.ChildForm
		if !f.RowID.IsPersisted() || !nested.HasParentRelation() {
			nested.LoadChildRows(nil)
			continue
		}
		if err := reloadChildRows(ctx, run, nested, f.RowID); err != nil {
			return fmt.Errorf("load child rows of %q: %w", nested.ID, err)
		}
	}
	return nil
}

// DeleteChildRow deletes a child row. A persisted row, including one
// committed under a pending id, is deleted on the host first; only then are its display row, raw row and queued statement
// removed. Pending rows are removed locally.
func (s *Service) DeleteChildRow(ctx context.Context, sessionID, childFormID string, rowID form.ID) error {
	sess, err := s.Session(sessionID)
	if err != nil {
		return err
	}
	return sess.With(func(f *form.Form) error {
		child, err := findChild(f, childFormID)
		if err != nil {
			return err
		}
		// A row committed by a failed save still carries its pending id
		// on the caller's side.
		rowID = f.ResolveRowID(child.ID, rowID)
		if rowID.IsPersisted() {
			q, err := child.GenerateDeleteQuery(rowID)
			if err != nil {
				return err
			}
			if _, err := runStatement(ctx, s.exec, sess, q.Text, q.Params); err != nil {
				return fmt.Errorf("delete child row %s: %w", rowID, err)
			}
		}
		if !child.Parent().DropChildRow(child, rowID) && !rowID.IsPersisted() {
			return fmt.Errorf("%w: %s", ErrRowNotFound, rowID)
		}
		sess.publish(Event{Type: EventChildDeleted, ChildFormID: child.ID, RowID: rowID.String()})
		logging.WithFields(ctx, "session_id", sess.ID, "child_form_id", child.ID, "row_id", rowID.String()).
			Info("child row deleted")
		return nil
	})
}

// Save validates the root form and saves it with its queued child rows.
// After a successful save the form is reloaded from the host. A save while
// another save of the same session runs fails with ErrSaveInProgress.
func (s *Service) Save(ctx context.Context, sessionID string) (*SaveResult, error) {
	sess, err := s.Session(sessionID)
	if err != nil {
		return nil, err
	}
	if err := sess.beginSave(); err != nil {
		return nil, err
	}
	defer sess.endSave()

	res, err := s.Validate(sessionID)
	if err != nil {
		return nil, err
	}
	if !res.Status {
		return nil, res.Errors
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	saveCtx, cancel := context.WithTimeout(ctx, s.opts.SaveTimeout)
	defer cancel()

	result, err := s.orch.Save(saveCtx, sess)
	if err != nil {
		return result, err
	}

	if err := s.reload(saveCtx, sess, result.RowID); err != nil {
		return result, fmt.Errorf("reload after save: %w", err)
	}
	return result, nil
}

// EnsureSaved saves an unsaved root so that child rows have a parent id.
// A root that already has an id is left untouched.
func (s *Service) EnsureSaved(ctx context.Context, sessionID string) (*SaveResult, error) {
	sess, err := s.Session(sessionID)
	if err != nil {
		return nil, err
	}
	var rowID form.ID
	_ = sess.With(func(f *form.Form) error {
		rowID = f.RowID
		return nil
	})
	if rowID.IsPersisted() {
		return &SaveResult{State: StateDone, RowID: rowID}, nil
	}
	return s.Save(ctx, sessionID)
}

// Clone replaces the session's form with an unsaved duplicate.
func (s *Service) Clone(ctx context.Context, sessionID string) (*form.CloneResult, error) {
	sess, err := s.Session(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Saving() {
		return nil, ErrSaveInProgress
	}
	var res *form.CloneResult
	_ = sess.With(func(f *form.Form) error {
		res = f.Clone()
		sess.replaceForm(res.Form)
		sess.selected = nil
		sess.warnings = res.Warnings
		return nil
	})
	for _, w := range res.Warnings {
		sess.publish(Event{Type: EventWarning, Message: w})
	}
	logging.WithFields(ctx, "session_id", sess.ID, "form_id", sess.FormID).
		Info("form cloned", "queued_children", len(res.Queued))
	return res, nil
}

// SelectRecord reloads the session's form with another row. Unsaved
// changes are discarded.
func (s *Service) SelectRecord(ctx context.Context, sessionID string, rowID form.ID) error {
	sess, err := s.Session(sessionID)
	if err != nil {
		return err
	}
	if sess.Saving() {
		return ErrSaveInProgress
	}
	return s.reload(ctx, sess, rowID)
}

func (s *Service) reload(ctx context.Context, sess *Session, rowID form.ID) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	f, err := s.loadForm(ctx, sess, sess.FormID, rowID)
	if err != nil {
		return err
	}
	sess.replaceForm(f)
	sess.warnings = nil
	sess.selected = nil
	if rowID.IsPersisted() {
		sess.selected = &LookupRecord{ID: rowID, Label: displayValue(f), Populated: true}
		sess.publish(Event{Type: EventRecordSelected, RowID: rowID.String(), Message: sess.selected.Label})
	}
	return nil
}

// LookupRecords lists the selectable rows of a form's table. An empty
// result yields a single placeholder record that is not populated.
func (s *Service) LookupRecords(ctx context.Context, formID, filter string) ([]LookupRecord, error) {
	def, err := s.registry.Get(ctx, formID)
	if err != nil {
		return nil, err
	}
	f, err := def.Build()
	if err != nil {
		return nil, err
	}
	q, err := f.GenerateLookupQuery(filter)
	if err != nil {
		return nil, err
	}
	res, err := runStatement(ctx, s.exec, nil, q.Text, q.Params)
	if err != nil {
		return nil, fmt.Errorf("lookup records of %q: %w", formID, err)
	}

	records := make([]LookupRecord, 0, len(res.Rows))
	for _, row := range res.Rows {
		id := form.IDFromAny(row["id"])
		if !id.IsPersisted() {
			continue
		}
		records = append(records, LookupRecord{ID: id, Label: row.String("label"), Populated: true})
	}
	if len(records) == 0 {
		return []LookupRecord{{Label: NoRecordsLabel}}, nil
	}
	return records, nil
}

// InvalidateForm drops cached metadata for a form, or all forms for "".
func (s *Service) InvalidateForm(formID string) {
	s.registry.Invalidate(formID)
}

// SaveStatus reports the save limiter state.
func (s *Service) SaveStatus() SaveLimiterStatus {
	return s.limiter.Status()
}

// Shutdown waits for running saves and closes every session.
func (s *Service) Shutdown(ctx context.Context) error {
	err := s.limiter.WaitForDrain(ctx)

	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
	return err
}

// loadForm builds a form from its definition, resolves Link options, and
// loads the row rowID with its child rows when rowID is persisted.
func (s *Service) loadForm(ctx context.Context, sess *Session, formID string, rowID form.ID) (*form.Form, error) {
	def, err := s.registry.Get(ctx, formID)
	if err != nil {
		return nil, err
	}
	f, err := def.Build()
	if err != nil {
		return nil, fmt.Errorf("build form %q: %w", formID, err)
	}

	run := func(ctx context.Context, text string, params map[string]any) (*Result, error) {
		return runStatement(ctx, s.exec, sess, text, params)
	}

	if err := loadOptions(ctx, run, f); err != nil {
		return nil, err
	}
	if !rowID.IsPersisted() {
		return f, nil
	}

	q, err := f.GenerateSelectQuery(rowID)
	if err != nil {
		return nil, err
	}
	res, err := run(ctx, q.Text, q.Params)
	if err != nil {
		return nil, fmt.Errorf("load row %s of %q: %w", rowID, formID, err)
	}
	if len(res.Rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, rowID)
	}
	if err := loadFileNames(ctx, run, f, res.Rows[0]); err != nil {
		return nil, err
	}
	f.LoadRecord(res.Rows[0])

	for _, cf := range f.ChildFields() {
		if !cf.ChildForm.HasParentRelation() {
			continue
		}
		if err := reloadChildRows(ctx, run, cf.ChildForm, f.RowID); err != nil {
			return nil, fmt.Errorf("load child rows of %q: %w", cf.ChildForm.ID, err)
		}
	}
	return f, nil
}

// loadOptions fills the dropdown datasets of Link fields that have none,
// including those of child forms.
func loadOptions(ctx context.Context, run runFunc, f *form.Form) error {
	for _, fld := range f.Fields() {
		if fld.ChildForm != nil {
			if err := loadOptions(ctx, run, fld.ChildForm); err != nil {
				return err
			}
			continue
		}
		if fld.Dropdown != nil {
			continue
		}
		q, ok := fld.OptionsQuery()
		if !ok {
			continue
		}
		res, err := run(ctx, q.Text, q.Params)
		if err != nil {
			return fmt.Errorf("load options of %q: %w", fld.Column.Name, err)
		}
		opts := make([]form.DropdownOption, 0, len(res.Rows))
		for _, row := range res.Rows {
			opts = append(opts, form.DropdownOption{ID: row.String("id"), Label: row.String("label")})
		}
		fld.Dropdown = form.NewDropdownDataset(opts)
	}
	return nil
}

func findChild(f *form.Form, childFormID string) (*form.Form, error) {
	child, ok := f.FindChildForm(childFormID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChildFormNotFound, childFormID)
	}
	return child, nil
}

// displayValue returns the value of the form's display column.
func displayValue(f *form.Form) string {
	var first string
	for _, fld := range f.Fields() {
		if fld.ChildForm != nil {
			continue
		}
		if fld.Column.Display {
			return fld.Value.Storage()
		}
		if first == "" && fld.Column.DataType == form.TypeText {
			first = fld.Value.Storage()
		}
	}
	return first
}

package core

// orchestrator.go saves a form together with its queued child rows.
//
// A save walks a fixed sequence of states:
//
//	Idle -> SavingParent -> SubstitutingChildIDs -> SavingChildren(i) -> ReloadingChildren -> Done
//
// with Failed reachable from every saving state. The parent statement runs
// first because child inserts may need the id it returns. Queued child
// statements then run strictly one at a time in queue order; nothing is
// rolled back on failure. Committed entries are marked so that a retried
// save resumes at the entry that failed.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/dynforms/internal/form"
	"github.com/JonMunkholm/dynforms/internal/logging"
)

// SaveState is a step of the save sequence.
type SaveState int

const (
	StateIdle SaveState = iota
	StateSavingParent
	StateSubstitutingChildIDs
	StateSavingChildren
	StateReloadingChildren
	StateDone
	StateFailed
)

func (s SaveState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSavingParent:
		return "saving_parent"
	case StateSubstitutingChildIDs:
		return "substituting_child_ids"
	case StateSavingChildren:
		return "saving_children"
	case StateReloadingChildren:
		return "reloading_children"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SaveResult is the outcome of one save.
type SaveResult struct {
	State SaveState `json:"state"`
	RowID form.ID   `json:"rowId"`
	// Inserted is true when the parent row was created by this save.
	Inserted      bool `json:"inserted"`
	ChildrenSaved int  `json:"childrenSaved"`
	// Skipped counts entries already committed by an earlier attempt.
	Skipped int `json:"skipped"`
}

func (s SaveState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// OrchestrationError reports a child statement failing mid-sequence.
// Entries before Index stay committed.
type OrchestrationError struct {
	Index     int
	Committed int
	Err       error
}

func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("child save %d failed after %d committed: %v", e.Index, e.Committed, e.Err)
}

func (e *OrchestrationError) Unwrap() error {
	return e.Err
}

// ErrParentNotSaved is returned when child rows are queued but the parent
// has neither an id nor values to insert.
var ErrParentNotSaved = errors.New("parent row has no id and no values to insert")

// Orchestrator runs saves against an executor.
type Orchestrator struct {
	exec          Executor
	schemaVersion int
}

// NewOrchestrator creates an orchestrator. schemaVersion selects the insert
// form (see form.ReturningSchemaVersion).
func NewOrchestrator(exec Executor, schemaVersion int) *Orchestrator {
	if schemaVersion <= 0 {
		schemaVersion = form.ReturningSchemaVersion
	}
	return &Orchestrator{exec: exec, schemaVersion: schemaVersion}
}

type saveRun struct {
	o      *Orchestrator
	sess   *Session
	f      *form.Form
	result *SaveResult
}

// Save persists the session's form and its queued child rows.
// The session is locked for the duration of the save.
func (o *Orchestrator) Save(ctx context.Context, sess *Session) (*SaveResult, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	run := &saveRun{
		o:      o,
		sess:   sess,
		f:      sess.form,
		result: &SaveResult{State: StateIdle, RowID: sess.form.RowID},
	}
	err := run.execute(ctx)
	if err != nil {
		run.transition(ctx, StateFailed)
		sess.publish(Event{Type: EventSaveFailed, Message: err.Error(), RowID: run.result.RowID.String()})
		return run.result, err
	}
	run.transition(ctx, StateDone)
	sess.publish(Event{Type: EventSaved, RowID: run.result.RowID.String()})
	return run.result, nil
}

func (r *saveRun) logger(ctx context.Context) *slog.Logger {
	return logging.WithFields(ctx,
		"session_id", r.sess.ID,
		"form_id", r.f.ID,
		"row_id", r.f.RowID.String(),
	)
}

func (r *saveRun) transition(ctx context.Context, next SaveState) {
	r.result.State = next
	r.logger(ctx).Debug("save state", "state", next.String())
	r.sess.publish(Event{Type: EventState, State: next.String()})
}

func (r *saveRun) execute(ctx context.Context) error {
	r.transition(ctx, StateSavingParent)
	if err := r.saveParent(ctx); err != nil {
		return err
	}

	queue := r.f.Queue()
	if !queue.Dirty() {
		return nil
	}
	if !r.f.RowID.IsPersisted() {
		return ErrParentNotSaved
	}

	r.transition(ctx, StateSubstitutingChildIDs)
	parentID := r.f.RowID.Int64()
	for _, e := range queue.Entries() {
		if !e.Committed && e.Query.HasPlaceholder() {
			e.Query = e.Query.Substitute(parentID)
		}
	}

	r.transition(ctx, StateSavingChildren)
	if err := r.saveChildren(ctx, queue); err != nil {
		return err
	}

	r.transition(ctx, StateReloadingChildren)
	if err := r.reloadChildren(ctx, queue.ChildFormIDs()); err != nil {
		return err
	}
	queue.Clear()
	return nil
}

func (r *saveRun) saveParent(ctx context.Context) error {
	q := r.f.GenerateSaveQuery(r.f.RowID, r.o.schemaVersion, false)
	if q == nil {
		return nil
	}

	if q.HasStatement() {
		res, err := r.run(ctx, q.Text, q.Params)
		if err != nil {
			return err
		}
		if q.Insert {
			id, ok := res.InsertedID()
			if !ok {
				return &ExecutionError{Statement: q.Text, Err: ErrNoInsertedID}
			}
			// Recorded at once so that a failing child save retries as an update.
			r.f.RowID = id
			r.result.RowID = id
			r.result.Inserted = true
		}
	}
	if !r.f.RowID.IsPersisted() {
		return ErrParentNotSaved
	}
	r.logger(ctx).Info("parent saved", "inserted", r.result.Inserted)
	return r.writeFiles(ctx, q.AttachedFiles, r.f.RowID)
}

func (r *saveRun) saveChildren(ctx context.Context, queue *form.SaveQueue) error {
	committed := 0
	for i, e := range queue.Entries() {
		if e.Committed {
			r.result.Skipped++
			committed++
			continue
		}
		r.sess.publish(Event{Type: EventState, State: StateSavingChildren.String(), Index: i, ChildFormID: e.ChildFormID})

		id, err := r.saveChild(ctx, e)
		if err != nil {
			r.logger(ctx).Error("child save failed",
				"index", i,
				"child_form_id", e.ChildFormID,
				"committed", committed,
				"error", err,
			)
			return &OrchestrationError{Index: i, Committed: committed, Err: err}
		}
		r.f.MarkCommitted(e, id)
		committed++
		r.result.ChildrenSaved++
		r.sess.publish(Event{Type: EventChildSaved, Index: i, ChildFormID: e.ChildFormID, RowID: id.String()})
	}
	return nil
}

func (r *saveRun) saveChild(ctx context.Context, e *form.ChildSave) (form.ID, error) {
	q := e.Query
	id := e.RowID
	if q.HasStatement() {
		res, err := r.run(ctx, q.Text, q.Params)
		if err != nil {
			return form.ID{}, err
		}
		if q.Insert {
			newID, ok := res.InsertedID()
			if !ok {
				return form.ID{}, &ExecutionError{Statement: q.Text, Err: ErrNoInsertedID}
			}
			id = newID
		}
	}
	if len(q.AttachedFiles) == 0 {
		return id, nil
	}
	if !id.IsPersisted() {
		return form.ID{}, fmt.Errorf("child row %s has files but no saved id", id)
	}
	if err := r.writeFiles(ctx, q.AttachedFiles, id); err != nil {
		// The row itself is committed; a retry only rewrites the files.
		r.f.AdoptRowID(e, id)
		e.Query = &form.Query{AttachedFiles: q.AttachedFiles, RowID: id}
		return form.ID{}, err
	}
	return id, nil
}

// writeFiles runs the file side-channel for a committed row: for each file
// the value update, then the file-name update.
func (r *saveRun) writeFiles(ctx context.Context, files []form.AttachedFile, rowID form.ID) error {
	for _, af := range files {
		for _, q := range af.Queries(rowID.Int64()) {
			if _, err := r.run(ctx, q.Text, q.Params); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *saveRun) reloadChildren(ctx context.Context, childFormIDs []string) error {
	for _, id := range childFormIDs {
		child, ok := r.f.FindChildForm(id)
		if !ok {
			continue
		}
		parent := child.Parent()
		if parent == nil || !parent.RowID.IsPersisted() || !child.HasParentRelation() {
			continue
		}
		if err := reloadChildRows(ctx, r.run, child, parent.RowID); err != nil {
			return err
		}
	}
	return nil
}

// run executes one statement with busy notifications around it.
func (r *saveRun) run(ctx context.Context, text string, params map[string]any) (*Result, error) {
	return runStatement(ctx, r.o.exec, r.sess, text, params)
}

type runFunc func(ctx context.Context, text string, params map[string]any) (*Result, error)

func reloadChildRows(ctx context.Context, run runFunc, child *form.Form, parentID form.ID) error {
	q, err := child.GenerateChildSelectQuery(parentID)
	if err != nil {
		return err
	}
	res, err := run(ctx, q.Text, q.Params)
	if err != nil {
		return err
	}
	for _, row := range res.Rows {
		if err := loadFileNames(ctx, run, child, row); err != nil {
			return err
		}
	}
	child.LoadChildRows(res.Rows)
	return nil
}

// loadFileNames adds the file names a form keeps in other tables to a
// stored row.
func loadFileNames(ctx context.Context, run runFunc, f *form.Form, row form.Row) error {
	for _, q := range f.GenerateFileNameQueries(row.ID()) {
		res, err := run(ctx, q.Text, q.Params)
		if err != nil {
			return fmt.Errorf("load file names of row %s: %w", row.ID(), err)
		}
		if len(res.Rows) == 0 {
			continue
		}
		for k, v := range res.Rows[0] {
			row[k] = v
		}
	}
	return nil
}

func runStatement(ctx context.Context, exec Executor, sess *Session, text string, params map[string]any) (*Result, error) {
	if sess != nil {
		sess.publish(Event{Type: EventBusy, Busy: true})
		defer sess.publish(Event{Type: EventBusy, Busy: false})
	}
	res, err := exec.Execute(ctx, text, params)
	if err != nil {
		ee := &ExecutionError{Statement: text, Err: err}
		logging.FromContext(ctx).Warn("statement rejected", "statement", ee.summary(), "error", err)
		return nil, ee
	}
	if res == nil {
		res = &Result{}
	}
	return res, nil
}

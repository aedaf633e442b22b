package form

import (
	"errors"
	"fmt"
)

// ErrNotChild is returned when a form is asked to commit a row of a form it
// does not own.
var ErrNotChild = errors.New("form is not a child of this form")

// ChildSave is one queued child statement.
type ChildSave struct {
	Key         string
	ChildFormID string
	RowID       ID
	Query       *Query

	// Committed is set once the statement has executed. A retried save
	// skips committed entries.
	Committed bool
	// ResultID is the id the committed statement wrote.
	ResultID ID
}

// SaveQueue holds child statements in commit order until the next save.
type SaveQueue struct {
	entries []*ChildSave
	// adopted maps the key of a committed pending row to its stored id.
	adopted map[string]ID
}

func childSaveKey(rowID ID, childFormID string) string {
	return rowID.String() + "-" + childFormID
}

// Put appends e, or replaces the entry with the same key in place.
func (q *SaveQueue) Put(e *ChildSave) {
	for i, cur := range q.entries {
		if cur.Key == e.Key {
			q.entries[i] = e
			return
		}
	}
	q.entries = append(q.entries, e)
}

// Remove drops the entry for a child row. It reports whether one existed.
func (q *SaveQueue) Remove(childFormID string, rowID ID) bool {
	key := childSaveKey(rowID, childFormID)
	for i, cur := range q.entries {
		if cur.Key == key {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Entries returns the queued entries in order.
func (q *SaveQueue) Entries() []*ChildSave {
	return q.entries
}

// Len returns the number of queued entries.
func (q *SaveQueue) Len() int {
	return len(q.entries)
}

// Dirty reports whether unsaved child changes are queued.
func (q *SaveQueue) Dirty() bool {
	return len(q.entries) > 0
}

// Clear empties the queue.
func (q *SaveQueue) Clear() {
	q.entries = nil
}

// ChildFormIDs returns the distinct child forms with queued entries, in
// first-queued order.
func (q *SaveQueue) ChildFormIDs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range q.entries {
		if !seen[e.ChildFormID] {
			seen[e.ChildFormID] = true
			out = append(out, e.ChildFormID)
		}
	}
	return out
}

func (q *SaveQueue) clone() SaveQueue {
	out := SaveQueue{entries: make([]*ChildSave, len(q.entries))}
	if q.adopted != nil {
		out.adopted = make(map[string]ID, len(q.adopted))
		for k, v := range q.adopted {
			out.adopted[k] = v
		}
	}
	for i, e := range q.entries {
		cp := *e
		cp.Query = e.Query.Clone()
		out.entries[i] = &cp
	}
	return out
}

// MarkCommitted records that e executed and wrote id. A new row's pending
// id is replaced by id in both row views and in the entry, so later edits
// of the row update the stored record instead of inserting it again.
func (f *Form) MarkCommitted(e *ChildSave, id ID) {
	e.Committed = true
	e.ResultID = id
	f.AdoptRowID(e, id)
}

// AdoptRowID rewrites the pending row behind e to the stored id. It is a
// no-op unless e holds a pending id and id is persisted.
func (f *Form) AdoptRowID(e *ChildSave, id ID) {
	if !e.RowID.IsPending() || !id.IsPersisted() {
		return
	}
	pending := e.RowID
	if child, ok := f.root().FindChildForm(e.ChildFormID); ok {
		child.replaceRowID(pending, id)
		if child.RowID == pending {
			child.RowID = id
		}
	}
	q := f.Queue()
	if q.adopted == nil {
		q.adopted = make(map[string]ID)
	}
	q.adopted[childSaveKey(pending, e.ChildFormID)] = id
	e.RowID = id
	e.Key = childSaveKey(id, e.ChildFormID)
	if e.Query != nil {
		e.Query.RowID = id
	}
}

// ResolveRowID returns the stored id of a child row that was committed
// under a pending id, or id itself.
func (f *Form) ResolveRowID(childFormID string, id ID) ID {
	if !id.IsPending() {
		return id
	}
	if stored, ok := f.Queue().adopted[childSaveKey(id, childFormID)]; ok {
		return stored
	}
	return id
}

// Queue returns the root form's pending child saves.
func (f *Form) Queue() *SaveQueue {
	return &f.root().queue
}

func (f *Form) root() *Form {
	r := f
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// CommitChildRow validates the values held by child, writes them into the
// child row identified by rowID (minting a pending id for a new row), and
// queues the row's save statement on the root form. Validation failures are
// returned as ValidationErrors and leave rows and queue untouched. The
// returned entry is nil when nothing changed.
func (f *Form) CommitChildRow(child *Form, rowID ID, isClone bool) (*ChildSave, error) {
	if child.parent != f {
		return nil, fmt.Errorf("%w: %q", ErrNotChild, child.ID)
	}
	if res := child.CheckChildFormValidation(); !res.Status {
		return nil, res.Errors
	}
	if f.parent != nil && !f.RowID.IsPersisted() {
		return nil, fmt.Errorf("child form %q: parent row of nested form %q must be saved first", child.ID, f.ID)
	}

	return f.queueChildRow(child, rowID, isClone), nil
}

func (f *Form) queueChildRow(child *Form, rowID ID, isClone bool) *ChildSave {
	id := child.syncRow(rowID)
	child.RowID = id

	q := child.GenerateSaveForChildQuery(f.RowID, isClone)
	if q == nil {
		return nil
	}
	e := &ChildSave{
		Key:         childSaveKey(id, child.ID),
		ChildFormID: child.ID,
		RowID:       id,
		Query:       q,
	}
	f.Queue().Put(e)
	return e
}

// CommitFlattenedChild commits the single row of a flattened child form:
// its last row, or a new row when it has none.
func (f *Form) CommitFlattenedChild(child *Form) (*ChildSave, error) {
	if !child.Flatten {
		return nil, fmt.Errorf("child form %q is not flattened", child.ID)
	}
	return f.CommitChildRow(child, child.LastRowID(), false)
}

// DropChildRow removes a child row from both row views and drops its queued
// statement. It reports whether the row existed.
func (f *Form) DropChildRow(child *Form, rowID ID) bool {
	removed := child.RemoveRow(rowID)
	queued := f.Queue().Remove(child.ID, rowID)
	return removed || queued
}

// PropagateLinked copies the value of a root column into the flattened
// child fields linked to it and returns the child forms that changed.
func (f *Form) PropagateLinked(column string) ([]*Form, error) {
	src, ok := f.Field(column)
	if !ok {
		return nil, fmt.Errorf("form %q has no column %q", f.ID, column)
	}
	var changed []*Form
	for _, cf := range f.ChildFields() {
		child := cf.ChildForm
		if !child.Flatten {
			continue
		}
		touched := false
		for _, fld := range child.Fields() {
			if fld.LinkedTo != column || fld.ChildForm != nil {
				continue
			}
			fld.Value = src.Value.clone()
			fld.Column.MarkChanged()
			touched = true
		}
		if touched {
			changed = append(changed, child)
		}
	}
	return changed, nil
}

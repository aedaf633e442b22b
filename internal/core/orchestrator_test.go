package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/dynforms/internal/form"
)

// newOrderWithLines opens an unsaved order and commits two new lines.
func newOrderWithLines(t *testing.T, svc *Service) *Session {
	t.Helper()
	ctx := context.Background()

	sess, err := svc.OpenSession(ctx, "orders", form.ID{})
	require.NoError(t, err)
	require.NoError(t, svc.UpdateField(ctx, sess.ID, 0, 0, "Order A"))
	require.NoError(t, svc.UpdateField(ctx, sess.ID, 0, 2, "yes"))

	_, err = svc.CommitChildRow(ctx, sess.ID, "lines", form.ID{}, map[string]string{"Product": "10", "Qty": "2"})
	require.NoError(t, err)
	_, err = svc.CommitChildRow(ctx, sess.ID, "lines", form.ID{}, map[string]string{"Product": "11", "Qty": "5"})
	require.NoError(t, err)
	return sess
}

func orderRows(exec *fakeExecutor) *fakeExecutor {
	return exec.
		on("[Sales].[Order Lines]",
			form.Row{form.RowIDColumn: int64(2), "Product": "10", "Qty": int64(2), "Order": int64(1)},
			form.Row{form.RowIDColumn: int64(3), "Product": "11", "Qty": int64(5), "Order": int64(1)},
		).
		on("[Sales].[Orders]", form.Row{form.RowIDColumn: int64(1), "Name": "Order A", "Active": true})
}

func TestSave_FirstSaveSubstitutesParentID(t *testing.T) {
	exec := orderRows(newFakeExecutor())
	svc := newTestService(t, exec)
	sess := newOrderWithLines(t, svc)

	queued := sess.Form().Queue().Entries()
	require.Len(t, queued, 2)
	for _, e := range queued {
		assert.True(t, e.Query.HasPlaceholder(), "queued before the parent has an id")
	}

	res, err := svc.Save(context.Background(), sess.ID)
	require.NoError(t, err)

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, form.Persisted(1), res.RowID)
	assert.True(t, res.Inserted)
	assert.Equal(t, 2, res.ChildrenSaved)
	assert.Zero(t, res.Skipped)

	assert.Equal(t, []string{
		"INSERT [Orders]",
		"INSERT [Order Lines]",
		"INSERT [Order Lines]",
		"SELECT [Order Lines]",
		"SELECT [Orders]",
		"SELECT [Order Lines]",
	}, exec.prefixes())

	calls := exec.Calls()
	assert.Equal(t, "INSERT INTO [Sales].[Orders] ([Name], [Active]) VALUES (@p0, @p1) RETURNING [Cinchy ID]", calls[0].Query)
	for _, c := range calls[1:3] {
		assert.NotContains(t, c.Query, form.PlaceholderToken)
		assert.Equal(t, int64(1), c.Params["parentId"], "both children reference the new parent id")
	}
	assert.Equal(t, int64(1), calls[3].Params["parentId"])

	f := sess.Form()
	assert.Equal(t, form.Persisted(1), f.RowID)
	assert.Zero(t, f.Queue().Len())
	child, ok := f.FindChildForm("lines")
	require.True(t, ok)
	require.Len(t, child.DisplayRows(), 2)
	assert.Equal(t, "Widget", child.DisplayRows()[0]["Product"])

	selected := sess.Selected()
	require.NotNil(t, selected)
	assert.Equal(t, form.Persisted(1), selected.ID)
	assert.Equal(t, "Order A", selected.Label)
}

func TestSave_FailureThenRetryResumes(t *testing.T) {
	exec := orderRows(newFakeExecutor())
	failed := false
	childInserts := 0
	exec.fail = func(_ int, query string) error {
		if !strings.HasPrefix(query, "INSERT INTO [Sales].[Order Lines]") {
			return nil
		}
		childInserts++
		if childInserts == 2 && !failed {
			failed = true
			return errors.New("duplicate key value violates unique constraint")
		}
		return nil
	}
	svc := newTestService(t, exec)
	sess := newOrderWithLines(t, svc)
	ctx := context.Background()

	res, err := svc.Save(ctx, sess.ID)
	require.Error(t, err)

	var oe *OrchestrationError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, 1, oe.Index)
	assert.Equal(t, 1, oe.Committed)
	var ee *ExecutionError
	assert.ErrorAs(t, err, &ee)
	assert.Equal(t, "ORC001", MapError(err).Code)

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, form.Persisted(1), sess.Form().RowID, "parent id is kept after a child failure")

	entries := sess.Form().Queue().Entries()
	require.Len(t, entries, 2, "queue survives the failure")
	assert.True(t, entries[0].Committed)
	assert.False(t, entries[1].Committed)

	before := len(exec.Calls())
	res, err = svc.Save(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.ChildrenSaved)
	assert.False(t, res.Inserted)

	retry := exec.prefixes()[before:]
	assert.Equal(t, []string{
		"UPDATE [Orders]",
		"INSERT [Order Lines]",
		"SELECT [Order Lines]",
		"SELECT [Orders]",
		"SELECT [Order Lines]",
	}, retry)
	assert.Equal(t, 3, childInserts, "the committed line is not inserted twice")
}

func paramValues(params map[string]any) []any {
	out := make([]any, 0, len(params))
	for _, v := range params {
		out = append(out, v)
	}
	return out
}

// failSecondLineInsert rejects the second child insert once.
func failSecondLineInsert(exec *fakeExecutor) *int {
	failed := false
	childInserts := 0
	exec.fail = func(_ int, query string) error {
		if !strings.HasPrefix(query, "INSERT INTO [Sales].[Order Lines]") {
			return nil
		}
		childInserts++
		if childInserts == 2 && !failed {
			failed = true
			return errors.New("deadlock detected")
		}
		return nil
	}
	return &childInserts
}

func TestSave_CommittedRowTakesStoredID(t *testing.T) {
	exec := orderRows(newFakeExecutor())
	failSecondLineInsert(exec)
	svc := newTestService(t, exec)
	sess := newOrderWithLines(t, svc)
	pending := sess.Form().Queue().Entries()[0].RowID
	require.True(t, pending.IsPending())

	_, err := svc.Save(context.Background(), sess.ID)
	require.Error(t, err)

	f := sess.Form()
	entries := f.Queue().Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, form.Persisted(2), entries[0].RowID)
	assert.Equal(t, form.Persisted(2), entries[0].ResultID)
	assert.Equal(t, form.Persisted(2), f.ResolveRowID("lines", pending))

	child, _ := f.FindChildForm("lines")
	require.Len(t, child.DisplayRows(), 2)
	assert.Equal(t, form.Persisted(2), child.DisplayRows()[0].ID())
	assert.Equal(t, form.Persisted(2), child.RawRows()[0].ID())
	assert.True(t, child.DisplayRows()[1].ID().IsPending())
}

func TestSave_ReeditAfterFailureUpdatesCommittedRow(t *testing.T) {
	exec := orderRows(newFakeExecutor())
	childInserts := failSecondLineInsert(exec)
	svc := newTestService(t, exec)
	sess := newOrderWithLines(t, svc)
	ctx := context.Background()
	pending := sess.Form().Queue().Entries()[0].RowID

	_, err := svc.Save(ctx, sess.ID)
	require.Error(t, err)

	entry, err := svc.CommitChildRow(ctx, sess.ID, "lines", pending, map[string]string{"Qty": "7"})
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, form.Persisted(2), entry.RowID)
	assert.False(t, entry.Query.Insert)
	require.Equal(t, 2, sess.Form().Queue().Len(), "the edit replaces the committed entry")

	before := len(exec.Calls())
	res, err := svc.Save(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ChildrenSaved)
	assert.Equal(t, 3, *childInserts, "the committed line is not inserted twice")

	var update *recordedCall
	for _, c := range exec.Calls()[before:] {
		c := c
		if strings.HasPrefix(c.Query, "UPDATE [Sales].[Order Lines]") {
			update = &c
		}
	}
	require.NotNil(t, update)
	assert.Equal(t, int64(2), update.Params["rowId"])
	assert.Contains(t, update.Query, "[Qty] = @p")
	assert.Contains(t, paramValues(update.Params), any(int64(7)))
}

func TestSave_ParentFailure(t *testing.T) {
	exec := newFakeExecutor()
	exec.fail = func(i int, _ string) error {
		if i == 0 {
			return errors.New("connection refused")
		}
		return nil
	}
	svc := newTestService(t, exec)
	sess := newOrderWithLines(t, svc)

	res, err := svc.Save(context.Background(), sess.ID)
	require.Error(t, err)
	assert.Equal(t, StateFailed, res.State)
	assert.False(t, sess.Form().RowID.IsPersisted())
	assert.Len(t, exec.Calls(), 1, "no child statement runs without a parent id")
	assert.Equal(t, 2, sess.Form().Queue().Len())
	assert.False(t, sess.Saving())
}

func TestSave_ValidationFailureRunsNothing(t *testing.T) {
	exec := newFakeExecutor()
	svc := newTestService(t, exec)
	ctx := context.Background()

	sess, err := svc.OpenSession(ctx, "orders", form.ID{})
	require.NoError(t, err)
	require.NoError(t, svc.UpdateField(ctx, sess.ID, 0, 1, "abc"))

	_, err = svc.Save(ctx, sess.ID)
	var verrs form.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.ElementsMatch(t, []string{"Name", "Code"}, verrs.Fields())
	assert.Empty(t, exec.Calls())
}

func TestSave_LegacySchemaVersion(t *testing.T) {
	exec := newFakeExecutor()
	exec.on("[Sales].[Orders]", form.Row{form.RowIDColumn: int64(1), "Name": "Order A"})
	svc := NewService(exec, staticSource{"orders": ordersDefinition()}, Options{SchemaVersion: 4})
	ctx := context.Background()

	sess, err := svc.OpenSession(ctx, "orders", form.ID{})
	require.NoError(t, err)
	require.NoError(t, svc.UpdateField(ctx, sess.ID, 0, 0, "Order A"))

	_, err = svc.Save(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(exec.Calls()[0].Query, form.LegacyInsertTrailer))
}

func TestSaveState_String(t *testing.T) {
	assert.Equal(t, "saving_parent", StateSavingParent.String())
	assert.Equal(t, "substituting_child_ids", StateSubstitutingChildIDs.String())
	assert.Equal(t, "state(42)", SaveState(42).String())

	b, err := StateReloadingChildren.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "reloading_children", string(b))
}

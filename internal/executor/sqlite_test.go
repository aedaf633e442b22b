package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/dynforms/internal/core"
	"github.com/JonMunkholm/dynforms/internal/form"
)

const salesSchema = `
CREATE TABLE [Sales].[Orders] (
	[Cinchy ID] INTEGER PRIMARY KEY AUTOINCREMENT,
	[Name] TEXT,
	[Active] INTEGER,
	[Deleted] TEXT
);
CREATE TABLE [Sales].[Order Lines] (
	[Cinchy ID] INTEGER PRIMARY KEY AUTOINCREMENT,
	[Order] INTEGER,
	[Qty] INTEGER,
	[Deleted] TEXT
);
`

func openSales(t *testing.T) *SQLite {
	t.Helper()
	ctx := context.Background()
	db, err := OpenSQLite(ctx, MemoryPath, []string{"Sales", "Sales", " "})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.ExecScript(ctx, salesSchema))
	return db
}

func TestSQLite_InsertReturningAndSelect(t *testing.T) {
	db := openSales(t)
	ctx := context.Background()
	assert.Equal(t, []string{"Sales"}, db.Domains())

	res, err := db.Execute(ctx, "INSERT INTO [Sales].[Orders] ([Name], [Active]) VALUES (@p0, @p1) RETURNING [Cinchy ID]",
		map[string]any{"p0": "Order A", "p1": true})
	require.NoError(t, err)
	id, ok := res.InsertedID()
	require.True(t, ok)
	assert.Equal(t, form.Persisted(1), id)

	res, err = db.Execute(ctx, "SELECT [Cinchy ID], [Name], [Active] FROM [Sales].[Orders] WHERE [Cinchy ID] = @rowId AND [Deleted] is null",
		map[string]any{"rowId": int64(1)})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "Order A", res.Rows[0]["Name"])
	assert.Equal(t, int64(1), res.Rows[0]["Active"])
	assert.Equal(t, []string{"Cinchy ID", "Name", "Active"}, res.Columns)
}

func TestSQLite_LegacyInsertTrailer(t *testing.T) {
	db := openSales(t)

	res, err := db.Execute(context.Background(),
		"INSERT INTO [Sales].[Orders] ([Name]) VALUES (@p0)"+form.LegacyInsertTrailer,
		map[string]any{"p0": "Order B"})
	require.NoError(t, err)
	id, ok := res.InsertedID()
	require.True(t, ok)
	assert.Equal(t, form.Persisted(1), id)
}

func TestSQLite_UpdateAndDelete(t *testing.T) {
	db := openSales(t)
	ctx := context.Background()
	_, err := db.Execute(ctx, "INSERT INTO [Sales].[Orders] DEFAULT VALUES RETURNING [Cinchy ID]", nil)
	require.NoError(t, err)

	res, err := db.Execute(ctx, "UPDATE [Sales].[Orders] SET [Name] = @p0 WHERE [Cinchy ID] = @rowId AND [Deleted] is null",
		map[string]any{"p0": "Renamed", "rowId": int64(1)})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.RowsAffected)

	res, err = db.Execute(ctx, "DELETE FROM [Sales].[Orders] WHERE [Cinchy ID] = @rowId AND [Deleted] is null",
		map[string]any{"rowId": int64(1)})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.RowsAffected)
}

func TestSQLite_EditableFunction(t *testing.T) {
	db := openSales(t)
	ctx := context.Background()
	_, err := db.Execute(ctx, "INSERT INTO [Sales].[Orders] ([Name]) VALUES (@p0) RETURNING [Cinchy ID]", map[string]any{"p0": "A"})
	require.NoError(t, err)

	res, err := db.Execute(ctx, "SELECT editable([Name]) AS [entitlement-Name] FROM [Sales].[Orders] WHERE [Cinchy ID] = @rowId AND [Deleted] is null",
		map[string]any{"rowId": int64(1)})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, int64(1), res.Rows[0]["entitlement-Name"])
}

func TestSQLite_RejectsBadStatement(t *testing.T) {
	db := openSales(t)
	_, err := db.Execute(context.Background(), "UPDATE [Sales].[Missing] SET [X] = 1", nil)
	assert.Error(t, err)

	_, err = OpenSQLite(context.Background(), MemoryPath, []string{"bad;name"})
	assert.Error(t, err)
}

// TestSQLite_ServiceSaveRoundTrip drives a full first save through the
// service: the parent insert, both child inserts bound to the new parent
// id, and the child reload.
func TestSQLite_ServiceSaveRoundTrip(t *testing.T) {
	db := openSales(t)
	ctx := context.Background()

	def := &form.Definition{
		Form: form.FormMetadata{ID: "orders", Name: "Orders", Domain: "Sales", Table: "Orders"},
		Fields: []form.FieldMetadata{
			{Position: 0, Label: "Name", Column: "Name", DataType: "Text", Mandatory: true, Display: true},
			{Position: 1, Label: "Active", Column: "Active", DataType: "Yes/No"},
			{Position: 2, Label: "Lines", Child: &form.ChildMetadata{
				Form:       form.FormMetadata{ID: "lines", Name: "Order Lines", Domain: "Sales", Table: "Order Lines"},
				LinkColumn: "Order",
				Fields: []form.FieldMetadata{
					{Position: 0, Label: "Qty", Column: "Qty", DataType: "Number", Mandatory: true},
				},
			}},
		},
	}
	svc := core.NewService(db, singleForm{def}, core.Options{})
	defer svc.Shutdown(ctx)

	sess, err := svc.OpenSession(ctx, "orders", form.ID{})
	require.NoError(t, err)
	require.NoError(t, svc.UpdateField(ctx, sess.ID, 0, 0, "Order A"))
	_, err = svc.CommitChildRow(ctx, sess.ID, "lines", form.ID{}, map[string]string{"Qty": "2"})
	require.NoError(t, err)
	_, err = svc.CommitChildRow(ctx, sess.ID, "lines", form.ID{}, map[string]string{"Qty": "7"})
	require.NoError(t, err)

	res, err := svc.Save(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, form.Persisted(1), res.RowID)
	assert.Equal(t, 2, res.ChildrenSaved)

	check, err := db.Execute(ctx, "SELECT [Order], [Qty] FROM [Sales].[Order Lines] ORDER BY [Cinchy ID]", nil)
	require.NoError(t, err)
	require.Len(t, check.Rows, 2)
	for _, row := range check.Rows {
		assert.Equal(t, int64(1), row["Order"])
	}
	assert.Equal(t, int64(7), check.Rows[1]["Qty"])

	child, ok := sess.Form().FindChildForm("lines")
	require.True(t, ok)
	assert.Len(t, child.DisplayRows(), 2)

	records, err := svc.LookupRecords(ctx, "orders", "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Order A", records[0].Label)
}

type singleForm struct{ def *form.Definition }

func (s singleForm) LoadForm(_ context.Context, formID string) (*form.Definition, error) {
	if s.def == nil || s.def.Form.ID != formID {
		return nil, core.ErrFormNotFound
	}
	return s.def, nil
}

package form

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSaveQuery_NilWhenUnchanged(t *testing.T) {
	f, _ := newOrderForm(t)
	f.LoadRecord(Row{RowIDColumn: int64(42), "Name": "Order A"})

	assert.Nil(t, f.GenerateSaveQuery(f.RowID, ReturningSchemaVersion, false))
}

func TestGenerateSaveQuery_Update(t *testing.T) {
	f, _ := newOrderForm(t)
	require.NoError(t, f.SetValue("Name", Text("Order A")))
	require.NoError(t, f.SetValue("Active", Bool(true)))
	require.NoError(t, f.SetValue("Customer", IDValue("2")))
	require.NoError(t, f.SetValue("Tags", IDList("red", "blue")))

	q := f.GenerateSaveQuery(Persisted(42), ReturningSchemaVersion, false)

	require.NotNil(t, q)
	assert.False(t, q.Insert)
	assert.Equal(t,
		"UPDATE [Sales].[Orders] SET [Name] = @p0, [Active] = @p1, [Customer] = @p2, [Tags] = @p3 WHERE [Cinchy ID] = @rowId AND [Deleted] is null",
		q.Text)
	assert.Equal(t, map[string]any{
		"p0":    "Order A",
		"p1":    true,
		"p2":    int64(2),
		"p3":    "red,blue",
		"rowId": int64(42),
	}, q.Params)
	assert.Equal(t, Persisted(42), q.RowID)
}

func TestGenerateSaveQuery_Insert(t *testing.T) {
	tests := []struct {
		name          string
		rowID         ID
		schemaVersion int
		isClone       bool
		want          string
	}{
		{
			name:          "new row",
			schemaVersion: ReturningSchemaVersion,
			want:          "INSERT INTO [Sales].[Orders] ([Name]) VALUES (@p0) RETURNING [Cinchy ID]",
		},
		{
			name:          "legacy schema",
			schemaVersion: 4,
			want:          "INSERT INTO [Sales].[Orders] ([Name]) VALUES (@p0)" + LegacyInsertTrailer,
		},
		{
			name:          "clone forces insert",
			rowID:         Persisted(9),
			schemaVersion: ReturningSchemaVersion,
			isClone:       true,
			want:          "INSERT INTO [Sales].[Orders] ([Name]) VALUES (@p0) RETURNING [Cinchy ID]",
		},
		{
			name:          "pending id inserts",
			rowID:         NewPending(),
			schemaVersion: ReturningSchemaVersion,
			want:          "INSERT INTO [Sales].[Orders] ([Name]) VALUES (@p0) RETURNING [Cinchy ID]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, _ := newOrderForm(t)
			require.NoError(t, f.SetValue("Name", Text("Order A")))

			q := f.GenerateSaveQuery(tt.rowID, tt.schemaVersion, tt.isClone)

			require.NotNil(t, q)
			assert.True(t, q.Insert)
			assert.Equal(t, tt.want, q.Text)
			assert.Equal(t, map[string]any{"p0": "Order A"}, q.Params)
		})
	}
}

func TestGenerateSaveQuery_YesNoEmptySavesFalse(t *testing.T) {
	f, _ := newOrderForm(t)
	require.NoError(t, f.SetValue("Active", Null()))

	q := f.GenerateSaveQuery(Persisted(1), ReturningSchemaVersion, false)

	require.NotNil(t, q)
	assert.Equal(t, false, q.Params["p0"])
}

func TestGenerateSaveQuery_EmptyValueIsNull(t *testing.T) {
	f, _ := newOrderForm(t)
	require.NoError(t, f.SetValue("Customer", Null()))

	q := f.GenerateSaveQuery(Persisted(1), ReturningSchemaVersion, false)

	require.NotNil(t, q)
	assert.Contains(t, q.Params, "p0")
	assert.Nil(t, q.Params["p0"])
}

func TestGenerateSaveQuery_BinaryIsAttachedNotInline(t *testing.T) {
	f, _ := newOrderForm(t)
	require.NoError(t, f.SetValue("Contract", Text("ZGF0YQ==")))
	require.NoError(t, f.SetFileName("Contract", "contract.pdf"))

	q := f.GenerateSaveQuery(Persisted(7), ReturningSchemaVersion, false)

	require.NotNil(t, q)
	assert.False(t, q.HasStatement())
	require.Len(t, q.AttachedFiles, 1)

	passes := q.AttachedFiles[0].Queries(7)
	require.Len(t, passes, 2)
	assert.Equal(t, "UPDATE [Sales].[Orders] SET [Contract] = @value WHERE [Cinchy ID] = @rowId AND [Deleted] is null", passes[0].Text)
	assert.Equal(t, "ZGF0YQ==", passes[0].Params["value"])
	assert.Equal(t, "UPDATE [Sales].[Orders] SET [Contract Name] = @fileName WHERE [Cinchy ID] = @rowId AND [Deleted] is null", passes[1].Text)
	assert.Equal(t, "contract.pdf", passes[1].Params["fileName"])
	assert.Equal(t, int64(7), passes[1].Params["rowId"])
}

func TestGenerateSaveForChildQuery_PlaceholderAndSubstitute(t *testing.T) {
	_, child := newOrderForm(t)
	require.NoError(t, child.SetValue("Qty", Text("3")))
	child.RowID = NewPending()

	q := child.GenerateSaveForChildQuery(ID{}, false)

	require.NotNil(t, q)
	assert.True(t, q.Insert)
	assert.Equal(t, "INSERT INTO [Sales].[Order Lines] ([Qty], [Order]) VALUES (@p0, @parentId) RETURNING [Cinchy ID]", q.Text)
	assert.Equal(t, PlaceholderToken, q.Params["parentId"])
	assert.Equal(t, int64(3), q.Params["p0"])
	assert.True(t, q.HasPlaceholder())

	sub := q.Substitute(99)
	assert.Equal(t, int64(99), sub.Params["parentId"])
	assert.False(t, sub.HasPlaceholder())
	assert.Equal(t, PlaceholderToken, q.Params["parentId"], "original is untouched")
}

func TestGenerateSaveForChildQuery_KnownParent(t *testing.T) {
	_, child := newOrderForm(t)
	require.NoError(t, child.SetValue("Qty", Text("3")))

	q := child.GenerateSaveForChildQuery(Persisted(12), false)

	require.NotNil(t, q)
	assert.Equal(t, int64(12), q.Params["parentId"])
	assert.False(t, q.HasPlaceholder())
}

func TestGenerateSaveForChildQuery_UpdateExistingRow(t *testing.T) {
	_, child := newOrderForm(t)
	require.NoError(t, child.SetValue("Qty", Text("3")))
	child.RowID = Persisted(5)

	q := child.GenerateSaveForChildQuery(ID{}, false)

	require.NotNil(t, q)
	assert.False(t, q.Insert)
	assert.Equal(t, "UPDATE [Sales].[Order Lines] SET [Qty] = @p0 WHERE [Cinchy ID] = @rowId AND [Deleted] is null", q.Text)
	assert.NotContains(t, q.Params, "parentId")
}

func parentMatchForm(t *testing.T) (*Form, *Form) {
	t.Helper()
	f, err := Build(
		FormMetadata{ID: "orders", Domain: "Sales", Table: "Orders"},
		nil,
		[]FieldMetadata{
			{Column: "Order Number"},
			{Column: "Notes", Position: 1, Child: &ChildMetadata{
				Form:     FormMetadata{ID: "notes", Domain: "Sales", Table: "Notes"},
				ParentID: "Order Number",
				LinkID:   "Order Ref",
				Fields:   []FieldMetadata{{Column: "Text"}},
			}},
		},
	)
	require.NoError(t, err)
	child, ok := f.FindChildForm("notes")
	require.True(t, ok)
	return f, child
}

func TestGenerateSaveForChildQuery_ParentMatchSubquery(t *testing.T) {
	_, child := parentMatchForm(t)
	require.NoError(t, child.SetValue("Text", Text("hello")))

	q := child.GenerateSaveForChildQuery(ID{}, false)

	require.NotNil(t, q)
	assert.Equal(t,
		"INSERT INTO [Sales].[Notes] ([Text], [Order Ref]) VALUES (@p0, (SELECT [Order Number] FROM [Sales].[Orders] WHERE [Cinchy ID] = {sourceid} AND [Deleted] is null)) RETURNING [Cinchy ID]",
		q.Text)

	sub := q.Substitute(31)
	assert.Contains(t, sub.Text, "WHERE [Cinchy ID] = 31 AND")
	assert.False(t, strings.Contains(sub.Text, PlaceholderToken))
}

func TestGenerateChildSelectQuery(t *testing.T) {
	_, child := newOrderForm(t)
	q, err := child.GenerateChildSelectQuery(Persisted(5))
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT [Cinchy ID], [Product], [Qty] FROM [Sales].[Order Lines] WHERE [Order] = @parentId AND [Deleted] is null ORDER BY [Cinchy ID]",
		q.Text)
	assert.Equal(t, int64(5), q.Params["parentId"])

	_, err = child.GenerateChildSelectQuery(NewPending())
	assert.Error(t, err)

	_, notes := parentMatchForm(t)
	q, err = notes.GenerateChildSelectQuery(Persisted(8))
	require.NoError(t, err)
	assert.Contains(t, q.Text, "WHERE [Order Ref] = (SELECT [Order Number] FROM [Sales].[Orders] WHERE [Cinchy ID] = @parentCinchyIdMatch AND [Deleted] is null)")
	assert.Equal(t, int64(8), q.Params[ParentMatchParam])
}

func TestGenerateSelectAndDeleteQueries(t *testing.T) {
	f, child := newOrderForm(t)

	sel, err := f.GenerateSelectQuery(Persisted(3))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sel.Text, "SELECT [Cinchy ID], [Name], [Code], [Active], [Customer], [Tags], [Contract], [Contract Name] AS [Contract_Name] FROM [Sales].[Orders]"))

	del, err := child.GenerateDeleteQuery(Persisted(1))
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM [Sales].[Order Lines] WHERE [Cinchy ID] = @rowId AND [Deleted] is null", del.Text)
	assert.Equal(t, int64(1), del.Params["rowId"])

	_, err = child.GenerateDeleteQuery(NewPending())
	assert.Error(t, err)
}

func TestGenerateLookupAndEntitlementQueries(t *testing.T) {
	f, child := newOrderForm(t)

	q, err := f.GenerateLookupQuery("acme")
	require.NoError(t, err)
	assert.Equal(t, "SELECT [Cinchy ID] AS [id], [Name] AS [label] FROM [Sales].[Orders] WHERE [Deleted] is null AND [Name] LIKE @filter ORDER BY [Name]", q.Text)
	assert.Equal(t, "%acme%", q.Params["filter"])

	ent, err := child.GenerateEntitlementQuery(Persisted(4))
	require.NoError(t, err)
	assert.Equal(t, "SELECT editable([Product]) AS [entitlement-Product], editable([Qty]) AS [entitlement-Qty] FROM [Sales].[Order Lines] WHERE [Cinchy ID] = @rowId AND [Deleted] is null", ent.Text)

	customer, _ := f.Field("Customer")
	opts, ok := customer.OptionsQuery()
	require.True(t, ok)
	assert.Equal(t, "SELECT [Cinchy ID] AS [id], [Name] AS [label] FROM [Sales].[Customers] WHERE [Deleted] is null", opts.Text)
}

func TestQuote_EscapesBrackets(t *testing.T) {
	assert.Equal(t, "[a]]b]", Quote("a]b"))
}

func TestGenerateFileNameQueries(t *testing.T) {
	f, err := Build(
		FormMetadata{ID: "docs", Domain: "Sales", Table: "Docs"},
		nil,
		[]FieldMetadata{
			{Position: 0, Label: "File", Column: "File", DataType: "Binary", FileNameColumn: "Sales.Doc Files.File Name"},
			{Position: 1, Label: "Scan", Column: "Scan", DataType: "Binary", FileNameColumn: "Sales.Docs.Scan Name"},
		},
	)
	require.NoError(t, err)

	assert.Nil(t, f.GenerateFileNameQueries(NewPending()))

	qs := f.GenerateFileNameQueries(Persisted(7))
	require.Len(t, qs, 1, "same-table names are read by the row select")
	assert.Equal(t,
		"SELECT [File Name] AS [File_Name] FROM [Sales].[Doc Files] WHERE [Cinchy ID] = @rowId AND [Deleted] is null",
		qs[0].Text)
	assert.Equal(t, map[string]any{"rowId": int64(7)}, qs[0].Params)

	f.LoadRecord(Row{RowIDColumn: int64(7), "File": "JVBERi0=", "File_Name": "terms.pdf"})
	fld, _ := f.Field("File")
	assert.Equal(t, "terms.pdf", fld.Column.Binary.FileName)
}

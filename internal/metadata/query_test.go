package metadata

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/dynforms/internal/core"
	"github.com/JonMunkholm/dynforms/internal/executor"
	"github.com/JonMunkholm/dynforms/internal/form"
)

const metadataSchema = `
CREATE TABLE [Cinchy].[Forms] (
	[Form ID] TEXT, [Name] TEXT, [Domain] TEXT, [Table] TEXT, [Deleted] TEXT
);
CREATE TABLE [Cinchy].[Form Sections] (
	[Form ID] TEXT, [Section ID] TEXT, [Name] TEXT, [Position] INTEGER,
	[Child Only] INTEGER, [Deleted] TEXT
);
CREATE TABLE [Cinchy].[Form Fields] (
	[Form ID] TEXT, [Section ID] TEXT, [Position] INTEGER, [Label] TEXT,
	[Column] TEXT, [Data Type] TEXT, [Multiple] INTEGER, [Mandatory] INTEGER,
	[View Only] INTEGER, [Display] INTEGER, [Pattern] TEXT, [Linked To] TEXT,
	[Link Domain] TEXT, [Link Table] TEXT, [Link Label Column] TEXT,
	[Link Filter] TEXT, [Choices] TEXT, [File Name Column] TEXT,
	[Display Format] TEXT, [Child Form ID] TEXT, [Flatten] INTEGER,
	[Link Column] TEXT, [Parent Column] TEXT, [Child Link Column] TEXT,
	[Deleted] TEXT
);

INSERT INTO [Cinchy].[Forms] VALUES
	('orders', 'Orders', 'Sales', 'Orders', NULL),
	('lines', 'Order Lines', 'Sales', 'Order Lines', NULL),
	('retired', 'Retired', 'Sales', 'Old', 'yes');

INSERT INTO [Cinchy].[Form Sections] VALUES
	('orders', 'main', 'Main', 0, 0, NULL),
	('orders', 'more', 'More', 1, 1, NULL);

INSERT INTO [Cinchy].[Form Fields]
	([Form ID], [Section ID], [Position], [Label], [Column], [Data Type], [Mandatory], [Display], [Choices])
VALUES
	('orders', 'main', 0, 'Name', 'Name', 'Text', 1, 1, NULL),
	('orders', 'main', 1, 'Status', 'Status', 'Choice', 0, 0, 'Open, Closed');

INSERT INTO [Cinchy].[Form Fields]
	([Form ID], [Section ID], [Position], [Label], [Child Form ID], [Link Column], [Flatten])
VALUES
	('orders', 'more', 2, 'Lines', 'lines', 'Order', 0);

INSERT INTO [Cinchy].[Form Fields]
	([Form ID], [Position], [Label], [Column], [Data Type])
VALUES
	('lines', 0, 'Qty', 'Qty', 'Number');
`

func newMetadataDB(t *testing.T) *executor.SQLite {
	t.Helper()
	ctx := context.Background()
	db, err := executor.OpenSQLite(ctx, executor.MemoryPath, []string{DefaultDomain})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.ExecScript(ctx, metadataSchema))
	return db
}

func TestQueryLoader_LoadForm(t *testing.T) {
	l := NewQueryLoader(newMetadataDB(t), "")

	def, err := l.LoadForm(context.Background(), "orders")
	require.NoError(t, err)
	assert.Equal(t, "Sales", def.Form.Domain)
	require.Len(t, def.Sections, 2)
	assert.True(t, def.Sections[1].ChildOnly)

	require.Len(t, def.Fields, 3)
	assert.True(t, def.Fields[0].Mandatory)
	assert.True(t, def.Fields[0].Display)
	assert.Equal(t, []string{"Open", "Closed"}, def.Fields[1].Choices)

	child := def.Fields[2].Child
	require.NotNil(t, child)
	assert.Equal(t, "lines", child.Form.ID)
	assert.Equal(t, "Order", child.LinkColumn)
	require.Len(t, child.Fields, 1)
	assert.Equal(t, "Number", child.Fields[0].DataType)

	f, err := def.Build()
	require.NoError(t, err)
	assert.Len(t, f.ChildFields(), 1)
}

func TestQueryLoader_NotFound(t *testing.T) {
	l := NewQueryLoader(newMetadataDB(t), DefaultDomain)

	_, err := l.LoadForm(context.Background(), "retired")
	assert.ErrorIs(t, err, core.ErrFormNotFound)
}

func TestQueryLoader_ExecutorError(t *testing.T) {
	boom := errors.New("connection refused")
	l := NewQueryLoader(core.ExecutorFunc(func(context.Context, string, map[string]any) (*core.Result, error) {
		return nil, boom
	}), "Meta")

	_, err := l.LoadForm(context.Background(), "orders")
	assert.ErrorIs(t, err, boom)
}

func TestQueryLoader_QuotesDomain(t *testing.T) {
	var queries []string
	l := NewQueryLoader(core.ExecutorFunc(func(_ context.Context, q string, _ map[string]any) (*core.Result, error) {
		queries = append(queries, q)
		return &core.Result{}, nil
	}), "Meta]data")

	_, err := l.LoadForm(context.Background(), "orders")
	assert.ErrorIs(t, err, core.ErrFormNotFound)
	require.NotEmpty(t, queries)
	assert.Contains(t, queries[0], "FROM [Meta]]data].[Forms]")
}

func TestQueryLoader_ChildCycle(t *testing.T) {
	rows := func(q string) *core.Result {
		switch {
		case strings.Contains(q, "[Forms]"):
			return &core.Result{Rows: []form.Row{{"Form ID": "loop", "Name": "Loop", "Domain": "D", "Table": "T"}}}
		case strings.Contains(q, "[Form Fields]"):
			return &core.Result{Rows: []form.Row{{"Position": int64(0), "Label": "Self", "Child Form ID": "loop"}}}
		default:
			return &core.Result{}
		}
	}
	l := NewQueryLoader(core.ExecutorFunc(func(_ context.Context, q string, _ map[string]any) (*core.Result, error) {
		return rows(q), nil
	}), "")

	_, err := l.LoadForm(context.Background(), "loop")
	assert.ErrorContains(t, err, "nested deeper")
}

func TestIntOf(t *testing.T) {
	assert.Equal(t, 3, intOf(int64(3)))
	assert.Equal(t, 4, intOf(4.0))
	assert.Equal(t, 5, intOf(" 5 "))
	assert.Equal(t, 0, intOf(nil))
}

package metadata

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/dynforms/internal/core"
)

const ordersYAML = `
form:
  id: orders
  name: Orders
  domain: Sales
  table: Orders
sections:
  - id: main
    name: Main
    position: 0
fields:
  - section: main
    position: 0
    label: Name
    column: Name
    type: Text
    mandatory: true
    display: true
  - section: main
    position: 1
    label: Customer
    column: Customer
    type: Link
    linkDomain: CRM
    linkTable: Customers
    linkLabelColumn: Name
  - section: main
    position: 2
    label: Lines
    child:
      form:
        id: lines
        name: Order Lines
        domain: Sales
        table: Order Lines
      linkColumn: Order
      fields:
        - position: 0
          label: Qty
          column: Qty
          type: Number
---
form:
  id: customers
  name: Customers
  domain: CRM
  table: Customers
fields:
  - position: 0
    label: Name
    column: Name
    type: Text
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileLoader_Directory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "orders.yaml", ordersYAML)
	writeFile(t, dir, "notes.txt", "ignored")

	l, err := NewFileLoader(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"customers", "orders"}, l.FormIDs())
	assert.Equal(t, []string{"CRM", "Sales"}, l.Domains())

	def, err := l.LoadForm(context.Background(), "orders")
	require.NoError(t, err)
	assert.Equal(t, "Sales", def.Form.Domain)
	require.Len(t, def.Fields, 3)
	require.NotNil(t, def.Fields[2].Child)
	assert.Equal(t, "Order", def.Fields[2].Child.LinkColumn)

	f, err := def.Build()
	require.NoError(t, err)
	child, ok := f.FindChildForm("lines")
	require.True(t, ok)
	assert.True(t, child.IsChild)
}

func TestFileLoader_UnknownForm(t *testing.T) {
	path := writeFile(t, t.TempDir(), "orders.yml", ordersYAML)
	l, err := NewFileLoader(path)
	require.NoError(t, err)

	_, err = l.LoadForm(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrFormNotFound)
}

func TestFileLoader_Reload(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "forms.yaml", ordersYAML)
	l, err := NewFileLoader(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("form: {id: solo, name: Solo, domain: D, table: T}\n"), 0o644))
	require.NoError(t, l.Reload())
	assert.Equal(t, []string{"solo"}, l.FormIDs())

	require.NoError(t, os.WriteFile(path, []byte("form: {name: NoID}\n"), 0o644))
	assert.Error(t, l.Reload())
	assert.Equal(t, []string{"solo"}, l.FormIDs(), "failed reload keeps previous set")
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing id", "form: {name: X}\n"},
		{"unknown key", "form: {id: x}\nbogus: 1\n"},
		{"bad pattern", "form: {id: x}\nfields:\n  - {column: A, pattern: '('}\n"},
		{"unknown section", "form: {id: x}\nsections:\n  - {id: s1}\nfields:\n  - {column: A, section: s2}\n"},
		{"field without column", "form: {id: x}\nfields:\n  - {label: A}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestFileLoader_DuplicateID(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "form: {id: dup}\n")
	writeFile(t, dir, "b.yaml", "form: {id: dup}\n")

	_, err := NewFileLoader(dir)
	assert.ErrorContains(t, err, "defined twice")
}

func TestFileLoader_MissingPath(t *testing.T) {
	_, err := NewFileLoader(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

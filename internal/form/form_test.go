package form

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderMetadata() (FormMetadata, []SectionMetadata, []FieldMetadata) {
	return FormMetadata{ID: "orders", Name: "Orders", Domain: "Sales", Table: "Orders"},
		[]SectionMetadata{
			{ID: "lines", Name: "Lines", Position: 1},
			{ID: "main", Name: "Main", Position: 0},
		},
		[]FieldMetadata{
			{SectionID: "main", Position: 0, Label: "Name", Column: "Name", DataType: "Text", Mandatory: true, Display: true},
			{SectionID: "main", Position: 1, Label: "Code", Column: "Code", DataType: "Text", Pattern: `^[A-Z]{3}$`},
			{SectionID: "main", Position: 2, Label: "Active", Column: "Active", DataType: "Yes/No", Mandatory: true},
			{SectionID: "main", Position: 3, Label: "Customer", Column: "Customer", DataType: "Link",
				LinkDomain: "Sales", LinkTable: "Customers", LinkLabelColumn: "Name",
				Options: []DropdownOption{{ID: "3", Label: "Initech"}, {ID: "1", Label: "acme"}, {ID: "2", Label: "Globex"}, {ID: "4", Label: " "}}},
			{SectionID: "main", Position: 4, Label: "Tags", Column: "Tags", DataType: "Choice", Multiple: true, Choices: []string{"red", "green", "blue"}},
			{SectionID: "main", Position: 5, Label: "Contract", Column: "Contract", DataType: "Binary", FileNameColumn: "Sales.Orders.Contract Name"},
			{SectionID: "lines", Position: 0, Label: "Lines", Child: &ChildMetadata{
				Form:       FormMetadata{ID: "lines", Name: "Order Lines", Domain: "Sales", Table: "Order Lines"},
				LinkColumn: "Order",
				Fields: []FieldMetadata{
					{Position: 1, Label: "Qty", Column: "Qty", DataType: "Number", Mandatory: true},
					{Position: 0, Label: "Product", Column: "Product", DataType: "Link",
						Options: []DropdownOption{{ID: "10", Label: "Widget"}, {ID: "11", Label: "Gadget"}}},
				},
			}},
		}
}

func newOrderForm(t *testing.T) (*Form, *Form) {
	t.Helper()
	f, err := Build(orderMetadata())
	require.NoError(t, err)
	child, ok := f.FindChildForm("lines")
	require.True(t, ok)
	return f, child
}

func TestBuild_OrdersSectionsAndFields(t *testing.T) {
	f, child := newOrderForm(t)

	require.Len(t, f.Sections, 2)
	assert.Equal(t, "Main", f.Sections[0].Name)
	assert.Equal(t, "Lines", f.Sections[1].Name)
	require.Len(t, f.Sections[0].Fields, 6)

	assert.True(t, child.IsChild)
	assert.Same(t, f, child.Parent())
	assert.Equal(t, "Order", child.LinkColumn)
	require.Len(t, child.Fields(), 2)
	assert.Equal(t, "Product", child.Fields()[0].Column.Name)

	customer, ok := f.Field("Customer")
	require.True(t, ok)
	require.NotNil(t, customer.Column.Link)
	assert.Nil(t, customer.Column.Choice)
	assert.Equal(t, "Customers", customer.Column.Link.TargetTable)
	assert.Equal(t, []string{"acme", "Globex", "Initech"}, customer.Dropdown.Labels([]string{"1", "2", "3", "4"}))
	assert.Len(t, customer.Dropdown.Options, 3)

	assert.True(t, f.HasFields())
	assert.Len(t, f.ChildFields(), 1)
}

func TestBuild_UnknownSection(t *testing.T) {
	_, err := Build(
		FormMetadata{ID: "f"},
		[]SectionMetadata{{ID: "a"}},
		[]FieldMetadata{{SectionID: "b", Column: "X"}},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown section")
}

func TestBuild_InvalidPattern(t *testing.T) {
	_, err := Build(FormMetadata{ID: "f"}, nil, []FieldMetadata{{Column: "X", Pattern: "("}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid validation pattern")
}

func TestSetValue(t *testing.T) {
	f, _ := newOrderForm(t)

	require.NoError(t, f.SetValue("Name", Text("Order A")))
	fld, _ := f.Field("Name")
	assert.True(t, fld.Column.Changed())
	assert.Equal(t, "Order A", fld.Value.Storage())

	assert.Error(t, f.SetValue("Missing", Text("x")))
	assert.Error(t, f.SetValue("Order Lines", Text("x")))
	assert.Error(t, f.UpdateFieldValue(0, 99, Text("x")))

	require.NoError(t, f.UpdateFieldValue(0, 1, Text("ABC")))
	code, _ := f.Field("Code")
	assert.Equal(t, "ABC", code.Value.Storage())
}

func TestLoadRecord_DoesNotMarkChanged(t *testing.T) {
	f, _ := newOrderForm(t)

	f.LoadRecord(Row{RowIDColumn: int64(42), "Name": "Order A", "Active": true, "Customer": "2", "Tags": "red, blue"})

	assert.Equal(t, Persisted(42), f.RowID)
	for _, fld := range f.Fields() {
		assert.False(t, fld.Column.Changed(), fld.Label)
	}
	customer, _ := f.Field("Customer")
	assert.Equal(t, KindID, customer.Value.Kind())
	label, ok := customer.ResolvedLabel()
	require.True(t, ok)
	assert.Equal(t, "Globex", label)

	tags, _ := f.Field("Tags")
	assert.Equal(t, []string{"red", "blue"}, tags.Value.IDs())
}

func TestLoadChildRows_ResolvesLabels(t *testing.T) {
	_, child := newOrderForm(t)

	child.LoadChildRows([]Row{
		{RowIDColumn: int64(1), "Product": "10", "Qty": int64(2)},
		{RowIDColumn: int64(2), "Product": "11", "Product label": "Gadget", "Qty": int64(3)},
	})

	display := child.DisplayRows()
	require.Len(t, display, 2)
	assert.Equal(t, "Widget", display[0]["Product"])
	assert.Equal(t, "Gadget", display[1]["Product"])
	assert.Equal(t, Persisted(2), display[1].ID())

	raw := child.RawRows()
	require.Len(t, raw, 2)
	assert.Equal(t, "10", raw[0]["Product"])
	assert.Equal(t, "Widget", raw[0]["Product label"])
	assert.Equal(t, Persisted(2), child.LastRowID())
}

func TestLoadChildRows_FlattenedLoadsLastRow(t *testing.T) {
	_, child := newOrderForm(t)
	child.Flatten = true

	child.LoadChildRows([]Row{
		{RowIDColumn: int64(1), "Product": "10", "Qty": int64(2)},
		{RowIDColumn: int64(5), "Product": "11", "Qty": int64(7)},
	})

	assert.Equal(t, Persisted(5), child.RowID)
	qty, _ := child.Field("Qty")
	assert.Equal(t, "7", qty.Value.Storage())
}

func TestCopy_IsDeep(t *testing.T) {
	f, child := newOrderForm(t)
	child.LoadChildRows([]Row{{RowIDColumn: int64(1), "Product": "10", "Qty": int64(2)}})
	require.NoError(t, f.SetValue("Name", Text("A")))

	cp := f.Copy()
	require.NoError(t, cp.SetValue("Name", Text("B")))
	cpChild, ok := cp.FindChildForm("lines")
	require.True(t, ok)
	assert.Same(t, cp, cpChild.Parent())
	cpChild.DisplayRows()[0]["Qty"] = int64(99)

	name, _ := f.Field("Name")
	assert.Equal(t, "A", name.Value.Storage())
	assert.Equal(t, int64(2), child.DisplayRows()[0]["Qty"])
}

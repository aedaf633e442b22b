package form

// query.go turns a form's changed fields into parameterized statements.
//
// Statement conventions:
//   - tables and columns are bracket-quoted: [Domain].[Table], [Column]
//   - every statement filters soft-deleted rows with [Deleted] is null
//   - parameters are named @p0, @p1, ... in field order; the row filter is @rowId
//   - a child statement whose parent row is not yet saved carries
//     PlaceholderToken where the parent id belongs
//
// Binary values never appear in the primary statement. They are returned as
// AttachedFiles and written after the primary statement commits.

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// PlaceholderToken stands in for a parent row id that is not yet known.
	PlaceholderToken = "{sourceid}"

	// ReturningSchemaVersion is the first host schema version whose inserts
	// return the new row id with RETURNING.
	ReturningSchemaVersion = 5

	// LegacyInsertTrailer follows inserts on older schema versions.
	LegacyInsertTrailer = "\nSELECT @cinchy_row_id"

	// ParentMatchParam filters child rows related through a parent-match subquery.
	ParentMatchParam = "parentCinchyIdMatch"

	deletedGuard = "[Deleted] is null"
)

// Query is a statement ready for the executor.
type Query struct {
	Text          string
	Params        map[string]any
	AttachedFiles []AttachedFile

	// Insert reports whether the statement creates a row and returns its id.
	Insert bool
	// RowID is the row the statement writes: the persisted id for updates,
	// the pending (or zero) id for inserts.
	RowID ID
}

// HasStatement reports whether the query carries a primary statement.
// File-only updates carry attached files but no text.
func (q *Query) HasStatement() bool {
	return q != nil && strings.TrimSpace(q.Text) != ""
}

// Clone returns a copy that shares no maps with q.
func (q *Query) Clone() *Query {
	if q == nil {
		return nil
	}
	cp := *q
	cp.Params = make(map[string]any, len(q.Params))
	for k, v := range q.Params {
		cp.Params[k] = v
	}
	cp.AttachedFiles = append([]AttachedFile(nil), q.AttachedFiles...)
	return &cp
}

// Substitute returns a copy of q with PlaceholderToken replaced by the
// parent id in the statement text and in every string parameter. A
// parameter equal to the token becomes the integer id.
func (q *Query) Substitute(parentID int64) *Query {
	cp := q.Clone()
	if cp == nil {
		return nil
	}
	id := strconv.FormatInt(parentID, 10)
	cp.Text = strings.ReplaceAll(cp.Text, PlaceholderToken, id)
	for k, v := range cp.Params {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if s == PlaceholderToken {
			cp.Params[k] = parentID
			continue
		}
		cp.Params[k] = strings.ReplaceAll(s, PlaceholderToken, id)
	}
	return cp
}

// HasPlaceholder reports whether q still waits on a parent id.
func (q *Query) HasPlaceholder() bool {
	if q == nil {
		return false
	}
	if strings.Contains(q.Text, PlaceholderToken) {
		return true
	}
	for _, v := range q.Params {
		if s, ok := v.(string); ok && strings.Contains(s, PlaceholderToken) {
			return true
		}
	}
	return false
}

// AttachedFile is a Binary value written by a second pass once the row it
// belongs to has an id.
type AttachedFile struct {
	Domain string
	Table  string
	Column string
	Value  any

	FileNameDomain string
	FileNameTable  string
	FileNameColumn string
	FileName       string
}

// Queries returns the value update followed by the file-name update.
func (a AttachedFile) Queries(rowID int64) []Query {
	out := []Query{{
		Text: fmt.Sprintf("UPDATE %s SET %s = @value WHERE %s = @rowId AND %s",
			TableRef(a.Domain, a.Table), Quote(a.Column), Quote(RowIDColumn), deletedGuard),
		Params: map[string]any{"value": a.Value, "rowId": rowID},
		RowID:  Persisted(rowID),
	}}
	if a.FileNameColumn != "" {
		out = append(out, Query{
			Text: fmt.Sprintf("UPDATE %s SET %s = @fileName WHERE %s = @rowId AND %s",
				TableRef(a.FileNameDomain, a.FileNameTable), Quote(a.FileNameColumn), Quote(RowIDColumn), deletedGuard),
			Params: map[string]any{"fileName": nullIfEmpty(a.FileName), "rowId": rowID},
			RowID:  Persisted(rowID),
		})
	}
	return out
}

// GenerateSaveQuery builds the statement saving the root form's changed
// fields. A persisted rowID yields an update unless isClone is set; any
// other rowID yields an insert returning the new id. Returns nil when no
// field changed.
func (f *Form) GenerateSaveQuery(rowID ID, schemaVersion int, isClone bool) *Query {
	var fields []*Field
	for _, s := range f.Sections {
		if s.ChildOnly {
			continue
		}
		fields = append(fields, s.Fields...)
	}
	assigns, params, files := f.changedAssignments(fields)
	if len(assigns) == 0 && len(files) == 0 {
		return nil
	}

	q := &Query{Params: params, AttachedFiles: files, RowID: rowID}
	if rowID.IsPersisted() && !isClone {
		if len(assigns) > 0 {
			q.Text = f.updateText(assigns)
			q.Params["rowId"] = rowID.Int64()
		}
		return q
	}

	q.Insert = true
	q.RowID = ID{}
	q.Text = f.insertText(assigns, schemaVersion)
	return q
}

// GenerateSaveForChildQuery builds the statement saving the child row the
// form currently holds (f.RowID). New rows are linked to the parent; an
// unsaved parent is referenced through PlaceholderToken. Returns nil when
// no field changed.
func (f *Form) GenerateSaveForChildQuery(parentRowID ID, isClone bool) *Query {
	var fields []*Field
	for _, s := range f.Sections {
		fields = append(fields, s.Fields...)
	}
	assigns, params, files := f.changedAssignments(fields)
	if len(assigns) == 0 && len(files) == 0 {
		return nil
	}

	q := &Query{Params: params, AttachedFiles: files, RowID: f.RowID}
	if f.RowID.IsPersisted() && !isClone {
		if len(assigns) > 0 {
			q.Text = f.updateText(assigns)
			q.Params["rowId"] = f.RowID.Int64()
		}
		return q
	}

	var parent any = PlaceholderToken
	parentText := PlaceholderToken
	if parentRowID.IsPersisted() {
		parent = parentRowID.Int64()
		parentText = parentRowID.String()
	}

	switch {
	case f.LinkColumn != "":
		assigns = withoutColumn(assigns, f.LinkColumn)
		name := "parentId"
		q.Params[name] = parent
		assigns = append(assigns, assignment{column: f.LinkColumn, expr: "@" + name})
	case f.ChildFormParentID != "" && f.ChildFormLinkID != "" && f.parent != nil:
		assigns = withoutColumn(assigns, f.ChildFormLinkID)
		assigns = append(assigns, assignment{
			column: f.ChildFormLinkID,
			expr: fmt.Sprintf("(SELECT %s FROM %s WHERE %s = %s AND %s)",
				Quote(f.ChildFormParentID), TableRef(f.parent.Domain, f.parent.Table),
				Quote(RowIDColumn), parentText, deletedGuard),
		})
	}

	q.Insert = true
	q.Text = f.insertText(assigns, ReturningSchemaVersion)
	return q
}

type assignment struct {
	column string
	expr   string
}

func withoutColumn(assigns []assignment, column string) []assignment {
	out := assigns[:0]
	for _, a := range assigns {
		if a.column != column {
			out = append(out, a)
		}
	}
	return out
}

func (f *Form) changedAssignments(fields []*Field) ([]assignment, map[string]any, []AttachedFile) {
	var assigns []assignment
	params := make(map[string]any)
	var files []AttachedFile
	for _, fld := range fields {
		c := fld.Column
		if fld.ChildForm != nil || c.ViewOnly || !c.Changed() {
			continue
		}
		if c.DataType == TypeBinary {
			files = append(files, f.attachedFile(fld))
			continue
		}
		name := "p" + strconv.Itoa(len(params))
		params[name] = paramValue(c.DataType, fld.Value)
		assigns = append(assigns, assignment{column: c.Name, expr: "@" + name})
	}
	return assigns, params, files
}

func (f *Form) attachedFile(fld *Field) AttachedFile {
	a := AttachedFile{
		Domain: f.Domain,
		Table:  f.Table,
		Column: fld.Column.Name,
		Value:  paramValue(TypeBinary, fld.Value),
	}
	if b := fld.Column.Binary; b != nil {
		a.FileName = b.FileName
		if d, t, c, ok := b.FileNameTarget(); ok {
			a.FileNameDomain, a.FileNameTable, a.FileNameColumn = d, t, c
		}
	}
	return a
}

func (f *Form) updateText(assigns []assignment) string {
	sets := make([]string, len(assigns))
	for i, a := range assigns {
		sets[i] = Quote(a.column) + " = " + a.expr
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s = @rowId AND %s",
		TableRef(f.Domain, f.Table), strings.Join(sets, ", "), Quote(RowIDColumn), deletedGuard)
}

func (f *Form) insertText(assigns []assignment, schemaVersion int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(TableRef(f.Domain, f.Table))
	if len(assigns) == 0 {
		b.WriteString(" DEFAULT VALUES")
	} else {
		cols := make([]string, len(assigns))
		exprs := make([]string, len(assigns))
		for i, a := range assigns {
			cols[i] = Quote(a.column)
			exprs[i] = a.expr
		}
		fmt.Fprintf(&b, " (%s) VALUES (%s)", strings.Join(cols, ", "), strings.Join(exprs, ", "))
	}
	if schemaVersion >= ReturningSchemaVersion {
		b.WriteString(" RETURNING ")
		b.WriteString(Quote(RowIDColumn))
	} else {
		b.WriteString(LegacyInsertTrailer)
	}
	return b.String()
}

// selectColumns lists the row id and every value column of fields, plus the
// file-name companion of Binary columns stored in the same table.
func (f *Form) selectColumns() string {
	cols := []string{Quote(RowIDColumn)}
	for _, fld := range f.Fields() {
		if fld.ChildForm != nil {
			continue
		}
		cols = append(cols, Quote(fld.Column.Name))
		if b := fld.Column.Binary; b != nil {
			if d, t, c, ok := b.FileNameTarget(); ok && d == f.Domain && t == f.Table {
				cols = append(cols, Quote(c)+" AS "+Quote(fld.Column.FileNameKey()))
			}
		}
	}
	return strings.Join(cols, ", ")
}

// GenerateFileNameQueries selects, for each Binary field whose file name
// is stored in another table, that name for rowID under the field's
// "<column>_Name" key. Same-table names come with the row select.
func (f *Form) GenerateFileNameQueries(rowID ID) []Query {
	if !rowID.IsPersisted() {
		return nil
	}
	var out []Query
	for _, fld := range f.Fields() {
		b := fld.Column.Binary
		if fld.ChildForm != nil || b == nil {
			continue
		}
		d, t, c, ok := b.FileNameTarget()
		if !ok || (d == f.Domain && t == f.Table) {
			continue
		}
		out = append(out, Query{
			Text: fmt.Sprintf("SELECT %s AS %s FROM %s WHERE %s = @rowId AND %s",
				Quote(c), Quote(fld.Column.FileNameKey()), TableRef(d, t), Quote(RowIDColumn), deletedGuard),
			Params: map[string]any{"rowId": rowID.Int64()},
			RowID:  rowID,
		})
	}
	return out
}

// GenerateSelectQuery selects the persisted row the form edits.
func (f *Form) GenerateSelectQuery(rowID ID) (*Query, error) {
	if !rowID.IsPersisted() {
		return nil, fmt.Errorf("form %q: cannot select unsaved row %s", f.ID, rowID)
	}
	return &Query{
		Text: fmt.Sprintf("SELECT %s FROM %s WHERE %s = @rowId AND %s",
			f.selectColumns(), TableRef(f.Domain, f.Table), Quote(RowIDColumn), deletedGuard),
		Params: map[string]any{"rowId": rowID.Int64()},
		RowID:  rowID,
	}, nil
}

// GenerateChildSelectQuery selects the committed rows of a child form
// belonging to the parent row. Relations through ChildFormParentID and
// ChildFormLinkID are matched with a subquery on the parent table.
func (f *Form) GenerateChildSelectQuery(parentRowID ID) (*Query, error) {
	if !parentRowID.IsPersisted() {
		return nil, fmt.Errorf("child form %q: parent row is not saved", f.ID)
	}
	var where string
	params := map[string]any{}
	switch {
	case f.LinkColumn != "":
		where = Quote(f.LinkColumn) + " = @parentId"
		params["parentId"] = parentRowID.Int64()
	case f.ChildFormParentID != "" && f.ChildFormLinkID != "" && f.parent != nil:
		where = fmt.Sprintf("%s = (SELECT %s FROM %s WHERE %s = @%s AND %s)",
			Quote(f.ChildFormLinkID), Quote(f.ChildFormParentID),
			TableRef(f.parent.Domain, f.parent.Table), Quote(RowIDColumn), ParentMatchParam, deletedGuard)
		params[ParentMatchParam] = parentRowID.Int64()
	default:
		return nil, fmt.Errorf("child form %q has no relation to its parent", f.ID)
	}
	return &Query{
		Text: fmt.Sprintf("SELECT %s FROM %s WHERE %s AND %s ORDER BY %s",
			f.selectColumns(), TableRef(f.Domain, f.Table), where, deletedGuard, Quote(RowIDColumn)),
		Params: params,
	}, nil
}

// GenerateDeleteQuery deletes one persisted row of the form's table.
func (f *Form) GenerateDeleteQuery(rowID ID) (*Query, error) {
	if !rowID.IsPersisted() {
		return nil, fmt.Errorf("form %q: row %s is not saved", f.ID, rowID)
	}
	return &Query{
		Text: fmt.Sprintf("DELETE FROM %s WHERE %s = @rowId AND %s",
			TableRef(f.Domain, f.Table), Quote(RowIDColumn), deletedGuard),
		Params: map[string]any{"rowId": rowID.Int64()},
		RowID:  rowID,
	}, nil
}

// GenerateLookupQuery selects {id, label} pairs of the form's table using
// its display column. A non-empty filter matches labels containing it.
func (f *Form) GenerateLookupQuery(filter string) (*Query, error) {
	col := f.displayColumn()
	if col == "" {
		return nil, fmt.Errorf("form %q has no display column", f.ID)
	}
	q := &Query{Params: map[string]any{}}
	where := deletedGuard
	if filter = strings.TrimSpace(filter); filter != "" {
		where += " AND " + Quote(col) + " LIKE @filter"
		q.Params["filter"] = "%" + filter + "%"
	}
	q.Text = fmt.Sprintf("SELECT %s AS [id], %s AS [label] FROM %s WHERE %s ORDER BY %s",
		Quote(RowIDColumn), Quote(col), TableRef(f.Domain, f.Table), where, Quote(col))
	return q, nil
}

func (f *Form) displayColumn() string {
	var firstText string
	for _, fld := range f.Fields() {
		if fld.ChildForm != nil {
			continue
		}
		if fld.Column.Display {
			return fld.Column.Name
		}
		if firstText == "" && fld.Column.DataType == TypeText {
			firstText = fld.Column.Name
		}
	}
	return firstText
}

// OptionsQuery selects the {id, label} options of a Link field.
func (fld *Field) OptionsQuery() (*Query, bool) {
	l := fld.Column.Link
	if l == nil || l.TargetTable == "" || l.LabelColumn == "" {
		return nil, false
	}
	where := deletedGuard
	if l.Filter != "" {
		where += " AND (" + l.Filter + ")"
	}
	return &Query{
		Text: fmt.Sprintf("SELECT %s AS [id], %s AS [label] FROM %s WHERE %s",
			Quote(RowIDColumn), Quote(l.LabelColumn), TableRef(l.TargetDomain, l.TargetTable), where),
		Params: map[string]any{},
	}, true
}

// EntitlementPrefix prefixes the alias of each column's editable flag.
const EntitlementPrefix = "entitlement-"

// GenerateEntitlementQuery selects the editable flag of every value column
// for one persisted row.
func (f *Form) GenerateEntitlementQuery(rowID ID) (*Query, error) {
	if !rowID.IsPersisted() {
		return nil, fmt.Errorf("form %q: row %s is not saved", f.ID, rowID)
	}
	var cols []string
	for _, fld := range f.Fields() {
		if fld.ChildForm != nil {
			continue
		}
		cols = append(cols, fmt.Sprintf("editable(%s) AS %s",
			Quote(fld.Column.Name), Quote(EntitlementPrefix+fld.Column.Name)))
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("form %q has no value columns", f.ID)
	}
	return &Query{
		Text: fmt.Sprintf("SELECT %s FROM %s WHERE %s = @rowId AND %s",
			strings.Join(cols, ", "), TableRef(f.Domain, f.Table), Quote(RowIDColumn), deletedGuard),
		Params: map[string]any{"rowId": rowID.Int64()},
		RowID:  rowID,
	}, nil
}

// Quote bracket-quotes an identifier, doubling any closing bracket.
func Quote(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// TableRef returns the bracket-quoted "[domain].[table]" reference.
func TableRef(domain, table string) string {
	return Quote(domain) + "." + Quote(table)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

package metadata

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/JonMunkholm/dynforms/internal/core"
	"github.com/JonMunkholm/dynforms/internal/form"
)

// DefaultDomain holds the host platform's form metadata tables.
const DefaultDomain = "Cinchy"

// maxChildDepth bounds child form nesting so a cycle in the metadata
// tables cannot recurse forever.
const maxChildDepth = 4

// QueryLoader reads form definitions from the host platform's metadata
// tables: [Forms], [Form Sections] and [Form Fields] in one domain.
type QueryLoader struct {
	exec   core.Executor
	domain string
}

// NewQueryLoader creates a loader over exec. An empty domain selects
// DefaultDomain.
func NewQueryLoader(exec core.Executor, domain string) *QueryLoader {
	if domain == "" {
		domain = DefaultDomain
	}
	return &QueryLoader{exec: exec, domain: domain}
}

func (l *QueryLoader) table(name string) string {
	return form.TableRef(l.domain, name)
}

// LoadForm reads the definition of formID together with its child forms.
func (l *QueryLoader) LoadForm(ctx context.Context, formID string) (*form.Definition, error) {
	meta, err := l.formMetadata(ctx, formID)
	if err != nil {
		return nil, err
	}
	sections, err := l.sections(ctx, formID)
	if err != nil {
		return nil, err
	}
	fields, err := l.fields(ctx, formID, 0)
	if err != nil {
		return nil, err
	}
	return &form.Definition{Form: meta, Sections: sections, Fields: fields}, nil
}

func (l *QueryLoader) formMetadata(ctx context.Context, formID string) (form.FormMetadata, error) {
	q := fmt.Sprintf(`SELECT [Form ID], [Name], [Domain], [Table] FROM %s WHERE [Form ID] = @formId AND [Deleted] is null`,
		l.table("Forms"))
	res, err := l.exec.Execute(ctx, q, map[string]any{"formId": formID})
	if err != nil {
		return form.FormMetadata{}, fmt.Errorf("load form %s: %w", formID, err)
	}
	if len(res.Rows) == 0 {
		return form.FormMetadata{}, fmt.Errorf("%w: %s", core.ErrFormNotFound, formID)
	}
	row := res.Rows[0]
	return form.FormMetadata{
		ID:     row.String("Form ID"),
		Name:   row.String("Name"),
		Domain: row.String("Domain"),
		Table:  row.String("Table"),
	}, nil
}

func (l *QueryLoader) sections(ctx context.Context, formID string) ([]form.SectionMetadata, error) {
	q := fmt.Sprintf(`SELECT [Section ID], [Name], [Position], [Child Only] FROM %s WHERE [Form ID] = @formId AND [Deleted] is null ORDER BY [Position]`,
		l.table("Form Sections"))
	res, err := l.exec.Execute(ctx, q, map[string]any{"formId": formID})
	if err != nil {
		return nil, fmt.Errorf("load sections of %s: %w", formID, err)
	}
	out := make([]form.SectionMetadata, 0, len(res.Rows))
	for _, row := range res.Rows {
		out = append(out, form.SectionMetadata{
			ID:        row.String("Section ID"),
			Name:      row.String("Name"),
			Position:  intOf(row["Position"]),
			ChildOnly: boolOf(row["Child Only"]),
		})
	}
	return out, nil
}

var fieldColumns = []string{
	"Section ID", "Position", "Label", "Column", "Data Type", "Multiple",
	"Mandatory", "View Only", "Display", "Pattern", "Linked To",
	"Link Domain", "Link Table", "Link Label Column", "Link Filter",
	"Choices", "File Name Column", "Display Format",
	"Child Form ID", "Flatten", "Link Column", "Parent Column", "Child Link Column",
}

func (l *QueryLoader) fields(ctx context.Context, formID string, depth int) ([]form.FieldMetadata, error) {
	cols := make([]string, len(fieldColumns))
	for i, c := range fieldColumns {
		cols[i] = form.Quote(c)
	}
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE [Form ID] = @formId AND [Deleted] is null ORDER BY [Position]`,
		strings.Join(cols, ", "), l.table("Form Fields"))
	res, err := l.exec.Execute(ctx, q, map[string]any{"formId": formID})
	if err != nil {
		return nil, fmt.Errorf("load fields of %s: %w", formID, err)
	}

	out := make([]form.FieldMetadata, 0, len(res.Rows))
	for _, row := range res.Rows {
		fm := form.FieldMetadata{
			SectionID:       row.String("Section ID"),
			Position:        intOf(row["Position"]),
			Label:           row.String("Label"),
			Column:          row.String("Column"),
			DataType:        row.String("Data Type"),
			Multiple:        boolOf(row["Multiple"]),
			Mandatory:       boolOf(row["Mandatory"]),
			ViewOnly:        boolOf(row["View Only"]),
			Display:         boolOf(row["Display"]),
			Pattern:         row.String("Pattern"),
			LinkedTo:        row.String("Linked To"),
			LinkDomain:      row.String("Link Domain"),
			LinkTable:       row.String("Link Table"),
			LinkLabelColumn: row.String("Link Label Column"),
			LinkFilter:      row.String("Link Filter"),
			FileNameColumn:  row.String("File Name Column"),
			DisplayFormat:   row.String("Display Format"),
		}
		if choices := row.String("Choices"); choices != "" {
			fm.Choices = form.SplitLabels(choices)
		}

		if childID := row.String("Child Form ID"); childID != "" {
			if depth >= maxChildDepth {
				return nil, fmt.Errorf("form %s: child forms nested deeper than %d", formID, maxChildDepth)
			}
			child, err := l.child(ctx, childID, depth+1)
			if err != nil {
				return nil, err
			}
			child.Flatten = boolOf(row["Flatten"])
			child.LinkColumn = row.String("Link Column")
			child.ParentID = row.String("Parent Column")
			child.LinkID = row.String("Child Link Column")
			fm.Child = child
		}
		out = append(out, fm)
	}
	return out, nil
}

func (l *QueryLoader) child(ctx context.Context, formID string, depth int) (*form.ChildMetadata, error) {
	meta, err := l.formMetadata(ctx, formID)
	if err != nil {
		return nil, fmt.Errorf("child form: %w", err)
	}
	sections, err := l.sections(ctx, formID)
	if err != nil {
		return nil, err
	}
	fields, err := l.fields(ctx, formID, depth)
	if err != nil {
		return nil, err
	}
	return &form.ChildMetadata{Form: meta, Sections: sections, Fields: fields}, nil
}

func intOf(v any) int {
	switch t := v.(type) {
	case int64:
		return int(t)
	case int:
		return t
	case float64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(t))
		return n
	default:
		return 0
	}
}

func boolOf(v any) bool {
	return form.ValueFromAny(form.TypeYesNo, false, v).BoolValue()
}

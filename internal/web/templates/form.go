// Package templates renders the HTML form view and error alerts.
package templates

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/dynforms/internal/form"
)

// FormPage renders a complete page for one editing session.
func FormPage(sessionID string, f *form.Form, warnings []string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString("<!DOCTYPE html><html lang=\"en\"><head><meta charset=\"utf-8\"><title>")
		b.WriteString(templ.EscapeString(f.Name))
		b.WriteString("</title></head><body>")
		fmt.Fprintf(&b, `<main data-session="%s">`, templ.EscapeString(sessionID))
		for _, msg := range warnings {
			fmt.Fprintf(&b, `<p class="warning">%s</p>`, templ.EscapeString(msg))
		}
		if _, err := io.WriteString(w, b.String()); err != nil {
			return err
		}
		if err := FormBody(f).Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, "</main></body></html>")
		return err
	})
}

// FormBody renders a form's sections and fields. Child forms render as a
// table of their display rows.
func FormBody(f *form.Form) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var b strings.Builder
		writeForm(&b, f)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

func writeForm(b *strings.Builder, f *form.Form) {
	fmt.Fprintf(b, `<form class="dynamic-form" data-form="%s" data-row="%s"><h1>%s</h1>`,
		templ.EscapeString(f.ID), templ.EscapeString(f.RowID.String()), templ.EscapeString(f.Name))
	invalid := make(map[string]bool)
	for _, label := range f.ErrorFields() {
		invalid[label] = true
	}
	for si, s := range f.Sections {
		if s.ChildOnly {
			continue
		}
		fmt.Fprintf(b, `<fieldset><legend>%s</legend>`, templ.EscapeString(s.Name))
		for fi, fld := range s.Fields {
			if fld.ChildForm != nil {
				writeChildTable(b, fld.ChildForm)
				continue
			}
			writeField(b, si, fi, fld, invalid[fld.Label])
		}
		b.WriteString("</fieldset>")
	}
	b.WriteString("</form>")
}

func writeField(b *strings.Builder, si, fi int, fld *form.Field, invalid bool) {
	c := fld.Column
	name := fmt.Sprintf("f-%d-%d", si, fi)
	class := "field"
	if invalid {
		class += " invalid"
	}
	label := templ.EscapeString(fld.Label)
	if c.Mandatory {
		label += " *"
	}
	fmt.Fprintf(b, `<div class="%s"><label for="%s">%s</label>`, class, name, label)

	disabled := ""
	if c.ViewOnly || !c.CanEdit {
		disabled = " disabled"
	}
	value := templ.EscapeString(fld.Value.Storage())

	switch {
	case c.DataType == form.TypeYesNo:
		checked := ""
		if fld.Value.BoolValue() {
			checked = " checked"
		}
		fmt.Fprintf(b, `<input type="checkbox" id="%s" name="%s"%s%s>`, name, name, checked, disabled)
	case fld.Dropdown != nil:
		multiple := ""
		if c.Multiple {
			multiple = " multiple"
		}
		selected := make(map[string]bool)
		for _, id := range fld.Value.IDs() {
			selected[id] = true
		}
		fmt.Fprintf(b, `<select id="%s" name="%s"%s%s>`, name, name, multiple, disabled)
		for _, opt := range fld.Dropdown.Options {
			sel := ""
			if selected[opt.ID] {
				sel = " selected"
			}
			fmt.Fprintf(b, `<option value="%s"%s>%s</option>`,
				templ.EscapeString(opt.ID), sel, templ.EscapeString(opt.Label))
		}
		b.WriteString("</select>")
	case c.DataType == form.TypeBinary:
		fileName := ""
		if c.Binary != nil {
			fileName = c.Binary.FileName
		}
		fmt.Fprintf(b, `<input type="file" id="%s" name="%s"%s><span class="file-name">%s</span>`,
			name, name, disabled, templ.EscapeString(fileName))
	default:
		fmt.Fprintf(b, `<input type="%s" id="%s" name="%s" value="%s"%s>`,
			inputType(c.DataType), name, name, value, disabled)
	}
	b.WriteString("</div>")
}

func inputType(dt form.DataType) string {
	switch dt {
	case form.TypeNumber:
		return "number"
	case form.TypeDateTime:
		return "date"
	default:
		return "text"
	}
}

func writeChildTable(b *strings.Builder, child *form.Form) {
	var cols []*form.Field
	for _, fld := range child.Fields() {
		if fld.ChildForm == nil {
			cols = append(cols, fld)
		}
	}
	fmt.Fprintf(b, `<table class="child-form" data-form="%s"><caption>%s</caption><thead><tr>`,
		templ.EscapeString(child.ID), templ.EscapeString(child.Name))
	for _, fld := range cols {
		fmt.Fprintf(b, "<th>%s</th>", templ.EscapeString(fld.Label))
	}
	b.WriteString("</tr></thead><tbody>")
	for _, row := range child.DisplayRows() {
		fmt.Fprintf(b, `<tr data-row="%s">`, templ.EscapeString(row.ID().String()))
		for _, fld := range cols {
			fmt.Fprintf(b, "<td>%s</td>", templ.EscapeString(row.String(fld.Column.Name)))
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</tbody></table>")
}

// ErrorAlert renders a user-facing error with its suggested action.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var b strings.Builder
		fmt.Fprintf(&b, `<div class="alert alert-error" role="alert" data-code="%s"><p>%s</p>`,
			templ.EscapeString(code), templ.EscapeString(message))
		if action != "" {
			fmt.Fprintf(&b, `<p class="action">%s</p>`, templ.EscapeString(action))
		}
		b.WriteString("</div>")
		_, err := io.WriteString(w, b.String())
		return err
	})
}

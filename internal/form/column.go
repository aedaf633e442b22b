package form

import (
	"fmt"
	"regexp"
	"strings"
)

// DataType is the closed set of column kinds a form can edit.
type DataType int

const (
	TypeText DataType = iota
	TypeNumber
	TypeLink
	TypeChoice
	TypeBinary
	TypeYesNo
	TypeDateTime
)

// ParseDataType maps the host platform's data type names onto DataType.
// Unknown names are edited as plain text.
func ParseDataType(s string) DataType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "number":
		return TypeNumber
	case "link":
		return TypeLink
	case "choice":
		return TypeChoice
	case "binary":
		return TypeBinary
	case "yes/no":
		return TypeYesNo
	case "date and time", "date", "datetime":
		return TypeDateTime
	default:
		return TypeText
	}
}

func (t DataType) String() string {
	switch t {
	case TypeNumber:
		return "Number"
	case TypeLink:
		return "Link"
	case TypeChoice:
		return "Choice"
	case TypeBinary:
		return "Binary"
	case TypeYesNo:
		return "Yes/No"
	case TypeDateTime:
		return "Date and Time"
	default:
		return "Text"
	}
}

// HasOptions reports whether values of this type are chosen from a dropdown.
func (t DataType) HasOptions() bool {
	return t == TypeLink || t == TypeChoice
}

// LinkOptions describes the table a Link column points at.
type LinkOptions struct {
	TargetDomain string
	TargetTable  string
	LabelColumn  string // column shown as the option label
	TargetColumn string // linked column name, used for "<TargetColumn> label" keys
	Filter       string // optional extra predicate for the option query
}

// ChoiceOptions lists the allowed values of a Choice column.
type ChoiceOptions struct {
	Values []string
}

// BinaryOptions locates the companion column recording an uploaded file's name.
type BinaryOptions struct {
	FileNameColumn string // "Domain.Table.Column"
	FileName       string
}

// FileNameTarget splits FileNameColumn into its parts.
func (b *BinaryOptions) FileNameTarget() (domain, table, column string, ok bool) {
	if b == nil || b.FileNameColumn == "" {
		return "", "", "", false
	}
	parts := strings.SplitN(b.FileNameColumn, ".", 3)
	if len(parts) != 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// DateTimeOptions carries display formatting for date columns.
type DateTimeOptions struct {
	DisplayFormat string
}

// Column is the metadata of one editable column. Only the option struct
// matching DataType is ever set.
type Column struct {
	Name      string
	Label     string
	DataType  DataType
	Multiple  bool
	Mandatory bool
	ViewOnly  bool
	CanEdit   bool
	Display   bool // the table's display column

	Link     *LinkOptions
	Choice   *ChoiceOptions
	Binary   *BinaryOptions
	DateTime *DateTimeOptions

	pattern *regexp.Regexp
	changed bool
}

// NewColumn builds a column and compiles its validation pattern, if any.
func NewColumn(name string, dt DataType, pattern string) (*Column, error) {
	c := &Column{Name: name, Label: name, DataType: dt, CanEdit: true}
	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("column %q: invalid validation pattern: %w", name, err)
		}
		c.pattern = re
	}
	switch dt {
	case TypeLink:
		c.Link = &LinkOptions{}
	case TypeChoice:
		c.Choice = &ChoiceOptions{}
	case TypeBinary:
		c.Binary = &BinaryOptions{}
	case TypeDateTime:
		c.DateTime = &DateTimeOptions{}
	}
	return c, nil
}

// Pattern returns the compiled validation pattern, or nil.
func (c *Column) Pattern() *regexp.Regexp {
	return c.pattern
}

// MarkChanged flags the column for inclusion in the next save statement.
// The flag is only cleared by rebuilding the form.
func (c *Column) MarkChanged() {
	c.changed = true
}

// Changed reports whether the column has been edited since the form was built.
func (c *Column) Changed() bool {
	return c.changed
}

// LabelKey is the companion row key holding the human-readable label.
func (c *Column) LabelKey() string {
	return c.Name + LabelSuffix
}

// FileNameKey is the companion row key holding an uploaded file's name.
func (c *Column) FileNameKey() string {
	return c.Name + FileNameSuffix
}

func (c *Column) clone() *Column {
	cp := *c
	if c.Link != nil {
		l := *c.Link
		cp.Link = &l
	}
	if c.Choice != nil {
		ch := ChoiceOptions{Values: append([]string(nil), c.Choice.Values...)}
		cp.Choice = &ch
	}
	if c.Binary != nil {
		b := *c.Binary
		cp.Binary = &b
	}
	if c.DateTime != nil {
		d := *c.DateTime
		cp.DateTime = &d
	}
	return &cp
}

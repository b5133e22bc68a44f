package unl

import "strings"

// Record is one projected line: values in schema order, nil meaning NULL.
type Record struct {
	schema *Schema
	values []*string
	line   int
}

// NewRecord builds a record from values already in schema order.
// Missing trailing values are NULL, extra values are dropped.
func NewRecord(schema *Schema, values []*string, line int) Record {
	vals := make([]*string, schema.Len())
	copy(vals, values)
	return Record{schema: schema, values: vals, line: line}
}

// Schema returns the schema the record was projected onto.
func (r Record) Schema() *Schema { return r.schema }

// Line returns the 1-based source line, or 0 if unknown.
func (r Record) Line() int { return r.line }

// Get returns a field's text; ok is false for NULL or an unknown field.
func (r Record) Get(field string) (string, bool) {
	if r.schema == nil {
		return "", false
	}
	i, ok := r.schema.Index(field)
	if !ok || r.values[i] == nil {
		return "", false
	}
	return *r.values[i], true
}

// Values returns a copy of the raw values.
func (r Record) Values() []*string {
	out := make([]*string, len(r.values))
	copy(out, r.values)
	return out
}

// String renders "field=value" pairs in schema order, NULL for absent values.
func (r Record) String() string {
	if r.schema == nil {
		return ""
	}
	var b strings.Builder
	for i, name := range r.schema.Fields {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(name)
		b.WriteByte('=')
		if v := r.values[i]; v != nil {
			b.WriteString(*v)
		} else {
			b.WriteString("NULL")
		}
	}
	return b.String()
}

package content

import (
	"sort"
	"strings"
)

// Schema tells which fields a content kind declares.
type Schema interface {
	HasField(kind, field string) bool
}

// Types is a Schema declared as kind -> field ids.
type Types map[string][]string

// HasField reports whether kind declares field.
func (t Types) HasField(kind, field string) bool {
	for _, f := range t[kind] {
		if f == field {
			return true
		}
	}
	return false
}

// Kinds returns the declared kinds, sorted.
func (t Types) Kinds() []string {
	out := make([]string, 0, len(t))
	for k := range t {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// AnyField accepts every field on every kind.
type AnyField struct{}

func (AnyField) HasField(string, string) bool { return true }

// Builder accumulates field values for one entity.
type Builder struct {
	kind   string
	schema Schema
	fields []Field
	index  map[string]int
}

// NewBuilder starts an empty entity of kind. A nil schema accepts every field.
func NewBuilder(kind string, schema Schema) *Builder {
	if schema == nil {
		schema = AnyField{}
	}
	return &Builder{
		kind:   strings.TrimSpace(kind),
		schema: schema,
		index:  make(map[string]int),
	}
}

// Child starts an empty entity of kind checked against the same schema.
func (b *Builder) Child(kind string) *Builder {
	return NewBuilder(kind, b.schema)
}

// Kind returns the entity kind being built.
func (b *Builder) Kind() string { return b.kind }

// HasField reports whether the entity kind declares field id.
func (b *Builder) HasField(id string) bool {
	return b.schema.HasField(b.kind, id)
}

// Append adds v to field id. Undeclared fields are ignored; callers check HasField first.
func (b *Builder) Append(id string, v Value) {
	if v == nil || !b.HasField(id) {
		return
	}
	if i, ok := b.index[id]; ok {
		b.fields[i].Values = append(b.fields[i].Values, v)
		return
	}
	b.index[id] = len(b.fields)
	b.fields = append(b.fields, Field{ID: id, Values: []Value{v}})
}

// Build returns a copy of the entity; later Appends do not affect it.
func (b *Builder) Build() Entity {
	fields := make([]Field, len(b.fields))
	for i, f := range b.fields {
		vals := make([]Value, len(f.Values))
		copy(vals, f.Values)
		fields[i] = Field{ID: f.ID, Values: vals}
	}
	return Entity{Kind: b.kind, Fields: fields}
}

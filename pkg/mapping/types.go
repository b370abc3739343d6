package mapping

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adda-Baaj/newsroom-bridge/pkg/content"
)

// Kind identifies how a field is populated.
type Kind int

const (
	KindUnknown Kind = iota
	KindText
	KindImage
	KindDocumentBody
	KindNestedGroup
)

var kindNames = map[Kind]string{
	KindText:         "text",
	KindImage:        "image",
	KindDocumentBody: "document-body",
	KindNestedGroup:  "nested-group",
}

// aliases accepted in config files, matching the field type names of the CMS exports.
var kindAliases = map[string]Kind{
	"nitf":       KindDocumentBody,
	"paragraphs": KindNestedGroup,
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a config type name to a Kind.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	if k, ok := kindAliases[s]; ok {
		return k, nil
	}
	return KindUnknown, fmt.Errorf("unknown field type %q", s)
}

// BodyFormat selects how a document body is rendered.
type BodyFormat int

const (
	// BodyMarkup keeps the body.content element serialized as XML.
	BodyMarkup BodyFormat = iota
	// BodyText flattens the body into plain-text paragraphs.
	BodyText
)

// FieldSpec is the kind-specific payload of a FieldMapping. Implementations
// are TextSpec, ImageSpec, DocumentBodySpec and NestedGroupSpec.
type FieldSpec interface {
	Kind() Kind
	isFieldSpec()
}

// TextSpec copies the string found at Path.
type TextSpec struct {
	Path string
}

// ImageSpec downloads associated pictures.
type ImageSpec struct {
	Multiple bool
}

// DocumentBodySpec extracts the body of the linked NITF document.
type DocumentBodySpec struct {
	Format BodyFormat
}

// NestedGroupSpec builds one child entity per nested kind, in order.
type NestedGroupSpec struct {
	Nested []NestedEntity
}

// NestedEntity is one child kind of a nested group and its field mappings.
type NestedEntity struct {
	Kind   string
	Fields []FieldMapping
}

func (TextSpec) Kind() Kind         { return KindText }
func (ImageSpec) Kind() Kind        { return KindImage }
func (DocumentBodySpec) Kind() Kind { return KindDocumentBody }
func (NestedGroupSpec) Kind() Kind  { return KindNestedGroup }

func (TextSpec) isFieldSpec()         {}
func (ImageSpec) isFieldSpec()        {}
func (DocumentBodySpec) isFieldSpec() {}
func (NestedGroupSpec) isFieldSpec()  {}

// FieldMapping populates field ID according to Spec.
type FieldMapping struct {
	ID   string
	Spec FieldSpec
}

// EntityMapping is the ordered list of field mappings for one entity kind.
type EntityMapping struct {
	Kind   string
	Fields []FieldMapping
}

// Config holds the entity mappings keyed by kind, plus the content types they target.
type Config struct {
	entities map[string]EntityMapping
	types    content.Types
}

// NewConfig builds a Config from mappings. Duplicate kinds are rejected.
func NewConfig(types content.Types, mappings ...EntityMapping) (*Config, error) {
	cfg := &Config{
		entities: make(map[string]EntityMapping, len(mappings)),
		types:    types,
	}
	for _, m := range mappings {
		if _, dup := cfg.entities[m.Kind]; dup {
			return nil, fmt.Errorf("duplicate entity kind %q", m.Kind)
		}
		cfg.entities[m.Kind] = m
	}
	return cfg, nil
}

// Lookup returns the mapping for kind.
func (c *Config) Lookup(kind string) (EntityMapping, bool) {
	if c == nil {
		return EntityMapping{}, false
	}
	m, ok := c.entities[kind]
	return m, ok
}

// Kinds returns the mapped entity kinds, sorted.
func (c *Config) Kinds() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.entities))
	for k := range c.entities {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Schema returns the declared content types, or content.AnyField when none are declared.
func (c *Config) Schema() content.Schema {
	if c == nil || len(c.types) == 0 {
		return content.AnyField{}
	}
	return c.types
}

// Types returns the declared content types. It is nil when the config declares none.
func (c *Config) Types() content.Types {
	if c == nil {
		return nil
	}
	return c.types
}

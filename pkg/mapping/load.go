package mapping

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Adda-Baaj/newsroom-bridge/pkg/content"
)

// fileConfig is the on-disk layout of a mapping file.
type fileConfig struct {
	ContentTypes map[string][]string  `json:"content_types" yaml:"content_types"`
	Entities     map[string]rawEntity `json:"entities" yaml:"entities"`
}

type rawEntity struct {
	Fields []rawField `json:"fields" yaml:"fields"`
}

type rawField struct {
	ID       string      `json:"id" yaml:"id"`
	Type     string      `json:"type" yaml:"type"`
	Path     string      `json:"path" yaml:"path"`
	Multiple bool        `json:"multiple" yaml:"multiple"`
	Format   string      `json:"format" yaml:"format"`
	Nested   []rawNested `json:"nested" yaml:"nested"`
}

type rawNested struct {
	Kind   string     `json:"kind" yaml:"kind"`
	Fields []rawField `json:"fields" yaml:"fields"`
}

// Load reads a YAML or JSON mapping file. ${VAR} references are expanded from the environment.
func Load(path string) (*Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("mapping file path is empty")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping file: %w", err)
	}

	return Parse([]byte(os.ExpandEnv(string(raw))), filepath.Ext(path))
}

// Parse decodes mapping file content. ext picks the decoder; an empty ext tries YAML then JSON.
func Parse(data []byte, ext string) (*Config, error) {
	file, err := decodeFile(data, ext)
	if err != nil {
		return nil, err
	}
	if len(file.Entities) == 0 {
		return nil, errors.New("mapping file contains no entities")
	}

	types := sanitizeTypes(file.ContentTypes)

	kinds := make([]string, 0, len(file.Entities))
	for kind := range file.Entities {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	mappings := make([]EntityMapping, 0, len(kinds))
	for _, kind := range kinds {
		name := strings.TrimSpace(kind)
		if name == "" {
			return nil, errors.New("entities: kind name is empty")
		}
		fields, err := buildFields(file.Entities[kind].Fields, "entities."+name)
		if err != nil {
			return nil, err
		}
		if err := checkDeclared(types, name, fields, "entities."+name); err != nil {
			return nil, err
		}
		mappings = append(mappings, EntityMapping{Kind: name, Fields: fields})
	}

	return NewConfig(types, mappings...)
}

func decodeFile(data []byte, ext string) (fileConfig, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	decoders := []struct {
		name string
		ext  string
		fn   func([]byte, any) error
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	var lastErr error
	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var file fileConfig
		if err := d.fn(data, &file); err != nil {
			lastErr = fmt.Errorf("decode %s mapping: %w", d.name, err)
			continue
		}
		return file, nil
	}
	if lastErr != nil {
		return fileConfig{}, lastErr
	}
	return fileConfig{}, errors.New("mapping file format not recognized (expected YAML or JSON)")
}

func sanitizeTypes(in map[string][]string) content.Types {
	if len(in) == 0 {
		return nil
	}
	out := make(content.Types, len(in))
	for kind, fields := range in {
		kind = strings.TrimSpace(kind)
		if kind == "" {
			continue
		}
		clean := make([]string, 0, len(fields))
		for _, f := range fields {
			if f = strings.TrimSpace(f); f != "" {
				clean = append(clean, f)
			}
		}
		out[kind] = clean
	}
	return out
}

// checkDeclared rejects kinds missing from a non-empty content_types block,
// since the materializer would drop every field of such an entity.
func checkDeclared(types content.Types, kind string, fields []FieldMapping, where string) error {
	if len(types) == 0 {
		return nil
	}
	if _, ok := types[kind]; !ok {
		return fmt.Errorf("%s: kind %q is not declared in content_types", where, kind)
	}
	for i, f := range fields {
		group, ok := f.Spec.(NestedGroupSpec)
		if !ok {
			continue
		}
		for j, n := range group.Nested {
			at := fmt.Sprintf("%s.fields[%d].nested[%d]", where, i, j)
			if err := checkDeclared(types, n.Kind, n.Fields, at); err != nil {
				return err
			}
		}
	}
	return nil
}

func buildFields(raw []rawField, where string) ([]FieldMapping, error) {
	out := make([]FieldMapping, 0, len(raw))
	for i, rf := range raw {
		at := fmt.Sprintf("%s.fields[%d]", where, i)
		fm, err := buildField(rf, at)
		if err != nil {
			return nil, err
		}
		out = append(out, fm)
	}
	return out, nil
}

func buildField(rf rawField, at string) (FieldMapping, error) {
	id := strings.TrimSpace(rf.ID)
	if id == "" {
		return FieldMapping{}, fmt.Errorf("%s: id is required", at)
	}
	kind, err := ParseKind(rf.Type)
	if err != nil {
		return FieldMapping{}, fmt.Errorf("%s: %w", at, err)
	}

	switch kind {
	case KindText:
		path := strings.Trim(strings.TrimSpace(rf.Path), ".")
		if path == "" {
			return FieldMapping{}, fmt.Errorf("%s: path is required for text field %q", at, id)
		}
		return FieldMapping{ID: id, Spec: TextSpec{Path: path}}, nil

	case KindImage:
		return FieldMapping{ID: id, Spec: ImageSpec{Multiple: rf.Multiple}}, nil

	case KindDocumentBody:
		format := BodyMarkup
		switch strings.ToLower(strings.TrimSpace(rf.Format)) {
		case "", "markup", "xml":
		case "text":
			format = BodyText
		default:
			return FieldMapping{}, fmt.Errorf("%s: unknown body format %q", at, rf.Format)
		}
		return FieldMapping{ID: id, Spec: DocumentBodySpec{Format: format}}, nil

	case KindNestedGroup:
		if len(rf.Nested) == 0 {
			return FieldMapping{}, fmt.Errorf("%s: nested is required for nested-group field %q", at, id)
		}
		nested := make([]NestedEntity, 0, len(rf.Nested))
		for j, rn := range rf.Nested {
			nk := strings.TrimSpace(rn.Kind)
			if nk == "" {
				return FieldMapping{}, fmt.Errorf("%s.nested[%d]: kind is required", at, j)
			}
			fields, err := buildFields(rn.Fields, fmt.Sprintf("%s.nested[%d]", at, j))
			if err != nil {
				return FieldMapping{}, err
			}
			nested = append(nested, NestedEntity{Kind: nk, Fields: fields})
		}
		return FieldMapping{ID: id, Spec: NestedGroupSpec{Nested: nested}}, nil
	}

	return FieldMapping{}, fmt.Errorf("%s: unsupported field type %s", at, kind)
}

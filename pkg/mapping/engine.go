package mapping

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/Adda-Baaj/newsroom-bridge/internal/logger"
	"github.com/Adda-Baaj/newsroom-bridge/pkg/apnews"
	"github.com/Adda-Baaj/newsroom-bridge/pkg/assets"
	"github.com/Adda-Baaj/newsroom-bridge/pkg/content"
)

// ErrUnknownEntityKind is returned when the config has no mapping for the requested kind.
var ErrUnknownEntityKind = errors.New("unknown entity kind")

// Remote is the part of the news API client the mapper needs for follow-up fetches.
type Remote interface {
	ContentByID(ctx context.Context, itemID string, params url.Values) (apnews.Document, error)
	NITFByURL(ctx context.Context, href string) ([]byte, error)
	FetchWithRedirectCapture(ctx context.Context, rawURL string) (string, []byte, error)
	FetchRaw(ctx context.Context, rawURL string) ([]byte, error)
	APIKey() string
}

// Mapper turns API documents into content entities.
type Mapper struct {
	remote Remote
	assets assets.Store
	policy assets.CollisionPolicy
	log    logger.Logger
}

// MapperOption customizes a Mapper.
type MapperOption func(*Mapper)

// WithCollisionPolicy sets how saved pictures treat an existing file of the same name.
// The default is assets.Replace.
func WithCollisionPolicy(p assets.CollisionPolicy) MapperOption {
	return func(m *Mapper) { m.policy = p }
}

// NewMapper builds a Mapper.
func NewMapper(remote Remote, store assets.Store, log logger.Logger, opts ...MapperOption) *Mapper {
	m := &Mapper{
		remote: remote,
		assets: store,
		policy: assets.Replace,
		log:    logger.Ensure(log),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MapDocument builds an entity of kind from doc using the mapping in cfg.
//
// Fields are checked against cfg's content types and mapped in configured order.
// Missing or malformed data leaves a field unset; transport errors from follow-up
// fetches abort the whole call and no entity is returned.
func (m *Mapper) MapDocument(ctx context.Context, kind string, doc map[string]any, cfg *Config) (content.Entity, error) {
	em, ok := cfg.Lookup(kind)
	if !ok {
		return content.Entity{}, fmt.Errorf("%w %q", ErrUnknownEntityKind, kind)
	}

	b := content.NewBuilder(kind, cfg.Schema())
	for _, f := range em.Fields {
		if err := m.mapField(ctx, b, f, doc); err != nil {
			return content.Entity{}, fmt.Errorf("map %s.%s: %w", kind, f.ID, err)
		}
	}
	return b.Build(), nil
}

func (m *Mapper) mapField(ctx context.Context, b *content.Builder, f FieldMapping, doc map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch spec := f.Spec.(type) {
	case TextSpec:
		m.mapText(b, f.ID, spec, doc)
		return nil
	case ImageSpec:
		return m.mapImage(ctx, b, f.ID, spec, doc)
	case DocumentBodySpec:
		return m.mapDocumentBody(ctx, b, f.ID, spec, doc)
	case NestedGroupSpec:
		return m.mapNestedGroup(ctx, b, f.ID, spec, doc)
	default:
		return fmt.Errorf("field %q has unsupported spec %T", f.ID, f.Spec)
	}
}

func (m *Mapper) mapText(b *content.Builder, id string, spec TextSpec, doc map[string]any) {
	s, ok := Resolve(doc, spec.Path).(string)
	if !ok {
		m.log.DebugObj("text field left unset", "mapping", map[string]any{
			"kind":  b.Kind(),
			"field": id,
			"path":  spec.Path,
		})
		return
	}
	if b.HasField(id) {
		b.Append(id, content.Text(s))
	}
}

// mapNestedGroup appends one child per nested kind, even when the child ended up empty.
func (m *Mapper) mapNestedGroup(ctx context.Context, b *content.Builder, id string, spec NestedGroupSpec, doc map[string]any) error {
	for _, nested := range spec.Nested {
		child := b.Child(nested.Kind)
		for _, f := range nested.Fields {
			if err := m.mapField(ctx, child, f, doc); err != nil {
				return fmt.Errorf("%s.%s: %w", nested.Kind, f.ID, err)
			}
		}
		if b.HasField(id) {
			b.Append(id, child.Build())
		}
	}
	return nil
}

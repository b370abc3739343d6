// Package importer turns news API items into stored content records.
package importer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Adda-Baaj/newsroom-bridge/internal/logger"
	"github.com/Adda-Baaj/newsroom-bridge/pkg/apnews"
	"github.com/Adda-Baaj/newsroom-bridge/pkg/content"
	"github.com/Adda-Baaj/newsroom-bridge/pkg/mapping"
	"github.com/Adda-Baaj/newsroom-bridge/pkg/publishers"
	"github.com/Adda-Baaj/newsroom-bridge/pkg/storage"
)

// Remote is the news API surface used by the service.
type Remote interface {
	mapping.Remote
	Search(ctx context.Context, params url.Values) (apnews.Document, error)
	Feed(ctx context.Context, params url.Values) (apnews.Document, error)
	NextPage(ctx context.Context, nextPageURL string) (apnews.Document, error)
}

// Publisher receives import events.
type Publisher interface {
	Publish(ctx context.Context, evt publishers.Event) error
}

// Options tune listing and sync behavior.
type Options struct {
	PageSize int
	// UseFeed pages with seq instead of page, matching the feed endpoint.
	UseFeed bool
	// MaxItemFailures is how many syncs may fail on the same item before it is
	// given up on. Zero means 3.
	MaxItemFailures int
}

// Service maps, stores and announces imported items.
type Service struct {
	remote   Remote
	mapper   *mapping.Mapper
	mappings *mapping.Config
	store    storage.Store
	pub      Publisher
	log      logger.Logger
	opts     Options
}

// New builds a Service. pub may be nil.
func New(remote Remote, mapper *mapping.Mapper, mappings *mapping.Config, store storage.Store, pub Publisher, log logger.Logger, opts Options) *Service {
	return &Service{
		remote:   remote,
		mapper:   mapper,
		mappings: mappings,
		store:    store,
		pub:      pub,
		log:      logger.Ensure(log),
		opts:     opts,
	}
}

// Kinds lists the entity kinds an item can be cloned into.
func (s *Service) Kinds() []string {
	return s.mappings.Kinds()
}

// Preview maps itemID into kind without storing it.
func (s *Service) Preview(ctx context.Context, kind, itemID string) (content.Entity, error) {
	_, entity, err := s.mapItem(ctx, kind, itemID)
	return entity, err
}

// ImportResult is the outcome of one import.
type ImportResult struct {
	Record  storage.Record `json:"record"`
	Created bool           `json:"created"`
}

// Import maps itemID into kind, stores it and publishes a content.imported event.
// Publish failures are logged; the stored record is still returned.
func (s *Service) Import(ctx context.Context, kind, itemID string) (ImportResult, error) {
	doc, entity, err := s.mapItem(ctx, kind, itemID)
	if err != nil {
		return ImportResult{}, err
	}

	headline, _ := doc.String("data", "item", "headline")
	rec := storage.Record{
		Kind:     kind,
		ItemID:   strings.TrimSpace(itemID),
		Headline: headline,
		Entity:   entity,
	}
	created, err := s.store.Upsert(ctx, rec)
	if err != nil {
		return ImportResult{}, fmt.Errorf("store %s: %w", rec.Key(), err)
	}
	stored, err := s.store.Get(ctx, kind, rec.ItemID)
	if err != nil {
		return ImportResult{}, fmt.Errorf("reload %s: %w", rec.Key(), err)
	}

	s.log.InfoObj("item imported", "import", map[string]any{
		"kind":    kind,
		"item_id": rec.ItemID,
		"created": created,
	})

	if s.pub != nil {
		evt := publishers.NewContentImported(kind, rec.ItemID, headline, created, entity)
		if err := s.pub.Publish(ctx, evt); err != nil {
			s.log.WarnObj("import event not fully delivered", "import_publish", map[string]any{
				"event_id": evt.ID,
				"error":    err.Error(),
			})
		}
	}
	return ImportResult{Record: stored, Created: created}, nil
}

// Records lists stored records of kind, newest first.
func (s *Service) Records(ctx context.Context, kind string, limit int) ([]storage.Record, error) {
	if _, ok := s.mappings.Lookup(kind); !ok {
		return nil, fmt.Errorf("%w %q", mapping.ErrUnknownEntityKind, kind)
	}
	return s.store.List(ctx, kind, limit)
}

func (s *Service) mapItem(ctx context.Context, kind, itemID string) (apnews.Document, content.Entity, error) {
	if _, ok := s.mappings.Lookup(kind); !ok {
		return nil, content.Entity{}, fmt.Errorf("%w %q", mapping.ErrUnknownEntityKind, kind)
	}
	doc, err := s.remote.ContentByID(ctx, itemID, nil)
	if err != nil {
		return nil, content.Entity{}, err
	}
	entity, err := s.mapper.MapDocument(ctx, kind, doc, s.mappings)
	if err != nil {
		return nil, content.Entity{}, err
	}
	return doc, entity, nil
}

// IsTransport reports whether err came from a failed news API call.
func IsTransport(err error) bool {
	var te *apnews.TransportError
	return errors.As(err, &te)
}

// pageSize returns the configured page size as a request param, or "".
func (s *Service) pageSize() string {
	if s.opts.PageSize <= 0 {
		return ""
	}
	return strconv.Itoa(s.opts.PageSize)
}

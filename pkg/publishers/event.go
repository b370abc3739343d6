package publishers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Adda-Baaj/newsroom-bridge/pkg/content"
)

// EventContentImported is emitted after an item has been mapped and stored.
const EventContentImported = "content.imported"

// Event is the message delivered to publishers.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Kind       string         `json:"kind"`
	ItemID     string         `json:"item_id"`
	Headline   string         `json:"headline,omitempty"`
	Created    bool           `json:"created"`
	OccurredAt time.Time      `json:"occurred_at"`
	Entity     content.Entity `json:"entity"`
}

// NewContentImported builds a content.imported event with a fresh id.
func NewContentImported(kind, itemID, headline string, created bool, entity content.Entity) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       EventContentImported,
		Kind:       kind,
		ItemID:     itemID,
		Headline:   headline,
		Created:    created,
		OccurredAt: time.Now().UTC(),
		Entity:     entity,
	}
}

// Publisher delivers events to one sink.
type Publisher interface {
	ID() string
	Type() string
	Publish(ctx context.Context, evt Event) error
}

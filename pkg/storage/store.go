// Package storage persists imported content records and feed cursors.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Adda-Baaj/newsroom-bridge/pkg/content"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

const defaultListLimit = 50

// Record is one imported item materialized as an entity of Kind.
type Record struct {
	Kind      string         `json:"kind"`
	ItemID    string         `json:"item_id"`
	Headline  string         `json:"headline"`
	Entity    content.Entity `json:"entity"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Key identifies the record. Importing the same item into the same kind twice updates one record.
func (r Record) Key() string {
	return recordKey(r.Kind, r.ItemID)
}

func recordKey(kind, itemID string) string {
	return strings.TrimSpace(kind) + ":" + strings.TrimSpace(itemID)
}

// Store persists records and named cursors.
type Store interface {
	// Upsert inserts rec or replaces the stored entity. created reports whether the record is new.
	Upsert(ctx context.Context, rec Record) (created bool, err error)
	Get(ctx context.Context, kind, itemID string) (Record, error)
	// List returns the most recently updated records of kind, newest first.
	List(ctx context.Context, kind string, limit int) ([]Record, error)
	Cursor(ctx context.Context, name string) (string, error)
	SetCursor(ctx context.Context, name, value string) error
	Close() error
}

func validate(rec Record) error {
	if strings.TrimSpace(rec.Kind) == "" {
		return errors.New("record kind is empty")
	}
	if strings.TrimSpace(rec.ItemID) == "" {
		return errors.New("record item id is empty")
	}
	return nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return defaultListLimit
	}
	return limit
}

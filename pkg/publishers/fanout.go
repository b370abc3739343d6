package publishers

import (
	"context"
	"errors"
	"fmt"

	"github.com/Adda-Baaj/newsroom-bridge/internal/logger"
)

// Fanout delivers each event to every publisher that subscribes to its type.
// A failing sink does not stop delivery to the others; failures are joined.
type Fanout struct {
	entries []fanoutEntry
	log     logger.Logger
}

type fanoutEntry struct {
	pub    Publisher
	events []string
}

// NewFanout builds a Fanout from publishers paired with their configs.
func NewFanout(pubs []Publisher, cfgs []PublisherConfig, log logger.Logger) *Fanout {
	byID := make(map[string]PublisherConfig, len(cfgs))
	for _, c := range cfgs {
		byID[c.ID] = c
	}
	f := &Fanout{log: logger.Ensure(log)}
	for _, p := range pubs {
		f.entries = append(f.entries, fanoutEntry{pub: p, events: byID[p.ID()].Events})
	}
	return f
}

// Len returns the number of publishers.
func (f *Fanout) Len() int {
	if f == nil {
		return 0
	}
	return len(f.entries)
}

// Publish sends evt to all subscribed publishers.
func (f *Fanout) Publish(ctx context.Context, evt Event) error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, e := range f.entries {
		if !(PublisherConfig{Events: e.events}).Wants(evt.Type) {
			continue
		}
		if err := e.pub.Publish(ctx, evt); err != nil {
			f.log.ErrorObj("publish failed", "publisher_error", map[string]any{
				"publisher": e.pub.ID(),
				"type":      e.pub.Type(),
				"event_id":  evt.ID,
				"error":     err.Error(),
			})
			errs = append(errs, fmt.Errorf("publisher %s: %w", e.pub.ID(), err))
		}
	}
	return errors.Join(errs...)
}

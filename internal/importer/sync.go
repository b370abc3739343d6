package importer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/Adda-Baaj/newsroom-bridge/internal/logger"
	"github.com/Adda-Baaj/newsroom-bridge/pkg/apnews"
	"github.com/Adda-Baaj/newsroom-bridge/pkg/storage"
)

// SyncResult summarizes one feed pull. Abandoned counts items that failed
// MaxItemFailures times and no longer hold the cursor back.
type SyncResult struct {
	Fetched   int    `json:"fetched"`
	Imported  int    `json:"imported"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
	Abandoned int    `json:"abandoned"`
	Cursor    string `json:"cursor,omitempty"`
}

const defaultMaxItemFailures = 3

func cursorName(kind string) string { return "feed:" + kind }

func failureName(kind, itemID string) string { return "feed-failures:" + kind + ":" + itemID }

func (s *Service) maxItemFailures() int {
	if s.opts.MaxItemFailures > 0 {
		return s.opts.MaxItemFailures
	}
	return defaultMaxItemFailures
}

// countFailure bumps the persisted failure count for itemID and returns the new total.
func (s *Service) countFailure(ctx context.Context, kind, itemID string) (int, error) {
	name := failureName(kind, itemID)
	raw, err := s.store.Cursor(ctx, name)
	if err != nil {
		return 0, err
	}
	n, _ := strconv.Atoi(raw)
	n++
	return n, s.store.SetCursor(ctx, name, strconv.Itoa(n))
}

// SyncFeed pulls the next feed page and imports every item not yet stored as kind.
// The cursor only advances when every item on the page was handled, so failed items
// are retried on the next run. An item that keeps failing is abandoned after
// MaxItemFailures attempts.
func (s *Service) SyncFeed(ctx context.Context, kind string) (SyncResult, error) {
	if _, ok := s.mappings.Lookup(kind); !ok {
		return SyncResult{}, fmt.Errorf("sync kind %q is not mapped", kind)
	}

	cursor, err := s.store.Cursor(ctx, cursorName(kind))
	if err != nil {
		return SyncResult{}, fmt.Errorf("read feed cursor: %w", err)
	}

	var doc apnews.Document
	if cursor != "" {
		doc, err = s.remote.NextPage(ctx, cursor)
	} else {
		params := url.Values{}
		if size := s.pageSize(); size != "" {
			params.Set("page_size", size)
		}
		doc, err = s.remote.Feed(ctx, params)
	}
	if err != nil {
		return SyncResult{}, fmt.Errorf("fetch feed: %w", err)
	}

	var res SyncResult
	for _, row := range rows(doc) {
		res.Fetched++
		if _, err := s.store.Get(ctx, kind, row.ItemID); err == nil {
			res.Skipped++
			continue
		} else if !errors.Is(err, storage.ErrNotFound) {
			return res, fmt.Errorf("check %s: %w", row.ItemID, err)
		}

		if _, err := s.Import(ctx, kind, row.ItemID); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			attempts, cerr := s.countFailure(ctx, kind, row.ItemID)
			if cerr != nil {
				return res, fmt.Errorf("record failure of %s: %w", row.ItemID, cerr)
			}
			fields := map[string]any{
				"kind":     kind,
				"item_id":  row.ItemID,
				"attempts": attempts,
				"error":    err.Error(),
			}
			if attempts >= s.maxItemFailures() {
				res.Abandoned++
				s.log.WarnObj("feed item abandoned after repeated failures", "sync_error", fields)
				continue
			}
			res.Failed++
			s.log.ErrorObj("feed item import failed", "sync_error", fields)
			continue
		}
		res.Imported++
	}

	next, _ := doc.String("data", "next_page")
	res.Cursor = cursor
	if next = strings.TrimSpace(next); next != "" && res.Failed == 0 {
		if err := s.store.SetCursor(ctx, cursorName(kind), next); err != nil {
			return res, fmt.Errorf("save feed cursor: %w", err)
		}
		res.Cursor = next
	}

	s.log.InfoObj("feed sync done", "sync", res)
	return res, nil
}

// Scheduler runs SyncFeed on a cron schedule.
type Scheduler struct {
	cron *cron.Cron
	svc  *Service
	kind string
	log  logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	runs   sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// NewScheduler registers a feed sync for kind on spec (standard 5-field cron syntax).
func NewScheduler(spec string, svc *Service, kind string, log logger.Logger) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   cron.New(),
		svc:    svc,
		kind:   kind,
		log:    logger.Ensure(log),
		ctx:    ctx,
		cancel: cancel,
	}
	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		cancel()
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins running scheduled syncs in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops the schedule and waits for a running sync. When ctx is done first,
// the running sync is cancelled and Stop waits for it to return.
func (s *Scheduler) Stop(ctx context.Context) {
	jobs := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-jobs.Done()
		s.runs.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.log.WarnObj("cancelling running feed sync", "sync", map[string]any{"kind": s.kind})
		s.cancel()
		<-done
	}
	s.cancel()
}

// RunOnce performs a single sync immediately.
func (s *Scheduler) RunOnce() { s.runOnce() }

func (s *Scheduler) runOnce() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.WarnObj("feed sync still running, skipping tick", "sync", map[string]any{"kind": s.kind})
		return
	}
	s.running = true
	s.runs.Add(1)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.runs.Done()
	}()

	if s.ctx.Err() != nil {
		return
	}
	if _, err := s.svc.SyncFeed(s.ctx, s.kind); err != nil {
		s.log.ErrorObj("feed sync failed", "sync_error", map[string]any{
			"kind":  s.kind,
			"error": err.Error(),
		})
	}
}

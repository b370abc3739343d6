package importer

import (
	"context"
	"errors"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adda-Baaj/newsroom-bridge/pkg/apnews"
	"github.com/Adda-Baaj/newsroom-bridge/pkg/assets"
	"github.com/Adda-Baaj/newsroom-bridge/pkg/mapping"
	"github.com/Adda-Baaj/newsroom-bridge/pkg/publishers"
	"github.com/Adda-Baaj/newsroom-bridge/pkg/storage"
)

type fakeRemote struct {
	items        map[string]apnews.Document
	searchParams []url.Values
	searchDoc    apnews.Document
	feedDoc      apnews.Document
	pages        map[string]apnews.Document
	feedCalls    int
	nextCalls    []string
	feedStarted  chan struct{}
}

func (f *fakeRemote) ContentByID(_ context.Context, itemID string, _ url.Values) (apnews.Document, error) {
	doc, ok := f.items[itemID]
	if !ok {
		return nil, &apnews.TransportError{URL: "/content/" + itemID, StatusCode: 404}
	}
	return doc, nil
}

func (f *fakeRemote) NITFByURL(context.Context, string) ([]byte, error) { return nil, nil }

func (f *fakeRemote) FetchWithRedirectCapture(_ context.Context, u string) (string, []byte, error) {
	return u, nil, nil
}

func (f *fakeRemote) FetchRaw(context.Context, string) ([]byte, error) { return nil, nil }

func (f *fakeRemote) APIKey() string { return "k" }

func (f *fakeRemote) Search(_ context.Context, params url.Values) (apnews.Document, error) {
	f.searchParams = append(f.searchParams, params)
	return f.searchDoc, nil
}

func (f *fakeRemote) Feed(ctx context.Context, _ url.Values) (apnews.Document, error) {
	f.feedCalls++
	if f.feedStarted != nil {
		close(f.feedStarted)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.feedDoc, nil
}

func (f *fakeRemote) NextPage(_ context.Context, next string) (apnews.Document, error) {
	f.nextCalls = append(f.nextCalls, next)
	return f.pages[next], nil
}

type recordingPublisher struct {
	events []publishers.Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, evt publishers.Event) error {
	r.events = append(r.events, evt)
	return r.err
}

func item(id, headline string) apnews.Document {
	return apnews.Document{"data": map[string]any{"item": map[string]any{
		"headline": headline,
		"altids":   map[string]any{"itemid": id},
	}}}
}

func listing(next string, ids ...string) apnews.Document {
	items := make([]any, 0, len(ids))
	for _, id := range ids {
		items = append(items, map[string]any{"item": map[string]any{
			"altids":         map[string]any{"itemid": id},
			"headline":       "headline " + id,
			"versioncreated": "2024-05-01T10:00:00Z",
		}})
	}
	data := map[string]any{"items": items, "total_items": float64(len(ids)), "current_page": float64(1)}
	if next != "" {
		data["next_page"] = next
	}
	return apnews.Document{"data": data}
}

type fixture struct {
	svc    *Service
	remote *fakeRemote
	store  *storage.BoltStore
	pub    *recordingPublisher
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	remote := &fakeRemote{items: map[string]apnews.Document{
		"A": item("A", "Alpha"),
		"B": item("B", "Beta"),
		"C": item("C", "Gamma"),
	}}

	cfg, err := mapping.NewConfig(nil, mapping.EntityMapping{Kind: "article", Fields: []mapping.FieldMapping{
		{ID: "title", Spec: mapping.TextSpec{Path: "item.headline"}},
	}})
	require.NoError(t, err)

	assetStore, err := assets.NewFSStore(afero.NewMemMapFs(), "public")
	require.NoError(t, err)
	mapper := mapping.NewMapper(remote, assetStore, nil)

	store, err := storage.OpenBolt(filepath.Join(t.TempDir(), "bridge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	pub := &recordingPublisher{}
	return &fixture{
		svc:    New(remote, mapper, cfg, store, pub, nil, opts),
		remote: remote,
		store:  store,
		pub:    pub,
	}
}

func TestKinds(t *testing.T) {
	f := newFixture(t, Options{})
	assert.Equal(t, []string{"article"}, f.svc.Kinds())
}

func TestPreviewDoesNotStore(t *testing.T) {
	f := newFixture(t, Options{})
	ent, err := f.svc.Preview(context.Background(), "article", "A")
	require.NoError(t, err)

	title, _ := ent.FirstText("title")
	assert.Equal(t, "Alpha", title)

	_, err = f.store.Get(context.Background(), "article", "A")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Empty(t, f.pub.events)
}

func TestPreviewUnknownKind(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.svc.Preview(context.Background(), "gallery", "A")
	assert.ErrorIs(t, err, mapping.ErrUnknownEntityKind)
}

func TestPreviewTransportError(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.svc.Preview(context.Background(), "article", "missing")
	require.Error(t, err)
	assert.True(t, IsTransport(err))
}

func TestImportUpsertsAndPublishes(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	res, err := f.svc.Import(ctx, "article", "A")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "Alpha", res.Record.Headline)

	f.remote.items["A"] = item("A", "Alpha v2")
	res, err = f.svc.Import(ctx, "article", "A")
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, "Alpha v2", res.Record.Headline)

	recs, err := f.svc.Records(ctx, "article", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	require.Len(t, f.pub.events, 2)
	assert.Equal(t, publishers.EventContentImported, f.pub.events[0].Type)
	assert.True(t, f.pub.events[0].Created)
	assert.False(t, f.pub.events[1].Created)
	assert.Equal(t, "A", f.pub.events[1].ItemID)
}

func TestImportSurvivesPublishFailure(t *testing.T) {
	f := newFixture(t, Options{})
	f.pub.err = errors.New("sink down")

	res, err := f.svc.Import(context.Background(), "article", "B")
	require.NoError(t, err)
	assert.Equal(t, "B", res.Record.ItemID)
}

func TestRecordsUnknownKind(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.svc.Records(context.Background(), "gallery", 10)
	assert.ErrorIs(t, err, mapping.ErrUnknownEntityKind)
}

func TestSearchBuildsParamsAndTokens(t *testing.T) {
	f := newFixture(t, Options{PageSize: 25})
	f.remote.searchDoc = listing("https://api.example/content/search?qt=abc&page=2", "A", "B")
	f.remote.searchDoc["data"].(map[string]any)["previous_page"] = "https://api.example/content/search?qt=abc&page=0"

	page, err := f.svc.Search(context.Background(), SearchQuery{Keywords: " election ", Sort: SortRelevance})
	require.NoError(t, err)

	params := f.remote.searchParams[0]
	assert.Equal(t, "election", params.Get("q"))
	assert.Empty(t, params.Get("sort"))
	assert.Equal(t, "25", params.Get("page_size"))

	require.Len(t, page.Rows, 2)
	assert.Equal(t, Row{ItemID: "A", Headline: "headline A", VersionCreated: "2024-05-01T10:00:00Z"}, page.Rows[0])
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 1, page.CurrentPage)
	assert.Equal(t, "abc:2", page.NextToken)
	assert.Equal(t, "abc:0", page.PreviousToken)

	_, err = f.svc.Search(context.Background(), SearchQuery{Sort: "versioncreated:desc", PageToken: page.NextToken})
	require.NoError(t, err)
	params = f.remote.searchParams[1]
	assert.Equal(t, "abc", params.Get("qt"))
	assert.Equal(t, "2", params.Get("page"))
	assert.Empty(t, params.Get("sort"))
}

func TestSearchFeedModeUsesSeq(t *testing.T) {
	f := newFixture(t, Options{UseFeed: true})
	f.remote.searchDoc = listing("https://api.example/content/feed?qt=q1&seq=77", "A")

	page, err := f.svc.Search(context.Background(), SearchQuery{Sort: "versioncreated:desc"})
	require.NoError(t, err)
	assert.Equal(t, "versioncreated:desc", f.remote.searchParams[0].Get("sort"))
	assert.Equal(t, "q1:77", page.NextToken)

	_, err = f.svc.Search(context.Background(), SearchQuery{PageToken: "q1:77"})
	require.NoError(t, err)
	assert.Equal(t, "77", f.remote.searchParams[1].Get("seq"))
}

func TestSearchRejectsBadToken(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.svc.Search(context.Background(), SearchQuery{PageToken: "nocolon"})
	assert.ErrorIs(t, err, ErrBadPageToken)
	assert.Empty(t, f.remote.searchParams)
}

func TestSyncFeedFollowsCursorAndSkipsSeen(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	next := "https://api.example/content/feed?qt=q&seq=2"
	f.remote.feedDoc = listing(next, "A", "B")
	f.remote.pages = map[string]apnews.Document{
		next: listing("https://api.example/content/feed?qt=q&seq=3", "B", "C"),
	}

	res, err := f.svc.SyncFeed(ctx, "article")
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Fetched: 2, Imported: 2, Cursor: next}, res)

	res, err = f.svc.SyncFeed(ctx, "article")
	require.NoError(t, err)
	assert.Equal(t, 1, f.remote.feedCalls)
	assert.Equal(t, []string{next}, f.remote.nextCalls)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, "https://api.example/content/feed?qt=q&seq=3", res.Cursor)
}

func TestSyncFeedKeepsCursorOnFailure(t *testing.T) {
	f := newFixture(t, Options{})
	f.remote.feedDoc = listing("https://api.example/content/feed?qt=q&seq=2", "A", "missing")

	res, err := f.svc.SyncFeed(context.Background(), "article")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Imported)
	assert.Empty(t, res.Cursor)

	cursor, err := f.store.Cursor(context.Background(), cursorName("article"))
	require.NoError(t, err)
	assert.Empty(t, cursor)
}

func TestSyncFeedAbandonsItemAfterRepeatedFailures(t *testing.T) {
	f := newFixture(t, Options{MaxItemFailures: 2})
	ctx := context.Background()
	next := "https://api.example/content/feed?qt=q&seq=2"
	f.remote.feedDoc = listing(next, "A", "missing")

	res, err := f.svc.SyncFeed(ctx, "article")
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Fetched: 2, Imported: 1, Failed: 1}, res)

	res, err = f.svc.SyncFeed(ctx, "article")
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Fetched: 2, Skipped: 1, Abandoned: 1, Cursor: next}, res)

	cursor, err := f.store.Cursor(ctx, cursorName("article"))
	require.NoError(t, err)
	assert.Equal(t, next, cursor)

	attempts, err := f.store.Cursor(ctx, failureName("article", "missing"))
	require.NoError(t, err)
	assert.Equal(t, "2", attempts)
}

func TestSchedulerStopCancelsRunningSync(t *testing.T) {
	f := newFixture(t, Options{})
	f.remote.feedStarted = make(chan struct{})
	s, err := NewScheduler("*/5 * * * *", f.svc, "article", nil)
	require.NoError(t, err)

	finished := make(chan struct{})
	go func() {
		s.RunOnce()
		close(finished)
	}()
	<-f.remote.feedStarted

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	s.Stop(ctx)

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("sync still running after Stop returned")
	}

	s.RunOnce()
	assert.Equal(t, 1, f.remote.feedCalls)
}

func TestSyncFeedUnknownKind(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.svc.SyncFeed(context.Background(), "gallery")
	assert.Error(t, err)
}

func TestNewSchedulerRejectsBadSpec(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := NewScheduler("not a cron", f.svc, "article", nil)
	assert.Error(t, err)

	s, err := NewScheduler("*/5 * * * *", f.svc, "article", nil)
	require.NoError(t, err)
	f.remote.feedDoc = listing("", "A")
	s.RunOnce()

	_, err = f.store.Get(context.Background(), "article", "A")
	assert.NoError(t, err)
}

package mapping

import (
	"context"
	"errors"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adda-Baaj/newsroom-bridge/pkg/apnews"
	"github.com/Adda-Baaj/newsroom-bridge/pkg/assets"
	"github.com/Adda-Baaj/newsroom-bridge/pkg/content"
)

type fakeRemote struct {
	items     map[string]apnews.Document
	nitf      map[string][]byte
	binaries  map[string][]byte
	fetchErr  error
	fetched   []string
	redirects []string
	raws      []string
}

func (f *fakeRemote) ContentByID(_ context.Context, itemID string, _ url.Values) (apnews.Document, error) {
	f.fetched = append(f.fetched, itemID)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	doc, ok := f.items[itemID]
	if !ok {
		return nil, &apnews.TransportError{URL: itemID, StatusCode: 404}
	}
	return doc, nil
}

func (f *fakeRemote) NITFByURL(_ context.Context, href string) ([]byte, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.nitf[href], nil
}

func (f *fakeRemote) FetchWithRedirectCapture(_ context.Context, rawURL string) (string, []byte, error) {
	f.redirects = append(f.redirects, rawURL)
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", nil, err
	}
	return "https://cdn.example/" + strings.TrimPrefix(u.Path, "/") + "?sig=1", nil, nil
}

func (f *fakeRemote) FetchRaw(_ context.Context, rawURL string) ([]byte, error) {
	f.raws = append(f.raws, rawURL)
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Query().Get("apikey") != "k" {
		return nil, &apnews.TransportError{URL: rawURL, StatusCode: 401}
	}
	return f.binaries[u.Path], nil
}

func (f *fakeRemote) APIKey() string { return "k" }

func picture(id string) map[string]any {
	return map[string]any{"type": "picture", "altids": map[string]any{"itemid": id}}
}

func mediaItem(id, headline, title string) apnews.Document {
	return apnews.Document{"data": map[string]any{"item": map[string]any{
		"headline": headline,
		"title":    title,
		"altids":   map[string]any{"itemid": id},
		"renditions": map[string]any{
			"main": map[string]any{"href": "https://api.example/binary/" + id + "?qt=1"},
		},
	}}}
}

func newTestMapper(t *testing.T, remote *fakeRemote) (*Mapper, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	store, err := assets.NewFSStore(fs, "public")
	require.NoError(t, err)
	return NewMapper(remote, store, nil), fs
}

func singleField(t *testing.T, kind string, f FieldMapping) *Config {
	t.Helper()
	cfg, err := NewConfig(nil, EntityMapping{Kind: kind, Fields: []FieldMapping{f}})
	require.NoError(t, err)
	return cfg
}

func TestTextFieldAppendsResolvedString(t *testing.T) {
	m, _ := newTestMapper(t, &fakeRemote{})
	cfg := singleField(t, "article", FieldMapping{ID: "title", Spec: TextSpec{Path: "item.headline"}})

	doc := map[string]any{"data": map[string]any{"item": map[string]any{"headline": "Hello"}}}
	ent, err := m.MapDocument(context.Background(), "article", doc, cfg)
	require.NoError(t, err)

	assert.Equal(t, "article", ent.Kind)
	assert.Equal(t, []content.Value{content.Text("Hello")}, ent.Values("title"))
}

func TestTextFieldSkipsNonString(t *testing.T) {
	m, _ := newTestMapper(t, &fakeRemote{})
	cfg := singleField(t, "article", FieldMapping{ID: "title", Spec: TextSpec{Path: "item"}})

	doc := map[string]any{"data": map[string]any{"item": map[string]any{"headline": "Hello"}}}
	ent, err := m.MapDocument(context.Background(), "article", doc, cfg)
	require.NoError(t, err)
	assert.Empty(t, ent.Values("title"))
}

func TestTextFieldRespectsSchema(t *testing.T) {
	m, _ := newTestMapper(t, &fakeRemote{})
	cfg, err := NewConfig(content.Types{"article": {"body"}}, EntityMapping{
		Kind:   "article",
		Fields: []FieldMapping{{ID: "title", Spec: TextSpec{Path: "item.headline"}}},
	})
	require.NoError(t, err)

	doc := map[string]any{"data": map[string]any{"item": map[string]any{"headline": "Hello"}}}
	ent, err := m.MapDocument(context.Background(), "article", doc, cfg)
	require.NoError(t, err)
	assert.True(t, ent.Empty())
}

func TestSchemaComesFromEachConfig(t *testing.T) {
	m, _ := newTestMapper(t, &fakeRemote{})
	fields := []FieldMapping{{ID: "title", Spec: TextSpec{Path: "item.headline"}}}
	withTitle, err := NewConfig(content.Types{"article": {"title"}}, EntityMapping{Kind: "article", Fields: fields})
	require.NoError(t, err)
	withoutTitle, err := NewConfig(content.Types{"article": {"body"}}, EntityMapping{Kind: "article", Fields: fields})
	require.NoError(t, err)

	doc := map[string]any{"data": map[string]any{"item": map[string]any{"headline": "Hello"}}}
	ent, err := m.MapDocument(context.Background(), "article", doc, withTitle)
	require.NoError(t, err)
	assert.Equal(t, []content.Value{content.Text("Hello")}, ent.Values("title"))

	ent, err = m.MapDocument(context.Background(), "article", doc, withoutTitle)
	require.NoError(t, err)
	assert.True(t, ent.Empty())
}

func TestUnknownEntityKind(t *testing.T) {
	m, _ := newTestMapper(t, &fakeRemote{})
	cfg := singleField(t, "article", FieldMapping{ID: "title", Spec: TextSpec{Path: "item.headline"}})

	ent, err := m.MapDocument(context.Background(), "gallery", map[string]any{}, cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownEntityKind))
	assert.Equal(t, content.Entity{}, ent)
}

func TestNestedGroupAppendsOneChildPerKindEvenWhenEmpty(t *testing.T) {
	m, _ := newTestMapper(t, &fakeRemote{})
	cfg := singleField(t, "article", FieldMapping{ID: "blocks", Spec: NestedGroupSpec{Nested: []NestedEntity{
		{Kind: "lede", Fields: []FieldMapping{{ID: "text", Spec: TextSpec{Path: "item.headline"}}}},
		{Kind: "byline", Fields: []FieldMapping{{ID: "text", Spec: TextSpec{Path: "item.bylines"}}}},
	}}})

	doc := map[string]any{"data": map[string]any{"item": map[string]any{"headline": "Hello"}}}
	ent, err := m.MapDocument(context.Background(), "article", doc, cfg)
	require.NoError(t, err)

	children := ent.Values("blocks")
	require.Len(t, children, 2)

	lede, ok := children[0].(content.Entity)
	require.True(t, ok)
	assert.Equal(t, "lede", lede.Kind)
	got, _ := lede.FirstText("text")
	assert.Equal(t, "Hello", got)

	byline, ok := children[1].(content.Entity)
	require.True(t, ok)
	assert.Equal(t, "byline", byline.Kind)
	assert.True(t, byline.Empty())
}

func threePictureDoc() map[string]any {
	return map[string]any{"data": map[string]any{"item": map[string]any{
		"headline": "outer",
		"associations": []any{
			picture("P1"),
			map[string]any{"type": "video", "altids": map[string]any{"itemid": "V1"}},
			picture("P2"),
			picture("P3"),
		},
	}}}
}

func threePictureRemote() *fakeRemote {
	return &fakeRemote{
		items: map[string]apnews.Document{
			"P1": mediaItem("P1", "h1", "t1"),
			"P2": mediaItem("P2", "h2", "t2"),
			"P3": mediaItem("P3", "h3", "t3"),
		},
		binaries: map[string][]byte{
			"/binary/P1": []byte("one"),
			"/binary/P2": []byte("two"),
			"/binary/P3": []byte("three"),
		},
	}
}

func TestImageSingleStopsAfterFirst(t *testing.T) {
	remote := threePictureRemote()
	m, _ := newTestMapper(t, remote)
	cfg := singleField(t, "article", FieldMapping{ID: "image", Spec: ImageSpec{Multiple: false}})

	ent, err := m.MapDocument(context.Background(), "article", threePictureDoc(), cfg)
	require.NoError(t, err)
	assert.Len(t, ent.Values("image"), 1)
	assert.Equal(t, []string{"P1"}, remote.fetched)
}

func TestImageMultipleAppendsEveryPicture(t *testing.T) {
	remote := threePictureRemote()
	m, fs := newTestMapper(t, remote)
	cfg := singleField(t, "article", FieldMapping{ID: "image", Spec: ImageSpec{Multiple: true}})

	ent, err := m.MapDocument(context.Background(), "article", threePictureDoc(), cfg)
	require.NoError(t, err)

	refs := ent.Values("image")
	require.Len(t, refs, 3)
	assert.Equal(t, []string{"P1", "P2", "P3"}, remote.fetched)

	third := refs[2].(content.MediaReference)
	assert.Equal(t, filepath.Join("public", "P3.jpeg"), third.StorageID)
	data, err := afero.ReadFile(fs, third.StorageID)
	require.NoError(t, err)
	assert.Equal(t, "three", string(data))
}

func TestImageUsesFetchedItemMetadata(t *testing.T) {
	remote := &fakeRemote{
		items:    map[string]apnews.Document{"X1": mediaItem("X1", "H", "T")},
		binaries: map[string][]byte{"/binary/X1": []byte("jpeg")},
	}
	m, _ := newTestMapper(t, remote)
	cfg := singleField(t, "article", FieldMapping{ID: "image", Spec: ImageSpec{}})

	doc := map[string]any{"data": map[string]any{"item": map[string]any{
		"headline":     "outer headline",
		"title":        "outer title",
		"associations": []any{picture("X1")},
	}}}
	ent, err := m.MapDocument(context.Background(), "article", doc, cfg)
	require.NoError(t, err)

	refs := ent.Values("image")
	require.Len(t, refs, 1)
	ref, ok := refs[0].(content.MediaReference)
	require.True(t, ok)
	assert.Equal(t, "H", ref.AltText)
	assert.Equal(t, "T", ref.Title)
	assert.Equal(t, filepath.Join("public", "X1.jpeg"), ref.StorageID)

	require.Len(t, remote.redirects, 1)
	assert.Equal(t, "https://api.example/binary/X1?qt=1&apikey=k", remote.redirects[0])
	require.Len(t, remote.raws, 1)
	assert.Equal(t, "https://cdn.example/binary/X1?sig=1&apikey=k", remote.raws[0])
}

func TestImageCollisionPolicyOption(t *testing.T) {
	remote := &fakeRemote{
		items:    map[string]apnews.Document{"X1": mediaItem("X1", "H", "T")},
		binaries: map[string][]byte{"/binary/X1": []byte("jpeg")},
	}
	store, err := assets.NewFSStore(afero.NewMemMapFs(), "public")
	require.NoError(t, err)
	m := NewMapper(remote, store, nil, WithCollisionPolicy(assets.Rename))
	cfg := singleField(t, "article", FieldMapping{ID: "image", Spec: ImageSpec{}})
	doc := map[string]any{"data": map[string]any{"item": map[string]any{
		"associations": []any{picture("X1")},
	}}}

	var ids []string
	for i := 0; i < 2; i++ {
		ent, err := m.MapDocument(context.Background(), "article", doc, cfg)
		require.NoError(t, err)
		ids = append(ids, ent.Values("image")[0].(content.MediaReference).StorageID)
	}
	assert.Equal(t, []string{filepath.Join("public", "X1.jpeg"), filepath.Join("public", "X1_0.jpeg")}, ids)
}

func TestImageAssociationsAsKeyedObject(t *testing.T) {
	remote := threePictureRemote()
	m, _ := newTestMapper(t, remote)
	cfg := singleField(t, "article", FieldMapping{ID: "image", Spec: ImageSpec{Multiple: true}})

	doc := map[string]any{"data": map[string]any{"item": map[string]any{
		"associations": map[string]any{
			"10": picture("P3"),
			"2":  picture("P2"),
			"1":  picture("P1"),
		},
	}}}
	_, err := m.MapDocument(context.Background(), "article", doc, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"P1", "P2", "P3"}, remote.fetched)
}

func TestImageWithoutMainRenditionAppendsNothing(t *testing.T) {
	noMain := apnews.Document{"data": map[string]any{"item": map[string]any{
		"altids": map[string]any{"itemid": "X1"},
	}}}
	noID := apnews.Document{"data": map[string]any{"item": map[string]any{
		"renditions": map[string]any{"main": map[string]any{"href": "https://api.example/binary/X2"}},
	}}}
	remote := &fakeRemote{items: map[string]apnews.Document{"X1": noMain, "X2": noID}}
	m, _ := newTestMapper(t, remote)
	cfg := singleField(t, "article", FieldMapping{ID: "image", Spec: ImageSpec{Multiple: true}})

	doc := map[string]any{"data": map[string]any{"item": map[string]any{
		"associations": []any{picture("X1"), picture("X2")},
	}}}
	ent, err := m.MapDocument(context.Background(), "article", doc, cfg)
	require.NoError(t, err)
	assert.Empty(t, ent.Values("image"))
	assert.Empty(t, remote.redirects)
}

func TestTransportFailureAbortsMapping(t *testing.T) {
	remote := &fakeRemote{fetchErr: &apnews.TransportError{URL: "x", StatusCode: 503}}
	m, _ := newTestMapper(t, remote)
	cfg, err := NewConfig(nil, EntityMapping{Kind: "article", Fields: []FieldMapping{
		{ID: "title", Spec: TextSpec{Path: "item.headline"}},
		{ID: "image", Spec: ImageSpec{}},
	}})
	require.NoError(t, err)

	doc := map[string]any{"data": map[string]any{"item": map[string]any{
		"headline":     "Hello",
		"associations": []any{picture("X1")},
	}}}
	ent, err := m.MapDocument(context.Background(), "article", doc, cfg)
	require.Error(t, err)

	var te *apnews.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 503, te.StatusCode)
	assert.Equal(t, content.Entity{}, ent)
}

const sampleNITF = `<?xml version="1.0" encoding="UTF-8"?>
<nitf>
  <head><title>T</title></head>
  <body>
    <body.head><hedline><hl1>H</hl1></hedline></body.head>
    <body.content><p>First.</p><p>Second.</p></body.content>
  </body>
</nitf>`

func nitfDoc() map[string]any {
	return map[string]any{"data": map[string]any{"item": map[string]any{
		"renditions": map[string]any{"nitf": map[string]any{"href": "https://api.example/nitf/1"}},
	}}}
}

func TestDocumentBodyMarkup(t *testing.T) {
	remote := &fakeRemote{nitf: map[string][]byte{"https://api.example/nitf/1": []byte(sampleNITF)}}
	m, _ := newTestMapper(t, remote)
	cfg := singleField(t, "article", FieldMapping{ID: "body", Spec: DocumentBodySpec{}})

	ent, err := m.MapDocument(context.Background(), "article", nitfDoc(), cfg)
	require.NoError(t, err)

	body, ok := ent.FirstText("body")
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(body, "<body.content>"))
	assert.Contains(t, body, "<p>First.</p>")
	assert.NotContains(t, body, "hedline")
}

func TestDocumentBodyText(t *testing.T) {
	remote := &fakeRemote{nitf: map[string][]byte{"https://api.example/nitf/1": []byte(sampleNITF)}}
	m, _ := newTestMapper(t, remote)
	cfg := singleField(t, "article", FieldMapping{ID: "body", Spec: DocumentBodySpec{Format: BodyText}})

	ent, err := m.MapDocument(context.Background(), "article", nitfDoc(), cfg)
	require.NoError(t, err)

	body, _ := ent.FirstText("body")
	assert.Equal(t, "First.\n\nSecond.", body)
}

func TestDocumentBodyUnparsableIsNoop(t *testing.T) {
	remote := &fakeRemote{nitf: map[string][]byte{"https://api.example/nitf/1": []byte("<nitf><body>")}}
	m, _ := newTestMapper(t, remote)
	cfg := singleField(t, "article", FieldMapping{ID: "body", Spec: DocumentBodySpec{}})

	ent, err := m.MapDocument(context.Background(), "article", nitfDoc(), cfg)
	require.NoError(t, err)
	assert.Empty(t, ent.Values("body"))
}

func TestDocumentBodyWithoutRenditionSkipsFetch(t *testing.T) {
	remote := &fakeRemote{fetchErr: errors.New("must not be called")}
	m, _ := newTestMapper(t, remote)
	cfg := singleField(t, "article", FieldMapping{ID: "body", Spec: DocumentBodySpec{}})

	ent, err := m.MapDocument(context.Background(), "article", map[string]any{"data": map[string]any{}}, cfg)
	require.NoError(t, err)
	assert.True(t, ent.Empty())
}

func TestFieldsKeepConfiguredOrder(t *testing.T) {
	m, _ := newTestMapper(t, &fakeRemote{})
	cfg, err := NewConfig(nil, EntityMapping{Kind: "article", Fields: []FieldMapping{
		{ID: "title", Spec: TextSpec{Path: "item.title"}},
		{ID: "headline", Spec: TextSpec{Path: "item.headline"}},
	}})
	require.NoError(t, err)

	doc := map[string]any{"data": map[string]any{"item": map[string]any{"headline": "H", "title": "T"}}}
	ent, err := m.MapDocument(context.Background(), "article", doc, cfg)
	require.NoError(t, err)
	require.Len(t, ent.Fields, 2)
	assert.Equal(t, "title", ent.Fields[0].ID)
	assert.Equal(t, "headline", ent.Fields[1].ID)
}

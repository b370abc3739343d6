package mapping

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/Adda-Baaj/newsroom-bridge/pkg/apnews"
	"github.com/Adda-Baaj/newsroom-bridge/pkg/content"
)

const (
	pictureType    = "picture"
	assetExtension = ".jpeg"
)

func (m *Mapper) mapImage(ctx context.Context, b *content.Builder, id string, spec ImageSpec, doc map[string]any) error {
	raw, ok := lookup(doc, "data", "item", "associations")
	if !ok {
		return nil
	}

	for _, assoc := range associations(raw) {
		if t, _ := lookupString(assoc, "type"); t != pictureType {
			continue
		}
		mediaID, ok := lookupString(assoc, "altids", "itemid")
		if !ok || mediaID == "" {
			m.log.WarnObj("picture association without item id", "mapping", map[string]any{
				"kind":  b.Kind(),
				"field": id,
			})
			continue
		}

		media, err := m.remote.ContentByID(ctx, mediaID, nil)
		if err != nil {
			return fmt.Errorf("fetch picture %s: %w", mediaID, err)
		}
		ref, ok, err := m.saveAsset(ctx, media)
		if err != nil {
			return fmt.Errorf("save picture %s: %w", mediaID, err)
		}
		if !ok || !b.HasField(id) {
			continue
		}
		b.Append(id, ref)
		if !spec.Multiple {
			break
		}
	}
	return nil
}

// associations returns the descriptors in document order. The API sends either
// a list or an object keyed "1", "2", ...
func associations(raw any) []any {
	switch v := raw.(type) {
	case []any:
		return v
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			a, errA := strconv.Atoi(keys[i])
			c, errC := strconv.Atoi(keys[j])
			if errA == nil && errC == nil {
				return a < c
			}
			if (errA == nil) != (errC == nil) {
				return errA == nil
			}
			return keys[i] < keys[j]
		})
		out := make([]any, 0, len(keys))
		for _, k := range keys {
			out = append(out, v[k])
		}
		return out
	}
	return nil
}

// saveAsset downloads the main rendition of a media item and stores it as <itemid>.jpeg.
// ok is false when the item has no main rendition or no item id.
func (m *Mapper) saveAsset(ctx context.Context, media apnews.Document) (content.MediaReference, bool, error) {
	doc := map[string]any(media)
	href, hasHref := lookupString(doc, "data", "item", "renditions", "main", "href")
	itemID, hasID := lookupString(doc, "data", "item", "altids", "itemid")
	if !hasHref || !hasID || href == "" || itemID == "" {
		return content.MediaReference{}, false, nil
	}
	if m.assets == nil {
		return content.MediaReference{}, false, fmt.Errorf("no asset store configured")
	}

	key := m.remote.APIKey()
	final, _, err := m.remote.FetchWithRedirectCapture(ctx, apnews.WithAPIKey(href, key))
	if err != nil {
		return content.MediaReference{}, false, err
	}
	data, err := m.remote.FetchRaw(ctx, apnews.WithAPIKey(final, key))
	if err != nil {
		return content.MediaReference{}, false, err
	}

	storageID, err := m.assets.Save(ctx, data, itemID+assetExtension, m.policy)
	if err != nil {
		return content.MediaReference{}, false, err
	}

	headline, _ := lookupString(doc, "data", "item", "headline")
	title, _ := lookupString(doc, "data", "item", "title")
	m.log.DebugObj("asset stored", "asset", map[string]any{
		"item_id":    itemID,
		"storage_id": storageID,
		"bytes":      len(data),
	})
	return content.MediaReference{StorageID: storageID, AltText: headline, Title: title}, true, nil
}

package apnews

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Search runs a content search. See the AP developer portal for supported params.
func (c *Client) Search(ctx context.Context, params url.Values) (Document, error) {
	return c.content(ctx, "search", params)
}

// Feed returns the latest content feed.
func (c *Client) Feed(ctx context.Context, params url.Values) (Document, error) {
	return c.content(ctx, "feed", params)
}

// RSS lists the RSS feeds entitled to the plan.
func (c *Client) RSS(ctx context.Context) (Document, error) {
	return c.content(ctx, "rss", nil)
}

// RSSByID returns the raw RSS XML for one product feed.
func (c *Client) RSSByID(ctx context.Context, rssID string, params url.Values) ([]byte, error) {
	if strings.TrimSpace(rssID) == "" {
		return nil, fmt.Errorf("rss id: %w", ErrEmptyArgument)
	}
	return c.FetchRaw(ctx, c.URL(APITypeContent, "rss/"+url.PathEscape(rssID), params))
}

// OnDemand returns items queued to the organization's OnDemand queue.
func (c *Client) OnDemand(ctx context.Context, params url.Values) (Document, error) {
	return c.content(ctx, "ondemand", params)
}

// ContentByID fetches the content item document for itemID.
func (c *Client) ContentByID(ctx context.Context, itemID string, params url.Values) (Document, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return nil, fmt.Errorf("content id: %w", ErrEmptyArgument)
	}

	key := ""
	if c.cache != nil && len(params) == 0 {
		key = "apnews:item:" + itemID
		if doc, ok := c.cached(ctx, key); ok {
			return doc, nil
		}
	}

	doc, err := c.content(ctx, url.PathEscape(itemID), params)
	if err != nil {
		return nil, err
	}
	if key != "" {
		c.store(ctx, key, doc)
	}
	return doc, nil
}

// NextPage follows a next_page link returned by search or feed.
func (c *Client) NextPage(ctx context.Context, nextPageURL string) (Document, error) {
	if strings.TrimSpace(nextPageURL) == "" {
		return nil, fmt.Errorf("next page url: %w", ErrEmptyArgument)
	}
	return c.FetchJSON(ctx, WithAPIKey(nextPageURL, c.apiKey))
}

// PreviousPage follows a previous_page link returned by search.
func (c *Client) PreviousPage(ctx context.Context, previousPageURL string) (Document, error) {
	if strings.TrimSpace(previousPageURL) == "" {
		return nil, fmt.Errorf("previous page url: %w", ErrEmptyArgument)
	}
	return c.FetchJSON(ctx, WithAPIKey(previousPageURL, c.apiKey))
}

// NITFByURL fetches the NITF XML rendition at href.
func (c *Client) NITFByURL(ctx context.Context, href string) ([]byte, error) {
	if strings.TrimSpace(href) == "" {
		return nil, fmt.Errorf("nitf url: %w", ErrEmptyArgument)
	}
	return c.FetchRaw(ctx, WithAPIKey(href, c.apiKey))
}

// NITFByItemID fetches the item and then its NITF rendition. It returns nil
// without error when the item has no NITF rendition.
func (c *Client) NITFByItemID(ctx context.Context, itemID string) ([]byte, error) {
	doc, err := c.ContentByID(ctx, itemID, nil)
	if err != nil {
		return nil, err
	}
	href, ok := doc.String("data", "item", "renditions", "nitf", "href")
	if !ok {
		return nil, nil
	}
	return c.NITFByURL(ctx, href)
}

func (c *Client) content(ctx context.Context, endpoint string, params url.Values) (Document, error) {
	return c.FetchJSON(ctx, c.URL(APITypeContent, endpoint, params))
}

func (c *Client) cached(ctx context.Context, key string) (Document, bool) {
	raw, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.log.WarnObj("document cache read failed", "cache_error", map[string]any{"key": key, "error": err.Error()})
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false
	}
	c.log.DebugObj("document cache hit", "cache_hit", map[string]any{"key": key})
	return doc, true
}

func (c *Client) store(ctx context.Context, key string, doc Document) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, raw, c.cacheTTL); err != nil {
		c.log.WarnObj("document cache write failed", "cache_error", map[string]any{"key": key, "error": err.Error()})
	}
}

// Lookup walks keys through nested objects and returns the value found, if any.
func (d Document) Lookup(keys ...string) (any, bool) {
	var cur any = map[string]any(d)
	for _, k := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		next, ok := m[k]
		if !ok || next == nil {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// String is Lookup for string leaves.
func (d Document) String(keys ...string) (string, bool) {
	v, ok := d.Lookup(keys...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

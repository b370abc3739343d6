package importer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/Adda-Baaj/newsroom-bridge/pkg/apnews"
)

// SortRelevance is the API's default order and is never sent explicitly.
const SortRelevance = "relevance"

// ErrBadPageToken is returned for page tokens that were not produced by Search.
var ErrBadPageToken = errors.New("malformed page token")

// SearchQuery selects a search result page. PageToken, when set, overrides the other fields.
type SearchQuery struct {
	Keywords  string
	Sort      string
	PageToken string
}

// Row is one search hit.
type Row struct {
	ItemID         string `json:"item_id"`
	Headline       string `json:"headline"`
	VersionCreated string `json:"version_created,omitempty"`
}

// Page is one page of search results.
type Page struct {
	Rows          []Row  `json:"rows"`
	Total         int    `json:"total"`
	CurrentPage   int    `json:"current_page,omitempty"`
	NextToken     string `json:"next_token,omitempty"`
	PreviousToken string `json:"previous_token,omitempty"`
}

// Search lists items matching q.
func (s *Service) Search(ctx context.Context, q SearchQuery) (Page, error) {
	params := url.Values{}
	if q.PageToken != "" {
		qt, page, err := parsePageToken(q.PageToken)
		if err != nil {
			return Page{}, err
		}
		params.Set("qt", qt)
		params.Set(s.pageParam(), page)
	} else {
		if kw := strings.TrimSpace(q.Keywords); kw != "" {
			params.Set("q", kw)
		}
		if sort := strings.TrimSpace(q.Sort); sort != "" && sort != SortRelevance {
			params.Set("sort", sort)
		}
		if size := s.pageSize(); size != "" {
			params.Set("page_size", size)
		}
	}

	doc, err := s.remote.Search(ctx, params)
	if err != nil {
		return Page{}, err
	}
	return s.page(doc), nil
}

func (s *Service) page(doc apnews.Document) Page {
	p := Page{Rows: rows(doc)}
	if n, ok := number(doc, "data", "total_items"); ok {
		p.Total = n
	}
	if n, ok := number(doc, "data", "current_page"); ok {
		p.CurrentPage = n
	}
	if next, ok := doc.String("data", "next_page"); ok {
		p.NextToken = s.tokenFromURL(next)
	}
	if prev, ok := doc.String("data", "previous_page"); ok {
		p.PreviousToken = s.tokenFromURL(prev)
	}
	return p
}

func rows(doc apnews.Document) []Row {
	raw, ok := doc.Lookup("data", "items")
	if !ok {
		return []Row{}
	}
	items, _ := raw.([]any)
	out := make([]Row, 0, len(items))
	for _, it := range items {
		entry, ok := it.(map[string]any)
		if !ok {
			continue
		}
		item := apnews.Document(entry)
		id, _ := item.String("item", "altids", "itemid")
		if id == "" {
			continue
		}
		headline, _ := item.String("item", "headline")
		created, _ := item.String("item", "versioncreated")
		out = append(out, Row{ItemID: id, Headline: headline, VersionCreated: created})
	}
	return out
}

func (s *Service) pageParam() string {
	if s.opts.UseFeed {
		return "seq"
	}
	return "page"
}

// tokenFromURL extracts the qt and page (or seq) pager params of a page link.
func (s *Service) tokenFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	qt := u.Query().Get("qt")
	page := u.Query().Get(s.pageParam())
	if qt == "" || page == "" {
		return ""
	}
	return qt + ":" + page
}

func parsePageToken(token string) (string, string, error) {
	qt, page, ok := strings.Cut(strings.TrimSpace(token), ":")
	if !ok || qt == "" || page == "" {
		return "", "", fmt.Errorf("%w: %q", ErrBadPageToken, token)
	}
	return qt, page, nil
}

func number(doc apnews.Document, keys ...string) (int, bool) {
	v, ok := doc.Lookup(keys...)
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return int(f), ok
}

package apnews

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Adda-Baaj/newsroom-bridge/internal/logger"
	"github.com/Adda-Baaj/newsroom-bridge/pkg/httpclient"
)

const (
	// DefaultBaseURL is the AP Media API root.
	DefaultBaseURL = "https://api.ap.org/media/"
	// DefaultVersion is used when no API version is configured.
	DefaultVersion = "v"

	APITypeContent = "content"

	apiKeyParam = "apikey"
)

var (
	// ErrMissingAPIKey is returned when the client is built without a key.
	ErrMissingAPIKey = errors.New("api key not found")
	// ErrEmptyArgument is returned when an id or URL argument is blank.
	ErrEmptyArgument = errors.New("argument cannot be empty")
)

// Document is a decoded JSON response from the API.
type Document map[string]any

// TransportError reports a failed request or an unexpected response status.
type TransportError struct {
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("request %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("request %s returned status %d body: %s", e.URL, e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Config holds the connection settings for the API.
type Config struct {
	BaseURL string
	Version string
	APIKey  string
}

// Client talks to the AP Media API.
type Client struct {
	http     httpclient.Client
	baseURL  string
	version  string
	apiKey   string
	cache    Cache
	cacheTTL time.Duration
	log      logger.Logger
}

// Option configures optional Client behaviour.
type Option func(*Client)

// WithCache stores single-item documents in cache for ttl.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// New builds a Client. A nil http client falls back to a default resty client.
func New(cfg Config, client httpclient.Client, log logger.Logger, opts ...Option) (*Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	if client == nil {
		client = httpclient.NewRestyClient(15 * time.Second)
	}

	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	c := &Client{
		http:    client,
		baseURL: base,
		version: strings.Trim(strings.TrimSpace(cfg.Version), "/"),
		apiKey:  key,
		log:     logger.Ensure(log),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// APIKey returns the configured key.
func (c *Client) APIKey() string { return c.apiKey }

// BaseURL returns the versioned root for apiType, e.g. https://api.ap.org/media/v/content/.
func (c *Client) BaseURL(apiType string) string {
	if c.version == "" {
		return c.baseURL + apiType + "/"
	}
	return c.baseURL + c.version + "/" + apiType + "/"
}

// URL builds an endpoint URL carrying params and the API key.
func (c *Client) URL(apiType, endpoint string, params url.Values) string {
	q := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set(apiKeyParam, c.apiKey)
	return c.BaseURL(apiType) + strings.TrimLeft(endpoint, "/") + "?" + q.Encode()
}

// WithAPIKey appends the apikey parameter to rawURL, leaving the existing query
// untouched so signed redirect targets stay valid.
func WithAPIKey(rawURL, apiKey string) string {
	base, fragment, _ := strings.Cut(rawURL, "#")
	sep := "&"
	switch {
	case !strings.Contains(base, "?"):
		sep = "?"
	case strings.HasSuffix(base, "?"), strings.HasSuffix(base, "&"):
		sep = ""
	}
	out := base + sep + apiKeyParam + "=" + url.QueryEscape(apiKey)
	if fragment != "" {
		out += "#" + fragment
	}
	return out
}

// FetchJSON GETs rawURL and decodes the JSON body.
func (c *Client) FetchJSON(ctx context.Context, rawURL string) (Document, error) {
	body, err := c.FetchRaw(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", redact(rawURL), err)
	}
	return doc, nil
}

// FetchRaw GETs rawURL and returns the body of a 200 response.
func (c *Client) FetchRaw(ctx context.Context, rawURL string) ([]byte, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("fetch url: %w", ErrEmptyArgument)
	}

	c.log.DebugObj("news api request", "api_request", map[string]any{"url": redact(rawURL)})

	resp, err := c.http.Get(ctx, rawURL, nil)
	if err != nil {
		return nil, &TransportError{URL: redact(rawURL), Err: err}
	}
	body := resp.Body()
	if resp.StatusCode() != http.StatusOK {
		c.log.WarnObj("news api non-200 response", "api_error", map[string]any{
			"url":    redact(rawURL),
			"status": resp.StatusCode(),
		})
		return nil, &TransportError{URL: redact(rawURL), StatusCode: resp.StatusCode(), Body: responseSnippet(body)}
	}
	return body, nil
}

// FetchWithRedirectCapture GETs rawURL following one redirect and returns the URL it landed on.
func (c *Client) FetchWithRedirectCapture(ctx context.Context, rawURL string) (string, []byte, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", nil, fmt.Errorf("fetch url: %w", ErrEmptyArgument)
	}

	final, resp, err := c.http.GetOneRedirect(ctx, rawURL, nil)
	if err != nil {
		return "", nil, &TransportError{URL: redact(rawURL), Err: err}
	}
	status := resp.StatusCode()
	if status >= http.StatusBadRequest {
		return "", nil, &TransportError{URL: redact(rawURL), StatusCode: status, Body: responseSnippet(resp.Body())}
	}

	c.log.DebugObj("news api redirect captured", "api_redirect", map[string]any{
		"url":   redact(rawURL),
		"final": redact(final),
	})
	return final, resp.Body(), nil
}

// responseSnippet returns a truncated snippet of the response body for errors and logs.
func responseSnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}

// redact hides the API key in URLs that end up in logs or errors.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if q.Get(apiKeyParam) == "" {
		return rawURL
	}
	q.Set(apiKeyParam, "REDACTED")
	u.RawQuery = q.Encode()
	return u.String()
}

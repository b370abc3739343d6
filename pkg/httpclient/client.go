package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultUserAgent = "newsroom-bridge/1.0"

// Client is the transport used by the news API client and the HTTP publisher.
type Client interface {
	// Get issues a GET request, following redirects with the client's default policy.
	Get(ctx context.Context, url string, headers map[string]string) (*resty.Response, error)
	// GetOneRedirect issues a GET request that follows at most one redirect and
	// reports the URL of the response it stopped at.
	GetOneRedirect(ctx context.Context, url string, headers map[string]string) (string, *resty.Response, error)
	// Do sends an arbitrary request with a body.
	Do(ctx context.Context, method, url string, headers map[string]string, body []byte) (*resty.Response, error)
}

// Option tweaks the underlying resty clients.
type Option func(*resty.Client)

// WithRetries retries transport errors and 5xx responses.
func WithRetries(count int, wait time.Duration) Option {
	return func(c *resty.Client) {
		if count <= 0 {
			return
		}
		c.SetRetryCount(count).
			SetRetryWaitTime(wait).
			SetRetryMaxWaitTime(4 * wait).
			AddRetryCondition(func(resp *resty.Response, err error) bool {
				if err != nil {
					return true
				}
				return resp != nil && resp.StatusCode() >= http.StatusInternalServerError
			})
	}
}

// WithUserAgent overrides the default User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *resty.Client) {
		if ua != "" {
			c.SetHeader("User-Agent", ua)
		}
	}
}

type restyClient struct {
	rc     *resty.Client
	single *resty.Client
}

// NewRestyClient builds a Client with the given per-request timeout.
func NewRestyClient(timeout time.Duration, opts ...Option) Client {
	build := func() *resty.Client {
		c := resty.New().
			SetTimeout(timeout).
			SetHeader("User-Agent", defaultUserAgent)
		for _, opt := range opts {
			if opt != nil {
				opt(c)
			}
		}
		return c
	}

	single := build().SetRedirectPolicy(resty.RedirectPolicyFunc(func(_ *http.Request, via []*http.Request) error {
		if len(via) > 1 {
			return http.ErrUseLastResponse
		}
		return nil
	}))

	return &restyClient{rc: build(), single: single}
}

func (c *restyClient) Get(ctx context.Context, url string, headers map[string]string) (*resty.Response, error) {
	return c.rc.R().SetContext(ctx).SetHeaders(headers).Get(url)
}

func (c *restyClient) GetOneRedirect(ctx context.Context, url string, headers map[string]string) (string, *resty.Response, error) {
	resp, err := c.single.R().SetContext(ctx).SetHeaders(headers).Get(url)
	if err != nil {
		return "", resp, err
	}
	return FinalURL(resp, url), resp, nil
}

func (c *restyClient) Do(ctx context.Context, method, url string, headers map[string]string, body []byte) (*resty.Response, error) {
	req := c.rc.R().SetContext(ctx).SetHeaders(headers)
	if body != nil {
		req.SetBody(body)
	}
	return req.Execute(method, url)
}

// FinalURL reports the URL of the request that produced resp, falling back to requested.
func FinalURL(resp *resty.Response, requested string) string {
	if resp == nil || resp.RawResponse == nil || resp.RawResponse.Request == nil || resp.RawResponse.Request.URL == nil {
		return requested
	}
	return resp.RawResponse.Request.URL.String()
}

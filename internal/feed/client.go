package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "JobScout Job Discovery Bot/1.0 (+https://jobscout.example/bot)"
	acceptHeader     = "application/rss+xml, application/xml, text/xml, */*"
	maxBodySize      = 10 << 20 // 10 MiB
)

// Options controls a single fetch.
type Options struct {
	// Timeout bounds the whole request including the body read. Defaults to 30s.
	Timeout time.Duration
}

// Client fetches feeds over HTTP and decodes them.
type Client struct {
	http      *http.Client
	userAgent string
	decoder   Decoder
}

// NewClient builds a client. A nil httpClient, empty userAgent or nil decoder
// fall back to http.DefaultClient, DefaultUserAgent and Permissive.
func NewClient(httpClient *http.Client, userAgent string, decoder Decoder) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if strings.TrimSpace(userAgent) == "" {
		userAgent = DefaultUserAgent
	}
	if decoder == nil {
		decoder = Permissive{}
	}
	return &Client{http: httpClient, userAgent: userAgent, decoder: decoder}
}

var defaultClient = NewClient(nil, "", nil)

// ParseURL fetches url with the default client and decodes it permissively.
func ParseURL(ctx context.Context, url string, opts Options) (Feed, error) {
	return defaultClient.ParseURL(ctx, url, opts)
}

// ParseURL fetches url and decodes the body with the client's decoder.
func (c *Client) ParseURL(ctx context.Context, url string, opts Options) (Feed, error) {
	body, err := c.Fetch(ctx, url, opts)
	if err != nil {
		return Feed{}, err
	}
	parsed, err := c.decoder.Decode(ctx, body)
	if err != nil {
		return Feed{}, fmt.Errorf("decode feed %s: %w", url, err)
	}
	return parsed, nil
}

// Fetch performs the GET and returns the raw body. Timeouts surface as
// *TimeoutError and non-2xx responses as *StatusError.
func (c *Client) Fetch(ctx context.Context, url string, opts Options) (string, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", acceptHeader)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", c.wrapErr(ctx, reqCtx, url, timeout, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{URL: url, StatusCode: resp.StatusCode, StatusText: statusText(resp)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return "", c.wrapErr(ctx, reqCtx, url, timeout, err)
	}
	if len(body) > maxBodySize {
		return "", fmt.Errorf("feed %s: response larger than %d bytes", url, maxBodySize)
	}
	return string(body), nil
}

func (c *Client) wrapErr(parent, reqCtx context.Context, url string, timeout time.Duration, err error) error {
	if parent.Err() == nil && errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{URL: url, After: timeout}
	}
	return fmt.Errorf("fetch feed %s: %w", url, err)
}

// statusText returns the reason phrase, preferring the one the server sent.
func statusText(resp *http.Response) string {
	if _, reason, ok := strings.Cut(resp.Status, " "); ok && reason != "" {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}

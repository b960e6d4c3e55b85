// Package fetch retrieves agenda reports and meeting listings from the 3GPP
// file server or a local mirror.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"tdocflow/internal/logger"
	"tdocflow/internal/util"
)

// DefaultMaxBody caps a single download. Agenda reports of large meetings
// are a few megabytes.
const DefaultMaxBody = 64 << 20

type Client struct {
	http *http.Client
	log  *logger.Logger
	// MaxBody is the largest response accepted; longer bodies fail with
	// util.ErrBodyTooLarge.
	MaxBody int64
}

func NewClient(timeout time.Duration, log *logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{http: &http.Client{Timeout: timeout}, log: logger.OrNop(log), MaxBody: DefaultMaxBody}
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
}

func (e *StatusError) Unwrap() error { return util.ErrFetchStatus }

// Get returns the bytes at location: an http(s) URL, a file:// URL or a local
// path.
func (c *Client) Get(ctx context.Context, location string) ([]byte, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("fetch: empty location")
	}
	u, err := url.Parse(location)
	if err == nil {
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			return c.getHTTP(ctx, location)
		case "file":
			return readFile(u.Path)
		}
	}
	return readFile(location)
}

func (c *Client) getHTTP(ctx context.Context, location string) ([]byte, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "tdocflow/1")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", location, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: location, Status: resp.StatusCode}
	}
	limit := c.MaxBody
	if limit <= 0 {
		limit = DefaultMaxBody
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", location, err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("fetch %s: %w (limit %d bytes)", location, util.ErrBodyTooLarge, limit)
	}
	c.log.Debug("fetched", "url", location, "bytes", len(body), "elapsed_ms", time.Since(start).Milliseconds())
	return body, nil
}

func readFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return b, nil
}

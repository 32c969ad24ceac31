// Package registry resolves package-registry endpoints and queries them for
// download-count signals. All queries are read-only.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	apperrors "git.home.luguber.info/inful/docsmith/internal/errors"
)

// Registry schemes understood by the client.
const (
	SchemePyPI   = "pypi"
	SchemeNPM    = "npm"
	SchemeCrates = "crates"
)

var defaultBaseURLs = map[string]string{
	SchemePyPI:   "https://pypistats.org/api",
	SchemeNPM:    "https://api.npmjs.org",
	SchemeCrates: "https://crates.io/api/v1",
}

// Client queries package registries for recent download counts.
type Client struct {
	httpClient *http.Client
	baseURLs   map[string]string
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the base URL for one registry scheme (used by tests
// and air-gapped mirrors).
func WithBaseURL(scheme, base string) Option {
	return func(c *Client) { c.baseURLs[scheme] = base }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient builds a registry client with the given per-request timeout.
func NewClient(timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURLs:   make(map[string]string, len(defaultBaseURLs)),
	}
	for scheme, base := range defaultBaseURLs {
		c.baseURLs[scheme] = base
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Supported reports whether the scheme has a known endpoint.
func (c *Client) Supported(scheme string) bool {
	_, ok := c.baseURLs[scheme]
	return ok
}

// Downloads queries the registry identified by scheme for the recent download
// count of the given registry-local identifier. Transient failures (timeouts,
// connection errors, 429, 5xx) come back marked retryable.
func (c *Client) Downloads(ctx context.Context, scheme, id string) (int64, error) {
	endpoint, err := c.endpoint(scheme, id)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "docsmith (docs build pipeline)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTransportTransient(err) {
			return 0, apperrors.WrapRetryable(err, apperrors.CategoryNetwork, apperrors.SeverityWarning, "registry request failed").
				WithContext("url", endpoint)
		}
		return 0, apperrors.Wrap(err, apperrors.CategoryNetwork, apperrors.SeverityWarning, "registry request failed").
			WithContext("url", endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %d", resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return 0, apperrors.WrapRetryable(err, apperrors.CategoryRegistry, apperrors.SeverityWarning, "registry returned transient error").
				WithContext("url", endpoint)
		}
		return 0, apperrors.Wrap(err, apperrors.CategoryRegistry, apperrors.SeverityWarning, "registry rejected query").
			WithContext("url", endpoint)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, apperrors.WrapRetryable(err, apperrors.CategoryNetwork, apperrors.SeverityWarning, "registry response read failed").
			WithContext("url", endpoint)
	}

	count, err := parseDownloads(scheme, body)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CategoryRegistry, apperrors.SeverityWarning, "registry response unparseable").
			WithContext("url", endpoint)
	}
	if count < 0 {
		return 0, apperrors.New(apperrors.CategoryRegistry, apperrors.SeverityWarning, "registry reported negative download count").
			WithContext("url", endpoint)
	}
	return count, nil
}

func (c *Client) endpoint(scheme, id string) (string, error) {
	base, ok := c.baseURLs[scheme]
	if !ok {
		return "", apperrors.RegistryUnknown(scheme)
	}
	escaped := url.PathEscape(id)
	switch scheme {
	case SchemePyPI:
		return fmt.Sprintf("%s/packages/%s/recent", base, escaped), nil
	case SchemeNPM:
		// npm scoped names keep their slash in the download API path.
		return fmt.Sprintf("%s/downloads/point/last-month/%s", base, id), nil
	case SchemeCrates:
		return fmt.Sprintf("%s/crates/%s", base, escaped), nil
	default:
		return "", apperrors.RegistryUnknown(scheme)
	}
}

func parseDownloads(scheme string, body []byte) (int64, error) {
	switch scheme {
	case SchemePyPI:
		var payload struct {
			Data struct {
				LastMonth int64 `json:"last_month"`
			} `json:"data"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return 0, err
		}
		return payload.Data.LastMonth, nil
	case SchemeNPM:
		var payload struct {
			Downloads int64 `json:"downloads"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return 0, err
		}
		return payload.Downloads, nil
	case SchemeCrates:
		var payload struct {
			Crate struct {
				RecentDownloads int64 `json:"recent_downloads"`
			} `json:"crate"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return 0, err
		}
		return payload.Crate.RecentDownloads, nil
	default:
		return 0, fmt.Errorf("unknown scheme %q", scheme)
	}
}

func isTransportTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// Package catalog fetches the full remote card catalog as an ordered
// sequence of raw records, one fixed-size page at a time.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cardvault/cardvault/internal/domain"
	"github.com/cardvault/cardvault/internal/metrics"
)

const (
	// DefaultPageSize is the maximum page size the catalog API allows.
	DefaultPageSize = 250

	// DefaultPageDelay is the courtesy pause between page requests so a
	// full-catalog pull does not trip the remote rate limiter.
	DefaultPageDelay = 500 * time.Millisecond

	// DefaultRetries bounds the attempts per page before the whole run
	// gives up.
	DefaultRetries = 6

	// DefaultRetryWait is the base backoff between attempts; the actual
	// wait grows linearly with the attempt number.
	DefaultRetryWait = 3 * time.Second
)

// FetchError is fatal: a page could not be retrieved even after retries,
// so the catalog is incomplete and the run must abort.
type FetchError struct {
	Page   int
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch page %d: status %d", e.Page, e.Status)
	}
	return fmt.Sprintf("fetch page %d: %v", e.Page, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client pages through the remote catalog API.
type Client struct {
	BaseURL   string
	APIKey    string
	TeamID    string
	PageSize  int
	PageDelay time.Duration
	Retries   int
	RetryWait time.Duration
	HTTP      *http.Client
	Metrics   *metrics.Registry
}

// NewClient returns a Client with the default paging and retry behavior.
func NewClient(baseURL, apiKey, teamID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		APIKey:    apiKey,
		TeamID:    teamID,
		PageSize:  DefaultPageSize,
		PageDelay: DefaultPageDelay,
		Retries:   DefaultRetries,
		RetryWait: DefaultRetryWait,
		HTTP:      &http.Client{Timeout: 30 * time.Second},
	}
}

// FetchAll retrieves every page of the catalog starting at page 1 and
// concatenates them in request order, preserving within-page order.
// Pagination stops at the first page shorter than PageSize. Any page that
// cannot be retrieved after retries yields a *FetchError.
func (c *Client) FetchAll(ctx context.Context) ([]domain.RawCard, error) {
	var all []domain.RawCard
	for page := 1; ; page++ {
		cards, err := c.fetchPage(ctx, page)
		if err != nil {
			return nil, err
		}
		all = append(all, cards...)
		slog.Debug("fetched catalog page", "page", page, "cards", len(cards), "total", len(all))

		if len(cards) < c.PageSize {
			break
		}
		if err := sleep(ctx, c.PageDelay); err != nil {
			return nil, &FetchError{Page: page + 1, Err: err}
		}
	}
	slog.Info("catalog fetch complete", "cards", len(all))
	return all, nil
}

// fetchPage requests one page, retrying with linearly growing backoff.
func (c *Client) fetchPage(ctx context.Context, page int) ([]domain.RawCard, error) {
	var lastErr error
	for attempt := 1; attempt <= c.Retries; attempt++ {
		cards, err := c.requestPage(ctx, page)
		if err == nil {
			if c.Metrics != nil {
				c.Metrics.PagesFetched.Inc()
			}
			return cards, nil
		}
		if ctx.Err() != nil {
			return nil, &FetchError{Page: page, Err: ctx.Err()}
		}
		lastErr = err
		slog.Warn("catalog page fetch failed", "page", page, "attempt", attempt, "error", err)
		if attempt < c.Retries {
			if serr := sleep(ctx, c.RetryWait*time.Duration(attempt)); serr != nil {
				return nil, &FetchError{Page: page, Err: serr}
			}
		}
	}
	if fe, ok := lastErr.(*FetchError); ok {
		return nil, fe
	}
	return nil, &FetchError{Page: page, Err: lastErr}
}

func (c *Client) requestPage(ctx context.Context, page int) ([]domain.RawCard, error) {
	q := url.Values{}
	q.Set("pageSize", strconv.Itoa(c.PageSize))
	q.Set("page", strconv.Itoa(page))
	q.Set("include", "prices")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/cards?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	if c.TeamID != "" {
		req.Header.Set("X-Team-Id", c.TeamID)
	}

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if c.Metrics != nil {
		c.Metrics.FetchSeconds.Observe(time.Since(start).Seconds())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, &FetchError{Page: page, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return decodeEnvelope(body)
}

// decodeEnvelope accepts the three response shapes the API is known to
// produce: a list under "data", a list under "cards", or a bare list. A
// present-but-null list, which some deployments emit for the final page,
// counts as an empty page.
func decodeEnvelope(body []byte) ([]domain.RawCard, error) {
	var env struct {
		Data  json.RawMessage `json:"data"`
		Cards json.RawMessage `json:"cards"`
	}
	if err := json.Unmarshal(body, &env); err == nil {
		for _, raw := range []json.RawMessage{env.Data, env.Cards} {
			if raw == nil {
				continue
			}
			if string(raw) == "null" {
				return nil, nil
			}
			var cards []domain.RawCard
			if err := json.Unmarshal(raw, &cards); err != nil {
				return nil, fmt.Errorf("unrecognized record list: %w", err)
			}
			return cards, nil
		}
	}
	var list []domain.RawCard
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("unrecognized response envelope: %w", err)
	}
	return list, nil
}

// sleep waits for d or until ctx is canceled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Package identify is the client side of the card-identification boundary:
// it submits a card photo to the external recognition service and decodes
// the identified match. The recognition model itself is an external
// collaborator.
package identify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Match is the service's answer for one submitted image. Confidence is in
// [0,1] when present; CardID is a numeric identifier some deployments of
// the service return alongside the name.
type Match struct {
	Name       string   `json:"name"`
	Confidence *float64 `json:"confidence,omitempty"`
	CardID     *int64   `json:"card_id,omitempty"`
}

// Client talks to the identification service.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient returns a Client with the given endpoint and request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Identify uploads the image as a multipart form and returns the match.
func (c *Client) Identify(ctx context.Context, image io.Reader, filename string) (Match, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return Match{}, fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return Match{}, fmt.Errorf("failed to read image: %w", err)
	}
	if err := w.Close(); err != nil {
		return Match{}, fmt.Errorf("failed to finalize upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/upload", &body)
	if err != nil {
		return Match{}, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Match{}, fmt.Errorf("identification request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return Match{}, fmt.Errorf("identification service returned status %d", resp.StatusCode)
	}

	var m Match
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return Match{}, fmt.Errorf("failed to decode identification response: %w", err)
	}
	return m, nil
}

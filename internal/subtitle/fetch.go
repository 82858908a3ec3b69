// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package subtitle

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/ManuGH/playbackd/internal/player/model"
)

const maxSubtitleBytes = 2 << 20 // 2 MiB is generous for SRT text

// Fetcher pulls SRT content from the remote subtitle service.
type Fetcher struct {
	baseURL string
	client  *http.Client
}

// NewFetcher constructs a fetcher against the service base URL.
func NewFetcher(baseURL string, client *http.Client) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{baseURL: baseURL, client: client}
}

// Fetch retrieves the SRT payload for a content item in the given language.
func (f *Fetcher) Fetch(ctx context.Context, contentID string, contentType model.ContentType, language string) (string, error) {
	u, err := url.Parse(f.baseURL)
	if err != nil {
		return "", fmt.Errorf("subtitle: base url: %w", err)
	}
	u = u.JoinPath("api", "subtitles", string(contentType), contentID)
	q := u.Query()
	q.Set("lang", language)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("subtitle: request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("subtitle: fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("subtitle: service returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSubtitleBytes))
	if err != nil {
		return "", fmt.Errorf("subtitle: read body: %w", err)
	}
	return string(body), nil
}

// ErrNotFound reports that the service has no subtitles for the item/language.
var ErrNotFound = fmt.Errorf("subtitle: not found")

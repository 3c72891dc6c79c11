package tle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	maxBodyBytes     = 50 << 20
	defaultUserAgent = "RDS-SARSAT-Fetch/1.0"
)

// Fetcher performs single GET requests for element text. Retry and endpoint
// fallback live in Provider.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher. A nil client uses a fresh http.Client; the
// per-attempt timeout is applied through the request context.
func NewFetcher(client *http.Client, userAgent string, timeout time.Duration, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		httpClient: client,
		userAgent:  userAgent,
		timeout:    timeout,
		logger:     logger,
	}
}

// Fetch GETs url and returns the body. Non-200 responses, empty bodies and
// bodies over 50 MB are errors.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/plain")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("response from %s exceeds %d byte limit", url, maxBodyBytes)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("empty response from %s", url)
	}

	f.logger.Debug("element text fetched", "url", url, "bytes", len(body))
	return body, nil
}

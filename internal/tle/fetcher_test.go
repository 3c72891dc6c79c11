package tle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetcherSuccess(t *testing.T) {
	ua := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua <- r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(noaa19Text()))
	}))
	defer server.Close()

	f := NewFetcher(nil, "rds-test/1.0", time.Second, testLogger)
	data, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, noaa19Text(), string(data))
	assert.Equal(t, "rds-test/1.0", <-ua)
}

func TestFetcherDefaultUserAgent(t *testing.T) {
	ua := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua <- r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("x"))
	}))
	defer server.Close()

	_, err := NewFetcher(nil, "", 0, testLogger).Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, defaultUserAgent, <-ua)
}

func TestFetcherHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewFetcher(nil, "", time.Second, testLogger).Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestFetcherEmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, err := NewFetcher(nil, "", time.Second, testLogger).Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")
}

// Responses over 50 MB are rejected instead of buffered.
func TestFetcherBodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		chunk := []byte(strings.Repeat("A", 1<<20))
		for i := 0; i < 52; i++ {
			if _, err := w.Write(chunk); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	_, err := NewFetcher(nil, "", 30*time.Second, testLogger).Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "byte limit")
}

func TestFetcherTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	start := time.Now()
	_, err := NewFetcher(nil, "", 50*time.Millisecond, testLogger).Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

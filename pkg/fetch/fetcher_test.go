package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"tg-scraper/pkg/utils"
)

// testLogger returns a logger that discards output
func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// testClient returns an http.Client suitable for testing
func testClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second, // Generous timeout for tests
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// mockServer creates an httptest.Server that always returns the given status.
// Returns the server and an atomic counter tracking request attempts.
func mockServer(t *testing.T, statusCode int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	attemptCount := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attemptCount.Add(1)
		w.WriteHeader(statusCode)
	}))
	t.Cleanup(server.Close)
	return server, attemptCount
}

func TestFetch_Success(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
	}{
		{"200 OK", http.StatusOK},
		{"201 Created", http.StatusCreated},
		{"204 No Content", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, attempts := mockServer(t, tt.statusCode)

			fetcher := NewFetcher(testClient(), testLogger())
			req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

			resp, err := fetcher.Fetch(req, context.Background())

			if err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}
			if resp == nil {
				t.Fatal("expected response, got nil")
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.statusCode {
				t.Errorf("expected status %d, got %d", tt.statusCode, resp.StatusCode)
			}
			if attempts.Load() != 1 {
				t.Errorf("expected 1 attempt, got %d", attempts.Load())
			}
		})
	}
}

func TestFetch_ServerError_NoRetry(t *testing.T) {
	// A 5xx is terminal for the link: exactly one attempt, no backoff loop
	server, attempts := mockServer(t, http.StatusInternalServerError)

	fetcher := NewFetcher(testClient(), testLogger())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	resp, err := fetcher.Fetch(req, context.Background())

	if err == nil {
		t.Fatal("expected error for 5xx status")
	}
	if !errors.Is(err, utils.ErrServerHTTPError) {
		t.Errorf("expected ErrServerHTTPError, got: %v", err)
	}
	if resp == nil {
		t.Fatal("expected response for 5xx (caller closes body)")
	}
	resp.Body.Close()

	if attempts.Load() != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", attempts.Load())
	}
}

func TestFetch_RateLimited_NoRetry(t *testing.T) {
	server, attempts := mockServer(t, http.StatusTooManyRequests)

	fetcher := NewFetcher(testClient(), testLogger())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	resp, err := fetcher.Fetch(req, context.Background())

	if err == nil {
		t.Fatal("expected error for 429 status")
	}
	if !errors.Is(err, utils.ErrClientHTTPError) {
		t.Errorf("expected ErrClientHTTPError, got: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	if attempts.Load() != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", attempts.Load())
	}
}

func TestFetch_ClientError(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
	}{
		{"404 Not Found", http.StatusNotFound},
		{"403 Forbidden", http.StatusForbidden},
		{"401 Unauthorized", http.StatusUnauthorized},
		{"400 Bad Request", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, attempts := mockServer(t, tt.statusCode)

			fetcher := NewFetcher(testClient(), testLogger())
			req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

			resp, err := fetcher.Fetch(req, context.Background())

			// 4xx errors return both response AND error (caller may need response)
			if err == nil {
				t.Fatal("expected error for 4xx status")
			}
			if !errors.Is(err, utils.ErrClientHTTPError) {
				t.Errorf("expected ErrClientHTTPError, got: %v", err)
			}
			if resp == nil {
				t.Fatal("expected response for 4xx (caller may need to inspect)")
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.statusCode {
				t.Errorf("expected status %d, got %d", tt.statusCode, resp.StatusCode)
			}
			if attempts.Load() != 1 {
				t.Errorf("expected 1 attempt, got %d", attempts.Load())
			}
		})
	}
}

func TestFetch_ContextCancelled_BeforeAttempt(t *testing.T) {
	server, attempts := mockServer(t, http.StatusOK)

	fetcher := NewFetcher(testClient(), testLogger())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	// Cancel context before calling Fetch
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := fetcher.Fetch(req, ctx)

	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
		t.Error("expected nil response for cancelled context")
	}
	if attempts.Load() != 0 {
		t.Errorf("expected 0 attempts (cancelled before attempt), got %d", attempts.Load())
	}
}

func TestFetch_ContextTimeout_DuringRequest(t *testing.T) {
	// Server delays response longer than context timeout
	slowServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(slowServer.Close)

	fetcher := NewFetcher(testClient(), testLogger())
	req, _ := http.NewRequest(http.MethodGet, slowServer.URL, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	resp, err := fetcher.Fetch(req, ctx)

	if err == nil {
		t.Fatal("expected error for timeout")
	}
	if resp != nil {
		resp.Body.Close()
		t.Error("expected nil response")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got: %v", err)
	}
}

func TestFetch_NetworkError(t *testing.T) {
	attemptCount := &atomic.Int32{}

	// Handler that closes the connection to simulate a network error
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attemptCount.Add(1)
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatal("server doesn't support hijacking")
		}
		conn, _, _ := hj.Hijack()
		conn.Close()
	}))
	t.Cleanup(server.Close)

	fetcher := NewFetcher(testClient(), testLogger())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	resp, err := fetcher.Fetch(req, context.Background())

	if err == nil {
		t.Fatal("expected network error")
	}
	if resp != nil {
		resp.Body.Close()
		t.Error("expected nil response on network error")
	}
	if attemptCount.Load() != 1 {
		t.Errorf("expected exactly 1 attempt (no retry on network error), got %d", attemptCount.Load())
	}
}

func TestNewRequest(t *testing.T) {
	req, err := NewRequest(context.Background(), "https://telegra.ph/Some-Page", "test-agent/1.0")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if got := req.Header.Get("User-Agent"); got != "test-agent/1.0" {
		t.Errorf("expected User-Agent 'test-agent/1.0', got %q", got)
	}
	if req.Method != http.MethodGet {
		t.Errorf("expected GET, got %s", req.Method)
	}
}

func TestNewRequest_InvalidURL(t *testing.T) {
	_, err := NewRequest(context.Background(), "http://exa mple.com/\x00", "agent")
	if err == nil {
		t.Fatal("expected error for invalid URL")
	}
	if !errors.Is(err, utils.ErrRequestCreation) {
		t.Errorf("expected ErrRequestCreation, got: %v", err)
	}
}

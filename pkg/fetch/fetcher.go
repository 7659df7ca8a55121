package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"tg-scraper/pkg/utils"
)

// Fetcher performs single-attempt HTTP requests using an underlying http.Client.
// Failed links are skipped and picked up by a later run, so there is no retry
// loop here: one attempt, classified by status, and the caller moves on.
type Fetcher struct {
	client *http.Client // The configured HTTP client to use for requests
	log    *logrus.Logger
}

// NewFetcher creates a new Fetcher instance
func NewFetcher(client *http.Client, log *logrus.Logger) *Fetcher {
	return &Fetcher{
		client: client,
		log:    log,
	}
}

// Fetch performs the HTTP request associated with the provided context.
// On 2xx the response is returned with a nil error. On any other status the
// response is returned alongside a sentinel-wrapped error; the caller must
// close the body whenever the returned response is non-nil.
func (f *Fetcher) Fetch(req *http.Request, ctx context.Context) (*http.Response, error) {
	reqLog := f.log.WithField("url", req.URL.String())

	// Check if the context has been cancelled before making the attempt
	select {
	case <-ctx.Done():
		reqLog.Warnf("Context cancelled before fetch: %v", ctx.Err())
		return nil, fmt.Errorf("context cancelled before fetch: %w", ctx.Err())
	default:
	}

	resp, err := f.client.Do(req.WithContext(ctx))

	// --- Handle Network-Level Errors ---
	// Errors occurring before getting an HTTP response (DNS, TCP, TLS errors etc.)
	if err != nil {
		// Ensure response body (if partially received) is closed
		if resp != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			reqLog.Warnf("Context cancelled/timed out during HTTP request execution: %v", err)
			return nil, err
		}
		reqLog.Errorf("Network error: %v", err)
		return nil, err
	}

	// --- Handle HTTP Status Codes ---
	statusCode := resp.StatusCode
	resLog := reqLog.WithFields(logrus.Fields{"status_code": statusCode, "status": resp.Status})

	switch {
	case statusCode >= 200 && statusCode < 300:
		// Success (2xx). Caller must close body
		resLog.Debug("Successfully fetched")
		return resp, nil

	case statusCode >= 500:
		resLog.Warn("Server error")
		return resp, fmt.Errorf("%w: status %d %s", utils.ErrServerHTTPError, statusCode, resp.Status)

	case statusCode >= 400 && statusCode < 500:
		resLog.Warn("Client error (4xx)")
		return resp, fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, resp.Status)

	default:
		// Other non-2xx statuses (e.g., 3xx if redirects were exhausted, or other unexpected codes)
		resLog.Warnf("Unexpected status: %d", statusCode)
		return resp, fmt.Errorf("%w: status %d %s", utils.ErrOtherHTTPError, statusCode, resp.Status)
	}
}

// NewRequest builds a GET request with the configured User-Agent attached.
func NewRequest(ctx context.Context, rawURL, userAgent string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request for '%s': %w", utils.ErrRequestCreation, rawURL, err)
	}
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

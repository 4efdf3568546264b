// Package media retrieves remote media by URL and converts it into the
// payload form the session engine expects.
package media

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"time"

	"github.com/wa-bridge/backend/internal/engine"
)

const defaultContentType = "application/octet-stream"

// FetchError reports a failed media retrieval: transport errors, or a
// non-success status from the remote host.
type FetchError struct {
	URL    string
	Status int // 0 when the request never completed
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("media fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("media fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// TooLargeError reports a payload exceeding the configured size bound.
type TooLargeError struct {
	URL   string
	Limit int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("media at %s exceeds %d byte limit", e.URL, e.Limit)
}

// Fetcher resolves media references with a bounded timeout and payload size.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewFetcher creates a fetcher. The timeout covers the whole fetch including
// body read; maxBytes caps the accepted payload size.
func NewFetcher(timeout time.Duration, maxBytes int64) *Fetcher {
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

// Resolve fetches the reference and returns an engine payload. The size
// bound is enforced while reading — an oversized response is abandoned as
// soon as the limit is crossed, it is never buffered whole.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (*engine.Media, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, &FetchError{URL: ref, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: ref, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{URL: ref, Status: resp.StatusCode}
	}

	if resp.ContentLength > f.maxBytes {
		return nil, &TooLargeError{URL: ref, Limit: f.maxBytes}
	}

	// Read one byte past the limit: exactly maxBytes is fine, more is not.
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, &FetchError{URL: ref, Err: err}
	}
	if int64(len(data)) > f.maxBytes {
		return nil, &TooLargeError{URL: ref, Limit: f.maxBytes}
	}

	return &engine.Media{
		Data:        data,
		ContentType: contentType(resp),
		Filename:    path.Base(req.URL.Path),
	}, nil
}

func contentType(resp *http.Response) string {
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		return defaultContentType
	}
	parsed, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return defaultContentType
	}
	return parsed
}

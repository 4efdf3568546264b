package media

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestFetcher(maxBytes int64) *Fetcher {
	return NewFetcher(5*time.Second, maxBytes)
}

func TestResolve(t *testing.T) {
	payload := []byte("fake-png-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(payload)
	}))
	defer srv.Close()

	m, err := newTestFetcher(1024).Resolve(context.Background(), srv.URL+"/pic.png")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !bytes.Equal(m.Data, payload) {
		t.Errorf("payload = %q, want %q", m.Data, payload)
	}
	if m.ContentType != "image/png" {
		t.Errorf("content type = %q, want image/png", m.ContentType)
	}
	if m.Filename != "pic.png" {
		t.Errorf("filename = %q, want pic.png", m.Filename)
	}
}

func TestResolveContentTypeDefault(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"Missing", "", "application/octet-stream"},
		{"Garbage", ";;;", "application/octet-stream"},
		{"WithParams", "image/jpeg; charset=binary", "image/jpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.header == "" {
					// Suppress Go's content sniffing so the header is truly absent.
					w.Header()["Content-Type"] = nil
				} else {
					w.Header()["Content-Type"] = []string{tt.header}
				}
				w.Write([]byte{0x01, 0x02})
			}))
			defer srv.Close()

			m, err := newTestFetcher(1024).Resolve(context.Background(), srv.URL)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if m.ContentType != tt.want {
				t.Errorf("content type = %q, want %q", m.ContentType, tt.want)
			}
		})
	}
}

func TestResolveTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 64))
	}))
	defer srv.Close()

	_, err := newTestFetcher(16).Resolve(context.Background(), srv.URL)
	var tooLarge *TooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("expected TooLargeError, got %v", err)
	}
	if tooLarge.Limit != 16 {
		t.Errorf("limit = %d, want 16", tooLarge.Limit)
	}
}

func TestResolveExactlyAtLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 16))
	}))
	defer srv.Close()

	m, err := newTestFetcher(16).Resolve(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Resolve at exact limit: %v", err)
	}
	if len(m.Data) != 16 {
		t.Errorf("payload length = %d, want 16", len(m.Data))
	}
}

func TestResolveNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestFetcher(1024).Resolve(context.Background(), srv.URL)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.Status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", fe.Status)
	}
}

func TestResolveConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // immediately, so the address refuses connections

	_, err := newTestFetcher(1024).Resolve(context.Background(), srv.URL)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.Status != 0 {
		t.Errorf("status = %d, want 0 for transport failure", fe.Status)
	}
}

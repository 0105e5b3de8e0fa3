package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

const chainBody = `{"ticker":"SPY","contract_symbol":"SPY251219C00600000","option_type":"call","underlying_type":"etf"}
{"ticker":"SPY","contract_symbol":"SPY251219P00600000","option_type":"put","underlying_type":"etf"}
`

func TestFetchChain_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Verify auth header
		auth := r.Header.Get("Authorization")
		if auth != "Bearer test-key" {
			t.Errorf("expected Bearer test-key, got %s", auth)
		}

		// Verify path
		expectedPath := "/v1/chains/SPY"
		if r.URL.Path != expectedPath {
			t.Errorf("expected path %s, got %s", expectedPath, r.URL.Path)
		}

		if got := r.URL.Query().Get("date"); got != "2025-11-14" {
			t.Errorf("expected date 2025-11-14, got %s", got)
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = w.Write([]byte(chainBody))
	}))
	defer server.Close()

	logger, _ := zap.NewDevelopment()
	client := NewClient(server.URL, "test-key", 10, 30*time.Second, 1*time.Second, 3, logger)

	var buf bytes.Buffer
	n, err := client.FetchChain(context.Background(), "SPY", "2025-11-14", &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n != int64(len(chainBody)) {
		t.Errorf("expected %d bytes, got %d", len(chainBody), n)
	}

	if buf.String() != chainBody {
		t.Errorf("unexpected body: %s", buf.String())
	}
}

func TestFetchChain_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	logger, _ := zap.NewDevelopment()
	client := NewClient(server.URL, "test-key", 10, 30*time.Second, 1*time.Second, 0, logger)

	_, err := client.FetchChain(context.Background(), "SPY", "2025-11-14", &bytes.Buffer{})
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if Retryable(err) {
		t.Error("not found should not be retryable")
	}
}

func TestFetchChain_AuthFailed(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	logger, _ := zap.NewDevelopment()
	client := NewClient(server.URL, "wrong", 10, 30*time.Second, 10*time.Millisecond, 3, logger)

	_, err := client.FetchChain(context.Background(), "SPY", "2025-11-14", &bytes.Buffer{})
	if !errors.Is(err, ErrAuthFailed) {
		t.Errorf("expected ErrAuthFailed, got %v", err)
	}
	if n := atomic.LoadInt32(&attempts); n != 1 {
		t.Errorf("auth failures should not be retried, got %d attempts", n)
	}
}

func TestFetchChain_RateLimited(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	logger, _ := zap.NewDevelopment()
	client := NewClient(server.URL, "test-key", 10, 30*time.Second, 10*time.Millisecond, 2, logger)

	_, err := client.FetchChain(context.Background(), "SPY", "2025-11-14", &bytes.Buffer{})
	if err == nil {
		t.Error("expected error for rate limiting")
	}
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected wrapped ErrRateLimited, got %v", err)
	}

	// Should have attempted 3 times (initial + 2 retries)
	if n := atomic.LoadInt32(&attempts); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
}

func TestFetchChain_RecoversFromServerError(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(chainBody))
	}))
	defer server.Close()

	logger, _ := zap.NewDevelopment()
	client := NewClient(server.URL, "test-key", 10, 30*time.Second, 10*time.Millisecond, 2, logger)

	var buf bytes.Buffer
	if _, err := client.FetchChain(context.Background(), "SPY", "2025-11-14", &buf); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if n := atomic.LoadInt32(&attempts); n != 2 {
		t.Errorf("expected 2 attempts, got %d", n)
	}
	if buf.String() != chainBody {
		t.Errorf("unexpected body: %s", buf.String())
	}
}

func TestFetchChain_BadRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad date", http.StatusBadRequest)
	}))
	defer server.Close()

	logger, _ := zap.NewDevelopment()
	client := NewClient(server.URL, "test-key", 10, 30*time.Second, 10*time.Millisecond, 2, logger)

	_, err := client.FetchChain(context.Background(), "SPY", "yesterday", &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error for bad request")
	}
	if !strings.Contains(err.Error(), "400") || !strings.Contains(err.Error(), "bad date") {
		t.Errorf("error should carry status and body, got: %v", err)
	}
}

package filter

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestHTTPConvert(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.Header.Get("X-Reforge-Name") == "drop.txt" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_, _ = w.Write([]byte(strings.ToUpper(string(body))))
	}))
	defer ts.Close()

	h := HTTPConvert{URL: ts.URL, Patterns: MustCompile("*.txt")}
	got, err := h.RewriteBlob(context.Background(), newBlob("a.txt", "hello"))
	if err != nil {
		t.Fatalf("RewriteBlob: %v", err)
	}
	if len(got) != 1 || content(t, got[0]) != "HELLO" {
		t.Fatalf("converted = %v", names(got))
	}

	got, err = h.RewriteBlob(context.Background(), newBlob("drop.txt", "x"))
	if err != nil || len(got) != 0 {
		t.Errorf("204 response = %v, %v; want deleted", names(got), err)
	}

	got, _ = h.RewriteBlob(context.Background(), newBlob("a.bin", "raw"))
	if content(t, got[0]) != "raw" {
		t.Errorf("unselected file converted")
	}
}

func TestHTTPConvertRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(body)
	}))
	defer ts.Close()

	h := HTTPConvert{URL: ts.URL, Attempts: 3, Backoff: time.Millisecond}
	got, err := h.RewriteBlob(context.Background(), newBlob("a.txt", "same"))
	if err != nil {
		t.Fatalf("RewriteBlob: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	if got[0].Modified() {
		t.Error("identical response marked the blob modified")
	}
}

func TestHTTPConvertDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "no such converter", http.StatusNotFound)
	}))
	defer ts.Close()

	h := HTTPConvert{URL: ts.URL, Attempts: 3, Backoff: time.Millisecond}
	_, err := h.RewriteBlob(context.Background(), newBlob("a.txt", "x"))
	if err == nil || !strings.Contains(err.Error(), "status 404") || !strings.Contains(err.Error(), "no such converter") {
		t.Fatalf("err = %v, want 404 with body", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestHTTPConvertGivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	h := HTTPConvert{URL: ts.URL, Attempts: 2, Backoff: time.Millisecond}
	_, err := h.RewriteBlob(context.Background(), newBlob("a.txt", "x"))
	if err == nil || !strings.Contains(err.Error(), "status 429") {
		t.Fatalf("err = %v, want status 429", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestRetryDoHonoursContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, ts.URL, strings.NewReader("x"))
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := retryDo(ctx, ts.Client(), req, 10, time.Hour)
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

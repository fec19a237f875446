package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Pragya1904/HTTP-Inventory/internal/config"
	"github.com/Pragya1904/HTTP-Inventory/internal/domain"
)

func newTestFetcher(connect, read time.Duration) *HTTPFetcher {
	return New(config.ProcessingConfig{
		FetchConnectTimeout: connect,
		FetchReadTimeout:    read,
		FetchUserAgent:      "inventory-test/1.0",
	}, zap.NewNop())
}

func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "inventory-test/1.0" {
			t.Errorf("expected configured user agent, got %q", got)
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc"})
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html>hello</html>"))
	}))
	defer srv.Close()

	f := newTestFetcher(2*time.Second, 5*time.Second)
	defer f.Close()

	result, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.StatusCode != 200 {
		t.Errorf("expected status 200, got %d", result.StatusCode)
	}
	if result.PageSource != "<html>hello</html>" {
		t.Errorf("unexpected page source: %q", result.PageSource)
	}
	if result.FinalURL != srv.URL {
		t.Errorf("expected final url %s, got %s", srv.URL, result.FinalURL)
	}
	if ct := result.Headers["Content-Type"]; ct != "text/html" {
		t.Errorf("expected content-type header, got %q", ct)
	}
	if result.Cookies["session"] != "abc" {
		t.Errorf("expected session cookie, got %v", result.Cookies)
	}
}

func TestFetch_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("landed"))
	})

	f := newTestFetcher(2*time.Second, 5*time.Second)
	defer f.Close()

	result, err := f.Fetch(context.Background(), srv.URL+"/start")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FinalURL != srv.URL+"/final" {
		t.Errorf("expected final url after redirect, got %s", result.FinalURL)
	}
	if result.PageSource != "landed" {
		t.Errorf("expected redirected body, got %q", result.PageSource)
	}
}

func TestFetch_HTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher(2*time.Second, 5*time.Second)
	defer f.Close()

	_, err := f.Fetch(context.Background(), srv.URL)
	if !errors.Is(err, domain.ErrFetchError) {
		t.Fatalf("expected ErrFetchError, got %v", err)
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("expected status code in error, got %q", err.Error())
	}
}

func TestFetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte("late"))
	}))
	defer srv.Close()

	f := newTestFetcher(2*time.Second, 50*time.Millisecond)
	defer f.Close()

	_, err := f.Fetch(context.Background(), srv.URL)
	if !errors.Is(err, domain.ErrFetchTimeout) {
		t.Fatalf("expected ErrFetchTimeout, got %v", err)
	}
}

func TestFetch_ConnectionRefused(t *testing.T) {
	f := newTestFetcher(200*time.Millisecond, time.Second)
	defer f.Close()

	// Reserved port with nothing listening.
	_, err := f.Fetch(context.Background(), "http://127.0.0.1:1")
	if !errors.Is(err, domain.ErrFetchError) && !errors.Is(err, domain.ErrFetchTimeout) {
		t.Fatalf("expected a fetch error kind, got %v", err)
	}
}

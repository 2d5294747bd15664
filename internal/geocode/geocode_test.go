package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const reverseBody = `{"display_name":"1 Market St, Springfield","lat":"39.781700","lon":"-89.650100","address":{"road":"Market St","city":"Springfield"}}`

func TestReverse(t *testing.T) {
	var gotUA, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotPath = r.URL.Path
		if r.URL.Query().Get("format") != "json" {
			t.Errorf("format = %q, want json", r.URL.Query().Get("format"))
		}
		w.Write([]byte(reverseBody))
	}))
	defer server.Close()

	svc := NewService(Config{BaseURL: server.URL, UserAgent: "closeshop-test/1.0"})
	place, err := svc.Reverse(context.Background(), 39.7817, -89.6501)
	if err != nil {
		t.Fatalf("Reverse: %v", err)
	}

	if gotUA != "closeshop-test/1.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if gotPath != "/reverse" {
		t.Errorf("path = %q, want /reverse", gotPath)
	}
	if place.DisplayName != "1 Market St, Springfield" {
		t.Errorf("DisplayName = %q", place.DisplayName)
	}
	if place.Lat != 39.7817 || place.Lon != -89.6501 {
		t.Errorf("coords = %v,%v", place.Lat, place.Lon)
	}
	if place.Address["city"] != "Springfield" {
		t.Errorf("city = %q", place.Address["city"])
	}
}

func TestReverseNoResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"Unable to geocode"}`))
	}))
	defer server.Close()

	_, err := NewService(Config{BaseURL: server.URL}).Reverse(context.Background(), 0, 0)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("q") != "bakery" {
			t.Errorf("q = %q", r.URL.Query().Get("q"))
		}
		w.Write([]byte(`[` + reverseBody + `,{"display_name":"Other","lat":"1","lon":"2"}]`))
	}))
	defer server.Close()

	places, err := NewService(Config{BaseURL: server.URL}).Search(context.Background(), "bakery")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(places) != 2 {
		t.Fatalf("got %d places, want 2", len(places))
	}
	if places[1].Lat != 1 || places[1].Lon != 2 {
		t.Errorf("second place coords = %v,%v", places[1].Lat, places[1].Lon)
	}
}

func TestServiceCacheTTL(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(reverseBody))
	}))
	defer server.Close()

	svc := NewService(Config{BaseURL: server.URL, CacheTTL: time.Minute})
	now := time.Now()
	svc.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if _, err := svc.Reverse(context.Background(), 39.7817, -89.6501); err != nil {
			t.Fatalf("Reverse: %v", err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1 (cached)", got)
	}

	now = now.Add(2 * time.Minute)
	if _, err := svc.Reverse(context.Background(), 39.7817, -89.6501); err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("upstream calls = %d, want 2 after expiry", got)
	}
}

func TestServiceStaleOnError(t *testing.T) {
	var fail atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(reverseBody))
	}))
	defer server.Close()

	svc := NewService(Config{BaseURL: server.URL, CacheTTL: time.Minute})
	now := time.Now()
	svc.now = func() time.Time { return now }

	if _, err := svc.Reverse(context.Background(), 1, 1); err != nil {
		t.Fatalf("Reverse: %v", err)
	}

	fail.Store(true)
	now = now.Add(2 * time.Minute)

	place, err := svc.Reverse(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("expected stale data, got error: %v", err)
	}
	if place.DisplayName != "1 Market St, Springfield" {
		t.Errorf("DisplayName = %q", place.DisplayName)
	}

	if _, err := svc.Reverse(context.Background(), 2, 2); err == nil {
		t.Error("expected error for uncached lookup while upstream fails")
	}
}

func TestCleanup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(reverseBody))
	}))
	defer server.Close()

	svc := NewService(Config{BaseURL: server.URL, CacheTTL: time.Minute})
	now := time.Now()
	svc.now = func() time.Time { return now }

	svc.Reverse(context.Background(), 1, 1)
	now = now.Add(30 * time.Second)
	svc.Reverse(context.Background(), 2, 2)
	now = now.Add(45 * time.Second)

	if n := svc.Cleanup(); n != 1 {
		t.Errorf("Cleanup() = %d, want 1", n)
	}
}

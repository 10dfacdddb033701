package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGoogleCertKeySource_PublicKey_ReturnsKeyForKnownKID(t *testing.T) {
	idp := newTestIdP(t)
	src := idp.keySource()

	key, err := src.PublicKey(context.Background(), testKID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.N.Cmp(idp.key.PublicKey.N) != 0 {
		t.Error("returned key does not match signing key")
	}
}

func TestGoogleCertKeySource_PublicKey_CachesUntilMaxAge(t *testing.T) {
	idp := newTestIdP(t)
	src := idp.keySource()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	src.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if _, err := src.PublicKey(context.Background(), testKID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := idp.hits.Load(); got != 1 {
		t.Errorf("certs fetched %d times, want 1", got)
	}

	// max-age=600を過ぎると再取得する
	now = now.Add(601 * time.Second)
	if _, err := src.PublicKey(context.Background(), testKID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := idp.hits.Load(); got != 2 {
		t.Errorf("certs fetched %d times, want 2", got)
	}
}

func TestGoogleCertKeySource_PublicKey_UnknownKIDRefetchIsThrottled(t *testing.T) {
	idp := newTestIdP(t)
	src := idp.keySource()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	src.now = func() time.Time { return now }

	_, err := src.PublicKey(context.Background(), "unknown")
	if !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	_, _ = src.PublicKey(context.Background(), "unknown")
	if got := idp.hits.Load(); got != 1 {
		t.Errorf("certs fetched %d times within throttle window, want 1", got)
	}

	now = now.Add(minKeyRefreshInterval)
	_, _ = src.PublicKey(context.Background(), "unknown")
	if got := idp.hits.Load(); got != 2 {
		t.Errorf("certs fetched %d times after throttle window, want 2", got)
	}
}

func TestGoogleCertKeySource_PublicKey_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	src := NewGoogleCertKeySource(ts.URL, ts.Client())
	if _, err := src.PublicKey(context.Background(), testKID); err == nil {
		t.Fatal("expected error for 500 response, got nil")
	}
}

func TestGoogleCertKeySource_PublicKey_NoUsableCertificates(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"kid":"not a pem"}`))
	}))
	defer ts.Close()

	src := NewGoogleCertKeySource(ts.URL, ts.Client())
	if _, err := src.PublicKey(context.Background(), "kid"); err == nil {
		t.Fatal("expected error when no certificate parses, got nil")
	}
}

func TestGoogleCertKeySource_PublicKey_HonorsContextCancel(t *testing.T) {
	idp := newTestIdP(t)
	src := idp.keySource()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := src.PublicKey(ctx, testKID); err == nil {
		t.Fatal("expected error for canceled context, got nil")
	}
}

func TestNewGoogleCertKeySource_DefaultURL(t *testing.T) {
	src := NewGoogleCertKeySource("", nil)
	if src.certsURL != DefaultGoogleCertsURL {
		t.Errorf("certsURL = %q, want %q", src.certsURL, DefaultGoogleCertsURL)
	}
	if src.client != http.DefaultClient {
		t.Error("expected http.DefaultClient when client is nil")
	}
}

func TestParseMaxAge(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
		ok     bool
	}{
		{"public, max-age=19302, must-revalidate, no-transform", 19302 * time.Second, true},
		{"max-age=60", time.Minute, true},
		{"Max-Age=60", time.Minute, true},
		{"no-cache", 0, false},
		{"max-age=abc", 0, false},
		{"max-age=0", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, ok := parseMaxAge(tt.header)
			if ok != tt.ok || got != tt.want {
				t.Errorf("parseMaxAge(%q) = (%v, %v), want (%v, %v)", tt.header, got, ok, tt.want, tt.ok)
			}
		})
	}
}

package qrzsession

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestStartAcquiresKeyFromServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<QRZDatabase><Session><Key>abc123</Key></Session></QRZDatabase>`))
	}))
	defer srv.Close()

	s := New("user", "pass", "key", time.Hour, zap.NewNop().Sugar())
	s.httpClient = srv.Client()
	s.baseURL = srv.URL + "/"

	s.Start(context.Background())
	if got := s.GetKey(); got != "abc123" {
		t.Fatalf("GetKey() = %q, want abc123", got)
	}
}

func TestStartKeepsEmptyOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := New("user", "pass", "key", time.Hour, zap.NewNop().Sugar())
	s.httpClient = srv.Client()
	s.baseURL = srv.URL + "/"
	s.retries = 1 // avoid a slow multi-attempt test

	s.Start(context.Background())
	if got := s.GetKey(); got != "" {
		t.Fatalf("GetKey() = %q, want empty after exhausted retries", got)
	}
}

func TestLookupLocatorRejectsErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<QRZDatabase><Session><Error>Not found</Error></Session></QRZDatabase>`))
	}))
	defer srv.Close()

	s := New("user", "pass", "key", time.Hour, zap.NewNop().Sugar())
	s.httpClient = srv.Client()
	s.baseURL = srv.URL + "/"

	_, ok, err := s.LookupLocator(context.Background(), "sess", "W1ABC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for <Error> response")
	}
}

func TestLookupLocatorAcceptsGridGeoloc(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<QRZDatabase><Callsign><grid>FN31pr</grid><geoloc>grid</geoloc></Callsign></QRZDatabase>`))
	}))
	defer srv.Close()

	s := New("user", "pass", "key", time.Hour, zap.NewNop().Sugar())
	s.httpClient = srv.Client()
	s.baseURL = srv.URL + "/"

	locator, ok, err := s.LookupLocator(context.Background(), "sess", "W1ABC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || locator != "FN31pr" {
		t.Fatalf("got (%q, %v), want (FN31pr, true)", locator, ok)
	}
}

func TestLookupLocatorRejectsUnknownGeoloc(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<QRZDatabase><Callsign><grid>FN31pr</grid><geoloc>zip</geoloc></Callsign></QRZDatabase>`))
	}))
	defer srv.Close()

	s := New("user", "pass", "key", time.Hour, zap.NewNop().Sugar())
	s.httpClient = srv.Client()
	s.baseURL = srv.URL + "/"

	_, ok, err := s.LookupLocator(context.Background(), "sess", "W1ABC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for geoloc not in {user, grid}")
	}
}

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"holycluster/internal/persist"
	"holycluster/internal/spotmodel"
)

type fakeCache struct {
	records map[string]spotmodel.GeoRecord
}

func (c *fakeCache) Get(_ context.Context, callsign string) (spotmodel.GeoRecord, bool, error) {
	r, ok := c.records[callsign]
	return r, ok, nil
}

func (c *fakeCache) All(_ context.Context) (map[string]spotmodel.GeoRecord, error) {
	return c.records, nil
}

type fakeResolver struct {
	record spotmodel.GeoRecord
	err    error
}

func (f *fakeResolver) Resolve(_ context.Context, _ string) (spotmodel.GeoRecord, bool, error) {
	return f.record, false, f.err
}

type fakeIssues struct {
	rows []persist.IssueRow
}

func (f *fakeIssues) SpotsWithIssues(_ context.Context, _ int) ([]persist.IssueRow, error) {
	return f.rows, nil
}

func TestHandleGeocacheOneFound(t *testing.T) {
	cache := &fakeCache{records: map[string]spotmodel.GeoRecord{"K5TR": {Locator: "EM12"}}}
	s := New(cache, nil, nil, zap.NewNop().Sugar())
	mux := http.NewServeMux()
	s.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/geocache/k5tr", nil))

	var got spotmodel.GeoRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Locator != "EM12" {
		t.Fatalf("got %+v", got)
	}
}

func TestHandleGeocacheOneMissingReturnsEmptyObject(t *testing.T) {
	cache := &fakeCache{records: map[string]spotmodel.GeoRecord{}}
	s := New(cache, nil, nil, zap.NewNop().Sugar())
	mux := http.NewServeMux()
	s.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/geocache/ZZ9ZZZ", nil))

	if rec.Body.String() != "{}\n" {
		t.Fatalf("got %q, want empty object", rec.Body.String())
	}
}

func TestHandleLocatorErrorShape(t *testing.T) {
	resolver := &fakeResolver{err: spotmodel.ErrGeoUnresolvable}
	s := New(nil, resolver, nil, zap.NewNop().Sugar())
	mux := http.NewServeMux()
	s.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/locator/ZZ9ZZZ", nil))

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] == nil || body["callsign"] != "ZZ9ZZZ" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestHandleLocatorSuccessShape(t *testing.T) {
	resolver := &fakeResolver{record: spotmodel.GeoRecord{Locator: "FN31", Lat: 42.3, Lon: -71.0, LocatorSource: "prefixes"}}
	s := New(nil, resolver, nil, zap.NewNop().Sugar())
	mux := http.NewServeMux()
	s.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/locator/W1ABC", nil))

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["locator"] != "FN31" || body["source"] != "prefixes" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestHandleSpotsWithIssues(t *testing.T) {
	issues := &fakeIssues{rows: []persist.IssueRow{{DXCallsign: "VE2PID", Issues: "duplicate key"}}}
	s := New(nil, nil, issues, zap.NewNop().Sugar())
	mux := http.NewServeMux()
	s.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/spots_with_issues", nil))

	var rows []persist.IssueRow
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 || rows[0].DXCallsign != "VE2PID" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestHandleHealthz(t *testing.T) {
	s := New(nil, nil, nil, zap.NewNop().Sugar())
	mux := http.NewServeMux()
	s.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
}

func TestHandleGeocacheUnavailableWithoutCache(t *testing.T) {
	s := New(nil, nil, nil, zap.NewNop().Sugar())
	mux := http.NewServeMux()
	s.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/geocache/all", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("got status %d, want 503", rec.Code)
	}
}

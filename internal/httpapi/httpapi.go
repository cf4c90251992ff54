// Package httpapi serves the read-only HTTP surface: geo cache
// inspection, a live locator lookup, the spots_with_issues diagnostics
// table, and a liveness probe. /metrics is mounted separately by
// internal/supervisor via promhttp.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"holycluster/internal/persist"
	"holycluster/internal/spotmodel"
)

// GeoCache is the subset of geo's cache the HTTP surface reads.
type GeoCache interface {
	Get(ctx context.Context, callsign string) (spotmodel.GeoRecord, bool, error)
	All(ctx context.Context) (map[string]spotmodel.GeoRecord, error)
}

// GeoResolver performs a live resolution for /locator/{callsign}.
type GeoResolver interface {
	Resolve(ctx context.Context, callsign string) (spotmodel.GeoRecord, bool, error)
}

const defaultIssuesLimit = 200

// Server holds the handlers' dependencies and registers them onto a mux.
type Server struct {
	cache    GeoCache
	resolver GeoResolver
	issues   IssuesRepo
	log      *zap.SugaredLogger
}

// IssuesRepo serves /spots_with_issues; internal/persist.Store implements it.
type IssuesRepo interface {
	SpotsWithIssues(ctx context.Context, limit int) ([]persist.IssueRow, error)
}

// New constructs a Server. Any dependency may be nil; the corresponding
// routes then reply 503.
func New(cache GeoCache, resolver GeoResolver, issues IssuesRepo, log *zap.SugaredLogger) *Server {
	return &Server{cache: cache, resolver: resolver, issues: issues, log: log}
}

// Register mounts every read-only route onto mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/geocache/all", s.handleGeocacheAll)
	mux.HandleFunc("/geocache/", s.handleGeocacheOne)
	mux.HandleFunc("/locator/", s.handleLocator)
	mux.HandleFunc("/spots_with_issues", s.handleSpotsWithIssues)
	mux.HandleFunc("/healthz", s.handleHealthz)
}

func (s *Server) handleGeocacheOne(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		http.Error(w, "geo cache unavailable", http.StatusServiceUnavailable)
		return
	}
	callsign := strings.ToUpper(strings.TrimPrefix(r.URL.Path, "/geocache/"))
	if callsign == "" || callsign == "all" {
		http.NotFound(w, r)
		return
	}
	record, ok, err := s.cache.Get(r.Context(), callsign)
	if err != nil {
		s.log.Warnw("geocache get failed", "callsign", callsign, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !ok {
		writeJSON(w, map[string]interface{}{})
		return
	}
	writeJSON(w, record)
}

func (s *Server) handleGeocacheAll(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		http.Error(w, "geo cache unavailable", http.StatusServiceUnavailable)
		return
	}
	all, err := s.cache.All(r.Context())
	if err != nil {
		s.log.Warnw("geocache all failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, all)
}

func (s *Server) handleLocator(w http.ResponseWriter, r *http.Request) {
	if s.resolver == nil {
		http.Error(w, "geo resolver unavailable", http.StatusServiceUnavailable)
		return
	}
	callsign := strings.ToUpper(strings.TrimPrefix(r.URL.Path, "/locator/"))
	if callsign == "" {
		http.NotFound(w, r)
		return
	}
	record, _, err := s.resolver.Resolve(r.Context(), callsign)
	if err != nil {
		writeJSON(w, map[string]interface{}{"callsign": callsign, "error": err.Error()})
		return
	}
	writeJSON(w, map[string]interface{}{
		"callsign": callsign,
		"locator":  record.Locator,
		"lat":      record.Lat,
		"lon":      record.Lon,
		"source":   record.LocatorSource,
	})
}

func (s *Server) handleSpotsWithIssues(w http.ResponseWriter, r *http.Request) {
	if s.issues == nil {
		http.Error(w, "issues store unavailable", http.StatusServiceUnavailable)
		return
	}
	rows, err := s.issues.SpotsWithIssues(r.Context(), defaultIssuesLimit)
	if err != nil {
		s.log.Warnw("spots_with_issues query failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, rows)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return
	}
}

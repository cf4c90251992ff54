// Package geo resolves a callsign to a Maidenhead locator and
// coordinates, cache-through a key-value store, with the external QRZ
// XML service as primary source and a static regex prefix table as
// fallback.
package geo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"holycluster/internal/spotmodel"
)

// Cache is the read-through store backing GeoResolver. Implementations
// must treat Set as an idempotent overwrite: concurrent resolvers
// racing on the same callsign may both call Set with equivalent values.
type Cache interface {
	Get(ctx context.Context, callsign string) (spotmodel.GeoRecord, bool, error)
	Set(ctx context.Context, callsign string, record spotmodel.GeoRecord, ttl time.Duration) error
}

// QrzClient is the subset of QrzSession the resolver depends on.
type QrzClient interface {
	// GetKey returns the current session key, or "" if none is available.
	// Never blocks on a refresh in progress.
	GetKey() string
	// LookupLocator queries the external service. ok is false for every
	// "locator unknown" outcome (no key, non-200, <Error>, bad geoloc).
	LookupLocator(ctx context.Context, sessionKey, callsign string) (locator string, ok bool, err error)
}

// Resolver implements the cache -> QRZ -> prefix-table -> Maidenhead
// lookup chain described by the component contract.
type Resolver struct {
	cache    Cache
	qrz      QrzClient
	prefixes *Store
	geoTTL   time.Duration
	log      *zap.SugaredLogger
}

// New constructs a Resolver. qrz may be nil, in which case the resolver
// falls straight through to the prefix table (useful for tests and for
// deployments without QRZ credentials).
func New(cache Cache, qrz QrzClient, prefixes *Store, geoTTL time.Duration, log *zap.SugaredLogger) *Resolver {
	return &Resolver{cache: cache, qrz: qrz, prefixes: prefixes, geoTTL: geoTTL, log: log}
}

// Resolve returns the GeoRecord for an uppercased callsign, and whether
// it was served from cache.
func (r *Resolver) Resolve(ctx context.Context, callsign string) (spotmodel.GeoRecord, bool, error) {
	callsign = strings.ToUpper(strings.TrimSpace(callsign))
	if callsign == "" {
		return spotmodel.GeoRecord{}, false, fmt.Errorf("%w: empty callsign", spotmodel.ErrGeoUnresolvable)
	}

	if cached, found, err := r.cache.Get(ctx, callsign); err != nil {
		r.log.Warnw("geo cache read failed", "callsign", callsign, "error", err)
	} else if found {
		return cached, true, nil
	}

	trimmed := trimPortableSuffix(callsign)

	var locator, locatorSource string
	if r.qrz != nil {
		if key := r.qrz.GetKey(); key != "" {
			if loc, ok, err := r.qrz.LookupLocator(ctx, key, trimmed); err != nil {
				r.log.Warnw("qrz lookup failed", "callsign", trimmed, "error", err)
			} else if ok {
				locator, locatorSource = loc, "qrz"
			}
		}
	}

	if locator == "" {
		if loc := r.prefixes.Resolve(callsign); loc != "" {
			locator, locatorSource = loc, "prefixes"
		}
	}

	country, continent := r.prefixes.ResolveCountryContinent(callsign)

	if locator == "" {
		return spotmodel.GeoRecord{}, false, fmt.Errorf("%w: no locator for %s", spotmodel.ErrGeoUnresolvable, callsign)
	}

	lat, lon, err := DecodeMaidenhead(locator)
	if err != nil {
		return spotmodel.GeoRecord{}, false, fmt.Errorf("%w: locator %q for %s did not decode: %v", spotmodel.ErrGeoUnresolvable, locator, callsign, err)
	}

	record := spotmodel.GeoRecord{
		LocatorSource: locatorSource,
		Locator:       locator,
		Lat:           lat,
		Lon:           lon,
		Country:       country,
		Continent:     continent,
	}

	if err := r.cache.Set(ctx, callsign, record, r.geoTTL); err != nil {
		r.log.Warnw("geo cache write failed", "callsign", callsign, "error", err)
	}

	return record, false, nil
}

// trimPortableSuffix strips a trailing "/M" or "/P" before querying QRZ.
func trimPortableSuffix(callsign string) string {
	for _, suffix := range []string{"/M", "/P"} {
		if strings.HasSuffix(callsign, suffix) {
			return strings.TrimSuffix(callsign, suffix)
		}
	}
	return callsign
}

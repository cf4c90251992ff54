// Package enrich implements the glue stage between ingestion and
// persistence/broadcast: it classifies a RawSpot's frequency into a
// band and mode, resolves a GeoRecord for both callsigns involved, and
// assembles the result into an EnrichedSpot.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"holycluster/internal/classify"
	"holycluster/internal/geo"
	"holycluster/internal/spotmodel"
)

// GeoResolver is the subset of geo.Resolver the Enricher depends on.
type GeoResolver interface {
	Resolve(ctx context.Context, callsign string) (spotmodel.GeoRecord, bool, error)
}

// Sink receives the outcome of enriching one spot. Persist is called for
// every spot that survives classification, regardless of geo outcome.
// Broadcast is called only when the result is eligible per
// EnrichedSpot.ReadyForBroadcast.
type Sink interface {
	Persist(ctx context.Context, spot spotmodel.EnrichedSpot) error
	Broadcast(ctx context.Context, spot spotmodel.EnrichedSpot) error
}

// Enricher is a stateless transform over a single RawSpot at a time; it
// holds no per-spot state between calls, so one instance may be driven
// by any number of concurrent IngressStream consumer goroutines.
type Enricher struct {
	classifier *classify.Classifier
	geo        GeoResolver
	sink       Sink
	log        *zap.SugaredLogger

	now    func() time.Time
	onDrop func(reason string)
}

// New constructs an Enricher. sink receives both the persistence and
// broadcast side effects of a successful enrichment.
func New(classifier *classify.Classifier, resolver GeoResolver, sink Sink, log *zap.SugaredLogger) *Enricher {
	return &Enricher{
		classifier: classifier,
		geo:        resolver,
		sink:       sink,
		log:        log,
		now:        time.Now,
	}
}

// SetOnDrop installs a callback invoked whenever Process drops a spot
// without enriching it (classification failure or unexpected error),
// naming the reason. Intended for metrics; fn may be nil to disable.
func (e *Enricher) SetOnDrop(fn func(reason string)) {
	e.onDrop = fn
}

func (e *Enricher) reportDrop(reason string) {
	if e.onDrop != nil {
		e.onDrop(reason)
	}
}

// Process enriches one RawSpot and drives the sink. It returns nil for
// every outcome that should be acked (including classification
// failures and unexpected errors, both of which are dropped rather than
// requeued), and a non-nil error only for spotmodel.ErrTransient
// conditions the caller should use to decide whether to retry delivery.
func (e *Enricher) Process(ctx context.Context, raw spotmodel.RawSpot) error {
	enriched, err := e.enrich(ctx, raw)
	if err != nil {
		if errors.Is(err, spotmodel.ErrClassification) {
			e.log.Debugw("dropping spot: classification failed", "dx", raw.DXCallsign, "freq", raw.FrequencyKHz, "error", err)
			e.reportDrop("classification")
			return nil
		}
		if errors.Is(err, spotmodel.ErrTransient) {
			return err
		}
		e.log.Warnw("dropping spot: unexpected enrichment error", "dx", raw.DXCallsign, "error", err)
		e.reportDrop("unexpected")
		return nil
	}

	if err := e.sink.Persist(ctx, enriched); err != nil {
		e.log.Warnw("persist failed", "dx", enriched.DXCallsign, "error", err)
	}
	if enriched.ReadyForBroadcast() {
		if err := e.sink.Broadcast(ctx, enriched); err != nil {
			e.log.Warnw("broadcast enqueue failed", "dx", enriched.DXCallsign, "error", err)
		}
	}
	return nil
}

func (e *Enricher) enrich(ctx context.Context, raw spotmodel.RawSpot) (spotmodel.EnrichedSpot, error) {
	if err := raw.Validate(); err != nil {
		return spotmodel.EnrichedSpot{}, fmt.Errorf("enrich: invalid raw spot: %w", err)
	}

	ts, err := assembleTimestamp(raw.TimeHHMM, e.now())
	if err != nil {
		return spotmodel.EnrichedSpot{}, fmt.Errorf("enrich: %w", err)
	}

	band, mode, modeSelection, err := e.classifier.Classify(raw.FrequencyKHz, raw.Comment)
	if err != nil {
		return spotmodel.EnrichedSpot{}, err
	}

	spotterGeo := e.resolveSide(ctx, raw.SpotterCallsign)
	dxGeo := e.resolveSide(ctx, raw.DXCallsign)

	return spotmodel.EnrichedSpot{
		RawSpot:       raw,
		Timestamp:     ts,
		Band:          band,
		Mode:          mode,
		ModeSelection: modeSelection,
		Spotter:       spotterGeo,
		DX:            dxGeo,
	}, nil
}

func (e *Enricher) resolveSide(ctx context.Context, callsign string) spotmodel.GeoSide {
	record, _, err := e.geo.Resolve(ctx, callsign)
	if err != nil {
		if !errors.Is(err, spotmodel.ErrGeoUnresolvable) {
			e.log.Debugw("geo resolve error", "callsign", callsign, "error", err)
		}
		return spotmodel.GeoSide{}
	}
	return spotmodel.GeoSide{
		LocatorSource: record.LocatorSource,
		Locator:       record.Locator,
		Lat:           record.Lat,
		Lon:           record.Lon,
		Country:       record.Country,
		Continent:     record.Continent,
	}
}

// assembleTimestamp combines today's UTC date with the spot's HH:MM
// field and the wall-clock seconds/microseconds from now, matching the
// original collector's timestamp construction. A spot logged just
// before UTC midnight whose HH:MM reads just after it (or vice versa)
// is not corrected; see the design notes on clock skew at day
// boundaries.
func assembleTimestamp(hhmm string, now time.Time) (int64, error) {
	if len(hhmm) != 4 {
		return 0, fmt.Errorf("%w: malformed time field %q", spotmodel.ErrParse, hhmm)
	}
	hour := int(hhmm[0]-'0')*10 + int(hhmm[1]-'0')
	minute := int(hhmm[2]-'0')*10 + int(hhmm[3]-'0')
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: out-of-range time field %q", spotmodel.ErrParse, hhmm)
	}
	utcNow := now.UTC()
	assembled := time.Date(utcNow.Year(), utcNow.Month(), utcNow.Day(), hour, minute, utcNow.Second(), utcNow.Nanosecond(), time.UTC)
	return assembled.Unix(), nil
}

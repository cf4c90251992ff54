// Package spotmodel defines the typed records that flow through the
// ingestion pipeline: RawSpot off the wire, EnrichedSpot after
// enrichment, and the cached/queued shapes in between. Stream and
// WebSocket boundaries convert to/from string-keyed maps; everywhere
// else these are plain structs.
package spotmodel

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Sentinel failure kinds. Stages return one of these (wrapped with
// fmt.Errorf("...: %w", ...)) instead of raising; only ErrTransient
// should ever trigger a caller's backoff.
var (
	ErrParse           = errors.New("parse failure")
	ErrClassification  = errors.New("classification failure")
	ErrGeoUnresolvable = errors.New("geo unresolvable")
	ErrTransient       = errors.New("transient io failure")
)

// RawSpot is produced by a ClusterSession from one parsed cluster line.
type RawSpot struct {
	SpotterCallsign string
	DXCallsign      string
	FrequencyKHz    float64
	Comment         string
	TimeHHMM        string // four digits, UTC
	DXLocatorHint   string // optional, as captured off the wire
	SpotterLocatorHint string
	SourceEndpoint  string // host:port of the cluster this arrived on
}

// Validate enforces the RawSpot invariants from the data model.
func (s RawSpot) Validate() error {
	if strings.TrimSpace(s.SpotterCallsign) == "" {
		return fmt.Errorf("%w: empty spotter callsign", ErrParse)
	}
	if strings.TrimSpace(s.DXCallsign) == "" {
		return fmt.Errorf("%w: empty dx callsign", ErrParse)
	}
	if s.FrequencyKHz < 0 {
		return fmt.Errorf("%w: negative frequency %v", ErrParse, s.FrequencyKHz)
	}
	return nil
}

// DedupeKey formats the cross-source coincidence key: (time, dx, freq, spotter).
func (s RawSpot) DedupeKey() string {
	return fmt.Sprintf("%s|%s|%.1f|%s", s.TimeHHMM, s.DXCallsign, s.FrequencyKHz, s.SpotterCallsign)
}

// ToFields renders the RawSpot as the flat string-keyed map used on the
// ingress stream wire.
func (s RawSpot) ToFields() map[string]interface{} {
	return map[string]interface{}{
		"spotter_callsign": s.SpotterCallsign,
		"dx_callsign":      s.DXCallsign,
		"frequency":        strconv.FormatFloat(s.FrequencyKHz, 'f', 1, 64),
		"comment":          s.Comment,
		"time":             s.TimeHHMM,
		"dx_locator_hint":      s.DXLocatorHint,
		"spotter_locator_hint": s.SpotterLocatorHint,
		"source_endpoint":      s.SourceEndpoint,
	}
}

// RawSpotFromFields parses the wire shape back into a RawSpot.
func RawSpotFromFields(fields map[string]string) (RawSpot, error) {
	freq, err := strconv.ParseFloat(fields["frequency"], 64)
	if err != nil {
		return RawSpot{}, fmt.Errorf("%w: bad frequency field %q: %v", ErrParse, fields["frequency"], err)
	}
	s := RawSpot{
		SpotterCallsign:    fields["spotter_callsign"],
		DXCallsign:         fields["dx_callsign"],
		FrequencyKHz:       freq,
		Comment:            fields["comment"],
		TimeHHMM:           fields["time"],
		DXLocatorHint:      fields["dx_locator_hint"],
		SpotterLocatorHint: fields["spotter_locator_hint"],
		SourceEndpoint:     fields["source_endpoint"],
	}
	return s, s.Validate()
}

// GeoSide is the resolved geography for one side (spotter or DX) of a spot.
type GeoSide struct {
	LocatorSource string // "qrz", "prefixes", or empty
	Locator       string
	Lat           float64
	Lon           float64
	Country       string
	Continent     string
}

// HasLocator reports whether this side resolved to a non-empty locator.
func (g GeoSide) HasLocator() bool {
	return strings.TrimSpace(g.Locator) != ""
}

// EnrichedSpot is RawSpot plus everything the Enricher computed.
type EnrichedSpot struct {
	RawSpot
	Timestamp     int64 // absolute unix seconds
	Band          string
	Mode          string
	ModeSelection string // "comment" or "range"
	Spotter       GeoSide
	DX            GeoSide
}

// ReadyForBroadcast reports whether this spot satisfies the broadcast
// contract: non-empty band and mode, and a resolved locator on both sides.
func (e EnrichedSpot) ReadyForBroadcast() bool {
	if e.Band == "" || e.Mode == "" {
		return false
	}
	return e.Spotter.HasLocator() && e.DX.HasLocator()
}

// ToFields renders the EnrichedSpot as the flat string-keyed map used on
// the egress stream wire.
func (e EnrichedSpot) ToFields() map[string]interface{} {
	f := map[string]interface{}{
		"spotter_callsign": e.SpotterCallsign,
		"dx_callsign":      e.DXCallsign,
		"frequency":        strconv.FormatFloat(e.FrequencyKHz, 'f', 1, 64),
		"comment":          e.Comment,
		"time":             e.TimeHHMM,
		"timestamp":        strconv.FormatInt(e.Timestamp, 10),
		"source_endpoint":  e.SourceEndpoint,
		"band":             e.Band,
		"mode":             e.Mode,
		"mode_selection":   e.ModeSelection,

		"spotter_locator_source": e.Spotter.LocatorSource,
		"spotter_locator":        e.Spotter.Locator,
		"spotter_lat":            strconv.FormatFloat(e.Spotter.Lat, 'f', -1, 64),
		"spotter_lon":            strconv.FormatFloat(e.Spotter.Lon, 'f', -1, 64),
		"spotter_country":        e.Spotter.Country,
		"spotter_continent":      e.Spotter.Continent,

		"dx_locator_source": e.DX.LocatorSource,
		"dx_locator":         e.DX.Locator,
		"dx_lat":             strconv.FormatFloat(e.DX.Lat, 'f', -1, 64),
		"dx_lon":             strconv.FormatFloat(e.DX.Lon, 'f', -1, 64),
		"dx_country":         e.DX.Country,
		"dx_continent":       e.DX.Continent,
	}
	return f
}

// EnrichedSpotFromFields parses the wire shape back into an EnrichedSpot.
func EnrichedSpotFromFields(fields map[string]string) (EnrichedSpot, error) {
	freq, err := strconv.ParseFloat(fields["frequency"], 64)
	if err != nil {
		return EnrichedSpot{}, fmt.Errorf("%w: bad frequency field: %v", ErrParse, err)
	}
	ts, err := strconv.ParseInt(fields["timestamp"], 10, 64)
	if err != nil {
		return EnrichedSpot{}, fmt.Errorf("%w: bad timestamp field: %v", ErrParse, err)
	}
	parseFloatOrZero := func(key string) float64 {
		v, _ := strconv.ParseFloat(fields[key], 64)
		return v
	}
	e := EnrichedSpot{
		RawSpot: RawSpot{
			SpotterCallsign: fields["spotter_callsign"],
			DXCallsign:      fields["dx_callsign"],
			FrequencyKHz:    freq,
			Comment:         fields["comment"],
			TimeHHMM:        fields["time"],
			SourceEndpoint:  fields["source_endpoint"],
		},
		Timestamp:     ts,
		Band:          fields["band"],
		Mode:          fields["mode"],
		ModeSelection: fields["mode_selection"],
		Spotter: GeoSide{
			LocatorSource: fields["spotter_locator_source"],
			Locator:       fields["spotter_locator"],
			Lat:           parseFloatOrZero("spotter_lat"),
			Lon:           parseFloatOrZero("spotter_lon"),
			Country:       fields["spotter_country"],
			Continent:     fields["spotter_continent"],
		},
		DX: GeoSide{
			LocatorSource: fields["dx_locator_source"],
			Locator:       fields["dx_locator"],
			Lat:           parseFloatOrZero("dx_lat"),
			Lon:           parseFloatOrZero("dx_lon"),
			Country:       fields["dx_country"],
			Continent:     fields["dx_continent"],
		},
	}
	return e, nil
}

// GeoRecord is the cached resolution for one callsign.
type GeoRecord struct {
	LocatorSource string
	Locator       string
	Lat           float64
	Lon           float64
	Country       string
	Continent     string
}

// QrzToken is the mutable state guarded by QrzSession's refresh mutex.
type QrzToken struct {
	SessionKey  string
	RefreshedAt int64 // unix seconds
}

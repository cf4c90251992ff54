package clustersession

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"holycluster/internal/spotmodel"
)

// Two line grammars, tried in this order. The first captures both
// locators; the second omits them.
var (
	lineWithLocators = regexp.MustCompile(
		`^DX de (\S+):\s+(\d+\.\d)\s+(\S+)\s+(.*?)\s+?(\w+) (\d+Z)\s+(\w+)$`)
	lineWithoutLocators = regexp.MustCompile(
		`^DX de (\S+):\s+(\d+\.\d)\s+(\S+)\s+(.*?)\s+?(\d+Z)$`)

	// showDxLine matches a "show/dx" backlog reply, e.g.
	// "18075.0  E51KEE      08-Aug-2025 1723Z  Heard in CA   <W3LPL-3>".
	showDxLine = regexp.MustCompile(
		`^\s*(\d+\.\d+)\s+(\S+)\s+\d{2}-\w{3}-\d{4}\s+(\d{4}Z)\s+(.*?)\s+<(\S+)>$`)

	spotterSuffix = regexp.MustCompile(`-\d+$`)
)

// skimmerFilter is the hard-coded blacklist. Preserved verbatim;
// generalizing it to a configurable list is explicitly out of scope.
const skimmerFilter = "W3LPL"

// ParseLine turns one cluster line into a RawSpot. ok is false (with a
// nil error) for non-spot lines and for lines filtered by the skimmer
// blacklist — both are "no spot produced", not parse failures. err is
// non-nil only when the line looks like a spot announcement but neither
// grammar matches it, or normalization leaves an invalid spot.
func ParseLine(line, sourceEndpoint string) (spot spotmodel.RawSpot, ok bool, err error) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "DX de") {
		return spotmodel.RawSpot{}, false, nil
	}

	if m := lineWithLocators.FindStringSubmatch(line); m != nil {
		spot, err = buildSpot(m[1], m[2], m[3], m[4], m[6], sourceEndpoint, m[5], m[7])
	} else if m := lineWithoutLocators.FindStringSubmatch(line); m != nil {
		spot, err = buildSpot(m[1], m[2], m[3], m[4], m[5], sourceEndpoint, "", "")
	} else {
		return spotmodel.RawSpot{}, false, fmt.Errorf("%w: line does not match either DX de grammar: %q", spotmodel.ErrParse, line)
	}
	if err != nil {
		return spotmodel.RawSpot{}, false, err
	}

	spot.SpotterCallsign = normalizeSpotterCallsign(spot.SpotterCallsign)
	if strings.EqualFold(spot.SpotterCallsign, skimmerFilter) {
		return spotmodel.RawSpot{}, false, nil
	}

	if err := spot.Validate(); err != nil {
		return spotmodel.RawSpot{}, false, err
	}
	return spot, true, nil
}

// parseShowDxLine turns one "show/dx" backlog reply line into a RawSpot,
// feeding the same pipeline as ParseLine. Backlog lines carry no locator
// hints, unlike the live "DX de" grammar.
func parseShowDxLine(line, sourceEndpoint string) (spot spotmodel.RawSpot, ok bool, err error) {
	m := showDxLine.FindStringSubmatch(line)
	if m == nil {
		return spotmodel.RawSpot{}, false, nil
	}

	spot, err = buildSpot(m[5], m[1], m[2], m[4], m[3], sourceEndpoint, "", "")
	if err != nil {
		return spotmodel.RawSpot{}, false, err
	}

	spot.SpotterCallsign = normalizeSpotterCallsign(spot.SpotterCallsign)
	if strings.EqualFold(spot.SpotterCallsign, skimmerFilter) {
		return spotmodel.RawSpot{}, false, nil
	}

	if err := spot.Validate(); err != nil {
		return spotmodel.RawSpot{}, false, err
	}
	return spot, true, nil
}

func buildSpot(spotter, freqStr, dx, comment, timeStr, sourceEndpoint, dxLocator, spotterLocator string) (spotmodel.RawSpot, error) {
	freq, err := strconv.ParseFloat(freqStr, 64)
	if err != nil {
		return spotmodel.RawSpot{}, fmt.Errorf("%w: bad frequency %q: %v", spotmodel.ErrParse, freqStr, err)
	}
	return spotmodel.RawSpot{
		SpotterCallsign:    spotter,
		DXCallsign:         dx,
		FrequencyKHz:       freq,
		Comment:            strings.TrimSpace(comment),
		TimeHHMM:           strings.TrimSuffix(timeStr, "Z"),
		DXLocatorHint:      dxLocator,
		SpotterLocatorHint: spotterLocator,
		SourceEndpoint:     sourceEndpoint,
	}, nil
}

// normalizeSpotterCallsign strips a trailing "-<digits>" SSID suffix,
// e.g. "K5TR-7" -> "K5TR".
func normalizeSpotterCallsign(call string) string {
	return spotterSuffix.ReplaceAllString(call, "")
}

// Package broadcast fans EnrichedSpots out to WebSocket subscribers: a
// single consumer goroutine drains EgressStream, transforms each batch
// for the wire, and sends it to a snapshot of the active subscriber
// set, removing any subscriber whose send failed once the snapshot
// iteration completes.
package broadcast

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"holycluster/internal/spotmodel"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var ssbAliasModes = map[string]bool{"SSB": true, "USB": true, "LSB": true}
var stringBands = map[string]bool{"VHF": true, "UHF": true, "SHF": true}

// wireSpot is the shape sent to browser subscribers.
type wireSpot struct {
	Time             int64       `json:"time"`
	SpotterCallsign  string      `json:"spotter_callsign"`
	DXCallsign       string      `json:"dx_callsign"`
	Frequency        float64     `json:"frequency"`
	Band             interface{} `json:"band"`
	Mode             string      `json:"mode"`
	Comment          string      `json:"comment"`
	SpotterCoords    [2]float64  `json:"spotter_coords"`
	DXCoords         [2]float64  `json:"dx_coords"`
	SpotterCountry   string      `json:"spotter_country"`
	DXCountry        string      `json:"dx_country"`
	SpotterContinent string      `json:"spotter_continent"`
	DXContinent      string      `json:"dx_continent"`
}

// transform applies the cleanup rules; returns ok=false for any spot
// missing a required field, in which case the caller silently drops it
// from the outgoing batch.
func transform(spot spotmodel.EnrichedSpot) (wireSpot, bool) {
	if spot.Band == "" || spot.Mode == "" {
		return wireSpot{}, false
	}
	if !spot.Spotter.HasLocator() || !spot.DX.HasLocator() {
		return wireSpot{}, false
	}

	mode := strings.ToUpper(spot.Mode)
	if ssbAliasModes[mode] {
		mode = "SSB"
	}

	var band interface{}
	if stringBands[strings.ToUpper(spot.Band)] {
		band = spot.Band
	} else {
		var bandNum float64
		if _, err := fmt.Sscanf(spot.Band, "%g", &bandNum); err != nil {
			return wireSpot{}, false
		}
		band = bandNum
	}

	return wireSpot{
		Time:             spot.Timestamp,
		SpotterCallsign:  spot.SpotterCallsign,
		DXCallsign:       spot.DXCallsign,
		Frequency:        spot.FrequencyKHz,
		Band:             band,
		Mode:             mode,
		Comment:          spot.Comment,
		SpotterCoords:    [2]float64{spot.Spotter.Lon, spot.Spotter.Lat},
		DXCoords:         [2]float64{spot.DX.Lon, spot.DX.Lat},
		SpotterCountry:   spot.Spotter.Country,
		DXCountry:        spot.DX.Country,
		SpotterContinent: spot.Spotter.Continent,
		DXContinent:      spot.DX.Continent,
	}, true
}

func transformBatch(spots []spotmodel.EnrichedSpot) []wireSpot {
	out := make([]wireSpot, 0, len(spots))
	for _, spot := range spots {
		if w, ok := transform(spot); ok {
			out = append(out, w)
		}
	}
	return out
}

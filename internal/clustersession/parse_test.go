package clustersession

import (
	"errors"
	"testing"

	"holycluster/internal/spotmodel"
)

// S1: a standard line with no locators.
func TestParseLineScenarioS1(t *testing.T) {
	line := "DX de K5TR-7:    14056.0  VE2PID    CW 17 dB 22 WPM CQ             2010Z"
	spot, ok, err := ParseLine(line, "cluster1:7300")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected a spot to be produced")
	}
	if spot.SpotterCallsign != "K5TR" {
		t.Errorf("spotter = %q, want K5TR", spot.SpotterCallsign)
	}
	if spot.DXCallsign != "VE2PID" {
		t.Errorf("dx = %q, want VE2PID", spot.DXCallsign)
	}
	if spot.FrequencyKHz != 14056.0 {
		t.Errorf("freq = %v, want 14056.0", spot.FrequencyKHz)
	}
	if spot.TimeHHMM != "2010" {
		t.Errorf("time = %q, want 2010", spot.TimeHHMM)
	}
	if spot.DXLocatorHint != "" || spot.SpotterLocatorHint != "" {
		t.Errorf("expected empty locators, got dx=%q spotter=%q", spot.DXLocatorHint, spot.SpotterLocatorHint)
	}
}

// S2: same line but spotter W3LPL-3 => dropped at parse.
func TestParseLineScenarioS2SkimmerDropped(t *testing.T) {
	line := "DX de W3LPL-3:    14056.0  VE2PID    CW 17 dB 22 WPM CQ             2010Z"
	_, ok, err := ParseLine(line, "cluster1:7300")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected W3LPL spot to be dropped")
	}
}

func TestParseLineWithLocators(t *testing.T) {
	line := "DX de SM0XYZ:    21000.5  W1ABC     FT8 weak sig      JO89 2230Z KP20"
	spot, ok, err := ParseLine(line, "cluster2:7300")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected a spot")
	}
	if spot.DXLocatorHint != "JO89" {
		t.Errorf("dx locator = %q, want JO89", spot.DXLocatorHint)
	}
	if spot.SpotterLocatorHint != "KP20" {
		t.Errorf("spotter locator = %q, want KP20", spot.SpotterLocatorHint)
	}
}

func TestParseLineNonSpotIgnored(t *testing.T) {
	_, ok, err := ParseLine("Welcome to the cluster, please login", "cluster1:7300")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("non-spot line should not produce a spot")
	}
}

func TestParseLineMalformedSpotReturnsParseError(t *testing.T) {
	_, ok, err := ParseLine("DX de NOTHING USEFUL HERE", "cluster1:7300")
	if ok {
		t.Fatalf("malformed line should not produce a spot")
	}
	if !errors.Is(err, spotmodel.ErrParse) {
		t.Fatalf("want ErrParse, got %v", err)
	}
}

func TestParseShowDxLine(t *testing.T) {
	line := "18075.0  E51KEE      08-Aug-2025 1723Z  Heard in CA                  <K5TR-7>"
	spot, ok, err := parseShowDxLine(line, "cluster1:7300")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected a spot to be produced")
	}
	if spot.DXCallsign != "E51KEE" {
		t.Errorf("dx = %q, want E51KEE", spot.DXCallsign)
	}
	if spot.SpotterCallsign != "K5TR" {
		t.Errorf("spotter = %q, want K5TR (SSID stripped)", spot.SpotterCallsign)
	}
	if spot.FrequencyKHz != 18075.0 {
		t.Errorf("freq = %v, want 18075.0", spot.FrequencyKHz)
	}
	if spot.TimeHHMM != "1723" {
		t.Errorf("time = %q, want 1723", spot.TimeHHMM)
	}
	if spot.Comment != "Heard in CA" {
		t.Errorf("comment = %q, want %q", spot.Comment, "Heard in CA")
	}
}

func TestParseShowDxLineSkimmerDropped(t *testing.T) {
	line := "18075.0  E51KEE      08-Aug-2025 1723Z  Heard in CA                  <W3LPL>"
	_, ok, err := parseShowDxLine(line, "cluster1:7300")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected W3LPL backlog spot to be dropped")
	}
}

func TestParseShowDxLineNonMatchIgnored(t *testing.T) {
	_, ok, err := parseShowDxLine("Proceed...", "cluster1:7300")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("non-matching line should not produce a spot")
	}
}

func TestNormalizeSpotterCallsignStripsSuffix(t *testing.T) {
	cases := map[string]string{
		"K5TR-7":  "K5TR",
		"W3LPL-3": "W3LPL",
		"VE2PID":  "VE2PID",
	}
	for in, want := range cases {
		if got := normalizeSpotterCallsign(in); got != want {
			t.Errorf("normalizeSpotterCallsign(%q) = %q, want %q", in, got, want)
		}
	}
}

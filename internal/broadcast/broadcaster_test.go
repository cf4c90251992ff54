package broadcast

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"holycluster/internal/spotmodel"
)

func fullSpot(band, mode string) spotmodel.EnrichedSpot {
	return spotmodel.EnrichedSpot{
		RawSpot: spotmodel.RawSpot{
			SpotterCallsign: "K5TR",
			DXCallsign:      "VE2PID",
			FrequencyKHz:    14056.0,
			Comment:         "CQ",
		},
		Timestamp: 1700000000,
		Band:      band,
		Mode:      mode,
		Spotter:   spotmodel.GeoSide{Locator: "EM12", Lat: 30.0, Lon: -97.0, Country: "United States"},
		DX:        spotmodel.GeoSide{Locator: "FN35", Lat: 45.5, Lon: -73.6, Country: "Canada"},
	}
}

// Property 8: cleanup transform mode/band/coordinate rules.
func TestTransformModeAliasesCollapseToSSB(t *testing.T) {
	for _, mode := range []string{"ssb", "usb", "lsb", "SSB"} {
		w, ok := transform(fullSpot("20", mode))
		if !ok || w.Mode != "SSB" {
			t.Fatalf("mode %q: got (%+v, %v), want SSB", mode, w, ok)
		}
	}
}

func TestTransformOtherModeUppercased(t *testing.T) {
	w, ok := transform(fullSpot("20", "cw"))
	if !ok || w.Mode != "CW" {
		t.Fatalf("got (%+v, %v), want CW", w, ok)
	}
}

func TestTransformNumericBandEmittedAsNumber(t *testing.T) {
	w, ok := transform(fullSpot("20", "CW"))
	if !ok {
		t.Fatalf("expected ok")
	}
	if _, isFloat := w.Band.(float64); !isFloat {
		t.Fatalf("expected numeric band, got %T (%v)", w.Band, w.Band)
	}
}

func TestTransformVHFBandEmittedAsString(t *testing.T) {
	w, ok := transform(fullSpot("VHF", "CW"))
	if !ok {
		t.Fatalf("expected ok")
	}
	if s, isString := w.Band.(string); !isString || s != "VHF" {
		t.Fatalf("expected string band VHF, got %T (%v)", w.Band, w.Band)
	}
}

func TestTransformCoordinatesAreLonLatOrder(t *testing.T) {
	spot := fullSpot("20", "CW")
	w, ok := transform(spot)
	if !ok {
		t.Fatalf("expected ok")
	}
	if w.DXCoords[0] != spot.DX.Lon || w.DXCoords[1] != spot.DX.Lat {
		t.Fatalf("got %v, want [lon,lat] = [%v,%v]", w.DXCoords, spot.DX.Lon, spot.DX.Lat)
	}
}

func TestTransformCarriesContinents(t *testing.T) {
	spot := fullSpot("20", "CW")
	spot.Spotter.Continent = "NA"
	spot.DX.Continent = "NA"
	w, ok := transform(spot)
	if !ok {
		t.Fatalf("expected ok")
	}
	if w.SpotterContinent != "NA" || w.DXContinent != "NA" {
		t.Fatalf("got spotter=%q dx=%q, want NA/NA", w.SpotterContinent, w.DXContinent)
	}
}

// Broadcast filter (property 6): missing locator or empty band/mode
// drops the spot from the outgoing batch rather than erroring.
func TestTransformDropsSpotMissingLocator(t *testing.T) {
	spot := fullSpot("20", "CW")
	spot.DX.Locator = ""
	if _, ok := transform(spot); ok {
		t.Fatalf("expected drop for missing DX locator")
	}
}

func TestTransformDropsSpotEmptyBandOrMode(t *testing.T) {
	if _, ok := transform(fullSpot("", "CW")); ok {
		t.Fatalf("expected drop for empty band")
	}
	if _, ok := transform(fullSpot("20", "")); ok {
		t.Fatalf("expected drop for empty mode")
	}
}

func TestTransformBatchSkipsOnlyBadEntries(t *testing.T) {
	good := fullSpot("20", "CW")
	bad := fullSpot("", "CW")
	out := transformBatch([]spotmodel.EnrichedSpot{good, bad})
	if len(out) != 1 {
		t.Fatalf("expected one surviving entry, got %d", len(out))
	}
}

// Property 7: subscriber fault isolation — a write failure on one
// connection must not affect delivery to the remaining subscribers.
func TestBroadcasterFaultIsolation(t *testing.T) {
	upgrader := websocket.Upgrader{}
	goodConnCh := make(chan *websocket.Conn, 1)
	closedConnCh := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("server upgrade: %v", err)
			return
		}
		if r.URL.Query().Get("closeme") == "1" {
			closedConnCh <- conn
		} else {
			goodConnCh <- conn
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	b := New(nil, zap.NewNop().Sugar())

	healthyClient, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial healthy: %v", err)
	}
	defer healthyClient.Close()

	deadClient, _, err := websocket.DefaultDialer.Dial(wsURL+"?closeme=1", nil)
	if err != nil {
		t.Fatalf("dial dead: %v", err)
	}
	defer deadClient.Close()

	healthySub := &subscriber{conn: recvConn(t, goodConnCh)}
	deadSub := &subscriber{conn: recvConn(t, closedConnCh)}
	deadSub.conn.Close() // deterministically force the server-side write to fail

	b.register(healthySub)
	b.register(deadSub)

	b.broadcastBatch(nil, []spotmodel.EnrichedSpot{fullSpot("20", "CW")})

	if b.SubscriberCount() != 1 {
		t.Fatalf("expected the failed subscriber to be pruned, count=%d", b.SubscriberCount())
	}

	_ = healthyClient.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := healthyClient.ReadMessage()
	if err != nil {
		t.Fatalf("healthy subscriber should still receive the batch: %v", err)
	}
	if !strings.Contains(string(msg), "VE2PID") {
		t.Fatalf("unexpected payload: %s", msg)
	}
}

func recvConn(t *testing.T, ch <-chan *websocket.Conn) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-ch:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for server-side connection")
		return nil
	}
}

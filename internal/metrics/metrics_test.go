package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestSpotsByModeIncrementsPerLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SpotsByMode.WithLabelValues("CW").Inc()
	m.SpotsByMode.WithLabelValues("CW").Inc()
	m.SpotsByMode.WithLabelValues("FT8").Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	counts := map[string]float64{}
	for _, fam := range families {
		if fam.GetName() != "holycluster_spots_by_mode_total" {
			continue
		}
		for _, metric := range fam.Metric {
			counts[labelValue(metric, "mode")] = metric.GetCounter().GetValue()
		}
	}
	if counts["CW"] != 2 || counts["FT8"] != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestBroadcastActiveSubscribersGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.BroadcastActiveSubscribers.Set(3)
	m.BroadcastActiveSubscribers.Dec()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var got float64 = -1
	for _, fam := range families {
		if fam.GetName() == "holycluster_broadcast_active_subscribers" {
			got = fam.Metric[0].GetGauge().GetValue()
		}
	}
	if got != 2 {
		t.Fatalf("got %v, want 2", got)
	}
}

func labelValue(metric *dto.Metric, name string) string {
	for _, lbl := range metric.Label {
		if lbl.GetName() == name {
			return lbl.GetValue()
		}
	}
	return ""
}

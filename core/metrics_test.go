package core

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func gaugeValue(t *testing.T, g *Metrics, status MarketStatus) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.MarketsByStatus.WithLabelValues(status.String()).Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestMetricsRecordMarketStatuses(t *testing.T) {
	m := NewMetrics()
	m.RecordMarketStatuses(map[MarketStatus]int{
		StatusOpen:     3,
		StatusProposed: 1,
	})

	if got := gaugeValue(t, m, StatusOpen); got != 3 {
		t.Errorf("StatusOpen: got %v, want 3", got)
	}
	if got := gaugeValue(t, m, StatusProposed); got != 1 {
		t.Errorf("StatusProposed: got %v, want 1", got)
	}
	if got := gaugeValue(t, m, StatusResolved); got != 0 {
		t.Errorf("StatusResolved: got %v, want 0 (must zero statuses absent from the snapshot)", got)
	}

	// A second snapshot without StatusOpen must zero it back out rather than
	// leaving the stale value in place.
	m.RecordMarketStatuses(map[MarketStatus]int{StatusProposed: 2})
	if got := gaugeValue(t, m, StatusOpen); got != 0 {
		t.Errorf("StatusOpen after re-snapshot: got %v, want 0", got)
	}
}

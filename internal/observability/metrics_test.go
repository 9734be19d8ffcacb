package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestCollectorRecordsLinkTransitions(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewMobilityCollector(reg)
	if err != nil {
		t.Fatalf("NewMobilityCollector: %v", err)
	}

	collector.LinkTransition("wlan1", true)
	collector.LinkTransition("wlan1", true)
	collector.LinkTransition("wlan1", false)

	if got := testutil.ToFloat64(collector.LinkTransitions.WithLabelValues("wlan1", "add")); got != 2 {
		t.Fatalf("mobility_link_transitions_total{op=add} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.LinkTransitions.WithLabelValues("wlan1", "delete")); got != 1 {
		t.Fatalf("mobility_link_transitions_total{op=delete} = %v, want 1", got)
	}
}

func TestCollectorRecordsTickAndScriptDurations(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewMobilityCollector(reg)
	if err != nil {
		t.Fatalf("NewMobilityCollector: %v", err)
	}

	collector.ObserveTick(2 * time.Millisecond)
	collector.ObserveLifecycleScript("run", 100*time.Millisecond)

	if count := histogramSampleCount(t, reg, "mobility_tick_duration_seconds", nil); count != 1 {
		t.Fatalf("tick duration sample_count = %d, want 1", count)
	}
	if count := histogramSampleCount(t, reg, "mobility_script_duration_seconds", map[string]string{
		"transition": "run",
	}); count != 1 {
		t.Fatalf("script duration sample_count = %d, want 1", count)
	}
}

func TestCollectorGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewMobilityCollector(reg)
	if err != nil {
		t.Fatalf("NewMobilityCollector: %v", err)
	}

	collector.SetModelsRunning(3)
	collector.SetPendingWaypoints("wlan1", 17)

	if got := testutil.ToFloat64(collector.ModelsRunning); got != 3 {
		t.Fatalf("mobility_models_running = %v, want 3", got)
	}
	if got := testutil.ToFloat64(collector.PendingWaypoints.WithLabelValues("wlan1")); got != 17 {
		t.Fatalf("mobility_pending_waypoints = %v, want 17", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewMobilityCollector(reg)
	if err != nil {
		t.Fatalf("NewMobilityCollector: %v", err)
	}
	collector.SetModelsRunning(1)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "mobility_models_running 1") {
		t.Fatalf("/metrics body missing gauge:\n%s", rr.Body.String())
	}
}

// Registering twice against the same registry reuses the existing collectors
// instead of failing.
func TestCollectorToleratesReregistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewMobilityCollector(reg)
	if err != nil {
		t.Fatalf("first NewMobilityCollector: %v", err)
	}
	second, err := NewMobilityCollector(reg)
	if err != nil {
		t.Fatalf("second NewMobilityCollector: %v", err)
	}

	first.LinkTransition("wlan1", true)
	second.LinkTransition("wlan1", true)

	if got := testutil.ToFloat64(first.LinkTransitions.WithLabelValues("wlan1", "add")); got != 2 {
		t.Fatalf("shared counter = %v, want 2 (same underlying collector)", got)
	}
}

func histogramSampleCount(t *testing.T, g prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()
	families, err := g.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !labelsMatch(m, labels) {
				continue
			}
			if h := m.GetHistogram(); h != nil {
				return h.GetSampleCount()
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	if len(want) == 0 {
		return true
	}
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

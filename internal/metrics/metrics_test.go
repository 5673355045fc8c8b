package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"presentation-service/internal/metrics"
)

func TestRegisterStoredJobs_ReportsCurrentCount(t *testing.T) {
	n := 3
	metrics.RegisterStoredJobs(func() int { return n })
	// a second registration is ignored rather than panicking
	metrics.RegisterStoredJobs(func() int { return -1 })

	n = 7
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "jobs_stored" {
			continue
		}
		if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 7 {
			t.Fatalf("expected jobs_stored=7, got %v", got)
		}
		return
	}
	t.Fatalf("jobs_stored not registered")
}

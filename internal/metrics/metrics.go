package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once       sync.Once
	storedOnce sync.Once

	providerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_requests_total",
			Help: "Provider API calls by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	providerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_request_duration_seconds",
			Help:    "Provider API call latency.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"operation"},
	)

	generations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generations_total",
			Help: "Finished generations by result ('completed' or the failure reason).",
		},
		[]string{"result"},
	)

	generationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "generation_duration_seconds",
			Help:    "End-to-end generation time including polling.",
			Buckets: []float64{1, 5, 10, 20, 30, 45, 60, 75, 90, 120},
		},
	)

	pollAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "generation_poll_attempts",
			Help:    "Status polls performed per generation.",
			Buckets: prometheus.LinearBuckets(1, 2, 10),
		},
	)

	jobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_total",
			Help: "Async jobs by lifecycle event (created, completed, failed, rejected, evicted).",
		},
		[]string{"event"},
	)

	jobsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobs_in_flight",
			Help: "Async jobs currently executing on a worker.",
		},
	)
)

// MustRegister registers collectors with the default registry (idempotent).
func MustRegister() {
	once.Do(func() {
		prometheus.MustRegister(
			providerRequests, providerLatency,
			generations, generationDuration, pollAttempts,
			jobs, jobsInFlight,
		)
	})
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func ObserveProviderCall(operation, outcome string, start time.Time) {
	providerRequests.WithLabelValues(norm(operation), outcome).Inc()
	providerLatency.WithLabelValues(norm(operation)).Observe(time.Since(start).Seconds())
}

func ObserveGeneration(result string, start time.Time, polls int) {
	generations.WithLabelValues(norm(result)).Inc()
	generationDuration.Observe(time.Since(start).Seconds())
	pollAttempts.Observe(float64(polls))
}

func IncJob(event string) {
	AddJobs(event, 1)
}

func AddJobs(event string, n int) {
	if n <= 0 {
		return
	}
	jobs.WithLabelValues(norm(event)).Add(float64(n))
}

func AddJobsInFlight(delta float64) {
	jobsInFlight.Add(delta)
}

// RegisterStoredJobs exposes the size of an in-process job registry as
// jobs_stored. Only the first call registers.
func RegisterStoredJobs(count func() int) {
	storedOnce.Do(func() {
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "jobs_stored",
				Help: "Jobs currently held by the in-memory registry.",
			},
			func() float64 { return float64(count()) },
		))
	})
}

// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync"
	"time"

	"github.com/ericcgu/eg-mist-orchestration-core/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	deploymentsTotalCounter *prometheus.CounterVec
	stepsTotalCounter       *prometheus.CounterVec
	casRetriesCounter       prometheus.Counter
	casConflictsCounter     prometheus.Counter
	storeOpDurationMetric   *prometheus.HistogramVec
	mistRequestDuration     prometheus.Histogram
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		deploymentsTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deployments_total",
				Help: "Total number of deployment status transitions by status.",
			},
			[]string{"status"},
		)

		stepsTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deployment_steps_total",
				Help: "Total number of step transitions by status.",
			},
			[]string{"status"},
		)

		casRetriesCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "statestore_cas_retries_total",
				Help: "Total number of retried compare-and-swap attempts.",
			},
		)

		casConflictsCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "statestore_cas_conflicts_total",
				Help: "Total number of operations that exhausted CAS retries.",
			},
		)

		storeOpDurationMetric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "statestore_op_duration_seconds",
				Help:    "Duration of state store round trips in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		)

		mistRequestDuration = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mist_request_duration_seconds",
				Help:    "Duration of Mist API requests in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		)

		prometheus.MustRegister(
			deploymentsTotalCounter,
			stepsTotalCounter,
			casRetriesCounter,
			casConflictsCounter,
			storeOpDurationMetric,
			mistRequestDuration,
		)

		// Ensure counter vectors are visible at /metrics before first increment.
		for _, status := range []domain.DeploymentStatus{
			domain.DeploymentInProgress,
			domain.DeploymentCompleted,
			domain.DeploymentFailed,
		} {
			deploymentsTotalCounter.WithLabelValues(string(status))
		}

		for _, status := range []domain.StepStatus{
			domain.StepPending,
			domain.StepInProgress,
			domain.StepCompleted,
			domain.StepFailed,
		} {
			stepsTotalCounter.WithLabelValues(string(status))
		}
	})
}

func IncDeploymentStatus(status string) {
	Init()
	deploymentsTotalCounter.WithLabelValues(status).Inc()
}

func IncStepStatus(status string) {
	Init()
	stepsTotalCounter.WithLabelValues(status).Inc()
}

func IncCASRetries() {
	Init()
	casRetriesCounter.Inc()
}

func IncCASConflicts() {
	Init()
	casConflictsCounter.Inc()
}

func ObserveStoreOpDuration(op string, d time.Duration) {
	Init()
	storeOpDurationMetric.WithLabelValues(op).Observe(d.Seconds())
}

func ObserveMistRequestDuration(d time.Duration) {
	Init()
	mistRequestDuration.Observe(d.Seconds())
}

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	rotaGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pharmarota",
			Name:      "rota_generated_total",
			Help:      "Count of weekly rota generations by result.",
		},
		[]string{"result"},
	)

	conflictsDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pharmarota",
			Name:      "conflicts_detected_total",
			Help:      "Count of schedule conflicts by severity.",
		},
		[]string{"severity"},
	)

	reassignments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pharmarota",
			Name:      "reassignments_total",
			Help:      "Count of reassignments by scope.",
		},
		[]string{"scope"},
	)

	draftsSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pharmarota",
			Name:      "drafts_swept_total",
			Help:      "Count of stale draft documents removed by the sweep.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pharmarota",
			Name:      "http_requests_total",
			Help:      "Count of API requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(rotaGenerated, conflictsDetected, reassignments, draftsSwept, httpRequests)
	})
}

func IncRotaGenerated(result string) {
	rotaGenerated.WithLabelValues(result).Inc()
}

func IncConflictsDetected(severity string) {
	conflictsDetected.WithLabelValues(severity).Inc()
}

func IncReassignment(scope string) {
	reassignments.WithLabelValues(scope).Inc()
}

func AddDraftsSwept(n int64) {
	draftsSwept.Add(float64(n))
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// Package metrics registers the service's prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	prometheus.MustRegister(
		uploadsTotal,
		questionsTotal,
		backendRequestSeconds,
	)
}

var (
	uploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdfchat_uploads_total",
			Help: "Document upload attempts by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	questionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdfchat_questions_total",
			Help: "Question turns by outcome.",
		},
		[]string{"outcome"},
	)

	backendRequestSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pdfchat_backend_request_seconds",
			Help:    "Latency of calls to the inference backend.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"op", "success"},
	)
)

// ObserveUpload records one upload attempt.
func ObserveUpload(mode string, ok bool) {
	uploadsTotal.WithLabelValues(mode, outcome(ok)).Inc()
}

// ObserveQuestion records one question turn.
func ObserveQuestion(ok bool) {
	questionsTotal.WithLabelValues(outcome(ok)).Inc()
}

// ObserveBackend records latency of a single backend call.
func ObserveBackend(op string, d time.Duration, ok bool) {
	backendRequestSeconds.WithLabelValues(op, strconv.FormatBool(ok)).Observe(d.Seconds())
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

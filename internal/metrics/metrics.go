package metrics

import (
	"time"

	"drain-guard/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// predictionsTotal counts successful predictions by status and source
	predictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drainguard_predictions_total",
		Help: "Total predictions by status and source",
	}, []string{"status", "source"})

	// predictionErrors counts failed predictions by error kind
	predictionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drainguard_prediction_errors_total",
		Help: "Total failed predictions by error kind",
	}, []string{"kind"})

	// predictionDuration tracks end-to-end inference latency
	predictionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "drainguard_prediction_duration_seconds",
		Help:    "Inference duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10µs to ~2.6s
	})

	// outOfRangeTotal counts raw values outside the fitted training range
	outOfRangeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drainguard_out_of_range_total",
		Help: "Total raw feature values outside the fitted training range",
	}, []string{"feature"})

	// storeErrors counts prediction persistence failures
	storeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drainguard_store_errors_total",
		Help: "Total failures persisting predictions",
	})

	// publishedTotal counts status messages published over MQTT
	publishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drainguard_status_published_total",
		Help: "Total status messages published by result",
	}, []string{"result"})
)

// ObservePrediction records a successful prediction
func ObservePrediction(status models.Status, source string, outOfRange []string, d time.Duration) {
	if source == "" {
		source = "unknown"
	}
	predictionsTotal.WithLabelValues(string(status), source).Inc()
	predictionDuration.Observe(d.Seconds())
	for _, feature := range outOfRange {
		outOfRangeTotal.WithLabelValues(feature).Inc()
	}
}

// ObserveError records a failed prediction
func ObserveError(kind string) {
	predictionErrors.WithLabelValues(kind).Inc()
}

// ObserveStoreError records a persistence failure
func ObserveStoreError() {
	storeErrors.Inc()
}

// ObservePublish records the outcome of an MQTT publish
func ObservePublish(err error) {
	if err != nil {
		publishedTotal.WithLabelValues("error").Inc()
		return
	}
	publishedTotal.WithLabelValues("ok").Inc()
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_batches_total",
			Help: "Total number of Voice Lab batches by outcome.",
		},
		[]string{"outcome"},
	)

	activeBatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "console_batches_active",
		Help: "Number of Voice Lab batches currently processing.",
	})

	wordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_words_generated_total",
			Help: "Total number of words processed by batch runs, by final status.",
		},
		[]string{"status"},
	)

	wordDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "console_word_generation_seconds",
		Help:    "Time spent streaming the generation of one word.",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	providerTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_provider_tokens_total",
			Help: "Tokens reported by provider traces during batch runs.",
		},
		[]string{"direction"},
	)

	backendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_backend_requests_total",
			Help: "Requests made to the generation backend, by operation and result.",
		},
		[]string{"op", "result"},
	)

	backendLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "console_backend_request_seconds",
			Help:    "Latency of backend requests until response headers.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_cache_lookups_total",
			Help: "Response cache lookups by result.",
		},
		[]string{"result"},
	)

	adminActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_admin_actions_total",
			Help: "Destructive or promoting admin actions by type and result.",
		},
		[]string{"action", "result"},
	)
)

// BatchStarted / BatchFinished ведут счётчик активных пакетов.
func BatchStarted() {
	activeBatches.Inc()
}

func BatchFinished(cancelled bool) {
	activeBatches.Dec()
	outcome := "completed"
	if cancelled {
		outcome = "cancelled"
	}
	batchesTotal.WithLabelValues(outcome).Inc()
}

// WordFinished учитывает одно слово пакета.
func WordFinished(status string, seconds float64, inputTokens, outputTokens int) {
	wordsTotal.WithLabelValues(status).Inc()
	if seconds > 0 {
		wordDuration.Observe(seconds)
	}
	if inputTokens > 0 {
		providerTokens.WithLabelValues("input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		providerTokens.WithLabelValues("output").Add(float64(outputTokens))
	}
}

// BackendRequest records one backend call.
func BackendRequest(op string, err error, seconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	backendRequests.WithLabelValues(op, result).Inc()
	backendLatency.WithLabelValues(op).Observe(seconds)
}

func CacheHit()  { cacheLookups.WithLabelValues("hit").Inc() }
func CacheMiss() { cacheLookups.WithLabelValues("miss").Inc() }

func AdminAction(action string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	adminActions.WithLabelValues(action, result).Inc()
}

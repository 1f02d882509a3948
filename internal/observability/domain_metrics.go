package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	sqlGenerationAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "myasobot_sql_generation_attempts_total",
			Help: "Total number of language-model SQL generation attempts.",
		},
	)
	sqlGenerationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "myasobot_sql_generation_failures_total",
			Help: "SQL generation failures by reason.",
		},
		[]string{"reason"},
	)
	sqlGuardRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "myasobot_sql_guard_rejections_total",
			Help: "Guard rejections of generated SQL by rule kind.",
		},
		[]string{"kind"},
	)
	catalogSearchDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "myasobot_catalog_search_duration_seconds",
			Help:    "Product search execution latency.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)
	catalogSearchTruncatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "myasobot_catalog_search_truncated_total",
			Help: "Searches where the catalog held more rows than the requested limit.",
		},
	)
	catalogSearchFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "myasobot_catalog_search_failures_total",
			Help: "Product search executions that failed at the database.",
		},
	)
	whatsappSendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "myasobot_whatsapp_sends_total",
			Help: "Outbound WhatsApp deliveries by payload kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	conversationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "myasobot_conversations_total",
			Help: "Conversation operations accepted by the API.",
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(
		sqlGenerationAttemptsTotal,
		sqlGenerationFailuresTotal,
		sqlGuardRejectionsTotal,
		catalogSearchDurationSeconds,
		catalogSearchTruncatedTotal,
		catalogSearchFailuresTotal,
		whatsappSendsTotal,
		conversationsTotal,
	)
}

func ObserveGenerationAttempt() {
	sqlGenerationAttemptsTotal.Inc()
}

func ObserveGenerationFailure(reason string) {
	sqlGenerationFailuresTotal.WithLabelValues(reason).Inc()
}

func ObserveGuardRejection(kind string) {
	sqlGuardRejectionsTotal.WithLabelValues(kind).Inc()
}

func ObserveCatalogSearch(elapsed time.Duration, truncated bool) {
	catalogSearchDurationSeconds.Observe(elapsed.Seconds())
	if truncated {
		catalogSearchTruncatedTotal.Inc()
	}
}

func ObserveCatalogSearchFailure() {
	catalogSearchFailuresTotal.Inc()
}

func ObserveWhatsAppSend(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	whatsappSendsTotal.WithLabelValues(kind, outcome).Inc()
}

func ObserveConversation(operation string) {
	conversationsTotal.WithLabelValues(operation).Inc()
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TokensIssued tracks total embed tokens issued
	TokensIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consentd_tokens_issued_total",
		Help: "Total number of embed tokens issued",
	})

	// TokensRevoked tracks total embed tokens revoked
	TokensRevoked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consentd_tokens_revoked_total",
		Help: "Total number of embed tokens revoked",
	})

	// TokenValidations tracks embed validation outcomes on the render path
	TokenValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consentd_token_validations_total",
		Help: "Total number of embed token validations by outcome",
	}, []string{"outcome"})

	// WebhookDeliveries tracks logical webhook delivery outcomes
	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consentd_webhook_deliveries_total",
		Help: "Total number of logical webhook deliveries by outcome",
	}, []string{"outcome"})

	// WebhookCircuitsOpened counts circuit-breaker trips
	WebhookCircuitsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consentd_webhook_circuits_opened_total",
		Help: "Total number of webhook subscriptions disabled by the circuit breaker",
	})

	// RevocationCascades counts executed revocation cascades by scope
	RevocationCascades = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consentd_revocation_cascades_total",
		Help: "Total number of revocation cascades executed",
	}, []string{"scope"})

	// RevocationDuration tracks cascade execution time
	RevocationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "consentd_revocation_duration_seconds",
		Help:    "Histogram of revocation cascade duration",
		Buckets: prometheus.DefBuckets,
	})

	// DBConnectionsActive tracks open database connections
	DBConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "consentd_db_connections_active",
		Help: "Number of active database connections",
	})
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the usage ledger.
type Metrics struct {
	// Metered requests by tier and outcome (allowed, rejected)
	Requests *prometheus.CounterVec

	// Accounts created on first sign-in
	AccountsCreated prometheus.Counter

	TierChanges *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "transferai_usage_requests_total",
			Help: "Metered requests by tier and outcome",
		}, []string{"tier", "outcome"}),

		AccountsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transferai_usage_accounts_created_total",
			Help: "Usage records created on first sign-in",
		}),

		TierChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "transferai_usage_tier_changes_total",
			Help: "Tier changes by new tier",
		}, []string{"tier"}),
	}
}

func (m *Metrics) IncrementRequest(tier string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "rejected"
	}
	m.Requests.WithLabelValues(tier, outcome).Inc()
}

func (m *Metrics) IncrementAccountCreated() {
	if m == nil {
		return
	}
	m.AccountsCreated.Inc()
}

func (m *Metrics) IncrementTierChange(tier string) {
	if m == nil {
		return
	}
	m.TierChanges.WithLabelValues(tier).Inc()
}

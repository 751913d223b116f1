package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "portal", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "portal", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	GuardDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "portal", Name: "guard_decisions_total", Help: "Guard decisions by policy and outcome."},
		[]string{"policy", "decision"},
	)
	EntitlementLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "portal", Name: "entitlement_lookups_total", Help: "Subscription lookups by cache result (hit, miss, error)."},
		[]string{"result"},
	)
	EntitlementInvalidations = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "portal", Name: "entitlement_invalidations_total", Help: "Subscription cache invalidations received."},
	)
	OverrideToggles = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "portal", Name: "override_toggles_total", Help: "Access override changes by action (enable, disable, denied)."},
		[]string{"action"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(GuardDecisions)
	reg.MustRegister(EntitlementLookups)
	reg.MustRegister(EntitlementInvalidations)
	reg.MustRegister(OverrideToggles)
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result
	// (success|failure|unconfirmed|locked).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// AccountLockouts counts accounts transitioned to the locked state.
	AccountLockouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "warden_account_lockouts_total",
			Help: "Total number of account lockouts",
		},
	)

	// AccessChecks counts role and permission evaluations by outcome (allow|deny).
	AccessChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_access_checks_total",
			Help: "Total number of role/permission checks",
		},
		[]string{"kind", "result"},
	)

	// ActiveLogins tracks users holding a live authentication token.
	ActiveLogins = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_active_logins",
			Help: "Number of users currently signed in",
		},
	)
)

package common

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for RequestsTotal.
const (
	OutcomeSuccess         = "success"
	OutcomeRejected        = "rejected"
	OutcomeNetwork         = "network"
	OutcomeUnauthenticated = "unauthenticated"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerapi_requests_total",
		Help: "Logical API calls by method and outcome",
	}, []string{"method", "outcome"})

	RefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerapi_token_refreshes_total",
		Help: "Credential refresh attempts by result",
	}, []string{"result"})

	ReplaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledgerapi_replays_total",
		Help: "Requests resent after a successful refresh",
	})

	SessionExpirationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledgerapi_session_expirations_total",
		Help: "Times the session was declared unrecoverable",
	})
)

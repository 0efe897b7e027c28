// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package workflow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Flow names used as metric labels and span names.
const (
	FlowSignup       = "signup"
	FlowLogin        = "login"
	FlowVerifyEmail  = "verify_email"
	FlowResend       = "resend_confirmation"
	FlowResetRequest = "reset_request"
	FlowResetSubmit  = "reset_submit"
)

// Success outcomes per flow. Failures are labelled with Kind.String().
const (
	OutcomeCreated       = "created"
	OutcomeAuthenticated = "authenticated"
	OutcomeVerified      = "verified"
	OutcomeAccepted      = "accepted"
	OutcomeReset         = "reset"
)

// FlowOutcomes counts completed workflow calls.
// Use RegisterMetrics to register this with a Prometheus registry.
var FlowOutcomes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "formgate_auth_flow_outcomes_total",
		Help: "Total number of auth workflow calls by outcome",
	},
	[]string{"flow", "outcome"},
)

// FlowDuration is the histogram for workflow call duration.
// Use RegisterMetrics to register this with a Prometheus registry.
var FlowDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "formgate_auth_flow_duration_seconds",
		Help:    "Auth workflow duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"flow"},
)

// DispatchFailures counts notifications that could not be handed off.
// Use RegisterMetrics to register this with a Prometheus registry.
var DispatchFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "formgate_notification_dispatch_failures_total",
		Help: "Total number of failed notification dispatches",
	},
	[]string{"kind"},
)

// RegisterMetrics registers workflow metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(FlowOutcomes)
	reg.MustRegister(FlowDuration)
	reg.MustRegister(DispatchFailures)
}

// RecordFlow increments the outcome counter and observes the duration.
func RecordFlow(flow, outcome string, duration time.Duration) {
	FlowOutcomes.WithLabelValues(flow, outcome).Inc()
	FlowDuration.WithLabelValues(flow).Observe(duration.Seconds())
}

// RecordDispatchFailure increments the dispatch failure counter.
func RecordDispatchFailure(kind string) {
	DispatchFailures.WithLabelValues(kind).Inc()
}

package moderation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var validateDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "modbot_validate_duration_sec",
	Help: "Duration of cast validation",
}, []string{"mode"})

var decisionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modbot_decisions",
	Help: "Number of moderation decisions logged, by outcome",
}, []string{"mode", "outcome"})

var actionLoggedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modbot_actions_logged",
	Help: "Number of actions logged, by type",
}, []string{"mode", "action"})

var actionErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modbot_action_errors",
	Help: "Number of actions whose handler failed",
}, []string{"action"})

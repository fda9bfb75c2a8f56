package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MissionsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mia_missions_finished_total",
			Help: "Total number of missions that reached a terminal state",
		},
		[]string{"status"},
	)

	MissionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mia_mission_duration_seconds",
			Help:    "Mission wall-clock duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	ToolResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mia_tool_results_total",
			Help: "Tool invocations by tool and result kind",
		},
		[]string{"tool", "kind"},
	)

	ToolFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mia_tool_fallbacks_total",
			Help: "Page fetches rerouted to web search",
		},
	)

	FetchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mia_fetch_outcomes_total",
			Help: "Resilient fetch outcomes by kind",
		},
		[]string{"kind"},
	)

	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mia_fetch_duration_seconds",
			Help:    "Resilient fetch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	IntegrityRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mia_integrity_rejections_total",
			Help: "Candidates rejected by the integrity gate",
		},
	)

	LLMRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mia_llm_retries_total",
			Help: "Language model retries by purpose",
		},
		[]string{"purpose"},
	)
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	AlertsChecked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_checked_total",
			Help: "Active alerts examined by the evaluator",
		},
		[]string{"market"},
	)
	AlertsTriggered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_triggered_total",
			Help: "Alerts deactivated because their threshold was crossed",
		},
		[]string{"market", "path"},
	)
	AlertsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "alerts_created_total",
			Help: "Alerts created by users",
		},
	)
	PriceFetchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_fetch_failures_total",
			Help: "Failed exchange price requests",
		},
		[]string{"market", "kind"},
	)
	PushSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_sends_total",
			Help: "Web push deliveries by outcome",
		},
		[]string{"outcome"},
	)
	StreamRelaysOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stream_relays_open",
			Help: "Currently open upstream stream relays",
		},
	)
	StreamFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_frames_total",
			Help: "SSE frames written by the stream relay",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		AlertsChecked,
		AlertsTriggered,
		AlertsCreated,
		PriceFetchFailures,
		PushSends,
		StreamRelaysOpen,
		StreamFrames,
	)
}

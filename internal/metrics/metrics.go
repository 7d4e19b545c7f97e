// Package metrics holds the desk's Prometheus metrics:
//   - desk_link_attempts_total{outcome}   linking attempts by outcome
//   - desk_link_acks_total{channel}       acknowledgments by winning channel
//   - desk_link_ack_duplicates_total      completions that lost the race
//   - desk_poll_ticks_total{result}       poll watcher ticks
//   - desk_api_requests_total{endpoint,result}
//   - desk_engine_enabled                 1 when the trading engine is on
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	LinkAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "desk_link_attempts_total",
			Help: "Broker linking attempts by outcome",
		},
		[]string{"outcome"},
	)

	LinkAcks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "desk_link_acks_total",
			Help: "Linking acknowledgments by the channel that won",
		},
		[]string{"channel"},
	)

	LinkAckDuplicates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "desk_link_ack_duplicates_total",
			Help: "Completion signals dropped because the attempt was already acknowledged",
		},
	)

	PollTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "desk_poll_ticks_total",
			Help: "Poll watcher ticks by result (pending|linked|error|expired)",
		},
		[]string{"result"},
	)

	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "desk_api_requests_total",
			Help: "Backend requests by endpoint and result",
		},
		[]string{"endpoint", "result"},
	)

	EngineEnabled = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "desk_engine_enabled",
			Help: "1 when the trading engine is enabled",
		},
	)
)

func init() {
	prometheus.MustRegister(
		LinkAttempts,
		LinkAcks,
		LinkAckDuplicates,
		PollTicks,
		APIRequests,
		EngineEnabled,
	)
}

package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	scopeBGPGroup         = "bgp_group"
	scopeInternetExchange = "internet_exchange"
	scopeSession          = "session"

	pollResultUpdated = "updated"
	pollResultSkipped = "skipped"
	pollResultFailed  = "failed"

	sessionKindDirect           = "direct"
	sessionKindInternetExchange = "internet_exchange"
)

var (
	// pollCounterVec is the counter-vec metric in prometheus
	// that counts the session state polls by scope and result.
	pollCounterVec = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peering_controller_poll_total",
			Help: "the counter of the session state polls",
		},
		[]string{"scope", "result"},
	)
	// sessionStateUpdateCounterVec counts the sessions whose state was updated from a live neighbor.
	sessionStateUpdateCounterVec = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peering_controller_session_state_update_total",
			Help: "the counter of the session state updates",
		},
		[]string{"kind"},
	)
	// deviceErrorCounterVec counts the failed device queries per router.
	deviceErrorCounterVec = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peering_controller_device_error_total",
			Help: "the counter of the errors while querying a router",
		},
		[]string{"router"},
	)
	importedSessionCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "peering_controller_imported_session_total",
			Help: "the counter of the sessions created by the import",
		},
	)
	createdAutonomousSystemCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "peering_controller_created_autonomous_system_total",
			Help: "the counter of the autonomous systems created from PeeringDB",
		},
	)
	// lastPollGaugeVec holds the unix time of the last successful poll per scope.
	lastPollGaugeVec = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "peering_controller_last_poll_timestamp_seconds",
			Help: "the unix time of the last successful poll",
		},
		[]string{"scope"},
	)
)

func NewPrometheusMetricRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		// Go runtime metric collector
		collectors.NewGoCollector(),
		// process metric collector
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),

		// peering-controller
		pollCounterVec,
		sessionStateUpdateCounterVec,
		deviceErrorCounterVec,
		importedSessionCounter,
		createdAutonomousSystemCounter,
		lastPollGaugeVec,
	)
	return reg
}

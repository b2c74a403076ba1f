package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "hydromon"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	pollTotal   *prometheus.CounterVec
	pollLatency *prometheus.HistogramVec
	stale       prometheus.Gauge
	online      prometheus.Gauge

	alertChecks   *prometheus.CounterVec
	relayCommands *prometheus.CounterVec
	mqttMessages  *prometheus.CounterVec
	wsClients     prometheus.Gauge
)

// Init registers the agent metrics with the default registry. It is safe to
// call more than once.
func Init() {
	registerOnce.Do(func() {
		pollTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "polls_total",
				Help:      "Total polls of the latest data endpoint by result",
			},
			[]string{"result"},
		)
		pollLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "poll_latency_seconds",
				Help:      "Latest data poll latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		stale = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "data_stale",
				Help:      "1 if no data has been received within the staleness window",
			},
		)
		online = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "online",
				Help:      "1 if the host has network connectivity",
			},
		)
		alertChecks = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alert_checks_total",
				Help:      "Total threshold checks by outcome",
			},
			[]string{"outcome"},
		)
		relayCommands = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relay_commands_total",
				Help:      "Total relay commands by command and result",
			},
			[]string{"command", "result"},
		)
		mqttMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mqtt_messages_total",
				Help:      "Total MQTT messages received by result",
			},
			[]string{"result"},
		)
		wsClients = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_clients",
				Help:      "Connected websocket clients",
			},
		)
		prometheus.MustRegister(
			pollTotal,
			pollLatency,
			stale,
			online,
			alertChecks,
			relayCommands,
			mqttMessages,
			wsClients,
		)
	})
}

func result(err error) string {
	if err != nil {
		return resultError
	}
	return resultSuccess
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// ObservePoll records a poll result and its latency.
func ObservePoll(d time.Duration, err error) {
	r := result(err)
	if pollTotal != nil {
		pollTotal.WithLabelValues(r).Inc()
	}
	if pollLatency != nil {
		pollLatency.WithLabelValues(r).Observe(d.Seconds())
	}
}

func SetStale(b bool) {
	if stale != nil {
		stale.Set(boolValue(b))
	}
}

func SetOnline(b bool) {
	if online != nil {
		online.Set(boolValue(b))
	}
}

// IncAlertCheck counts a threshold check outcome.
func IncAlertCheck(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if alertChecks != nil {
		alertChecks.WithLabelValues(outcome).Inc()
	}
}

func IncRelayCommand(command string, err error) {
	if relayCommands != nil {
		relayCommands.WithLabelValues(command, result(err)).Inc()
	}
}

func IncMQTTMessage(err error) {
	if mqttMessages != nil {
		mqttMessages.WithLabelValues(result(err)).Inc()
	}
}

func SetWebsocketClients(n int) {
	if wsClients != nil {
		wsClients.Set(float64(n))
	}
}

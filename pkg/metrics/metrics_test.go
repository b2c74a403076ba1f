package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	Init()
	Init()

	ObservePoll(100*time.Millisecond, nil)
	ObservePoll(time.Second, errors.New("timeout"))
	ObservePoll(50*time.Millisecond, nil)
	assert.Equal(t, 2.0, testutil.ToFloat64(pollTotal.WithLabelValues(resultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(pollTotal.WithLabelValues(resultError)))

	SetStale(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(stale))
	SetStale(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(stale))

	SetOnline(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(online))

	IncAlertCheck("sent")
	IncAlertCheck("")
	assert.Equal(t, 1.0, testutil.ToFloat64(alertChecks.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(alertChecks.WithLabelValues("unknown")))

	IncRelayCommand("relay1_on", nil)
	IncRelayCommand("relay1_on", errors.New("503"))
	assert.Equal(t, 1.0, testutil.ToFloat64(relayCommands.WithLabelValues("relay1_on", resultError)))

	IncMQTTMessage(nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(mqttMessages.WithLabelValues(resultSuccess)))

	SetWebsocketClients(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(wsClients))
}

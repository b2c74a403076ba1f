package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/lehydrosys/hydromon/pkg/alert"
	"github.com/lehydrosys/hydromon/pkg/metrics"
	"github.com/lehydrosys/hydromon/pkg/notify"
	"github.com/lehydrosys/hydromon/pkg/poller"
	"github.com/lehydrosys/hydromon/pkg/reading"
)

const (
	MessageReading = "reading"
	MessageAlert   = "alert"
	MessageStatus  = "status"

	parseErrorMessage = "Error parsing server data"
)

// State is the current display state
type State struct {
	Reading *reading.Reading `json:"reading,omitempty"`
	Source  string           `json:"source,omitempty"`
	// Stale tracks the server poll only. MQTT readings leave it unchanged.
	Stale     bool      `json:"stale"`
	Online    bool      `json:"online"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one entry of the live feed
type Message struct {
	Type         string               `json:"type"`
	Time         time.Time            `json:"time"`
	Reading      *reading.Reading     `json:"reading,omitempty"`
	State        *State               `json:"state,omitempty"`
	Notification *notify.Notification `json:"notification,omitempty"`
}

type Broadcaster interface {
	Broadcast(msg Message)
}

type Checker interface {
	Check(ctx context.Context, r reading.Reading) (alert.Result, error)
}

type Config struct {
	// Events from the poller
	Events <-chan poller.Event
	// Readings pushed over MQTT, optional
	Readings <-chan reading.Reading
	// Connectivity changes, optional
	Connectivity <-chan bool
	Alerter      Checker
	Broadcaster  Broadcaster
	Now          func() time.Time
	Logger       *slog.Logger
}

// Monitor owns the display state. Every update happens on the goroutine
// running Run.
type Monitor struct {
	cfg    Config
	logger *slog.Logger
	mu     sync.RWMutex
	state  State
}

func New(cfg Config) *Monitor {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Monitor{cfg: cfg, logger: cfg.Logger}
}

// State returns a snapshot of the display state
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.state
	if s.Reading != nil {
		r := *s.Reading
		s.Reading = &r
	}
	return s
}

func (m *Monitor) Run(ctx context.Context) error {
	events := m.cfg.Events
	readings := m.cfg.Readings
	connectivity := m.cfg.Connectivity
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			m.handleEvent(ctx, ev)
		case r := <-readings:
			m.handleReading(ctx, r, "mqtt")
		case online, ok := <-connectivity:
			if !ok {
				connectivity = nil
				continue
			}
			m.handleOnline(ctx, online)
		}
	}
}

func (m *Monitor) handleEvent(ctx context.Context, ev poller.Event) {
	switch ev.Kind {
	case poller.EventReading:
		m.handleReading(ctx, ev.Reading, "http")
	case poller.EventFailure:
		msg := ev.Err.Error()
		if errors.Is(ev.Err, reading.ErrMalformed) {
			msg = parseErrorMessage
		}
		m.logger.LogAttrs(ctx, slog.LevelWarn, msg, slog.Any("error", ev.Err))
		m.update(func(s *State) {
			s.LastError = msg
		})
	case poller.EventStale:
		m.logger.LogAttrs(ctx, slog.LevelWarn, "No data received from server")
		metrics.SetStale(true)
		m.update(func(s *State) {
			s.Stale = true
		})
		m.broadcastStatus()
	case poller.EventRecovered:
		m.logger.LogAttrs(ctx, slog.LevelInfo, "Receiving data from server again")
		metrics.SetStale(false)
		m.update(func(s *State) {
			s.Stale = false
		})
		m.broadcastStatus()
	}
}

func (m *Monitor) handleReading(ctx context.Context, r reading.Reading, source string) {
	m.update(func(s *State) {
		s.Reading = &r
		s.Source = source
		s.LastError = ""
	})
	m.broadcast(Message{Type: MessageReading, Time: m.cfg.Now(), Reading: &r})
	if m.cfg.Alerter == nil {
		return
	}
	res, err := m.cfg.Alerter.Check(ctx, r)
	metrics.IncAlertCheck(string(res.Outcome))
	if err != nil {
		m.logger.LogAttrs(ctx, slog.LevelWarn, "Alert check failed", slog.Any("error", err))
		return
	}
	if res.Outcome == alert.OutcomeSent {
		m.logger.LogAttrs(ctx, slog.LevelInfo, "Alert notification sent", slog.Int("alerts", len(res.Records)), slog.String("source", source))
	}
}

func (m *Monitor) handleOnline(ctx context.Context, online bool) {
	if online {
		m.logger.LogAttrs(ctx, slog.LevelInfo, "Network connected")
	} else {
		m.logger.LogAttrs(ctx, slog.LevelWarn, "Network disconnected")
	}
	metrics.SetOnline(online)
	m.update(func(s *State) {
		s.Online = online
	})
	m.broadcastStatus()
}

func (m *Monitor) update(f func(s *State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f(&m.state)
	m.state.UpdatedAt = m.cfg.Now()
}

func (m *Monitor) broadcastStatus() {
	s := m.State()
	m.broadcast(Message{Type: MessageStatus, Time: s.UpdatedAt, State: &s})
}

func (m *Monitor) broadcast(msg Message) {
	if m.cfg.Broadcaster != nil {
		m.cfg.Broadcaster.Broadcast(msg)
	}
}

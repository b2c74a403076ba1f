package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/niktheblak/web-common/pkg/auth"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lehydrosys/hydromon/internal/monitor"
	"github.com/lehydrosys/hydromon/pkg/middleware"
	"github.com/lehydrosys/hydromon/pkg/relay"
)

const DefaultGraphURL = "https://lehydrosys-sqfy.onrender.com/graphs.html"

type StateSource interface {
	State() monitor.State
}

type SettingsStore interface {
	NotificationsEnabled(ctx context.Context) (bool, error)
	SetNotificationsEnabled(ctx context.Context, enabled bool) error
	LastNotificationSent(ctx context.Context) (time.Time, error)
}

type RelaySender interface {
	Send(ctx context.Context, cmd relay.Command) error
}

type Config struct {
	State         StateSource
	Settings      SettingsStore
	Relay         RelaySender
	Hub           *Hub
	GraphURL      string
	Authenticator auth.Authenticator
	// AccessLog receives one line per request in Apache common log format.
	// Nil disables access logging.
	AccessLog io.Writer
	Logger    *slog.Logger
}

// New returns the status API handler
func New(cfg Config) http.Handler {
	if cfg.GraphURL == "" {
		cfg.GraphURL = DefaultGraphURL
	}
	if cfg.Authenticator == nil {
		cfg.Authenticator = auth.AlwaysAllow()
	}
	if cfg.Hub == nil {
		cfg.Hub = NewHub(DefaultMaxClients, cfg.Logger)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	protect := func(h http.Handler) http.Handler {
		return middleware.Authenticator(h, cfg.Authenticator)
	}
	router := mux.NewRouter()
	router.HandleFunc("/health", healthHandler).Methods(http.MethodGet, http.MethodHead)
	router.Handle("/latest", latestHandler(cfg.State, cfg.Logger)).Methods(http.MethodGet)
	router.Handle("/graph", graphHandler(cfg.GraphURL)).Methods(http.MethodGet)
	router.Handle("/notifications", getNotificationsHandler(cfg.Settings, cfg.Logger)).Methods(http.MethodGet)
	router.Handle("/notifications", protect(putNotificationsHandler(cfg.Settings, cfg.Logger))).Methods(http.MethodPut)
	router.Handle("/relay/{command}", protect(relayHandler(cfg.Relay, cfg.Logger))).Methods(http.MethodPost)
	router.Handle("/ws", cfg.Hub).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	var handler http.Handler = router
	if cfg.AccessLog != nil {
		handler = handlers.LoggingHandler(cfg.AccessLog, handler)
	}
	return middleware.RequestID(handler)
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/lehydrosys/hydromon/pkg/api"
	"github.com/lehydrosys/hydromon/pkg/relay"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store, max-age=0")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.LogAttrs(r.Context(), slog.LevelError, "Error while writing output", slog.Any("error", err))
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("OK"))
}

func latestHandler(source StateSource, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, source.State(), logger)
	})
}

func graphHandler(graphURL string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, graphURL, http.StatusFound)
	})
}

type notificationsBody struct {
	Enabled *bool `json:"enabled"`
}

type notificationsResponse struct {
	Enabled  bool       `json:"enabled"`
	LastSent *time.Time `json:"last_sent,omitempty"`
}

func getNotificationsHandler(store SettingsStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enabled, err := store.NotificationsEnabled(r.Context())
		if err != nil {
			logger.LogAttrs(r.Context(), slog.LevelError, "Error while reading notification setting", slog.Any("error", err))
			http.Error(w, "Error while reading settings", http.StatusInternalServerError)
			return
		}
		resp := notificationsResponse{Enabled: enabled}
		last, err := store.LastNotificationSent(r.Context())
		if err != nil {
			logger.LogAttrs(r.Context(), slog.LevelError, "Error while reading last notification time", slog.Any("error", err))
			http.Error(w, "Error while reading settings", http.StatusInternalServerError)
			return
		}
		if !last.IsZero() {
			last = last.UTC()
			resp.LastSent = &last
		}
		writeJSON(w, r, http.StatusOK, resp, logger)
	})
}

func putNotificationsHandler(store SettingsStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body notificationsBody
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&body); err != nil || body.Enabled == nil {
			http.Error(w, "Invalid body", http.StatusBadRequest)
			return
		}
		if err := store.SetNotificationsEnabled(r.Context(), *body.Enabled); err != nil {
			logger.LogAttrs(r.Context(), slog.LevelError, "Error while storing notification setting", slog.Any("error", err))
			http.Error(w, "Error while storing settings", http.StatusInternalServerError)
			return
		}
		logger.LogAttrs(r.Context(), slog.LevelInfo, "Notifications toggled", slog.Bool("enabled", *body.Enabled))
		writeJSON(w, r, http.StatusOK, notificationsResponse{Enabled: *body.Enabled}, logger)
	})
}

type relayResponse struct {
	Command string `json:"command"`
	Status  string `json:"status"`
}

func relayHandler(commander RelaySender, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cmd, err := relay.ParseCommand(mux.Vars(r)["command"])
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()
		err = commander.Send(ctx, cmd)
		var statusErr *api.StatusError
		switch {
		case err == nil:
		case errors.Is(err, context.DeadlineExceeded):
			http.Error(w, "Timeout while sending relay command", http.StatusGatewayTimeout)
			return
		case errors.As(err, &statusErr):
			http.Error(w, "Server rejected relay command", http.StatusBadGateway)
			return
		default:
			logger.LogAttrs(r.Context(), slog.LevelError, "Error while sending relay command", slog.String("command", string(cmd)), slog.Any("error", err))
			http.Error(w, "Error while sending relay command", http.StatusBadGateway)
			return
		}
		writeJSON(w, r, http.StatusOK, relayResponse{Command: string(cmd), Status: "sent"}, logger)
	})
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/niktheblak/web-common/pkg/auth"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/lehydrosys/hydromon/internal/monitor"
	"github.com/lehydrosys/hydromon/internal/server"
	"github.com/lehydrosys/hydromon/pkg/alert"
	"github.com/lehydrosys/hydromon/pkg/connectivity"
	"github.com/lehydrosys/hydromon/pkg/metrics"
	"github.com/lehydrosys/hydromon/pkg/mqtt"
	"github.com/lehydrosys/hydromon/pkg/notify"
	"github.com/lehydrosys/hydromon/pkg/poller"
	"github.com/lehydrosys/hydromon/pkg/reading"
	"github.com/lehydrosys/hydromon/pkg/relay"
)

var monitorCmd = &cobra.Command{
	Use:          "monitor",
	Short:        "Poll sensor data, raise alerts and serve the status API",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			accessToken = viper.GetStringSlice("server.token")
			port        = viper.GetInt("server.port")
		)
		metrics.Init()
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		store, err := openSettings(ctx)
		if err != nil {
			return fmt.Errorf("failed to open settings store: %w", err)
		}
		defer store.Close()

		hub := server.NewHub(viper.GetInt("server.max_clients"), logger)
		notifiers := []notify.Notifier{hub}
		if viper.GetBool("notify.log") {
			notifiers = append(notifiers, notify.NewLog(logger))
		}
		if token := viper.GetString("notify.telegram.token"); token != "" {
			telegram, err := notify.NewTelegram(notify.TelegramConfig{
				BotToken:      token,
				ChatID:        viper.GetInt64("notify.telegram.chat_id"),
				RatePerMinute: viper.GetInt("notify.telegram.rate_per_minute"),
			})
			if err != nil {
				return fmt.Errorf("failed to create Telegram notifier: %w", err)
			}
			logger.LogAttrs(ctx, slog.LevelInfo, "Sending alerts to Telegram", slog.Int64("chat_id", viper.GetInt64("notify.telegram.chat_id")))
			notifiers = append(notifiers, telegram)
		}
		alerter, err := alert.New(alert.Config{
			Cooldown: viper.GetDuration("alert.cooldown"),
			Store:    store,
			Notifier: notify.NewMulti(notifiers...),
			Logger:   logger,
		})
		if err != nil {
			return err
		}

		p := poller.New(client, poller.Config{
			Interval:      viper.GetDuration("poll.interval"),
			StaleAfter:    viper.GetDuration("poll.stale_after"),
			CheckInterval: viper.GetDuration("poll.stale_check"),
			Observer:      metrics.ObservePoll,
			Logger:        logger,
		})
		observer := connectivity.New(connectivity.Config{
			ProbeAddr:    viper.GetString("connectivity.probe_addr"),
			ProbeTimeout: viper.GetDuration("connectivity.probe_timeout"),
			Interval:     viper.GetDuration("connectivity.interval"),
			Logger:       logger,
		})

		g, ctx := errgroup.WithContext(ctx)
		var mqttReadings <-chan reading.Reading
		if viper.GetBool("mqtt.enabled") {
			mqttCfg := newMQTTConfig()
			mqttCfg.Observer = metrics.IncMQTTMessage
			sub, err := mqtt.New(mqttCfg)
			if err != nil {
				return err
			}
			mqttReadings = sub.Readings()
			g.Go(func() error {
				return sub.Run(ctx)
			})
		}
		mon := monitor.New(monitor.Config{
			Events:       p.Events(),
			Readings:     mqttReadings,
			Connectivity: observer.Observe(ctx),
			Alerter:      alerter,
			Broadcaster:  hub,
			Logger:       logger,
		})
		g.Go(func() error {
			return p.Run(ctx)
		})
		g.Go(func() error {
			return mon.Run(ctx)
		})

		var authenticator auth.Authenticator
		if len(accessToken) > 0 {
			logger.Info("Using authentication", "tokens", len(accessToken))
			authenticator = auth.Static(accessToken...)
		} else {
			logger.Info("Not using authentication")
			authenticator = auth.AlwaysAllow()
		}
		commander := newCommander(client, func(cmd relay.Command, err error) {
			metrics.IncRelayCommand(string(cmd), err)
		})
		httpServer := &http.Server{
			Addr: fmt.Sprintf(":%d", port),
			Handler: server.New(server.Config{
				State:         mon,
				Settings:      store,
				Relay:         commander,
				Hub:           hub,
				GraphURL:      viper.GetString("graph.url"),
				Authenticator: authenticator,
				AccessLog:     accessLogWriter(),
				Logger:        logger,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.LogAttrs(ctx, slog.LevelInfo, "Starting server", slog.Int("port", port), slog.String("api_url", client.URL("")))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "err", err)
				cancel()
			}
		}()
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			logger.Info("Shutting down monitor")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			hub.Close()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("Failed to shut down HTTP server", "err", err)
			}
		}()
		err = g.Wait()
		wg.Wait()
		return err
	},
}

func accessLogWriter() io.Writer {
	if !viper.GetBool("server.access_log") {
		return nil
	}
	return os.Stdout
}

func init() {
	monitorCmd.Flags().Duration("poll.interval", 0, "poll interval")
	monitorCmd.Flags().Duration("poll.stale_after", 0, "time without data before it is reported stale")
	monitorCmd.Flags().Duration("alert.cooldown", 0, "minimum time between alert notifications")
	monitorCmd.Flags().Bool("notify.log", true, "log alert notifications")
	monitorCmd.Flags().String("notify.telegram.token", "", "Telegram bot token")
	monitorCmd.Flags().Int64("notify.telegram.chat_id", 0, "Telegram chat ID")
	monitorCmd.Flags().Bool("mqtt.enabled", false, "receive readings over MQTT")
	monitorCmd.Flags().Int("server.port", 0, "Server port")
	monitorCmd.Flags().StringSlice("server.token", nil, "Allowed API access tokens")
	monitorCmd.Flags().Bool("server.access_log", true, "write HTTP access log to stdout")

	cobra.CheckErr(viper.BindPFlags(monitorCmd.Flags()))

	viper.SetDefault("poll.interval", "5s")
	viper.SetDefault("poll.stale_after", "30s")
	viper.SetDefault("poll.stale_check", "10s")
	viper.SetDefault("alert.cooldown", "5m")
	viper.SetDefault("notify.telegram.rate_per_minute", 20)
	viper.SetDefault("connectivity.probe_addr", connectivity.DefaultProbeAddr)
	viper.SetDefault("connectivity.probe_timeout", "1500ms")
	viper.SetDefault("connectivity.interval", "5s")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.max_clients", server.DefaultMaxClients)

	rootCmd.AddCommand(monitorCmd)
}

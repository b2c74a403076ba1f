package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/lehydrosys/hydromon/pkg/reading"
)

const (
	DefaultTopic     = "iot/sensors"
	DefaultKeepAlive = 60 * time.Second

	qos            = 1
	connectTimeout = 10 * time.Second
	quiesceMillis  = 250
)

var ErrNotConnected = errors.New("mqtt: not connected")

type Config struct {
	Broker    string
	Topic     string
	ClientID  string
	Username  string
	Password  string
	CAFile    string
	KeepAlive time.Duration
	// Observer is called for every received message with its decode error
	Observer func(err error)
	Logger   *slog.Logger
}

// Subscriber receives sensor readings pushed by the device over MQTT
type Subscriber struct {
	cfg      Config
	client   paho.Client
	readings chan reading.Reading
	logger   *slog.Logger
	now      func() time.Time
}

func New(cfg Config) (*Subscriber, error) {
	s, opts, err := newSubscriber(cfg)
	if err != nil {
		return nil, err
	}
	s.client = paho.NewClient(opts)
	return s, nil
}

func newSubscriber(cfg Config) (*Subscriber, *paho.ClientOptions, error) {
	if cfg.Broker == "" {
		return nil, nil, fmt.Errorf("mqtt: broker address must be specified")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "hydromon-" + uuid.NewString()[:8]
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Subscriber{
		cfg:      cfg,
		readings: make(chan reading.Reading, 16),
		logger:   cfg.Logger,
		now:      time.Now,
	}
	opts, err := s.options()
	if err != nil {
		return nil, nil, err
	}
	return s, opts, nil
}

func (s *Subscriber) options() (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(s.cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetKeepAlive(s.cfg.KeepAlive).
		SetConnectTimeout(connectTimeout).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(s.onConnectionLost)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}
	if s.cfg.CAFile != "" {
		tlsConfig, err := loadTLSConfig(s.cfg.CAFile)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}
	return opts, nil
}

func loadTLSConfig(caFile string) (*tls.Config, error) {
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", caFile)
	}
	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// Readings delivers decoded readings. The channel is never closed.
func (s *Subscriber) Readings() <-chan reading.Reading {
	return s.readings
}

// Subscriptions are not kept across clean sessions so every (re)connect
// subscribes again.
func (s *Subscriber) onConnect(client paho.Client) {
	s.logger.LogAttrs(context.Background(), slog.LevelInfo, "Connected to MQTT broker", slog.String("broker", s.cfg.Broker), slog.String("topic", s.cfg.Topic))
	token := client.Subscribe(s.cfg.Topic, qos, s.handle)
	go func() {
		if !token.WaitTimeout(connectTimeout) {
			s.logger.LogAttrs(context.Background(), slog.LevelWarn, "MQTT subscribe timed out", slog.String("topic", s.cfg.Topic))
			return
		}
		if err := token.Error(); err != nil {
			s.logger.LogAttrs(context.Background(), slog.LevelWarn, "MQTT subscribe failed", slog.String("topic", s.cfg.Topic), slog.Any("error", err))
		}
	}()
}

func (s *Subscriber) onConnectionLost(client paho.Client, err error) {
	s.logger.LogAttrs(context.Background(), slog.LevelWarn, "MQTT connection lost", slog.Any("error", err))
}

func (s *Subscriber) handle(client paho.Client, msg paho.Message) {
	r, err := reading.Decode(msg.Payload(), s.now())
	if s.cfg.Observer != nil {
		s.cfg.Observer(err)
	}
	if err != nil {
		s.logger.LogAttrs(context.Background(), slog.LevelWarn, "Error parsing MQTT message", slog.String("topic", msg.Topic()), slog.Any("error", err))
		return
	}
	select {
	case s.readings <- r:
	default:
		s.logger.LogAttrs(context.Background(), slog.LevelWarn, "Dropping MQTT reading, consumer is behind", slog.String("topic", msg.Topic()))
	}
}

func wait(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect opens the broker connection and waits for the handshake
func (s *Subscriber) Connect(ctx context.Context) error {
	if err := wait(ctx, s.client.Connect()); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", s.cfg.Broker, err)
	}
	return nil
}

// Close disconnects from the broker
func (s *Subscriber) Close() {
	s.client.Disconnect(quiesceMillis)
}

// Run connects to the broker and keeps the connection alive until ctx is
// done. A watchdog reconnects every keep-alive interval if the client is
// disconnected and auto reconnect has given up.
func (s *Subscriber) Run(ctx context.Context) error {
	if err := s.Connect(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		s.logger.LogAttrs(ctx, slog.LevelWarn, "Failed to connect to MQTT broker", slog.String("broker", s.cfg.Broker), slog.Any("error", err))
	}
	defer s.Close()
	ticker := time.NewTicker(s.cfg.KeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.LogAttrs(ctx, slog.LevelInfo, "Disconnecting from MQTT broker")
			return nil
		case <-ticker.C:
			if s.client.IsConnected() {
				continue
			}
			s.logger.LogAttrs(ctx, slog.LevelInfo, "Reconnecting to MQTT broker", slog.String("broker", s.cfg.Broker))
			if err := wait(ctx, s.client.Connect()); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.LogAttrs(ctx, slog.LevelWarn, "MQTT reconnect failed", slog.Any("error", err))
			}
		}
	}
}

// Topic returns the topic readings are received from and published to
func (s *Subscriber) Topic() string {
	return s.cfg.Topic
}

// Publish sends payload to the configured topic at QoS 1
func (s *Subscriber) Publish(ctx context.Context, payload []byte) error {
	if !s.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	if err := wait(ctx, s.client.Publish(s.cfg.Topic, qos, false, payload)); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", s.cfg.Topic, err)
	}
	return nil
}

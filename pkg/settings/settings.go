package settings

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	KeyNotificationsEnabled = "notifications_enabled"
	KeyLastNotificationTime = "last_notification_time"
)

// Store persists the agent's local settings
type Store interface {
	NotificationsEnabled(ctx context.Context) (bool, error)
	SetNotificationsEnabled(ctx context.Context, enabled bool) error
	// LastNotificationSent returns the zero time if no notification was ever sent.
	LastNotificationSent(ctx context.Context) (time.Time, error)
	SetLastNotificationSent(ctx context.Context, t time.Time) error
	io.Closer
}

type Config struct {
	Driver string
	// Path of the YAML file for the file driver
	Path string
	// PsqlInfo is the connection string for the postgres driver
	PsqlInfo string
	Table    string
}

// Open creates the store selected by cfg.Driver
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "file":
		return NewFile(cfg.Path)
	case "postgres":
		return NewPostgres(ctx, cfg.PsqlInfo, cfg.Table)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported settings driver: %s", cfg.Driver)
	}
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

type memory struct {
	mu       sync.Mutex
	enabled  bool
	lastSent time.Time
}

// NewMemory returns a store that keeps settings in process memory only
func NewMemory() Store {
	return &memory{enabled: true}
}

func (m *memory) NotificationsEnabled(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled, nil
}

func (m *memory) SetNotificationsEnabled(ctx context.Context, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
	return nil
}

func (m *memory) LastNotificationSent(ctx context.Context) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSent, nil
}

func (m *memory) SetLastNotificationSent(ctx context.Context, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSent = t
	return nil
}

func (m *memory) Close() error {
	return nil
}

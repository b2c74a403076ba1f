package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type fileData struct {
	NotificationsEnabled *bool `yaml:"notifications_enabled,omitempty"`
	LastNotificationTime int64 `yaml:"last_notification_time"`
}

type file struct {
	mu   sync.Mutex
	path string
}

// NewFile returns a store backed by a YAML file. The file is created on the
// first write.
func NewFile(path string) (Store, error) {
	if path == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	return &file{path: path}, nil
}

func (f *file) load() (fileData, error) {
	var d fileData
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return d, nil
	}
	if err != nil {
		return d, fmt.Errorf("failed to read settings file: %w", err)
	}
	if err := yaml.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("failed to parse settings file: %w", err)
	}
	return d, nil
}

func (f *file) save(d fileData) error {
	data, err := yaml.Marshal(d)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return os.Rename(tmp.Name(), f.path)
}

func (f *file) update(fn func(d *fileData)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, err := f.load()
	if err != nil {
		return err
	}
	fn(&d)
	return f.save(d)
}

func (f *file) NotificationsEnabled(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, err := f.load()
	if err != nil {
		return false, err
	}
	if d.NotificationsEnabled == nil {
		return true, nil
	}
	return *d.NotificationsEnabled, nil
}

func (f *file) SetNotificationsEnabled(ctx context.Context, enabled bool) error {
	return f.update(func(d *fileData) {
		d.NotificationsEnabled = &enabled
	})
}

func (f *file) LastNotificationSent(ctx context.Context) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, err := f.load()
	if err != nil {
		return time.Time{}, err
	}
	return fromMillis(d.LastNotificationTime), nil
}

func (f *file) SetLastNotificationSent(ctx context.Context, t time.Time) error {
	return f.update(func(d *fileData) {
		d.LastNotificationTime = toMillis(t)
	})
}

func (f *file) Close() error {
	return nil
}

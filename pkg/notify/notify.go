package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

const DefaultTitle = "Sensor Update"

// Notification is one combined alert message
type Notification struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Body  string    `json:"body"`
	Time  time.Time `json:"time"`
}

// New creates a notification with a fresh ID
func New(title, body string, t time.Time) Notification {
	if title == "" {
		title = DefaultTitle
	}
	return Notification{
		ID:    uuid.NewString(),
		Title: title,
		Body:  body,
		Time:  t,
	}
}

// Lines returns the body split into lines
func (n Notification) Lines() []string {
	if n.Body == "" {
		return nil
	}
	return strings.Split(n.Body, "\n")
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Multi dispatches notifications to several notifiers
type Multi struct {
	notifiers []Notifier
}

func NewMulti(notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers}
}

// Notify forwards n to every notifier. It succeeds if at least one notifier
// delivered the notification.
func (m *Multi) Notify(ctx context.Context, n Notification) error {
	if m == nil || len(m.notifiers) == 0 {
		return nil
	}
	var errs []error
	delivered := false
	for _, notifier := range m.notifiers {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
			continue
		}
		delivered = true
	}
	if delivered {
		return nil
	}
	return errors.Join(errs...)
}

// Log writes notifications to a structured logger
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Log{logger: logger}
}

func (l *Log) Notify(ctx context.Context, n Notification) error {
	l.logger.LogAttrs(
		ctx,
		slog.LevelWarn,
		n.Title,
		slog.String("id", n.ID),
		slog.Any("alerts", n.Lines()),
	)
	return nil
}

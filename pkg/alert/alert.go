package alert

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lehydrosys/hydromon/pkg/notify"
	"github.com/lehydrosys/hydromon/pkg/reading"
	"github.com/lehydrosys/hydromon/pkg/settings"
)

// DefaultCooldown is the minimum time between two alert notifications.
const DefaultCooldown = 5 * time.Minute

// Range is an inclusive acceptable range
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies within the range. NaN is never contained.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

func (r Range) String() string {
	return formatFloat(r.Min) + "–" + formatFloat(r.Max)
}

// Rule maps a reading field to its optimal range
type Rule struct {
	Field reading.Field
	Label string
	// Name is the short field name used in the alert message
	Name  string
	Range Range
}

// DefaultRules is the optimal range table for a hydroponic system, in alert
// order.
var DefaultRules = []Rule{
	{Field: reading.AirTemperature, Label: "Air Temp Alert", Name: "Air temp", Range: Range{25.0, 30.0}},
	{Field: reading.Humidity, Label: "Humidity Alert", Name: "Humidity", Range: Range{50.0, 70.0}},
	{Field: reading.WaterTemperature, Label: "Water Temp Alert", Name: "Water temp", Range: Range{18.0, 22.0}},
	{Field: reading.PH, Label: "pH Alert", Name: "pH", Range: Range{5.5, 6.5}},
	{Field: reading.TDS, Label: "TDS Alert", Name: "TDS", Range: Range{560.0, 840.0}},
	{Field: reading.WaterLevel, Label: "Water Level Alert", Name: "Water level", Range: Range{30.0, 100.0}},
}

// Record is one out-of-range field
type Record struct {
	Label   string `json:"label"`
	Message string `json:"message"`
}

func (r Record) String() string {
	return r.Label + ": " + r.Message
}

func (r Rule) message(v float64) string {
	unit := r.Field.Unit()
	return fmt.Sprintf("%s: %s%s (Optimal: %s%s)", r.Name, formatValue(v), unit, r.Range, unit)
}

// Evaluate returns a record for every field of r outside its rule's range.
func Evaluate(r reading.Reading, rules []Rule) []Record {
	var records []Record
	for _, rule := range rules {
		v := r.Value(rule.Field)
		if rule.Range.Contains(v) {
			continue
		}
		records = append(records, Record{Label: rule.Label, Message: rule.message(v)})
	}
	return records
}

// Combine joins records into one notification body
func Combine(records []Record) string {
	lines := make([]string, len(records))
	for i, r := range records {
		lines[i] = r.String()
	}
	return strings.Join(lines, "\n")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatValue keeps one decimal for whole numbers, so 4 prints as 4.0
func formatValue(v float64) string {
	s := formatFloat(v)
	if math.IsNaN(v) || math.IsInf(v, 0) || strings.Contains(s, ".") {
		return s
	}
	return s + ".0"
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

type Outcome string

const (
	OutcomeSent     Outcome = "sent"
	OutcomeInRange  Outcome = "in_range"
	OutcomeCooldown Outcome = "cooldown"
	OutcomeDisabled Outcome = "disabled"
	OutcomeFailed   Outcome = "failed"
)

// Result describes what a single Check did
type Result struct {
	Records      []Record
	Outcome      Outcome
	Notification *notify.Notification
}

type Config struct {
	Rules    []Rule
	Cooldown time.Duration
	Store    settings.Store
	Notifier notify.Notifier
	Clock    Clock
	Logger   *slog.Logger
}

// Alerter turns out-of-range readings into rate-limited notifications
type Alerter struct {
	rules    []Rule
	cooldown time.Duration
	store    settings.Store
	notifier notify.Notifier
	clock    Clock
	logger   *slog.Logger
	mu       sync.Mutex
	// lastSent holds the cooldown even when the store rejects writes
	lastSent time.Time
}

func New(cfg Config) (*Alerter, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("alerter: nil settings store")
	}
	if cfg.Notifier == nil {
		return nil, fmt.Errorf("alerter: nil notifier")
	}
	if cfg.Rules == nil {
		cfg.Rules = DefaultRules
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.Clock == nil {
		cfg.Clock = systemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Alerter{
		rules:    cfg.Rules,
		cooldown: cfg.Cooldown,
		store:    cfg.Store,
		notifier: cfg.Notifier,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}, nil
}

// Check evaluates r and emits one combined notification if any field is out
// of range and the cooldown since the last notification has elapsed.
func (a *Alerter) Check(ctx context.Context, r reading.Reading) (Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	enabled, err := a.store.NotificationsEnabled(ctx)
	if err != nil {
		return Result{Outcome: OutcomeFailed}, fmt.Errorf("failed to read notification setting: %w", err)
	}
	if !enabled {
		return Result{Outcome: OutcomeDisabled}, nil
	}
	records := Evaluate(r, a.rules)
	if len(records) == 0 {
		return Result{Outcome: OutcomeInRange}, nil
	}
	res := Result{Records: records}
	now := a.clock.Now()
	lastSent, err := a.store.LastNotificationSent(ctx)
	if err != nil {
		res.Outcome = OutcomeFailed
		return res, fmt.Errorf("failed to read last notification time: %w", err)
	}
	if a.lastSent.After(lastSent) {
		lastSent = a.lastSent
	}
	if !lastSent.IsZero() && now.Sub(lastSent) < a.cooldown {
		a.logger.LogAttrs(ctx, slog.LevelDebug, "Notification skipped due to cooldown", slog.Time("last_sent", lastSent), slog.Int("alerts", len(records)))
		res.Outcome = OutcomeCooldown
		return res, nil
	}
	n := notify.New(notify.DefaultTitle, Combine(records), now)
	if err := a.notifier.Notify(ctx, n); err != nil {
		res.Outcome = OutcomeFailed
		return res, fmt.Errorf("failed to send notification: %w", err)
	}
	a.lastSent = now
	if err := a.store.SetLastNotificationSent(ctx, now); err != nil {
		a.logger.LogAttrs(ctx, slog.LevelError, "Failed to store last notification time", slog.Any("error", err))
	}
	res.Outcome = OutcomeSent
	res.Notification = &n
	return res, nil
}

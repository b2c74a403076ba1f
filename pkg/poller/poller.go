package poller

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lehydrosys/hydromon/pkg/reading"
)

const (
	DefaultInterval      = 5 * time.Second
	DefaultStaleAfter    = 30 * time.Second
	DefaultCheckInterval = 10 * time.Second
)

// Fetcher returns the raw latest sensor payload
type Fetcher interface {
	Latest(ctx context.Context) ([]byte, error)
}

type EventKind int

const (
	EventReading EventKind = iota
	EventFailure
	EventStale
	EventRecovered
)

func (k EventKind) String() string {
	switch k {
	case EventReading:
		return "reading"
	case EventFailure:
		return "failure"
	case EventStale:
		return "stale"
	case EventRecovered:
		return "recovered"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

type Event struct {
	Kind    EventKind
	Reading reading.Reading
	Err     error
	Time    time.Time
}

// Observer is called after every poll with its latency and error
type Observer func(d time.Duration, err error)

type Config struct {
	Interval      time.Duration
	StaleAfter    time.Duration
	CheckInterval time.Duration
	Now           func() time.Time
	Observer      Observer
	Logger        *slog.Logger
}

// Poller fetches readings on a fixed period and tracks whether the data has
// gone stale
type Poller struct {
	fetcher Fetcher
	cfg     Config
	events  chan Event
	logger  *slog.Logger
	// unix nanos of the last successful poll, or of construction before any
	// success
	lastSuccess atomic.Int64
	stale       atomic.Bool
}

func New(fetcher Fetcher, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p := &Poller{
		fetcher: fetcher,
		cfg:     cfg,
		events:  make(chan Event, 16),
		logger:  cfg.Logger,
	}
	p.lastSuccess.Store(cfg.Now().UnixNano())
	return p
}

// Events delivers poll results and staleness transitions. The channel is never
// closed; consumers stop on their own context.
func (p *Poller) Events() <-chan Event {
	return p.events
}

// LastSuccess returns the time of the last successful poll
func (p *Poller) LastSuccess() time.Time {
	return time.Unix(0, p.lastSuccess.Load())
}

func (p *Poller) Stale() bool {
	return p.stale.Load()
}

// Poll performs a single fetch and publishes the result.
func (p *Poller) Poll(ctx context.Context) (reading.Reading, error) {
	start := time.Now()
	r, err := p.fetch(ctx)
	if p.cfg.Observer != nil {
		p.cfg.Observer(time.Since(start), err)
	}
	now := p.cfg.Now()
	if err != nil {
		p.logger.LogAttrs(ctx, slog.LevelDebug, "Poll failed", slog.Any("error", err))
		p.publish(ctx, Event{Kind: EventFailure, Err: err, Time: now})
		return reading.Reading{}, err
	}
	p.lastSuccess.Store(now.UnixNano())
	if p.stale.CompareAndSwap(true, false) {
		p.logger.LogAttrs(ctx, slog.LevelDebug, "Data fresh again", slog.Time("time", now))
		p.publish(ctx, Event{Kind: EventRecovered, Time: now})
	}
	p.publish(ctx, Event{Kind: EventReading, Reading: r, Time: now})
	return r, nil
}

func (p *Poller) fetch(ctx context.Context) (reading.Reading, error) {
	payload, err := p.fetcher.Latest(ctx)
	if err != nil {
		return reading.Reading{}, err
	}
	return reading.Decode(payload, p.cfg.Now())
}

// CheckStale reports whether the data became stale at now. It returns true
// only on the transition from fresh to stale; later calls return false until
// a successful poll makes the data fresh again.
func (p *Poller) CheckStale(now time.Time) bool {
	since := now.Sub(p.LastSuccess())
	if since <= p.cfg.StaleAfter {
		return false
	}
	return p.stale.CompareAndSwap(false, true)
}

// Run polls immediately and then every interval while a second loop checks
// for staleness. It returns when ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p.Poll(ctx)
		ticker := time.NewTicker(p.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				p.Poll(ctx)
			}
		}
	})
	g.Go(func() error {
		ticker := time.NewTicker(p.cfg.CheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				now := p.cfg.Now()
				if p.CheckStale(now) {
					p.logger.LogAttrs(ctx, slog.LevelDebug, "Data went stale", slog.Time("last_success", p.LastSuccess()))
					p.publish(ctx, Event{Kind: EventStale, Time: now})
				}
			}
		}
	})
	return g.Wait()
}

func (p *Poller) publish(ctx context.Context, ev Event) {
	select {
	case p.events <- ev:
	case <-ctx.Done():
	}
}

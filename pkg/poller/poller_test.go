package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehydrosys/hydromon/pkg/reading"
)

type mockFetcher struct {
	mu      sync.Mutex
	payload []byte
	err     error
	calls   int
}

func (f *mockFetcher) Latest(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.payload, f.err
}

func (f *mockFetcher) set(payload []byte, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payload = payload
	f.err = err
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *manualClock {
	return &manualClock{now: time.Date(2024, time.March, 1, 8, 0, 0, 0, time.UTC)}
}

func drain(p *Poller) []EventKind {
	var kinds []EventKind
	for {
		select {
		case ev := <-p.Events():
			kinds = append(kinds, ev.Kind)
		default:
			return kinds
		}
	}
}

func TestPoll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		clock := newClock()
		f := &mockFetcher{payload: []byte(`{"temperature":26,"ph":"6.1","tds":700}`)}
		p := New(f, Config{Now: clock.Now})
		clock.Advance(3 * time.Second)
		r, err := p.Poll(ctx)
		require.NoError(t, err)
		assert.Equal(t, 26.0, r.AirTemperature)
		assert.Equal(t, 6.1, r.PH)
		assert.Equal(t, clock.Now(), p.LastSuccess().UTC())
		ev := <-p.Events()
		assert.Equal(t, EventReading, ev.Kind)
		assert.Equal(t, 700.0, ev.Reading.TDS)
	})
	t.Run("network failure leaves last success untouched", func(t *testing.T) {
		t.Parallel()

		clock := newClock()
		f := &mockFetcher{err: errors.New("connection refused")}
		p := New(f, Config{Now: clock.Now})
		before := p.LastSuccess()
		clock.Advance(5 * time.Second)
		_, err := p.Poll(ctx)
		assert.EqualError(t, err, "connection refused")
		assert.Equal(t, before, p.LastSuccess())
		ev := <-p.Events()
		assert.Equal(t, EventFailure, ev.Kind)
		assert.Error(t, ev.Err)
	})
	t.Run("malformed payload is a failure", func(t *testing.T) {
		t.Parallel()

		f := &mockFetcher{payload: []byte(`[1,2,3]`)}
		p := New(f, Config{})
		_, err := p.Poll(ctx)
		assert.ErrorIs(t, err, reading.ErrMalformed)
		assert.Equal(t, []EventKind{EventFailure}, drain(p))
	})
	t.Run("observer sees every poll", func(t *testing.T) {
		t.Parallel()

		var errs []error
		f := &mockFetcher{err: errors.New("timeout")}
		p := New(f, Config{Observer: func(d time.Duration, err error) {
			errs = append(errs, err)
		}})
		p.Poll(ctx)
		f.set([]byte(`{}`), nil)
		p.Poll(ctx)
		require.Len(t, errs, 2)
		assert.Error(t, errs[0])
		assert.NoError(t, errs[1])
	})
}

func TestCheckStale(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newClock()
	f := &mockFetcher{payload: []byte(`{}`)}
	p := New(f, Config{Now: clock.Now})
	_, err := p.Poll(ctx)
	require.NoError(t, err)

	assert.False(t, p.CheckStale(clock.Now().Add(30*time.Second)))
	assert.True(t, p.CheckStale(clock.Now().Add(31*time.Second)))
	assert.True(t, p.Stale())
	// reported exactly once
	assert.False(t, p.CheckStale(clock.Now().Add(41*time.Second)))
	assert.False(t, p.CheckStale(clock.Now().Add(10*time.Minute)))

	// a failure does not make the data fresh
	f.set(nil, errors.New("boom"))
	p.Poll(ctx)
	assert.True(t, p.Stale())

	f.set([]byte(`{}`), nil)
	clock.Advance(time.Minute)
	_, err = p.Poll(ctx)
	require.NoError(t, err)
	assert.False(t, p.Stale())
	assert.Equal(t, []EventKind{EventReading, EventFailure, EventRecovered, EventReading}, drain(p))

	assert.True(t, p.CheckStale(clock.Now().Add(31*time.Second)))
}

func TestCheckStaleWithoutAnySuccess(t *testing.T) {
	t.Parallel()

	clock := newClock()
	p := New(&mockFetcher{err: errors.New("offline")}, Config{Now: clock.Now})
	assert.False(t, p.CheckStale(clock.Now().Add(20*time.Second)))
	assert.True(t, p.CheckStale(clock.Now().Add(31*time.Second)))
}

func TestRun(t *testing.T) {
	t.Parallel()

	f := &mockFetcher{err: errors.New("server down")}
	p := New(f, Config{
		Interval:      10 * time.Millisecond,
		StaleAfter:    30 * time.Millisecond,
		CheckInterval: 5 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx)
	}()

	staleEvents := 0
	deadline := time.After(2 * time.Second)
	for staleEvents == 0 {
		select {
		case ev := <-p.Events():
			if ev.Kind == EventStale {
				staleEvents++
			}
		case <-deadline:
			t.Fatal("no stale event")
		}
	}
	f.set([]byte(`{"humidity":55}`), nil)
	for recovered := false; !recovered; {
		select {
		case ev := <-p.Events():
			switch ev.Kind {
			case EventStale:
				staleEvents++
			case EventRecovered:
				recovered = true
			}
		case <-deadline:
			t.Fatal("no recovered event")
		}
	}
	assert.Equal(t, 1, staleEvents)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

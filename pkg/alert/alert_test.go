package alert

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehydrosys/hydromon/pkg/notify"
	"github.com/lehydrosys/hydromon/pkg/reading"
	"github.com/lehydrosys/hydromon/pkg/settings"
)

var nominal = reading.Reading{
	AirTemperature:   27,
	Humidity:         60,
	WaterTemperature: 20,
	WaterLevel:       75,
	PH:               6.0,
	TDS:              700,
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu  sync.Mutex
	got []notify.Notification
	err error
}

func (r *recorder) Notify(ctx context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.got = append(r.got, n)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

type readOnlyStore struct {
	settings.Store
}

func (readOnlyStore) SetLastNotificationSent(ctx context.Context, t time.Time) error {
	return errors.New("read-only file system")
}

func newAlerter(t *testing.T) (*Alerter, *recorder, *fakeClock, settings.Store) {
	t.Helper()
	rec := new(recorder)
	clock := &fakeClock{now: time.Date(2024, time.July, 4, 10, 0, 0, 0, time.UTC)}
	store := settings.NewMemory()
	a, err := New(Config{Store: store, Notifier: rec, Clock: clock})
	require.NoError(t, err)
	return a, rec, clock, store
}

func TestRangeContains(t *testing.T) {
	t.Parallel()

	r := Range{5.5, 6.5}
	assert.True(t, r.Contains(5.5))
	assert.True(t, r.Contains(6.5))
	assert.True(t, r.Contains(6))
	assert.False(t, r.Contains(5.49))
	assert.False(t, r.Contains(6.51))
	assert.False(t, r.Contains(math.NaN()))
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	t.Run("all in range", func(t *testing.T) {
		t.Parallel()

		assert.Empty(t, Evaluate(nominal, DefaultRules))
	})
	t.Run("bounds are inclusive", func(t *testing.T) {
		t.Parallel()

		low := reading.Reading{AirTemperature: 25, Humidity: 50, WaterTemperature: 18, WaterLevel: 30, PH: 5.5, TDS: 560}
		high := reading.Reading{AirTemperature: 30, Humidity: 70, WaterTemperature: 22, WaterLevel: 100, PH: 6.5, TDS: 840}
		assert.Empty(t, Evaluate(low, DefaultRules))
		assert.Empty(t, Evaluate(high, DefaultRules))
	})
	t.Run("low pH only", func(t *testing.T) {
		t.Parallel()

		r := nominal
		r.PH = 4.0
		r.TDS = 700
		records := Evaluate(r, DefaultRules)
		require.Len(t, records, 1)
		assert.Equal(t, Record{Label: "pH Alert", Message: "pH: 4.0 (Optimal: 5.5–6.5)"}, records[0])
	})
	t.Run("every field out of range", func(t *testing.T) {
		t.Parallel()

		records := Evaluate(reading.Reading{}, DefaultRules)
		require.Len(t, records, 6)
		var labels []string
		for _, r := range records {
			labels = append(labels, r.Label)
		}
		assert.Equal(t, []string{"Air Temp Alert", "Humidity Alert", "Water Temp Alert", "pH Alert", "TDS Alert", "Water Level Alert"}, labels)
		assert.Equal(t, "Air temp: 0.0°C (Optimal: 25–30°C)", records[0].Message)
		assert.Equal(t, "TDS: 0.0 ppm (Optimal: 560–840 ppm)", records[4].Message)
		assert.Equal(t, "Water level: 0.0% (Optimal: 30–100%)", records[5].Message)
	})
	t.Run("NaN is out of range", func(t *testing.T) {
		t.Parallel()

		r := nominal
		r.Humidity = math.NaN()
		records := Evaluate(r, DefaultRules)
		require.Len(t, records, 1)
		assert.Equal(t, "Humidity Alert", records[0].Label)
	})
}

func TestFormatValue(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "4.0", formatValue(4))
	assert.Equal(t, "6.85", formatValue(6.85))
	assert.Equal(t, "-3.0", formatValue(-3))
	assert.Equal(t, "NaN", formatValue(math.NaN()))
	assert.Equal(t, "5.5–6.5", Range{5.5, 6.5}.String())
	assert.Equal(t, "560–840", Range{560, 840}.String())
}

func TestCombine(t *testing.T) {
	t.Parallel()

	body := Combine([]Record{
		{Label: "pH Alert", Message: "pH: 4.0 (Optimal: 5.5–6.5)"},
		{Label: "TDS Alert", Message: "TDS: 100.0 ppm (Optimal: 560–840 ppm)"},
	})
	assert.Equal(t, "pH Alert: pH: 4.0 (Optimal: 5.5–6.5)\nTDS Alert: TDS: 100.0 ppm (Optimal: 560–840 ppm)", body)
}

func TestAlerterCheck(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	bad := nominal
	bad.PH = 4.0
	bad.WaterLevel = 10

	t.Run("in range emits nothing", func(t *testing.T) {
		t.Parallel()

		a, rec, _, store := newAlerter(t)
		res, err := a.Check(ctx, nominal)
		require.NoError(t, err)
		assert.Equal(t, OutcomeInRange, res.Outcome)
		assert.Zero(t, rec.count())
		last, err := store.LastNotificationSent(ctx)
		require.NoError(t, err)
		assert.True(t, last.IsZero())
	})
	t.Run("batches all records into one notification", func(t *testing.T) {
		t.Parallel()

		a, rec, clock, store := newAlerter(t)
		res, err := a.Check(ctx, bad)
		require.NoError(t, err)
		assert.Equal(t, OutcomeSent, res.Outcome)
		require.Equal(t, 1, rec.count())
		assert.Equal(t, "pH Alert: pH: 4.0 (Optimal: 5.5–6.5)\nWater Level Alert: Water level: 10.0% (Optimal: 30–100%)", rec.got[0].Body)
		assert.Equal(t, notify.DefaultTitle, rec.got[0].Title)
		last, err := store.LastNotificationSent(ctx)
		require.NoError(t, err)
		assert.True(t, clock.Now().Equal(last))
	})
	t.Run("cooldown", func(t *testing.T) {
		t.Parallel()

		a, rec, clock, _ := newAlerter(t)
		_, err := a.Check(ctx, bad)
		require.NoError(t, err)
		clock.Advance(4*time.Minute + 59*time.Second)
		res, err := a.Check(ctx, bad)
		require.NoError(t, err)
		assert.Equal(t, OutcomeCooldown, res.Outcome)
		assert.Len(t, res.Records, 2)
		assert.Equal(t, 1, rec.count())

		clock.Advance(time.Second)
		res, err = a.Check(ctx, bad)
		require.NoError(t, err)
		assert.Equal(t, OutcomeSent, res.Outcome)
		assert.Equal(t, 2, rec.count())
	})
	t.Run("disabled", func(t *testing.T) {
		t.Parallel()

		a, rec, _, store := newAlerter(t)
		require.NoError(t, store.SetNotificationsEnabled(ctx, false))
		res, err := a.Check(ctx, bad)
		require.NoError(t, err)
		assert.Equal(t, OutcomeDisabled, res.Outcome)
		assert.Zero(t, rec.count())
	})
	t.Run("failed delivery keeps cooldown open", func(t *testing.T) {
		t.Parallel()

		a, rec, _, store := newAlerter(t)
		rec.err = errors.New("telegram down")
		res, err := a.Check(ctx, bad)
		assert.Error(t, err)
		assert.Equal(t, OutcomeFailed, res.Outcome)
		last, err := store.LastNotificationSent(ctx)
		require.NoError(t, err)
		assert.True(t, last.IsZero())

		rec.err = nil
		res, err = a.Check(ctx, bad)
		require.NoError(t, err)
		assert.Equal(t, OutcomeSent, res.Outcome)
	})
	t.Run("cooldown holds when the store cannot save", func(t *testing.T) {
		t.Parallel()

		rec := new(recorder)
		clock := &fakeClock{now: time.Date(2024, time.July, 4, 10, 0, 0, 0, time.UTC)}
		a, err := New(Config{Store: readOnlyStore{settings.NewMemory()}, Notifier: rec, Clock: clock})
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			res, err := a.Check(ctx, bad)
			require.NoError(t, err)
			if i == 0 {
				assert.Equal(t, OutcomeSent, res.Outcome)
			} else {
				assert.Equal(t, OutcomeCooldown, res.Outcome)
			}
			clock.Advance(5 * time.Second)
		}
		assert.Equal(t, 1, rec.count())

		clock.Advance(DefaultCooldown)
		res, err := a.Check(ctx, bad)
		require.NoError(t, err)
		assert.Equal(t, OutcomeSent, res.Outcome)
		assert.Equal(t, 2, rec.count())
	})
	t.Run("stored time newer than local", func(t *testing.T) {
		t.Parallel()

		a, rec, clock, store := newAlerter(t)
		_, err := a.Check(ctx, bad)
		require.NoError(t, err)
		clock.Advance(6 * time.Minute)
		require.NoError(t, store.SetLastNotificationSent(ctx, clock.Now().Add(-time.Minute)))
		res, err := a.Check(ctx, bad)
		require.NoError(t, err)
		assert.Equal(t, OutcomeCooldown, res.Outcome)
		assert.Equal(t, 1, rec.count())
	})
	t.Run("concurrent checks send once", func(t *testing.T) {
		t.Parallel()

		a, rec, _, _ := newAlerter(t)
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = a.Check(ctx, bad)
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, rec.count())
	})
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Notifier: new(recorder)})
	assert.Error(t, err)
	_, err = New(Config{Store: settings.NewMemory()})
	assert.Error(t, err)
}

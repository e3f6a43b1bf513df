package ticker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bellboard/internal/holiday"
	"bellboard/internal/model"
	"bellboard/internal/timetable"
)

// 2025-05-13 is a Tuesday.
func at(day, h, m, s int) time.Time {
	return time.Date(2025, time.May, day, h, m, s, 0, time.UTC)
}

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stepClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type recordingRinger struct {
	rings chan string
}

func (r *recordingRinger) Ring(_ context.Context, label string) error {
	r.rings <- label
	return nil
}

func newBoard(t *testing.T, clock timetable.Clock, cal *holiday.Calendar) (*Board, *recordingRinger) {
	t.Helper()
	s, err := timetable.DefaultSchedules()
	require.NoError(t, err)
	r := &recordingRinger{rings: make(chan string, 8)}
	return New(Options{
		Schedules: s,
		Clock:     clock,
		Gate:      holiday.Gate{Hours: timetable.DefaultHours, Calendar: cal},
		Ringer:    r,
	}), r
}

func TestComputeInPeriod(t *testing.T) {
	b, _ := newBoard(t, nil, nil)
	s := b.Compute(at(13, 10, 30, 0))

	assert.True(t, s.Open)
	assert.Equal(t, string(model.StateInPeriod), s.State)
	require.NotNil(t, s.Current)
	assert.Equal(t, "Period 2", s.Current.Label)
	require.NotNil(t, s.Next)
	assert.Equal(t, "Recess", s.Next.Label)
	assert.Equal(t, "35:00", s.Countdown)
	assert.Equal(t, "35 min until end", s.Until)
	assert.Equal(t, "11:05 AM", s.NextStart)
	assert.Equal(t, "Tuesday", s.Day)
	assert.Equal(t, "May 13, 2025", s.Date)
	assert.Equal(t, "Mon/Tues", s.VariantName)
	assert.Empty(t, s.Week)
}

func TestComputeClosed(t *testing.T) {
	b, _ := newBoard(t, nil, nil)

	sat := b.Compute(at(17, 10, 0, 0))
	assert.False(t, sat.Open)
	assert.Equal(t, StateClosed, sat.State)
	assert.Equal(t, "Outside school hours", sat.Message)
	assert.Nil(t, sat.Current)
	assert.Equal(t, "00:00", sat.Countdown)
	assert.Equal(t, "Monday 9:00 AM", sat.FirstBell)

	early := b.Compute(at(13, 7, 30, 0))
	assert.Equal(t, StateClosed, early.State)
	assert.Equal(t, "Tuesday 9:00 AM", early.FirstBell)

	late := b.Compute(at(16, 17, 0, 0))
	assert.Equal(t, "Monday 9:00 AM", late.FirstBell)
}

func TestComputeExhausted(t *testing.T) {
	b, _ := newBoard(t, nil, nil)
	s := b.Compute(at(13, 15, 30, 0))

	assert.True(t, s.Open)
	assert.Equal(t, string(model.StateExhausted), s.State)
	assert.Equal(t, timetable.NoMoreBells, s.Message)
	assert.Equal(t, timetable.NoMoreClasses, s.Until)
	assert.Equal(t, "Wednesday 9:00 AM", s.FirstBell)

	fri := b.Compute(at(16, 15, 30, 0))
	assert.Equal(t, "Monday 9:00 AM", fri.FirstBell)
}

func TestComputeHoliday(t *testing.T) {
	cal := holiday.NewCalendar(time.UTC)
	cal.Set(map[string]string{"2025-05-13": "Staff Development Day", "2025-05-14": "Staff Development Day"})
	b, _ := newBoard(t, nil, cal)

	s := b.Compute(at(13, 10, 0, 0))
	assert.False(t, s.Open)
	assert.Equal(t, "Staff Development Day", s.Message)
	assert.Equal(t, "Thursday 9:00 AM", s.FirstBell)
}

func TestComputeUnavailable(t *testing.T) {
	b := New(Options{
		Schedules: model.Schedule{model.VariantMonTue: {{Label: "Period 1", TimeRange: "nine - ten"}}},
		Gate:      holiday.Gate{Hours: timetable.DefaultHours},
	})
	s := b.Compute(at(13, 10, 0, 0))
	assert.Equal(t, StateUnavailable, s.State)
	assert.Equal(t, "Bell times unavailable", s.Message)
	assert.Nil(t, s.Current)
}

func TestComputeWeekLabel(t *testing.T) {
	s, err := timetable.DefaultSchedules()
	require.NoError(t, err)
	b := New(Options{Schedules: s, Anchor: at(5, 0, 0, 0)})
	assert.Equal(t, timetable.WeekB, b.Compute(at(13, 10, 0, 0)).Week)
}

func TestSubscribeDropsWhenFull(t *testing.T) {
	clock := &stepClock{t: at(13, 10, 30, 0)}
	b, _ := newBoard(t, clock, nil)

	ch, cancel := b.Subscribe(1)
	b.Tick(context.Background())
	clock.Set(at(13, 10, 30, 1))
	b.Tick(context.Background())

	first := <-ch
	assert.Equal(t, "35:00", first.Countdown)
	select {
	case s := <-ch:
		t.Fatalf("expected dropped tick, got %s", s.Countdown)
	default:
	}

	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok, "cancel closes the channel")
}

func TestTickRingsOnPeriodChange(t *testing.T) {
	clock := &stepClock{t: at(13, 9, 30, 0)}
	b, r := newBoard(t, clock, nil)
	ctx := context.Background()

	// First tick only primes, even mid-period.
	b.Tick(ctx)
	clock.Set(at(13, 10, 4, 59))
	b.Tick(ctx)
	clock.Set(at(13, 10, 5, 0))
	b.Tick(ctx)
	clock.Set(at(13, 10, 5, 1))
	b.Tick(ctx)

	assert.Equal(t, "Period 2", <-r.rings)

	// Period 5 ends at 15:10 and End of Day starts there; sub-second jitter
	// must not skip it.
	clock.Set(at(13, 15, 9, 59))
	b.Tick(ctx)
	clock.Set(at(13, 15, 10, 0).Add(400 * time.Millisecond))
	s := b.Tick(ctx)
	require.NotNil(t, s.Current)
	assert.Equal(t, "End of Day", s.Current.Label)

	// Rings run concurrently, so only the set is fixed.
	assert.ElementsMatch(t, []string{"Period 5", "End of Day"}, []string{<-r.rings, <-r.rings})
	select {
	case extra := <-r.rings:
		t.Fatalf("unexpected ring %q", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTickDoesNotRingWhenClosed(t *testing.T) {
	clock := &stepClock{t: at(17, 9, 59, 0)}
	b, r := newBoard(t, clock, nil)

	b.Tick(context.Background())
	clock.Set(at(17, 10, 5, 0))
	b.Tick(context.Background())

	select {
	case label := <-r.rings:
		t.Fatalf("rang %q on a Saturday", label)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStartRejectsBadCronExpr(t *testing.T) {
	b := New(Options{Tick: "every now and then"})
	assert.Error(t, b.Start(context.Background()))
}

func TestStartStopsAndClosesSubscribers(t *testing.T) {
	b, _ := newBoard(t, timetable.SystemClock{Location: time.UTC}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	ch, unsubscribe := b.Subscribe(4)
	defer unsubscribe()
	require.NoError(t, b.Start(ctx))
	assert.False(t, b.Display().Time.IsZero())

	cancel()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscriber channel not closed after stop")
		}
	}
}

func TestDisplayHoldsUntilRefreshed(t *testing.T) {
	clock := &stepClock{t: at(13, 10, 30, 0)}
	b, _ := newBoard(t, clock, nil)

	first := b.RefreshDisplay()
	require.NotNil(t, first.Current)
	assert.Equal(t, "Period 2", first.Current.Label)

	clock.Set(at(13, 11, 10, 0))
	held := b.Display()
	require.NotNil(t, held.Current)
	assert.Equal(t, "Period 2", held.Current.Label, "display only moves on its own tick")
	assert.Equal(t, "Recess", b.Now().Current.Label)

	b.RefreshDisplay()
	assert.Equal(t, "Recess", b.Display().Current.Label)
	assert.Equal(t, "15:00", b.Display().Countdown)
}

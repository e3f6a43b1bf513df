// Package ticker drives the live bell board: it resolves the schedule on a
// cron tick, publishes snapshots to subscribers and rings the bell when a new
// period starts.
package ticker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"bellboard/internal/bell"
	"bellboard/internal/holiday"
	appLog "bellboard/internal/log"
	"bellboard/internal/metrics"
	"bellboard/internal/model"
	"bellboard/internal/timetable"
)

// Board states beyond the resolver's three.
const (
	StateClosed      = "closed"
	StateUnavailable = "unavailable"
)

const (
	msgClosed      = "Outside school hours"
	msgUnavailable = "Bell times unavailable"
)

// Snapshot is what the board shows at one instant.
type Snapshot struct {
	Time        time.Time      `json:"time"`
	Day         string         `json:"day"`
	Date        string         `json:"date"`
	Clock       string         `json:"clock"`
	Variant     model.Variant  `json:"variant"`
	VariantName string         `json:"variant_name"`
	Week        timetable.Week `json:"week,omitempty"`
	Open        bool           `json:"open"`
	State       string         `json:"state"`
	Current     *model.Period  `json:"current,omitempty"`
	Next        *model.Period  `json:"next,omitempty"`
	NextStart   string         `json:"next_start,omitempty"`
	Countdown   string         `json:"countdown"`
	Until       string         `json:"until"`
	Message     string         `json:"message,omitempty"`
	// FirstBell is set when no more bells ring today, e.g. "Monday 9:00 AM".
	FirstBell string `json:"first_bell,omitempty"`
}

// Options configures a Board. Schedules is shared read-only.
type Options struct {
	Schedules model.Schedule
	Clock     timetable.Clock
	Gate      holiday.Gate
	// Anchor is a day in week A; zero disables the A/B label.
	Anchor time.Time
	Ringer bell.Ringer

	// Tick and DisplayTick are cron specs with a seconds field.
	Tick        string
	DisplayTick string
}

// Board is safe for concurrent use.
type Board struct {
	opts Options

	mu      sync.Mutex
	subs    map[int]chan Snapshot
	nextID  int
	primed  bool
	ringing string
	display Snapshot
}

func New(opts Options) *Board {
	if opts.Clock == nil {
		opts.Clock = timetable.SystemClock{}
	}
	if opts.Ringer == nil {
		opts.Ringer = bell.NewLogRinger()
	}
	if opts.Tick == "" {
		opts.Tick = "@every 1s"
	}
	if opts.DisplayTick == "" {
		opts.DisplayTick = "0 * * * * *"
	}
	return &Board{opts: opts, subs: map[int]chan Snapshot{}}
}

// Now computes the snapshot for the board clock's current instant.
func (b *Board) Now() Snapshot {
	return b.Compute(b.opts.Clock.Now())
}

// Display returns the snapshot from the last display tick, computing one if
// none has run yet. The corridor board renders from it.
func (b *Board) Display() Snapshot {
	b.mu.Lock()
	d := b.display
	b.mu.Unlock()
	if d.Time.IsZero() {
		return b.Now()
	}
	return d
}

// Compute builds the snapshot for now. It never fails: a malformed bell
// table yields StateUnavailable.
func (b *Board) Compute(now time.Time) Snapshot {
	variant := timetable.SelectFor(now)
	s := Snapshot{
		Time:        now,
		Day:         timetable.DayName(now),
		Date:        timetable.FormatDate(now),
		Clock:       timetable.FormatTo12Hour(now),
		Variant:     variant,
		VariantName: variant.DisplayName(),
		Open:        b.opts.Gate.Open(now),
		Countdown:   timetable.FormatCountdown(0),
	}
	if !b.opts.Anchor.IsZero() {
		s.Week = timetable.WeekOf(now, b.opts.Anchor)
	}

	if !s.Open {
		s.State = StateClosed
		s.Message = msgClosed
		if name, ok := b.opts.Gate.Calendar.Lookup(now); ok && name != "" {
			s.Message = name
		}
		s.FirstBell = b.firstBell(b.nextSchoolDay(now))
		return s
	}

	res, err := timetable.Resolve(timetable.Periods(b.opts.Schedules, variant), now)
	if err != nil {
		metrics.ResolveErrors.Inc()
		appLog.Error("resolve failed", err, "variant", string(variant))
		s.State = StateUnavailable
		s.Message = msgUnavailable
		return s
	}

	s.State = string(res.State)
	s.Current = res.Current
	s.Next = res.Next
	s.Countdown = timetable.FormatCountdown(res.Until)
	s.Until = timetable.Describe(res, timetable.NoMoreClasses)
	if res.Next != nil {
		s.NextStart = timetable.FormatRangeStartTo12Hour(res.Next.TimeRange)
	}
	if res.State == model.StateExhausted {
		s.Message = timetable.NoMoreBells
		s.FirstBell = b.firstBell(b.opts.Gate.Calendar.NextSchoolDay(now))
	}
	return s
}

// nextSchoolDay is today when the gate has not opened yet on a school day,
// otherwise the calendar's next school day.
func (b *Board) nextSchoolDay(now time.Time) time.Time {
	g := b.opts.Gate
	switch now.Weekday() {
	case time.Saturday, time.Sunday:
	default:
		if now.Hour() < g.Hours.StartHour && !g.Calendar.IsHoliday(now) {
			return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		}
	}
	return g.Calendar.NextSchoolDay(now)
}

func (b *Board) firstBell(day time.Time) string {
	if day.IsZero() {
		return ""
	}
	periods := timetable.Periods(b.opts.Schedules, timetable.SelectFor(day))
	if len(periods) == 0 {
		return ""
	}
	start := timetable.FormatRangeStartTo12Hour(periods[0].TimeRange)
	if start == "" {
		return ""
	}
	return fmt.Sprintf("%s %s", timetable.DayName(day), start)
}

// Subscribe registers for tick snapshots. A subscriber that has not drained
// its buffer misses ticks rather than blocking the board. cancel is
// idempotent and closes the channel.
func (b *Board) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Snapshot, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	n := len(b.subs)
	b.mu.Unlock()
	metrics.Subscribers.Set(float64(n))

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(ch)
			}
			n := len(b.subs)
			b.mu.Unlock()
			metrics.Subscribers.Set(float64(n))
		})
	}
}

func (b *Board) publish(s Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- s:
			metrics.TicksPublished.Inc()
		default:
			metrics.TicksDropped.Inc()
		}
	}
}

// Tick computes, publishes and rings for the current instant. Start calls it
// from cron; it is exported for -once runs and tests.
func (b *Board) Tick(ctx context.Context) Snapshot {
	// Whole seconds, so a tick landing on a boundary second sees the boundary.
	s := b.Compute(b.opts.Clock.Now().Truncate(time.Second))
	b.publish(s)
	b.detectTransition(ctx, s)
	return s
}

// detectTransition rings when the current period label changes while open.
// The first tick after start only records the state.
func (b *Board) detectTransition(ctx context.Context, s Snapshot) {
	label := ""
	if s.Open && s.Current != nil {
		label = s.Current.Label
	}

	b.mu.Lock()
	prev, primed := b.ringing, b.primed
	b.ringing, b.primed = label, true
	b.mu.Unlock()

	if !primed || label == "" || label == prev {
		return
	}

	metrics.BellRings.WithLabelValues(label).Inc()
	go func() {
		if err := b.opts.Ringer.Ring(ctx, label); err != nil && !errors.Is(err, context.Canceled) {
			appLog.Error("bell ring failed", err, "period", label)
		}
	}()
}

// RefreshDisplay recomputes the minute-granular snapshot that Display
// serves. Start runs it on the display tick.
func (b *Board) RefreshDisplay() Snapshot {
	s := b.Compute(b.opts.Clock.Now().Truncate(time.Second))
	b.mu.Lock()
	b.display = s
	b.mu.Unlock()
	appLog.Debug("board display tick", "state", s.State, "variant", string(s.Variant), "until", s.Until)
	return s
}

// Start schedules both ticks and returns once they are running. The cron
// stops when ctx is cancelled; subscribers are closed after the last tick.
func (b *Board) Start(ctx context.Context) error {
	loc := b.opts.Clock.Now().Location()
	c := cron.New(cron.WithSeconds(), cron.WithLocation(loc))

	if _, err := c.AddFunc(b.opts.Tick, func() { b.Tick(ctx) }); err != nil {
		return fmt.Errorf("ticker: tick spec %q: %w", b.opts.Tick, err)
	}
	if _, err := c.AddFunc(b.opts.DisplayTick, func() { b.RefreshDisplay() }); err != nil {
		return fmt.Errorf("ticker: display tick spec %q: %w", b.opts.DisplayTick, err)
	}

	b.RefreshDisplay()
	c.Start()
	appLog.Info("board started", "tick", b.opts.Tick, "display_tick", b.opts.DisplayTick)

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		b.closeSubscribers()
		appLog.Info("board stopped")
	}()
	return nil
}

func (b *Board) closeSubscribers() {
	b.mu.Lock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()
	metrics.Subscribers.Set(0)
}

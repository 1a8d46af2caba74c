package trigger

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// dynamicHours maps a time-of-day bucket to the hours a notification
// may fire in.
var dynamicHours = map[TimeOfDay][]int{
	TODEarly:     {6, 7, 8},
	TODMorning:   {9, 10, 11},
	TODNoonish:   {11, 12, 13},
	TODAfternoon: {13, 14, 15, 16, 17},
	TODEvening:   {18, 19, 20, 21},
	TODLate:      {22, 23, 0, 1, 2},
	TODAllDay:    {8, 9, 10, 11, 12, 13, 14, 15, 16, 17},
}

// dynamicMinutes are the candidate minute marks: 0, 5, ..., 55.
var dynamicMinutes = func() []int {
	m := make([]int, 0, 12)
	for v := 0; v < 60; v += 5 {
		m = append(m, v)
	}
	return m
}()

// Dynamic concretizes fuzzy bucket triggers into fire times.
//
// Randomness is deliberately not reproducible across calls; callers
// that need a stable time must cache the generated instant themselves.
// The source is injectable so tests can pin outputs.
type Dynamic struct {
	zones *Resolver

	mu  sync.Mutex // rand.Rand is not safe for concurrent use
	rng *rand.Rand
}

// NewDynamic builds a dynamic scheduler. A nil src gets a time-seeded
// default.
func NewDynamic(zones *Resolver, src rand.Source) *Dynamic {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Dynamic{zones: zones, rng: rand.New(src)}
}

// Clock picks a random time of day within the bucket's hour set.
func (d *Dynamic) Clock(tod TimeOfDay) (Clock, bool) {
	hours, ok := dynamicHours[tod]
	if !ok {
		return Clock{}, false
	}
	d.mu.Lock()
	h := hours[d.rng.Intn(len(hours))]
	m := dynamicMinutes[d.rng.Intn(len(dynamicMinutes))]
	d.mu.Unlock()
	return Clock{Hour: h, Minute: m}, true
}

// Next generates the upcoming fire time for a dynamic trigger in the
// resolving timezone. The result is always strictly after now.
//
// A resolvable user is required (listings that render an ownerless
// dynamic trigger show no time); ok is false without one.
func (d *Dynamic) Next(ctx context.Context, tr *Trigger, u *User, now time.Time) (time.Time, bool) {
	if !tr.IsDynamic() {
		return time.Time{}, false
	}
	if resolveUser(tr, u) == nil {
		return time.Time{}, false
	}

	c, ok := d.Clock(tr.TimeOfDay)
	if !ok {
		return time.Time{}, false
	}
	loc := d.zones.Resolve(ctx, tr, u)
	now = now.In(loc)

	offsets := dayOffsets(tr.Frequency, isoWeekday(now))
	if len(offsets) == 0 {
		return time.Time{}, false
	}
	d.mu.Lock()
	days := offsets[d.rng.Intn(len(offsets))]
	d.mu.Unlock()

	dt := DateOf(now.AddDate(0, 0, days)).At(c, loc)
	// Daily prefers today; if the chosen time has already passed, push
	// it to tomorrow.
	if !dt.After(now) {
		dt = dt.AddDate(0, 0, 1)
	}
	return dt, true
}

// Range returns the (start, end) window a dynamic notification is valid
// for, both in the resolving timezone. Used to avoid queuing duplicate
// notifications for one message. ok is false for non-dynamic triggers
// or when no user is resolvable.
func (d *Dynamic) Range(ctx context.Context, tr *Trigger, u *User, now time.Time) (time.Time, time.Time, bool) {
	if !tr.IsDynamic() || resolveUser(tr, u) == nil {
		return time.Time{}, time.Time{}, false
	}
	loc := d.zones.Resolve(ctx, tr, u)
	now = now.In(loc)

	var days int
	switch tr.Frequency {
	case FreqDaily:
		days = 1
	case FreqWeekly, FreqWeekends:
		days = 7
	case FreqBiweekly, FreqMultiweekly:
		days = 5
	default:
		return time.Time{}, time.Time{}, false
	}
	if tr.Frequency == FreqWeekends {
		days = 7 - isoWeekday(now)
	}

	start := DateOf(now).At(Clock{}, loc)
	return start, start.AddDate(0, 0, days), true
}

// dayOffsets returns candidate day offsets for a frequency bucket.
// Weekend offsets are computed from the current ISO weekday so the
// result always lands on the coming Saturday/Sunday.
func dayOffsets(f Frequency, isoDay int) []int {
	switch f {
	case FreqDaily:
		return []int{0}
	case FreqWeekly:
		return []int{5, 6, 7}
	case FreqBiweekly:
		return []int{3, 5}
	case FreqMultiweekly:
		return []int{2, 5, 7}
	case FreqWeekends:
		return []int{6 - isoDay, 7 - isoDay}
	default:
		return nil
	}
}

// isoWeekday returns 1 for Monday through 7 for Sunday.
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

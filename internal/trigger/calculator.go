package trigger

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "nudge/pkg/logx"
)

// ErrOwnerRequired is returned by Previous for triggers with no
// resolvable owner. This is programmer misuse, not an absent result;
// batch callers should skip and log the trigger rather than abort.
var ErrOwnerRequired = errors.New("trigger: previous occurrence requires an owner")

// Occurrence generation limits. Pure-math "next occurrence" is
// ambiguous once stacked rules or an UNTIL clause interact with a fixed
// daily anchor, so the engine prefers the earliest future candidate
// inside a bounded lookahead instead of unbounded symbolic solving.
const (
	// DefaultWindowDays is the lookahead used for occurrence listings
	// and the stacked-rule scan.
	DefaultWindowDays = 30
	// untilWindowDays is the lookahead for UNTIL-bounded rules.
	untilWindowDays = 60
	// DefaultLookbackDays is how far Previous searches into the past.
	DefaultLookbackDays = 30
)

// Calculator computes concrete occurrences for triggers.
//
// Every query is a pure function of (trigger snapshot, acting user,
// now); the calculator keeps no per-call state and may be shared by
// any number of goroutines.
type Calculator struct {
	zones   *Resolver
	gate    *Gate
	dynamic *Dynamic
	log     logx.Logger
}

func NewCalculator(zones *Resolver, gate *Gate, dynamic *Dynamic, log logx.Logger) *Calculator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Calculator{zones: zones, gate: gate, dynamic: dynamic, log: log}
}

// AnchorTime resolves the first concrete datetime implied by the
// trigger's static fields, in the resolving timezone:
//
//  1. explicit date + explicit time
//  2. explicit time, combined with "today"
//  3. explicit date + a time drawn from the time-of-day bucket
//  4. time-of-day bucket alone, combined with "today"
//
// ok is false when none of the fields produce an anchor.
func (c *Calculator) AnchorTime(ctx context.Context, tr *Trigger, u *User, now time.Time) (time.Time, bool) {
	loc := c.zones.Resolve(ctx, tr, u)
	return c.anchorIn(tr, loc, now.In(loc))
}

func (c *Calculator) anchorIn(tr *Trigger, loc *time.Location, now time.Time) (time.Time, bool) {
	switch {
	case tr.Date != nil && tr.Time != nil:
		return tr.Date.At(*tr.Time, loc), true
	case tr.Time != nil:
		return DateOf(now).At(*tr.Time, loc), true
	case tr.Date != nil && tr.TimeOfDay != "":
		// Date-anchored but fuzzy time.
		if clock, ok := c.dynamic.Clock(tr.TimeOfDay); ok {
			return tr.Date.At(clock, loc), true
		}
	case tr.TimeOfDay != "":
		if clock, ok := c.dynamic.Clock(tr.TimeOfDay); ok {
			return DateOf(now).At(clock, loc), true
		}
	}
	return time.Time{}, false
}

// Next returns the next time the trigger should fire, expressed in the
// resolving timezone. ok is false when the trigger should not fire:
// disabled, completion-stopped, or no future occurrence exists.
func (c *Calculator) Next(ctx context.Context, tr *Trigger, u *User, now time.Time) (time.Time, bool) {
	if tr.Disabled || c.gate.Suppressed(ctx, tr, u) {
		return time.Time{}, false
	}
	if tr.IsDynamic() {
		return c.dynamic.Next(ctx, tr, u, now)
	}

	loc := c.zones.Resolve(ctx, tr, u)
	now = now.In(loc)
	anchor, hasAnchor := c.anchorIn(tr, loc, now)
	rec := tr.Recurrence
	text := rec.Serialize()

	switch {
	// No recurrence: fire once if the anchor is still ahead.
	// The boundary is exclusive here (anchor == now means missed).
	case text == "" && hasAnchor && anchor.After(now):
		return anchor, true

	// Stacked rules: scan the next 30 days from now, recombine each
	// hit with the explicit time and take the earliest future one.
	case strings.Contains(text, "\n"):
		for _, d := range c.occurrencesIn(tr, loc, now, now, DefaultWindowDays) {
			if !d.After(now) {
				continue
			}
			if tr.Time != nil {
				d = DateOf(d.In(loc)).At(*tr.Time, loc)
			}
			return d, true
		}
		return time.Time{}, false

	// UNTIL without BYDAY: the rule can keep matching past its bound
	// when seeded naively at the anchor, so seed a lookback window
	// (the anchor itself for weekly rules, one day earlier otherwise)
	// and enumerate a bounded stretch ahead.
	case hasAnchor && strings.Contains(text, "UNTIL") && !strings.Contains(text, "BYDAY"):
		seed := anchor
		if !strings.Contains(text, "WEEKLY") {
			seed = anchor.AddDate(0, 0, -1)
		}
		dates := rec.Between(seed, now, now.AddDate(0, 0, untilWindowDays), false)
		if len(dates) > 0 {
			return dates[0], true
		}
		return time.Time{}, false

	// Simple recurring: the first occurrence after now, inclusive at
	// the boundary, seeded at the anchor.
	case text != "" && hasAnchor:
		return rec.After(anchor, now, true)
	}

	return time.Time{}, false
}

// Previous returns the most recent occurrence within lookbackDays
// before today, combined with the explicit time, in the resolving
// timezone. Triggers without a resolvable owner are a configuration
// error (ErrOwnerRequired); a trigger with no recurrence or no explicit
// time simply has no previous occurrence.
func (c *Calculator) Previous(ctx context.Context, tr *Trigger, u *User, now time.Time, lookbackDays int) (time.Time, bool, error) {
	owner := tr.Owner
	if owner == nil {
		owner = u
	}
	if owner == nil {
		return time.Time{}, false, ErrOwnerRequired
	}
	if tr.Disabled || tr.Recurrence == nil || tr.Time == nil {
		return time.Time{}, false, nil
	}
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}

	loc := c.zones.Resolve(ctx, tr, u)
	today := DateOf(now.In(loc)).At(Clock{}, loc)
	start := today.AddDate(0, 0, -lookbackDays)

	dates := tr.Recurrence.Between(start, start, today, false)
	if len(dates) == 0 {
		return time.Time{}, false, nil
	}
	last := dates[len(dates)-1]
	return DateOf(last.In(loc)).At(*tr.Time, loc), true, nil
}

// Occurrences lists upcoming occurrences starting at the alert anchor,
// looking windowDays ahead. Only dates from "today" onward (in the
// resolving timezone) are returned. Disabled triggers yield nothing.
func (c *Calculator) Occurrences(ctx context.Context, tr *Trigger, u *User, now time.Time, windowDays int) []time.Time {
	if tr.Disabled {
		return nil
	}
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	loc := c.zones.Resolve(ctx, tr, u)
	now = now.In(loc)
	begin, ok := c.anchorIn(tr, loc, now)
	if !ok {
		return nil
	}
	return c.occurrencesIn(tr, loc, begin, now, windowDays)
}

// occurrencesIn expands the series seeded at begin over windowDays.
//
// Seeding a window always includes the seed itself, so malformed
// weekly rules can surface week-days their description never mentions;
// those are dropped. Without any recurrence the series collapses to
// the single seed occurrence.
func (c *Calculator) occurrencesIn(tr *Trigger, loc *time.Location, begin, now time.Time, windowDays int) []time.Time {
	end := begin.AddDate(0, 0, windowDays)

	var dates []time.Time
	if tr.Recurrence.Empty() {
		dates = []time.Time{begin}
	} else {
		dates = tr.Recurrence.Between(begin, begin, end, true)

		desc := strings.ToLower(tr.Recurrence.Describe())
		if strings.HasPrefix(desc, "weekly") {
			kept := dates[:0]
			for _, d := range dates {
				day := strings.ToLower(d.In(loc).Weekday().String())
				if strings.Contains(desc, day) {
					kept = append(kept, d)
				}
			}
			dates = kept
		}
	}

	today := DateOf(now)
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		if !DateOf(d.In(loc)).Before(today) {
			out = append(out, d)
		}
	}
	return out
}

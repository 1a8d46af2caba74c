package trigger

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// maxAfterScan bounds how many candidate occurrences After() will walk
// past exclusions before giving up. Keeps pathological EXRULE sets from
// scanning forever.
const maxAfterScan = 1000

// Recurrence wraps an RFC 2445 rule set: recurrence rules, exclusion
// rules and explicit extra dates.
//
// The serialized text form is one RRULE/EXRULE per line. Explicit extra
// dates are never embedded as RDATE clauses; they are carried separately
// (one-off dates belong on Trigger.Date).
type Recurrence struct {
	Rules   []*rrule.RRule
	ExRules []*rrule.RRule
	Dates   []time.Time
}

// ParseRecurrence parses the multi-line RRULE/EXRULE text form.
//
// Any embedded RDATE clause is split out and discarded (the Android
// recurrence dialog chokes on them, and one-off dates are modeled as
// Trigger.Date). DTSTART lines are ignored; the generation seed is
// supplied per evaluation. Empty input yields a nil recurrence.
func ParseRecurrence(text string) (*Recurrence, error) {
	// Strip everything from the first RDATE clause onward.
	if i := strings.Index(text, "RDATE:"); i >= 0 {
		text = text[:i]
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	r := &Recurrence{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "DTSTART"):
			continue
		case strings.HasPrefix(line, "EXRULE:"):
			rule, err := rrule.StrToRRule(strings.TrimPrefix(line, "EXRULE:"))
			if err != nil {
				return nil, fmt.Errorf("parse exrule %q: %w", line, err)
			}
			r.ExRules = append(r.ExRules, rule)
		case strings.HasPrefix(line, "RRULE:"):
			rule, err := rrule.StrToRRule(strings.TrimPrefix(line, "RRULE:"))
			if err != nil {
				return nil, fmt.Errorf("parse rrule %q: %w", line, err)
			}
			r.Rules = append(r.Rules, rule)
		default:
			// Bare rule body ("FREQ=...") is accepted for convenience.
			rule, err := rrule.StrToRRule(line)
			if err != nil {
				return nil, fmt.Errorf("parse rule %q: %w", line, err)
			}
			r.Rules = append(r.Rules, rule)
		}
	}
	if r.Empty() {
		return nil, nil
	}
	return r, nil
}

func (r *Recurrence) Empty() bool {
	return r == nil || (len(r.Rules) == 0 && len(r.ExRules) == 0 && len(r.Dates) == 0)
}

// Serialize returns the canonical RFC 2445 text form, or "" when no
// rules are configured. Extra dates are intentionally not serialized.
func (r *Recurrence) Serialize() string {
	if r == nil || (len(r.Rules) == 0 && len(r.ExRules) == 0) {
		return ""
	}
	lines := make([]string, 0, len(r.Rules)+len(r.ExRules))
	for _, rule := range r.Rules {
		lines = append(lines, "RRULE:"+rule.String())
	}
	for _, rule := range r.ExRules {
		lines = append(lines, "EXRULE:"+rule.String())
	}
	return strings.Join(lines, "\n")
}

// Describe returns a human-readable summary: rule descriptions joined
// with ", ", exclusion rules prefixed "Exclusions: ", explicit extra
// dates appended after " on ".
func (r *Recurrence) Describe() string {
	if r.Empty() {
		return ""
	}
	parts := make([]string, 0, len(r.Rules)+len(r.ExRules))
	for _, rule := range r.Rules {
		parts = append(parts, describeRule(rule.OrigOptions))
	}
	for _, rule := range r.ExRules {
		parts = append(parts, "Exclusions: "+describeRule(rule.OrigOptions))
	}
	out := strings.Join(parts, ", ")
	if len(r.Dates) > 0 {
		ds := make([]string, 0, len(r.Dates))
		for _, d := range r.Dates {
			ds = append(ds, DateOf(d).String())
		}
		if out != "" {
			out += " on " + strings.Join(ds, ", ")
		} else {
			out = "on " + strings.Join(ds, ", ")
		}
	}
	return out
}

var weekdayNames = [...]string{
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
}

func describeRule(opt rrule.ROption) string {
	var base string
	switch opt.Freq {
	case rrule.YEARLY:
		base = pluralEvery(opt.Interval, "annually", "years")
	case rrule.MONTHLY:
		base = pluralEvery(opt.Interval, "monthly", "months")
	case rrule.WEEKLY:
		base = pluralEvery(opt.Interval, "weekly", "weeks")
	case rrule.DAILY:
		base = pluralEvery(opt.Interval, "daily", "days")
	case rrule.HOURLY:
		base = pluralEvery(opt.Interval, "hourly", "hours")
	case rrule.MINUTELY:
		base = pluralEvery(opt.Interval, "minutely", "minutes")
	default:
		base = pluralEvery(opt.Interval, "secondly", "seconds")
	}

	var b strings.Builder
	b.WriteString(base)

	if len(opt.Byweekday) > 0 {
		names := make([]string, 0, len(opt.Byweekday))
		for _, wd := range opt.Byweekday {
			if d := wd.Day(); d >= 0 && d < len(weekdayNames) {
				names = append(names, weekdayNames[d])
			}
		}
		if len(names) > 0 {
			b.WriteString(", each ")
			b.WriteString(strings.Join(names, ", "))
		}
	}
	if opt.Count > 0 {
		fmt.Fprintf(&b, ", occurring %d times", opt.Count)
	}
	if !opt.Until.IsZero() {
		fmt.Fprintf(&b, ", until %s", DateOf(opt.Until))
	}
	return b.String()
}

func pluralEvery(interval int, simple, unit string) string {
	if interval > 1 {
		return fmt.Sprintf("every %d %s", interval, unit)
	}
	return simple
}

// Between enumerates occurrences within [start, end], generation seeded
// at seed. With inc the window endpoints themselves may match. The
// result is bounded by the window; open-ended rules never expand past
// it.
//
// A recurrence without rules collapses to the seed (plus any explicit
// extra dates that fall inside the window).
func (r *Recurrence) Between(seed, start, end time.Time, inc bool) []time.Time {
	if r == nil {
		return nil
	}
	seen := make(map[int64]struct{})
	var out []time.Time
	add := func(d time.Time) {
		if r.excluded(seed, d) {
			return
		}
		k := d.UnixNano()
		if _, dup := seen[k]; dup {
			return
		}
		seen[k] = struct{}{}
		out = append(out, d)
	}

	if len(r.Rules) == 0 {
		if inWindow(seed, start, end, inc) {
			add(seed)
		}
	}
	for _, rule := range r.Rules {
		reseeded, err := reseed(rule, seed)
		if err != nil {
			continue
		}
		for _, d := range reseeded.Between(start, end, inc) {
			add(d)
		}
	}
	for _, d := range r.Dates {
		if inWindow(d, start, end, inc) {
			add(d)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// After returns the first occurrence after t (inclusive when inc),
// generation seeded at seed. ok is false when the series is exhausted.
func (r *Recurrence) After(seed, t time.Time, inc bool) (time.Time, bool) {
	if r == nil {
		return time.Time{}, false
	}
	var best time.Time
	consider := func(d time.Time) {
		if best.IsZero() || d.Before(best) {
			best = d
		}
	}

	for _, rule := range r.Rules {
		reseeded, err := reseed(rule, seed)
		if err != nil {
			continue
		}
		d := reseeded.After(t, inc)
		for n := 0; n < maxAfterScan && !d.IsZero() && r.excluded(seed, d); n++ {
			d = reseeded.After(d, false)
		}
		if !d.IsZero() && !r.excluded(seed, d) {
			consider(d)
		}
	}
	for _, d := range r.Dates {
		if d.After(t) || (inc && d.Equal(t)) {
			if !r.excluded(seed, d) {
				consider(d)
			}
		}
	}
	if best.IsZero() {
		return time.Time{}, false
	}
	return best, true
}

func (r *Recurrence) excluded(seed, d time.Time) bool {
	for _, ex := range r.ExRules {
		reseeded, err := reseed(ex, seed)
		if err != nil {
			continue
		}
		if len(reseeded.Between(d, d, true)) > 0 {
			return true
		}
	}
	return false
}

// reseed rebuilds a rule with the given generation seed. Rules are
// never mutated in place so concurrent evaluations can share a parsed
// Recurrence.
func reseed(rule *rrule.RRule, seed time.Time) (*rrule.RRule, error) {
	opt := rule.OrigOptions
	opt.Dtstart = seed
	return rrule.NewRRule(opt)
}

func inWindow(d, start, end time.Time, inc bool) bool {
	if inc {
		return !d.Before(start) && !d.After(end)
	}
	return d.After(start) && d.Before(end)
}

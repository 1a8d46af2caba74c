package trigger

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a fuzzy delivery window used by dynamic triggers.
type TimeOfDay string

const (
	TODEarly     TimeOfDay = "early"
	TODMorning   TimeOfDay = "morning"
	TODNoonish   TimeOfDay = "noonish"
	TODAfternoon TimeOfDay = "afternoon"
	TODEvening   TimeOfDay = "evening"
	TODLate      TimeOfDay = "late"
	TODAllDay    TimeOfDay = "allday"
)

func (t TimeOfDay) Valid() bool {
	switch t {
	case TODEarly, TODMorning, TODNoonish, TODAfternoon, TODEvening, TODLate, TODAllDay:
		return true
	}
	return false
}

// Frequency is a fuzzy cadence used by dynamic triggers.
type Frequency string

const (
	FreqDaily       Frequency = "daily"
	FreqWeekly      Frequency = "weekly"
	FreqBiweekly    Frequency = "biweekly"
	FreqMultiweekly Frequency = "multiweekly"
	FreqWeekends    Frequency = "weekends"
)

func (f Frequency) Valid() bool {
	switch f {
	case FreqDaily, FreqWeekly, FreqBiweekly, FreqMultiweekly, FreqWeekends:
		return true
	}
	return false
}

// RelativeUnit is the unit for relative trigger start offsets.
type RelativeUnit string

const (
	UnitDays   RelativeUnit = "days"
	UnitWeeks  RelativeUnit = "weeks"
	UnitMonths RelativeUnit = "months"
	UnitYears  RelativeUnit = "years"
)

func (u RelativeUnit) Valid() bool {
	switch u {
	case UnitDays, UnitWeeks, UnitMonths, UnitYears:
		return true
	}
	return false
}

// ScheduleKind classifies how a trigger produces occurrences.
// It is derived once in Normalize() instead of re-checking optional
// field combinations at every call site.
type ScheduleKind int

const (
	// KindOneShot fires at most once, at the anchor time.
	KindOneShot ScheduleKind = iota
	// KindRecurring expands an RFC 2445 rule set from the anchor.
	KindRecurring
	// KindDynamic concretizes a time-of-day + frequency bucket pair.
	KindDynamic
	// KindRelative starts at an offset from a reference event (adoption).
	KindRelative
)

func (k ScheduleKind) String() string {
	switch k {
	case KindOneShot:
		return "oneshot"
	case KindRecurring:
		return "recurring"
	case KindDynamic:
		return "dynamic"
	case KindRelative:
		return "relative"
	default:
		return "unknown"
	}
}

// Clock is a timezone-naive time of day (HH:MM).
//
// Stored values carry no zone; they are combined with the resolving
// timezone when an occurrence is computed.
type Clock struct {
	Hour   int
	Minute int
}

func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return Clock{}, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return Clock{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("invalid minute in %q", s)
	}
	return Clock{Hour: h, Minute: m}, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Date is a calendar date without a time component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return DateOf(t), nil
}

func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// At combines the date with a clock time in the given location.
func (d Date) At(c Clock, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, c.Hour, c.Minute, 0, 0, loc)
}

// User identifies an acting or owning user for occurrence computation.
// Timezone, when set, is an IANA zone name and short-circuits the
// profile lookup.
type User struct {
	ID       int64
	Timezone string
}

// Trigger is one reminder schedule definition.
//
// A trigger consists of one or more of the following:
//
//   - A date and/or time when a notification should fire.
//   - An RFC 2445 recurrence (how frequently it repeats).
//   - A dynamic time-of-day + frequency bucket pair.
//   - A relative start offset from the adoption event.
//   - Whether occurrences stop once the linked action is completed.
type Trigger struct {
	ID    int64
	Owner *User // nil means a shared/default, non-personal trigger

	// ActionID links the trigger to the catalog action it defaults for.
	// Zero means no linkage (completion gating degrades to off).
	ActionID int64

	Name     string
	NameSlug string // derived from Name in Normalize; not independently settable

	Time       *Clock // explicit time of day, timezone-naive
	Date       *Date  // start anchor for a recurrence, or the sole date of a one-shot
	Recurrence *Recurrence

	TimeOfDay TimeOfDay // dynamic triggers only
	Frequency Frequency // dynamic triggers only

	StartWhenSelected bool
	RelativeValue     int
	RelativeUnit      RelativeUnit

	StopOnComplete bool
	Disabled       bool

	// Kind is derived state, recomputed by Normalize on every mutation.
	Kind ScheduleKind
}

// Normalize re-derives all computed state. Call it after any mutation
// and after loading from storage.
//
// An empty recurrence is collapsed to nil so the rest of the engine can
// treat "no recurrence" uniformly. Embedded RDATE clauses never survive
// parsing (see ParseRecurrence); explicit one-off dates live in Date.
func (t *Trigger) Normalize() {
	t.NameSlug = Slugify(t.Name)
	if t.Recurrence != nil && t.Recurrence.Empty() {
		t.Recurrence = nil
	}
	t.Kind = t.classify()
}

func (t *Trigger) classify() ScheduleKind {
	switch {
	case t.IsDynamic():
		return KindDynamic
	case t.IsRelative():
		return KindRelative
	case t.Recurrence != nil:
		return KindRecurring
	default:
		return KindOneShot
	}
}

// IsDynamic reports whether occurrences are concretized from buckets.
// Dynamic triggers ignore Time/Date/Recurrence.
func (t *Trigger) IsDynamic() bool {
	return t.TimeOfDay != "" && t.Frequency != ""
}

// IsRelative reports whether the start date is an offset from the
// adoption event rather than a fixed date.
func (t *Trigger) IsRelative() bool {
	return t.StartWhenSelected || (t.RelativeValue != 0 && t.RelativeUnit != "")
}

// RelativeStart computes the trigger's start instant relative to ref
// (typically the adoption time). It only applies to owned, relative
// triggers; otherwise ok is false.
func (t *Trigger) RelativeStart(ref time.Time) (time.Time, bool) {
	if t.Owner == nil || !t.IsRelative() {
		return time.Time{}, false
	}
	if t.RelativeUnit != "" && t.RelativeValue != 0 {
		switch t.RelativeUnit {
		case UnitDays:
			return ref.AddDate(0, 0, t.RelativeValue), true
		case UnitWeeks:
			return ref.AddDate(0, 0, 7*t.RelativeValue), true
		case UnitMonths:
			return ref.AddDate(0, t.RelativeValue, 0), true
		case UnitYears:
			return ref.AddDate(t.RelativeValue, 0, 0), true
		}
		return time.Time{}, false
	}
	if t.StartWhenSelected {
		return ref, true
	}
	return time.Time{}, false
}

// TimeDetails returns a short human-readable summary of the schedule.
func (t *Trigger) TimeDetails() string {
	if t.IsDynamic() {
		return fmt.Sprintf("%s, %s", t.TimeOfDay, t.Frequency)
	}

	var b strings.Builder
	if t.Time != nil {
		fmt.Fprintf(&b, "%s\n", t.Time)
	}
	if t.Date != nil {
		fmt.Fprintf(&b, "%s\n", t.Date)
	}
	if t.Recurrence != nil {
		fmt.Fprintf(&b, "%s\n", t.Recurrence.Describe())
	}
	if t.IsRelative() && t.RelativeValue != 0 {
		fmt.Fprintf(&b, "Starts %d %s after selection\n", t.RelativeValue, t.RelativeUnit)
	} else if t.IsRelative() {
		b.WriteString("Starts when selected\n")
	}
	if t.StopOnComplete {
		b.WriteString("Stops when completed\n")
	}
	return b.String()
}

// Reset clears all schedule fields back to defaults.
func (t *Trigger) Reset() {
	t.TimeOfDay = ""
	t.Frequency = ""
	t.Time = nil
	t.Date = nil
	t.Recurrence = nil
	t.StartWhenSelected = false
	t.StopOnComplete = false
	t.Disabled = false
	t.RelativeValue = 0
	t.RelativeUnit = ""
	t.Kind = t.classify()
}

// Slugify lowercases s and replaces runs of non-alphanumerics with a
// single hyphen.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

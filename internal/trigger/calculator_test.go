package trigger

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	logx "nudge/pkg/logx"
)

type fakeZones map[int64]string

func (f fakeZones) TimezoneFor(_ context.Context, userID int64) (string, error) {
	tz, ok := f[userID]
	if !ok {
		return "", errors.New("no profile")
	}
	return tz, nil
}

type fakeCompletions struct {
	done map[[2]int64]bool
	err  error
}

func (f *fakeCompletions) HasCompletedAction(_ context.Context, userID, actionID int64) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.done[[2]int64{userID, actionID}], nil
}

func newTestCalc(zones TimezoneLookup, completions CompletionLookup, seed int64) *Calculator {
	res := NewResolver(zones, logx.Nop())
	gate := NewGate(completions, logx.Nop())
	dyn := NewDynamic(res, rand.NewSource(seed))
	return NewCalculator(res, gate, dyn, logx.Nop())
}

func clockPtr(h, m int) *Clock { return &Clock{Hour: h, Minute: m} }
func datePtr(y int, mo time.Month, d int) *Date {
	return &Date{Year: y, Month: mo, Day: d}
}

func TestNextDisabledTrigger(t *testing.T) {
	t.Parallel()
	calc := newTestCalc(nil, nil, 1)
	now := time.Date(2026, time.September, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		tr   Trigger
	}{
		{"oneshot", Trigger{Disabled: true, Date: datePtr(2026, time.September, 10), Time: clockPtr(9, 0)}},
		{"recurring", Trigger{Disabled: true, Time: clockPtr(9, 0)}},
		{"dynamic", Trigger{Disabled: true, TimeOfDay: TODEvening, Frequency: FreqDaily, Owner: &User{ID: 1}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.tr.Recurrence == nil && tt.name == "recurring" {
				tt.tr.Recurrence = mustRecurrence(t, "RRULE:FREQ=DAILY")
			}
			if _, ok := calc.Next(context.Background(), &tt.tr, nil, now); ok {
				t.Fatal("disabled trigger produced an occurrence")
			}
		})
	}
}

func TestNextStoppedByCompletion(t *testing.T) {
	t.Parallel()
	owner := &User{ID: 5, Timezone: "UTC"}
	completions := &fakeCompletions{done: map[[2]int64]bool{{5, 42}: true}}
	calc := newTestCalc(nil, completions, 1)

	now := time.Date(2026, time.September, 1, 10, 0, 0, 0, time.UTC)
	tr := &Trigger{
		Owner:          owner,
		ActionID:       42,
		StopOnComplete: true,
		Date:           datePtr(2026, time.September, 10),
		Time:           clockPtr(9, 0),
	}
	if _, ok := calc.Next(context.Background(), tr, nil, now); ok {
		t.Fatal("completed action should suppress the future anchor")
	}

	// Without the flag, the same trigger fires.
	tr.StopOnComplete = false
	if _, ok := calc.Next(context.Background(), tr, nil, now); !ok {
		t.Fatal("expected an occurrence without stop_on_complete")
	}
}

func TestNextCompletionLookupFailureDegrades(t *testing.T) {
	t.Parallel()
	owner := &User{ID: 5, Timezone: "UTC"}
	completions := &fakeCompletions{err: errors.New("store down")}
	calc := newTestCalc(nil, completions, 1)

	now := time.Date(2026, time.September, 1, 10, 0, 0, 0, time.UTC)
	tr := &Trigger{
		Owner:          owner,
		ActionID:       42,
		StopOnComplete: true,
		Date:           datePtr(2026, time.September, 10),
		Time:           clockPtr(9, 0),
	}
	if _, ok := calc.Next(context.Background(), tr, nil, now); !ok {
		t.Fatal("lookup failure must degrade to not-completed, not suppress")
	}
}

func TestNextOneShotFuture(t *testing.T) {
	t.Parallel()
	calc := newTestCalc(nil, nil, 1)
	chicago, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}

	owner := &User{ID: 3, Timezone: "America/Chicago"}
	tr := &Trigger{Owner: owner, Date: datePtr(2026, time.September, 10), Time: clockPtr(9, 0)}
	now := time.Date(2026, time.September, 1, 10, 0, 0, 0, chicago)

	got, ok := calc.Next(context.Background(), tr, nil, now)
	if !ok {
		t.Fatal("expected an occurrence")
	}
	want := time.Date(2026, time.September, 10, 9, 0, 0, 0, chicago)
	if !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
	if got.Location().String() != "America/Chicago" {
		t.Fatalf("occurrence not in resolving timezone: %v", got.Location())
	}
}

// Pins the boundary policy for a time-only trigger with no recurrence:
// the anchor branch is exclusive, so once the clock time has passed
// (or is exactly now), there is no occurrence.
func TestNextTimeOnlyBoundary(t *testing.T) {
	t.Parallel()
	calc := newTestCalc(nil, nil, 1)
	tr := &Trigger{Time: clockPtr(23, 59)}

	morning := time.Date(2026, time.September, 1, 10, 0, 0, 0, time.UTC)
	got, ok := calc.Next(context.Background(), tr, nil, morning)
	if !ok {
		t.Fatal("expected today's occurrence")
	}
	want := time.Date(2026, time.September, 1, 23, 59, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}

	lateNight := time.Date(2026, time.September, 1, 23, 59, 30, 0, time.UTC)
	if _, ok := calc.Next(context.Background(), tr, nil, lateNight); ok {
		t.Fatal("anchor already passed; want no occurrence")
	}

	exact := time.Date(2026, time.September, 1, 23, 59, 0, 0, time.UTC)
	if _, ok := calc.Next(context.Background(), tr, nil, exact); ok {
		t.Fatal("anchor-only branch is exclusive at the boundary")
	}
}

func TestNextWeeklyMonday(t *testing.T) {
	t.Parallel()
	calc := newTestCalc(nil, nil, 1)
	chicago, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}

	tr := &Trigger{
		Owner:      &User{ID: 4, Timezone: "America/Chicago"},
		Time:       clockPtr(9, 0),
		Recurrence: mustRecurrence(t, "RRULE:FREQ=WEEKLY;BYDAY=MO"),
	}
	// 2026-08-26 is a Wednesday.
	now := time.Date(2026, time.August, 26, 10, 0, 0, 0, chicago)

	got, ok := calc.Next(context.Background(), tr, nil, now)
	if !ok {
		t.Fatal("expected an occurrence")
	}
	want := time.Date(2026, time.August, 31, 9, 0, 0, 0, chicago)
	if !got.Equal(want) {
		t.Fatalf("Next = %v, want following Monday %v", got, want)
	}
}

// Pins the recurring branch as inclusive when now matches an
// occurrence to the second.
func TestNextRecurringInclusiveBoundary(t *testing.T) {
	t.Parallel()
	calc := newTestCalc(nil, nil, 1)
	tr := &Trigger{
		Time:       clockPtr(9, 0),
		Recurrence: mustRecurrence(t, "RRULE:FREQ=DAILY"),
	}
	now := time.Date(2026, time.September, 1, 9, 0, 0, 0, time.UTC)

	got, ok := calc.Next(context.Background(), tr, nil, now)
	if !ok || !got.Equal(now) {
		t.Fatalf("Next = (%v, %v), want now itself", got, ok)
	}
}

func TestNextStackedRules(t *testing.T) {
	t.Parallel()
	calc := newTestCalc(nil, nil, 1)
	tr := &Trigger{
		Time:       clockPtr(8, 30),
		Recurrence: mustRecurrence(t, "RRULE:FREQ=WEEKLY;BYDAY=TU\nRRULE:FREQ=WEEKLY;BYDAY=FR"),
	}
	// Wednesday; the nearest stacked hit is Friday, recombined with 08:30.
	now := time.Date(2026, time.August, 26, 10, 0, 0, 0, time.UTC)

	got, ok := calc.Next(context.Background(), tr, nil, now)
	if !ok {
		t.Fatal("expected an occurrence")
	}
	want := time.Date(2026, time.August, 28, 8, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
}

func TestNextUntilBounded(t *testing.T) {
	t.Parallel()
	calc := newTestCalc(nil, nil, 1)
	tr := &Trigger{
		Date:       datePtr(2026, time.August, 20),
		Time:       clockPtr(9, 0),
		Recurrence: mustRecurrence(t, "RRULE:FREQ=DAILY;UNTIL=20260905T000000Z"),
	}

	now := time.Date(2026, time.September, 1, 10, 0, 0, 0, time.UTC)
	got, ok := calc.Next(context.Background(), tr, nil, now)
	if !ok {
		t.Fatal("expected an occurrence before the UNTIL bound")
	}
	want := time.Date(2026, time.September, 2, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}

	// Past the bound the rule must stop, not keep echoing dates.
	after := time.Date(2026, time.September, 10, 10, 0, 0, 0, time.UTC)
	if _, ok := calc.Next(context.Background(), tr, nil, after); ok {
		t.Fatal("occurrence generated past UNTIL")
	}
}

func TestNextNoAnchorNoRecurrence(t *testing.T) {
	t.Parallel()
	calc := newTestCalc(nil, nil, 1)
	now := time.Date(2026, time.September, 1, 10, 0, 0, 0, time.UTC)
	if _, ok := calc.Next(context.Background(), &Trigger{}, nil, now); ok {
		t.Fatal("empty trigger produced an occurrence")
	}
}

func TestNextTimezoneLookupFallback(t *testing.T) {
	t.Parallel()
	zones := fakeZones{9: "Asia/Jakarta"}
	calc := newTestCalc(zones, nil, 1)
	jakarta, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}

	// Owner has no inline timezone; it comes from the profile lookup.
	tr := &Trigger{Owner: &User{ID: 9}, Date: datePtr(2026, time.September, 10), Time: clockPtr(9, 0)}
	now := time.Date(2026, time.September, 1, 3, 0, 0, 0, time.UTC)

	got, ok := calc.Next(context.Background(), tr, nil, now)
	if !ok {
		t.Fatal("expected an occurrence")
	}
	want := time.Date(2026, time.September, 10, 9, 0, 0, 0, jakarta)
	if !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
}

func TestPreviousRequiresOwner(t *testing.T) {
	t.Parallel()
	calc := newTestCalc(nil, nil, 1)
	tr := &Trigger{Time: clockPtr(9, 0), Recurrence: mustRecurrence(t, "RRULE:FREQ=DAILY")}
	now := time.Date(2026, time.September, 2, 10, 0, 0, 0, time.UTC)

	_, _, err := calc.Previous(context.Background(), tr, nil, now, 0)
	if !errors.Is(err, ErrOwnerRequired) {
		t.Fatalf("err = %v, want ErrOwnerRequired", err)
	}

	// An acting user satisfies the requirement for shared triggers.
	if _, _, err := calc.Previous(context.Background(), tr, &User{ID: 2, Timezone: "UTC"}, now, 0); err != nil {
		t.Fatalf("unexpected error with acting user: %v", err)
	}
}

func TestPreviousWeekly(t *testing.T) {
	t.Parallel()
	calc := newTestCalc(nil, nil, 1)
	tr := &Trigger{
		Owner:      &User{ID: 2, Timezone: "UTC"},
		Time:       clockPtr(9, 0),
		Recurrence: mustRecurrence(t, "RRULE:FREQ=WEEKLY;BYDAY=MO"),
	}
	// Wednesday 2026-09-02; the latest Monday in the window is 08-31.
	now := time.Date(2026, time.September, 2, 10, 0, 0, 0, time.UTC)

	got, ok, err := calc.Previous(context.Background(), tr, nil, now, 0)
	if err != nil {
		t.Fatalf("Previous error: %v", err)
	}
	if !ok {
		t.Fatal("expected a previous occurrence")
	}
	want := time.Date(2026, time.August, 31, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Previous = %v, want %v", got, want)
	}
}

func TestPreviousWithoutRecurrence(t *testing.T) {
	t.Parallel()
	calc := newTestCalc(nil, nil, 1)
	tr := &Trigger{Owner: &User{ID: 2, Timezone: "UTC"}, Time: clockPtr(9, 0)}
	now := time.Date(2026, time.September, 2, 10, 0, 0, 0, time.UTC)

	_, ok, err := calc.Previous(context.Background(), tr, nil, now, 0)
	if err != nil {
		t.Fatalf("Previous error: %v", err)
	}
	if ok {
		t.Fatal("non-recurring trigger has no previous occurrence")
	}
}

func TestOccurrencesOneShotCollapses(t *testing.T) {
	t.Parallel()
	calc := newTestCalc(nil, nil, 1)
	tr := &Trigger{Date: datePtr(2026, time.September, 10), Time: clockPtr(9, 0)}
	now := time.Date(2026, time.September, 1, 10, 0, 0, 0, time.UTC)

	got := calc.Occurrences(context.Background(), tr, nil, now, 0)
	if len(got) != 1 {
		t.Fatalf("got %d occurrences, want 1", len(got))
	}
	want := time.Date(2026, time.September, 10, 9, 0, 0, 0, time.UTC)
	if !got[0].Equal(want) {
		t.Fatalf("occurrence = %v, want %v", got[0], want)
	}
}

func TestOccurrencesDailyWindow(t *testing.T) {
	t.Parallel()
	calc := newTestCalc(nil, nil, 1)
	tr := &Trigger{
		Date:       datePtr(2026, time.September, 1),
		Time:       clockPtr(9, 0),
		Recurrence: mustRecurrence(t, "RRULE:FREQ=DAILY"),
	}
	now := time.Date(2026, time.September, 1, 8, 0, 0, 0, time.UTC)

	got := calc.Occurrences(context.Background(), tr, nil, now, 7)
	if len(got) != 8 {
		t.Fatalf("got %d occurrences, want 8", len(got))
	}
	for _, d := range got {
		if d.Hour() != 9 || d.Minute() != 0 {
			t.Fatalf("occurrence %v lost the anchor clock", d)
		}
	}
}

func TestOccurrencesDropPastDates(t *testing.T) {
	t.Parallel()
	calc := newTestCalc(nil, nil, 1)
	tr := &Trigger{
		Date:       datePtr(2026, time.August, 25),
		Time:       clockPtr(9, 0),
		Recurrence: mustRecurrence(t, "RRULE:FREQ=DAILY"),
	}
	now := time.Date(2026, time.August, 28, 8, 0, 0, 0, time.UTC)

	for _, d := range calc.Occurrences(context.Background(), tr, nil, now, 10) {
		if DateOf(d).Before(DateOf(now)) {
			t.Fatalf("occurrence %v is before today", d)
		}
	}
}

func TestOccurrencesMalformedWeeklyFiltered(t *testing.T) {
	t.Parallel()
	calc := newTestCalc(nil, nil, 1)
	tr := &Trigger{
		Date:       datePtr(2026, time.September, 1),
		Time:       clockPtr(9, 0),
		Recurrence: mustRecurrence(t, "RRULE:FREQ=WEEKLY;BYDAY=MO"),
	}
	now := time.Date(2026, time.September, 1, 8, 0, 0, 0, time.UTC)

	for _, d := range calc.Occurrences(context.Background(), tr, nil, now, 30) {
		if d.Weekday() != time.Monday {
			t.Fatalf("weekly Monday rule produced %v", d.Weekday())
		}
	}
}

func TestOccurrencesDisabled(t *testing.T) {
	t.Parallel()
	calc := newTestCalc(nil, nil, 1)
	tr := &Trigger{Disabled: true, Time: clockPtr(9, 0)}
	now := time.Date(2026, time.September, 1, 8, 0, 0, 0, time.UTC)
	if got := calc.Occurrences(context.Background(), tr, nil, now, 30); len(got) != 0 {
		t.Fatalf("disabled trigger listed %d occurrences", len(got))
	}
}

func TestSourceVariants(t *testing.T) {
	t.Parallel()
	calc := newTestCalc(nil, nil, 1)
	now := time.Date(2026, time.September, 1, 10, 0, 0, 0, time.UTC)

	shared := &Trigger{Date: datePtr(2026, time.September, 10), Time: clockPtr(9, 0)}
	var src OccurrenceSource = calc.DefaultSource(shared, &User{ID: 1, Timezone: "UTC"})
	if _, ok := src.NextOccurrence(context.Background(), now); !ok {
		t.Fatal("default source should fire")
	}

	owned := &Trigger{Owner: &User{ID: 2, Timezone: "UTC"}, Date: datePtr(2026, time.September, 10), Time: clockPtr(9, 0)}
	src = calc.CustomSource(owned)
	if _, ok := src.NextOccurrence(context.Background(), now); !ok {
		t.Fatal("custom source should fire")
	}
	if _, _, err := src.PreviousOccurrence(context.Background(), now); err != nil {
		t.Fatalf("custom source previous error: %v", err)
	}
}

package trigger

import (
	"context"
	"math/rand"
	"testing"
	"time"

	logx "nudge/pkg/logx"
)

func newTestDynamic(seed int64) *Dynamic {
	res := NewResolver(nil, logx.Nop())
	return NewDynamic(res, rand.NewSource(seed))
}

func TestDynamicNextHourInBucket(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, time.September, 1, 10, 0, 0, 0, time.UTC)
	owner := &User{ID: 1, Timezone: "UTC"}

	for seed := int64(0); seed < 25; seed++ {
		d := newTestDynamic(seed)
		tr := &Trigger{Owner: owner, TimeOfDay: TODEvening, Frequency: FreqDaily}

		got, ok := d.Next(context.Background(), tr, nil, now)
		if !ok {
			t.Fatalf("seed %d: expected an occurrence", seed)
		}
		if !got.After(now) {
			t.Fatalf("seed %d: %v is not strictly after now", seed, got)
		}
		switch got.Hour() {
		case 18, 19, 20, 21:
		default:
			t.Fatalf("seed %d: hour %d outside evening bucket", seed, got.Hour())
		}
		if got.Minute()%5 != 0 {
			t.Fatalf("seed %d: minute %d not on a 5-minute mark", seed, got.Minute())
		}
	}
}

func TestDynamicWeekendsFromFriday(t *testing.T) {
	t.Parallel()
	// 2026-08-28 is a Friday.
	now := time.Date(2026, time.August, 28, 10, 0, 0, 0, time.UTC)
	owner := &User{ID: 1, Timezone: "UTC"}

	for seed := int64(0); seed < 25; seed++ {
		d := newTestDynamic(seed)
		tr := &Trigger{Owner: owner, TimeOfDay: TODMorning, Frequency: FreqWeekends}

		got, ok := d.Next(context.Background(), tr, nil, now)
		if !ok {
			t.Fatalf("seed %d: expected an occurrence", seed)
		}
		if wd := got.Weekday(); wd != time.Saturday && wd != time.Sunday {
			t.Fatalf("seed %d: weekend trigger landed on %v", seed, wd)
		}
	}
}

func TestDynamicDailyPushesPastTimes(t *testing.T) {
	t.Parallel()
	// Late enough that every "late" bucket pick for today has passed
	// except the small hours, which roll to tomorrow anyway.
	now := time.Date(2026, time.September, 1, 23, 59, 0, 0, time.UTC)
	owner := &User{ID: 1, Timezone: "UTC"}

	for seed := int64(0); seed < 25; seed++ {
		d := newTestDynamic(seed)
		tr := &Trigger{Owner: owner, TimeOfDay: TODEarly, Frequency: FreqDaily}

		got, ok := d.Next(context.Background(), tr, nil, now)
		if !ok {
			t.Fatalf("seed %d: expected an occurrence", seed)
		}
		if !got.After(now) {
			t.Fatalf("seed %d: %v not pushed past now", seed, got)
		}
	}
}

func TestDynamicRequiresUser(t *testing.T) {
	t.Parallel()
	d := newTestDynamic(1)
	tr := &Trigger{TimeOfDay: TODEvening, Frequency: FreqDaily}
	now := time.Date(2026, time.September, 1, 10, 0, 0, 0, time.UTC)

	if _, ok := d.Next(context.Background(), tr, nil, now); ok {
		t.Fatal("ownerless dynamic trigger should produce nothing")
	}
	if _, ok := d.Next(context.Background(), tr, &User{ID: 2, Timezone: "UTC"}, now); !ok {
		t.Fatal("acting user should satisfy the requirement")
	}
}

func TestDynamicNonDynamicTrigger(t *testing.T) {
	t.Parallel()
	d := newTestDynamic(1)
	now := time.Date(2026, time.September, 1, 10, 0, 0, 0, time.UTC)
	tr := &Trigger{Owner: &User{ID: 1, Timezone: "UTC"}, TimeOfDay: TODEvening} // no frequency

	if _, ok := d.Next(context.Background(), tr, nil, now); ok {
		t.Fatal("missing frequency bucket must not produce occurrences")
	}
}

func TestDynamicSeededDeterminism(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, time.September, 1, 10, 0, 0, 0, time.UTC)
	owner := &User{ID: 1, Timezone: "UTC"}
	tr := &Trigger{Owner: owner, TimeOfDay: TODAfternoon, Frequency: FreqMultiweekly}

	a, okA := newTestDynamic(42).Next(context.Background(), tr, nil, now)
	b, okB := newTestDynamic(42).Next(context.Background(), tr, nil, now)
	if !okA || !okB {
		t.Fatal("expected occurrences from both schedulers")
	}
	if !a.Equal(b) {
		t.Fatalf("same seed diverged: %v vs %v", a, b)
	}
}

func TestDynamicRange(t *testing.T) {
	t.Parallel()
	d := newTestDynamic(1)
	owner := &User{ID: 1, Timezone: "UTC"}
	// Friday: the weekend window must close on Sunday.
	now := time.Date(2026, time.August, 28, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		freq Frequency
		days int
	}{
		{FreqDaily, 1},
		{FreqWeekly, 7},
		{FreqBiweekly, 5},
		{FreqMultiweekly, 5},
		{FreqWeekends, 2}, // Friday is ISO day 5: 7-5
	}
	for _, tt := range tests {
		tr := &Trigger{Owner: owner, TimeOfDay: TODMorning, Frequency: tt.freq}
		start, end, ok := d.Range(context.Background(), tr, nil, now)
		if !ok {
			t.Fatalf("%s: expected a range", tt.freq)
		}
		wantStart := time.Date(2026, time.August, 28, 0, 0, 0, 0, time.UTC)
		if !start.Equal(wantStart) {
			t.Fatalf("%s: start = %v, want %v", tt.freq, start, wantStart)
		}
		if got := int(end.Sub(start).Hours() / 24); got != tt.days {
			t.Fatalf("%s: window = %d days, want %d", tt.freq, got, tt.days)
		}
	}

	if _, _, ok := d.Range(context.Background(), &Trigger{TimeOfDay: TODMorning, Frequency: FreqDaily}, nil, now); ok {
		t.Fatal("ownerless range should be unavailable")
	}
}

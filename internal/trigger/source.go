package trigger

import (
	"context"
	"time"
)

// OccurrenceSource is anything that can produce fire times. The two
// variants replace the old duck-typed "has a next()" polymorphism
// between catalog defaults and user-authored triggers.
type OccurrenceSource interface {
	NextOccurrence(ctx context.Context, now time.Time) (time.Time, bool)
	PreviousOccurrence(ctx context.Context, now time.Time) (time.Time, bool, error)
	Describe() string
}

// DefaultTrigger is a shared catalog trigger evaluated on behalf of an
// acting user. The trigger itself has no owner; the user supplies the
// timezone and completion context.
type DefaultTrigger struct {
	Trigger *Trigger
	User    *User

	calc *Calculator
}

// CustomTrigger is a user-authored trigger; the owner rides on the
// trigger itself.
type CustomTrigger struct {
	Trigger *Trigger

	calc *Calculator
}

func (c *Calculator) DefaultSource(tr *Trigger, u *User) *DefaultTrigger {
	return &DefaultTrigger{Trigger: tr, User: u, calc: c}
}

func (c *Calculator) CustomSource(tr *Trigger) *CustomTrigger {
	return &CustomTrigger{Trigger: tr, calc: c}
}

func (d *DefaultTrigger) NextOccurrence(ctx context.Context, now time.Time) (time.Time, bool) {
	return d.calc.Next(ctx, d.Trigger, d.User, now)
}

func (d *DefaultTrigger) PreviousOccurrence(ctx context.Context, now time.Time) (time.Time, bool, error) {
	return d.calc.Previous(ctx, d.Trigger, d.User, now, DefaultLookbackDays)
}

func (d *DefaultTrigger) Describe() string { return d.Trigger.TimeDetails() }

func (s *CustomTrigger) NextOccurrence(ctx context.Context, now time.Time) (time.Time, bool) {
	return s.calc.Next(ctx, s.Trigger, nil, now)
}

func (s *CustomTrigger) PreviousOccurrence(ctx context.Context, now time.Time) (time.Time, bool, error) {
	return s.calc.Previous(ctx, s.Trigger, nil, now, DefaultLookbackDays)
}

func (s *CustomTrigger) Describe() string { return s.Trigger.TimeDetails() }

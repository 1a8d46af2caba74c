package trigger

import (
	"context"
	"time"

	logx "nudge/pkg/logx"
)

// TimezoneLookup resolves a user's configured IANA timezone name from
// an external profile store.
type TimezoneLookup interface {
	TimezoneFor(ctx context.Context, userID int64) (string, error)
}

// Resolver picks the timezone a trigger's occurrences are expressed in:
// the acting user's zone if known, else the owner's, else UTC.
//
// Missing or invalid timezone data is not an error; it silently
// degrades to UTC.
type Resolver struct {
	lookup TimezoneLookup // optional
	log    logx.Logger
}

func NewResolver(lookup TimezoneLookup, log logx.Logger) *Resolver {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Resolver{lookup: lookup, log: log}
}

// Resolve never fails. Candidates are tried in order: the acting user,
// then the trigger's owner; for each, an inline Timezone field wins
// over the profile lookup.
func (r *Resolver) Resolve(ctx context.Context, tr *Trigger, u *User) *time.Location {
	for _, cand := range []*User{u, tr.Owner} {
		if cand == nil {
			continue
		}
		if loc, ok := r.load(cand.Timezone); ok {
			return loc
		}
		if r.lookup == nil || cand.ID == 0 {
			continue
		}
		name, err := r.lookup.TimezoneFor(ctx, cand.ID)
		if err != nil {
			r.log.Debug("timezone lookup failed", logx.Int64("user", cand.ID), logx.Err(err))
			continue
		}
		if loc, ok := r.load(name); ok {
			return loc
		}
	}
	return time.UTC
}

func (r *Resolver) load(name string) (*time.Location, bool) {
	if name == "" {
		return nil, false
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		r.log.Warn("invalid timezone, falling back", logx.String("tz", name), logx.Err(err))
		return nil, false
	}
	return loc, true
}

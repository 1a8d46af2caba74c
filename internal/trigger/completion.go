package trigger

import (
	"context"

	logx "nudge/pkg/logx"
)

// CompletionLookup answers whether a user has marked the linked action
// as completed. Supplied by an external store.
type CompletionLookup interface {
	HasCompletedAction(ctx context.Context, userID, actionID int64) (bool, error)
}

// Gate suppresses future occurrences of stop-on-complete triggers once
// the linked action is done.
type Gate struct {
	lookup CompletionLookup
	log    logx.Logger
}

func NewGate(lookup CompletionLookup, log logx.Logger) *Gate {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Gate{lookup: lookup, log: log}
}

// Suppressed returns true only on a confirmed completion match.
// No user, no action linkage, or a failed lookup all degrade to false;
// the trigger keeps firing rather than silently going dark.
func (g *Gate) Suppressed(ctx context.Context, tr *Trigger, u *User) bool {
	if g == nil || !tr.StopOnComplete {
		return false
	}
	user := resolveUser(tr, u)
	if user == nil || tr.ActionID == 0 || g.lookup == nil {
		return false
	}
	done, err := g.lookup.HasCompletedAction(ctx, user.ID, tr.ActionID)
	if err != nil {
		g.log.Debug("completion lookup failed",
			logx.Int64("user", user.ID), logx.Int64("action", tr.ActionID), logx.Err(err))
		return false
	}
	return done
}

// resolveUser prefers the acting user, falling back to the owner.
func resolveUser(tr *Trigger, u *User) *User {
	if u != nil {
		return u
	}
	return tr.Owner
}

// Package trigger decides when a reminder should fire.
//
// # Overview
//
// A Trigger is one reminder schedule: an explicit date/time, an RFC
// 2445 recurrence, a fuzzy time-of-day + frequency bucket pair
// ("dynamic"), or a start offset relative to the moment a user adopted
// the underlying action. The Calculator turns a trigger plus a "now"
// instant into concrete occurrences: the next fire time, the previous
// one, or a bounded upcoming list.
//
// # Timezones
//
// Explicit clock times are stored timezone-naive and combined with the
// resolving timezone at read time: the acting user's zone if known,
// else the owner's, else UTC. Missing timezone data degrades to UTC
// silently; it is documented behavior, not an error.
//
// # Suppression
//
// Disabled triggers never produce occurrences. Triggers with
// stop-on-complete set are gated on a completion lookup: once the
// linked action is marked complete, Next reports no occurrence.
//
// # Concurrency
//
// Every computation is a pure function of its inputs. The calculator,
// resolver and gate hold no per-call state and are safe for concurrent
// use; a batch sweep may evaluate one trigger per goroutine.
package trigger

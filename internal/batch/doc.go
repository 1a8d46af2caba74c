// Package batch runs the periodic reminder sweep.
//
// On each tick the sweeper lists active triggers from the store, fans
// them out to a worker pool that asks the engine for each trigger's
// next occurrence, and hands occurrences inside the due window to the
// notifier. Computation volume is bounded by an optional rate limit
// and a per-sweep deadline.
package batch

// Package storage persists the trigger catalog, user profiles and
// completion state behind a small driver-selected API.
//
// The sqlite driver is the only real backend; Open returns (nil, nil)
// when storage is disabled so callers can run the engine against
// in-memory fixtures. Every Store also satisfies the engine's
// trigger.TimezoneLookup and trigger.CompletionLookup interfaces, and
// LookupCache adds a read-through TTL layer for sweeps.
package storage

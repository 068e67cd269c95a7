// Package ratelimit provides fixed-window admission control keyed by
// client ID.
//
// Each client gets a counter that resets when its window elapses; a
// request is admitted while the count is below the client's ceiling.
// Clients without an explicit configuration use the process-wide
// default. Per-client overrides are applied atomically via Configure
// and persisted so an admin restart does not silently reset ceilings.
package ratelimit

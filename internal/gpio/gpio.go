package gpio

import "time"

// Edge is one hardware edge event on a watched line.
//
// Seq is the kernel's per-line event sequence number; gaps mean edges were
// missed before we consumed them. Mono is the event timestamp on the
// kernel's monotonic clock, shared by every watched line, which makes
// instants from different lines directly comparable.
type Edge struct {
	Seq  uint32
	Mono time.Duration
}

// Watcher delivers rising edges from one GPIO line.
//
// The event channel is bounded; if the consumer falls behind, the oldest
// undelivered edge gives way and the gap shows up as a Seq jump.
type Watcher interface {
	Events() <-chan Edge
	Close() error
}

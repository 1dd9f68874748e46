package pps

import (
	"sync"
	"time"

	"navfuse/internal/gpio"
	"navfuse/internal/metrics"
)

// Anchor ties one pulse to the disciplined wall clock: pulse sequence
// number, the UTC second it marks, and the monotonic instant of its edge.
// While disciplined, UTC advances by exactly one second per sequence step.
type Anchor struct {
	PulseSeq uint32
	UTC      time.Time
	Mono     time.Duration
}

// Cadence tolerance for the monotonic gap between consecutive pulses.
// Local clock drift over one second is far below this.
const cadenceSlack = 50 * time.Millisecond

// Correlator maps monotonic edge instants onto UTC using the two most
// recent pulse anchors.
//
// Any cadence violation (missed or duplicated pulse) drops it to the
// unsynchronized state; two consecutive on-cadence pulses restore it.
// While unsynchronized it keeps extrapolating best-effort and reports low
// confidence instead of failing closed.
type Correlator struct {
	wall func() time.Time
	m    *metrics.Set

	mu      sync.Mutex
	prev    *Anchor
	last    *Anchor
	synced  bool
	goodRun int
	pulses  uint64
	losses  uint64
}

// NewCorrelator builds a correlator over the given wall-clock capability.
// The OS clock is assumed to already be disciplined to GNSS time.
func NewCorrelator(wall func() time.Time, m *metrics.Set) *Correlator {
	if wall == nil {
		wall = time.Now
	}
	if m == nil {
		m = metrics.New()
	}
	return &Correlator{wall: wall, m: m}
}

// Pulse folds one PPS edge into the anchor history.
func (c *Correlator) Pulse(e gpio.Edge) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pulses++
	c.m.Pulses.Inc()

	a := Anchor{PulseSeq: e.Seq, Mono: e.Mono}

	onCadence := false
	if c.last != nil {
		dMono := e.Mono - c.last.Mono
		if e.Seq == c.last.PulseSeq+1 &&
			dMono > time.Second-cadenceSlack && dMono < time.Second+cadenceSlack {
			onCadence = true
		}
	}

	if onCadence {
		// Hold the one-second invariant exactly rather than re-rounding
		// the wall clock on every pulse.
		a.UTC = c.last.UTC.Add(time.Second)
		c.goodRun++
		if c.goodRun >= 2 && !c.synced {
			c.synced = true
			c.m.ClockSynced.Set(1)
		}
	} else {
		a.UTC = c.wall().UTC().Round(time.Second)
		c.goodRun = 0
		if c.synced {
			c.synced = false
			c.losses++
			c.m.SyncLosses.Inc()
			c.m.ClockSynced.Set(0)
		}
	}

	c.prev = c.last
	c.last = &a
}

// UTCAt maps a monotonic instant to UTC by extrapolating from the newest
// anchor. The boolean is false when the result is low confidence: either no
// pulse has been seen yet (wall clock passthrough) or the correlator is
// unsynchronized.
func (c *Correlator) UTCAt(mono time.Duration) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.last == nil {
		return c.wall().UTC(), false
	}
	return c.last.UTC.Add(mono - c.last.Mono), c.synced
}

func (c *Correlator) Synchronized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.synced
}

// Snapshot is a status view of the correlator.
type Snapshot struct {
	Synchronized bool   `json:"synchronized"`
	Pulses       uint64 `json:"pulses"`
	SyncLosses   uint64 `json:"sync_losses"`
	LastPulseUTC string `json:"last_pulse_utc,omitempty"`
}

func (c *Correlator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := Snapshot{
		Synchronized: c.synced,
		Pulses:       c.pulses,
		SyncLosses:   c.losses,
	}
	if c.last != nil {
		out.LastPulseUTC = c.last.UTC.Format(time.RFC3339Nano)
	}
	return out
}

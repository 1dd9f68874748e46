package gnss

import (
	"strconv"
	"strings"
	"time"

	"navfuse/internal/nmea"
)

// Fix is the coherent "current fix" presented downstream. Optional fields
// are nil when the receiver has not reported them; zero values are real
// measurements.
type Fix struct {
	UTCTime    *string
	LatDeg     *float64
	LonDeg     *float64
	AltM       *float64
	FixQuality int
	Satellites *int
	HDOP       *float64

	VTGValid bool
	SpeedMS  *float64
	TrackDeg *float64

	// Stale is a liveness flag: no sentence has advanced the reporting
	// interval within the configured window. It says nothing about whether
	// the last fix content was valid.
	Stale bool
}

// Tracker assembles sentences into per-interval fixes.
//
// Sentences are grouped by their embedded reporting time (GGA carries it).
// A strictly newer time starts a new assembling interval; an interval that
// never completed is discarded, not merged. A fix is presentable once
// quality, position, and time have each been set for the current interval.
// Other fields hold their last presented value across intervals.
//
// Tracker is not safe for concurrent use; it is owned by a single reader
// goroutine.
type Tracker struct {
	staleAfter time.Duration

	cur       Fix  // last presented fix (last-value-hold source)
	presented bool

	work        Fix     // interval being assembled
	intervalKey float64 // seconds-of-day of the in-progress interval, -1 before first
	qualitySet  bool
	positionSet bool
	timeSet     bool
	emitted     bool // current interval already promoted

	// Velocity is not interval-keyed (VTG has no time field); the most
	// recent VTG is attached when an interval completes.
	vtg     nmea.VTG
	vtgSeen bool

	lastAdvance time.Time
	stale       bool
}

func NewTracker(staleAfter time.Duration) *Tracker {
	if staleAfter <= 0 {
		staleAfter = 3 * time.Second
	}
	return &Tracker{staleAfter: staleAfter, intervalKey: -1}
}

// Apply folds one sentence into the tracker. It reports whether the
// presented fix changed (a new interval completed or staleness cleared).
// Parse failures leave the tracker untouched.
func (t *Tracker) Apply(now time.Time, s nmea.Sentence) (bool, error) {
	switch s.Type {
	case "GGA":
		gga, err := nmea.ParseGGA(s)
		if err != nil {
			return false, err
		}
		return t.applyGGA(now, gga), nil
	case "VTG":
		vtg, err := nmea.ParseVTG(s)
		if err != nil {
			return false, err
		}
		t.vtg = vtg
		t.vtgSeen = true
		return false, nil
	default:
		// Unhandled sentence types are not errors; they are simply ignored.
		return false, nil
	}
}

func (t *Tracker) applyGGA(now time.Time, gga nmea.GGA) bool {
	key := timeKey(gga.UTCTime)
	staleCleared := false
	if key >= 0 && newerKey(key, t.intervalKey) {
		staleCleared = t.startInterval(now, key)
	}

	// fix_quality must be refreshed every interval; GGA always carries it.
	t.work.FixQuality = gga.FixQuality
	t.qualitySet = true

	if gga.UTCTime != nil {
		t.work.UTCTime = gga.UTCTime
		t.timeSet = true
	}
	if gga.LatDeg != nil && gga.LonDeg != nil {
		t.work.LatDeg = gga.LatDeg
		t.work.LonDeg = gga.LonDeg
		t.positionSet = true
	}
	if gga.AltitudeM != nil {
		t.work.AltM = gga.AltitudeM
	}
	if gga.Satellites != nil {
		t.work.Satellites = gga.Satellites
	}
	if gga.HDOP != nil {
		t.work.HDOP = gga.HDOP
	}

	if t.qualitySet && t.positionSet && t.timeSet && !t.emitted {
		return t.promote()
	}
	// A sentence advancing the interval proves the feed is alive even if
	// the interval never completes; a stale-to-fresh flip is a change the
	// presented fix must carry downstream.
	return staleCleared
}

// startInterval begins assembling a strictly newer reporting interval.
// The working fix restarts from the last presented fix, so fields from a
// discarded incomplete interval never leak downstream. It reports whether
// advancing the interval cleared a set staleness flag.
func (t *Tracker) startInterval(now time.Time, key float64) bool {
	cleared := t.stale
	t.work = t.cur
	t.intervalKey = key
	t.qualitySet = false
	t.positionSet = false
	t.timeSet = false
	t.emitted = false
	t.lastAdvance = now
	t.stale = false
	return cleared
}

func (t *Tracker) promote() bool {
	t.cur = t.work
	if t.vtgSeen {
		t.cur.VTGValid = t.vtg.Valid
		t.cur.SpeedMS = t.vtg.SpeedMS
		t.cur.TrackDeg = t.vtg.TrackTrueDeg
	}
	t.cur.Stale = false
	t.presented = true
	t.emitted = true
	return true
}

// MarkStaleIf flips the staleness flag once the interval has not advanced
// within the window. It reports whether the flag just transitioned.
func (t *Tracker) MarkStaleIf(now time.Time) bool {
	if t.stale || t.lastAdvance.IsZero() {
		return false
	}
	if now.Sub(t.lastAdvance) < t.staleAfter {
		return false
	}
	t.stale = true
	return true
}

// Presentable reports whether a fix has ever been promoted.
func (t *Tracker) Presentable() bool { return t.presented }

// Snapshot returns the presented fix with the current staleness flag.
func (t *Tracker) Snapshot() Fix {
	out := t.cur
	out.Stale = t.stale
	return out
}

// timeKey converts an NMEA hhmmss.ss time into seconds of day, or -1 when
// absent or malformed.
func timeKey(s *string) float64 {
	if s == nil {
		return -1
	}
	v := strings.TrimSpace(*s)
	if len(v) < 6 {
		return -1
	}
	hh, err1 := strconv.Atoi(v[0:2])
	mm, err2 := strconv.Atoi(v[2:4])
	ss, err3 := strconv.ParseFloat(v[4:], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return -1
	}
	return float64(hh*3600+mm*60) + ss
}

// newerKey reports whether a is strictly newer than b, treating a large
// backwards jump as a UTC midnight wrap.
func newerKey(a, b float64) bool {
	if b < 0 {
		return true
	}
	if a > b {
		return true
	}
	return b-a > 43200
}

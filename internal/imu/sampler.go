package imu

import (
	"log"
	"sync"
	"time"

	"navfuse/internal/gpio"
	"navfuse/internal/metrics"
	"navfuse/internal/sensors/ism330dhcx"
)

// Sample is one 6-axis inertial reading stamped on the disciplined time
// axis. HighConfidence mirrors the clock's sync state at stamp time.
type Sample struct {
	UTC            time.Time
	HighConfidence bool
	AccelMg        [3]float64
	GyroDps        [3]float64
}

type reader interface {
	Read() (ism330dhcx.Sample, error)
}

// Clock maps a monotonic edge instant onto UTC.
type Clock interface {
	UTCAt(mono time.Duration) (time.Time, bool)
}

// sampler turns data-ready edges into published samples. One bus read per
// edge; when edges back up behind a slow read, the backlog collapses to the
// newest edge so the loop never falls progressively behind.
type sampler struct {
	dev   reader
	clock Clock
	m     *metrics.Set

	readTimeout time.Duration
	maxFaults   int

	out chan Sample

	mu        sync.Mutex
	lastSeq   uint32
	haveSeq   bool
	faults    int
	degraded  bool
	samples   uint64
	timeouts  uint64
	busFaults uint64
	missed    uint64
}

func newSampler(dev reader, clock Clock, m *metrics.Set, readTimeout time.Duration, maxFaults int) *sampler {
	if readTimeout <= 0 {
		readTimeout = 5 * time.Millisecond
	}
	if maxFaults <= 0 {
		maxFaults = 25
	}
	return &sampler{
		dev:         dev,
		clock:       clock,
		m:           m,
		readTimeout: readTimeout,
		maxFaults:   maxFaults,
		out:         make(chan Sample, 8),
	}
}

// handleEdge services one (possibly coalesced) data-ready edge.
func (s *sampler) handleEdge(e gpio.Edge, pending <-chan gpio.Edge) {
	// Collapse any backlog to the newest edge. The device holds only the
	// latest output registers, so older edges carry no recoverable data.
drain:
	for {
		select {
		case next, ok := <-pending:
			if !ok {
				break drain
			}
			e = next
		default:
			break drain
		}
	}
	s.noteSeq(e.Seq)

	start := time.Now()
	raw, err := s.dev.Read()
	elapsed := time.Since(start)

	switch {
	case err != nil:
		s.mu.Lock()
		s.busFaults++
		s.mu.Unlock()
		s.m.ImuBusFaults.Inc()
		s.fault("imu bus fault: %v", err)
		return
	case elapsed > s.readTimeout:
		// The registers may have been overwritten mid-read; the sample
		// cannot be trusted.
		s.mu.Lock()
		s.timeouts++
		s.mu.Unlock()
		s.m.ImuTimeouts.Inc()
		s.fault("imu read timeout: %v > %v", elapsed, s.readTimeout)
		return
	}

	s.mu.Lock()
	wasDegraded := s.degraded
	s.faults = 0
	s.degraded = false
	s.samples++
	s.mu.Unlock()
	if wasDegraded {
		s.m.ImuDegraded.Set(0)
		log.Printf("imu recovered")
	}

	utc, synced := s.clock.UTCAt(e.Mono)
	sample := Sample{
		UTC:            utc,
		HighConfidence: synced,
		AccelMg:        [3]float64{raw.Ax, raw.Ay, raw.Az},
		GyroDps:        [3]float64{raw.Gx, raw.Gy, raw.Gz},
	}
	s.m.ImuSamples.Inc()

	select {
	case s.out <- sample:
	default:
		// Slow consumer: shed the oldest buffered sample.
		select {
		case <-s.out:
		default:
		}
		select {
		case s.out <- sample:
		default:
		}
	}
}

// noteSeq accounts for edges the kernel saw but we never serviced
// individually, either coalesced here or dropped upstream.
func (s *sampler) noteSeq(seq uint32) {
	s.mu.Lock()
	var gap uint64
	if s.haveSeq && seq > s.lastSeq+1 {
		gap = uint64(seq - s.lastSeq - 1)
		s.missed += gap
	}
	s.lastSeq = seq
	s.haveSeq = true
	s.mu.Unlock()
	if gap > 0 {
		s.m.ImuMissedEdges.Add(float64(gap))
	}
}

func (s *sampler) fault(format string, args ...any) {
	s.mu.Lock()
	s.faults++
	faults := s.faults
	justDegraded := faults >= s.maxFaults && !s.degraded
	if justDegraded {
		s.degraded = true
	}
	s.mu.Unlock()

	if justDegraded {
		s.m.ImuDegraded.Set(1)
		log.Printf("imu degraded after %d consecutive faults", faults)
	}
	if faults <= 3 || faults%100 == 0 {
		log.Printf(format, args...)
	}
}

// Snapshot is a status view of the sampler.
type Snapshot struct {
	Samples     uint64 `json:"samples"`
	Timeouts    uint64 `json:"timeouts"`
	BusFaults   uint64 `json:"bus_faults"`
	MissedEdges uint64 `json:"missed_edges"`
	Degraded    bool   `json:"degraded"`
}

func (s *sampler) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Samples:     s.samples,
		Timeouts:    s.timeouts,
		BusFaults:   s.busFaults,
		MissedEdges: s.missed,
		Degraded:    s.degraded,
	}
}

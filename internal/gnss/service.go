package gnss

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"navfuse/internal/metrics"
	"navfuse/internal/nmea"
)

// Config controls GNSS acquisition.
//
// Source selects how fixes are ingested: "serial" (NMEA over a tty) or
// "gpsd" (JSON over TCP). When empty, defaults to "serial".
//
// Device may be empty to auto-detect /dev/ttyACM* and /dev/ttyUSB*.
type Config struct {
	Enable bool `yaml:"enable"`

	Source   string `yaml:"source"`
	Device   string `yaml:"device"`
	Baud     int    `yaml:"baud"`
	GPSDAddr string `yaml:"gpsd_addr"`

	// StaleAfter is the liveness window: if no sentence advances the
	// reporting interval within it, the presented fix is flagged stale.
	StaleAfter time.Duration `yaml:"stale_after"`
}

// Service reads the configured source, folds sentences through a Tracker,
// and emits a Fix on every presented change. The updates channel never
// blocks the reader: it is bounded and drop-oldest, and every element is a
// full snapshot so dropped intermediates lose nothing durable.
type Service struct {
	cfg Config
	m   *metrics.Set

	updates chan Fix

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closer io.Closer
	last   Fix
	ok     bool
}

func New(cfg Config, m *metrics.Set) *Service {
	if m == nil {
		m = metrics.New()
	}
	return &Service{
		cfg:     cfg,
		m:       m,
		updates: make(chan Fix, 4),
	}
}

// Updates yields a Fix snapshot whenever the presented fix changes.
func (s *Service) Updates() <-chan Fix { return s.updates }

// Snapshot returns the most recent presented fix, if any.
func (s *Service) Snapshot() (Fix, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.ok
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("gnss service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	src := strings.ToLower(strings.TrimSpace(s.cfg.Source))
	if src == "" {
		src = "serial"
	}
	switch src {
	case "gpsd":
		return s.startGPSDLocked(ctx)
	case "serial":
		return s.startSerialLocked(ctx)
	default:
		return fmt.Errorf("gnss: unknown source %q", src)
	}
}

func (s *Service) startSerialLocked(ctx context.Context) error {
	device := strings.TrimSpace(s.cfg.Device)
	if device == "" {
		device = autoDetectDevice()
		if device == "" {
			return fmt.Errorf("gnss auto-detect failed: no /dev/ttyACM* or /dev/ttyUSB* found")
		}
	}
	baud := s.cfg.Baud
	if baud == 0 {
		baud = 9600
	}

	f, err := openSerial(device, baud)
	if err != nil {
		return fmt.Errorf("gnss open failed device=%s baud=%d: %w", device, baud, err)
	}
	s.closer = f

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { _ = f.Close() }()
		log.Printf("gnss enabled source=serial device=%s baud=%d", device, baud)
		s.runSentences(childCtx, f)
	}()
	return nil
}

// runSentences drives a Tracker from a line stream. Shared by the serial
// source and tests.
func (s *Service) runSentences(ctx context.Context, r io.Reader) {
	tr := NewTracker(s.cfg.StaleAfter)

	lines := make(chan string, 8)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r)
		// NMEA sentences are < 82 chars; allow headroom for chatter.
		scanner.Buffer(make([]byte, 0, 256), 4096)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		err := scanner.Err()
		if err == nil {
			err = io.EOF
		}
		readErr <- err
	}()

	// The staleness check runs on its own cadence so a silent receiver
	// still flips the liveness flag.
	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-readErr:
			log.Printf("gnss read stopped: %v", err)
			return
		case now := <-tick.C:
			if tr.MarkStaleIf(now.UTC()) {
				s.publish(tr.Snapshot())
			}
		case raw := <-lines:
			line := strings.TrimSpace(raw)
			if line == "" || !strings.HasPrefix(line, "$") {
				continue
			}
			sent, err := nmea.ParseSentence(line)
			if err != nil {
				s.m.ParseErrors.Inc()
				continue
			}
			changed, err := tr.Apply(time.Now().UTC(), sent)
			if err != nil {
				s.m.ParseErrors.Inc()
				continue
			}
			if changed {
				s.publish(tr.Snapshot())
			}
		}
	}
}

// publish stores the snapshot and pushes it on the updates channel without
// ever blocking the reader; on a full channel the oldest snapshot gives way.
func (s *Service) publish(fix Fix) {
	s.mu.Lock()
	s.last = fix
	s.ok = true
	s.mu.Unlock()
	s.m.FixUpdates.Inc()

	for {
		select {
		case s.updates <- fix:
			return
		default:
			select {
			case <-s.updates:
			default:
			}
		}
	}
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	closer := s.closer
	s.cancel = nil
	s.closer = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if closer != nil {
		_ = closer.Close()
	}
	s.wg.Wait()
	if cancel != nil {
		// The reader has stopped; downstream consumers drain what is
		// buffered and see end-of-stream.
		close(s.updates)
	}
}

func autoDetectDevice() string {
	candidates := []string{}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyACM%d", i))
	}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyUSB%d", i))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Package client maintains a viewer session against the feed endpoint:
// connect, decode, track the latest state, reconnect on loss.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"navfuse/internal/feed"
)

type Config struct {
	URL            string
	ReconnectDelay time.Duration // fixed, default 2s
	StaleAfter     time.Duration // default 3s
}

// State is the latest view of the feed. GNSS and IMU stay nil until the
// first message of that type arrives.
type State struct {
	Connected bool
	Stale     bool
	Centered  bool
	GNSS      *feed.GNSSWire
	IMU       *feed.IMUWire
	LastSeen  time.Time
}

// Session consumes the feed and keeps State current. A center callback, if
// set, fires once per connection: on the first usable position after each
// successful dial.
type Session struct {
	cfg      Config
	onCenter func(lat, lon float64)

	mu sync.Mutex
	st State
}

func New(cfg Config, onCenter func(lat, lon float64)) *Session {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 3 * time.Second
	}
	return &Session{cfg: cfg, onCenter: onCenter}
}

func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

// Run connects and re-connects until ctx is cancelled. Connection loss is
// routine, not an error: the session waits the fixed delay and dials again.
func (s *Session) Run(ctx context.Context) {
	for {
		if err := s.runOnce(ctx); err != nil && ctx.Err() == nil {
			log.Printf("feed disconnected: %v", err)
		}
		s.setConnected(false)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.ReconnectDelay):
		}
	}
}

func (s *Session) runOnce(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, s.cfg.URL, nil)
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()

	s.setConnected(true)
	log.Printf("feed connected: %s", s.cfg.URL)

	// Close the socket when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	// Staleness is judged on message arrival cadence, independent of
	// message content.
	stale := time.NewTicker(500 * time.Millisecond)
	defer stale.Stop()
	go func() {
		for {
			select {
			case <-done:
				return
			case <-stale.C:
				s.markStaleIf(time.Now())
			}
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := s.Handle(time.Now(), payload); err != nil {
			log.Printf("feed message: %v", err)
		}
	}
}

// Handle folds one wire message into the state.
func (s *Session) Handle(now time.Time, payload []byte) error {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	switch probe.Type {
	case "gnss":
		var w feed.GNSSWire
		if err := json.Unmarshal(payload, &w); err != nil {
			return fmt.Errorf("decode gnss: %w", err)
		}
		s.handleGNSS(now, &w)
	case "imu":
		var w feed.IMUWire
		if err := json.Unmarshal(payload, &w); err != nil {
			return fmt.Errorf("decode imu: %w", err)
		}
		s.handleIMU(now, &w)
	default:
		return fmt.Errorf("unknown message type %q", probe.Type)
	}
	return nil
}

func (s *Session) handleGNSS(now time.Time, w *feed.GNSSWire) {
	var center func(lat, lon float64)
	var lat, lon float64

	s.mu.Lock()
	s.st.GNSS = w
	s.st.LastSeen = now
	s.st.Stale = false
	// Center once, and only on a position worth centering on: a no-fix
	// report with null coordinates must never move the view.
	if !s.st.Centered && w.FixQuality > 0 && w.Lat != nil && w.Lon != nil {
		s.st.Centered = true
		center = s.onCenter
		lat, lon = *w.Lat, *w.Lon
	}
	s.mu.Unlock()

	if center != nil {
		center(lat, lon)
	}
}

func (s *Session) handleIMU(now time.Time, w *feed.IMUWire) {
	s.mu.Lock()
	s.st.IMU = w
	s.st.LastSeen = now
	s.st.Stale = false
	s.mu.Unlock()
}

func (s *Session) markStaleIf(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.st.LastSeen.IsZero() && now.Sub(s.st.LastSeen) > s.cfg.StaleAfter {
		s.st.Stale = true
	}
}

func (s *Session) setConnected(v bool) {
	s.mu.Lock()
	s.st.Connected = v
	if v {
		// The latch covers one connection: after a reconnect the first
		// usable position centers the view again.
		s.st.Centered = false
	}
	s.mu.Unlock()
}

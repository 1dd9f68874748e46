// Package hub fans pre-encoded feed messages out to subscribers.
//
// Each subscriber owns a bounded queue; a slow or stalled subscriber sheds
// its own backlog and, past a limit, gets evicted. Publish never blocks and
// never touches network I/O, so subscriber behavior cannot stall sampling.
package hub

import (
	"context"
	"errors"
	"log"
	"sync"

	"navfuse/internal/feed"
	"navfuse/internal/metrics"
)

var ErrClosed = errors.New("hub: subscriber closed")

type Config struct {
	QueueSize     int `yaml:"queue_size"`
	OverflowLimit int `yaml:"overflow_limit"`
}

type Hub struct {
	queueSize     int
	overflowLimit int
	m             *metrics.Set

	mu     sync.Mutex
	subs   map[uint64]*Subscriber
	nextID uint64
	closed bool
}

func New(cfg Config, m *metrics.Set) *Hub {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.OverflowLimit <= 0 {
		cfg.OverflowLimit = 256
	}
	if m == nil {
		m = metrics.New()
	}
	return &Hub{
		queueSize:     cfg.QueueSize,
		overflowLimit: cfg.OverflowLimit,
		m:             m,
		subs:          make(map[uint64]*Subscriber),
	}
}

// Subscriber is one outbound delivery queue. It is handed to exactly one
// consumer goroutine, which drains it with Next.
type Subscriber struct {
	h  *Hub
	id uint64

	mu     sync.Mutex
	queue  []feed.Message
	wake   chan struct{}
	drops  int // consecutive sheds since the queue last had room
	closed bool
}

func (h *Hub) Subscribe() *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	s := &Subscriber{
		h:    h,
		id:   h.nextID,
		wake: make(chan struct{}, 1),
	}
	if h.closed {
		s.closed = true
		return s
	}
	h.subs[s.id] = s
	h.m.Subscribers.Set(float64(len(h.subs)))
	return s
}

// Unsubscribe detaches and closes the subscriber. Safe to call twice.
func (h *Hub) Unsubscribe(s *Subscriber) {
	if s == nil {
		return
	}
	h.mu.Lock()
	if _, ok := h.subs[s.id]; ok {
		delete(h.subs, s.id)
		h.m.Subscribers.Set(float64(len(h.subs)))
	}
	h.mu.Unlock()
	s.close()
}

// Publish delivers one message to every subscriber, shedding per-subscriber
// backlog as needed. It never blocks.
func (h *Hub) Publish(m feed.Message) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	subs := make([]*Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		if evict := s.push(m, h.queueSize, h.overflowLimit, h.m); evict {
			log.Printf("hub: evicting subscriber %d after sustained overflow", s.id)
			h.m.EvictedSubs.Inc()
			h.Unsubscribe(s)
		}
	}
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// CloseAll closes every subscriber and rejects future publishes.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = make(map[uint64]*Subscriber)
	h.m.Subscribers.Set(0)
	h.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}

// push enqueues under the backpressure policy and reports whether the
// subscriber should be evicted.
//
// Policy: a full queue sheds its oldest inertial message first. Fix
// messages always get in, displacing the oldest entry outright when no
// inertial message remains to shed. A new inertial message arriving at a
// queue full of fixes is the one that gets dropped.
func (s *Subscriber) push(m feed.Message, queueSize, overflowLimit int, met *metrics.Set) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	if len(s.queue) < queueSize {
		s.drops = 0
		s.queue = append(s.queue, m)
		s.signal()
		return false
	}

	shed := false
	for i, q := range s.queue {
		if q.Kind == feed.KindIMU {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			shed = true
			break
		}
	}
	switch {
	case shed:
		s.queue = append(s.queue, m)
	case m.Kind == feed.KindGNSS:
		s.queue = append(s.queue[1:], m)
	default:
		// Queue is all fixes and the newcomer is inertial: drop it.
	}

	s.drops++
	met.DroppedMessages.Inc()
	s.signal()
	return s.drops > overflowLimit
}

func (s *Subscriber) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue = nil
	s.mu.Unlock()
	s.signal()
}

// Next blocks for the next queued message. It returns ErrClosed once the
// subscriber is detached and its queue drained, or the context error on
// cancellation.
func (s *Subscriber) Next(ctx context.Context) (feed.Message, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			m := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return m, nil
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return feed.Message{}, ErrClosed
		}

		select {
		case <-ctx.Done():
			return feed.Message{}, ctx.Err()
		case <-s.wake:
		}
	}
}

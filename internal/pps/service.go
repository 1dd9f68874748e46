// Package pps disciplines the pipeline's time axis.
//
// A GNSS receiver raises one sharp edge per UTC second on a GPIO line. The
// service turns those edges into correlator anchors; every other component
// stamps its events by asking the correlator to map a monotonic instant to
// UTC.
package pps

import (
	"context"
	"fmt"
	"log"
	"sync"

	"navfuse/internal/gpio"
)

type Config struct {
	Enable bool   `yaml:"enable"`
	Chip   string `yaml:"chip"`
	Line   int    `yaml:"line"`
}

// Service feeds PPS edges from a GPIO line into a Correlator.
type Service struct {
	cfg  Config
	corr *Correlator

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	watcher gpio.Watcher
}

func New(cfg Config, corr *Correlator) *Service {
	return &Service{cfg: cfg, corr: corr}
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("pps service is nil")
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

	chip := s.cfg.Chip
	if chip == "" {
		chip = "/dev/gpiochip0"
	}

	w, err := gpio.Watch(chip, s.cfg.Line, "navfuse-pps")
	if err != nil {
		return fmt.Errorf("pps: %w", err)
	}
	s.watcher = w

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Printf("pps enabled chip=%s line=%d", chip, s.cfg.Line)
		for {
			select {
			case <-childCtx.Done():
				return
			case e, ok := <-w.Events():
				if !ok {
					return
				}
				s.corr.Pulse(e)
			}
		}
	}()
	return nil
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	watcher := s.watcher
	s.cancel = nil
	s.watcher = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if watcher != nil {
		_ = watcher.Close()
	}
	s.wg.Wait()
}

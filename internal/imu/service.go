// Package imu acquires 6-axis inertial samples from an ISM330DHCX.
//
// Acquisition is edge triggered: the part's data-ready interrupt drives one
// SPI burst read per new sample, so the stream carries no duplicates and no
// polling jitter.
package imu

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"navfuse/internal/gpio"
	"navfuse/internal/metrics"
	"navfuse/internal/sensors/ism330dhcx"
	"navfuse/internal/spi"
)

type Config struct {
	Enable               bool          `yaml:"enable"`
	SPIDevice            string        `yaml:"spi_device"`
	SPISpeedHz           int           `yaml:"spi_speed_hz"`
	GPIOChip             string        `yaml:"gpio_chip"`
	GPIOLine             int           `yaml:"gpio_line"`
	ReadTimeout          time.Duration `yaml:"read_timeout"`
	MaxConsecutiveFaults int           `yaml:"max_consecutive_faults"`
	CalibrateSamples     int           `yaml:"calibrate_samples"`
}

type Service struct {
	cfg Config
	m   *metrics.Set

	clock Clock
	smp   *sampler

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	dev     *spi.Dev
	watcher gpio.Watcher
}

func New(cfg Config, clock Clock, m *metrics.Set) *Service {
	if m == nil {
		m = metrics.New()
	}
	return &Service{cfg: cfg, clock: clock, m: m}
}

// Samples yields stamped readings. The channel is valid after Start and
// closes on Close.
func (s *Service) Samples() <-chan Sample {
	if s == nil || s.smp == nil {
		return nil
	}
	return s.smp.out
}

// Start opens the SPI device and data-ready line and begins sampling.
// Hardware bring-up errors are returned to the caller; faults after a
// successful Start degrade the stream instead.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("imu service is nil")
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

	spiDev := s.cfg.SPIDevice
	if spiDev == "" {
		spiDev = "/dev/spidev0.0"
	}
	speed := s.cfg.SPISpeedHz
	if speed <= 0 {
		speed = 1_000_000
	}
	chip := s.cfg.GPIOChip
	if chip == "" {
		chip = "/dev/gpiochip0"
	}

	dev, err := spi.Open(spiDev, 0, speed)
	if err != nil {
		return fmt.Errorf("imu: open %s: %w", spiDev, err)
	}

	sensor, err := ism330dhcx.New(dev)
	if err != nil {
		_ = dev.Close()
		return fmt.Errorf("imu: %w", err)
	}

	// Arm edge detection before the measurement cycle starts: DRDY is
	// latched, and an assertion raised before the line request exists
	// would never be seen as a rising edge.
	w, err := gpio.Watch(chip, s.cfg.GPIOLine, "navfuse-imu-drdy")
	if err != nil {
		_ = dev.Close()
		return fmt.Errorf("imu: %w", err)
	}

	if err := sensor.Start(); err != nil {
		_ = w.Close()
		_ = dev.Close()
		return fmt.Errorf("imu: %w", err)
	}

	if n := s.cfg.CalibrateSamples; n > 0 {
		log.Printf("imu calibrating gyro over %d samples, hold still", n)
		if err := sensor.Calibrate(n); err != nil {
			_ = w.Close()
			_ = dev.Close()
			return fmt.Errorf("imu: %w", err)
		}
	}

	s.dev = dev
	s.watcher = w
	s.smp = newSampler(sensor, s.clock, s.m, s.cfg.ReadTimeout, s.cfg.MaxConsecutiveFaults)

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.smp.out)
		log.Printf("imu enabled spi=%s drdy=%s:%d", spiDev, chip, s.cfg.GPIOLine)
		for {
			select {
			case <-childCtx.Done():
				return
			case e, ok := <-w.Events():
				if !ok {
					return
				}
				s.smp.handleEdge(e, w.Events())
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
	dev := s.dev
	s.cancel = nil
	s.watcher = nil
	s.dev = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if watcher != nil {
		_ = watcher.Close()
	}
	s.wg.Wait()
	if dev != nil {
		_ = dev.Close()
	}
}

func (s *Service) Snapshot() Snapshot {
	if s == nil || s.smp == nil {
		return Snapshot{}
	}
	return s.smp.snapshot()
}

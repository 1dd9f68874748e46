package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"navfuse/internal/gnss"
	"navfuse/internal/hub"
	"navfuse/internal/imu"
	"navfuse/internal/pps"
)

type Config struct {
	Listen string `yaml:"listen"`

	GNSS gnss.Config `yaml:"gnss"`
	PPS  pps.Config  `yaml:"pps"`
	IMU  imu.Config  `yaml:"imu"`
	Hub  hub.Config  `yaml:"hub"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}

	if cfg.GNSS.Enable {
		switch cfg.GNSS.Source {
		case "", "serial":
			cfg.GNSS.Source = "serial"
			if cfg.GNSS.Baud == 0 {
				cfg.GNSS.Baud = 9600
			}
		case "gpsd":
			if cfg.GNSS.GPSDAddr == "" {
				cfg.GNSS.GPSDAddr = "127.0.0.1:2947"
			}
		default:
			return Config{}, fmt.Errorf("gnss.source must be 'serial' or 'gpsd'")
		}
		if cfg.GNSS.StaleAfter <= 0 {
			cfg.GNSS.StaleAfter = 3 * time.Second
		}
	}

	if cfg.PPS.Enable {
		if cfg.PPS.Chip == "" {
			cfg.PPS.Chip = "/dev/gpiochip0"
		}
		if cfg.PPS.Line < 0 {
			return Config{}, fmt.Errorf("pps.line must be >= 0")
		}
	}

	if cfg.IMU.Enable {
		if cfg.IMU.SPIDevice == "" {
			cfg.IMU.SPIDevice = "/dev/spidev0.0"
		}
		if cfg.IMU.SPISpeedHz <= 0 {
			cfg.IMU.SPISpeedHz = 1_000_000
		}
		if cfg.IMU.GPIOChip == "" {
			cfg.IMU.GPIOChip = "/dev/gpiochip0"
		}
		if cfg.IMU.GPIOLine < 0 {
			return Config{}, fmt.Errorf("imu.gpio_line must be >= 0")
		}
		if cfg.IMU.ReadTimeout <= 0 {
			cfg.IMU.ReadTimeout = 5 * time.Millisecond
		}
		if cfg.IMU.MaxConsecutiveFaults <= 0 {
			cfg.IMU.MaxConsecutiveFaults = 25
		}
		if cfg.IMU.CalibrateSamples < 0 {
			return Config{}, fmt.Errorf("imu.calibrate_samples must be >= 0")
		}
	}

	// Hub defaults apply whether or not sources are enabled.
	if cfg.Hub.QueueSize <= 0 {
		cfg.Hub.QueueSize = 64
	}
	if cfg.Hub.OverflowLimit <= 0 {
		cfg.Hub.OverflowLimit = 256
	}
	if cfg.Hub.OverflowLimit < cfg.Hub.QueueSize {
		return Config{}, fmt.Errorf("hub.overflow_limit must be >= hub.queue_size")
	}

	return cfg, nil
}

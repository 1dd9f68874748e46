package ism330dhcx

import (
	"fmt"
	"time"

	"navfuse/internal/spi"
)

var sleep = time.Sleep

// ISM330DHCX driver over SPI.
//
// The part is configured for 104 Hz output on both accel and gyro with the
// accel data-ready signal routed to INT1. Reads are driven by that line, not
// polled, so the host sees each output register update exactly once.
//
// Bring-up is two-phase: New resets and configures but leaves both sensors
// powered down; Start enables them. DRDY is latched, so the caller must have
// edge detection armed on INT1 before Start, or the first assertion is lost
// and the line never rises again.

const (
	regWhoAmI = 0x0F
	whoAmIVal = 0x6B

	regCtrl1XL  = 0x10
	regCtrl2G   = 0x11
	regCtrl3C   = 0x12
	regInt1Ctrl = 0x0D
	regOutXLG   = 0x22 // start of gyro X low; accel block follows

	bitSWReset = 0x01
	// BDU and IF_INC: block data update plus address auto-increment for
	// burst reads.
	valCtrl3C = 0x44

	// 104 Hz, accel +/-2g, gyro +/-2000 dps.
	valCtrl1XL  = 0x40
	valCtrl2G   = 0x4C
	valInt1Ctrl = 0x01 // INT1_DRDY_XL

	// Datasheet sensitivities for the configured full-scale ranges.
	accelMgPerLSB  = 0.061
	gyroMdpsPerLSB = 70.0
)

// Sample holds one 6-axis reading in engineering units.
type Sample struct {
	// Accel in mg.
	Ax, Ay, Az float64
	// Gyro in deg/s.
	Gx, Gy, Gz float64
}

type regIO interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

type Device struct {
	dev regIO

	// Gyro zero-rate offset in deg/s, subtracted from every read.
	biasGx, biasGy, biasGz float64
}

func New(dev *spi.Dev) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("ism330dhcx: dev is nil")
	}
	return newWithIO(dev)
}

func newWithIO(dev regIO) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("ism330dhcx: dev is nil")
	}
	d := &Device{dev: dev}

	who, err := d.dev.ReadRegU8(regWhoAmI)
	if err != nil {
		return nil, fmt.Errorf("ism330dhcx: whoami read failed: %w", err)
	}
	if who != whoAmIVal {
		return nil, fmt.Errorf("ism330dhcx: whoami=0x%02X want 0x%02X", who, whoAmIVal)
	}

	if err := d.init(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) init() error {
	if err := d.dev.WriteReg(regCtrl3C, bitSWReset); err != nil {
		return fmt.Errorf("ism330dhcx: reset failed: %w", err)
	}
	sleep(20 * time.Millisecond)

	if err := d.dev.WriteReg(regCtrl3C, valCtrl3C); err != nil {
		return fmt.Errorf("ism330dhcx: ctrl3_c failed: %w", err)
	}
	if err := d.dev.WriteReg(regInt1Ctrl, valInt1Ctrl); err != nil {
		return fmt.Errorf("ism330dhcx: int1_ctrl failed: %w", err)
	}
	if err := d.dev.WriteReg(regCtrl2G, valCtrl2G); err != nil {
		return fmt.Errorf("ism330dhcx: gyro config failed: %w", err)
	}
	return nil
}

// Start enables the accelerometer, which begins the measurement cycle and
// the data-ready cadence on INT1. Arm edge detection on INT1 first.
func (d *Device) Start() error {
	if d == nil {
		return fmt.Errorf("ism330dhcx: device is nil")
	}
	if err := d.dev.WriteReg(regCtrl1XL, valCtrl1XL); err != nil {
		return fmt.Errorf("ism330dhcx: accel enable failed: %w", err)
	}
	sleep(20 * time.Millisecond)
	return nil
}

// Read burst-reads one 6-axis sample. Gyro registers come first on this
// part, accel after.
func (d *Device) Read() (Sample, error) {
	if d == nil {
		return Sample{}, fmt.Errorf("ism330dhcx: device is nil")
	}

	buf := make([]byte, 12)
	if err := d.dev.ReadReg(regOutXLG, buf); err != nil {
		return Sample{}, fmt.Errorf("ism330dhcx: read sensors failed: %w", err)
	}

	gx := int16(buf[0]) | int16(buf[1])<<8
	gy := int16(buf[2]) | int16(buf[3])<<8
	gz := int16(buf[4]) | int16(buf[5])<<8
	ax := int16(buf[6]) | int16(buf[7])<<8
	ay := int16(buf[8]) | int16(buf[9])<<8
	az := int16(buf[10]) | int16(buf[11])<<8

	return Sample{
		Ax: float64(ax) * accelMgPerLSB,
		Ay: float64(ay) * accelMgPerLSB,
		Az: float64(az) * accelMgPerLSB,
		Gx: float64(gx)*gyroMdpsPerLSB/1000.0 - d.biasGx,
		Gy: float64(gy)*gyroMdpsPerLSB/1000.0 - d.biasGy,
		Gz: float64(gz)*gyroMdpsPerLSB/1000.0 - d.biasGz,
	}, nil
}

// Calibrate averages n samples with the device held still and records the
// result as the gyro zero-rate offset.
func (d *Device) Calibrate(n int) error {
	if n <= 0 {
		return nil
	}
	d.biasGx, d.biasGy, d.biasGz = 0, 0, 0

	var sx, sy, sz float64
	for i := 0; i < n; i++ {
		s, err := d.Read()
		if err != nil {
			return fmt.Errorf("ism330dhcx: calibrate: %w", err)
		}
		sx += s.Gx
		sy += s.Gy
		sz += s.Gz
		sleep(10 * time.Millisecond)
	}
	d.biasGx = sx / float64(n)
	d.biasGy = sy / float64(n)
	d.biasGz = sz / float64(n)
	return nil
}

//go:build linux

package spi

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Minimal Linux spidev implementation backed by /dev/spidev*.
//
// We use SPI_IOC_MESSAGE for full-duplex transfers, which register reads
// require: the command byte goes out while the response clocks in on the
// same transfer.

const (
	iocWrMode       = 0x40016b01 // SPI_IOC_WR_MODE
	iocWrBitsPer    = 0x40016b03 // SPI_IOC_WR_BITS_PER_WORD
	iocWrMaxSpeedHz = 0x40046b04 // SPI_IOC_WR_MAX_SPEED_HZ
	iocMessage1     = 0x40206b00 // SPI_IOC_MESSAGE(1)

	readBit = 0x80 // register address bit 7 set selects read access
)

// xfer mirrors struct spi_ioc_transfer from <linux/spi/spidev.h>.
type xfer struct {
	txBuf       uint64
	rxBuf       uint64
	len         uint32
	speedHz     uint32
	delayUsecs  uint16
	bitsPerWord uint8
	csChange    uint8
	txNbits     uint8
	rxNbits     uint8
	wordDelay   uint8
	pad         uint8
}

// Dev is an opened spidev chip select (e.g., /dev/spidev0.0).
//
// Dev is not safe for concurrent transfers; coordinate at a higher level if
// you need concurrency.
type Dev struct {
	f       *os.File
	path    string
	speedHz uint32
}

func Open(path string, mode byte, speedHz int) (*Dev, error) {
	path = filepath.Clean(path)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	d := &Dev{f: f, path: path, speedHz: uint32(speedHz)}
	if err := d.ioctl(iocWrMode, unsafe.Pointer(&mode)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("spi: set mode: %w", err)
	}
	bits := uint8(8)
	if err := d.ioctl(iocWrBitsPer, unsafe.Pointer(&bits)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("spi: set bits-per-word: %w", err)
	}
	if speedHz > 0 {
		hz := uint32(speedHz)
		if err := d.ioctl(iocWrMaxSpeedHz, unsafe.Pointer(&hz)); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("spi: set speed: %w", err)
		}
	}
	return d, nil
}

func (d *Dev) Close() error {
	if d == nil || d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

// Xfer runs one full-duplex transfer. tx and rx must be the same length.
func (d *Dev) Xfer(tx, rx []byte) error {
	if d == nil || d.f == nil {
		return errors.New("spi device is nil")
	}
	if len(tx) != len(rx) || len(tx) == 0 {
		return fmt.Errorf("spi: tx/rx length mismatch %d/%d", len(tx), len(rx))
	}

	x := xfer{
		txBuf:       uint64(uintptr(unsafe.Pointer(&tx[0]))),
		rxBuf:       uint64(uintptr(unsafe.Pointer(&rx[0]))),
		len:         uint32(len(tx)),
		speedHz:     d.speedHz,
		bitsPerWord: 8,
	}
	return d.ioctl(iocMessage1, unsafe.Pointer(&x))
}

// ReadReg burst-reads len(dst) bytes starting at reg. The device must have
// address auto-increment enabled for multi-byte reads.
func (d *Dev) ReadReg(reg byte, dst []byte) error {
	n := len(dst) + 1
	tx := make([]byte, n)
	rx := make([]byte, n)
	tx[0] = reg | readBit
	if err := d.Xfer(tx, rx); err != nil {
		return err
	}
	copy(dst, rx[1:])
	return nil
}

func (d *Dev) ReadRegU8(reg byte) (byte, error) {
	var b [1]byte
	if err := d.ReadReg(reg, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Dev) WriteReg(reg, value byte) error {
	tx := []byte{reg, value}
	rx := make([]byte, 2)
	return d.Xfer(tx, rx)
}

func (d *Dev) ioctl(req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

//go:build !linux

package spi

import "fmt"

type Dev struct{}

func Open(path string, mode byte, speedHz int) (*Dev, error) {
	return nil, fmt.Errorf("spi not supported on this platform")
}

func (d *Dev) Close() error { return nil }

func (d *Dev) Xfer(tx, rx []byte) error { return fmt.Errorf("spi not supported") }

func (d *Dev) ReadReg(reg byte, dst []byte) error { return fmt.Errorf("spi not supported") }

func (d *Dev) ReadRegU8(reg byte) (byte, error) { return 0, fmt.Errorf("spi not supported") }

func (d *Dev) WriteReg(reg, value byte) error { return fmt.Errorf("spi not supported") }

//go:build linux

package gnss

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// openSerial opens a tty in raw mode for NMEA reading. The receiver streams
// line-delimited ASCII, so every kind of kernel-side line editing, echo, and
// CR/LF translation is switched off and bytes arrive exactly as sent. Reads
// return as soon as one byte is available, with a one second ceiling so a
// silent port does not block the reader forever.
func openSerial(path string, baud int) (*os.File, error) {
	speed, err := termiosSpeed(baud)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	ok := false
	defer func() {
		if !ok {
			_ = unix.Close(fd)
		}
	}()

	tio, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, fmt.Errorf("tcgetattr %s: %w", path, err)
	}

	tio.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	tio.Oflag &^= unix.OPOST
	tio.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN

	// 8N1.
	tio.Cflag &^= unix.CSIZE | unix.PARENB
	tio.Cflag |= unix.CS8

	tio.Cflag &^= unix.CBAUD
	tio.Cflag |= speed
	tio.Ispeed = speed
	tio.Ospeed = speed

	// VTIME is in deciseconds.
	tio.Cc[unix.VMIN] = 1
	tio.Cc[unix.VTIME] = 10

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, tio); err != nil {
		return nil, fmt.Errorf("tcsetattr %s: %w", path, err)
	}

	f := os.NewFile(uintptr(fd), path)
	if f == nil {
		return nil, fmt.Errorf("wrap fd for %s", path)
	}
	ok = true
	return f, nil
}

// termiosSpeed maps a configured baud rate to its termios constant. Rates a
// GNSS receiver does not ship with are rejected rather than rounded.
func termiosSpeed(baud int) (uint32, error) {
	switch baud {
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	default:
		return 0, fmt.Errorf("unsupported baud rate %d", baud)
	}
}

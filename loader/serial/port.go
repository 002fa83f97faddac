//go:build linux

package serial

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/ardnew/eeprom/pkg"
)

var baudFlags = map[int]uint32{
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
}

// baudFlag maps a numeric rate to its termios speed constant.
func baudFlag(baud int) (uint32, error) {
	flag, ok := baudFlags[baud]
	if !ok {
		return 0, fmt.Errorf("baud rate %d: %w", baud, pkg.ErrNotSupported)
	}
	return flag, nil
}

// deciseconds converts a read timeout to a VTIME value. VTIME is a single
// byte, and zero would make reads return immediately.
func deciseconds(d time.Duration) uint8 {
	ds := (d + 99*time.Millisecond) / (100 * time.Millisecond)
	return uint8(min(max(ds, 1), 255))
}

// Port is an open serial device.
type Port struct {
	mutex  sync.Mutex
	path   string
	file   *os.File
	saved  *term.State
	closed bool
}

// Open opens and configures the serial device at path.
func Open(path string, baud int, timeout time.Duration) (*Port, error) {
	speed, err := baudFlag(baud)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ENODEV) {
			return nil, fmt.Errorf("open %s: %w", path, pkg.ErrNoDevice)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	saved, err := term.MakeRaw(fd)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("raw mode %s: %w", path, err)
	}

	if err := configure(fd, speed, deciseconds(timeout)); err != nil {
		_ = term.Restore(fd, saved)
		_ = unix.Close(fd)
		return nil, fmt.Errorf("configure %s: %w", path, err)
	}

	pkg.LogDebug(pkg.ComponentSerial, "opened port", "path", path, "baud", baud, "timeout", timeout)
	return &Port{
		path:  path,
		file:  os.NewFile(uintptr(fd), path),
		saved: saved,
	}, nil
}

func configure(fd int, speed uint32, vtime uint8) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}

	t.Cflag &^= unix.CBAUD | unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS
	t.Cflag |= speed | unix.CS8 | unix.CLOCAL | unix.CREAD
	t.Ispeed = speed
	t.Ospeed = speed
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = vtime

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return err
	}
	return unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIOFLUSH)
}

// Path returns the device path.
func (p *Port) Path() string {
	return p.path
}

// Read reads from the port. A timeout with no data returns pkg.ErrTimeout.
func (p *Port) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	n, err := p.file.Read(b)
	if n == 0 && err == io.EOF {
		return 0, fmt.Errorf("read %s: %w", p.path, pkg.ErrTimeout)
	}
	return n, err
}

// Write writes to the port.
func (p *Port) Write(b []byte) (int, error) {
	return p.file.Write(b)
}

// Close restores the original terminal settings and closes the port.
func (p *Port) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if err := term.Restore(int(p.file.Fd()), p.saved); err != nil {
		pkg.LogWarn(pkg.ComponentSerial, "restore terminal", "path", p.path, "err", err)
	}
	pkg.LogDebug(pkg.ComponentSerial, "closed port", "path", p.path)
	return p.file.Close()
}

//go:build linux

package linux

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ardnew/eeprom/eeprom/hal"
	"github.com/ardnew/eeprom/pkg"
)

// =============================================================================
// i2c-dev ABI (linux/i2c-dev.h, linux/i2c.h)
// =============================================================================

const (
	ioctlI2CFuncs = 0x0705 // I2C_FUNCS: query adapter functionality
	ioctlI2CRdwr  = 0x0707 // I2C_RDWR: combined transfer

	i2cMsgRead = 0x0001 // I2C_M_RD

	i2cFuncI2C = 0x00000001 // I2C_FUNC_I2C: plain i2c-level commands
)

// i2cMsg must match the kernel's struct i2c_msg layout.
type i2cMsg struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   *byte
}

// rdwrData must match the kernel's struct i2c_rdwr_ioctl_data layout.
type rdwrData struct {
	msgs  *i2cMsg
	nmsgs uint32
}

// DevfsI2CPath is the device node pattern for i2c adapters.
const DevfsI2CPath = "/dev/i2c-%d"

// Bus implements hal.Bus on a Linux i2c-dev adapter node.
//
// Each hal.Bus call is one I2C_RDWR ioctl, so an addressed read keeps its
// address phase and data phase in a single repeated-start transaction. Bus
// is safe for concurrent use.
type Bus struct {
	mutex  sync.Mutex
	path   string
	fd     int
	closed bool

	// staging for the address phase plus one page of data
	wbuf [2 + hal.PageSize]byte
}

// OpenAdapter opens /dev/i2c-n.
func OpenAdapter(n int) (*Bus, error) {
	return Open(fmt.Sprintf(DevfsI2CPath, n))
}

// Open opens the i2c-dev node at path and checks that the adapter can
// issue plain I2C transfers.
func Open(path string) (*Bus, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ENODEV) {
			return nil, fmt.Errorf("open %s: %w: %w", path, pkg.ErrNoDevice, err)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	var funcs uint
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), ioctlI2CFuncs, uintptr(unsafe.Pointer(&funcs))); errno != 0 {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("query %s functionality: %w", path, errno)
	}
	if funcs&i2cFuncI2C == 0 {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("%s lacks I2C_FUNC_I2C: %w", path, pkg.ErrNotSupported)
	}

	pkg.LogInfo(pkg.ComponentBus, "i2c adapter opened", "path", path, "funcs", fmt.Sprintf("%#x", funcs))
	return &Bus{path: path, fd: fd}, nil
}

// Path returns the device node the bus was opened on.
func (b *Bus) Path() string {
	return b.path
}

// Close releases the adapter.
func (b *Bus) Close() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return unix.Close(b.fd)
}

// Write implements hal.Bus.
func (b *Bus) Write(addr hal.Address, offset uint16, data []byte) error {
	if len(data) == 0 || len(data) > hal.PageSize {
		return fmt.Errorf("write %d bytes: %w", len(data), pkg.ErrTransferTooLarge)
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	n := putAddressPhase(b.wbuf[:], offset)
	n += copy(b.wbuf[n:], data)
	msgs := [1]i2cMsg{writeMsg(addr, b.wbuf[:n])}
	return b.transfer(msgs[:])
}

// Read implements hal.Bus.
func (b *Bus) Read(addr hal.Address, offset uint16, buf []byte) error {
	if len(buf) > hal.MaxReadLen {
		return fmt.Errorf("read %d bytes: %w", len(buf), pkg.ErrTransferTooLarge)
	}
	if len(buf) == 0 {
		return nil
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	n := putAddressPhase(b.wbuf[:], offset)
	msgs := [2]i2cMsg{
		writeMsg(addr, b.wbuf[:n]),
		readMsg(addr, buf),
	}
	return b.transfer(msgs[:])
}

// ReadCurrent implements hal.Bus.
func (b *Bus) ReadCurrent(addr hal.Address, buf []byte) error {
	if len(buf) > hal.MaxReadLen {
		return fmt.Errorf("read %d bytes: %w", len(buf), pkg.ErrTransferTooLarge)
	}
	if len(buf) == 0 {
		return nil
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	msgs := [1]i2cMsg{readMsg(addr, buf)}
	return b.transfer(msgs[:])
}

// AckPoll implements hal.Bus with a zero-length write, which addresses the
// device without touching its address pointer. The adapter must support
// zero-length messages.
func (b *Bus) AckPoll(addr hal.Address) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	msgs := [1]i2cMsg{writeMsg(addr, nil)}
	return b.transfer(msgs[:]) == nil
}

func (b *Bus) transfer(msgs []i2cMsg) error {
	if b.closed {
		return fmt.Errorf("%s: %w", b.path, pkg.ErrClosed)
	}
	data := rdwrData{
		msgs:  &msgs[0],
		nmsgs: uint32(len(msgs)),
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(b.fd), ioctlI2CRdwr, uintptr(unsafe.Pointer(&data)))
	if errno != 0 {
		return classify(msgs[0].addr, errno)
	}
	return nil
}

// putAddressPhase stores the big-endian in-block offset at the start of buf.
func putAddressPhase(buf []byte, offset uint16) int {
	buf[0] = byte(offset >> 8)
	buf[1] = byte(offset)
	return 2
}

func writeMsg(addr hal.Address, data []byte) i2cMsg {
	m := i2cMsg{addr: uint16(addr), len: uint16(len(data))}
	if len(data) > 0 {
		m.buf = &data[0]
	}
	return m
}

func readMsg(addr hal.Address, buf []byte) i2cMsg {
	m := i2cMsg{addr: uint16(addr), flags: i2cMsgRead, len: uint16(len(buf))}
	if len(buf) > 0 {
		m.buf = &buf[0]
	}
	return m
}

// classify maps an i2c-dev errno to the driver's error taxonomy. Adapters
// report a missing acknowledge as ENXIO or EREMOTEIO.
func classify(addr uint16, errno unix.Errno) error {
	switch errno {
	case unix.ENXIO, unix.EREMOTEIO:
		return fmt.Errorf("address %#02x: %w: %w", addr, pkg.ErrNAK, errno)
	case unix.ETIMEDOUT:
		return fmt.Errorf("address %#02x: %w: %w: %w", addr, pkg.ErrBus, pkg.ErrTimeout, errno)
	default:
		return fmt.Errorf("address %#02x: %w: %w", addr, pkg.ErrBus, errno)
	}
}

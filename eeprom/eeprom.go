package eeprom

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ardnew/eeprom/eeprom/hal"
	"github.com/ardnew/eeprom/pkg"
)

// Device geometry.
const (
	Capacity  = hal.Capacity
	BlockSize = hal.BlockSize
	PageSize  = hal.PageSize
)

// Default tuning values.
const (
	// DefaultPollInterval is the pause between acknowledge probes while a
	// write cycle is in progress.
	DefaultPollInterval = 20 * time.Microsecond

	// DefaultWriteProtectThreshold is the write completion time below which
	// a write is assumed to have been rejected. A real write cycle takes
	// 3-5 ms; a write-protected device acknowledges at once.
	DefaultWriteProtectThreshold = 500 * time.Microsecond

	// DefaultWriteTimeout bounds completion polling. The datasheet maximum
	// write cycle is 5 ms.
	DefaultWriteTimeout = 25 * time.Millisecond

	// DefaultReadChunkSize is the size of each sub-read of a long read. It
	// stays below hal.MaxReadLen to leave transport headroom.
	DefaultReadChunkSize = 240
)

// Config holds driver settings.
type Config struct {
	// A0 and A1 are the chip-select strap levels of the device.
	A0, A1 bool

	// PollInterval is the pause between acknowledge probes. Zero selects
	// DefaultPollInterval.
	PollInterval time.Duration

	// WriteProtectThreshold is the completion time below which a write is
	// reported as ErrWriteProtected. This is a timing heuristic and can
	// misfire on a slow or jittery scheduler. Zero disables detection.
	WriteProtectThreshold time.Duration

	// WriteTimeout bounds completion polling after each page write. Zero
	// polls until the device answers, however long that takes.
	WriteTimeout time.Duration

	// ReadChunkSize is the sub-read size for reads longer than
	// hal.MaxReadLen. Zero selects DefaultReadChunkSize.
	ReadChunkSize int

	// Clock times completion polling. Nil selects the wall clock.
	Clock hal.Clock
}

// DefaultConfig returns the settings for a device with both straps low.
func DefaultConfig() Config {
	return Config{
		PollInterval:          DefaultPollInterval,
		WriteProtectThreshold: DefaultWriteProtectThreshold,
		WriteTimeout:          DefaultWriteTimeout,
		ReadChunkSize:         DefaultReadChunkSize,
		Clock:                 hal.SystemClock{},
	}
}

// Driver presents a 24XX1025 as one flat 131072-byte address space.
//
// A Driver keeps a cursor for the io-style methods and a shadow of the
// device's internal address pointer. All methods are safe for concurrent
// use; each call holds the driver for its complete sequence of bus
// transactions.
type Driver struct {
	bus    hal.Bus
	config Config

	mutex  sync.Mutex
	cursor uint32
	shadow Shadow
}

// New creates a driver for the device on bus.
func New(bus hal.Bus, config Config) (*Driver, error) {
	if bus == nil {
		return nil, fmt.Errorf("nil bus: %w", pkg.ErrInvalidParameter)
	}
	if config.PollInterval == 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.ReadChunkSize == 0 {
		config.ReadChunkSize = DefaultReadChunkSize
	}
	if config.Clock == nil {
		config.Clock = hal.SystemClock{}
	}
	if config.ReadChunkSize < 1 || config.ReadChunkSize >= hal.MaxReadLen {
		return nil, fmt.Errorf("read chunk size %d: %w", config.ReadChunkSize, pkg.ErrInvalidParameter)
	}
	if config.PollInterval < 0 || config.WriteProtectThreshold < 0 || config.WriteTimeout < 0 {
		return nil, fmt.Errorf("negative duration: %w", pkg.ErrInvalidParameter)
	}
	return &Driver{bus: bus, config: config}, nil
}

// Config returns the driver settings in effect.
func (d *Driver) Config() Config {
	return d.config
}

// Ping reports whether the device acknowledges on block 0.
func (d *Driver) Ping() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if !d.bus.AckPoll(d.deviceAddress(0)) {
		d.shadow.invalidate()
		return fmt.Errorf("address %#02x: %w", d.deviceAddress(0), pkg.ErrNoDevice)
	}
	return nil
}

// Position returns the cursor.
func (d *Driver) Position() uint32 {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.cursor
}

// SetPosition moves the cursor to pos. It fails with pkg.ErrOutOfRange
// unless pos < Capacity, leaving the cursor unchanged.
//
// The shadow is not touched: it tracks the device, not the caller. The next
// single-byte read compares the two and re-addresses if they differ.
func (d *Driver) SetPosition(pos uint32) error {
	if pos >= Capacity {
		return fmt.Errorf("position %#x: %w", pos, pkg.ErrOutOfRange)
	}
	d.mutex.Lock()
	d.cursor = pos
	d.mutex.Unlock()
	return nil
}

// Seek implements io.Seeker over the device address space.
func (d *Driver) Seek(offset int64, whence int) (int64, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(d.cursor)
	case io.SeekEnd:
		base = Capacity
	default:
		return int64(d.cursor), fmt.Errorf("whence %d: %w", whence, pkg.ErrInvalidParameter)
	}
	pos := base + offset
	if pos < 0 || pos >= Capacity {
		return int64(d.cursor), fmt.Errorf("seek to %d: %w", pos, pkg.ErrOutOfRange)
	}
	d.cursor = uint32(pos)
	return pos, nil
}

// Shadow returns the driver's view of the device's internal address pointer.
func (d *Driver) Shadow() Shadow {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.shadow
}

// BlockOf returns the block (0 or 1) holding addr.
func BlockOf(addr uint32) uint8 {
	return uint8(addr>>16) & 1
}

// OffsetOf returns the in-block offset of addr.
func OffsetOf(addr uint32) uint16 {
	return uint16(addr & 0xFFFF)
}

// FullAddr rebuilds a device address from block and offset.
func FullAddr(block uint8, offset uint16) uint32 {
	return uint32(block&1)<<16 | uint32(offset)
}

func (d *Driver) deviceAddress(block uint8) hal.Address {
	return hal.DeviceAddress(block, d.config.A0, d.config.A1)
}

// advance moves the cursor n bytes, wrapping at the device end. A wrap
// leaves the device pointer in an undocumented state.
func (d *Driver) advance(n int) {
	next := d.cursor + uint32(n)
	if next >= Capacity {
		next %= Capacity
		d.shadow.invalidate()
	}
	d.cursor = next
}

// clamp limits a transfer starting at addr so it ends at the device end.
func clamp(addr uint32, n int) int {
	return int(min(uint32(n), Capacity-addr))
}

// busError tags a transport failure as pkg.ErrBus.
func busError(op string, addr uint32, n int, err error) error {
	pkg.LogDebug(pkg.ComponentEEPROM, op+" failed", "addr", addr, "len", n, "err", err)
	if errors.Is(err, pkg.ErrBus) {
		return fmt.Errorf("%s %#05x+%d: %w", op, addr, n, err)
	}
	return fmt.Errorf("%s %#05x+%d: %w: %w", op, addr, n, pkg.ErrBus, err)
}

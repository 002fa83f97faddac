package hal

import "time"

// Transport and device limits for the 24XX1025 family.
const (
	// MaxReadLen is the largest single addressed or current-address read the
	// transport accepts.
	MaxReadLen = 255

	// PageSize is the write page of the device. A write transaction never
	// crosses a page.
	PageSize = 128

	// BlockSize is the span of one 16-bit addressable block.
	BlockSize = 1 << 16

	// Capacity is the total device size (two blocks).
	Capacity = 2 * BlockSize
)

// baseAddress is the fixed 1010 control code, 7-bit form.
const baseAddress = 0x50

// Address is a 7-bit bus device address.
type Address uint8

// DeviceAddress encodes the 7-bit bus address selecting block (0 or 1) on a
// chip strapped with the given A0 and A1 pins.
func DeviceAddress(block uint8, a0, a1 bool) Address {
	addr := Address(baseAddress) | Address(block&1)<<2
	if a1 {
		addr |= 1 << 1
	}
	if a0 {
		addr |= 1 << 0
	}
	return addr
}

// Block returns the block-select bit carried by a device address.
func (a Address) Block() uint8 {
	return uint8(a>>2) & 1
}

// Chip returns the address with the block-select bit cleared.
func (a Address) Chip() Address {
	return a &^ (1 << 2)
}

// Bus is the transport collaborator the driver is layered on.
//
// Implementations perform complete bus transactions; each call either
// finishes or reports failure. A Bus need not be safe for concurrent use
// unless its documentation says so.
type Bus interface {
	// Write addresses the device at offset and writes data in one
	// transaction. len(data) is at most PageSize and the range never
	// crosses a page.
	Write(addr Address, offset uint16, data []byte) error

	// Read addresses the device at offset and reads len(buf) bytes,
	// at most MaxReadLen, using a repeated start.
	Read(addr Address, offset uint16, buf []byte) error

	// ReadCurrent reads len(buf) bytes starting at the device's own
	// internal address pointer without sending an address.
	ReadCurrent(addr Address, buf []byte) error

	// AckPoll probes whether the device acknowledges its address.
	// It must not block waiting for the device.
	AckPoll(addr Address) bool
}

// Clock supplies wall time to completion polling.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep pauses the calling goroutine for at least d.
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

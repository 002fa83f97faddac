package eeprom

import "fmt"

// ShadowState says whether the device's internal pointer is known.
type ShadowState uint8

// Shadow states.
const (
	// ShadowUnknown means the next access must send an explicit address.
	ShadowUnknown ShadowState = iota
	// ShadowKnown means the device pointer is at Shadow.Addr.
	ShadowKnown
)

// Shadow mirrors the device's auto-incrementing address pointer.
//
// The device pointer counts within a 64 KiB block and wraps to the start of
// the same block, so any transfer reaching a block end leaves the shadow
// unknown. Addr is meaningful only when State is ShadowKnown.
type Shadow struct {
	State ShadowState
	Addr  uint32
}

// Known reports whether the pointer is known.
func (s Shadow) Known() bool {
	return s.State == ShadowKnown
}

// String returns the pointer as a hex address or "unknown".
func (s Shadow) String() string {
	if !s.Known() {
		return "unknown"
	}
	return fmt.Sprintf("%#05x", s.Addr)
}

// at reports whether the device pointer is known to be at addr.
func (s Shadow) at(addr uint32) bool {
	return s.State == ShadowKnown && s.Addr == addr
}

func (s *Shadow) invalidate() {
	*s = Shadow{}
}

// afterRead tracks a sequential read of n bytes from (block, offset).
func (s *Shadow) afterRead(block uint8, offset uint16, n int) {
	end := uint32(offset) + uint32(n)
	if end >= BlockSize {
		s.invalidate()
		return
	}
	*s = Shadow{State: ShadowKnown, Addr: FullAddr(block, uint16(end))}
}

// afterWrite tracks a page write of n bytes at (block, offset). A write
// ending on a page boundary leaves the pointer rolled back to the page
// start.
func (s *Shadow) afterWrite(block uint8, offset uint16, n int) {
	end := uint32(offset) + uint32(n)
	if end%PageSize == 0 {
		s.invalidate()
		return
	}
	*s = Shadow{State: ShadowKnown, Addr: FullAddr(block, uint16(end))}
}

// Package eeprom drives a Microchip 24XX1025 serial EEPROM: 128 KiB in two
// 64 KiB blocks with 128-byte write pages, reached over an addressable
// serial bus through [hal.Bus].
//
// The driver hides three independent limits behind one flat address space
// from 0 to [Capacity]:
//
//   - the transport moves at most 255 bytes per read transaction,
//   - the device writes at most one page per transaction and rolls over
//     inside the page instead of advancing,
//   - the device's own address pointer wraps at the end of each block.
//
// # Positioning
//
// A [Driver] keeps a cursor used by [Driver.Read], [Driver.Write],
// [Driver.ReadByte], [Driver.WriteByte], and the typed accessors. Every
// successful transfer advances it, including [Driver.ReadAddr] and
// [Driver.WriteAddr]. It also keeps a [Shadow] of the device pointer so that
// sequential single-byte reads skip the address phase. Any bus error,
// ambiguous device state, or block wrap drops the shadow to unknown.
//
// # Partial Transfers
//
// Multi-chunk operations stop at the first failed chunk and return the
// bytes completed so far with an error naming the cause:
//
//	n, err := ee.WriteAddr(0x1F000, image)
//	switch {
//	case errors.Is(err, pkg.ErrWriteProtected):
//	    // WP is asserted, or the write cycle finished suspiciously fast
//	case errors.Is(err, pkg.ErrBus):
//	    // retry from 0x1F000 + n
//	}
//
// # Write Completion
//
// After each page write the driver polls the device for acknowledge. A
// device with write protect asserted acknowledges immediately, so a write
// that completes faster than Config.WriteProtectThreshold is reported as
// [pkg.ErrWriteProtected]. The classification is a heuristic.
package eeprom

// Package hal defines the bus transport contract for the eeprom driver.
//
// The driver implements all paging, chunking, and position tracking. The
// transport only moves bytes: addressed writes, addressed reads, reads from
// the device's current internal address, and a non-blocking acknowledge
// probe used for write-completion polling.
//
// # Device Addressing
//
// A 24XX1025 answers on two 7-bit addresses, one per 64 KiB block:
//
//	0 1 0 1 B A1 A0
//	        │  └──┴── chip-select straps, fixed by board wiring
//	        └──────── block select
//
// [DeviceAddress] builds that byte; the 16-bit in-block offset travels in the
// data phase.
//
// # Implementations
//
// An in-memory device model for testing is available in
// [github.com/ardnew/eeprom/eeprom/hal/sim]. The Linux i2c-dev transport is in
// [github.com/ardnew/eeprom/eeprom/hal/linux].
package hal

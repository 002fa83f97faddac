// Package sim implements an in-memory 24XX1025 serial EEPROM as a hal.Bus.
//
// The model is faithful to the behaviors the driver has to work around:
//
//   - Writes longer than their page roll over to the start of the same page
//   - Sequential reads wrap at the end of a 64 KiB block, not the device
//   - The device NAKs everything during its write cycle
//   - With write protect asserted, writes are acknowledged and discarded,
//     and the device is ready again immediately
//
// Every transaction is logged so tests can assert how requests were split,
// and a [Fault] hook injects bus failures.
//
// # Usage
//
//	clock := sim.NewFakeClock()
//	dev := sim.New(false, false, clock)
//	dev.SetFault(sim.FailOn(sim.OpRead, 2))
//
// Pair the device with a [FakeClock] so that write-completion polling
// advances simulated time instead of sleeping.
package sim

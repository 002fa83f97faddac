// Package pkg provides shared utilities for the eeprom driver, its bus
// transports, and the serial loader.
//
// This package contains:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel errors for driver and transport failures
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with a component attribute:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogDebug(pkg.ComponentBus, "read", "addr", 0x50, "len", 16)
//
// # Errors
//
// Byte operations return the count completed so far together with an error
// that says why the count is short:
//
//	n, err := ee.WriteAddr(0x100, data)
//	if errors.Is(err, pkg.ErrWriteProtected) {
//	    // resume or give up at 0x100 + n
//	}
package pkg

//go:build linux

// Command eepromctl reads, writes and loads a 24XX1025 EEPROM.
//
// Usage:
//
//	eepromctl [-v] [-log-format text|json] <command> [flags]
//
// Commands:
//
//   - dump: hex dump a range read over i2c-dev
//   - write: write a file (or stdin) to the device over i2c-dev
//   - send: stream a file to a microcontroller running the serial loader
//   - receive: act as the loader target, storing into a device on i2c-dev
//   - selftest: run a loader session into a simulated device and verify it
//
// Every command accepts -h for its own flags.
package main

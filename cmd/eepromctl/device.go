//go:build linux

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"golang.org/x/term"

	"github.com/ardnew/eeprom/eeprom"
	"github.com/ardnew/eeprom/eeprom/hal/linux"
	"github.com/ardnew/eeprom/pkg"
)

// deviceFlags selects and tunes an EEPROM on an i2c-dev adapter.
type deviceFlags struct {
	adapter     int
	a0, a1      bool
	wpThreshold time.Duration
	timeout     time.Duration
	chunk       int
}

func (f *deviceFlags) register(fs *flag.FlagSet) {
	fs.IntVar(&f.adapter, "bus", 1, "i2c-dev adapter number (/dev/i2c-N)")
	fs.BoolVar(&f.a0, "a0", false, "A0 strap is high")
	fs.BoolVar(&f.a1, "a1", false, "A1 strap is high")
	fs.DurationVar(&f.wpThreshold, "wp-threshold", eeprom.DefaultWriteProtectThreshold,
		"write completion time below which the device is reported write protected (0 disables)")
	fs.DurationVar(&f.timeout, "write-timeout", eeprom.DefaultWriteTimeout,
		"write completion timeout (0 waits forever)")
	fs.IntVar(&f.chunk, "read-chunk", eeprom.DefaultReadChunkSize, "sub-read size for long reads")
}

func (f *deviceFlags) config() eeprom.Config {
	config := eeprom.DefaultConfig()
	config.A0 = f.a0
	config.A1 = f.a1
	config.WriteProtectThreshold = f.wpThreshold
	config.WriteTimeout = f.timeout
	config.ReadChunkSize = f.chunk
	return config
}

// open opens the adapter and probes the device. The returned closer
// releases the adapter.
func (f *deviceFlags) open() (*eeprom.Driver, io.Closer, error) {
	bus, err := linux.OpenAdapter(f.adapter)
	if err != nil {
		return nil, nil, err
	}
	ee, err := eeprom.New(bus, f.config())
	if err != nil {
		_ = bus.Close()
		return nil, nil, err
	}
	if err := ee.Ping(); err != nil {
		_ = bus.Close()
		return nil, nil, err
	}
	pkg.LogDebug(pkg.ComponentCLI, "device ready", "bus", bus.Path(), "a0", f.a0, "a1", f.a1)
	return ee, bus, nil
}

// parseAddr accepts decimal, 0x hex, or 0 octal addresses within the device.
func parseAddr(s string) (uint32, error) {
	addr, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("address %q: %w", s, pkg.ErrInvalidParameter)
	}
	if addr >= eeprom.Capacity {
		return 0, fmt.Errorf("address %#x: %w", addr, pkg.ErrOutOfRange)
	}
	return uint32(addr), nil
}

// readInput reads a named file, or stdin for "" and "-".
func readInput(name string) ([]byte, error) {
	if name == "" || name == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(name)
}

// progress returns a callback that redraws a counter on stderr, or nil when
// stderr is not a terminal.
func progress(label string) func(done, total int) {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}
	return func(done, total int) {
		fmt.Fprintf(os.Stderr, "\r%s %d/%d bytes", label, done, total)
		if done == total {
			fmt.Fprintln(os.Stderr)
		}
	}
}

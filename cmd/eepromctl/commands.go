//go:build linux

package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ardnew/eeprom/eeprom"
	"github.com/ardnew/eeprom/loader"
	"github.com/ardnew/eeprom/loader/serial"
	"github.com/ardnew/eeprom/pkg"
)

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}

func runDump(ctx context.Context, args []string) error {
	var dev deviceFlags
	fs := newFlagSet("dump")
	dev.register(fs)
	addrFlag := fs.String("addr", "0", "start address")
	count := fs.Int("n", 256, "number of bytes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *count < 0 {
		return fmt.Errorf("byte count %d: %w", *count, pkg.ErrInvalidParameter)
	}
	addr, err := parseAddr(*addrFlag)
	if err != nil {
		return err
	}
	ee, closer, err := dev.open()
	if err != nil {
		return err
	}
	defer closer.Close()

	buf := make([]byte, *count)
	n, err := ee.ReadAddr(addr, buf)
	if n > 0 {
		if werr := dumpTo(os.Stdout, addr, buf[:n]); werr != nil {
			return werr
		}
	}
	if err != nil {
		return err
	}
	if n < len(buf) {
		pkg.LogWarn(pkg.ComponentCLI, "dump stopped at end of device", "bytes", n)
	}
	return ctx.Err()
}

// dumpTo writes a hex dump labeled with device addresses.
func dumpTo(w io.Writer, base uint32, data []byte) error {
	for len(data) > 0 {
		line := min(len(data), 16)
		if _, err := fmt.Fprintf(w, "%05x  %-48s |%s|\n", base, spaced(data[:line]), printable(data[:line])); err != nil {
			return err
		}
		base += uint32(line)
		data = data[line:]
	}
	return nil
}

func spaced(b []byte) string {
	s := make([]byte, 0, 3*len(b))
	for i := range b {
		if i > 0 {
			s = append(s, ' ')
		}
		s = hex.AppendEncode(s, b[i:i+1])
	}
	return string(s)
}

func printable(b []byte) string {
	s := make([]byte, len(b))
	for i, c := range b {
		if c < 0x20 || c > 0x7e {
			c = '.'
		}
		s[i] = c
	}
	return string(s)
}

func runWrite(ctx context.Context, args []string) error {
	var dev deviceFlags
	fs := newFlagSet("write")
	dev.register(fs)
	addrFlag := fs.String("addr", "0", "start address")
	in := fs.String("in", "-", "input file (- for stdin)")
	verify := fs.Bool("verify", true, "read back and compare")
	if err := fs.Parse(args); err != nil {
		return err
	}

	addr, err := parseAddr(*addrFlag)
	if err != nil {
		return err
	}
	data, err := readInput(*in)
	if err != nil {
		return err
	}
	if int(addr)+len(data) > eeprom.Capacity {
		return fmt.Errorf("%d bytes at %#x: %w", len(data), addr, pkg.ErrOutOfRange)
	}

	ee, closer, err := dev.open()
	if err != nil {
		return err
	}
	defer closer.Close()

	show := progress("wrote")
	for done := 0; done < len(data); {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(len(data)-done, eeprom.PageSize)
		m, err := ee.WriteAddr(addr+uint32(done), data[done:done+n])
		done += m
		if err != nil {
			return fmt.Errorf("after %d bytes: %w", done, err)
		}
		if show != nil {
			show(done, len(data))
		}
	}
	pkg.LogInfo(pkg.ComponentCLI, "write complete", "addr", addr, "bytes", len(data))

	if *verify {
		return verifyRange(ee, addr, data)
	}
	return nil
}

// verifyRange reads back a range and reports the first mismatch.
func verifyRange(ee *eeprom.Driver, addr uint32, want []byte) error {
	got := make([]byte, len(want))
	n, err := ee.ReadAddr(addr, got)
	if err != nil {
		return fmt.Errorf("verify read: %w", err)
	}
	for i := range n {
		if got[i] != want[i] {
			return fmt.Errorf("verify: mismatch at %#05x: got %#02x, want %#02x: %w",
				addr+uint32(i), got[i], want[i], pkg.ErrProtocol)
		}
	}
	pkg.LogInfo(pkg.ComponentCLI, "verify passed", "bytes", n)
	return nil
}

// serialFlags selects and configures a serial port.
type serialFlags struct {
	port    string
	baud    int
	timeout time.Duration
}

func (f *serialFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.port, "port", "/dev/ttyACM0", "serial device")
	fs.IntVar(&f.baud, "baud", 115200, "baud rate")
	fs.DurationVar(&f.timeout, "timeout", 2*time.Second, "per-read timeout")
}

func (f *serialFlags) open() (*serial.Port, error) {
	return serial.Open(f.port, f.baud, f.timeout)
}

func runSend(ctx context.Context, args []string) error {
	var ser serialFlags
	fs := newFlagSet("send")
	ser.register(fs)
	in := fs.String("in", "-", "input file (- for stdin)")
	chunk := fs.Int("chunk", loader.MaxChunk, "bytes per chunk")
	resetWait := fs.Duration("reset-wait", 3*time.Second, "wait after opening for the target to reset")
	if err := fs.Parse(args); err != nil {
		return err
	}

	data, err := readInput(*in)
	if err != nil {
		return err
	}
	port, err := ser.open()
	if err != nil {
		return err
	}
	defer port.Close()

	// Opening the port resets many boards.
	if *resetWait > 0 {
		pkg.LogInfo(pkg.ComponentCLI, "waiting for target", "delay", *resetWait)
		select {
		case <-time.After(*resetWait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s := loader.NewSender(port)
	if err := s.SetChunkSize(*chunk); err != nil {
		return err
	}
	s.SetProgress(progress("sent"))
	n, err := s.Send(ctx, data)
	if err != nil {
		return fmt.Errorf("after %d bytes: %w", n, err)
	}
	return nil
}

func runReceive(ctx context.Context, args []string) error {
	var (
		ser serialFlags
		dev deviceFlags
	)
	fs := newFlagSet("receive")
	ser.register(fs)
	dev.register(fs)
	addrFlag := fs.String("addr", "0", "load address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	addr, err := parseAddr(*addrFlag)
	if err != nil {
		return err
	}
	ee, closer, err := dev.open()
	if err != nil {
		return err
	}
	defer closer.Close()
	if err := ee.SetPosition(addr); err != nil {
		return err
	}

	port, err := ser.open()
	if err != nil {
		return err
	}
	defer port.Close()

	r := loader.NewReceiver(port, ee)
	r.SetLimit(eeprom.Capacity - int(addr))
	n, err := r.Receive(ctx)
	pkg.LogInfo(pkg.ComponentCLI, "stored", "addr", addr, "bytes", n, "position", ee.Position())
	return err
}

package eeprom

import (
	"fmt"
	"io"
	"time"

	"github.com/ardnew/eeprom/eeprom/hal"
	"github.com/ardnew/eeprom/pkg"
)

// WriteAddr writes p starting at addr. The request is clamped to end at the
// device end; the clamped count is not an error.
//
// Writes go out in sub-writes of at most one page's worth of bytes, each
// split further at page and block boundaries. The returned count is the
// number of bytes committed before the first failed page, so a caller can
// resume at addr+n.
//
// The cursor is advanced by n from its current value, not moved to addr+n.
// With the cursor at 3, WriteAddr(Capacity-3, p[:3]) leaves it at 6.
//
// Every page write costs the page one erase/write cycle, however few bytes
// it carries. Batch small writes where possible.
func (d *Driver) WriteAddr(addr uint32, p []byte) (int, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.write(addr, p)
}

// Write implements io.Writer at the cursor. It returns io.ErrShortWrite
// when the device end shortens the write.
func (d *Driver) Write(p []byte) (int, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	n, err := d.write(d.cursor, p)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	return n, err
}

// WriteByte writes c at the cursor. It uses a full page write cycle.
func (d *Driver) WriteByte(c byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	_, err := d.writeChunk(d.cursor, []byte{c})
	return err
}

func (d *Driver) write(addr uint32, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if addr >= Capacity {
		return 0, fmt.Errorf("write at %#x: %w", addr, pkg.ErrOutOfRange)
	}
	p = p[:clamp(addr, len(p))]
	if len(p) <= PageSize {
		return d.writeChunk(addr, p)
	}

	total := 0
	for total < len(p) {
		want := min(PageSize, len(p)-total)
		n, err := d.writeChunk(addr+uint32(total), p[total:total+want])
		total += n
		if err != nil {
			return total, err
		}
		if n != want {
			return total, fmt.Errorf("write at %#x: %w", addr+uint32(total), pkg.ErrShortTransfer)
		}
	}
	return total, nil
}

// writeChunk writes at most PageSize bytes, clamped to the device end. The
// device rolls a write over within its page, so a chunk straddling a page
// (or block) boundary is split in two.
func (d *Driver) writeChunk(addr uint32, p []byte) (int, error) {
	if len(p) == 0 || len(p) > PageSize || addr >= Capacity {
		return 0, nil
	}
	p = p[:clamp(addr, len(p))]
	n := len(p)
	last := addr + uint32(n) - 1

	firstBlock, secondBlock := BlockOf(addr), BlockOf(last)
	firstPage, secondPage := OffsetOf(addr)/PageSize, OffsetOf(last)/PageSize
	if firstPage == secondPage && firstBlock == secondBlock {
		return d.writeSinglePage(addr, p)
	}

	inFirst := PageSize - int(OffsetOf(addr)%PageSize)
	m, err := d.writeSinglePage(addr, p[:inFirst])
	if err != nil || m != inFirst {
		return m, err
	}
	m, err = d.writeSinglePage(FullAddr(secondBlock, secondPage*PageSize), p[inFirst:])
	return inFirst + m, err
}

// writeSinglePage writes 1 to PageSize bytes that lie inside one page and
// waits for the write cycle to finish.
func (d *Driver) writeSinglePage(addr uint32, p []byte) (int, error) {
	n := len(p)
	block, offset := BlockOf(addr), OffsetOf(addr)
	if n == 0 || int(offset%PageSize)+n > PageSize {
		return 0, fmt.Errorf("page write %#05x+%d: %w", addr, n, pkg.ErrTransferTooLarge)
	}

	dev := d.deviceAddress(block)
	if err := d.bus.Write(dev, offset, p); err != nil {
		d.shadow.invalidate()
		return 0, busError("write", addr, n, err)
	}

	elapsed, err := d.awaitWriteCycle(dev)
	if err != nil {
		d.shadow.invalidate()
		return 0, fmt.Errorf("write %#05x+%d: %w", addr, n, err)
	}

	// A protected device discards the data and answers at once; a real
	// write cycle takes milliseconds. This can misfire under heavy
	// scheduling jitter.
	if elapsed < d.config.WriteProtectThreshold {
		d.shadow.invalidate()
		pkg.LogWarn(pkg.ComponentEEPROM, "EEPROM appears to be write protected",
			"addr", addr, "len", n, "elapsed", elapsed)
		return 0, fmt.Errorf("write %#05x+%d completed in %v: %w", addr, n, elapsed, pkg.ErrWriteProtected)
	}

	d.shadow.afterWrite(block, offset, n)
	d.advance(n)
	return n, nil
}

// awaitWriteCycle polls for acknowledge until the device finishes its
// internal write, returning the time taken.
func (d *Driver) awaitWriteCycle(dev hal.Address) (time.Duration, error) {
	clock := d.config.Clock
	start := clock.Now()
	for !d.bus.AckPoll(dev) {
		if d.config.WriteTimeout > 0 && clock.Now().Sub(start) >= d.config.WriteTimeout {
			pkg.LogWarn(pkg.ComponentEEPROM, "write cycle timed out",
				"device", dev, "timeout", d.config.WriteTimeout)
			return clock.Now().Sub(start), fmt.Errorf("acknowledge poll on %#02x: %w", dev, pkg.ErrTimeout)
		}
		clock.Sleep(d.config.PollInterval)
	}
	elapsed := clock.Now().Sub(start)
	pkg.LogDebug(pkg.ComponentEEPROM, "write cycle complete", "device", dev, "elapsed", elapsed)
	return elapsed, nil
}

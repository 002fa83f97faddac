package eeprom

import (
	"fmt"
	"io"

	"github.com/ardnew/eeprom/eeprom/hal"
	"github.com/ardnew/eeprom/pkg"
)

// ReadAddr reads len(p) bytes starting at addr. The request is clamped to
// end at the device end; the clamped count is not an error.
//
// The returned count is the number of bytes read before the first failed
// sub-read, so a caller can resume at addr+n.
//
// The cursor is advanced by n from its current value, not moved to addr+n.
// With the cursor at 3, ReadAddr(100, p[:4]) leaves it at 7.
func (d *Driver) ReadAddr(addr uint32, p []byte) (int, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.read(addr, p)
}

// Read implements io.Reader at the cursor. It returns io.EOF when the
// device end shortens the read.
func (d *Driver) Read(p []byte) (int, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	n, err := d.read(d.cursor, p)
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, err
}

// ReadByte reads the byte at the cursor. When the shadow says the device
// pointer is already there, the address phase is skipped.
func (d *Driver) ReadByte() (byte, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	addr := d.cursor
	block, offset := BlockOf(addr), OffsetOf(addr)
	dev := d.deviceAddress(block)

	var buf [1]byte
	var err error
	if d.shadow.at(addr) {
		err = d.bus.ReadCurrent(dev, buf[:])
	} else {
		err = d.bus.Read(dev, offset, buf[:])
	}
	if err != nil {
		d.shadow.invalidate()
		return 0, busError("read byte", addr, 1, err)
	}

	d.shadow.afterRead(block, offset, 1)
	d.advance(1)
	return buf[0], nil
}

func (d *Driver) read(addr uint32, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if addr >= Capacity {
		return 0, fmt.Errorf("read at %#x: %w", addr, pkg.ErrOutOfRange)
	}
	p = p[:clamp(addr, len(p))]
	if len(p) <= hal.MaxReadLen {
		return d.readChunk(addr, p)
	}

	total := 0
	for total < len(p) {
		want := min(d.config.ReadChunkSize, len(p)-total)
		n, err := d.readChunk(addr+uint32(total), p[total:total+want])
		total += n
		if err != nil {
			return total, err
		}
		if n != want {
			return total, fmt.Errorf("read at %#x: %w", addr+uint32(total), pkg.ErrShortTransfer)
		}
	}
	return total, nil
}

// readChunk reads at most hal.MaxReadLen bytes, clamped to the device end.
// A chunk crossing the block boundary takes one transaction per block,
// since the device pointer cannot carry over into the other block.
func (d *Driver) readChunk(addr uint32, p []byte) (int, error) {
	if len(p) == 0 || addr >= Capacity {
		return 0, nil
	}
	n := min(clamp(addr, len(p)), hal.MaxReadLen)
	p = p[:n]

	if addr < BlockSize && addr+uint32(n) > BlockSize {
		first := int(BlockSize - addr)
		if err := d.bus.Read(d.deviceAddress(0), OffsetOf(addr), p[:first]); err != nil {
			d.shadow.invalidate()
			return 0, busError("read", addr, first, err)
		}
		if err := d.bus.Read(d.deviceAddress(1), 0, p[first:]); err != nil {
			d.shadow.invalidate()
			d.advance(first)
			return first, busError("read", BlockSize, n-first, err)
		}
		d.shadow.afterRead(1, 0, n-first)
		d.advance(n)
		return n, nil
	}

	block, offset := BlockOf(addr), OffsetOf(addr)
	if err := d.bus.Read(d.deviceAddress(block), offset, p); err != nil {
		d.shadow.invalidate()
		return 0, busError("read", addr, n, err)
	}
	d.shadow.afterRead(block, offset, n)
	d.advance(n)
	return n, nil
}

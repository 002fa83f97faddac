package eeprom

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ardnew/eeprom/pkg"
)

// Fixed-width values are stored little-endian at the cursor.

// ReadUint32 reads a uint32 at the cursor. It returns 0 with an error on a
// short read.
func (d *Driver) ReadUint32() (uint32, error) {
	var buf [4]byte
	if err := d.readFull(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// ReadInt32 reads an int32 at the cursor. It returns 0 with an error on a
// short read.
func (d *Driver) ReadInt32() (int32, error) {
	v, err := d.ReadUint32()
	return int32(v), err
}

// ReadFloat32 reads an IEEE 754 float32 at the cursor. It returns NaN with
// an error on a short read.
func (d *Driver) ReadFloat32() (float32, error) {
	v, err := d.ReadUint32()
	if err != nil {
		return float32(math.NaN()), err
	}
	return math.Float32frombits(v), nil
}

// WriteUint32 writes v at the cursor. It succeeds only if all four bytes
// are committed.
func (d *Driver) WriteUint32(v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return d.writeFull(buf[:])
}

// WriteInt32 writes v at the cursor.
func (d *Driver) WriteInt32(v int32) error {
	return d.WriteUint32(uint32(v))
}

// WriteFloat32 writes v at the cursor.
func (d *Driver) WriteFloat32(v float32) error {
	return d.WriteUint32(math.Float32bits(v))
}

func (d *Driver) readFull(p []byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	n, err := d.read(d.cursor, p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return fmt.Errorf("read %d of %d bytes: %w", n, len(p), pkg.ErrShortTransfer)
	}
	return nil
}

func (d *Driver) writeFull(p []byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	n, err := d.write(d.cursor, p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return fmt.Errorf("wrote %d of %d bytes: %w", n, len(p), pkg.ErrShortTransfer)
	}
	return nil
}

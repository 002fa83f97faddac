package sim

import (
	"fmt"
	"sync"
	"time"

	"github.com/ardnew/eeprom/eeprom/hal"
	"github.com/ardnew/eeprom/pkg"
)

// DefaultWriteCycle is the simulated internal write time. The datasheet
// gives 3 ms typical and 5 ms maximum.
const DefaultWriteCycle = 3500 * time.Microsecond

// erased is the content of a blank cell.
const erased = 0xFF

// Op identifies a bus transaction kind.
type Op uint8

// Transaction kinds.
const (
	OpWrite Op = iota + 1
	OpRead
	OpReadCurrent
	OpAckPoll
)

// String returns the operation name.
func (o Op) String() string {
	switch o {
	case OpWrite:
		return "write"
	case OpRead:
		return "read"
	case OpReadCurrent:
		return "read-current"
	case OpAckPoll:
		return "ack-poll"
	default:
		return "unknown"
	}
}

// Transaction records one bus call seen by the device.
type Transaction struct {
	Op     Op
	Addr   hal.Address
	Offset uint16 // zero for OpReadCurrent and OpAckPoll
	Len    int
	Err    error
}

// Block returns the block selected by the transaction's device address.
func (t Transaction) Block() uint8 { return t.Addr.Block() }

// FullAddr returns the 17-bit address the transaction started at.
// Only meaningful for OpWrite and OpRead.
func (t Transaction) FullAddr() uint32 {
	return uint32(t.Block())<<16 | uint32(t.Offset)
}

// Fault decides whether a transaction fails before it reaches the array.
// A non-nil return is reported to the caller wrapped in pkg.ErrBus.
type Fault func(tx Transaction) error

// Device models a 24XX1025 on a bus and implements hal.Bus.
//
// The model keeps one 16-bit internal address pointer that wraps at the end
// of a block, rolls page writes over inside their 128-byte page, holds the
// bus busy for the write cycle, and silently discards writes while write
// protect is asserted.
type Device struct {
	mutex sync.Mutex

	mem   [hal.Capacity]byte
	chip  hal.Address
	clock hal.Clock

	// internal address pointer
	ptrBlock uint8
	ptr      uint16

	writeCycle   time.Duration
	busyUntil    time.Time
	writeProtect bool

	fault Fault
	log   []Transaction
}

// New creates a blank device strapped with a0 and a1. A nil clock uses the
// wall clock.
func New(a0, a1 bool, clock hal.Clock) *Device {
	if clock == nil {
		clock = hal.SystemClock{}
	}
	d := &Device{
		chip:       hal.DeviceAddress(0, a0, a1),
		clock:      clock,
		writeCycle: DefaultWriteCycle,
	}
	for i := range d.mem {
		d.mem[i] = erased
	}
	return d
}

// SetWriteCycle sets the time the device stays busy after a page write.
func (d *Device) SetWriteCycle(cycle time.Duration) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.writeCycle = cycle
}

// SetWriteProtect asserts or releases the WP pin.
func (d *Device) SetWriteProtect(on bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.writeProtect = on
}

// SetFault installs a fault hook consulted before every transaction.
// Pass nil to remove it.
func (d *Device) SetFault(f Fault) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.fault = f
}

// Load copies data into the array at addr, bypassing the bus.
func (d *Device) Load(addr uint32, data []byte) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	copy(d.mem[addr%hal.Capacity:], data)
}

// Peek returns a copy of n array bytes at addr, bypassing the bus.
func (d *Device) Peek(addr uint32, n int) []byte {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if int(addr) >= hal.Capacity || n <= 0 {
		return nil
	}
	end := min(int(addr)+n, hal.Capacity)
	out := make([]byte, end-int(addr))
	copy(out, d.mem[addr:end])
	return out
}

// Pointer returns the device's internal address pointer.
func (d *Device) Pointer() (block uint8, offset uint16) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.ptrBlock, d.ptr
}

// Transactions returns a copy of the transaction log, excluding ack polls.
func (d *Device) Transactions() []Transaction {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	out := make([]Transaction, 0, len(d.log))
	for _, tx := range d.log {
		if tx.Op != OpAckPoll {
			out = append(out, tx)
		}
	}
	return out
}

// AckPolls returns the number of acknowledge probes seen.
func (d *Device) AckPolls() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	n := 0
	for _, tx := range d.log {
		if tx.Op == OpAckPoll {
			n++
		}
	}
	return n
}

// ResetLog clears the transaction log.
func (d *Device) ResetLog() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.log = d.log[:0]
}

// Write implements hal.Bus.
func (d *Device) Write(addr hal.Address, offset uint16, data []byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	tx := Transaction{Op: OpWrite, Addr: addr, Offset: offset, Len: len(data)}
	if err := d.begin(&tx); err != nil {
		return err
	}
	if len(data) == 0 || len(data) > hal.PageSize {
		return d.finish(&tx, fmt.Errorf("write %d bytes: %w", len(data), pkg.ErrTransferTooLarge))
	}

	block := addr.Block()
	page := offset &^ (hal.PageSize - 1)
	base := uint32(block) << 16
	if !d.writeProtect {
		for i, b := range data {
			col := (offset + uint16(i)) & (hal.PageSize - 1)
			d.mem[base|uint32(page|col)] = b
		}
		d.busyUntil = d.clock.Now().Add(d.writeCycle)
	}
	d.ptrBlock = block
	d.ptr = page | (offset+uint16(len(data)))&(hal.PageSize-1)

	pkg.LogDebug(pkg.ComponentSim, "page write",
		"block", block, "offset", offset, "len", len(data), "protected", d.writeProtect)
	return d.finish(&tx, nil)
}

// Read implements hal.Bus.
func (d *Device) Read(addr hal.Address, offset uint16, buf []byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	tx := Transaction{Op: OpRead, Addr: addr, Offset: offset, Len: len(buf)}
	if err := d.begin(&tx); err != nil {
		return err
	}
	if len(buf) > hal.MaxReadLen {
		return d.finish(&tx, fmt.Errorf("read %d bytes: %w", len(buf), pkg.ErrTransferTooLarge))
	}
	d.ptrBlock = addr.Block()
	d.ptr = offset
	d.sequentialRead(buf)
	return d.finish(&tx, nil)
}

// ReadCurrent implements hal.Bus.
func (d *Device) ReadCurrent(addr hal.Address, buf []byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	tx := Transaction{Op: OpReadCurrent, Addr: addr, Len: len(buf)}
	if err := d.begin(&tx); err != nil {
		return err
	}
	if len(buf) > hal.MaxReadLen {
		return d.finish(&tx, fmt.Errorf("read %d bytes: %w", len(buf), pkg.ErrTransferTooLarge))
	}
	d.ptrBlock = addr.Block()
	d.sequentialRead(buf)
	return d.finish(&tx, nil)
}

// AckPoll implements hal.Bus.
func (d *Device) AckPoll(addr hal.Address) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	tx := Transaction{Op: OpAckPoll, Addr: addr}
	return d.begin(&tx) == nil && d.finish(&tx, nil) == nil
}

// begin checks addressing, busy state, and the fault hook. A non-nil
// return has already been logged.
func (d *Device) begin(tx *Transaction) error {
	if tx.Addr.Chip() != d.chip {
		return d.finish(tx, fmt.Errorf("address %#02x: %w", tx.Addr, pkg.ErrNAK))
	}
	if d.clock.Now().Before(d.busyUntil) {
		return d.finish(tx, fmt.Errorf("address %#02x busy: %w", tx.Addr, pkg.ErrNAK))
	}
	if d.fault != nil {
		if err := d.fault(*tx); err != nil {
			return d.finish(tx, fmt.Errorf("%s: %w: %w", tx.Op, pkg.ErrBus, err))
		}
	}
	return nil
}

func (d *Device) finish(tx *Transaction, err error) error {
	tx.Err = err
	d.log = append(d.log, *tx)
	return err
}

// sequentialRead copies from the internal pointer, wrapping within the block.
func (d *Device) sequentialRead(buf []byte) {
	base := uint32(d.ptrBlock) << 16
	for i := range buf {
		buf[i] = d.mem[base|uint32(d.ptr)]
		d.ptr++
	}
}

// FailOn returns a Fault failing the nth (1-based) transaction of kind op,
// counted from installation. Later transactions succeed.
func FailOn(op Op, nth int) Fault {
	seen := 0
	return func(tx Transaction) error {
		if tx.Op != op {
			return nil
		}
		seen++
		if seen == nth {
			return fmt.Errorf("injected %s failure #%d", op, nth)
		}
		return nil
	}
}

// FailAll returns a Fault failing every transaction of kind op.
func FailAll(op Op) Fault {
	return func(tx Transaction) error {
		if tx.Op == op {
			return fmt.Errorf("injected %s failure", op)
		}
		return nil
	}
}

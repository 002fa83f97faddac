package loader

import (
	"context"
	"fmt"
	"io"

	"github.com/ardnew/eeprom/eeprom/hal"
	"github.com/ardnew/eeprom/pkg"
)

// Receiver accepts an image from a Sender and writes it to storage,
// typically an *eeprom.Driver positioned at the load address.
type Receiver struct {
	rw    io.ReadWriter
	dst   io.Writer
	limit int
	buf   [maxLength]byte
}

// NewReceiver creates a receiver on the given link writing into dst.
func NewReceiver(rw io.ReadWriter, dst io.Writer) *Receiver {
	return &Receiver{rw: rw, dst: dst, limit: hal.Capacity}
}

// SetLimit caps the total bytes accepted in one session.
func (r *Receiver) SetLimit(n int) {
	r.limit = n
}

// Receive runs one session until the sender ends it. It returns the bytes
// stored. On a failure it answers CodeError before returning.
func (r *Receiver) Receive(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, err := readCode(r.rw)
		if err != nil {
			return total, fmt.Errorf("read length: %w", err)
		}
		if n == CodeEnd {
			pkg.LogInfo(pkg.ComponentLoader, "session ended", "bytes", total)
			return total, nil
		}
		if total+int(n) > r.limit {
			return total, r.fail(fmt.Errorf("chunk past %d-byte limit: %w", r.limit, pkg.ErrTransferTooLarge))
		}
		if err := writeCode(r.rw, CodeAck); err != nil {
			return total, fmt.Errorf("ack length: %w", err)
		}

		chunk := r.buf[:n]
		if _, err := io.ReadFull(r.rw, chunk); err != nil {
			return total, r.fail(fmt.Errorf("read chunk: %w", err))
		}
		if err := writeCode(r.rw, CodeAck); err != nil {
			return total, fmt.Errorf("ack chunk: %w", err)
		}

		m, err := r.dst.Write(chunk)
		total += m
		if err == nil && m != len(chunk) {
			err = io.ErrShortWrite
		}
		if err != nil {
			return total, r.fail(fmt.Errorf("store chunk at %d: %w", total-m, err))
		}
		if err := writeCode(r.rw, CodeReady); err != nil {
			return total, fmt.Errorf("ready: %w", err)
		}
	}
}

func (r *Receiver) fail(err error) error {
	pkg.LogWarn(pkg.ComponentLoader, "transfer failed", "err", err)
	_ = writeCode(r.rw, CodeError)
	return err
}

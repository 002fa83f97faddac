package loader

import (
	"fmt"
	"io"

	"github.com/ardnew/eeprom/pkg"
)

// Control bytes. A length byte of CodeEnd terminates the session.
const (
	CodeEnd   = 0x00 // sender: no more chunks
	CodeError = 0xFC // receiver: transmission or storage failure
	CodeReady = 0xFD // receiver: chunk stored, send the next one
	CodeAck   = 0xFE // receiver: length or data received
)

// MaxChunk is the largest chunk a sender emits: one EEPROM page, so that
// each chunk costs the receiver at most two page writes.
const MaxChunk = 128

// maxLength is the largest length byte a receiver accepts.
const maxLength = 0xFF

func writeCode(w io.Writer, code byte) error {
	var b = [1]byte{code}
	_, err := w.Write(b[:])
	return err
}

func readCode(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// expect reads one response byte and checks it is want.
func expect(r io.Reader, want byte, stage string) error {
	got, err := readCode(r)
	if err != nil {
		return fmt.Errorf("%s: %w", stage, err)
	}
	switch got {
	case want:
		return nil
	case CodeError:
		return fmt.Errorf("%s: receiver reported error: %w", stage, pkg.ErrProtocol)
	default:
		return fmt.Errorf("%s: unexpected response %#02x, want %#02x: %w", stage, got, want, pkg.ErrProtocol)
	}
}

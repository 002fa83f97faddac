package loader

import (
	"context"
	"fmt"
	"io"

	"github.com/ardnew/eeprom/eeprom/hal"
	"github.com/ardnew/eeprom/pkg"
)

// Sender streams an image to a Receiver.
type Sender struct {
	rw       io.ReadWriter
	chunk    int
	progress func(sent, total int)
}

// NewSender creates a sender on the given link.
func NewSender(rw io.ReadWriter) *Sender {
	return &Sender{rw: rw, chunk: MaxChunk}
}

// SetChunkSize sets the bytes per chunk, 1 to MaxChunk.
func (s *Sender) SetChunkSize(n int) error {
	if n < 1 || n > MaxChunk {
		return fmt.Errorf("chunk size %d: %w", n, pkg.ErrInvalidParameter)
	}
	s.chunk = n
	return nil
}

// SetProgress installs a callback invoked after each stored chunk.
func (s *Sender) SetProgress(fn func(sent, total int)) {
	s.progress = fn
}

// Send transfers data and ends the session. It returns the number of bytes
// the receiver confirmed as stored. The context is checked between chunks.
func (s *Sender) Send(ctx context.Context, data []byte) (int, error) {
	if len(data) > hal.Capacity {
		return 0, fmt.Errorf("image of %d bytes exceeds %d: %w", len(data), hal.Capacity, pkg.ErrTransferTooLarge)
	}

	sent := 0
	for sent < len(data) {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		n := min(s.chunk, len(data)-sent)
		if err := writeCode(s.rw, byte(n)); err != nil {
			return sent, fmt.Errorf("send length: %w", err)
		}
		if err := expect(s.rw, CodeAck, "length ack"); err != nil {
			return sent, err
		}
		if _, err := s.rw.Write(data[sent : sent+n]); err != nil {
			return sent, fmt.Errorf("send chunk: %w", err)
		}
		if err := expect(s.rw, CodeAck, "data ack"); err != nil {
			return sent, err
		}
		if err := expect(s.rw, CodeReady, "ready"); err != nil {
			return sent, err
		}

		sent += n
		pkg.LogDebug(pkg.ComponentLoader, "chunk stored", "sent", sent, "total", len(data))
		if s.progress != nil {
			s.progress(sent, len(data))
		}
	}

	if err := writeCode(s.rw, CodeEnd); err != nil {
		return sent, fmt.Errorf("send end: %w", err)
	}
	pkg.LogInfo(pkg.ComponentLoader, "transfer complete", "bytes", sent)
	return sent, nil
}

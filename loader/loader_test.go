package loader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/ardnew/eeprom/eeprom"
	"github.com/ardnew/eeprom/eeprom/hal"
	"github.com/ardnew/eeprom/eeprom/hal/sim"
	"github.com/ardnew/eeprom/pkg"
)

func image(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i ^ i>>8)
	}
	return p
}

// session runs a sender and a receiver against each other over net.Pipe.
func session(t *testing.T, data []byte, dst io.Writer, configure func(*Sender, *Receiver)) (sent, received int, sendErr, recvErr error) {
	t.Helper()
	a, b := net.Pipe()
	s := NewSender(a)
	r := NewReceiver(b, dst)
	if configure != nil {
		configure(s, r)
	}

	var g errgroup.Group
	g.Go(func() error {
		defer a.Close()
		sent, sendErr = s.Send(context.Background(), data)
		return nil
	})
	g.Go(func() error {
		defer b.Close()
		received, recvErr = r.Receive(context.Background())
		return nil
	})
	_ = g.Wait()
	return
}

type failingWriter struct {
	after int
	n     int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.n+len(p) > w.after {
		return 0, pkg.ErrBus
	}
	w.n += len(p)
	return len(p), nil
}

func TestSession(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		chunk int
	}{
		{"empty", 0, MaxChunk},
		{"one byte", 1, MaxChunk},
		{"exact chunk", MaxChunk, MaxChunk},
		{"several chunks", 1000, MaxChunk},
		{"small chunks", 300, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := image(tt.n)
			var dst bytes.Buffer
			var calls int
			sent, received, sendErr, recvErr := session(t, data, &dst, func(s *Sender, r *Receiver) {
				if err := s.SetChunkSize(tt.chunk); err != nil {
					t.Fatal(err)
				}
				s.SetProgress(func(sent, total int) {
					calls++
					if total != tt.n || sent > total {
						t.Errorf("progress(%d, %d) with total %d", sent, total, tt.n)
					}
				})
			})
			if sendErr != nil || recvErr != nil {
				t.Fatalf("Send() error = %v, Receive() error = %v", sendErr, recvErr)
			}
			if sent != tt.n || received != tt.n {
				t.Errorf("sent %d, received %d, want %d", sent, received, tt.n)
			}
			if !bytes.Equal(dst.Bytes(), data) {
				t.Error("received data mismatch")
			}
			if want := (tt.n + tt.chunk - 1) / tt.chunk; calls != want {
				t.Errorf("progress called %d times, want %d", calls, want)
			}
		})
	}
}

func TestSessionStorageFailure(t *testing.T) {
	dst := &failingWriter{after: 2 * MaxChunk}
	sent, received, sendErr, recvErr := session(t, image(1000), dst, nil)

	if !errors.Is(sendErr, pkg.ErrProtocol) {
		t.Errorf("Send() error = %v, want ErrProtocol", sendErr)
	}
	if !errors.Is(recvErr, pkg.ErrBus) {
		t.Errorf("Receive() error = %v, want ErrBus", recvErr)
	}
	if sent != 2*MaxChunk || received != 2*MaxChunk {
		t.Errorf("sent %d, received %d, want %d", sent, received, 2*MaxChunk)
	}
}

func TestSessionLimit(t *testing.T) {
	var dst bytes.Buffer
	_, received, sendErr, recvErr := session(t, image(300), &dst, func(s *Sender, r *Receiver) {
		r.SetLimit(200)
	})

	if !errors.Is(recvErr, pkg.ErrTransferTooLarge) {
		t.Errorf("Receive() error = %v, want ErrTransferTooLarge", recvErr)
	}
	if !errors.Is(sendErr, pkg.ErrProtocol) {
		t.Errorf("Send() error = %v, want ErrProtocol", sendErr)
	}
	if received != MaxChunk {
		t.Errorf("received %d, want %d", received, MaxChunk)
	}
}

func TestSendTooLarge(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	_, err := NewSender(a).Send(context.Background(), make([]byte, hal.Capacity+1))
	if !errors.Is(err, pkg.ErrTransferTooLarge) {
		t.Errorf("Send() error = %v, want ErrTransferTooLarge", err)
	}
}

func TestSendCancelled(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := NewSender(a).Send(ctx, image(10))
	if n != 0 || !errors.Is(err, context.Canceled) {
		t.Errorf("Send() = %d, %v; want 0, context.Canceled", n, err)
	}
}

func TestSetChunkSize(t *testing.T) {
	s := NewSender(nil)
	for _, n := range []int{0, -1, MaxChunk + 1} {
		if err := s.SetChunkSize(n); !errors.Is(err, pkg.ErrInvalidParameter) {
			t.Errorf("SetChunkSize(%d) error = %v, want ErrInvalidParameter", n, err)
		}
	}
	if err := s.SetChunkSize(16); err != nil {
		t.Errorf("SetChunkSize(16) error = %v", err)
	}
}

// scripted replays canned receiver responses and records what the sender wrote.
type scripted struct {
	responses *bytes.Reader
	written   bytes.Buffer
}

func (s *scripted) Read(p []byte) (int, error)  { return s.responses.Read(p) }
func (s *scripted) Write(p []byte) (int, error) { return s.written.Write(p) }

func TestSendUnexpectedResponse(t *testing.T) {
	link := &scripted{responses: bytes.NewReader([]byte{CodeAck, CodeAck, CodeAck})}

	n, err := NewSender(link).Send(context.Background(), image(4))
	if n != 0 || !errors.Is(err, pkg.ErrProtocol) {
		t.Errorf("Send() = %d, %v; want 0, ErrProtocol", n, err)
	}
	if got := link.written.Bytes(); !bytes.Equal(got, append([]byte{4}, image(4)...)) {
		t.Errorf("sender wrote % x", got)
	}
}

func TestReceiveTruncatedChunk(t *testing.T) {
	link := &scripted{responses: bytes.NewReader([]byte{10, 1, 2, 3})}
	var dst bytes.Buffer

	n, err := NewReceiver(link, &dst).Receive(context.Background())
	if n != 0 || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Receive() = %d, %v; want 0, ErrUnexpectedEOF", n, err)
	}
	if got := link.written.Bytes(); !bytes.Equal(got, []byte{CodeAck, CodeError}) {
		t.Errorf("receiver wrote % x, want ACK ERR", got)
	}
}

func TestSessionIntoEEPROM(t *testing.T) {
	clock := sim.NewFakeClock()
	dev := sim.New(false, false, clock)
	config := eeprom.DefaultConfig()
	config.Clock = clock
	ee, err := eeprom.New(dev, config)
	if err != nil {
		t.Fatal(err)
	}

	const base = eeprom.BlockSize - 300
	if err := ee.SetPosition(base); err != nil {
		t.Fatal(err)
	}

	data := image(1000)
	_, received, sendErr, recvErr := session(t, data, ee, nil)
	if sendErr != nil || recvErr != nil {
		t.Fatalf("Send() error = %v, Receive() error = %v", sendErr, recvErr)
	}
	if received != len(data) {
		t.Errorf("received %d, want %d", received, len(data))
	}
	if got := dev.Peek(base, len(data)); !bytes.Equal(got, data) {
		t.Error("EEPROM contents mismatch")
	}
}

// Package serial opens a POSIX serial port in raw mode for use as a loader
// link.
//
// The port is configured 8N1 with no flow control. Reads block for at most
// the configured timeout; a read that times out with no data returns
// pkg.ErrTimeout instead of io.EOF, so a stalled peer is distinguishable
// from a closed one.
//
// Example:
//
//	port, err := serial.Open("/dev/ttyACM0", 115200, 2*time.Second)
//	if err != nil {
//	    return err
//	}
//	defer port.Close()
//
//	n, err := loader.NewSender(port).Send(ctx, image)
package serial

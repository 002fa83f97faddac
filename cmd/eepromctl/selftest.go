//go:build linux

package main

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/ardnew/eeprom/eeprom"
	"github.com/ardnew/eeprom/eeprom/hal/sim"
	"github.com/ardnew/eeprom/loader"
	"github.com/ardnew/eeprom/pkg"
)

type selftestOptions struct {
	size         int
	addr         uint32
	chunk        int
	seed         uint64
	writeProtect bool
}

type selftestResult struct {
	sent, stored int
	pageWrites   int
	ackPolls     int
	position     uint32
}

func runSelftest(ctx context.Context, args []string) error {
	var opts selftestOptions
	fs := newFlagSet("selftest")
	fs.IntVar(&opts.size, "n", 4096, "image size in bytes")
	addrFlag := fs.String("addr", "0xff00", "load address")
	fs.IntVar(&opts.chunk, "chunk", loader.MaxChunk, "bytes per chunk")
	fs.Uint64Var(&opts.seed, "seed", 1, "image pattern seed")
	fs.BoolVar(&opts.writeProtect, "wp", false, "assert write protect on the simulated device")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr, err := parseAddr(*addrFlag)
	if err != nil {
		return err
	}
	opts.addr = addr

	res, err := selftest(ctx, opts)
	if err != nil {
		return err
	}
	pkg.LogInfo(pkg.ComponentCLI, "selftest passed",
		"bytes", res.stored,
		"page_writes", res.pageWrites,
		"ack_polls", res.ackPolls,
		"position", fmt.Sprintf("%#05x", res.position))
	return nil
}

// selftest streams a pseudo-random image through a loader session into a
// simulated device and compares the device contents with the image.
func selftest(ctx context.Context, opts selftestOptions) (selftestResult, error) {
	var res selftestResult
	if opts.size < 0 {
		return res, fmt.Errorf("image size %d: %w", opts.size, pkg.ErrInvalidParameter)
	}

	image := make([]byte, opts.size)
	rng := rand.New(rand.NewPCG(opts.seed, opts.seed^0x24aa1025))
	for i := range image {
		image[i] = byte(rng.Uint32())
	}

	clock := sim.NewFakeClock()
	dev := sim.New(false, false, clock)
	dev.SetWriteProtect(opts.writeProtect)
	config := eeprom.DefaultConfig()
	config.Clock = clock
	ee, err := eeprom.New(dev, config)
	if err != nil {
		return res, err
	}
	if err := ee.SetPosition(opts.addr); err != nil {
		return res, err
	}

	host, target := net.Pipe()
	s := loader.NewSender(host)
	if err := s.SetChunkSize(opts.chunk); err != nil {
		return res, err
	}
	r := loader.NewReceiver(target, ee)
	r.SetLimit(eeprom.Capacity - int(opts.addr))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer host.Close()
		n, err := s.Send(gctx, image)
		res.sent = n
		return err
	})
	g.Go(func() error {
		defer target.Close()
		n, err := r.Receive(gctx)
		res.stored = n
		return err
	})
	if err := g.Wait(); err != nil {
		return res, err
	}

	for _, tx := range dev.Transactions() {
		if tx.Op == sim.OpWrite {
			res.pageWrites++
		}
	}
	res.ackPolls = dev.AckPolls()
	res.position = ee.Position()

	if got := dev.Peek(opts.addr, len(image)); !bytes.Equal(got, image) {
		return res, fmt.Errorf("device contents differ from image: %w", pkg.ErrProtocol)
	}
	return res, nil
}

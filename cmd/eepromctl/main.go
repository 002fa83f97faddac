//go:build linux

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ardnew/eeprom/pkg"
)

var (
	verbose   = flag.Bool("v", false, "Enable verbose logging")
	logFormat = flag.String("log-format", "text", "Log format (text or json)")
)

// command is one eepromctl subcommand.
type command struct {
	name    string
	summary string
	run     func(ctx context.Context, args []string) error
}

var commands = []command{
	{"dump", "hex dump a device range", runDump},
	{"write", "write a file to the device", runWrite},
	{"send", "stream a file over the serial loader", runSend},
	{"receive", "receive a serial loader session into the device", runReceive},
	{"selftest", "loader round trip into a simulated device", runSelftest},
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "usage: %s [flags] <command> [command flags]\n\nflags:\n", os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintln(out, "\ncommands:")
	for _, c := range commands {
		fmt.Fprintf(out, "  %-10s %s\n", c.name, c.summary)
	}
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *verbose {
		pkg.SetLogLevel(slog.LevelDebug)
	} else {
		pkg.SetLogLevel(slog.LevelInfo)
	}
	format, err := pkg.ParseLogFormat(*logFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	pkg.SetLogFormat(format)

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	cmd, ok := lookup(flag.Arg(0))
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", flag.Arg(0))
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.run(ctx, flag.Args()[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		pkg.LogError(pkg.ComponentCLI, cmd.name+" failed", "error", err, "status", pkg.StatusOf(err).String())
		stop()
		os.Exit(1)
	}
}

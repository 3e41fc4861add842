// Package main provides the dualarm command: it loads a program into a
// dual-core ARM session and runs it, optionally under a Lua script or the
// interactive monitor.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"

	"github.com/sarchlab/dualarm/config"
	"github.com/sarchlab/dualarm/loader"
	"github.com/sarchlab/dualarm/mem"
	"github.com/sarchlab/dualarm/monitor"
	"github.com/sarchlab/dualarm/script"
	"github.com/sarchlab/dualarm/session"
	"github.com/sarchlab/dualarm/timing/latency"
)

// Exit codes.
const (
	exitOK      = 0
	exitError   = 1
	exitStopped = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type options struct {
	platformPath string
	timingPath   string
	base         string
	entryA       string
	entryB       string
	cycles       uint64
	scriptPath   string
	monitor      bool
	stats        bool
	histogram    bool
	verbosity    int
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var opts options

	fs := flag.NewFlagSet("dualarm", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.platformPath, "platform", "", "Path to platform configuration (YAML or JSON)")
	fs.StringVar(&opts.timingPath, "timing", "", "Path to timing configuration JSON file")
	fs.StringVar(&opts.base, "base", "0", "Load address of raw images")
	fs.StringVar(&opts.entryA, "entry-a", "", "Core A entry address (default: image entry)")
	fs.StringVar(&opts.entryB, "entry-b", "", "Core B entry address (default: image entry)")
	fs.Uint64Var(&opts.cycles, "cycles", 1_000_000, "Core A cycles to run")
	fs.StringVar(&opts.scriptPath, "script", "", "Lua script to run instead of a fixed cycle count")
	fs.BoolVar(&opts.monitor, "monitor", false, "Start the machine monitor")
	fs.BoolVar(&opts.stats, "stats", false, "Print execution counters at exit")
	fs.BoolVar(&opts.histogram, "histogram", false, "Count instruction hits per dispatch slot (shown by -stats)")
	fs.IntVar(&opts.verbosity, "v", 0, "Log verbosity")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: dualarm [options] <image-a> [image-b]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return exitError
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		fs.Usage()
		return exitError
	}

	logger := funcr.New(func(prefix, args string) {
		if prefix != "" {
			fmt.Fprintf(stderr, "%s: %s\n", prefix, args)
		} else {
			fmt.Fprintln(stderr, args)
		}
	}, funcr.Options{Verbosity: opts.verbosity})

	s, err := build(opts, fs.Args(), logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	err = drive(opts, s, stdin, stdout, logger)
	if opts.stats {
		_ = monitor.New(s).RunCommands(strings.NewReader("stats\n"), stdout, false)
	}

	switch {
	case errors.Is(err, session.ErrStopped):
		fmt.Fprintf(stdout, "%v\n", err)
		return exitStopped
	case err != nil:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	return exitOK
}

// build loads the configuration and images and creates the session.
func build(opts options, images []string, logger logr.Logger) (*session.Session, error) {
	platform := config.Default()
	if opts.platformPath != "" {
		var err error
		if platform, err = config.Load(opts.platformPath); err != nil {
			return nil, err
		}
	}

	timing := latency.DefaultTimingConfig()
	if opts.timingPath != "" {
		var err error
		if timing, err = latency.LoadConfig(opts.timingPath); err != nil {
			return nil, fmt.Errorf("loading timing config: %w", err)
		}
	}
	if err := timing.Validate(); err != nil {
		return nil, fmt.Errorf("timing config: %w", err)
	}

	base, err := parseAddress(opts.base)
	if err != nil {
		return nil, err
	}

	memory := mem.NewMemory()
	entries := [2]uint32{}
	for i, path := range images {
		prog, err := loader.LoadImage(path, base)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		prog.LoadInto(memory)
		entries[i] = prog.EntryPoint
		logger.V(1).Info("loaded", "image", path, "entry", prog.EntryPoint, "segments", len(prog.Segments))
	}
	if len(images) == 1 {
		entries[1] = entries[0]
	}

	for i, s := range []string{opts.entryA, opts.entryB} {
		if s == "" {
			continue
		}
		if entries[i], err = parseAddress(s); err != nil {
			return nil, err
		}
	}

	bus, err := mem.NewBus(memory, timing)
	if err != nil {
		return nil, err
	}
	s, err := session.New(platform, timing, bus, sessionOptions(opts, logger)...)
	if err != nil {
		return nil, err
	}
	s.Reset(entries[0], entries[1])
	return s, nil
}

func sessionOptions(opts options, logger logr.Logger) []session.Option {
	sopts := []session.Option{session.WithLogger(logger)}
	if opts.histogram {
		sopts = append(sopts, session.WithInstructionStats())
	}
	return sopts
}

// drive runs the session under the selected front end.
func drive(opts options, s *session.Session, stdin io.Reader, stdout io.Writer, logger logr.Logger) error {
	switch {
	case opts.scriptPath != "":
		engine := script.New(s, script.WithLogger(logger), script.WithOutput(stdout))
		defer engine.Close()
		return engine.DoFile(opts.scriptPath)

	case opts.monitor:
		interactive := false
		if f, ok := stdin.(*os.File); ok {
			interactive = monitor.IsInteractive(f)
		}
		return monitor.New(s).RunCommands(stdin, stdout, interactive)
	}

	return s.Run(opts.cycles)
}

func parseAddress(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return uint32(v), nil
}

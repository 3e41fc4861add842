// Package monitor implements a line-oriented machine monitor for a session.
// Commands and register names may be abbreviated to any unique prefix.
package monitor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/beevik/prefixtree/v2"
	"golang.org/x/term"

	"github.com/sarchlab/dualarm/emu"
	"github.com/sarchlab/dualarm/mem"
	"github.com/sarchlab/dualarm/session"
)

// Errors returned by command lookup.
var (
	ErrAmbiguous = errors.New("command is ambiguous")
	ErrNotFound  = errors.New("command not found")
)

// errQuit ends the command loop.
var errQuit = errors.New("quit")

type command struct {
	name    string
	usage   string
	help    string
	minArgs int
	run     func(m *Monitor, args []string) error
}

var (
	commandTree  = prefixtree.New[*command]()
	registerTree = prefixtree.New[uint32]()
	commands     []command
)

func init() {
	commands = []command{
		{"help", "help", "list commands", 0, (*Monitor).cmdHelp},
		{"regs", "regs [core]", "display registers", 0, (*Monitor).cmdRegs},
		{"step", "step [n]", "execute n instructions", 0, (*Monitor).cmdStep},
		{"run", "run <cycles>", "run for a number of core A cycles", 1, (*Monitor).cmdRun},
		{"stall", "stall <core>", "suspend a core", 1, (*Monitor).cmdStall},
		{"unstall", "unstall <core>", "resume a core", 1, (*Monitor).cmdUnstall},
		{"irq", "irq <core> <bits>", "raise interrupt flags", 2, (*Monitor).cmdIRQ},
		{"reset", "reset <core> <addr>", "reset a core to an entry address", 2, (*Monitor).cmdReset},
		{"set", "set <core> <reg> <value>", "write a register", 3, (*Monitor).cmdSet},
		{"stats", "stats", "display execution counters", 0, (*Monitor).cmdStats},
		{"trace", "trace <core>", "toggle memory access tracing", 1, (*Monitor).cmdTrace},
		{"quit", "quit", "leave the monitor", 0, (*Monitor).cmdQuit},
	}
	for i := range commands {
		commandTree.Add(commands[i].name, &commands[i])
	}
	for i, name := range emu.ControlRegisterNames {
		registerTree.Add(name, uint32(i))
	}
}

// Monitor executes commands against a session.
type Monitor struct {
	sess        *session.Session
	input       *bufio.Scanner
	output      *bufio.Writer
	interactive bool
	lastLine    string
	tracers     [2]*mem.Recorder
}

// New creates a monitor for s.
func New(s *session.Session) *Monitor {
	return &Monitor{sess: s}
}

// IsInteractive reports whether f is a terminal, in which case the monitor
// should prompt.
func IsInteractive(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// RunCommands reads commands from r and writes their output to w until the
// input ends or a quit command is read. An empty line repeats the previous
// command.
func (m *Monitor) RunCommands(r io.Reader, w io.Writer, interactive bool) error {
	m.input = bufio.NewScanner(r)
	m.output = bufio.NewWriter(w)
	m.interactive = interactive
	defer m.flush()

	for {
		m.prompt()
		if !m.input.Scan() {
			return m.input.Err()
		}

		line := strings.TrimSpace(m.input.Text())
		if line == "" {
			line = m.lastLine
		}
		if line == "" {
			continue
		}

		err := m.Execute(line)
		switch {
		case errors.Is(err, errQuit):
			return nil
		case err != nil:
			m.printf("ERROR: %v.\n", err)
			continue
		}
		m.lastLine = line
	}
}

// Execute runs a single command line.
func (m *Monitor) Execute(line string) error {
	if m.output == nil {
		m.output = bufio.NewWriter(io.Discard)
	}
	defer m.flush()

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	cmd, err := lookupCommand(fields[0])
	if err != nil {
		return err
	}
	args := fields[1:]
	if len(args) < cmd.minArgs {
		return fmt.Errorf("usage: %s", cmd.usage)
	}
	return cmd.run(m, args)
}

func lookupCommand(name string) (*command, error) {
	cmd, err := commandTree.FindValue(strings.ToLower(name))
	switch {
	case errors.Is(err, prefixtree.ErrPrefixAmbiguous):
		return nil, fmt.Errorf("%w: %s", ErrAmbiguous, name)
	case err != nil:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return cmd, nil
}

func lookupRegister(name string) (uint32, error) {
	name = strings.ToLower(name)
	for i, r := range emu.ControlRegisterNames {
		if r == name {
			return uint32(i), nil
		}
	}
	n, err := registerTree.FindValue(name)
	if err != nil {
		return 0, fmt.Errorf("unknown register %q", name)
	}
	return n, nil
}

func parseCore(s string) (emu.Identity, error) {
	return emu.ParseIdentity(s)
}

// parseNumber accepts decimal, 0x-prefixed hex and $-prefixed hex.
func parseNumber(s string) (uint32, error) {
	if strings.HasPrefix(s, "$") {
		s = "0x" + s[1:]
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return uint32(v), nil
}

func (m *Monitor) printf(format string, args ...any) {
	fmt.Fprintf(m.output, format, args...)
}

func (m *Monitor) println(args ...any) {
	fmt.Fprintln(m.output, args...)
}

func (m *Monitor) flush() {
	_ = m.output.Flush()
}

func (m *Monitor) prompt() {
	if m.interactive {
		m.printf("> ")
		m.flush()
	}
}

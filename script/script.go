// Package script drives a session from Lua through the cores' control
// interfaces.
//
// The engine installs these globals:
//
//	reg(core, r)           read register r (number or name such as "pc")
//	setreg(core, r, v)     write register r
//	stall(core)            suspend a core
//	unstall(core)          resume a core
//	on_exec(core, fn)      call fn(addr, thumb) after every instruction
//	clear_exec(core)       remove the post-execute hook
//	irq(core, bits)        raise interrupt flags
//	ack(core, bits)        clear interrupt flags
//	step(n)                run n instructions; false once emulation stopped
//	run(cycles)            run for cycles core A cycles; same result as step
//	now()                  the session timeline in core A cycles
//
// A core is named "a" or "b", or 0 or 1.
package script

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-logr/logr"
	lua "github.com/yuin/gopher-lua"

	"github.com/sarchlab/dualarm/emu"
	"github.com/sarchlab/dualarm/session"
)

// Engine is a Lua interpreter bound to one session. It is not safe for
// concurrent use.
type Engine struct {
	sess   *session.Session
	state  *lua.LState
	logger logr.Logger
	out    io.Writer

	hookErr error
}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l logr.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithOutput redirects Lua's print.
func WithOutput(w io.Writer) Option {
	return func(e *Engine) {
		e.out = w
	}
}

// New creates an engine for s.
func New(s *session.Session, opts ...Option) *Engine {
	e := &Engine{
		sess:   s,
		state:  lua.NewState(),
		logger: logr.Discard(),
		out:    os.Stdout,
	}
	for _, opt := range opts {
		opt(e)
	}

	for name, fn := range map[string]lua.LGFunction{
		"reg":        e.luaReg,
		"setreg":     e.luaSetReg,
		"stall":      e.luaStall,
		"unstall":    e.luaUnstall,
		"on_exec":    e.luaOnExec,
		"clear_exec": e.luaClearExec,
		"irq":        e.luaIRQ,
		"ack":        e.luaAck,
		"step":       e.luaStep,
		"run":        e.luaRun,
		"now":        e.luaNow,
		"print":      e.luaPrint,
	} {
		e.state.SetGlobal(name, e.state.NewFunction(fn))
	}
	return e
}

// Close releases the interpreter and removes any hooks it installed.
func (e *Engine) Close() {
	for _, id := range []emu.Identity{emu.CoreA, emu.CoreB} {
		e.sess.Core(id).Control().RemovePostExec()
	}
	e.state.Close()
}

// DoString runs a chunk of Lua source.
func (e *Engine) DoString(src string) error {
	return e.check(e.state.DoString(src))
}

// DoFile runs a Lua file.
func (e *Engine) DoFile(path string) error {
	return e.check(e.state.DoFile(path))
}

func (e *Engine) check(err error) error {
	if err == nil && e.hookErr != nil {
		err, e.hookErr = e.hookErr, nil
	}
	if err != nil {
		return fmt.Errorf("script: %w", err)
	}
	return nil
}

func (e *Engine) checkCore(L *lua.LState, n int) *emu.Core {
	id, err := emu.ParseIdentity(L.CheckAny(n).String())
	if err != nil {
		L.ArgError(n, err.Error())
	}
	return e.sess.Core(id)
}

func checkRegister(L *lua.LState, n int) uint32 {
	v := L.CheckAny(n)
	if num, ok := v.(lua.LNumber); ok {
		return uint32(num)
	}
	name := strings.ToLower(v.String())
	for i, r := range emu.ControlRegisterNames {
		if r == name {
			return uint32(i)
		}
	}
	L.ArgError(n, fmt.Sprintf("unknown register %q", name))
	return 0
}

func checkUint32(L *lua.LState, n int) uint32 {
	return uint32(int64(L.CheckNumber(n)))
}

func (e *Engine) luaReg(L *lua.LState) int {
	c := e.checkCore(L, 1)
	L.Push(lua.LNumber(c.Control().ReadRegister(checkRegister(L, 2))))
	return 1
}

func (e *Engine) luaSetReg(L *lua.LState) int {
	c := e.checkCore(L, 1)
	c.Control().WriteRegister(checkRegister(L, 2), checkUint32(L, 3))
	return 0
}

func (e *Engine) luaStall(L *lua.LState) int {
	e.checkCore(L, 1).Control().Stall()
	return 0
}

func (e *Engine) luaUnstall(L *lua.LState) int {
	e.checkCore(L, 1).Control().Unstall()
	return 0
}

func (e *Engine) luaOnExec(L *lua.LState) int {
	c := e.checkCore(L, 1)
	fn := L.CheckFunction(2)
	id := c.ID()

	c.Control().InstallPostExec(func(addr uint32, thumb bool) {
		err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true},
			lua.LNumber(addr), lua.LBool(thumb))
		if err == nil {
			return
		}
		e.logger.Error(err, "exec hook failed, removing it", "core", id)
		c.Control().RemovePostExec()
		c.Control().Stall()
		if e.hookErr == nil {
			e.hookErr = err
		}
	})
	return 0
}

func (e *Engine) luaClearExec(L *lua.LState) int {
	e.checkCore(L, 1).Control().RemovePostExec()
	return 0
}

func (e *Engine) luaIRQ(L *lua.LState) int {
	c := e.checkCore(L, 1)
	if err := e.sess.RaiseInterrupt(c.ID(), checkUint32(L, 2)); err != nil {
		L.RaiseError("%s", err.Error())
	}
	return 0
}

func (e *Engine) luaAck(L *lua.LState) int {
	e.sess.AcknowledgeInterrupt(e.checkCore(L, 1).ID(), checkUint32(L, 2))
	return 0
}

func (e *Engine) luaStep(L *lua.LState) int {
	return e.pushRunResult(L, e.sess.RunSteps(uint64(L.OptInt64(1, 1))))
}

func (e *Engine) luaRun(L *lua.LState) int {
	return e.pushRunResult(L, e.sess.Run(uint64(L.CheckInt64(1))))
}

func (e *Engine) pushRunResult(L *lua.LState, err error) int {
	switch {
	case err == nil:
		L.Push(lua.LTrue)
	case errors.Is(err, session.ErrStopped):
		e.logger.V(1).Info("script run stopped", "reason", err.Error())
		L.Push(lua.LFalse)
	default:
		L.RaiseError("%s", err.Error())
	}
	return 1
}

func (e *Engine) luaNow(L *lua.LState) int {
	L.Push(lua.LNumber(e.sess.Now()))
	return 1
}

func (e *Engine) luaPrint(L *lua.LState) int {
	parts := make([]string, L.GetTop())
	for i := range parts {
		parts[i] = L.ToStringMeta(L.Get(i + 1)).String()
	}
	fmt.Fprintln(e.out, strings.Join(parts, "\t"))
	return 0
}

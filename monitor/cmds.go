package monitor

import (
	"errors"
	"sort"
	"strconv"

	"github.com/sarchlab/dualarm/emu"
	"github.com/sarchlab/dualarm/insts"
	"github.com/sarchlab/dualarm/mem"
	"github.com/sarchlab/dualarm/session"
)

var decoder = insts.NewDecoder()

func (m *Monitor) cmdHelp(_ []string) error {
	for _, c := range commands {
		m.printf("  %-26s %s\n", c.usage, c.help)
	}
	return nil
}

func (m *Monitor) cmdRegs(args []string) error {
	ids := []emu.Identity{emu.CoreA, emu.CoreB}
	if len(args) > 0 {
		id, err := parseCore(args[0])
		if err != nil {
			return err
		}
		ids = ids[id : id+1]
	}
	for _, id := range ids {
		m.displayCore(id)
	}
	return nil
}

// displayCore prints the registers of a core followed by the instruction it
// will execute next.
func (m *Monitor) displayCore(id emu.Identity) {
	c := m.sess.Core(id)
	r := c.Regs()

	state := ""
	switch {
	case c.Halted():
		state = " halted: " + c.HaltReason()
	case c.Stalled():
		state = " stalled"
	case c.WaitingForInterrupt():
		state = " waiting"
	}
	m.printf("core %s  %s%s\n", id, r.CPSR, state)

	for i := 0; i < 16; i++ {
		m.printf(" %4s=%08x", emu.ControlRegisterNames[i], r.R[i])
		if i%4 == 3 {
			m.println()
		}
	}

	var inst *insts.Instruction
	if r.CPSR.Thumb() {
		inst = decoder.DecodeThumb(uint16(c.Instruction()))
		m.printf("  %08x: %04x      %s\n", c.InstructionAddress(), c.Instruction(),
			insts.Disassemble(inst, c.InstructionAddress()))
	} else {
		inst = decoder.Decode(c.Instruction())
		m.printf("  %08x: %08x  %s\n", c.InstructionAddress(), c.Instruction(),
			insts.Disassemble(inst, c.InstructionAddress()))
	}
}

func (m *Monitor) cmdStep(args []string) error {
	n := uint32(1)
	if len(args) > 0 {
		var err error
		if n, err = parseNumber(args[0]); err != nil {
			return err
		}
	}

	var last emu.Identity
	var err error
	for i := uint32(0); i < n && err == nil; i++ {
		last, _, err = m.sess.Step()
	}
	if err := m.reportRun(err); err != nil {
		return err
	}
	m.displayCore(last)
	return nil
}

func (m *Monitor) cmdRun(args []string) error {
	cycles, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		return err
	}
	start := m.sess.Now()
	if err := m.reportRun(m.sess.Run(cycles)); err != nil {
		return err
	}
	m.printf("ran %d cycles\n", m.sess.Now()-start)
	return nil
}

// reportRun prints traced accesses and turns a stop into a message.
func (m *Monitor) reportRun(err error) error {
	for id, rec := range m.tracers {
		if rec == nil {
			continue
		}
		for _, a := range rec.Accesses() {
			m.printf("  %s %v\n", emu.Identity(id), a)
		}
		rec.Reset()
	}

	if errors.Is(err, session.ErrStopped) {
		m.println(err)
		return nil
	}
	return err
}

func (m *Monitor) cmdStall(args []string) error {
	id, err := parseCore(args[0])
	if err != nil {
		return err
	}
	m.sess.Core(id).Control().Stall()
	return nil
}

func (m *Monitor) cmdUnstall(args []string) error {
	id, err := parseCore(args[0])
	if err != nil {
		return err
	}
	m.sess.Core(id).Control().Unstall()
	return nil
}

func (m *Monitor) cmdIRQ(args []string) error {
	id, err := parseCore(args[0])
	if err != nil {
		return err
	}
	bits, err := parseNumber(args[1])
	if err != nil {
		return err
	}
	return m.sess.RaiseInterrupt(id, bits)
}

func (m *Monitor) cmdReset(args []string) error {
	id, err := parseCore(args[0])
	if err != nil {
		return err
	}
	addr, err := parseNumber(args[1])
	if err != nil {
		return err
	}
	m.sess.Core(id).Reset(addr)
	m.displayCore(id)
	return nil
}

func (m *Monitor) cmdSet(args []string) error {
	id, err := parseCore(args[0])
	if err != nil {
		return err
	}
	reg, err := lookupRegister(args[1])
	if err != nil {
		return err
	}
	value, err := parseNumber(args[2])
	if err != nil {
		return err
	}
	m.sess.Core(id).Control().WriteRegister(reg, value)
	return nil
}

func (m *Monitor) cmdStats(_ []string) error {
	m.printf("now %d cycles, %d steps\n", m.sess.Now(), m.sess.Steps())
	for _, id := range []emu.Identity{emu.CoreA, emu.CoreB} {
		s := m.sess.Core(id).Stats()
		m.printf("core %s  instructions %d  cycles %d  cond-failed %d  exceptions %d  irqs %d\n",
			id, s.Instructions, s.Cycles, s.ConditionFailed, s.Exceptions, s.IRQs)
		if s.JITHits+s.JITMisses > 0 {
			m.printf("core %s  jit hits %d  misses %d  compile cycles %d\n",
				id, s.JITHits, s.JITMisses, s.JITCompileCycles)
		}
		arm, thumb := m.sess.Core(id).InstructionHits()
		for _, slot := range hottest(arm, hotSlots) {
			m.printf("core %s  arm slot %#03x  %d\n", id, slot, arm[slot])
		}
		for _, slot := range hottest(thumb, hotSlots) {
			m.printf("core %s  thumb slot %#03x  %d\n", id, slot, thumb[slot])
		}
	}
	if ic := m.sess.Bus().ICache(); ic != nil {
		s := ic.Stats()
		m.printf("icache  reads %d  hits %d  misses %d  evictions %d\n",
			s.Reads, s.Hits, s.Misses, s.Evictions)
	}
	return nil
}

// hotSlots is how many dispatch slots stats lists per table.
const hotSlots = 5

// hottest returns up to n indexes of the largest non-zero counts, busiest
// first.
func hottest(hits []uint64, n int) []int {
	var slots []int
	for i, h := range hits {
		if h != 0 {
			slots = append(slots, i)
		}
	}
	sort.SliceStable(slots, func(i, j int) bool { return hits[slots[i]] > hits[slots[j]] })
	if len(slots) > n {
		slots = slots[:n]
	}
	return slots
}

func (m *Monitor) cmdTrace(args []string) error {
	id, err := parseCore(args[0])
	if err != nil {
		return err
	}
	c := m.sess.Core(id)

	if m.tracers[id] != nil {
		c.ResetMemoryToBase()
		m.tracers[id] = nil
		m.printf("trace off for core %s\n", id)
		return nil
	}

	rec := mem.NewRecorder(c.BaseMemory(), mem.WithLimit(64))
	if err := c.RedirectMemory(rec); err != nil {
		return err
	}
	m.tracers[id] = rec
	m.printf("trace on for core %s\n", id)
	return nil
}

func (m *Monitor) cmdQuit(_ []string) error {
	return errQuit
}

package emu_test

import (
	"strings"

	"github.com/go-logr/logr/funcr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/dualarm/emu"
	"github.com/sarchlab/dualarm/insts"
	"github.com/sarchlab/dualarm/mem"
)

const (
	armMovR0      = 0xE3A0002A // mov r0, #42
	armMovR1      = 0xE3A01007 // mov r1, #7
	armBranchSelf = 0xEAFFFFFE // b .
	armUndefined  = 0xE7F000F0
)

type fakeJIT struct {
	blocks   map[uint32]emu.CompiledBlock
	compiles int
}

func (j *fakeJIT) Lookup(_ emu.Identity, addr uint32) emu.CompiledBlock {
	return j.blocks[addr]
}

func (j *fakeJIT) Compile(_ *emu.Core) uint32 {
	j.compiles++
	return 50
}

type fakeScheduler struct {
	notified int
}

func (s *fakeScheduler) NotifyStateChanged() {
	s.notified++
}

var _ = Describe("Core", func() {
	var memory *flatMemory

	newCore := func(id emu.Identity, opts ...emu.CoreOption) *emu.Core {
		cfg := emu.DefaultCoreConfig(id)
		opts = append([]emu.CoreOption{
			emu.WithOpcodeTable(insts.NewTable(cfg.ARMv5, insts.DefaultCosts())),
		}, opts...)
		c, err := emu.NewCore(id, memory, opts...)
		Expect(err).NotTo(HaveOccurred())
		return c
	}

	BeforeEach(func() {
		memory = newFlatMemory(1)
	})

	It("should refuse a nil memory interface", func() {
		_, err := emu.NewCore(emu.CoreA, nil)
		Expect(err).To(MatchError(emu.ErrNilMemory))
	})

	Describe("Identity", func() {
		It("should carry the reference constants", func() {
			a := newCore(emu.CoreA)
			b := newCore(emu.CoreB)

			Expect(a.ARMv5()).To(BeTrue())
			Expect(a.VectorBase()).To(Equal(uint32(0xFFFF0000)))
			Expect(b.ARMv5()).To(BeFalse())
			Expect(b.VectorBase()).To(BeZero())
			Expect(emu.CoreA.Other()).To(Equal(emu.CoreB))
		})

		DescribeTable("parsing names",
			func(s string, id emu.Identity) {
				Expect(emu.ParseIdentity(s)).To(Equal(id))
			},
			Entry("a", "a", emu.CoreA),
			Entry("B", "B", emu.CoreB),
			Entry("0", "0", emu.CoreA),
			Entry("1", " 1 ", emu.CoreB),
		)

		It("should reject unknown names", func() {
			_, err := emu.ParseIdentity("c")
			Expect(err).To(MatchError(emu.ErrUnknownIdentity))
		})
	})

	Describe("Reset", func() {
		It("should start an ARM entry with the pipeline filled", func() {
			memory.program(0x200, armMovR0)
			c := newCore(emu.CoreB)
			c.Reset(0x200)

			Expect(c.Regs().Mode()).To(Equal(emu.ModeSYS))
			Expect(c.Regs().CPSR.Thumb()).To(BeFalse())
			Expect(c.InstructionAddress()).To(Equal(uint32(0x200)))
			Expect(c.Instruction()).To(Equal(uint32(armMovR0)))
			Expect(c.NextInstruction()).To(Equal(uint32(0x204)))
			Expect(c.Regs().R[emu.RegPC]).To(Equal(uint32(0x208)))
		})

		It("should select Thumb from bit 0 of the entry", func() {
			c := newCore(emu.CoreB)
			c.Reset(0x101)

			Expect(c.Regs().CPSR.Thumb()).To(BeTrue())
			Expect(c.InstructionAddress()).To(Equal(uint32(0x100)))
			Expect(c.Regs().R[emu.RegPC]).To(Equal(uint32(0x104)))
		})

		It("should restore the configured vector base and clear the halt", func() {
			memory.program(0, armUndefined)
			c := newCore(emu.CoreA)
			c.SetVectorBase(0x1000)
			c.Halt("test")

			c.Reset(0)
			Expect(c.VectorBase()).To(Equal(uint32(0xFFFF0000)))
			Expect(c.Halted()).To(BeFalse())
			Expect(c.HaltReason()).To(BeEmpty())
		})

		It("should clear the wait states", func() {
			c := newCore(emu.CoreB)
			c.WaitForInterrupt()
			c.SetIntrWaitState(1)
			Expect(c.WaitingForInterrupt()).To(BeTrue())
			Expect(c.InterruptOverride()).To(BeTrue())

			c.Reset(0)
			Expect(c.WaitingForInterrupt()).To(BeFalse())
			Expect(c.InterruptOverride()).To(BeFalse())
			Expect(c.IntrWaitState()).To(BeZero())
		})
	})

	Describe("Raise", func() {
		var c *emu.Core

		BeforeEach(func() {
			memory.program(0x100, armMovR0)
			c = newCore(emu.CoreB)
			c.Reset(0x100)
			c.Regs().CPSR.SetFlags(false, true, false, false)
		})

		It("should enter the exception mode without refilling the pipeline", func() {
			saved := c.Regs().CPSR

			Expect(c.Raise(emu.ExceptionSWI)).To(Succeed())
			Expect(c.Regs().Mode()).To(Equal(emu.ModeSVC))
			Expect(c.Regs().SPSR).To(Equal(saved))
			Expect(c.Regs().R[emu.RegLR]).To(Equal(uint32(0x104)))
			Expect(c.Regs().R[emu.RegPC]).To(Equal(uint32(0x08)))
			Expect(c.Regs().CPSR.IRQDisabled()).To(BeTrue())
			Expect(c.Regs().CPSR.Thumb()).To(BeFalse())
			Expect(c.InstructionAddress()).To(Equal(uint32(0x100)))

			c.Step()
			Expect(c.Regs().R[0]).To(Equal(uint32(42)))
			Expect(c.InstructionAddress()).To(Equal(uint32(0x08)))
			Expect(c.Stats().Exceptions).To(Equal(uint64(1)))
		})

		It("should clear Thumb state on entry and restore it on return", func() {
			c.Reset(0x101)
			Expect(c.Raise(emu.ExceptionUndefined)).To(Succeed())
			Expect(c.Regs().Mode()).To(Equal(emu.ModeUND))
			Expect(c.Regs().CPSR.Thumb()).To(BeFalse())

			Expect(c.ReturnFromException()).To(Succeed())
			Expect(c.Regs().Mode()).To(Equal(emu.ModeSYS))
			Expect(c.Regs().CPSR.Thumb()).To(BeTrue())
		})

		It("should refuse to return without a saved status", func() {
			Expect(c.ReturnFromException()).To(MatchError(emu.ErrInvalidMode))
		})

		It("should halt on the reserved vector", func() {
			before := *c.Regs()

			Expect(c.Raise(emu.ExceptionReserved)).To(MatchError(emu.ErrReservedException))
			Expect(c.Halted()).To(BeTrue())
			Expect(*c.Regs()).To(BeComparableTo(before))
			Expect(c.Step()).To(BeZero())
		})

		It("should reject offsets that are not vectors", func() {
			Expect(c.Raise(emu.Exception(0x03))).To(MatchError(emu.ErrInvalidException))
			Expect(c.Halted()).To(BeFalse())
			Expect(c.Regs().Mode()).To(Equal(emu.ModeSYS))
		})
	})

	Describe("RaiseIRQ", func() {
		It("should prefetch the vector and link past the interrupted instruction", func() {
			memory.program(0x100, armMovR0)
			memory.program(0x18, armBranchSelf)
			c := newCore(emu.CoreB)
			c.Reset(0x100)

			Expect(c.RaiseIRQ()).To(BeTrue())
			Expect(c.Regs().Mode()).To(Equal(emu.ModeIRQ))
			Expect(c.Regs().R[emu.RegLR]).To(Equal(uint32(0x104)))
			Expect(c.InstructionAddress()).To(Equal(uint32(0x18)))
			Expect(c.Instruction()).To(Equal(uint32(armBranchSelf)))
			Expect(c.Regs().R[emu.RegPC]).To(Equal(uint32(0x20)))
			Expect(c.Stats().IRQs).To(Equal(uint64(1)))
		})

		It("should leave the wait-for-interrupt state", func() {
			c := newCore(emu.CoreA)
			c.WaitForInterrupt()
			Expect(c.WaitingForInterrupt()).To(BeTrue())
			Expect(c.InterruptOverride()).To(BeTrue())

			Expect(c.RaiseIRQ()).To(BeTrue())
			Expect(c.WaitingForInterrupt()).To(BeFalse())
			Expect(c.InterruptOverride()).To(BeFalse())
			Expect(c.InstructionAddress()).To(Equal(uint32(0xFFFF0018)))
		})

		It("should not deliver to a halted core", func() {
			c := newCore(emu.CoreB)
			c.Halt("stopped")
			Expect(c.RaiseIRQ()).To(BeFalse())
			Expect(c.Regs().Mode()).To(Equal(emu.ModeSYS))
		})
	})

	Describe("Undefined instructions", func() {
		type route struct {
			raiser     emu.Identity
			route      emu.UndefinedRoute
			target     emu.Identity
			vectorBase uint32
		}

		var a, b *emu.Core

		build := func(r route) *emu.Core {
			cfg := emu.DefaultCoreConfig(r.raiser)
			cfg.UndefinedRoute = r.route
			cfg.UndefinedTarget = r.target
			cfg.VectorBase = r.vectorBase

			raiser := newCore(r.raiser, emu.WithConfig(cfg))
			peer := newCore(r.raiser.Other())
			if r.raiser == emu.CoreA {
				a, b = raiser, peer
			} else {
				a, b = peer, raiser
			}
			emu.Pair(a, b)
			raiser.Reset(0)
			return raiser
		}

		BeforeEach(func() {
			memory.program(0, armUndefined)
		})

		DescribeTable("routing",
			func(r route, wantHalt bool, wantUND emu.Identity) {
				raiser := build(r)
				Expect(raiser.Step()).To(BeNumerically(">", 0))

				Expect(raiser.Halted()).To(Equal(wantHalt))
				if !wantHalt {
					target := a
					if wantUND == emu.CoreB {
						target = b
					}
					Expect(target.Regs().Mode()).To(Equal(emu.ModeUND))
				}
			},
			Entry("core B with low vectors halts",
				route{emu.CoreB, emu.RouteVectorSelect, emu.CoreA, 0}, true, emu.CoreA),
			Entry("core A with high vectors halts",
				route{emu.CoreA, emu.RouteVectorSelect, emu.CoreA, 0xFFFF0000}, true, emu.CoreA),
			Entry("core A with low vectors handles its own",
				route{emu.CoreA, emu.RouteVectorSelect, emu.CoreA, 0}, false, emu.CoreA),
			Entry("core B with high vectors hands over",
				route{emu.CoreB, emu.RouteVectorSelect, emu.CoreA, 0xFFFF0000}, false, emu.CoreA),
			Entry("redirect always raises on the target",
				route{emu.CoreB, emu.RouteRedirect, emu.CoreA, 0}, false, emu.CoreA),
			Entry("halt always halts",
				route{emu.CoreA, emu.RouteHalt, emu.CoreA, 0}, true, emu.CoreA),
		)

		It("should report the faulting instruction in the halt reason", func() {
			raiser := build(route{emu.CoreB, emu.RouteVectorSelect, emu.CoreA, 0})
			raiser.Step()
			Expect(raiser.HaltReason()).To(ContainSubstring("e7f000f0"))
		})
	})

	Describe("Mode and status", func() {
		It("should notify the scheduler on status changes", func() {
			sched := &fakeScheduler{}
			c := newCore(emu.CoreB, emu.WithScheduler(sched))

			_, err := c.SwitchMode(emu.ModeSVC)
			Expect(err).NotTo(HaveOccurred())
			Expect(sched.notified).To(BeNumerically(">", 0))
		})

		It("should reject an invalid mode in SetStatus", func() {
			c := newCore(emu.CoreB)
			before := *c.Regs()

			Expect(c.SetStatus(emu.Status(0x05))).To(MatchError(emu.ErrInvalidMode))
			Expect(*c.Regs()).To(BeComparableTo(before))
		})

		It("should switch banks through SetStatus", func() {
			c := newCore(emu.CoreB)
			c.Regs().R[emu.RegSP] = 0x3000

			Expect(c.SetStatus(emu.Status(emu.ModeIRQ) | emu.Status(emu.StatusI))).To(Succeed())
			Expect(c.Regs().R[emu.RegSP]).To(BeZero())
			Expect(c.Regs().Banked(emu.ModeSYS, emu.RegSP)).To(Equal(uint32(0x3000)))
		})
	})

	Describe("Control interface", func() {
		var c *emu.Core

		BeforeEach(func() {
			memory.program(0x100, armMovR0, armMovR1)
			memory.program(0x200, armBranchSelf)
			c = newCore(emu.CoreB)
			c.Reset(0x100)
		})

		It("should be idempotent when stalling", func() {
			c.Control().Stall()
			c.Control().Stall()
			Expect(c.Stalled()).To(BeTrue())

			c.Control().Unstall()
			c.Control().Unstall()
			Expect(c.Stalled()).To(BeFalse())
		})

		It("should read and write registers by number", func() {
			ctrl := c.Control()
			ctrl.WriteRegister(3, 0x33)

			Expect(ctrl.ReadRegister(3)).To(Equal(uint32(0x33)))
			Expect(ctrl.ReadRegister(emu.ControlRegPC)).To(Equal(uint32(0x100)))
			Expect(ctrl.ReadRegister(emu.ControlRegStatus)).To(Equal(uint32(emu.ModeSYS)))
			Expect(ctrl.ReadRegister(17)).To(BeZero())
		})

		It("should redirect the next fetch through register 15", func() {
			c.Control().WriteRegister(emu.ControlRegPC, 0x200)
			c.Step()

			Expect(c.Regs().R[0]).To(Equal(uint32(42)))
			Expect(c.InstructionAddress()).To(Equal(uint32(0x200)))
		})

		It("should switch modes through the status register", func() {
			c.Control().WriteRegister(emu.ControlRegStatus, uint32(emu.ModeSVC))
			Expect(c.Regs().Mode()).To(Equal(emu.ModeSVC))
		})

		It("should log a status write with an invalid mode and keep the state", func() {
			var lines []string
			logger := funcr.New(func(_, args string) {
				lines = append(lines, args)
			}, funcr.Options{})
			c = newCore(emu.CoreB, emu.WithLogger(logger))
			c.Reset(0x100)
			before := c.Regs().CPSR

			c.Control().WriteRegister(emu.ControlRegStatus, 0)

			Expect(c.Regs().CPSR).To(Equal(before))
			Expect(strings.Join(lines, "\n")).To(And(
				ContainSubstring("write register rejected"),
				ContainSubstring(`"register"=16`),
			))
		})

		It("should call the post-execute hook after each instruction", func() {
			var seen []uint32
			c.Control().InstallPostExec(func(addr uint32, thumb bool) {
				Expect(thumb).To(BeFalse())
				seen = append(seen, addr)
			})
			c.Step()
			c.Step()
			Expect(seen).To(Equal([]uint32{0x100, 0x104}))

			c.Control().RemovePostExec()
			c.Step()
			Expect(seen).To(HaveLen(2))
		})

		It("should accept a replacement interface", func() {
			custom := &recordingControl{ControlInterface: c.Control()}
			c.SetControlInterface(custom)
			Expect(c.Control()).To(BeIdenticalTo(custom))

			c.Control().Stall()
			Expect(custom.stalls).To(Equal(1))

			c.SetControlInterface(nil)
			Expect(c.Control()).NotTo(BeIdenticalTo(custom))
		})
	})

	Describe("Memory binding", func() {
		It("should route accesses through a redirected interface", func() {
			memory.program(0, armMovR0, armMovR1)
			c := newCore(emu.CoreB)

			Expect(c.RedirectMemory(nil)).To(MatchError(emu.ErrNilMemory))

			rec := mem.NewRecorder(c.BaseMemory(), mem.WithFetches())
			Expect(c.RedirectMemory(rec)).To(Succeed())
			c.Step()

			Expect(rec.Accesses()).To(ContainElement(mem.Access{
				Kind: mem.AccessFetch, Addr: 4, Size: 4, Value: armMovR1,
			}))

			c.ResetMemoryToBase()
			Expect(c.Memory()).To(BeIdenticalTo(c.BaseMemory()))
		})
	})

	Describe("Compact fetch", func() {
		thumbProgram := func() {
			for i := uint32(0); i < 4; i++ {
				memory.Write16(i*2, 0x2005) // mov r0, #5
			}
		}

		It("should fetch both halfwords of a word once on core A", func() {
			memory = newFlatMemory(3)
			thumbProgram()
			c := newCore(emu.CoreA)
			c.Reset(1)

			Expect(c.Step()).To(Equal(uint32(1)))
			Expect(c.Step()).To(Equal(uint32(4)))
			Expect(c.Step()).To(Equal(uint32(1)))
		})

		It("should fetch every halfword on core B", func() {
			memory = newFlatMemory(3)
			thumbProgram()
			c := newCore(emu.CoreB)
			c.Reset(1)

			Expect(c.Step()).To(Equal(uint32(4)))
			Expect(c.Step()).To(Equal(uint32(4)))
		})

		It("should only waive the sequential upper half", func() {
			memory = newFlatMemory(3)
			thumbProgram()
			c := newCore(emu.CoreA)
			c.Reset(1)

			c.Branch(2)
			Expect(c.SyncPipeline()).To(Equal(uint32(0)))
			c.Branch(6)
			Expect(c.SyncPipeline()).To(Equal(uint32(3)))
		})
	})

	Describe("JIT", func() {
		It("should fall back to the interpreter and count the compile", func() {
			memory.program(0, armMovR0)
			jit := &fakeJIT{blocks: map[uint32]emu.CompiledBlock{}}
			c := newCore(emu.CoreB, emu.WithJIT(jit))

			c.Step()
			Expect(c.Regs().R[0]).To(Equal(uint32(42)))
			Expect(jit.compiles).To(Equal(1))
			Expect(c.Stats().JITMisses).To(Equal(uint64(1)))
			Expect(c.Stats().JITCompileCycles).To(Equal(uint64(50)))
			Expect(c.Stats().Instructions).To(Equal(uint64(1)))
		})

		It("should run a compiled block in place of the interpreter", func() {
			memory.program(0, armMovR0)
			memory.program(0x40, armMovR1)
			jit := &fakeJIT{blocks: map[uint32]emu.CompiledBlock{
				0: func(c *emu.Core) uint32 {
					c.Regs().R[5] = 5
					c.Branch(0x40)
					return 7 + c.SyncPipeline()
				},
			}}
			c := newCore(emu.CoreB, emu.WithJIT(jit))

			Expect(c.Step()).To(Equal(uint32(8)))
			Expect(c.Regs().R[5]).To(Equal(uint32(5)))
			Expect(c.Regs().R[0]).To(BeZero())
			Expect(c.InstructionAddress()).To(Equal(uint32(0x40)))
			Expect(c.Instruction()).To(Equal(uint32(armMovR1)))
			Expect(c.Stats().JITHits).To(Equal(uint64(1)))
			Expect(c.Stats().Cycles).To(Equal(uint64(8)))
		})

		It("should report a compiled block to the post-execute observer", func() {
			memory.program(0x40, armMovR1)
			jit := &fakeJIT{blocks: map[uint32]emu.CompiledBlock{
				0x40: func(c *emu.Core) uint32 {
					c.Branch(0x80)
					return 1 + c.SyncPipeline()
				},
			}}
			c := newCore(emu.CoreB, emu.WithJIT(jit))
			c.Reset(0x40)

			var seen []uint32
			c.Control().InstallPostExec(func(addr uint32, thumb bool) {
				Expect(thumb).To(BeFalse())
				seen = append(seen, addr)
			})

			c.Step()
			c.Step()
			Expect(seen).To(Equal([]uint32{0x40, 0x80}))
			Expect(c.Stats().JITHits).To(Equal(uint64(1)))
			Expect(c.Stats().Instructions).To(Equal(uint64(1)))
		})
	})

	Describe("Statistics", func() {
		It("should count hits per dispatch slot when enabled", func() {
			memory.program(0, armMovR0, armMovR0, 0x03A00001)
			c := newCore(emu.CoreB, emu.WithInstructionStats())
			c.Step()
			c.Step()
			c.Step()

			arm, thumb := c.InstructionHits()
			Expect(arm[emu.ARMIndex(armMovR0)]).To(Equal(uint64(2)))
			Expect(thumb).To(HaveLen(emu.ThumbTableSize))
			Expect(c.Stats().ConditionFailed).To(Equal(uint64(1)))

			c.ResetStats()
			arm, _ = c.InstructionHits()
			Expect(arm[emu.ARMIndex(armMovR0)]).To(BeZero())
			Expect(c.Stats()).To(BeComparableTo(emu.Stats{}))
		})

		It("should not allocate histograms by default", func() {
			arm, thumb := newCore(emu.CoreB).InstructionHits()
			Expect(arm).To(BeNil())
			Expect(thumb).To(BeNil())
		})
	})
})

type recordingControl struct {
	emu.ControlInterface
	stalls int
}

func (r *recordingControl) Stall() {
	r.stalls++
	r.ControlInterface.Stall()
}

package mem_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/dualarm/emu"
	"github.com/sarchlab/dualarm/mem"
	"github.com/sarchlab/dualarm/timing/cache"
	"github.com/sarchlab/dualarm/timing/latency"
)

var _ = Describe("Memory", func() {
	var m *mem.Memory

	BeforeEach(func() {
		m = mem.NewMemory()
	})

	It("should read zero from untouched memory", func() {
		Expect(m.Read32(0x12345678)).To(Equal(uint32(0)))
		Expect(m.Read8(0xFFFFFFFF)).To(Equal(uint8(0)))
	})

	It("should store little-endian values", func() {
		m.Write32(0x100, 0x11223344)
		Expect(m.Read8(0x100)).To(Equal(uint8(0x44)))
		Expect(m.Read16(0x102)).To(Equal(uint16(0x1122)))
	})

	It("should handle accesses that straddle pages", func() {
		m.Write32(0x0FFE, 0xAABBCCDD)
		Expect(m.Read32(0x0FFE)).To(Equal(uint32(0xAABBCCDD)))
		Expect(m.Read16(0x1000)).To(Equal(uint16(0xAABB)))
	})

	It("should copy byte slices across pages", func() {
		data := make([]byte, 6000)
		for i := range data {
			data[i] = byte(i)
		}
		m.StoreBytes(0x0F00, data)
		Expect(m.LoadBytes(0x0F00, len(data))).To(Equal(data))
	})

	It("should discard everything on Reset", func() {
		m.Write8(0x40, 1)
		m.Reset()
		Expect(m.Read8(0x40)).To(Equal(uint8(0)))
	})
})

var _ = Describe("Bus", func() {
	var (
		m      *mem.Memory
		timing *latency.TimingConfig
		bus    *mem.Bus
	)

	BeforeEach(func() {
		m = mem.NewMemory()
		timing = latency.DefaultTimingConfig()
		bus = newBus(m, timing)
	})

	It("should give each core its own port", func() {
		Expect(bus.Port(emu.CoreA).ID()).To(Equal(emu.CoreA))
		Expect(bus.Port(emu.CoreB).ID()).To(Equal(emu.CoreB))
	})

	It("should price core B fetches with its wait states", func() {
		m.Write32(0x2000, 0xE1A00000)
		word, cycles := bus.Port(emu.CoreB).Fetch32(0x2000)
		Expect(word).To(Equal(uint32(0xE1A00000)))
		Expect(cycles).To(Equal(timing.CoreB.Fetch32Cycles))

		_, cycles = bus.Port(emu.CoreB).Fetch16(0x2000)
		Expect(cycles).To(Equal(timing.CoreB.Fetch16Cycles))
	})

	It("should fetch core A code through the instruction cache", func() {
		m.Write32(0x2000, 0xE1A00000)
		port := bus.Port(emu.CoreA)

		_, miss := port.Fetch32(0x2000)
		_, hit := port.Fetch32(0x2004)

		Expect(miss).To(Equal(timing.ICache.MissLatency))
		Expect(hit).To(Equal(timing.ICache.HitLatency))
		Expect(bus.ICache().Stats().Hits).To(Equal(uint64(1)))
	})

	It("should invalidate cached code when either core stores over it", func() {
		m.Write32(0x2000, 1)
		port := bus.Port(emu.CoreA)
		port.Fetch32(0x2000)

		bus.Port(emu.CoreB).Write32(0x2000, 2)

		word, cycles := port.Fetch32(0x2000)
		Expect(word).To(Equal(uint32(2)))
		Expect(cycles).To(Equal(timing.ICache.MissLatency))
	})

	It("should refuse a cache that cannot be laid out", func() {
		timing.ICache.Associativity = 0
		_, err := mem.NewBus(m, timing)
		Expect(err).To(MatchError(cache.ErrInvalidGeometry))
	})

	It("should run without a cache when disabled", func() {
		timing.CoreA.InstructionCache = false
		bus = newBus(m, timing)
		Expect(bus.ICache()).To(BeNil())

		_, cycles := bus.Port(emu.CoreA).Fetch32(0)
		Expect(cycles).To(Equal(timing.CoreA.Fetch32Cycles))
	})
})

var _ = Describe("Recorder", func() {
	var (
		m   *mem.Memory
		rec *mem.Recorder
	)

	BeforeEach(func() {
		m = mem.NewMemory()
		bus := newBus(m, latency.DefaultTimingConfig())
		rec = mem.NewRecorder(bus.Port(emu.CoreB))
	})

	It("should forward and record data accesses", func() {
		rec.Write32(0x10, 7)
		Expect(rec.Read32(0x10)).To(Equal(uint32(7)))
		Expect(m.Read32(0x10)).To(Equal(uint32(7)))

		Expect(rec.Accesses()).To(Equal([]mem.Access{
			{Kind: mem.AccessWrite, Addr: 0x10, Size: 4, Value: 7},
			{Kind: mem.AccessRead, Addr: 0x10, Size: 4, Value: 7},
		}))
	})

	It("should skip fetches unless asked", func() {
		rec.Fetch32(0)
		Expect(rec.Accesses()).To(BeEmpty())

		rec = mem.NewRecorder(newBus(m, latency.DefaultTimingConfig()).Port(emu.CoreB), mem.WithFetches())
		rec.Fetch16(2)
		Expect(rec.Accesses()).To(HaveLen(1))
		Expect(rec.Accesses()[0].Kind).To(Equal(mem.AccessFetch))
	})

	It("should keep only the most recent accesses with a limit", func() {
		rec = mem.NewRecorder(newBus(m, latency.DefaultTimingConfig()).Port(emu.CoreB), mem.WithLimit(2))
		rec.Write8(1, 1)
		rec.Write8(2, 2)
		rec.Write8(3, 3)

		Expect(rec.Accesses()).To(HaveLen(2))
		Expect(rec.Accesses()[0].Addr).To(Equal(uint32(2)))
		Expect(rec.Accesses()[1].Addr).To(Equal(uint32(3)))
	})
})

package mem

import (
	"fmt"

	"github.com/sarchlab/dualarm/emu"
	"github.com/sarchlab/dualarm/timing/cache"
	"github.com/sarchlab/dualarm/timing/latency"
)

// Bus connects both cores to one Memory. Each core sees it through its own
// Port, which prices code fetches with that core's timing.
type Bus struct {
	memory *Memory
	icache *cache.Cache
	ports  [2]*Port
}

// NewBus creates a bus over memory. When timing enables it, core A fetches
// through an instruction cache, whose geometry must be valid.
func NewBus(memory *Memory, timing *latency.TimingConfig) (*Bus, error) {
	b := &Bus{memory: memory}

	if timing.CoreA.InstructionCache {
		ic, err := cache.New(timing.ICache, cache.NewMemoryBacking(memory))
		if err != nil {
			return nil, fmt.Errorf("icache: %w", err)
		}
		b.icache = ic
	}

	for _, id := range []emu.Identity{emu.CoreA, emu.CoreB} {
		p := &Port{bus: b, id: id, timing: timing.Core(id)}
		if id == emu.CoreA {
			p.icache = b.icache
		}
		b.ports[id] = p
	}

	return b, nil
}

// Memory returns the backing address space.
func (b *Bus) Memory() *Memory {
	return b.memory
}

// Port returns the memory interface of core id.
func (b *Bus) Port(id emu.Identity) *Port {
	return b.ports[id&1]
}

// ICache returns the instruction cache of core A, or nil.
func (b *Bus) ICache() *cache.Cache {
	return b.icache
}

// invalidate keeps the instruction cache coherent with stores from either
// core.
func (b *Bus) invalidate(addr uint32, size uint32) {
	if b.icache == nil {
		return
	}
	b.icache.Invalidate(addr)
	if last := addr + size - 1; last/uint32(b.icache.Config().BlockSize) != addr/uint32(b.icache.Config().BlockSize) {
		b.icache.Invalidate(last)
	}
}

// Port is one core's view of the bus. It implements emu.MemoryInterface.
type Port struct {
	bus    *Bus
	id     emu.Identity
	timing latency.CoreTiming
	icache *cache.Cache
}

// ID returns the identity of the core the port serves.
func (p *Port) ID() emu.Identity {
	return p.id
}

// Fetch32 fetches a code word.
func (p *Port) Fetch32(addr uint32) (uint32, uint32) {
	if p.icache != nil {
		r := p.icache.Read(addr&^3, 4)
		return r.Data, r.Latency
	}
	return p.bus.memory.Read32(addr &^ 3), p.timing.Fetch32Cycles
}

// Fetch16 fetches a code halfword.
func (p *Port) Fetch16(addr uint32) (uint16, uint32) {
	if p.icache != nil {
		r := p.icache.Read(addr&^1, 2)
		return uint16(r.Data), r.Latency
	}
	return p.bus.memory.Read16(addr &^ 1), p.timing.Fetch16Cycles
}

// Read8 reads a data byte.
func (p *Port) Read8(addr uint32) uint8 {
	return p.bus.memory.Read8(addr)
}

// Read16 reads a data halfword.
func (p *Port) Read16(addr uint32) uint16 {
	return p.bus.memory.Read16(addr)
}

// Read32 reads a data word.
func (p *Port) Read32(addr uint32) uint32 {
	return p.bus.memory.Read32(addr)
}

// Write8 writes a data byte.
func (p *Port) Write8(addr uint32, value uint8) {
	p.bus.memory.Write8(addr, value)
	p.bus.invalidate(addr, 1)
}

// Write16 writes a data halfword.
func (p *Port) Write16(addr uint32, value uint16) {
	p.bus.memory.Write16(addr, value)
	p.bus.invalidate(addr, 2)
}

// Write32 writes a data word.
func (p *Port) Write32(addr uint32, value uint32) {
	p.bus.memory.Write32(addr, value)
	p.bus.invalidate(addr, 4)
}

package mem

import (
	"fmt"

	"github.com/sarchlab/dualarm/emu"
)

// AccessKind classifies a recorded access.
type AccessKind uint8

// Access kinds.
const (
	AccessFetch AccessKind = iota
	AccessRead
	AccessWrite
)

func (k AccessKind) String() string {
	switch k {
	case AccessFetch:
		return "fetch"
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	}
	return "unknown"
}

// Access is one memory operation seen by a Recorder.
type Access struct {
	Kind  AccessKind
	Addr  uint32
	Size  uint8
	Value uint32
}

func (a Access) String() string {
	return fmt.Sprintf("%s%d 0x%08x = %#x", a.Kind, a.Size*8, a.Addr, a.Value)
}

// Recorder wraps a memory interface and records the accesses passing
// through it. Install it with Core.RedirectMemory and remove it with
// Core.ResetMemoryToBase.
type Recorder struct {
	next     emu.MemoryInterface
	limit    int
	fetches  bool
	accesses []Access
}

// RecorderOption is a functional option for configuring a Recorder.
type RecorderOption func(*Recorder)

// WithLimit keeps only the most recent n accesses.
func WithLimit(n int) RecorderOption {
	return func(r *Recorder) {
		r.limit = n
	}
}

// WithFetches also records code fetches.
func WithFetches() RecorderOption {
	return func(r *Recorder) {
		r.fetches = true
	}
}

// NewRecorder creates a recorder forwarding to next.
func NewRecorder(next emu.MemoryInterface, opts ...RecorderOption) *Recorder {
	r := &Recorder{next: next}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Accesses returns the recorded accesses, oldest first.
func (r *Recorder) Accesses() []Access {
	return r.accesses
}

// Reset discards the recorded accesses.
func (r *Recorder) Reset() {
	r.accesses = r.accesses[:0]
}

func (r *Recorder) record(kind AccessKind, addr uint32, size uint8, value uint32) {
	if kind == AccessFetch && !r.fetches {
		return
	}
	if r.limit > 0 && len(r.accesses) == r.limit {
		copy(r.accesses, r.accesses[1:])
		r.accesses = r.accesses[:r.limit-1]
	}
	r.accesses = append(r.accesses, Access{Kind: kind, Addr: addr, Size: size, Value: value})
}

// Fetch32 forwards a code word fetch.
func (r *Recorder) Fetch32(addr uint32) (uint32, uint32) {
	v, cycles := r.next.Fetch32(addr)
	r.record(AccessFetch, addr, 4, v)
	return v, cycles
}

// Fetch16 forwards a code halfword fetch.
func (r *Recorder) Fetch16(addr uint32) (uint16, uint32) {
	v, cycles := r.next.Fetch16(addr)
	r.record(AccessFetch, addr, 2, uint32(v))
	return v, cycles
}

// Read8 forwards a byte read.
func (r *Recorder) Read8(addr uint32) uint8 {
	v := r.next.Read8(addr)
	r.record(AccessRead, addr, 1, uint32(v))
	return v
}

// Read16 forwards a halfword read.
func (r *Recorder) Read16(addr uint32) uint16 {
	v := r.next.Read16(addr)
	r.record(AccessRead, addr, 2, uint32(v))
	return v
}

// Read32 forwards a word read.
func (r *Recorder) Read32(addr uint32) uint32 {
	v := r.next.Read32(addr)
	r.record(AccessRead, addr, 4, v)
	return v
}

// Write8 forwards a byte write.
func (r *Recorder) Write8(addr uint32, value uint8) {
	r.next.Write8(addr, value)
	r.record(AccessWrite, addr, 1, uint32(value))
}

// Write16 forwards a halfword write.
func (r *Recorder) Write16(addr uint32, value uint16) {
	r.next.Write16(addr, value)
	r.record(AccessWrite, addr, 2, uint32(value))
}

// Write32 forwards a word write.
func (r *Recorder) Write32(addr uint32, value uint32) {
	r.next.Write32(addr, value)
	r.record(AccessWrite, addr, 4, value)
}

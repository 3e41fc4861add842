// Package mem provides the default memory system of the dual-core complex:
// a sparse little-endian address space, a bus with one port per core and an
// access recorder for tooling.
package mem

import (
	"encoding/binary"
)

const (
	pageBits = 12
	pageSize = 1 << pageBits
	pageMask = pageSize - 1
)

// Memory represents the full 32-bit address space. Pages are allocated on
// first write; unwritten memory reads as zero.
type Memory struct {
	pages map[uint32]*[pageSize]byte
}

// NewMemory creates an empty address space.
func NewMemory() *Memory {
	return &Memory{pages: make(map[uint32]*[pageSize]byte)}
}

func (m *Memory) page(addr uint32, alloc bool) *[pageSize]byte {
	p := m.pages[addr>>pageBits]
	if p == nil && alloc {
		p = new([pageSize]byte)
		m.pages[addr>>pageBits] = p
	}
	return p
}

// Read8 reads a byte.
func (m *Memory) Read8(addr uint32) uint8 {
	p := m.page(addr, false)
	if p == nil {
		return 0
	}
	return p[addr&pageMask]
}

// Write8 writes a byte.
func (m *Memory) Write8(addr uint32, value uint8) {
	m.page(addr, true)[addr&pageMask] = value
}

// Read16 reads a little-endian halfword. The address is not aligned.
func (m *Memory) Read16(addr uint32) uint16 {
	if addr&pageMask <= pageSize-2 {
		p := m.page(addr, false)
		if p == nil {
			return 0
		}
		return binary.LittleEndian.Uint16(p[addr&pageMask:])
	}
	return uint16(m.Read8(addr)) | uint16(m.Read8(addr+1))<<8
}

// Write16 writes a little-endian halfword.
func (m *Memory) Write16(addr uint32, value uint16) {
	if addr&pageMask <= pageSize-2 {
		binary.LittleEndian.PutUint16(m.page(addr, true)[addr&pageMask:], value)
		return
	}
	m.Write8(addr, uint8(value))
	m.Write8(addr+1, uint8(value>>8))
}

// Read32 reads a little-endian word. The address is not aligned.
func (m *Memory) Read32(addr uint32) uint32 {
	if addr&pageMask <= pageSize-4 {
		p := m.page(addr, false)
		if p == nil {
			return 0
		}
		return binary.LittleEndian.Uint32(p[addr&pageMask:])
	}
	return uint32(m.Read16(addr)) | uint32(m.Read16(addr+2))<<16
}

// Write32 writes a little-endian word.
func (m *Memory) Write32(addr uint32, value uint32) {
	if addr&pageMask <= pageSize-4 {
		binary.LittleEndian.PutUint32(m.page(addr, true)[addr&pageMask:], value)
		return
	}
	m.Write16(addr, uint16(value))
	m.Write16(addr+2, uint16(value>>16))
}

// StoreBytes copies data into memory starting at addr.
func (m *Memory) StoreBytes(addr uint32, data []byte) {
	for len(data) > 0 {
		p := m.page(addr, true)
		n := copy(p[addr&pageMask:], data)
		data = data[n:]
		addr += uint32(n)
	}
}

// LoadBytes reads length bytes starting at addr.
func (m *Memory) LoadBytes(addr uint32, length int) []byte {
	out := make([]byte, length)
	for i := range out {
		out[i] = m.Read8(addr + uint32(i))
	}
	return out
}

// Reset discards every page.
func (m *Memory) Reset() {
	clear(m.pages)
}

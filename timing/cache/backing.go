package cache

// ByteReader is the minimal memory surface a cache line can be filled from.
type ByteReader interface {
	Read8(addr uint32) uint8
}

// MemoryBacking adapts a ByteReader as a BackingStore.
type MemoryBacking struct {
	memory ByteReader
}

// NewMemoryBacking creates a new MemoryBacking adapter.
func NewMemoryBacking(memory ByteReader) *MemoryBacking {
	return &MemoryBacking{memory: memory}
}

// ReadBlock fills dst from the backing memory.
func (m *MemoryBacking) ReadBlock(addr uint32, dst []byte) {
	for i := range dst {
		dst[i] = m.memory.Read8(addr + uint32(i))
	}
}

package loader

import (
	"bytes"
	"fmt"
	"os"
)

// Memory is the destination of LoadInto.
type Memory interface {
	StoreBytes(addr uint32, data []byte)
}

// LoadRaw reads a flat binary image that runs from base.
func LoadRaw(path string, base uint32) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return &Program{
		EntryPoint: base,
		Segments: []Segment{{
			VirtAddr: base,
			Data:     data,
			MemSize:  uint32(len(data)),
			Flags:    SegmentFlagRead | SegmentFlagWrite | SegmentFlagExecute,
		}},
	}, nil
}

// LoadImage loads path as an ELF binary when it carries the ELF magic and as
// a raw image at base otherwise.
func LoadImage(path string, base uint32) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	magic := make([]byte, 4)
	n, _ := f.Read(magic)
	_ = f.Close()

	if n == 4 && bytes.Equal(magic, []byte("\x7fELF")) {
		return Load(path)
	}
	return LoadRaw(path, base)
}

// LoadInto copies every segment into m and zero-fills the part of each
// segment that has no file data.
func (p *Program) LoadInto(m Memory) {
	for _, seg := range p.Segments {
		m.StoreBytes(seg.VirtAddr, seg.Data)
		if bss := int(seg.MemSize) - len(seg.Data); bss > 0 {
			m.StoreBytes(seg.VirtAddr+uint32(len(seg.Data)), make([]byte, bss))
		}
	}
}

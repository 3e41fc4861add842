// Package loader loads ARM executables and raw images into emulated memory.
package loader

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"
)

// SegmentFlags holds the access permissions of a loadable segment.
type SegmentFlags uint32

// Segment permissions.
const (
	SegmentFlagExecute SegmentFlags = 1 << iota
	SegmentFlagWrite
	SegmentFlagRead
)

var (
	// ErrNotELF32 is returned for ELF files of the wrong class.
	ErrNotELF32 = errors.New("not a 32-bit ELF file")

	// ErrNotARM is returned for ELF files built for another machine.
	ErrNotARM = errors.New("not an ARM ELF file")
)

var progFlags = [...]struct {
	prog elf.ProgFlag
	seg  SegmentFlags
}{
	{elf.PF_X, SegmentFlagExecute},
	{elf.PF_W, SegmentFlagWrite},
	{elf.PF_R, SegmentFlagRead},
}

// Segment is one PT_LOAD region. MemSize may exceed len(Data); the rest
// is zero-filled when loaded.
type Segment struct {
	VirtAddr uint32
	Data     []byte
	MemSize  uint32
	Flags    SegmentFlags
}

// Program is a loaded image. Bit 0 of EntryPoint selects Thumb state, as
// for a core reset.
type Program struct {
	EntryPoint uint32
	Segments   []Segment
}

// Load parses a little-endian 32-bit ARM ELF binary.
func Load(path string) (*Program, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	switch {
	case f.Class != elf.ELFCLASS32:
		return nil, fmt.Errorf("%w (class: %v)", ErrNotELF32, f.Class)
	case f.Machine != elf.EM_ARM:
		return nil, fmt.Errorf("%w (machine: %v)", ErrNotARM, f.Machine)
	}

	prog := &Program{EntryPoint: uint32(f.Entry)}
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		seg, err := readSegment(p)
		if err != nil {
			return nil, err
		}
		prog.Segments = append(prog.Segments, seg)
	}

	return prog, nil
}

func readSegment(p *elf.Prog) (Segment, error) {
	data, err := io.ReadAll(p.Open())
	if err != nil {
		return Segment{}, fmt.Errorf("segment 0x%08x: %w", p.Vaddr, err)
	}
	if uint64(len(data)) != p.Filesz {
		return Segment{}, fmt.Errorf("segment 0x%08x: read %d of %d bytes",
			p.Vaddr, len(data), p.Filesz)
	}

	seg := Segment{
		VirtAddr: uint32(p.Vaddr),
		Data:     data,
		MemSize:  uint32(p.Memsz),
	}
	for _, pf := range progFlags {
		if p.Flags&pf.prog != 0 {
			seg.Flags |= pf.seg
		}
	}
	return seg, nil
}

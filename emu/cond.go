// Package emu provides the dual-core ARM execution engine.
package emu

// Cond represents an ARM condition code.
type Cond uint8

// Condition field encodings. Odd encodings below AL negate the even one
// before them.
const (
	CondEQ Cond = iota // Z
	CondNE
	CondCS // C
	CondCC
	CondMI // N
	CondPL
	CondVS // V
	CondVC
	CondHI // C and not Z
	CondLS
	CondGE // N equals V
	CondLT
	CondGT // not Z and N equals V
	CondLE
	CondAL
	CondNV // fails on ARMv4T, unconditional space on ARMv5
)

// condTable is indexed by cond<<4 | NZCV.
var condTable [256]bool

func init() {
	for cond := Cond(0); cond < 16; cond++ {
		for f := uint32(0); f < 16; f++ {
			condTable[uint32(cond)<<4|f] = evalCond(cond, f&8 != 0, f&4 != 0, f&2 != 0, f&1 != 0)
		}
	}
}

func evalCond(cond Cond, n, z, c, v bool) bool {
	var pass bool
	switch cond >> 1 {
	case 0:
		pass = z
	case 1:
		pass = c
	case 2:
		pass = n
	case 3:
		pass = v
	case 4:
		pass = c && !z
	case 5:
		pass = n == v
	case 6:
		pass = !z && n == v
	default:
		return cond == CondAL
	}
	if cond&1 != 0 {
		return !pass
	}
	return pass
}

// CheckCondition reports whether cond passes for the flags in s.
func CheckCondition(cond Cond, s Status) bool {
	return condTable[uint32(cond&0xF)<<4|s.flags()]
}

// ConditionOf extracts the condition field of a 32-bit instruction.
func ConditionOf(instruction uint32) Cond {
	return Cond(instruction >> 28)
}

func (c Cond) String() string {
	return [...]string{"eq", "ne", "cs", "cc", "mi", "pl", "vs", "vc",
		"hi", "ls", "ge", "lt", "gt", "le", "al", "nv"}[c&0xF]
}

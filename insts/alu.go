package insts

// shift applies the barrel shifter with immediate-amount semantics, where an
// amount of zero encodes LSR #32, ASR #32 and RRX. It returns the result and
// the shifter carry out.
func shift(v uint32, t ShiftType, amount uint8, carry bool) (uint32, bool) {
	switch t {
	case ShiftLSL:
		if amount == 0 {
			return v, carry
		}
		return v << amount, v&(1<<(32-amount)) != 0
	case ShiftLSR:
		if amount == 0 {
			return 0, v&0x80000000 != 0
		}
		return v >> amount, v&(1<<(amount-1)) != 0
	case ShiftASR:
		if amount == 0 {
			if v&0x80000000 != 0 {
				return 0xFFFFFFFF, true
			}
			return 0, false
		}
		return uint32(int32(v) >> amount), v&(1<<(amount-1)) != 0
	default:
		if amount == 0 {
			var c uint32
			if carry {
				c = 0x80000000
			}
			return c | v>>1, v&1 != 0
		}
		return rotateRight(v, uint(amount)), v&(1<<(amount-1)) != 0
	}
}

// shiftByRegister applies the barrel shifter with a register amount, of
// which only the low byte counts.
func shiftByRegister(v uint32, t ShiftType, amount uint32, carry bool) (uint32, bool) {
	amount &= 0xFF
	if amount == 0 {
		return v, carry
	}

	switch t {
	case ShiftLSL:
		switch {
		case amount < 32:
			return v << amount, v&(1<<(32-amount)) != 0
		case amount == 32:
			return 0, v&1 != 0
		}
		return 0, false
	case ShiftLSR:
		switch {
		case amount < 32:
			return v >> amount, v&(1<<(amount-1)) != 0
		case amount == 32:
			return 0, v&0x80000000 != 0
		}
		return 0, false
	case ShiftASR:
		if amount >= 32 {
			if v&0x80000000 != 0 {
				return 0xFFFFFFFF, true
			}
			return 0, false
		}
		return uint32(int32(v) >> amount), v&(1<<(amount-1)) != 0
	default:
		amount &= 31
		if amount == 0 {
			return v, v&0x80000000 != 0
		}
		return rotateRight(v, uint(amount)), v&(1<<(amount-1)) != 0
	}
}

// addWithCarry returns a+b+carry with the carry and overflow flags.
func addWithCarry(a, b uint32, carry bool) (result uint32, c, v bool) {
	var cin uint64
	if carry {
		cin = 1
	}
	sum := uint64(a) + uint64(b) + cin
	result = uint32(sum)
	c = sum>>32 != 0
	v = (^(a^b))&(a^result)&0x80000000 != 0
	return result, c, v
}

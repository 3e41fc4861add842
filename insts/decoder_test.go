package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/dualarm/insts"
)

var _ = Describe("Decoder", func() {
	var decoder *insts.Decoder

	BeforeEach(func() {
		decoder = insts.NewDecoder()
	})

	Describe("Data processing", func() {
		// MOV R0, #42 -> 0xE3A0002A
		It("should decode MOV R0, #42", func() {
			inst := decoder.Decode(0xE3A0002A)

			Expect(inst.Op).To(Equal(insts.OpMOV))
			Expect(inst.Format).To(Equal(insts.FormatDataProc))
			Expect(inst.Cond).To(Equal(uint8(0xE)))
			Expect(inst.Rd).To(Equal(uint8(0)))
			Expect(inst.Immediate).To(BeTrue())
			Expect(inst.Imm).To(Equal(uint32(42)))
			Expect(inst.SetFlags).To(BeFalse())
		})

		// MOV R1, #0xF0000000 -> 0xE3A0120F
		It("should rotate the immediate", func() {
			inst := decoder.Decode(0xE3A0120F)

			Expect(inst.Imm).To(Equal(uint32(0xF0000000)))
			Expect(inst.Rotate).To(Equal(uint8(4)))
		})

		// ADDS R2, R0, R1 -> 0xE0902001
		It("should decode ADDS R2, R0, R1", func() {
			inst := decoder.Decode(0xE0902001)

			Expect(inst.Op).To(Equal(insts.OpADD))
			Expect(inst.SetFlags).To(BeTrue())
			Expect(inst.Rd).To(Equal(uint8(2)))
			Expect(inst.Rn).To(Equal(uint8(0)))
			Expect(inst.Rm).To(Equal(uint8(1)))
			Expect(inst.Immediate).To(BeFalse())
		})

		// MOV R5, R0, LSR R6 -> 0xE1A05630
		It("should decode a register-specified shift", func() {
			inst := decoder.Decode(0xE1A05630)

			Expect(inst.ShiftByReg).To(BeTrue())
			Expect(inst.ShiftType).To(Equal(insts.ShiftLSR))
			Expect(inst.Rs).To(Equal(uint8(6)))
		})

		// CMP R0, #43 -> 0xE350002B
		It("should decode CMP as a flag-setting compare", func() {
			inst := decoder.Decode(0xE350002B)

			Expect(inst.Op).To(Equal(insts.OpCMP))
			Expect(inst.SetFlags).To(BeTrue())
			Expect(inst.Rn).To(Equal(uint8(0)))
		})
	})

	Describe("Multiply", func() {
		// MLA R3, R0, R1, R2 -> 0xE0232190
		It("should decode MLA", func() {
			inst := decoder.Decode(0xE0232190)

			Expect(inst.Op).To(Equal(insts.OpMLA))
			Expect(inst.Format).To(Equal(insts.FormatMultiply))
			Expect(inst.Rd).To(Equal(uint8(3)))
			Expect(inst.Rn).To(Equal(uint8(2)))
			Expect(inst.Rs).To(Equal(uint8(1)))
			Expect(inst.Rm).To(Equal(uint8(0)))
		})
	})

	Describe("Branches", func() {
		// B -8 (branch to self) -> 0xEAFFFFFE
		It("should sign-extend the branch offset", func() {
			inst := decoder.Decode(0xEAFFFFFE)

			Expect(inst.Op).To(Equal(insts.OpB))
			Expect(inst.Offset).To(Equal(int32(-8)))
		})

		It("should decode BL", func() {
			inst := decoder.Decode(0xEB000002)

			Expect(inst.Op).To(Equal(insts.OpBL))
			Expect(inst.Link).To(BeTrue())
			Expect(inst.Offset).To(Equal(int32(8)))
		})

		It("should decode BLX immediate under condition 0xF", func() {
			inst := decoder.Decode(0xFB000000)

			Expect(inst.Op).To(Equal(insts.OpBLX))
			Expect(inst.Offset).To(Equal(int32(2)))
		})

		It("should decode BX and BLX register", func() {
			Expect(decoder.Decode(0xE12FFF10).Op).To(Equal(insts.OpBX))
			Expect(decoder.Decode(0xE12FFF31).Op).To(Equal(insts.OpBLX))
		})

		It("should reject BX with clear should-be-one bits", func() {
			inst := decoder.Decode(0xE1200010)

			Expect(inst.Format).To(Equal(insts.FormatBranchExchange))
			Expect(inst.Op).To(Equal(insts.OpUnknown))
		})
	})

	Describe("Transfers", func() {
		// LDR R2, [R1], #4 -> 0xE4912004
		It("should decode post-indexed LDR with writeback", func() {
			inst := decoder.Decode(0xE4912004)

			Expect(inst.Op).To(Equal(insts.OpLDR))
			Expect(inst.Pre).To(BeFalse())
			Expect(inst.WriteBack).To(BeTrue())
			Expect(inst.Imm).To(Equal(uint32(4)))
		})

		It("should decode STRB", func() {
			inst := decoder.Decode(0xE5C10004)

			Expect(inst.Op).To(Equal(insts.OpSTR))
			Expect(inst.Byte).To(BeTrue())
			Expect(inst.Pre).To(BeTrue())
		})

		It("should leave the media space undefined", func() {
			Expect(decoder.Decode(0xE7F000F0).Format).To(Equal(insts.FormatUnknown))
		})
	})

	Describe("System", func() {
		It("should decode MRS and MSR", func() {
			mrs := decoder.Decode(0xE10F0000)
			Expect(mrs.Op).To(Equal(insts.OpMRS))

			msr := decoder.Decode(0xE328F20F)
			Expect(msr.Op).To(Equal(insts.OpMSR))
			Expect(msr.FieldMask).To(Equal(uint8(8)))
			Expect(msr.Imm).To(Equal(uint32(0xF0000000)))
		})

		It("should decode SWI", func() {
			inst := decoder.Decode(0xEF00002A)

			Expect(inst.Op).To(Equal(insts.OpSWI))
			Expect(inst.Imm).To(Equal(uint32(42)))
		})

		// MCR p15, 0, R0, c7, c0, 4 -> 0xEE070F90
		It("should decode the CP15 wait-for-interrupt", func() {
			inst := decoder.Decode(0xEE070F90)

			Expect(inst.Op).To(Equal(insts.OpMCR))
			Expect(inst.CRn).To(Equal(uint8(7)))
			Expect(inst.Opc2).To(Equal(uint8(4)))
		})

		It("should not decode other coprocessors", func() {
			inst := decoder.Decode(0xEE070E90)

			Expect(inst.Format).To(Equal(insts.FormatCoprocessor))
			Expect(inst.Op).To(Equal(insts.OpUnknown))
		})
	})

	Describe("Thumb", func() {
		DescribeTable("operations",
			func(half uint16, op insts.Op, format insts.Format) {
				inst := decoder.DecodeThumb(half)
				Expect(inst.Thumb).To(BeTrue())
				Expect(inst.Op).To(Equal(op))
				Expect(inst.Format).To(Equal(format))
			},
			Entry("LSL r1, r0, #2", uint16(0x0081), insts.OpMOV, insts.FormatDataProc),
			Entry("ADD r2, r0, r1", uint16(0x1842), insts.OpADD, insts.FormatDataProc),
			Entry("MOV r0, #5", uint16(0x2005), insts.OpMOV, insts.FormatDataProc),
			Entry("CMP r0, #8", uint16(0x2808), insts.OpCMP, insts.FormatDataProc),
			Entry("NEG r0, r1", uint16(0x4248), insts.OpRSB, insts.FormatDataProc),
			Entry("MUL r0, r1", uint16(0x4348), insts.OpMUL, insts.FormatMultiply),
			Entry("BX r1", uint16(0x4708), insts.OpBX, insts.FormatBranchExchange),
			Entry("LDR r0, [pc, #4]", uint16(0x4801), insts.OpLDR, insts.FormatLoadStore),
			Entry("STR r0, [r1, #4]", uint16(0x6048), insts.OpSTR, insts.FormatLoadStore),
			Entry("BEQ", uint16(0xD0FE), insts.OpB, insts.FormatBranch),
			Entry("SWI", uint16(0xDF00), insts.OpSWI, insts.FormatSWI),
			Entry("B", uint16(0xE7FE), insts.OpB, insts.FormatBranch),
			Entry("BL prefix", uint16(0xF000), insts.OpBLPrefix, insts.FormatLongBranch),
			Entry("BL suffix", uint16(0xF802), insts.OpBLSuffix, insts.FormatLongBranch),
			Entry("BLX suffix", uint16(0xE802), insts.OpBLXSuffix, insts.FormatLongBranch),
		)

		It("should sign-extend conditional branch offsets", func() {
			inst := decoder.DecodeThumb(0xD0FE)
			Expect(inst.Cond).To(Equal(uint8(0)))
			Expect(inst.Offset).To(Equal(int32(-4)))
		})

		It("should scale the unconditional branch offset", func() {
			Expect(decoder.DecodeThumb(0xE7FE).Offset).To(Equal(int32(-4)))
		})

		It("should leave the undefined conditional slot unknown", func() {
			Expect(decoder.DecodeThumb(0xDE00).Format).To(Equal(insts.FormatUnknown))
		})
	})

	Describe("Disassemble", func() {
		DescribeTable("rendering",
			func(word uint32, addr uint32, expected string) {
				Expect(insts.Disassemble(decoder.Decode(word), addr)).To(Equal(expected))
			},
			Entry("mov", uint32(0xE3A0002A), uint32(0), "mov r0, #0x2a"),
			Entry("adds", uint32(0xE0902001), uint32(0), "adds r2, r0, r1"),
			Entry("cmp", uint32(0xE350002B), uint32(0), "cmp r0, #0x2b"),
			Entry("b", uint32(0xEAFFFFFE), uint32(0x100), "b 0x00000100"),
			Entry("ldr", uint32(0xE5912004), uint32(0), "ldr r2, [r1, #0x4]"),
			Entry("undefined", uint32(0xE7F000F0), uint32(0), "undefined"),
		)
	})
})

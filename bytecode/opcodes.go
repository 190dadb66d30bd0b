package bytecode

import "fmt"

// Width selects the operand size of a width-variant instruction.
type Width uint8

const (
	WidthB Width = 1 // byte
	WidthW Width = 4 // word, the default
	WidthD Width = 8 // dword
)

// Size returns the width in bytes.
func (w Width) Size() int {
	return int(w)
}

// Slots returns how many 4-byte stack slots a value of this width occupies.
func (w Width) Slots() int {
	if w == WidthD {
		return 2
	}
	return 1
}

func (w Width) String() string {
	switch w {
	case WidthB:
		return "b"
	case WidthW:
		return "w"
	case WidthD:
		return "d"
	default:
		return fmt.Sprintf("Width(%d)", uint8(w))
	}
}

// OperandKind describes what follows an opcode byte in the code stream.
type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandImm              // immediate, sized by the opcode width
	OperandSlot             // 1-byte locals slot index
	OperandCode             // 4-byte absolute code offset
	OperandData             // 4-byte data segment offset
)

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category.
type Opcode byte

const (
	// ========================================================================
	// Misc (0x00-0x0F)
	// ========================================================================

	OpNop Opcode = 0x00 // No operation

	// ========================================================================
	// Push (0x10-0x1F)
	// ========================================================================

	OpPushB   Opcode = 0x10 // Push byte immediate: push.b <imm:i8>
	OpPushW   Opcode = 0x11 // Push word immediate: push <imm:i32>
	OpPushD   Opcode = 0x12 // Push dword immediate: push.d <imm:i64>
	OpDataPtr Opcode = 0x13 // Push read-only data pointer: dataptr <offset:u32>

	// ========================================================================
	// Locals (0x20-0x2F)
	// ========================================================================

	OpLoadB  Opcode = 0x20 // Push locals slot, byte: load.b <slot:u8>
	OpLoadW  Opcode = 0x21 // Push locals slot, word: load <slot:u8>
	OpLoadD  Opcode = 0x22 // Push locals slots, dword: load.d <slot:u8>
	OpStoreB Opcode = 0x23 // Pop to locals slot, byte: store.b <slot:u8>
	OpStoreW Opcode = 0x24 // Pop to locals slot, word: store <slot:u8>
	OpStoreD Opcode = 0x25 // Pop to locals slots, dword: store.d <slot:u8>

	// ========================================================================
	// Stack manipulation (0x30-0x3F)
	// ========================================================================

	OpDupB Opcode = 0x30 // Duplicate top byte value
	OpDupW Opcode = 0x31 // Duplicate top word value
	OpDupD Opcode = 0x32 // Duplicate top dword value
	OpPopB Opcode = 0x33 // Drop top byte value
	OpPopW Opcode = 0x34 // Drop top word value
	OpPopD Opcode = 0x35 // Drop top dword value

	// ========================================================================
	// Arithmetic (0x40-0x4F)
	// ========================================================================

	OpAddB Opcode = 0x40
	OpAddW Opcode = 0x41
	OpAddD Opcode = 0x42
	OpSubB Opcode = 0x43
	OpSubW Opcode = 0x44
	OpSubD Opcode = 0x45
	OpMulB Opcode = 0x46
	OpMulW Opcode = 0x47
	OpMulD Opcode = 0x48
	OpDivB Opcode = 0x49
	OpDivW Opcode = 0x4A
	OpDivD Opcode = 0x4B

	// ========================================================================
	// Compare (0x50-0x5F)
	// ========================================================================

	OpCmpB Opcode = 0x50 // Pop two bytes, push i32 sign of (a-b)
	OpCmpW Opcode = 0x51 // Pop two words, push i32 sign of (a-b)
	OpCmpD Opcode = 0x52 // Pop two dwords, push i32 sign of (a-b)

	// ========================================================================
	// Branches (0x60-0x6F)
	// ========================================================================

	OpJmp   Opcode = 0x60 // Unconditional: jmp <offset:u32>
	OpJmpEq Opcode = 0x61 // Pop cmp result, branch if == 0
	OpJmpNe Opcode = 0x62 // Pop cmp result, branch if != 0
	OpJmpLt Opcode = 0x63 // Pop cmp result, branch if < 0
	OpJmpGt Opcode = 0x64 // Pop cmp result, branch if > 0
	OpJmpLe Opcode = 0x65 // Pop cmp result, branch if <= 0
	OpJmpGe Opcode = 0x66 // Pop cmp result, branch if >= 0

	// ========================================================================
	// Call/return (0x70-0x7F)
	// ========================================================================

	OpCall Opcode = 0x70 // Push frame, marshal operand stack into locals: call <offset:u32>
	OpRet  Opcode = 0x71 // Return no value
	OpRetB Opcode = 0x72 // Return byte value
	OpRetW Opcode = 0x73 // Return word value
	OpRetD Opcode = 0x74 // Return dword value

	// ========================================================================
	// Heap (0x80-0x8F)
	// ========================================================================

	OpALoadB  Opcode = 0x80 // Pop (ptr, offset), push byte loaded
	OpALoadW  Opcode = 0x81 // Pop (ptr, offset), push word loaded
	OpALoadD  Opcode = 0x82 // Pop (ptr, offset), push dword loaded
	OpAStoreB Opcode = 0x83 // Pop (ptr, offset, value), store byte
	OpAStoreW Opcode = 0x84 // Pop (ptr, offset, value), store word
	OpAStoreD Opcode = 0x85 // Pop (ptr, offset, value), store dword
	OpAlloc   Opcode = 0x86 // Pop size dword, push pointer (-1 on failure)
	OpFree    Opcode = 0x87 // Pop pointer, release allocation

	// ========================================================================
	// Host bridge (0x90-0x9F)
	// ========================================================================

	OpSystem Opcode = 0x90 // Pop syscall number + args, invoke host
)

// OpcodeInfo provides metadata about each opcode for the assembler, the
// disassembler and the VM decoder.
type OpcodeInfo struct {
	Name    string      // Assembler mnemonic, width suffix included
	Width   Width       // Operand/value width of the variant
	Operand OperandKind // What follows the opcode byte
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpNop: {"nop", WidthW, OperandNone},

	OpPushB:   {"push.b", WidthB, OperandImm},
	OpPushW:   {"push", WidthW, OperandImm},
	OpPushD:   {"push.d", WidthD, OperandImm},
	OpDataPtr: {"dataptr", WidthD, OperandData},

	OpLoadB:  {"load.b", WidthB, OperandSlot},
	OpLoadW:  {"load", WidthW, OperandSlot},
	OpLoadD:  {"load.d", WidthD, OperandSlot},
	OpStoreB: {"store.b", WidthB, OperandSlot},
	OpStoreW: {"store", WidthW, OperandSlot},
	OpStoreD: {"store.d", WidthD, OperandSlot},

	OpDupB: {"dup.b", WidthB, OperandNone},
	OpDupW: {"dup", WidthW, OperandNone},
	OpDupD: {"dup.d", WidthD, OperandNone},
	OpPopB: {"pop.b", WidthB, OperandNone},
	OpPopW: {"pop", WidthW, OperandNone},
	OpPopD: {"pop.d", WidthD, OperandNone},

	OpAddB: {"add.b", WidthB, OperandNone},
	OpAddW: {"add", WidthW, OperandNone},
	OpAddD: {"add.d", WidthD, OperandNone},
	OpSubB: {"sub.b", WidthB, OperandNone},
	OpSubW: {"sub", WidthW, OperandNone},
	OpSubD: {"sub.d", WidthD, OperandNone},
	OpMulB: {"mul.b", WidthB, OperandNone},
	OpMulW: {"mul", WidthW, OperandNone},
	OpMulD: {"mul.d", WidthD, OperandNone},
	OpDivB: {"div.b", WidthB, OperandNone},
	OpDivW: {"div", WidthW, OperandNone},
	OpDivD: {"div.d", WidthD, OperandNone},

	OpCmpB: {"cmp.b", WidthB, OperandNone},
	OpCmpW: {"cmp", WidthW, OperandNone},
	OpCmpD: {"cmp.d", WidthD, OperandNone},

	OpJmp:   {"jmp", WidthW, OperandCode},
	OpJmpEq: {"jmp.eq", WidthW, OperandCode},
	OpJmpNe: {"jmp.ne", WidthW, OperandCode},
	OpJmpLt: {"jmp.lt", WidthW, OperandCode},
	OpJmpGt: {"jmp.gt", WidthW, OperandCode},
	OpJmpLe: {"jmp.le", WidthW, OperandCode},
	OpJmpGe: {"jmp.ge", WidthW, OperandCode},

	OpCall: {"call", WidthW, OperandCode},
	OpRet:  {"ret", WidthW, OperandNone},
	OpRetB: {"ret.b", WidthB, OperandNone},
	OpRetW: {"ret.w", WidthW, OperandNone},
	OpRetD: {"ret.d", WidthD, OperandNone},

	OpALoadB:  {"aload.b", WidthB, OperandNone},
	OpALoadW:  {"aload", WidthW, OperandNone},
	OpALoadD:  {"aload.d", WidthD, OperandNone},
	OpAStoreB: {"astore.b", WidthB, OperandNone},
	OpAStoreW: {"astore", WidthW, OperandNone},
	OpAStoreD: {"astore.d", WidthD, OperandNone},
	OpAlloc:   {"alloc", WidthD, OperandNone},
	OpFree:    {"free", WidthD, OperandNone},

	OpSystem: {"system", WidthW, OperandNone},
}

// GetOpcodeInfo returns metadata for an opcode. The second return is false
// for bytes that do not encode an instruction.
func GetOpcodeInfo(op Opcode) (OpcodeInfo, bool) {
	info, ok := opcodeInfoTable[op]
	return info, ok
}

// String returns the assembler mnemonic of an opcode.
func (op Opcode) String() string {
	if info, ok := opcodeInfoTable[op]; ok {
		return info.Name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))
}

// OperandLen returns the number of operand bytes following this opcode.
func (op Opcode) OperandLen() int {
	info, ok := opcodeInfoTable[op]
	if !ok {
		return 0
	}
	switch info.Operand {
	case OperandImm:
		return info.Width.Size()
	case OperandSlot:
		return 1
	case OperandCode, OperandData:
		return 4
	default:
		return 0
	}
}

// InstructionLen returns the total encoded length (1 + operand bytes).
func (op Opcode) InstructionLen() int {
	return 1 + op.OperandLen()
}

// IsJump returns true if this opcode is a branch instruction.
func (op Opcode) IsJump() bool {
	return op >= OpJmp && op <= OpJmpGe
}

// IsReturn returns true if this opcode pops the current frame.
func (op Opcode) IsReturn() bool {
	return op >= OpRet && op <= OpRetD
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that every opcode has metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

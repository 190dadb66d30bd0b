package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrUnknownOpcode reports a byte that does not encode an instruction.
// Callers can distinguish it from truncation with errors.Is.
var ErrUnknownOpcode = errors.New("unknown opcode")

// Instruction is a single decoded instruction. Decoding is kept separate
// from execution so the disassembler and the VM share one decoder.
type Instruction struct {
	Op      Opcode
	Operand int64 // immediate value, slot index, or code/data offset
	Size    int   // total encoded length in bytes
}

// HasOperand reports whether the instruction carries an operand.
func (in Instruction) HasOperand() bool {
	info, ok := opcodeInfoTable[in.Op]
	return ok && info.Operand != OperandNone
}

func (in Instruction) String() string {
	if !in.HasOperand() {
		return in.Op.String()
	}
	return fmt.Sprintf("%s %d", in.Op, in.Operand)
}

// Decode decodes the instruction starting at offset pc in code.
// Immediates are sign-extended from their encoded width; slot indexes and
// code/data offsets are zero-extended.
func Decode(code []byte, pc int) (Instruction, error) {
	if pc < 0 || pc >= len(code) {
		return Instruction{}, fmt.Errorf("offset %d out of range (code is %d bytes)", pc, len(code))
	}

	op := Opcode(code[pc])
	info, ok := opcodeInfoTable[op]
	if !ok {
		return Instruction{}, fmt.Errorf("%w 0x%02X at offset %d", ErrUnknownOpcode, byte(op), pc)
	}

	in := Instruction{Op: op, Size: op.InstructionLen()}
	if pc+in.Size > len(code) {
		return Instruction{}, fmt.Errorf("truncated %s at offset %d", info.Name, pc)
	}

	operand := code[pc+1 : pc+in.Size]
	switch info.Operand {
	case OperandImm:
		switch info.Width {
		case WidthB:
			in.Operand = int64(int8(operand[0]))
		case WidthW:
			in.Operand = int64(int32(binary.LittleEndian.Uint32(operand)))
		case WidthD:
			in.Operand = int64(binary.LittleEndian.Uint64(operand))
		}
	case OperandSlot:
		in.Operand = int64(operand[0])
	case OperandCode, OperandData:
		in.Operand = int64(binary.LittleEndian.Uint32(operand))
	}

	return in, nil
}

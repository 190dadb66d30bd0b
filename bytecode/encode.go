package bytecode

import "encoding/binary"

// AppendInstruction appends the encoding of in to buf and returns the
// extended slice. It is the inverse of Decode; the assembler is its only
// producer, so operands are assumed to fit their encoded width.
func AppendInstruction(buf []byte, in Instruction) []byte {
	buf = append(buf, byte(in.Op))

	info, ok := opcodeInfoTable[in.Op]
	if !ok {
		return buf
	}

	switch info.Operand {
	case OperandImm:
		switch info.Width {
		case WidthB:
			buf = append(buf, byte(in.Operand))
		case WidthW:
			buf = binary.LittleEndian.AppendUint32(buf, uint32(in.Operand))
		case WidthD:
			buf = binary.LittleEndian.AppendUint64(buf, uint64(in.Operand))
		}
	case OperandSlot:
		buf = append(buf, byte(in.Operand))
	case OperandCode, OperandData:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(in.Operand))
	}

	return buf
}

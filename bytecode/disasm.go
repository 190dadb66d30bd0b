package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a printable listing of the whole image: the entry
// directive, a hexdump of the data segment, then the code with label lines
// and byte offsets.
func (img *Image) Disassemble() (string, error) {
	var sb strings.Builder

	if sym, ok := img.SymbolAt(SectionCode, img.Entry); ok {
		fmt.Fprintf(&sb, ".entry %s\n", sym.Name)
	} else {
		fmt.Fprintf(&sb, ".entry %d\n", img.Entry)
	}

	if len(img.Data) > 0 {
		sb.WriteString("\n")
		img.dumpData(&sb)
	}

	sb.WriteString("\n")
	offset := 0
	for offset < len(img.Code) {
		in, err := Decode(img.Code, offset)
		if err != nil {
			return "", fmt.Errorf("disassembling code: %w", err)
		}

		if sym, ok := img.SymbolAt(SectionCode, uint32(offset)); ok {
			fmt.Fprintf(&sb, "%s:\n", sym.Name)
		}
		fmt.Fprintf(&sb, "%4d: %s\n", offset, img.FormatInstruction(in))

		offset += in.Size
	}

	return sb.String(), nil
}

// dumpData writes the data segment as 16-byte rows with an ASCII gutter.
func (img *Image) dumpData(sb *strings.Builder) {
	for i := 0; i < len(img.Data); i += 16 {
		chunk := img.Data[i:min(i+16, len(img.Data))]

		fmt.Fprintf(sb, "%4d: ", i)
		for _, b := range chunk {
			fmt.Fprintf(sb, "%02x ", b)
		}

		sb.WriteString("|")
		for _, b := range chunk {
			if b >= 0x20 && b < 0x7F {
				sb.WriteByte(b)
			} else {
				sb.WriteString(".")
			}
		}
		sb.WriteString("|\n")
	}
}

// FormatInstruction renders one decoded instruction, annotating code and
// data offsets with the symbol they resolve to when one exists.
func (img *Image) FormatInstruction(in Instruction) string {
	info, ok := opcodeInfoTable[in.Op]
	if !ok {
		return in.String()
	}

	switch info.Operand {
	case OperandNone:
		return info.Name
	case OperandCode:
		if sym, ok := img.SymbolAt(SectionCode, uint32(in.Operand)); ok {
			return fmt.Sprintf("%-6s %4d ; %s", info.Name, in.Operand, sym.Name)
		}
	case OperandData:
		if sym, ok := img.SymbolAt(SectionData, uint32(in.Operand)); ok {
			return fmt.Sprintf("%-6s %4d ; %s", info.Name, in.Operand, sym.Name)
		}
	}

	return fmt.Sprintf("%-6s %4d", info.Name, in.Operand)
}

// DisassembleRange decodes up to n instructions starting at code offset pc
// and returns one formatted line per instruction, preceded by a label line
// where a code symbol starts. Label lines do not count toward n. Used by
// the debugger.
func (img *Image) DisassembleRange(pc uint32, n int) ([]string, error) {
	var lines []string
	offset := int(pc)
	for count := 0; count < n && offset < len(img.Code); count++ {
		in, err := Decode(img.Code, offset)
		if err != nil {
			return lines, err
		}

		if sym, ok := img.SymbolAt(SectionCode, uint32(offset)); ok {
			lines = append(lines, sym.Name+":")
		}
		lines = append(lines, fmt.Sprintf("%4d: %s", offset, img.FormatInstruction(in)))

		offset += in.Size
	}
	return lines, nil
}

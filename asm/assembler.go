package asm

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/delamarch3/stack/bytecode"
)

var log = commonlog.GetLogger("stack.asm")

// ---------------------------------------------------------------------------
// Assembler: two-pass translation of the token stream into an image
// ---------------------------------------------------------------------------

// Assembler lowers a preprocessed token sequence to a bytecode image.
// The first pass lays out code and data and collects the symbol table;
// the second pass emits bytes with all label references resolved.
type Assembler struct {
	tokens   []Token
	position int

	symbols map[string]bytecode.Symbol
	order   []string // symbol definition order

	stmts    []stmt
	data     []byte
	codeSize uint32

	entryName string
	entryPos  Position

	dbg *bytecode.DebugInfo
}

// stmt is one laid-out instruction awaiting emission. A non-empty label is
// an operand resolved against the symbol table in the second pass.
type stmt struct {
	in          bytecode.Instruction
	label       string
	wantSection bytecode.Section
	offset      uint32
	pos         Position
}

// New creates an empty assembler.
func New() *Assembler {
	return &Assembler{
		symbols: make(map[string]bytecode.Symbol),
		dbg:     bytecode.NewDebugInfo(),
	}
}

// AssembleFile preprocesses and assembles the source file at path.
func AssembleFile(path string, resolver Resolver, includeDirs ...string) (*bytecode.Image, *bytecode.DebugInfo, error) {
	tokens, err := NewPreprocessor(resolver, includeDirs...).Run(path)
	if err != nil {
		return nil, nil, err
	}
	return New().Assemble(tokens)
}

// AssembleSource preprocesses and assembles in-memory source text. The
// name appears in diagnostics and debug info.
func AssembleSource(name, src string) (*bytecode.Image, *bytecode.DebugInfo, error) {
	return AssembleFile(name, MapResolver{name: src})
}

// Assemble runs both passes over the token sequence.
func (a *Assembler) Assemble(tokens []Token) (*bytecode.Image, *bytecode.DebugInfo, error) {
	a.tokens = tokens
	a.position = 0

	if err := a.layout(); err != nil {
		return nil, nil, err
	}

	img, err := a.emit()
	if err != nil {
		return nil, nil, err
	}

	log.Debugf("assembled %d instructions, %d data bytes, %d symbols",
		len(a.stmts), len(a.data), len(img.Symbols))
	return img, a.dbg, nil
}

// ---------------------------------------------------------------------------
// Pass 1: layout
// ---------------------------------------------------------------------------

func (a *Assembler) layout() error {
	for {
		tok := a.next()
		switch tok.Type {
		case TokenEOF:
			if a.entryName == "" {
				return errorf(ErrParse, tok.Pos, "missing .entry directive")
			}
			return nil

		case TokenDot:
			if err := a.directive(tok.Pos); err != nil {
				return err
			}

		case TokenIdent:
			if a.peek().Type == TokenColon {
				a.next()
				if err := a.defineSymbol(tok.Literal, bytecode.SectionCode, a.codeSize, tok.Pos); err != nil {
					return err
				}
				continue
			}
			if err := a.instruction(tok); err != nil {
				return err
			}

		default:
			return errorf(ErrParse, tok.Pos, "unexpected %s", tok)
		}
	}
}

func (a *Assembler) directive(pos Position) error {
	name := a.next()
	if name.Type != TokenIdent {
		return errorf(ErrParse, pos, "expected directive name after ., got %s", name)
	}

	switch name.Literal {
	case "entry":
		lbl := a.next()
		if lbl.Type != TokenIdent {
			return errorf(ErrParse, lbl.Pos, "expected label after .entry, got %s", lbl)
		}
		if a.entryName != "" {
			return errorf(ErrParse, lbl.Pos, "duplicate .entry directive")
		}
		a.entryName = lbl.Literal
		a.entryPos = lbl.Pos
		return nil

	case "data":
		return a.dataBlock(pos)

	default:
		return errorf(ErrParse, name.Pos, "unknown directive .%s", name.Literal)
	}
}

// dataBlock parses `.data LBL` followed by its inline sub-directives,
// appending fully resolved bytes to the data segment.
func (a *Assembler) dataBlock(pos Position) error {
	lbl := a.next()
	if lbl.Type != TokenIdent {
		return errorf(ErrParse, lbl.Pos, "expected label after .data, got %s", lbl)
	}
	if err := a.defineSymbol(lbl.Literal, bytecode.SectionData, uint32(len(a.data)), lbl.Pos); err != nil {
		return err
	}

	for a.peek().Type == TokenDot && isDataType(a.peekN(1)) {
		a.next() // dot
		kind := a.next()

		switch kind.Literal {
		case "byte", "word", "dword":
			value := a.next()
			if value.Type != TokenInt && value.Type != TokenChar {
				return errorf(ErrParse, value.Pos, "expected value after .%s, got %s", kind.Literal, value)
			}
			width := dataTypeWidth(kind.Literal)
			if !fits(value.Value, width) {
				return errorf(ErrParse, value.Pos, "value %d out of range for .%s", value.Value, kind.Literal)
			}
			a.data = appendValue(a.data, value.Value, width)

		case "ascii", "string":
			value := a.next()
			if value.Type != TokenString {
				return errorf(ErrParse, value.Pos, "expected string after .%s, got %s", kind.Literal, value)
			}
			a.data = append(a.data, value.Literal...)
		}
	}

	return nil
}

func isDataType(tok Token) bool {
	if tok.Type != TokenIdent {
		return false
	}
	switch tok.Literal {
	case "byte", "word", "dword", "ascii", "string":
		return true
	}
	return false
}

func dataTypeWidth(name string) bytecode.Width {
	switch name {
	case "byte":
		return bytecode.WidthB
	case "dword":
		return bytecode.WidthD
	default:
		return bytecode.WidthW
	}
}

func appendValue(buf []byte, value int64, width bytecode.Width) []byte {
	switch width {
	case bytecode.WidthB:
		return append(buf, byte(value))
	case bytecode.WidthD:
		return binary.LittleEndian.AppendUint64(buf, uint64(value))
	default:
		return binary.LittleEndian.AppendUint32(buf, uint32(value))
	}
}

// instruction lays out a single instruction from its mnemonic token.
func (a *Assembler) instruction(tok Token) error {
	op, err := a.resolveMnemonic(tok)
	if err != nil {
		return err
	}

	info, _ := bytecode.GetOpcodeInfo(op)
	st := stmt{in: bytecode.Instruction{Op: op}, pos: tok.Pos}

	// `cmp IMM` is sugar for `push IMM; cmp`.
	if isCmp(op) {
		if next := a.peek(); next.Type == TokenInt || next.Type == TokenChar {
			value := a.next()
			if !fits(value.Value, info.Width) {
				return errorf(ErrParse, value.Pos, "value %d out of range for %s", value.Value, tok.Literal)
			}
			a.addStmt(stmt{
				in:  bytecode.Instruction{Op: pushFor(info.Width), Operand: value.Value},
				pos: value.Pos,
			})
		}
	}

	switch info.Operand {
	case bytecode.OperandNone:
		// no operand

	case bytecode.OperandImm:
		value := a.next()
		if value.Type != TokenInt && value.Type != TokenChar {
			return errorf(ErrParse, value.Pos, "expected value after %s, got %s", tok.Literal, value)
		}
		if !fits(value.Value, info.Width) {
			return errorf(ErrParse, value.Pos, "value %d out of range for %s", value.Value, tok.Literal)
		}
		st.in.Operand = value.Value

	case bytecode.OperandSlot:
		value := a.next()
		if value.Type != TokenInt || value.Value < 0 || value.Value > 255 {
			return errorf(ErrParse, value.Pos, "expected slot index 0..255 after %s, got %s", tok.Literal, value)
		}
		st.in.Operand = value.Value

	case bytecode.OperandCode, bytecode.OperandData:
		target := a.next()
		switch target.Type {
		case TokenIdent:
			st.label = target.Literal
			st.wantSection = bytecode.SectionCode
			if info.Operand == bytecode.OperandData {
				st.wantSection = bytecode.SectionData
			}
		case TokenInt:
			st.in.Operand = target.Value
		default:
			return errorf(ErrParse, target.Pos, "expected label or offset after %s, got %s", tok.Literal, target)
		}
	}

	a.addStmt(st)
	return nil
}

func (a *Assembler) addStmt(st stmt) {
	st.in.Size = st.in.Op.InstructionLen()
	st.offset = a.codeSize
	a.dbg.Add(st.offset, bytecode.SourceLocation{
		File:   st.pos.File,
		Line:   st.pos.Line,
		Column: st.pos.Column,
	})
	a.stmts = append(a.stmts, st)
	a.codeSize += uint32(st.in.Size)
}

func (a *Assembler) defineSymbol(name string, section bytecode.Section, offset uint32, pos Position) error {
	if _, exists := a.symbols[name]; exists {
		return errorf(ErrDupLabel, pos, "label %s is already defined", name)
	}
	a.symbols[name] = bytecode.Symbol{Name: name, Section: section, Offset: offset}
	a.order = append(a.order, name)
	return nil
}

// ---------------------------------------------------------------------------
// Pass 2: emission
// ---------------------------------------------------------------------------

func (a *Assembler) emit() (*bytecode.Image, error) {
	code := make([]byte, 0, a.codeSize)
	for _, st := range a.stmts {
		if st.label != "" {
			sym, ok := a.symbols[st.label]
			if !ok {
				return nil, errorf(ErrUndefLabel, st.pos, "could not resolve label %s", st.label)
			}
			if sym.Section != st.wantSection {
				return nil, errorf(ErrParse, st.pos, "label %s is in the %s section, expected %s",
					st.label, sym.Section, st.wantSection)
			}
			st.in.Operand = int64(sym.Offset)
		}
		code = bytecode.AppendInstruction(code, st.in)
	}

	entry, ok := a.symbols[a.entryName]
	if !ok {
		return nil, errorf(ErrUndefLabel, a.entryPos, "could not resolve entry label %s", a.entryName)
	}
	if entry.Section != bytecode.SectionCode {
		return nil, errorf(ErrParse, a.entryPos, "entry label %s is not in the code section", a.entryName)
	}

	symbols := make([]bytecode.Symbol, 0, len(a.order))
	for _, name := range a.order {
		symbols = append(symbols, a.symbols[name])
	}

	return &bytecode.Image{
		Entry:   entry.Offset,
		Code:    code,
		Data:    a.data,
		Symbols: symbols,
	}, nil
}

// ---------------------------------------------------------------------------
// Mnemonic resolution
// ---------------------------------------------------------------------------

var mnemonics = map[string]bytecode.Opcode{}

// widthFamilies are the bases that accept .b/.w/.d suffixes; an unknown
// suffix on one of these is a width error rather than an unknown
// instruction.
var widthFamilies = map[string]bool{
	"push": true, "load": true, "store": true, "dup": true, "pop": true,
	"add": true, "sub": true, "mul": true, "div": true, "cmp": true,
	"aload": true, "astore": true, "ret": true,
}

func init() {
	for _, op := range bytecode.AllOpcodes() {
		info, _ := bytecode.GetOpcodeInfo(op)
		mnemonics[info.Name] = op
	}
	// The bare mnemonic is the word variant; the explicit .w spelling is
	// accepted for symmetry with .b and .d.
	for base, op := range map[string]bytecode.Opcode{
		"push": bytecode.OpPushW, "load": bytecode.OpLoadW, "store": bytecode.OpStoreW,
		"dup": bytecode.OpDupW, "pop": bytecode.OpPopW,
		"add": bytecode.OpAddW, "sub": bytecode.OpSubW, "mul": bytecode.OpMulW, "div": bytecode.OpDivW,
		"cmp": bytecode.OpCmpW, "aload": bytecode.OpALoadW, "astore": bytecode.OpAStoreW,
	} {
		mnemonics[base+".w"] = op
	}
}

func (a *Assembler) resolveMnemonic(tok Token) (bytecode.Opcode, error) {
	name := tok.Literal

	if base, _, _ := strings.Cut(name, "."); base == "write" {
		return 0, errorf(ErrParse, tok.Pos, "unknown instruction %s (use astore)", name)
	}

	if op, ok := mnemonics[name]; ok {
		return op, nil
	}

	if i := strings.LastIndex(name, "."); i > 0 && widthFamilies[name[:i]] {
		return 0, errorf(ErrBadWidth, tok.Pos, "unknown width suffix %s on %s (expected .b, .w or .d)",
			name[i:], name[:i])
	}

	return 0, errorf(ErrParse, tok.Pos, "unknown instruction %s", name)
}

func isCmp(op bytecode.Opcode) bool {
	return op == bytecode.OpCmpB || op == bytecode.OpCmpW || op == bytecode.OpCmpD
}

func pushFor(w bytecode.Width) bytecode.Opcode {
	switch w {
	case bytecode.WidthB:
		return bytecode.OpPushB
	case bytecode.WidthD:
		return bytecode.OpPushD
	default:
		return bytecode.OpPushW
	}
}

// fits reports whether value is representable in width, as either a signed
// or an unsigned quantity.
func fits(value int64, width bytecode.Width) bool {
	switch width {
	case bytecode.WidthB:
		return value >= math.MinInt8 && value <= math.MaxUint8
	case bytecode.WidthW:
		return value >= math.MinInt32 && value <= math.MaxUint32
	default:
		return true
	}
}

// ---------------------------------------------------------------------------
// Token cursor
// ---------------------------------------------------------------------------

func (a *Assembler) next() Token {
	tok := a.peek()
	if tok.Type != TokenEOF {
		a.position++
	}
	return tok
}

func (a *Assembler) peek() Token {
	return a.peekN(0)
}

func (a *Assembler) peekN(n int) Token {
	if a.position+n >= len(a.tokens) {
		return Token{Type: TokenEOF}
	}
	return a.tokens[a.position+n]
}

package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
)

// ImageVersion is the current image format version.
// Increment when making incompatible changes to the format.
const ImageVersion uint32 = 1

// Magic bytes for image files: "STKB" (STacK Bytecode)
var ImageMagic = []byte{'S', 'T', 'K', 'B'}

// Loader errors.
var (
	ErrBadMagic   = errors.New("bad magic")
	ErrBadVersion = errors.New("unsupported image version")
	ErrTruncated  = errors.New("truncated image")
)

// Section identifies which segment of the image a symbol points into.
type Section uint8

const (
	SectionCode Section = 0
	SectionData Section = 1
)

func (s Section) String() string {
	switch s {
	case SectionCode:
		return "code"
	case SectionData:
		return "data"
	default:
		return fmt.Sprintf("Section(%d)", uint8(s))
	}
}

// Symbol maps a label name to an offset within a section. Symbols are
// retained in the image for disassembly and the debugger.
type Symbol struct {
	Name    string
	Section Section
	Offset  uint32
}

// Image is the assembler's output and the loader's input: entry offset,
// code and data segments, and the symbol table.
type Image struct {
	Entry   uint32
	Code    []byte
	Data    []byte
	Symbols []Symbol
}

// Lookup returns the symbol with the given name.
func (img *Image) Lookup(name string) (Symbol, bool) {
	for _, sym := range img.Symbols {
		if sym.Name == name {
			return sym, true
		}
	}
	return Symbol{}, false
}

// SymbolAt returns the symbol exactly at (section, offset).
func (img *Image) SymbolAt(section Section, offset uint32) (Symbol, bool) {
	for _, sym := range img.Symbols {
		if sym.Section == section && sym.Offset == offset {
			return sym, true
		}
	}
	return Symbol{}, false
}

// FuncAt returns the code symbol containing the given code offset: the
// nearest code symbol at or before it. Used by the debugger to name frames.
func (img *Image) FuncAt(offset uint32) (Symbol, bool) {
	var best Symbol
	found := false
	for _, sym := range img.Symbols {
		if sym.Section != SectionCode || sym.Offset > offset {
			continue
		}
		if !found || sym.Offset > best.Offset {
			best = sym
			found = true
		}
	}
	return best, found
}

// Encode serializes the image.
// Format (little-endian):
//
//	[magic:4] [version:u32] [entry:u32] [code_len:u32] [data_len:u32] [symbol_count:u32]
//	[code:...] [data:...]
//	symbol_count * { [name_len:u16] [name:utf8] [section:u8] [offset:u32] }
//
// Symbols are written sorted by (section, offset, name) so that assembling
// the same source twice yields byte-identical images.
func (img *Image) Encode() []byte {
	symbols := make([]Symbol, len(img.Symbols))
	copy(symbols, img.Symbols)
	sort.Slice(symbols, func(i, j int) bool {
		if symbols[i].Section != symbols[j].Section {
			return symbols[i].Section < symbols[j].Section
		}
		if symbols[i].Offset != symbols[j].Offset {
			return symbols[i].Offset < symbols[j].Offset
		}
		return symbols[i].Name < symbols[j].Name
	})

	buf := make([]byte, 0, 24+len(img.Code)+len(img.Data)+len(symbols)*16)

	buf = append(buf, ImageMagic...)
	buf = binary.LittleEndian.AppendUint32(buf, ImageVersion)
	buf = binary.LittleEndian.AppendUint32(buf, img.Entry)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(img.Code)))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(img.Data)))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(symbols)))

	buf = append(buf, img.Code...)
	buf = append(buf, img.Data...)

	for _, sym := range symbols {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(sym.Name)))
		buf = append(buf, sym.Name...)
		buf = append(buf, byte(sym.Section))
		buf = binary.LittleEndian.AppendUint32(buf, sym.Offset)
	}

	return buf
}

// DecodeImage decodes an image from bytes.
func DecodeImage(data []byte) (*Image, error) {
	if len(data) < 24 {
		return nil, fmt.Errorf("%w: header needs 24 bytes, have %d", ErrTruncated, len(data))
	}

	if string(data[0:4]) != string(ImageMagic) {
		return nil, fmt.Errorf("%w: expected %q, got %q", ErrBadMagic, ImageMagic, data[0:4])
	}

	version := binary.LittleEndian.Uint32(data[4:])
	if version != ImageVersion {
		return nil, fmt.Errorf("%w: %d (supported: %d)", ErrBadVersion, version, ImageVersion)
	}

	img := &Image{Entry: binary.LittleEndian.Uint32(data[8:])}
	codeLen := binary.LittleEndian.Uint32(data[12:])
	dataLen := binary.LittleEndian.Uint32(data[16:])
	symbolCount := binary.LittleEndian.Uint32(data[20:])

	pos := 24
	if pos+int(codeLen)+int(dataLen) > len(data) {
		return nil, fmt.Errorf("%w: code+data needs %d bytes at offset %d", ErrTruncated, codeLen+dataLen, pos)
	}
	img.Code = make([]byte, codeLen)
	copy(img.Code, data[pos:pos+int(codeLen)])
	pos += int(codeLen)

	img.Data = make([]byte, dataLen)
	copy(img.Data, data[pos:pos+int(dataLen)])
	pos += int(dataLen)

	img.Symbols = make([]Symbol, 0, symbolCount)
	for i := 0; i < int(symbolCount); i++ {
		if pos+2 > len(data) {
			return nil, fmt.Errorf("%w: reading symbol %d name length", ErrTruncated, i)
		}
		nameLen := binary.LittleEndian.Uint16(data[pos:])
		pos += 2

		if pos+int(nameLen)+5 > len(data) {
			return nil, fmt.Errorf("%w: reading symbol %d", ErrTruncated, i)
		}
		sym := Symbol{Name: string(data[pos : pos+int(nameLen)])}
		pos += int(nameLen)

		sym.Section = Section(data[pos])
		pos++
		sym.Offset = binary.LittleEndian.Uint32(data[pos:])
		pos += 4

		img.Symbols = append(img.Symbols, sym)
	}

	return img, nil
}

// ReadImage reads and decodes an image from r.
func ReadImage(r io.Reader) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	return DecodeImage(data)
}

// WriteImage encodes the image and writes it to w.
func WriteImage(w io.Writer, img *Image) error {
	if _, err := w.Write(img.Encode()); err != nil {
		return fmt.Errorf("writing image: %w", err)
	}
	return nil
}

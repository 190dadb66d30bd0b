package bytecode

import (
	"bytes"
	"errors"
	"testing"
)

func testImage() *Image {
	return &Image{
		Entry: 0,
		Code: AppendInstruction(AppendInstruction(nil,
			Instruction{Op: OpPushW, Operand: 5}),
			Instruction{Op: OpRetW}),
		Data: []byte("abc\x00"),
		Symbols: []Symbol{
			{Name: "main", Section: SectionCode, Offset: 0},
			{Name: "blob", Section: SectionData, Offset: 0},
		},
	}
}

func TestImageRoundTrip(t *testing.T) {
	img := testImage()

	decoded, err := DecodeImage(img.Encode())
	if err != nil {
		t.Fatal(err)
	}

	if decoded.Entry != img.Entry {
		t.Errorf("entry = %d, want %d", decoded.Entry, img.Entry)
	}
	if !bytes.Equal(decoded.Code, img.Code) {
		t.Error("code differs")
	}
	if !bytes.Equal(decoded.Data, img.Data) {
		t.Error("data differs")
	}
	if len(decoded.Symbols) != 2 {
		t.Fatalf("symbol count = %d", len(decoded.Symbols))
	}
	if sym, ok := decoded.Lookup("main"); !ok || sym.Section != SectionCode {
		t.Errorf("main symbol = %+v, ok = %v", sym, ok)
	}
}

func TestImageHeader(t *testing.T) {
	encoded := testImage().Encode()

	if string(encoded[0:4]) != "STKB" {
		t.Errorf("magic = %q", encoded[0:4])
	}
	if encoded[4] != 1 {
		t.Errorf("version byte = %d", encoded[4])
	}
}

func TestImageEncodeDeterministic(t *testing.T) {
	img := testImage()
	// Symbol order in the struct must not affect the encoding.
	flipped := testImage()
	flipped.Symbols[0], flipped.Symbols[1] = flipped.Symbols[1], flipped.Symbols[0]

	if !bytes.Equal(img.Encode(), flipped.Encode()) {
		t.Error("encoding depends on symbol declaration order")
	}
}

func TestDecodeImageBadMagic(t *testing.T) {
	encoded := testImage().Encode()
	encoded[0] = 'X'

	_, err := DecodeImage(encoded)
	if !errors.Is(err, ErrBadMagic) {
		t.Errorf("err = %v, want ErrBadMagic", err)
	}
}

func TestDecodeImageBadVersion(t *testing.T) {
	encoded := testImage().Encode()
	encoded[4] = 99

	_, err := DecodeImage(encoded)
	if !errors.Is(err, ErrBadVersion) {
		t.Errorf("err = %v, want ErrBadVersion", err)
	}
}

func TestDecodeImageTruncated(t *testing.T) {
	encoded := testImage().Encode()

	for _, cut := range []int{0, 10, 23, len(encoded) - 1} {
		_, err := DecodeImage(encoded[:cut])
		if !errors.Is(err, ErrTruncated) {
			t.Errorf("cut at %d: err = %v, want ErrTruncated", cut, err)
		}
	}
}

func TestFuncAt(t *testing.T) {
	img := &Image{
		Symbols: []Symbol{
			{Name: "main", Section: SectionCode, Offset: 0},
			{Name: "helper", Section: SectionCode, Offset: 20},
			{Name: "blob", Section: SectionData, Offset: 5},
		},
	}

	tests := []struct {
		offset uint32
		want   string
	}{
		{0, "main"},
		{19, "main"},
		{20, "helper"},
		{100, "helper"},
	}

	for _, tc := range tests {
		sym, ok := img.FuncAt(tc.offset)
		if !ok || sym.Name != tc.want {
			t.Errorf("FuncAt(%d) = %v, want %s", tc.offset, sym.Name, tc.want)
		}
	}
}

func TestDebugInfoRoundTrip(t *testing.T) {
	dbg := NewDebugInfo()
	dbg.Add(0, SourceLocation{File: "main.stk", Line: 3, Column: 5})
	dbg.Add(5, SourceLocation{File: "main.stk", Line: 4, Column: 5})

	encoded, err := dbg.Encode()
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeDebugInfo(encoded)
	if err != nil {
		t.Fatal(err)
	}

	loc, ok := decoded.Lookup(5)
	if !ok || loc.Line != 4 {
		t.Errorf("Lookup(5) = %v, %v", loc, ok)
	}

	// Offsets between entries resolve to the nearest one before them.
	loc, ok = decoded.Lookup(7)
	if !ok || loc.Line != 4 {
		t.Errorf("Lookup(7) = %v, %v", loc, ok)
	}
}

func TestDebugInfoNilLookup(t *testing.T) {
	var dbg *DebugInfo
	if _, ok := dbg.Lookup(0); ok {
		t.Error("nil debug info should not resolve")
	}
}

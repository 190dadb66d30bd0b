package asm

import (
	"errors"
	"testing"
)

func preprocess(t *testing.T, files MapResolver, root string) []Token {
	t.Helper()
	tokens, err := NewPreprocessor(files).Run(root)
	if err != nil {
		t.Fatal(err)
	}
	return tokens
}

func TestPreprocessorInclude(t *testing.T) {
	files := MapResolver{
		"main.stk": "#include \"lib.stk\"\nmain:\nret\n",
		"lib.stk":  "helper:\nret\n",
	}

	tokens := preprocess(t, files, "main.stk")

	want := []string{"helper", ":", "ret", "main", ":", "ret", ""}
	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(tokens), len(want), tokens)
	}
	for i, lit := range want[:len(want)-1] {
		if tokens[i].Literal != lit {
			t.Errorf("token[%d] = %v, want literal %q", i, tokens[i], lit)
		}
	}
	if tokens[len(tokens)-1].Type != TokenEOF {
		t.Errorf("missing trailing EOF")
	}
}

func TestPreprocessorIncludePositions(t *testing.T) {
	files := MapResolver{
		"main.stk": "#include \"lib.stk\"\nret\n",
		"lib.stk":  "helper:\n",
	}

	tokens := preprocess(t, files, "main.stk")

	if tokens[0].Pos.File != "lib.stk" {
		t.Errorf("included token file = %q, want lib.stk", tokens[0].Pos.File)
	}
	if tokens[2].Pos.File != "main.stk" {
		t.Errorf("ret token file = %q, want main.stk", tokens[2].Pos.File)
	}
}

func TestPreprocessorCyclicInclude(t *testing.T) {
	files := MapResolver{
		"a.stk": "#include \"b.stk\"\n",
		"b.stk": "#include \"a.stk\"\n",
	}

	_, err := NewPreprocessor(files).Run("a.stk")
	var asmErr *Error
	if !errors.As(err, &asmErr) || asmErr.Kind != ErrCyclicInclude {
		t.Fatalf("err = %v, want cyclic include", err)
	}
}

func TestPreprocessorSelfInclude(t *testing.T) {
	files := MapResolver{"a.stk": "#include \"a.stk\"\n"}

	_, err := NewPreprocessor(files).Run("a.stk")
	var asmErr *Error
	if !errors.As(err, &asmErr) || asmErr.Kind != ErrCyclicInclude {
		t.Fatalf("err = %v, want cyclic include", err)
	}
}

func TestPreprocessorDiamondIncludeIsAllowed(t *testing.T) {
	// The same file twice along different paths is not a cycle.
	files := MapResolver{
		"main.stk": "#include \"a.stk\"\n#include \"b.stk\"\nret\n",
		"a.stk":    "#include \"common.stk\"\n",
		"b.stk":    "#include \"common.stk\"\n",
		"common.stk": "nop\n",
	}

	tokens := preprocess(t, files, "main.stk")
	if got := len(tokens); got != 4 { // nop nop ret EOF
		t.Fatalf("got %d tokens: %v", got, tokens)
	}
}

func TestPreprocessorMissingInclude(t *testing.T) {
	files := MapResolver{"main.stk": "#include \"nope.stk\"\n"}

	_, err := NewPreprocessor(files).Run("main.stk")
	var asmErr *Error
	if !errors.As(err, &asmErr) || asmErr.Kind != ErrMissingFile {
		t.Fatalf("err = %v, want missing file", err)
	}
}

func TestPreprocessorDefineBareToken(t *testing.T) {
	files := MapResolver{"main.stk": "#define LIMIT 10\npush @LIMIT\n"}

	tokens := preprocess(t, files, "main.stk")

	if tokens[0].Literal != "push" {
		t.Fatalf("token[0] = %v", tokens[0])
	}
	if tokens[1].Type != TokenInt || tokens[1].Value != 10 {
		t.Errorf("token[1] = %v, want INT(10)", tokens[1])
	}
}

func TestPreprocessorDefineExpression(t *testing.T) {
	tests := []struct {
		body string
		want int64
	}{
		{"{ 1 + 2 }", 3},
		{"{ 16 * 4 }", 64},
		{"{ 2 * (3 + 4) }", 14},
		{"{ 10 / 2 - 1 }", 4},
		{"{ -3 + 1 }", -2},
		{"{ 'A' + 1 }", 66},
	}

	for _, tc := range tests {
		files := MapResolver{"main.stk": "#define V " + tc.body + "\npush @V\n"}
		tokens := preprocess(t, files, "main.stk")
		if tokens[1].Type != TokenInt || tokens[1].Value != tc.want {
			t.Errorf("#define V %s: token = %v, want INT(%d)", tc.body, tokens[1], tc.want)
		}
	}
}

func TestPreprocessorDefineReferencesEarlierDefine(t *testing.T) {
	files := MapResolver{
		"main.stk": "#define SLOT 4\n#define BYTES { @SLOT * 16 }\npush @BYTES\n",
	}

	tokens := preprocess(t, files, "main.stk")
	if tokens[1].Type != TokenInt || tokens[1].Value != 64 {
		t.Errorf("token = %v, want INT(64)", tokens[1])
	}
}

func TestPreprocessorUndefinedMacro(t *testing.T) {
	files := MapResolver{"main.stk": "push @NOPE\n"}

	_, err := NewPreprocessor(files).Run("main.stk")
	var asmErr *Error
	if !errors.As(err, &asmErr) || asmErr.Kind != ErrUndefMacro {
		t.Fatalf("err = %v, want undefined macro", err)
	}
}

func TestPreprocessorDefinesCrossIncludes(t *testing.T) {
	files := MapResolver{
		"main.stk": "#include \"defs.stk\"\npush @LIMIT\n",
		"defs.stk": "#define LIMIT 99\n",
	}

	tokens := preprocess(t, files, "main.stk")
	if tokens[1].Type != TokenInt || tokens[1].Value != 99 {
		t.Errorf("token = %v, want INT(99)", tokens[1])
	}
}

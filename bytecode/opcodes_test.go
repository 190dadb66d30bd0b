package bytecode

import "testing"

func TestAllOpcodesHaveMetadata(t *testing.T) {
	for _, op := range AllOpcodes() {
		info, ok := GetOpcodeInfo(op)
		if !ok {
			t.Fatalf("opcode 0x%02X has no metadata", byte(op))
		}
		if info.Name == "" {
			t.Errorf("opcode 0x%02X has no name", byte(op))
		}
		if op.InstructionLen() < 1 {
			t.Errorf("%s: instruction length %d", info.Name, op.InstructionLen())
		}
	}
}

func TestMnemonicsAreUnique(t *testing.T) {
	seen := make(map[string]Opcode)
	for _, op := range AllOpcodes() {
		info, _ := GetOpcodeInfo(op)
		if prev, dup := seen[info.Name]; dup {
			t.Errorf("mnemonic %q used by 0x%02X and 0x%02X", info.Name, byte(prev), byte(op))
		}
		seen[info.Name] = op
	}
}

func TestInstructionLengths(t *testing.T) {
	tests := []struct {
		op   Opcode
		want int
	}{
		{OpNop, 1},
		{OpPushB, 2},
		{OpPushW, 5},
		{OpPushD, 9},
		{OpDataPtr, 5},
		{OpLoadW, 2},
		{OpStoreD, 2},
		{OpAddW, 1},
		{OpJmp, 5},
		{OpCall, 5},
		{OpRet, 1},
		{OpAlloc, 1},
		{OpSystem, 1},
	}

	for _, tc := range tests {
		if got := tc.op.InstructionLen(); got != tc.want {
			t.Errorf("%s: length = %d, want %d", tc.op, got, tc.want)
		}
	}
}

func TestOpcodePredicates(t *testing.T) {
	if !OpJmp.IsJump() || !OpJmpGe.IsJump() {
		t.Error("branch opcodes not recognized as jumps")
	}
	if OpCall.IsJump() || OpRet.IsJump() {
		t.Error("non-branch opcodes recognized as jumps")
	}
	if !OpRet.IsReturn() || !OpRetD.IsReturn() {
		t.Error("return opcodes not recognized")
	}
	if OpCall.IsReturn() {
		t.Error("call recognized as return")
	}
}

func TestWidths(t *testing.T) {
	if WidthB.Slots() != 1 || WidthW.Slots() != 1 || WidthD.Slots() != 2 {
		t.Error("slot counts are wrong")
	}
	if WidthB.Size() != 1 || WidthW.Size() != 4 || WidthD.Size() != 8 {
		t.Error("byte sizes are wrong")
	}
}

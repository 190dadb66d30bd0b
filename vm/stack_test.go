package vm

import (
	"testing"

	"github.com/delamarch3/stack/bytecode"
)

func TestOperandStackWidths(t *testing.T) {
	var s OperandStack

	s.Push(bytecode.WidthW, 10)
	s.Push(bytecode.WidthW, 15)
	if s.Depth() != 2 {
		t.Fatalf("depth = %d, want 2", s.Depth())
	}

	b, trap := s.Pop(bytecode.WidthW)
	if trap != nil {
		t.Fatal(trap)
	}
	a, trap := s.Pop(bytecode.WidthW)
	if trap != nil {
		t.Fatal(trap)
	}
	if a != 10 || b != 15 {
		t.Errorf("popped %d, %d", a, b)
	}
}

func TestOperandStackDwordUsesTwoSlots(t *testing.T) {
	var s OperandStack

	s.Push(bytecode.WidthD, 0x1_0000_0002)
	if s.Depth() != 2 {
		t.Fatalf("depth = %d, want 2", s.Depth())
	}

	v, trap := s.Pop(bytecode.WidthD)
	if trap != nil {
		t.Fatal(trap)
	}
	if v != 0x1_0000_0002 {
		t.Errorf("value = %#x", v)
	}
	if s.Depth() != 0 {
		t.Errorf("depth = %d after pop", s.Depth())
	}
}

func TestOperandStackSignExtension(t *testing.T) {
	var s OperandStack

	s.Push(bytecode.WidthB, -1)
	v, _ := s.Pop(bytecode.WidthB)
	if v != -1 {
		t.Errorf("byte -1 popped as %d", v)
	}

	s.Push(bytecode.WidthW, -40)
	v, _ = s.Pop(bytecode.WidthW)
	if v != -40 {
		t.Errorf("word -40 popped as %d", v)
	}
}

func TestOperandStackUnderflow(t *testing.T) {
	var s OperandStack
	if _, trap := s.Pop(bytecode.WidthW); trap == nil || trap.Kind != TrapStackUnderflow {
		t.Errorf("trap = %v, want STACK_UNDERFLOW", trap)
	}

	// A dword pop with only one slot also underflows.
	s.Push(bytecode.WidthW, 1)
	if _, trap := s.Pop(bytecode.WidthD); trap == nil || trap.Kind != TrapStackUnderflow {
		t.Errorf("trap = %v, want STACK_UNDERFLOW", trap)
	}
}

func TestOperandStackTake(t *testing.T) {
	var s OperandStack
	s.Push(bytecode.WidthW, 1)
	s.Push(bytecode.WidthW, 2)

	taken := s.Take()
	if len(taken) != 2 || taken[0] != 1 || taken[1] != 2 {
		t.Errorf("taken = %v", taken)
	}
	if s.Depth() != 0 {
		t.Errorf("depth = %d after take", s.Depth())
	}
}

func TestLocalsZeroFill(t *testing.T) {
	var l Locals

	if v := l.Load(bytecode.WidthW, 5); v != 0 {
		t.Errorf("uninitialized slot = %d", v)
	}

	l.Store(bytecode.WidthD, 1, 0x0000_0003_0000_0004)
	if v := l.Load(bytecode.WidthW, 1); v != 4 {
		t.Errorf("low half = %d, want 4", v)
	}
	if v := l.Load(bytecode.WidthW, 2); v != 3 {
		t.Errorf("high half = %d, want 3", v)
	}
	if v := l.Load(bytecode.WidthD, 1); v != 0x0000_0003_0000_0004 {
		t.Errorf("dword = %#x", v)
	}
}

func TestLocalsByteZeroExtends(t *testing.T) {
	var l Locals

	l.Store(bytecode.WidthB, 0, -1)
	if v := l.Load(bytecode.WidthB, 0); v != 255 {
		t.Errorf("byte local = %d, want 255 (zero-extended in the slot)", v)
	}
}

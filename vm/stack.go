package vm

import (
	"fmt"
	"strings"

	"github.com/delamarch3/stack/bytecode"
)

// OperandStack is a frame's scratch stack of 4-byte slots. A dword value
// occupies two contiguous slots, low half pushed first; a byte value is
// zero-extended into the low byte of one slot.
type OperandStack struct {
	slots []uint32
}

// Depth returns the current slot count.
func (s *OperandStack) Depth() int {
	return len(s.slots)
}

// PushSlot pushes one raw slot.
func (s *OperandStack) PushSlot(v uint32) {
	s.slots = append(s.slots, v)
}

// PopSlot pops one raw slot.
func (s *OperandStack) PopSlot() (uint32, *Trap) {
	if len(s.slots) == 0 {
		return 0, trapf(TrapStackUnderflow, "operand stack is empty")
	}
	v := s.slots[len(s.slots)-1]
	s.slots = s.slots[:len(s.slots)-1]
	return v, nil
}

// Push pushes a value of the given width. Words and bytes take one slot,
// dwords two.
func (s *OperandStack) Push(w bytecode.Width, v int64) {
	switch w {
	case bytecode.WidthB:
		s.PushSlot(uint32(uint8(v)))
	case bytecode.WidthD:
		s.PushSlot(uint32(uint64(v)))
		s.PushSlot(uint32(uint64(v) >> 32))
	default:
		s.PushSlot(uint32(v))
	}
}

// Pop pops a value of the given width, sign-extended to int64 for bytes
// and words so arithmetic and compares are signed two's complement.
func (s *OperandStack) Pop(w bytecode.Width) (int64, *Trap) {
	switch w {
	case bytecode.WidthD:
		hi, err := s.PopSlot()
		if err != nil {
			return 0, err
		}
		lo, err := s.PopSlot()
		if err != nil {
			return 0, err
		}
		return int64(uint64(hi)<<32 | uint64(lo)), nil
	case bytecode.WidthB:
		v, err := s.PopSlot()
		if err != nil {
			return 0, err
		}
		return int64(int8(uint8(v))), nil
	default:
		v, err := s.PopSlot()
		if err != nil {
			return 0, err
		}
		return int64(int32(v)), nil
	}
}

// Take returns the stack contents in push order and clears the stack.
// Used by call to marshal arguments into the callee's locals.
func (s *OperandStack) Take() []uint32 {
	taken := make([]uint32, len(s.slots))
	copy(taken, s.slots)
	s.slots = s.slots[:0]
	return taken
}

// Slots returns a view of the stack, bottom first. The debugger reads it;
// callers must not mutate it.
func (s *OperandStack) Slots() []uint32 {
	return s.slots
}

func (s *OperandStack) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, v := range s.slots {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%d", int32(v))
	}
	sb.WriteString("] <- top")
	return sb.String()
}

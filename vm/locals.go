package vm

import "github.com/delamarch3/stack/bytecode"

// Locals is a frame's slot-addressed local storage. The vector grows on
// demand; reading a slot that was never written yields zero. A dword at
// index K occupies slots K and K+1. The assembler does not prevent
// overlapping widths at the same index; later writes shadow earlier ones.
type Locals struct {
	slots []uint32
}

func (l *Locals) grow(n int) {
	for len(l.slots) < n {
		l.slots = append(l.slots, 0)
	}
}

// SetArgs initializes the low slots from marshalled call arguments.
func (l *Locals) SetArgs(args []uint32) {
	l.grow(len(args))
	copy(l.slots, args)
}

// Load reads the value starting at slot index at the given width.
func (l *Locals) Load(w bytecode.Width, index int) int64 {
	l.grow(index + w.Slots())
	switch w {
	case bytecode.WidthB:
		return int64(uint8(l.slots[index]))
	case bytecode.WidthD:
		return int64(uint64(l.slots[index]) | uint64(l.slots[index+1])<<32)
	default:
		return int64(int32(l.slots[index]))
	}
}

// Store writes the value starting at slot index at the given width.
func (l *Locals) Store(w bytecode.Width, index int, v int64) {
	l.grow(index + w.Slots())
	switch w {
	case bytecode.WidthB:
		l.slots[index] = uint32(uint8(v))
	case bytecode.WidthD:
		l.slots[index] = uint32(uint64(v))
		l.slots[index+1] = uint32(uint64(v) >> 32)
	default:
		l.slots[index] = uint32(v)
	}
}

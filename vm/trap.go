package vm

import (
	"fmt"

	"github.com/delamarch3/stack/bytecode"
)

// TrapKind classifies fatal conditions detected by the VM.
type TrapKind int

const (
	TrapPCOutOfBounds TrapKind = iota
	TrapStackUnderflow
	TrapBadOpcode
	TrapHeapOutOfBounds
	TrapBadFree
	TrapReadOnlyWrite
	TrapDivideByZero
)

var trapKindNames = map[TrapKind]string{
	TrapPCOutOfBounds:   "PC_OOB",
	TrapStackUnderflow:  "STACK_UNDERFLOW",
	TrapBadOpcode:       "BAD_OPCODE",
	TrapHeapOutOfBounds: "HEAP_OOB",
	TrapBadFree:         "BAD_FREE",
	TrapReadOnlyWrite:   "RO_WRITE",
	TrapDivideByZero:    "DIV_ZERO",
}

func (k TrapKind) String() string {
	if name, ok := trapKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("TrapKind(%d)", int(k))
}

// Trap is a fatal condition that halts execution. The diagnostic carries
// the pc and the decoded instruction that was executing when available.
type Trap struct {
	Kind  TrapKind
	PC    uint32
	Instr bytecode.Instruction
	Msg   string
}

func (t *Trap) Error() string {
	if t.Instr.Op != 0 || t.Instr.Size != 0 {
		return fmt.Sprintf("trap %s at %d (%s): %s", t.Kind, t.PC, t.Instr, t.Msg)
	}
	return fmt.Sprintf("trap %s at %d: %s", t.Kind, t.PC, t.Msg)
}

func trapf(kind TrapKind, format string, args ...any) *Trap {
	return &Trap{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

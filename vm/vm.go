package vm

import (
	"encoding/binary"
	"errors"
	"io"
	"os"

	"github.com/tliron/commonlog"

	"github.com/delamarch3/stack/bytecode"
)

var log = commonlog.GetLogger("stack.vm")

// ErrHalted is returned by Step once the program has terminated.
var ErrHalted = errors.New("program has terminated")

// Hook observes execution before each instruction. It is installed with
// SetHook (the Debugger does not use one); when no hook is set the
// dispatch loop skips it.
type Hook interface {
	BeforeInstruction(pc uint32, in bytecode.Instruction)
}

// HookFunc adapts a function to the Hook interface.
type HookFunc func(pc uint32, in bytecode.Instruction)

func (f HookFunc) BeforeInstruction(pc uint32, in bytecode.Instruction) {
	f(pc, in)
}

// VM executes a loaded image. It is single-threaded and synchronous: one
// instruction runs to completion before the next begins, and system calls
// block for their full duration.
type VM struct {
	img    *bytecode.Image
	pc     uint32
	frames []*Frame
	heap   *Heap
	hook   Hook

	// Standard streams for the system-call bridge. Overridable in tests.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	halted bool
	exit   int32
}

// New creates a VM with a main frame positioned at the image entry point.
func New(img *bytecode.Image) *VM {
	return &VM{
		img:    img,
		pc:     img.Entry,
		frames: []*Frame{NewFrame(nil, img.Entry, 0)},
		heap:   NewHeap(),
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// SetHook installs a pre-instruction hook.
func (vm *VM) SetHook(h Hook) {
	vm.hook = h
}

// PC returns the current code offset.
func (vm *VM) PC() uint32 {
	return vm.pc
}

// Image returns the image being executed.
func (vm *VM) Image() *bytecode.Image {
	return vm.img
}

// Frames returns the call stack, bottom (main) first. The debugger reads
// it; callers must not mutate it.
func (vm *VM) Frames() []*Frame {
	return vm.frames
}

// Halted reports whether the program has terminated.
func (vm *VM) Halted() bool {
	return vm.halted
}

// ExitValue returns the program exit value once halted.
func (vm *VM) ExitValue() int32 {
	return vm.exit
}

// Run executes until the program returns from main or a trap occurs.
func (vm *VM) Run() (int32, error) {
	for !vm.halted {
		if err := vm.Step(); err != nil {
			return vm.exit, err
		}
	}
	return vm.exit, nil
}

// Step fetches, decodes and executes exactly one instruction.
func (vm *VM) Step() error {
	if vm.halted {
		return ErrHalted
	}

	pc := vm.pc
	in, err := bytecode.Decode(vm.img.Code, int(pc))
	if err != nil {
		kind := TrapPCOutOfBounds
		if errors.Is(err, bytecode.ErrUnknownOpcode) {
			kind = TrapBadOpcode
		}
		return vm.trap(&Trap{Kind: kind, Msg: err.Error()}, pc, bytecode.Instruction{})
	}

	if vm.hook != nil {
		vm.hook.BeforeInstruction(pc, in)
	}

	vm.pc += uint32(in.Size)
	if t := vm.execute(in); t != nil {
		return vm.trap(t, pc, in)
	}

	// No out-of-range pc may persist after an instruction completes.
	if !vm.halted && int(vm.pc) >= len(vm.img.Code) {
		return vm.trap(trapf(TrapPCOutOfBounds, "pc %d is outside the code section", vm.pc), pc, in)
	}

	return nil
}

// trap finalizes a trap with the faulting pc and instruction and halts.
func (vm *VM) trap(t *Trap, pc uint32, in bytecode.Instruction) error {
	t.PC = pc
	t.Instr = in
	vm.halted = true
	log.Errorf("%s", t)
	return t
}

// current returns the executing frame.
func (vm *VM) current() *Frame {
	return vm.frames[len(vm.frames)-1]
}

func (vm *VM) execute(in bytecode.Instruction) *Trap {
	cur := vm.current()
	info, _ := bytecode.GetOpcodeInfo(in.Op)
	w := info.Width

	switch in.Op {
	case bytecode.OpNop:
		// nothing

	case bytecode.OpPushB, bytecode.OpPushW, bytecode.OpPushD:
		cur.OpStack.Push(w, in.Operand)

	case bytecode.OpDataPtr:
		cur.OpStack.Push(bytecode.WidthD, int64(DataPointer(uint32(in.Operand))))

	case bytecode.OpLoadB, bytecode.OpLoadW, bytecode.OpLoadD:
		cur.OpStack.Push(w, cur.Locals.Load(w, int(in.Operand)))

	case bytecode.OpStoreB, bytecode.OpStoreW, bytecode.OpStoreD:
		v, t := cur.OpStack.Pop(w)
		if t != nil {
			return t
		}
		cur.Locals.Store(w, int(in.Operand), v)

	case bytecode.OpDupB, bytecode.OpDupW, bytecode.OpDupD:
		v, t := cur.OpStack.Pop(w)
		if t != nil {
			return t
		}
		cur.OpStack.Push(w, v)
		cur.OpStack.Push(w, v)

	case bytecode.OpPopB, bytecode.OpPopW, bytecode.OpPopD:
		if _, t := cur.OpStack.Pop(w); t != nil {
			return t
		}

	case bytecode.OpAddB, bytecode.OpAddW, bytecode.OpAddD,
		bytecode.OpSubB, bytecode.OpSubW, bytecode.OpSubD,
		bytecode.OpMulB, bytecode.OpMulW, bytecode.OpMulD,
		bytecode.OpDivB, bytecode.OpDivW, bytecode.OpDivD:
		return vm.arith(cur, in.Op, w)

	case bytecode.OpCmpB, bytecode.OpCmpW, bytecode.OpCmpD:
		rhs, t := cur.OpStack.Pop(w)
		if t != nil {
			return t
		}
		lhs, t := cur.OpStack.Pop(w)
		if t != nil {
			return t
		}
		cur.OpStack.Push(bytecode.WidthW, int64(sign(lhs, rhs)))

	case bytecode.OpJmp:
		vm.pc = uint32(in.Operand)

	case bytecode.OpJmpEq, bytecode.OpJmpNe, bytecode.OpJmpLt,
		bytecode.OpJmpGt, bytecode.OpJmpLe, bytecode.OpJmpGe:
		v, t := cur.OpStack.Pop(bytecode.WidthW)
		if t != nil {
			return t
		}
		if conditionHolds(in.Op, int32(v)) {
			vm.pc = uint32(in.Operand)
		}

	case bytecode.OpCall:
		args := cur.OpStack.Take()
		target := uint32(in.Operand)
		vm.frames = append(vm.frames, NewFrame(args, target, vm.pc))
		vm.pc = target

	case bytecode.OpRet, bytecode.OpRetB, bytecode.OpRetW, bytecode.OpRetD:
		return vm.ret(cur, in.Op, w)

	case bytecode.OpALoadB, bytecode.OpALoadW, bytecode.OpALoadD:
		return vm.aload(cur, w)

	case bytecode.OpAStoreB, bytecode.OpAStoreW, bytecode.OpAStoreD:
		return vm.astore(cur, w)

	case bytecode.OpAlloc:
		size, t := cur.OpStack.Pop(bytecode.WidthD)
		if t != nil {
			return t
		}
		cur.OpStack.Push(bytecode.WidthD, int64(vm.heap.Alloc(size)))

	case bytecode.OpFree:
		ptr, t := cur.OpStack.Pop(bytecode.WidthD)
		if t != nil {
			return t
		}
		if t := vm.heap.Free(Pointer(ptr)); t != nil {
			return t
		}

	case bytecode.OpSystem:
		return vm.system(cur)

	default:
		return trapf(TrapBadOpcode, "opcode %s is not executable", in.Op)
	}

	return nil
}

func (vm *VM) arith(cur *Frame, op bytecode.Opcode, w bytecode.Width) *Trap {
	rhs, t := cur.OpStack.Pop(w)
	if t != nil {
		return t
	}
	lhs, t := cur.OpStack.Pop(w)
	if t != nil {
		return t
	}

	var result int64
	switch op {
	case bytecode.OpAddB, bytecode.OpAddW, bytecode.OpAddD:
		result = lhs + rhs
	case bytecode.OpSubB, bytecode.OpSubW, bytecode.OpSubD:
		result = lhs - rhs
	case bytecode.OpMulB, bytecode.OpMulW, bytecode.OpMulD:
		result = lhs * rhs
	default:
		if rhs == 0 {
			return trapf(TrapDivideByZero, "division by zero")
		}
		result = lhs / rhs
	}

	cur.OpStack.Push(w, result)
	return nil
}

// ret pops the return value, unwinds the frame and either terminates the
// program (returning from main) or resumes the caller.
func (vm *VM) ret(cur *Frame, op bytecode.Opcode, w bytecode.Width) *Trap {
	hasValue := op != bytecode.OpRet

	var rv int64
	if hasValue {
		var t *Trap
		if rv, t = cur.OpStack.Pop(w); t != nil {
			return t
		}
	}

	vm.frames = vm.frames[:len(vm.frames)-1]
	if len(vm.frames) == 0 {
		vm.halted = true
		vm.exit = 0
		if hasValue {
			vm.exit = firstSlot(w, rv)
		}
		return nil
	}

	if hasValue {
		vm.current().OpStack.Push(w, rv)
	}
	vm.pc = cur.ReturnPC
	return nil
}

// firstSlot returns the first operand-stack slot of a return value, which
// becomes the process exit value when main returns.
func firstSlot(w bytecode.Width, v int64) int32 {
	if w == bytecode.WidthB {
		return int32(uint8(v))
	}
	return int32(uint32(v))
}

func (vm *VM) aload(cur *Frame, w bytecode.Width) *Trap {
	offset, t := cur.OpStack.Pop(bytecode.WidthD)
	if t != nil {
		return t
	}
	ptr, t := cur.OpStack.Pop(bytecode.WidthD)
	if t != nil {
		return t
	}

	buf, t := vm.view(Pointer(ptr), offset, int64(w.Size()), false)
	if t != nil {
		return t
	}

	switch w {
	case bytecode.WidthB:
		cur.OpStack.Push(w, int64(buf[0]))
	case bytecode.WidthD:
		cur.OpStack.Push(w, int64(binary.LittleEndian.Uint64(buf)))
	default:
		cur.OpStack.Push(w, int64(int32(binary.LittleEndian.Uint32(buf))))
	}
	return nil
}

func (vm *VM) astore(cur *Frame, w bytecode.Width) *Trap {
	value, t := cur.OpStack.Pop(w)
	if t != nil {
		return t
	}
	offset, t := cur.OpStack.Pop(bytecode.WidthD)
	if t != nil {
		return t
	}
	ptr, t := cur.OpStack.Pop(bytecode.WidthD)
	if t != nil {
		return t
	}

	buf, t := vm.view(Pointer(ptr), offset, int64(w.Size()), true)
	if t != nil {
		return t
	}

	switch w {
	case bytecode.WidthB:
		buf[0] = byte(value)
	case bytecode.WidthD:
		binary.LittleEndian.PutUint64(buf, uint64(value))
	default:
		binary.LittleEndian.PutUint32(buf, uint32(value))
	}
	return nil
}

// view resolves a pointer plus byte offset to host memory. Data-segment
// pointers are read-only; writes through them trap RO_WRITE.
func (vm *VM) view(ptr Pointer, offset, n int64, writable bool) ([]byte, *Trap) {
	if ptr.IsNull() {
		return nil, trapf(TrapHeapOutOfBounds, "access through null pointer")
	}

	if ptr.IsData() {
		if writable {
			return nil, trapf(TrapReadOnlyWrite, "write to read-only data segment")
		}
		start := int64(ptr.Offset()) + offset
		if start < 0 || start+n > int64(len(vm.img.Data)) {
			return nil, trapf(TrapHeapOutOfBounds, "%d bytes at data offset %d exceed %d-byte segment",
				n, start, len(vm.img.Data))
		}
		return vm.img.Data[start : start+n], nil
	}

	return vm.heap.View(ptr.Arena(), int64(ptr.Offset())+offset, n)
}

// sign returns the 32-bit signed comparison result in {-1, 0, +1}.
func sign(lhs, rhs int64) int32 {
	switch {
	case lhs < rhs:
		return -1
	case lhs > rhs:
		return 1
	default:
		return 0
	}
}

// conditionHolds evaluates a conditional branch against a cmp result.
func conditionHolds(op bytecode.Opcode, v int32) bool {
	switch op {
	case bytecode.OpJmpEq:
		return v == 0
	case bytecode.OpJmpNe:
		return v != 0
	case bytecode.OpJmpLt:
		return v < 0
	case bytecode.OpJmpGt:
		return v > 0
	case bytecode.OpJmpLe:
		return v <= 0
	default:
		return v >= 0
	}
}

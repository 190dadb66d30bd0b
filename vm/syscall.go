package vm

import (
	"io"

	"github.com/delamarch3/stack/bytecode"
)

// System-call numbers. Implementations may define additional syscalls but
// must not reuse these.
const (
	SysRead  int32 = 3
	SysWrite int32 = 4
)

// Well-known file descriptors.
const (
	FdStdin  int32 = 0
	FdStdout int32 = 1
	FdStderr int32 = 2
)

// system consumes, from the top of the stack downward, a word syscall
// number followed by syscall-specific arguments, and pushes the word
// result. Host-level failures surface as -1 for the program to handle; an
// unknown syscall number also yields -1.
func (vm *VM) system(cur *Frame) *Trap {
	num, t := cur.OpStack.Pop(bytecode.WidthW)
	if t != nil {
		return t
	}

	switch int32(num) {
	case SysRead:
		return vm.sysRead(cur)
	case SysWrite:
		return vm.sysWrite(cur)
	default:
		log.Debugf("unknown syscall %d", num)
		cur.OpStack.Push(bytecode.WidthW, -1)
		return nil
	}
}

// sysRead pops (fd:w, buf:d, len:d) and reads up to len bytes from fd
// into buf, pushing the byte count or -1. Reading into the data segment
// is a write through a read-only pointer and traps.
func (vm *VM) sysRead(cur *Frame) *Trap {
	fd, t := cur.OpStack.Pop(bytecode.WidthW)
	if t != nil {
		return t
	}
	ptr, t := cur.OpStack.Pop(bytecode.WidthD)
	if t != nil {
		return t
	}
	length, t := cur.OpStack.Pop(bytecode.WidthD)
	if t != nil {
		return t
	}

	if int32(fd) != FdStdin || length < 0 {
		cur.OpStack.Push(bytecode.WidthW, -1)
		return nil
	}

	buf, t := vm.view(Pointer(ptr), 0, length, true)
	if t != nil {
		return t
	}

	n, err := vm.Stdin.Read(buf)
	log.Debugf("read(%d, %#x, %d) = %d", fd, uint64(ptr), length, n)
	if err != nil && err != io.EOF {
		cur.OpStack.Push(bytecode.WidthW, -1)
		return nil
	}

	cur.OpStack.Push(bytecode.WidthW, int64(n))
	return nil
}

// sysWrite pops (fd:w, buf:d, len:d) and writes len bytes from buf to fd,
// pushing the byte count or -1.
func (vm *VM) sysWrite(cur *Frame) *Trap {
	fd, t := cur.OpStack.Pop(bytecode.WidthW)
	if t != nil {
		return t
	}
	ptr, t := cur.OpStack.Pop(bytecode.WidthD)
	if t != nil {
		return t
	}
	length, t := cur.OpStack.Pop(bytecode.WidthD)
	if t != nil {
		return t
	}

	var w io.Writer
	switch int32(fd) {
	case FdStdout:
		w = vm.Stdout
	case FdStderr:
		w = vm.Stderr
	default:
		cur.OpStack.Push(bytecode.WidthW, -1)
		return nil
	}

	if length < 0 {
		cur.OpStack.Push(bytecode.WidthW, -1)
		return nil
	}

	buf, t := vm.view(Pointer(ptr), 0, length, false)
	if t != nil {
		return t
	}

	n, err := w.Write(buf)
	log.Debugf("write(%d, %#x, %d) = %d", fd, uint64(ptr), length, n)
	if err != nil {
		cur.OpStack.Push(bytecode.WidthW, -1)
		return nil
	}

	cur.OpStack.Push(bytecode.WidthW, int64(n))
	return nil
}

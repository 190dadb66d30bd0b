// Package vm is the execution engine for stack bytecode images: the typed
// operand stack, slot-addressed locals, the frame protocol, the shared
// arena heap with tagged pointers, the dispatch loop, the host system-call
// bridge, and the interactive debugger that steps a VM instance.
//
// A VM is single-threaded and synchronous. The heap is owned by the VM
// and mutated only from the dispatch loop, so no locking is needed.
// Malformed programs are not verified up front; the VM traps when it
// detects one (see Trap).
package vm

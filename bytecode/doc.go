// Package bytecode defines the instruction set and the on-disk image format
// shared by the assembler, the interpreter and the debugger.
//
// The format is designed for:
//   - Compact representation (one opcode byte plus a fixed-width operand)
//   - Fast decoding (operand sizes are known from the opcode alone)
//   - Easy serialization (the "STKB" image is a flat little-endian layout)
//
// # Architecture Overview
//
//   - Opcodes: ~50 stack-based instructions covering push/pop, locals,
//     arithmetic, compare/branch, call/return, heap access and the host
//     system-call bridge. Width-variant opcodes come in byte, word and
//     dword flavours selected by the assembler suffixes .b/.w/.d.
//
//   - Instruction: a decoded (opcode, operand) pair. Decode is the single
//     decoder shared by the VM dispatch loop and the disassembler.
//
//   - Image: the assembler's output: entry offset, code segment, read-only
//     data segment and a symbol table retained for disassembly and
//     debugging. Serialized with the "STKB" magic, version 1.
//
//   - DebugInfo: an optional CBOR sidecar mapping code offsets back to
//     source file/line/column. Written by the assembler next to the image;
//     the debugger loads it when present.
package bytecode

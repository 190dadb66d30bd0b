package vm

// Pointer is the opaque 64-bit value programs use to reference memory.
// Bit 63 marks a read-only data-segment pointer with the data offset in
// the low 32 bits. Heap pointers carry the arena id in bits 32..62 and a
// byte offset in the low 32 bits, so adding to a pointer with dword
// arithmetic adjusts the offset. All bits set is null.
type Pointer uint64

// NullPointer is the reserved null / unallocated pointer value (-1).
const NullPointer Pointer = ^Pointer(0)

const dataPointerFlag = Pointer(1) << 63

// DataPointer returns a read-only pointer into the data segment.
func DataPointer(offset uint32) Pointer {
	return dataPointerFlag | Pointer(offset)
}

// IsNull reports whether the pointer is the reserved null value.
func (p Pointer) IsNull() bool {
	return p == NullPointer
}

// IsData reports whether the pointer references the data segment.
func (p Pointer) IsData() bool {
	return !p.IsNull() && p&dataPointerFlag != 0
}

// Arena returns the heap arena id of a heap pointer.
func (p Pointer) Arena() uint32 {
	return uint32(p >> 32)
}

// Offset returns the byte offset carried in the pointer.
func (p Pointer) Offset() uint32 {
	return uint32(p)
}

// maxAlloc bounds a single allocation request.
const maxAlloc = 1 << 30

type allocation struct {
	mem   []byte
	freed bool
}

// Heap is the arena pool shared by all frames of a VM instance. Arenas
// are keyed by id; buffers not freed before exit are reclaimed wholesale
// on VM teardown.
type Heap struct {
	arenas map[uint32]*allocation
	next   uint32
}

// NewHeap creates an empty heap.
func NewHeap() *Heap {
	return &Heap{arenas: make(map[uint32]*allocation), next: 1}
}

// Alloc allocates a zero-initialized buffer of size bytes and returns a
// pointer to it, or null when the request cannot be satisfied.
func (h *Heap) Alloc(size int64) Pointer {
	if size <= 0 || size > maxAlloc {
		return NullPointer
	}

	id := h.next
	h.next++
	h.arenas[id] = &allocation{mem: make([]byte, size)}
	return Pointer(uint64(id) << 32)
}

// Free releases the allocation the pointer refers to. The pointer becomes
// invalid; releasing null, a data pointer, an unknown pointer or an
// already-freed one is a BAD_FREE trap.
func (h *Heap) Free(p Pointer) *Trap {
	if p.IsNull() {
		return trapf(TrapBadFree, "freeing null pointer")
	}
	if p.IsData() {
		return trapf(TrapBadFree, "freeing data segment pointer")
	}

	a, ok := h.arenas[p.Arena()]
	if !ok {
		return trapf(TrapBadFree, "freeing unknown pointer %#x", uint64(p))
	}
	if a.freed {
		return trapf(TrapBadFree, "double free of pointer %#x", uint64(p))
	}

	a.freed = true
	a.mem = nil
	return nil
}

// View returns the n bytes at the given byte offset into an arena. The
// slice aliases the arena so callers may read or write through it.
func (h *Heap) View(id uint32, offset, n int64) ([]byte, *Trap) {
	a, ok := h.arenas[id]
	if !ok {
		return nil, trapf(TrapHeapOutOfBounds, "access through unknown pointer (arena %d)", id)
	}
	if a.freed {
		return nil, trapf(TrapHeapOutOfBounds, "use after free (arena %d)", id)
	}
	if offset < 0 || offset+n > int64(len(a.mem)) {
		return nil, trapf(TrapHeapOutOfBounds, "%d bytes at offset %d exceed %d-byte buffer", n, offset, len(a.mem))
	}
	return a.mem[offset : offset+n], nil
}

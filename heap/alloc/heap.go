package alloc

import (
	"fmt"

	"github.com/joshuapare/wmheap/internal/buf"
	"github.com/joshuapare/wmheap/internal/format"
)

// Heap is the allocator state for exactly one region.
type Heap struct {
	layout format.Layout
	hdr    uint32 // cached layout.HeaderSize()
	region uint16 // index of the owning region, stamped into every allocated block

	base uint32 // address of mem[0]
	mem  []byte

	first uint32 // address of the first block (base aligned up)
	start uint32 // start sentinel: next free block
	end   uint32 // address of the end sentinel

	freeBytes   uint32
	minEverFree uint32
	allocs      uint64
	frees       uint64

	err error // first free-chain corruption seen; the heap serves nothing after it
}

// Stamp is the metadata recorded in a block when it is allocated.
type Stamp struct {
	Caps uint32
	Site uint32 // interned allocation site, 0 when unknown
	Line int32
}

// New carves mem, which backs the addresses [base, base+len(mem)), into one
// giant free block followed by the end sentinel.
//
// Base 0 is rejected because address 0 is the nil pointer and the start
// sentinel.
func New(mem []byte, base uint32, region uint16, l format.Layout) (*Heap, error) {
	span := buf.Span{Start: base, Size: uint32(len(mem))}
	if uint64(len(mem)) != uint64(span.Size) {
		return nil, fmt.Errorf("alloc: region of %d bytes exceeds the address space", len(mem))
	}
	if err := buf.CheckSpan(span); err != nil {
		return nil, fmt.Errorf("alloc: region 0x%08x: %w", base, err)
	}
	if base == 0 {
		return nil, fmt.Errorf("%w: region must not start at address 0", ErrBadPointer)
	}

	h := &Heap{
		layout: l,
		hdr:    l.HeaderSize(),
		region: region,
		base:   base,
		mem:    mem,
	}

	aligned := format.Align8(base)
	if aligned < base || aligned-base >= span.Size {
		return nil, ErrTooSmall
	}
	total := span.Size - (aligned - base)
	if total < h.hdr {
		return nil, ErrTooSmall
	}
	end := format.AlignDown8(aligned + total - h.hdr)
	if end <= aligned || end-aligned <= l.MinBlockSize() {
		return nil, fmt.Errorf("%w: %d usable bytes", ErrTooSmall, total)
	}

	h.first = aligned
	h.end = end
	h.start = aligned

	if err := l.Write(h.header(end), format.Header{}); err != nil {
		return nil, err
	}
	size := end - aligned
	if err := l.Write(h.header(aligned), format.Header{Next: end, Size: size}); err != nil {
		return nil, err
	}

	h.freeBytes = size
	h.minEverFree = size
	return h, nil
}

// Layout returns the header layout of the heap.
func (h *Heap) Layout() format.Layout { return h.layout }

// Region returns the owning region index.
func (h *Heap) Region() uint16 { return h.region }

// Base returns the first address backed by the heap's memory.
func (h *Heap) Base() uint32 { return h.base }

// Size returns the number of bytes of backing memory.
func (h *Heap) Size() uint32 { return uint32(len(h.mem)) }

// First returns the address of the first block.
func (h *Heap) First() uint32 { return h.first }

// End returns the address of the end sentinel.
func (h *Heap) End() uint32 { return h.end }

// FreeBytes returns the sum of the sizes of all blocks on the free chain.
func (h *Heap) FreeBytes() uint32 { return h.freeBytes }

// MinEverFree returns the lowest FreeBytes value observed since New.
func (h *Heap) MinEverFree() uint32 { return h.minEverFree }

// Allocs returns the number of successful allocations.
func (h *Heap) Allocs() uint64 { return h.allocs }

// Frees returns the number of successful frees.
func (h *Heap) Frees() uint64 { return h.frees }

// Contains reports whether addr falls inside the heap's backing memory.
func (h *Heap) Contains(addr uint32) bool {
	return buf.Span{Start: h.base, Size: uint32(len(h.mem))}.Contains(addr)
}

// Err returns the free-chain corruption that took the heap out of service,
// or nil.
func (h *Heap) Err() error { return h.err }

func (h *Heap) fail(err error) error {
	if h.err == nil {
		h.err = err
	}
	return err
}

// header returns the memory starting at the header of the block at addr, or
// nil when the header does not lie inside the heap's memory.
func (h *Heap) header(addr uint32) []byte {
	return h.block(addr, h.hdr)
}

// block returns the whole memory of the block at addr, or nil when it does
// not lie inside the heap's memory.
func (h *Heap) block(addr, size uint32) []byte {
	if addr < h.base {
		return nil
	}
	b, _ := buf.Slice(h.mem, int(addr-h.base), int(size))
	return b
}

// checkFree validates a free-chain link: either the end sentinel, or an
// aligned header between the first block and the end sentinel whose size
// keeps the block in front of the sentinel.
func (h *Heap) checkFree(addr uint32) error {
	if addr == h.end {
		return nil
	}
	if addr < h.first || addr > h.end || !format.IsAligned8(addr) {
		return fmt.Errorf("%w: link to 0x%08x", ErrFreeList, addr)
	}
	size := format.Size(h.header(addr))
	if size < h.hdr || !format.IsAligned8(size) || size > h.end-addr {
		return fmt.Errorf("%w: free block 0x%08x size %d", ErrFreeList, addr, size)
	}
	return nil
}

// The start sentinel lives outside region memory at address 0.

func (h *Heap) nextOf(addr uint32) uint32 {
	if addr == 0 {
		return h.start
	}
	return format.Next(h.header(addr))
}

func (h *Heap) setNext(addr, next uint32) {
	if addr == 0 {
		h.start = next
		return
	}
	format.SetNext(h.header(addr), next)
}

func (h *Heap) sizeOf(addr uint32) uint32 {
	if addr == 0 {
		return 0
	}
	return format.Size(h.header(addr))
}

func (h *Heap) setSize(addr, size uint32) {
	format.SetSize(h.header(addr), size)
}

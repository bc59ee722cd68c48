package alloc

import (
	"fmt"

	"github.com/joshuapare/wmheap/internal/format"
)

// Alloc takes a block able to hold size payload bytes and returns the payload
// address, or 0 when no free block is large enough. A zero size returns 0.
func (h *Heap) Alloc(size uint32, st Stamp) uint32 {
	if size == 0 {
		return 0
	}
	wanted, ok := h.layout.BlockSize(size)
	if !ok || wanted > h.freeBytes || h.err != nil {
		return 0
	}

	// First fit. Every link is checked before it is followed, so an
	// overwritten free block stops the walk instead of escaping the heap.
	prev := uint32(0)
	blk := h.start
	for {
		if err := h.checkFree(blk); err != nil {
			h.fail(err)
			return 0
		}
		if blk == h.end {
			return 0
		}
		if h.sizeOf(blk) >= wanted {
			break
		}
		next := h.nextOf(blk)
		if next <= blk {
			h.fail(fmt.Errorf("%w: block 0x%08x links back to 0x%08x", ErrFreeList, blk, next))
			return 0
		}
		prev, blk = blk, next
	}

	next := h.nextOf(blk)
	if err := h.checkFree(next); err != nil || next <= blk {
		h.fail(fmt.Errorf("%w: block 0x%08x links to 0x%08x", ErrFreeList, blk, next))
		return 0
	}
	h.setNext(prev, next)

	size32 := h.sizeOf(blk)
	if size32-wanted > h.layout.MinBlockSize() {
		rest := blk + wanted
		// rest may hold a stale header from an earlier split; overwrite all of it.
		_ = h.layout.Write(h.header(rest), format.Header{Size: size32 - wanted})
		h.setSize(blk, wanted)
		if err := h.insert(rest); err != nil {
			h.fail(err)
			return 0
		}
		size32 = wanted
	}

	h.freeBytes -= size32
	if h.freeBytes < h.minEverFree {
		h.minEverFree = h.freeBytes
	}

	hdr := format.Header{
		Size:      size32,
		Caps:      st.Caps,
		Region:    h.region,
		Allocated: true,
		Site:      st.Site,
		Line:      st.Line,
	}
	if h.layout.Poison != format.PoisonNone {
		hdr.Magic = format.MagicHeader
	}
	_ = h.layout.Write(h.header(blk), hdr)
	_ = h.layout.WriteTrailer(h.block(blk, size32))

	h.allocs++
	return blk + h.hdr
}

// insert puts the free block at addr back on the chain, merging it with the
// free blocks directly before and after it in memory. It fails, leaving the
// chain as it was, when a link on the way to addr is corrupt.
func (h *Heap) insert(addr uint32) error {
	it := uint32(0)
	for {
		next := h.nextOf(it)
		if err := h.checkFree(next); err != nil {
			return err
		}
		if next <= it && it != 0 {
			return fmt.Errorf("%w: block 0x%08x links back to 0x%08x", ErrFreeList, it, next)
		}
		if next >= addr {
			break
		}
		it = next
	}

	// Backward merge: the predecessor absorbs the block and no new node is created.
	if it+h.sizeOf(it) == addr {
		h.setSize(it, h.sizeOf(it)+h.sizeOf(addr))
		addr = it
	}

	next := h.nextOf(it)
	switch {
	case addr+h.sizeOf(addr) == next && next != h.end:
		h.setSize(addr, h.sizeOf(addr)+h.sizeOf(next))
		h.setNext(addr, h.nextOf(next))
	default:
		h.setNext(addr, next)
	}

	if it != addr {
		h.setNext(it, addr)
	}
	return nil
}

// Release returns an allocated block to the free chain. The block must have
// been obtained through Lookup and unlinked from any used-block list.
func (h *Heap) Release(b Block) error {
	if !b.Allocated {
		return ErrDoubleFree
	}
	if b.Next != 0 {
		return ErrLinked
	}

	if h.err != nil {
		return h.err
	}

	_ = h.layout.Write(h.header(b.Addr), format.Header{Size: b.Size, Line: -1})
	if err := h.insert(b.Addr); err != nil {
		_ = h.layout.Write(h.header(b.Addr), b.Header)
		return h.fail(err)
	}
	h.freeBytes += b.Size
	h.frees++
	return nil
}

// Free looks up, verifies and releases the block whose payload starts at
// payload. A corrupt header leaves the block untouched; a corrupt trailer is
// reported after the block has been released.
func (h *Heap) Free(payload uint32) error {
	b, err := h.Lookup(payload)
	if err != nil {
		return err
	}
	verr := h.Verify(b)
	if verr != nil && !IsTrailerOnly(verr) {
		return verr
	}
	if err := h.Release(b); err != nil {
		return err
	}
	return verr
}

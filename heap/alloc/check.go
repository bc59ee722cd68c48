package alloc

import (
	"fmt"

	"github.com/joshuapare/wmheap/internal/format"
)

// FreeBlocks calls fn for every block on the free chain in address order,
// stopping early when fn returns false or at the first corrupt link.
// Sentinels are not reported.
func (h *Heap) FreeBlocks(fn func(addr, size uint32) bool) {
	for addr := h.start; addr != h.end; {
		if h.checkFree(addr) != nil || !fn(addr, h.sizeOf(addr)) {
			return
		}
		next := h.nextOf(addr)
		if next <= addr {
			return
		}
		addr = next
	}
}

// Blocks walks every block between the first block and the end sentinel in
// memory order, free or allocated. It stops early when fn returns false or
// when a size field would step outside the heap.
func (h *Heap) Blocks(fn func(addr uint32, hdr format.Header) bool) error {
	for addr := h.first; addr < h.end; {
		hdr, err := h.layout.Read(h.header(addr))
		if err != nil {
			return err
		}
		if hdr.Size < h.hdr || !format.IsAligned8(hdr.Size) || hdr.Size > h.end-addr {
			return fmt.Errorf("%w: block 0x%08x size %d", ErrFreeList, addr, hdr.Size)
		}
		if !fn(addr, hdr) {
			return nil
		}
		addr += hdr.Size
	}
	return nil
}

// Check verifies the heap invariants:
//   - the free chain visits free blocks in strictly increasing address order
//     and ends at the end sentinel
//   - no two free blocks on the chain overlap or touch
//   - FreeBytes equals the sum of the free chain
//   - the blocks tile the heap exactly up to the end sentinel
//   - every allocated block passes Verify
func (h *Heap) Check() error {
	var (
		sum     uint64
		prevEnd uint32
		count   int
	)
	limit := len(h.mem)/format.Alignment + 1
	addr := h.start
	for addr != h.end {
		if addr == 0 || addr < h.first || addr > h.end {
			return fmt.Errorf("%w: link to 0x%08x", ErrFreeList, addr)
		}
		if count > 0 && addr <= prevEnd {
			return fmt.Errorf("%w: block 0x%08x overlaps or touches previous ending 0x%08x", ErrFreeList, addr, prevEnd)
		}
		size := h.sizeOf(addr)
		if size < h.hdr || !format.IsAligned8(size) || size > h.end-addr {
			return fmt.Errorf("%w: free block 0x%08x size %d", ErrFreeList, addr, size)
		}
		if format.Allocated(h.header(addr)) {
			return fmt.Errorf("%w: block 0x%08x on the free chain is marked allocated", ErrFreeList, addr)
		}
		sum += uint64(size)
		prevEnd = addr + size
		addr = h.nextOf(addr)
		count++
		if count > limit {
			return fmt.Errorf("%w: cycle after %d blocks", ErrFreeList, count)
		}
	}
	if sum != uint64(h.freeBytes) {
		return fmt.Errorf("%w: chain holds %d bytes, accounting says %d", ErrFreeList, sum, h.freeBytes)
	}
	if h.minEverFree > h.freeBytes {
		return fmt.Errorf("%w: minimum ever free %d above free %d", ErrFreeList, h.minEverFree, h.freeBytes)
	}

	var tiled uint64
	var verr error
	err := h.Blocks(func(addr uint32, hdr format.Header) bool {
		tiled += uint64(hdr.Size)
		if hdr.Allocated {
			verr = h.Verify(Block{Header: hdr, Addr: addr, Payload: addr + h.hdr})
		}
		return verr == nil
	})
	if err != nil {
		return err
	}
	if verr != nil {
		return verr
	}
	if tiled != uint64(h.end-h.first) {
		return fmt.Errorf("%w: blocks cover %d bytes, heap spans %d", ErrFreeList, tiled, h.end-h.first)
	}
	return nil
}

// Package alloc implements the free-list heap that manages one memory region.
//
// # Overview
//
// A Heap owns the backing memory of a single region and hands out blocks
// from it. Every block, free or allocated, starts with a header (see
// internal/format). Free blocks are chained through their header in strictly
// increasing address order between two sentinels:
//
//	start (virtual, size 0) -> free -> free -> ... -> end (in memory, size 0)
//
// # Allocation
//
// Alloc is first-fit: it walks the free chain and takes the first block
// whose size covers the request (header and optional trailer included,
// rounded to 8 bytes). If the remainder is larger than MinBlockSize (two
// headers) the block is split and the tail goes back on the free chain;
// otherwise the whole block is handed out.
//
// # Free
//
// Release puts a block back on the chain at its address position and merges
// it with an address-adjacent free neighbour on either side, so two free
// blocks are never contiguous.
//
// # Poisoning
//
// With a poisoning layout the header carries a magic that Verify checks
// before release; the comprehensive layout adds a trailer magic in the last
// four bytes of the block.
//
// # Thread Safety
//
// Heap instances are not thread-safe. The heap package wraps every call in
// the allocator's critical section.
package alloc

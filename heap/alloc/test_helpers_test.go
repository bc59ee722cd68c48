package alloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/wmheap/internal/format"
)

const testBase = 0x20000000

// newTestHeap builds a heap over size bytes of Go memory at testBase.
func newTestHeap(t testing.TB, size int, l format.Layout) *Heap {
	t.Helper()
	h, err := New(make([]byte, size), testBase, 0, l)
	require.NoError(t, err)
	require.NoError(t, h.Check())
	return h
}

// mustAlloc allocates n bytes and fails the test if the heap is exhausted.
func mustAlloc(t testing.TB, h *Heap, n uint32) uint32 {
	t.Helper()
	p := h.Alloc(n, Stamp{Caps: 1})
	require.NotZero(t, p, "alloc(%d) with %d free", n, h.FreeBytes())
	return p
}

// freeChain returns the (addr, size) pairs of the free chain.
func freeChain(h *Heap) [][2]uint32 {
	var out [][2]uint32
	h.FreeBlocks(func(addr, size uint32) bool {
		out = append(out, [2]uint32{addr, size})
		return true
	})
	return out
}

package alloc

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/wmheap/internal/format"
)

// Test_Fuzz_RandomAllocFree_GuardInvariants performs random alloc/free and
// validates the heap invariants after every step.
func Test_Fuzz_RandomAllocFree_GuardInvariants(t *testing.T) {
	layouts := []format.Layout{
		{},
		{Poison: format.PoisonLight},
		{Tracing: true, Poison: format.PoisonComprehensive},
	}
	for _, l := range layouts {
		t.Run(l.Poison.String(), func(t *testing.T) {
			h := newTestHeap(t, 16*1024, l)
			start := h.FreeBytes()
			rng := rand.New(rand.NewSource(42)) // Fixed seed for reproducibility

			live := make(map[uint32]byte)
			low := h.MinEverFree()
			for i := 0; i < 2000; i++ {
				if rng.Intn(3) > 0 || len(live) == 0 {
					size := uint32(1 + rng.Intn(700))
					p := h.Alloc(size, Stamp{Caps: 1})
					if p == 0 {
						continue
					}
					require.True(t, format.IsAligned8(p), "step %d", i)
					b, err := h.Lookup(p)
					require.NoError(t, err)
					fill := byte(i)
					payload := h.Payload(b)
					require.GreaterOrEqual(t, len(payload), int(size))
					for j := range payload {
						payload[j] = fill
					}
					live[p] = fill
				} else {
					for p := range live {
						require.NoError(t, h.Free(p), "step %d", i)
						delete(live, p)
						break
					}
				}

				require.NoError(t, h.Check(), "step %d", i)
				require.LessOrEqual(t, h.MinEverFree(), low, "step %d: minimum ever free increased", i)
				low = h.MinEverFree()
			}

			// Live payloads were never clobbered by neighbours.
			for p, fill := range live {
				b, err := h.Lookup(p)
				require.NoError(t, err)
				for _, c := range h.Payload(b) {
					require.Equal(t, fill, c)
				}
				require.NoError(t, h.Free(p))
			}
			require.Equal(t, start, h.FreeBytes())
			require.Len(t, freeChain(h), 1, "everything coalesced back into one block")
		})
	}
}

package heap

import (
	"encoding/binary"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/wmheap/caps"
	"github.com/joshuapare/wmheap/internal/testutil"
)

// headerBytes returns the raw header of the block at p inside SRAM.
func headerBytes(mem *testutil.Memory, a *Allocator, p Ptr) []byte {
	hdr := a.layout.HeaderSize()
	return mem.At(0, sramBase, uint32(p)-hdr, hdr)
}

func Test_PrintTracing_LiveBlocks(t *testing.T) {
	a, out := newTestAllocator(t, Config{Regions: threeRegions(), Tracing: true})

	p := a.AllocAt(100, caps.Default, "main.c", 42)
	q := a.Alloc(40, caps.Internal)
	r := a.Alloc(8, caps.Default)
	require.NoError(t, a.Free(r))

	st := a.Stats()
	require.Equal(t, 2, st.UsedBlocks)
	require.Equal(t, uint64(128+64), st.UsedBytes, "24-byte tracing header")

	a.PrintTracing(0)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)

	// Newest first.
	require.Regexp(t, fmt.Sprintf(`^0\t%v\ttracing_test\.go:\d+\t64$`, q), lines[0])
	require.Equal(t, fmt.Sprintf("1\t%v\tmain.c:42\t128", p), lines[1])
	require.Equal(t, "summary: malloc size 192, malloc count 2", lines[2])
	require.NotContains(t, out.String(), "corruption")
}

func Test_PrintTracing_Realloc(t *testing.T) {
	a, out := newTestAllocator(t, Config{Regions: threeRegions(), Tracing: true})

	p := a.Alloc(16, caps.Default)
	p = a.ReallocAt(p, 200, 0, "net.c", 7)
	require.False(t, p.IsNil())

	a.PrintTracing(0)
	require.Contains(t, out.String(), fmt.Sprintf("0\t%v\tnet.c:7\t224\n", p))
	require.Contains(t, out.String(), "malloc count 1")
	require.NoError(t, a.Check())
}

func Test_PrintTracing_DisabledIsSilent(t *testing.T) {
	a, out := newTestAllocator(t, Config{Regions: threeRegions()})
	a.Alloc(16, caps.Default)
	a.PrintTracing(0)
	require.Empty(t, out.String())
}

func Test_PrintStats(t *testing.T) {
	a, out := newTestAllocator(t, Config{Regions: threeRegions()})

	a.PrintStats()
	sram := regionStats(t, a, "SRAM")
	dram := regionStats(t, a, "DRAM")
	want := fmt.Sprintf("heap remain %d (%s):\n", a.FreeSize(), human(a.FreeSize())) +
		fmt.Sprintf("    %-8s remain %-7d (%s)\n", "SRAM", sram.FreeBytes, human(uint64(sram.FreeBytes))) +
		fmt.Sprintf("    %-8s remain %-7d (%s)\n", "DRAM", dram.FreeBytes, human(uint64(dram.FreeBytes)))
	require.Equal(t, want, out.String(), "deferred regions are skipped")
	require.Equal(t, uint64(sram.FreeBytes+dram.FreeBytes), a.FreeSize())
}

func Test_Free_CorruptHeaderMagic(t *testing.T) {
	mem := &testutil.Memory{}
	a, out := newTestAllocator(t, Config{Regions: threeRegions(), Poisoning: PoisonLight, Backing: mem.Map})

	p := a.Alloc(64, caps.Default)
	held := a.FreeSize()

	// Light poisoning without tracing puts the magic right after the fixed header.
	binary.LittleEndian.PutUint32(headerBytes(mem, a, p)[0x10:], 0xDEADBEEF)

	err := a.Free(p)
	require.ErrorIs(t, err, ErrCorruption)
	require.Equal(t, held, a.FreeSize(), "a block with a corrupt header is not released")
	require.Equal(t, fmt.Sprintf("corruption detected in %v\n", p), strings.SplitAfter(out.String(), "\n")[0])
	require.Contains(t, out.String(), "heap remain")
}

func Test_Free_CorruptRegion(t *testing.T) {
	mem := &testutil.Memory{}
	a, out := newTestAllocator(t, Config{
		Regions:   threeRegions(),
		Tracing:   true,
		Poisoning: PoisonLight,
		Backing:   mem.Map,
	})

	p := a.AllocAt(64, caps.Default, "spi.c", 99)
	held := a.FreeSize()
	binary.LittleEndian.PutUint16(headerBytes(mem, a, p)[0x0C:], 1)

	require.ErrorIs(t, a.Free(p), ErrCorruption)
	require.Equal(t, held, a.FreeSize())
	require.Contains(t, out.String(), fmt.Sprintf("corruption detected %v in spi.c:99 size 96\n", p))
	require.Contains(t, out.String(), "summary: malloc size 96, malloc count 1")
}

func Test_Free_CorruptTrailer(t *testing.T) {
	a, out := newTestAllocator(t, Config{Regions: threeRegions(), Poisoning: PoisonComprehensive})
	full := a.FreeSize()

	p := a.Alloc(20, caps.Default)
	b := a.Bytes(p)
	require.Len(t, b, 20, "48-byte block minus header and trailer")
	require.Greater(t, cap(b), len(b))

	b[:cap(b)][len(b)] = 0 // one byte too far

	require.ErrorIs(t, a.Free(p), ErrCorruption)
	require.Equal(t, full, a.FreeSize(), "trailer damage still releases the block")
	require.Contains(t, out.String(), "corruption detected in")
	require.NoError(t, a.Check())
}

func Test_Free_CorruptionAssertion(t *testing.T) {
	a, out := newTestAllocator(t, Config{
		Regions:    threeRegions(),
		Poisoning:  PoisonComprehensive,
		Assertions: true,
	})

	p := a.Alloc(20, caps.Default)
	b := a.Bytes(p)
	b[:cap(b)][len(b)+1] = 0

	require.Panics(t, func() { _ = a.Free(p) })
	require.Contains(t, out.String(), "corruption detected", "the dump precedes the panic")
}

func Test_PrintTracing_ReportsPointer(t *testing.T) {
	a, out := newTestAllocator(t, Config{Regions: threeRegions(), Tracing: true, Poisoning: PoisonLight})

	p := a.AllocAt(10, caps.Default, "uart.c", 3)
	a.PrintTracing(p)
	require.Contains(t, out.String(), fmt.Sprintf("corruption detected %v in uart.c:3 size 48\n", p))
	require.Contains(t, out.String(), "heap remain")
}

package heap

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/wmheap/caps"
	"github.com/joshuapare/wmheap/internal/testutil"
)

const (
	sramBase  = 0x20000000
	dramBase  = 0x20048000
	psramBase = 0x30000000
)

// staticProber reports fixed sizes, or an error for regions not listed.
type staticProber map[string]uint32

func (p staticProber) Probe(region string) (uint32, error) {
	size, ok := p[region]
	if !ok {
		return 0, errors.New("psram: no response")
	}
	return size, nil
}

// threeRegions is a small table shaped like the W800: two internal banks and
// deferred external RAM.
func threeRegions() []RegionSpec {
	return []RegionSpec{
		{Name: "SRAM", Start: sramBase, Size: 16 * 1024, Caps: caps.Default | caps.Internal | caps.Exec | caps.Shared},
		{Name: "DRAM", Start: dramBase, Size: 8 * 1024, Caps: caps.Default | caps.Internal, TailReserve: 4},
		{Name: "PSRAM", Start: psramBase, Size: 8 << 20, Caps: caps.Default | caps.SPIRAM, Deferred: true},
	}
}

// newTestAllocator builds an allocator over Go memory with output captured.
func newTestAllocator(t testing.TB, cfg Config) (*Allocator, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	if cfg.Output == nil {
		cfg.Output = out
	}
	if cfg.Backing == nil {
		cfg.Backing = (&testutil.Memory{}).Map
	}
	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	require.NoError(t, a.Check())
	return a, out
}

func regionStats(t testing.TB, a *Allocator, name string) RegionStats {
	t.Helper()
	for _, r := range a.Stats().Regions {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("no region %q", name)
	return RegionStats{}
}

package heap

import (
	"fmt"
	"io"

	"github.com/inhies/go-bytesize"

	"github.com/joshuapare/wmheap/caps"
	"github.com/joshuapare/wmheap/heap/alloc"
	"github.com/joshuapare/wmheap/internal/format"
)

// Stats is a snapshot of the global and per-region counters.
type Stats struct {
	FreeBytes            uint64
	MinimumEverFreeBytes uint64
	Allocations          uint64
	Frees                uint64

	// Live block totals, kept only when tracing is enabled.
	UsedBytes  uint64
	UsedBlocks int

	Regions []RegionStats
}

// RegionStats describes one region of the table.
type RegionStats struct {
	Name                 string
	Start                uint32
	Size                 uint32
	Caps                 caps.Caps
	Active               bool
	FreeBytes            uint32
	MinimumEverFreeBytes uint32
	Allocations          uint64
	Frees                uint64
}

// FreeSize returns the free bytes across all active regions.
func (a *Allocator) FreeSize() uint64 {
	a.cfg.Lock.Lock()
	defer a.cfg.Lock.Unlock()
	return a.freeBytes
}

// MinimumEverFreeSize returns the lowest FreeSize observed.
func (a *Allocator) MinimumEverFreeSize() uint64 {
	a.cfg.Lock.Lock()
	defer a.cfg.Lock.Unlock()
	return a.minEverFree
}

// Stats returns a snapshot of all counters.
func (a *Allocator) Stats() Stats {
	a.cfg.Lock.Lock()
	defer a.cfg.Lock.Unlock()

	s := Stats{
		FreeBytes:            a.freeBytes,
		MinimumEverFreeBytes: a.minEverFree,
		Allocations:          a.allocs,
		Frees:                a.frees,
		UsedBytes:            a.used.bytes,
		UsedBlocks:           a.used.count,
		Regions:              make([]RegionStats, 0, len(a.regions)),
	}
	for _, r := range a.regions {
		rs := RegionStats{
			Name:   r.name,
			Start:  r.start,
			Size:   r.size,
			Caps:   r.caps,
			Active: r.active(),
		}
		if r.heap != nil {
			rs.FreeBytes = r.heap.FreeBytes()
			rs.MinimumEverFreeBytes = r.heap.MinEverFree()
			rs.Allocations = r.heap.Allocs()
			rs.Frees = r.heap.Frees()
		}
		s.Regions = append(s.Regions, rs)
	}
	return s
}

// PrintStats writes the global free bytes and the free bytes of every usable
// region to Config.Output.
func (a *Allocator) PrintStats() {
	a.cfg.Lock.Lock()
	defer a.cfg.Lock.Unlock()
	a.printStats(a.cfg.Output)
}

func (a *Allocator) printStats(w io.Writer) {
	fmt.Fprintf(w, "heap remain %d (%s):\n", a.freeBytes, human(a.freeBytes))
	for _, r := range a.regions {
		if !r.active() {
			continue
		}
		free := uint64(r.heap.FreeBytes())
		fmt.Fprintf(w, "    %-8s remain %-7d (%s)\n", r.name, free, human(free))
	}
}

// PrintTracing writes the live-block table to Config.Output. When p is not
// nil it is reported as corrupt, followed by the statistics dump.
//
// Without tracing only the corruption banner is printed, and only when
// poisoning is enabled.
func (a *Allocator) PrintTracing(p Ptr) {
	a.cfg.Lock.Lock()
	defer a.cfg.Lock.Unlock()

	var bad *alloc.Block
	if !p.IsNil() {
		if r := a.regionOf(uint32(p)); r != nil && uint32(p) >= r.heap.First()+a.layout.HeaderSize() {
			addr := uint32(p) - a.layout.HeaderSize()
			if hdr, err := r.heap.Header(addr); err == nil {
				bad = &alloc.Block{Header: hdr, Addr: addr, Payload: uint32(p)}
			}
		}
		if bad == nil {
			bad = &alloc.Block{Payload: uint32(p)}
		}
	}
	a.printTracing(a.cfg.Output, bad)
}

func (a *Allocator) printTracing(w io.Writer, bad *alloc.Block) {
	if !a.layout.Tracing {
		if a.layout.Poison != format.PoisonNone && bad != nil {
			fmt.Fprintf(w, "corruption detected in %v\n", Ptr(bad.Payload))
			a.printStats(w)
		}
		return
	}

	idx := 0
	a.used.each(a, func(_ *region, b alloc.Block) bool {
		fmt.Fprintf(w, "%d\t%v\t%s:%d\t%d\n", idx, Ptr(b.Payload), a.sites.name(b.Site), b.Line, b.Size)
		idx++
		return true
	})
	fmt.Fprintf(w, "summary: malloc size %d, malloc count %d\n", a.used.bytes, a.used.count)

	if bad != nil {
		fmt.Fprintf(w, "corruption detected %v in %s:%d size %d\n",
			Ptr(bad.Payload), a.sites.name(bad.Site), bad.Line, bad.Size)
		a.printStats(w)
	}
}

// Check verifies the invariants of every active heap, that the global free
// count equals the sum of the regions, and, with tracing, that the used list
// holds exactly the allocated blocks.
func (a *Allocator) Check() error {
	a.cfg.Lock.Lock()
	defer a.cfg.Lock.Unlock()

	var sum uint64
	allocated := 0
	for _, r := range a.regions {
		if r.heap == nil {
			continue
		}
		if err := r.heap.Check(); err != nil {
			return fmt.Errorf("region %q: %w", r.name, err)
		}
		sum += uint64(r.heap.FreeBytes())
		if err := r.heap.Blocks(func(_ uint32, hdr format.Header) bool {
			if hdr.Allocated {
				allocated++
			}
			return true
		}); err != nil {
			return fmt.Errorf("region %q: %w", r.name, err)
		}
	}
	if sum != a.freeBytes {
		return fmt.Errorf("%w: regions hold %d free bytes, global count is %d", ErrCorruption, sum, a.freeBytes)
	}
	if a.minEverFree > a.freeBytes {
		return fmt.Errorf("%w: minimum ever free %d above free %d", ErrCorruption, a.minEverFree, a.freeBytes)
	}
	if a.layout.Tracing {
		listed := 0
		a.used.each(a, func(_ *region, b alloc.Block) bool {
			listed++
			return b.Allocated
		})
		if listed != a.used.count || listed != allocated {
			return fmt.Errorf("%w: used list holds %d blocks (count %d), heaps hold %d",
				ErrCorruption, listed, a.used.count, allocated)
		}
	}
	return nil
}

// human renders a byte count with a binary unit, e.g. 120.56KB.
func human(n uint64) string {
	return bytesize.New(float64(n)).String()
}

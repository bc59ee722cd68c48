package heap

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/joshuapare/wmheap/caps"
	"github.com/joshuapare/wmheap/internal/arena"
	"github.com/joshuapare/wmheap/internal/format"
)

// Poisoning selects the corruption detection stamped into every block.
type Poisoning = format.Poisoning

const (
	PoisonNone          = format.PoisonNone
	PoisonLight         = format.PoisonLight
	PoisonComprehensive = format.PoisonComprehensive
)

// RegionSpec describes one region of the table as known at build time.
type RegionSpec struct {
	Name  string
	Start uint32 // provisional base address
	Size  uint32 // provisional size in bytes
	Caps  caps.Caps

	// TailReserve is a number of bytes at the end of the region kept by the
	// platform (W800 stores the reboot reason in the last word of its second
	// bank).
	TailReserve uint32

	// Deferred regions are unusable until Append succeeds.
	Deferred bool
}

// Linker reports where statically linked data ends inside a region. A region
// without static data returns ok = false.
type Linker interface {
	StaticEnd(region string) (end uint32, ok bool)
}

// LinkerMap is a Linker backed by a map of region name to end address.
type LinkerMap map[string]uint32

// StaticEnd implements Linker.
func (m LinkerMap) StaticEnd(region string) (uint32, bool) {
	end, ok := m[region]
	return end, ok
}

// Prober reports the real size of a deferred region.
type Prober interface {
	Probe(region string) (size uint32, err error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(region string) (uint32, error)

// Probe implements Prober.
func (f ProberFunc) Probe(region string) (uint32, error) { return f(region) }

// Mapper produces the backing memory of a region and a cleanup for it.
type Mapper = arena.Mapper

// MappedMemory backs each region with an anonymous memory mapping. It is the
// default Backing.
func MappedMemory(size int) ([]byte, func() error, error) { return arena.Map(size) }

// GoMemory backs each region with a slice from the Go heap.
func GoMemory(size int) ([]byte, func() error, error) { return arena.Heap(size) }

// Config selects the region table and the optional diagnostic layers.
type Config struct {
	Regions []RegionSpec

	Tracing   bool
	Poisoning Poisoning

	// Assertions panics on corruption and invariant violations after the
	// diagnostic dump instead of returning the error.
	Assertions bool

	// Lock is the critical section around every operation. Defaults to a
	// *sync.Mutex.
	Lock sync.Locker

	Linker Linker
	Prober Prober

	// Backing defaults to anonymous memory mappings.
	Backing Mapper

	// Logger receives structured events. Defaults to discarding them.
	Logger *slog.Logger

	// Output receives PrintStats and PrintTracing dumps. Defaults to os.Stderr.
	Output io.Writer
}

func (c Config) withDefaults() Config {
	if c.Lock == nil {
		c.Lock = &sync.Mutex{}
	}
	if c.Linker == nil {
		c.Linker = LinkerMap(nil)
	}
	if c.Backing == nil {
		c.Backing = MappedMemory
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.Output == nil {
		c.Output = os.Stderr
	}
	return c
}

func (c Config) layout() format.Layout {
	return format.Layout{Tracing: c.Tracing, Poison: c.Poisoning}
}

func (c Config) validate() error {
	if len(c.Regions) == 0 {
		return fmt.Errorf("%w: empty region table", ErrInvalidParam)
	}
	if len(c.Regions) > 1<<16 {
		return fmt.Errorf("%w: %d regions", ErrInvalidParam, len(c.Regions))
	}
	if c.Poisoning > PoisonComprehensive {
		return fmt.Errorf("%w: poisoning %v", ErrInvalidParam, c.Poisoning)
	}
	seen := make(map[string]bool, len(c.Regions))
	for _, r := range c.Regions {
		if r.Name == "" {
			return fmt.Errorf("%w: unnamed region", ErrInvalidParam)
		}
		if seen[r.Name] {
			return fmt.Errorf("%w: duplicate region %q", ErrInvalidParam, r.Name)
		}
		seen[r.Name] = true
		if r.Caps&caps.Invalid != 0 {
			return fmt.Errorf("%w: region %q declares INVALID; use Deferred", ErrInvalidParam, r.Name)
		}
	}
	return nil
}

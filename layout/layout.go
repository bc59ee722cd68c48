// Package layout describes the memory map of a board: which regions exist,
// where they live, what they can be used for and how much of them the linker
// has already claimed. A Layout is loaded from YAML or taken from a built-in
// table and turned into the region table and linker bounds of a
// heap.Allocator.
//
// Example file:
//
//	board: w800
//	regions:
//	  - name: SRAM
//	    start: 0x20000000
//	    size: 160KB
//	    caps: [DEFAULT, INTERNAL, EXEC, SHARED]
//	    static_end: 0x20012340
//	  - name: PSRAM
//	    start: 0x30000000
//	    size: 8MB
//	    caps: [DEFAULT, SPIRAM]
//	    deferred: true
package layout

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/joshuapare/wmheap/caps"
	"github.com/joshuapare/wmheap/heap"
)

// ErrInvalid is returned for malformed or inconsistent layouts.
var ErrInvalid = errors.New("layout: invalid")

// Layout is a board memory map. Region order is allocation priority.
type Layout struct {
	Board   string   `yaml:"board"`
	Regions []Region `yaml:"regions"`
}

// Region is one entry of the memory map.
type Region struct {
	Name  string   `yaml:"name"`
	Start Addr     `yaml:"start"`
	Size  Size     `yaml:"size"`
	Caps  []string `yaml:"caps,flow"`

	// StaticEnd is where linked data ends inside the region; zero if the
	// heap owns the whole region.
	StaticEnd Addr `yaml:"static_end,omitempty"`

	TailReserve Size `yaml:"tail_reserve,omitempty"`
	Deferred    bool `yaml:"deferred,omitempty"`
}

// Parse decodes and validates a YAML layout. Unknown fields are rejected.
func Parse(data []byte) (*Layout, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var l Layout
	if err := dec.Decode(&l); err != nil {
		if errors.Is(err, ErrInvalid) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

// Load reads and parses the layout file at path.
func Load(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("layout: %w", err)
	}
	l, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

// Marshal encodes l as YAML.
func (l *Layout) Marshal() ([]byte, error) {
	return yaml.Marshal(l)
}

// Validate checks names, capabilities and the static data bounds. Region
// overlap is left to heap.New, which sees the corrected bounds.
func (l *Layout) Validate() error {
	if len(l.Regions) == 0 {
		return fmt.Errorf("%w: no regions", ErrInvalid)
	}
	seen := make(map[string]bool, len(l.Regions))
	for i, r := range l.Regions {
		if r.Name == "" {
			return fmt.Errorf("%w: region %d has no name", ErrInvalid, i)
		}
		if seen[r.Name] {
			return fmt.Errorf("%w: duplicate region %q", ErrInvalid, r.Name)
		}
		seen[r.Name] = true

		c, err := r.caps()
		if err != nil {
			return err
		}
		if c == 0 {
			return fmt.Errorf("%w: region %q has no capabilities", ErrInvalid, r.Name)
		}
		if c&caps.Invalid != 0 {
			return fmt.Errorf("%w: region %q: INVALID is set by the allocator, use deferred", ErrInvalid, r.Name)
		}
		if uint64(r.Start)+uint64(r.Size) >= 1<<32 {
			return fmt.Errorf("%w: region %q wraps the address space", ErrInvalid, r.Name)
		}
		if r.StaticEnd != 0 && (r.StaticEnd < r.Start || uint64(r.StaticEnd) > uint64(r.Start)+uint64(r.Size)) {
			return fmt.Errorf("%w: region %q: static_end %v outside the region", ErrInvalid, r.Name, r.StaticEnd)
		}
	}
	return nil
}

func (r Region) caps() (caps.Caps, error) {
	c, err := caps.ParseList(r.Caps)
	if err != nil {
		return 0, fmt.Errorf("%w: region %q: %w", ErrInvalid, r.Name, err)
	}
	return c, nil
}

// Specs returns the region table for heap.Config.
func (l *Layout) Specs() ([]heap.RegionSpec, error) {
	specs := make([]heap.RegionSpec, 0, len(l.Regions))
	for _, r := range l.Regions {
		c, err := r.caps()
		if err != nil {
			return nil, err
		}
		specs = append(specs, heap.RegionSpec{
			Name:        r.Name,
			Start:       uint32(r.Start),
			Size:        uint32(r.Size),
			Caps:        c,
			TailReserve: uint32(r.TailReserve),
			Deferred:    r.Deferred,
		})
	}
	return specs, nil
}

// Linker returns the static data bounds for heap.Config.
func (l *Layout) Linker() heap.LinkerMap {
	m := heap.LinkerMap{}
	for _, r := range l.Regions {
		if r.StaticEnd != 0 {
			m[r.Name] = uint32(r.StaticEnd)
		}
	}
	return m
}

// Config returns a heap.Config holding the region table and linker bounds of
// l. The caller fills in the diagnostic options.
func (l *Layout) Config() (heap.Config, error) {
	specs, err := l.Specs()
	if err != nil {
		return heap.Config{}, err
	}
	return heap.Config{Regions: specs, Linker: l.Linker()}, nil
}

// Region returns the region called name.
func (l *Layout) Region(name string) (Region, bool) {
	for _, r := range l.Regions {
		if r.Name == name {
			return r, true
		}
	}
	return Region{}, false
}

package heap

import (
	"fmt"

	"github.com/joshuapare/wmheap/caps"
	"github.com/joshuapare/wmheap/heap/alloc"
	"github.com/joshuapare/wmheap/internal/buf"
)

// region is one entry of the region table.
type region struct {
	index    uint16
	name     string
	base     uint32 // provisional base from the RegionSpec, used by Append
	start    uint32
	size     uint32
	caps     caps.Caps
	tail     uint32
	deferred bool

	heap   *alloc.Heap
	unmap  func() error
	broken bool // free chain corrupt, see Allocator.outOfService
}

func (r *region) active() bool {
	return r.heap != nil && r.caps.Usable() && !r.broken
}

func (r *region) span() buf.Span {
	return buf.Span{Start: r.start, Size: r.size}
}

// bounds applies the linker's static-data end and the tail reserve to the
// provisional bounds of spec.
func bounds(spec RegionSpec, l Linker) (start, size uint32, err error) {
	span := buf.Span{Start: spec.Start, Size: spec.Size}
	if err := buf.CheckSpan(span); err != nil {
		return 0, 0, fmt.Errorf("%w: region %q: %w", ErrInvalidParam, spec.Name, err)
	}
	start, size = spec.Start, spec.Size
	if end, ok := l.StaticEnd(spec.Name); ok {
		if !span.ContainsRange(end, 0) {
			return 0, 0, fmt.Errorf("%w: region %q: static data ends at 0x%08x outside 0x%08x-0x%08x",
				ErrInvalidParam, spec.Name, end, span.Start, span.End())
		}
		size -= end - start
		start = end
	}
	if spec.TailReserve > size {
		return 0, 0, fmt.Errorf("%w: region %q: tail reserve %d exceeds %d usable bytes",
			ErrInvalidParam, spec.Name, spec.TailReserve, size)
	}
	size -= spec.TailReserve
	return start, size, nil
}

// build maps backing memory for r and carves its heap.
func (a *Allocator) build(r *region, start, size uint32) (*alloc.Heap, func() error, error) {
	mem, unmap, err := a.cfg.Backing(int(size))
	if err != nil {
		return nil, nil, err
	}
	h, err := alloc.New(mem, start, r.index, a.layout)
	if err != nil {
		_ = unmap()
		return nil, nil, err
	}
	return h, unmap, nil
}

func (a *Allocator) regionByName(name string) *region {
	for _, r := range a.regions {
		if r.name == name {
			return r
		}
	}
	return nil
}

// regionOf returns the active region whose memory holds addr.
func (a *Allocator) regionOf(addr uint32) *region {
	for _, r := range a.regions {
		if r.heap != nil && r.heap.Contains(addr) {
			return r
		}
	}
	return nil
}

// lookup resolves a payload pointer to its region and block.
func (a *Allocator) lookup(p Ptr) (*region, alloc.Block, error) {
	r := a.regionOf(uint32(p))
	if r == nil {
		return nil, alloc.Block{}, fmt.Errorf("%w: %v not in any region", ErrBadPointer, p)
	}
	b, err := r.heap.Lookup(uint32(p))
	if err != nil {
		return nil, alloc.Block{}, err
	}
	return r, b, nil
}

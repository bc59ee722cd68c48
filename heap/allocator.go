package heap

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"runtime"

	"github.com/joshuapare/wmheap/caps"
	"github.com/joshuapare/wmheap/heap/alloc"
	"github.com/joshuapare/wmheap/internal/format"
)

// Ptr is an address in the target's 32-bit address space. The zero Ptr is nil.
type Ptr uint32

// IsNil reports whether p is the nil pointer.
func (p Ptr) IsNil() bool { return p == 0 }

func (p Ptr) String() string {
	if p == 0 {
		return "nil"
	}
	return fmt.Sprintf("0x%08x", uint32(p))
}

// Allocator is the process-wide allocator context: the region table, global
// statistics and diagnostic state.
type Allocator struct {
	cfg    Config
	layout format.Layout

	regions []*region

	freeBytes   uint64
	minEverFree uint64
	allocs      uint64
	frees       uint64

	used  usedList
	sites siteTable

	closed bool
}

// New builds the region table. It corrects the bounds of every region using
// Config.Linker and the tail reserve, marks deferred regions INVALID and
// creates the heap of every other region.
func New(cfg Config) (*Allocator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	a := &Allocator{
		cfg:     cfg,
		layout:  cfg.layout(),
		regions: make([]*region, 0, len(cfg.Regions)),
	}

	for i, spec := range cfg.Regions {
		r := &region{
			index:    uint16(i),
			name:     spec.Name,
			base:     spec.Start,
			start:    spec.Start,
			size:     spec.Size,
			caps:     spec.Caps,
			tail:     spec.TailReserve,
			deferred: spec.Deferred,
		}
		a.regions = append(a.regions, r)

		if spec.Deferred {
			r.caps |= caps.Invalid
			continue
		}

		start, size, err := bounds(spec, cfg.Linker)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		r.start, r.size = start, size
		if err := a.checkOverlap(r); err != nil {
			_ = a.Close()
			return nil, err
		}

		h, unmap, err := a.build(r, start, size)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("%w: region %q: %w", ErrInvalidParam, spec.Name, err)
		}
		r.heap, r.unmap = h, unmap

		a.freeBytes += uint64(h.FreeBytes())
		cfg.Logger.Debug("heap region ready",
			"region", r.name, "start", Ptr(r.start), "size", r.size, "free", h.FreeBytes(), "caps", r.caps)
	}
	a.minEverFree = a.freeBytes
	return a, nil
}

func (a *Allocator) checkOverlap(r *region) error {
	for _, o := range a.regions {
		if o == r || o.heap == nil {
			continue
		}
		if o.span().Overlaps(r.span()) {
			return fmt.Errorf("%w: region %q overlaps %q", ErrInvalidParam, r.name, o.name)
		}
	}
	return nil
}

// Close releases the backing memory of every region. Pointers handed out
// before Close must not be used afterwards.
func (a *Allocator) Close() error {
	a.cfg.Lock.Lock()
	defer a.cfg.Lock.Unlock()

	var errs []error
	for _, r := range a.regions {
		if r.unmap != nil {
			errs = append(errs, r.unmap())
		}
		r.heap, r.unmap = nil, nil
		r.caps |= caps.Invalid
	}
	a.closed = true
	return errors.Join(errs...)
}

// Alloc returns a block of at least size bytes from the first region, in
// table order, whose capabilities contain c. A zero c means caps.Default.
// It returns nil when size is 0 or no matching region has room.
func (a *Allocator) Alloc(size int, c caps.Caps) Ptr {
	file, line := a.caller()
	return a.AllocAt(size, c, file, line)
}

// AllocAt is Alloc with an explicit allocation site for tracing.
func (a *Allocator) AllocAt(size int, c caps.Caps, file string, line int) Ptr {
	a.cfg.Lock.Lock()
	defer a.cfg.Lock.Unlock()
	return a.alloc(size, c, file, line)
}

func (a *Allocator) alloc(size int, c caps.Caps, file string, line int) Ptr {
	if size <= 0 || uint64(size) > math.MaxUint32 || a.closed {
		return 0
	}
	if c == 0 {
		c = caps.Default
	}

	st := alloc.Stamp{Caps: uint32(c)}
	if a.layout.Tracing {
		st.Site = a.sites.intern(file)
		st.Line = int32(line)
	}

	for _, r := range a.regions {
		if !r.active() || !r.caps.Contains(c) {
			continue
		}
		before := r.heap.FreeBytes()
		p := r.heap.Alloc(uint32(size), st)
		if p == 0 {
			if err := r.heap.Err(); err != nil {
				a.outOfService(r, err)
			}
			continue
		}
		taken := uint64(before - r.heap.FreeBytes())

		a.freeBytes -= taken
		if a.freeBytes < a.minEverFree {
			a.minEverFree = a.freeBytes
		}
		a.allocs++
		if a.layout.Tracing {
			a.used.push(r.heap, p-a.layout.HeaderSize(), taken)
		}
		return Ptr(p)
	}
	return 0
}

// Realloc moves the block at p into a new block of size bytes, copying the
// smaller of the two payloads, and frees the old block. A zero c keeps the
// capabilities of the old block.
//
// A nil p behaves like Alloc; a zero size frees p and returns nil. If the new
// block cannot be allocated the old one is left intact and nil is returned.
func (a *Allocator) Realloc(p Ptr, size int, c caps.Caps) Ptr {
	file, line := a.caller()
	return a.ReallocAt(p, size, c, file, line)
}

// ReallocAt is Realloc with an explicit allocation site for tracing.
func (a *Allocator) ReallocAt(p Ptr, size int, c caps.Caps, file string, line int) Ptr {
	if p.IsNil() {
		return a.AllocAt(size, c, file, line)
	}
	if size == 0 {
		if err := a.Free(p); err != nil {
			a.cfg.Logger.Warn("heap realloc to zero", "ptr", p, "err", err)
		}
		return 0
	}

	a.cfg.Lock.Lock()
	defer a.cfg.Lock.Unlock()

	r, b, err := a.lookup(p)
	if err == nil && !b.Allocated {
		err = fmt.Errorf("%w: %v", ErrDoubleFree, p)
	}
	if err != nil {
		a.violation("heap realloc of invalid pointer", p, err)
		return 0
	}
	if c == 0 {
		c = caps.Caps(b.Caps)
	}
	old := r.heap.Payload(b)

	np := a.alloc(size, c, file, line)
	if np == 0 {
		return 0
	}
	nr, nb, err := a.lookup(np)
	if err != nil {
		a.violation("heap realloc lost new block", np, err)
		return 0
	}
	copy(nr.heap.Payload(nb), old[:min(len(old), size)])

	if err := a.free(p); err != nil {
		a.cfg.Logger.Warn("heap realloc free of old block", "ptr", p, "err", err)
	}
	return np
}

// Free returns the block at p to its region. A nil p is a no-op.
//
// With poisoning enabled a corrupt block is reported through PrintTracing and
// the logger. A corrupt header leaves the block allocated; a corrupt trailer
// still frees it. Either way the error wraps ErrCorruption, unless
// Config.Assertions turns it into a panic.
func (a *Allocator) Free(p Ptr) error {
	if p.IsNil() {
		return nil
	}
	a.cfg.Lock.Lock()
	defer a.cfg.Lock.Unlock()
	return a.free(p)
}

func (a *Allocator) free(p Ptr) error {
	if a.closed {
		return ErrClosed
	}
	r, b, err := a.lookup(p)
	if err == nil && !b.Allocated {
		err = fmt.Errorf("%w: %v", ErrDoubleFree, p)
	}
	if err != nil {
		a.violation("heap free of invalid pointer", p, err)
		return err
	}

	verr := r.heap.Verify(b)
	if verr != nil {
		a.corruption(r, b, verr)
		if !alloc.IsTrailerOnly(verr) {
			return verr
		}
	}

	if a.layout.Tracing {
		a.used.remove(a, b.Addr)
		b.Next = 0
	}
	if err := r.heap.Release(b); err != nil {
		if herr := r.heap.Err(); herr != nil {
			a.outOfService(r, herr)
		} else {
			a.violation("heap release", p, err)
		}
		return err
	}
	a.freeBytes += uint64(b.Size)
	a.frees++
	return verr
}

// Bytes returns the payload of the block at p, or nil if p is not a live
// allocation. Its capacity covers the trailer in comprehensive poisoning
// mode, so writing past len is an overrun that Free will detect.
func (a *Allocator) Bytes(p Ptr) []byte {
	a.cfg.Lock.Lock()
	defer a.cfg.Lock.Unlock()
	r, b, err := a.lookup(p)
	if err != nil || !b.Allocated {
		return nil
	}
	return r.heap.Payload(b)
}

// Caps returns the capabilities recorded for the block at p.
func (a *Allocator) Caps(p Ptr) (caps.Caps, error) {
	a.cfg.Lock.Lock()
	defer a.cfg.Lock.Unlock()
	_, b, err := a.lookup(p)
	if err != nil {
		return 0, err
	}
	if !b.Allocated {
		return 0, fmt.Errorf("%w: %v", ErrDoubleFree, p)
	}
	return caps.Caps(b.Caps), nil
}

// RegionOf returns the name of the region that holds p.
func (a *Allocator) RegionOf(p Ptr) (string, bool) {
	a.cfg.Lock.Lock()
	defer a.cfg.Lock.Unlock()
	r := a.regionOf(uint32(p))
	if r == nil {
		return "", false
	}
	return r.name, true
}

// corruption dumps the live-block table and applies the assertion policy.
func (a *Allocator) corruption(r *region, b alloc.Block, err error) {
	a.cfg.Logger.Error("heap corruption detected",
		"region", r.name, "ptr", Ptr(b.Payload), "site", a.sites.name(b.Site), "line", b.Line, "err", err)
	a.printTracing(a.cfg.Output, &b)
	if a.cfg.Assertions {
		panic(err)
	}
}

// outOfService reports, once, a region whose free chain is corrupt. The
// region stops serving requests; the others carry on.
func (a *Allocator) outOfService(r *region, err error) {
	if r.broken {
		return
	}
	r.broken = true
	a.cfg.Logger.Error("heap free list corrupted", "region", r.name, "err", err)
	fmt.Fprintf(a.cfg.Output, "corruption detected in region %s: %v\n", r.name, err)
	a.printStats(a.cfg.Output)
	if a.cfg.Assertions {
		panic(fmt.Errorf("region %s: %w", r.name, err))
	}
}

// violation reports an internal invariant violation and applies the
// assertion policy.
func (a *Allocator) violation(msg string, p Ptr, err error) {
	a.cfg.Logger.Error(msg, "ptr", p, "err", err)
	if a.cfg.Assertions {
		panic(fmt.Errorf("%s %v: %w", msg, p, err))
	}
}

// caller returns the site of the caller of the public method invoking it.
func (a *Allocator) caller() (string, int) {
	if !a.layout.Tracing {
		return "", 0
	}
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "", -1
	}
	return filepath.Base(file), line
}

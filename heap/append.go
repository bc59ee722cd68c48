package heap

import (
	"fmt"

	"github.com/joshuapare/wmheap/caps"
	"github.com/joshuapare/wmheap/internal/buf"
)

// Append makes a deferred region usable. It asks Config.Prober for the
// region's real size, excludes any static data the linker placed at its
// front, builds the heap and clears caps.Invalid.
//
// It fails with ErrInvalidParam for an unknown, non-deferred or already
// appended region, and with ErrFailed when the probe fails or reports too
// little memory.
func (a *Allocator) Append(name string) error {
	a.cfg.Lock.Lock()
	r := a.regionByName(name)
	var err error
	switch {
	case a.closed:
		err = ErrClosed
	case name == "" || r == nil:
		err = fmt.Errorf("%w: unknown region %q", ErrInvalidParam, name)
	case !r.deferred:
		err = fmt.Errorf("%w: region %q is not deferred", ErrInvalidParam, name)
	case r.heap != nil:
		err = fmt.Errorf("%w: region %q already appended", ErrInvalidParam, name)
	}
	a.cfg.Lock.Unlock()
	if err != nil {
		return err
	}

	if a.cfg.Prober == nil {
		a.cfg.Logger.Error("heap append without prober", "region", name)
		return fmt.Errorf("%w: no prober for region %q", ErrFailed, name)
	}
	probed, err := a.cfg.Prober.Probe(name)
	if err != nil {
		a.cfg.Logger.Error("fail to detect region", "region", name, "err", err)
		return fmt.Errorf("%w: probe %q: %w", ErrFailed, name, err)
	}

	start, size, err := a.probedBounds(r, probed)
	if err != nil {
		return err
	}
	if size <= a.layout.MinBlockSize() {
		a.cfg.Logger.Error("not enough space for heap", "region", name, "size", size)
		return fmt.Errorf("%w: region %q has %d usable bytes", ErrFailed, name, size)
	}

	// Probing and mapping may be slow; the region stays INVALID meanwhile.
	h, unmap, err := a.build(r, start, size)
	if err != nil {
		a.cfg.Logger.Error("heap append build", "region", name, "err", err)
		return fmt.Errorf("%w: region %q: %w", ErrFailed, name, err)
	}

	a.cfg.Lock.Lock()
	defer a.cfg.Lock.Unlock()
	if r.heap != nil || a.closed {
		_ = unmap()
		return fmt.Errorf("%w: region %q already appended", ErrInvalidParam, name)
	}
	r.start, r.size = start, size
	if err := a.checkOverlap(r); err != nil {
		_ = unmap()
		return err
	}
	r.heap, r.unmap = h, unmap
	r.caps &^= caps.Invalid

	a.freeBytes += uint64(h.FreeBytes())
	a.minEverFree += uint64(h.FreeBytes())

	a.cfg.Logger.Debug("heap region appended",
		"region", name, "start", Ptr(start), "size", size, "free", h.FreeBytes(), "caps", r.caps)
	return nil
}

// probedBounds computes the usable range of a deferred region from its base
// address and probed size.
func (a *Allocator) probedBounds(r *region, probed uint32) (start, size uint32, err error) {
	span := buf.Span{Start: r.base, Size: probed}
	if err := buf.CheckSpan(span); err != nil {
		return 0, 0, fmt.Errorf("%w: region %q: %w", ErrFailed, r.name, err)
	}
	start = r.base
	if end, ok := a.cfg.Linker.StaticEnd(r.name); ok {
		if !span.ContainsRange(end, 0) {
			a.cfg.Logger.Error("not enough space for heap", "region", r.name, "static_end", Ptr(end), "size", probed)
			return 0, 0, fmt.Errorf("%w: region %q: static data ends at 0x%08x past probed size %d",
				ErrFailed, r.name, end, probed)
		}
		start = end
	}
	size = probed - (start - r.base)
	if r.tail > size {
		return 0, 0, fmt.Errorf("%w: region %q: tail reserve %d exceeds %d usable bytes", ErrFailed, r.name, r.tail, size)
	}
	return start, size - r.tail, nil
}

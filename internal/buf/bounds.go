// Package buf contains overflow-safe arithmetic for addresses and sizes in
// the 32-bit target address space.
package buf

import (
	"fmt"
	"math"
)

// AddU32 adds a and b, returning ok = false when the result would overflow uint32.
func AddU32(a, b uint32) (uint32, bool) {
	if a > math.MaxUint32-b {
		return 0, false
	}
	return a + b, true
}

// Span is the half-open address range [Start, Start+Size).
type Span struct {
	Start uint32
	Size  uint32
}

// End returns the exclusive end address. The caller must have validated the
// span with CheckSpan.
func (s Span) End() uint32 { return s.Start + s.Size }

// Contains reports whether addr lies inside the span.
func (s Span) Contains(addr uint32) bool {
	return addr >= s.Start && addr-s.Start < s.Size
}

// ContainsRange reports whether [addr, addr+n) lies inside the span.
func (s Span) ContainsRange(addr, n uint32) bool {
	if !s.Contains(addr) && !(n == 0 && addr == s.End()) {
		return false
	}
	return n <= s.Size-(addr-s.Start)
}

// Overlaps reports whether two spans share at least one address.
func (s Span) Overlaps(o Span) bool {
	if s.Size == 0 || o.Size == 0 {
		return false
	}
	return s.Start < o.End() && o.Start < s.End()
}

// CheckSpan validates that a span does not wrap around the address space.
func CheckSpan(s Span) error {
	if _, ok := AddU32(s.Start, s.Size); !ok {
		return fmt.Errorf("overflow: start=0x%08x + size=%d", s.Start, s.Size)
	}
	return nil
}

// Slice returns the sub-slice [off:off+n] if it fits within len(b).
func Slice(b []byte, off, n int) ([]byte, bool) {
	if off < 0 || n < 0 || off > len(b) {
		return nil, false
	}
	if n > len(b)-off {
		return nil, false
	}
	return b[off : off+n], true
}

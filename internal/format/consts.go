// Package format houses the block header layout used by the heap. It is the
// only place that knows how a header is laid out in region memory, so the
// allocator above it works with decoded Header values and addresses instead
// of reinterpreting raw bytes.
package format

const (
	// Alignment is the alignment of every block and every payload.
	Alignment = 8

	// AlignmentMask is Alignment - 1.
	AlignmentMask = Alignment - 1

	// MagicHeader is written into the header of every allocated block when
	// poisoning is enabled and checked again when the block is freed.
	MagicHeader uint32 = 0xA5A5A5A5

	// MagicTrailer is written into the last four bytes of an allocated block
	// in comprehensive poisoning mode.
	MagicTrailer uint32 = 0x5A5A5A5A

	// TrailerSize is the number of bytes reserved for MagicTrailer.
	TrailerSize = 4
)

// Header field offsets. The fixed part is always present; the tracing and
// poisoning fields follow it only when the layout enables them.
const (
	offNext   = 0x00 // u32: next free block (free) / next used block (tracing)
	offSize   = 0x04 // u32: block size including header
	offCaps   = 0x08 // u32: capabilities requested at allocation time
	offRegion = 0x0C // u16: index of the owning region
	offFlags  = 0x0E // u16: flagAllocated
	fixedSize = 0x10

	traceSize = 8 // u32 site, i32 line
	magicSize = 4
)

const flagAllocated uint16 = 1 << 0

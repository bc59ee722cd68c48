package format

import (
	"fmt"
	"math"
)

// Poisoning selects how much corruption detection a layout carries.
type Poisoning uint8

const (
	// PoisonNone stores no magic values.
	PoisonNone Poisoning = iota
	// PoisonLight stores a header magic checked on free.
	PoisonLight
	// PoisonComprehensive additionally stores a trailer magic in the last
	// four bytes of every allocated block.
	PoisonComprehensive
)

func (p Poisoning) String() string {
	switch p {
	case PoisonNone:
		return "none"
	case PoisonLight:
		return "light"
	case PoisonComprehensive:
		return "comprehensive"
	default:
		return fmt.Sprintf("Poisoning(%d)", uint8(p))
	}
}

// Layout describes the header shape selected for one allocator. All heaps of
// an allocator share a layout.
//
// Header layout (little-endian, rounded up to 8 bytes):
//
//	0x00  next    u32
//	0x04  size    u32  (including header)
//	0x08  caps    u32
//	0x0C  region  u16
//	0x0E  flags   u16
//	0x10  site    u32  (tracing)
//	0x14  line    i32  (tracing)
//	....  magic   u32  (poisoning)
type Layout struct {
	Tracing bool
	Poison  Poisoning
}

// Header is the decoded form of a block header.
//
// While the block is free only Next and Size are meaningful. While it is
// allocated Next links the tracing used-list (or is zero), and Caps, Region,
// Site, Line and Magic describe the allocation.
type Header struct {
	Next      uint32
	Size      uint32
	Caps      uint32
	Region    uint16
	Allocated bool
	Site      uint32
	Line      int32
	Magic     uint32
}

// HeaderSize returns the aligned size of a block header.
func (l Layout) HeaderSize() uint32 {
	n := uint32(fixedSize)
	if l.Tracing {
		n += traceSize
	}
	if l.Poison != PoisonNone {
		n += magicSize
	}
	return Align8(n)
}

// TrailerSize returns the number of bytes reserved after each payload.
func (l Layout) TrailerSize() uint32 {
	if l.Poison == PoisonComprehensive {
		return TrailerSize
	}
	return 0
}

// MinBlockSize is the smallest free block worth splitting off: room for a
// header and for that block to be split again later.
func (l Layout) MinBlockSize() uint32 {
	return 2 * l.HeaderSize()
}

// BlockSize returns the header-inclusive block size for a payload request,
// rounded up to Alignment. ok is false when the result does not fit in 32 bits.
func (l Layout) BlockSize(request uint32) (size uint32, ok bool) {
	total := uint64(request) + uint64(l.HeaderSize()) + uint64(l.TrailerSize())
	total = (total + AlignmentMask) &^ AlignmentMask
	if total > math.MaxUint32 {
		return 0, false
	}
	return uint32(total), true
}

// PayloadSize returns the usable bytes of a block of the given size.
func (l Layout) PayloadSize(blockSize uint32) uint32 {
	over := l.HeaderSize() + l.TrailerSize()
	if blockSize < over {
		return 0
	}
	return blockSize - over
}

func (l Layout) magicOff() int {
	off := fixedSize
	if l.Tracing {
		off += traceSize
	}
	return off
}

// Read decodes the header at the start of b.
func (l Layout) Read(b []byte) (Header, error) {
	if uint32(len(b)) < l.HeaderSize() {
		return Header{}, ErrTruncated
	}
	h := Header{
		Next:      ReadU32(b, offNext),
		Size:      ReadU32(b, offSize),
		Caps:      ReadU32(b, offCaps),
		Region:    ReadU16(b, offRegion),
		Allocated: ReadU16(b, offFlags)&flagAllocated != 0,
	}
	if l.Tracing {
		h.Site = ReadU32(b, fixedSize)
		h.Line = ReadI32(b, fixedSize+4)
	}
	if l.Poison != PoisonNone {
		h.Magic = ReadU32(b, l.magicOff())
	}
	return h, nil
}

// Write encodes h at the start of b.
func (l Layout) Write(b []byte, h Header) error {
	if uint32(len(b)) < l.HeaderSize() {
		return ErrTruncated
	}
	var flags uint16
	if h.Allocated {
		flags |= flagAllocated
	}
	PutU32(b, offNext, h.Next)
	PutU32(b, offSize, h.Size)
	PutU32(b, offCaps, h.Caps)
	PutU16(b, offRegion, h.Region)
	PutU16(b, offFlags, flags)
	if l.Tracing {
		PutU32(b, fixedSize, h.Site)
		PutI32(b, fixedSize+4, h.Line)
	}
	if l.Poison != PoisonNone {
		PutU32(b, l.magicOff(), h.Magic)
	}
	return nil
}

// CheckMagic verifies the header magic of an allocated block.
func (l Layout) CheckMagic(h Header) error {
	if l.Poison == PoisonNone || h.Magic == MagicHeader {
		return nil
	}
	return fmt.Errorf("%w: header 0x%08x", ErrBadMagic, h.Magic)
}

// WriteTrailer stamps MagicTrailer into the last bytes of block, which must
// span the whole block. It is a no-op unless the layout is comprehensive.
func (l Layout) WriteTrailer(block []byte) error {
	if l.Poison != PoisonComprehensive {
		return nil
	}
	if len(block) < TrailerSize {
		return ErrTruncated
	}
	PutU32(block, len(block)-TrailerSize, MagicTrailer)
	return nil
}

// CheckTrailer verifies the trailer written by WriteTrailer.
func (l Layout) CheckTrailer(block []byte) error {
	if l.Poison != PoisonComprehensive {
		return nil
	}
	if len(block) < TrailerSize {
		return ErrTruncated
	}
	if v := ReadU32(block, len(block)-TrailerSize); v != MagicTrailer {
		return fmt.Errorf("%w: trailer 0x%08x", ErrBadMagic, v)
	}
	return nil
}

// The free-list walk only touches next and size, whose offsets do not depend
// on the layout.

// Next returns the next-block field of the header at the start of b.
func Next(b []byte) uint32 { return ReadU32(b, offNext) }

// SetNext sets the next-block field of the header at the start of b.
func SetNext(b []byte, v uint32) { PutU32(b, offNext, v) }

// Size returns the size field of the header at the start of b.
func Size(b []byte) uint32 { return ReadU32(b, offSize) }

// SetSize sets the size field of the header at the start of b.
func SetSize(b []byte, v uint32) { PutU32(b, offSize, v) }

// Allocated reports the allocated flag of the header at the start of b.
func Allocated(b []byte) bool { return ReadU16(b, offFlags)&flagAllocated != 0 }

// SetAllocated sets or clears the allocated flag of the header at the start of b.
func SetAllocated(b []byte, v bool) {
	flags := ReadU16(b, offFlags) &^ flagAllocated
	if v {
		flags |= flagAllocated
	}
	PutU16(b, offFlags, flags)
}

package alloc

import (
	"errors"
	"fmt"

	"github.com/joshuapare/wmheap/internal/format"
)

// Block is an allocated block as seen through its header.
type Block struct {
	format.Header

	Addr    uint32 // header address
	Payload uint32 // Addr + header size
}

// End returns the address just past the block.
func (b Block) End() uint32 { return b.Addr + b.Size }

// Lookup decodes the block whose payload starts at payload. It validates
// only that the address and the recorded size are structurally possible;
// Verify checks the poison magics.
func (h *Heap) Lookup(payload uint32) (Block, error) {
	if payload < h.first+h.hdr || payload > h.end || !format.IsAligned8(payload) {
		return Block{}, fmt.Errorf("%w: 0x%08x outside heap 0x%08x-0x%08x", ErrBadPointer, payload, h.first, h.end)
	}
	addr := payload - h.hdr
	hdr, err := h.layout.Read(h.header(addr))
	if err != nil {
		return Block{}, err
	}
	if hdr.Size < h.hdr || !format.IsAligned8(hdr.Size) || hdr.Size > h.end-addr {
		return Block{}, fmt.Errorf("%w: block 0x%08x: %w %d", ErrBadPointer, addr, format.ErrBadSize, hdr.Size)
	}
	return Block{Header: hdr, Addr: addr, Payload: payload}, nil
}

// Verify checks the header magic, the owner region and, in comprehensive
// mode, the trailer magic of an allocated block.
func (h *Heap) Verify(b Block) error {
	if err := h.layout.CheckMagic(b.Header); err != nil {
		return fmt.Errorf("%w at 0x%08x: %w", ErrHeaderMagic, b.Payload, err)
	}
	if b.Region != h.region {
		return fmt.Errorf("%w at 0x%08x: region %d, want %d", ErrRegionMismatch, b.Payload, b.Region, h.region)
	}
	if err := h.layout.CheckTrailer(h.block(b.Addr, b.Size)); err != nil {
		return fmt.Errorf("%w at 0x%08x: %w", ErrTrailerMagic, b.Payload, err)
	}
	return nil
}

// IsTrailerOnly reports whether err is a trailer mismatch, meaning the header
// is intact and the block can still be released safely.
func IsTrailerOnly(err error) bool {
	return errors.Is(err, ErrTrailerMagic) && !errors.Is(err, ErrHeaderMagic) && !errors.Is(err, ErrRegionMismatch)
}

// Payload returns the usable bytes of b. The slice's capacity extends to the
// end of the block, over the trailer.
func (h *Heap) Payload(b Block) []byte {
	whole := h.block(b.Addr, b.Size)
	n := h.layout.PayloadSize(b.Size)
	return whole[h.hdr : h.hdr+n : b.Size]
}

// Header decodes the header at addr without validation.
func (h *Heap) Header(addr uint32) (format.Header, error) {
	if addr < h.first || addr > h.end {
		return format.Header{}, fmt.Errorf("%w: header 0x%08x", ErrBadPointer, addr)
	}
	return h.layout.Read(h.header(addr))
}

// Link returns the next field of the allocated block at addr, or 0 when addr
// has no header inside the heap. The tracing used-block list threads through
// it.
func (h *Heap) Link(addr uint32) uint32 {
	b := h.header(addr)
	if b == nil {
		return 0
	}
	return format.Next(b)
}

// SetLink sets the next field of the allocated block at addr.
func (h *Heap) SetLink(addr, next uint32) {
	if b := h.header(addr); b != nil {
		format.SetNext(b, next)
	}
}

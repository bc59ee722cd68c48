package format

import "errors"

var (
	// ErrTruncated indicates the buffer lacked the bytes required for a header or trailer.
	ErrTruncated = errors.New("format: truncated buffer")
	// ErrBadMagic indicates a poison magic did not hold its expected value.
	ErrBadMagic = errors.New("format: magic mismatch")
	// ErrBadSize indicates a block size that is zero, unaligned or larger than its region.
	ErrBadSize = errors.New("format: bad block size")
)

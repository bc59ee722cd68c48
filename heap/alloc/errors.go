package alloc

import (
	"errors"
	"fmt"
)

var (
	// ErrTooSmall indicates region memory cannot hold a free block plus the end sentinel.
	ErrTooSmall = errors.New("alloc: region too small for a heap")

	// ErrBadPointer indicates an address that is not the payload of a block in this heap.
	ErrBadPointer = errors.New("alloc: bad pointer")

	// ErrDoubleFree indicates an attempt to free a block whose allocated flag is clear.
	ErrDoubleFree = errors.New("alloc: block is not allocated")

	// ErrLinked indicates an allocated block still linked into a used-block list.
	ErrLinked = errors.New("alloc: block still linked")

	// ErrCorruption indicates heap metadata was overwritten.
	ErrCorruption = errors.New("alloc: heap corruption detected")

	// ErrHeaderMagic indicates the header magic of an allocated block was overwritten.
	ErrHeaderMagic = fmt.Errorf("%w: header magic", ErrCorruption)

	// ErrTrailerMagic indicates the trailer magic past a payload was overwritten.
	ErrTrailerMagic = fmt.Errorf("%w: trailer magic", ErrCorruption)

	// ErrRegionMismatch indicates a header naming a different owning region.
	ErrRegionMismatch = fmt.Errorf("%w: owner region", ErrCorruption)

	// ErrFreeList indicates a free-chain invariant does not hold.
	ErrFreeList = fmt.Errorf("%w: free list", ErrCorruption)
)

package heap

import (
	"errors"

	"github.com/joshuapare/wmheap/heap/alloc"
)

var (
	// ErrInvalidParam indicates an unknown region name, a region that cannot be
	// appended, or an invalid region table.
	ErrInvalidParam = errors.New("heap: invalid parameter")

	// ErrNoMemory indicates no region could satisfy a request. Alloc and
	// Realloc report it as a nil Ptr; callers that turn a nil Ptr into an
	// error wrap it.
	ErrNoMemory = errors.New("heap: no memory")

	// ErrFailed indicates the region probe failed or reported too little memory.
	ErrFailed = errors.New("heap: failed")

	// ErrClosed indicates the allocator was closed.
	ErrClosed = errors.New("heap: allocator closed")

	// ErrCorruption indicates a poison magic or owner mismatch on free.
	ErrCorruption = alloc.ErrCorruption

	// ErrBadPointer indicates a pointer that is not owned by any region or is
	// not the start of a payload.
	ErrBadPointer = alloc.ErrBadPointer

	// ErrDoubleFree indicates a pointer whose block is not allocated.
	ErrDoubleFree = alloc.ErrDoubleFree
)

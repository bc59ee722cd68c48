// Package arena provides the backing memory that stands in for a region's
// physical RAM. Each region gets one contiguous, zeroed byte slice for its
// whole lifetime.
package arena

import "fmt"

// Mapper produces backing memory for a region. Map satisfies it.
type Mapper func(size int) ([]byte, func() error, error)

// Heap allocates backing memory from the Go heap. Useful for tests and for
// platforms where anonymous mappings are undesirable.
func Heap(size int) ([]byte, func() error, error) {
	if size < 0 {
		return nil, nil, fmt.Errorf("arena: negative size %d", size)
	}
	return make([]byte, size), func() error { return nil }, nil
}

//go:build !unix

package arena

import "fmt"

// Map allocates region memory from the Go heap when mmap is not available.
func Map(size int) ([]byte, func() error, error) {
	if size < 0 {
		return nil, nil, fmt.Errorf("arena: negative size %d", size)
	}
	return make([]byte, size), func() error { return nil }, nil
}

// Package testutil holds helpers shared by the heap tests.
package testutil

import (
	"fmt"
	"sync"
)

// Memory is a region backing that keeps every slice it hands out, so tests
// can inspect or corrupt region memory behind the allocator's back.
type Memory struct {
	mu     sync.Mutex
	maps   []Mapping
	closed int
}

// Mapping is one slice handed out by Memory, in request order.
type Mapping struct {
	Bytes []byte
}

// Map has the signature of heap.Mapper.
func (m *Memory) Map(size int) ([]byte, func() error, error) {
	if size < 0 {
		return nil, nil, fmt.Errorf("testutil: negative size %d", size)
	}
	b := make([]byte, size)
	m.mu.Lock()
	m.maps = append(m.maps, Mapping{Bytes: b})
	m.mu.Unlock()
	return b, func() error {
		m.mu.Lock()
		m.closed++
		m.mu.Unlock()
		return nil
	}, nil
}

// Bytes returns the i-th mapping.
func (m *Memory) Bytes(i int) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maps[i].Bytes
}

// At returns n bytes of the i-th mapping starting at addr, where base is the
// address the mapping backs.
func (m *Memory) At(i int, base, addr, n uint32) []byte {
	b := m.Bytes(i)
	off := addr - base
	return b[off : off+n]
}

// Live returns the number of mappings not yet released.
func (m *Memory) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.maps) - m.closed
}

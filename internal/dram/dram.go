// Package dram emulates the capture DRAM of the scope: a single bounded
// byte region shared by the capture controllers (writers) and the DMA
// reader (reader). All accesses are window-based and bounds-checked; an
// out-of-range access is an error, never a write into a neighbor.
package dram

import (
	"fmt"
	"sync"
)

// Memory is the full capture RAM.
type Memory struct {
	mu   sync.RWMutex
	data []byte
}

// Region is a window into a Memory: the unit of ownership for captures
// and uploads.
type Region struct {
	Base   uint32
	Length uint32
}

// End returns the first address past the region.
func (r Region) End() uint32 { return r.Base + r.Length }

// New creates a Memory holding size bytes.
func New(size int) *Memory {
	return &Memory{data: make([]byte, size)}
}

// Size returns the memory size in bytes.
func (m *Memory) Size() int { return len(m.data) }

func (m *Memory) check(base uint32, n int) error {
	if int(base)+n > len(m.data) {
		return fmt.Errorf("dram: access [0x%x, 0x%x) exceeds memory size 0x%x",
			base, int(base)+n, len(m.data))
	}
	return nil
}

// WriteAt copies p into memory starting at base.
func (m *Memory) WriteAt(base uint32, p []byte) error {
	if err := m.check(base, len(p)); err != nil {
		return err
	}
	m.mu.Lock()
	copy(m.data[base:], p)
	m.mu.Unlock()
	return nil
}

// ReadRegion returns a copy of the bytes in the given window.
func (m *Memory) ReadRegion(r Region) ([]byte, error) {
	if err := m.check(r.Base, int(r.Length)); err != nil {
		return nil, err
	}
	out := make([]byte, r.Length)
	m.mu.RLock()
	copy(out, m.data[r.Base:r.End()])
	m.mu.RUnlock()
	return out, nil
}

package scoped

import (
	"math"
	"sync"
)

// ChannelStats tracks the min/max sample value and a saturating sample
// count for one channel, mirroring the ADC's statistics CSRs. The count
// clamps at its maximum rather than wrapping.
type ChannelStats struct {
	mu    sync.Mutex
	min   byte
	max   byte
	count uint32
}

// NewChannelStats returns stats in the just-reset state.
func NewChannelStats() *ChannelStats {
	cs := new(ChannelStats)
	cs.Reset()
	return cs
}

// Reset clears the statistics: min/max to their idle extremes, count to 0.
func (cs *ChannelStats) Reset() {
	cs.mu.Lock()
	cs.min = 0xff
	cs.max = 0x00
	cs.count = 0
	cs.mu.Unlock()
}

// Update folds a block of words into the statistics.
func (cs *ChannelStats) Update(words []SampleWord) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for _, w := range words {
		for i := 0; i < WordBytes; i++ {
			v := w.Byte(i)
			if v < cs.min {
				cs.min = v
			}
			if v > cs.max {
				cs.max = v
			}
		}
		if cs.count <= math.MaxUint32-WordBytes {
			cs.count += WordBytes
		} else {
			cs.count = math.MaxUint32
		}
	}
}

// Range returns the min and max sample value seen since the last reset.
func (cs *ChannelStats) Range() (min, max byte) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.min, cs.max
}

// Count returns the saturating count of samples seen since the last reset.
func (cs *ChannelStats) Count() uint32 {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.count
}

package scoped

import (
	"fmt"
	"time"
)

// RampSource is a SampleSource that synthesizes the ADC's ramp test
// pattern: byte-samples counting 0, 1, ... 255 and wrapping.
type RampSource struct {
	next byte
	AnySource
}

// NewRampSource creates a RampSource emitting blockWords words per block
// at the given sample rate.
func NewRampSource(blockWords int, rate float64) *RampSource {
	rs := new(RampSource)
	rs.name = "ramp"
	rs.blockWords = blockWords
	rs.sampleRate = rate
	return rs
}

// Configure sets up the output channel.
func (rs *RampSource) Configure() error {
	if rs.blockWords <= 0 {
		return fmt.Errorf("RampSource: blockWords %d must be positive", rs.blockWords)
	}
	rs.output = make(chan []SampleWord, 1)
	rs.next = 0
	return nil
}

// StartRun begins the data supply.
func (rs *RampSource) StartRun() error {
	rs.runMutex.Lock()
	defer rs.runMutex.Unlock()
	rs.abort = make(chan struct{})
	rs.lastread = time.Now()
	rs.setState(Active)
	rs.runDone.Add(1)
	go func() {
		defer rs.runDone.Done()
		for {
			if err := rs.blockingRead(); err != nil {
				return
			}
		}
	}()
	return nil
}

// blockingRead waits for the block cadence, then emits one block.
func (rs *RampSource) blockingRead() error {
	nextread := rs.lastread.Add(rs.timeperbuf())
	if waittime := time.Until(nextread); waittime > 0 {
		select {
		case <-rs.abort:
			return fmt.Errorf("source aborted")
		case <-time.After(waittime):
		}
	}
	rs.lastread = time.Now()

	block := make([]SampleWord, rs.blockWords)
	buf := make([]byte, WordBytes)
	for i := range block {
		for j := range buf {
			buf[j] = rs.next
			rs.next++
		}
		block[i] = WordFromBytes(buf)
	}
	select {
	case <-rs.abort:
		return fmt.Errorf("source aborted")
	case rs.output <- block:
	}
	return nil
}

// TriangleSource is a SampleSource that synthesizes triangle waves, byte
// samples rising minval..maxval and back. Useful for exercising the
// trigger search, which needs a rising edge through the threshold.
type TriangleSource struct {
	minval, maxval byte
	onecycle       []byte
	phase          int
	AnySource
}

// NewTriangleSource creates a new TriangleSource with given size, speed,
// and min/max.
func NewTriangleSource(blockWords int, rate float64, min, max byte) *TriangleSource {
	ts := new(TriangleSource)
	ts.name = "triangle"
	ts.blockWords = blockWords
	ts.sampleRate = rate
	ts.minval = min
	ts.maxval = max
	return ts
}

// Configure sets up the internal cycle buffer.
func (ts *TriangleSource) Configure() error {
	if ts.maxval <= ts.minval {
		return fmt.Errorf("TriangleSource: max %d must exceed min %d", ts.maxval, ts.minval)
	}
	if ts.blockWords <= 0 {
		return fmt.Errorf("TriangleSource: blockWords %d must be positive", ts.blockWords)
	}
	nrise := int(ts.maxval - ts.minval)
	ts.onecycle = make([]byte, 2*nrise)
	for i := 0; i < nrise; i++ {
		ts.onecycle[i] = ts.minval + byte(i)
		ts.onecycle[i+nrise] = ts.maxval - byte(i)
	}
	ts.phase = 0
	ts.output = make(chan []SampleWord, 1)
	return nil
}

// StartRun begins the data supply.
func (ts *TriangleSource) StartRun() error {
	ts.runMutex.Lock()
	defer ts.runMutex.Unlock()
	ts.abort = make(chan struct{})
	ts.lastread = time.Now()
	ts.setState(Active)
	ts.runDone.Add(1)
	go func() {
		defer ts.runDone.Done()
		for {
			if err := ts.blockingRead(); err != nil {
				return
			}
		}
	}()
	return nil
}

func (ts *TriangleSource) blockingRead() error {
	nextread := ts.lastread.Add(ts.timeperbuf())
	if waittime := time.Until(nextread); waittime > 0 {
		select {
		case <-ts.abort:
			return fmt.Errorf("source aborted")
		case <-time.After(waittime):
		}
	}
	ts.lastread = time.Now()

	block := make([]SampleWord, ts.blockWords)
	buf := make([]byte, WordBytes)
	for i := range block {
		for j := range buf {
			buf[j] = ts.onecycle[ts.phase]
			ts.phase = (ts.phase + 1) % len(ts.onecycle)
		}
		block[i] = WordFromBytes(buf)
	}
	select {
	case <-ts.abort:
		return fmt.Errorf("source aborted")
	case ts.output <- block:
	}
	return nil
}

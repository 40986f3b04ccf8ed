package scoped

import (
	"github.com/360nosc0pe/scoped/internal/dram"
)

// ChannelPipeline is one channel's acquisition chain:
// source -> Decimator -> Gate -> CaptureController -> DRAM.
// The three stages run cooperatively inside a single goroutine clocked by
// block arrival, so ordering between them is total and FIFO. Pipelines
// for different channels are independent and write disjoint regions.
type ChannelPipeline struct {
	Channum int
	Dec     *Decimator
	Gate    *Gate
	Capture *CaptureController
	Stats   *ChannelStats
}

// NewChannelPipeline builds the chain for one channel over mem.
func NewChannelPipeline(channum int, mem *dram.Memory) *ChannelPipeline {
	return &ChannelPipeline{
		Channum: channum,
		Dec:     new(Decimator),
		Gate:    new(Gate),
		Capture: NewCaptureController(channum, mem),
		Stats:   NewChannelStats(),
	}
}

// Feed pushes one block of source words through the whole chain.
func (cp *ChannelPipeline) Feed(words []SampleWord) error {
	decimated := cp.Dec.Process(words)
	cp.Stats.Update(decimated)
	gated := cp.Gate.Process(decimated)
	return cp.Capture.Absorb(gated)
}

// Run consumes the source's block channel until abort closes, feeding
// every block to this pipeline. Feed errors are logged, not fatal: a
// malformed capture request must not kill the acquisition loop.
func (cp *ChannelPipeline) Run(source SampleSource, abort <-chan struct{}) {
	blocks := source.Blocks()
	for {
		select {
		case <-abort:
			return
		case block, ok := <-blocks:
			if !ok {
				return
			}
			if err := cp.Feed(block); err != nil {
				ProblemLogger.Printf("channel %d pipeline: %v", cp.Channum, err)
			}
		}
	}
}

// Pipelines is the fixed arena of per-channel chains, indexed by channel
// number.
type Pipelines [NChannels]*ChannelPipeline

// NewPipelines builds one chain per channel, all over the same memory.
func NewPipelines(mem *dram.Memory) Pipelines {
	var p Pipelines
	for i := range p {
		p[i] = NewChannelPipeline(i, mem)
	}
	return p
}

// SetRatio applies a decimation ratio to every channel.
func (p Pipelines) SetRatio(ratio uint32) {
	for _, cp := range p {
		cp.Dec.SetRatio(ratio)
	}
}

// SetTrigger opens or closes every channel's gate.
func (p Pipelines) SetTrigger(open bool) {
	for _, cp := range p {
		cp.Gate.SetEnabled(open)
	}
}

// Run feeds every block from the source to all channels, in channel
// order, until abort closes. One goroutine clocks the whole arena.
func (p Pipelines) Run(source SampleSource, abort <-chan struct{}) {
	blocks := source.Blocks()
	for {
		select {
		case <-abort:
			return
		case block, ok := <-blocks:
			if !ok {
				return
			}
			for _, cp := range p {
				if err := cp.Feed(block); err != nil {
					ProblemLogger.Printf("channel %d pipeline: %v", cp.Channum, err)
				}
			}
		}
	}
}

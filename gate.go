package scoped

import "sync/atomic"

// Gate is the trigger-driven valve between the decimator and the capture
// controller. While closed it still consumes every input word, so the
// decimator never sees backpressure, but nothing comes out the other
// side; nothing dropped while closed is ever replayed. While open it
// forwards its input unchanged and in order. There is no buffering.
type Gate struct {
	enabled atomic.Bool
}

// SetEnabled opens (true) or closes (false) the gate.
func (g *Gate) SetEnabled(open bool) { g.enabled.Store(open) }

// Enabled reports whether the gate is open.
func (g *Gate) Enabled() bool { return g.enabled.Load() }

// ProcessWord drains one word, forwarding it only when the gate is open.
func (g *Gate) ProcessWord(w SampleWord) (SampleWord, bool) {
	if !g.enabled.Load() {
		return 0, false
	}
	return w, true
}

// Process drains a block, returning the forwarded words (nil when the
// gate is closed for the whole block).
func (g *Gate) Process(words []SampleWord) []SampleWord {
	if !g.enabled.Load() {
		return nil
	}
	return words
}

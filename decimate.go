package scoped

import "sync/atomic"

// Decimator reduces a SampleWord stream by a power-of-two ratio in two
// composed stages, reproducing the gateware datapath:
//
//  1. Word-level decimation: keep 1 out of every ratio>>3 words. Ratios
//     below 8 leave this stage transparent.
//  2. Byte-level selection: within each surviving word, stride-sample
//     bytes starting at byte 0 ({0,2,4,6} for ratio<=2, {0,4} for
//     ratio<=4, {0} for ratio>=8) and repack the selected bytes into
//     full-width output words.
//
// Ratios between the supported buckets round up to the next bucket (the
// case ladder covers 3 like 4); 0 and 1 are both pass-through. The ratio
// may change at any time and is latched once per input word; a change
// discards any partially packed group, so every output word holds bytes
// selected under a single ratio.
type Decimator struct {
	ratio atomic.Uint32

	applied   uint32 // ratio the stage counters were last run under
	wordCount uint32 // stage-1 counter over accepted words
	pack      [WordBytes]byte
	npack     int
}

// SetRatio sets the decimation ratio. Takes effect at the next word.
func (d *Decimator) SetRatio(ratio uint32) { d.ratio.Store(ratio) }

// Ratio returns the currently configured decimation ratio.
func (d *Decimator) Ratio() uint32 { return d.ratio.Load() }

// Reset clears the stage counters and the packing buffer. Meant for the
// start of a run, not mid-stream.
func (d *Decimator) Reset() {
	d.wordCount = 0
	d.npack = 0
}

// strideFor returns the byte offsets selected from each surviving word.
func strideFor(ratio uint32) []int {
	switch {
	case ratio <= 1:
		return []int{0, 1, 2, 3, 4, 5, 6, 7}
	case ratio <= 2:
		return []int{0, 2, 4, 6}
	case ratio <= 4:
		return []int{0, 4}
	default:
		return []int{0}
	}
}

// ProcessWord pushes one input word through both stages. It returns an
// output word and true when the packing buffer fills, which happens once
// per ratio input words.
func (d *Decimator) ProcessWord(w SampleWord) (SampleWord, bool) {
	ratio := d.ratio.Load()
	if ratio != d.applied {
		d.applied = ratio
		d.wordCount = 0
		d.npack = 0
	}

	// Stage 1: word-level throttle at ratio>>3.
	if wordRatio := ratio >> 3; wordRatio > 1 {
		keep := d.wordCount == 0
		d.wordCount++
		if d.wordCount >= wordRatio {
			d.wordCount = 0
		}
		if !keep {
			return 0, false
		}
	}

	// Stage 2: byte selection and width-converging repack.
	if ratio <= 1 {
		return w, true
	}
	for _, off := range strideFor(ratio) {
		d.pack[d.npack] = w.Byte(off)
		d.npack++
	}
	if d.npack < WordBytes {
		return 0, false
	}
	d.npack = 0
	return WordFromBytes(d.pack[:]), true
}

// Process runs a block of words through the decimator and returns the
// words emitted for it.
func (d *Decimator) Process(words []SampleWord) []SampleWord {
	var out []SampleWord
	for _, w := range words {
		if o, ok := d.ProcessWord(w); ok {
			out = append(out, o)
		}
	}
	return out
}

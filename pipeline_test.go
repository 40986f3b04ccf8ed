package scoped

import (
	"bytes"
	"testing"

	"github.com/360nosc0pe/scoped/internal/dram"
)

// End-to-end through one channel: ramp samples, decimation by 2, open
// gate, bounded capture. The captured bytes must be the stride-selected
// even samples, in order.
func TestPipelineEndToEnd(t *testing.T) {
	mem := dram.New(4096)
	cp := NewChannelPipeline(0, mem)
	cp.Dec.SetRatio(2)
	cp.Gate.SetEnabled(true)

	const captureLen = 64
	if _, err := cp.Capture.Arm(0, captureLen); err != nil {
		t.Fatal(err)
	}

	ramp := make([]byte, 512)
	for i := range ramp {
		ramp[i] = byte(i)
	}
	if err := cp.Feed(wordsOf(ramp)); err != nil {
		t.Fatal(err)
	}
	if !cp.Capture.Done() {
		t.Fatalf("capture state = %s, want DONE", cp.Capture.State())
	}

	want := make([]byte, captureLen)
	for i := range want {
		want[i] = byte(2 * i)
	}
	got, err := mem.ReadRegion(dram.Region{Base: 0, Length: captureLen})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("captured % x\nwant     % x", got, want)
	}

	if min, max := cp.Stats.Range(); min != 0 || max != 254 {
		t.Errorf("stats range = (%d, %d), want (0, 254)", min, max)
	}
}

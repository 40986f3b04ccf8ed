package scoped

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGateTransparentWhenOpen(t *testing.T) {
	g := new(Gate)
	g.SetEnabled(true)
	in := []SampleWord{1, 2, 3, 0xffffffffffffffff, 5}
	assert.Equal(t, in, g.Process(in))
}

func TestGateSilentWhenClosed(t *testing.T) {
	g := new(Gate)
	in := []SampleWord{1, 2, 3}
	if out := g.Process(in); out != nil {
		t.Errorf("closed gate forwarded %d words", len(out))
	}
	if _, ok := g.ProcessWord(42); ok {
		t.Error("closed gate forwarded a word")
	}
}

// Opening the gate does not replay anything dropped while it was closed.
func TestGateNoReplay(t *testing.T) {
	g := new(Gate)
	g.Process([]SampleWord{1, 2, 3})
	g.SetEnabled(true)
	out := g.Process([]SampleWord{4})
	assert.Equal(t, []SampleWord{4}, out)
}

package scoped

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// The fixtures reproduce the gateware simulation vectors: 64-bit words
// 0x7766554433221100 / 0xffeeddccbbaa9988 repeated, decimated at each
// supported ratio. For ratios >= 16 the first word of each pair carries a
// counting byte 0 so the word-level stage's selection is visible.
func TestDecimateFixtures(t *testing.T) {
	const wa = SampleWord(0x7766554433221100)
	const wb = SampleWord(0xffeeddccbbaa9988)

	pairs := func(n int, counting bool) []SampleWord {
		var in []SampleWord
		for k := 0; k < n; k++ {
			a := wa
			if counting {
				a = (wa &^ 0xff) | SampleWord(k)
			}
			in = append(in, a, wb)
		}
		return in
	}

	tests := []struct {
		ratio uint32
		in    []SampleWord
		want  []SampleWord
	}{
		{1, pairs(4, false), []SampleWord{wa, wb, wa, wb, wa, wb, wa, wb}},
		{2, pairs(4, false), []SampleWord{0xeeccaa8866442200, 0xeeccaa8866442200, 0xeeccaa8866442200, 0xeeccaa8866442200}},
		{4, pairs(4, false), []SampleWord{0xcc884400cc884400, 0xcc884400cc884400}},
		{8, pairs(4, false), []SampleWord{0x8800880088008800}},
		{16, pairs(8, true), []SampleWord{0x0706050403020100}},
		{32, pairs(16, true), []SampleWord{0x0e0c0a0806040200}},
	}
	for _, tt := range tests {
		d := new(Decimator)
		d.SetRatio(tt.ratio)
		got := d.Process(tt.in)
		assert.Equal(t, tt.want, got, "ratio %d", tt.ratio)
	}
}

func TestDecimateIdentity(t *testing.T) {
	in := make([]SampleWord, 100)
	for i := range in {
		in[i] = SampleWord(0x0123456789abcdef) * SampleWord(i+1)
	}
	for _, ratio := range []uint32{0, 1} {
		d := new(Decimator)
		d.SetRatio(ratio)
		out := d.Process(in)
		if len(out) != len(in) {
			t.Fatalf("ratio %d: got %d words, want %d", ratio, len(out), len(in))
		}
		for i := range in {
			if out[i] != in[i] {
				t.Errorf("ratio %d: word %d = %#x, want %#x", ratio, i, out[i], in[i])
			}
		}
	}
}

// Ratios between the supported buckets round up silently: 3 behaves
// exactly like 4.
func TestDecimateRatioRounding(t *testing.T) {
	in := make([]SampleWord, 32)
	for i := range in {
		in[i] = SampleWord(i) * 0x1111111111111111
	}
	d3 := new(Decimator)
	d3.SetRatio(3)
	d4 := new(Decimator)
	d4.SetRatio(4)
	assert.Equal(t, d4.Process(in), d3.Process(in))
}

func TestDecimateMonotonicReduction(t *testing.T) {
	const nwords = 256
	in := make([]SampleWord, nwords)
	for i := range in {
		in[i] = SampleWord(i)
	}
	for _, ratio := range []uint32{1, 2, 4, 8, 16, 32, 64} {
		d := new(Decimator)
		d.SetRatio(ratio)
		out := d.Process(in)
		want := nwords / int(ratio)
		if ratio <= 1 {
			want = nwords
		}
		if len(out) != want {
			t.Errorf("ratio %d: %d input words gave %d output words, want %d",
				ratio, nwords, len(out), want)
		}
	}
}

func TestDecimateReset(t *testing.T) {
	d := new(Decimator)
	d.SetRatio(8)
	in := make([]SampleWord, 8)
	for i := range in {
		in[i] = SampleWord(i)
	}

	// A partial packing group is dropped by Reset, so a restarted stream
	// produces the same output as a fresh decimator.
	d.Process(in[:3])
	d.Reset()
	got := d.Process(in)
	fresh := new(Decimator)
	fresh.SetRatio(8)
	want := fresh.Process(in)
	assert.Equal(t, want, got)
}

// A ratio change mid-group discards the partial packing buffer: a
// switch to a wider stride set stays in bounds, and the first output
// word after the change carries only bytes selected under the new
// ratio.
func TestDecimateRatioChangeMidGroup(t *testing.T) {
	d := new(Decimator)
	d.SetRatio(8)
	for i := 0; i < 7; i++ {
		if _, ok := d.ProcessWord(0x1111111111111111); ok {
			t.Fatalf("output after %d of 8 words at ratio 8", i+1)
		}
	}

	d.SetRatio(2)
	const wa = SampleWord(0x7766554433221100)
	const wb = SampleWord(0xffeeddccbbaa9988)
	if _, ok := d.ProcessWord(wa); ok {
		t.Fatal("half-filled group emitted a word")
	}
	out, ok := d.ProcessWord(wb)
	if !ok {
		t.Fatal("no output after a full group at ratio 2")
	}
	if want := SampleWord(0xeeccaa8866442200); out != want {
		t.Errorf("first word after ratio change = %#x, want %#x", out, want)
	}
}

// The ratio is latched per word, so a change mid-block never splits a
// packing group: each output word still holds WordBytes selected bytes.
func TestDecimateRatioChangeAtWordBoundary(t *testing.T) {
	d := new(Decimator)
	d.SetRatio(2)
	var out []SampleWord
	for i := 0; i < 64; i++ {
		if i == 9 {
			d.SetRatio(4)
		}
		if o, ok := d.ProcessWord(SampleWord(i) * 0x0101010101010101); ok {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		t.Fatal("no output words after 64 inputs")
	}
}

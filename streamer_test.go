package scoped

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/360nosc0pe/scoped/internal/dram"
)

func TestFindTriggerCrossing(t *testing.T) {
	tests := []struct {
		name      string
		buf       []byte
		threshold byte
		want      int
	}{
		{"rising edge", []byte{10, 20, 127, 128, 200}, 128, 2},
		{"exact threshold hit", []byte{100, 128, 130}, 128, 0},
		{"starts above", []byte{200, 210, 220}, 128, -1},
		{"falling only", []byte{200, 100, 50}, 128, -1},
		{"flat", []byte{50, 50, 50}, 128, -1},
		{"late crossing", []byte{50, 40, 30, 129}, 128, 2},
		{"empty", nil, 128, -1},
		{"single sample", []byte{50}, 128, -1},
	}
	for _, tt := range tests {
		if got := findTriggerCrossing(tt.buf, tt.threshold); got != tt.want {
			t.Errorf("%s: crossing at %d, want %d", tt.name, got, tt.want)
		}
	}
}

// Full continuous-mode loop: triangle source, capture of 2x the frame
// length, retrieval over loopback UDP, software trigger search, one
// aligned frame pushed to the TCP client.
func TestStreamerPushesAlignedFrame(t *testing.T) {
	const frameLen = 1024
	const threshold = 128

	mem := dram.New(64 << 10)
	cp := NewChannelPipeline(0, mem)
	cp.Gate.SetEnabled(true)

	source := NewTriangleSource(64, 4e6, 32, 224)
	if err := source.Configure(); err != nil {
		t.Fatal(err)
	}
	if err := source.StartRun(); err != nil {
		t.Fatal(err)
	}
	defer source.Stop()

	abort := make(chan struct{})
	defer close(abort)
	go cp.Run(source, abort)

	upload := startUploadPath(t, mem)
	ts := NewTriggeredStreamer(cp, upload, 0, frameLen, threshold)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go ts.Serve(ln, abort)
	go ts.Run(abort)

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	frame := make([]byte, frameLen)
	if _, err := io.ReadFull(conn, frame); err != nil {
		t.Fatalf("reading frame: %v", err)
	}

	// The frame starts exactly at the rising-edge crossing.
	if frame[0] >= threshold {
		t.Errorf("frame[0] = %d, want below threshold %d", frame[0], threshold)
	}
	if frame[1] < threshold {
		t.Errorf("frame[1] = %d, want at or above threshold %d", frame[1], threshold)
	}
}

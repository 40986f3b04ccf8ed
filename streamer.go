package scoped

import (
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// TriggeredStreamer implements the continuous "live waveform" mode on top
// of the pull-based upload path. Each iteration captures twice the
// requested frame length (the extra room is the trigger search window),
// retrieves the buffer, locates the first rising-edge crossing of the
// threshold in software, and pushes exactly one aligned frame of the
// requested length to the single connected stream client. Raw bytes, no
// framing.
type TriggeredStreamer struct {
	pipeline *ChannelPipeline
	upload   *UploadClient

	mu        sync.Mutex
	base      uint32
	length    uint32
	threshold byte

	clientMu sync.Mutex
	client   net.Conn

	// PollInterval is how often the capture Done flag is polled.
	PollInterval time.Duration

	frames atomic.Uint64 // frames pushed
	misses atomic.Uint64 // captures with no usable crossing
}

// NewTriggeredStreamer streams channel cp's captures at [base, base+2*length)
// through the given upload client.
func NewTriggeredStreamer(cp *ChannelPipeline, upload *UploadClient, base, length uint32, threshold byte) *TriggeredStreamer {
	return &TriggeredStreamer{
		pipeline:     cp,
		upload:       upload,
		base:         base,
		length:       length,
		threshold:    threshold,
		PollInterval: time.Millisecond,
	}
}

// Configure updates the frame length and trigger threshold. Applied on
// the next capture iteration.
func (ts *TriggeredStreamer) Configure(length uint32, threshold byte) {
	ts.mu.Lock()
	ts.length = length
	ts.threshold = threshold
	ts.mu.Unlock()
}

func (ts *TriggeredStreamer) params() (base, length uint32, threshold byte) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.base, ts.length, ts.threshold
}

// Misses returns the number of captures discarded for lack of a trigger
// crossing.
func (ts *TriggeredStreamer) Misses() uint64 { return ts.misses.Load() }

// Frames returns the number of frames pushed to clients.
func (ts *TriggeredStreamer) Frames() uint64 { return ts.frames.Load() }

// Serve accepts stream clients one at a time on ln. A newly accepted
// connection replaces a dead one; while a client is connected further
// accepts wait.
func (ts *TriggeredStreamer) Serve(ln net.Listener, abort <-chan struct{}) {
	go func() {
		<-abort
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return // listener closed
		}
		log.Printf("waveform client connected from %v", conn.RemoteAddr())
		ts.clientMu.Lock()
		if ts.client != nil {
			ts.client.Close()
		}
		ts.client = conn
		ts.clientMu.Unlock()
	}
}

func (ts *TriggeredStreamer) currentClient() net.Conn {
	ts.clientMu.Lock()
	defer ts.clientMu.Unlock()
	return ts.client
}

func (ts *TriggeredStreamer) dropClient(c net.Conn) {
	ts.clientMu.Lock()
	if ts.client == c {
		ts.client = nil
	}
	ts.clientMu.Unlock()
	c.Close()
}

// Run repeats the capture/search/push loop until abort closes.
func (ts *TriggeredStreamer) Run(abort <-chan struct{}) {
	for {
		select {
		case <-abort:
			return
		default:
		}
		if err := ts.streamOnce(abort); err != nil {
			return
		}
	}
}

// streamOnce performs one capture iteration. It returns a non-nil error
// only when aborted.
func (ts *TriggeredStreamer) streamOnce(abort <-chan struct{}) error {
	base, length, threshold := ts.params()

	cc := ts.pipeline.Capture
	if _, err := cc.Arm(base, 2*length); err != nil {
		ProblemLogger.Printf("streamer: %v", err)
		return nil
	}
	if err := cc.WaitDone(ts.PollInterval, abort); err != nil {
		return err
	}
	buf, err := ts.upload.Retrieve(base, 2*length)
	if err != nil {
		ProblemLogger.Printf("streamer: %v", err)
		return nil
	}
	cc.Disarm()

	i := findTriggerCrossing(buf, threshold)
	if i < 0 || i+int(length) > len(buf) {
		ts.misses.Add(1)
		return nil
	}
	frame := buf[i : i+int(length)]

	client := ts.currentClient()
	if client == nil {
		return nil
	}
	if _, err := client.Write(frame); err != nil {
		log.Printf("waveform client dropped: %v", err)
		ts.dropClient(client)
		return nil
	}
	ts.frames.Add(1)
	return nil
}

// findTriggerCrossing returns the first index i with
// buf[i] < threshold <= buf[i+1], or -1 when the buffer never rises
// through the threshold.
func findTriggerCrossing(buf []byte, threshold byte) int {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] < threshold && buf[i+1] >= threshold {
			return i
		}
	}
	return -1
}

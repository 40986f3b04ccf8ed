package scoped

import (
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/360nosc0pe/scoped/internal/dram"
)

// CaptureState is the capture controller's FSM state.
type CaptureState int

// The capture FSM: IDLE -> ARMED -> RUNNING -> DONE, re-armable from DONE.
const (
	CaptureIdle CaptureState = iota
	CaptureArmed
	CaptureRunning
	CaptureDone
)

func (s CaptureState) String() string {
	switch s {
	case CaptureIdle:
		return "IDLE"
	case CaptureArmed:
		return "ARMED"
	case CaptureRunning:
		return "RUNNING"
	case CaptureDone:
		return "DONE"
	}
	return fmt.Sprintf("CaptureState(%d)", int(s))
}

// CaptureController owns one channel's capture region while a capture is
// armed or running. Words accepted by the gate are written sequentially
// from the region base; the controller stops writing exactly at the
// region length and raises the polled Done flag. It never leaves RUNNING
// on a timeout, only on the byte count.
type CaptureController struct {
	mu      sync.Mutex
	channum int
	mem     *dram.Memory
	region  dram.Region
	offset  uint32 // bytes written so far
	state   CaptureState
	runID   ulid.ULID
}

// NewCaptureController makes the controller for one channel, writing
// into mem.
func NewCaptureController(channum int, mem *dram.Memory) *CaptureController {
	return &CaptureController{channum: channum, mem: mem, state: CaptureIdle}
}

// Arm requests a capture of length bytes starting at base. Legal from
// IDLE or DONE; re-arming from DONE conceptually destroys the previous
// capture's content. Each armed capture gets a fresh run ID.
func (cc *CaptureController) Arm(base, length uint32) (ulid.ULID, error) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.state == CaptureArmed || cc.state == CaptureRunning {
		return ulid.ULID{}, fmt.Errorf("channel %d: capture already %s", cc.channum, cc.state)
	}
	if length == 0 {
		return ulid.ULID{}, fmt.Errorf("channel %d: capture length must be positive", cc.channum)
	}
	if int(base)+int(length) > cc.mem.Size() {
		return ulid.ULID{}, fmt.Errorf("channel %d: capture [0x%x, 0x%x) exceeds memory size 0x%x",
			cc.channum, base, base+length, cc.mem.Size())
	}
	cc.region = dram.Region{Base: base, Length: length}
	cc.offset = 0
	cc.state = CaptureArmed
	cc.runID = ulid.Make()
	return cc.runID, nil
}

// Disarm aborts a pending or running capture and returns to IDLE.
func (cc *CaptureController) Disarm() {
	cc.mu.Lock()
	cc.state = CaptureIdle
	cc.offset = 0
	cc.mu.Unlock()
}

// Absorb consumes the words forwarded by the gate. The first word moves
// ARMED to RUNNING; RUNNING writes until exactly Length bytes are down,
// then enters DONE. Words arriving in any other state are discarded, so
// the upstream never blocks on a finished capture.
func (cc *CaptureController) Absorb(words []SampleWord) error {
	if len(words) == 0 {
		return nil
	}
	cc.mu.Lock()
	defer cc.mu.Unlock()
	switch cc.state {
	case CaptureArmed:
		cc.state = CaptureRunning
	case CaptureRunning:
	default:
		return nil
	}

	buf := make([]byte, 0, len(words)*WordBytes)
	for _, w := range words {
		buf = w.AppendBytes(buf)
	}
	if remaining := cc.region.Length - cc.offset; uint32(len(buf)) > remaining {
		buf = buf[:remaining]
	}
	if err := cc.mem.WriteAt(cc.region.Base+cc.offset, buf); err != nil {
		return err
	}
	cc.offset += uint32(len(buf))
	if cc.offset >= cc.region.Length {
		cc.state = CaptureDone
	}
	return nil
}

// State returns the current FSM state.
func (cc *CaptureController) State() CaptureState {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.state
}

// Done is the polled completion flag.
func (cc *CaptureController) Done() bool { return cc.State() == CaptureDone }

// Offset returns the number of bytes written for the current capture.
func (cc *CaptureController) Offset() uint32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.offset
}

// Region returns the capture window of the current (or last) capture.
func (cc *CaptureController) Region() dram.Region {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.region
}

// RunID returns the identifier assigned at the last Arm.
func (cc *CaptureController) RunID() ulid.ULID {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.runID
}

// WaitDone polls the Done flag every pollInterval until it is set or the
// abort channel closes. The device itself offers no event semantics; this
// is the host's busy-wait made explicit.
func (cc *CaptureController) WaitDone(pollInterval time.Duration, abort <-chan struct{}) error {
	for {
		if cc.Done() {
			return nil
		}
		select {
		case <-abort:
			return fmt.Errorf("channel %d: wait for capture aborted", cc.channum)
		case <-time.After(pollInterval):
		}
	}
}

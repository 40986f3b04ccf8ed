package scoped

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"
)

// SampleWord is one 64-bit group of 8 packed byte-samples, the unit the
// ADC front end emits and the decimator consumes. Byte 0 is the
// least-significant byte and the earliest sample.
type SampleWord uint64

// WordBytes is the number of byte-samples packed into one SampleWord.
const WordBytes = 8

// FrameIndex is used for counting sample words since the start of a run.
type FrameIndex int64

// Byte returns sample i (0 = least significant) of the word.
func (w SampleWord) Byte(i int) byte {
	return byte(w >> (8 * uint(i)))
}

// WordFromBytes packs up to 8 bytes (LSB first) into a SampleWord.
func WordFromBytes(p []byte) SampleWord {
	var buf [WordBytes]byte
	copy(buf[:], p)
	return SampleWord(binary.LittleEndian.Uint64(buf[:]))
}

// AppendBytes appends the word's 8 samples to dst in arrival order.
func (w SampleWord) AppendBytes(dst []byte) []byte {
	return binary.LittleEndian.AppendUint64(dst, uint64(w))
}

// SourceState is used to indicate the active/inactive/transition state of
// a sample source.
type SourceState int

// Names for the possible values of SourceState
const (
	Inactive SourceState = iota // Source is not active
	Starting                    // Source is in transition to Active state
	Active                      // Source is actively producing data
	Stopping                    // Source is in transition to Inactive state
)

// SampleSource is the interface for hardware or simulated producers of
// SampleWord blocks at a fixed cadence. Acquisition pipelines consume the
// Blocks channel.
type SampleSource interface {
	Configure() error
	StartRun() error
	Blocks() <-chan []SampleWord
	Stop() error
	GetState() SourceState
}

// AnySource holds the state and behavior common to all sample sources.
type AnySource struct {
	name       string
	sampleRate float64 // samples per second
	blockWords int     // words per emitted block
	output     chan []SampleWord
	abort      chan struct{}
	lastread   time.Time

	sourceState     SourceState
	sourceStateLock sync.Mutex
	runMutex        sync.Mutex
	runDone         sync.WaitGroup
}

// Blocks returns the channel on which the source delivers data.
// More importantly, wait on this channel to wait on the source to have data.
func (ds *AnySource) Blocks() <-chan []SampleWord { return ds.output }

// GetState returns the sourceState value under a lock.
func (ds *AnySource) GetState() SourceState {
	ds.sourceStateLock.Lock()
	defer ds.sourceStateLock.Unlock()
	return ds.sourceState
}

func (ds *AnySource) setState(s SourceState) {
	ds.sourceStateLock.Lock()
	ds.sourceState = s
	ds.sourceStateLock.Unlock()
}

// Stop ends the data production and waits for the run goroutine to exit.
func (ds *AnySource) Stop() error {
	ds.runMutex.Lock()
	defer ds.runMutex.Unlock()
	if ds.GetState() != Active {
		return fmt.Errorf("source %q is not active", ds.name)
	}
	ds.setState(Stopping)
	close(ds.abort)
	ds.runDone.Wait()
	ds.setState(Inactive)
	return nil
}

// timeperbuf is the wall-clock duration covered by one block.
func (ds *AnySource) timeperbuf() time.Duration {
	samplesPerBlock := float64(ds.blockWords * WordBytes)
	return time.Duration(float64(time.Second) * samplesPerBlock / ds.sampleRate)
}

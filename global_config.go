package scoped

import (
	"log"
	"os"
	"time"
)

// Portnumbers structs can contain all well-known ports used by scoped.
type Portnumbers struct {
	RPC      int // JSON-RPC control server
	Status   int // ZMQ PUB status updates
	Data     int // UDP port the DMA reader sends capture chunks to
	Waveform int // TCP port the triggered streamer pushes frames on
}

// Ports globally holds all well-known ports used by scoped.
var Ports Portnumbers

func setPortnumbers(base int) {
	Ports.RPC = base
	Ports.Status = base + 1
	Ports.Data = 2000
	Ports.Waveform = 50101
}

// BuildInfo can contain compile-time information about the build
type BuildInfo struct {
	Version string
	Githash string
	Date    string
	Host    string
	Summary string
}

// Build is a global holding compile-time information about the build
var Build = BuildInfo{
	Version: "0.1.0",
	Githash: "no git hash computed",
	Date:    "no build date computed",
}

// NChannels is the number of acquisition channels (two ADCs with two
// channels each on the SDS1104X-E).
const NChannels = 4

// ScopedStartTime is a global holding the time init() was run
var ScopedStartTime time.Time

// ProblemLogger will log warning messages to a file
var ProblemLogger *log.Logger

func init() {
	setPortnumbers(5025)
	ScopedStartTime = time.Now()

	// The scoped main program will override this, but at least initialize
	// with a sensible value.
	ProblemLogger = log.New(os.Stderr, "", log.LstdFlags)
}

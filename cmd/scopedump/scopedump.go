// scopedump is the host-side retrieval utility: it arms a capture over
// the scoped JSON-RPC port, polls the done flag, pulls the bytes over
// the chunked UDP upload protocol, prints summary statistics, and can
// dump the waveform to a .npy file.
package main

import (
	"flag"
	"fmt"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"time"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/360nosc0pe/scoped"
)

// rpcRegisters drives the device's DMA reader registers over JSON-RPC,
// satisfying scoped.UploadRegisters for a remote host.
type rpcRegisters struct {
	client *rpc.Client
}

func (r *rpcRegisters) WriteWindow(base, length uint32) {
	var ok bool
	r.client.Call("ScopeControl.SetUploadWindow", &scoped.UploadWindow{Base: base, Length: length}, &ok)
}

func (r *rpcRegisters) WriteEnable(enable bool) {
	var ok bool
	r.client.Call("ScopeControl.TriggerUpload", &scoped.UploadEnable{Enable: enable}, &ok)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	rpcAddr := flag.String("rpc", fmt.Sprintf("localhost:%d", scoped.Ports.RPC), "scoped control address")
	bind := flag.String("bind", fmt.Sprintf("0.0.0.0:%d", scoped.Ports.Data), "local UDP data bind address")
	channel := flag.Int("channel", 0, "channel to capture")
	base := flag.Uint("base", 0, "capture base address in DRAM")
	length := flag.Uint("length", 16384, "capture length in bytes")
	ratio := flag.Uint("ratio", 0, "decimation ratio to configure (0 = leave unchanged)")
	timeout := flag.Duration("timeout", 5*time.Second, "per-datagram receive timeout (0 = wait forever)")
	npyFile := flag.String("npy", "", "write the waveform to this .npy file")
	flag.Parse()

	client, err := jsonrpc.Dial("tcp", *rpcAddr)
	if err != nil {
		fatalf("connect to %s: %v", *rpcAddr, err)
	}
	defer client.Close()

	var ok bool
	if *ratio > 0 {
		args := &scoped.DecimationConfig{Ratio: uint32(*ratio)}
		if err := client.Call("ScopeControl.ConfigureDecimation", args, &ok); err != nil {
			fatalf("configure decimation: %v", err)
		}
	}
	if err := client.Call("ScopeControl.ConfigureTrigger", &scoped.TriggerConfig{Enable: true}, &ok); err != nil {
		fatalf("enable trigger: %v", err)
	}

	capture := &scoped.CaptureConfig{Channel: *channel, Base: uint32(*base), Length: uint32(*length)}
	var runID string
	if err := client.Call("ScopeControl.StartCapture", capture, &runID); err != nil {
		fatalf("start capture: %v", err)
	}
	fmt.Printf("Capture %s armed: channel %d, base 0x%x, length %d\n", runID, *channel, *base, *length)

	// Poll the done register before retrieval, as the device offers no
	// completion event.
	for {
		var status scoped.CaptureStatusReply
		if err := client.Call("ScopeControl.CaptureStatus", &scoped.ChannelArg{Channel: *channel}, &status); err != nil {
			fatalf("capture status: %v", err)
		}
		if status.Done {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	upload, err := scoped.NewUploadClient(&rpcRegisters{client: client}, *bind)
	if err != nil {
		fatalf("bind data socket: %v", err)
	}
	defer upload.Close()
	upload.Timeout = *timeout

	start := time.Now()
	data, err := upload.Retrieve(uint32(*base), uint32(*length))
	if err != nil {
		fatalf("retrieve: %v", err)
	}
	elapsed := time.Since(start)
	fmt.Printf("Retrieved %d bytes in %v (%.1f kB/s)\n", len(data), elapsed,
		float64(len(data))/1e3/elapsed.Seconds())

	samples := make([]float64, len(data))
	for i, b := range data {
		samples[i] = float64(b)
	}
	fmt.Printf("Min: %.0f  Max: %.0f  Mean: %.2f  StdDev: %.2f\n",
		floats.Min(samples), floats.Max(samples),
		stat.Mean(samples, nil), stat.StdDev(samples, nil))

	if *npyFile != "" {
		f, err := os.Create(*npyFile)
		if err != nil {
			fatalf("create %s: %v", *npyFile, err)
		}
		defer f.Close()
		if err := npyio.Write(f, data); err != nil {
			fatalf("write %s: %v", *npyFile, err)
		}
		fmt.Printf("Wrote %s\n", *npyFile)
	}
}

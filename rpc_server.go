package scoped

import (
	"fmt"
	"log"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/360nosc0pe/scoped/internal/scopedb"
)

// ScopeControl is the sub-server that handles configuration and
// operation of the acquisition core: decimation ratio, trigger gate,
// per-channel captures, the DMA upload registers, and the triggered
// streamer.
type ScopeControl struct {
	pipelines  Pipelines
	source     SampleSource
	streamer   *TriggeredStreamer
	uploadRegs *DMAReaderRegs
	db         *scopedb.ScopeDBConnection

	pending [NChannels]*scopedb.CaptureMessage

	status        ServerStatus
	clientUpdates chan<- ClientUpdate
}

// ServerStatus is the status that ScopeControl reports to clients.
type ServerStatus struct {
	Running        bool
	SourceName     string
	Nchannels      int
	Ratio          uint32
	TriggerEnabled bool
}

// NewScopeControl assembles the control server over the given collaborators.
func NewScopeControl(pipelines Pipelines, source SampleSource, streamer *TriggeredStreamer,
	uploadRegs *DMAReaderRegs, db *scopedb.ScopeDBConnection) *ScopeControl {
	if db == nil {
		db = scopedb.DummyDBConnection()
	}
	return &ScopeControl{
		pipelines:  pipelines,
		source:     source,
		streamer:   streamer,
		uploadRegs: uploadRegs,
		db:         db,
		status:     ServerStatus{Nchannels: NChannels},
	}
}

func (s *ScopeControl) checkChannel(channum int) error {
	if channum < 0 || channum >= NChannels {
		return fmt.Errorf("channel %d out of range [0, %d)", channum, NChannels)
	}
	return nil
}

// DecimationConfig holds the arguments of ConfigureDecimation.
type DecimationConfig struct {
	Ratio uint32
}

// ConfigureDecimation sets the decimation ratio on every channel. Ratios
// between the supported power-of-two buckets round up silently, matching
// the datapath.
func (s *ScopeControl) ConfigureDecimation(args *DecimationConfig, reply *bool) error {
	log.Printf("ConfigureDecimation: ratio=%d\n", args.Ratio)
	s.pipelines.SetRatio(args.Ratio)
	s.status.Ratio = args.Ratio
	s.broadcastUpdate()
	*reply = true
	return nil
}

// TriggerConfig holds the arguments of ConfigureTrigger.
type TriggerConfig struct {
	Enable bool
}

// ConfigureTrigger opens or closes the capture gate on every channel.
func (s *ScopeControl) ConfigureTrigger(args *TriggerConfig, reply *bool) error {
	log.Printf("ConfigureTrigger: enable=%t\n", args.Enable)
	s.pipelines.SetTrigger(args.Enable)
	s.status.TriggerEnabled = args.Enable
	s.broadcastUpdate()
	*reply = true
	return nil
}

// CaptureConfig holds the arguments of StartCapture.
type CaptureConfig struct {
	Channel int
	Base    uint32
	Length  uint32
}

// StartCapture arms the channel's capture controller for {Base, Length}.
// The reply is the run ID of the armed capture.
func (s *ScopeControl) StartCapture(args *CaptureConfig, reply *string) error {
	if err := s.checkChannel(args.Channel); err != nil {
		return err
	}
	cp := s.pipelines[args.Channel]
	runID, err := cp.Capture.Arm(args.Base, args.Length)
	if err != nil {
		return err
	}
	log.Printf("StartCapture: channel=%d base=0x%x length=%d id=%s\n",
		args.Channel, args.Base, args.Length, runID)
	hostname, _ := os.Hostname()
	msg := &scopedb.CaptureMessage{
		ID:       runID.String(),
		Channel:  args.Channel,
		Base:     args.Base,
		Length:   args.Length,
		Ratio:    cp.Dec.Ratio(),
		Hostname: hostname,
		Start:    time.Now(),
	}
	s.pending[args.Channel] = msg
	s.db.RecordCapture(msg)
	*reply = runID.String()
	return nil
}

// StopCapture disarms the channel's capture controller.
func (s *ScopeControl) StopCapture(args *CaptureConfig, reply *bool) error {
	if err := s.checkChannel(args.Channel); err != nil {
		return err
	}
	s.pipelines[args.Channel].Capture.Disarm()
	s.pending[args.Channel] = nil
	*reply = true
	return nil
}

// ChannelArg names a channel for status queries.
type ChannelArg struct {
	Channel int
}

// CaptureStatusReply describes a channel's capture FSM.
type CaptureStatusReply struct {
	State  string
	Done   bool
	Base   uint32
	Length uint32
	Offset uint32
	RunID  string
}

// CaptureStatus reports the polled capture state of one channel. This is
// the host's "done register": poll until Done before retrieving.
func (s *ScopeControl) CaptureStatus(args *ChannelArg, reply *CaptureStatusReply) error {
	if err := s.checkChannel(args.Channel); err != nil {
		return err
	}
	cc := s.pipelines[args.Channel].Capture
	region := cc.Region()
	*reply = CaptureStatusReply{
		State:  cc.State().String(),
		Done:   cc.Done(),
		Base:   region.Base,
		Length: region.Length,
		Offset: cc.Offset(),
		RunID:  cc.RunID().String(),
	}
	if reply.Done {
		if msg := s.pending[args.Channel]; msg != nil {
			s.db.FinishCapture(msg)
			s.pending[args.Channel] = nil
		}
	}
	return nil
}

// StatsReply reports a channel's sample statistics.
type StatsReply struct {
	Min   byte
	Max   byte
	Count uint32
}

// ChannelStatistics reads min/max/count for one channel.
func (s *ScopeControl) ChannelStatistics(args *ChannelArg, reply *StatsReply) error {
	if err := s.checkChannel(args.Channel); err != nil {
		return err
	}
	stats := s.pipelines[args.Channel].Stats
	reply.Min, reply.Max = stats.Range()
	reply.Count = stats.Count()
	return nil
}

// ResetStatistics clears one channel's statistics registers.
func (s *ScopeControl) ResetStatistics(args *ChannelArg, reply *bool) error {
	if err := s.checkChannel(args.Channel); err != nil {
		return err
	}
	s.pipelines[args.Channel].Stats.Reset()
	*reply = true
	return nil
}

// UploadWindow holds the arguments of SetUploadWindow.
type UploadWindow struct {
	Base   uint32
	Length uint32
}

// SetUploadWindow programs the DMA reader's source window. Remote hosts
// drive the chunked retrieval through this plus TriggerUpload.
func (s *ScopeControl) SetUploadWindow(args *UploadWindow, reply *bool) error {
	s.uploadRegs.WriteWindow(args.Base, args.Length)
	*reply = true
	return nil
}

// UploadEnable holds the arguments of TriggerUpload.
type UploadEnable struct {
	Enable bool
}

// TriggerUpload writes the DMA reader enable bit; a rising edge sends
// one datagram for the configured window.
func (s *ScopeControl) TriggerUpload(args *UploadEnable, reply *bool) error {
	s.uploadRegs.WriteEnable(args.Enable)
	*reply = true
	return nil
}

// StartSource begins data production on the configured sample source.
func (s *ScopeControl) StartSource(args *string, reply *bool) error {
	if s.source == nil {
		return fmt.Errorf("no sample source is configured")
	}
	if s.source.GetState() != Inactive {
		return fmt.Errorf("source is already running")
	}
	if err := s.source.StartRun(); err != nil {
		return err
	}
	log.Printf("StartSource\n")
	s.broadcastUpdate()
	*reply = true
	return nil
}

// StopSource halts data production. Armed captures stay armed; they
// resume filling when the source is started again.
func (s *ScopeControl) StopSource(args *string, reply *bool) error {
	if s.source == nil {
		return fmt.Errorf("no sample source is configured")
	}
	if err := s.source.Stop(); err != nil {
		return err
	}
	log.Printf("StopSource\n")
	s.broadcastUpdate()
	*reply = true
	return nil
}

// StreamerConfig holds the arguments of ConfigureStreamer.
type StreamerConfig struct {
	Length    uint32
	Threshold byte
}

// ConfigureStreamer updates the continuous-mode frame length and trigger
// threshold.
func (s *ScopeControl) ConfigureStreamer(args *StreamerConfig, reply *bool) error {
	if s.streamer == nil {
		return fmt.Errorf("no streamer is configured")
	}
	s.streamer.Configure(args.Length, args.Threshold)
	s.broadcastUpdate()
	*reply = true
	return nil
}

// SendAllStatus makes the server broadcast its current status.
func (s *ScopeControl) SendAllStatus(args *string, reply *bool) error {
	s.broadcastUpdate()
	*reply = true
	return nil
}

func (s *ScopeControl) broadcastUpdate() {
	if s.clientUpdates == nil {
		return
	}
	s.status.Running = s.source != nil && s.source.GetState() == Active
	s.clientUpdates <- ClientUpdate{"STATUS", s.status}
}

// RunRPCServer sets up and runs a permanent JSON-RPC server on portrpc.
func RunRPCServer(ctl *ScopeControl, messageChan chan<- ClientUpdate, portrpc int) {
	ctl.clientUpdates = messageChan

	// Transfer saved configuration from Viper to the relevant objects.
	var okay bool
	log.Printf("scoped is using config file %s\n", viper.ConfigFileUsed())
	if ratio := viper.GetUint32("decimation.ratio"); ratio > 0 {
		ctl.ConfigureDecimation(&DecimationConfig{Ratio: ratio}, &okay)
	}
	if viper.IsSet("trigger.enable") {
		ctl.ConfigureTrigger(&TriggerConfig{Enable: viper.GetBool("trigger.enable")}, &okay)
	}

	go func() {
		for range time.Tick(2 * time.Second) {
			ctl.broadcastUpdate()
		}
	}()

	// Now launch the connection handler and accept connections.
	server := rpc.NewServer()
	server.Register(ctl)
	port := fmt.Sprintf(":%d", portrpc)
	listener, err := net.Listen("tcp", port)
	if err != nil {
		log.Fatal("listen error:", err)
	}
	for {
		if conn, err := listener.Accept(); err != nil {
			log.Fatal("accept error: " + err.Error())
		} else {
			log.Printf("new connection established\n")
			go server.ServeCodec(jsonrpc.NewServerCodec(conn))
		}
	}
}

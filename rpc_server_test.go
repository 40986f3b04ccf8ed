package scoped

import (
	"testing"

	"github.com/360nosc0pe/scoped/internal/dram"
)

func newTestControl() (*ScopeControl, Pipelines, *DMAReaderRegs) {
	mem := dram.New(8192)
	pipelines := NewPipelines(mem)
	regs := NewDMAReaderRegs()
	ctl := NewScopeControl(pipelines, nil, nil, regs, nil)
	return ctl, pipelines, regs
}

func TestConfigureDecimation(t *testing.T) {
	ctl, pipelines, _ := newTestControl()
	var ok bool
	if err := ctl.ConfigureDecimation(&DecimationConfig{Ratio: 16}, &ok); err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("reply not okay")
	}
	for i, cp := range pipelines {
		if cp.Dec.Ratio() != 16 {
			t.Errorf("channel %d ratio = %d, want 16", i, cp.Dec.Ratio())
		}
	}
}

func TestConfigureTrigger(t *testing.T) {
	ctl, pipelines, _ := newTestControl()
	var ok bool
	if err := ctl.ConfigureTrigger(&TriggerConfig{Enable: true}, &ok); err != nil {
		t.Fatal(err)
	}
	for i, cp := range pipelines {
		if !cp.Gate.Enabled() {
			t.Errorf("channel %d gate still closed", i)
		}
	}
	ctl.ConfigureTrigger(&TriggerConfig{Enable: false}, &ok)
	if pipelines[0].Gate.Enabled() {
		t.Error("gate still open after disable")
	}
}

func TestStartCaptureAndStatus(t *testing.T) {
	ctl, pipelines, _ := newTestControl()
	var runID string
	args := &CaptureConfig{Channel: 2, Base: 0x100, Length: 64}
	if err := ctl.StartCapture(args, &runID); err != nil {
		t.Fatal(err)
	}
	if runID == "" {
		t.Error("empty run ID")
	}

	var status CaptureStatusReply
	if err := ctl.CaptureStatus(&ChannelArg{Channel: 2}, &status); err != nil {
		t.Fatal(err)
	}
	if status.State != "ARMED" || status.Done {
		t.Errorf("status = %+v, want ARMED and not done", status)
	}
	if status.Base != 0x100 || status.Length != 64 {
		t.Errorf("status window = (0x%x, %d), want (0x100, 64)", status.Base, status.Length)
	}
	if status.RunID != runID {
		t.Errorf("status run ID %s, want %s", status.RunID, runID)
	}

	pipelines[2].Gate.SetEnabled(true)
	pipelines[2].Feed(make([]SampleWord, 8))
	if err := ctl.CaptureStatus(&ChannelArg{Channel: 2}, &status); err != nil {
		t.Fatal(err)
	}
	if !status.Done || status.Offset != 64 {
		t.Errorf("status = %+v, want done with offset 64", status)
	}
}

func TestBadChannelRejected(t *testing.T) {
	ctl, _, _ := newTestControl()
	var runID string
	if err := ctl.StartCapture(&CaptureConfig{Channel: NChannels, Length: 64}, &runID); err == nil {
		t.Error("expected error for channel out of range")
	}
	var status CaptureStatusReply
	if err := ctl.CaptureStatus(&ChannelArg{Channel: -1}, &status); err == nil {
		t.Error("expected error for negative channel")
	}
}

func TestUploadRegisterWrites(t *testing.T) {
	ctl, _, regs := newTestControl()
	var ok bool
	if err := ctl.SetUploadWindow(&UploadWindow{Base: 0x400, Length: ChunkSize}, &ok); err != nil {
		t.Fatal(err)
	}
	if w := regs.window(); w.Base != 0x400 || w.Length != ChunkSize {
		t.Errorf("window = %+v, want (0x400, %d)", w, ChunkSize)
	}

	ctl.TriggerUpload(&UploadEnable{Enable: true}, &ok)
	select {
	case <-regs.doorbell:
	default:
		t.Error("enable rising edge did not ring the doorbell")
	}
	// Writing enable again without a falling edge is not a rising edge.
	ctl.TriggerUpload(&UploadEnable{Enable: true}, &ok)
	select {
	case <-regs.doorbell:
		t.Error("doorbell rung without a rising edge")
	default:
	}
}

func TestSourceStartStop(t *testing.T) {
	mem := dram.New(8192)
	pipelines := NewPipelines(mem)
	source := NewRampSource(4, 1e7)
	if err := source.Configure(); err != nil {
		t.Fatal(err)
	}
	ctl := NewScopeControl(pipelines, source, nil, NewDMAReaderRegs(), nil)

	var ok bool
	if err := ctl.StopSource(nil, &ok); err == nil {
		t.Error("expected error stopping a source that never started")
	}
	if err := ctl.StartSource(nil, &ok); err != nil {
		t.Fatal(err)
	}
	if source.GetState() != Active {
		t.Errorf("state = %d, want Active", source.GetState())
	}
	if err := ctl.StartSource(nil, &ok); err == nil {
		t.Error("expected error starting a running source")
	}
	if err := ctl.StopSource(nil, &ok); err != nil {
		t.Fatal(err)
	}
	if source.GetState() != Inactive {
		t.Errorf("state = %d, want Inactive", source.GetState())
	}
}

func TestChannelStatisticsRPC(t *testing.T) {
	ctl, pipelines, _ := newTestControl()
	pipelines[1].Stats.Update([]SampleWord{WordFromBytes([]byte{5, 250, 7, 8, 9, 10, 11, 12})})

	var stats StatsReply
	if err := ctl.ChannelStatistics(&ChannelArg{Channel: 1}, &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Min != 5 || stats.Max != 250 || stats.Count != 8 {
		t.Errorf("stats = %+v, want min 5, max 250, count 8", stats)
	}

	var ok bool
	ctl.ResetStatistics(&ChannelArg{Channel: 1}, &ok)
	ctl.ChannelStatistics(&ChannelArg{Channel: 1}, &stats)
	if stats.Count != 0 {
		t.Errorf("count after reset = %d, want 0", stats.Count)
	}
}

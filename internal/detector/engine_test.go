package detector

import (
	"errors"
	"testing"
)

func newTestConfig(cutoff, muteLength int, policy Policy, messages ...string) *Config {
	cfg := DefaultConfig()
	cfg.Resolution = 2000 // 24 frames per window at 48kHz
	cfg.Cutoff = cutoff
	cfg.MuteLength = muteLength
	cfg.Policy = policy
	cfg.Messages = messages
	cfg.Channels = len(messages)
	return cfg
}

func newTestEngine(t *testing.T, cfg *Config) *Engine {
	t.Helper()
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

// stereoFrames builds n interleaved frames: alternating ±left on channel 0 and
// a constant right on channel 1.
func stereoFrames(n int, left, right int8) []int8 {
	buf := make([]int8, 0, n*2)
	for i := 0; i < n; i++ {
		l := left
		if i%2 == 1 {
			l = -left
		}
		buf = append(buf, l, right)
	}
	return buf
}

func eventWindows(events []FireEvent, channel int) []int {
	var windows []int
	for _, ev := range events {
		if ev.Channel == channel {
			windows = append(windows, int(ev.Window))
		}
	}
	return windows
}

func TestWindowSize(t *testing.T) {
	tests := []struct {
		rate, resolution, alignment int
		wantWindow, wantBuffer      int
	}{
		{48000, 2000, 0, 24, 24},
		{48000, 1000, 0, 48, 48},
		{48000, 1000, 960, 48, 960},
		{48000, 2000, 16, 24, 32},
		{44100, 1000, 1, 44, 44},
		{44100, 250, 64, 176, 192},
	}

	for _, tt := range tests {
		cfg := DefaultConfig()
		cfg.SampleRate = tt.rate
		cfg.Resolution = tt.resolution
		cfg.Alignment = tt.alignment
		if got := cfg.WindowSize(); got != tt.wantWindow {
			t.Errorf("WindowSize(%d/%d) = %d, want %d", tt.rate, tt.resolution, got, tt.wantWindow)
		}
		if got := cfg.BufferFrames(); got != tt.wantBuffer {
			t.Errorf("BufferFrames(%d/%d, round %d) = %d, want %d", tt.rate, tt.resolution, tt.alignment, got, tt.wantBuffer)
		}
	}
}

func TestLoudChannelCountdownPolicy(t *testing.T) {
	e := newTestEngine(t, newTestConfig(10, 1, PolicyCountdown, "kick", "snare"))
	if e.WindowSize() != 24 {
		t.Fatalf("WindowSize = %d, want 24", e.WindowSize())
	}

	// First window: exactly one event, on the 24th frame
	events := e.ProcessBuffer(stereoFrames(23, 127, 0))
	if len(events) != 0 {
		t.Fatalf("got %d events before the window boundary", len(events))
	}
	events = e.ProcessBuffer(stereoFrames(1, 127, 0))
	if len(events) != 1 {
		t.Fatalf("got %d events at the first boundary, want 1", len(events))
	}
	if events[0].Message != "kick" || events[0].Channel != 0 || events[0].Window != 1 {
		t.Errorf("unexpected event %+v", events[0])
	}

	// Second window: muted
	if events = e.ProcessBuffer(stereoFrames(24, 127, 0)); len(events) != 0 {
		t.Fatalf("fired while muted: %+v", events)
	}

	// Mute elapsed and the level is still above cutoff: fires again
	events = e.ProcessBuffer(stereoFrames(24*5, 127, 0))
	if got, want := eventWindows(events, 0), []int{3, 5, 7}; !equalInts(got, want) {
		t.Errorf("fired at windows %v, want %v", got, want)
	}
	if got := eventWindows(events, 1); len(got) != 0 {
		t.Errorf("silent channel fired at windows %v", got)
	}
}

func TestLoudChannelHysteresisPolicy(t *testing.T) {
	e := newTestEngine(t, newTestConfig(10, 1, PolicyHysteresis, "kick", "snare"))

	events := e.ProcessBuffer(stereoFrames(24*7, 127, 0))
	// Masked levels are 228, 115, 188, 50, 92, 106, 106: never below 10
	if got, want := eventWindows(events, 0), []int{1}; !equalInts(got, want) {
		t.Errorf("fired at windows %v, want %v", got, want)
	}
}

func TestMaskedLevelGatesFiring(t *testing.T) {
	e := newTestEngine(t, newTestConfig(100, 0, PolicyCountdown, "kick", "-"))

	events := e.ProcessBuffer(stereoFrames(24*7, 127, 127))
	// The raw average climbs past 255 and its low byte wraps below the cutoff
	if got, want := eventWindows(events, 0), []int{1, 2, 3, 6, 7}; !equalInts(got, want) {
		t.Errorf("fired at windows %v, want %v", got, want)
	}
	if got := e.Tracker(0).average; got != 3946 {
		t.Errorf("running average = %d, want 3946", got)
	}
}

func TestMutedChannelNeverFires(t *testing.T) {
	e := newTestEngine(t, newTestConfig(0, 0, PolicyCountdown, "-", "-hat"))

	for i := 0; i < 50; i++ {
		if events := e.ProcessBuffer(stereoFrames(24, 127, -128)); len(events) != 0 {
			t.Fatalf("muted channels fired: %+v", events)
		}
	}
	if e.Windows() != 50 {
		t.Errorf("Windows = %d, want 50", e.Windows())
	}
}

func TestSilenceNeverFires(t *testing.T) {
	for _, cutoff := range []int{1, 10, 128, 255} {
		e := newTestEngine(t, newTestConfig(cutoff, 0, PolicyCountdown, "kick", "snare"))
		if events := e.ProcessBuffer(make([]int8, 2*24*100)); len(events) != 0 {
			t.Errorf("cutoff %d: silence fired %d events", cutoff, len(events))
		}
	}
}

func TestCutoffZeroAlwaysArmed(t *testing.T) {
	e := newTestEngine(t, newTestConfig(0, 0, PolicyCountdown, "kick", "snare"))

	events := e.ProcessBuffer(make([]int8, 2*24*3))
	if len(events) != 6 {
		t.Fatalf("got %d events, want one per channel per window (6)", len(events))
	}
	// Channel order within each window
	for i, ev := range events {
		if ev.Channel != i%2 || ev.Window != uint64(i/2+1) {
			t.Errorf("event %d = channel %d window %d", i, ev.Channel, ev.Window)
		}
	}
}

func TestWindowsSpanBuffers(t *testing.T) {
	e := newTestEngine(t, newTestConfig(0, 0, PolicyCountdown, "kick", "-"))

	if events := e.ProcessBuffer(make([]int8, 2*10)); len(events) != 0 {
		t.Fatalf("short buffer fired %d events", len(events))
	}
	if got := e.UntilEvaluation(); got != 14 {
		t.Fatalf("UntilEvaluation = %d, want 14", got)
	}
	events := e.ProcessBuffer(make([]int8, 2*14))
	if len(events) != 1 {
		t.Fatalf("got %d events when the window completed, want 1", len(events))
	}
	if got := e.UntilEvaluation(); got != 24 {
		t.Errorf("UntilEvaluation after boundary = %d, want 24", got)
	}
}

func TestChunkingDoesNotChangeEvents(t *testing.T) {
	input := stereoFrames(24*40, 127, 100)

	whole := newTestEngine(t, newTestConfig(60, 2, PolicyCountdown, "kick", "snare"))
	want := whole.ProcessBuffer(input)
	if len(want) == 0 {
		t.Fatal("reference run produced no events")
	}

	for _, frames := range []int{1, 5, 7, 23, 25, 100} {
		chunked := newTestEngine(t, newTestConfig(60, 2, PolicyCountdown, "kick", "snare"))
		var got []FireEvent
		for off := 0; off < len(input); off += frames * 2 {
			end := min(off+frames*2, len(input))
			got = append(got, chunked.ProcessBuffer(input[off:end])...)
		}
		if len(got) != len(want) {
			t.Errorf("chunks of %d frames: %d events, want %d", frames, len(got), len(want))
			continue
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("chunks of %d frames: event %d = %+v, want %+v", frames, i, got[i], want[i])
				break
			}
		}
	}
}

func TestPartialFrameIgnored(t *testing.T) {
	e := newTestEngine(t, newTestConfig(0, 0, PolicyCountdown, "kick", "snare"))
	e.ProcessBuffer(make([]int8, 2*5+1))
	if got := e.UntilEvaluation(); got != 19 {
		t.Errorf("UntilEvaluation = %d, want 19", got)
	}
}

func TestPerChannelCutoffs(t *testing.T) {
	cfg := newTestConfig(0, 0, PolicyCountdown, "kick", "snare")
	cfg.Resolution = 48000 // one frame per window
	cfg.Cutoffs = []int{90, 200}
	e := newTestEngine(t, cfg)

	events := e.ProcessBuffer([]int8{50, 50}) // both channels at level 95
	if len(events) != 1 || events[0].Channel != 0 {
		t.Fatalf("events = %+v, want only channel 0", events)
	}
	events = e.ProcessBuffer([]int8{60, 60}) // both at 197
	if len(events) != 1 || events[0].Channel != 0 {
		t.Fatalf("events = %+v, want only channel 0", events)
	}
	if e.Tracker(1).Cutoff() != 200 {
		t.Errorf("channel 1 cutoff = %d, want 200", e.Tracker(1).Cutoff())
	}
}

func TestGeneralisesPastStereo(t *testing.T) {
	cfg := newTestConfig(0, 0, PolicyCountdown, "a", "-", "c", "d")
	cfg.Resolution = 48000
	e := newTestEngine(t, cfg)

	events := e.ProcessBuffer(make([]int8, 4*2))
	if len(events) != 6 {
		t.Fatalf("got %d events, want 6", len(events))
	}
	for _, ev := range events {
		if ev.Channel == 1 {
			t.Errorf("disabled channel fired: %+v", ev)
		}
	}
}

func TestLevels(t *testing.T) {
	cfg := newTestConfig(0, 0, PolicyCountdown, "a", "b")
	cfg.Resolution = 48000
	e := newTestEngine(t, cfg)
	e.ProcessBuffer([]int8{100, 40})

	levels := e.Levels(nil)
	if len(levels) != 2 || levels[0] != 245 || levels[1] != 39 {
		t.Errorf("Levels = %v, want [245 39]", levels)
	}
}

func TestNewEngineValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"cutoff_negative", func(c *Config) { c.Cutoff = -1 }, ErrCutoffRange},
		{"cutoff_too_large", func(c *Config) { c.Cutoff = 256 }, ErrCutoffRange},
		{"no_channels", func(c *Config) { c.Channels = 0 }, ErrChannelCount},
		{"message_mismatch", func(c *Config) { c.Messages = []string{"a"} }, ErrMessageCount},
		{"cutoffs_mismatch", func(c *Config) { c.Cutoffs = []int{1, 2, 3} }, ErrCutoffOverrides},
		{"cutoffs_range", func(c *Config) { c.Cutoffs = []int{1, 300} }, ErrCutoffRange},
		{"mute_negative", func(c *Config) { c.MuteLength = -1 }, ErrMuteLength},
		{"rate_zero", func(c *Config) { c.SampleRate = 0 }, ErrSampleRate},
		{"resolution_zero", func(c *Config) { c.Resolution = 0 }, ErrResolution},
		{"resolution_above_rate", func(c *Config) { c.Resolution = 96000 }, ErrResolution},
		{"unknown_policy", func(c *Config) { c.Policy = Policy(7) }, ErrUnknownPolicy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newTestConfig(10, 1, PolicyCountdown, "kick", "snare")
			tt.modify(cfg)
			_, err := NewEngine(cfg)
			if !errors.Is(err, tt.want) {
				t.Errorf("NewEngine error = %v, want %v", err, tt.want)
			}
		})
	}

	t.Run("valid_bounds", func(t *testing.T) {
		for _, cutoff := range []int{0, 255} {
			if _, err := NewEngine(newTestConfig(cutoff, 0, PolicyCountdown, "a", "b")); err != nil {
				t.Errorf("cutoff %d: unexpected error %v", cutoff, err)
			}
		}
	})
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", PolicyCountdown, false},
		{"countdown", PolicyCountdown, false},
		{"Hysteresis", PolicyHysteresis, false},
		{"edge", PolicyHysteresis, false},
		{"sometimes", 0, true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePolicy(%q) = %v, want %v", tt.in, got, tt.want)
		}
		if !tt.wantErr && got.String() == "" {
			t.Errorf("Policy(%d).String() is empty", got)
		}
	}
}

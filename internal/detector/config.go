package detector

import (
	"fmt"
	"strings"
)

// Defaults mirror the settings the detector was tuned with: 8-bit signed
// stereo at 48kHz evaluated 1000 times per second.
const (
	DefaultSampleRate = 48000
	DefaultChannels   = 2
	DefaultResolution = 1000 // sampling windows per second
	DefaultMuteLength = 0
)

// Policy selects how a channel re-arms after firing.
type Policy int

const (
	// PolicyCountdown re-arms once the mute countdown has decayed, so a
	// sustained loud signal fires at a fixed minimum spacing.
	PolicyCountdown Policy = iota
	// PolicyHysteresis fires once per continuous loud event and re-arms only
	// after the level first drops below the cutoff.
	PolicyHysteresis
)

// String returns the flag spelling of the policy.
func (p Policy) String() string {
	switch p {
	case PolicyCountdown:
		return "countdown"
	case PolicyHysteresis:
		return "hysteresis"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy parses "countdown" or "hysteresis".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "countdown":
		return PolicyCountdown, nil
	case "hysteresis", "edge":
		return PolicyHysteresis, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

// Config holds everything needed to build an Engine. It is read once at
// startup and never changed afterwards.
type Config struct {
	// Stream parameters negotiated with the audio backend
	SampleRate int // Hz
	Channels   int // interleaved channels per frame
	Alignment  int // backend buffer granularity in frames (0 or 1 = none)

	// Detection parameters
	Resolution int      // evaluation windows per second
	Cutoff     int      // [0,255], compared against the masked average
	Cutoffs    []int    // optional per-channel override of Cutoff
	MuteLength int      // windows a channel stays silent after firing
	Messages   []string // one per channel; MuteSentinel prefix disables it
	Policy     Policy
}

// DefaultConfig returns a stereo configuration with both channels disabled.
// Callers fill in Cutoff and Messages.
func DefaultConfig() *Config {
	return &Config{
		SampleRate: DefaultSampleRate,
		Channels:   DefaultChannels,
		Resolution: DefaultResolution,
		MuteLength: DefaultMuteLength,
		Messages:   []string{MuteSentinel, MuteSentinel},
		Policy:     PolicyCountdown,
	}
}

// Validate checks the configuration. Any error is fatal: nothing is retried.
func (c *Config) Validate() error {
	if c.Cutoff < 0 || c.Cutoff > 255 {
		return fmt.Errorf("%w: got %d", ErrCutoffRange, c.Cutoff)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("%w: got %d", ErrChannelCount, c.Channels)
	}
	if len(c.Messages) != c.Channels {
		return fmt.Errorf("%w: %d channels, %d messages", ErrMessageCount, c.Channels, len(c.Messages))
	}
	if len(c.Cutoffs) > 0 {
		if len(c.Cutoffs) != c.Channels {
			return fmt.Errorf("%w: %d channels, %d cutoffs", ErrCutoffOverrides, c.Channels, len(c.Cutoffs))
		}
		for _, v := range c.Cutoffs {
			if v < 0 || v > 255 {
				return fmt.Errorf("%w: got %d", ErrCutoffRange, v)
			}
		}
	}
	if c.MuteLength < 0 {
		return fmt.Errorf("%w: got %d", ErrMuteLength, c.MuteLength)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: got %d", ErrSampleRate, c.SampleRate)
	}
	if c.Resolution <= 0 || c.Resolution > c.SampleRate {
		return fmt.Errorf("%w: got %d at %d Hz", ErrResolution, c.Resolution, c.SampleRate)
	}
	if c.Policy != PolicyCountdown && c.Policy != PolicyHysteresis {
		return fmt.Errorf("%w: %d", ErrUnknownPolicy, int(c.Policy))
	}
	return nil
}

// WindowSize returns the number of frames per evaluation window. The division
// is exact integer arithmetic so the cadence never depends on how the device
// chunks its buffers.
func (c *Config) WindowSize() int {
	return c.SampleRate / c.Resolution
}

// BufferFrames returns the read buffer size in frames: one window rounded up
// to the backend's alignment.
func (c *Config) BufferFrames() int {
	return alignUp(c.WindowSize(), c.Alignment)
}

// ChannelCutoff returns the cutoff in effect for channel ch.
func (c *Config) ChannelCutoff(ch int) int {
	if len(c.Cutoffs) == c.Channels && ch >= 0 && ch < len(c.Cutoffs) {
		return c.Cutoffs[ch]
	}
	return c.Cutoff
}

func alignUp(n, round int) int {
	if round <= 1 {
		return n
	}
	n += round - 1
	return n - n%round
}

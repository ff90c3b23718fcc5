// Package detector turns interleaved 8-bit audio into discrete trigger events.
//
// Each channel keeps a running average of peak-emphasized sample magnitudes.
// Once per sampling window every channel compares the low byte of its average
// against a cutoff and fires when it is reached, then stays muted for a number
// of windows.
package detector

import "strings"

// MuteSentinel disables a channel when it prefixes the channel's message.
const MuteSentinel = "-"

// EmphasisShift scales the fourth power of a sample magnitude back down.
// 128^4 is 2^28, so the product never overflows 32 bits.
const EmphasisShift = 16

// Emphasize raises the magnitude of a sample to the fourth power and shifts it
// down by EmphasisShift. Loud transients dominate the average while hum and
// background noise all but vanish: anything below 16 maps to zero.
func Emphasize(sample int8) uint32 {
	n := uint32(sample)
	if sample < 0 {
		n = uint32(-int32(sample))
	}
	n = n * n * n * n
	return n >> EmphasisShift
}

// Average folds n into the running average a over w samples. It is a single
// pole low-pass filter in fixed point; uint32 arithmetic wraps on overflow.
func Average(a, n, w uint32) uint32 {
	return (a*(w-1) + n) / w
}

// FireEvent is produced when a channel's level reaches its cutoff while it is
// not muted.
type FireEvent struct {
	Channel int    // channel index, 0 = left
	Message string // configured message for the channel
	Level   uint8  // average & 0xFF at the time of firing
	Average uint32 // raw running average
	Window  uint64 // 1-based evaluation sequence number
}

// Tracker holds the detection state of one channel.
type Tracker struct {
	cutoff     uint8  // RO: pulse detection cutoff
	window     uint32 // RO: samples per window on this channel
	muteLength int    // RO: windows to stay muted after firing
	policy     Policy // RO
	message    string // RO: emitted on fire
	disabled   bool   // RO: message carries the mute sentinel

	average       uint32 // running average of emphasized amplitudes
	muteCountdown int    // windows left before firing is allowed again
	pulseActive   bool   // signal has stayed above cutoff since the last fire
}

// NewTracker creates a tracker. window is clamped to at least one sample.
func NewTracker(cutoff uint8, window uint32, muteLength int, policy Policy, message string) *Tracker {
	if window == 0 {
		window = 1
	}
	if muteLength < 0 {
		muteLength = 0
	}
	return &Tracker{
		cutoff:     cutoff,
		window:     window,
		muteLength: muteLength,
		policy:     policy,
		message:    message,
		disabled:   IsMuted(message),
	}
}

// IsMuted reports whether message disables its channel.
func IsMuted(message string) bool {
	return strings.HasPrefix(message, MuteSentinel)
}

// Ingest folds one sample into the running average.
func (t *Tracker) Ingest(sample int8) {
	if t.disabled {
		return
	}
	t.average = Average(t.average, Emphasize(sample), t.window)
}

// Evaluate runs the window-boundary check. It must be called exactly once per
// window. channel and seq are copied into the returned event.
func (t *Tracker) Evaluate(channel int, seq uint64) (FireEvent, bool) {
	if t.disabled {
		return FireEvent{}, false
	}
	level := t.Level()
	above := level >= t.cutoff

	// A dip below the cutoff ends the pulse even while muted
	if t.policy == PolicyHysteresis && !above {
		t.pulseActive = false
	}
	if t.muteCountdown > 0 {
		t.muteCountdown--
		return FireEvent{}, false
	}

	if t.policy == PolicyHysteresis {
		if t.pulseActive || !above {
			return FireEvent{}, false
		}
		t.pulseActive = true
	} else if !above {
		return FireEvent{}, false
	}

	t.muteCountdown = t.muteLength
	return FireEvent{
		Channel: channel,
		Message: t.message,
		Level:   level,
		Average: t.average,
		Window:  seq,
	}, true
}

// Level returns the running average masked to its low byte, the value the
// cutoff is compared against.
func (t *Tracker) Level() uint8 {
	return uint8(t.average & 0xFF)
}

// Cutoff returns the configured cutoff.
func (t *Tracker) Cutoff() uint8 { return t.cutoff }

// Message returns the configured message.
func (t *Tracker) Message() string { return t.message }

// Muted reports whether the channel is inside its mute countdown.
func (t *Tracker) Muted() bool { return t.muteCountdown > 0 }


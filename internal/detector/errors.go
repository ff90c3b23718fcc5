package detector

import "errors"

// Configuration errors returned by Config.Validate and NewEngine.
var (
	ErrCutoffRange     = errors.New("cutoff must be [0,255]")
	ErrMuteLength      = errors.New("mute length must not be negative")
	ErrChannelCount    = errors.New("channel count must be positive")
	ErrMessageCount    = errors.New("one message is required per channel")
	ErrSampleRate      = errors.New("sample rate must be positive")
	ErrResolution      = errors.New("resolution must be in (0, sample rate]")
	ErrCutoffOverrides = errors.New("per-channel cutoffs must match channel count")
	ErrUnknownPolicy   = errors.New("unknown debounce policy")
)

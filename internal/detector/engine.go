package detector

// Engine drives a set of trackers across interleaved sample buffers and keeps
// every channel on one shared window cadence. It is owned by a single
// goroutine.
type Engine struct {
	trackers        []*Tracker
	windowSize      int    // RO: frames per evaluation window
	bufferFrames    int    // RO: suggested read size in frames
	untilEvaluation int    // frames left in the current window
	windows         uint64 // evaluations performed
}

// NewEngine validates cfg and builds one tracker per channel.
func NewEngine(cfg *Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	window := cfg.WindowSize()
	trackers := make([]*Tracker, cfg.Channels)
	for ch := range trackers {
		trackers[ch] = NewTracker(
			uint8(cfg.ChannelCutoff(ch)),
			uint32(window),
			cfg.MuteLength,
			cfg.Policy,
			cfg.Messages[ch],
		)
	}

	return &Engine{
		trackers:        trackers,
		windowSize:      window,
		bufferFrames:    cfg.BufferFrames(),
		untilEvaluation: window,
	}, nil
}

// ProcessBuffer consumes the whole frames in buf (channel-interleaved) and
// returns the events fired at every window boundary crossed, in order. A
// trailing partial frame is ignored. buf is not retained.
func (e *Engine) ProcessBuffer(buf []int8) []FireEvent {
	var events []FireEvent
	channels := len(e.trackers)
	frames := len(buf) / channels

	for f := 0; f < frames; f++ {
		frame := buf[f*channels : f*channels+channels]
		for ch, t := range e.trackers {
			t.Ingest(frame[ch])
		}

		e.untilEvaluation--
		if e.untilEvaluation == 0 {
			events = e.evaluate(events)
			e.untilEvaluation = e.windowSize
		}
	}

	return events
}

func (e *Engine) evaluate(events []FireEvent) []FireEvent {
	e.windows++
	for ch, t := range e.trackers {
		if ev, ok := t.Evaluate(ch, e.windows); ok {
			events = append(events, ev)
		}
	}
	return events
}

// Channels returns the number of channels per frame.
func (e *Engine) Channels() int { return len(e.trackers) }

// WindowSize returns the number of frames per evaluation window.
func (e *Engine) WindowSize() int { return e.windowSize }

// BufferFrames returns the aligned read buffer size in frames.
func (e *Engine) BufferFrames() int { return e.bufferFrames }

// UntilEvaluation returns the frames left before the next window boundary.
func (e *Engine) UntilEvaluation() int { return e.untilEvaluation }

// Windows returns the number of evaluations performed so far.
func (e *Engine) Windows() uint64 { return e.windows }

// Tracker returns the tracker for channel ch.
func (e *Engine) Tracker(ch int) *Tracker { return e.trackers[ch] }

// Levels writes each channel's masked level into dst, growing it if needed,
// and returns it.
func (e *Engine) Levels(dst []uint8) []uint8 {
	dst = dst[:0]
	for _, t := range e.trackers {
		dst = append(dst, t.Level())
	}
	return dst
}

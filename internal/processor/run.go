// Package processor runs the detection loop: read a buffer, process it, emit
// the events, repeat.
package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/linuxmatters/bang/internal/audio"
	"github.com/linuxmatters/bang/internal/detector"
)

// DefaultProgressInterval is how often progress snapshots are delivered
const DefaultProgressInterval = 50 * time.Millisecond

// ErrChannelMismatch is returned when the source and the engine disagree on
// the number of channels.
var ErrChannelMismatch = errors.New("source channel count does not match detector")

// EventSink receives the events produced by each processed buffer
type EventSink interface {
	Emit(events []detector.FireEvent) error
}

// dropCounter is implemented by live sources that discard data on overrun
type dropCounter interface {
	Dropped() uint64
}

// Snapshot is a progress update for monitors
type Snapshot struct {
	Levels  []uint8  // masked level per channel at the time of the snapshot
	Fired   []bool   // channels that fired since the previous snapshot
	Muted   []bool   // channels inside their mute countdown
	Fires   []uint64 // events per channel so far
	Frames  uint64   // frames processed so far
	Windows uint64   // evaluations so far
	Events  uint64   // events emitted so far
	Dropped uint64   // device periods lost to overruns
	Elapsed time.Duration
}

// Options tunes Run. The zero value is usable.
type Options struct {
	Logger           *zerolog.Logger
	Progress         func(Snapshot) // called from the loop goroutine; keep it cheap
	ProgressInterval time.Duration
}

// Stats summarises a finished run
type Stats struct {
	Frames     uint64
	Windows    uint64
	Events     uint64
	Reads      uint64
	Dropped    uint64
	SinkErrors uint64
	Elapsed    time.Duration
}

// Run pulls buffers from src until it is exhausted or ctx is cancelled,
// feeding every buffer through engine and every resulting event batch to sink.
// Cancelling ctx closes src so a blocked Read returns.
//
// The engine is only ever touched from the calling goroutine.
func Run(ctx context.Context, src audio.Source, engine *detector.Engine, sink EventSink, opts Options) (*Stats, error) {
	channels := engine.Channels()
	if src.Channels() != channels {
		return nil, fmt.Errorf("%w: source has %d, detector expects %d", ErrChannelMismatch, src.Channels(), channels)
	}

	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("component", "processor").Logger()
	}
	interval := opts.ProgressInterval
	if interval <= 0 {
		interval = DefaultProgressInterval
	}

	stop := context.AfterFunc(ctx, func() {
		_ = src.Close()
	})
	defer stop()

	buf := make([]int8, engine.BufferFrames()*channels)
	stats := &Stats{}
	start := time.Now()
	lastProgress := start
	fired := make([]bool, channels)
	fires := make([]uint64, channels)
	var levels []uint8
	var carry int // samples of an incomplete frame kept at the start of buf

	log.Info().
		Int("sample_rate", src.SampleRate()).
		Int("channels", channels).
		Int("window_frames", engine.WindowSize()).
		Int("buffer_frames", engine.BufferFrames()).
		Msg("detector started")

	for {
		if ctx.Err() != nil {
			break
		}

		n, err := src.Read(buf[carry:])
		if n > 0 {
			stats.Reads++
			avail := carry + n
			whole := avail - avail%channels

			events := engine.ProcessBuffer(buf[:whole])
			stats.Frames += uint64(whole / channels)

			carry = copy(buf, buf[whole:avail])

			if len(events) > 0 {
				stats.Events += uint64(len(events))
				for _, ev := range events {
					fired[ev.Channel] = true
					fires[ev.Channel]++
				}
				if sink != nil {
					if serr := sink.Emit(events); serr != nil {
						stats.SinkErrors++
						log.Warn().Err(serr).Int("events", len(events)).Msg("emit failed")
					}
				}
			}
		}

		if dc, ok := src.(dropCounter); ok {
			if d := dc.Dropped(); d != stats.Dropped {
				log.Warn().Uint64("dropped_total", d).Msg("capture overrun")
				stats.Dropped = d
			}
		}

		if opts.Progress != nil {
			now := time.Now()
			if now.Sub(lastProgress) >= interval || err != nil {
				levels = engine.Levels(levels)
				opts.Progress(Snapshot{
					Levels:  append([]uint8(nil), levels...),
					Fired:   append([]bool(nil), fired...),
					Muted:   mutedChannels(engine),
					Fires:   append([]uint64(nil), fires...),
					Frames:  stats.Frames,
					Windows: engine.Windows(),
					Events:  stats.Events,
					Dropped: stats.Dropped,
					Elapsed: now.Sub(start),
				})
				clear(fired)
				lastProgress = now
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				break
			}
			stats.Windows = engine.Windows()
			stats.Elapsed = time.Since(start)
			return stats, fmt.Errorf("failed to read audio: %w", err)
		}
	}

	stats.Windows = engine.Windows()
	stats.Elapsed = time.Since(start)
	log.Info().
		Uint64("frames", stats.Frames).
		Uint64("windows", stats.Windows).
		Uint64("events", stats.Events).
		Uint64("dropped", stats.Dropped).
		Dur("elapsed", stats.Elapsed).
		Int("pending_frames", engine.UntilEvaluation()).
		Msg("detector stopped")
	return stats, nil
}

func mutedChannels(engine *detector.Engine) []bool {
	muted := make([]bool, engine.Channels())
	for ch := range muted {
		muted[ch] = engine.Tracker(ch).Muted()
	}
	return muted
}

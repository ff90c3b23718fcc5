// Package analyzer measures an input before a performance so a cutoff can be
// chosen from data instead of by trial and error.
//
// The input runs through the same tracker arithmetic the detector uses, with
// the cutoff at zero so every window is observed, while the raw samples are
// inspected for clipping and mains hum on the way past.
package analyzer

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/cmplx"
	"slices"
	"time"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
	"github.com/rs/zerolog"

	"github.com/linuxmatters/bang/internal/audio"
	"github.com/linuxmatters/bang/internal/detector"
	"github.com/linuxmatters/bang/internal/mains"
	"github.com/linuxmatters/bang/internal/processor"
)

const (
	// DefaultFFTSize is the number of samples per channel used for hum
	// detection, about 170ms at 48kHz.
	DefaultFFTSize = 8192

	// minHumSamples is the shortest excerpt hum is measured on
	minHumSamples = 1024

	// HumThresholdDB is how far a mains harmonic must rise above the median
	// spectrum before it is reported as hum.
	HumThresholdDB = 20.0

	// DefaultMaxFireRate is the share of background windows a suggested
	// cutoff may still fire on.
	DefaultMaxFireRate = 0.01
)

// DefaultCandidates are the cutoffs tabulated in calibration reports
var DefaultCandidates = []uint8{16, 32, 64, 96, 128, 160, 192, 224}

// Options tunes Analyze. The zero value analyses the whole input with hum
// detection disabled.
type Options struct {
	Mains     mains.Hz // 0 disables hum detection
	FFTSize   int
	MaxFrames uint64 // stop after this many frames, 0 = end of input
	Logger    *zerolog.Logger
}

// ChannelStats is what was observed on one channel
type ChannelStats struct {
	Channel   int
	Message   string
	Samples   uint64
	Peak      int    // largest magnitude seen, 0 to 128
	Clipped   uint64 // samples at either end of the range
	Windows   uint64
	MinLevel  uint8
	MaxLevel  uint8
	MeanLevel float64
	Wrapped   uint64 // windows whose average exceeded 255 before masking
	Histogram [256]uint64
	HumDB     float64 // NaN when not measured
	HumHz     float64
}

// Report summarises an analysis run
type Report struct {
	SampleRate int
	WindowSize int
	Frames     uint64
	Duration   time.Duration
	Mains      mains.Hz
	Channels   []ChannelStats
}

// FireRate returns the share of windows whose masked level was at or above
// cutoff, ignoring any mute.
func (c *ChannelStats) FireRate(cutoff uint8) float64 {
	if c.Windows == 0 {
		return 0
	}
	var n uint64
	for lvl := int(cutoff); lvl < len(c.Histogram); lvl++ {
		n += c.Histogram[lvl]
	}
	return float64(n) / float64(c.Windows)
}

// SuggestCutoff returns the lowest cutoff that fires on at most maxRate of
// the analysed windows. With nothing analysed it returns 255.
func (c *ChannelStats) SuggestCutoff(maxRate float64) uint8 {
	if c.Windows == 0 {
		return 255
	}
	for cutoff := 1; cutoff < 255; cutoff++ {
		if c.FireRate(uint8(cutoff)) <= maxRate {
			return uint8(cutoff)
		}
	}
	return 255
}

// HumDetected reports whether mains hum stood out of the spectrum
func (c *ChannelStats) HumDetected() bool {
	return !math.IsNaN(c.HumDB) && c.HumDB >= HumThresholdDB
}

// PeakDBFS returns the peak relative to full scale
func (c *ChannelStats) PeakDBFS() float64 {
	if c.Peak == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(float64(c.Peak)/128)
}

// Silent reports whether the channel carried no signal at all
func (c *ChannelStats) Silent() bool {
	return c.Samples > 0 && c.Peak == 0
}

// Analyze reads src until it ends, ctx is cancelled or opts.MaxFrames have
// been seen. cfg supplies the resolution and messages; its cutoff, mute and
// policy settings are not used.
func Analyze(ctx context.Context, src audio.Source, cfg *detector.Config, opts Options) (*Report, error) {
	channels := src.Channels()
	fftSize := opts.FFTSize
	if fftSize <= 0 {
		fftSize = DefaultFFTSize
	}

	observe := *cfg
	observe.SampleRate = src.SampleRate()
	observe.Channels = channels
	observe.Cutoff = 0
	observe.Cutoffs = nil
	observe.MuteLength = 0
	observe.Policy = detector.PolicyCountdown
	observe.Messages = slices.Repeat([]string{"observe"}, channels)

	engine, err := detector.NewEngine(&observe)
	if err != nil {
		return nil, fmt.Errorf("invalid analysis settings: %w", err)
	}

	a := &analysis{
		stats:   make([]ChannelStats, channels),
		sums:    make([]uint64, channels),
		excerpt: make([][]float64, channels),
	}
	for ch := range a.stats {
		a.stats[ch].Channel = ch
		a.stats[ch].HumDB = math.NaN()
		if ch < len(cfg.Messages) {
			a.stats[ch].Message = cfg.Messages[ch]
		}
		a.excerpt[ch] = make([]float64, 0, fftSize)
	}

	t := &tap{
		Source:    src,
		analysis:  a,
		channels:  channels,
		fftSize:   fftSize,
		remaining: opts.MaxFrames * uint64(channels),
		limited:   opts.MaxFrames > 0,
	}

	runStats, err := processor.Run(ctx, t, engine, a, processor.Options{Logger: opts.Logger})
	if err != nil {
		return nil, err
	}

	report := &Report{
		SampleRate: observe.SampleRate,
		WindowSize: engine.WindowSize(),
		Frames:     runStats.Frames,
		Duration:   time.Duration(float64(runStats.Frames) / float64(observe.SampleRate) * float64(time.Second)),
		Mains:      opts.Mains,
		Channels:   a.stats,
	}
	for ch := range a.stats {
		st := &a.stats[ch]
		if st.Windows > 0 {
			st.MeanLevel = float64(a.sums[ch]) / float64(st.Windows)
		}
		if opts.Mains != 0 {
			st.HumDB, st.HumHz = humLevel(a.excerpt[ch], observe.SampleRate, opts.Mains)
		}
	}
	return report, nil
}

// analysis collects the per-window levels as the sink of the detection loop
type analysis struct {
	stats   []ChannelStats
	sums    []uint64
	excerpt [][]float64
}

func (a *analysis) Emit(events []detector.FireEvent) error {
	for _, ev := range events {
		st := &a.stats[ev.Channel]
		if st.Windows == 0 || ev.Level < st.MinLevel {
			st.MinLevel = ev.Level
		}
		if ev.Level > st.MaxLevel {
			st.MaxLevel = ev.Level
		}
		if ev.Average > 0xFF {
			st.Wrapped++
		}
		st.Histogram[ev.Level]++
		st.Windows++
		a.sums[ev.Channel] += uint64(ev.Level)
	}
	return nil
}

// tap inspects raw samples on their way from the source to the engine
type tap struct {
	audio.Source
	*analysis

	channels  int
	next      int // channel of the next sample
	fftSize   int
	remaining uint64
	limited   bool
}

func (t *tap) Read(dst []int8) (int, error) {
	if t.limited {
		if t.remaining == 0 {
			return 0, io.EOF
		}
		if uint64(len(dst)) > t.remaining {
			dst = dst[:t.remaining]
		}
	}

	n, err := t.Source.Read(dst)
	for _, s := range dst[:n] {
		st := &t.stats[t.next]
		mag := int(s)
		if mag < 0 {
			mag = -mag
		}
		if mag > st.Peak {
			st.Peak = mag
		}
		if s == math.MaxInt8 || s == math.MinInt8 {
			st.Clipped++
		}
		st.Samples++
		if len(t.excerpt[t.next]) < t.fftSize {
			t.excerpt[t.next] = append(t.excerpt[t.next], float64(s)/128)
		}
		t.next = (t.next + 1) % t.channels
	}
	if t.limited {
		t.remaining -= uint64(n)
	}
	return n, err
}

// humLevel returns how far the strongest mains harmonic rises above the
// median magnitude of the spectrum, in dB, and which harmonic it was.
func humLevel(samples []float64, sampleRate int, hz mains.Hz) (float64, float64) {
	n := len(samples)
	if n < minHumSamples || sampleRate <= 0 {
		return math.NaN(), 0
	}

	var mean float64
	for _, v := range samples {
		mean += v
	}
	mean /= float64(n)

	win := window.Hann(n)
	windowed := make([]float64, n)
	for i, v := range samples {
		windowed[i] = (v - mean) * win[i]
	}
	spectrum := fft.FFTReal(windowed)

	half := n / 2
	mags := make([]float64, half)
	for i := 1; i < half; i++ {
		mags[i] = cmplx.Abs(spectrum[i])
	}

	sorted := slices.Clone(mags[1:])
	slices.Sort(sorted)
	median := sorted[len(sorted)/2]
	if median == 0 && sorted[len(sorted)-1] == 0 {
		return math.NaN(), 0 // digital silence
	}
	floor := math.Max(median, 1e-9)

	binHz := float64(sampleRate) / float64(n)
	var best, bestHz float64
	for _, f := range hz.Harmonics(float64(sampleRate) / 2) {
		bin := int(math.Round(f / binHz))
		for b := bin - 1; b <= bin+1; b++ {
			if b >= 1 && b < half && mags[b] > best {
				best = mags[b]
				bestHz = f
			}
		}
	}
	if best == 0 {
		return math.Inf(-1), 0
	}
	return 20 * math.Log10(best/floor), bestHz
}

package processor

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// toneBurst is a sine tone on one channel for part of the file
type toneBurst struct {
	Channel  int
	Start    float64 // seconds
	Duration float64 // seconds
	Freq     float64 // Hz
	Level    float64 // dBFS, e.g. -6.0
}

// TestAudioOptions configures the synthetic audio to generate
type TestAudioOptions struct {
	DurationSecs float64 // Total duration in seconds
	SampleRate   int     // Sample rate (default: 48000)
	Channels     int     // Interleaved channels (default: 2)
	NoiseLevel   float64 // White noise level in dBFS on every channel (0 = no noise)
	Bursts       []toneBurst
}

// generateTestAudio writes a synthetic 16-bit WAV file into the test's temp
// directory and returns its path.
func generateTestAudio(t *testing.T, opts TestAudioOptions) string {
	t.Helper()

	if opts.SampleRate == 0 {
		opts.SampleRate = 48000
	}
	if opts.Channels == 0 {
		opts.Channels = 2
	}
	if opts.DurationSecs == 0 {
		opts.DurationSecs = 1.0
	}

	frames := int(opts.DurationSecs * float64(opts.SampleRate))
	mix := make([]float64, frames*opts.Channels)

	for _, b := range opts.Bursts {
		amp := math.Pow(10.0, b.Level/20.0)
		start := int(b.Start * float64(opts.SampleRate))
		end := min(start+int(b.Duration*float64(opts.SampleRate)), frames)
		for i := start; i < end; i++ {
			at := float64(i) / float64(opts.SampleRate)
			mix[i*opts.Channels+b.Channel] += amp * math.Sin(2.0*math.Pi*b.Freq*at)
		}
	}

	if opts.NoiseLevel < 0 {
		// Deterministic LCG noise (Numerical Recipes constants)
		amp := math.Pow(10.0, opts.NoiseLevel/20.0)
		state := uint32(12345)
		for i := range mix {
			state = state*1664525 + 1013904223
			mix[i] += amp * ((float64(state)/float64(math.MaxUint32))*2.0 - 1.0)
		}
	}

	samples := make([]int16, len(mix))
	for i, v := range mix {
		samples[i] = int16(max(-1.0, min(1.0, v)) * math.MaxInt16)
	}

	path := filepath.Join(t.TempDir(), "test.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create test audio: %v", err)
	}
	if err := writeWAV(f, samples, opts.SampleRate, opts.Channels); err != nil {
		f.Close()
		t.Fatalf("failed to write WAV file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("failed to close test audio: %v", err)
	}
	return path
}

// writeWAV writes interleaved 16-bit PCM with a canonical 44-byte header
func writeWAV(f *os.File, samples []int16, sampleRate, channels int) error {
	const bitsPerSample = 16

	blockAlign := channels * bitsPerSample / 8
	dataSize := len(samples) * 2

	header := []any{
		[4]byte{'R', 'I', 'F', 'F'},
		uint32(36 + dataSize),
		[4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '},
		uint32(16), // fmt chunk size
		uint16(1),  // PCM
		uint16(channels),
		uint32(sampleRate),
		uint32(sampleRate * blockAlign),
		uint16(blockAlign),
		uint16(bitsPerSample),
		[4]byte{'d', 'a', 't', 'a'},
		uint32(dataSize),
	}
	for _, v := range header {
		if err := binary.Write(f, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return binary.Write(f, binary.LittleEndian, samples)
}

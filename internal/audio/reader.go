package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// Reader decodes an audio file into interleaved signed 8-bit samples
type Reader struct {
	file   *os.File
	dec    sampleDecoder
	meta   Metadata
	closed atomic.Bool
}

// sampleDecoder is implemented once per container format
type sampleDecoder interface {
	read(dst []int8) (int, error)
}

// OpenAudioFile opens an audio file for reading, picking the decoder from the
// file extension.
func OpenAudioFile(filename string) (*Reader, *Metadata, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".wav", ".wave", ".aif", ".aiff", ".mp3", ".ogg", ".oga":
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	f, err := os.Open(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input file: %w", err)
	}

	var (
		dec  sampleDecoder
		meta Metadata
	)
	switch ext {
	case ".wav", ".wave":
		dec, meta, err = newWavDecoder(f)
	case ".aif", ".aiff":
		dec, meta, err = newAiffDecoder(f)
	case ".mp3":
		dec, meta, err = newMP3Decoder(f)
	default:
		dec, meta, err = newVorbisDecoder(f)
	}
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%s: %w", filename, err)
	}

	r := &Reader{file: f, dec: dec, meta: meta}
	return r, &r.meta, nil
}

// SampleRate implements Source
func (r *Reader) SampleRate() int { return r.meta.SampleRate }

// Channels implements Source
func (r *Reader) Channels() int { return r.meta.Channels }

// Metadata returns the file metadata
func (r *Reader) Metadata() Metadata { return r.meta }

// Read implements Source. It never blocks on anything but the file.
func (r *Reader) Read(dst []int8) (int, error) {
	if r.closed.Load() {
		return 0, ErrClosed
	}
	if len(dst) == 0 {
		return 0, nil
	}
	return r.dec.read(dst)
}

// Close releases all resources. It may be called from another goroutine to
// stop a pending Read.
func (r *Reader) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	return r.file.Close()
}

// =============================================================================
// WAV and AIFF (go-audio)
// =============================================================================

// WAV format tags
const (
	wavFormatPCM        = 1
	wavFormatIEEEFloat  = 3
	wavFormatExtensible = 0xFFFE
)

// pcmReader is the part of the go-audio wav and aiff decoders we use
type pcmReader interface {
	PCMBuffer(buf *goaudio.IntBuffer) (int, error)
}

type intDecoder struct {
	dec      pcmReader
	format   *goaudio.Format
	bitDepth int
	unsigned bool // 8-bit WAV stores unsigned samples
	float    bool // 32-bit IEEE float, delivered as raw bits
	buf      *goaudio.IntBuffer
}

func (d *intDecoder) read(dst []int8) (int, error) {
	if d.buf == nil || cap(d.buf.Data) < len(dst) {
		d.buf = &goaudio.IntBuffer{
			Data:           make([]int, len(dst)),
			Format:         d.format,
			SourceBitDepth: d.bitDepth,
		}
	}
	d.buf.Data = d.buf.Data[:len(dst)]

	n, err := d.dec.PCMBuffer(d.buf)
	if n == 0 {
		if err == nil || errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
		return 0, err
	}

	for i, v := range d.buf.Data[:n] {
		switch {
		case d.float:
			dst[i] = FloatToS8(math.Float32frombits(uint32(v)))
		case d.unsigned:
			dst[i] = U8ToS8(byte(v))
		default:
			dst[i] = IntToS8(v, d.bitDepth)
		}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		err = nil
	}
	return n, err
}

func newWavDecoder(rs io.ReadSeeker) (sampleDecoder, Metadata, error) {
	dec := wav.NewDecoder(rs)
	if !dec.IsValidFile() {
		return nil, Metadata{}, fmt.Errorf("%w: not a WAV file", ErrInvalidFile)
	}

	bitDepth := int(dec.BitDepth)
	float := false
	switch dec.WavAudioFormat {
	case wavFormatPCM, wavFormatExtensible:
		if err := checkBitDepth(bitDepth); err != nil {
			return nil, Metadata{}, err
		}
	case wavFormatIEEEFloat:
		if bitDepth != 32 {
			return nil, Metadata{}, fmt.Errorf("%w: %d-bit float", ErrUnsupportedBitDepth, bitDepth)
		}
		float = true
	default:
		return nil, Metadata{}, fmt.Errorf("%w: WAV format tag %#x", ErrUnsupportedFormat, dec.WavAudioFormat)
	}

	if err := dec.FwdToPCM(); err != nil {
		return nil, Metadata{}, fmt.Errorf("failed to find PCM data: %w", err)
	}

	meta := Metadata{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   bitDepth,
		Format:     "wav",
	}
	if frameBytes := meta.Channels * bitDepth / 8; frameBytes > 0 && meta.SampleRate > 0 {
		meta.Duration = float64(dec.PCMSize) / float64(frameBytes) / float64(meta.SampleRate)
	}

	return &intDecoder{
		dec:      dec,
		format:   dec.Format(),
		bitDepth: bitDepth,
		unsigned: bitDepth == 8 && !float,
		float:    float,
	}, meta, nil
}

func newAiffDecoder(rs io.ReadSeeker) (sampleDecoder, Metadata, error) {
	dec := aiff.NewDecoder(rs)
	if !dec.IsValidFile() {
		return nil, Metadata{}, fmt.Errorf("%w: not an AIFF file", ErrInvalidFile)
	}
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return nil, Metadata{}, fmt.Errorf("failed to read AIFF header: %w", err)
	}

	bitDepth := int(dec.BitDepth)
	if err := checkBitDepth(bitDepth); err != nil {
		return nil, Metadata{}, err
	}
	format := dec.Format()
	if format == nil {
		return nil, Metadata{}, fmt.Errorf("%w: missing AIFF format", ErrInvalidFile)
	}

	meta := Metadata{
		SampleRate: format.SampleRate,
		Channels:   format.NumChannels,
		BitDepth:   bitDepth,
		Format:     "aiff",
	}
	if meta.SampleRate > 0 {
		meta.Duration = float64(dec.NumSampleFrames) / float64(meta.SampleRate)
	}

	return &intDecoder{dec: dec, format: format, bitDepth: bitDepth}, meta, nil
}

func checkBitDepth(bitDepth int) error {
	switch bitDepth {
	case 8, 16, 24, 32:
		return nil
	}
	return fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)
}

// =============================================================================
// MP3 (go-mp3)
// =============================================================================

// mp3Reader is the part of gomp3.Decoder we use
type mp3Reader interface {
	Read([]byte) (int, error)
}

// mp3Decoder reads go-mp3 output: 16-bit little-endian stereo PCM
type mp3Decoder struct {
	dec     mp3Reader
	buf     []byte
	partial []byte // trailing odd byte from the previous read
}

func (d *mp3Decoder) read(dst []int8) (int, error) {
	need := len(dst) * 2
	if cap(d.buf) < need {
		d.buf = make([]byte, need)
	}
	d.buf = d.buf[:need]

	off := copy(d.buf, d.partial)
	d.partial = d.partial[:0]

	n, err := d.dec.Read(d.buf[off:])
	n += off
	samples := n / 2
	if n%2 == 1 {
		d.partial = append(d.partial, d.buf[n-1])
	}

	for i := 0; i < samples; i++ {
		dst[i] = S16LEToS8(d.buf[2*i : 2*i+2])
	}

	if samples == 0 && err == nil {
		return 0, nil
	}
	if samples > 0 && errors.Is(err, io.EOF) {
		err = nil
	}
	return samples, err
}

func newMP3Decoder(r io.Reader) (sampleDecoder, Metadata, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	meta := Metadata{
		SampleRate: dec.SampleRate(),
		Channels:   2, // go-mp3 always decodes to stereo
		BitDepth:   16,
		Format:     "mp3",
	}
	if length := dec.Length(); length > 0 && meta.SampleRate > 0 {
		// Length is in bytes of 16-bit stereo output
		meta.Duration = float64(length) / 4 / float64(meta.SampleRate)
	}

	return &mp3Decoder{dec: dec}, meta, nil
}

// =============================================================================
// Ogg Vorbis (oggvorbis)
// =============================================================================

// oggReader is the part of oggvorbis.Reader we use
type oggReader interface {
	Read([]float32) (int, error)
}

type vorbisDecoder struct {
	dec      oggReader
	channels int
	buf      []float32
}

func (d *vorbisDecoder) read(dst []int8) (int, error) {
	// Whole frames only, so channels stay aligned across reads
	want := len(dst) - len(dst)%d.channels
	if want == 0 {
		return 0, nil
	}
	if cap(d.buf) < want {
		d.buf = make([]float32, want)
	}
	d.buf = d.buf[:want]

	n, err := d.dec.Read(d.buf)
	for i := 0; i < n; i++ {
		dst[i] = FloatToS8(d.buf[i])
	}
	if n > 0 && errors.Is(err, io.EOF) {
		err = nil
	}
	return n, err
}

func newVorbisDecoder(r io.Reader) (sampleDecoder, Metadata, error) {
	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	meta := Metadata{
		SampleRate: dec.SampleRate(),
		Channels:   dec.Channels(),
		BitDepth:   32,
		Format:     "ogg",
	}
	if length := dec.Length(); length > 0 && meta.SampleRate > 0 {
		meta.Duration = float64(length) / float64(meta.SampleRate)
	}

	return &vorbisDecoder{dec: dec, channels: dec.Channels()}, meta, nil
}

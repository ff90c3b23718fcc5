package audio

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// captureQueueDepth is the number of device periods buffered between the
// capture callback and the reader before new data is dropped.
const captureQueueDepth = 64

// CaptureConfig describes the stream to request from the capture device
type CaptureConfig struct {
	SampleRate   int
	Channels     int
	PeriodFrames int    // requested device period in frames, 0 = backend default
	Device       string // case-insensitive substring of the device name, "" = default
}

// DeviceInfo describes a capture device
type DeviceInfo struct {
	Name      string
	IsDefault bool
}

// Capture records from a live input device. The backend calls back on its own
// thread; Capture hands the data over to the goroutine calling Read.
type Capture struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	sampleRate int
	channels   int
	deviceName string

	chunks  chan []int8
	pending []int8
	done    chan struct{}
	once    sync.Once

	dropped atomic.Uint64
}

// OpenCapture opens and starts a capture device delivering unsigned 8-bit
// samples, which are converted to signed on arrival. It fails when the device
// does not provide the requested channel count.
func OpenCapture(cfg CaptureConfig) (*Capture, *Metadata, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't open sound: %w", err)
	}

	c := &Capture{
		ctx:    ctx,
		chunks: make(chan []int8, captureQueueDepth),
		done:   make(chan struct{}),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatU8
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.PeriodFrames)
	deviceConfig.Alsa.NoMMap = 1

	if cfg.Device != "" {
		infos, err := ctx.Devices(malgo.Capture)
		if err != nil {
			c.freeContext()
			return nil, nil, fmt.Errorf("couldn't list capture devices: %w", err)
		}
		found := false
		for _, info := range infos {
			if strings.Contains(strings.ToLower(info.Name()), strings.ToLower(cfg.Device)) {
				deviceConfig.Capture.DeviceID = info.ID.Pointer()
				c.deviceName = info.Name()
				found = true
				break
			}
		}
		if !found {
			c.freeContext()
			return nil, nil, fmt.Errorf("no capture device matches %q", cfg.Device)
		}
	}

	callbacks := malgo.DeviceCallbacks{
		Data: c.onData,
	}
	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		c.freeContext()
		return nil, nil, fmt.Errorf("couldn't apply sound settings: %w", err)
	}
	c.device = device
	c.sampleRate = int(device.SampleRate())
	c.channels = int(device.CaptureChannels())

	if c.channels != cfg.Channels {
		c.Close()
		return nil, nil, fmt.Errorf("expected %d input channels, device provides %d", cfg.Channels, c.channels)
	}

	if err := device.Start(); err != nil {
		c.Close()
		return nil, nil, fmt.Errorf("couldn't start capture: %w", err)
	}

	meta := &Metadata{
		SampleRate: c.sampleRate,
		Channels:   c.channels,
		BitDepth:   8,
		Format:     "capture",
	}
	return c, meta, nil
}

// onData runs on the backend's audio thread and must not block
func (c *Capture) onData(_, input []byte, frameCount uint32) {
	n := int(frameCount) * c.channels
	if n > len(input) {
		n = len(input)
	}
	if n == 0 {
		return
	}

	chunk := make([]int8, n)
	for i, b := range input[:n] {
		chunk[i] = U8ToS8(b)
	}

	select {
	case <-c.done:
	case c.chunks <- chunk:
	default:
		c.dropped.Add(1)
	}
}

// SampleRate implements Source
func (c *Capture) SampleRate() int { return c.sampleRate }

// Channels implements Source
func (c *Capture) Channels() int { return c.channels }

// DeviceName returns the selected device name, "" for the default device
func (c *Capture) DeviceName() string { return c.deviceName }

// Dropped returns the number of device periods discarded because the reader
// fell behind.
func (c *Capture) Dropped() uint64 { return c.dropped.Load() }

// Read implements Source. It blocks until the device delivers data or the
// capture is closed, in which case it returns io.EOF.
func (c *Capture) Read(dst []int8) (int, error) {
	if len(c.pending) == 0 {
		select {
		case chunk := <-c.chunks:
			c.pending = chunk
		case <-c.done:
			return 0, io.EOF
		}
	}
	n := copy(dst, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

// Close stops the device and releases the backend. It is safe to call from
// another goroutine to unblock Read.
func (c *Capture) Close() error {
	c.once.Do(func() {
		close(c.done)
		if c.device != nil {
			c.device.Uninit()
			c.device = nil
		}
		c.freeContext()
	})
	return nil
}

func (c *Capture) freeContext() {
	if c.ctx != nil {
		_ = c.ctx.Uninit()
		c.ctx.Free()
		c.ctx = nil
	}
}

// ListDevices returns the capture devices known to the default backend
func ListDevices() ([]DeviceInfo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("couldn't open sound: %w", err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("couldn't list capture devices: %w", err)
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, DeviceInfo{
			Name:      info.Name(),
			IsDefault: info.IsDefault != 0,
		})
	}
	return devices, nil
}

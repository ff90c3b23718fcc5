package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"

	"github.com/linuxmatters/bang/internal/audio"
	"github.com/linuxmatters/bang/internal/cli"
)

var (
	version = "0.0.1"
)

// CLI defines the command-line interface
type CLI struct {
	Version  versionFlag     `short:"v" help:"Show version information"`
	Config   kong.ConfigFlag `short:"c" help:"Load flag values from a JSON file"`
	DebugLog string          `type:"path" help:"Write a debug log to this file"`

	Listen    ListenCmd    `cmd:"" default:"withargs" help:"Detect pulses and print a message each time a channel fires"`
	Calibrate CalibrateCmd `cmd:"" help:"Measure the input and suggest a cutoff"`
	Devices   DevicesCmd   `cmd:"" help:"List audio capture devices"`
}

// versionFlag prints the styled version banner and exits before any
// positional arguments are checked.
type versionFlag bool

func (v versionFlag) BeforeReset(app *kong.Kong, vars kong.Vars) error {
	cli.PrintVersion(vars["version"])
	app.Exit(0)
	return nil
}

// globals are bound into every command's Run method
type globals struct {
	ctx context.Context
	log *zerolog.Logger
}

func newParser(c *CLI, options ...kong.Option) (*kong.Kong, error) {
	options = append([]kong.Option{
		kong.Name("bang"),
		kong.Description("Real-time pulse detector for audio inputs"),
		kong.UsageOnError(),
		kong.Vars{
			"version": version,
		},
		kong.Configuration(kong.JSON),
		kong.Help(cli.StyledHelpPrinter(kong.HelpOptions{Compact: true})),
	}, options...)
	return kong.New(c, options...)
}

func main() {
	c := &CLI{}
	parser, err := newParser(c)
	if err != nil {
		cli.PrintError(err.Error())
		os.Exit(1)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	os.Exit(run(ctx, c))
}

func run(ctx *kong.Context, c *CLI) int {
	logger, closeLog, err := newLogger(c.DebugLog)
	if err != nil {
		cli.PrintError(err.Error())
		return 1
	}
	defer closeLog()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("version", version).Str("command", ctx.Command()).Msg("bang starting")
	if err := ctx.Run(&globals{ctx: sigCtx, log: logger}); err != nil {
		logger.Error().Err(err).Msg("command failed")
		cli.PrintError(err.Error())
		return 1
	}
	return 0
}

// newLogger returns a debug logger writing JSON lines to path, or a no-op
// logger when path is empty.
func newLogger(path string) (*zerolog.Logger, func(), error) {
	if path == "" {
		l := zerolog.Nop()
		return &l, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create debug log: %w", err)
	}
	l := zerolog.New(f).Level(zerolog.DebugLevel).With().Timestamp().Logger()
	return &l, func() { _ = f.Close() }, nil
}

// StreamFlags select and shape the audio input
type StreamFlags struct {
	Input      string `short:"i" type:"existingfile" help:"Read from an audio file instead of a capture device"`
	Device     string `short:"d" help:"Capture device, matched against device names"`
	Rate       int    `default:"48000" help:"Capture sample rate in Hz"`
	Resolution int    `default:"1000" help:"Evaluation windows per second"`
	Alignment  int    `default:"0" help:"Round read buffers up to a multiple of this many frames"`
}

// openSource opens the file given by --input, or the capture device. The
// returned name describes the source for status output.
func (s *StreamFlags) openSource(channels, periodFrames int, log *zerolog.Logger) (audio.Source, string, error) {
	if s.Input != "" {
		r, meta, err := audio.OpenAudioFile(s.Input)
		if err != nil {
			return nil, "", err
		}
		log.Info().
			Str("file", s.Input).
			Str("format", meta.Format).
			Int("sample_rate", meta.SampleRate).
			Int("channels", meta.Channels).
			Int("bit_depth", meta.BitDepth).
			Float64("duration", meta.Duration).
			Msg("opened audio file")
		return r, s.Input, nil
	}

	c, meta, err := audio.OpenCapture(audio.CaptureConfig{
		SampleRate:   s.Rate,
		Channels:     channels,
		PeriodFrames: periodFrames,
		Device:       s.Device,
	})
	if err != nil {
		return nil, "", err
	}
	name := c.DeviceName()
	if name == "" {
		name = "default capture device"
	}
	log.Info().
		Str("device", name).
		Int("sample_rate", meta.SampleRate).
		Int("channels", meta.Channels).
		Msg("opened capture device")
	return c, name, nil
}

// DevicesCmd lists capture devices
type DevicesCmd struct{}

func (d *DevicesCmd) Run(g *globals) error {
	devices, err := audio.ListDevices()
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("No capture devices found")
		return nil
	}
	for _, dev := range devices {
		line := cli.ValueStyle.Render(dev.Name)
		if dev.IsDefault {
			line += " " + cli.KeyStyle.Render("(default)")
		}
		fmt.Println(line)
	}
	return nil
}

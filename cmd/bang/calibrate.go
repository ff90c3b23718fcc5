package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/linuxmatters/bang/internal/analyzer"
	"github.com/linuxmatters/bang/internal/cli"
	"github.com/linuxmatters/bang/internal/detector"
	"github.com/linuxmatters/bang/internal/logging"
	"github.com/linuxmatters/bang/internal/mains"
)

// CalibrateCmd measures the input and prints a calibration report
type CalibrateCmd struct {
	StreamFlags `embed:""`

	Messages []string `arg:"" optional:"" help:"Messages as they will be given to listen; one starting with - skips the channel"`

	Channels int     `default:"2" help:"Channels to capture when no messages are given"`
	Cutoff   int     `default:"0" help:"Cutoff currently in use, for comparison"`
	Cutoffs  []int   `help:"Per-channel cutoffs currently in use"`
	Seconds  float64 `default:"10" help:"How long to listen to a capture device"`
	Mains    string  `default:"auto" help:"Mains frequency for hum detection: auto, 50, 60 or off"`
	MaxRate  float64 `name:"max-rate" default:"0.01" help:"Share of background windows a suggested cutoff may fire on"`
}

// config builds the settings the analysis runs with. Without messages the
// channels are labelled by number.
func (c *CalibrateCmd) config() (*detector.Config, error) {
	messages := c.Messages
	if len(messages) == 0 {
		messages = make([]string, c.Channels)
		for i := range messages {
			messages[i] = strconv.Itoa(i + 1)
		}
	}

	cfg := detector.DefaultConfig()
	cfg.SampleRate = c.Rate
	cfg.Channels = len(messages)
	cfg.Alignment = c.Alignment
	cfg.Resolution = c.Resolution
	cfg.Cutoff = c.Cutoff
	cfg.Cutoffs = c.Cutoffs
	cfg.Messages = messages
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if c.MaxRate < 0 || c.MaxRate > 1 {
		return nil, fmt.Errorf("--max-rate must be between 0 and 1, got %g", c.MaxRate)
	}
	return cfg, nil
}

// mainsFrequency resolves --mains, with 0 meaning hum detection is off
func (c *CalibrateCmd) mainsFrequency() (mains.Hz, error) {
	if strings.EqualFold(strings.TrimSpace(c.Mains), "off") {
		return 0, nil
	}
	return mains.Parse(c.Mains)
}

func (c *CalibrateCmd) Run(g *globals) error {
	cfg, err := c.config()
	if err != nil {
		return err
	}
	hz, err := c.mainsFrequency()
	if err != nil {
		return err
	}

	src, name, err := c.openSource(cfg.Channels, cfg.BufferFrames(), g.log)
	if err != nil {
		return err
	}
	defer src.Close()

	opts := analyzer.Options{Mains: hz, Logger: g.log}
	if c.Input == "" {
		opts.MaxFrames = uint64(c.Seconds * float64(src.SampleRate()))
		cli.PrintInfo(os.Stderr, "Listening", fmt.Sprintf("%gs on %s", c.Seconds, name))
	}

	report, err := analyzer.Analyze(g.ctx, src, cfg, opts)
	if err != nil {
		return err
	}

	return logging.WriteCalibrationReport(os.Stdout, logging.ReportData{
		Source:  name,
		Report:  report,
		Config:  cfg,
		MaxRate: c.MaxRate,
	})
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/linuxmatters/bang/internal/cli"
	"github.com/linuxmatters/bang/internal/detector"
	"github.com/linuxmatters/bang/internal/metrics"
	"github.com/linuxmatters/bang/internal/output"
	"github.com/linuxmatters/bang/internal/processor"
	"github.com/linuxmatters/bang/internal/ui"
)

// ListenCmd runs the detector
type ListenCmd struct {
	StreamFlags `embed:""`

	Cutoff     int      `arg:"" help:"Level from 0 to 255 that makes a channel fire"`
	MuteLength int      `arg:"" name:"mute-length" help:"Windows a channel stays silent after firing"`
	Messages   []string `arg:"" help:"Message printed for each channel; one starting with - disables the channel (put -- before the messages)"`

	Policy   string `default:"countdown" enum:"countdown,hysteresis" help:"How a channel re-arms after firing: countdown or hysteresis"`
	Cutoffs  []int  `help:"Per-channel cutoffs overriding the positional cutoff"`
	Velocity bool   `help:"Append the level to each message"`
	Serial   string `placeholder:"PORT" help:"Also send messages to this serial port"`
	Baud     int    `default:"115200" help:"Serial port speed"`
	WS       string `name:"ws" placeholder:"ADDR" help:"Serve events to websocket clients on this address"`
	Monitor  bool   `short:"m" help:"Show live level meters instead of printing messages"`
}

// config builds the detector settings from the arguments. The sample rate is
// replaced by the source's once it is open.
func (l *ListenCmd) config() (*detector.Config, error) {
	policy, err := detector.ParsePolicy(l.Policy)
	if err != nil {
		return nil, err
	}
	cfg := &detector.Config{
		SampleRate: l.Rate,
		Channels:   len(l.Messages),
		Alignment:  l.Alignment,
		Resolution: l.Resolution,
		Cutoff:     l.Cutoff,
		Cutoffs:    l.Cutoffs,
		MuteLength: l.MuteLength,
		Messages:   l.Messages,
		Policy:     policy,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *ListenCmd) Run(g *globals) error {
	cfg, err := l.config()
	if err != nil {
		return err
	}
	if l.Monitor && !isTerminal(os.Stdout) {
		return errors.New("--monitor needs a terminal on stdout")
	}

	src, name, err := l.openSource(cfg.Channels, cfg.BufferFrames(), g.log)
	if err != nil {
		return err
	}
	defer src.Close()

	cfg.SampleRate = src.SampleRate()
	engine, err := detector.NewEngine(cfg)
	if err != nil {
		return fmt.Errorf("invalid settings for %s: %w", name, err)
	}

	sinks, recorder, err := l.openSinks(cfg, g.log)
	if err != nil {
		return err
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			g.log.Warn().Err(err).Msg("failed to close outputs")
		}
	}()

	opts := processor.Options{Logger: g.log}
	if recorder != nil {
		opts.Progress = recorder.Observe
	}
	if !l.Monitor {
		stats, err := processor.Run(g.ctx, src, engine, sinks, opts)
		if err != nil {
			return err
		}
		printStats(os.Stderr, stats)
		return nil
	}

	info := ui.Info{
		Source:     name,
		SampleRate: cfg.SampleRate,
		WindowSize: cfg.WindowSize(),
		MuteLength: cfg.MuteLength,
		Policy:     cfg.Policy,
	}
	return runMonitor(g.ctx, ui.NewModel(info, cfg), func(ctx context.Context, progress func(processor.Snapshot)) (*processor.Stats, error) {
		observe := opts.Progress
		opts.Progress = func(s processor.Snapshot) {
			if observe != nil {
				observe(s)
			}
			progress(s)
		}
		return processor.Run(ctx, src, engine, sinks, opts)
	})
}

// openSinks assembles the outputs. Stdout is left to the monitor when it runs.
// The websocket server also serves Prometheus metrics, recorded by the
// returned recorder.
func (l *ListenCmd) openSinks(cfg *detector.Config, log *zerolog.Logger) (output.Multi, *metrics.Recorder, error) {
	var sinks output.Multi
	if !l.Monitor {
		sinks = append(sinks, output.NewWriter(os.Stdout, l.Velocity))
	}

	if l.Serial != "" {
		s, err := output.OpenSerial(l.Serial, l.Baud, l.Velocity)
		if err != nil {
			_ = sinks.Close()
			return nil, nil, err
		}
		log.Info().Str("port", l.Serial).Int("baud", l.Baud).Msg("opened serial output")
		sinks = append(sinks, s)
	}

	var recorder *metrics.Recorder
	if l.WS != "" {
		ws := output.NewWebSocket(output.HelloMessage{
			Channels:   cfg.Channels,
			Messages:   cfg.Messages,
			SampleRate: cfg.SampleRate,
			WindowSize: cfg.WindowSize(),
		}, log)

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		recorder = metrics.NewRecorder(reg, cfg.Messages)
		ws.Handle("/metrics", metrics.Handler(reg))

		if err := ws.Start(l.WS); err != nil {
			_ = sinks.Close()
			return nil, nil, err
		}
		cli.PrintInfo(os.Stderr, "Websocket", "ws://"+ws.Addr()+"/events")
		cli.PrintInfo(os.Stderr, "Metrics", "http://"+ws.Addr()+"/metrics")
		sinks = append(sinks, ws, recorder)
	}
	return sinks, recorder, nil
}

// runMonitor drives the detection loop under the Bubbletea monitor. The loop
// is cancelled when the monitor quits and waited for before returning, so the
// caller can release the source and sinks.
func runMonitor(ctx context.Context, model ui.Model, loop func(context.Context, func(processor.Snapshot)) (*processor.Stats, error)) error {
	p := tea.NewProgram(model, tea.WithAltScreen())

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		stats   *processor.Stats
		loopErr error
	)
	relay := newSnapshotRelay()
	go func() {
		stats, loopErr = loop(loopCtx, relay.Offer)
		relay.Close()
	}()

	// Rendering happens here, off the detection loop
	done := make(chan struct{})
	go func() {
		defer close(done)
		for s := range relay.Snapshots() {
			p.Send(ui.SnapshotMsg(s))
		}
		p.Send(ui.DoneMsg{Stats: stats, Err: loopErr})
	}()

	// Quit the monitor on a signal as well
	go func() {
		select {
		case <-ctx.Done():
			p.Quit()
		case <-done:
		}
	}()

	_, uiErr := p.Run()
	cancel()
	<-done

	if uiErr != nil {
		return fmt.Errorf("UI error: %w", uiErr)
	}
	if loopErr != nil {
		return loopErr
	}
	printStats(os.Stderr, stats)
	return nil
}

func printStats(w io.Writer, stats *processor.Stats) {
	if stats == nil {
		return
	}
	cli.PrintInfo(w, "Events", strconv.FormatUint(stats.Events, 10))
	cli.PrintInfo(w, "Windows", strconv.FormatUint(stats.Windows, 10))
	if stats.Dropped > 0 {
		cli.PrintInfo(w, "Dropped periods", strconv.FormatUint(stats.Dropped, 10))
	}
	if stats.SinkErrors > 0 {
		cli.PrintInfo(w, "Output errors", strconv.FormatUint(stats.SinkErrors, 10))
	}
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

package main

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/alecthomas/kong"

	"github.com/linuxmatters/bang/internal/detector"
	"github.com/linuxmatters/bang/internal/mains"
)

func parse(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()
	c := &CLI{}
	parser, err := newParser(c, kong.Exit(func(code int) {
		t.Fatalf("parser exited with status %d", code)
	}))
	if err != nil {
		t.Fatalf("newParser: %v", err)
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		t.Fatalf("Parse(%q): %v", args, err)
	}
	return c, ctx
}

func TestListenIsDefaultCommand(t *testing.T) {
	c, ctx := parse(t, "100", "3", "kick", "snare")

	if !strings.HasPrefix(ctx.Command(), "listen") {
		t.Errorf("command = %q, want listen", ctx.Command())
	}
	l := c.Listen
	if l.Cutoff != 100 || l.MuteLength != 3 || !slices.Equal(l.Messages, []string{"kick", "snare"}) {
		t.Errorf("arguments = %d %d %q", l.Cutoff, l.MuteLength, l.Messages)
	}
	if l.Rate != 48000 || l.Resolution != 1000 || l.Policy != "countdown" || l.Baud != 115200 {
		t.Errorf("defaults = rate %d, resolution %d, policy %q, baud %d", l.Rate, l.Resolution, l.Policy, l.Baud)
	}
}

func TestListenConfig(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr error
		check   func(t *testing.T, cfg *detector.Config)
	}{
		{
			name:  "stereo",
			args:  []string{"listen", "60", "2", "kick", "snare"},
			check: func(t *testing.T, cfg *detector.Config) {
				if cfg.Channels != 2 || cfg.WindowSize() != 48 || cfg.Policy != detector.PolicyCountdown {
					t.Errorf("cfg = %+v", cfg)
				}
			},
		},
		{
			name:  "hysteresis with overrides",
			args:  []string{"listen", "--policy", "hysteresis", "--cutoffs", "10,200", "--alignment", "64", "60", "0", "a", "b"},
			check: func(t *testing.T, cfg *detector.Config) {
				if cfg.Policy != detector.PolicyHysteresis {
					t.Errorf("policy = %v", cfg.Policy)
				}
				if cfg.ChannelCutoff(0) != 10 || cfg.ChannelCutoff(1) != 200 {
					t.Errorf("cutoffs = %d, %d", cfg.ChannelCutoff(0), cfg.ChannelCutoff(1))
				}
				if cfg.BufferFrames() != 64 {
					t.Errorf("BufferFrames = %d, want 64", cfg.BufferFrames())
				}
			},
		},
		{
			name:    "cutoff too high",
			args:    []string{"listen", "256", "0", "a", "b"},
			wantErr: detector.ErrCutoffRange,
		},
		{
			name:    "override count",
			args:    []string{"listen", "--cutoffs", "10", "60", "0", "a", "b"},
			wantErr: detector.ErrCutoffOverrides,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := parse(t, tt.args...)
			cfg, err := c.Listen.config()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("config: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestCalibrateConfig(t *testing.T) {
	c, _ := parse(t, "calibrate", "--channels", "3")
	cfg, err := c.Calibrate.config()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if !slices.Equal(cfg.Messages, []string{"1", "2", "3"}) {
		t.Errorf("messages = %q, want numbered labels", cfg.Messages)
	}

	c, _ = parse(t, "calibrate", "--max-rate", "1.5", "kick", "snare")
	if _, err := c.Calibrate.config(); err == nil {
		t.Error("expected an error for --max-rate above 1")
	}
}

func TestCalibrateMains(t *testing.T) {
	tests := []struct {
		flag    string
		want    mains.Hz
		wantErr bool
	}{
		{"50", mains.Hz50, false},
		{"60", mains.Hz60, false},
		{"off", 0, false},
		{"OFF", 0, false},
		{"55", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			c, _ := parse(t, "calibrate", "--mains", tt.flag)
			got, err := c.Calibrate.mainsFrequency()
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("mainsFrequency() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bang.json")
	if err := os.WriteFile(path, []byte(`{"policy": "hysteresis", "velocity": true}`), 0o644); err != nil {
		t.Fatal(err)
	}

	c, _ := parse(t, "--config", path, "listen", "60", "0", "a", "b")
	if c.Listen.Policy != "hysteresis" || !c.Listen.Velocity {
		t.Errorf("config file not applied: policy %q, velocity %v", c.Listen.Policy, c.Listen.Velocity)
	}
}

func TestNewLogger(t *testing.T) {
	log, closeLog, err := newLogger("")
	if err != nil {
		t.Fatalf("newLogger(\"\"): %v", err)
	}
	log.Info().Msg("discarded")
	closeLog()

	path := filepath.Join(t.TempDir(), "debug.log")
	log, closeLog, err = newLogger(path)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	log.Debug().Str("component", "test").Msg("hello")
	closeLog()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"level":"debug"`, `"component":"test"`, `"message":"hello"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("log %q missing %s", data, want)
		}
	}

	if _, _, err := newLogger(filepath.Join(t.TempDir(), "missing", "debug.log")); err == nil {
		t.Error("expected an error for an unwritable path")
	}
}

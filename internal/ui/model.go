// Package ui provides the Bubbletea live monitor for bang
package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/linuxmatters/bang/internal/detector"
)

// flashSnapshots is how many snapshots a meter stays highlighted after firing
const flashSnapshots = 4

// Channel is the monitor state of one input channel
type Channel struct {
	Message  string
	Cutoff   int
	Disabled bool

	Level uint8 // masked level at the last snapshot
	Peak  uint8 // highest level seen
	Fires uint64
	Muted bool // inside the mute countdown

	flash int // snapshots left to highlight
}

// Flashing reports whether the channel fired recently
func (c Channel) Flashing() bool { return c.flash > 0 }

// Info describes the stream being monitored
type Info struct {
	Source     string
	SampleRate int
	WindowSize int
	MuteLength int
	Policy     detector.Policy
}

// Model is the Bubbletea model for the live monitor
type Model struct {
	Info     Info
	Channels []Channel

	Frames  uint64
	Windows uint64
	Events  uint64
	Dropped uint64
	Elapsed time.Duration

	Done     bool
	Quitting bool
	Err      error

	Width  int
	Height int
}

// NewModel creates a monitor for cfg reading from the described source
func NewModel(info Info, cfg *detector.Config) Model {
	channels := make([]Channel, cfg.Channels)
	for i := range channels {
		msg := ""
		if i < len(cfg.Messages) {
			msg = cfg.Messages[i]
		}
		channels[i] = Channel{
			Message:  msg,
			Cutoff:   cfg.ChannelCutoff(i),
			Disabled: detector.IsMuted(msg),
		}
	}
	return Model{Info: info, Channels: channels}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.Quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case SnapshotMsg:
		m = m.applySnapshot(msg)

	case DoneMsg:
		m.Done = true
		m.Err = msg.Err
		if msg.Stats != nil {
			m.Frames = msg.Stats.Frames
			m.Windows = msg.Stats.Windows
			m.Events = msg.Stats.Events
			m.Dropped = msg.Stats.Dropped
			m.Elapsed = msg.Stats.Elapsed
		}
		return m, tea.Quit
	}

	return m, nil
}

// applySnapshot copies a snapshot into the model. Channels slices are
// replaced rather than mutated since Bubbletea models are values.
func (m Model) applySnapshot(s SnapshotMsg) Model {
	channels := make([]Channel, len(m.Channels))
	copy(channels, m.Channels)

	for i := range channels {
		ch := &channels[i]
		if ch.flash > 0 {
			ch.flash--
		}
		if i < len(s.Levels) {
			ch.Level = s.Levels[i]
			ch.Peak = max(ch.Peak, ch.Level)
		}
		if i < len(s.Fires) {
			ch.Fires = s.Fires[i]
		}
		ch.Muted = i < len(s.Muted) && s.Muted[i]
		if i < len(s.Fired) && s.Fired[i] {
			ch.flash = flashSnapshots
		}
	}

	m.Channels = channels
	m.Frames = s.Frames
	m.Windows = s.Windows
	m.Events = s.Events
	m.Dropped = s.Dropped
	m.Elapsed = s.Elapsed
	return m
}

// View renders the UI
func (m Model) View() string {
	if m.Width == 0 {
		return "Starting monitor...\n"
	}
	if m.Done {
		return renderSummary(m)
	}
	return renderMonitor(m)
}

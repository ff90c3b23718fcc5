package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const (
	meterWidth = 32
	boxWidth   = 64
)

var (
	primaryColor = lipgloss.Color("#A40000")
	mutedColor   = lipgloss.Color("#888888")
	activeColor  = lipgloss.Color("#FFA500")
	okColor      = lipgloss.Color("#00AA00")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	mutedStyle = lipgloss.NewStyle().Foreground(mutedColor)
	flashStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	meterStyle = lipgloss.NewStyle().Foreground(activeColor)
)

func renderMonitor(m Model) string {
	var b strings.Builder

	b.WriteString(renderHeader(m))
	b.WriteString("\n\n")

	for i, ch := range m.Channels {
		b.WriteString(renderChannel(i, ch))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(renderFooter(m))
	return b.String()
}

func renderHeader(m Model) string {
	title := titleStyle.Render("Bang - pulse detector")
	subtitle := mutedStyle.Italic(true).Render(fmt.Sprintf("%s | %d Hz | %d-frame windows | %s, mute %d",
		m.Info.Source, m.Info.SampleRate, m.Info.WindowSize, m.Info.Policy, m.Info.MuteLength))
	return title + "\n" + subtitle
}

func renderChannel(i int, ch Channel) string {
	label := fmt.Sprintf("%d %-10s", i+1, truncate(ch.Message, 10))
	if ch.Disabled {
		return mutedStyle.Render(label + " off")
	}

	meter := meterStyle.Render(renderMeter(ch.Level, ch.Cutoff, meterWidth))
	counts := fmt.Sprintf("%3d/%3d  peak %3d  fired %d", ch.Level, ch.Cutoff, ch.Peak, ch.Fires)
	if ch.Muted {
		counts += mutedStyle.Render("  muted")
	}
	if ch.Flashing() {
		return flashStyle.Render(label+" ●") + " " + meter + " " + counts
	}
	return label + "   " + meter + " " + counts
}

// renderMeter draws level as a bar across width cells with the cutoff marked.
// The scale is the masked 0-255 range.
func renderMeter(level uint8, cutoff, width int) string {
	filled := int(level) * width / 256
	mark := -1
	if cutoff >= 0 && cutoff <= 255 {
		mark = cutoff * width / 256
	}

	var b strings.Builder
	for i := 0; i < width; i++ {
		switch {
		case i == mark:
			b.WriteString("│")
		case i < filled:
			b.WriteString("█")
		default:
			b.WriteString("░")
		}
	}
	return b.String()
}

func renderFooter(m Model) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(mutedColor).
		Padding(0, 1).
		Width(boxWidth)

	content := fmt.Sprintf("%s elapsed | %d windows | %d events", formatElapsed(m.Elapsed), m.Windows, m.Events)
	if m.Dropped > 0 {
		content += fmt.Sprintf(" | %d dropped", m.Dropped)
	}
	content += "\n" + mutedStyle.Render("q to quit")
	return box.Render(content)
}

func renderSummary(m Model) string {
	var b strings.Builder

	if m.Err != nil {
		b.WriteString(titleStyle.Render("Stopped with an error"))
		b.WriteString("\n")
		b.WriteString(m.Err.Error())
		b.WriteString("\n\n")
	} else {
		b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(okColor).Render("Finished"))
		b.WriteString("\n\n")
	}

	for i, ch := range m.Channels {
		if ch.Disabled {
			continue
		}
		fmt.Fprintf(&b, " %d %-10s fired %d times, peak level %d\n", i+1, truncate(ch.Message, 10), ch.Fires, ch.Peak)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s of audio, %d windows, %d events", formatElapsed(m.Elapsed), m.Windows, m.Events)
	if m.Dropped > 0 {
		fmt.Fprintf(&b, ", %d periods dropped", m.Dropped)
	}
	b.WriteString("\n")
	return b.String()
}

func formatElapsed(d time.Duration) string {
	d = d.Round(100 * time.Millisecond)
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %02ds", int(d.Minutes()), int(d.Seconds())%60)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

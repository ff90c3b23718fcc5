package logging

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/linuxmatters/bang/internal/analyzer"
	"github.com/linuxmatters/bang/internal/detector"
)

// ReportData is everything a calibration report shows
type ReportData struct {
	Source     string // file name or capture device
	Report     *analyzer.Report
	Config     *detector.Config
	MaxRate    float64 // fire rate a suggested cutoff may reach on the analysed input
	Candidates []uint8
}

// WriteCalibrationReport renders data as plain text
func WriteCalibrationReport(w io.Writer, data ReportData) error {
	r := data.Report
	if r == nil {
		return fmt.Errorf("no analysis to report")
	}
	candidates := data.Candidates
	if len(candidates) == 0 {
		candidates = analyzer.DefaultCandidates
	}
	cutoffs := make([]int, len(r.Channels))
	for i := range cutoffs {
		if data.Config != nil {
			cutoffs[i] = data.Config.ChannelCutoff(i)
		}
	}

	var sb strings.Builder

	sb.WriteString("Bang Calibration Report\n")
	sb.WriteString("=======================\n")
	fmt.Fprintf(&sb, "Source:   %s\n", data.Source)
	fmt.Fprintf(&sb, "Analysed: %s, %d windows of %d frames at %d Hz\n",
		formatDuration(r.Duration), windowCount(r), r.WindowSize, r.SampleRate)
	if r.Mains != 0 {
		fmt.Fprintf(&sb, "Mains:    %s\n", r.Mains)
	}
	sb.WriteString("\n")

	headers := make([]string, len(r.Channels))
	for i := range r.Channels {
		headers[i] = columnHeader(&r.Channels[i])
	}

	writeSection(&sb, "Channel Levels")
	sb.WriteString(levelTable(r, headers).String())
	sb.WriteString("\n")

	writeSection(&sb, "Fire Rate by Cutoff")
	sb.WriteString(rateTable(r, headers, candidates, cutoffs, data.MaxRate).String())
	sb.WriteString("\n")

	if tips := GenerateTips(r, cutoffs, data.MaxRate); len(tips) > 0 {
		writeSection(&sb, "Tips")
		for _, tip := range tips {
			fmt.Fprintf(&sb, "* %s\n", wrapText(tip.Message, 76, "  "))
		}
		sb.WriteString("\n")
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func levelTable(r *analyzer.Report, headers []string) *MetricTable {
	t := NewMetricTable(headers...)
	n := len(r.Channels)
	peak := make([]string, n)
	clipped := make([]string, n)
	minLevel := make([]string, n)
	mean := make([]float64, n)
	maxLevel := make([]string, n)
	wrapped := make([]string, n)
	hum := make([]string, n)

	for i := range r.Channels {
		st := &r.Channels[i]
		peak[i] = formatMetricDB(st.PeakDBFS(), 1)
		clipped[i] = formatPercent(ratio(st.Clipped, st.Samples), 2)
		minLevel[i] = strconv.Itoa(int(st.MinLevel))
		maxLevel[i] = strconv.Itoa(int(st.MaxLevel))
		mean[i] = st.MeanLevel
		wrapped[i] = formatPercent(ratio(st.Wrapped, st.Windows), 0)
		hum[i] = formatMetric(st.HumDB, 1)
	}

	t.AddRow("Peak", peak, "dBFS", "")
	t.AddRow("Clipped", clipped, "%", "")
	t.AddRow("Level min", minLevel, "", "")
	t.AddMetricRow("Level mean", mean, 1, "", "")
	t.AddRow("Level max", maxLevel, "", "")
	t.AddRow("Average > 255", wrapped, "%", "")
	if r.Mains != 0 {
		t.AddRow("Mains hum", hum, "dB", interpretHum(r))
	}
	return t
}

func rateTable(r *analyzer.Report, headers []string, candidates []uint8, cutoffs []int, maxRate float64) *MetricTable {
	t := NewMetricTable(headers...)
	n := len(r.Channels)

	for _, c := range candidates {
		rates := make([]float64, n)
		for i := range r.Channels {
			rates[i] = r.Channels[i].FireRate(c) * 100
		}
		t.AddMetricRow(fmt.Sprintf("Cutoff %d", c), rates, 1, "%", "")
	}

	current := make([]float64, n)
	suggested := make([]string, n)
	for i := range r.Channels {
		st := &r.Channels[i]
		current[i] = math.NaN()
		if c := cutoffs[i]; c >= 0 && c <= 255 {
			current[i] = st.FireRate(uint8(c)) * 100
		}
		suggested[i] = strconv.Itoa(int(st.SuggestCutoff(maxRate)))
	}
	t.AddMetricRow("Current cutoff", current, 1, "%", "")
	t.AddRow("Suggested cutoff", suggested, "", fmt.Sprintf("fires on at most %s%% of windows", formatMetric(maxRate*100, 1)))
	return t
}

// interpretHum summarises hum across channels
func interpretHum(r *analyzer.Report) string {
	for i := range r.Channels {
		if r.Channels[i].HumDetected() {
			return "hum present"
		}
	}
	return "clean"
}

func columnHeader(st *analyzer.ChannelStats) string {
	if detector.IsMuted(st.Message) {
		return fmt.Sprintf("%d:off", st.Channel+1)
	}
	return fmt.Sprintf("%d:%s", st.Channel+1, st.Message)
}

func windowCount(r *analyzer.Report) uint64 {
	if len(r.Channels) == 0 {
		return 0
	}
	return r.Channels[0].Windows
}

func ratio(n, d uint64) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// writeSection writes a title underlined to its own length
func writeSection(w io.Writer, title string) {
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("-", len(title)))
}

// formatDuration formats a duration for humans
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%dh %dm %ds", minutes/60, minutes%60, seconds)
}

package logging

import (
	"fmt"
	"sort"
	"strings"

	"github.com/linuxmatters/bang/internal/analyzer"
	"github.com/linuxmatters/bang/internal/detector"
)

// CalibrationTip is one piece of advice derived from a calibration run
type CalibrationTip struct {
	Channel  int
	Priority int    // higher is more important, 1-10
	Message  string // one or two sentences
	RuleID   string // e.g. "clipping"
}

// MaxTips caps the number of tips GenerateTips returns
const MaxTips = 6

// clipRateLimit is the share of clipped samples worth mentioning
const clipRateLimit = 0.001

// quietPeak is the peak magnitude below which a channel is too quiet to reach
// any useful cutoff (about -18 dBFS)
const quietPeak = 16

type tipRule func(st *analyzer.ChannelStats, cutoff int, maxRate float64) *CalibrationTip

// GenerateTips inspects every enabled channel of a report and returns the
// most important advice first. cutoffs holds the cutoff in effect per channel.
func GenerateTips(report *analyzer.Report, cutoffs []int, maxRate float64) []CalibrationTip {
	if report == nil {
		return nil
	}

	rules := []tipRule{
		tipSilent,
		tipClipping,
		tipCutoffTooLow,
		tipMainsHum,
		tipTooQuiet,
		tipLevelWraps,
	}

	var tips []CalibrationTip
	for i := range report.Channels {
		st := &report.Channels[i]
		if detector.IsMuted(st.Message) {
			continue
		}
		cutoff := 0
		if i < len(cutoffs) {
			cutoff = cutoffs[i]
		}

		fired := make(map[string]bool)
		var channelTips []CalibrationTip
		for _, rule := range rules {
			if tip := rule(st, cutoff, maxRate); tip != nil {
				tip.Channel = st.Channel
				channelTips = append(channelTips, *tip)
				fired[tip.RuleID] = true
			}
		}
		tips = append(tips, applyExclusions(channelTips, fired)...)
	}

	sort.SliceStable(tips, func(i, j int) bool {
		return tips[i].Priority > tips[j].Priority
	})
	if len(tips) > MaxTips {
		tips = tips[:MaxTips]
	}
	return tips
}

// applyExclusions drops tips made redundant by a more specific one on the
// same channel
func applyExclusions(tips []CalibrationTip, fired map[string]bool) []CalibrationTip {
	var result []CalibrationTip
	for _, tip := range tips {
		switch tip.RuleID {
		case "too_quiet", "cutoff_too_low":
			if fired["silent"] {
				continue
			}
		case "level_wraps":
			if fired["clipping"] {
				continue
			}
		}
		result = append(result, tip)
	}
	return result
}

func channelLabel(st *analyzer.ChannelStats) string {
	return fmt.Sprintf("Channel %d (%s)", st.Channel+1, st.Message)
}

func tipSilent(st *analyzer.ChannelStats, _ int, _ float64) *CalibrationTip {
	if !st.Silent() {
		return nil
	}
	return &CalibrationTip{
		Priority: 10,
		RuleID:   "silent",
		Message:  channelLabel(st) + " carried no signal at all - check the cable and that the right input is selected.",
	}
}

func tipClipping(st *analyzer.ChannelStats, _ int, _ float64) *CalibrationTip {
	if st.Samples == 0 {
		return nil
	}
	rate := float64(st.Clipped) / float64(st.Samples)
	if rate < clipRateLimit {
		return nil
	}
	return &CalibrationTip{
		Priority: 9,
		RuleID:   "clipping",
		Message:  fmt.Sprintf("%s is clipping on %.1f%% of samples - turn the input gain down.", channelLabel(st), rate*100),
	}
}

func tipCutoffTooLow(st *analyzer.ChannelStats, cutoff int, maxRate float64) *CalibrationTip {
	if st.Windows == 0 || cutoff < 0 || cutoff > 255 {
		return nil
	}
	rate := st.FireRate(uint8(cutoff))
	if rate <= maxRate {
		return nil
	}
	return &CalibrationTip{
		Priority: 8,
		RuleID:   "cutoff_too_low",
		Message: fmt.Sprintf("%s would trigger on %.0f%% of windows at cutoff %d - try %d or higher.",
			channelLabel(st), rate*100, cutoff, st.SuggestCutoff(maxRate)),
	}
}

func tipMainsHum(st *analyzer.ChannelStats, _ int, _ float64) *CalibrationTip {
	if !st.HumDetected() {
		return nil
	}
	return &CalibrationTip{
		Priority: 7,
		RuleID:   "mains_hum",
		Message: fmt.Sprintf("%s has mains hum at %.0f Hz, %.0f dB above the background - look for a ground loop or move the cable away from power supplies.",
			channelLabel(st), st.HumHz, st.HumDB),
	}
}

func tipTooQuiet(st *analyzer.ChannelStats, _ int, _ float64) *CalibrationTip {
	if st.Samples == 0 || st.Peak >= quietPeak {
		return nil
	}
	return &CalibrationTip{
		Priority: 6,
		RuleID:   "too_quiet",
		Message: fmt.Sprintf("%s peaked at %.0f dBFS, too quiet to lift the running average far - turn the input gain up.",
			channelLabel(st), st.PeakDBFS()),
	}
}

func tipLevelWraps(st *analyzer.ChannelStats, _ int, _ float64) *CalibrationTip {
	if st.Wrapped == 0 || st.Windows == 0 {
		return nil
	}
	rate := float64(st.Wrapped) / float64(st.Windows)
	return &CalibrationTip{
		Priority: 5,
		RuleID:   "level_wraps",
		Message: fmt.Sprintf("%s averaged above 255 in %.0f%% of windows. Only the low byte is compared, so loud passages can read as quiet - reduce the gain a little.",
			channelLabel(st), rate*100),
	}
}

// wrapText wraps text at word boundaries to fit within maxWidth columns.
// Continuation lines are prefixed with indent.
func wrapText(text string, maxWidth int, indent string) string {
	var lines []string
	current := ""
	for _, word := range strings.Fields(text) {
		switch {
		case current == "":
			current = word
		case len(current)+1+len(word) <= maxWidth:
			current += " " + word
		default:
			lines = append(lines, current)
			current = word
		}
	}
	if current != "" {
		lines = append(lines, current)
	}
	return strings.Join(lines, "\n"+indent)
}

// Package logging renders calibration reports: aligned per-channel tables of
// measurements followed by prioritised advice.
package logging

import (
	"fmt"
	"math"
	"strings"
)

// MetricRow is one row of a MetricTable. Values are pre-formatted so rows can
// mix integers, decimals and placeholders.
type MetricRow struct {
	Label          string
	Values         []string // one per header
	Unit           string
	Interpretation string // shown only when some row has one
}

// MetricTable lays out one column per channel
type MetricTable struct {
	Headers []string
	Rows    []MetricRow
}

// NewMetricTable creates an empty table with the given column headers
func NewMetricTable(headers ...string) *MetricTable {
	return &MetricTable{Headers: headers}
}

// AddRow adds a row of pre-formatted values
func (t *MetricTable) AddRow(label string, values []string, unit, interpretation string) {
	t.Rows = append(t.Rows, MetricRow{
		Label:          label,
		Values:         values,
		Unit:           unit,
		Interpretation: interpretation,
	})
}

// AddMetricRow adds a row of numbers. NaN renders as MissingValue.
func (t *MetricTable) AddMetricRow(label string, values []float64, decimals int, unit, interpretation string) {
	formatted := make([]string, len(values))
	for i, v := range values {
		formatted[i] = formatMetric(v, decimals)
	}
	t.AddRow(label, formatted, unit, interpretation)
}

// String renders the table. Labels are left-aligned, values right-aligned
// under their headers, and the unit follows the last column.
func (t *MetricTable) String() string {
	if len(t.Rows) == 0 {
		return ""
	}

	labelWidth, unitWidth := 0, 0
	hasInterpretation := false
	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = len(h)
	}
	for _, row := range t.Rows {
		labelWidth = max(labelWidth, len(row.Label))
		unitWidth = max(unitWidth, len(row.Unit))
		if row.Interpretation != "" {
			hasInterpretation = true
		}
		for i, v := range row.Values {
			if i < len(widths) {
				widths[i] = max(widths[i], len(v))
			}
		}
	}

	var sb strings.Builder
	var line strings.Builder
	endLine := func() {
		sb.WriteString(strings.TrimRight(line.String(), " "))
		sb.WriteByte('\n')
		line.Reset()
	}

	line.WriteString(strings.Repeat(" ", labelWidth+2))
	for i, h := range t.Headers {
		fmt.Fprintf(&line, "%*s  ", widths[i], h)
	}
	if hasInterpretation {
		if unitWidth > 0 {
			line.WriteString(strings.Repeat(" ", unitWidth+1))
		}
		line.WriteString("Interpretation")
	}
	endLine()

	for _, row := range t.Rows {
		fmt.Fprintf(&line, "%-*s  ", labelWidth, row.Label)
		for i := range t.Headers {
			v := MissingValue
			if i < len(row.Values) && row.Values[i] != "" {
				v = row.Values[i]
			}
			fmt.Fprintf(&line, "%*s  ", widths[i], v)
		}
		if unitWidth > 0 {
			fmt.Fprintf(&line, "%-*s ", unitWidth, row.Unit)
		}
		if hasInterpretation {
			line.WriteString(row.Interpretation)
		}
		endLine()
	}

	return sb.String()
}

// MissingValue is the placeholder for unavailable measurements
const MissingValue = "-"

// formatMetric formats v with the given decimals, MissingValue for NaN or Inf
func formatMetric(v float64, decimals int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return MissingValue
	}
	return fmt.Sprintf("%.*f", decimals, v)
}

// formatMetricDB is formatMetric for decibels: -Inf is a silent channel
func formatMetricDB(v float64, decimals int) string {
	if math.IsInf(v, -1) {
		return "silent"
	}
	return formatMetric(v, decimals)
}

// formatPercent formats a 0-1 ratio as a percentage
func formatPercent(ratio float64, decimals int) string {
	return formatMetric(ratio*100, decimals)
}

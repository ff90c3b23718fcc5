// Package metrics exports detector activity to Prometheus
package metrics

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/linuxmatters/bang/internal/detector"
	"github.com/linuxmatters/bang/internal/processor"
)

// Recorder is a sink counting fire events, fed with progress snapshots for
// everything else.
type Recorder struct {
	eventsTotal  *prometheus.CounterVec
	level        *prometheus.GaugeVec
	windowsTotal prometheus.Counter
	framesTotal  prometheus.Counter
	droppedTotal prometheus.Counter
	runSeconds   prometheus.Gauge

	mu       sync.Mutex
	messages []string
	last     processor.Snapshot
}

// NewRecorder registers the detector metrics with reg. messages label the
// channels.
func NewRecorder(reg prometheus.Registerer, messages []string) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		messages: messages,

		eventsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bang_events_total",
				Help: "Total number of fire events per channel",
			},
			[]string{"channel", "message"},
		),

		level: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bang_channel_level",
				Help: "Masked running average of each channel at the last snapshot",
			},
			[]string{"channel", "message"},
		),

		windowsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "bang_windows_total",
				Help: "Total number of evaluation windows",
			},
		),

		framesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "bang_frames_total",
				Help: "Total number of audio frames processed",
			},
		),

		droppedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "bang_capture_dropped_periods_total",
				Help: "Total number of capture periods lost to overruns",
			},
		),

		runSeconds: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "bang_run_seconds",
				Help: "Time since the detector started",
			},
		),
	}
}

func (r *Recorder) labels(ch int) prometheus.Labels {
	msg := ""
	if ch < len(r.messages) {
		msg = r.messages[ch]
	}
	return prometheus.Labels{"channel": strconv.Itoa(ch), "message": msg}
}

// Emit implements output.Sink
func (r *Recorder) Emit(events []detector.FireEvent) error {
	for _, ev := range events {
		r.eventsTotal.With(r.labels(ev.Channel)).Inc()
	}
	return nil
}

// Close implements output.Sink
func (r *Recorder) Close() error { return nil }

// Observe updates the gauges from a snapshot and advances the counters by
// what changed since the previous one.
func (r *Recorder) Observe(s processor.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for ch, lvl := range s.Levels {
		r.level.With(r.labels(ch)).Set(float64(lvl))
	}
	if s.Windows > r.last.Windows {
		r.windowsTotal.Add(float64(s.Windows - r.last.Windows))
	}
	if s.Frames > r.last.Frames {
		r.framesTotal.Add(float64(s.Frames - r.last.Frames))
	}
	if s.Dropped > r.last.Dropped {
		r.droppedTotal.Add(float64(s.Dropped - r.last.Dropped))
	}
	r.runSeconds.Set(s.Elapsed.Seconds())
	r.last = s
}

// Handler serves the metrics gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

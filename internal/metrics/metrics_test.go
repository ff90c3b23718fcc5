package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/linuxmatters/bang/internal/detector"
	"github.com/linuxmatters/bang/internal/processor"
)

func TestRecorderCountsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg, []string{"kick", "snare"})

	err := r.Emit([]detector.FireEvent{
		{Channel: 0, Message: "kick"},
		{Channel: 1, Message: "snare"},
		{Channel: 0, Message: "kick"},
	})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	if got := testutil.ToFloat64(r.eventsTotal.WithLabelValues("0", "kick")); got != 2 {
		t.Errorf("kick events = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.eventsTotal.WithLabelValues("1", "snare")); got != 1 {
		t.Errorf("snare events = %v, want 1", got)
	}
}

func TestRecorderObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg, []string{"kick", "snare"})

	r.Observe(processor.Snapshot{Levels: []uint8{40, 3}, Windows: 10, Frames: 480, Elapsed: time.Second})
	r.Observe(processor.Snapshot{Levels: []uint8{200, 5}, Windows: 25, Frames: 1200, Dropped: 2, Elapsed: 2 * time.Second})

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"windows", r.windowsTotal, 25},
		{"frames", r.framesTotal, 1200},
		{"dropped", r.droppedTotal, 2},
		{"elapsed", r.runSeconds, 2},
		{"kick level", r.level.WithLabelValues("0", "kick"), 200},
		{"snare level", r.level.WithLabelValues("1", "snare"), 5},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(tt.c); got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg, []string{"kick"})
	_ = r.Emit([]detector.FireEvent{{Channel: 0, Message: "kick"}})

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `bang_events_total{channel="0",message="kick"} 1`) {
		t.Errorf("metrics output missing event counter:\n%s", body)
	}
}

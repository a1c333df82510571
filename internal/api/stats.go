package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// StatsSample is one throughput measurement of the log sink.
type StatsSample struct {
	Timestamp time.Time
	Entries   uint64
	Dropped   uint64
	Clients   int32
}

// handleThroughputChart renders the log sink throughput history as an
// ECharts line plot. Debugging-only endpoint; the real monitoring story is
// the viewer itself.
func (s *Server) handleThroughputChart(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		http.Error(w, "stats source not configured", http.StatusNotFound)
		return
	}
	samples := s.stats.Samples()
	if len(samples) == 0 {
		http.Error(w, "no samples yet", http.StatusNotFound)
		return
	}

	labels := make([]string, 0, len(samples))
	entries := make([]opts.LineData, 0, len(samples))
	dropped := make([]opts.LineData, 0, len(samples))
	clients := make([]opts.LineData, 0, len(samples))
	for _, sample := range samples {
		labels = append(labels, sample.Timestamp.Format("15:04:05"))
		entries = append(entries, opts.LineData{Value: sample.Entries})
		dropped = append(dropped, opts.LineData{Value: sample.Dropped})
		clients = append(clients, opts.LineData{Value: sample.Clients})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Log Sink Throughput", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Log sink throughput",
			Subtitle: fmt.Sprintf("samples=%d window=%s", len(samples), samples[len(samples)-1].Timestamp.Sub(samples[0].Timestamp).Round(time.Second)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	line.SetXAxis(labels).
		AddSeries("entries", entries).
		AddSeries("dropped", dropped).
		AddSeries("clients", clients)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

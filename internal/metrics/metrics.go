// Package metrics exposes Prometheus counters for the recording pipeline and
// the analysis path. A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "salescoach"

type Metrics struct {
	registry *prometheus.Registry

	BlocksCaptured    prometheus.Counter
	BlocksDropped     prometheus.Counter
	PayloadsSent      prometheus.Counter
	FragmentsReceived prometheus.Counter
	RecordingsStarted prometheus.Counter
	RecordingFailures *prometheus.CounterVec
	ActiveRecordings  prometheus.Gauge
	AnalysisDuration  prometheus.Histogram
	AnalysisFailures  prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		BlocksCaptured: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_blocks_captured_total",
			Help:      "Audio blocks delivered by the input device",
		}),
		BlocksDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_blocks_dropped_total",
			Help:      "Audio blocks dropped because the recorder queue was full",
		}),
		PayloadsSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_payloads_sent_total",
			Help:      "Encoded audio payloads handed to the transcription stream",
		}),
		FragmentsReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_fragments_received_total",
			Help:      "Transcript fragments appended to the running transcript",
		}),
		RecordingsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_started_total",
			Help:      "Recordings that reached the streaming state",
		}),
		RecordingFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recording_failures_total",
			Help:      "Recordings that ended in the failed state",
		}, []string{"reason"}),
		ActiveRecordings: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recordings_active",
			Help:      "Recordings currently streaming",
		}),
		AnalysisDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Latency of transcript analysis requests",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		}),
		AnalysisFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_failures_total",
			Help:      "Analysis requests that returned an error or a malformed result",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) BlockCaptured() {
	if m != nil {
		m.BlocksCaptured.Inc()
	}
}

func (m *Metrics) BlockDropped() {
	if m != nil {
		m.BlocksDropped.Inc()
	}
}

func (m *Metrics) PayloadSent() {
	if m != nil {
		m.PayloadsSent.Inc()
	}
}

func (m *Metrics) FragmentReceived() {
	if m != nil {
		m.FragmentsReceived.Inc()
	}
}

func (m *Metrics) RecordingStarted() {
	if m != nil {
		m.RecordingsStarted.Inc()
		m.ActiveRecordings.Inc()
	}
}

func (m *Metrics) RecordingEnded() {
	if m != nil {
		m.ActiveRecordings.Dec()
	}
}

func (m *Metrics) RecordingFailed(reason string) {
	if m != nil {
		m.RecordingFailures.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) ObserveAnalysis(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.AnalysisDuration.Observe(d.Seconds())
	if err != nil {
		m.AnalysisFailures.Inc()
	}
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics server shutdown failed", "error", err)
		}
	}()

	slog.Info("metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

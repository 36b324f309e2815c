package coach

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/foxseedlab/salescoach/internal/analysis"
	"github.com/foxseedlab/salescoach/internal/metrics"
	"github.com/foxseedlab/salescoach/internal/webhook"
	"github.com/google/uuid"
)

const webhookTimeout = 15 * time.Second

// Report is one completed analysis of a transcript.
type Report struct {
	ID          string
	Source      string
	Transcript  string
	Result      *analysis.Result
	GeneratedAt time.Time
}

type Service struct {
	analyzer analysis.Analyzer
	webhook  webhook.Sender
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(analyzer analysis.Analyzer, wh webhook.Sender, m *metrics.Metrics) *Service {
	return &Service{
		analyzer: analyzer,
		webhook:  wh,
		metrics:  m,
		now:      time.Now,
	}
}

// AnalyzeTranscript submits a full transcript for coaching feedback. Every
// failure is reported as analysis.ErrAnalysisFailed wrapping the cause, and no
// partial result is returned.
func (s *Service) AnalyzeTranscript(ctx context.Context, source, transcript string) (*Report, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil, fmt.Errorf("%w: %w", analysis.ErrAnalysisFailed, analysis.ErrEmptyTranscript)
	}

	reportID := uuid.NewString()
	slog.Info("analyzing transcript", "report_id", reportID, "source", source, "transcript_chars", len(transcript))

	started := s.now()
	res, err := s.analyzer.Analyze(ctx, transcript)
	if err == nil && res == nil {
		err = fmt.Errorf("%w: analyzer returned no result", analysis.ErrMalformedResponse)
	}
	s.metrics.ObserveAnalysis(s.now().Sub(started), err)
	if err != nil {
		slog.Error("transcript analysis failed", "report_id", reportID, "source", source, "error", err)
		return nil, fmt.Errorf("%w: %w", analysis.ErrAnalysisFailed, err)
	}

	report := &Report{
		ID:          reportID,
		Source:      source,
		Transcript:  transcript,
		Result:      res,
		GeneratedAt: s.now(),
	}
	s.deliver(ctx, report)
	return report, nil
}

func (s *Service) deliver(ctx context.Context, report *Report) {
	if s.webhook == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), webhookTimeout)
	defer cancel()
	err := s.webhook.SendReport(ctx, webhook.ReportPayload{
		ReportID:    report.ID,
		Source:      report.Source,
		Transcript:  report.Transcript,
		Analysis:    report.Result,
		GeneratedAt: report.GeneratedAt,
	})
	if err != nil {
		slog.Warn("failed to deliver coaching report", "report_id", report.ID, "error", err)
	}
}

package webhook

import (
	"context"
	"time"

	"github.com/foxseedlab/salescoach/internal/analysis"
)

type ReportPayload struct {
	ReportID    string           `json:"report_id"`
	Source      string           `json:"source"`
	Transcript  string           `json:"transcript"`
	Analysis    *analysis.Result `json:"analysis"`
	GeneratedAt time.Time        `json:"generated_at"`
}

type Sender interface {
	SendReport(ctx context.Context, payload ReportPayload) error
}

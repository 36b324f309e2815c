package analyzer

import (
	"time"

	"github.com/foxseedlab/salescoach/internal/analysis"
	"github.com/foxseedlab/salescoach/internal/config"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (analysis.Analyzer, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewOpenAIAnalyzer(Config{
			BaseURL: c.AnalysisBaseURL,
			APIKey:  c.GeminiAPIKey,
			Model:   c.AnalysisModel,
			Timeout: time.Duration(c.AnalysisTimeoutSec) * time.Second,
		}), nil
	})
}

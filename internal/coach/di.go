package coach

import (
	"github.com/foxseedlab/salescoach/internal/analysis"
	"github.com/foxseedlab/salescoach/internal/metrics"
	"github.com/foxseedlab/salescoach/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Service, error) {
		analyzer := do.MustInvoke[analysis.Analyzer](i)
		wh := do.MustInvoke[webhook.Sender](i)
		m := do.MustInvoke[*metrics.Metrics](i)
		return NewService(analyzer, wh, m), nil
	})
}

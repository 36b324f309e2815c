package session

import (
	"github.com/foxseedlab/salescoach/internal/audio"
	"github.com/foxseedlab/salescoach/internal/metrics"
	"github.com/foxseedlab/salescoach/internal/transcriber"
	"github.com/samber/do/v2"
)

// RecorderFactory builds a Recorder wired to the configured device and
// transcriber. Hooks are supplied by the caller that presents the output.
type RecorderFactory func(hooks Hooks) *Recorder

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (RecorderFactory, error) {
		capturer := do.MustInvoke[audio.Capturer](i)
		stt := do.MustInvoke[transcriber.Transcriber](i)
		format := do.MustInvoke[audio.Format](i)
		m := do.MustInvoke[*metrics.Metrics](i)
		return func(hooks Hooks) *Recorder {
			return NewRecorder(capturer, stt, Options{
				Format:  format,
				Metrics: m,
				Hooks:   hooks,
			})
		}, nil
	})
}

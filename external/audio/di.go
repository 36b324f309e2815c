package audio

import (
	"log/slog"

	"github.com/foxseedlab/salescoach/internal/audio"
	"github.com/foxseedlab/salescoach/internal/config"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (audio.Capturer, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewCapturer(c.AudioBackend), nil
	})
	do.Provide(injector, func(i do.Injector) (audio.Format, error) {
		c := do.MustInvoke[*config.Config](i)
		format := audio.DefaultFormat()
		format.BlockSize = c.AudioBlockSize
		return format, nil
	})
}

func NewCapturer(backend string) audio.Capturer {
	if backend == config.AudioBackendPortAudio {
		if !PortAudioAvailable {
			slog.Warn("portaudio backend requested but not compiled in; opening will fail")
		}
		return NewPortAudioCapturer()
	}
	return NewMalgoCapturer()
}

package transcriber

import (
	"fmt"

	"github.com/foxseedlab/salescoach/internal/config"
	"github.com/foxseedlab/salescoach/internal/transcriber"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (transcriber.Transcriber, error) {
		c := do.MustInvoke[*config.Config](i)
		return New(c)
	})
}

// New builds the transcriber selected by TRANSCRIBER_PROVIDER.
func New(c *config.Config) (transcriber.Transcriber, error) {
	switch c.TranscriberProvider {
	case config.ProviderGemini:
		return NewGeminiLiveTranscriber(GeminiLiveConfig{
			Endpoint: c.GeminiLiveEndpoint,
			APIKey:   c.GeminiAPIKey,
			Model:    c.GeminiLiveModel,
		}), nil
	case config.ProviderDeepgram:
		return NewDeepgramTranscriber(DeepgramConfig{
			APIKey:   c.DeepgramAPIKey,
			Model:    c.DeepgramModel,
			Language: c.TranscribeLanguage,
		}), nil
	case config.ProviderCloudSpeech:
		return NewCloudSpeechTranscriber(CloudSpeechConfig{
			ProjectID:       c.GoogleCloudProjectID,
			CredentialsJSON: c.GoogleCloudCredentialsJSON,
			Language:        c.TranscribeLanguage,
			Location:        c.GoogleCloudSpeechLocation,
			Model:           c.GoogleCloudSpeechModel,
		}), nil
	default:
		return nil, fmt.Errorf("unknown transcriber provider %q", c.TranscriberProvider)
	}
}

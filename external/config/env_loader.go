package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/salescoach/internal/config"
	"github.com/joho/godotenv"
)

type envConfig struct {
	Env                        string `env:"ENV" envDefault:"production"`
	GeminiAPIKey               string `env:"GEMINI_API_KEY,required"`
	TranscriberProvider        string `env:"TRANSCRIBER_PROVIDER" envDefault:"gemini"`
	GeminiLiveEndpoint         string `env:"GEMINI_LIVE_ENDPOINT" envDefault:"wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"`
	GeminiLiveModel            string `env:"GEMINI_LIVE_MODEL" envDefault:"gemini-2.5-flash-native-audio-preview-09-2025"`
	DeepgramAPIKey             string `env:"DEEPGRAM_API_KEY"`
	DeepgramModel              string `env:"DEEPGRAM_MODEL" envDefault:"nova-2"`
	GoogleCloudProjectID       string `env:"GOOGLE_CLOUD_PROJECT_ID"`
	GoogleCloudCredentialsJSON string `env:"GOOGLE_CLOUD_CREDENTIALS_JSON"`
	GoogleCloudSpeechLocation  string `env:"GOOGLE_CLOUD_SPEECH_LOCATION" envDefault:"global"`
	GoogleCloudSpeechModel     string `env:"GOOGLE_CLOUD_SPEECH_MODEL" envDefault:"long"`
	TranscribeLanguage         string `env:"TRANSCRIBE_LANGUAGE" envDefault:"en-US"`
	AudioBackend               string `env:"AUDIO_BACKEND" envDefault:"malgo"`
	AudioBlockSize             int    `env:"AUDIO_BLOCK_SIZE" envDefault:"4096"`
	AnalysisBaseURL            string `env:"ANALYSIS_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta/openai"`
	AnalysisModel              string `env:"ANALYSIS_MODEL" envDefault:"gemini-2.5-pro"`
	AnalysisTimeoutSec         int    `env:"ANALYSIS_TIMEOUT_SEC" envDefault:"120"`
	AnalysisWebhookURL         string `env:"ANALYSIS_WEBHOOK_URL"`
	MetricsAddr                string `env:"METRICS_ADDR"`
}

// Load reads an optional .env file, then the process environment.
// Variables already set in the environment win over the file.
func Load(dotenvFiles ...string) (*internalconfig.Config, error) {
	if err := godotenv.Load(dotenvFiles...); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read .env file: %w", err)
		}
		slog.Debug("no .env file found; using process environment")
	}

	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                        raw.Env,
		GeminiAPIKey:               raw.GeminiAPIKey,
		TranscriberProvider:        raw.TranscriberProvider,
		GeminiLiveEndpoint:         raw.GeminiLiveEndpoint,
		GeminiLiveModel:            raw.GeminiLiveModel,
		DeepgramAPIKey:             raw.DeepgramAPIKey,
		DeepgramModel:              raw.DeepgramModel,
		GoogleCloudProjectID:       raw.GoogleCloudProjectID,
		GoogleCloudCredentialsJSON: raw.GoogleCloudCredentialsJSON,
		GoogleCloudSpeechLocation:  raw.GoogleCloudSpeechLocation,
		GoogleCloudSpeechModel:     raw.GoogleCloudSpeechModel,
		TranscribeLanguage:         raw.TranscribeLanguage,
		AudioBackend:               raw.AudioBackend,
		AudioBlockSize:             raw.AudioBlockSize,
		AnalysisBaseURL:            raw.AnalysisBaseURL,
		AnalysisModel:              raw.AnalysisModel,
		AnalysisTimeoutSec:         raw.AnalysisTimeoutSec,
		AnalysisWebhookURL:         raw.AnalysisWebhookURL,
		MetricsAddr:                raw.MetricsAddr,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

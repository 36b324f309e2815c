package config

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	ProviderGemini      = "gemini"
	ProviderCloudSpeech = "cloudspeech"
	ProviderDeepgram    = "deepgram"

	AudioBackendMalgo     = "malgo"
	AudioBackendPortAudio = "portaudio"
)

type Config struct {
	Env                        string
	GeminiAPIKey               string
	TranscriberProvider        string
	GeminiLiveEndpoint         string
	GeminiLiveModel            string
	DeepgramAPIKey             string
	DeepgramModel              string
	GoogleCloudProjectID       string
	GoogleCloudCredentialsJSON string
	GoogleCloudSpeechLocation  string
	GoogleCloudSpeechModel     string
	TranscribeLanguage         string
	AudioBackend               string
	AudioBlockSize             int
	AnalysisBaseURL            string
	AnalysisModel              string
	AnalysisTimeoutSec         int
	AnalysisWebhookURL         string
	MetricsAddr                string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if strings.TrimSpace(req.value) == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	switch c.TranscriberProvider {
	case ProviderGemini:
		if c.GeminiLiveModel == "" {
			return fmt.Errorf("GEMINI_LIVE_MODEL is required when TRANSCRIBER_PROVIDER=%s", ProviderGemini)
		}
	case ProviderCloudSpeech:
		if c.GoogleCloudProjectID == "" || c.GoogleCloudCredentialsJSON == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT_ID and GOOGLE_CLOUD_CREDENTIALS_JSON are required when TRANSCRIBER_PROVIDER=%s", ProviderCloudSpeech)
		}
	case ProviderDeepgram:
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required when TRANSCRIBER_PROVIDER=%s", ProviderDeepgram)
		}
	default:
		return fmt.Errorf("TRANSCRIBER_PROVIDER must be one of %s, %s, %s, got %q", ProviderGemini, ProviderCloudSpeech, ProviderDeepgram, c.TranscriberProvider)
	}
	if c.AudioBackend != AudioBackendMalgo && c.AudioBackend != AudioBackendPortAudio {
		return fmt.Errorf("AUDIO_BACKEND must be %s or %s, got %q", AudioBackendMalgo, AudioBackendPortAudio, c.AudioBackend)
	}
	if c.AudioBlockSize <= 0 {
		return fmt.Errorf("AUDIO_BLOCK_SIZE must be positive, got %d", c.AudioBlockSize)
	}
	if c.AnalysisTimeoutSec <= 0 {
		return fmt.Errorf("ANALYSIS_TIMEOUT_SEC must be positive, got %d", c.AnalysisTimeoutSec)
	}
	if _, err := url.ParseRequestURI(c.AnalysisBaseURL); err != nil {
		return fmt.Errorf("ANALYSIS_BASE_URL is invalid: %w", err)
	}
	if c.AnalysisWebhookURL != "" {
		if _, err := url.ParseRequestURI(c.AnalysisWebhookURL); err != nil {
			return fmt.Errorf("ANALYSIS_WEBHOOK_URL is invalid: %w", err)
		}
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "GEMINI_API_KEY", value: c.GeminiAPIKey},
		{name: "TRANSCRIBE_LANGUAGE", value: c.TranscribeLanguage},
		{name: "ANALYSIS_MODEL", value: c.AnalysisModel},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

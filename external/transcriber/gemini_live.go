package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/foxseedlab/salescoach/internal/audio"
	"github.com/foxseedlab/salescoach/internal/transcriber"
	"github.com/gorilla/websocket"
)

const (
	ProviderGemini = "gemini"

	geminiHandshakeTimeout = 15 * time.Second
)

type GeminiLiveConfig struct {
	Endpoint string
	APIKey   string
	Model    string
}

type GeminiLiveTranscriber struct {
	endpoint string
	apiKey   string
	model    string
	dialer   *websocket.Dialer
}

func NewGeminiLiveTranscriber(cfg GeminiLiveConfig) *GeminiLiveTranscriber {
	return &GeminiLiveTranscriber{
		endpoint: strings.TrimSpace(cfg.Endpoint),
		apiKey:   strings.TrimSpace(cfg.APIKey),
		model:    strings.TrimSpace(cfg.Model),
		dialer:   &websocket.Dialer{HandshakeTimeout: geminiHandshakeTimeout},
	}
}

func (t *GeminiLiveTranscriber) Provider() string {
	return ProviderGemini
}

func (t *GeminiLiveTranscriber) StartStreaming(ctx context.Context, sessionID string, receiver transcriber.ResultReceiver) (transcriber.StreamWriter, error) {
	if t.apiKey == "" {
		return nil, fmt.Errorf("%w: gemini api key is not configured", transcriber.ErrConnection)
	}
	slog.Info("starting gemini live streaming", "session_id", sessionID, "model", t.model)

	u, err := url.Parse(t.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid gemini live endpoint: %v", transcriber.ErrConnection, err)
	}
	q := u.Query()
	q.Set("key", t.apiKey)
	u.RawQuery = q.Encode()

	conn, _, err := t.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial gemini live: %v", transcriber.ErrConnection, err)
	}
	if err := t.handshake(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %v", transcriber.ErrConnection, err)
	}
	slog.Info("gemini live session ready", "session_id", sessionID)

	return newWSStream(ProviderGemini, sessionID, conn, geminiCodec{}, receiver), nil
}

// handshake sends the setup message and waits for setupComplete.
func (t *GeminiLiveTranscriber) handshake(ctx context.Context, conn *websocket.Conn) error {
	model := t.model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	setup := geminiClientMessage{
		Setup: &geminiSetup{
			Model:                   model,
			GenerationConfig:        geminiGenerationConfig{ResponseModalities: []string{"AUDIO"}},
			InputAudioTranscription: &struct{}{},
		},
	}
	deadline := time.Now().Add(geminiHandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(setup); err != nil {
		return fmt.Errorf("send setup: %w", err)
	}
	_ = conn.SetWriteDeadline(time.Time{})

	_ = conn.SetReadDeadline(deadline)
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return fmt.Errorf("setup rejected: %s", closeErr.Text)
			}
			return fmt.Errorf("await setup: %w", err)
		}
		var msg geminiServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("decode setup response: %w", err)
		}
		if msg.SetupComplete != nil {
			return nil
		}
	}
}

type geminiClientMessage struct {
	Setup         *geminiSetup         `json:"setup,omitempty"`
	RealtimeInput *geminiRealtimeInput `json:"realtimeInput,omitempty"`
}

type geminiSetup struct {
	Model                   string                 `json:"model"`
	GenerationConfig        geminiGenerationConfig `json:"generationConfig"`
	InputAudioTranscription *struct{}              `json:"inputAudioTranscription,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string `json:"responseModalities"`
}

type geminiRealtimeInput struct {
	Audio          *geminiBlob `json:"audio,omitempty"`
	AudioStreamEnd bool        `json:"audioStreamEnd,omitempty"`
}

type geminiBlob struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

type geminiServerMessage struct {
	SetupComplete *struct{} `json:"setupComplete,omitempty"`
	ServerContent *struct {
		InputTranscription *struct {
			Text string `json:"text"`
		} `json:"inputTranscription,omitempty"`
	} `json:"serverContent,omitempty"`
	GoAway *struct {
		TimeLeft string `json:"timeLeft"`
	} `json:"goAway,omitempty"`
}

type geminiCodec struct{}

func (geminiCodec) encodeAudio(p audio.Payload) (wsMessage, error) {
	b, err := json.Marshal(geminiClientMessage{
		RealtimeInput: &geminiRealtimeInput{
			Audio: &geminiBlob{Data: p.Data, MimeType: p.MimeType},
		},
	})
	if err != nil {
		return wsMessage{}, err
	}
	return wsMessage{messageType: websocket.TextMessage, data: b}, nil
}

func (geminiCodec) decode(data []byte) ([]string, error) {
	var msg geminiServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.GoAway != nil {
		slog.Warn("gemini live announced disconnect", "time_left", msg.GoAway.TimeLeft)
	}
	if msg.ServerContent == nil || msg.ServerContent.InputTranscription == nil {
		return nil, nil
	}
	if text := msg.ServerContent.InputTranscription.Text; text != "" {
		return []string{text}, nil
	}
	return nil, nil
}

func (geminiCodec) endOfStream() (wsMessage, bool) {
	b, err := json.Marshal(geminiClientMessage{RealtimeInput: &geminiRealtimeInput{AudioStreamEnd: true}})
	if err != nil {
		return wsMessage{}, false
	}
	return wsMessage{messageType: websocket.TextMessage, data: b}, true
}

package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/foxseedlab/salescoach/internal/audio"
	"github.com/foxseedlab/salescoach/internal/transcriber"
	"github.com/gorilla/websocket"
)

const (
	ProviderDeepgram = "deepgram"

	deepgramDefaultEndpoint = "wss://api.deepgram.com/v1/listen"
	deepgramDialTimeout     = 10 * time.Second
)

type DeepgramConfig struct {
	Endpoint string
	APIKey   string
	Model    string
	Language string
}

type DeepgramTranscriber struct {
	endpoint string
	apiKey   string
	model    string
	language string
	dialer   *websocket.Dialer
}

func NewDeepgramTranscriber(cfg DeepgramConfig) *DeepgramTranscriber {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = deepgramDefaultEndpoint
	}
	return &DeepgramTranscriber{
		endpoint: endpoint,
		apiKey:   strings.TrimSpace(cfg.APIKey),
		model:    strings.TrimSpace(cfg.Model),
		language: strings.TrimSpace(cfg.Language),
		dialer:   &websocket.Dialer{HandshakeTimeout: deepgramDialTimeout},
	}
}

func (t *DeepgramTranscriber) Provider() string {
	return ProviderDeepgram
}

func (t *DeepgramTranscriber) StartStreaming(ctx context.Context, sessionID string, receiver transcriber.ResultReceiver) (transcriber.StreamWriter, error) {
	if t.apiKey == "" {
		return nil, fmt.Errorf("%w: deepgram api key is not configured", transcriber.ErrConnection)
	}
	slog.Info("starting deepgram streaming", "session_id", sessionID, "model", t.model, "language", t.language)

	u, err := url.Parse(t.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid deepgram endpoint: %v", transcriber.ErrConnection, err)
	}
	q := u.Query()
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(audio.SampleRateHertz))
	q.Set("channels", strconv.Itoa(audio.ChannelCount))
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	if t.model != "" {
		q.Set("model", t.model)
	}
	if t.language != "" {
		q.Set("language", t.language)
	}
	u.RawQuery = q.Encode()

	header := http.Header{"Authorization": {"Token " + t.apiKey}}
	conn, resp, err := t.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: dial deepgram: status %d: %v", transcriber.ErrConnection, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: dial deepgram: %v", transcriber.ErrConnection, err)
	}
	slog.Info("deepgram stream connected", "session_id", sessionID)

	return newWSStream(ProviderDeepgram, sessionID, conn, deepgramCodec{}, receiver), nil
}

type deepgramResult struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type deepgramCodec struct{}

func (deepgramCodec) encodeAudio(p audio.Payload) (wsMessage, error) {
	pcm, err := p.PCM()
	if err != nil {
		return wsMessage{}, err
	}
	return wsMessage{messageType: websocket.BinaryMessage, data: pcm}, nil
}

// decode forwards final results only; interim hypotheses would be replaced
// later and break the additive contract.
func (deepgramCodec) decode(data []byte) ([]string, error) {
	var res deepgramResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, err
	}
	if res.Type != "" && res.Type != "Results" {
		return nil, nil
	}
	if !res.IsFinal || len(res.Channel.Alternatives) == 0 {
		return nil, nil
	}
	text := strings.TrimSpace(res.Channel.Alternatives[0].Transcript)
	if text == "" {
		return nil, nil
	}
	return []string{text + " "}, nil
}

func (deepgramCodec) endOfStream() (wsMessage, bool) {
	return wsMessage{messageType: websocket.TextMessage, data: []byte(`{"type":"CloseStream"}`)}, true
}

package transcriber

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/auth/credentials"
	speech "cloud.google.com/go/speech/apiv2"
	speechpb "cloud.google.com/go/speech/apiv2/speechpb"
	"github.com/foxseedlab/salescoach/internal/audio"
	"github.com/foxseedlab/salescoach/internal/transcriber"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	ProviderCloudSpeech = "cloudspeech"

	speechAPIEndpointPort = 443

	// receiverHandoffTimeout bounds how long a reconnected stream waits for the
	// previous stream's last results.
	receiverHandoffTimeout = 5 * time.Second
)

type CloudSpeechConfig struct {
	ProjectID       string
	CredentialsJSON string
	Language        string
	Location        string
	Model           string
}

type CloudSpeechTranscriber struct {
	projectID       string
	credentialsJSON string
	language        string
	location        string
	model           string
}

func NewCloudSpeechTranscriber(cfg CloudSpeechConfig) *CloudSpeechTranscriber {
	location := strings.TrimSpace(cfg.Location)
	if location == "" {
		location = "global"
	}
	return &CloudSpeechTranscriber{
		projectID:       cfg.ProjectID,
		credentialsJSON: cfg.CredentialsJSON,
		language:        cfg.Language,
		location:        location,
		model:           strings.TrimSpace(cfg.Model),
	}
}

func (t *CloudSpeechTranscriber) Provider() string {
	return ProviderCloudSpeech
}

func (t *CloudSpeechTranscriber) StartStreaming(ctx context.Context, sessionID string, receiver transcriber.ResultReceiver) (transcriber.StreamWriter, error) {
	slog.Info("starting cloud speech streaming", "session_id", sessionID, "location", t.location, "language", t.language, "model", t.model)

	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsJSON: []byte(t.credentialsJSON),
		Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: detect credentials: %v", transcriber.ErrConnection, err)
	}

	opts := []option.ClientOption{
		option.WithAuthCredentials(creds),
	}
	if t.location != "global" {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-speech.googleapis.com:%d", t.location, speechAPIEndpointPort)))
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: create speech client: %v", transcriber.ErrConnection, err)
	}

	recognizer := fmt.Sprintf("projects/%s/locations/%s/recognizers/_", t.projectID, t.location)
	openStream := func() (speechpb.Speech_StreamingRecognizeClient, error) {
		s, err := client.StreamingRecognize(ctx)
		if err != nil {
			return nil, err
		}
		err = s.Send(&speechpb.StreamingRecognizeRequest{
			Recognizer: recognizer,
			StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
				StreamingConfig: &speechpb.StreamingRecognitionConfig{
					Config: &speechpb.RecognitionConfig{
						Model:         t.model,
						LanguageCodes: []string{t.language},
						DecodingConfig: &speechpb.RecognitionConfig_ExplicitDecodingConfig{
							ExplicitDecodingConfig: &speechpb.ExplicitDecodingConfig{
								Encoding:          speechpb.ExplicitDecodingConfig_LINEAR16,
								SampleRateHertz:   audio.SampleRateHertz,
								AudioChannelCount: audio.ChannelCount,
							},
						},
						Features: &speechpb.RecognitionFeatures{EnableAutomaticPunctuation: true},
					},
				},
			},
		})
		if err != nil {
			_ = s.CloseSend()
			return nil, err
		}
		return s, nil
	}

	stream, err := openStream()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: open recognize stream: %v", transcriber.ErrConnection, err)
	}
	slog.Info("cloud speech stream initialized", "session_id", sessionID)

	w := &streamWriter{
		sessionID:   sessionID,
		stream:      stream,
		receiver:    receiver,
		newStreamFn: openStream,
		closeFn:     client.Close,
	}
	w.handle.MarkOpen()
	w.out = newOutbox(sessionID, defaultOutboxSize, w.send, w.fail)
	w.recvDone = w.startReceiver(stream, nil)

	return w, nil
}

// streamWriter reconnects transparently when Cloud Speech ends a stream at its
// duration limit.
type streamWriter struct {
	sessionID   string
	handle      transcriber.Handle
	out         *outbox
	receiver    transcriber.ResultReceiver
	newStreamFn func() (speechpb.Speech_StreamingRecognizeClient, error)
	closeFn     func() error

	mu       sync.Mutex
	stream   speechpb.Speech_StreamingRecognizeClient
	recvDone <-chan struct{}
}

func (w *streamWriter) Write(p audio.Payload) error {
	if !w.handle.IsOpen() {
		return nil
	}
	w.out.push(p)
	return nil
}

func (w *streamWriter) Close() error {
	if !w.handle.MarkClosed() {
		return nil
	}
	w.out.close()
	slog.Info("closing cloud speech stream", "session_id", w.sessionID)
	go func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if err := w.stream.CloseSend(); err != nil {
			slog.Warn("failed to half-close cloud speech stream", "session_id", w.sessionID, "error", err)
		}
		if err := w.closeFn(); err != nil {
			slog.Warn("failed to close cloud speech client", "session_id", w.sessionID, "error", err)
		}
	}()
	return nil
}

func (w *streamWriter) send(p audio.Payload) error {
	pcm, err := p.PCM()
	if err != nil {
		slog.Warn("dropping undecodable audio payload", "session_id", w.sessionID, "error", err)
		return nil
	}
	req := &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_Audio{
			Audio: pcm,
		},
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.handle.IsOpen() {
		return nil
	}
	if err := w.stream.Send(req); err != nil {
		if !isReconnectableStreamError(err) {
			return err
		}
		slog.Warn("cloud speech send failed with reconnectable error; reconnecting", "session_id", w.sessionID, "error", err)
		if err := w.reconnectLocked(); err != nil {
			return fmt.Errorf("reconnect stream: %w", err)
		}
		return w.stream.Send(req)
	}
	return nil
}

func (w *streamWriter) reconnectLocked() error {
	_ = w.stream.CloseSend()
	next, err := w.newStreamFn()
	if err != nil {
		slog.Error("failed to reconnect cloud speech stream", "session_id", w.sessionID, "error", err)
		return err
	}
	w.stream = next
	w.recvDone = w.startReceiver(next, w.recvDone)
	slog.Info("cloud speech stream reconnected", "session_id", w.sessionID)
	return nil
}

func (w *streamWriter) current(stream speechpb.Speech_StreamingRecognizeClient) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stream == stream
}

func (w *streamWriter) fail(err error) {
	if !w.handle.MarkClosed() {
		return
	}
	w.out.close()
	slog.Error("cloud speech stream failed", "session_id", w.sessionID, "error", err)
	go func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		_ = w.closeFn()
	}()
	w.receiver.OnError(fmt.Errorf("%w: %s: %v", transcriber.ErrConnection, ProviderCloudSpeech, err))
}

// startReceiver forwards final results only. Interim hypotheses are revised by
// the service and cannot be appended. The returned channel closes when the
// receiver exits; a receiver started with prev forwards nothing until prev is
// closed, so results keep their order across a reconnect.
func (w *streamWriter) startReceiver(stream speechpb.Speech_StreamingRecognizeClient, prev <-chan struct{}) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if prev != nil {
			select {
			case <-prev:
			case <-time.After(receiverHandoffTimeout):
				slog.Warn("previous cloud speech receiver did not finish; continuing", "session_id", w.sessionID)
			}
		}
		for {
			resp, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled || errors.Is(err, context.Canceled) {
					slog.Info("cloud speech receive loop stopped", "session_id", w.sessionID, "reason", err.Error())
					return
				}
				if isReconnectableStreamError(err) {
					slog.Warn("cloud speech receive loop ended with reconnectable abort", "session_id", w.sessionID, "error", err)
					return
				}
				if w.current(stream) {
					w.fail(err)
				}
				return
			}
			for _, result := range resp.GetResults() {
				if !result.GetIsFinal() || len(result.GetAlternatives()) == 0 {
					continue
				}
				text := strings.TrimSpace(result.GetAlternatives()[0].GetTranscript())
				if text == "" || !w.handle.IsOpen() {
					continue
				}
				w.receiver.OnTranscript(text + " ")
			}
		}
	}()
	return done
}

func isReconnectableStreamError(err error) bool {
	if errors.Is(err, io.EOF) || strings.Contains(strings.ToLower(err.Error()), "eof") {
		return true
	}
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Aborted {
		return false
	}
	msg := strings.ToLower(st.Message())
	return strings.Contains(msg, "max duration of 5 minutes") ||
		strings.Contains(msg, "stream timed out after receiving no more client requests")
}

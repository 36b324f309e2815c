package transcriber

import (
	"context"
	"errors"

	"github.com/foxseedlab/salescoach/internal/audio"
)

// ErrConnection covers failures to open, feed or keep a transcription stream.
var ErrConnection = errors.New("transcription connection error")

// StreamWriter is the handle of one open stream. Write never blocks on the network
// and is a no-op once Close has been requested. Close does not wait for the remote side.
type StreamWriter interface {
	Write(payload audio.Payload) error
	Close() error
}

// ResultReceiver gets fragments in arrival order. Fragments are additive deltas.
// At most one of OnError or OnClose is called, and only for remote termination.
type ResultReceiver interface {
	OnTranscript(fragment string)
	OnError(err error)
	OnClose()
}

type Transcriber interface {
	StartStreaming(ctx context.Context, sessionID string, receiver ResultReceiver) (StreamWriter, error)
	Provider() string
}

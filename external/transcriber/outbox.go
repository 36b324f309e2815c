package transcriber

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/foxseedlab/salescoach/internal/audio"
)

const defaultOutboxSize = 32

// outbox decouples Write from network I/O. One goroutine drains the queue so
// payloads leave in the order they were pushed.
type outbox struct {
	queue     chan audio.Payload
	done      chan struct{}
	closeOnce sync.Once
	send      func(audio.Payload) error
	onErr     func(error)
	dropped   atomic.Int64
	sessionID string
}

func newOutbox(sessionID string, size int, send func(audio.Payload) error, onErr func(error)) *outbox {
	if size <= 0 {
		size = defaultOutboxSize
	}
	o := &outbox{
		queue:     make(chan audio.Payload, size),
		done:      make(chan struct{}),
		send:      send,
		onErr:     onErr,
		sessionID: sessionID,
	}
	go o.run()
	return o
}

func (o *outbox) push(p audio.Payload) {
	select {
	case <-o.done:
		return
	default:
	}
	select {
	case o.queue <- p:
	default:
		n := o.dropped.Add(1)
		if n == 1 || n%50 == 0 {
			slog.Warn("transcription outbox full; dropping audio payload", "session_id", o.sessionID, "dropped", n)
		}
	}
}

func (o *outbox) run() {
	for {
		select {
		case <-o.done:
			return
		case p := <-o.queue:
			if err := o.send(p); err != nil {
				select {
				case <-o.done:
					return
				default:
				}
				o.onErr(err)
				return
			}
		}
	}
}

func (o *outbox) close() {
	o.closeOnce.Do(func() { close(o.done) })
}

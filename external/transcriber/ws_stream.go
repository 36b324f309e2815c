package transcriber

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foxseedlab/salescoach/internal/audio"
	"github.com/foxseedlab/salescoach/internal/transcriber"
	"github.com/gorilla/websocket"
)

const (
	wsCloseTimeout = 2 * time.Second
	wsWriteTimeout = 5 * time.Second
)

type wsMessage struct {
	messageType int
	data        []byte
}

// wsCodec maps payloads and inbound frames for one provider's wire format.
type wsCodec interface {
	encodeAudio(p audio.Payload) (wsMessage, error)
	decode(data []byte) ([]string, error)
	endOfStream() (wsMessage, bool)
}

type wsStream struct {
	provider  string
	sessionID string
	conn      *websocket.Conn
	codec     wsCodec
	receiver  transcriber.ResultReceiver
	handle    transcriber.Handle
	out       *outbox

	writeMu      sync.Mutex
	shutdownOnce sync.Once
}

// newWSStream takes ownership of a connection that already passed the
// provider's readiness handshake.
func newWSStream(provider, sessionID string, conn *websocket.Conn, codec wsCodec, receiver transcriber.ResultReceiver) *wsStream {
	s := &wsStream{
		provider:  provider,
		sessionID: sessionID,
		conn:      conn,
		codec:     codec,
		receiver:  receiver,
	}
	s.out = newOutbox(sessionID, defaultOutboxSize, s.sendPayload, s.failRemote)
	s.handle.MarkOpen()
	go s.readLoop()
	return s
}

func (s *wsStream) Write(p audio.Payload) error {
	if !s.handle.IsOpen() {
		return nil
	}
	s.out.push(p)
	return nil
}

func (s *wsStream) Close() error {
	if !s.handle.MarkClosed() {
		return nil
	}
	s.out.close()
	slog.Info("closing transcription stream", "provider", s.provider, "session_id", s.sessionID)
	// A send stalled on a peer that stopped reading holds writeMu until its
	// deadline; closing the conn unblocks it.
	timer := time.AfterFunc(wsCloseTimeout, s.shutdown)
	go func() {
		defer timer.Stop()
		s.writeMu.Lock()
		_ = s.conn.SetWriteDeadline(time.Now().Add(wsCloseTimeout))
		if msg, ok := s.codec.endOfStream(); ok {
			_ = s.conn.WriteMessage(msg.messageType, msg.data)
		}
		_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		s.shutdown()
	}()
	return nil
}

func (s *wsStream) sendPayload(p audio.Payload) error {
	msg, err := s.codec.encodeAudio(p)
	if err != nil {
		slog.Warn("failed to encode payload for transcription stream", "provider", s.provider, "session_id", s.sessionID, "error", err)
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteMessage(msg.messageType, msg.data)
}

func (s *wsStream) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.closeRemote()
				return
			}
			s.failRemote(err)
			return
		}
		fragments, err := s.codec.decode(data)
		if err != nil {
			slog.Warn("failed to decode transcription message", "provider", s.provider, "session_id", s.sessionID, "error", err)
			continue
		}
		for _, f := range fragments {
			if !s.handle.IsOpen() {
				return
			}
			s.receiver.OnTranscript(f)
		}
	}
}

func (s *wsStream) closeRemote() {
	if !s.handle.MarkClosed() {
		return
	}
	slog.Info("transcription stream closed by remote", "provider", s.provider, "session_id", s.sessionID)
	s.shutdown()
	s.receiver.OnClose()
}

func (s *wsStream) failRemote(err error) {
	if !s.handle.MarkClosed() {
		slog.Debug("transcription stream error after close ignored", "provider", s.provider, "session_id", s.sessionID, "error", err)
		return
	}
	slog.Error("transcription stream failed", "provider", s.provider, "session_id", s.sessionID, "error", err)
	s.shutdown()
	s.receiver.OnError(fmt.Errorf("%w: %s: %v", transcriber.ErrConnection, s.provider, err))
}

func (s *wsStream) shutdown() {
	s.shutdownOnce.Do(func() {
		s.out.close()
		_ = s.conn.Close()
	})
}

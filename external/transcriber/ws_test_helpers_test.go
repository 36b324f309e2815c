package transcriber

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/foxseedlab/salescoach/internal/audio"
	"github.com/gorilla/websocket"
)

type fakeReceiver struct {
	mu        sync.Mutex
	fragments []string
	errs      []error
	closes    int
	fragCh    chan string
	endCh     chan struct{}
}

func newFakeReceiver() *fakeReceiver {
	return &fakeReceiver{
		fragCh: make(chan string, 16),
		endCh:  make(chan struct{}, 2),
	}
}

func (r *fakeReceiver) OnTranscript(fragment string) {
	r.mu.Lock()
	r.fragments = append(r.fragments, fragment)
	r.mu.Unlock()
	r.fragCh <- fragment
}

func (r *fakeReceiver) OnError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	r.endCh <- struct{}{}
}

func (r *fakeReceiver) OnClose() {
	r.mu.Lock()
	r.closes++
	r.mu.Unlock()
	r.endCh <- struct{}{}
}

func (r *fakeReceiver) snapshot() ([]string, []error, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.fragments...), append([]error(nil), r.errs...), r.closes
}

func (r *fakeReceiver) waitFragment(t *testing.T) string {
	t.Helper()
	select {
	case f := <-r.fragCh:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transcript fragment")
		return ""
	}
}

func (r *fakeReceiver) waitEnd(t *testing.T) {
	t.Helper()
	select {
	case <-r.endCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream end")
	}
}

func newWSServer(t *testing.T, handle func(conn *websocket.Conn, r *http.Request)) (*httptest.Server, string) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		handle(conn, r)
	}))
	t.Cleanup(server.Close)
	return server, "ws" + strings.TrimPrefix(server.URL, "http")
}

func testPayload(t *testing.T) audio.Payload {
	t.Helper()
	enc := audio.NewPCMEncoder(audio.Format{SampleRateHertz: audio.SampleRateHertz, Channels: audio.ChannelCount, BlockSize: 4})
	p, err := enc.Encode(audio.Block{0, 0.5, -0.5, 1})
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	return p
}

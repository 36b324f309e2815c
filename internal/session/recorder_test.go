package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/foxseedlab/salescoach/internal/audio"
	"github.com/foxseedlab/salescoach/internal/transcriber"
)

const testBlockSize = 4

type mockInputStream struct {
	mu           sync.Mutex
	stopCalls    int
	closeCall    int
	stopErr      error
	panicOnClose bool
}

func (m *mockInputStream) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalls++
	return m.stopErr
}

func (m *mockInputStream) Close() error {
	m.mu.Lock()
	m.closeCall++
	m.mu.Unlock()
	if m.panicOnClose {
		panic("device already gone")
	}
	return nil
}

func (m *mockInputStream) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCalls, m.closeCall
}

type mockCapturer struct {
	mu      sync.Mutex
	openErr error
	opens   int
	consume audio.BlockConsumer
	input   *mockInputStream
}

func (m *mockCapturer) Open(_ audio.Format, consume audio.BlockConsumer) (audio.InputStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens++
	if m.openErr != nil {
		return nil, m.openErr
	}
	m.consume = consume
	if m.input == nil {
		m.input = &mockInputStream{}
	}
	return m.input, nil
}

func (m *mockCapturer) deliver(b audio.Block) {
	m.mu.Lock()
	consume := m.consume
	m.mu.Unlock()
	consume(b)
}

func (m *mockCapturer) openCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

type mockStreamWriter struct {
	mu       sync.Mutex
	payloads []audio.Payload
	closed   int
	closeErr error
}

func (m *mockStreamWriter) Write(p audio.Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed > 0 {
		return nil
	}
	m.payloads = append(m.payloads, p)
	return nil
}

func (m *mockStreamWriter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return m.closeErr
}

func (m *mockStreamWriter) sent() []audio.Payload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audio.Payload(nil), m.payloads...)
}

func (m *mockStreamWriter) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type mockTranscriber struct {
	mu        sync.Mutex
	startErr  error
	starts    int
	receivers []transcriber.ResultReceiver
	writers   []*mockStreamWriter
	closeErr  error
}

func (m *mockTranscriber) StartStreaming(_ context.Context, _ string, receiver transcriber.ResultReceiver) (transcriber.StreamWriter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	if m.startErr != nil {
		return nil, m.startErr
	}
	w := &mockStreamWriter{closeErr: m.closeErr}
	m.receivers = append(m.receivers, receiver)
	m.writers = append(m.writers, w)
	return w, nil
}

func (m *mockTranscriber) Provider() string { return "mock" }

func (m *mockTranscriber) last() (transcriber.ResultReceiver, *mockStreamWriter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.receivers[len(m.receivers)-1], m.writers[len(m.writers)-1]
}

func (m *mockTranscriber) startCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

type hookRecorder struct {
	mu     sync.Mutex
	live   []string
	finals []string
	errs   []error
}

func (h *hookRecorder) hooks() Hooks {
	return Hooks{
		OnTranscript: func(live string) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.live = append(h.live, live)
		},
		OnStop: func(final string) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.finals = append(h.finals, final)
		},
		OnError: func(err error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.errs = append(h.errs, err)
		},
	}
}

func (h *hookRecorder) snapshot() ([]string, []string, []error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.live...), append([]string(nil), h.finals...), append([]error(nil), h.errs...)
}

func newTestRecorder(t *testing.T, capt *mockCapturer, stt *mockTranscriber, h *hookRecorder) *Recorder {
	t.Helper()
	r := NewRecorder(capt, stt, Options{
		Format: audio.Format{SampleRateHertz: 16000, Channels: 1, BlockSize: testBlockSize},
		Hooks:  h.hooks(),
	})
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func mustState(t *testing.T, ctx context.Context, r *Recorder) State {
	t.Helper()
	s, err := r.State(ctx)
	if err != nil {
		t.Fatalf("failed to read state: %v", err)
	}
	return s
}

func filledBlock(v float32) audio.Block {
	b := make(audio.Block, testBlockSize)
	for i := range b {
		b[i] = v
	}
	return b
}

func TestRecorder_HelloWorldScenario(t *testing.T) {
	ctx := testContext(t)
	capt := &mockCapturer{}
	stt := &mockTranscriber{}
	h := &hookRecorder{}
	r := newTestRecorder(t, capt, stt, h)

	if err := r.Start(ctx); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	capt.deliver(filledBlock(0.25))
	receiver, writer := stt.last()
	receiver.OnTranscript("Hello ")
	receiver.OnTranscript("world.")

	final, stopped, err := r.Stop(ctx)
	if err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}
	if !stopped {
		t.Fatal("expected stop to tear down the recording")
	}
	if final != "Hello world." {
		t.Fatalf("unexpected final transcript: %q", final)
	}
	if n := len(writer.sent()); n != 1 {
		t.Fatalf("expected 1 payload, got %d", n)
	}
	live, finals, errs := h.snapshot()
	if len(live) != 2 || live[0] != "Hello " || live[1] != "Hello world." {
		t.Fatalf("unexpected live values: %q", live)
	}
	if len(finals) != 1 || finals[0] != "Hello world." {
		t.Fatalf("unexpected completion values: %q", finals)
	}
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if s := mustState(t, ctx, r); s != StateIdle {
		t.Fatalf("expected idle, got %s", s)
	}
}

func TestRecorder_SendsBlocksInCaptureOrder(t *testing.T) {
	ctx := testContext(t)
	capt := &mockCapturer{}
	stt := &mockTranscriber{}
	r := newTestRecorder(t, capt, stt, &hookRecorder{})

	if err := r.Start(ctx); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	const n = 20
	for i := 0; i < n; i++ {
		capt.deliver(filledBlock(float32(i) / 100))
	}
	if _, _, err := r.Stop(ctx); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}

	_, writer := stt.last()
	sent := writer.sent()
	if len(sent) != n {
		t.Fatalf("expected %d payloads, got %d", n, len(sent))
	}
	enc := audio.NewPCMEncoder(audio.Format{SampleRateHertz: 16000, Channels: 1, BlockSize: testBlockSize})
	for i, p := range sent {
		want, err := enc.Encode(filledBlock(float32(i) / 100))
		if err != nil {
			t.Fatalf("failed to encode expected block: %v", err)
		}
		if p != want {
			t.Fatalf("payload %d out of order", i)
		}
	}
}

func TestRecorder_StopBeforeFragmentsReleasesEverything(t *testing.T) {
	ctx := testContext(t)
	capt := &mockCapturer{}
	stt := &mockTranscriber{}
	h := &hookRecorder{}
	r := newTestRecorder(t, capt, stt, h)

	if err := r.Start(ctx); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	final, stopped, err := r.Stop(ctx)
	if err != nil || !stopped {
		t.Fatalf("unexpected stop result: stopped=%v err=%v", stopped, err)
	}
	if final != "" {
		t.Fatalf("expected empty transcript, got %q", final)
	}
	stops, closes := capt.input.counts()
	if stops != 1 || closes != 1 {
		t.Fatalf("expected device stopped and closed once, got stop=%d close=%d", stops, closes)
	}
	_, writer := stt.last()
	if writer.closeCount() != 1 {
		t.Fatalf("expected stream closed once, got %d", writer.closeCount())
	}
	_, finals, _ := h.snapshot()
	if len(finals) != 1 || finals[0] != "" {
		t.Fatalf("expected one empty completion, got %q", finals)
	}
}

func TestRecorder_StopTwiceIsNoop(t *testing.T) {
	ctx := testContext(t)
	capt := &mockCapturer{}
	stt := &mockTranscriber{}
	h := &hookRecorder{}
	r := newTestRecorder(t, capt, stt, h)

	if err := r.Start(ctx); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if _, stopped, _ := r.Stop(ctx); !stopped {
		t.Fatal("expected first stop to stop")
	}
	final, stopped, err := r.Stop(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stopped || final != "" {
		t.Fatalf("expected second stop to be a no-op, got stopped=%v final=%q", stopped, final)
	}
	if s := mustState(t, ctx, r); s != StateIdle {
		t.Fatalf("expected idle, got %s", s)
	}
	_, finals, _ := h.snapshot()
	if len(finals) != 1 {
		t.Fatalf("expected completion published once, got %d", len(finals))
	}
	stops, closes := capt.input.counts()
	if stops != 1 || closes != 1 {
		t.Fatalf("expected single teardown, got stop=%d close=%d", stops, closes)
	}
}

func TestRecorder_StopWhileIdleIsNoop(t *testing.T) {
	ctx := testContext(t)
	r := newTestRecorder(t, &mockCapturer{}, &mockTranscriber{}, &hookRecorder{})

	if _, stopped, err := r.Stop(ctx); stopped || err != nil {
		t.Fatalf("expected no-op, got stopped=%v err=%v", stopped, err)
	}
	if s := mustState(t, ctx, r); s != StateIdle {
		t.Fatalf("expected idle, got %s", s)
	}
}

func TestRecorder_StartWhileStreamingIsNoop(t *testing.T) {
	ctx := testContext(t)
	capt := &mockCapturer{}
	stt := &mockTranscriber{}
	r := newTestRecorder(t, capt, stt, &hookRecorder{})

	if err := r.Start(ctx); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if err := r.Start(ctx); err != nil {
		t.Fatalf("unexpected second start error: %v", err)
	}
	if capt.openCount() != 1 || stt.startCount() != 1 {
		t.Fatalf("expected single acquisition, got device=%d stream=%d", capt.openCount(), stt.startCount())
	}
	if s := mustState(t, ctx, r); s != StateStreaming {
		t.Fatalf("expected streaming, got %s", s)
	}
}

func TestRecorder_DeviceFailureNeverOpensChannel(t *testing.T) {
	ctx := testContext(t)
	capt := &mockCapturer{openErr: errors.New("permission denied")}
	stt := &mockTranscriber{}
	h := &hookRecorder{}
	r := newTestRecorder(t, capt, stt, h)

	err := r.Start(ctx)
	if !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
	if stt.startCount() != 0 {
		t.Fatalf("expected no stream to be opened, got %d", stt.startCount())
	}
	if s := mustState(t, ctx, r); s != StateIdle {
		t.Fatalf("expected idle after failure, got %s", s)
	}
	_, finals, errs := h.snapshot()
	if len(errs) != 1 || !errors.Is(errs[0], audio.ErrDeviceUnavailable) {
		t.Fatalf("expected one reported device error, got %v", errs)
	}
	if len(finals) != 0 {
		t.Fatalf("expected no completion, got %q", finals)
	}
	if _, stopped, _ := r.Stop(ctx); stopped {
		t.Fatal("stop after failure must be a no-op")
	}
}

func TestRecorder_ChannelFailureReleasesDevice(t *testing.T) {
	ctx := testContext(t)
	capt := &mockCapturer{}
	stt := &mockTranscriber{startErr: errors.New("missing credential")}
	h := &hookRecorder{}
	r := newTestRecorder(t, capt, stt, h)

	err := r.Start(ctx)
	if !errors.Is(err, transcriber.ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
	stops, closes := capt.input.counts()
	if stops != 1 || closes != 1 {
		t.Fatalf("expected device released, got stop=%d close=%d", stops, closes)
	}
	if s := mustState(t, ctx, r); s != StateIdle {
		t.Fatalf("expected idle after failure, got %s", s)
	}
	_, _, errs := h.snapshot()
	if len(errs) != 1 {
		t.Fatalf("expected exactly one reported error, got %d", len(errs))
	}
}

func TestRecorder_RetryAfterFailure(t *testing.T) {
	ctx := testContext(t)
	capt := &mockCapturer{openErr: errors.New("busy")}
	stt := &mockTranscriber{}
	r := newTestRecorder(t, capt, stt, &hookRecorder{})

	if err := r.Start(ctx); err == nil {
		t.Fatal("expected first start to fail")
	}
	capt.mu.Lock()
	capt.openErr = nil
	capt.mu.Unlock()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if s := mustState(t, ctx, r); s != StateStreaming {
		t.Fatalf("expected streaming, got %s", s)
	}
}

func TestRecorder_RemoteCloseActsAsStop(t *testing.T) {
	ctx := testContext(t)
	capt := &mockCapturer{}
	stt := &mockTranscriber{}
	h := &hookRecorder{}
	r := newTestRecorder(t, capt, stt, h)

	if err := r.Start(ctx); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	receiver, writer := stt.last()
	receiver.OnTranscript("partial call")
	receiver.OnClose()

	if s := mustState(t, ctx, r); s != StateIdle {
		t.Fatalf("expected idle after remote close, got %s", s)
	}
	_, finals, errs := h.snapshot()
	if len(finals) != 1 || finals[0] != "partial call" {
		t.Fatalf("unexpected completion: %q", finals)
	}
	if len(errs) != 0 {
		t.Fatalf("remote close must not report an error, got %v", errs)
	}
	if writer.closeCount() != 1 {
		t.Fatalf("expected stream released, got %d", writer.closeCount())
	}
}

func TestRecorder_RemoteErrorFailsAfterTeardown(t *testing.T) {
	ctx := testContext(t)
	capt := &mockCapturer{}
	stt := &mockTranscriber{}
	h := &hookRecorder{}
	r := newTestRecorder(t, capt, stt, h)

	if err := r.Start(ctx); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	receiver, _ := stt.last()
	receiver.OnTranscript("so far")
	receiver.OnError(errors.New("connection reset"))

	if s := mustState(t, ctx, r); s != StateIdle {
		t.Fatalf("expected idle after failure, got %s", s)
	}
	_, finals, errs := h.snapshot()
	if len(finals) != 1 || finals[0] != "so far" {
		t.Fatalf("expected transcript published before failure, got %q", finals)
	}
	if len(errs) != 1 || !errors.Is(errs[0], transcriber.ErrConnection) {
		t.Fatalf("expected one connection error, got %v", errs)
	}
	stops, closes := capt.input.counts()
	if stops != 1 || closes != 1 {
		t.Fatalf("expected device released, got stop=%d close=%d", stops, closes)
	}
}

func TestRecorder_IgnoresLateEventsAndBlocks(t *testing.T) {
	ctx := testContext(t)
	capt := &mockCapturer{}
	stt := &mockTranscriber{}
	h := &hookRecorder{}
	r := newTestRecorder(t, capt, stt, h)

	if err := r.Start(ctx); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	oldReceiver, oldWriter := stt.last()
	if _, _, err := r.Stop(ctx); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}

	oldReceiver.OnTranscript("late")
	oldReceiver.OnClose()
	capt.deliver(filledBlock(0.5))

	if err := r.Start(ctx); err != nil {
		t.Fatalf("unexpected restart error: %v", err)
	}
	oldReceiver.OnTranscript("still late")
	got, err := r.Transcript(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "" {
		t.Fatalf("expected a fresh buffer, got %q", got)
	}
	if n := len(oldWriter.sent()); n != 0 {
		t.Fatalf("expected no payloads after stop, got %d", n)
	}
	if s := mustState(t, ctx, r); s != StateStreaming {
		t.Fatalf("expected streaming, got %s", s)
	}
}

func TestRecorder_TeardownSurvivesFailingSteps(t *testing.T) {
	ctx := testContext(t)
	capt := &mockCapturer{input: &mockInputStream{stopErr: errors.New("already stopped"), panicOnClose: true}}
	stt := &mockTranscriber{closeErr: errors.New("socket gone")}
	h := &hookRecorder{}
	r := newTestRecorder(t, capt, stt, h)

	if err := r.Start(ctx); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	receiver, writer := stt.last()
	receiver.OnTranscript("kept")

	final, stopped, err := r.Stop(ctx)
	if err != nil || !stopped {
		t.Fatalf("unexpected stop result: stopped=%v err=%v", stopped, err)
	}
	if final != "kept" {
		t.Fatalf("unexpected final transcript: %q", final)
	}
	if writer.closeCount() != 1 {
		t.Fatalf("expected stream close attempted, got %d", writer.closeCount())
	}
	if s := mustState(t, ctx, r); s != StateIdle {
		t.Fatalf("expected idle, got %s", s)
	}
}

func TestRecorder_DropsMalformedBlocks(t *testing.T) {
	ctx := testContext(t)
	capt := &mockCapturer{}
	stt := &mockTranscriber{}
	r := newTestRecorder(t, capt, stt, &hookRecorder{})

	if err := r.Start(ctx); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	capt.deliver(make(audio.Block, testBlockSize+1))
	capt.deliver(filledBlock(0.1))
	if _, _, err := r.Stop(ctx); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}
	_, writer := stt.last()
	if n := len(writer.sent()); n != 1 {
		t.Fatalf("expected only the well-formed block to be sent, got %d", n)
	}
}

func TestRecorder_CloseStopsActiveRecording(t *testing.T) {
	ctx := testContext(t)
	capt := &mockCapturer{}
	stt := &mockTranscriber{}
	h := &hookRecorder{}
	r := NewRecorder(capt, stt, Options{Hooks: h.hooks()})

	if err := r.Start(ctx); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second close must be a no-op, got %v", err)
	}
	_, finals, _ := h.snapshot()
	if len(finals) != 1 {
		t.Fatalf("expected close to publish the final transcript, got %d", len(finals))
	}
	if err := r.Start(ctx); !errors.Is(err, ErrRecorderClosed) {
		t.Fatalf("expected ErrRecorderClosed, got %v", err)
	}
}

func TestRecorder_FailureReportsThenReturnsToIdle(t *testing.T) {
	ctx := testContext(t)
	capt := &mockCapturer{openErr: errors.New("no device")}
	stt := &mockTranscriber{}

	var r *Recorder
	var reported []State
	r = NewRecorder(capt, stt, Options{
		Format: audio.Format{SampleRateHertz: 16000, Channels: 1, BlockSize: testBlockSize},
		Hooks: Hooks{
			OnError: func(error) { reported = append(reported, r.state) },
		},
	})
	t.Cleanup(func() { _ = r.Close() })

	if err := r.Start(ctx); err == nil {
		t.Fatal("expected start to fail")
	}
	if len(reported) != 1 || reported[0] != StateFailed {
		t.Fatalf("expected one error reported while failed, got %v", reported)
	}
	if s := mustState(t, ctx, r); s != StateIdle {
		t.Fatalf("expected idle after the error was reported, got %s", s)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) lines() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Split(bytes.TrimSpace(b.buf.Bytes()), []byte("\n"))
}

func TestRecorder_StopLogsFragmentCount(t *testing.T) {
	logs := &syncBuffer{}
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ctx := testContext(t)
	stt := &mockTranscriber{}
	r := newTestRecorder(t, &mockCapturer{}, stt, &hookRecorder{})

	if err := r.Start(ctx); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	receiver, _ := stt.last()
	receiver.OnTranscript("Hello")
	receiver.OnTranscript(" World")
	if _, stopped, err := r.Stop(ctx); err != nil || !stopped {
		t.Fatalf("unexpected stop result: stopped=%v err=%v", stopped, err)
	}

	for _, line := range logs.lines() {
		var entry map[string]any
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		if entry["msg"] != "recording stopped" {
			continue
		}
		if entry["fragments"] != float64(2) {
			t.Fatalf("expected 2 fragments logged, got %v", entry["fragments"])
		}
		return
	}
	t.Fatal("recording stopped was not logged")
}

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/foxseedlab/salescoach/internal/audio"
	"github.com/foxseedlab/salescoach/internal/metrics"
	"github.com/foxseedlab/salescoach/internal/transcript"
	"github.com/foxseedlab/salescoach/internal/transcriber"
	"github.com/google/uuid"
)

const defaultQueueSize = 64

var ErrRecorderClosed = errors.New("recorder is closed")

// Hooks are invoked on the recorder loop. They must not call back into the
// Recorder synchronously.
type Hooks struct {
	OnTranscript func(live string)
	OnStop       func(final string)
	OnError      func(err error)
}

type Options struct {
	Format    audio.Format
	QueueSize int
	Metrics   *metrics.Metrics
	Hooks     Hooks
}

// Recorder coordinates capture, encoding, the transcription stream and the
// running transcript. Every state change runs as a turn on a single loop
// goroutine, so device blocks, stream events and start/stop requests are
// handled strictly in the order they were queued.
type Recorder struct {
	capturer    audio.Capturer
	transcriber transcriber.Transcriber
	encoder     *audio.PCMEncoder
	format      audio.Format
	metrics     *metrics.Metrics
	hooks       Hooks

	turns     chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// loop-owned
	state  State
	active *recording
}

// recording owns the resources of one start/stop cycle and is discarded at Idle.
type recording struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	input  audio.InputStream
	writer transcriber.StreamWriter
	buffer *transcript.Accumulator
	sent   int
}

func NewRecorder(capturer audio.Capturer, stt transcriber.Transcriber, opts Options) *Recorder {
	format := opts.Format
	if format.SampleRateHertz == 0 {
		format = audio.DefaultFormat()
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	r := &Recorder{
		capturer:    capturer,
		transcriber: stt,
		encoder:     audio.NewPCMEncoder(format),
		format:      format,
		metrics:     opts.Metrics,
		hooks:       opts.Hooks,
		turns:       make(chan func(), queueSize),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		state:       StateIdle,
	}
	go r.loop()
	return r
}

func (r *Recorder) loop() {
	defer close(r.done)
	for {
		select {
		case <-r.quit:
			return
		case turn := <-r.turns:
			turn()
		}
	}
}

// post queues fn, waiting for room unless ctx ends or the recorder closes.
func (r *Recorder) post(ctx context.Context, fn func()) error {
	select {
	case <-r.quit:
		return ErrRecorderClosed
	default:
	}
	select {
	case r.turns <- fn:
		return nil
	case <-r.quit:
		return ErrRecorderClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) tryPost(fn func()) bool {
	select {
	case <-r.quit:
		return false
	case r.turns <- fn:
		return true
	default:
		return false
	}
}

func call[T any](ctx context.Context, r *Recorder, fn func() T) (T, error) {
	var zero T
	res := make(chan T, 1)
	if err := r.post(ctx, func() { res <- fn() }); err != nil {
		return zero, err
	}
	select {
	case v := <-res:
		return v, nil
	case <-r.done:
		return zero, ErrRecorderClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Start acquires the input device and opens the transcription stream. Calling
// it while a recording is in progress is a no-op.
func (r *Recorder) Start(ctx context.Context) error {
	err, callErr := call(ctx, r, r.start)
	if callErr != nil {
		return callErr
	}
	return err
}

// Stop tears the recording down and returns the frozen transcript. The boolean
// is false when there was nothing to stop.
func (r *Recorder) Stop(ctx context.Context) (string, bool, error) {
	type result struct {
		final   string
		stopped bool
	}
	res, err := call(ctx, r, func() result {
		final, stopped := r.stop()
		return result{final: final, stopped: stopped}
	})
	return res.final, res.stopped, err
}

func (r *Recorder) State(ctx context.Context) (State, error) {
	return call(ctx, r, func() State { return r.state })
}

// Transcript returns the live transcript, or "" when no recording is active.
func (r *Recorder) Transcript(ctx context.Context) (string, error) {
	return call(ctx, r, func() string {
		if r.active == nil {
			return ""
		}
		return r.active.buffer.Freeze()
	})
}

// Close stops any active recording and ends the loop. It is idempotent.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		final := make(chan struct{})
		if err := r.post(context.Background(), func() {
			r.stop()
			close(final)
		}); err == nil {
			<-final
		}
		close(r.quit)
		<-r.done
	})
	return nil
}

func (r *Recorder) start() error {
	if r.state != StateIdle {
		slog.Debug("start ignored", "state", r.state)
		return nil
	}
	r.setState(StateAcquiring)

	rec := &recording{
		id:     uuid.NewString(),
		buffer: transcript.NewAccumulator(),
	}
	slog.Info("recording start requested", "recording_id", rec.id, "provider", r.transcriber.Provider())

	input, err := r.capturer.Open(r.format, func(b audio.Block) { r.deliver(rec, b) })
	if err != nil {
		if !errors.Is(err, audio.ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %v", audio.ErrDeviceUnavailable, err)
		}
		return r.fail(rec, "device", err)
	}
	rec.input = input
	slog.Info("audio input opened", "recording_id", rec.id, "sample_rate", r.format.SampleRateHertz, "block_size", r.format.BlockSize)

	rec.ctx, rec.cancel = context.WithCancel(context.Background())
	writer, err := r.transcriber.StartStreaming(rec.ctx, rec.id, &resultReceiver{recorder: r, rec: rec})
	if err != nil {
		rec.cancel()
		r.releaseInput(rec)
		if !errors.Is(err, transcriber.ErrConnection) {
			err = fmt.Errorf("%w: %v", transcriber.ErrConnection, err)
		}
		return r.fail(rec, "connection", err)
	}
	rec.writer = writer

	r.active = rec
	r.setState(StateStreaming)
	r.metrics.RecordingStarted()
	slog.Info("recording streaming", "recording_id", rec.id)
	return nil
}

// fail reports err once and returns the recorder to Idle.
func (r *Recorder) fail(rec *recording, reason string, err error) error {
	r.active = nil
	r.setState(StateFailed)
	r.metrics.RecordingFailed(reason)
	slog.Error("recording failed", "recording_id", rec.id, "reason", reason, "error", err)
	if r.hooks.OnError != nil {
		runStep(rec.id, "report error", func() error {
			r.hooks.OnError(err)
			return nil
		})
	}
	r.setState(StateIdle)
	return err
}

// deliver runs on the device thread.
func (r *Recorder) deliver(rec *recording, block audio.Block) {
	r.metrics.BlockCaptured()
	if !r.tryPost(func() { r.handleBlock(rec, block) }) {
		r.metrics.BlockDropped()
		slog.Debug("audio block dropped; recorder queue full", "recording_id", rec.id)
	}
}

func (r *Recorder) handleBlock(rec *recording, block audio.Block) {
	if r.active != rec || r.state != StateStreaming {
		return
	}
	payload, err := r.encoder.Encode(block)
	if err != nil {
		slog.Warn("failed to encode audio block", "recording_id", rec.id, "error", err)
		return
	}
	if err := rec.writer.Write(payload); err != nil {
		slog.Warn("failed to write audio payload", "recording_id", rec.id, "error", err)
		return
	}
	rec.sent++
	r.metrics.PayloadSent()
}

func (r *Recorder) handleFragment(rec *recording, fragment string) {
	if r.active != rec || r.state != StateStreaming {
		return
	}
	live := rec.buffer.Append(fragment)
	r.metrics.FragmentReceived()
	if r.hooks.OnTranscript != nil {
		runStep(rec.id, "publish live transcript", func() error {
			r.hooks.OnTranscript(live)
			return nil
		})
	}
}

// handleStreamEnd treats a remote close or error as an implicit stop.
func (r *Recorder) handleStreamEnd(rec *recording, cause error) {
	if r.active != rec || r.state != StateStreaming {
		return
	}
	if cause == nil {
		slog.Info("transcription stream closed by remote; stopping", "recording_id", rec.id)
		r.teardown(rec)
		return
	}
	slog.Warn("transcription stream failed; stopping", "recording_id", rec.id, "error", cause)
	r.teardown(rec)
	if !errors.Is(cause, transcriber.ErrConnection) {
		cause = fmt.Errorf("%w: %v", transcriber.ErrConnection, cause)
	}
	r.fail(rec, "stream", cause)
}

func (r *Recorder) stop() (string, bool) {
	if r.state != StateStreaming || r.active == nil {
		return "", false
	}
	return r.teardown(r.active), true
}

// teardown releases device delivery before the stream so no block can be sent
// after teardown begins. Each step runs even if an earlier one failed.
func (r *Recorder) teardown(rec *recording) string {
	r.setState(StateStopping)
	runStep(rec.id, "stop audio input", rec.input.Stop)
	runStep(rec.id, "close audio input", rec.input.Close)
	runStep(rec.id, "close transcription stream", rec.writer.Close)
	rec.cancel()

	final := rec.buffer.Freeze()
	fragments := rec.buffer.Fragments()
	if r.hooks.OnStop != nil {
		runStep(rec.id, "publish final transcript", func() error {
			r.hooks.OnStop(final)
			return nil
		})
	}
	rec.buffer.Reset()

	r.active = nil
	r.metrics.RecordingEnded()
	r.setState(StateIdle)
	slog.Info("recording stopped", "recording_id", rec.id, "payloads_sent", rec.sent, "fragments", fragments, "transcript_chars", len(final))
	return final
}

func (r *Recorder) releaseInput(rec *recording) {
	runStep(rec.id, "stop audio input", rec.input.Stop)
	runStep(rec.id, "close audio input", rec.input.Close)
}

func (r *Recorder) setState(s State) {
	if r.state == s {
		return
	}
	slog.Debug("recorder state changed", "from", r.state, "to", s)
	r.state = s
}

func runStep(recordingID, name string, fn func() error) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("recorder step panicked", "recording_id", recordingID, "step", name, "panic", p)
		}
	}()
	if err := fn(); err != nil {
		slog.Warn("recorder step failed", "recording_id", recordingID, "step", name, "error", err)
	}
}

type resultReceiver struct {
	recorder *Recorder
	rec      *recording
}

func (rr *resultReceiver) OnTranscript(fragment string) {
	rec := rr.rec
	if err := rr.recorder.post(rec.ctx, func() { rr.recorder.handleFragment(rec, fragment) }); err != nil {
		slog.Debug("transcript fragment discarded", "recording_id", rec.id, "reason", err)
	}
}

func (rr *resultReceiver) OnError(err error) {
	rec := rr.rec
	if errors.Is(err, context.Canceled) {
		slog.Info("transcription stream canceled", "recording_id", rec.id)
		return
	}
	if postErr := rr.recorder.post(rec.ctx, func() { rr.recorder.handleStreamEnd(rec, err) }); postErr != nil {
		slog.Debug("transcription error after close discarded", "recording_id", rec.id, "error", err)
	}
}

func (rr *resultReceiver) OnClose() {
	rec := rr.rec
	if err := rr.recorder.post(rec.ctx, func() { rr.recorder.handleStreamEnd(rec, nil) }); err != nil {
		slog.Debug("transcription close after teardown discarded", "recording_id", rec.id)
	}
}

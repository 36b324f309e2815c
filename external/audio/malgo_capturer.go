package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/foxseedlab/salescoach/internal/audio"
	"github.com/gen2brain/malgo"
)

// MalgoCapturer opens the default capture device through miniaudio.
type MalgoCapturer struct{}

func NewMalgoCapturer() *MalgoCapturer {
	return &MalgoCapturer{}
}

func (c *MalgoCapturer) Open(format audio.Format, consume audio.BlockConsumer) (audio.InputStream, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: init audio context: %v", audio.ErrDeviceUnavailable, err)
	}

	blocks := newBlocker(format.BlockSize, consume)
	s := &malgoStream{ctx: ctx, blocks: blocks}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = uint32(format.Channels)
	cfg.SampleRate = uint32(format.SampleRateHertz)
	cfg.PeriodSizeInFrames = uint32(format.BlockSize)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			if !s.running.Load() {
				return
			}
			blocks.pushF32LE(input, format.Channels)
		},
	}

	device, err := malgo.InitDevice(ctx.Context, cfg, callbacks)
	if err != nil {
		s.freeContext()
		return nil, fmt.Errorf("%w: init capture device: %v", audio.ErrDeviceUnavailable, err)
	}
	s.device = device

	s.running.Store(true)
	if err := device.Start(); err != nil {
		s.running.Store(false)
		device.Uninit()
		s.freeContext()
		return nil, fmt.Errorf("%w: start capture device: %v", audio.ErrDeviceUnavailable, err)
	}
	slog.Info("malgo capture started", "sample_rate", format.SampleRateHertz, "channels", format.Channels, "block_size", format.BlockSize)
	return s, nil
}

type malgoStream struct {
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	blocks  *blocker
	running atomic.Bool

	stopOnce  sync.Once
	closeOnce sync.Once
	stopErr   error
}

// Stop halts delivery and discards any partial block. No block reaches the
// consumer after it returns.
func (s *malgoStream) Stop() error {
	s.stopOnce.Do(func() {
		s.running.Store(false)
		if err := s.device.Stop(); err != nil {
			s.stopErr = fmt.Errorf("stop capture device: %w", err)
			return
		}
		s.blocks.reset()
	})
	return s.stopErr
}

func (s *malgoStream) Close() error {
	stopErr := s.Stop()
	s.closeOnce.Do(func() {
		s.device.Uninit()
		s.freeContext()
	})
	return stopErr
}

func (s *malgoStream) freeContext() {
	if err := s.ctx.Uninit(); err != nil {
		slog.Warn("failed to uninit audio context", "error", err)
	}
	s.ctx.Free()
}

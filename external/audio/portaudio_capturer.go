//go:build portaudio

package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/foxseedlab/salescoach/internal/audio"
	"github.com/gordonklaus/portaudio"
)

const PortAudioAvailable = true

// PortAudioCapturer opens the default input through PortAudio's callback API.
type PortAudioCapturer struct{}

func NewPortAudioCapturer() *PortAudioCapturer {
	return &PortAudioCapturer{}
}

func (c *PortAudioCapturer) Open(format audio.Format, consume audio.BlockConsumer) (audio.InputStream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: init portaudio: %v", audio.ErrDeviceUnavailable, err)
	}

	blocks := newBlocker(format.BlockSize, consume)
	s := &portAudioStream{blocks: blocks}

	stream, err := portaudio.OpenDefaultStream(format.Channels, 0, float64(format.SampleRateHertz), format.BlockSize, func(in []float32) {
		if !s.running.Load() {
			return
		}
		if format.Channels <= 1 {
			blocks.push(in)
			return
		}
		mono := make([]float32, 0, len(in)/format.Channels)
		for i := 0; i+format.Channels <= len(in); i += format.Channels {
			mono = append(mono, in[i])
		}
		blocks.push(mono)
	})
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: open default stream: %v", audio.ErrDeviceUnavailable, err)
	}
	s.stream = stream

	s.running.Store(true)
	if err := stream.Start(); err != nil {
		s.running.Store(false)
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: start stream: %v", audio.ErrDeviceUnavailable, err)
	}
	slog.Info("portaudio capture started", "sample_rate", format.SampleRateHertz, "block_size", format.BlockSize)
	return s, nil
}

type portAudioStream struct {
	stream  *portaudio.Stream
	blocks  *blocker
	running atomic.Bool

	stopOnce  sync.Once
	closeOnce sync.Once
	stopErr   error
	closeErr  error
}

func (s *portAudioStream) Stop() error {
	s.stopOnce.Do(func() {
		s.running.Store(false)
		if err := s.stream.Stop(); err != nil {
			s.stopErr = fmt.Errorf("stop stream: %w", err)
			return
		}
		s.blocks.reset()
	})
	return s.stopErr
}

func (s *portAudioStream) Close() error {
	_ = s.Stop()
	s.closeOnce.Do(func() {
		if err := s.stream.Close(); err != nil {
			s.closeErr = fmt.Errorf("close stream: %w", err)
		}
		if err := portaudio.Terminate(); err != nil {
			slog.Warn("failed to terminate portaudio", "error", err)
		}
	})
	return s.closeErr
}

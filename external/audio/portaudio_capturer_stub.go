//go:build !portaudio

package audio

import (
	"fmt"

	"github.com/foxseedlab/salescoach/internal/audio"
)

const PortAudioAvailable = false

type PortAudioCapturer struct{}

func NewPortAudioCapturer() *PortAudioCapturer {
	return &PortAudioCapturer{}
}

func (c *PortAudioCapturer) Open(_ audio.Format, _ audio.BlockConsumer) (audio.InputStream, error) {
	return nil, fmt.Errorf("%w: binary built without the portaudio tag", audio.ErrDeviceUnavailable)
}

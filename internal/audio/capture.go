package audio

import "errors"

const (
	SampleRateHertz  = 16000
	ChannelCount     = 1
	DefaultBlockSize = 4096
)

// ErrDeviceUnavailable is returned when no input device exists or access to it was denied.
var ErrDeviceUnavailable = errors.New("audio input device unavailable")

// Block is one period of mono float samples in [-1, 1]. The consumer owns the slice.
type Block []float32

type Format struct {
	SampleRateHertz int
	Channels        int
	BlockSize       int
}

func DefaultFormat() Format {
	return Format{
		SampleRateHertz: SampleRateHertz,
		Channels:        ChannelCount,
		BlockSize:       DefaultBlockSize,
	}
}

// BlockConsumer is invoked synchronously from the device thread and must not block
// longer than one block period.
type BlockConsumer func(Block)

// InputStream is an open device. Stop and Close are idempotent.
type InputStream interface {
	Stop() error
	Close() error
}

type Capturer interface {
	Open(format Format, consume BlockConsumer) (InputStream, error)
}

package audio

import (
	"encoding/binary"
	"math"

	"github.com/foxseedlab/salescoach/internal/audio"
)

// blocker regroups device periods of arbitrary length into blocks of exactly
// size samples. Backends may deliver shorter or longer periods than requested.
type blocker struct {
	size    int
	pending []float32
	emit    audio.BlockConsumer
}

func newBlocker(size int, emit audio.BlockConsumer) *blocker {
	if size <= 0 {
		size = audio.DefaultBlockSize
	}
	return &blocker{
		size:    size,
		pending: make([]float32, 0, size),
		emit:    emit,
	}
}

func (b *blocker) push(samples []float32) {
	for len(samples) > 0 {
		n := min(b.size-len(b.pending), len(samples))
		b.pending = append(b.pending, samples[:n]...)
		samples = samples[n:]
		if len(b.pending) == b.size {
			block := make(audio.Block, b.size)
			copy(block, b.pending)
			b.pending = b.pending[:0]
			b.emit(block)
		}
	}
}

// pushF32LE decodes interleaved little-endian float32 bytes, keeping the
// first channel of each frame.
func (b *blocker) pushF32LE(data []byte, channels int) {
	if channels <= 0 {
		channels = 1
	}
	frameBytes := 4 * channels
	samples := make([]float32, 0, len(data)/frameBytes)
	for off := 0; off+frameBytes <= len(data); off += frameBytes {
		samples = append(samples, math.Float32frombits(binary.LittleEndian.Uint32(data[off:])))
	}
	b.push(samples)
}

// reset drops a partial block.
func (b *blocker) reset() {
	b.pending = b.pending[:0]
}

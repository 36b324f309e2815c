package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var ErrMalformedBlock = errors.New("malformed audio block")

// Payload is one block serialized as base64 PCM16 little-endian.
type Payload struct {
	Data     string
	MimeType string
}

// PCM decodes the payload back into raw PCM16 little-endian bytes.
func (p Payload) PCM() ([]byte, error) {
	return base64.StdEncoding.DecodeString(p.Data)
}

// Samples decodes the payload into signed 16-bit samples.
func (p Payload) Samples() ([]int16, error) {
	raw, err := p.PCM()
	if err != nil {
		return nil, err
	}
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("%w: odd pcm byte length %d", ErrMalformedBlock, len(raw))
	}
	out := make([]int16, len(raw)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return out, nil
}

type PCMEncoder struct {
	format   Format
	mimeType string
}

func NewPCMEncoder(format Format) *PCMEncoder {
	return &PCMEncoder{
		format:   format,
		mimeType: MimeType(format.SampleRateHertz),
	}
}

func MimeType(sampleRateHertz int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", sampleRateHertz)
}

func (e *PCMEncoder) Encode(block Block) (Payload, error) {
	if len(block) == 0 {
		return Payload{}, fmt.Errorf("%w: empty block", ErrMalformedBlock)
	}
	if e.format.BlockSize > 0 && len(block) != e.format.BlockSize {
		return Payload{}, fmt.Errorf("%w: got %d samples, want %d", ErrMalformedBlock, len(block), e.format.BlockSize)
	}
	buf := make([]byte, len(block)*2)
	for i, s := range block {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(sampleToPCM16(s)))
	}
	return Payload{
		Data:     base64.StdEncoding.EncodeToString(buf),
		MimeType: e.mimeType,
	}, nil
}

func sampleToPCM16(s float32) int16 {
	if math.IsNaN(float64(s)) {
		return 0
	}
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return clampPCM(int32(float64(s) * 32768))
}

func clampPCM(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

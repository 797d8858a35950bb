package wave

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrInvalidPCM reports a PCM payload with an odd byte count.
var ErrInvalidPCM = errors.New("invalid pcm payload")

// EncodePCM lays samples out as little-endian 16-bit PCM.
func EncodePCM(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// DecodePCM is the inverse of EncodePCM.
func DecodePCM(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not 16-bit aligned", ErrInvalidPCM, len(data))
	}
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out, nil
}

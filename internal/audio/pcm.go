package audio

import (
	"encoding/binary"
	"errors"
)

// ErrOddLength is returned when a 16-bit PCM buffer has a dangling byte.
var ErrOddLength = errors.New("pcm buffer length is not a multiple of 2")

// DecodeS16LE converts little-endian signed 16-bit PCM bytes to samples.
func DecodeS16LE(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, ErrOddLength
	}
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
	}
	return out, nil
}

// ToInts widens samples to the int slice used by go-audio buffers.
func ToInts(samples []int16) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		out[i] = int(s)
	}
	return out
}

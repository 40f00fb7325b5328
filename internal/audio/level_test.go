package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func encodeS16LE(samples []int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

func TestDecodeS16LE(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768}
	got, err := DecodeS16LE(encodeS16LE(in))
	if err != nil {
		t.Fatalf("DecodeS16LE failed: %v", err)
	}
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], in[i])
		}
	}
}

func TestDecodeS16LEOddLength(t *testing.T) {
	if _, err := DecodeS16LE([]byte{1, 2, 3}); err != ErrOddLength {
		t.Errorf("expected ErrOddLength, got %v", err)
	}
}

func TestPeakDB(t *testing.T) {
	if got := PeakDB(make([]int16, 100)); got != MinLevel {
		t.Errorf("silence = %f, want %f", got, MinLevel)
	}
	if got := PeakDB(nil); got != MinLevel {
		t.Errorf("empty = %f, want %f", got, MinLevel)
	}
	if got := PeakDB([]int16{-32768}); got != 0 {
		t.Errorf("full scale = %f, want 0", got)
	}
	half := PeakDB([]int16{100, -16384, 3})
	if math.Abs(half-(-6.0206)) > 0.001 {
		t.Errorf("half scale = %f, want about -6.02", half)
	}
}

func TestMeterWindows(t *testing.T) {
	m := NewMeter(4)

	if levels := m.Push([]int16{0, 0, 0}); len(levels) != 0 {
		t.Fatalf("incomplete window reported %v", levels)
	}
	levels := m.Push([]int16{0, 32767, 32767, 0, 0, 5})
	if len(levels) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(levels))
	}
	if levels[0] != MinLevel {
		t.Errorf("first window = %f, want silence", levels[0])
	}
	if levels[1] > 0 || levels[1] < -0.01 {
		t.Errorf("second window = %f, want near 0 dBFS", levels[1])
	}

	tail, ok := m.Flush()
	if !ok || tail >= -70 {
		t.Errorf("flush = %f,%v", tail, ok)
	}
	if _, ok := m.Flush(); ok {
		t.Error("second flush reported a level")
	}
}

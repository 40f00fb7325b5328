package audio

import (
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	pcm "github.com/himanishpuri/mousai/internal/audio"
)

// wavSink writes mono 16-bit PCM into a WAV container.
type wavSink struct {
	f   *os.File
	enc *wav.Encoder
	buf *goaudio.IntBuffer
}

func newWavSink(path string, sampleRate int) (*wavSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return &wavSink{
		f:   f,
		enc: wav.NewEncoder(f, sampleRate, 16, 1, 1),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
			SourceBitDepth: 16,
		},
	}, nil
}

func (s *wavSink) Write(samples []int16) error {
	if len(samples) == 0 {
		return nil
	}
	s.buf.Data = pcm.ToInts(samples)
	return s.enc.Write(s.buf)
}

// Close writes the final chunk sizes and closes the file.
func (s *wavSink) Close() error {
	encErr := s.enc.Close()
	fileErr := s.f.Close()
	if encErr != nil {
		return fmt.Errorf("finalizing wav: %w", encErr)
	}
	return fileErr
}

// Abort closes the file without finalizing the header.
func (s *wavSink) Abort() error {
	return s.f.Close()
}

package audio

import (
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// EncodeWAV renders mono 16-bit PCM samples as a WAV byte blob. The encoder
// needs a seekable target for its header fixup, so encoding goes through a
// temporary file.
func EncodeWAV(pcm []int16, sampleRate int) ([]byte, error) {
	file, err := os.CreateTemp("", "parlo_wav_*.wav")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	name := file.Name()
	defer os.Remove(name)

	if err := WriteWAV(file, pcm, sampleRate); err != nil {
		file.Close()
		return nil, err
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("close wav file: %w", err)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read wav file: %w", err)
	}
	return data, nil
}

// WriteWAV writes mono 16-bit PCM samples as WAV into an open file.
func WriteWAV(file *os.File, pcm []int16, sampleRate int) error {
	buffer := &goaudio.IntBuffer{Format: &goaudio.Format{NumChannels: 1, SampleRate: sampleRate}}
	samples := make([]int, len(pcm))
	for i, s := range pcm {
		samples[i] = int(s)
	}
	buffer.Data = samples

	enc := wav.NewEncoder(file, sampleRate, 16, 1, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// Recorder accumulates capture frames and renders them into an encoded
// audio blob when stopped. Not safe for concurrent Append calls; the
// orchestrator feeds it from a single fan-out goroutine.
type Recorder struct {
	sampleRate int
	pcm        []int16
}

// NewRecorder creates a recorder for the given sample rate.
func NewRecorder(sampleRate int) *Recorder {
	return &Recorder{sampleRate: sampleRate, pcm: make([]int16, 0, sampleRate*2)}
}

// Append adds a frame to the recording.
func (r *Recorder) Append(f Frame) {
	r.pcm = append(r.pcm, f...)
}

// Duration returns the recorded span in seconds.
func (r *Recorder) Duration() float64 {
	if r.sampleRate <= 0 {
		return 0
	}
	return float64(len(r.pcm)) / float64(r.sampleRate)
}

// Blob encodes the accumulated samples as WAV. Returns nil when nothing was
// recorded.
func (r *Recorder) Blob() ([]byte, error) {
	if len(r.pcm) == 0 {
		return nil, nil
	}
	return EncodeWAV(r.pcm, r.sampleRate)
}

// PCM exposes the raw accumulated samples.
func (r *Recorder) PCM() []int16 {
	return r.pcm
}

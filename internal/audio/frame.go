// Package audio provides the capture-side primitives of the practice
// pipeline: mono sample frames, the capture device contract, the WAV blob
// recorder, and the latest-frame buffer the pitch tracker samples from.
package audio

import (
	"errors"
	"sync"
)

// Frame is a fixed-size buffer of mono PCM samples. A frame is owned by
// whichever consumer is reading it and is never mutated after being read;
// the fan-out in the orchestrator hands each consumer its own copy.
type Frame []int16

// Capture error taxonomy. Both are fatal for the recording attempt and
// leave no partial result.
var (
	// ErrPermissionDenied means microphone access was refused.
	ErrPermissionDenied = errors.New("audio: microphone permission denied")
	// ErrUnsupported means no usable capture backend exists in this runtime.
	ErrUnsupported = errors.New("audio: capture not supported")
)

// Stream is an open capture stream producing frames until closed. The
// Frames channel is closed when the device stops producing, either because
// Close was called or the underlying source ended.
type Stream interface {
	Frames() <-chan Frame
	SampleRate() int
	// Close releases the capture device. It must be safe to call multiple
	// times; the microphone must never stay acquired after Close returns.
	Close() error
}

// Device acquires microphone streams.
type Device interface {
	Open(sampleRate int) (Stream, error)
}

// Clone returns an independent copy of the frame.
func (f Frame) Clone() Frame {
	out := make(Frame, len(f))
	copy(out, f)
	return out
}

// Float64s converts the frame into normalized [-1,1] float samples,
// reusing dst when it is large enough.
func (f Frame) Float64s(dst []float64) []float64 {
	if cap(dst) < len(f) {
		dst = make([]float64, len(f))
	}
	dst = dst[:len(f)]
	for i, s := range f {
		dst[i] = float64(s) / 32768.0
	}
	return dst
}

// LatestFrame holds the most recent frame for cadence-based consumers such
// as the pitch tracker. Writers replace the frame; readers snapshot it.
// Safe for concurrent use.
type LatestFrame struct {
	mu    sync.Mutex
	frame []float64
}

// Store replaces the held frame with a normalized copy of f.
func (l *LatestFrame) Store(f Frame) {
	l.mu.Lock()
	l.frame = f.Float64s(l.frame)
	l.mu.Unlock()
}

// Snapshot copies the held frame into dst, zero-padding when the held frame
// is shorter. It reports false while no frame has been stored yet.
func (l *LatestFrame) Snapshot(dst []float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.frame == nil {
		return false
	}
	n := copy(dst, l.frame)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
	return true
}

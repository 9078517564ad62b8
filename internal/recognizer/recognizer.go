// Package recognizer defines the speech-to-text engine contract used by the
// recording pipeline, plus the exec-backed and mock implementations.
package recognizer

import (
	"context"
	"errors"

	"github.com/parlolabs/parlo-core/internal/audio"
)

// ErrEngineUnavailable means the recognizer backend cannot be used in this
// runtime (missing binary, missing model). Sessions cannot be opened.
var ErrEngineUnavailable = errors.New("recognizer: engine unavailable")

// Word is a recognized word with its confidence and time span in seconds
// from the start of the utterance.
type Word struct {
	Word       string  `json:"word"`
	Confidence float64 `json:"conf"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
}

// Result is a final recognition result for one utterance.
type Result struct {
	Text  string `json:"text"`
	Words []Word `json:"words"`
}

// Session consumes audio frames for one utterance and produces partial
// hypotheses and at most one final result.
//
// Partials delivers interim transcripts while audio streams in; the channel
// closes when the session ends. Final delivers the definitive result after
// Flush and then closes; it may close without a value when recognition
// fails. Close releases the session without waiting for a final result.
type Session interface {
	// Accept feeds a frame into the session. Frames arriving after Flush
	// are ignored.
	Accept(frame audio.Frame)
	Partials() <-chan string
	Final() <-chan Result
	// Flush marks the end of the utterance and starts final recognition.
	Flush()
	Close() error
}

// Engine creates recognition sessions. Load is the model warm-up step; it
// may be slow and is safe to run ahead of the first session.
type Engine interface {
	Load(ctx context.Context) error
	Ready() bool
	NewSession(ctx context.Context, sampleRate int) (Session, error)
	Close() error
}

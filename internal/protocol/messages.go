// Package protocol defines the JSON message types and NATS subjects of the
// practice bus. Wire types stay free of internal dependencies so edge
// clients can vendor this package alone.
package protocol

import "time"

// WordTiming is one recognized word with confidence and time span in
// seconds from utterance start.
type WordTiming struct {
	Word       string  `json:"word"`
	Confidence float64 `json:"confidence"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
}

// PitchPoint is one voiced sample of a pitch contour.
type PitchPoint struct {
	Time    float64 `json:"time"`
	Pitch   float64 `json:"pitch"`
	Clarity float64 `json:"clarity"`
}

// AttemptRequest asks the runtime to score a finished recording attempt.
// Clients that run their own capture submit recognition output directly;
// attempts recorded by the runtime are submitted internally.
type AttemptRequest struct {
	AttemptID        string       `json:"attempt_id,omitempty"`
	SessionID        string       `json:"session_id"`
	ItemID           string       `json:"item_id"`
	ExpectedText     string       `json:"expected_text"`
	Transcript       string       `json:"transcript"`
	Words            []WordTiming `json:"words,omitempty"`
	Contour          []PitchPoint `json:"contour,omitempty"`
	ReferenceContour []PitchPoint `json:"reference_contour,omitempty"`
	Duration         float64      `json:"duration,omitempty"`
	Timestamp        time.Time    `json:"timestamp"`
}

// RecordStart asks the runtime to begin a local recording attempt.
type RecordStart struct {
	SessionID    string    `json:"session_id"`
	ItemID       string    `json:"item_id"`
	ExpectedText string    `json:"expected_text"`
	Timestamp    time.Time `json:"timestamp"`
}

// RecordStop ends the active recording attempt of a session.
type RecordStop struct {
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

// WordScore is per-word feedback within an analysis.
type WordScore struct {
	Word       string  `json:"word"`
	Score      int     `json:"score"`
	Confidence float64 `json:"confidence"`
	Band       string  `json:"band"`
}

// AnalysisResult is the scored outcome of one attempt, broadcast on the
// session's analysis subject and returned on request/reply attempts.
type AnalysisResult struct {
	AttemptID       string      `json:"attempt_id"`
	SessionID       string      `json:"session_id"`
	ItemID          string      `json:"item_id"`
	ExpectedText    string      `json:"expected_text"`
	Transcript      string      `json:"transcript"`
	OverallScore    int         `json:"overall_score"`
	AccuracyScore   int         `json:"accuracy_score"`
	ConfidenceScore int         `json:"confidence_score"`
	IntonationScore int         `json:"intonation_score"`
	FluencyScore    int         `json:"fluency_score"`
	Words           []WordScore `json:"words"`
	HasSpeechData   bool        `json:"has_speech_data"`
	Duration        float64     `json:"duration,omitempty"`
	Timestamp       time.Time   `json:"timestamp"`
}

const (
	SubjectPracticeAttempt = "practice.attempt"
	SubjectRecordStart     = "practice.record.start"
	SubjectRecordStop      = "practice.record.stop"
	SubjectAnalysisPrefix  = "practice.analysis"
)

// AnalysisSubject returns the per-session analysis broadcast subject.
func AnalysisSubject(sessionID string) string {
	return SubjectAnalysisPrefix + "." + sessionID
}

// Package score turns a recognition result and pitch contour into a
// weighted pronunciation analysis with per-word feedback.
package score

import (
	"math"

	"github.com/parlolabs/parlo-core/internal/align"
	"github.com/parlolabs/parlo-core/internal/config"
	"github.com/parlolabs/parlo-core/internal/pitch"
	"github.com/parlolabs/parlo-core/internal/recognizer"
	"github.com/parlolabs/parlo-core/internal/textnorm"
)

// Performance bands for scores and per-word feedback.
const (
	BandHigh   = "high"
	BandMedium = "medium"
	BandLow    = "low"
)

// Fluency tuning constants. Pause penalties grow with the longest silent
// gap between recognized words.
const (
	fluencyNoTimingScore    = 80
	fluencyShortPhraseScore = 90
	pausePenaltyLong        = 15 // gap > 1.5s
	pausePenaltyMedium      = 8  // gap > 1.0s
	pausePenaltyShort       = 3  // gap > 0.5s
)

const noContourScore = 60

// WordResult is the per-word feedback entry shown to the learner.
type WordResult struct {
	Word       string  `json:"word"`
	Score      int     `json:"score"`
	Confidence float64 `json:"confidence"`
	Band       string  `json:"band"`
}

// Analysis is the full scoring output for one practice attempt.
type Analysis struct {
	OverallScore    int          `json:"overall_score"`
	AccuracyScore   int          `json:"accuracy_score"`
	ConfidenceScore int          `json:"confidence_score"`
	IntonationScore int          `json:"intonation_score"`
	FluencyScore    int          `json:"fluency_score"`
	Words           []WordResult `json:"words"`
	HasSpeechData   bool         `json:"has_speech_data"`
}

// Engine computes analyses with a fixed weight and band configuration.
type Engine struct {
	cfg config.ScoringConfig
}

func NewEngine(cfg config.ScoringConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Analyze scores one attempt. expected is the raw practice text, transcript
// the recognizer's final text, words its word-level timing and confidence
// data (may be empty), contour the learner's pitch track and reference an
// optional native-speaker contour to compare intonation against.
//
// The result always carries exactly one word entry per expected word, in
// expected order, and every score lies in [0,100].
func (e *Engine) Analyze(expected, transcript string, words []recognizer.Word, contour, reference []pitch.Point) Analysis {
	displayTokens := textnorm.Words(textnorm.Display(expected))

	compareTokens := make([]string, len(displayTokens))
	for i, tok := range displayTokens {
		compareTokens[i] = textnorm.Comparison(tok)
	}
	spoken := textnorm.Comparison(transcript)
	recognizedTokens := textnorm.Words(spoken)

	accuracy := align.Similarity(textnorm.Comparison(expected), spoken)
	confidence := e.confidenceScore(words, accuracy)
	intonation := e.intonationScore(expected, contour, reference)
	fluency := e.fluencyScore(words)

	overall := clampScore(roundScore(
		float64(accuracy)*e.cfg.WeightAccuracy +
			float64(confidence)*e.cfg.WeightConfidence +
			float64(intonation)*e.cfg.WeightIntonation +
			float64(fluency)*e.cfg.WeightFluency))

	return Analysis{
		OverallScore:    overall,
		AccuracyScore:   accuracy,
		ConfidenceScore: confidence,
		IntonationScore: intonation,
		FluencyScore:    fluency,
		Words:           e.wordResults(displayTokens, compareTokens, recognizedTokens, words),
		HasSpeechData:   len(words) > 0 || len(contour) > 0,
	}
}

func (e *Engine) wordResults(display, compare, recognized []string, words []recognizer.Word) []WordResult {
	pairs := align.Words(display, compare, recognized)

	// Recognizer confidences keyed by comparison form, consumed in order so
	// repeated words do not share one entry.
	type confEntry struct {
		text string
		conf float64
		used bool
	}
	entries := make([]confEntry, len(words))
	for i, w := range words {
		entries[i] = confEntry{text: textnorm.Comparison(w.Word), conf: w.Confidence}
	}
	lookup := func(matched string) (float64, bool) {
		for i := range entries {
			if !entries[i].used && entries[i].text == matched {
				entries[i].used = true
				return entries[i].conf, true
			}
		}
		return 0, false
	}

	out := make([]WordResult, len(pairs))
	for i, p := range pairs {
		if p.Matched == "" {
			out[i] = WordResult{Word: p.Expected, Band: BandLow}
			continue
		}
		sim := align.Similarity(compare[i], p.Matched)
		conf, ok := lookup(p.Matched)
		if !ok {
			conf = float64(sim) / 100
		}
		out[i] = WordResult{
			Word:       p.Expected,
			Score:      sim,
			Confidence: conf,
			Band:       e.Band(sim),
		}
	}
	return out
}

// confidenceScore averages the recognizer's per-word confidences. Engines
// without word data fall back to the accuracy score so confidence never
// silently zeroes the weighted total.
func (e *Engine) confidenceScore(words []recognizer.Word, accuracy int) int {
	if len(words) == 0 {
		return accuracy
	}
	var sum float64
	for _, w := range words {
		sum += w.Confidence
	}
	return clampScore(roundScore(sum / float64(len(words)) * 100))
}

func (e *Engine) intonationScore(expected string, contour, reference []pitch.Point) int {
	if len(contour) == 0 {
		return noContourScore
	}
	if len(reference) > 0 {
		return pitch.Compare(reference, contour)
	}
	return pitch.Prosody(contour, expected)
}

// fluencyScore penalizes silent gaps between recognized words. Attempts
// without usable timing get neutral scores rather than zero.
func (e *Engine) fluencyScore(words []recognizer.Word) int {
	if len(words) == 0 {
		return fluencyNoTimingScore
	}
	if len(words) < 2 {
		return fluencyShortPhraseScore
	}
	span := words[len(words)-1].End - words[0].Start
	if span <= 0 {
		return fluencyNoTimingScore
	}

	var totalPause, maxPause float64
	for i := 1; i < len(words); i++ {
		gap := words[i].Start - words[i-1].End
		if gap <= 0 {
			continue
		}
		totalPause += gap
		if gap > maxPause {
			maxPause = gap
		}
	}

	ratio := totalPause / span
	scoreVal := clampScore(roundScore((1 - ratio*1.5) * 100))
	switch {
	case maxPause > 1.5:
		scoreVal -= pausePenaltyLong
	case maxPause > 1.0:
		scoreVal -= pausePenaltyMedium
	case maxPause > 0.5:
		scoreVal -= pausePenaltyShort
	}
	return clampScore(scoreVal)
}

// Band classifies a 0-100 score against the configured thresholds.
func (e *Engine) Band(score int) string {
	switch {
	case score >= e.cfg.BandHigh:
		return BandHigh
	case score >= e.cfg.BandMedium:
		return BandMedium
	default:
		return BandLow
	}
}

func roundScore(v float64) int {
	return int(math.Round(v))
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

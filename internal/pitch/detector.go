// Package pitch tracks the fundamental frequency of a live utterance and
// provides the contour math used for intonation scoring.
//
// The detector itself is a black box behind the Detector interface: given a
// frame of samples it returns a frequency estimate and a clarity value (how
// confident the detector is that the frequency is a genuine voice pitch
// rather than noise). The Tracker samples the detector on a fixed wall-clock
// cadence, filters out low-clarity and out-of-range points at the source,
// and returns an immutable contour when stopped.
package pitch

import (
	"context"
	"errors"
	"math"
)

// Detector estimates pitch for a single audio frame. Implementations are
// stateless across calls except for internal warm-up performed in Init.
type Detector interface {
	// Init performs model or algorithm warm-up. It must be called before
	// FindPitch; calling it more than once is safe.
	Init(ctx context.Context) error
	// FindPitch returns the estimated frequency in Hz and a clarity value
	// in [0,1] for the given mono frame.
	FindPitch(frame []float64, sampleRate int) (hz, clarity float64)
}

// ErrDetectorNotReady is returned by detectors asked to analyze a frame
// before Init completed.
var ErrDetectorNotReady = errors.New("pitch: detector not initialized")

// AutocorrelationDetector is the default pure-Go detector. It picks the lag
// with the strongest normalized autocorrelation inside the plausible vocal
// range and reports the normalized peak height as clarity.
type AutocorrelationDetector struct {
	minHz   float64
	maxHz   float64
	scratch []float64
	ready   bool
}

// NewAutocorrelationDetector returns a detector constrained to the given
// vocal range. Zero values fall back to 50–600 Hz.
func NewAutocorrelationDetector(minHz, maxHz float64) *AutocorrelationDetector {
	if minHz <= 0 {
		minHz = DefaultMinPitchHz
	}
	if maxHz <= minHz {
		maxHz = DefaultMaxPitchHz
	}
	return &AutocorrelationDetector{minHz: minHz, maxHz: maxHz}
}

func (d *AutocorrelationDetector) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.ready = true
	return nil
}

func (d *AutocorrelationDetector) FindPitch(frame []float64, sampleRate int) (float64, float64) {
	if !d.ready || len(frame) == 0 || sampleRate <= 0 {
		return 0, 0
	}

	n := len(frame)
	if cap(d.scratch) < n {
		d.scratch = make([]float64, n)
	}
	buf := d.scratch[:n]

	// Remove DC offset so silence does not correlate with itself.
	var mean float64
	for _, s := range frame {
		mean += s
	}
	mean /= float64(n)
	var energy float64
	for i, s := range frame {
		buf[i] = s - mean
		energy += buf[i] * buf[i]
	}
	if energy < 1e-10 {
		return 0, 0
	}

	minLag := int(float64(sampleRate) / d.maxHz)
	maxLag := int(float64(sampleRate) / d.minHz)
	if maxLag >= n {
		maxLag = n - 1
	}
	if minLag < 1 {
		minLag = 1
	}
	if minLag >= maxLag {
		return 0, 0
	}

	bestLag, bestCorr := 0, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		var corr float64
		for i := 0; i < n-lag; i++ {
			corr += buf[i] * buf[i+lag]
		}
		corr /= energy
		if corr > bestCorr {
			bestCorr = corr
			bestLag = lag
		}
	}
	if bestLag == 0 {
		return 0, 0
	}

	clarity := math.Min(1, math.Max(0, bestCorr))
	return float64(sampleRate) / float64(bestLag), clarity
}

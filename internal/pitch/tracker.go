package pitch

import (
	"context"
	"sync"
	"time"
)

// Filtering and cadence defaults, mirroring the tuning the scorer was built
// against. Overridable through TrackerConfig.
const (
	DefaultClarityThreshold = 0.8
	DefaultMinPitchHz       = 50
	DefaultMaxPitchHz       = 600
	DefaultSampleInterval   = 16 * time.Millisecond
)

// Point is a single pitch observation, time-stamped in seconds since
// tracking started.
type Point struct {
	Time    float64 `json:"time"`
	Pitch   float64 `json:"pitch"`
	Clarity float64 `json:"clarity"`
}

// FrameSource supplies the most recent audio frame on demand. Snapshot
// copies the current frame into dst and reports whether a frame was
// available yet. Implementations must be safe for concurrent use.
type FrameSource interface {
	Snapshot(dst []float64) bool
}

// TrackerConfig tunes sampling cadence and point filtering.
type TrackerConfig struct {
	ClarityThreshold float64
	MinPitchHz       float64
	MaxPitchHz       float64
	SampleInterval   time.Duration
	FrameSize        int
}

func (c *TrackerConfig) applyDefaults() {
	if c.ClarityThreshold <= 0 {
		c.ClarityThreshold = DefaultClarityThreshold
	}
	if c.MinPitchHz <= 0 {
		c.MinPitchHz = DefaultMinPitchHz
	}
	if c.MaxPitchHz <= c.MinPitchHz {
		c.MaxPitchHz = DefaultMaxPitchHz
	}
	if c.SampleInterval <= 0 {
		c.SampleInterval = DefaultSampleInterval
	}
	if c.FrameSize <= 0 {
		c.FrameSize = 2048
	}
}

// Tracker samples a FrameSource at a fixed cadence and accumulates a pitch
// contour. The contour is append-only while tracking and immutable after
// Stop returns it.
type Tracker struct {
	cfg      TrackerConfig
	detector Detector
	src      FrameSource
	rate     int

	mu      sync.Mutex
	contour []Point
	stopped bool

	cancel context.CancelFunc
	done   chan struct{}
}

// Track starts sampling src with the given detector. Detector warm-up runs
// asynchronously; ticks that fire before warm-up completes are skipped, not
// queued. Call Stop to end tracking and collect the contour.
func Track(ctx context.Context, detector Detector, src FrameSource, sampleRate int, cfg TrackerConfig) *Tracker {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(ctx)
	t := &Tracker{
		cfg:      cfg,
		detector: detector,
		src:      src,
		rate:     sampleRate,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go t.run(ctx)
	return t
}

func (t *Tracker) run(ctx context.Context) {
	defer close(t.done)

	if err := t.detector.Init(ctx); err != nil {
		// Degraded attempt: no contour, scoring falls back to its
		// neutral intonation value.
		<-ctx.Done()
		return
	}

	start := time.Now()
	frame := make([]float64, t.cfg.FrameSize)
	ticker := time.NewTicker(t.cfg.SampleInterval)
	defer ticker.Stop()

	t.sample(frame, start)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sample(frame, start)
		}
	}
}

func (t *Tracker) sample(frame []float64, start time.Time) {
	if !t.src.Snapshot(frame) {
		return
	}
	hz, clarity := t.detector.FindPitch(frame, t.rate)
	if clarity < t.cfg.ClarityThreshold || hz < t.cfg.MinPitchHz || hz > t.cfg.MaxPitchHz {
		// Silence and noise contribute no points, not zero-pitch points.
		return
	}
	p := Point{Time: time.Since(start).Seconds(), Pitch: hz, Clarity: clarity}

	t.mu.Lock()
	if !t.stopped {
		t.contour = append(t.contour, p)
	}
	t.mu.Unlock()
}

// Stop ends tracking and returns the accumulated contour. It is synchronous
// and idempotent; subsequent calls return the same contour.
func (t *Tracker) Stop() []Point {
	t.cancel()
	<-t.done

	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	return t.contour
}

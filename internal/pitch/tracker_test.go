package pitch

import (
	"context"
	"math"
	"sync/atomic"
	"testing"
	"time"
)

type stubDetector struct {
	hz        float64
	clarity   float64
	initDelay time.Duration
	calls     atomic.Int64
}

func (d *stubDetector) Init(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d.initDelay):
		return nil
	}
}

func (d *stubDetector) FindPitch(frame []float64, sampleRate int) (float64, float64) {
	d.calls.Add(1)
	return d.hz, d.clarity
}

type stubSource struct {
	ready atomic.Bool
}

func (s *stubSource) Snapshot(dst []float64) bool {
	if !s.ready.Load() {
		return false
	}
	for i := range dst {
		dst[i] = 0.1
	}
	return true
}

func TestTrackerFiltersLowClarity(t *testing.T) {
	det := &stubDetector{hz: 200, clarity: 0.3}
	src := &stubSource{}
	src.ready.Store(true)

	tr := Track(context.Background(), det, src, 16000, TrackerConfig{SampleInterval: 2 * time.Millisecond})
	time.Sleep(30 * time.Millisecond)
	contour := tr.Stop()
	if len(contour) != 0 {
		t.Fatalf("low-clarity points must be dropped, got %d points", len(contour))
	}
	if det.calls.Load() == 0 {
		t.Fatal("detector was never sampled")
	}
}

func TestTrackerFiltersOutOfRangePitch(t *testing.T) {
	det := &stubDetector{hz: 1200, clarity: 0.95}
	src := &stubSource{}
	src.ready.Store(true)

	tr := Track(context.Background(), det, src, 16000, TrackerConfig{SampleInterval: 2 * time.Millisecond})
	time.Sleep(30 * time.Millisecond)
	if contour := tr.Stop(); len(contour) != 0 {
		t.Fatalf("out-of-range pitch must be dropped, got %d points", len(contour))
	}
}

func TestTrackerCollectsMonotonicTimes(t *testing.T) {
	det := &stubDetector{hz: 220, clarity: 0.95}
	src := &stubSource{}
	src.ready.Store(true)

	tr := Track(context.Background(), det, src, 16000, TrackerConfig{SampleInterval: 2 * time.Millisecond})
	time.Sleep(50 * time.Millisecond)
	contour := tr.Stop()
	if len(contour) < 2 {
		t.Fatalf("expected several points, got %d", len(contour))
	}
	for i := 1; i < len(contour); i++ {
		if contour[i].Time < contour[i-1].Time {
			t.Fatal("contour times must be non-decreasing")
		}
	}
	// Stop is idempotent and returns the same contour.
	if again := tr.Stop(); len(again) != len(contour) {
		t.Fatalf("second Stop returned %d points, want %d", len(again), len(contour))
	}
}

func TestTrackerSkipsTicksBeforeWarmup(t *testing.T) {
	det := &stubDetector{hz: 220, clarity: 0.95, initDelay: 30 * time.Millisecond}
	src := &stubSource{}
	src.ready.Store(true)

	tr := Track(context.Background(), det, src, 16000, TrackerConfig{SampleInterval: 2 * time.Millisecond})
	time.Sleep(10 * time.Millisecond)
	if n := det.calls.Load(); n != 0 {
		t.Fatalf("detector sampled %d times before warm-up completed", n)
	}
	tr.Stop()
}

func TestAutocorrelationDetectorFindsSine(t *testing.T) {
	det := NewAutocorrelationDetector(50, 600)
	if err := det.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}

	const sampleRate = 16000
	const freq = 220.0
	frame := make([]float64, 2048)
	for i := range frame {
		frame[i] = math.Sin(2 * math.Pi * freq * float64(i) / sampleRate)
	}

	hz, clarity := det.FindPitch(frame, sampleRate)
	if clarity < 0.8 {
		t.Fatalf("pure tone should have high clarity, got %v", clarity)
	}
	if math.Abs(hz-freq) > 10 {
		t.Fatalf("detected %v Hz, want ~%v", hz, freq)
	}
}

func TestAutocorrelationDetectorSilence(t *testing.T) {
	det := NewAutocorrelationDetector(0, 0)
	if err := det.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	hz, clarity := det.FindPitch(make([]float64, 2048), 16000)
	if hz != 0 || clarity != 0 {
		t.Fatalf("silence should yield no pitch, got hz=%v clarity=%v", hz, clarity)
	}
}

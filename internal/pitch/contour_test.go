package pitch

import (
	"math"
	"testing"
)

func contourFrom(pitches []float64) []Point {
	out := make([]Point, len(pitches))
	for i, p := range pitches {
		out[i] = Point{Time: float64(i) * 0.016, Pitch: p, Clarity: 0.9}
	}
	return out
}

func risingContour(n int) []Point {
	pitches := make([]float64, n)
	for i := range pitches {
		pitches[i] = 150 + float64(i)
	}
	return contourFrom(pitches)
}

func TestCompareIdenticalContours(t *testing.T) {
	c := risingContour(40)
	if got := Compare(c, c); got != 100 {
		t.Fatalf("identical contours scored %d, want 100", got)
	}
}

func TestCompareNegatedContours(t *testing.T) {
	c := risingContour(40)
	mean := 0.0
	for _, p := range c {
		mean += p.Pitch
	}
	mean /= float64(len(c))

	negated := make([]Point, len(c))
	for i, p := range c {
		negated[i] = Point{Time: p.Time, Pitch: 2*mean - p.Pitch, Clarity: p.Clarity}
	}
	if got := Compare(c, negated); got > 20 {
		t.Fatalf("negated contours scored %d, want <= 20", got)
	}
}

func TestCompareTooFewPointsIsNeutral(t *testing.T) {
	if got := Compare(risingContour(2), risingContour(40)); got != neutralContourScore {
		t.Fatalf("thin reference scored %d, want %d", got, neutralContourScore)
	}
}

func TestResampleLinear(t *testing.T) {
	c := contourFrom([]float64{100, 200, 300})
	out := Resample(c, 5)
	want := []float64{100, 150, 200, 250, 300}
	for i := range want {
		if math.Abs(out[i]-want[i]) > 1e-9 {
			t.Fatalf("resample[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestProsodyQuestionRise(t *testing.T) {
	// Natural variation, centered in range, rising close.
	pitches := make([]float64, 60)
	for i := range pitches {
		pitches[i] = 180 + 25*math.Sin(float64(i)/6)
		if i >= 45 {
			pitches[i] += float64(i-45) * 3
		}
	}
	question := Prosody(contourFrom(pitches), "Comment ça va ?")
	statement := Prosody(contourFrom(pitches), "Ça va bien.")
	if question <= statement {
		t.Fatalf("rising close should favor questions: question=%d statement=%d", question, statement)
	}
}

func TestProsodyMonotonePenalized(t *testing.T) {
	flat := make([]float64, 60)
	for i := range flat {
		flat[i] = 200
	}
	varied := make([]float64, 60)
	for i := range varied {
		varied[i] = 200 + 25*math.Sin(float64(i)/6)
	}
	if Prosody(contourFrom(flat), "Bonjour.") >= Prosody(contourFrom(varied), "Bonjour.") {
		t.Fatal("monotone contour should score below naturally varied contour")
	}
}

func TestProsodyTooFewPoints(t *testing.T) {
	if got := Prosody(contourFrom([]float64{200, 210}), "Bonjour."); got != 60 {
		t.Fatalf("thin contour scored %d, want 60", got)
	}
}

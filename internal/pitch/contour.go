package pitch

import (
	"math"
	"strings"
)

// Contours with fewer points than this carry no usable intonation signal.
const minContourPoints = 3

// Number of points both contours are resampled to before correlation.
const resamplePoints = 50

// Neutral score used when contour data is too thin to compare.
const neutralContourScore = 50

// Compare scores how closely a live contour follows a reference contour,
// 0–100. Both contours are resampled to a common length and compared by
// Pearson correlation: non-positive correlation lands in the 0–20 band,
// perfect positive correlation scores 100, linear in between.
func Compare(reference, actual []Point) int {
	if len(reference) < minContourPoints || len(actual) < minContourPoints {
		return neutralContourScore
	}

	ref := Resample(reference, resamplePoints)
	act := Resample(actual, resamplePoints)
	r := pearson(ref, act)

	if r <= 0 {
		return int(math.Round(math.Max(0, (r+1)*20)))
	}
	return int(math.Round(20 + r*80))
}

// Prosody scores a contour without a reference, using statistical heuristics
// for natural speech: mean pitch near the typical speaking range, moderate
// pitch variation (neither monotone nor erratic), and a final direction that
// matches the sentence type — questions expect a late rise, statements a
// flat-to-falling close.
func Prosody(contour []Point, text string) int {
	if len(contour) < minContourPoints {
		return 60
	}

	pitches := make([]float64, len(contour))
	for i, p := range contour {
		pitches[i] = p.Pitch
	}
	n := float64(len(pitches))

	var sum float64
	for _, p := range pitches {
		sum += p
	}
	mean := sum / n

	var variance float64
	for _, p := range pitches {
		variance += (p - mean) * (p - mean)
	}
	stdDev := math.Sqrt(variance / n)

	// Typical speaking pitch sits between 100 and 350 Hz.
	var rangeScore float64
	switch {
	case mean >= 100 && mean <= 350:
		rangeScore = 100
	case mean >= 50 && mean < 100:
		rangeScore = 50 + (mean - 50)
	case mean > 350 && mean <= 500:
		rangeScore = 100 - (mean-350)/1.5
	default:
		rangeScore = 20
	}

	// Natural variation is roughly 15–40 Hz of spread; below is monotone,
	// above is erratic.
	var variationScore float64
	switch {
	case stdDev >= 15 && stdDev <= 40:
		variationScore = 90 + math.Min(10, (stdDev-15)/2.5)
	case stdDev >= 10 && stdDev < 15:
		variationScore = 60 + (stdDev-10)*6
	case stdDev > 40 && stdDev <= 60:
		variationScore = 90 - (stdDev-40)*2
	case stdDev < 10:
		variationScore = math.Max(20, stdDev*6)
	default:
		variationScore = math.Max(10, 50-(stdDev-60))
	}

	// Final direction: compare the last quarter against the first quarter.
	last := pitches[int(math.Floor(n*0.75)):]
	first := pitches[:int(math.Ceil(n*0.25))]
	delta := meanOf(last) - meanOf(first)

	isQuestion := strings.HasSuffix(strings.TrimSpace(text), "?")
	var contourScore float64
	if isQuestion {
		switch {
		case delta > 10:
			contourScore = 100
		case delta > 0:
			contourScore = 70
		default:
			contourScore = 40
		}
	} else {
		switch {
		case delta < 5:
			contourScore = 90
		case delta < 20:
			contourScore = 70
		default:
			contourScore = 50
		}
	}

	return int(math.Round(rangeScore*0.25 + variationScore*0.50 + contourScore*0.25))
}

// Resample reduces or stretches a contour's pitch sequence to targetLength
// points by linear interpolation over its sample positions.
func Resample(contour []Point, targetLength int) []float64 {
	pitches := make([]float64, len(contour))
	for i, p := range contour {
		pitches[i] = p.Pitch
	}
	if len(pitches) == targetLength || targetLength < 2 {
		return pitches
	}

	out := make([]float64, targetLength)
	for i := 0; i < targetLength; i++ {
		idx := float64(i) / float64(targetLength-1) * float64(len(pitches)-1)
		lo := int(math.Floor(idx))
		hi := lo + 1
		if hi > len(pitches)-1 {
			hi = len(pitches) - 1
		}
		frac := idx - float64(lo)
		out[i] = pitches[lo]*(1-frac) + pitches[hi]*frac
	}
	return out
}

func pearson(a, b []float64) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return 0
	}

	meanA, meanB := meanOf(a), meanOf(b)
	var num, denA, denB float64
	for i := 0; i < n; i++ {
		dA, dB := a[i]-meanA, b[i]-meanB
		num += dA * dB
		denA += dA * dA
		denB += dB * dB
	}
	den := math.Sqrt(denA * denB)
	if den == 0 {
		return 0
	}
	return num / den
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

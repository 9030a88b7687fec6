package detector

import (
	"math"

	"gate-service/internal/domain/anpr"
)

const (
	DefaultScoreThreshold = 0.7
	DefaultIoUThreshold   = 0.3

	iouEpsilon = 1e-6
)

// IoU returns the intersection-over-union of two axis-aligned boxes.
func IoU(a, b anpr.Box) float64 {
	ix1 := math.Max(a.X1, b.X1)
	iy1 := math.Max(a.Y1, b.Y1)
	ix2 := math.Min(a.X2, b.X2)
	iy2 := math.Min(a.Y2, b.Y2)

	inter := math.Max(0, ix2-ix1) * math.Max(0, iy2-iy1)
	return inter / (a.Area() + b.Area() - inter + iouEpsilon)
}

// FilterByScore keeps detections whose score is at least threshold,
// preserving order.
func FilterByScore(dets []anpr.Detection, threshold float64) []anpr.Detection {
	out := make([]anpr.Detection, 0, len(dets))
	for _, d := range dets {
		if d.Score >= threshold {
			out = append(out, d)
		}
	}
	return out
}

// Deduplicate performs greedy non-maximum suppression in arrival order: the
// earlier of two overlapping boxes wins regardless of score. A later box is
// suppressed when its IoU with a kept box exceeds threshold.
func Deduplicate(dets []anpr.Detection, threshold float64) []anpr.Detection {
	used := make([]bool, len(dets))
	kept := make([]anpr.Detection, 0, len(dets))
	for i := range dets {
		if used[i] {
			continue
		}
		kept = append(kept, dets[i])
		for j := i + 1; j < len(dets); j++ {
			if used[j] {
				continue
			}
			if IoU(dets[i].Box, dets[j].Box) > threshold {
				used[j] = true
			}
		}
	}
	return kept
}

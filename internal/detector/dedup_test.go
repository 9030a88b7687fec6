package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gate-service/internal/domain/anpr"
)

func det(x1, y1, x2, y2, score float64) anpr.Detection {
	return anpr.Detection{Box: anpr.Box{X1: x1, Y1: y1, X2: x2, Y2: y2}, Score: score, Class: anpr.ClassPlate}
}

func TestIoU(t *testing.T) {
	a := anpr.Box{X1: 0, Y1: 0, X2: 10, Y2: 10}

	assert.InDelta(t, 1.0, IoU(a, a), 1e-6, "identical boxes")
	assert.Equal(t, 0.0, IoU(a, anpr.Box{X1: 20, Y1: 20, X2: 30, Y2: 30}), "disjoint boxes")
	assert.Equal(t, 0.0, IoU(a, anpr.Box{X1: 10, Y1: 0, X2: 20, Y2: 10}), "touching edges")
	assert.InDelta(t, 81.0/119.0, IoU(a, anpr.Box{X1: 1, Y1: 1, X2: 11, Y2: 11}), 1e-6)
}

func TestIoUZeroAreaDoesNotDivideByZero(t *testing.T) {
	p := anpr.Box{X1: 5, Y1: 5, X2: 5, Y2: 5}
	assert.Equal(t, 0.0, IoU(p, p))
}

func TestFilterByScore(t *testing.T) {
	dets := []anpr.Detection{det(0, 0, 1, 1, 0.69), det(0, 0, 1, 1, 0.7), det(0, 0, 1, 1, 0.95)}
	kept := FilterByScore(dets, DefaultScoreThreshold)
	require.Len(t, kept, 2)
	assert.Equal(t, 0.7, kept[0].Score)
	assert.Equal(t, 0.95, kept[1].Score)
}

func TestDeduplicateKeepsArrivalOrderWinner(t *testing.T) {
	dets := []anpr.Detection{
		det(0, 0, 10, 10, 0.75),
		det(1, 1, 11, 11, 0.95), // overlaps the first, suppressed despite higher score
		det(50, 50, 60, 60, 0.8),
	}

	kept := Deduplicate(dets, DefaultIoUThreshold)

	require.Len(t, kept, 2)
	assert.Equal(t, dets[0], kept[0])
	assert.Equal(t, dets[2], kept[1])
}

func TestDeduplicateSuppressedBoxDoesNotSuppressOthers(t *testing.T) {
	dets := []anpr.Detection{
		det(0, 0, 10, 10, 0.9),
		det(4, 0, 14, 10, 0.9), // IoU with first = 60/140 > 0.3
		det(9, 0, 19, 10, 0.9), // IoU with first = 10/190, with second > 0.3
	}

	kept := Deduplicate(dets, DefaultIoUThreshold)

	require.Len(t, kept, 2)
	assert.Equal(t, dets[0], kept[0])
	assert.Equal(t, dets[2], kept[1])
}

func TestDeduplicateIdempotent(t *testing.T) {
	dets := []anpr.Detection{
		det(0, 0, 10, 10, 0.9),
		det(2, 2, 12, 12, 0.8),
		det(30, 30, 40, 40, 0.7),
		det(31, 30, 41, 40, 0.99),
		det(100, 0, 120, 10, 0.85),
	}

	once := Deduplicate(dets, DefaultIoUThreshold)
	twice := Deduplicate(once, DefaultIoUThreshold)

	assert.Equal(t, once, twice)
}

func TestDeduplicateEmpty(t *testing.T) {
	assert.Empty(t, Deduplicate(nil, DefaultIoUThreshold))
}

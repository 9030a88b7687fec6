package detector

import (
	"sort"
	"strings"
	"unicode"

	"gate-service/internal/domain/anpr"
)

type LineOptions struct {
	// Tolerance is how far below the mean top edge a fragment may start and
	// still count as part of the main line.
	Tolerance float64
	// MinConfidence drops fragments scoring at or below it.
	MinConfidence float64
}

func DefaultLineOptions() LineOptions {
	return LineOptions{Tolerance: 20, MinConfidence: 0.3}
}

// ExtractMainLine selects the main text line of a plate crop and returns the
// corrected text together with the mean confidence of the fragments used.
func ExtractMainLine(frags []anpr.Fragment, opts LineOptions) (string, float64) {
	if len(frags) == 0 {
		return "", 0
	}

	var sumY float64
	for _, f := range frags {
		sumY += f.Box.Y1
	}
	meanY := sumY / float64(len(frags))

	line := make([]anpr.Fragment, 0, len(frags))
	for _, f := range frags {
		if f.Box.Y1 < meanY+opts.Tolerance {
			line = append(line, f)
		}
	}
	sort.SliceStable(line, func(i, j int) bool {
		return line[i].Box.X1 < line[j].Box.X1
	})

	parts := make([]string, 0, len(line))
	var total float64
	for _, f := range line {
		if f.Score <= opts.MinConfidence {
			continue
		}
		parts = append(parts, strings.ToUpper(stripSpace(f.Text)))
		total += f.Score
	}
	if len(parts) == 0 {
		return "", 0
	}

	text := FixPlate(strings.Join(parts, " "))
	return strings.TrimSpace(text), total / float64(len(parts))
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// Package scoring computes form scores, performance bands and agreement deadlines.
package scoring

import (
	"math"
	"strconv"

	"github.com/portillolaupa-ui/ucc-supervision/internal/model"
)

// Summary aggregate outcome of one form
type Summary struct {
	Sum        float64
	Valid      int
	NA         int
	Percentage float64
}

// Score sums the numeric items and computes the percentage over valid items only.
// Text values count neither as valid nor as NA.
func Score(items []model.Item, maxPerItem float64) Summary {
	var s Summary
	for _, it := range items {
		switch {
		case it.Value.IsScore():
			s.Sum += it.Value.Score
			s.Valid++
		case it.Value.IsNA():
			s.NA++
		}
	}
	s.Percentage = Percentage(s.Sum, s.Valid, maxPerItem)
	return s
}

// Percentage sum / (valid × max) × 100 rounded to one decimal; 0 when nothing is valid
func Percentage(sum float64, valid int, maxPerItem float64) float64 {
	if valid <= 0 || maxPerItem <= 0 {
		return 0
	}
	return Round1(sum / (float64(valid) * maxPerItem) * 100)
}

// Round1 rounds to one decimal from the exact binary value; exact ties go to the even digit
func Round1(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 1, 64), 64)
	return r
}

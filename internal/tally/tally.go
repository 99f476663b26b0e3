// Package tally aggregates cast vote values into ranked percentage results.
package tally

import (
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/victornm/rateroom/internal/domain"
)

// Tally turns a sequence of cast vote values into one result entry per label
// with at least one vote. Percentage is round(100*count/total); entries are
// ordered higher label first (numeric labels compare numerically, anything
// else falls back to reverse lexical order). Percentages are rounded
// independently and need not sum to exactly 100.
func Tally(values []string) []domain.Result {
	if len(values) == 0 {
		return []domain.Result{}
	}

	counts := make(map[string]int)
	for _, v := range values {
		counts[v]++
	}

	total := decimal.NewFromInt(int64(len(values)))
	results := make([]domain.Result, 0, len(counts))
	for label, count := range counts {
		pct := decimal.NewFromInt(int64(100 * count)).DivRound(total, 0)
		results = append(results, domain.Result{
			Rating:     label,
			Count:      count,
			Percentage: int(pct.IntPart()),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return labelLess(results[j].Rating, results[i].Rating)
	})

	return results
}

// labelLess orders labels ascending, numerically when both sides parse as
// numbers.
func labelLess(a, b string) bool {
	na, errA := strconv.ParseFloat(a, 64)
	nb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}

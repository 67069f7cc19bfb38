package report

import "github.com/shopspring/decimal"

// Method tells which branch of the aggregation produced a grade.
type Method string

const (
	MethodNone       Method = "none"       // no scores at all
	MethodWeighted   Method = "weighted"   // weights overlapping the scored categories
	MethodFallback   Method = "fallback"   // weights exist but none apply (or they sum to zero)
	MethodUnweighted Method = "unweighted" // no weights configured
)

// GradePlaces is the number of decimal places kept on final grades.
const GradePlaces = 2

type Aggregation struct {
	Value  decimal.Decimal
	Method Method
}

// Mean is the arithmetic mean of values, unrounded. Zero for an empty slice.
func Mean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	return decimal.Sum(values[0], values[1:]...).Div(decimal.NewFromInt(int64(len(values))))
}

// CategoryMeans groups scores by category and averages each group.
// Categories without scores are absent from the result.
func CategoryMeans(scores map[Category][]decimal.Decimal) map[Category]decimal.Decimal {
	means := make(map[Category]decimal.Decimal, len(scores))
	for cat, values := range scores {
		if len(values) == 0 {
			continue
		}
		means[cat] = Mean(values)
	}
	return means
}

// Aggregate folds category means into a final grade.
//
// With weights, the result is Σ(mean × weight) / Σ(weight) over the categories present in both maps.
// When that overlap is empty or its weights sum to zero, or when there are no weights at all,
// the result is the plain mean of the category means (not of the raw scores).
// The value is rounded half away from zero to GradePlaces.
func Aggregate(means map[Category]decimal.Decimal, weights map[Category]int) Aggregation {
	if len(means) == 0 {
		return Aggregation{Value: decimal.Zero.Round(GradePlaces), Method: MethodNone}
	}

	if len(weights) > 0 {
		weightedSum := decimal.Zero
		weightSum := decimal.Zero
		for cat, mean := range means {
			w, ok := weights[cat]
			if !ok {
				continue
			}
			dw := decimal.NewFromInt(int64(w))
			weightedSum = weightedSum.Add(mean.Mul(dw))
			weightSum = weightSum.Add(dw)
		}
		if weightSum.IsPositive() {
			return Aggregation{Value: weightedSum.Div(weightSum).Round(GradePlaces), Method: MethodWeighted}
		}
		return Aggregation{Value: unweighted(means), Method: MethodFallback}
	}
	return Aggregation{Value: unweighted(means), Method: MethodUnweighted}
}

func unweighted(means map[Category]decimal.Decimal) decimal.Decimal {
	values := make([]decimal.Decimal, 0, len(means))
	for _, cat := range Categories {
		if m, ok := means[cat]; ok {
			values = append(values, m)
		}
	}
	// categories outside the known set still count
	for cat, m := range means {
		if !cat.IsValid() {
			values = append(values, m)
		}
	}
	return Mean(values).Round(GradePlaces)
}

// Package variance implements a numerically stable streaming
// variance accumulator: Welford's online algorithm for per-batch
// updates, and the Chan/Youngs-Cramer pairwise merge for combining
// partial states computed on different partitions. Ported directly
// from original_source/datafusion/.../variance.rs.
package variance

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/compute"
)

// StatsType selects the variance divisor: Sample uses count-1,
// Population uses count.
type StatsType int

const (
	Sample StatsType = iota
	Population
)

func (t StatsType) String() string {
	if t == Population {
		return "Population"
	}
	return "Sample"
}

// Accumulator holds the running moments of a streamed column. The
// zero value, with Kind set, is a valid empty accumulator (count = 0
// implies mean = 0 and m2 = 0).
type Accumulator struct {
	Count uint64
	Mean  float64
	M2    float64
	Kind  StatsType
}

// New returns an empty accumulator of the given kind.
func New(kind StatsType) *Accumulator {
	return &Accumulator{Kind: kind}
}

// Update folds one scalar value into the accumulator (Welford).
func (a *Accumulator) Update(x float64) {
	newCount := a.Count + 1
	delta1 := x - a.Mean
	newMean := a.Mean + delta1/float64(newCount)
	delta2 := x - newMean
	newM2 := a.M2 + delta1*delta2

	a.Count = newCount
	a.Mean = newMean
	a.M2 = newM2
}

// UpdateBatch casts col to float64 and folds every non-null element in
// via Update, skipping nulls.
func (a *Accumulator) UpdateBatch(col arrow.Array) error {
	floats, err := toFloat64Array(col)
	if err != nil {
		return err
	}
	defer floats.Release()

	for i := 0; i < floats.Len(); i++ {
		if floats.IsNull(i) {
			continue
		}
		a.Update(floats.Value(i))
	}
	return nil
}

// toFloat64Array casts an arbitrary numeric array to Float64Array
// using the columnar library's cast kernel - variance only supports
// numeric input types, enforced by the caller choosing which columns
// to accumulate.
func toFloat64Array(col arrow.Array) (*array.Float64, error) {
	if f, ok := col.(*array.Float64); ok {
		f.Retain()
		return f, nil
	}
	casted, err := compute.CastToType(context.Background(), col, arrow.PrimitiveTypes.Float64)
	if err != nil {
		return nil, fmt.Errorf("variance: cast to float64 failed: %w", err)
	}
	f, ok := casted.(*array.Float64)
	if !ok {
		casted.Release()
		return nil, fmt.Errorf("variance: unexpected cast result type %T", casted)
	}
	return f, nil
}

// Merge combines other into a using the Chan/Youngs-Cramer pairwise
// merge formula. If a is empty, other's state is absorbed verbatim.
// Merges where other.Count == 0 are skipped (nothing to absorb).
func (a *Accumulator) Merge(other *Accumulator) {
	if other.Count == 0 {
		return
	}
	if a.Count == 0 {
		a.Count = other.Count
		a.Mean = other.Mean
		a.M2 = other.M2
		return
	}

	c1, c2 := float64(a.Count), float64(other.Count)
	newCount := a.Count + other.Count
	newMean := (a.Mean*c1 + other.Mean*c2) / (c1 + c2)
	delta := a.Mean - other.Mean
	newM2 := a.M2 + other.M2 + delta*delta*(c1*c2)/(c1+c2)

	a.Count = newCount
	a.Mean = newMean
	a.M2 = newM2
}

// Evaluate returns the variance, or an error if fewer than two
// effective values have been accumulated - dividing by zero is never
// attempted.
func (a *Accumulator) Evaluate() (float64, bool, error) {
	var divisor uint64
	switch a.Kind {
	case Population:
		divisor = a.Count
	case Sample:
		if a.Count > 0 {
			divisor = a.Count - 1
		}
	default:
		return 0, false, fmt.Errorf("variance: unreachable stats type %v", a.Kind)
	}

	if divisor <= 1 {
		return 0, false, fmt.Errorf("variance: at least two values are required to calculate variance")
	}
	if a.Count == 0 {
		return 0, true, nil // null
	}
	return a.M2 / float64(divisor), false, nil
}

// State returns the three serializable state fields, in the fixed
// order count/mean/m2.
func (a *Accumulator) State() (count uint64, mean, m2 float64) {
	return a.Count, a.Mean, a.M2
}

// FormatStateName prefixes a state field name with the accumulator's
// user-visible expression name, e.g. "price[count]".
func FormatStateName(exprName, field string) string {
	return fmt.Sprintf("%s[%s]", exprName, field)
}

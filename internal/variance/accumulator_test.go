package variance

import (
	"math"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

func float64Array(t *testing.T, values []float64, valid []bool) arrow.Array {
	t.Helper()
	mem := memory.NewGoAllocator()
	b := array.NewFloat64Builder(mem)
	defer b.Release()
	if valid == nil {
		b.AppendValues(values, nil)
	} else {
		b.AppendValues(values, valid)
	}
	return b.NewArray()
}

func accumulate(t *testing.T, kind StatsType, values []float64, valid []bool) *Accumulator {
	t.Helper()
	acc := New(kind)
	col := float64Array(t, values, valid)
	defer col.Release()
	if err := acc.UpdateBatch(col); err != nil {
		t.Fatalf("UpdateBatch: %v", err)
	}
	return acc
}

func TestVariancePopulation(t *testing.T) {
	acc := accumulate(t, Population, []float64{1, 2, 3, 4, 5}, nil)
	got, isNull, err := acc.Evaluate()
	if err != nil || isNull {
		t.Fatalf("Evaluate() = %v, null=%v, err=%v", got, isNull, err)
	}
	if math.Abs(got-2.0) > 1e-12 {
		t.Fatalf("got %v, want 2.0", got)
	}
}

func TestVarianceSample(t *testing.T) {
	acc := accumulate(t, Sample, []float64{1, 2, 3, 4, 5}, nil)
	got, _, err := acc.Evaluate()
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if math.Abs(got-2.5) > 1e-12 {
		t.Fatalf("got %v, want 2.5", got)
	}
}

func TestVarianceSampleFractional(t *testing.T) {
	acc := accumulate(t, Sample, []float64{1.1, 2, 3}, nil)
	got, _, err := acc.Evaluate()
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	const want = 0.9033333333333333
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestVarianceSampleSingleElementErrors(t *testing.T) {
	acc := accumulate(t, Sample, []float64{1}, nil)
	_, _, err := acc.Evaluate()
	if err == nil {
		t.Fatal("expected error for single-element sample variance")
	}
}

func TestVariancePopulationWithNulls(t *testing.T) {
	acc := accumulate(t, Population,
		[]float64{1, 0, 3, 4, 5},
		[]bool{true, false, true, true, true})
	got, _, err := acc.Evaluate()
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	const want = 2.1875
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestVarianceEmptyErrors(t *testing.T) {
	acc := New(Population)
	got, isNull, err := acc.Evaluate()
	if err == nil {
		t.Fatalf("expected error (count<=1), got %v null=%v", got, isNull)
	}
}

func TestVarianceMergeMatchesWhole(t *testing.T) {
	values := make([]float64, 10)
	for i := range values {
		values[i] = float64(i + 1)
	}

	whole := accumulate(t, Population, values, nil)
	wantVar, _, err := whole.Evaluate()
	if err != nil {
		t.Fatalf("whole Evaluate: %v", err)
	}

	left := accumulate(t, Population, values[:5], nil)
	right := accumulate(t, Population, values[5:], nil)
	left.Merge(right)
	gotVar, _, err := left.Evaluate()
	if err != nil {
		t.Fatalf("merged Evaluate: %v", err)
	}

	if math.Abs(gotVar-wantVar) > 1e-12 {
		t.Fatalf("merged variance %v, whole variance %v", gotVar, wantVar)
	}
}

func TestVarianceMergeAssociativeAndCommutative(t *testing.T) {
	a := accumulate(t, Population, []float64{1, 2}, nil)
	b := accumulate(t, Population, []float64{3, 4}, nil)
	c := accumulate(t, Population, []float64{5, 6, 7}, nil)

	left := *a
	left.Merge(b)
	left.Merge(c)

	right := *a
	bc := *b
	bc.Merge(c)
	right.Merge(&bc)

	if math.Abs(left.M2-right.M2) > 1e-9 || left.Count != right.Count {
		t.Fatalf("merge not associative: left=%+v right=%+v", left, right)
	}

	commuted := *b
	commuted.Merge(a)
	direct := *a
	direct.Merge(b)
	if math.Abs(commuted.Mean-direct.Mean) > 1e-9 || commuted.Count != direct.Count {
		t.Fatalf("merge not commutative: commuted=%+v direct=%+v", commuted, direct)
	}
}

func TestVarianceUpdateEquivalentToBatchMerge(t *testing.T) {
	base := New(Population)
	base.Update(10)

	batch := accumulate(t, Population, []float64{1, 2, 3}, nil)
	base.Merge(batch)

	stepwise := New(Population)
	stepwise.Update(10)
	stepwise.Update(1)
	stepwise.Update(2)
	stepwise.Update(3)

	if math.Abs(base.Mean-stepwise.Mean) > 1e-9 || math.Abs(base.M2-stepwise.M2) > 1e-9 {
		t.Fatalf("update not equivalent to merge(batch_state): base=%+v stepwise=%+v", base, stepwise)
	}
}

func TestFormatStateName(t *testing.T) {
	got := FormatStateName("price", "count")
	if got != "price[count]" {
		t.Fatalf("got %q", got)
	}
}

package kernel

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Take gathers col at the given row indices, in list order, preserving
// dtype - the glossary's "take kernel". This repository has no gather
// logic of its own: the spec treats the columnar kernel library as an
// external collaborator, and arrow-go's compute package is the real
// Go provider of that capability.
func Take(ctx context.Context, mem memory.Allocator, col arrow.Array, indices []int64) (arrow.Array, error) {
	idxBuilder := array.NewInt64Builder(mem)
	defer idxBuilder.Release()
	idxBuilder.AppendValues(indices, nil)
	idxArr := idxBuilder.NewInt64Array()
	defer idxArr.Release()

	result, err := compute.TakeArray(ctx, col, idxArr)
	if err != nil {
		return nil, fmt.Errorf("kernel: take failed: %w", err)
	}
	return result, nil
}

// Package shufflewriter implements the stage-boundary execution-plan
// node: it runs one input partition of a child plan to completion,
// hash-repartitions (or passes through) its output rows, writes each
// non-empty output partition to a sink, and returns one metadata
// record per output partition. Ported from
// original_source/ballista/.../shuffle_writer.rs.
package shufflewriter

import "fmt"

// PlanError reports a malformed plan configuration - an invalid
// combination of OutputLocation and Partitioning (found at
// construction time) or of Partitioning and the local senders passed
// to Execute - not a failure while reading or writing data.
type PlanError struct {
	Msg string
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("shufflewriter: invalid plan: %s", e.Msg)
}

// ShuffleWritePartition is one result of Execute and one row of the
// metadata batch ResultBatch builds from those results: the location
// and final stats of one output partition. Hash partitioning only
// reports partitions that received at least one row; pass-through
// always reports its single partition.
type ShuffleWritePartition struct {
	PartitionID uint64
	Path        string
	NumBatches  uint64
	NumRows     uint64
	NumBytes    uint64
}

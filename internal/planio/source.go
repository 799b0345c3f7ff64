// Package planio defines the capability contract this repository
// consumes from the query planner and upstream physical operators —
// both out of scope here, referenced only by the interface the
// shuffle-writer node is built against.
package planio

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
)

// BatchStream is a lazy, single-pass sequence of record batches, the
// Go analogue of the source's boxed RecordBatchStream. Next returns
// (nil, nil) once exhausted.
type BatchStream interface {
	Schema() *arrow.Schema
	Next(ctx context.Context) (arrow.Record, error)
}

// RecordBatchSource is the child plan the shuffle-writer node drives.
// A real implementation executes an arbitrary upstream physical plan
// partition; this repository provides MemorySource (memory.go), the
// in-memory fixture for tests, and FileSource (file.go), which reads
// one Arrow IPC file per partition for the CLI.
type RecordBatchSource interface {
	Schema() *arrow.Schema
	// Execute returns the lazy batch sequence for one input partition.
	// Consumed exactly once, in order.
	Execute(ctx context.Context, partition int) (BatchStream, error)
	// OutputPartitions reports how many input partitions this source
	// has — the shuffle-writer node is executed once per partition by
	// its caller, so this is informational only.
	OutputPartitions() int
}

// Package sink implements the three ShuffleWriterExec output variants:
// a file sink (one Arrow IPC file per output partition), a Flight sink
// (push to a remote executor over internal/flightclient), and a local
// sink (hand a batch to another in-process consumer over a channel).
// All three are built behind one Sink interface so the shuffle-writer
// node never branches on which kind it holds.
package sink

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
)

// Sink accepts a sequence of record batches for one output partition
// and reports how much passed through it.
type Sink interface {
	Write(ctx context.Context, batch arrow.Record) error
	Finish() error

	// Path is the on-disk location of this sink's output, or "" for
	// sinks that have none (Flight, Local).
	Path() string

	NumBatches() uint64
	NumRows() uint64
	NumBytes() uint64
}

// recordByteSize approximates the in-memory size of a batch by summing
// every column's backing buffers, the same accounting DataFusion's
// MemoryReservation uses for its own record batches.
func recordByteSize(rec arrow.Record) uint64 {
	var total uint64
	for i := 0; i < int(rec.NumCols()); i++ {
		data := rec.Column(i).Data()
		for _, buf := range data.Buffers() {
			if buf != nil {
				total += uint64(buf.Len())
			}
		}
	}
	return total
}

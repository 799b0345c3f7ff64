// Package remote is the capability contract for the RPC client used
// to push a shuffle partition to another executor. This package holds
// that contract; a concrete implementation lives in
// internal/flightclient.
package remote

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
)

// Stats is what a successful push reports back: the same three
// counters every sink tracks locally.
type Stats struct {
	NumRows    uint64
	NumBatches uint64
	NumBytes   uint64
}

// BatchReader is an ordered, single-pass sequence of record batches a
// push can stream out. ok is false once the sequence is exhausted.
type BatchReader interface {
	Schema() *arrow.Schema
	Next(ctx context.Context) (rec arrow.Record, ok bool, err error)
}

// PushClient is the BallistaClient.push_partition capability: send an
// ordered batch stream of one schema to a remote executor, keyed by
// (job, stage, partition).
type PushClient interface {
	PushPartition(ctx context.Context, jobID string, stageID, partitionID int, stream BatchReader) (Stats, error)
	Close() error
}

// Dialer opens a PushClient connection to host:port. Kept separate
// from PushClient so sinks can be tested against a fake dialer without
// touching the network.
type Dialer interface {
	Dial(ctx context.Context, host string, port uint16) (PushClient, error)
}

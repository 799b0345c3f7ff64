package sink

import (
	"context"
	"sync"

	"shufflewriter/internal/logger"

	"github.com/apache/arrow-go/v18/arrow"
)

// LocalSink hands batches to another in-process consumer over a plain
// channel, for a local shuffle: both sides run in the same executor
// process, so there is no wire format to cross at all. Like
// FlightSink, send failures never surface as a write error - only ctx
// cancellation does.
type LocalSink struct {
	mu  sync.Mutex
	ch  chan<- arrow.Record
	tag int

	numBatches uint64
	numRows    uint64
	numBytes   uint64
}

// NewLocalSink wraps an externally owned channel. The caller retains
// ownership of ch and is responsible for its consumer; Finish does not
// close it, since other partitions may still be writing to the same
// receiver's fan-in.
func NewLocalSink(ch chan<- arrow.Record, partitionID int) *LocalSink {
	return &LocalSink{ch: ch, tag: partitionID}
}

func (s *LocalSink) Write(ctx context.Context, batch arrow.Record) error {
	batch.Retain()
	select {
	case s.ch <- batch:
		s.mu.Lock()
		s.numBatches++
		s.numRows += uint64(batch.NumRows())
		s.numBytes += recordByteSize(batch)
		s.mu.Unlock()
		return nil
	case <-ctx.Done():
		batch.Release()
		logger.Debug("sink: local sink for partition %d canceled: %v", s.tag, ctx.Err())
		return ctx.Err()
	}
}

func (s *LocalSink) Finish() error { return nil }

func (s *LocalSink) Path() string { return "" }

func (s *LocalSink) NumBatches() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.numBatches
}

func (s *LocalSink) NumRows() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.numRows
}

func (s *LocalSink) NumBytes() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.numBytes
}

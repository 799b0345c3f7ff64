package sink

import (
	"context"
	"sync/atomic"

	"shufflewriter/internal/logger"
	"shufflewriter/internal/remote"

	"github.com/apache/arrow-go/v18/arrow"
	"golang.org/x/time/rate"
)

// flightQueueDepth bounds the Flight sink's outbound channel. The
// shuffle-writer node must never block indefinitely on a slow or dead
// remote executor, so the queue is small and fixed rather than
// unbounded.
const flightQueueDepth = 2

// FlightSink streams batches to a remote executor over a
// remote.PushClient, dialed once in a background goroutine that lives
// for the sink's whole lifetime. A dial or push failure is logged and
// otherwise swallowed: this keeps the sink best-effort rather than
// surfacing a write error back to the shuffle-writer node.
type FlightSink struct {
	schema      *arrow.Schema
	jobID       string
	stageID     int
	partitionID int

	ch      chan arrow.Record
	done    chan struct{}
	limiter *rate.Limiter

	numBatches atomic.Uint64
	numRows    atomic.Uint64
	numBytes   atomic.Uint64
}

// NewFlightSink dials host:port via dialer and starts pushing whatever
// is written to the returned sink. The dial itself happens
// asynchronously so construction never blocks the shuffle-writer node.
// maxBatchesPerSec throttles how fast batches are pushed to the remote
// executor; a value <= 0 means unlimited.
func NewFlightSink(ctx context.Context, dialer remote.Dialer, host string, port uint16, jobID string, stageID, partitionID int, schema *arrow.Schema, maxBatchesPerSec int) *FlightSink {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if maxBatchesPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(maxBatchesPerSec), maxBatchesPerSec)
	}
	s := &FlightSink{
		schema:      schema,
		jobID:       jobID,
		stageID:     stageID,
		partitionID: partitionID,
		ch:          make(chan arrow.Record, flightQueueDepth),
		done:        make(chan struct{}),
		limiter:     limiter,
	}
	go s.run(ctx, dialer, host, port)
	return s
}

func (s *FlightSink) run(ctx context.Context, dialer remote.Dialer, host string, port uint16) {
	defer close(s.done)

	client, err := dialer.Dial(ctx, host, port)
	if err != nil {
		logger.Debug("sink: flight dial %s:%d failed for partition %d: %v", host, port, s.partitionID, err)
		drainRecords(s.ch)
		return
	}
	defer client.Close()

	reader := &channelBatchReader{schema: s.schema, ch: s.ch, limiter: s.limiter}
	if _, err := client.PushPartition(ctx, s.jobID, s.stageID, s.partitionID, reader); err != nil {
		logger.Debug("sink: flight push failed for partition %d: %v", s.partitionID, err)
		drainRecords(s.ch)
	}
}

func drainRecords(ch <-chan arrow.Record) {
	for rec := range ch {
		rec.Release()
	}
}

func (s *FlightSink) Write(ctx context.Context, batch arrow.Record) error {
	batch.Retain()
	select {
	case s.ch <- batch:
		s.numBatches.Add(1)
		s.numRows.Add(uint64(batch.NumRows()))
		s.numBytes.Add(recordByteSize(batch))
		return nil
	case <-s.done:
		batch.Release()
		logger.Debug("sink: flight sink for partition %d already closed, dropping batch", s.partitionID)
		return nil
	case <-ctx.Done():
		batch.Release()
		return ctx.Err()
	}
}

func (s *FlightSink) Finish() error {
	close(s.ch)
	<-s.done
	return nil
}

func (s *FlightSink) Path() string { return "" }

func (s *FlightSink) NumBatches() uint64 { return s.numBatches.Load() }
func (s *FlightSink) NumRows() uint64    { return s.numRows.Load() }
func (s *FlightSink) NumBytes() uint64   { return s.numBytes.Load() }

// channelBatchReader adapts the sink's outbound channel to the
// remote.BatchReader a PushClient consumes.
type channelBatchReader struct {
	schema  *arrow.Schema
	ch      <-chan arrow.Record
	limiter *rate.Limiter
}

func (r *channelBatchReader) Schema() *arrow.Schema { return r.schema }

func (r *channelBatchReader) Next(ctx context.Context) (arrow.Record, bool, error) {
	select {
	case rec, ok := <-r.ch:
		if !ok {
			return nil, false, nil
		}
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				rec.Release()
				return nil, false, err
			}
		}
		return rec, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

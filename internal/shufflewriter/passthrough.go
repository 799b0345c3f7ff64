package shufflewriter

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"shufflewriter/internal/metrics"
	"shufflewriter/internal/partitioning"
	"shufflewriter/internal/planio"
	"shufflewriter/internal/sink"

	"github.com/apache/arrow-go/v18/arrow"
)

// executePassThrough is the no-partitioning branch: exactly one output
// partition, numbered inputPartition.
func (n *Node) executePassThrough(ctx context.Context, inputPartition int, stream planio.BatchStream, localSenders []chan arrow.Record) ([]ShuffleWritePartition, error) {
	switch n.Location.Kind {
	case partitioning.LocationLocalDir:
		return n.passThroughFile(ctx, inputPartition, stream)
	case partitioning.LocationExecutors:
		if len(localSenders) > 0 {
			// Pass-through with local senders only makes sense with a
			// single executor and a single sender; asserting that
			// rather than silently ignoring extras avoids routing a
			// batch to the wrong downstream consumer.
			if len(n.Location.Executors) != 1 || len(localSenders) != 1 {
				panic(fmt.Sprintf("shufflewriter: pass-through with local senders requires exactly one executor and one sender, got %d executors and %d senders", len(n.Location.Executors), len(localSenders)))
			}
			return n.passThroughLocal(ctx, inputPartition, stream, localSenders[0])
		}
		return n.passThroughFlight(ctx, inputPartition, stream)
	default:
		return nil, fmt.Errorf("shufflewriter: unknown output location kind %v", n.Location.Kind)
	}
}

func (n *Node) passThroughFile(ctx context.Context, inputPartition int, stream planio.BatchStream) ([]ShuffleWritePartition, error) {
	path := filepath.Join(n.Location.Dir, n.JobID, strconv.Itoa(n.StageID), strconv.Itoa(inputPartition), "data.arrow")
	s, err := sink.NewFileSink(n.mem, path, stream.Schema(), n.Codec)
	if err != nil {
		return nil, err
	}
	return n.finishSingleSink(ctx, inputPartition, stream, s)
}

func (n *Node) passThroughLocal(ctx context.Context, inputPartition int, stream planio.BatchStream, ch chan arrow.Record) ([]ShuffleWritePartition, error) {
	s := sink.NewLocalSink(ch, inputPartition)
	return n.finishSingleSink(ctx, inputPartition, stream, s)
}

func (n *Node) passThroughFlight(ctx context.Context, inputPartition int, stream planio.BatchStream) ([]ShuffleWritePartition, error) {
	exec := n.Location.Executors[0]
	s := sink.NewFlightSink(ctx, n.dialer, exec.Host, exec.Port, n.JobID, n.StageID, inputPartition, stream.Schema(), n.MaxPushBatchesPerSec)
	return n.finishSingleSink(ctx, inputPartition, stream, s)
}

func (n *Node) finishSingleSink(ctx context.Context, inputPartition int, stream planio.BatchStream, s sink.Sink) ([]ShuffleWritePartition, error) {
	if err := drainInto(ctx, stream, s); err != nil {
		return nil, err
	}
	if err := s.Finish(); err != nil {
		return nil, fmt.Errorf("shufflewriter: finish sink: %w", err)
	}
	n.reg.Add(metrics.Key{Job: n.JobID, Stage: n.StageID, Partition: inputPartition, Name: metrics.OutputRows}, int64(s.NumRows()))
	result := ShuffleWritePartition{
		PartitionID: uint64(inputPartition),
		Path:        s.Path(),
		NumBatches:  s.NumBatches(),
		NumRows:     s.NumRows(),
		NumBytes:    s.NumBytes(),
	}
	n.publish(ctx, result)
	return []ShuffleWritePartition{result}, nil
}

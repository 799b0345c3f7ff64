package shufflewriter

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"shufflewriter/internal/kernel"
	"shufflewriter/internal/metrics"
	"shufflewriter/internal/partitioning"
	"shufflewriter/internal/planio"
	"shufflewriter/internal/sink"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// executeHash hashes every batch's key columns, buckets rows by hash
// mod n, gathers each bucket via the take kernel, and writes it to
// that output partition's sink, creating sinks lazily.
func (n *Node) executeHash(ctx context.Context, inputPartition int, stream planio.BatchStream, part partitioning.Partitioning, localSenders []chan arrow.Record) ([]ShuffleWritePartition, error) {
	if len(localSenders) > 0 && len(localSenders) != part.N {
		return nil, &PlanError{Msg: fmt.Sprintf("hash partitioning into %d outputs requires %d local senders, got %d", part.N, part.N, len(localSenders))}
	}

	sinks := make([]sink.Sink, part.N)
	var hashBuf []uint64
	var indices [][]int64

	for {
		rec, err := stream.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("shufflewriter: read input batch: %w", err)
		}
		if rec == nil {
			break
		}
		err = n.writeHashBatch(ctx, rec, part, sinks, inputPartition, localSenders, &hashBuf, &indices)
		rec.Release()
		if err != nil {
			return nil, err
		}
	}

	var results []ShuffleWritePartition
	for p, s := range sinks {
		if s == nil {
			continue // empty partitions emit no sink and no record
		}
		if err := s.Finish(); err != nil {
			return nil, fmt.Errorf("shufflewriter: finish sink for output partition %d: %w", p, err)
		}
		result := ShuffleWritePartition{
			PartitionID: uint64(p),
			Path:        s.Path(),
			NumBatches:  s.NumBatches(),
			NumRows:     s.NumRows(),
			NumBytes:    s.NumBytes(),
		}
		n.publish(ctx, result)
		results = append(results, result)
	}
	return results, nil
}

func (n *Node) writeHashBatch(ctx context.Context, rec arrow.Record, part partitioning.Partitioning, sinks []sink.Sink, inputPartition int, localSenders []chan arrow.Record, hashBuf *[]uint64, indices *[][]int64) error {
	numRows := int(rec.NumRows())

	keyCols := make([]arrow.Array, len(part.Exprs))
	for i, expr := range part.Exprs {
		col, err := expr.Evaluate(rec)
		if err != nil {
			return fmt.Errorf("shufflewriter: evaluate key expression %q: %w", expr.Name(), err)
		}
		keyCols[i] = col
	}

	if cap(*hashBuf) < numRows {
		*hashBuf = make([]uint64, numRows)
	}
	buf := (*hashBuf)[:numRows]
	if err := kernel.CombineHashes(keyCols, kernel.HashSeed, buf); err != nil {
		return fmt.Errorf("shufflewriter: hash batch: %w", err)
	}

	if *indices == nil || len(*indices) != part.N {
		*indices = make([][]int64, part.N)
	}
	rows := *indices
	for p := range rows {
		rows[p] = rows[p][:0]
	}
	for i := 0; i < numRows; i++ {
		p := int(buf[i] % uint64(part.N))
		rows[p] = append(rows[p], int64(i))
	}

	for p := 0; p < part.N; p++ {
		if len(rows[p]) == 0 {
			continue
		}
		outRec, err := takeRecord(ctx, n.mem, rec, rows[p])
		if err != nil {
			return fmt.Errorf("shufflewriter: take rows for output partition %d: %w", p, err)
		}

		if sinks[p] == nil {
			s, err := n.newHashSink(ctx, p, inputPartition, rec.Schema(), localSenders)
			if err != nil {
				outRec.Release()
				return err
			}
			sinks[p] = s
		}

		writeErr := sinks[p].Write(ctx, outRec)
		numWritten := int64(outRec.NumRows())
		outRec.Release()
		if writeErr != nil {
			return fmt.Errorf("shufflewriter: write to output partition %d: %w", p, writeErr)
		}

		n.reg.Add(metrics.Key{Job: n.JobID, Stage: n.StageID, Partition: inputPartition, Name: metrics.OutputRows}, numWritten)
	}
	return nil
}

func (n *Node) newHashSink(ctx context.Context, outputPartition, inputPartition int, schema *arrow.Schema, localSenders []chan arrow.Record) (sink.Sink, error) {
	switch n.Location.Kind {
	case partitioning.LocationLocalDir:
		path := filepath.Join(n.Location.Dir, n.JobID, strconv.Itoa(n.StageID), strconv.Itoa(outputPartition), fmt.Sprintf("data-%d.arrow", inputPartition))
		return sink.NewFileSink(n.mem, path, schema, n.Codec)
	case partitioning.LocationExecutors:
		if len(localSenders) > 0 {
			return sink.NewLocalSink(localSenders[outputPartition], outputPartition), nil
		}
		exec := n.Location.Executors[outputPartition]
		return sink.NewFlightSink(ctx, n.dialer, exec.Host, exec.Port, n.JobID, n.StageID, outputPartition, schema, n.MaxPushBatchesPerSec), nil
	default:
		return nil, fmt.Errorf("shufflewriter: unknown output location kind %v", n.Location.Kind)
	}
}

// takeRecord gathers rows of rec at indices into a new record batch of
// the same schema, using the take kernel column by column.
func takeRecord(ctx context.Context, mem memory.Allocator, rec arrow.Record, indices []int64) (arrow.Record, error) {
	cols := make([]arrow.Array, rec.NumCols())
	for i := range cols {
		col, err := kernel.Take(ctx, mem, rec.Column(i), indices)
		if err != nil {
			for j := 0; j < i; j++ {
				cols[j].Release()
			}
			return nil, err
		}
		cols[i] = col
	}
	out := array.NewRecord(rec.Schema(), cols, int64(len(indices)))
	for _, c := range cols {
		c.Release()
	}
	return out, nil
}

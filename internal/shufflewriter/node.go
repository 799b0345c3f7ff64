package shufflewriter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"shufflewriter/internal/metrics"
	"shufflewriter/internal/partitioning"
	"shufflewriter/internal/placement"
	"shufflewriter/internal/planio"
	"shufflewriter/internal/remote"
	"shufflewriter/internal/sink"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// PartitionPublisher records where a finished output partition landed,
// for out-of-band discovery by a downstream stage. Best-effort: a
// publisher must swallow its own failures rather than fail the write.
// *registry.Registry satisfies this without shufflewriter importing
// registry, which would cycle back (registry imports shufflewriter for
// ShuffleWritePartition).
type PartitionPublisher interface {
	Publish(ctx context.Context, jobID, stageID string, part ShuffleWritePartition)
}

// Node is the shuffle-writer execution-plan node. It is immutable
// after construction; WithNewChildren is the one way to derive a new
// node that shares everything but the child plan.
type Node struct {
	JobID        string
	StageID      int
	Child        planio.RecordBatchSource
	Location     partitioning.OutputLocation
	Partitioning *partitioning.Partitioning // nil means pass-through
	Codec        sink.Codec

	// MaxPushBatchesPerSec throttles Flight-sink pushes. 0 means
	// unlimited.
	MaxPushBatchesPerSec int

	mem       memory.Allocator
	dialer    remote.Dialer
	reg       *metrics.Registry
	publisher PartitionPublisher
}

// New is the generic constructor; the two named ones below cover the
// common cases. publisher may be nil, which disables partition-location
// publishing entirely.
func New(jobID string, stageID int, child planio.RecordBatchSource, location partitioning.OutputLocation, part *partitioning.Partitioning, mem memory.Allocator, dialer remote.Dialer, codec sink.Codec, publisher PartitionPublisher) (*Node, error) {
	if err := validateLocation(location, part); err != nil {
		return nil, err
	}
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	return &Node{
		JobID:        jobID,
		StageID:      stageID,
		Child:        child,
		Location:     location,
		Partitioning: part,
		Codec:        codec,
		mem:          mem,
		dialer:       dialer,
		reg:          metrics.NewRegistry(),
		publisher:    publisher,
	}, nil
}

// NewPullShuffle builds a node whose sinks are IPC files under workDir
// - the shape used when a downstream stage pulls its input from disk.
func NewPullShuffle(jobID string, stageID int, child planio.RecordBatchSource, workDir string, part *partitioning.Partitioning) (*Node, error) {
	return New(jobID, stageID, child, partitioning.NewLocalDir(workDir), part, nil, nil, sink.CodecNone, nil)
}

// NewPushShuffle builds a node that pushes each output partition to a
// remote executor via dialer - the shape used when the engine actively
// ships shuffle output to where the next stage will run. candidates may
// outnumber the partitioning's fan-out (or the single pass-through
// output); when it does, placement.AssignExecutors picks which
// candidates actually receive output, rather than the constructor
// silently depending on callers pre-trimming the pool.
func NewPushShuffle(jobID string, stageID int, child planio.RecordBatchSource, candidates []partitioning.ExecutorMeta, part *partitioning.Partitioning, dialer remote.Dialer) (*Node, error) {
	n := 1
	if part != nil {
		n = part.N
	}
	executors := candidates
	if len(candidates) > n {
		assigned, err := placement.AssignExecutors(jobID, candidates, n)
		if err != nil {
			return nil, fmt.Errorf("shufflewriter: assign push-shuffle executors: %w", err)
		}
		executors = assigned
	}
	return New(jobID, stageID, child, partitioning.NewExecutors(executors), part, nil, dialer, sink.CodecNone, nil)
}

// validateLocation enforces the OutputLocation / Partitioning
// compatibility rule: the number of executors must match the
// partitioning fan-out.
func validateLocation(location partitioning.OutputLocation, part *partitioning.Partitioning) error {
	if location.Kind != partitioning.LocationExecutors {
		return nil
	}
	if part == nil {
		if len(location.Executors) != 1 {
			return &PlanError{Msg: fmt.Sprintf("pass-through output requires exactly one executor, got %d", len(location.Executors))}
		}
		return nil
	}
	if len(location.Executors) != part.N {
		return &PlanError{Msg: fmt.Sprintf("hash partitioning into %d outputs requires %d executors, got %d", part.N, part.N, len(location.Executors))}
	}
	return nil
}

// Schema is the node's output-plan schema: identical to the child's,
// since the shuffle writer repartitions rows, not columns.
func (n *Node) Schema() *arrow.Schema { return n.Child.Schema() }

// OutputPartitions defers to the child - the engine, not this node,
// is what discovers the new post-shuffle partitioning out-of-band.
func (n *Node) OutputPartitions() int { return n.Child.OutputPartitions() }

// Metrics returns the node's metrics registry.
func (n *Node) Metrics() *metrics.Registry { return n.reg }

// Display renders the node's plan-explain line.
func (n *Node) Display() string {
	if n.Partitioning == nil {
		return "ShuffleWriterExec: None"
	}
	return fmt.Sprintf("ShuffleWriterExec: %s", n.Partitioning.String())
}

// WithNewChildren returns a new node identical to n except that its
// child plan is replaced - the one mutation path an otherwise
// immutable node allows.
func (n *Node) WithNewChildren(child planio.RecordBatchSource) (*Node, error) {
	next, err := New(n.JobID, n.StageID, child, n.Location, n.Partitioning, n.mem, n.dialer, n.Codec, n.publisher)
	if err != nil {
		return nil, err
	}
	next.MaxPushBatchesPerSec = n.MaxPushBatchesPerSec
	return next, nil
}

// Execute runs the node against one input partition of the child plan
// and returns one ShuffleWritePartition per output partition: exactly
// one for pass-through (even when the input is empty), and one per
// non-empty output partition for hash partitioning. localSenders, when
// non-empty and the location is Executors, routes pass-through or
// hash-partitioned output to in-process channels instead of a remote
// push (the Local sink case); a LocalDir location always writes files.
func (n *Node) Execute(ctx context.Context, inputPartition int, localSenders []chan arrow.Record) ([]ShuffleWritePartition, error) {
	start := time.Now()
	stream, err := n.Child.Execute(ctx, inputPartition)
	if err != nil {
		return nil, fmt.Errorf("shufflewriter: execute child partition %d: %w", inputPartition, err)
	}

	var results []ShuffleWritePartition
	if n.Partitioning == nil {
		results, err = n.executePassThrough(ctx, inputPartition, stream, localSenders)
	} else {
		results, err = n.executeHash(ctx, inputPartition, stream, *n.Partitioning, localSenders)
	}
	if err != nil {
		return nil, err
	}

	var totalRows int64
	for _, r := range results {
		totalRows += int64(r.NumRows)
	}
	n.reg.Add(metrics.Key{Job: n.JobID, Stage: n.StageID, Partition: inputPartition, Name: metrics.InputRows}, totalRows)
	n.reg.Add(metrics.Key{Job: n.JobID, Stage: n.StageID, Partition: inputPartition, Name: metrics.WriteTimeNanos}, time.Since(start).Nanoseconds())

	return results, nil
}

// publish records part's location with n.publisher, if one was
// configured. A no-op otherwise - publishing is an optional, best-effort
// side channel, not something every node needs wired.
func (n *Node) publish(ctx context.Context, part ShuffleWritePartition) {
	if n.publisher == nil {
		return
	}
	n.publisher.Publish(ctx, n.JobID, strconv.Itoa(n.StageID), part)
}

// ResultSchema is the schema of the batch ResultBatch builds: one row
// per output partition, with a nested struct column carrying that
// partition's final counters.
func ResultSchema() *arrow.Schema {
	stats := arrow.StructOf(
		arrow.Field{Name: "num_rows", Type: arrow.PrimitiveTypes.Uint64},
		arrow.Field{Name: "num_batches", Type: arrow.PrimitiveTypes.Uint64},
		arrow.Field{Name: "num_bytes", Type: arrow.PrimitiveTypes.Uint64},
	)
	return arrow.NewSchema([]arrow.Field{
		{Name: "partition", Type: arrow.PrimitiveTypes.Uint32},
		{Name: "path", Type: arrow.BinaryTypes.String},
		{Name: "stats", Type: stats},
	}, nil)
}

// ResultBatch wraps results (as returned by Execute) into the
// one-row-per-output-partition metadata record, matching ResultSchema.
// The caller owns the returned record and must Release it.
func (n *Node) ResultBatch(results []ShuffleWritePartition) arrow.Record {
	schema := ResultSchema()
	statsType := schema.Field(2).Type.(*arrow.StructType)

	partBuilder := array.NewUint32Builder(n.mem)
	defer partBuilder.Release()
	pathBuilder := array.NewStringBuilder(n.mem)
	defer pathBuilder.Release()
	statsBuilder := array.NewStructBuilder(n.mem, statsType)
	defer statsBuilder.Release()

	numRowsBuilder := statsBuilder.FieldBuilder(0).(*array.Uint64Builder)
	numBatchesBuilder := statsBuilder.FieldBuilder(1).(*array.Uint64Builder)
	numBytesBuilder := statsBuilder.FieldBuilder(2).(*array.Uint64Builder)

	for _, r := range results {
		partBuilder.Append(uint32(r.PartitionID))
		pathBuilder.Append(r.Path)
		statsBuilder.Append(true)
		numRowsBuilder.Append(r.NumRows)
		numBatchesBuilder.Append(r.NumBatches)
		numBytesBuilder.Append(r.NumBytes)
	}

	partArr := partBuilder.NewArray()
	defer partArr.Release()
	pathArr := pathBuilder.NewArray()
	defer pathArr.Release()
	statsArr := statsBuilder.NewArray()
	defer statsArr.Release()

	return array.NewRecord(schema, []arrow.Array{partArr, pathArr, statsArr}, int64(len(results)))
}

// drainInto reads every remaining batch of stream and writes it to s,
// releasing each batch once written.
func drainInto(ctx context.Context, stream planio.BatchStream, s sink.Sink) error {
	for {
		rec, err := stream.Next(ctx)
		if err != nil {
			return fmt.Errorf("shufflewriter: read input batch: %w", err)
		}
		if rec == nil {
			return nil
		}
		err = s.Write(ctx, rec)
		rec.Release()
		if err != nil {
			return fmt.Errorf("shufflewriter: write batch: %w", err)
		}
	}
}

package shufflewriter

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"shufflewriter/internal/partitioning"
	"shufflewriter/internal/planio"
	"shufflewriter/internal/sink"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

func testSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "a", Type: arrow.PrimitiveTypes.Int64},
		{Name: "b", Type: arrow.BinaryTypes.String},
	}, nil)
}

// fourBatches builds a fixture of four batches, every batch
// {a:[1,2], b:["hello","world"]}.
func fourBatches(t *testing.T, mem memory.Allocator) []arrow.Record {
	t.Helper()
	schema := testSchema()
	batches := make([]arrow.Record, 4)
	for i := range batches {
		ab := array.NewInt64Builder(mem)
		bb := array.NewStringBuilder(mem)
		ab.AppendValues([]int64{1, 2}, nil)
		bb.AppendValues([]string{"hello", "world"}, nil)
		aArr := ab.NewArray()
		bArr := bb.NewArray()
		batches[i] = array.NewRecord(schema, []arrow.Array{aArr, bArr}, 2)
		aArr.Release()
		bArr.Release()
		ab.Release()
		bb.Release()
	}
	return batches
}

func readIPCFileRows(t *testing.T, path string) int64 {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	r, err := ipc.NewFileReader(f)
	if err != nil {
		t.Fatalf("ipc.NewFileReader(%s): %v", path, err)
	}
	defer r.Close()

	var total int64
	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		if err != nil {
			t.Fatalf("Record(%d): %v", i, err)
		}
		total += rec.NumRows()
	}
	return total
}

func TestPassThroughFileSink(t *testing.T) {
	mem := memory.NewGoAllocator()
	batches := fourBatches(t, mem)
	defer func() {
		for _, b := range batches {
			b.Release()
		}
	}()

	src := planio.NewMemorySource(testSchema(), [][]arrow.Record{batches})
	workDir := t.TempDir()

	node, err := NewPullShuffle("jobOne", 1, src, workDir, nil)
	if err != nil {
		t.Fatalf("NewPullShuffle: %v", err)
	}

	results, err := node.Execute(context.Background(), 0, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if r.PartitionID != 0 {
		t.Fatalf("partition = %d, want 0", r.PartitionID)
	}
	if r.NumRows != 8 {
		t.Fatalf("num_rows = %d, want 8", r.NumRows)
	}

	wantPath := filepath.Join(workDir, "jobOne", "1", "0", "data.arrow")
	if r.Path != wantPath {
		t.Fatalf("path = %s, want %s", r.Path, wantPath)
	}
	if rows := readIPCFileRows(t, wantPath); rows != 8 {
		t.Fatalf("file contains %d rows, want 8", rows)
	}
}

func TestHashRepartitionToTwoFileSinks(t *testing.T) {
	mem := memory.NewGoAllocator()
	batches := fourBatches(t, mem)
	defer func() {
		for _, b := range batches {
			b.Release()
		}
	}()

	src := planio.NewMemorySource(testSchema(), [][]arrow.Record{batches})
	workDir := t.TempDir()

	part := partitioning.NewHash([]partitioning.KeyExpr{partitioning.Column{ColumnName: "a"}}, 2)
	node, err := NewPullShuffle("jobOne", 1, src, workDir, &part)
	if err != nil {
		t.Fatalf("NewPullShuffle: %v", err)
	}

	results, err := node.Execute(context.Background(), 0, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d output partitions, want 2", len(results))
	}

	var totalRows uint64
	for _, r := range results {
		wantPath := filepath.Join(workDir, "jobOne", "1", strconv.Itoa(int(r.PartitionID)), "data-0.arrow")
		if r.Path != wantPath {
			t.Fatalf("partition %d path = %s, want %s", r.PartitionID, r.Path, wantPath)
		}
		if rows := readIPCFileRows(t, wantPath); uint64(rows) != r.NumRows {
			t.Fatalf("partition %d: file has %d rows, metadata says %d", r.PartitionID, rows, r.NumRows)
		}
		totalRows += r.NumRows
	}
	if totalRows != 8 {
		t.Fatalf("total rows across output partitions = %d, want 8", totalRows)
	}
}

func TestHashRepartitionIsDeterministic(t *testing.T) {
	mem := memory.NewGoAllocator()

	run := func() []ShuffleWritePartition {
		batches := fourBatches(t, mem)
		defer func() {
			for _, b := range batches {
				b.Release()
			}
		}()
		src := planio.NewMemorySource(testSchema(), [][]arrow.Record{batches})
		part := partitioning.NewHash([]partitioning.KeyExpr{partitioning.Column{ColumnName: "a"}}, 2)
		node, err := NewPullShuffle("jobOne", 1, src, t.TempDir(), &part)
		if err != nil {
			t.Fatalf("NewPullShuffle: %v", err)
		}
		results, err := node.Execute(context.Background(), 0, nil)
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		return results
	}

	first := run()
	second := run()
	if len(first) != len(second) {
		t.Fatalf("non-deterministic partition count: %d vs %d", len(first), len(second))
	}
	rows := map[uint64]uint64{}
	for _, r := range first {
		rows[r.PartitionID] = r.NumRows
	}
	for _, r := range second {
		if rows[r.PartitionID] != r.NumRows {
			t.Fatalf("partition %d row count changed across runs: %d vs %d", r.PartitionID, rows[r.PartitionID], r.NumRows)
		}
	}
}

func TestEmptyInputYieldsNoPartitions(t *testing.T) {
	src := planio.NewMemorySource(testSchema(), [][]arrow.Record{{}})
	part := partitioning.NewHash([]partitioning.KeyExpr{partitioning.Column{ColumnName: "a"}}, 4)
	node, err := NewPullShuffle("jobOne", 1, src, t.TempDir(), &part)
	if err != nil {
		t.Fatalf("NewPullShuffle: %v", err)
	}
	results, err := node.Execute(context.Background(), 0, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("got %d results for empty input, want 0", len(results))
	}
}

func TestResultBatchSchemaAndValues(t *testing.T) {
	mem := memory.NewGoAllocator()
	batches := fourBatches(t, mem)
	defer func() {
		for _, b := range batches {
			b.Release()
		}
	}()

	src := planio.NewMemorySource(testSchema(), [][]arrow.Record{batches})
	part := partitioning.NewHash([]partitioning.KeyExpr{partitioning.Column{ColumnName: "a"}}, 2)
	node, err := NewPullShuffle("jobOne", 1, src, t.TempDir(), &part)
	if err != nil {
		t.Fatalf("NewPullShuffle: %v", err)
	}

	results, err := node.Execute(context.Background(), 0, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	rec := node.ResultBatch(results)
	defer rec.Release()

	if !rec.Schema().Equal(ResultSchema()) {
		t.Fatalf("result batch schema = %v, want %v", rec.Schema(), ResultSchema())
	}
	for i, f := range rec.Schema().Fields() {
		if f.Nullable {
			t.Fatalf("field %d (%s) is nullable, want NOT NULL", i, f.Name)
		}
	}
	if rec.NumRows() != int64(len(results)) {
		t.Fatalf("result batch has %d rows, want %d", rec.NumRows(), len(results))
	}

	partCol := rec.Column(0).(*array.Uint32)
	pathCol := rec.Column(1).(*array.String)
	statsCol := rec.Column(2).(*array.Struct)
	numRowsCol := statsCol.Field(0).(*array.Uint64)

	seen := map[uint32]ShuffleWritePartition{}
	for _, r := range results {
		seen[uint32(r.PartitionID)] = r
	}
	for i := 0; i < int(rec.NumRows()); i++ {
		want, ok := seen[partCol.Value(i)]
		if !ok {
			t.Fatalf("row %d: unexpected partition %d in result batch", i, partCol.Value(i))
		}
		if pathCol.Value(i) != want.Path {
			t.Fatalf("row %d: path = %q, want %q", i, pathCol.Value(i), want.Path)
		}
		if numRowsCol.Value(i) != want.NumRows {
			t.Fatalf("row %d: num_rows = %d, want %d", i, numRowsCol.Value(i), want.NumRows)
		}
	}
}

// fakePublisher records every partition published, for asserting that
// the hash and pass-through paths call it once per finished sink.
type fakePublisher struct {
	published []ShuffleWritePartition
}

func (p *fakePublisher) Publish(_ context.Context, _, _ string, part ShuffleWritePartition) {
	p.published = append(p.published, part)
}

func TestExecutePublishesEachFinishedPartition(t *testing.T) {
	mem := memory.NewGoAllocator()
	batches := fourBatches(t, mem)
	defer func() {
		for _, b := range batches {
			b.Release()
		}
	}()

	src := planio.NewMemorySource(testSchema(), [][]arrow.Record{batches})
	part := partitioning.NewHash([]partitioning.KeyExpr{partitioning.Column{ColumnName: "a"}}, 2)
	pub := &fakePublisher{}

	node, err := New("jobOne", 1, src, partitioning.NewLocalDir(t.TempDir()), &part, nil, nil, sink.CodecNone, pub)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	results, err := node.Execute(context.Background(), 0, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(pub.published) != len(results) {
		t.Fatalf("publisher saw %d partitions, want %d", len(pub.published), len(results))
	}
}

func TestNewPushShuffleAssignsFromLargerCandidatePool(t *testing.T) {
	src := planio.NewMemorySource(testSchema(), [][]arrow.Record{{}})
	candidates := []partitioning.ExecutorMeta{
		{ID: "e0", Host: "10.0.0.1", Port: 7070},
		{ID: "e1", Host: "10.0.0.2", Port: 7070},
		{ID: "e2", Host: "10.0.0.3", Port: 7070},
	}
	part := partitioning.NewHash([]partitioning.KeyExpr{partitioning.Column{ColumnName: "a"}}, 2)

	node, err := NewPushShuffle("jobOne", 1, src, candidates, &part, nil)
	if err != nil {
		t.Fatalf("NewPushShuffle: %v", err)
	}
	if len(node.Location.Executors) != 2 {
		t.Fatalf("got %d assigned executors, want 2", len(node.Location.Executors))
	}

	again, err := NewPushShuffle("jobOne", 1, src, candidates, &part, nil)
	if err != nil {
		t.Fatalf("NewPushShuffle: %v", err)
	}
	for i := range node.Location.Executors {
		if node.Location.Executors[i].ID != again.Location.Executors[i].ID {
			t.Fatalf("placement %d: got %s then %s, want the same executor both times", i, node.Location.Executors[i].ID, again.Location.Executors[i].ID)
		}
	}
}

func TestPassThroughAssertsSingleExecutorAndSender(t *testing.T) {
	src := planio.NewMemorySource(testSchema(), [][]arrow.Record{{}})
	execs := []partitioning.ExecutorMeta{{ID: "e1", Host: "localhost", Port: 1}}
	node, err := New("jobOne", 1, src, partitioning.NewExecutors(execs), nil, nil, nil, 0, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on sender/executor count mismatch")
		}
	}()
	_, _ = node.Execute(context.Background(), 0, []chan arrow.Record{make(chan arrow.Record, 1), make(chan arrow.Record, 1)})
}

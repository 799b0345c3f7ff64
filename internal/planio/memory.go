package planio

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

// MemorySource is an in-memory RecordBatchSource, the Go equivalent of
// the Rust test suite's MemoryExec: a fixed set of batches per
// partition, used to drive shuffle-writer tests without a real
// upstream operator.
type MemorySource struct {
	schema     *arrow.Schema
	partitions [][]arrow.Record
}

// NewMemorySource builds a source with one partition per entry of
// partitions.
func NewMemorySource(schema *arrow.Schema, partitions [][]arrow.Record) *MemorySource {
	return &MemorySource{schema: schema, partitions: partitions}
}

func (m *MemorySource) Schema() *arrow.Schema { return m.schema }

func (m *MemorySource) OutputPartitions() int { return len(m.partitions) }

func (m *MemorySource) Execute(_ context.Context, partition int) (BatchStream, error) {
	if partition < 0 || partition >= len(m.partitions) {
		return nil, fmt.Errorf("planio: partition %d out of range [0,%d)", partition, len(m.partitions))
	}
	return &memoryStream{schema: m.schema, batches: m.partitions[partition]}, nil
}

type memoryStream struct {
	schema  *arrow.Schema
	batches []arrow.Record
	pos     int
}

func (s *memoryStream) Schema() *arrow.Schema { return s.schema }

func (s *memoryStream) Next(_ context.Context) (arrow.Record, error) {
	if s.pos >= len(s.batches) {
		return nil, nil
	}
	rec := s.batches[s.pos]
	s.pos++
	return rec, nil
}

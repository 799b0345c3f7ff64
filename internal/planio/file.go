package planio

import (
	"context"
	"fmt"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
)

// FileSource is a RecordBatchSource backed by one Arrow IPC file per
// input partition - the CLI's stand-in for a real upstream physical
// plan, which is out of scope for this repository.
type FileSource struct {
	schema *arrow.Schema
	paths  []string
}

// NewFileSource opens the first path just to read its schema, then
// defers opening the rest until Execute is called for that partition.
func NewFileSource(paths []string) (*FileSource, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("planio: file source requires at least one input file")
	}
	f, err := os.Open(paths[0])
	if err != nil {
		return nil, fmt.Errorf("planio: open %s: %w", paths[0], err)
	}
	defer f.Close()
	r, err := ipc.NewFileReader(f)
	if err != nil {
		return nil, fmt.Errorf("planio: read schema from %s: %w", paths[0], err)
	}
	defer r.Close()
	return &FileSource{schema: r.Schema(), paths: paths}, nil
}

func (s *FileSource) Schema() *arrow.Schema { return s.schema }

func (s *FileSource) OutputPartitions() int { return len(s.paths) }

func (s *FileSource) Execute(_ context.Context, partition int) (BatchStream, error) {
	if partition < 0 || partition >= len(s.paths) {
		return nil, fmt.Errorf("planio: partition %d out of range [0,%d)", partition, len(s.paths))
	}
	path := s.paths[partition]
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("planio: open %s: %w", path, err)
	}
	r, err := ipc.NewFileReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("planio: read %s: %w", path, err)
	}
	return &fileStream{schema: s.schema, file: f, reader: r}, nil
}

type fileStream struct {
	schema *arrow.Schema
	file   *os.File
	reader *ipc.FileReader
	pos    int
}

func (s *fileStream) Schema() *arrow.Schema { return s.schema }

func (s *fileStream) Next(_ context.Context) (arrow.Record, error) {
	if s.pos >= s.reader.NumRecords() {
		s.reader.Close()
		s.file.Close()
		return nil, nil
	}
	rec, err := s.reader.Record(s.pos)
	if err != nil {
		s.reader.Close()
		s.file.Close()
		return nil, fmt.Errorf("planio: read record %d: %w", s.pos, err)
	}
	s.pos++
	rec.Retain()
	return rec, nil
}

package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// FileSink writes one Arrow IPC file per output partition, at the
// fixed path <work_dir>/<job_id>/<stage_id>/<output_partition>/data[-<input_partition>].arrow
type FileSink struct {
	mu      sync.Mutex
	path    string
	wrapped io.WriteCloser
	writer  *ipc.FileWriter

	numBatches uint64
	numRows    uint64
	numBytes   uint64
}

// NewFileSink creates the output file (and its parent directories) at
// path and opens an Arrow IPC file writer against it, compressing the
// whole file stream with codec if requested.
func NewFileSink(mem memory.Allocator, path string, schema *arrow.Schema, codec Codec) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("sink: create output dir for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("sink: create file %s: %w", path, err)
	}
	wrapped, err := wrapWriter(f, codec)
	if err != nil {
		f.Close()
		return nil, err
	}
	w, err := ipc.NewFileWriter(wrapped, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		wrapped.Close()
		return nil, fmt.Errorf("sink: create ipc file writer for %s: %w", path, err)
	}
	return &FileSink{path: path, wrapped: wrapped, writer: w}, nil
}

func (s *FileSink) Write(ctx context.Context, batch arrow.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writer.Write(batch); err != nil {
		return fmt.Errorf("sink: write batch to %s: %w", s.path, err)
	}
	s.numBatches++
	s.numRows += uint64(batch.NumRows())
	s.numBytes += recordByteSize(batch)
	return nil
}

func (s *FileSink) Finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("sink: close ipc writer for %s: %w", s.path, err)
	}
	if err := s.wrapped.Close(); err != nil {
		return fmt.Errorf("sink: close output file %s: %w", s.path, err)
	}
	return nil
}

func (s *FileSink) Path() string { return s.path }

func (s *FileSink) NumBatches() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.numBatches
}

func (s *FileSink) NumRows() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.numRows
}

func (s *FileSink) NumBytes() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.numBytes
}

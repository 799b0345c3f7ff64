package sink

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec selects the compression a file sink applies to its whole
// output stream by wrapping the output file's io.WriteCloser before
// Arrow's IPC writer ever sees it; this is not Arrow IPC body
// compression, so a compressed file must be decompressed before an
// Arrow reader can open it.
type Codec int

const (
	CodecNone Codec = iota
	CodecLZ4
	CodecZstd
)

func (c Codec) String() string {
	switch c {
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	default:
		return "none"
	}
}

// wrapWriter layers the chosen compression codec over w. For CodecNone
// it returns w unchanged, so callers can always treat the result as the
// one thing to Close when finishing the sink.
func wrapWriter(w io.WriteCloser, codec Codec) (io.WriteCloser, error) {
	switch codec {
	case CodecNone:
		return w, nil
	case CodecLZ4:
		return &lz4WriteCloser{enc: lz4.NewWriter(w), under: w}, nil
	case CodecZstd:
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("sink: create zstd writer: %w", err)
		}
		return &zstdWriteCloser{enc: enc, under: w}, nil
	default:
		return nil, fmt.Errorf("sink: unknown codec %d", codec)
	}
}

type lz4WriteCloser struct {
	enc   *lz4.Writer
	under io.WriteCloser
}

func (w *lz4WriteCloser) Write(p []byte) (int, error) { return w.enc.Write(p) }

func (w *lz4WriteCloser) Close() error {
	if err := w.enc.Close(); err != nil {
		w.under.Close()
		return fmt.Errorf("sink: close lz4 writer: %w", err)
	}
	return w.under.Close()
}

type zstdWriteCloser struct {
	enc   *zstd.Encoder
	under io.WriteCloser
}

func (w *zstdWriteCloser) Write(p []byte) (int, error) { return w.enc.Write(p) }

func (w *zstdWriteCloser) Close() error {
	if err := w.enc.Close(); err != nil {
		w.under.Close()
		return fmt.Errorf("sink: close zstd writer: %w", err)
	}
	return w.under.Close()
}

// Package flightclient is a minimal, concrete implementation of the
// remote.PushClient capability contract: it pushes a record batch
// stream to a remote executor over a plain length-prefixed TCP
// framing (Dial, bufio buffering, a mutex-guarded connection, a fixed
// default timeout) rather than adopting a generic RPC framework; the
// wire protocol beyond the framing itself is deliberately minimal.
package flightclient

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"shufflewriter/internal/remote"

	"github.com/apache/arrow-go/v18/arrow/ipc"
)

const defaultTimeout = 5 * time.Second

// Dialer opens flightclient connections. The zero value uses
// defaultTimeout.
type Dialer struct {
	Timeout time.Duration
}

func (d Dialer) Dial(ctx context.Context, host string, port uint16) (remote.PushClient, error) {
	timeout := d.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	addr := fmt.Sprintf("%s:%d", host, port)
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("flightclient: dial %s failed: %w", addr, err)
	}
	return &Client{
		conn:    conn,
		w:       bufio.NewWriter(conn),
		r:       bufio.NewReader(conn),
		timeout: timeout,
	}, nil
}

// Client is one push connection to a remote executor.
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	w       *bufio.Writer
	r       *bufio.Reader
	timeout time.Duration
}

type pushHeader struct {
	JobID       string `json:"jobId"`
	StageID     int    `json:"stageId"`
	PartitionID int    `json:"partitionId"`
}

// PushPartition streams every batch of stream to the remote executor,
// then waits for it to report final stats or an error. The wire
// layout is: a length-prefixed JSON header, an Arrow IPC stream
// (schema + batches + end-of-stream marker), then a length-prefixed
// JSON response.
func (c *Client) PushPartition(ctx context.Context, jobID string, stageID, partitionID int, stream remote.BatchReader) (remote.Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
	}

	hdr, err := json.Marshal(pushHeader{JobID: jobID, StageID: stageID, PartitionID: partitionID})
	if err != nil {
		return remote.Stats{}, fmt.Errorf("flightclient: encode header: %w", err)
	}
	if err := writeFrame(c.w, hdr); err != nil {
		return remote.Stats{}, fmt.Errorf("flightclient: write header: %w", err)
	}

	ipcWriter, err := ipc.NewWriter(c.w, ipc.WithSchema(stream.Schema()))
	if err != nil {
		return remote.Stats{}, fmt.Errorf("flightclient: create ipc writer: %w", err)
	}

	for {
		rec, ok, err := stream.Next(ctx)
		if err != nil {
			return remote.Stats{}, fmt.Errorf("flightclient: read batch: %w", err)
		}
		if !ok {
			break
		}
		if err := ipcWriter.Write(rec); err != nil {
			return remote.Stats{}, fmt.Errorf("flightclient: write batch: %w", err)
		}
	}
	if err := ipcWriter.Close(); err != nil {
		return remote.Stats{}, fmt.Errorf("flightclient: close ipc writer: %w", err)
	}
	if err := c.w.Flush(); err != nil {
		return remote.Stats{}, fmt.Errorf("flightclient: flush: %w", err)
	}

	respBytes, err := readFrame(c.r)
	if err != nil {
		return remote.Stats{}, fmt.Errorf("flightclient: read response: %w", err)
	}
	var resp struct {
		Stats remote.Stats `json:"stats"`
		Error string       `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return remote.Stats{}, fmt.Errorf("flightclient: decode response: %w", err)
	}
	if resp.Error != "" {
		return remote.Stats{}, fmt.Errorf("flightclient: remote push failed: %s", resp.Error)
	}
	return resp.Stats, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func writeFrame(w *bufio.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r *bufio.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

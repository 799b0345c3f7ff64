// Package registry publishes where each shuffle output partition
// landed so a shuffle reader running on another executor can discover
// it out-of-band. Backed by Redis (github.com/redis/go-redis/v9).
package registry

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"shufflewriter/internal/logger"
	"shufflewriter/internal/shufflewriter"

	"github.com/redis/go-redis/v9"
)

// Registry publishes and looks up ShuffleWritePartition locations.
// Publishing is best-effort: a Redis outage must never fail or block
// the shuffle write itself, only the out-of-band discovery of it.
type Registry struct {
	client *redis.Client
}

// New wraps an already-configured go-redis client.
func New(client *redis.Client) *Registry {
	return &Registry{client: client}
}

func partitionKey(jobID, stageID string, partitionID uint64) string {
	return fmt.Sprintf("shuffle:%s:%s:%d", jobID, stageID, partitionID)
}

func partitionSetKey(jobID, stageID string) string {
	return fmt.Sprintf("shuffle:%s:%s:partitions", jobID, stageID)
}

// Publish records one output partition's location and stats. Failures
// are logged and swallowed rather than returned, the same best-effort
// semantics the Flight and Local sinks use for their own sends.
func (r *Registry) Publish(ctx context.Context, jobID, stageID string, part shufflewriter.ShuffleWritePartition) {
	key := partitionKey(jobID, stageID, part.PartitionID)
	value := fmt.Sprintf("%s|%d|%d|%d", part.Path, part.NumBatches, part.NumRows, part.NumBytes)

	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		logger.Debug("registry: publish partition %d failed: %v", part.PartitionID, err)
		return
	}
	if err := r.client.SAdd(ctx, partitionSetKey(jobID, stageID), part.PartitionID).Err(); err != nil {
		logger.Debug("registry: record partition %d in set failed: %v", part.PartitionID, err)
	}
}

// ListPartitions returns every output partition ID published so far
// for (jobID, stageID).
func (r *Registry) ListPartitions(ctx context.Context, jobID, stageID string) ([]uint64, error) {
	raw, err := r.client.SMembers(ctx, partitionSetKey(jobID, stageID)).Result()
	if err != nil {
		return nil, fmt.Errorf("registry: list partitions for %s/%s: %w", jobID, stageID, err)
	}
	ids := make([]uint64, 0, len(raw))
	for _, s := range raw {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Location is what Lookup returns: the sink path and final counters
// published for one partition.
type Location struct {
	Path       string
	NumBatches uint64
	NumRows    uint64
	NumBytes   uint64
}

// Lookup returns the published location of one output partition, or
// ok=false if nothing has been published for it yet.
func (r *Registry) Lookup(ctx context.Context, jobID, stageID string, partitionID uint64) (Location, bool, error) {
	val, err := r.client.Get(ctx, partitionKey(jobID, stageID, partitionID)).Result()
	if err == redis.Nil {
		return Location{}, false, nil
	}
	if err != nil {
		return Location{}, false, fmt.Errorf("registry: lookup partition %d: %w", partitionID, err)
	}
	fields := strings.SplitN(val, "|", 4)
	if len(fields) != 4 {
		return Location{}, false, fmt.Errorf("registry: malformed record for partition %d", partitionID)
	}
	numBatches, err1 := strconv.ParseUint(fields[1], 10, 64)
	numRows, err2 := strconv.ParseUint(fields[2], 10, 64)
	numBytes, err3 := strconv.ParseUint(fields[3], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return Location{}, false, fmt.Errorf("registry: malformed counters for partition %d", partitionID)
	}
	return Location{Path: fields[0], NumBatches: numBatches, NumRows: numRows, NumBytes: numBytes}, true, nil
}

package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"shufflewriter/internal/registry"
	"shufflewriter/internal/shufflewriter"

	"github.com/redis/go-redis/v9"
)

// TestPartitionLocationRegistry exercises Publish/ListPartitions/Lookup
// against a real Redis instance. Skipped when none is reachable.
func TestPartitionLocationRegistry(t *testing.T) {
	addr := os.Getenv("SHUFFLEWRITER_TEST_REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping: no Redis reachable at %s: %v", addr, err)
	}
	defer client.Close()

	reg := registry.New(client)
	jobID := "jobOne"
	stageID := "1"

	part := shufflewriter.ShuffleWritePartition{
		PartitionID: 0,
		Path:        "/tmp/jobOne/1/0/data.arrow",
		NumBatches:  2,
		NumRows:     8,
		NumBytes:    256,
	}
	reg.Publish(ctx, jobID, stageID, part)

	ids, err := reg.ListPartitions(ctx, jobID, stageID)
	if err != nil {
		t.Fatalf("ListPartitions: %v", err)
	}
	found := false
	for _, id := range ids {
		if id == part.PartitionID {
			found = true
		}
	}
	if !found {
		t.Fatalf("partition %d not found in %v", part.PartitionID, ids)
	}

	loc, ok, err := reg.Lookup(ctx, jobID, stageID, part.PartitionID)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !ok {
		t.Fatal("expected a published location, got none")
	}
	if loc.Path != part.Path || loc.NumRows != part.NumRows || loc.NumBatches != part.NumBatches || loc.NumBytes != part.NumBytes {
		t.Fatalf("got %+v, want %+v", loc, part)
	}
}

// Package placement assigns shuffle output partitions to candidate
// executors, using rendezvous (highest random weight) hashing so the
// same job deterministically picks the same executors without any
// coordinator round-trip, and placements shift minimally when the
// candidate pool changes.
package placement

import (
	"fmt"

	"shufflewriter/internal/partitioning"

	"github.com/dgryski/go-rendezvous"
)

// AssignExecutors picks one executor per output partition [0, n) from
// candidates, keyed by jobID so the same job always maps to the same
// executors as long as the candidate pool is unchanged.
func AssignExecutors(jobID string, candidates []partitioning.ExecutorMeta, n int) ([]partitioning.ExecutorMeta, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("placement: no candidate executors available")
	}

	ids := make([]string, len(candidates))
	byID := make(map[string]partitioning.ExecutorMeta, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
		byID[c.ID] = c
	}

	r := rendezvous.New(ids, hashString)

	out := make([]partitioning.ExecutorMeta, n)
	for p := 0; p < n; p++ {
		key := fmt.Sprintf("%s/%d", jobID, p)
		out[p] = byID[r.Lookup(key)]
	}
	return out, nil
}

func hashString(s string) uint64 {
	// FNV-1a: cheap, stable across process restarts, and the rendezvous
	// package only needs a well-distributed uint64 per key, not a
	// cryptographic hash.
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

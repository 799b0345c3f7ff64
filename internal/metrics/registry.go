// Package metrics implements a process-wide metrics registry: many
// shuffle-writer invocations running concurrently on a shared worker
// pool all update the same registry, so every counter is an atomic,
// and the key space is a concurrent map rather than anything requiring
// a global lock.
package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Key identifies one counter: a (job, stage, partition, name) tuple,
// matching the granularity the shuffle-writer node tracks write-time
// and row counters at.
type Key struct {
	Job       string
	Stage     int
	Partition int
	Name      string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d/%d/%s", k.Job, k.Stage, k.Partition, k.Name)
}

// Names of the counters the shuffle-writer node records.
const (
	InputRows      = "input_rows"
	OutputRows     = "output_rows"
	WriteTimeNanos = "write_time_nanos"
)

// Registry is a process-wide, concurrency-safe map of atomic counters,
// keyed by job/stage/partition/counter-name so a single process can
// track many concurrent shuffle writes without cross-talk.
type Registry struct {
	counters sync.Map // Key -> *atomic.Int64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add increments the named counter by delta, creating it at zero if
// this is the first update.
func (r *Registry) Add(key Key, delta int64) {
	v, _ := r.counters.LoadOrStore(key, new(atomic.Int64))
	v.(*atomic.Int64).Add(delta)
}

// Get returns the current value of a counter, or 0 if it has never
// been touched.
func (r *Registry) Get(key Key) int64 {
	v, ok := r.counters.Load(key)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

// Snapshot returns a point-in-time copy of every counter currently
// tracked. Intended for display/debugging, not for the hot path.
func (r *Registry) Snapshot() map[Key]int64 {
	out := make(map[Key]int64)
	r.counters.Range(func(k, v any) bool {
		out[k.(Key)] = v.(*atomic.Int64).Load()
		return true
	})
	return out
}

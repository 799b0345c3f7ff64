// Package partitioning holds the small value types shared between the
// shuffle-writer node and its sinks: where output goes, and how input
// rows are split across output partitions.
package partitioning

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

// LocationKind distinguishes the two shapes OutputLocation can take.
type LocationKind int

const (
	// LocationLocalDir writes every output partition to a local
	// working directory.
	LocationLocalDir LocationKind = iota
	// LocationExecutors sends each output partition to a remote
	// executor (or, when local senders are supplied by the caller, to
	// an in-process channel standing in for one).
	LocationExecutors
)

func (k LocationKind) String() string {
	switch k {
	case LocationLocalDir:
		return "LocalDir"
	case LocationExecutors:
		return "Executors"
	default:
		return "Unknown"
	}
}

// ExecutorMeta identifies a remote executor a partition can be pushed
// to. Mirrors the scheduler's view of an executor; this package never
// dials one, it only carries the address.
type ExecutorMeta struct {
	ID   string
	Host string
	Port uint16
}

// OutputLocation is a tagged union over the two destinations a
// shuffle-writer node can be configured with. It is a plain
// "kind"-plus-payload struct rather than an interface, since the set
// of shapes is small and fixed and doesn't need polymorphism.
type OutputLocation struct {
	Kind      LocationKind
	Dir       string         // valid when Kind == LocationLocalDir
	Executors []ExecutorMeta // valid when Kind == LocationExecutors
}

// NewLocalDir builds a LocalDir output location.
func NewLocalDir(workDir string) OutputLocation {
	return OutputLocation{Kind: LocationLocalDir, Dir: workDir}
}

// NewExecutors builds an Executors output location.
func NewExecutors(execs []ExecutorMeta) OutputLocation {
	return OutputLocation{Kind: LocationExecutors, Executors: execs}
}

func (o OutputLocation) String() string {
	switch o.Kind {
	case LocationLocalDir:
		return fmt.Sprintf("LocalDir(%s)", o.Dir)
	case LocationExecutors:
		return fmt.Sprintf("Executors(%d)", len(o.Executors))
	default:
		return "Unknown"
	}
}

// PartitioningKind distinguishes pass-through from hash partitioning.
type PartitioningKind int

const (
	// None is pass-through: a single output partition, no hashing.
	None PartitioningKind = iota
	// Hash repartitions rows across N output partitions by a
	// combined hash of one or more key expressions.
	Hash
)

// KeyExpr evaluates a single scalar expression against a batch,
// producing one value array of the batch's row length. This is the
// capability contract for the planner's expression evaluator, which is
// out of scope for this repository — callers supply a concrete
// implementation (e.g. a column reference).
type KeyExpr interface {
	// Name identifies the expression for display/debugging.
	Name() string
	// Evaluate produces one array of length rec.NumRows() from the
	// given batch.
	Evaluate(rec arrow.Record) (arrow.Array, error)
}

// Partitioning is a tagged union: absent (pass-through) or
// Hash(key_exprs, n).
type Partitioning struct {
	Kind  PartitioningKind
	Exprs []KeyExpr
	N     int
}

// NewHash builds a Hash partitioning. n must be >= 1 and exprs
// non-empty; callers are expected to validate before constructing a
// node (see shufflewriter.New).
func NewHash(exprs []KeyExpr, n int) Partitioning {
	return Partitioning{Kind: Hash, Exprs: exprs, N: n}
}

func (p Partitioning) String() string {
	switch p.Kind {
	case None:
		return "None"
	case Hash:
		names := make([]string, len(p.Exprs))
		for i, e := range p.Exprs {
			names[i] = e.Name()
		}
		return fmt.Sprintf("Hash(%v, %d)", names, p.N)
	default:
		return "Unknown"
	}
}

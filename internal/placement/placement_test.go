package placement

import (
	"testing"

	"shufflewriter/internal/partitioning"
)

func candidates() []partitioning.ExecutorMeta {
	return []partitioning.ExecutorMeta{
		{ID: "e0", Host: "10.0.0.1", Port: 7070},
		{ID: "e1", Host: "10.0.0.2", Port: 7070},
		{ID: "e2", Host: "10.0.0.3", Port: 7070},
	}
}

func TestAssignExecutorsIsDeterministic(t *testing.T) {
	c := candidates()
	a, err := AssignExecutors("jobOne", c, 4)
	if err != nil {
		t.Fatalf("AssignExecutors: %v", err)
	}
	b, err := AssignExecutors("jobOne", c, 4)
	if err != nil {
		t.Fatalf("AssignExecutors: %v", err)
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Fatalf("partition %d: got %s then %s, want same executor both times", i, a[i].ID, b[i].ID)
		}
	}
}

func TestAssignExecutorsSpreadsAcrossCandidates(t *testing.T) {
	c := candidates()
	assigned, err := AssignExecutors("jobTwo", c, 12)
	if err != nil {
		t.Fatalf("AssignExecutors: %v", err)
	}
	seen := make(map[string]bool)
	for _, e := range assigned {
		if e.ID == "" {
			t.Fatalf("got an unassigned (zero-value) executor in %v", assigned)
		}
		seen[e.ID] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected placements to use more than one candidate across 12 partitions, got %v", seen)
	}
}

func TestAssignExecutorsRejectsEmptyCandidates(t *testing.T) {
	if _, err := AssignExecutors("jobThree", nil, 3); err == nil {
		t.Fatal("expected an error with no candidate executors")
	}
}

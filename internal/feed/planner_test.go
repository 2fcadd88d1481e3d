package feed

import (
	"reflect"
	"testing"
)

func ids(from, to int64) []int64 {
	out := make([]int64, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func TestBuildPlan_Partitions(t *testing.T) {
	plan := BuildPlan(ids(1, 23), 10, 10)

	if len(plan.Chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(plan.Chunks))
	}
	if plan.Truncated {
		t.Error("23 members within 10 chunks should not be truncated")
	}

	want := [][]int64{ids(1, 10), ids(11, 20), ids(21, 23)}
	for i, chunk := range plan.Chunks {
		if !reflect.DeepEqual([]int64(chunk), want[i]) {
			t.Errorf("chunk %d = %v, want %v", i, chunk, want[i])
		}
	}
}

func TestBuildPlan_Stable(t *testing.T) {
	// Chunk assignment is part of the page cursor, so the plan must be
	// invariant under input order.
	a := BuildPlan([]int64{5, 1, 9, 3, 7, 2, 8, 4, 6, 10, 11}, 3, 10)
	b := BuildPlan([]int64{11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1}, 3, 10)

	if !reflect.DeepEqual(a, b) {
		t.Errorf("plans differ across input orderings:\n%v\n%v", a, b)
	}
	if got := []int64(a.Chunks[0]); !reflect.DeepEqual(got, []int64{1, 2, 3}) {
		t.Errorf("first chunk = %v, want [1 2 3]", got)
	}
}

func TestBuildPlan_Truncation(t *testing.T) {
	plan := BuildPlan(ids(1, 105), 10, 10)

	if len(plan.Chunks) != 10 {
		t.Fatalf("expected 10 chunks, got %d", len(plan.Chunks))
	}
	if !plan.Truncated {
		t.Error("105 members over a 10-chunk ceiling must be marked truncated")
	}
	// Kept chunks cover the 100 smallest ids.
	last := plan.Chunks[9]
	if last[len(last)-1] != 100 {
		t.Errorf("last kept id = %d, want 100", last[len(last)-1])
	}
}

func TestBuildPlan_ExactMultiple(t *testing.T) {
	plan := BuildPlan(ids(1, 100), 10, 10)
	if len(plan.Chunks) != 10 || plan.Truncated {
		t.Errorf("100 members = exactly 10 full chunks, got %d truncated=%v",
			len(plan.Chunks), plan.Truncated)
	}
}

func TestBuildPlan_Empty(t *testing.T) {
	plan := BuildPlan(nil, 10, 10)
	if len(plan.Chunks) != 0 || plan.Truncated {
		t.Errorf("empty member set should yield an empty plan, got %+v", plan)
	}
}

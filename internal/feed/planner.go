package feed

import "sort"

// Chunk is one bounded author-id group, usable as the parameter list of a
// single containment query against the post store.
type Chunk []int64

// Plan is the deterministic partition of a follow set into chunks.
// Truncated is set when the follow set exceeded the fan-out cost ceiling and
// only the first maxChunks chunks were kept; the resulting feed is then valid
// but not exhaustive over all follows.
type Plan struct {
	Chunks    []Chunk
	Truncated bool
}

// BuildPlan partitions members into chunks of at most chunkSize ids.
//
// The partition must be stable: chunk assignment is part of the page cursor,
// so replanning the same set has to yield the same chunks. Members are sorted
// ascending before slicing, which makes the plan a pure function of the set.
func BuildPlan(members []int64, chunkSize, maxChunks int) Plan {
	if len(members) == 0 || chunkSize <= 0 {
		return Plan{}
	}

	sorted := make([]int64, len(members))
	copy(sorted, members)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var plan Plan
	for start := 0; start < len(sorted); start += chunkSize {
		if maxChunks > 0 && len(plan.Chunks) == maxChunks {
			plan.Truncated = true
			break
		}
		end := start + chunkSize
		if end > len(sorted) {
			end = len(sorted)
		}
		plan.Chunks = append(plan.Chunks, Chunk(sorted[start:end]))
	}
	return plan
}

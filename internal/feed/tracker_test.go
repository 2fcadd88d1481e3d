package feed

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

// fakeGraph is an in-memory FollowSource with a hand-driven change signal.
type fakeGraph struct {
	mu        sync.Mutex
	followees map[int64][]int64
	err       error
	changes   chan struct{}
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		followees: make(map[int64][]int64),
		changes:   make(chan struct{}, 1),
	}
}

func (g *fakeGraph) FolloweeIDs(ctx context.Context, viewerID int64) ([]int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	return append([]int64(nil), g.followees[viewerID]...), nil
}

func (g *fakeGraph) Changes(viewerID int64) (<-chan struct{}, func()) {
	return g.changes, func() {}
}

func (g *fakeGraph) set(viewerID int64, followees []int64, err error) {
	g.mu.Lock()
	g.followees[viewerID] = followees
	g.err = err
	g.mu.Unlock()
}

func (g *fakeGraph) signal() {
	select {
	case g.changes <- struct{}{}:
	default:
	}
}

func recvSnapshot(t *testing.T, tr *Tracker) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-tr.Snapshots():
		if !ok {
			t.Fatal("snapshot channel closed unexpectedly")
		}
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

func TestTracker_InitialSnapshotIncludesViewer(t *testing.T) {
	graph := newFakeGraph()
	graph.set(1, []int64{30, 20, 1, 20}, nil) // viewer listed twice over, unsorted

	tr := NewTracker(graph, 1)
	defer tr.Close()

	snap := recvSnapshot(t, tr)
	if snap.Err != nil {
		t.Fatalf("unexpected error: %v", snap.Err)
	}
	want := []int64{1, 20, 30}
	if !reflect.DeepEqual(snap.Members, want) {
		t.Errorf("Members = %v, want %v (viewer included, deduplicated, sorted)", snap.Members, want)
	}
}

func TestTracker_NoFollowees(t *testing.T) {
	graph := newFakeGraph()
	tr := NewTracker(graph, 42)
	defer tr.Close()

	snap := recvSnapshot(t, tr)
	if !reflect.DeepEqual(snap.Members, []int64{42}) {
		t.Errorf("Members = %v, want just the viewer", snap.Members)
	}
}

func TestTracker_EmitsOnChange(t *testing.T) {
	graph := newFakeGraph()
	graph.set(1, []int64{2}, nil)

	tr := NewTracker(graph, 1)
	defer tr.Close()

	recvSnapshot(t, tr)

	graph.set(1, []int64{2, 3}, nil)
	graph.signal()

	snap := recvSnapshot(t, tr)
	want := []int64{1, 2, 3}
	if !reflect.DeepEqual(snap.Members, want) {
		t.Errorf("Members after change = %v, want %v", snap.Members, want)
	}
}

func TestTracker_LoadFailureEmitsEmptySet(t *testing.T) {
	graph := newFakeGraph()
	graph.set(1, nil, errors.New("graph unavailable"))

	tr := NewTracker(graph, 1)
	defer tr.Close()

	snap := recvSnapshot(t, tr)
	if snap.Err == nil {
		t.Error("expected the load error to be surfaced")
	}
	if len(snap.Members) != 0 {
		t.Errorf("Members = %v, want empty on load failure", snap.Members)
	}
}

func TestTracker_CloseClosesChannel(t *testing.T) {
	graph := newFakeGraph()
	tr := NewTracker(graph, 1)

	recvSnapshot(t, tr)
	tr.Close()

	select {
	case _, ok := <-tr.Snapshots():
		if ok {
			t.Error("expected no further snapshots after Close")
		}
	case <-time.After(2 * time.Second):
		t.Error("snapshot channel not closed after Close")
	}
}

package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"circleshare/internal/model"
)

func testConfig() Config {
	return Config{ChunkSize: 10, MaxChunks: 10, PageSize: 3}
}

func settled(t *testing.T, c *Controller) View {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	v := c.WaitSettled(ctx)
	if ctx.Err() != nil {
		t.Fatalf("controller never settled, last view: %+v", v)
	}
	return v
}

func TestController_InitialLoad(t *testing.T) {
	graph := newFakeGraph()
	graph.set(1, []int64{2}, nil)

	store := newFakeStore()
	store.add(101, 2, at(1))
	store.add(102, 1, at(2))

	c := NewController(NewEngine(store, time.Second), NewTracker(graph, 1), testConfig())
	defer c.Close()

	v := settled(t, c)
	if !equalInt64s(postIDs(v.Posts), []int64{101, 102}) {
		t.Errorf("posts = %v, want the viewer's own post merged with the followee's", postIDs(v.Posts))
	}
	if v.HasMore || v.Error != "" || v.CoverageIncomplete {
		t.Errorf("unexpected view flags: %+v", v)
	}
}

func TestController_LoadMoreAppends(t *testing.T) {
	graph := newFakeGraph()
	graph.set(1, []int64{2}, nil)

	store := newFakeStore()
	for i := 1; i <= 7; i++ {
		store.add(int64(100+i), 2, at(i))
	}

	c := NewController(NewEngine(store, time.Second), NewTracker(graph, 1), testConfig())
	defer c.Close()

	v := settled(t, c)
	if len(v.Posts) != 3 || !v.HasMore {
		t.Fatalf("first page: got %d posts hasMore=%v", len(v.Posts), v.HasMore)
	}

	c.LoadMore()
	v = settled(t, c)
	if !equalInt64s(postIDs(v.Posts), []int64{101, 102, 103, 104, 105, 106}) {
		t.Errorf("after LoadMore posts = %v", postIDs(v.Posts))
	}

	c.LoadMore()
	v = settled(t, c)
	if !equalInt64s(postIDs(v.Posts), []int64{101, 102, 103, 104, 105, 106, 107}) {
		t.Errorf("final posts = %v", postIDs(v.Posts))
	}
	if v.HasMore {
		t.Error("feed exhausted, HasMore should be false")
	}

	// Exhausted: a further LoadMore is a no-op.
	c.LoadMore()
	v = settled(t, c)
	if len(v.Posts) != 7 {
		t.Errorf("LoadMore on exhausted feed changed the page: %v", postIDs(v.Posts))
	}
}

func TestController_ResetOnFollowChange(t *testing.T) {
	graph := newFakeGraph()
	graph.set(1, []int64{2}, nil)

	store := newFakeStore()
	store.add(101, 2, at(1))
	store.add(201, 3, at(2))

	c := NewController(NewEngine(store, time.Second), NewTracker(graph, 1), testConfig())
	defer c.Close()

	v := settled(t, c)
	if !equalInt64s(postIDs(v.Posts), []int64{101}) {
		t.Fatalf("initial posts = %v", postIDs(v.Posts))
	}

	// Following a new author invalidates chunk boundaries: the feed is
	// rebuilt from page one against the new set.
	graph.set(1, []int64{2, 3}, nil)
	graph.signal()

	deadline := time.After(3 * time.Second)
	for {
		v = settled(t, c)
		if equalInt64s(postIDs(v.Posts), []int64{101, 201}) {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("feed never rebuilt, posts = %v", postIDs(v.Posts))
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestController_RedundantSnapshotIsNoop(t *testing.T) {
	graph := newFakeGraph()
	graph.set(1, []int64{2}, nil)

	store := newFakeStore()
	for i := 1; i <= 5; i++ {
		store.add(int64(100+i), 2, at(i))
	}

	c := NewController(NewEngine(store, time.Second), NewTracker(graph, 1), testConfig())
	defer c.Close()

	settled(t, c)
	c.LoadMore()
	v := settled(t, c)
	if len(v.Posts) != 5 {
		t.Fatalf("expected 5 accumulated posts, got %d", len(v.Posts))
	}

	// Same membership re-emitted: accumulated pages must survive.
	graph.signal()
	time.Sleep(100 * time.Millisecond)
	v = settled(t, c)
	if len(v.Posts) != 5 {
		t.Errorf("redundant snapshot reset the feed: %v", postIDs(v.Posts))
	}
}

func TestController_EmptyFollowSetOnGraphFailure(t *testing.T) {
	graph := newFakeGraph()
	graph.set(1, nil, errors.New("graph unavailable"))

	c := NewController(NewEngine(newFakeStore(), time.Second), NewTracker(graph, 1), testConfig())
	defer c.Close()

	v := settled(t, c)
	if len(v.Posts) != 0 || v.Error != "" {
		t.Errorf("graph failure should serve an empty feed without an error state: %+v", v)
	}
}

func TestController_TotalFetchFailurePreservesFeed(t *testing.T) {
	graph := newFakeGraph()
	graph.set(1, []int64{2}, nil)

	store := newFakeStore()
	for i := 1; i <= 5; i++ {
		store.add(int64(100+i), 2, at(i))
	}

	c := NewController(NewEngine(store, time.Second), NewTracker(graph, 1), testConfig())
	defer c.Close()

	v := settled(t, c)
	if len(v.Posts) != 3 {
		t.Fatalf("first page: %v", postIDs(v.Posts))
	}

	store.mu.Lock()
	store.fail[2] = errors.New("db down")
	store.fail[1] = errors.New("db down")
	store.mu.Unlock()

	c.LoadMore()
	v = settled(t, c)
	if v.Error == "" {
		t.Error("expected an error state after a total fetch failure")
	}
	if len(v.Posts) != 3 {
		t.Errorf("existing feed must be preserved on failure, got %v", postIDs(v.Posts))
	}

	// Recovery: retry re-issues the slices that did not advance.
	store.mu.Lock()
	delete(store.fail, 2)
	delete(store.fail, 1)
	store.mu.Unlock()

	c.LoadMore()
	v = settled(t, c)
	if v.Error != "" {
		t.Errorf("retry should clear the error, got %q", v.Error)
	}
	if !equalInt64s(postIDs(v.Posts), []int64{101, 102, 103, 104, 105}) {
		t.Errorf("posts after retry = %v", postIDs(v.Posts))
	}
}

// blockingStore gates one query so a fetch can be held in flight while the
// follow set changes underneath it.
type blockingStore struct {
	inner   *fakeStore
	mu      sync.Mutex
	gate    chan struct{}
	entered chan struct{}
}

// arm makes the next query block until release is called.
func (s *blockingStore) arm() (entered <-chan struct{}, release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gate := make(chan struct{})
	s.gate = gate
	s.entered = make(chan struct{})
	return s.entered, func() { close(gate) }
}

func (s *blockingStore) PostsByAuthors(ctx context.Context, authorIDs []int64, after *Cursor, limit int) ([]model.Post, error) {
	s.mu.Lock()
	gate, entered := s.gate, s.entered
	s.gate, s.entered = nil, nil
	s.mu.Unlock()

	if gate != nil {
		close(entered)
		// Deliberately ignores ctx: the point is a result arriving after
		// its generation has been superseded, not a cancellation error.
		<-gate
	}
	return s.inner.PostsByAuthors(ctx, authorIDs, after, limit)
}

func TestController_StaleFetchDiscarded(t *testing.T) {
	graph := newFakeGraph()
	graph.set(1, []int64{2}, nil)

	inner := newFakeStore()
	inner.add(101, 2, at(1))
	inner.add(301, 3, at(2))
	store := &blockingStore{inner: inner}

	entered, release := store.arm()

	c := NewController(NewEngine(store, 0), NewTracker(graph, 1), testConfig())
	defer c.Close()

	select {
	case <-entered:
	case <-time.After(3 * time.Second):
		t.Fatal("first fetch never started")
	}

	// The follow set changes while the first fetch is still in flight: the
	// generation moves on and a fresh fetch runs against the new plan.
	graph.set(1, []int64{3}, nil)
	graph.signal()

	v := settled(t, c)
	if !equalInt64s(postIDs(v.Posts), []int64{301}) {
		t.Fatalf("posts after replan = %v, want [301]", postIDs(v.Posts))
	}

	// The superseded fetch now resolves with the old set's posts. Its
	// result must be discarded, not merged into the fresh feed.
	release()
	time.Sleep(100 * time.Millisecond)

	v = c.View()
	if !equalInt64s(postIDs(v.Posts), []int64{301}) {
		t.Errorf("stale fetch leaked into the feed: %v", postIDs(v.Posts))
	}
}

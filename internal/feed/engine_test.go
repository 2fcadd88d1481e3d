package feed

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"circleshare/internal/model"
)

// fakeStore is an in-memory PostSource with real containment-query
// semantics: descending (created_at, id) order, strict resume after the
// cursor, bounded batches.
type fakeStore struct {
	mu    sync.Mutex
	posts []model.Post
	fail  map[int64]error // author id -> error for any chunk containing it
}

func newFakeStore() *fakeStore {
	return &fakeStore{fail: make(map[int64]error)}
}

func (s *fakeStore) add(id, authorID int64, createdAt time.Time) {
	s.mu.Lock()
	s.posts = append(s.posts, model.Post{ID: id, AuthorID: authorID, CreatedAt: createdAt})
	s.mu.Unlock()
}

func (s *fakeStore) PostsByAuthors(ctx context.Context, authorIDs []int64, after *Cursor, limit int) ([]model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	authors := make(map[int64]struct{}, len(authorIDs))
	for _, a := range authorIDs {
		if err := s.fail[a]; err != nil {
			return nil, err
		}
		authors[a] = struct{}{}
	}

	var matched []model.Post
	for _, p := range s.posts {
		if _, ok := authors[p.AuthorID]; !ok {
			continue
		}
		if after != nil {
			// Strictly older than the cursor position.
			if p.CreatedAt.After(after.CreatedAt) {
				continue
			}
			if p.CreatedAt.Equal(after.CreatedAt) && p.ID >= after.PostID {
				continue
			}
		}
		matched = append(matched, p)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func at(minutesAgo int) time.Time {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return base.Add(-time.Duration(minutesAgo) * time.Minute)
}

func postIDs(posts []model.Post) []int64 {
	out := make([]int64, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}

func equalInt64s(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFetchPage_MergesAcrossChunksDescending(t *testing.T) {
	store := newFakeStore()
	// Interleaved timestamps across two chunks.
	store.add(101, 1, at(1))
	store.add(102, 1, at(3))
	store.add(201, 11, at(2))
	store.add(202, 11, at(4))

	engine := NewEngine(store, time.Second)
	plan := Plan{Chunks: []Chunk{{1}, {11}}}

	page, err := engine.FetchPage(context.Background(), plan, nil, map[int64]struct{}{}, 10)
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}

	want := []int64{101, 201, 102, 202}
	if !equalInt64s(postIDs(page.Posts), want) {
		t.Errorf("merged order = %v, want %v", postIDs(page.Posts), want)
	}
	if page.HasMore {
		t.Error("both chunks exhausted below the page size, HasMore should be false")
	}
	if page.Partial {
		t.Error("no chunk failed, Partial should be false")
	}
}

func TestFetchPage_TieBreakByIDDescending(t *testing.T) {
	store := newFakeStore()
	ts := at(5)
	store.add(3, 1, ts)
	store.add(9, 11, ts)
	store.add(5, 21, ts)

	engine := NewEngine(store, time.Second)
	plan := Plan{Chunks: []Chunk{{1}, {11}, {21}}}

	page, err := engine.FetchPage(context.Background(), plan, nil, map[int64]struct{}{}, 10)
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	want := []int64{9, 5, 3}
	if !equalInt64s(postIDs(page.Posts), want) {
		t.Errorf("tie order = %v, want %v", postIDs(page.Posts), want)
	}
}

// A chunk that contributes nothing to a page keeps its cursor and resumes
// from the same position; its posts surface as soon as the merge reaches
// their timestamps.
func TestFetchPage_SparseChunkNotStarved(t *testing.T) {
	store := newFakeStore()
	// Author 1 is prolific and recent; author 11 has two older posts.
	for i := 0; i < 6; i++ {
		store.add(int64(100+i), 1, at(i))
	}
	store.add(201, 11, at(50))
	store.add(202, 11, at(60))

	engine := NewEngine(store, time.Second)
	plan := Plan{Chunks: []Chunk{{1}, {11}}}
	seen := map[int64]struct{}{}

	page1, err := engine.FetchPage(context.Background(), plan, nil, seen, 4)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if !equalInt64s(postIDs(page1.Posts), []int64{100, 101, 102, 103}) {
		t.Fatalf("page 1 = %v", postIDs(page1.Posts))
	}
	if page1.Cursor[1] != nil {
		t.Error("non-contributing chunk must keep its prior (nil) cursor")
	}
	if !page1.HasMore {
		t.Error("chunk 0 returned a full batch, HasMore should be true")
	}
	for _, p := range page1.Posts {
		seen[p.ID] = struct{}{}
	}

	page2, err := engine.FetchPage(context.Background(), plan, page1.Cursor, seen, 4)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if !equalInt64s(postIDs(page2.Posts), []int64{104, 105, 201, 202}) {
		t.Errorf("page 2 = %v, want sparse chunk's posts after the prolific chunk drains", postIDs(page2.Posts))
	}
}

func TestFetchPage_TruncationBoundaryCursors(t *testing.T) {
	store := newFakeStore()
	store.add(101, 1, at(1))
	store.add(201, 11, at(2))
	store.add(102, 1, at(3))
	store.add(202, 11, at(4))

	engine := NewEngine(store, time.Second)
	plan := Plan{Chunks: []Chunk{{1}, {11}}}

	// Page of 3 consumes 101, 201, 102; only posts on or before the
	// truncation boundary advance their chunk's cursor.
	page, err := engine.FetchPage(context.Background(), plan, nil, map[int64]struct{}{}, 3)
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	if !equalInt64s(postIDs(page.Posts), []int64{101, 201, 102}) {
		t.Fatalf("page = %v", postIDs(page.Posts))
	}
	if page.Cursor[0] == nil || page.Cursor[0].PostID != 102 {
		t.Errorf("chunk 0 cursor = %+v, want post 102", page.Cursor[0])
	}
	if page.Cursor[1] == nil || page.Cursor[1].PostID != 201 {
		t.Errorf("chunk 1 cursor = %+v, want post 201 (202 was not consumed)", page.Cursor[1])
	}

	// Resuming must yield exactly the unconsumed post.
	next, err := engine.FetchPage(context.Background(), plan, page.Cursor, map[int64]struct{}{}, 3)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !equalInt64s(postIDs(next.Posts), []int64{202}) {
		t.Errorf("resumed page = %v, want [202]", postIDs(next.Posts))
	}
}

func TestFetchPage_PartialFailure(t *testing.T) {
	store := newFakeStore()
	store.add(101, 1, at(1))
	store.fail[11] = errors.New("timeout")

	engine := NewEngine(store, time.Second)
	plan := Plan{Chunks: []Chunk{{1}, {11}}}

	page, err := engine.FetchPage(context.Background(), plan, nil, map[int64]struct{}{}, 10)
	if err != nil {
		t.Fatalf("a single failed chunk must not fail the page: %v", err)
	}
	if !page.Partial {
		t.Error("Partial should be set when some chunks failed")
	}
	if !page.HasMore {
		t.Error("a failed chunk may hold more posts, HasMore should be true")
	}
	if !equalInt64s(postIDs(page.Posts), []int64{101}) {
		t.Errorf("page = %v, want the surviving chunk's posts", postIDs(page.Posts))
	}
	if page.Cursor[1] != nil {
		t.Error("failed chunk's cursor must not advance, so its slice is retried")
	}
}

func TestFetchPage_AllChunksFailed(t *testing.T) {
	store := newFakeStore()
	store.fail[1] = errors.New("down")
	store.fail[11] = errors.New("down")

	engine := NewEngine(store, time.Second)
	plan := Plan{Chunks: []Chunk{{1}, {11}}}

	if _, err := engine.FetchPage(context.Background(), plan, nil, map[int64]struct{}{}, 10); err == nil {
		t.Fatal("expected an error when every chunk query fails")
	}
}

func TestFetchPage_DuplicateDroppedButCursorAdvances(t *testing.T) {
	store := newFakeStore()
	store.add(101, 1, at(1))
	store.add(102, 1, at(2))

	engine := NewEngine(store, time.Second)
	plan := Plan{Chunks: []Chunk{{1}}}

	seen := map[int64]struct{}{101: {}}
	page, err := engine.FetchPage(context.Background(), plan, nil, seen, 10)
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	if !equalInt64s(postIDs(page.Posts), []int64{102}) {
		t.Errorf("page = %v, want the duplicate dropped", postIDs(page.Posts))
	}
	if page.Cursor[0] == nil || page.Cursor[0].PostID != 102 {
		t.Errorf("cursor = %+v, want to have advanced past the duplicate", page.Cursor[0])
	}
}

func TestFetchPage_EmptyPlan(t *testing.T) {
	engine := NewEngine(newFakeStore(), time.Second)
	page, err := engine.FetchPage(context.Background(), Plan{}, nil, map[int64]struct{}{}, 10)
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	if len(page.Posts) != 0 || page.HasMore {
		t.Errorf("empty plan should yield an empty final page, got %+v", page)
	}
}

// Two chunks with 8 and 3 matching posts and a page size of 10: the page
// holds the 10 most recent, and the one fetched-but-undelivered post keeps
// HasMore true so it surfaces on the next page.
func TestFetchPage_UndeliveredOverflowKeepsHasMore(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 8; i++ {
		store.add(int64(100+i), 1, at(2*i)) // even minutes
	}
	for i := 0; i < 3; i++ {
		store.add(int64(200+i), 11, at(2*i+1)) // odd minutes, interleaved
	}

	engine := NewEngine(store, time.Second)
	plan := Plan{Chunks: []Chunk{{1}, {11}}}
	seen := map[int64]struct{}{}

	page1, err := engine.FetchPage(context.Background(), plan, nil, seen, 10)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(page1.Posts) != 10 {
		t.Fatalf("page 1 size = %d, want 10", len(page1.Posts))
	}
	if !page1.HasMore {
		t.Error("one fetched post remains undelivered, HasMore must be true")
	}
	for _, p := range page1.Posts {
		seen[p.ID] = struct{}{}
	}

	page2, err := engine.FetchPage(context.Background(), plan, page1.Cursor, seen, 10)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(page2.Posts) != 1 {
		t.Fatalf("page 2 = %v, want the one remaining post", postIDs(page2.Posts))
	}
	if page2.HasMore {
		t.Error("all 11 posts delivered, HasMore should be false")
	}

	// Across both pages: every post exactly once.
	if len(seen)+len(page2.Posts) != 11 {
		t.Errorf("delivered %d distinct posts, want 11", len(seen)+len(page2.Posts))
	}
}

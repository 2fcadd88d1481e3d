package feed

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"circleshare/internal/model"
)

// Cursor marks a resume position within one chunk's descending-time query:
// the (created_at, id) pair of the last consumed post from that chunk.
type Cursor struct {
	CreatedAt time.Time
	PostID    int64
}

// CompositeCursor holds one cursor per plan chunk, index-aligned with
// Plan.Chunks. A nil entry means the chunk has not been advanced yet. It is
// a tuple rather than a single scalar because each chunk advances
// independently through its own slice of the post store.
type CompositeCursor []*Cursor

// PostSource is the engine's view of the post store: a bounded containment
// query, descending creation time, resuming after the given cursor. The
// store enforces a ceiling on len(authorIDs).
type PostSource interface {
	PostsByAuthors(ctx context.Context, authorIDs []int64, after *Cursor, limit int) ([]model.Post, error)
}

// Page is one merged, deduplicated slice of the circle feed.
type Page struct {
	Posts   []model.Post
	Cursor  CompositeCursor
	HasMore bool
	Partial bool // at least one chunk query failed; its slice is retried on the next page
}

// Engine fans one query per chunk out to the post store and merges the
// partial result sets into a single globally time-ordered page.
type Engine struct {
	source       PostSource
	chunkTimeout time.Duration
}

func NewEngine(source PostSource, chunkTimeout time.Duration) *Engine {
	return &Engine{source: source, chunkTimeout: chunkTimeout}
}

// FetchPage issues all chunk queries concurrently, waits for every one to
// settle, merges the results by created_at descending (post id descending on
// ties, so repeated fetches reproduce the same order) and truncates to
// pageSize.
//
// Cursor recomputation: each chunk's next cursor is the last of its posts
// consumed on or before the truncation boundary; a chunk that contributed
// nothing keeps its prior cursor and is re-queried from the same point next
// page, never skipped.
//
// seen holds ids already delivered in this feed session. Author ids
// partition chunks disjointly, so a duplicate cannot normally occur; the set
// is defense-in-depth and is only read here, never written.
//
// A single failed chunk degrades to a partial page; the page errors only
// when every chunk fails.
func (e *Engine) FetchPage(ctx context.Context, plan Plan, cursor CompositeCursor, seen map[int64]struct{}, pageSize int) (*Page, error) {
	n := len(plan.Chunks)
	if n == 0 || pageSize <= 0 {
		return &Page{}, nil
	}

	start := time.Now()
	results := make([][]model.Post, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i, chunk := range plan.Chunks {
		wg.Add(1)
		go func(i int, chunk Chunk) {
			defer wg.Done()

			cctx := ctx
			if e.chunkTimeout > 0 {
				var cancel context.CancelFunc
				cctx, cancel = context.WithTimeout(ctx, e.chunkTimeout)
				defer cancel()
			}

			var after *Cursor
			if i < len(cursor) {
				after = cursor[i]
			}
			results[i], errs[i] = e.source.PostsByAuthors(cctx, chunk, after, pageSize)
		}(i, chunk)
	}
	wg.Wait()

	failed := 0
	var firstErr error
	for i, err := range errs {
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			log.Printf("[FeedEngine] chunk %d/%d query failed: %v", i+1, n, err)
		}
	}
	if failed == n {
		return nil, fmt.Errorf("all %d chunk queries failed: %w", n, firstErr)
	}

	// Chunk index per author, to reattribute merged posts for cursor updates.
	chunkOf := make(map[int64]int)
	for i, chunk := range plan.Chunks {
		for _, a := range chunk {
			chunkOf[a] = i
		}
	}

	var merged []model.Post
	for _, posts := range results {
		merged = append(merged, posts...)
	}
	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].CreatedAt.Equal(merged[j].CreatedAt) {
			return merged[i].CreatedAt.After(merged[j].CreatedAt)
		}
		return merged[i].ID > merged[j].ID
	})

	next := make(CompositeCursor, n)
	for i := range next {
		if i < len(cursor) {
			next[i] = cursor[i]
		}
	}

	page := &Page{Cursor: next, Partial: failed > 0}
	for _, p := range merged {
		if len(page.Posts) == pageSize {
			break
		}
		// The post is consumed (on or before the boundary), so its chunk
		// advances past it even when the dedup below drops it.
		next[chunkOf[p.AuthorID]] = &Cursor{CreatedAt: p.CreatedAt, PostID: p.ID}

		if _, dup := seen[p.ID]; dup {
			log.Printf("[FeedEngine] duplicate post=%d dropped (already delivered this session)", p.ID)
			continue
		}
		page.Posts = append(page.Posts, p)
	}

	// Conservative: a chunk that returned a full batch may have more to
	// give, a failed chunk certainly might, and posts fetched beyond the
	// truncation boundary are still undelivered. May overreport, never
	// underreports.
	for _, posts := range results {
		if len(posts) == pageSize {
			page.HasMore = true
			break
		}
	}
	if failed > 0 || len(merged) > pageSize {
		page.HasMore = true
	}

	log.Printf("[FeedEngine] FetchPage: chunks=%d failed=%d merged=%d returned=%d hasMore=%v duration=%v",
		n, failed, len(merged), len(page.Posts), page.HasMore, time.Since(start))

	return page, nil
}

package feed

import (
	"context"
	"log"
	"sync"

	"circleshare/internal/model"
)

// State is the pagination state machine:
// Idle → Loading → Ready ⇄ LoadingMore, with Error reachable from either
// loading state and a reset back to Loading whenever the follow set changes.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateLoadingMore
	StateError
)

// Config holds the controller's planning parameters.
type Config struct {
	ChunkSize int // containment ceiling of the post store
	MaxChunks int // fan-out cost ceiling; beyond it coverage is incomplete
	PageSize  int
}

// View is the read model exposed to the HTTP layer.
type View struct {
	Posts              []model.Post `json:"posts"`
	Loading            bool         `json:"loading"`
	LoadingMore        bool         `json:"loading_more"`
	HasMore            bool         `json:"has_more"`
	Error              string       `json:"error,omitempty"`
	Partial            bool         `json:"partial,omitempty"`
	CoverageIncomplete bool         `json:"coverage_incomplete,omitempty"`
}

// Controller owns the accumulated feed for one viewer session. It consumes
// tracker snapshots, plans chunks, drives the engine and guards every fetch
// with a generation stamp: a fetch planned against a superseded follow set
// resolves into the void instead of clobbering fresher state.
type Controller struct {
	engine  *Engine
	tracker *Tracker
	cfg     Config

	mu          sync.Mutex
	gen         uint64
	members     []int64
	plan        Plan
	cursor      CompositeCursor
	posts       []model.Post
	seen        map[int64]struct{}
	state       State
	hasMore     bool
	partial     bool
	errMsg      string
	fetchCancel context.CancelFunc
	changed     chan struct{} // closed and replaced on every state mutation

	root   context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewController starts a controller consuming the given tracker. The caller
// owns the tracker's lifetime through the controller: Close tears both down.
func NewController(engine *Engine, tracker *Tracker, cfg Config) *Controller {
	root, cancel := context.WithCancel(context.Background())
	c := &Controller{
		engine:  engine,
		tracker: tracker,
		cfg:     cfg,
		seen:    make(map[int64]struct{}),
		state:   StateIdle,
		changed: make(chan struct{}),
		root:    root,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go c.run()
	return c
}

// Close cancels any in-flight fetch, releases the tracker subscription and
// stops the controller. No state transitions are emitted after Close.
func (c *Controller) Close() {
	c.tracker.Close()
	c.cancel()
	<-c.done
}

// View returns a snapshot of the current feed state. The posts slice is
// shared but append-only; callers must not mutate it.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{
		Posts:              c.posts,
		Loading:            c.state == StateLoading,
		LoadingMore:        c.state == StateLoadingMore,
		HasMore:            c.hasMore,
		Error:              c.errMsg,
		Partial:            c.partial,
		CoverageIncomplete: c.plan.Truncated,
	}
}

// Updates returns a channel closed on the next state mutation, for callers
// that want to wait for a transition instead of polling.
func (c *Controller) Updates() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed
}

// WaitSettled blocks until no fetch is in flight (or ctx is done) and
// returns the resulting view.
func (c *Controller) WaitSettled(ctx context.Context) View {
	for {
		c.mu.Lock()
		v := View{
			Posts:              c.posts,
			Loading:            c.state == StateLoading,
			LoadingMore:        c.state == StateLoadingMore,
			HasMore:            c.hasMore,
			Error:              c.errMsg,
			Partial:            c.partial,
			CoverageIncomplete: c.plan.Truncated,
		}
		ch := c.changed
		idle := c.state == StateIdle
		c.mu.Unlock()

		if !v.Loading && !v.LoadingMore && !idle {
			return v
		}
		select {
		case <-ctx.Done():
			return v
		case <-ch:
		}
	}
}

// LoadMore fetches the next page with the stored composite cursor and
// appends it. No-op while a fetch is in flight or when the feed is
// exhausted. From the Error state it retries with the last-known-good
// cursor, which re-issues only the slices that did not advance.
func (c *Controller) LoadMore() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateReady:
		if !c.hasMore {
			return
		}
	case StateError:
		// retry allowed
	default:
		return // Idle or already loading
	}
	if len(c.plan.Chunks) == 0 {
		return
	}

	if len(c.posts) == 0 {
		c.state = StateLoading
	} else {
		c.state = StateLoadingMore
	}
	c.notifyLocked()
	c.startFetchLocked()
}

func (c *Controller) run() {
	defer close(c.done)
	for {
		select {
		case <-c.root.Done():
			return
		case snap, ok := <-c.tracker.Snapshots():
			if !ok {
				return
			}
			c.reset(snap)
		}
	}
}

// reset is the follow-set-changed transition: discard page and cursor state
// (chunk boundaries are invalidated by any membership change), bump the
// generation so an in-flight fetch resolves stale, and start page one.
// A snapshot identical to the current set is a no-op.
func (c *Controller) reset(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle && equalIDs(c.members, snap.Members) {
		return // redundant emission, idempotent
	}

	c.gen++
	if c.fetchCancel != nil {
		c.fetchCancel()
		c.fetchCancel = nil
	}

	c.members = snap.Members
	c.plan = BuildPlan(snap.Members, c.cfg.ChunkSize, c.cfg.MaxChunks)
	c.posts = nil
	c.seen = make(map[int64]struct{})
	c.cursor = nil
	c.hasMore = false
	c.partial = false
	c.errMsg = ""

	if snap.Err != nil {
		log.Printf("[FeedController] follow set unavailable, serving empty feed: %v", snap.Err)
	}

	if len(c.plan.Chunks) == 0 {
		c.state = StateReady
		c.notifyLocked()
		return
	}

	c.state = StateLoading
	c.notifyLocked()
	c.startFetchLocked()
}

// startFetchLocked launches one fetch for the current generation. Callers
// hold the lock and have already set a loading state, so fetches of the same
// generation are serialized by construction.
func (c *Controller) startFetchLocked() {
	gen := c.gen
	plan := c.plan
	cursor := c.cursor
	seen := c.seen
	pageSize := c.cfg.PageSize

	fctx, cancel := context.WithCancel(c.root)
	c.fetchCancel = cancel

	go func() {
		page, err := c.engine.FetchPage(fctx, plan, cursor, seen, pageSize)
		cancel()
		c.apply(gen, page, err)
	}()
}

// apply installs a fetch result, unless the generation moved on while the
// fetch was in flight: then the result is silently discarded.
func (c *Controller) apply(gen uint64, page *Page, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		log.Printf("[FeedController] stale fetch discarded: gen=%d current=%d", gen, c.gen)
		return
	}
	c.fetchCancel = nil

	if err != nil {
		// Total fetch failure: existing feed content is preserved.
		c.state = StateError
		c.errMsg = "feed fetch failed"
		log.Printf("[FeedController] fetch failed: gen=%d err=%v", gen, err)
		c.notifyLocked()
		return
	}

	for _, p := range page.Posts {
		if _, dup := c.seen[p.ID]; dup {
			continue
		}
		c.seen[p.ID] = struct{}{}
		c.posts = append(c.posts, p)
	}
	c.cursor = page.Cursor
	c.hasMore = page.HasMore
	c.partial = page.Partial
	c.errMsg = ""
	c.state = StateReady
	c.notifyLocked()
}

func (c *Controller) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

func equalIDs(a, b []int64) bool {
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

package service

import (
	"context"
	"log"
	"sync"
	"time"

	"circleshare/internal/config"
	"circleshare/internal/feed"
	"circleshare/internal/model"
	"circleshare/internal/repository"
)

// graphSource adapts the follow repository plus the in-process invalidation
// hub into the tracker's view of the social graph.
type graphSource struct {
	followRepo repository.FollowRepository
	hub        *feed.Hub
}

func (g *graphSource) FolloweeIDs(ctx context.Context, viewerID int64) ([]int64, error) {
	return g.followRepo.FolloweeIDs(ctx, viewerID)
}

func (g *graphSource) Changes(viewerID int64) (<-chan struct{}, func()) {
	return g.hub.Changes(viewerID)
}

type feedSession struct {
	controller *feed.Controller
	lastAccess time.Time
}

// FeedService owns one live feed session per viewer. A session holds a
// pagination controller fed by a follow-set tracker; sessions idle past the
// TTL are swept and rebuilt on next access.
type FeedService struct {
	engine     *feed.Engine
	source     *graphSource
	postRepo   repository.PostRepository
	userRepo   repository.UserRepository
	followRepo repository.FollowRepository
	cfg        feed.Config
	sessionTTL time.Duration

	mu       sync.Mutex
	sessions map[int64]*feedSession

	stop chan struct{}
	done chan struct{}
}

func NewFeedService(
	postRepo repository.PostRepository,
	followRepo repository.FollowRepository,
	userRepo repository.UserRepository,
	hub *feed.Hub,
	cfg *config.Config,
) *FeedService {
	chunkSize := cfg.FeedChunkSize
	if chunkSize > repository.MaxAuthorsPerContainment {
		log.Printf("[FeedService] FEED_CHUNK_SIZE %d exceeds the store ceiling, clamping to %d",
			chunkSize, repository.MaxAuthorsPerContainment)
		chunkSize = repository.MaxAuthorsPerContainment
	}

	s := &FeedService{
		engine:     feed.NewEngine(postRepo, cfg.FeedChunkTimeout),
		source:     &graphSource{followRepo: followRepo, hub: hub},
		postRepo:   postRepo,
		userRepo:   userRepo,
		followRepo: followRepo,
		cfg: feed.Config{
			ChunkSize: chunkSize,
			MaxChunks: cfg.FeedMaxChunks,
			PageSize:  cfg.FeedPageSize,
		},
		sessionTTL: cfg.FeedSessionTTL,
		sessions:   make(map[int64]*feedSession),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go s.sweepIdle()
	return s
}

// Close tears down every live session and stops the sweeper.
func (s *FeedService) Close() {
	close(s.stop)
	<-s.done

	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[int64]*feedSession)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.controller.Close()
	}
}

// GetFeed returns the viewer's current assembled feed, waiting for any
// in-flight page fetch to settle first. The first call for a viewer starts a
// session and loads page one.
func (s *FeedService) GetFeed(ctx context.Context, viewerID int64) (*feed.View, error) {
	sess := s.session(viewerID)
	view := sess.controller.WaitSettled(ctx)
	return s.renderView(ctx, viewerID, view), nil
}

// LoadMore appends the next page to the viewer's feed and returns the
// resulting view. A no-op when a fetch is already in flight or the feed is
// exhausted; from the error state it retries the failed slices.
func (s *FeedService) LoadMore(ctx context.Context, viewerID int64) (*feed.View, error) {
	sess := s.session(viewerID)
	sess.controller.LoadMore()
	view := sess.controller.WaitSettled(ctx)
	return s.renderView(ctx, viewerID, view), nil
}

// EndSession tears down the viewer's feed session, cancelling any in-flight
// fetch. Called on logout; the next GetFeed starts fresh.
func (s *FeedService) EndSession(viewerID int64) {
	s.mu.Lock()
	sess, ok := s.sessions[viewerID]
	if ok {
		delete(s.sessions, viewerID)
	}
	s.mu.Unlock()

	if ok {
		sess.controller.Close()
		log.Printf("[FeedService] Session ended: viewer=%d", viewerID)
	}
}

// Explore lists recent posts from outside the viewer's circle. The circle is
// excluded inside the query itself, so the page is full-sized regardless of
// how much the viewer's followees post.
func (s *FeedService) Explore(ctx context.Context, viewerID int64, cursor *string, limit int) (*model.PostListResponse, error) {
	limit = clampLimit(limit, s.cfg.PageSize, 50)

	after, err := decodePostCursor(cursor)
	if err != nil {
		return nil, err
	}

	exclude, err := s.followRepo.FolloweeIDs(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	exclude = append(exclude, viewerID)

	posts, err := s.postRepo.RecentPosts(ctx, exclude, after, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(posts) > limit
	if hasMore {
		posts = posts[:limit]
	}

	enrichPostAuthors(ctx, s.userRepo, posts)
	enrichPostViewerFlags(ctx, s.postRepo, viewerID, posts)

	var nextCursor *string
	if hasMore && len(posts) > 0 {
		last := posts[len(posts)-1]
		c := encodePostCursor(last.CreatedAt, last.ID)
		nextCursor = &c
	}

	return &model.PostListResponse{
		Posts:      posts,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// session returns the viewer's live session, starting one if needed.
func (s *FeedService) session(viewerID int64) *feedSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[viewerID]; ok {
		sess.lastAccess = time.Now()
		return sess
	}

	tracker := feed.NewTracker(s.source, viewerID)
	sess := &feedSession{
		controller: feed.NewController(s.engine, tracker, s.cfg),
		lastAccess: time.Now(),
	}
	s.sessions[viewerID] = sess
	log.Printf("[FeedService] Session started: viewer=%d", viewerID)
	return sess
}

// renderView copies the controller's post slice and enriches the copy with
// author summaries and viewer flags. The controller's own slice is never
// mutated.
func (s *FeedService) renderView(ctx context.Context, viewerID int64, view feed.View) *feed.View {
	posts := make([]model.Post, len(view.Posts))
	copy(posts, view.Posts)

	enrichPostAuthors(ctx, s.userRepo, posts)
	enrichPostViewerFlags(ctx, s.postRepo, viewerID, posts)

	view.Posts = posts
	return &view
}

// sweepIdle closes sessions that have not been touched within the TTL.
func (s *FeedService) sweepIdle() {
	defer close(s.done)

	interval := s.sessionTTL / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.sessionTTL)

			s.mu.Lock()
			var expired []*feedSession
			for viewerID, sess := range s.sessions {
				if sess.lastAccess.Before(cutoff) {
					delete(s.sessions, viewerID)
					expired = append(expired, sess)
					log.Printf("[FeedService] Session expired: viewer=%d", viewerID)
				}
			}
			s.mu.Unlock()

			for _, sess := range expired {
				sess.controller.Close()
			}
		}
	}
}

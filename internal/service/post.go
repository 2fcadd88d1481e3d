package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"circleshare/internal/feed"
	"circleshare/internal/model"
	"circleshare/internal/queue"
	"circleshare/internal/repository"
)

type PostService struct {
	postRepo  repository.PostRepository
	userRepo  repository.UserRepository
	publisher queue.Publisher
	db        *sqlx.DB
}

func NewPostService(
	postRepo repository.PostRepository,
	userRepo repository.UserRepository,
	publisher queue.Publisher,
	db *sqlx.DB,
) *PostService {
	return &PostService{
		postRepo:  postRepo,
		userRepo:  userRepo,
		publisher: publisher,
		db:        db,
	}
}

// Create shares a new recommendation. There is no write-time fan-out: the
// post becomes visible to followers when their next feed page is assembled.
func (s *PostService) Create(ctx context.Context, userID int64, req *model.CreatePostRequest) (*model.Post, error) {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return nil, model.ErrTitleRequired
	}
	if len(req.Title) > model.MaxPostTitleLength {
		return nil, model.ErrTitleTooLong
	}
	if len(req.Detail) > model.MaxPostDetailLength {
		return nil, model.ErrDetailTooLong
	}
	if _, ok := model.PostCategories[req.Category]; !ok {
		return nil, model.ErrInvalidCategory
	}

	post, err := s.postRepo.Create(ctx, userID, req)
	if err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}

	if author, err := s.userRepo.GetByID(ctx, userID); err == nil {
		post.Author = &model.UserSummary{
			ID:          author.ID,
			Username:    author.Username,
			DisplayName: author.DisplayName,
			AvatarURL:   author.AvatarURL,
		}
	}

	log.Printf("[PostService] Created post: id=%d author=%d category=%s", post.ID, userID, post.Category)
	return post, nil
}

// GetByID retrieves a single post with author info and viewer flags.
func (s *PostService) GetByID(ctx context.Context, postID int64, viewerID *int64) (*model.Post, error) {
	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}

	posts := []model.Post{*post}
	s.enrichAuthors(ctx, posts)
	if viewerID != nil {
		s.enrichViewerFlags(ctx, *viewerID, posts)
	}
	return &posts[0], nil
}

// Delete soft-deletes a post after validating ownership.
func (s *PostService) Delete(ctx context.Context, postID, userID int64) error {
	if err := s.postRepo.Delete(ctx, postID, userID); err != nil {
		return err
	}
	log.Printf("[PostService] Deleted post: id=%d author=%d", postID, userID)
	return nil
}

// GetUserPosts lists one author's posts for their profile page.
func (s *PostService) GetUserPosts(ctx context.Context, authorID int64, cursor *string, limit int, viewerID *int64) (*model.PostListResponse, error) {
	limit = clampLimit(limit, 10, 50)

	after, err := decodePostCursor(cursor)
	if err != nil {
		return nil, err
	}

	posts, err := s.postRepo.PostsByAuthor(ctx, authorID, after, limit+1)
	if err != nil {
		return nil, err
	}

	return s.buildPostList(ctx, posts, limit, viewerID), nil
}

// GetSavedPosts lists the viewer's bookmarked posts.
func (s *PostService) GetSavedPosts(ctx context.Context, viewerID int64, limit int) (*model.PostListResponse, error) {
	limit = clampLimit(limit, 20, 50)

	posts, err := s.postRepo.SavedPosts(ctx, viewerID, limit)
	if err != nil {
		return nil, err
	}

	s.enrichAuthors(ctx, posts)
	s.enrichViewerFlags(ctx, viewerID, posts)
	for i := range posts {
		posts[i].IsSaved = true
	}

	return &model.PostListResponse{Posts: posts, HasMore: false}, nil
}

// Like records a like and bumps the post's counter in one transaction.
func (s *PostService) Like(ctx context.Context, postID, userID int64) error {
	return s.react(ctx, postID, userID, reactionLike, true)
}

// Unlike removes a like and decrements the counter.
func (s *PostService) Unlike(ctx context.Context, postID, userID int64) error {
	return s.react(ctx, postID, userID, reactionLike, false)
}

// Save bookmarks a post and bumps the post's counter in one transaction.
func (s *PostService) Save(ctx context.Context, postID, userID int64) error {
	return s.react(ctx, postID, userID, reactionSave, true)
}

// Unsave removes a bookmark and decrements the counter.
func (s *PostService) Unsave(ctx context.Context, postID, userID int64) error {
	return s.react(ctx, postID, userID, reactionSave, false)
}

type reactionKind int

const (
	reactionLike reactionKind = iota
	reactionSave
)

func (s *PostService) react(ctx context.Context, postID, userID int64, kind reactionKind, add bool) error {
	exists, err := s.postRepo.Exists(ctx, postID)
	if err != nil {
		return fmt.Errorf("check post exists: %w", err)
	}
	if !exists {
		return model.ErrPostNotFound
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var changed bool
	switch {
	case kind == reactionLike && add:
		changed, err = s.postRepo.Like(ctx, tx, postID, userID)
	case kind == reactionLike && !add:
		changed, err = s.postRepo.Unlike(ctx, tx, postID, userID)
	case kind == reactionSave && add:
		changed, err = s.postRepo.Save(ctx, tx, postID, userID)
	default:
		changed, err = s.postRepo.Unsave(ctx, tx, postID, userID)
	}
	if err != nil {
		return err
	}
	if !changed {
		switch {
		case kind == reactionLike && add:
			return model.ErrAlreadyLiked
		case kind == reactionLike && !add:
			return model.ErrNotLiked
		case kind == reactionSave && add:
			return model.ErrAlreadySaved
		default:
			return model.ErrNotSaved
		}
	}

	delta := 1
	if !add {
		delta = -1
	}
	if kind == reactionLike {
		err = s.postRepo.IncrementLikeCount(ctx, tx, postID, delta)
	} else {
		err = s.postRepo.IncrementSaveCount(ctx, tx, postID, delta)
	}
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	// Notify the author on add only, after commit, best-effort.
	if add && s.publisher != nil {
		s.publishReaction(ctx, postID, userID, kind)
	}

	return nil
}

func (s *PostService) publishReaction(ctx context.Context, postID, userID int64, kind reactionKind) {
	authorID, err := s.postRepo.AuthorID(ctx, postID)
	if err != nil || authorID == userID {
		return
	}
	actor, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return
	}

	var event queue.SocialEvent
	if kind == reactionLike {
		event = queue.NewPostLikedEvent(postID, userID, authorID, displayName(actor))
	} else {
		event = queue.NewPostSavedEvent(postID, userID, authorID, displayName(actor))
	}
	if _, err := s.publisher.Publish(ctx, queue.StreamSocial, event); err != nil {
		log.Printf("[PostService] Failed to publish %s event: post=%d err=%v", event.Type, postID, err)
	}
}

// enrichAuthors attaches author summaries with one batch query.
func (s *PostService) enrichAuthors(ctx context.Context, posts []model.Post) {
	enrichPostAuthors(ctx, s.userRepo, posts)
}

// enrichViewerFlags attaches is_liked/is_saved with two batch queries.
func (s *PostService) enrichViewerFlags(ctx context.Context, viewerID int64, posts []model.Post) {
	enrichPostViewerFlags(ctx, s.postRepo, viewerID, posts)
}

func (s *PostService) buildPostList(ctx context.Context, posts []model.Post, limit int, viewerID *int64) *model.PostListResponse {
	hasMore := len(posts) > limit
	if hasMore {
		posts = posts[:limit]
	}

	s.enrichAuthors(ctx, posts)
	if viewerID != nil {
		s.enrichViewerFlags(ctx, *viewerID, posts)
	}

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
	}
}

// enrichPostAuthors attaches author summaries to posts with one batch query.
// Shared by the post, feed and explore paths.
func enrichPostAuthors(ctx context.Context, userRepo repository.UserRepository, posts []model.Post) {
	if len(posts) == 0 {
		return
	}

	idSet := make(map[int64]struct{}, len(posts))
	ids := make([]int64, 0, len(posts))
	for _, p := range posts {
		if _, ok := idSet[p.AuthorID]; !ok {
			idSet[p.AuthorID] = struct{}{}
			ids = append(ids, p.AuthorID)
		}
	}

	summaries, err := userRepo.Summaries(ctx, ids)
	if err != nil {
		log.Printf("[PostService] Failed to batch-fetch authors: %v", err)
		return
	}
	for i := range posts {
		if summary, ok := summaries[posts[i].AuthorID]; ok {
			s := summary
			posts[i].Author = &s
		}
	}
}

// enrichPostViewerFlags attaches is_liked/is_saved using two batch queries.
// Failures degrade to false flags rather than failing the listing.
func enrichPostViewerFlags(ctx context.Context, postRepo repository.PostRepository, viewerID int64, posts []model.Post) {
	if len(posts) == 0 {
		return
	}

	ids := make([]int64, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}

	if likes, err := postRepo.CheckLikes(ctx, viewerID, ids); err == nil {
		for i := range posts {
			posts[i].IsLiked = likes[posts[i].ID]
		}
	}
	if saves, err := postRepo.CheckSaves(ctx, viewerID, ids); err == nil {
		for i := range posts {
			posts[i].IsSaved = saves[posts[i].ID]
		}
	}
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// Post list cursors are "id:unix_nanos" over (created_at, id), matching the
// keyset ordering of the underlying queries.
func encodePostCursor(t time.Time, id int64) string {
	return fmt.Sprintf("%d:%d", id, t.UnixNano())
}

func decodePostCursor(cursor *string) (*feed.Cursor, error) {
	if cursor == nil || *cursor == "" {
		return nil, nil
	}
	parts := strings.Split(*cursor, ":")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid cursor format")
	}
	var id, nanos int64
	if _, err := fmt.Sscanf(parts[0], "%d", &id); err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &nanos); err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	return &feed.Cursor{CreatedAt: time.Unix(0, nanos), PostID: id}, nil
}

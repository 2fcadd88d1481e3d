package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"circleshare/internal/model"
	"circleshare/internal/queue"
	"circleshare/internal/repository"
)

type CommentService struct {
	commentRepo repository.CommentRepository
	postRepo    repository.PostRepository
	userRepo    repository.UserRepository
	db          *sqlx.DB
	publisher   queue.Publisher
}

func NewCommentService(
	commentRepo repository.CommentRepository,
	postRepo repository.PostRepository,
	userRepo repository.UserRepository,
	db *sqlx.DB,
	publisher queue.Publisher,
) *CommentService {
	return &CommentService{
		commentRepo: commentRepo,
		postRepo:    postRepo,
		userRepo:    userRepo,
		db:          db,
		publisher:   publisher,
	}
}

// Create adds a comment. The insert and the post's counter bump share one
// transaction.
func (s *CommentService) Create(ctx context.Context, postID, userID int64, req *model.CreateCommentRequest) (*model.Comment, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, model.ErrContentRequired
	}
	if len(content) > model.MaxCommentLength {
		return nil, model.ErrContentTooLong
	}

	exists, err := s.postRepo.Exists(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("check post exists: %w", err)
	}
	if !exists {
		return nil, model.ErrPostNotFound
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	comment, err := s.commentRepo.Create(ctx, tx, postID, userID, content)
	if err != nil {
		return nil, err
	}

	if err := s.postRepo.IncrementCommentCount(ctx, tx, postID, 1); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	author, err := s.userRepo.GetByID(ctx, userID)
	if err == nil {
		comment.Author = &model.UserSummary{
			ID:          author.ID,
			Username:    author.Username,
			DisplayName: author.DisplayName,
			AvatarURL:   author.AvatarURL,
		}
	}

	log.Printf("[CommentService] User %d commented on post %d", userID, postID)

	// Publish notification event (after commit, best-effort)
	if s.publisher != nil && author != nil {
		authorID, err := s.postRepo.AuthorID(ctx, postID)
		if err == nil && authorID != userID {
			event := queue.NewPostCommentedEvent(postID, userID, authorID, displayName(author))
			if _, err := s.publisher.Publish(ctx, queue.StreamSocial, event); err != nil {
				log.Printf("[CommentService] Failed to publish PostCommented event: %v", err)
			}
		}
	}

	return comment, nil
}

// Delete removes a comment and decrements the post counter in one transaction.
func (s *CommentService) Delete(ctx context.Context, commentID, userID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	postID, err := s.commentRepo.Delete(ctx, tx, commentID, userID)
	if err != nil {
		return err
	}

	if err := s.postRepo.IncrementCommentCount(ctx, tx, postID, -1); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	log.Printf("[CommentService] User %d deleted comment %d from post %d", userID, commentID, postID)
	return nil
}

// GetByPostID returns paginated comments for a post, newest first.
func (s *CommentService) GetByPostID(ctx context.Context, postID int64, cursor *string, limit int) (*model.CommentListResponse, error) {
	limit = clampLimit(limit, 10, 50)

	exists, err := s.postRepo.Exists(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("check post exists: %w", err)
	}
	if !exists {
		return nil, model.ErrPostNotFound
	}

	var after *time.Time
	if cursor != nil && *cursor != "" {
		t, err := time.Parse(time.RFC3339Nano, *cursor)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor: %w", err)
		}
		after = &t
	}

	comments, nextCursor, err := s.commentRepo.GetByPostID(ctx, postID, after, limit)
	if err != nil {
		return nil, fmt.Errorf("get comments: %w", err)
	}

	var finalCursor *string
	if nextCursor != nil {
		str := nextCursor.Format(time.RFC3339Nano)
		finalCursor = &str
	}

	return &model.CommentListResponse{
		Comments:   comments,
		NextCursor: finalCursor,
		HasMore:    nextCursor != nil,
	}, nil
}

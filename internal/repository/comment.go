package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"circleshare/internal/model"
)

type commentRepository struct {
	db *sqlx.DB
}

func NewCommentRepository(db *sqlx.DB) CommentRepository {
	return &commentRepository{db: db}
}

func (r *commentRepository) Create(ctx context.Context, tx *sqlx.Tx, postID, userID int64, content string) (*model.Comment, error) {
	query := `
		INSERT INTO comments (post_id, user_id, content, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, post_id, user_id, content, created_at
	`
	var c model.Comment
	if err := tx.GetContext(ctx, &c, query, postID, userID, content); err != nil {
		return nil, fmt.Errorf("insert comment: %w", err)
	}
	return &c, nil
}

// Delete removes a comment owned by userID and reports which post it
// belonged to, so the caller can decrement that post's counter.
func (r *commentRepository) Delete(ctx context.Context, tx *sqlx.Tx, commentID, userID int64) (int64, error) {
	var postID int64
	err := tx.GetContext(ctx, &postID,
		`DELETE FROM comments WHERE id = $1 AND user_id = $2 RETURNING post_id`,
		commentID, userID)
	if err == sql.ErrNoRows {
		var exists bool
		tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM comments WHERE id = $1)`, commentID)
		if exists {
			return 0, model.ErrNotCommentOwner
		}
		return 0, model.ErrCommentNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("delete comment: %w", err)
	}
	return postID, nil
}

// GetByPostID returns paginated comments for a post, newest first.
func (r *commentRepository) GetByPostID(ctx context.Context, postID int64, cursor *time.Time, limit int) ([]model.Comment, *time.Time, error) {
	var query string
	var args []interface{}

	if cursor == nil {
		query = `
			SELECT c.id, c.post_id, c.user_id, c.content, c.created_at,
			       u.id as "author.id", u.username as "author.username",
			       u.display_name as "author.display_name", u.avatar_url as "author.avatar_url"
			FROM comments c
			JOIN users u ON u.id = c.user_id
			WHERE c.post_id = $1
			ORDER BY c.created_at DESC, c.id DESC
			LIMIT $2
		`
		args = []interface{}{postID, limit + 1}
	} else {
		query = `
			SELECT c.id, c.post_id, c.user_id, c.content, c.created_at,
			       u.id as "author.id", u.username as "author.username",
			       u.display_name as "author.display_name", u.avatar_url as "author.avatar_url"
			FROM comments c
			JOIN users u ON u.id = c.user_id
			WHERE c.post_id = $1 AND c.created_at < $2
			ORDER BY c.created_at DESC, c.id DESC
			LIMIT $3
		`
		args = []interface{}{postID, *cursor, limit + 1}
	}

	// Use a struct that can scan the joined author data
	type commentRow struct {
		ID             int64     `db:"id"`
		PostID         int64     `db:"post_id"`
		UserID         int64     `db:"user_id"`
		Content        string    `db:"content"`
		CreatedAt      time.Time `db:"created_at"`
		AuthorID       int64     `db:"author.id"`
		AuthorUsername string    `db:"author.username"`
		AuthorDisplay  *string   `db:"author.display_name"`
		AuthorAvatar   *string   `db:"author.avatar_url"`
	}

	var rows []commentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, nil, fmt.Errorf("get comments: %w", err)
	}

	comments := make([]model.Comment, len(rows))
	for i, row := range rows {
		comments[i] = model.Comment{
			ID:        row.ID,
			PostID:    row.PostID,
			UserID:    row.UserID,
			Content:   row.Content,
			CreatedAt: row.CreatedAt,
			Author: &model.UserSummary{
				ID:          row.AuthorID,
				Username:    row.AuthorUsername,
				DisplayName: row.AuthorDisplay,
				AvatarURL:   row.AuthorAvatar,
			},
		}
	}

	var nextCursor *time.Time
	if len(comments) > limit {
		comments = comments[:limit]
		t := comments[len(comments)-1].CreatedAt
		nextCursor = &t
	}
	return comments, nextCursor, nil
}

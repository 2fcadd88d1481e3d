package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"circleshare/internal/feed"
	"circleshare/internal/model"
)

type postRepository struct {
	db *sqlx.DB
}

func NewPostRepository(db *sqlx.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, author_id, title, detail, category, image_url, loc_lat, loc_lng, loc_address,
       likes_count, comments_count, saves_count, created_at, updated_at`

// Create inserts a new recommendation post.
func (r *postRepository) Create(ctx context.Context, authorID int64, req *model.CreatePostRequest) (*model.Post, error) {
	query := `
		INSERT INTO posts (author_id, title, detail, category, image_url, loc_lat, loc_lng, loc_address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING ` + postColumns

	var p model.Post
	err := r.db.GetContext(ctx, &p, query,
		authorID, req.Title, req.Detail, req.Category,
		req.ImageURL, req.LocLat, req.LocLng, req.LocAddress)
	if err != nil {
		return nil, fmt.Errorf("insert post: %w", err)
	}
	return &p, nil
}

func (r *postRepository) GetByID(ctx context.Context, postID int64) (*model.Post, error) {
	var p model.Post
	err := r.db.GetContext(ctx, &p,
		`SELECT `+postColumns+` FROM posts WHERE id = $1 AND deleted_at IS NULL`, postID)
	if err == sql.ErrNoRows {
		return nil, model.ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post by id: %w", err)
	}
	return &p, nil
}

// Delete soft-deletes a post. Only the author can delete.
func (r *postRepository) Delete(ctx context.Context, postID, authorID int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE posts SET deleted_at = NOW() WHERE id = $1 AND author_id = $2 AND deleted_at IS NULL`,
		postID, authorID)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		var exists bool
		r.db.GetContext(ctx, &exists,
			`SELECT EXISTS(SELECT 1 FROM posts WHERE id = $1 AND deleted_at IS NULL)`, postID)
		if exists {
			return model.ErrNotPostOwner
		}
		return model.ErrPostNotFound
	}
	return nil
}

func (r *postRepository) Exists(ctx context.Context, postID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM posts WHERE id = $1 AND deleted_at IS NULL)`, postID)
	if err != nil {
		return false, fmt.Errorf("check post exists: %w", err)
	}
	return exists, nil
}

// AuthorID returns the author of a post (for event publishing).
func (r *postRepository) AuthorID(ctx context.Context, postID int64) (int64, error) {
	var authorID int64
	err := r.db.GetContext(ctx, &authorID, `SELECT author_id FROM posts WHERE id = $1`, postID)
	if err == sql.ErrNoRows {
		return 0, model.ErrPostNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get author id: %w", err)
	}
	return authorID, nil
}

// PostsByAuthors is the per-chunk containment query. The ceiling on
// len(authorIDs) mirrors the document-store limit the feed was designed
// around; enforcing it here keeps an oversized chunk from silently turning
// into an unbounded scan.
//
// Resumption uses a (created_at, id) row comparison so posts sharing a
// timestamp still paginate deterministically.
func (r *postRepository) PostsByAuthors(ctx context.Context, authorIDs []int64, after *feed.Cursor, limit int) ([]model.Post, error) {
	if len(authorIDs) == 0 {
		return nil, nil
	}
	if len(authorIDs) > MaxAuthorsPerContainment {
		return nil, fmt.Errorf("containment query names %d authors, ceiling is %d",
			len(authorIDs), MaxAuthorsPerContainment)
	}

	var query string
	var args []interface{}

	if after == nil {
		query = `
			SELECT ` + postColumns + `
			FROM posts
			WHERE author_id = ANY($1) AND deleted_at IS NULL
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`
		args = []interface{}{pq.Array(authorIDs), limit}
	} else {
		query = `
			SELECT ` + postColumns + `
			FROM posts
			WHERE author_id = ANY($1) AND deleted_at IS NULL
			  AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4
		`
		args = []interface{}{pq.Array(authorIDs), after.CreatedAt, after.PostID, limit}
	}

	var posts []model.Post
	if err := r.db.SelectContext(ctx, &posts, query, args...); err != nil {
		return nil, fmt.Errorf("posts by authors: %w", err)
	}
	return posts, nil
}

// RecentPosts backs the explore feed: newest posts from everyone except the
// excluded authors (the viewer's own circle). The exclusion is part of the
// query, not a client-side filter over an unbounded read.
func (r *postRepository) RecentPosts(ctx context.Context, excludeAuthors []int64, after *feed.Cursor, limit int) ([]model.Post, error) {
	var query string
	var args []interface{}

	if after == nil {
		query = `
			SELECT ` + postColumns + `
			FROM posts
			WHERE deleted_at IS NULL AND NOT (author_id = ANY($1))
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`
		args = []interface{}{pq.Array(excludeAuthors), limit}
	} else {
		query = `
			SELECT ` + postColumns + `
			FROM posts
			WHERE deleted_at IS NULL AND NOT (author_id = ANY($1))
			  AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4
		`
		args = []interface{}{pq.Array(excludeAuthors), after.CreatedAt, after.PostID, limit}
	}

	var posts []model.Post
	if err := r.db.SelectContext(ctx, &posts, query, args...); err != nil {
		return nil, fmt.Errorf("recent posts: %w", err)
	}
	return posts, nil
}

// PostsByAuthor lists one author's posts for profile pages.
func (r *postRepository) PostsByAuthor(ctx context.Context, authorID int64, after *feed.Cursor, limit int) ([]model.Post, error) {
	var query string
	var args []interface{}

	if after == nil {
		query = `
			SELECT ` + postColumns + `
			FROM posts
			WHERE author_id = $1 AND deleted_at IS NULL
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`
		args = []interface{}{authorID, limit}
	} else {
		query = `
			SELECT ` + postColumns + `
			FROM posts
			WHERE author_id = $1 AND deleted_at IS NULL
			  AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4
		`
		args = []interface{}{authorID, after.CreatedAt, after.PostID, limit}
	}

	var posts []model.Post
	if err := r.db.SelectContext(ctx, &posts, query, args...); err != nil {
		return nil, fmt.Errorf("posts by author: %w", err)
	}
	return posts, nil
}

// SavedPosts lists the viewer's saved posts, most recently saved first.
func (r *postRepository) SavedPosts(ctx context.Context, userID int64, limit int) ([]model.Post, error) {
	query := `
		SELECT ` + prefixedPostColumns("p") + `
		FROM post_saves s
		JOIN posts p ON p.id = s.post_id AND p.deleted_at IS NULL
		WHERE s.user_id = $1
		ORDER BY s.created_at DESC
		LIMIT $2
	`
	var posts []model.Post
	if err := r.db.SelectContext(ctx, &posts, query, userID, limit); err != nil {
		return nil, fmt.Errorf("saved posts: %w", err)
	}
	return posts, nil
}

// Like records a like. Returns false when the post was already liked.
func (r *postRepository) Like(ctx context.Context, tx *sqlx.Tx, postID, userID int64) (bool, error) {
	return r.insertReaction(ctx, tx, "post_likes", postID, userID)
}

// Unlike removes a like. Returns false when there was nothing to remove.
func (r *postRepository) Unlike(ctx context.Context, tx *sqlx.Tx, postID, userID int64) (bool, error) {
	return r.deleteReaction(ctx, tx, "post_likes", postID, userID)
}

// Save records a bookmark. Returns false when already saved.
func (r *postRepository) Save(ctx context.Context, tx *sqlx.Tx, postID, userID int64) (bool, error) {
	return r.insertReaction(ctx, tx, "post_saves", postID, userID)
}

// Unsave removes a bookmark. Returns false when there was nothing to remove.
func (r *postRepository) Unsave(ctx context.Context, tx *sqlx.Tx, postID, userID int64) (bool, error) {
	return r.deleteReaction(ctx, tx, "post_saves", postID, userID)
}

func (r *postRepository) insertReaction(ctx context.Context, tx *sqlx.Tx, table string, postID, userID int64) (bool, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (post_id, user_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (post_id, user_id) DO NOTHING
	`, table)
	result, err := tx.ExecContext(ctx, query, postID, userID)
	if err != nil {
		return false, fmt.Errorf("insert %s: %w", table, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *postRepository) deleteReaction(ctx context.Context, tx *sqlx.Tx, table string, postID, userID int64) (bool, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE post_id = $1 AND user_id = $2`, table)
	result, err := tx.ExecContext(ctx, query, postID, userID)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", table, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// CheckLikes batch-checks which of postIDs the user has liked.
func (r *postRepository) CheckLikes(ctx context.Context, userID int64, postIDs []int64) (map[int64]bool, error) {
	return r.checkReactions(ctx, "post_likes", userID, postIDs)
}

// CheckSaves batch-checks which of postIDs the user has saved.
func (r *postRepository) CheckSaves(ctx context.Context, userID int64, postIDs []int64) (map[int64]bool, error) {
	return r.checkReactions(ctx, "post_saves", userID, postIDs)
}

func (r *postRepository) checkReactions(ctx context.Context, table string, userID int64, postIDs []int64) (map[int64]bool, error) {
	if len(postIDs) == 0 {
		return make(map[int64]bool), nil
	}

	query := fmt.Sprintf(`SELECT post_id FROM %s WHERE user_id = $1 AND post_id = ANY($2)`, table)
	var matched []int64
	err := r.db.SelectContext(ctx, &matched, query, userID, pq.Array(postIDs))
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("check %s: %w", table, err)
	}

	result := make(map[int64]bool, len(postIDs))
	for _, id := range postIDs {
		result[id] = false
	}
	for _, id := range matched {
		result[id] = true
	}
	return result, nil
}

func (r *postRepository) IncrementLikeCount(ctx context.Context, tx *sqlx.Tx, postID int64, delta int) error {
	return r.incrementCounter(ctx, tx, "likes_count", postID, delta)
}

func (r *postRepository) IncrementSaveCount(ctx context.Context, tx *sqlx.Tx, postID int64, delta int) error {
	return r.incrementCounter(ctx, tx, "saves_count", postID, delta)
}

func (r *postRepository) IncrementCommentCount(ctx context.Context, tx *sqlx.Tx, postID int64, delta int) error {
	return r.incrementCounter(ctx, tx, "comments_count", postID, delta)
}

func (r *postRepository) incrementCounter(ctx context.Context, tx *sqlx.Tx, column string, postID int64, delta int) error {
	query := fmt.Sprintf(`UPDATE posts SET %s = GREATEST(%s + $1, 0) WHERE id = $2`, column, column)
	if _, err := tx.ExecContext(ctx, query, delta, postID); err != nil {
		return fmt.Errorf("update %s: %w", column, err)
	}
	return nil
}

func prefixedPostColumns(alias string) string {
	return alias + `.id, ` + alias + `.author_id, ` + alias + `.title, ` + alias + `.detail, ` +
		alias + `.category, ` + alias + `.image_url, ` + alias + `.loc_lat, ` + alias + `.loc_lng, ` +
		alias + `.loc_address, ` + alias + `.likes_count, ` + alias + `.comments_count, ` +
		alias + `.saves_count, ` + alias + `.created_at, ` + alias + `.updated_at`
}

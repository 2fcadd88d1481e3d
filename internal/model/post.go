package model

import (
	"errors"
	"time"
)

// Post represents one recommendation shared to the author's circle.
type Post struct {
	ID            int64      `db:"id" json:"id"`
	AuthorID      int64      `db:"author_id" json:"author_id"`
	Title         string     `db:"title" json:"title"`
	Detail        string     `db:"detail" json:"detail"`
	Category      string     `db:"category" json:"category"`
	ImageURL      *string    `db:"image_url" json:"image_url,omitempty"`
	LocLat        *float64   `db:"loc_lat" json:"loc_lat,omitempty"`
	LocLng        *float64   `db:"loc_lng" json:"loc_lng,omitempty"`
	LocAddress    *string    `db:"loc_address" json:"loc_address,omitempty"`
	LikesCount    int        `db:"likes_count" json:"likes_count"`
	CommentsCount int        `db:"comments_count" json:"comments_count"`
	SavesCount    int        `db:"saves_count" json:"saves_count"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt     *time.Time `db:"deleted_at" json:"-"`

	// Joined fields (not in posts table)
	Author  *UserSummary `json:"author,omitempty"`
	IsLiked bool         `json:"is_liked"`
	IsSaved bool         `json:"is_saved"`
}

// CreatePostRequest is the request body for sharing a recommendation.
type CreatePostRequest struct {
	Title      string   `json:"title"`
	Detail     string   `json:"detail"`
	Category   string   `json:"category"`
	ImageURL   *string  `json:"image_url"`
	LocLat     *float64 `json:"loc_lat"`
	LocLng     *float64 `json:"loc_lng"`
	LocAddress *string  `json:"loc_address"`
}

// PostListResponse is a keyset-paginated post list (explore, profile, saved).
type PostListResponse struct {
	Posts      []Post  `json:"posts"`
	NextCursor *string `json:"next_cursor,omitempty"`
	HasMore    bool    `json:"has_more"`
}

// Post constraints
const (
	MaxPostTitleLength  = 200
	MaxPostDetailLength = 2200
)

// Recommendation categories
var PostCategories = map[string]struct{}{
	"movie": {},
	"book":  {},
	"music": {},
	"place": {},
	"other": {},
}

// Post errors
var (
	ErrPostNotFound    = errors.New("post not found")
	ErrNotPostOwner    = errors.New("not the owner of this post")
	ErrTitleRequired   = errors.New("title is required")
	ErrTitleTooLong    = errors.New("title too long")
	ErrDetailTooLong   = errors.New("detail too long")
	ErrInvalidCategory = errors.New("invalid category")
	ErrAlreadyLiked    = errors.New("post already liked")
	ErrNotLiked        = errors.New("post not liked")
	ErrAlreadySaved    = errors.New("post already saved")
	ErrNotSaved        = errors.New("post not saved")
)

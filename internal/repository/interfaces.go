package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"circleshare/internal/feed"
	"circleshare/internal/model"
)

// MaxAuthorsPerContainment is the post store's ceiling on how many distinct
// author ids a single containment filter may name. The chunked feed planner
// must keep its chunk size at or below this value.
const MaxAuthorsPerContainment = 10

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	Search(ctx context.Context, query string, limit int) ([]model.UserSummary, error)
	// Summaries batch-fetches display info for a set of user ids.
	Summaries(ctx context.Context, ids []int64) (map[int64]model.UserSummary, error)
	UpdateProfile(ctx context.Context, userID int64, req *model.UpdateProfileRequest) (*model.User, error)
	IncrementFollowerCount(ctx context.Context, tx *sqlx.Tx, userID int64, delta int) error
	IncrementFollowingCount(ctx context.Context, tx *sqlx.Tx, userID int64, delta int) error
}

type FollowRepository interface {
	Create(ctx context.Context, tx *sqlx.Tx, followerID, followeeID int64) (bool, error)
	Delete(ctx context.Context, tx *sqlx.Tx, followerID, followeeID int64) error
	Exists(ctx context.Context, followerID, followeeID int64) (bool, error)
	GetFollowers(ctx context.Context, userID int64, cursor *time.Time, limit int) ([]model.UserSummary, *time.Time, error)
	GetFollowing(ctx context.Context, userID int64, cursor *time.Time, limit int) ([]model.UserSummary, *time.Time, error)
	CheckFollows(ctx context.Context, followerID int64, followeeIDs []int64) (map[int64]bool, error)
	// FolloweeIDs backs the live follow-set tracker.
	FolloweeIDs(ctx context.Context, userID int64) ([]int64, error)
}

type PostRepository interface {
	Create(ctx context.Context, authorID int64, req *model.CreatePostRequest) (*model.Post, error)
	GetByID(ctx context.Context, postID int64) (*model.Post, error)
	Delete(ctx context.Context, postID, authorID int64) error
	Exists(ctx context.Context, postID int64) (bool, error)
	AuthorID(ctx context.Context, postID int64) (int64, error)

	// PostsByAuthors is the bounded containment query the fan-out engine
	// runs once per chunk: author_id in the given set, created_at
	// descending, resuming strictly after the cursor. Errors when the
	// author list exceeds MaxAuthorsPerContainment.
	PostsByAuthors(ctx context.Context, authorIDs []int64, after *feed.Cursor, limit int) ([]model.Post, error)

	// RecentPosts backs the explore feed: all posts except the excluded
	// authors, keyset-paginated. Exclusion happens query-side.
	RecentPosts(ctx context.Context, excludeAuthors []int64, after *feed.Cursor, limit int) ([]model.Post, error)

	// PostsByAuthor backs profile pages.
	PostsByAuthor(ctx context.Context, authorID int64, after *feed.Cursor, limit int) ([]model.Post, error)

	// SavedPosts lists the viewer's saved posts, most recently saved first.
	SavedPosts(ctx context.Context, userID int64, limit int) ([]model.Post, error)

	Like(ctx context.Context, tx *sqlx.Tx, postID, userID int64) (bool, error)
	Unlike(ctx context.Context, tx *sqlx.Tx, postID, userID int64) (bool, error)
	Save(ctx context.Context, tx *sqlx.Tx, postID, userID int64) (bool, error)
	Unsave(ctx context.Context, tx *sqlx.Tx, postID, userID int64) (bool, error)
	CheckLikes(ctx context.Context, userID int64, postIDs []int64) (map[int64]bool, error)
	CheckSaves(ctx context.Context, userID int64, postIDs []int64) (map[int64]bool, error)
	IncrementLikeCount(ctx context.Context, tx *sqlx.Tx, postID int64, delta int) error
	IncrementSaveCount(ctx context.Context, tx *sqlx.Tx, postID int64, delta int) error
	IncrementCommentCount(ctx context.Context, tx *sqlx.Tx, postID int64, delta int) error
}

type CommentRepository interface {
	Create(ctx context.Context, tx *sqlx.Tx, postID, userID int64, content string) (*model.Comment, error)
	Delete(ctx context.Context, tx *sqlx.Tx, commentID, userID int64) (postID int64, err error)
	GetByPostID(ctx context.Context, postID int64, cursor *time.Time, limit int) ([]model.Comment, *time.Time, error)
}

type NotificationRepository interface {
	// Create inserts a new notification.
	Create(ctx context.Context, userID, actorID int64, actorName, kind string, sourceID int64) error
	// List returns recent notifications plus the unread count.
	List(ctx context.Context, userID int64, limit int) ([]model.Notification, int, error)
	// MarkAsRead marks specific notifications as read.
	MarkAsRead(ctx context.Context, userID int64, notificationIDs []int64) error
	// MarkAllAsRead marks all notifications for a user as read.
	MarkAllAsRead(ctx context.Context, userID int64) error
}

package model

import "time"

// Notification kinds
const (
	NotificationKindFollow  = "follow"
	NotificationKindLike    = "like"
	NotificationKindSave    = "save"
	NotificationKindComment = "comment"
	NotificationKindMessage = "message"
)

// Notification is one entry in a user's notification inbox.
// ActorName is denormalized at write time to avoid a join on every list.
type Notification struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"-"`         // Recipient
	ActorID   int64     `db:"actor_id" json:"actor_id"` // Who triggered it
	ActorName string    `db:"actor_name" json:"actor_name"`
	Kind      string    `db:"kind" json:"kind"`
	SourceID  int64     `db:"source_id" json:"source_id"` // Post ID or actor's user ID
	IsRead    bool      `db:"is_read" json:"is_read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// NotificationListResponse is the notification inbox response.
type NotificationListResponse struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unread_count"`
}

// MarkReadRequest is the request body for marking notifications as read.
type MarkReadRequest struct {
	NotificationIDs []int64 `json:"notification_ids"`
}

package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types for the social stream
const (
	EventUserFollowed   = "user_followed"
	EventUserUnfollowed = "user_unfollowed"
	EventPostLiked      = "post_liked"
	EventPostSaved      = "post_saved"
	EventPostCommented  = "post_commented"
)

// Stream names
const (
	StreamSocial = "stream:social"
)

// Consumer group name for social workers
const (
	ConsumerGroupSocial = "social_workers"
)

// SocialEvent represents an event published to the social stream.
// All follow/reaction events share this structure.
type SocialEvent struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"` // Unix timestamp when event occurred

	// Who triggered the event. ActorName is carried along so the
	// notification write needs no extra user fetch.
	ActorID   int64  `json:"actor_id,omitempty"`
	ActorName string `json:"actor_name,omitempty"`

	// Reaction events (PostLiked, PostSaved, PostCommented)
	PostID      int64 `json:"post_id,omitempty"`
	RecipientID int64 `json:"recipient_id,omitempty"`

	// Follow events (UserFollowed, UserUnfollowed)
	FollowerID int64 `json:"follower_id,omitempty"`
	FolloweeID int64 `json:"followee_id,omitempty"`
}

// NewUserFollowedEvent creates an event for when a user follows another.
// Worker invalidates the follower's live follow set and notifies the followee.
func NewUserFollowedEvent(followerID, followeeID int64, followerName string) SocialEvent {
	return SocialEvent{
		Type:       EventUserFollowed,
		Timestamp:  time.Now().Unix(),
		ActorID:    followerID,
		ActorName:  followerName,
		FollowerID: followerID,
		FolloweeID: followeeID,
	}
}

// NewUserUnfollowedEvent creates an event for when a user unfollows another.
// Worker invalidates the follower's live follow set; no notification.
func NewUserUnfollowedEvent(followerID, followeeID int64) SocialEvent {
	return SocialEvent{
		Type:       EventUserUnfollowed,
		Timestamp:  time.Now().Unix(),
		ActorID:    followerID,
		FollowerID: followerID,
		FolloweeID: followeeID,
	}
}

// NewPostLikedEvent creates an event for when a user likes a post.
func NewPostLikedEvent(postID, actorID, recipientID int64, actorName string) SocialEvent {
	return SocialEvent{
		Type:        EventPostLiked,
		Timestamp:   time.Now().Unix(),
		ActorID:     actorID,
		ActorName:   actorName,
		PostID:      postID,
		RecipientID: recipientID,
	}
}

// NewPostSavedEvent creates an event for when a user saves a post.
func NewPostSavedEvent(postID, actorID, recipientID int64, actorName string) SocialEvent {
	return SocialEvent{
		Type:        EventPostSaved,
		Timestamp:   time.Now().Unix(),
		ActorID:     actorID,
		ActorName:   actorName,
		PostID:      postID,
		RecipientID: recipientID,
	}
}

// NewPostCommentedEvent creates an event for when a user comments on a post.
func NewPostCommentedEvent(postID, actorID, recipientID int64, actorName string) SocialEvent {
	return SocialEvent{
		Type:        EventPostCommented,
		Timestamp:   time.Now().Unix(),
		ActorID:     actorID,
		ActorName:   actorName,
		PostID:      postID,
		RecipientID: recipientID,
	}
}

// ToMap converts the event to a map for Redis XADD.
// Redis Streams store field-value pairs, so the event is serialized to JSON
// in a "data" field alongside the bare type for quick inspection.
func (e SocialEvent) ToMap() (map[string]interface{}, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return map[string]interface{}{
		"type": e.Type,
		"data": string(data),
	}, nil
}

// ParseSocialEvent parses a SocialEvent from Redis stream message values.
func ParseSocialEvent(values map[string]interface{}) (SocialEvent, error) {
	data, ok := values["data"].(string)
	if !ok {
		return SocialEvent{}, fmt.Errorf("missing or invalid 'data' field")
	}

	var event SocialEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return SocialEvent{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return event, nil
}

package worker

import (
	"context"
	"fmt"
	"log"

	"circleshare/internal/model"
	"circleshare/internal/queue"
)

// FeedInvalidator pokes live feed sessions when a viewer's follow set
// changes. In-process this is the feed hub.
type FeedInvalidator interface {
	Invalidate(viewerID int64)
}

// NotificationSink delivers a notification, fire-and-forget semantics: the
// sink itself no-ops on self-notification, and callers only log failures.
type NotificationSink interface {
	Notify(ctx context.Context, receiverID, senderID int64, senderName, kind string, sourceID int64) error
}

// Handler processes social events from the queue: follow-graph changes
// invalidate the follower's live feed, and reactions turn into notifications.
type Handler struct {
	invalidator FeedInvalidator
	sink        NotificationSink
}

// NewHandler creates a new event handler.
func NewHandler(invalidator FeedInvalidator, sink NotificationSink) *Handler {
	return &Handler{invalidator: invalidator, sink: sink}
}

// HandleEvent routes an event to the appropriate handler based on type.
func (h *Handler) HandleEvent(ctx context.Context, event queue.SocialEvent) error {
	switch event.Type {
	case queue.EventUserFollowed:
		return h.handleUserFollowed(ctx, event)
	case queue.EventUserUnfollowed:
		return h.handleUserUnfollowed(ctx, event)
	case queue.EventPostLiked:
		return h.notify(ctx, event, model.NotificationKindLike, event.PostID)
	case queue.EventPostSaved:
		return h.notify(ctx, event, model.NotificationKindSave, event.PostID)
	case queue.EventPostCommented:
		return h.notify(ctx, event, model.NotificationKindComment, event.PostID)
	default:
		log.Printf("[Worker] Unknown event type: %s", event.Type)
		return fmt.Errorf("unknown event type: %s", event.Type)
	}
}

// handleUserFollowed invalidates the follower's live follow set and notifies
// the followee. The invalidation is what makes open feed sessions reset and
// replan their chunks against the new set.
func (h *Handler) handleUserFollowed(ctx context.Context, event queue.SocialEvent) error {
	log.Printf("[Worker] UserFollowed: follower=%d followee=%d", event.FollowerID, event.FolloweeID)

	h.invalidator.Invalidate(event.FollowerID)

	if err := h.sink.Notify(ctx, event.FolloweeID, event.FollowerID, event.ActorName,
		model.NotificationKindFollow, event.FollowerID); err != nil {
		// Notification failures never propagate to the triggering action.
		log.Printf("[Worker] UserFollowed: notify failed: %v", err)
	}
	return nil
}

// handleUserUnfollowed invalidates the follower's live follow set. Already
// delivered posts stay in open sessions; the reset excludes them going
// forward.
func (h *Handler) handleUserUnfollowed(ctx context.Context, event queue.SocialEvent) error {
	log.Printf("[Worker] UserUnfollowed: follower=%d followee=%d", event.FollowerID, event.FolloweeID)
	h.invalidator.Invalidate(event.FollowerID)
	return nil
}

func (h *Handler) notify(ctx context.Context, event queue.SocialEvent, kind string, sourceID int64) error {
	if err := h.sink.Notify(ctx, event.RecipientID, event.ActorID, event.ActorName, kind, sourceID); err != nil {
		log.Printf("[Worker] %s: notify failed: %v", event.Type, err)
	}
	return nil
}

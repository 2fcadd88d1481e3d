package worker

import (
	"context"
	"errors"
	"testing"

	"circleshare/internal/model"
	"circleshare/internal/queue"
)

type mockInvalidator struct {
	calls []int64
}

func (m *mockInvalidator) Invalidate(viewerID int64) {
	m.calls = append(m.calls, viewerID)
}

type notifyCall struct {
	ReceiverID int64
	SenderID   int64
	SenderName string
	Kind       string
	SourceID   int64
}

type mockSink struct {
	notifyFn func(ctx context.Context, receiverID, senderID int64, senderName, kind string, sourceID int64) error
	calls    []notifyCall
}

func (m *mockSink) Notify(ctx context.Context, receiverID, senderID int64, senderName, kind string, sourceID int64) error {
	m.calls = append(m.calls, notifyCall{receiverID, senderID, senderName, kind, sourceID})
	if m.notifyFn != nil {
		return m.notifyFn(ctx, receiverID, senderID, senderName, kind, sourceID)
	}
	return nil
}

func TestHandleEvent_UserFollowed(t *testing.T) {
	inv := &mockInvalidator{}
	sink := &mockSink{}
	h := NewHandler(inv, sink)

	event := queue.NewUserFollowedEvent(10, 20, "alice")
	if err := h.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	// The follower's live feed replans against the grown set.
	if len(inv.calls) != 1 || inv.calls[0] != 10 {
		t.Errorf("Invalidate calls = %v, want the follower's feed poked", inv.calls)
	}
	if len(sink.calls) != 1 {
		t.Fatalf("Notify calls = %d, want 1", len(sink.calls))
	}
	got := sink.calls[0]
	if got.ReceiverID != 20 || got.SenderID != 10 || got.Kind != model.NotificationKindFollow {
		t.Errorf("notify = %+v, want followee notified of the follow", got)
	}
}

func TestHandleEvent_UserUnfollowed(t *testing.T) {
	inv := &mockInvalidator{}
	sink := &mockSink{}
	h := NewHandler(inv, sink)

	event := queue.NewUserUnfollowedEvent(10, 20)
	if err := h.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	if len(inv.calls) != 1 || inv.calls[0] != 10 {
		t.Errorf("Invalidate calls = %v, want [10]", inv.calls)
	}
	if len(sink.calls) != 0 {
		t.Errorf("unfollow must not notify anyone, got %+v", sink.calls)
	}
}

func TestHandleEvent_Reactions(t *testing.T) {
	cases := []struct {
		name  string
		event queue.SocialEvent
		kind  string
	}{
		{"like", queue.NewPostLikedEvent(5, 10, 20, "alice"), model.NotificationKindLike},
		{"save", queue.NewPostSavedEvent(5, 10, 20, "alice"), model.NotificationKindSave},
		{"comment", queue.NewPostCommentedEvent(5, 10, 20, "alice"), model.NotificationKindComment},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inv := &mockInvalidator{}
			sink := &mockSink{}
			h := NewHandler(inv, sink)

			if err := h.HandleEvent(context.Background(), tc.event); err != nil {
				t.Fatalf("HandleEvent failed: %v", err)
			}
			if len(inv.calls) != 0 {
				t.Errorf("reactions must not invalidate feeds, got %v", inv.calls)
			}
			if len(sink.calls) != 1 {
				t.Fatalf("Notify calls = %d, want 1", len(sink.calls))
			}
			got := sink.calls[0]
			if got.ReceiverID != 20 || got.SenderID != 10 || got.Kind != tc.kind || got.SourceID != 5 {
				t.Errorf("notify = %+v", got)
			}
		})
	}
}

func TestHandleEvent_NotifyFailureNotPropagated(t *testing.T) {
	sink := &mockSink{
		notifyFn: func(ctx context.Context, receiverID, senderID int64, senderName, kind string, sourceID int64) error {
			return errors.New("notification store down")
		},
	}
	h := NewHandler(&mockInvalidator{}, sink)

	// Notification delivery is best-effort: the event is still acked.
	if err := h.HandleEvent(context.Background(), queue.NewUserFollowedEvent(10, 20, "alice")); err != nil {
		t.Errorf("notify failure must not fail the event: %v", err)
	}
	if err := h.HandleEvent(context.Background(), queue.NewPostLikedEvent(5, 10, 20, "alice")); err != nil {
		t.Errorf("notify failure must not fail the event: %v", err)
	}
}

func TestHandleEvent_UnknownType(t *testing.T) {
	h := NewHandler(&mockInvalidator{}, &mockSink{})
	if err := h.HandleEvent(context.Background(), queue.SocialEvent{Type: "bogus"}); err == nil {
		t.Error("expected an error for an unknown event type")
	}
}

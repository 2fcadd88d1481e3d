package service

import (
	"context"
	"testing"

	"circleshare/internal/model"
)

type mockNotificationRepository struct {
	createFn func(ctx context.Context, userID, actorID int64, actorName, kind string, sourceID int64) error

	createCalls int
}

func (m *mockNotificationRepository) Create(ctx context.Context, userID, actorID int64, actorName, kind string, sourceID int64) error {
	m.createCalls++
	if m.createFn != nil {
		return m.createFn(ctx, userID, actorID, actorName, kind, sourceID)
	}
	return nil
}

func (m *mockNotificationRepository) List(ctx context.Context, userID int64, limit int) ([]model.Notification, int, error) {
	return nil, 0, nil
}

func (m *mockNotificationRepository) MarkAsRead(ctx context.Context, userID int64, notificationIDs []int64) error {
	return nil
}

func (m *mockNotificationRepository) MarkAllAsRead(ctx context.Context, userID int64) error {
	return nil
}

func TestNotificationService_Notify(t *testing.T) {
	repo := &mockNotificationRepository{
		createFn: func(ctx context.Context, userID, actorID int64, actorName, kind string, sourceID int64) error {
			if userID != 20 || actorID != 10 || kind != model.NotificationKindLike {
				t.Errorf("Create(%d, %d, %q, %q, %d)", userID, actorID, actorName, kind, sourceID)
			}
			return nil
		},
	}
	svc := NewNotificationService(repo)

	if err := svc.Notify(context.Background(), 20, 10, "alice", model.NotificationKindLike, 5); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if repo.createCalls != 1 {
		t.Errorf("Create called %d times, want 1", repo.createCalls)
	}
}

func TestNotificationService_Notify_SelfIsNoop(t *testing.T) {
	repo := &mockNotificationRepository{}
	svc := NewNotificationService(repo)

	// Acting on your own content never generates a notification.
	if err := svc.Notify(context.Background(), 10, 10, "alice", model.NotificationKindLike, 5); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if repo.createCalls != 0 {
		t.Errorf("self-notification reached the store %d times", repo.createCalls)
	}
}

package service

import (
	"context"

	"circleshare/internal/model"
	"circleshare/internal/repository"
)

// NotificationService handles the notification inbox. Entries are written by
// the stream worker when social events settle, and read by the polling API.
type NotificationService struct {
	notifRepo repository.NotificationRepository
}

func NewNotificationService(notifRepo repository.NotificationRepository) *NotificationService {
	return &NotificationService{notifRepo: notifRepo}
}

// Notify records a notification for receiverID. A user acting on their own
// content produces nothing. Implements worker.NotificationSink.
func (s *NotificationService) Notify(ctx context.Context, receiverID, senderID int64, senderName, kind string, sourceID int64) error {
	if receiverID == senderID {
		return nil
	}
	return s.notifRepo.Create(ctx, receiverID, senderID, senderName, kind, sourceID)
}

// List returns recent notifications for a user plus the unread count.
func (s *NotificationService) List(ctx context.Context, userID int64, limit int) (*model.NotificationListResponse, error) {
	limit = clampLimit(limit, 20, 50)

	notifications, unread, err := s.notifRepo.List(ctx, userID, limit)
	if err != nil {
		return nil, err
	}

	return &model.NotificationListResponse{
		Notifications: notifications,
		UnreadCount:   unread,
	}, nil
}

// MarkAsRead marks specific notifications as read.
func (s *NotificationService) MarkAsRead(ctx context.Context, userID int64, notificationIDs []int64) error {
	return s.notifRepo.MarkAsRead(ctx, userID, notificationIDs)
}

// MarkAllAsRead marks every notification for a user as read.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID int64) error {
	return s.notifRepo.MarkAllAsRead(ctx, userID)
}

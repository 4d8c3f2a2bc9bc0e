package service

import (
	"context"
	"log/slog"

	"pawhaven/internal/models"
	"pawhaven/internal/ws"
)

type NotificationWriter interface {
	Create(ctx context.Context, n *models.Notification) error
}

type DeviceTokenStore interface {
	ListTokens(ctx context.Context, userID string) ([]string, error)
	Delete(ctx context.Context, token string) error
}

// NotificationService persists a notification, pushes it to the user's
// devices and streams it to open websocket connections. Any of repo, tokens,
// fcm and hub may be nil.
type NotificationService struct {
	repo   NotificationWriter
	tokens DeviceTokenStore
	fcm    *FCMService
	hub    *ws.Hub
	log    *slog.Logger
}

func NewNotificationService(repo NotificationWriter, tokens DeviceTokenStore, fcm *FCMService, hub *ws.Hub, log *slog.Logger) *NotificationService {
	return &NotificationService{repo: repo, tokens: tokens, fcm: fcm, hub: hub, log: log.With("component", "notifications")}
}

// Notify stores the notification first. Push and websocket delivery still run
// when storing fails; the storing error is returned.
func (s *NotificationService) Notify(ctx context.Context, userID, notifType, title, body string, data map[string]interface{}) error {
	n := &models.Notification{
		UserID: userID,
		Type:   notifType,
		Title:  title,
		Body:   body,
		Data:   data,
	}
	var err error
	if s.repo != nil {
		if err = s.repo.Create(ctx, n); err != nil {
			s.log.Warn("store notification", "user_id", userID, "type", notifType, "error", err)
		}
	}
	s.sendPush(ctx, userID, notifType, title, body, data)
	if s.hub != nil {
		s.hub.BroadcastToUser(userID, map[string]interface{}{"type": "notification", "notification": n})
	}
	return err
}

func (s *NotificationService) sendPush(ctx context.Context, userID, notifType, title, body string, data map[string]interface{}) {
	if s.fcm == nil || s.tokens == nil {
		return
	}
	tokens, err := s.tokens.ListTokens(ctx, userID)
	if err != nil {
		s.log.Warn("list device tokens", "user_id", userID, "error", err)
		return
	}
	stale, err := s.fcm.Push(ctx, tokens, notifType, title, body, data)
	if err != nil {
		s.log.Warn("push notification", "user_id", userID, "type", notifType, "error", err)
	}
	for _, t := range stale {
		if err := s.tokens.Delete(ctx, t); err != nil {
			s.log.Warn("drop unregistered device token", "user_id", userID, "error", err)
		}
	}
}

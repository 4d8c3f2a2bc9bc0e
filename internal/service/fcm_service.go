package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCM accepts at most this many tokens per multicast.
const fcmMulticastLimit = 500

type multicastSender interface {
	SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMService pushes notifications to device tokens through Firebase Cloud Messaging.
type FCMService struct {
	client multicastSender
}

// NewFCMService returns nil when no service account is configured or Firebase
// cannot be initialised; a nil *FCMService sends nothing.
func NewFCMService(ctx context.Context, serviceAccountPath string, log *slog.Logger) *FCMService {
	if serviceAccountPath == "" {
		return nil
	}
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(serviceAccountPath))
	if err != nil {
		log.Error("init firebase app", "error", err)
		return nil
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		log.Error("init firebase messaging", "error", err)
		return nil
	}
	return &FCMService{client: client}
}

// Push sends one notification to every token. It returns the tokens FCM
// reported as unregistered so the caller can forget them.
func (s *FCMService) Push(ctx context.Context, tokens []string, notifType, title, body string, data map[string]interface{}) ([]string, error) {
	if s == nil || len(tokens) == 0 {
		return nil, nil
	}
	payload := pushData(notifType, data)
	var stale []string
	failed := 0
	for start := 0; start < len(tokens); start += fcmMulticastLimit {
		batch := tokens[start:min(start+fcmMulticastLimit, len(tokens))]
		resp, err := s.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
			Tokens:       batch,
			Data:         payload,
			Notification: &messaging.Notification{Title: title, Body: body},
			Android: &messaging.AndroidConfig{
				Priority:     "high",
				Notification: &messaging.AndroidNotification{Sound: "default"},
			},
			APNS: &messaging.APNSConfig{
				Payload: &messaging.APNSPayload{Aps: &messaging.Aps{Sound: "default"}},
			},
		})
		if err != nil {
			return stale, fmt.Errorf("fcm multicast: %w", err)
		}
		for i, r := range resp.Responses {
			if r.Success {
				continue
			}
			failed++
			if messaging.IsUnregistered(r.Error) {
				stale = append(stale, batch[i])
			}
		}
	}
	if failed > len(stale) {
		return stale, fmt.Errorf("fcm: %d of %d deliveries failed", failed-len(stale), len(tokens))
	}
	return stale, nil
}

// FCM data values must be strings.
func pushData(notifType string, data map[string]interface{}) map[string]string {
	out := make(map[string]string, len(data)+1)
	for k, v := range data {
		switch val := v.(type) {
		case string:
			out[k] = val
		case int:
			out[k] = strconv.Itoa(val)
		case int64:
			out[k] = strconv.FormatInt(val, 10)
		case bool:
			out[k] = strconv.FormatBool(val)
		default:
			b, _ := json.Marshal(v)
			out[k] = string(b)
		}
	}
	out["type"] = notifType
	return out
}

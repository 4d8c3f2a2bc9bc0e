package service

import (
	"context"
	"fmt"
)

// Notifier delivers a user notification. Delivery is best-effort: callers log
// the error and never undo state because of it.
type Notifier interface {
	Notify(ctx context.Context, userID, notifType, title, body string, data map[string]interface{}) error
}

// Auditor appends to the activity log.
type Auditor interface {
	Record(ctx context.Context, entry AuditEntry) error
}

type AuditEntry struct {
	ActorID    string // empty for system actions
	Action     string
	Resource   string
	ResourceID string
	Metadata   map[string]interface{}
}

type notice struct {
	userID string
	kind   string
	title  string
	body   string
	data   map[string]interface{}
}

func (n notice) send(ctx context.Context, to Notifier) error {
	if err := to.Notify(ctx, n.userID, n.kind, n.title, n.body, n.data); err != nil {
		return fmt.Errorf("notify %s %s: %w", n.kind, n.userID, err)
	}
	return nil
}

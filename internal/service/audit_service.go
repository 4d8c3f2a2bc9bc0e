package service

import (
	"context"
	"log/slog"

	"pawhaven/internal/models"
)

type AuditWriter interface {
	Create(ctx context.Context, entry *models.AuditLog) error
}

// AuditService writes activity log rows. With a nil writer it only logs.
type AuditService struct {
	repo AuditWriter
	log  *slog.Logger
}

func NewAuditService(repo AuditWriter, log *slog.Logger) *AuditService {
	return &AuditService{repo: repo, log: log.With("component", "audit")}
}

func (s *AuditService) Record(ctx context.Context, e AuditEntry) error {
	s.log.Info("audit", "action", e.Action, "resource", e.Resource, "resource_id", e.ResourceID)
	if s.repo == nil {
		return nil
	}
	row := &models.AuditLog{
		Action:     e.Action,
		Resource:   e.Resource,
		ResourceID: e.ResourceID,
		Metadata:   e.Metadata,
	}
	if e.ActorID != "" {
		actor := e.ActorID
		row.UserID = &actor
	}
	return s.repo.Create(ctx, row)
}

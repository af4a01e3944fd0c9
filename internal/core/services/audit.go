package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/storyweave/consentd/internal/core/domain"
	"github.com/storyweave/consentd/internal/core/ports"
)

type auditService struct {
	repo ports.AuditRepository
}

func NewAuditService(repo ports.AuditRepository) ports.AuditService {
	return &auditService{repo: repo}
}

func (s *auditService) Record(ctx context.Context, entry *domain.ConsentAuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	return s.repo.SaveAuditLog(ctx, entry)
}

func (s *auditService) List(ctx context.Context, contentID string) ([]domain.ConsentAuditLog, error) {
	return s.repo.GetAuditLogs(ctx, contentID)
}

package service

import (
	"context"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/flow-helpdesk/pkg/util/errorutil"
)

// AuditService reads the audit log.
type AuditService struct {
	repo repository.AuditRepository
}

// NewAuditService constructs the service.
func NewAuditService(repo repository.AuditRepository) *AuditService {
	return &AuditService{repo: repo}
}

// List returns audit entries newest first.
func (s *AuditService) List(ctx context.Context, filter repository.AuditFilter) ([]domain.AuditLog, error) {
	list, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/flow-helpdesk/internal/auth"
	"github.com/spec-kit/flow-helpdesk/internal/config"
	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/events"
	"github.com/spec-kit/flow-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/flow-helpdesk/pkg/util/errorutil"
)

// SLADependencies wires the SLA service.
type SLADependencies struct {
	SLARepo    repository.SLARepository
	Dispatcher events.Dispatcher
	Defaults   config.TicketConfig
	Clock      Clock
}

// SLAService manages SLA configs and resolves the targets for new tickets.
type SLAService struct {
	repo       repository.SLARepository
	dispatcher events.Dispatcher
	defaults   config.TicketConfig
	now        Clock
}

// NewSLAService constructs the service.
func NewSLAService(deps SLADependencies) *SLAService {
	return &SLAService{
		repo:       deps.SLARepo,
		dispatcher: deps.Dispatcher,
		defaults:   deps.Defaults,
		now:        clockOrDefault(deps.Clock),
	}
}

// Resolve picks the SLA for a ticket: the most specific config for department and tier,
// then the category's own config, then the configured default minutes.
func (s *SLAService) Resolve(ctx context.Context, departmentID, tier string, category *domain.Category) (domain.SLAConfig, error) {
	cfg, err := s.repo.FindFor(ctx, departmentID, tier)
	if err == nil {
		return *cfg, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.SLAConfig{}, apperrors.MapError(err)
	}
	if category != nil && category.SLAConfigID != nil {
		cfg, err = s.repo.GetByID(ctx, *category.SLAConfigID)
		if err == nil && cfg.IsActive {
			return *cfg, nil
		}
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return domain.SLAConfig{}, apperrors.MapError(err)
		}
	}
	return domain.SLAConfig{
		Name:              "default",
		ResponseMinutes:   s.defaultResponse(),
		ResolutionMinutes: s.defaultResolution(),
		IsActive:          true,
	}, nil
}

func (s *SLAService) defaultResponse() int {
	if s.defaults.DefaultResponseMinutes > 0 {
		return s.defaults.DefaultResponseMinutes
	}
	return 240
}

func (s *SLAService) defaultResolution() int {
	if s.defaults.DefaultResolutionMinutes > 0 {
		return s.defaults.DefaultResolutionMinutes
	}
	return 2880
}

// SLASnapshotFor freezes cfg for a ticket created at createdAt.
func SLASnapshotFor(cfg domain.SLAConfig, createdAt time.Time) domain.SLASnapshot {
	return domain.SLASnapshot{
		ConfigID:          cfg.ID,
		Name:              cfg.Name,
		ResponseMinutes:   cfg.ResponseMinutes,
		ResolutionMinutes: cfg.ResolutionMinutes,
		ResponseDueAt:     createdAt.Add(time.Duration(cfg.ResponseMinutes) * time.Minute),
		ResolutionDueAt:   createdAt.Add(time.Duration(cfg.ResolutionMinutes) * time.Minute),
	}
}

// SLAInput carries writable SLA config fields.
type SLAInput struct {
	Name              string
	DepartmentID      *string
	PriorityTier      string
	ResponseMinutes   int
	ResolutionMinutes int
	IsActive          *bool
}

func (in SLAInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return apperrors.NewValidationError("name is required", nil)
	}
	if in.ResponseMinutes <= 0 || in.ResolutionMinutes <= 0 {
		return apperrors.NewValidationError("responseMinutes and resolutionMinutes must be positive", nil)
	}
	if in.ResolutionMinutes < in.ResponseMinutes {
		return apperrors.NewValidationError("resolutionMinutes must not be shorter than responseMinutes", nil)
	}
	return nil
}

// List returns every SLA config.
func (s *SLAService) List(ctx context.Context) ([]domain.SLAConfig, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

// Get returns one SLA config.
func (s *SLAService) Get(ctx context.Context, id string) (*domain.SLAConfig, error) {
	cfg, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "sla config", map[string]any{"sla_id": id})
	}
	return cfg, nil
}

// Create stores a new SLA config.
func (s *SLAService) Create(ctx context.Context, actor *auth.Principal, in SLAInput) (*domain.SLAConfig, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	cfg := &domain.SLAConfig{
		Name:              strings.TrimSpace(in.Name),
		DepartmentID:      trimmedOrNil(in.DepartmentID),
		PriorityTier:      strings.TrimSpace(in.PriorityTier),
		ResponseMinutes:   in.ResponseMinutes,
		ResolutionMinutes: in.ResolutionMinutes,
		IsActive:          in.IsActive == nil || *in.IsActive,
	}
	if err := s.repo.Create(ctx, cfg); err != nil {
		return nil, apperrors.MapError(err)
	}
	auditChange(ctx, s.dispatcher, actor, "sla.created", "sla_config", cfg.ID, map[string]any{"name": cfg.Name})
	return cfg, nil
}

// Update overwrites an SLA config. Tickets keep their snapshots.
func (s *SLAService) Update(ctx context.Context, actor *auth.Principal, id string, in SLAInput) (*domain.SLAConfig, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	cfg, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	cfg.Name = strings.TrimSpace(in.Name)
	cfg.DepartmentID = trimmedOrNil(in.DepartmentID)
	cfg.PriorityTier = strings.TrimSpace(in.PriorityTier)
	cfg.ResponseMinutes = in.ResponseMinutes
	cfg.ResolutionMinutes = in.ResolutionMinutes
	if in.IsActive != nil {
		cfg.IsActive = *in.IsActive
	}
	cfg.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, cfg); err != nil {
		return nil, mapNotFound(err, "sla config", map[string]any{"sla_id": id})
	}
	auditChange(ctx, s.dispatcher, actor, "sla.updated", "sla_config", cfg.ID, map[string]any{
		"responseMinutes":   cfg.ResponseMinutes,
		"resolutionMinutes": cfg.ResolutionMinutes,
	})
	return cfg, nil
}

// Delete removes an SLA config.
func (s *SLAService) Delete(ctx context.Context, actor *auth.Principal, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return mapNotFound(err, "sla config", map[string]any{"sla_id": id})
	}
	auditChange(ctx, s.dispatcher, actor, "sla.deleted", "sla_config", id, nil)
	return nil
}

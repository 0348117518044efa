package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/flow-helpdesk/internal/auth"
	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/events"
	"github.com/spec-kit/flow-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/flow-helpdesk/pkg/util/errorutil"
)

// Score bounds.
const (
	minPriorityScore = 0
	maxPriorityScore = 100
)

// PriorityResult is the outcome of scoring one ticket.
type PriorityResult struct {
	Score         int
	Tier          string
	Badge         string
	ConfigVersion int
	Components    map[string]int
}

// ComputePriority scores a ticket: base + GMV tier weight + rule boost, clamped to 0..100.
// baseScore <= 0 falls back to the config default.
func ComputePriority(cfg domain.PriorityConfig, baseScore int, gmvTier string, boost int) PriorityResult {
	if baseScore <= 0 {
		baseScore = cfg.DefaultBaseScore
	}
	gmvWeight := 0
	if gmvTier != "" {
		gmvWeight = cfg.GMVTierWeights[gmvTier]
	}
	score := baseScore + gmvWeight + boost
	if score < minPriorityScore {
		score = minPriorityScore
	}
	if score > maxPriorityScore {
		score = maxPriorityScore
	}
	tier := tierFor(cfg.Tiers, score)
	return PriorityResult{
		Score:         score,
		Tier:          tier.Name,
		Badge:         tier.Badge,
		ConfigVersion: cfg.Version,
		Components: map[string]int{
			"base":  baseScore,
			"gmv":   gmvWeight,
			"boost": boost,
		},
	}
}

func tierFor(tiers []domain.PriorityTier, score int) domain.PriorityTier {
	sorted := append([]domain.PriorityTier(nil), tiers...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinScore > sorted[j].MinScore })
	for _, t := range sorted {
		if score >= t.MinScore {
			return t
		}
	}
	if len(sorted) > 0 {
		return sorted[len(sorted)-1]
	}
	return domain.PriorityTier{}
}

// PriorityService manages the versioned scoring configuration.
type PriorityService struct {
	repo       repository.PriorityConfigRepository
	dispatcher events.Dispatcher
}

// NewPriorityService constructs the service.
func NewPriorityService(repo repository.PriorityConfigRepository, dispatcher events.Dispatcher) *PriorityService {
	return &PriorityService{repo: repo, dispatcher: dispatcher}
}

// Active returns the active config, or the built-in defaults when none was saved.
func (s *PriorityService) Active(ctx context.Context) (domain.PriorityConfig, error) {
	cfg, err := s.repo.GetActive(ctx)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DefaultPriorityConfig(), nil
	}
	if err != nil {
		return domain.PriorityConfig{}, apperrors.MapError(err)
	}
	return *cfg, nil
}

// Versions lists saved configs, newest first.
func (s *PriorityService) Versions(ctx context.Context) ([]domain.PriorityConfig, error) {
	list, err := s.repo.ListVersions(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

// PriorityConfigInput describes a new config version.
type PriorityConfigInput struct {
	DefaultBaseScore int
	GMVTierWeights   map[string]int
	Tiers            []domain.PriorityTier
}

// Save validates input and stores it as a new active version.
func (s *PriorityService) Save(ctx context.Context, actor *auth.Principal, input PriorityConfigInput) (*domain.PriorityConfig, error) {
	if err := validatePriorityInput(input); err != nil {
		return nil, err
	}
	cfg := &domain.PriorityConfig{
		DefaultBaseScore: input.DefaultBaseScore,
		GMVTierWeights:   input.GMVTierWeights,
		Tiers:            input.Tiers,
	}
	if actor != nil && actor.User != nil {
		cfg.CreatedBy = actor.User.Email
	}
	if cfg.GMVTierWeights == nil {
		cfg.GMVTierWeights = map[string]int{}
	}
	if err := s.repo.SaveNewVersion(ctx, cfg); err != nil {
		return nil, apperrors.MapError(err)
	}
	auditChange(ctx, s.dispatcher, actor, "priority_config.saved", "priority_config", cfg.ID, map[string]any{
		"version": cfg.Version,
	})
	return cfg, nil
}

func validatePriorityInput(input PriorityConfigInput) error {
	if len(input.Tiers) == 0 {
		return apperrors.NewValidationError("at least one priority tier is required", nil)
	}
	if input.DefaultBaseScore < minPriorityScore || input.DefaultBaseScore > maxPriorityScore {
		return apperrors.NewValidationError("defaultBaseScore must be between 0 and 100", nil)
	}
	names := make(map[string]struct{}, len(input.Tiers))
	hasFloor := false
	for _, t := range input.Tiers {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return apperrors.NewValidationError("tier name is required", nil)
		}
		if _, dup := names[name]; dup {
			return apperrors.NewValidationError("duplicate tier "+name, nil)
		}
		names[name] = struct{}{}
		if t.MinScore < minPriorityScore || t.MinScore > maxPriorityScore {
			return apperrors.NewValidationError("tier minScore must be between 0 and 100", map[string]any{"tier": name})
		}
		if t.MinScore == 0 {
			hasFloor = true
		}
	}
	if !hasFloor {
		return apperrors.NewValidationError("one tier must start at score 0", nil)
	}
	return nil
}

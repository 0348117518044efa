package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
)

type categoryRepo struct{ d *db }

func (r *categoryRepo) Create(_ context.Context, c *domain.Category) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if c.ParentID != nil {
		if _, ok := r.d.categories[*c.ParentID]; !ok {
			return foreignKeyViolation("categories_parent_id_fkey")
		}
	}
	if c.SLAConfigID != nil {
		if _, ok := r.d.slas[*c.SLAConfigID]; !ok {
			return foreignKeyViolation("categories_sla_config_id_fkey")
		}
	}
	now := r.d.stamp()
	c.ID = uuid.NewString()
	c.Version = 1
	c.CreatedAt, c.UpdatedAt = now, now
	if c.DefaultTags == nil {
		c.DefaultTags = []string{}
	}
	if c.RequiredFields == nil {
		c.RequiredFields = []string{}
	}
	r.d.categories[c.ID] = cloneCategory(c)
	return nil
}

func (r *categoryRepo) Update(_ context.Context, c *domain.Category) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	existing, ok := r.d.categories[c.ID]
	if !ok || existing.IsDeleted() {
		return pgx.ErrNoRows
	}
	if c.SLAConfigID != nil {
		if _, ok := r.d.slas[*c.SLAConfigID]; !ok {
			return foreignKeyViolation("categories_sla_config_id_fkey")
		}
	}
	updated := cloneCategory(existing)
	updated.Name = c.Name
	updated.DepartmentID = cloneString(c.DepartmentID)
	updated.BasePriorityScore = c.BasePriorityScore
	updated.SLAConfigID = cloneString(c.SLAConfigID)
	updated.DefaultTags = cloneStrings(c.DefaultTags)
	updated.RequiredFields = cloneStrings(c.RequiredFields)
	updated.Version = existing.Version + 1
	updated.UpdatedAt = r.d.stamp()
	r.d.categories[c.ID] = updated
	c.Version = updated.Version
	c.UpdatedAt = updated.UpdatedAt
	return nil
}

func (r *categoryRepo) SoftDelete(_ context.Context, id string, at time.Time) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	existing, ok := r.d.categories[id]
	if !ok || existing.IsDeleted() {
		return pgx.ErrNoRows
	}
	deleted := at
	existing.DeletedAt = &deleted
	existing.Version++
	existing.UpdatedAt = r.d.stamp()
	return nil
}

func (r *categoryRepo) GetByID(_ context.Context, id string) (*domain.Category, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	c, ok := r.d.categories[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cloneCategory(c), nil
}

func (r *categoryRepo) ListActive(_ context.Context) ([]domain.Category, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	var out []domain.Category
	for _, c := range r.d.categories {
		if !c.IsDeleted() {
			out = append(out, *cloneCategory(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

type slaRepo struct{ d *db }

func (r *slaRepo) Create(_ context.Context, cfg *domain.SLAConfig) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	now := r.d.stamp()
	cfg.ID = uuid.NewString()
	cfg.CreatedAt, cfg.UpdatedAt = now, now
	r.d.slas[cfg.ID] = cloneSLA(cfg)
	return nil
}

func (r *slaRepo) Update(_ context.Context, cfg *domain.SLAConfig) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	existing, ok := r.d.slas[cfg.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	cfg.CreatedAt = existing.CreatedAt
	cfg.UpdatedAt = r.d.stamp()
	r.d.slas[cfg.ID] = cloneSLA(cfg)
	return nil
}

func (r *slaRepo) Delete(_ context.Context, id string) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, ok := r.d.slas[id]; !ok {
		return pgx.ErrNoRows
	}
	for _, c := range r.d.categories {
		if c.SLAConfigID != nil && *c.SLAConfigID == id {
			return foreignKeyViolation("categories_sla_config_id_fkey")
		}
	}
	delete(r.d.slas, id)
	return nil
}

func (r *slaRepo) GetByID(_ context.Context, id string) (*domain.SLAConfig, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	cfg, ok := r.d.slas[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cloneSLA(cfg), nil
}

func (r *slaRepo) List(_ context.Context) ([]domain.SLAConfig, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	var out []domain.SLAConfig
	for _, cfg := range r.d.slas {
		out = append(out, *cloneSLA(cfg))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// FindFor mirrors the SQL ranking: department match beats tier match, oldest wins ties.
func (r *slaRepo) FindFor(_ context.Context, departmentID, tier string) (*domain.SLAConfig, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	var (
		best     *domain.SLAConfig
		bestRank = 4
	)
	for _, cfg := range r.d.slas {
		if !cfg.IsActive {
			continue
		}
		deptMatch := cfg.DepartmentID != nil && *cfg.DepartmentID == departmentID
		if cfg.DepartmentID != nil && !deptMatch {
			continue
		}
		if cfg.PriorityTier != "" && cfg.PriorityTier != tier {
			continue
		}
		rank := 0
		if !deptMatch {
			rank += 2
		}
		if cfg.PriorityTier == "" {
			rank++
		}
		if rank < bestRank || (rank == bestRank && cfg.CreatedAt.Before(best.CreatedAt)) {
			best, bestRank = cfg, rank
		}
	}
	if best == nil {
		return nil, pgx.ErrNoRows
	}
	return cloneSLA(best), nil
}

type priorityRepo struct{ d *db }

func (r *priorityRepo) GetActive(_ context.Context) (*domain.PriorityConfig, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for i := len(r.d.priority) - 1; i >= 0; i-- {
		if r.d.priority[i].IsActive {
			return clonePriority(r.d.priority[i]), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *priorityRepo) SaveNewVersion(_ context.Context, cfg *domain.PriorityConfig) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	version := 0
	for _, existing := range r.d.priority {
		existing.IsActive = false
		if existing.Version > version {
			version = existing.Version
		}
	}
	cfg.ID = uuid.NewString()
	cfg.Version = version + 1
	cfg.IsActive = true
	cfg.CreatedAt = r.d.stamp()
	r.d.priority = append(r.d.priority, clonePriority(cfg))
	return nil
}

func (r *priorityRepo) ListVersions(_ context.Context) ([]domain.PriorityConfig, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	out := make([]domain.PriorityConfig, 0, len(r.d.priority))
	for i := len(r.d.priority) - 1; i >= 0; i-- {
		out = append(out, *clonePriority(r.d.priority[i]))
	}
	return out, nil
}

type routingRepo struct{ d *db }

func (r *routingRepo) checkReferences(rule *domain.RoutingRule) error {
	if _, ok := r.d.categories[rule.CategoryID]; !ok {
		return foreignKeyViolation("routing_rules_category_id_fkey")
	}
	if rule.SpecificAgentID != nil {
		if _, ok := r.d.users[*rule.SpecificAgentID]; !ok {
			return foreignKeyViolation("routing_rules_specific_agent_id_fkey")
		}
	}
	return nil
}

func (r *routingRepo) Create(_ context.Context, rule *domain.RoutingRule) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if err := r.checkReferences(rule); err != nil {
		return err
	}
	now := r.d.stamp()
	rule.ID = uuid.NewString()
	rule.RoundRobinCounter = 0
	rule.CreatedAt, rule.UpdatedAt = now, now
	r.d.rules[rule.ID] = cloneRule(rule)
	return nil
}

func (r *routingRepo) Update(_ context.Context, rule *domain.RoutingRule) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	existing, ok := r.d.rules[rule.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if err := r.checkReferences(rule); err != nil {
		return err
	}
	rule.RoundRobinCounter = existing.RoundRobinCounter
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = r.d.stamp()
	r.d.rules[rule.ID] = cloneRule(rule)
	return nil
}

func (r *routingRepo) Delete(_ context.Context, id string) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, ok := r.d.rules[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.d.rules, id)
	return nil
}

func (r *routingRepo) GetByID(_ context.Context, id string) (*domain.RoutingRule, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	rule, ok := r.d.rules[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cloneRule(rule), nil
}

func (r *routingRepo) List(_ context.Context) ([]domain.RoutingRule, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	out := r.sorted()
	result := make([]domain.RoutingRule, len(out))
	for i, rule := range out {
		result[i] = *cloneRule(rule)
	}
	return result, nil
}

func (r *routingRepo) sorted() []*domain.RoutingRule {
	out := make([]*domain.RoutingRule, 0, len(r.d.rules))
	for _, rule := range r.d.rules {
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *routingRepo) GetActiveForCategory(_ context.Context, categoryID string) (*domain.RoutingRule, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for _, rule := range r.sorted() {
		if rule.IsActive && rule.CategoryID == categoryID {
			return cloneRule(rule), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *routingRepo) NextRoundRobin(_ context.Context, ruleID string) (int, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	rule, ok := r.d.rules[ruleID]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	previous := rule.RoundRobinCounter
	rule.RoundRobinCounter++
	return previous, nil
}

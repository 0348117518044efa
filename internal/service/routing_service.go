package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/flow-helpdesk/internal/auth"
	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/events"
	"github.com/spec-kit/flow-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/flow-helpdesk/pkg/util/errorutil"
)

const maxRoutingCandidates = 500

// RoutingDependencies wires the routing service.
type RoutingDependencies struct {
	RuleRepo       repository.RoutingRuleRepository
	UserRepo       repository.UserRepository
	TicketRepo     repository.TicketRepository
	AttendanceRepo repository.AttendanceRepository
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
	Clock          Clock
}

// RoutingService applies routing rules to new tickets and manages the rules.
type RoutingService struct {
	rules      repository.RoutingRuleRepository
	users      repository.UserRepository
	tickets    repository.TicketRepository
	attendance repository.AttendanceRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        Clock
}

// NewRoutingService constructs the service.
func NewRoutingService(deps RoutingDependencies) *RoutingService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoutingService{
		rules:      deps.RuleRepo,
		users:      deps.UserRepo,
		tickets:    deps.TicketRepo,
		attendance: deps.AttendanceRepo,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		now:        clockOrDefault(deps.Clock),
	}
}

// RoutingDecision is the outcome of routing one ticket.
type RoutingDecision struct {
	Rule         *domain.RoutingRule
	DepartmentID string
	OwnerTeam    string
	Boost        int
	AssigneeID   *string
}

// Route applies the active rule of categoryID. Without a rule the ticket keeps departmentID unassigned.
func (s *RoutingService) Route(ctx context.Context, categoryID, departmentID string) (RoutingDecision, error) {
	decision, err := s.Plan(ctx, categoryID, departmentID)
	if err != nil {
		return decision, err
	}
	err = s.Assign(ctx, &decision)
	return decision, err
}

// Plan resolves the rule, department, owner team, boost and a specific agent
// without touching pool state. Pool strategies are left to Assign.
func (s *RoutingService) Plan(ctx context.Context, categoryID, departmentID string) (RoutingDecision, error) {
	decision := RoutingDecision{DepartmentID: departmentID}
	rule, err := s.rules.GetActiveForCategory(ctx, categoryID)
	if errors.Is(err, pgx.ErrNoRows) {
		return decision, nil
	}
	if err != nil {
		return decision, apperrors.MapError(err)
	}
	decision.Rule = rule
	decision.Boost = rule.PriorityBoost
	decision.OwnerTeam = rule.OwnerTeam
	if rule.DepartmentID != nil && *rule.DepartmentID != "" {
		decision.DepartmentID = *rule.DepartmentID
	}

	if rule.Strategy == domain.AssignSpecificAgent && rule.SpecificAgentID != nil {
		agent, err := s.users.GetByID(ctx, *rule.SpecificAgentID)
		if err == nil && agent.IsActive {
			decision.AssigneeID = ptrString(agent.ID)
		} else {
			s.logger.Warn("routing rule agent unavailable",
				zap.String("rule_id", rule.ID),
				zap.String("agent_id", *rule.SpecificAgentID),
			)
		}
	}
	return decision, nil
}

// Assign picks an agent from the department pool for round robin and least
// loaded rules. Round robin advances the rule counter, so callers assign only
// once the ticket is otherwise valid.
func (s *RoutingService) Assign(ctx context.Context, decision *RoutingDecision) error {
	rule := decision.Rule
	if rule == nil || decision.AssigneeID != nil || decision.DepartmentID == "" {
		return nil
	}
	if rule.Strategy != domain.AssignRoundRobin && rule.Strategy != domain.AssignLeastLoaded {
		return nil
	}
	candidates, err := s.Candidates(ctx, decision.DepartmentID)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}
	var pick string
	if rule.Strategy == domain.AssignRoundRobin {
		pick, err = s.pickRoundRobin(ctx, rule.ID, candidates)
	} else {
		pick, err = s.pickLeastLoaded(ctx, candidates)
	}
	if err != nil {
		return err
	}
	decision.AssigneeID = ptrString(pick)
	return nil
}

// Candidates lists the assignable agents of a department ordered by name then id.
// Agents checked in today are preferred when any exist.
func (s *RoutingService) Candidates(ctx context.Context, departmentID string) ([]domain.User, error) {
	agents, err := s.users.List(ctx, repository.UserFilter{
		DepartmentID: ptrString(departmentID),
		Role:         ptrString(domain.RoleAgent),
		Active:       ptrBool(true),
		Limit:        maxRoutingCandidates,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	sort.SliceStable(agents, func(i, j int) bool {
		if agents[i].Name == agents[j].Name {
			return agents[i].ID < agents[j].ID
		}
		return agents[i].Name < agents[j].Name
	})
	if s.attendance == nil || len(agents) == 0 {
		return agents, nil
	}
	presentIDs, err := s.attendance.ListPresent(ctx, domain.DayOf(s.now()))
	if err != nil {
		s.logger.Warn("attendance lookup failed, routing to all agents", zap.Error(err))
		return agents, nil
	}
	present := make(map[string]struct{}, len(presentIDs))
	for _, id := range presentIDs {
		present[id] = struct{}{}
	}
	var onShift []domain.User
	for _, agent := range agents {
		if _, ok := present[agent.ID]; ok {
			onShift = append(onShift, agent)
		}
	}
	if len(onShift) > 0 {
		return onShift, nil
	}
	return agents, nil
}

func (s *RoutingService) pickRoundRobin(ctx context.Context, ruleID string, candidates []domain.User) (string, error) {
	counter, err := s.rules.NextRoundRobin(ctx, ruleID)
	if err != nil {
		return "", apperrors.MapError(err)
	}
	if counter < 0 {
		counter = -counter
	}
	return candidates[counter%len(candidates)].ID, nil
}

func (s *RoutingService) pickLeastLoaded(ctx context.Context, candidates []domain.User) (string, error) {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	counts, err := s.tickets.CountOpenByAssignees(ctx, ids)
	if err != nil {
		return "", apperrors.MapError(err)
	}
	best := ids[0]
	for _, id := range ids[1:] {
		if counts[id] < counts[best] {
			best = id
		}
	}
	return best, nil
}

// RoutingRuleInput carries writable rule fields.
type RoutingRuleInput struct {
	CategoryID      string
	DepartmentID    *string
	OwnerTeam       string
	PriorityBoost   int
	Strategy        domain.AssignmentStrategy
	SpecificAgentID *string
	IsActive        *bool
}

func (in RoutingRuleInput) validate() error {
	if strings.TrimSpace(in.CategoryID) == "" {
		return apperrors.NewValidationError("categoryId is required", nil)
	}
	strategy := in.Strategy
	if strategy == "" {
		strategy = domain.AssignNone
	}
	if !strategy.Valid() {
		return apperrors.NewValidationError("unknown assignment strategy", map[string]any{"strategy": string(in.Strategy)})
	}
	if strategy == domain.AssignSpecificAgent && trimmedOrNil(in.SpecificAgentID) == nil {
		return apperrors.NewValidationError("specificAgentId is required for specific_agent", nil)
	}
	if in.PriorityBoost < -maxPriorityScore || in.PriorityBoost > maxPriorityScore {
		return apperrors.NewValidationError("priorityBoost must be between -100 and 100", nil)
	}
	return nil
}

func (in RoutingRuleInput) apply(rule *domain.RoutingRule) {
	rule.CategoryID = strings.TrimSpace(in.CategoryID)
	rule.DepartmentID = trimmedOrNil(in.DepartmentID)
	rule.OwnerTeam = strings.TrimSpace(in.OwnerTeam)
	rule.PriorityBoost = in.PriorityBoost
	rule.Strategy = in.Strategy
	if rule.Strategy == "" {
		rule.Strategy = domain.AssignNone
	}
	rule.SpecificAgentID = nil
	if rule.Strategy == domain.AssignSpecificAgent {
		rule.SpecificAgentID = trimmedOrNil(in.SpecificAgentID)
	}
	if in.IsActive != nil {
		rule.IsActive = *in.IsActive
	}
}

// List returns every rule.
func (s *RoutingService) List(ctx context.Context) ([]domain.RoutingRule, error) {
	list, err := s.rules.List(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

// Get returns one rule.
func (s *RoutingService) Get(ctx context.Context, id string) (*domain.RoutingRule, error) {
	rule, err := s.rules.GetByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "routing rule", map[string]any{"rule_id": id})
	}
	return rule, nil
}

// Create stores a rule. At most one active rule per category is honoured: the oldest.
func (s *RoutingService) Create(ctx context.Context, actor *auth.Principal, in RoutingRuleInput) (*domain.RoutingRule, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	rule := &domain.RoutingRule{IsActive: true}
	in.apply(rule)
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, apperrors.MapError(err)
	}
	auditChange(ctx, s.dispatcher, actor, "routing_rule.created", "routing_rule", rule.ID, map[string]any{
		"categoryId": rule.CategoryID,
		"strategy":   string(rule.Strategy),
	})
	return rule, nil
}

// Update rewrites a rule. The round robin counter is preserved.
func (s *RoutingService) Update(ctx context.Context, actor *auth.Principal, id string, in RoutingRuleInput) (*domain.RoutingRule, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	rule, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	in.apply(rule)
	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, mapNotFound(err, "routing rule", map[string]any{"rule_id": id})
	}
	auditChange(ctx, s.dispatcher, actor, "routing_rule.updated", "routing_rule", rule.ID, map[string]any{
		"strategy": string(rule.Strategy),
		"isActive": rule.IsActive,
	})
	return rule, nil
}

// Delete removes a rule.
func (s *RoutingService) Delete(ctx context.Context, actor *auth.Principal, id string) error {
	if err := s.rules.Delete(ctx, id); err != nil {
		return mapNotFound(err, "routing rule", map[string]any{"rule_id": id})
	}
	auditChange(ctx, s.dispatcher, actor, "routing_rule.deleted", "routing_rule", id, nil)
	return nil
}

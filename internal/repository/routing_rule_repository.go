package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
)

// RoutingRuleRepository persists auto-routing rules.
type RoutingRuleRepository interface {
	Create(ctx context.Context, rule *domain.RoutingRule) error
	Update(ctx context.Context, rule *domain.RoutingRule) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.RoutingRule, error)
	List(ctx context.Context) ([]domain.RoutingRule, error)
	GetActiveForCategory(ctx context.Context, categoryID string) (*domain.RoutingRule, error)
	// NextRoundRobin atomically increments the rule counter and returns the value before the increment.
	NextRoundRobin(ctx context.Context, ruleID string) (int, error)
}

type routingRuleRepository struct {
	pool *pgxpool.Pool
}

// NewRoutingRuleRepository builds repository.
func NewRoutingRuleRepository(pool *pgxpool.Pool) RoutingRuleRepository {
	return &routingRuleRepository{pool: pool}
}

const routingColumns = `id, category_id, department_id, owner_team, priority_boost, strategy, specific_agent_id,
               round_robin_counter, is_active, created_at, updated_at`

func (r *routingRuleRepository) Create(ctx context.Context, rule *domain.RoutingRule) error {
	const query = `
        INSERT INTO routing_rules (category_id, department_id, owner_team, priority_boost, strategy, specific_agent_id, is_active)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, round_robin_counter, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		rule.CategoryID,
		rule.DepartmentID,
		rule.OwnerTeam,
		rule.PriorityBoost,
		rule.Strategy,
		rule.SpecificAgentID,
		rule.IsActive,
	).Scan(&rule.ID, &rule.RoundRobinCounter, &rule.CreatedAt, &rule.UpdatedAt)
}

// Update leaves round_robin_counter untouched.
func (r *routingRuleRepository) Update(ctx context.Context, rule *domain.RoutingRule) error {
	const query = `
        UPDATE routing_rules SET category_id=$1, department_id=$2, owner_team=$3, priority_boost=$4,
            strategy=$5, specific_agent_id=$6, is_active=$7, updated_at=NOW()
        WHERE id=$8
        RETURNING round_robin_counter, updated_at`
	return r.pool.QueryRow(ctx, query,
		rule.CategoryID,
		rule.DepartmentID,
		rule.OwnerTeam,
		rule.PriorityBoost,
		rule.Strategy,
		rule.SpecificAgentID,
		rule.IsActive,
		rule.ID,
	).Scan(&rule.RoundRobinCounter, &rule.UpdatedAt)
}

func (r *routingRuleRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM routing_rules WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return errIfNone(cmd.RowsAffected())
}

func (r *routingRuleRepository) GetByID(ctx context.Context, id string) (*domain.RoutingRule, error) {
	return scanRoutingRule(r.pool.QueryRow(ctx, `SELECT `+routingColumns+` FROM routing_rules WHERE id=$1`, id))
}

func (r *routingRuleRepository) List(ctx context.Context) ([]domain.RoutingRule, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+routingColumns+` FROM routing_rules ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.RoutingRule
	for rows.Next() {
		rule, err := scanRoutingRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rule)
	}
	return result, rows.Err()
}

func (r *routingRuleRepository) GetActiveForCategory(ctx context.Context, categoryID string) (*domain.RoutingRule, error) {
	const query = `SELECT ` + routingColumns + ` FROM routing_rules
        WHERE category_id=$1 AND is_active ORDER BY created_at, id LIMIT 1`
	return scanRoutingRule(r.pool.QueryRow(ctx, query, categoryID))
}

func (r *routingRuleRepository) NextRoundRobin(ctx context.Context, ruleID string) (int, error) {
	var previous int
	err := r.pool.QueryRow(ctx,
		`UPDATE routing_rules SET round_robin_counter = round_robin_counter + 1 WHERE id=$1 RETURNING round_robin_counter - 1`,
		ruleID,
	).Scan(&previous)
	return previous, err
}

func scanRoutingRule(row rowScanner) (*domain.RoutingRule, error) {
	var rule domain.RoutingRule
	if err := row.Scan(
		&rule.ID,
		&rule.CategoryID,
		&rule.DepartmentID,
		&rule.OwnerTeam,
		&rule.PriorityBoost,
		&rule.Strategy,
		&rule.SpecificAgentID,
		&rule.RoundRobinCounter,
		&rule.IsActive,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &rule, nil
}

package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/persistence"
)

// TicketFilter captures ticket search parameters.
type TicketFilter struct {
	DepartmentID *string
	AssigneeID   *string
	Unassigned   bool
	CategoryID   *string
	VendorHandle *string
	Statuses     []domain.TicketStatus
	SearchTerm   string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	Limit        int
	Offset       int
}

// AnalyticsFilter narrows the analytics aggregation.
type AnalyticsFilter struct {
	DepartmentID *string
	From         *time.Time
	To           *time.Time
}

// AnalyticsSummary aggregates ticket counters for a period.
type AnalyticsSummary struct {
	Total                   int            `json:"total"`
	ByStatus                map[string]int `json:"byStatus"`
	ByDepartment            map[string]int `json:"byDepartment"`
	ByPriorityTier          map[string]int `json:"byPriorityTier"`
	SLABreached             int            `json:"slaBreached"`
	AvgFirstResponseMinutes float64        `json:"avgFirstResponseMinutes"`
	OpenByAgent             map[string]int `json:"openByAgent"`
}

// NewAnalyticsSummary returns a summary with initialized maps.
func NewAnalyticsSummary() *AnalyticsSummary {
	return &AnalyticsSummary{
		ByStatus:       map[string]int{},
		ByDepartment:   map[string]int{},
		ByPriorityTier: map[string]int{},
		OpenByAgent:    map[string]int{},
	}
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	// CreateNumbered assigns the next per-prefix sequence and inserts the ticket atomically.
	CreateNumbered(ctx context.Context, ticket *domain.Ticket, prefix string) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByNumber(ctx context.Context, number string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int, error)
	Delete(ctx context.Context, id string) error
	CountOpenByAssignees(ctx context.Context, assigneeIDs []string) (map[string]int, error)
	ListSLABreachCandidates(ctx context.Context, now time.Time) ([]domain.Ticket, error)
	MarkSLABreached(ctx context.Context, id string, at time.Time) (bool, error)
	Analytics(ctx context.Context, filter AnalyticsFilter) (*AnalyticsSummary, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, ticket_number, ticket_seq, department_id, owner_team, category_id, vendor_handle,
               customer_email, customer_name, subject, description, status, priority_score, priority_tier,
               priority_badge, tags, custom_fields, reporter_id, assignee_id, routing_rule_id,
               response_due_at, resolution_due_at, first_response_at, solved_at, closed_at, sla_breached_at,
               category_snapshot, sla_snapshot, priority_snapshot, tags_snapshot, created_at, updated_at`

func (r *ticketRepository) CreateNumbered(ctx context.Context, ticket *domain.Ticket, prefix string) error {
	return persistence.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "ticket_seq:"+prefix); err != nil {
			return err
		}
		var seq int
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(ticket_seq), 0) + 1 FROM tickets WHERE ticket_prefix=$1`, prefix,
		).Scan(&seq); err != nil {
			return err
		}
		ticket.Sequence = seq
		ticket.TicketNumber = domain.FormatTicketNumber(prefix, seq)

		const query = `
        INSERT INTO tickets (ticket_number, ticket_prefix, ticket_seq, department_id, owner_team, category_id,
            vendor_handle, customer_email, customer_name, subject, description, status, priority_score,
            priority_tier, priority_badge, tags, custom_fields, reporter_id, assignee_id, routing_rule_id,
            response_due_at, resolution_due_at, category_snapshot, sla_snapshot, priority_snapshot, tags_snapshot,
            created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$27)
        RETURNING id, updated_at`
		return tx.QueryRow(ctx, query,
			ticket.TicketNumber,
			prefix,
			seq,
			ticket.DepartmentID,
			ticket.OwnerTeam,
			ticket.CategoryID,
			ticket.VendorHandle,
			ticket.CustomerEmail,
			ticket.CustomerName,
			ticket.Subject,
			ticket.Description,
			ticket.Status,
			ticket.PriorityScore,
			ticket.PriorityTier,
			ticket.PriorityBadge,
			ticket.Tags,
			customFieldsOrEmpty(ticket.CustomFields),
			ticket.ReporterID,
			ticket.AssigneeID,
			ticket.RoutingRuleID,
			ticket.ResponseDueAt,
			ticket.ResolutionDueAt,
			ticket.CategorySnapshot,
			ticket.SLASnapshot,
			ticket.PrioritySnapshot,
			ticket.TagsSnapshot,
			ticket.CreatedAt,
		).Scan(&ticket.ID, &ticket.UpdatedAt)
	})
}

// Update writes mutable columns only. Number and snapshots are never rewritten.
func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET department_id=$1, owner_team=$2, category_id=$3, vendor_handle=$4, customer_email=$5,
            customer_name=$6, subject=$7, description=$8, status=$9, priority_score=$10, priority_tier=$11,
            priority_badge=$12, tags=$13, custom_fields=$14, assignee_id=$15, first_response_at=$16,
            solved_at=$17, closed_at=$18, sla_breached_at=COALESCE(sla_breached_at, $19), updated_at=NOW()
        WHERE id=$20
        RETURNING updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.DepartmentID,
		ticket.OwnerTeam,
		ticket.CategoryID,
		ticket.VendorHandle,
		ticket.CustomerEmail,
		ticket.CustomerName,
		ticket.Subject,
		ticket.Description,
		ticket.Status,
		ticket.PriorityScore,
		ticket.PriorityTier,
		ticket.PriorityBadge,
		ticket.Tags,
		customFieldsOrEmpty(ticket.CustomFields),
		ticket.AssigneeID,
		ticket.FirstResponseAt,
		ticket.SolvedAt,
		ticket.ClosedAt,
		ticket.SLABreachedAt,
		ticket.ID,
	).Scan(&ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return scanTicket(r.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id))
}

func (r *ticketRepository) GetByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	return scanTicket(r.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE ticket_number=$1`, strings.ToUpper(number)))
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int, error) {
	var where whereBuilder
	if filter.DepartmentID != nil {
		where.add("department_id=$%d", *filter.DepartmentID)
	}
	if filter.Unassigned {
		where.addRaw("assignee_id IS NULL")
	} else if filter.AssigneeID != nil {
		where.add("assignee_id=$%d", *filter.AssigneeID)
	}
	if filter.CategoryID != nil {
		where.add("category_id=$%d", *filter.CategoryID)
	}
	if filter.VendorHandle != nil {
		where.add("vendor_handle=$%d", *filter.VendorHandle)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		where.add("status = ANY($%d)", statuses)
	}
	if term := strings.TrimSpace(filter.SearchTerm); term != "" {
		where.add("(subject ILIKE $%[1]d OR description ILIKE $%[1]d OR ticket_number ILIKE $%[1]d OR customer_email ILIKE $%[1]d)", "%"+term+"%")
	}
	if filter.CreatedFrom != nil {
		where.add("created_at >= $%d", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		where.add("created_at <= $%d", *filter.CreatedTo)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tickets`+where.sql(), where.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := pageBounds(filter.Limit, filter.Offset, 50)
	query := `SELECT ` + ticketColumns + ` FROM tickets` + where.sql() +
		` ORDER BY created_at DESC, id LIMIT $` + itoa(len(where.args)+1) + ` OFFSET $` + itoa(len(where.args)+2)
	tickets, err := r.queryTickets(ctx, query, append(where.args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	return tickets, total, nil
}

func (r *ticketRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return errIfNone(cmd.RowsAffected())
}

func (r *ticketRepository) CountOpenByAssignees(ctx context.Context, assigneeIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(assigneeIDs))
	for _, id := range assigneeIDs {
		counts[id] = 0
	}
	if len(assigneeIDs) == 0 {
		return counts, nil
	}
	const query = `
        SELECT assignee_id::text, COUNT(*) FROM tickets
        WHERE assignee_id::text = ANY($1) AND status = ANY($2)
        GROUP BY assignee_id`
	rows, err := r.pool.Query(ctx, query, assigneeIDs, openStatusStrings())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    string
			count int
		)
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		counts[id] = count
	}
	return counts, rows.Err()
}

func (r *ticketRepository) ListSLABreachCandidates(ctx context.Context, now time.Time) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
        WHERE status = ANY($1) AND sla_breached_at IS NULL AND resolution_due_at IS NOT NULL AND resolution_due_at < $2
        ORDER BY resolution_due_at`
	return r.queryTickets(ctx, query, openStatusStrings(), now)
}

// MarkSLABreached stamps the breach once; false means another sweep got there first.
func (r *ticketRepository) MarkSLABreached(ctx context.Context, id string, at time.Time) (bool, error) {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE tickets SET sla_breached_at=$1, updated_at=NOW() WHERE id=$2 AND sla_breached_at IS NULL`, at, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *ticketRepository) Analytics(ctx context.Context, filter AnalyticsFilter) (*AnalyticsSummary, error) {
	var where whereBuilder
	if filter.DepartmentID != nil {
		where.add("department_id=$%d", *filter.DepartmentID)
	}
	if filter.From != nil {
		where.add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		where.add("created_at <= $%d", *filter.To)
	}
	summary := NewAnalyticsSummary()

	var avg *float64
	totalsQuery := `SELECT COUNT(*), COUNT(*) FILTER (WHERE sla_breached_at IS NOT NULL OR solved_at > resolution_due_at),
        AVG(EXTRACT(EPOCH FROM (first_response_at - created_at)) / 60) FILTER (WHERE first_response_at IS NOT NULL)
        FROM tickets` + where.sql()
	if err := r.pool.QueryRow(ctx, totalsQuery, where.args...).Scan(&summary.Total, &summary.SLABreached, &avg); err != nil {
		return nil, err
	}
	if avg != nil {
		summary.AvgFirstResponseMinutes = *avg
	}

	groups := []struct {
		expr   string
		target map[string]int
	}{
		{"status", summary.ByStatus},
		{"department_id::text", summary.ByDepartment},
		{"priority_tier", summary.ByPriorityTier},
	}
	for _, g := range groups {
		if err := r.groupCount(ctx, `SELECT `+g.expr+`, COUNT(*) FROM tickets`+where.sql()+` GROUP BY 1`, where.args, g.target); err != nil {
			return nil, err
		}
	}

	openWhere := where
	openWhere.args = append([]any(nil), where.args...)
	openWhere.clauses = append([]string(nil), where.clauses...)
	openWhere.addRaw("assignee_id IS NOT NULL")
	openWhere.add("status = ANY($%d)", openStatusStrings())
	if err := r.groupCount(ctx, `SELECT assignee_id::text, COUNT(*) FROM tickets`+openWhere.sql()+` GROUP BY 1`, openWhere.args, summary.OpenByAgent); err != nil {
		return nil, err
	}
	return summary, nil
}

func (r *ticketRepository) groupCount(ctx context.Context, query string, args []any, target map[string]int) error {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key   string
			count int
		)
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		target[key] = count
	}
	return rows.Err()
}

func (r *ticketRepository) queryTickets(ctx context.Context, query string, args ...any) ([]domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var t domain.Ticket
	if err := row.Scan(
		&t.ID,
		&t.TicketNumber,
		&t.Sequence,
		&t.DepartmentID,
		&t.OwnerTeam,
		&t.CategoryID,
		&t.VendorHandle,
		&t.CustomerEmail,
		&t.CustomerName,
		&t.Subject,
		&t.Description,
		&t.Status,
		&t.PriorityScore,
		&t.PriorityTier,
		&t.PriorityBadge,
		&t.Tags,
		&t.CustomFields,
		&t.ReporterID,
		&t.AssigneeID,
		&t.RoutingRuleID,
		&t.ResponseDueAt,
		&t.ResolutionDueAt,
		&t.FirstResponseAt,
		&t.SolvedAt,
		&t.ClosedAt,
		&t.SLABreachedAt,
		&t.CategorySnapshot,
		&t.SLASnapshot,
		&t.PrioritySnapshot,
		&t.TagsSnapshot,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &t, nil
}

func customFieldsOrEmpty(fields map[string]any) map[string]any {
	if fields == nil {
		return map[string]any{}
	}
	return fields
}

func openStatusStrings() []string {
	out := make([]string, len(domain.OpenStatuses))
	for i, s := range domain.OpenStatuses {
		out[i] = string(s)
	}
	return out
}

package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/repository"
)

type ticketRepo struct{ d *db }

func (r *ticketRepo) checkReferences(t *domain.Ticket) error {
	if _, ok := r.d.departments[t.DepartmentID]; !ok {
		return foreignKeyViolation("tickets_department_id_fkey")
	}
	if _, ok := r.d.categories[t.CategoryID]; !ok {
		return foreignKeyViolation("tickets_category_id_fkey")
	}
	if t.VendorHandle != nil {
		if _, ok := r.d.vendors[*t.VendorHandle]; !ok {
			return foreignKeyViolation("tickets_vendor_handle_fkey")
		}
	}
	if t.AssigneeID != nil {
		if _, ok := r.d.users[*t.AssigneeID]; !ok {
			return foreignKeyViolation("tickets_assignee_id_fkey")
		}
	}
	return nil
}

func (r *ticketRepo) CreateNumbered(_ context.Context, t *domain.Ticket, prefix string) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if err := r.checkReferences(t); err != nil {
		return err
	}
	seq := 0
	for _, existing := range r.d.tickets {
		if strings.HasPrefix(existing.TicketNumber, prefix+"-") && existing.Sequence > seq {
			seq = existing.Sequence
		}
	}
	t.ID = uuid.NewString()
	t.Sequence = seq + 1
	t.TicketNumber = domain.FormatTicketNumber(prefix, t.Sequence)
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.d.stamp()
	}
	t.UpdatedAt = t.CreatedAt
	if t.CustomFields == nil {
		t.CustomFields = map[string]any{}
	}
	r.d.tickets[t.ID] = cloneTicket(t)
	return nil
}

func (r *ticketRepo) Update(_ context.Context, t *domain.Ticket) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	existing, ok := r.d.tickets[t.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if err := r.checkReferences(t); err != nil {
		return err
	}
	updated := cloneTicket(t)
	updated.TicketNumber = existing.TicketNumber
	updated.Sequence = existing.Sequence
	updated.ReporterID = existing.ReporterID
	updated.RoutingRuleID = cloneString(existing.RoutingRuleID)
	updated.ResponseDueAt = cloneTime(existing.ResponseDueAt)
	updated.ResolutionDueAt = cloneTime(existing.ResolutionDueAt)
	updated.CategorySnapshot = existing.CategorySnapshot
	updated.CategorySnapshot.Path = cloneStrings(existing.CategorySnapshot.Path)
	updated.SLASnapshot = existing.SLASnapshot
	updated.PrioritySnapshot = existing.PrioritySnapshot
	updated.PrioritySnapshot.Components = cloneIntMap(existing.PrioritySnapshot.Components)
	updated.TagsSnapshot = cloneStrings(existing.TagsSnapshot)
	if existing.SLABreachedAt != nil {
		updated.SLABreachedAt = cloneTime(existing.SLABreachedAt)
	}
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = r.d.stamp()
	if updated.CustomFields == nil {
		updated.CustomFields = map[string]any{}
	}
	r.d.tickets[t.ID] = updated
	t.UpdatedAt = updated.UpdatedAt
	return nil
}

func (r *ticketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	t, ok := r.d.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cloneTicket(t), nil
}

func (r *ticketRepo) GetByNumber(_ context.Context, number string) (*domain.Ticket, error) {
	number = strings.ToUpper(number)
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for _, t := range r.d.tickets {
		if t.TicketNumber == number {
			return cloneTicket(t), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *ticketRepo) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, int, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	term := strings.ToLower(strings.TrimSpace(filter.SearchTerm))
	var out []domain.Ticket
	for _, t := range r.d.tickets {
		if !matchesTicket(t, filter, term) {
			continue
		}
		out = append(out, *cloneTicket(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, filter.Limit, filter.Offset, 50), len(out), nil
}

func matchesTicket(t *domain.Ticket, f repository.TicketFilter, term string) bool {
	if f.DepartmentID != nil && t.DepartmentID != *f.DepartmentID {
		return false
	}
	if f.Unassigned && t.AssigneeID != nil {
		return false
	}
	if !f.Unassigned && f.AssigneeID != nil && (t.AssigneeID == nil || *t.AssigneeID != *f.AssigneeID) {
		return false
	}
	if f.CategoryID != nil && t.CategoryID != *f.CategoryID {
		return false
	}
	if f.VendorHandle != nil && (t.VendorHandle == nil || *t.VendorHandle != *f.VendorHandle) {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if t.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if term != "" {
		haystack := strings.ToLower(t.Subject + "\n" + t.Description + "\n" + t.TicketNumber + "\n" + t.CustomerEmail)
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	if f.CreatedFrom != nil && t.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && t.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	return true
}

func (r *ticketRepo) Delete(_ context.Context, id string) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, ok := r.d.tickets[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.d.tickets, id)
	r.d.comments = filterSlice(r.d.comments, func(c *domain.TicketComment) bool { return c.TicketID != id })
	r.d.activity = filterSlice(r.d.activity, func(a *domain.ActivityLog) bool { return a.TicketID != id })
	r.d.notifications = filterSlice(r.d.notifications, func(n *domain.Notification) bool {
		return n.TicketID == nil || *n.TicketID != id
	})
	return nil
}

func (r *ticketRepo) CountOpenByAssignees(_ context.Context, assigneeIDs []string) (map[string]int, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	counts := make(map[string]int, len(assigneeIDs))
	for _, id := range assigneeIDs {
		counts[id] = 0
	}
	for _, t := range r.d.tickets {
		if t.AssigneeID == nil || !t.Status.IsOpen() {
			continue
		}
		if _, tracked := counts[*t.AssigneeID]; tracked {
			counts[*t.AssigneeID]++
		}
	}
	return counts, nil
}

func (r *ticketRepo) ListSLABreachCandidates(_ context.Context, now time.Time) ([]domain.Ticket, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	var out []domain.Ticket
	for _, t := range r.d.tickets {
		if t.Status.IsOpen() && t.SLABreachedAt == nil && t.ResolutionDueAt != nil && t.ResolutionDueAt.Before(now) {
			out = append(out, *cloneTicket(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResolutionDueAt.Before(*out[j].ResolutionDueAt) })
	return out, nil
}

func (r *ticketRepo) MarkSLABreached(_ context.Context, id string, at time.Time) (bool, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	t, ok := r.d.tickets[id]
	if !ok || t.SLABreachedAt != nil {
		return false, nil
	}
	stamp := at
	t.SLABreachedAt = &stamp
	t.UpdatedAt = r.d.stamp()
	return true, nil
}

func (r *ticketRepo) Analytics(_ context.Context, filter repository.AnalyticsFilter) (*repository.AnalyticsSummary, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	summary := repository.NewAnalyticsSummary()
	var (
		responseTotal float64
		responseCount int
	)
	for _, t := range r.d.tickets {
		if filter.DepartmentID != nil && t.DepartmentID != *filter.DepartmentID {
			continue
		}
		if filter.From != nil && t.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && t.CreatedAt.After(*filter.To) {
			continue
		}
		summary.Total++
		summary.ByStatus[string(t.Status)]++
		summary.ByDepartment[t.DepartmentID]++
		summary.ByPriorityTier[t.PriorityTier]++
		breached := t.SLABreachedAt != nil ||
			(t.SolvedAt != nil && t.ResolutionDueAt != nil && t.SolvedAt.After(*t.ResolutionDueAt))
		if breached {
			summary.SLABreached++
		}
		if t.FirstResponseAt != nil {
			responseTotal += t.FirstResponseAt.Sub(t.CreatedAt).Minutes()
			responseCount++
		}
		if t.AssigneeID != nil && t.Status.IsOpen() {
			summary.OpenByAgent[*t.AssigneeID]++
		}
	}
	if responseCount > 0 {
		summary.AvgFirstResponseMinutes = responseTotal / float64(responseCount)
	}
	return summary, nil
}

func filterSlice[T any](items []T, keep func(T) bool) []T {
	out := items[:0]
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

package service

import (
	"context"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/flow-helpdesk/internal/auth"
	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/events"
	"github.com/spec-kit/flow-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/flow-helpdesk/pkg/util/errorutil"
)

const (
	maxSubjectLength = 255
	fallbackPrefix   = "TKT"
)

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets     repository.TicketRepository
	comments    repository.CommentRepository
	activity    repository.ActivityRepository
	departments repository.DepartmentRepository
	users       repository.UserRepository
	categories  *CategoryService
	vendors     *VendorService
	routing     *RoutingService
	sla         *SLAService
	priority    *PriorityService
	policy      *auth.Policy
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	now         Clock
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo     repository.TicketRepository
	CommentRepo    repository.CommentRepository
	ActivityRepo   repository.ActivityRepository
	DepartmentRepo repository.DepartmentRepository
	UserRepo       repository.UserRepository
	Categories     *CategoryService
	Vendors        *VendorService
	Routing        *RoutingService
	SLA            *SLAService
	Priority       *PriorityService
	Policy         *auth.Policy
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
	Clock          Clock
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:     deps.TicketRepo,
		comments:    deps.CommentRepo,
		activity:    deps.ActivityRepo,
		departments: deps.DepartmentRepo,
		users:       deps.UserRepo,
		categories:  deps.Categories,
		vendors:     deps.Vendors,
		routing:     deps.Routing,
		sla:         deps.SLA,
		priority:    deps.Priority,
		policy:      deps.Policy,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
		now:         clockOrDefault(deps.Clock),
	}
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Subject       string
	Description   string
	CategoryID    *string
	DepartmentID  *string
	VendorHandle  *string
	CustomerEmail string
	CustomerName  string
	Tags          []string
	CustomFields  map[string]any
}

// TicketListFilter describes listing filters.
type TicketListFilter struct {
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

// TicketUpdateInput carries editable fields. Nil leaves a field untouched.
type TicketUpdateInput struct {
	Subject       *string
	Description   *string
	Tags          []string
	CustomFields  map[string]any
	VendorHandle  *string
	CustomerEmail *string
	CustomerName  *string
}

var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusNew:     {domain.TicketStatusOpen, domain.TicketStatusPending, domain.TicketStatusSolved, domain.TicketStatusClosed},
	domain.TicketStatusOpen:    {domain.TicketStatusPending, domain.TicketStatusSolved, domain.TicketStatusClosed},
	domain.TicketStatusPending: {domain.TicketStatusOpen, domain.TicketStatusSolved, domain.TicketStatusClosed},
	domain.TicketStatusSolved:  {domain.TicketStatusOpen, domain.TicketStatusClosed},
	domain.TicketStatusClosed:  {domain.TicketStatusOpen},
}

func isValidTransition(current, next domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the statuses reachable from current.
func AllowedTransitions(current domain.TicketStatus) []domain.TicketStatus {
	return append([]domain.TicketStatus(nil), allowedTransitions[current]...)
}

func (s *TicketService) require(actor *auth.Principal, perm domain.Permission) error {
	if actor == nil || actor.User == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	if !actor.Can(s.policy, perm) {
		return apperrors.NewForbidden("missing permission " + string(perm))
	}
	return nil
}

// Create files a new ticket: category, vendor, routing, numbering, priority and SLA.
func (s *TicketService) Create(ctx context.Context, actor *auth.Principal, input TicketCreateInput) (*domain.Ticket, error) {
	if err := s.require(actor, domain.PermTicketsCreate); err != nil {
		return nil, err
	}
	subject := strings.TrimSpace(input.Subject)
	if subject == "" {
		return nil, apperrors.NewValidationError("subject is required", nil)
	}
	if len([]rune(subject)) > maxSubjectLength {
		return nil, apperrors.NewValidationError("subject is too long", map[string]any{"max": maxSubjectLength})
	}
	if input.CustomFields == nil {
		input.CustomFields = map[string]any{}
	}

	category, categorySnap, err := s.categories.ResolveForTicket(ctx, input.CategoryID)
	if err != nil {
		return nil, err
	}
	if missing := MissingRequiredFields(category, input.CustomFields); len(missing) > 0 {
		return nil, apperrors.NewValidationError("missing required fields", map[string]any{"fields": missing})
	}

	var vendor *domain.Vendor
	if input.VendorHandle != nil && strings.TrimSpace(*input.VendorHandle) != "" {
		vendor, err = s.vendors.ResolveForTicket(ctx, *input.VendorHandle)
		if err != nil {
			return nil, err
		}
	}

	departmentID := derefString(trimmedOrNil(input.DepartmentID))
	if departmentID == "" && category.DepartmentID != nil {
		departmentID = *category.DepartmentID
	}
	if departmentID == "" {
		departmentID = actor.DepartmentID()
	}
	if departmentID == "" {
		return nil, apperrors.NewValidationError("department could not be determined", nil)
	}

	decision, err := s.routing.Plan(ctx, category.ID, departmentID)
	if err != nil {
		return nil, err
	}
	dept, err := s.departments.GetByID(ctx, decision.DepartmentID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NewValidationError("department not found", map[string]any{"department_id": decision.DepartmentID})
		}
		return nil, apperrors.MapError(err)
	}
	if !dept.IsActive {
		return nil, apperrors.NewValidationError("department is inactive", map[string]any{"department_id": dept.ID})
	}

	priorityCfg, err := s.priority.Active(ctx)
	if err != nil {
		return nil, err
	}
	gmvTier := ""
	if vendor != nil {
		gmvTier = vendor.GMVTier
	}
	prio := ComputePriority(priorityCfg, category.BasePriorityScore, gmvTier, decision.Boost)

	slaCfg, err := s.sla.Resolve(ctx, dept.ID, prio.Tier, category)
	if err != nil {
		return nil, err
	}
	if err := s.routing.Assign(ctx, &decision); err != nil {
		return nil, err
	}
	now := s.now()
	slaSnap := SLASnapshotFor(slaCfg, now)
	tags := mergeTags(category.DefaultTags, input.Tags)

	ticket := &domain.Ticket{
		DepartmentID:     dept.ID,
		OwnerTeam:        decision.OwnerTeam,
		CategoryID:       category.ID,
		CustomerEmail:    strings.ToLower(strings.TrimSpace(input.CustomerEmail)),
		CustomerName:     strings.TrimSpace(input.CustomerName),
		Subject:          subject,
		Description:      strings.TrimSpace(input.Description),
		Status:           domain.TicketStatusNew,
		PriorityScore:    prio.Score,
		PriorityTier:     prio.Tier,
		PriorityBadge:    prio.Badge,
		Tags:             append([]string(nil), tags...),
		CustomFields:     input.CustomFields,
		ReporterID:       actor.User.ID,
		AssigneeID:       decision.AssigneeID,
		ResponseDueAt:    &slaSnap.ResponseDueAt,
		ResolutionDueAt:  &slaSnap.ResolutionDueAt,
		CategorySnapshot: categorySnap,
		SLASnapshot:      slaSnap,
		PrioritySnapshot: domain.PrioritySnapshot{
			ConfigVersion: prio.ConfigVersion,
			Score:         prio.Score,
			Tier:          prio.Tier,
			Badge:         prio.Badge,
			Components:    prio.Components,
		},
		TagsSnapshot: tags,
		CreatedAt:    now,
	}
	if vendor != nil {
		ticket.VendorHandle = ptrString(vendor.Handle)
	}
	if decision.Rule != nil {
		ticket.RoutingRuleID = ptrString(decision.Rule.ID)
	}

	if err := s.tickets.CreateNumbered(ctx, ticket, ticketPrefix(dept)); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("ticket_number", ticket.TicketNumber),
		zap.String("department_id", ticket.DepartmentID),
		zap.String("priority_tier", ticket.PriorityTier),
	)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Ticket:   ticket,
		Actor:    actorOf(actor),
		Payload: events.TicketCreatedPayload{
			TicketNumber: ticket.TicketNumber,
			DepartmentID: ticket.DepartmentID,
			PriorityTier: ticket.PriorityTier,
			Subject:      ticket.Subject,
		},
	})
	if ticket.AssigneeID != nil {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketAssigned,
			TicketID: ticket.ID,
			Ticket:   ticket,
			Actor:    events.Actor{},
			Payload:  events.TicketAssignedPayload{NewAssigneeID: ticket.AssigneeID},
		})
	}
	return ticket, nil
}

func ticketPrefix(dept *domain.Department) string {
	code := strings.ToUpper(strings.TrimSpace(dept.Code))
	if code == "" {
		return fallbackPrefix
	}
	return code
}

// Get loads a ticket by id or ticket number within the caller's department scope.
func (s *TicketService) Get(ctx context.Context, actor *auth.Principal, idOrNumber string) (*domain.Ticket, error) {
	if actor == nil || actor.User == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	var (
		ticket *domain.Ticket
		err    error
	)
	if _, parseErr := uuid.Parse(idOrNumber); parseErr == nil {
		ticket, err = s.tickets.GetByID(ctx, idOrNumber)
	} else {
		ticket, err = s.tickets.GetByNumber(ctx, idOrNumber)
	}
	if err != nil {
		return nil, mapNotFound(err, "ticket", map[string]any{"ticket_id": idOrNumber})
	}
	if !actor.CanAccessDepartment(ticket.DepartmentID) {
		return nil, apperrors.NewForbidden("ticket belongs to another department")
	}
	return ticket, nil
}

// List returns tickets visible to the caller. Callers without view-all only see their department.
func (s *TicketService) List(ctx context.Context, actor *auth.Principal, filter TicketListFilter) ([]domain.Ticket, int, error) {
	if actor == nil || actor.User == nil {
		return nil, 0, apperrors.NewUnauthorized("authentication required")
	}
	repoFilter := repository.TicketFilter{
		DepartmentID: filter.DepartmentID,
		AssigneeID:   filter.AssigneeID,
		Unassigned:   filter.Unassigned,
		CategoryID:   filter.CategoryID,
		VendorHandle: filter.VendorHandle,
		Statuses:     filter.Statuses,
		SearchTerm:   strings.TrimSpace(filter.SearchTerm),
		CreatedFrom:  filter.CreatedFrom,
		CreatedTo:    filter.CreatedTo,
		Limit:        filter.Limit,
		Offset:       filter.Offset,
	}
	if !actor.ViewAll {
		own := actor.DepartmentID()
		if own == "" {
			return []domain.Ticket{}, 0, nil
		}
		if filter.DepartmentID != nil && *filter.DepartmentID != own {
			return []domain.Ticket{}, 0, nil
		}
		repoFilter.DepartmentID = &own
	}
	for _, st := range filter.Statuses {
		if !st.Valid() {
			return nil, 0, apperrors.NewValidationError("unknown status", map[string]any{"status": string(st)})
		}
	}
	list, total, err := s.tickets.List(ctx, repoFilter)
	if err != nil {
		return nil, 0, apperrors.MapError(err)
	}
	if list == nil {
		list = []domain.Ticket{}
	}
	return list, total, nil
}

// Update edits the mutable ticket fields. Snapshots and the number never change.
func (s *TicketService) Update(ctx context.Context, actor *auth.Principal, id string, input TicketUpdateInput) (*domain.Ticket, error) {
	if err := s.require(actor, domain.PermTicketsEdit); err != nil {
		return nil, err
	}
	ticket, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	oldValues := map[string]any{}
	newValues := map[string]any{}
	track := func(field string, before, after any) {
		if reflect.DeepEqual(before, after) {
			return
		}
		oldValues[field] = before
		newValues[field] = after
	}

	if input.Subject != nil {
		subject := strings.TrimSpace(*input.Subject)
		if subject == "" {
			return nil, apperrors.NewValidationError("subject must not be empty", nil)
		}
		if len([]rune(subject)) > maxSubjectLength {
			return nil, apperrors.NewValidationError("subject is too long", map[string]any{"max": maxSubjectLength})
		}
		track("subject", ticket.Subject, subject)
		ticket.Subject = subject
	}
	if input.Description != nil {
		desc := strings.TrimSpace(*input.Description)
		track("description", ticket.Description, desc)
		ticket.Description = desc
	}
	if input.Tags != nil {
		tags := mergeTags(input.Tags)
		track("tags", ticket.Tags, tags)
		ticket.Tags = tags
	}
	if input.CustomFields != nil {
		track("customFields", ticket.CustomFields, input.CustomFields)
		ticket.CustomFields = input.CustomFields
	}
	if input.CustomerEmail != nil {
		email := strings.ToLower(strings.TrimSpace(*input.CustomerEmail))
		track("customerEmail", ticket.CustomerEmail, email)
		ticket.CustomerEmail = email
	}
	if input.CustomerName != nil {
		name := strings.TrimSpace(*input.CustomerName)
		track("customerName", ticket.CustomerName, name)
		ticket.CustomerName = name
	}
	if input.VendorHandle != nil {
		var handle *string
		if h := strings.TrimSpace(*input.VendorHandle); h != "" {
			vendor, err := s.vendors.ResolveForTicket(ctx, h)
			if err != nil {
				return nil, err
			}
			handle = ptrString(vendor.Handle)
		}
		track("vendorHandle", derefString(ticket.VendorHandle), derefString(handle))
		ticket.VendorHandle = handle
	}
	if len(newValues) == 0 {
		return ticket, nil
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, mapNotFound(err, "ticket", map[string]any{"ticket_id": ticket.ID})
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketUpdated,
		TicketID: ticket.ID,
		Ticket:   ticket,
		Actor:    actorOf(actor),
		Payload:  events.TicketUpdatedPayload{Old: oldValues, New: newValues},
	})
	return ticket, nil
}

// ChangeStatus moves a ticket through the transition table. The current status is a no-op.
func (s *TicketService) ChangeStatus(ctx context.Context, actor *auth.Principal, id string, next domain.TicketStatus) (*domain.Ticket, error) {
	if err := s.require(actor, domain.PermTicketsEdit); err != nil {
		return nil, err
	}
	if !next.Valid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": string(next)})
	}
	ticket, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	current := ticket.Status
	if current == next {
		return ticket, nil
	}
	if !isValidTransition(current, next) {
		return nil, apperrors.NewValidationError("invalid status transition", map[string]any{
			"from": string(current),
			"to":   string(next),
		})
	}
	now := s.now()
	ticket.Status = next
	switch next {
	case domain.TicketStatusSolved:
		ticket.SolvedAt = &now
	case domain.TicketStatusClosed:
		ticket.ClosedAt = &now
		if ticket.SolvedAt == nil {
			ticket.SolvedAt = &now
		}
	case domain.TicketStatusOpen:
		ticket.SolvedAt = nil
		ticket.ClosedAt = nil
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, mapNotFound(err, "ticket", map[string]any{"ticket_id": ticket.ID})
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Ticket:   ticket,
		Actor:    actorOf(actor),
		Payload:  events.TicketStatusChangedPayload{OldStatus: current, NewStatus: next},
	})
	return ticket, nil
}

// Assign sets or clears the assignee. Agents may assign themselves with tickets.edit;
// every other change needs tickets.assign.
func (s *TicketService) Assign(ctx context.Context, actor *auth.Principal, id string, assigneeID *string) (*domain.Ticket, error) {
	if actor == nil || actor.User == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	assigneeID = trimmedOrNil(assigneeID)
	selfAssign := assigneeID != nil && *assigneeID == actor.User.ID
	if !actor.Can(s.policy, domain.PermTicketsAssign) {
		if !selfAssign || !actor.Can(s.policy, domain.PermTicketsEdit) {
			return nil, apperrors.NewForbidden("missing permission " + string(domain.PermTicketsAssign))
		}
	}
	ticket, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if equalStringPtr(ticket.AssigneeID, assigneeID) {
		return ticket, nil
	}
	if assigneeID != nil {
		target, err := s.users.GetByID(ctx, *assigneeID)
		if err != nil {
			if apperrors.IsNotFound(err) {
				return nil, apperrors.NewValidationError("assignee not found", map[string]any{"assignee_id": *assigneeID})
			}
			return nil, apperrors.MapError(err)
		}
		if !target.IsActive {
			return nil, apperrors.NewValidationError("assignee is deactivated", map[string]any{"assignee_id": target.ID})
		}
		if !actor.ViewAll && (target.DepartmentID == nil || *target.DepartmentID != ticket.DepartmentID) {
			return nil, apperrors.NewValidationError("assignee is not in the ticket department", map[string]any{"assignee_id": target.ID})
		}
	}
	previous := ticket.AssigneeID
	ticket.AssigneeID = assigneeID
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		Ticket:   ticket,
		Actor:    actorOf(actor),
		Payload:  events.TicketAssignedPayload{OldAssigneeID: previous, NewAssigneeID: assigneeID},
	})
	return ticket, nil
}

// AddComment appends a comment. The first public comment records the first response time.
func (s *TicketService) AddComment(ctx context.Context, actor *auth.Principal, id, body string, internal bool) (*domain.TicketComment, error) {
	if err := s.require(actor, domain.PermTicketsEdit); err != nil {
		return nil, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("comment body is required", nil)
	}
	ticket, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	comment := &domain.TicketComment{
		TicketID:   ticket.ID,
		AuthorID:   actor.User.ID,
		Body:       body,
		IsInternal: internal,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, apperrors.MapError(err)
	}
	if !internal && ticket.FirstResponseAt == nil {
		at := comment.CreatedAt
		if at.IsZero() {
			at = s.now()
		}
		ticket.FirstResponseAt = &at
		if err := s.tickets.Update(ctx, ticket); err != nil {
			return nil, apperrors.MapError(err)
		}
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCommented,
		TicketID: ticket.ID,
		Ticket:   ticket,
		Actor:    actorOf(actor),
		Payload: events.TicketCommentedPayload{
			CommentID:   comment.ID,
			IsInternal:  internal,
			BodyPreview: stringPreview(body, 140),
		},
	})
	return comment, nil
}

// ListComments returns the comments of a visible ticket, oldest first.
func (s *TicketService) ListComments(ctx context.Context, actor *auth.Principal, id string) ([]domain.TicketComment, error) {
	ticket, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	list, err := s.comments.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

// Activity returns the activity log of a visible ticket.
func (s *TicketService) Activity(ctx context.Context, actor *auth.Principal, id string) ([]domain.ActivityLog, error) {
	ticket, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	list, err := s.activity.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

// Delete removes a ticket with its comments and activity.
func (s *TicketService) Delete(ctx context.Context, actor *auth.Principal, id string) error {
	if err := s.require(actor, domain.PermTicketsDelete); err != nil {
		return err
	}
	ticket, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.tickets.Delete(ctx, ticket.ID); err != nil {
		return mapNotFound(err, "ticket", map[string]any{"ticket_id": ticket.ID})
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketDeleted,
		TicketID: ticket.ID,
		Ticket:   ticket,
		Actor:    actorOf(actor),
		Payload: events.EntityChangedPayload{
			Action:     "ticket.deleted",
			EntityType: "ticket",
			EntityID:   ticket.ID,
			Changes:    map[string]any{"ticketNumber": ticket.TicketNumber},
		},
	})
	return nil
}

// SweepSLA flags open tickets past their resolution target. Each ticket is flagged once.
func (s *TicketService) SweepSLA(ctx context.Context) (int, error) {
	now := s.now()
	candidates, err := s.tickets.ListSLABreachCandidates(ctx, now)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	flagged := 0
	for i := range candidates {
		t := &candidates[i]
		marked, err := s.tickets.MarkSLABreached(ctx, t.ID, now)
		if err != nil {
			s.logger.Warn("sla breach mark failed", zap.String("ticket_id", t.ID), zap.Error(err))
			continue
		}
		if !marked {
			continue
		}
		flagged++
		t.SLABreachedAt = &now
		var due time.Time
		if t.ResolutionDueAt != nil {
			due = *t.ResolutionDueAt
		}
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketSLABreached,
			TicketID: t.ID,
			Ticket:   t,
			Payload:  events.TicketSLABreachedPayload{ResolutionDueAt: due},
		})
	}
	if flagged > 0 {
		s.logger.Info("sla sweep flagged tickets", zap.Int("count", flagged))
	}
	return flagged, nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	s.dispatcher.Publish(ctx, event)
}

package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/events"
	"github.com/spec-kit/flow-helpdesk/internal/integrations/mail"
	"github.com/spec-kit/flow-helpdesk/internal/integrations/n8n"
	"github.com/spec-kit/flow-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/flow-helpdesk/pkg/util/errorutil"
)

const systemActor = "system"

// Relay forwards events and chat messages to n8n workflows.
type Relay interface {
	SendSlack(ctx context.Context, msg n8n.SlackMessage) error
	NotifyEvent(ctx context.Context, eventType string, payload any) error
}

// NotificationDependencies wires the side-effect fan-out.
type NotificationDependencies struct {
	ActivityRepo     repository.ActivityRepository
	AuditRepo        repository.AuditRepository
	NotificationRepo repository.NotificationRepository
	UserRepo         repository.UserRepository
	Relay            Relay
	Mailer           mail.Mailer
	SlackChannel     string
	Dispatcher       events.Dispatcher
	Logger           *zap.Logger
}

// NotificationService turns domain events into activity rows, audit rows,
// in-app notifications, Slack messages, emails and n8n events.
type NotificationService struct {
	activity      repository.ActivityRepository
	audit         repository.AuditRepository
	notifications repository.NotificationRepository
	users         repository.UserRepository
	relay         Relay
	mailer        mail.Mailer
	slackChannel  string
	dispatcher    events.Dispatcher
	logger        *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		activity:      deps.ActivityRepo,
		audit:         deps.AuditRepo,
		notifications: deps.NotificationRepo,
		users:         deps.UserRepo,
		relay:         deps.Relay,
		mailer:        deps.Mailer,
		slackChannel:  deps.SlackChannel,
		dispatcher:    deps.Dispatcher,
		logger:        logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, t := range events.TicketEventTypes {
		n.dispatcher.Subscribe(t, "activity", n.recordActivity)
		n.dispatcher.Subscribe(t, "audit", n.recordAudit)
		n.dispatcher.Subscribe(t, "in_app", n.notifyInApp)
		if n.relay != nil {
			n.dispatcher.Subscribe(t, "n8n_event", n.forwardEvent)
		}
	}
	n.dispatcher.Subscribe(events.EventTicketDeleted, "audit", n.recordAudit)
	n.dispatcher.Subscribe(events.EventEntityChanged, "audit", n.recordAudit)
	if n.relay != nil {
		n.dispatcher.Subscribe(events.EventTicketCreated, "slack", n.sendSlack)
		n.dispatcher.Subscribe(events.EventTicketSLABreached, "slack", n.sendSlack)
	}
	if n.mailer != nil {
		n.dispatcher.Subscribe(events.EventTicketAssigned, "email", n.emailAssignee)
	}
}

var activityActions = map[events.EventType]domain.ActivityAction{
	events.EventTicketCreated:       domain.ActivityCreated,
	events.EventTicketStatusChanged: domain.ActivityStatusChanged,
	events.EventTicketAssigned:      domain.ActivityAssigned,
	events.EventTicketUpdated:       domain.ActivityUpdated,
	events.EventTicketCommented:     domain.ActivityCommented,
	events.EventTicketSLABreached:   domain.ActivitySLABreached,
}

func (n *NotificationService) recordActivity(ctx context.Context, event events.Event) error {
	action, ok := activityActions[event.Type]
	if !ok || event.TicketID == "" {
		return nil
	}
	entry := &domain.ActivityLog{
		TicketID: event.TicketID,
		Action:   action,
	}
	if !event.Actor.IsSystem() {
		entry.ActorID = ptrString(event.Actor.UserID)
	}
	switch p := event.Payload.(type) {
	case events.TicketCreatedPayload:
		entry.NewValue = map[string]any{"ticketNumber": p.TicketNumber, "priorityTier": p.PriorityTier}
	case events.TicketStatusChangedPayload:
		entry.OldValue = map[string]any{"status": string(p.OldStatus)}
		entry.NewValue = map[string]any{"status": string(p.NewStatus)}
	case events.TicketAssignedPayload:
		entry.OldValue = map[string]any{"assigneeId": derefString(p.OldAssigneeID)}
		entry.NewValue = map[string]any{"assigneeId": derefString(p.NewAssigneeID)}
	case events.TicketUpdatedPayload:
		entry.OldValue = p.Old
		entry.NewValue = p.New
	case events.TicketCommentedPayload:
		entry.NewValue = map[string]any{"commentId": p.CommentID, "isInternal": p.IsInternal}
	case events.TicketSLABreachedPayload:
		entry.NewValue = map[string]any{"resolutionDueAt": p.ResolutionDueAt}
	}
	return n.activity.Create(ctx, entry)
}

func (n *NotificationService) recordAudit(ctx context.Context, event events.Event) error {
	entry := &domain.AuditLog{ActorEmail: event.Actor.Email}
	if event.Actor.IsSystem() || entry.ActorEmail == "" {
		entry.ActorEmail = systemActor
	}
	switch p := event.Payload.(type) {
	case events.EntityChangedPayload:
		entry.Action = p.Action
		entry.EntityType = p.EntityType
		entry.EntityID = p.EntityID
		entry.Changes = p.Changes
	default:
		entry.Action = string(event.Type)
		entry.EntityType = "ticket"
		entry.EntityID = event.TicketID
		entry.Changes = auditChanges(event)
	}
	return n.audit.Create(ctx, entry)
}

func auditChanges(event events.Event) map[string]any {
	switch p := event.Payload.(type) {
	case events.TicketStatusChangedPayload:
		return map[string]any{"from": string(p.OldStatus), "to": string(p.NewStatus)}
	case events.TicketAssignedPayload:
		return map[string]any{"from": derefString(p.OldAssigneeID), "to": derefString(p.NewAssigneeID)}
	case events.TicketUpdatedPayload:
		return map[string]any{"old": p.Old, "new": p.New}
	case events.TicketCreatedPayload:
		return map[string]any{"ticketNumber": p.TicketNumber, "departmentId": p.DepartmentID}
	}
	return nil
}

func (n *NotificationService) notifyInApp(ctx context.Context, event events.Event) error {
	t := event.Ticket
	if t == nil {
		return nil
	}
	recipients := map[string]struct{}{}
	add := func(id *string) {
		if id != nil && *id != "" && *id != event.Actor.UserID {
			recipients[*id] = struct{}{}
		}
	}
	var title, message string
	switch event.Type {
	case events.EventTicketCreated:
		title = fmt.Sprintf("New ticket %s", t.TicketNumber)
		message = t.Subject
		heads, err := n.users.List(ctx, repository.UserFilter{
			DepartmentID: ptrString(t.DepartmentID),
			Role:         ptrString(domain.RoleHead),
			Active:       ptrBool(true),
		})
		if err != nil {
			return err
		}
		for i := range heads {
			add(&heads[i].ID)
		}
	case events.EventTicketAssigned:
		p, _ := event.Payload.(events.TicketAssignedPayload)
		if p.NewAssigneeID == nil {
			return nil
		}
		title = fmt.Sprintf("Ticket %s assigned to you", t.TicketNumber)
		message = t.Subject
		add(p.NewAssigneeID)
	case events.EventTicketStatusChanged:
		p, _ := event.Payload.(events.TicketStatusChangedPayload)
		title = fmt.Sprintf("Ticket %s is now %s", t.TicketNumber, p.NewStatus)
		message = t.Subject
		add(t.AssigneeID)
		add(ptrString(t.ReporterID))
	case events.EventTicketCommented:
		p, _ := event.Payload.(events.TicketCommentedPayload)
		title = fmt.Sprintf("New comment on %s", t.TicketNumber)
		message = p.BodyPreview
		add(t.AssigneeID)
		if !p.IsInternal {
			add(ptrString(t.ReporterID))
		}
	case events.EventTicketSLABreached:
		title = fmt.Sprintf("SLA breached on %s", t.TicketNumber)
		message = t.Subject
		add(t.AssigneeID)
		heads, err := n.users.List(ctx, repository.UserFilter{
			DepartmentID: ptrString(t.DepartmentID),
			Role:         ptrString(domain.RoleHead),
			Active:       ptrBool(true),
		})
		if err != nil {
			return err
		}
		for i := range heads {
			add(&heads[i].ID)
		}
	default:
		return nil
	}
	for userID := range recipients {
		err := n.notifications.Create(ctx, &domain.Notification{
			UserID:   userID,
			TicketID: ptrString(t.ID),
			Type:     string(event.Type),
			Title:    title,
			Message:  message,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (n *NotificationService) sendSlack(ctx context.Context, event events.Event) error {
	t := event.Ticket
	if t == nil {
		return nil
	}
	var text string
	switch event.Type {
	case events.EventTicketCreated:
		text = fmt.Sprintf("[%s] %s opened: %s", t.PriorityBadge, t.TicketNumber, t.Subject)
	case events.EventTicketSLABreached:
		text = fmt.Sprintf(":rotating_light: SLA breached on %s: %s", t.TicketNumber, t.Subject)
	default:
		return nil
	}
	return n.relay.SendSlack(ctx, n8n.SlackMessage{
		Channel:      n.slackChannel,
		Text:         text,
		TicketNumber: t.TicketNumber,
		PriorityTier: t.PriorityTier,
	})
}

func (n *NotificationService) emailAssignee(ctx context.Context, event events.Event) error {
	t := event.Ticket
	p, _ := event.Payload.(events.TicketAssignedPayload)
	if t == nil || p.NewAssigneeID == nil {
		return nil
	}
	assignee, err := n.users.GetByID(ctx, *p.NewAssigneeID)
	if err != nil {
		return err
	}
	if !assignee.IsActive || strings.TrimSpace(assignee.Email) == "" {
		return nil
	}
	subject := fmt.Sprintf("[%s] %s assigned to you", t.TicketNumber, t.Subject)
	body := fmt.Sprintf("Hi %s,\n\nTicket %s (%s, %s) was assigned to you.\n\n%s\n",
		assignee.Name, t.TicketNumber, t.PriorityTier, t.Status, stringPreview(t.Description, 500))
	return n.mailer.Send(ctx, []string{assignee.Email}, subject, body)
}

func (n *NotificationService) forwardEvent(ctx context.Context, event events.Event) error {
	payload := map[string]any{
		"ticketId": event.TicketID,
		"actor":    event.Actor,
		"data":     event.Payload,
	}
	if t := event.Ticket; t != nil {
		payload["ticketNumber"] = t.TicketNumber
		payload["departmentId"] = t.DepartmentID
		payload["status"] = string(t.Status)
		payload["priorityTier"] = t.PriorityTier
	}
	return n.relay.NotifyEvent(ctx, string(event.Type), payload)
}

// List returns the caller's notifications, newest first.
func (n *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	list, err := n.notifications.ListForUser(ctx, userID, unreadOnly, limit)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

// UnreadCount returns the caller's unread notification count.
func (n *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	count, err := n.notifications.CountUnread(ctx, userID)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	return count, nil
}

// MarkRead marks one of the caller's notifications read.
func (n *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	if err := n.notifications.MarkRead(ctx, userID, id); err != nil {
		return mapNotFound(err, "notification", map[string]any{"notification_id": id})
	}
	return nil
}

// MarkAllRead marks every unread notification of the caller read.
func (n *NotificationService) MarkAllRead(ctx context.Context, userID string) (int, error) {
	count, err := n.notifications.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	return count, nil
}

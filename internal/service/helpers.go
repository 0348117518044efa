package service

import (
	"context"
	"strings"
	"time"

	"github.com/spec-kit/flow-helpdesk/internal/auth"
	"github.com/spec-kit/flow-helpdesk/internal/events"
	apperrors "github.com/spec-kit/flow-helpdesk/pkg/util/errorutil"
)

// Clock returns the current time. Tests replace it.
type Clock func() time.Time

func clockOrDefault(c Clock) Clock {
	if c == nil {
		return func() time.Time { return time.Now().UTC() }
	}
	return c
}

// mapNotFound turns a missing row or an unparseable id into a named 404,
// passing other errors through MapError.
func mapNotFound(err error, resource string, details map[string]any) error {
	if apperrors.IsNotFound(err) {
		return apperrors.NewNotFound(resource, details)
	}
	return apperrors.MapError(err)
}

func actorOf(p *auth.Principal) events.Actor {
	if p == nil {
		return events.Actor{}
	}
	return events.ActorFromUser(p.User)
}

// auditChange publishes an entity change for the audit log.
func auditChange(ctx context.Context, d events.Dispatcher, p *auth.Principal, action, entityType, entityID string, changes map[string]any) {
	if d == nil {
		return
	}
	d.Publish(ctx, events.Event{
		Type:  events.EventEntityChanged,
		Actor: actorOf(p),
		Payload: events.EntityChangedPayload{
			Action:     action,
			EntityType: entityType,
			EntityID:   entityID,
			Changes:    changes,
		},
	})
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

func mergeTags(groups ...[]string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, tags := range groups {
		for _, tag := range tags {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			key := strings.ToLower(tag)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, tag)
		}
	}
	return out
}

func ptrBool(v bool) *bool {
	return &v
}

func ptrString(v string) *string {
	return &v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

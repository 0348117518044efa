package memory

import (
	"time"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
)

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return cloneAnyMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return cloneStrings(typed)
	default:
		return v
	}
}

func cloneAnyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneIntMap(in map[string]int) map[string]int {
	if in == nil {
		return nil
	}
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneBoolMap(in map[string]bool) map[string]bool {
	if in == nil {
		return nil
	}
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneTicket(t *domain.Ticket) *domain.Ticket {
	c := *t
	c.VendorHandle = cloneString(t.VendorHandle)
	c.AssigneeID = cloneString(t.AssigneeID)
	c.RoutingRuleID = cloneString(t.RoutingRuleID)
	c.Tags = cloneStrings(t.Tags)
	c.CustomFields = cloneAnyMap(t.CustomFields)
	c.ResponseDueAt = cloneTime(t.ResponseDueAt)
	c.ResolutionDueAt = cloneTime(t.ResolutionDueAt)
	c.FirstResponseAt = cloneTime(t.FirstResponseAt)
	c.SolvedAt = cloneTime(t.SolvedAt)
	c.ClosedAt = cloneTime(t.ClosedAt)
	c.SLABreachedAt = cloneTime(t.SLABreachedAt)
	c.CategorySnapshot.Path = cloneStrings(t.CategorySnapshot.Path)
	c.PrioritySnapshot.Components = cloneIntMap(t.PrioritySnapshot.Components)
	c.TagsSnapshot = cloneStrings(t.TagsSnapshot)
	return &c
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	c.Roles = cloneStrings(u.Roles)
	c.DepartmentID = cloneString(u.DepartmentID)
	c.PermissionOverrides = cloneBoolMap(u.PermissionOverrides)
	return &c
}

func cloneVendor(v *domain.Vendor) *domain.Vendor {
	c := *v
	c.SignupDate = cloneTime(v.SignupDate)
	c.LastSyncedAt = cloneTime(v.LastSyncedAt)
	return &c
}

func cloneCategory(cat *domain.Category) *domain.Category {
	c := *cat
	c.ParentID = cloneString(cat.ParentID)
	c.DepartmentID = cloneString(cat.DepartmentID)
	c.SLAConfigID = cloneString(cat.SLAConfigID)
	c.DefaultTags = cloneStrings(cat.DefaultTags)
	c.RequiredFields = cloneStrings(cat.RequiredFields)
	c.DeletedAt = cloneTime(cat.DeletedAt)
	return &c
}

func cloneSLA(s *domain.SLAConfig) *domain.SLAConfig {
	c := *s
	c.DepartmentID = cloneString(s.DepartmentID)
	return &c
}

func clonePriority(p *domain.PriorityConfig) *domain.PriorityConfig {
	c := *p
	c.GMVTierWeights = cloneIntMap(p.GMVTierWeights)
	c.Tiers = append([]domain.PriorityTier(nil), p.Tiers...)
	return &c
}

func cloneRule(r *domain.RoutingRule) *domain.RoutingRule {
	c := *r
	c.DepartmentID = cloneString(r.DepartmentID)
	c.SpecificAgentID = cloneString(r.SpecificAgentID)
	return &c
}

func cloneNotification(n *domain.Notification) *domain.Notification {
	c := *n
	c.TicketID = cloneString(n.TicketID)
	c.ReadAt = cloneTime(n.ReadAt)
	return &c
}

func cloneAttendance(a *domain.AttendanceRecord) *domain.AttendanceRecord {
	c := *a
	c.CheckOutAt = cloneTime(a.CheckOutAt)
	return &c
}

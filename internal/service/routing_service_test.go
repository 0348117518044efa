package service

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
)

func TestRouteWithoutRuleKeepsDepartment(t *testing.T) {
	f := newFixture(t)
	ss := f.departments["SS"].ID
	decision, err := f.routing.Route(f.ctx, domain.UncategorizedCategoryID, ss)
	require.NoError(t, err)
	assert.Nil(t, decision.Rule)
	assert.Equal(t, ss, decision.DepartmentID)
	assert.Nil(t, decision.AssigneeID)
	assert.Zero(t, decision.Boost)
}

func TestInactiveRuleIsIgnored(t *testing.T) {
	f := newFixture(t)
	cs := f.departments["CS"].ID
	f.user(t, "alice", "CS", domain.RoleAgent)
	cat := f.category(t, CategoryInput{Name: "Returns"})
	off := false
	_, err := f.routing.Create(f.ctx, nil, RoutingRuleInput{CategoryID: cat.ID, DepartmentID: &cs, Strategy: domain.AssignRoundRobin, IsActive: &off})
	require.NoError(t, err)

	decision, err := f.routing.Route(f.ctx, cat.ID, f.departments["SS"].ID)
	require.NoError(t, err)
	assert.Nil(t, decision.Rule)
	assert.Equal(t, f.departments["SS"].ID, decision.DepartmentID)
}

func TestCandidatesOrderAndFilters(t *testing.T) {
	f := newFixture(t)
	cs := f.departments["CS"].ID
	f.user(t, "zed", "CS", domain.RoleAgent)
	f.user(t, "amy", "CS", domain.RoleAgent, domain.RoleLead)
	f.user(t, "hal", "CS", domain.RoleHead)
	f.user(t, "ben", "SS", domain.RoleAgent)
	gone := f.user(t, "old", "CS", domain.RoleAgent)
	gone.IsActive = false
	require.NoError(t, f.store.Users.Update(f.ctx, gone))

	list, err := f.routing.Candidates(f.ctx, cs)
	require.NoError(t, err)
	var names []string
	for _, u := range list {
		names = append(names, u.Name)
	}
	assert.Equal(t, []string{"amy", "zed"}, names)
}

func TestRoundRobinWithNoAgentsLeavesUnassigned(t *testing.T) {
	f := newFixture(t)
	cs := f.departments["CS"].ID
	cat := f.category(t, CategoryInput{Name: "Returns"})
	_, err := f.routing.Create(f.ctx, nil, RoutingRuleInput{CategoryID: cat.ID, DepartmentID: &cs, Strategy: domain.AssignRoundRobin, PriorityBoost: 15})
	require.NoError(t, err)

	decision, err := f.routing.Route(f.ctx, cat.ID, f.departments["SS"].ID)
	require.NoError(t, err)
	require.NotNil(t, decision.Rule)
	assert.Equal(t, cs, decision.DepartmentID)
	assert.Nil(t, decision.AssigneeID)
	assert.Equal(t, 15, decision.Boost)
}

func TestSpecificAgentInactiveIsNotAssigned(t *testing.T) {
	f := newFixture(t)
	agent := f.user(t, "dana", "SS", domain.RoleAgent)
	cat := f.category(t, CategoryInput{Name: "VIP"})
	_, err := f.routing.Create(f.ctx, nil, RoutingRuleInput{CategoryID: cat.ID, Strategy: domain.AssignSpecificAgent, SpecificAgentID: &agent.ID})
	require.NoError(t, err)
	agent.IsActive = false
	require.NoError(t, f.store.Users.Update(f.ctx, agent))

	decision, err := f.routing.Route(f.ctx, cat.ID, f.departments["SS"].ID)
	require.NoError(t, err)
	assert.Nil(t, decision.AssigneeID)
}

func TestRoutingRuleValidationAndCRUD(t *testing.T) {
	f := newFixture(t)
	cat := f.category(t, CategoryInput{Name: "Returns"})

	_, err := f.routing.Create(f.ctx, nil, RoutingRuleInput{})
	assertStatus(t, err, http.StatusBadRequest)
	_, err = f.routing.Create(f.ctx, nil, RoutingRuleInput{CategoryID: cat.ID, Strategy: "random"})
	assertStatus(t, err, http.StatusBadRequest)
	_, err = f.routing.Create(f.ctx, nil, RoutingRuleInput{CategoryID: cat.ID, PriorityBoost: 150})
	assertStatus(t, err, http.StatusBadRequest)
	_, err = f.routing.Create(f.ctx, nil, RoutingRuleInput{CategoryID: "5a6b7c8d-0000-4000-8000-000000000000"})
	assertStatus(t, err, http.StatusBadRequest)

	rule, err := f.routing.Create(f.ctx, nil, RoutingRuleInput{CategoryID: cat.ID, OwnerTeam: " returns "})
	require.NoError(t, err)
	assert.Equal(t, domain.AssignNone, rule.Strategy)
	assert.Equal(t, "returns", rule.OwnerTeam)
	assert.True(t, rule.IsActive)

	updated, err := f.routing.Update(f.ctx, nil, rule.ID, RoutingRuleInput{CategoryID: cat.ID, Strategy: domain.AssignLeastLoaded})
	require.NoError(t, err)
	assert.Equal(t, domain.AssignLeastLoaded, updated.Strategy)

	list, err := f.routing.List(f.ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, f.routing.Delete(f.ctx, nil, rule.ID))
	_, err = f.routing.Get(f.ctx, rule.ID)
	assertStatus(t, err, http.StatusNotFound)
}

package service

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
)

func TestSLAResolveFallbackChain(t *testing.T) {
	f := newFixture(t)
	ss := f.departments["SS"].ID
	cs := f.departments["CS"].ID

	cfg, err := f.sla.Resolve(f.ctx, ss, "P2", nil)
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.Name)
	assert.Equal(t, 240, cfg.ResponseMinutes)
	assert.Equal(t, 2880, cfg.ResolutionMinutes)

	catSLA, err := f.sla.Create(f.ctx, nil, SLAInput{Name: "category", ResponseMinutes: 30, ResolutionMinutes: 300, PriorityTier: "P9"})
	require.NoError(t, err)
	cat := f.category(t, CategoryInput{Name: "Payments", SLAConfigID: &catSLA.ID})
	cfg, err = f.sla.Resolve(f.ctx, ss, "P2", cat)
	require.NoError(t, err)
	assert.Equal(t, "category", cfg.Name)

	_, err = f.sla.Create(f.ctx, nil, SLAInput{Name: "any tier", ResponseMinutes: 20, ResolutionMinutes: 200})
	require.NoError(t, err)
	cfg, err = f.sla.Resolve(f.ctx, ss, "P2", cat)
	require.NoError(t, err)
	assert.Equal(t, "any tier", cfg.Name)

	_, err = f.sla.Create(f.ctx, nil, SLAInput{Name: "ss all", DepartmentID: &ss, ResponseMinutes: 15, ResolutionMinutes: 150})
	require.NoError(t, err)
	_, err = f.sla.Create(f.ctx, nil, SLAInput{Name: "ss p2", DepartmentID: &ss, PriorityTier: "P2", ResponseMinutes: 10, ResolutionMinutes: 100})
	require.NoError(t, err)
	_, err = f.sla.Create(f.ctx, nil, SLAInput{Name: "cs p2", DepartmentID: &cs, PriorityTier: "P2", ResponseMinutes: 5, ResolutionMinutes: 50})
	require.NoError(t, err)

	cfg, err = f.sla.Resolve(f.ctx, ss, "P2", cat)
	require.NoError(t, err)
	assert.Equal(t, "ss p2", cfg.Name)
	cfg, err = f.sla.Resolve(f.ctx, ss, "P4", cat)
	require.NoError(t, err)
	assert.Equal(t, "ss all", cfg.Name)
}

func TestSLAInactiveCategoryConfigIsSkipped(t *testing.T) {
	f := newFixture(t)
	off := false
	catSLA, err := f.sla.Create(f.ctx, nil, SLAInput{Name: "off", ResponseMinutes: 30, ResolutionMinutes: 300, PriorityTier: "P9", IsActive: &off})
	require.NoError(t, err)
	cat := f.category(t, CategoryInput{Name: "Payments", SLAConfigID: &catSLA.ID})

	cfg, err := f.sla.Resolve(f.ctx, f.departments["SS"].ID, "P4", cat)
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.Name)
}

func TestSLAInUseCannotBeDeleted(t *testing.T) {
	f := newFixture(t)
	cfg, err := f.sla.Create(f.ctx, nil, SLAInput{Name: "std", ResponseMinutes: 60, ResolutionMinutes: 600})
	require.NoError(t, err)
	f.category(t, CategoryInput{Name: "Payments", SLAConfigID: &cfg.ID})

	assertStatus(t, f.sla.Delete(f.ctx, nil, cfg.ID), http.StatusBadRequest)
}

func TestSLASnapshotFor(t *testing.T) {
	created := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	snap := SLASnapshotFor(domain.SLAConfig{ID: "x", Name: "n", ResponseMinutes: 90, ResolutionMinutes: 1440}, created)
	assert.Equal(t, created.Add(90*time.Minute), snap.ResponseDueAt)
	assert.Equal(t, created.Add(24*time.Hour), snap.ResolutionDueAt)
	assert.Equal(t, "x", snap.ConfigID)
}

func TestSLACRUD(t *testing.T) {
	f := newFixture(t)
	_, err := f.sla.Create(f.ctx, nil, SLAInput{Name: "", ResponseMinutes: 1, ResolutionMinutes: 1})
	assertStatus(t, err, http.StatusBadRequest)
	_, err = f.sla.Create(f.ctx, nil, SLAInput{Name: "x", ResponseMinutes: 0, ResolutionMinutes: 1})
	assertStatus(t, err, http.StatusBadRequest)
	_, err = f.sla.Create(f.ctx, nil, SLAInput{Name: "x", ResponseMinutes: 60, ResolutionMinutes: 30})
	assertStatus(t, err, http.StatusBadRequest)

	cfg, err := f.sla.Create(f.ctx, nil, SLAInput{Name: "std", ResponseMinutes: 60, ResolutionMinutes: 600})
	require.NoError(t, err)
	assert.True(t, cfg.IsActive)

	updated, err := f.sla.Update(f.ctx, nil, cfg.ID, SLAInput{Name: "std", ResponseMinutes: 30, ResolutionMinutes: 600})
	require.NoError(t, err)
	assert.Equal(t, 30, updated.ResponseMinutes)

	list, err := f.sla.List(f.ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, f.sla.Delete(f.ctx, nil, cfg.ID))
	_, err = f.sla.Get(f.ctx, cfg.ID)
	assertStatus(t, err, http.StatusNotFound)
	assertStatus(t, f.sla.Delete(f.ctx, nil, cfg.ID), http.StatusNotFound)
}

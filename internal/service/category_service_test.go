package service

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/repository"
)

func TestCategoryTreeAndFlat(t *testing.T) {
	f := newFixture(t)
	orders := f.category(t, CategoryInput{Name: "Orders"})
	late := f.category(t, CategoryInput{Name: "Late delivery", ParentID: &orders.ID})
	courier := f.category(t, CategoryInput{Name: "Courier", ParentID: &late.ID})
	leaf := f.category(t, CategoryInput{Name: "Lost parcel", ParentID: &courier.ID})
	f.category(t, CategoryInput{Name: "Billing"})

	assert.Equal(t, 4, leaf.Level)
	_, err := f.categories.Create(f.ctx, nil, CategoryInput{Name: "Too deep", ParentID: &leaf.ID})
	assertStatus(t, err, http.StatusBadRequest)

	tree, err := f.categories.Tree(f.ctx)
	require.NoError(t, err)
	require.Len(t, tree, 3)
	assert.Equal(t, []string{"Billing", "Orders", "Uncategorized"}, []string{tree[0].Name, tree[1].Name, tree[2].Name})
	require.Len(t, tree[1].Children, 1)
	assert.Equal(t, "Late delivery", tree[1].Children[0].Name)

	flat, err := f.categories.Flat(f.ctx)
	require.NoError(t, err)
	paths := map[string]domain.FlatCategory{}
	for _, c := range flat {
		paths[c.ID] = c
	}
	assert.Equal(t, "Orders > Late delivery > Courier > Lost parcel", paths[leaf.ID].FullPath)
	assert.True(t, paths[leaf.ID].IsLeaf)
	assert.False(t, paths[orders.ID].IsLeaf)

	_, snap, err := f.categories.ResolveForTicket(f.ctx, &leaf.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Orders", "Late delivery", "Courier", "Lost parcel"}, snap.Path)
	assert.Equal(t, 4, snap.Level)
}

// uuidCategoryRepo rejects ids that are not uuids the way a uuid column does.
type uuidCategoryRepo struct {
	repository.CategoryRepository
}

func (r uuidCategoryRepo) GetByID(ctx context.Context, id string) (*domain.Category, error) {
	if id != domain.UncategorizedCategoryID {
		if _, err := uuid.Parse(id); err != nil {
			return nil, &pgconn.PgError{Code: "22P02", Message: `invalid input syntax for type uuid: "` + id + `"`}
		}
	}
	return r.CategoryRepository.GetByID(ctx, id)
}

func TestResolveForTicketMalformedIDFallsBack(t *testing.T) {
	f := newFixture(t)
	svc := NewCategoryService(CategoryDependencies{
		CategoryRepo: uuidCategoryRepo{f.store.Categories},
		Cache:        f.cache,
		Dispatcher:   f.dispatcher,
		Clock:        f.clock.Now,
	})

	bad := "abc"
	category, snap, err := svc.ResolveForTicket(f.ctx, &bad)
	require.NoError(t, err)
	assert.Equal(t, domain.UncategorizedCategoryID, category.ID)
	assert.Equal(t, "Uncategorized", snap.Name)

	_, err = svc.Get(f.ctx, bad)
	assertStatus(t, err, http.StatusNotFound)
}

func TestCategoryTreeIsCachedAndInvalidated(t *testing.T) {
	f := newFixture(t)
	_, err := f.categories.Tree(f.ctx)
	require.NoError(t, err)
	assert.True(t, f.cache.has(CategoryTreeCacheKey))

	// a write behind the service's back is not visible until invalidation
	require.NoError(t, f.store.Categories.Create(f.ctx, &domain.Category{Level: 1, Name: "Hidden"}))
	tree, err := f.categories.Tree(f.ctx)
	require.NoError(t, err)
	assert.Len(t, tree, 1)

	f.category(t, CategoryInput{Name: "Visible"})
	assert.False(t, f.cache.has(CategoryTreeCacheKey))
	tree, err = f.categories.Tree(f.ctx)
	require.NoError(t, err)
	assert.Len(t, tree, 3)
}

func TestCategoryUpdateBumpsVersion(t *testing.T) {
	f := newFixture(t)
	c := f.category(t, CategoryInput{Name: "Refunds", DefaultTags: []string{"refund", " Refund "}})
	assert.Equal(t, 1, c.Version)
	assert.Equal(t, []string{"refund"}, c.DefaultTags)

	updated, err := f.categories.Update(f.ctx, nil, c.ID, CategoryInput{Name: "Refunds & returns", BasePriorityScore: 55})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, 55, updated.BasePriorityScore)

	_, err = f.categories.Update(f.ctx, nil, c.ID, CategoryInput{Name: "x", BasePriorityScore: 101})
	assertStatus(t, err, http.StatusBadRequest)
	_, err = f.categories.Update(f.ctx, nil, c.ID, CategoryInput{Name: " "})
	assertStatus(t, err, http.StatusBadRequest)
}

func TestCategoryDeleteRules(t *testing.T) {
	f := newFixture(t)
	assertStatus(t, f.categories.Delete(f.ctx, nil, domain.UncategorizedCategoryID), http.StatusBadRequest)

	parent := f.category(t, CategoryInput{Name: "Orders"})
	child := f.category(t, CategoryInput{Name: "Late", ParentID: &parent.ID})

	assertStatus(t, f.categories.Delete(f.ctx, nil, parent.ID), http.StatusConflict)
	require.NoError(t, f.categories.Delete(f.ctx, nil, child.ID))
	assertStatus(t, f.categories.Delete(f.ctx, nil, child.ID), http.StatusNotFound)
	require.NoError(t, f.categories.Delete(f.ctx, nil, parent.ID))

	_, err := f.categories.Create(f.ctx, nil, CategoryInput{Name: "Under deleted", ParentID: &parent.ID})
	assertStatus(t, err, http.StatusBadRequest)

	got, err := f.categories.Get(f.ctx, child.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted())

	resolved, _, err := f.categories.ResolveForTicket(f.ctx, &child.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UncategorizedCategoryID, resolved.ID)

	f.dispatcher.Wait()
	logs, err := f.store.Audit.List(f.ctx, repository.AuditFilter{EntityType: "category"})
	require.NoError(t, err)
	var actions []string
	for _, l := range logs {
		actions = append(actions, l.Action)
	}
	assert.Contains(t, actions, "category.deleted")
	assert.Contains(t, actions, "category.created")
}

func TestMissingRequiredFields(t *testing.T) {
	c := &domain.Category{RequiredFields: []string{"order_id", "amount", "note"}}
	missing := MissingRequiredFields(c, map[string]any{"order_id": "A1", "amount": 0, "note": "  "})
	assert.Equal(t, []string{"note"}, missing)
	assert.Equal(t, []string{"order_id", "amount", "note"}, MissingRequiredFields(c, nil))
}

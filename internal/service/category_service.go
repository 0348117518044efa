package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/flow-helpdesk/internal/auth"
	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/events"
	"github.com/spec-kit/flow-helpdesk/internal/persistence"
	"github.com/spec-kit/flow-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/flow-helpdesk/pkg/util/errorutil"
)

// CategoryTreeCacheKey holds the cached category tree.
const CategoryTreeCacheKey = "categories:tree"

// CategoryDependencies wires the category service.
type CategoryDependencies struct {
	CategoryRepo repository.CategoryRepository
	Cache        persistence.Cache
	CacheTTL     time.Duration
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
	Clock        Clock
}

// CategoryService manages the four level category tree.
type CategoryService struct {
	repo       repository.CategoryRepository
	cache      persistence.Cache
	ttl        time.Duration
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        Clock
}

// NewCategoryService constructs the service.
func NewCategoryService(deps CategoryDependencies) *CategoryService {
	cache := deps.Cache
	if cache == nil {
		cache = persistence.NewCache(nil)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CategoryService{
		repo:       deps.CategoryRepo,
		cache:      cache,
		ttl:        ttl,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		now:        clockOrDefault(deps.Clock),
	}
}

// Get returns one category, deleted ones included.
func (s *CategoryService) Get(ctx context.Context, id string) (*domain.Category, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "category", map[string]any{"category_id": id})
	}
	return c, nil
}

// Tree returns the active categories as a forest ordered by name.
func (s *CategoryService) Tree(ctx context.Context) ([]*domain.CategoryNode, error) {
	var cached []*domain.CategoryNode
	if err := s.cache.GetJSON(ctx, CategoryTreeCacheKey, &cached); err == nil {
		return cached, nil
	} else if !errors.Is(err, persistence.ErrCacheMiss) {
		s.logger.Warn("category cache read failed", zap.Error(err))
	}

	list, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	tree := buildTree(list)
	if err := s.cache.SetJSON(ctx, CategoryTreeCacheKey, tree, s.ttl); err != nil {
		s.logger.Warn("category cache write failed", zap.Error(err))
	}
	return tree, nil
}

func buildTree(list []domain.Category) []*domain.CategoryNode {
	nodes := make(map[string]*domain.CategoryNode, len(list))
	for _, c := range list {
		nodes[c.ID] = &domain.CategoryNode{Category: c, Children: []*domain.CategoryNode{}}
	}
	roots := make([]*domain.CategoryNode, 0)
	for _, c := range list {
		node := nodes[c.ID]
		if c.ParentID != nil {
			if parent, ok := nodes[*c.ParentID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
			// orphan of a deleted parent
			if c.Level > 1 {
				continue
			}
		}
		roots = append(roots, node)
	}
	sortNodes(roots)
	return roots
}

func sortNodes(nodes []*domain.CategoryNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Name == nodes[j].Name {
			return nodes[i].ID < nodes[j].ID
		}
		return nodes[i].Name < nodes[j].Name
	})
	for _, n := range nodes {
		sortNodes(n.Children)
	}
}

// Flat returns every reachable category with its "L1 > L2 > L3 > L4" path.
func (s *CategoryService) Flat(ctx context.Context) ([]domain.FlatCategory, error) {
	tree, err := s.Tree(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.FlatCategory, 0)
	var walk func(nodes []*domain.CategoryNode, path []string)
	walk = func(nodes []*domain.CategoryNode, path []string) {
		for _, n := range nodes {
			p := append(append([]string(nil), path...), n.Name)
			out = append(out, domain.FlatCategory{
				ID:       n.ID,
				Level:    n.Level,
				Name:     n.Name,
				Path:     p,
				FullPath: strings.Join(p, " > "),
				IsLeaf:   len(n.Children) == 0,
			})
			walk(n.Children, p)
		}
	}
	walk(tree, nil)
	return out, nil
}

// Path returns the names from the root down to c.
func (s *CategoryService) Path(ctx context.Context, c *domain.Category) ([]string, error) {
	path := []string{c.Name}
	current := c
	for depth := 1; current.ParentID != nil && depth < domain.MaxCategoryLevel; depth++ {
		parent, err := s.repo.GetByID(ctx, *current.ParentID)
		if err != nil {
			return nil, mapNotFound(err, "category", map[string]any{"category_id": *current.ParentID})
		}
		path = append([]string{parent.Name}, path...)
		current = parent
	}
	return path, nil
}

// ResolveForTicket returns the category a new ticket files under. Absent, unknown
// and deleted ids resolve to the Uncategorized category.
func (s *CategoryService) ResolveForTicket(ctx context.Context, id *string) (*domain.Category, domain.CategorySnapshot, error) {
	var category *domain.Category
	if id != nil && strings.TrimSpace(*id) != "" {
		c, err := s.repo.GetByID(ctx, strings.TrimSpace(*id))
		switch {
		case err == nil && !c.IsDeleted():
			category = c
		case err != nil && !apperrors.IsNotFound(err):
			return nil, domain.CategorySnapshot{}, apperrors.MapError(err)
		}
	}
	if category == nil {
		c, err := s.repo.GetByID(ctx, domain.UncategorizedCategoryID)
		if err != nil {
			return nil, domain.CategorySnapshot{}, mapNotFound(err, "category", map[string]any{"category_id": domain.UncategorizedCategoryID})
		}
		category = c
	}
	path, err := s.Path(ctx, category)
	if err != nil {
		return nil, domain.CategorySnapshot{}, err
	}
	return category, domain.CategorySnapshot{
		ID:    category.ID,
		Name:  category.Name,
		Level: category.Level,
		Path:  path,
	}, nil
}

// MissingRequiredFields lists required fields absent or empty in customFields.
func MissingRequiredFields(c *domain.Category, customFields map[string]any) []string {
	var missing []string
	for _, field := range c.RequiredFields {
		v, ok := customFields[field]
		if !ok || v == nil {
			missing = append(missing, field)
			continue
		}
		if str, isStr := v.(string); isStr && strings.TrimSpace(str) == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

// CategoryInput carries writable category fields.
type CategoryInput struct {
	ParentID          *string
	Name              string
	DepartmentID      *string
	BasePriorityScore int
	SLAConfigID       *string
	DefaultTags       []string
	RequiredFields    []string
}

func (in CategoryInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return apperrors.NewValidationError("name is required", nil)
	}
	if in.BasePriorityScore < minPriorityScore || in.BasePriorityScore > maxPriorityScore {
		return apperrors.NewValidationError("basePriorityScore must be between 0 and 100", nil)
	}
	return nil
}

// Create adds a category under ParentID, or at level 1 without one.
func (s *CategoryService) Create(ctx context.Context, actor *auth.Principal, in CategoryInput) (*domain.Category, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	level := 1
	parentID := trimmedOrNil(in.ParentID)
	if parentID != nil {
		parent, err := s.Get(ctx, *parentID)
		if err != nil {
			return nil, apperrors.NewValidationError("parent category not found", map[string]any{"parent_id": *parentID})
		}
		if parent.IsDeleted() {
			return nil, apperrors.NewValidationError("parent category is deleted", map[string]any{"parent_id": *parentID})
		}
		level = parent.Level + 1
		if level > domain.MaxCategoryLevel {
			return nil, apperrors.NewValidationError("categories are limited to four levels", map[string]any{"parent_id": *parentID})
		}
	}
	c := &domain.Category{
		ParentID:          parentID,
		Level:             level,
		Name:              strings.TrimSpace(in.Name),
		DepartmentID:      trimmedOrNil(in.DepartmentID),
		BasePriorityScore: in.BasePriorityScore,
		SLAConfigID:       trimmedOrNil(in.SLAConfigID),
		DefaultTags:       mergeTags(in.DefaultTags),
		RequiredFields:    mergeTags(in.RequiredFields),
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.invalidate(ctx)
	auditChange(ctx, s.dispatcher, actor, "category.created", "category", c.ID, map[string]any{
		"name":  c.Name,
		"level": c.Level,
	})
	return c, nil
}

// Update rewrites a category's attributes. The parent is fixed after creation.
func (s *CategoryService) Update(ctx context.Context, actor *auth.Principal, id string, in CategoryInput) (*domain.Category, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.IsDeleted() {
		return nil, apperrors.NewNotFound("category", map[string]any{"category_id": id})
	}
	before := map[string]any{"name": c.Name, "basePriorityScore": c.BasePriorityScore, "version": c.Version}
	c.Name = strings.TrimSpace(in.Name)
	c.DepartmentID = trimmedOrNil(in.DepartmentID)
	c.BasePriorityScore = in.BasePriorityScore
	c.SLAConfigID = trimmedOrNil(in.SLAConfigID)
	c.DefaultTags = mergeTags(in.DefaultTags)
	c.RequiredFields = mergeTags(in.RequiredFields)
	c.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, mapNotFound(err, "category", map[string]any{"category_id": id})
	}
	s.invalidate(ctx)
	auditChange(ctx, s.dispatcher, actor, "category.updated", "category", c.ID, map[string]any{
		"before": before,
		"after":  map[string]any{"name": c.Name, "basePriorityScore": c.BasePriorityScore, "version": c.Version},
	})
	return c, nil
}

// Delete soft deletes a leaf category. Uncategorized cannot be deleted.
func (s *CategoryService) Delete(ctx context.Context, actor *auth.Principal, id string) error {
	if id == domain.UncategorizedCategoryID {
		return apperrors.NewValidationError("the Uncategorized category cannot be deleted", nil)
	}
	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.IsDeleted() {
		return apperrors.NewNotFound("category", map[string]any{"category_id": id})
	}
	active, err := s.repo.ListActive(ctx)
	if err != nil {
		return apperrors.MapError(err)
	}
	for _, other := range active {
		if other.ParentID != nil && *other.ParentID == id {
			return apperrors.NewConflict("category has active children", map[string]any{"category_id": id})
		}
	}
	if err := s.repo.SoftDelete(ctx, id, s.now()); err != nil {
		return mapNotFound(err, "category", map[string]any{"category_id": id})
	}
	s.invalidate(ctx)
	auditChange(ctx, s.dispatcher, actor, "category.deleted", "category", id, map[string]any{"name": c.Name})
	return nil
}

func (s *CategoryService) invalidate(ctx context.Context) {
	if err := s.cache.Delete(ctx, CategoryTreeCacheKey); err != nil {
		s.logger.Warn("category cache invalidation failed", zap.Error(err))
	}
}

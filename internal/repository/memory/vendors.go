package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/repository"
)

type vendorRepo struct{ d *db }

func (r *vendorRepo) Upsert(_ context.Context, vendor *domain.Vendor) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	now := r.d.stamp()
	if existing, ok := r.d.vendors[vendor.Handle]; ok {
		vendor.ID = existing.ID
		vendor.CreatedAt = existing.CreatedAt
	} else {
		vendor.ID = uuid.NewString()
		vendor.CreatedAt = now
	}
	vendor.UpdatedAt = now
	r.d.vendors[vendor.Handle] = cloneVendor(vendor)
	return nil
}

func (r *vendorRepo) Update(_ context.Context, vendor *domain.Vendor) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	existing, ok := r.d.vendors[vendor.Handle]
	if !ok {
		return pgx.ErrNoRows
	}
	vendor.ID = existing.ID
	vendor.CreatedAt = existing.CreatedAt
	vendor.UpdatedAt = r.d.stamp()
	r.d.vendors[vendor.Handle] = cloneVendor(vendor)
	return nil
}

func (r *vendorRepo) GetByHandle(_ context.Context, handle string) (*domain.Vendor, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	vendor, ok := r.d.vendors[strings.TrimSpace(handle)]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cloneVendor(vendor), nil
}

func (r *vendorRepo) List(_ context.Context, filter repository.VendorFilter) ([]domain.Vendor, int, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	var out []domain.Vendor
	for _, vendor := range r.d.vendors {
		if filter.GMVTier != "" && vendor.GMVTier != filter.GMVTier {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(vendor.Handle), search) &&
			!strings.Contains(strings.ToLower(vendor.Name), search) &&
			!strings.Contains(strings.ToLower(vendor.Email), search) {
			continue
		}
		out = append(out, *cloneVendor(vendor))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return paginate(out, filter.Limit, filter.Offset, 50), len(out), nil
}

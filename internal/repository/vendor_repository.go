package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
)

// VendorFilter narrows vendor listings.
type VendorFilter struct {
	Search  string
	GMVTier string
	Limit   int
	Offset  int
}

// VendorRepository persists vendors keyed by handle.
type VendorRepository interface {
	// Upsert inserts or overwrites the vendor with the same handle.
	Upsert(ctx context.Context, vendor *domain.Vendor) error
	Update(ctx context.Context, vendor *domain.Vendor) error
	GetByHandle(ctx context.Context, handle string) (*domain.Vendor, error)
	List(ctx context.Context, filter VendorFilter) ([]domain.Vendor, int, error)
}

type vendorRepository struct {
	pool *pgxpool.Pool
}

// NewVendorRepository builds repository.
func NewVendorRepository(pool *pgxpool.Pool) VendorRepository {
	return &vendorRepository{pool: pool}
}

const vendorColumns = `id, handle, name, contact_name, email, phone, city, country, gmv_tier, segment,
               total_orders, gmv, rating, is_international, signup_date, source, last_synced_at, created_at, updated_at`

func (r *vendorRepository) Upsert(ctx context.Context, vendor *domain.Vendor) error {
	const query = `
        INSERT INTO vendors (handle, name, contact_name, email, phone, city, country, gmv_tier, segment,
            total_orders, gmv, rating, is_international, signup_date, source, last_synced_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
        ON CONFLICT (handle) DO UPDATE SET
            name=EXCLUDED.name, contact_name=EXCLUDED.contact_name, email=EXCLUDED.email, phone=EXCLUDED.phone,
            city=EXCLUDED.city, country=EXCLUDED.country, gmv_tier=EXCLUDED.gmv_tier, segment=EXCLUDED.segment,
            total_orders=EXCLUDED.total_orders, gmv=EXCLUDED.gmv, rating=EXCLUDED.rating,
            is_international=EXCLUDED.is_international, signup_date=EXCLUDED.signup_date,
            source=EXCLUDED.source, last_synced_at=EXCLUDED.last_synced_at, updated_at=NOW()
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query, vendorArgs(vendor)...).Scan(&vendor.ID, &vendor.CreatedAt, &vendor.UpdatedAt)
}

func (r *vendorRepository) Update(ctx context.Context, vendor *domain.Vendor) error {
	const query = `
        UPDATE vendors SET name=$2, contact_name=$3, email=$4, phone=$5, city=$6, country=$7, gmv_tier=$8,
            segment=$9, total_orders=$10, gmv=$11, rating=$12, is_international=$13, signup_date=$14,
            source=$15, last_synced_at=$16, updated_at=NOW()
        WHERE handle=$1
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query, vendorArgs(vendor)...).Scan(&vendor.ID, &vendor.CreatedAt, &vendor.UpdatedAt)
}

func (r *vendorRepository) GetByHandle(ctx context.Context, handle string) (*domain.Vendor, error) {
	return scanVendor(r.pool.QueryRow(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE handle=$1`, strings.TrimSpace(handle)))
}

func (r *vendorRepository) List(ctx context.Context, filter VendorFilter) ([]domain.Vendor, int, error) {
	var where whereBuilder
	if s := strings.TrimSpace(filter.Search); s != "" {
		where.add("(handle ILIKE $%[1]d OR name ILIKE $%[1]d OR email ILIKE $%[1]d)", "%"+s+"%")
	}
	if filter.GMVTier != "" {
		where.add("gmv_tier=$%d", filter.GMVTier)
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM vendors`+where.sql(), where.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := pageBounds(filter.Limit, filter.Offset, 50)
	query := `SELECT ` + vendorColumns + ` FROM vendors` + where.sql() +
		` ORDER BY handle LIMIT $` + itoa(len(where.args)+1) + ` OFFSET $` + itoa(len(where.args)+2)
	rows, err := r.pool.Query(ctx, query, append(where.args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []domain.Vendor
	for rows.Next() {
		vendor, err := scanVendor(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *vendor)
	}
	return result, total, rows.Err()
}

func vendorArgs(v *domain.Vendor) []any {
	return []any{
		v.Handle,
		v.Name,
		v.ContactName,
		v.Email,
		v.Phone,
		v.City,
		v.Country,
		v.GMVTier,
		v.Segment,
		v.TotalOrders,
		v.GMV,
		v.Rating,
		v.IsInternational,
		v.SignupDate,
		v.Source,
		v.LastSyncedAt,
	}
}

func scanVendor(row rowScanner) (*domain.Vendor, error) {
	var v domain.Vendor
	if err := row.Scan(
		&v.ID,
		&v.Handle,
		&v.Name,
		&v.ContactName,
		&v.Email,
		&v.Phone,
		&v.City,
		&v.Country,
		&v.GMVTier,
		&v.Segment,
		&v.TotalOrders,
		&v.GMV,
		&v.Rating,
		&v.IsInternational,
		&v.SignupDate,
		&v.Source,
		&v.LastSyncedAt,
		&v.CreatedAt,
		&v.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &v, nil
}

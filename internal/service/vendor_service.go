package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/flow-helpdesk/internal/auth"
	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/events"
	"github.com/spec-kit/flow-helpdesk/internal/integrations/n8n"
	"github.com/spec-kit/flow-helpdesk/internal/persistence"
	"github.com/spec-kit/flow-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/flow-helpdesk/pkg/util/errorutil"
)

const vendorLookupCachePrefix = "vendor_lookup:"

// VendorLookup finds vendors the local table does not know yet.
type VendorLookup interface {
	LookupVendor(ctx context.Context, handle string) (*n8n.VendorRecord, error)
}

// VendorDependencies wires the vendor service.
type VendorDependencies struct {
	VendorRepo repository.VendorRepository
	Lookup     VendorLookup
	Cache      persistence.Cache
	CacheTTL   time.Duration
	GMVTiers   []domain.GMVTierThreshold
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Clock      Clock
}

// VendorService owns vendor reads, writes and on-demand lookups.
type VendorService struct {
	repo       repository.VendorRepository
	lookup     VendorLookup
	cache      persistence.Cache
	ttl        time.Duration
	tiers      []domain.GMVTierThreshold
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        Clock
}

// NewVendorService constructs the service.
func NewVendorService(deps VendorDependencies) *VendorService {
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
		ttl = 10 * time.Minute
	}
	return &VendorService{
		repo:       deps.VendorRepo,
		lookup:     deps.Lookup,
		cache:      cache,
		ttl:        ttl,
		tiers:      deps.GMVTiers,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		now:        clockOrDefault(deps.Clock),
	}
}

type cachedLookup struct {
	Found  bool              `json:"found"`
	Vendor *n8n.VendorRecord `json:"vendor,omitempty"`
}

// ResolveForTicket returns the vendor for handle, creating it from the n8n lookup
// when it is unknown locally. A handle found nowhere is a validation error.
func (s *VendorService) ResolveForTicket(ctx context.Context, handle string) (*domain.Vendor, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, nil
	}
	vendor, err := s.repo.GetByHandle(ctx, handle)
	if err == nil {
		return vendor, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, apperrors.MapError(err)
	}

	record, err := s.lookupRemote(ctx, handle)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, apperrors.NewValidationError("unknown vendor handle", map[string]any{"vendor_handle": handle})
	}
	now := s.now()
	vendor = vendorFromRecord(*record, s.tiers, domain.VendorSourceN8N, now)
	vendor.Handle = handle
	if err := s.repo.Upsert(ctx, vendor); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("vendor created from n8n lookup", zap.String("vendor_handle", handle))
	return vendor, nil
}

// lookupRemote returns nil without error when the vendor does not exist remotely.
func (s *VendorService) lookupRemote(ctx context.Context, handle string) (*n8n.VendorRecord, error) {
	key := vendorLookupCachePrefix + handle
	var cached cachedLookup
	if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
		if cached.Found {
			return cached.Vendor, nil
		}
		return nil, nil
	}
	if s.lookup == nil {
		return nil, nil
	}
	record, err := s.lookup.LookupVendor(ctx, handle)
	switch {
	case errors.Is(err, n8n.ErrDisabled):
		return nil, nil
	case errors.Is(err, n8n.ErrVendorNotFound):
		cached = cachedLookup{Found: false}
	case err != nil:
		s.logger.Warn("n8n vendor lookup failed", zap.String("vendor_handle", handle), zap.Error(err))
		return nil, apperrors.NewDomainError("UPSTREAM_UNAVAILABLE", "vendor lookup failed", http.StatusBadGateway, map[string]any{"vendor_handle": handle})
	default:
		cached = cachedLookup{Found: true, Vendor: record}
	}
	if err := s.cache.SetJSON(ctx, key, cached, s.ttl); err != nil {
		s.logger.Warn("vendor lookup cache write failed", zap.Error(err))
	}
	return cached.Vendor, nil
}

func vendorFromRecord(r n8n.VendorRecord, tiers []domain.GMVTierThreshold, source string, at time.Time) *domain.Vendor {
	return &domain.Vendor{
		Handle:          strings.TrimSpace(r.Handle),
		Name:            r.Name,
		ContactName:     r.ContactName,
		Email:           strings.ToLower(strings.TrimSpace(r.Email)),
		Phone:           r.Phone,
		City:            r.City,
		Country:         r.Country,
		GMVTier:         domain.GMVTierFor(r.TotalOrders, tiers),
		TotalOrders:     r.TotalOrders,
		GMV:             r.GMV,
		Rating:          r.Rating,
		IsInternational: r.IsInternational,
		Source:          source,
		LastSyncedAt:    &at,
	}
}

// Get returns a vendor by handle.
func (s *VendorService) Get(ctx context.Context, handle string) (*domain.Vendor, error) {
	v, err := s.repo.GetByHandle(ctx, handle)
	if err != nil {
		return nil, mapNotFound(err, "vendor", map[string]any{"vendor_handle": handle})
	}
	return v, nil
}

// List searches vendors.
func (s *VendorService) List(ctx context.Context, filter repository.VendorFilter) ([]domain.Vendor, int, error) {
	list, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, apperrors.MapError(err)
	}
	return list, total, nil
}

// VendorInput carries manually edited vendor fields.
type VendorInput struct {
	Handle        string
	Name          string
	ContactName   string
	Email         string
	Phone         string
	City          string
	Country       string
	Segment       string
	TotalOrders   int64
	GMV           float64
	Rating        float64
	International bool
}

func (in VendorInput) toVendor(tiers []domain.GMVTierThreshold) (*domain.Vendor, error) {
	handle := strings.TrimSpace(in.Handle)
	if handle == "" {
		return nil, apperrors.NewValidationError("handle is required", nil)
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, apperrors.NewValidationError("name is required", map[string]any{"vendor_handle": handle})
	}
	if in.TotalOrders < 0 {
		return nil, apperrors.NewValidationError("totalOrders must not be negative", map[string]any{"vendor_handle": handle})
	}
	return &domain.Vendor{
		Handle:          handle,
		Name:            strings.TrimSpace(in.Name),
		ContactName:     strings.TrimSpace(in.ContactName),
		Email:           strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:           strings.TrimSpace(in.Phone),
		City:            strings.TrimSpace(in.City),
		Country:         strings.TrimSpace(in.Country),
		Segment:         strings.TrimSpace(in.Segment),
		GMVTier:         domain.GMVTierFor(in.TotalOrders, tiers),
		TotalOrders:     in.TotalOrders,
		GMV:             in.GMV,
		Rating:          in.Rating,
		IsInternational: in.International,
		Source:          domain.VendorSourceManual,
	}, nil
}

// Create upserts a manually entered vendor.
func (s *VendorService) Create(ctx context.Context, actor *auth.Principal, in VendorInput) (*domain.Vendor, error) {
	v, err := in.toVendor(s.tiers)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Upsert(ctx, v); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.forgetLookup(ctx, v.Handle)
	auditChange(ctx, s.dispatcher, actor, "vendor.upserted", "vendor", v.Handle, map[string]any{"name": v.Name})
	return v, nil
}

// Update rewrites an existing vendor.
func (s *VendorService) Update(ctx context.Context, actor *auth.Principal, handle string, in VendorInput) (*domain.Vendor, error) {
	in.Handle = handle
	v, err := in.toVendor(s.tiers)
	if err != nil {
		return nil, err
	}
	existing, err := s.Get(ctx, handle)
	if err != nil {
		return nil, err
	}
	v.ID = existing.ID
	v.Source = existing.Source
	v.SignupDate = existing.SignupDate
	v.LastSyncedAt = existing.LastSyncedAt
	v.CreatedAt = existing.CreatedAt
	if err := s.repo.Update(ctx, v); err != nil {
		return nil, mapNotFound(err, "vendor", map[string]any{"vendor_handle": handle})
	}
	auditChange(ctx, s.dispatcher, actor, "vendor.updated", "vendor", v.Handle, map[string]any{
		"gmvTier":     v.GMVTier,
		"totalOrders": v.TotalOrders,
	})
	return v, nil
}

func (s *VendorService) forgetLookup(ctx context.Context, handle string) {
	if err := s.cache.Delete(ctx, vendorLookupCachePrefix+handle); err != nil {
		s.logger.Warn("vendor lookup cache invalidation failed", zap.Error(err))
	}
}

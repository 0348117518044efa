package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/integrations/bigquery"
	"github.com/spec-kit/flow-helpdesk/internal/integrations/n8n"
	"github.com/spec-kit/flow-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/flow-helpdesk/pkg/util/errorutil"
)

// SourceFactory opens a warehouse connection for one sync run.
type SourceFactory func(ctx context.Context) (bigquery.RowSource, error)

// SyncDependencies wires the vendor sync.
type SyncDependencies struct {
	VendorRepo   repository.VendorRepository
	Source       SourceFactory
	GMVTiers     []domain.GMVTierThreshold
	LookbackDays int
	Logger       *zap.Logger
	Clock        Clock
}

// SyncResult summarizes one sync run.
type SyncResult struct {
	Source     string    `json:"source"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Fetched    int       `json:"fetched"`
	Upserted   int       `json:"upserted"`
	Skipped    int       `json:"skipped"`
	Errors     []string  `json:"errors"`
}

// SyncService merges warehouse datasets into the vendor table.
type SyncService struct {
	vendors  repository.VendorRepository
	source   SourceFactory
	tiers    []domain.GMVTierThreshold
	lookback time.Duration
	logger   *zap.Logger
	now      Clock

	mu      sync.Mutex
	running bool
	last    *SyncResult
}

// NewSyncService constructs the service. A nil Source disables BigQuery runs.
func NewSyncService(deps SyncDependencies) *SyncService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	days := deps.LookbackDays
	if days <= 0 {
		days = 365
	}
	return &SyncService{
		vendors:  deps.VendorRepo,
		source:   deps.Source,
		tiers:    deps.GMVTiers,
		lookback: time.Duration(days) * 24 * time.Hour,
		logger:   logger,
		now:      clockOrDefault(deps.Clock),
	}
}

// ErrSyncRunning is returned while another run is in progress.
var ErrSyncRunning = errors.New("vendor sync already running")

func (s *SyncService) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSyncRunning
	}
	s.running = true
	return nil
}

func (s *SyncService) end(result *SyncResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	if result != nil {
		s.last = result
	}
}

// Last returns the most recent run, if any.
func (s *SyncService) Last() *SyncResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	copied := *s.last
	copied.Errors = append([]string(nil), s.last.Errors...)
	return &copied
}

// Run pulls the BigQuery datasets and upserts every merged vendor.
func (s *SyncService) Run(ctx context.Context) (*SyncResult, error) {
	if s.source == nil {
		return nil, apperrors.NewValidationError("bigquery sync is disabled", nil)
	}
	if err := s.begin(); err != nil {
		return nil, apperrors.NewConflict(err.Error(), nil)
	}
	result := &SyncResult{Source: domain.VendorSourceBigQuery, StartedAt: s.now(), Errors: []string{}}
	var finished *SyncResult
	defer func() { s.end(finished) }()

	src, err := s.source(ctx)
	if errors.Is(err, bigquery.ErrDisabled) {
		return nil, apperrors.NewValidationError("bigquery sync is disabled", nil)
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			s.logger.Warn("bigquery close failed", zap.Error(cerr))
		}
	}()

	merged, skipped, err := s.fetch(ctx, src)
	if err != nil {
		s.logger.Error("vendor sync fetch failed", zap.Error(err))
		return nil, apperrors.NewInternalError(err)
	}
	result.Fetched = len(merged)
	result.Skipped = skipped
	s.upsertAll(ctx, merged, result)
	result.FinishedAt = s.now()
	finished = result
	s.logger.Info("vendor sync finished",
		zap.Int("fetched", result.Fetched),
		zap.Int("upserted", result.Upserted),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

func (s *SyncService) fetch(ctx context.Context, src bigquery.RowSource) ([]*domain.Vendor, int, error) {
	since := s.now().Add(-s.lookback)
	signups, err := src.Signups(ctx, since)
	if err != nil {
		return nil, 0, err
	}
	orders, err := src.OrderStats(ctx)
	if err != nil {
		return nil, 0, err
	}
	ratings, err := src.Ratings(ctx)
	if err != nil {
		return nil, 0, err
	}
	geo, err := src.Geo(ctx)
	if err != nil {
		return nil, 0, err
	}
	existing, err := s.knownVendors(ctx, signups, orders, ratings, geo)
	if err != nil {
		return nil, 0, err
	}
	vendors, skipped := MergeVendorRows(signups, orders, ratings, geo, existing, s.tiers, s.now())
	return vendors, skipped, nil
}

// knownVendors loads the local vendors referenced by dataset rows that have
// no signup inside the lookback window.
func (s *SyncService) knownVendors(ctx context.Context, signups []bigquery.SignupRow, orders []bigquery.OrderStatsRow, ratings []bigquery.RatingRow, geo []bigquery.GeoRow) (map[string]*domain.Vendor, error) {
	signed := make(map[string]struct{}, len(signups))
	for _, row := range signups {
		signed[strings.TrimSpace(row.Handle)] = struct{}{}
	}
	var handles []string
	seen := map[string]struct{}{}
	add := func(h string) {
		h = strings.TrimSpace(h)
		if h == "" {
			return
		}
		if _, ok := signed[h]; ok {
			return
		}
		if _, ok := seen[h]; ok {
			return
		}
		seen[h] = struct{}{}
		handles = append(handles, h)
	}
	for _, row := range orders {
		add(row.Handle)
	}
	for _, row := range ratings {
		add(row.Handle)
	}
	for _, row := range geo {
		add(row.Handle)
	}

	existing := make(map[string]*domain.Vendor, len(handles))
	for _, h := range handles {
		v, err := s.vendors.GetByHandle(ctx, h)
		if apperrors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		existing[h] = v
	}
	return existing, nil
}

// MergeVendorRows joins the datasets on handle. Signups and the already known
// vendors in existing define the vendor set; rows matching neither are
// counted as skipped.
func MergeVendorRows(signups []bigquery.SignupRow, orders []bigquery.OrderStatsRow, ratings []bigquery.RatingRow, geo []bigquery.GeoRow, existing map[string]*domain.Vendor, tiers []domain.GMVTierThreshold, at time.Time) ([]*domain.Vendor, int) {
	byHandle := make(map[string]*domain.Vendor, len(signups)+len(existing))
	for handle, known := range existing {
		if known == nil {
			continue
		}
		copied := *known
		synced := at
		copied.LastSyncedAt = &synced
		byHandle[handle] = &copied
	}
	for _, row := range signups {
		handle := strings.TrimSpace(row.Handle)
		if handle == "" {
			continue
		}
		signup := row.SignupDate
		synced := at
		v := &domain.Vendor{
			Handle:       handle,
			Name:         strings.TrimSpace(row.Name),
			ContactName:  strings.TrimSpace(row.ContactName),
			Email:        strings.ToLower(strings.TrimSpace(row.Email)),
			Phone:        strings.TrimSpace(row.Phone),
			Segment:      strings.TrimSpace(row.Segment),
			GMVTier:      domain.GMVTierNew,
			Source:       domain.VendorSourceBigQuery,
			LastSyncedAt: &synced,
		}
		if !signup.IsZero() {
			v.SignupDate = &signup
		}
		if v.Name == "" {
			v.Name = handle
		}
		byHandle[handle] = v
	}

	skipped := 0
	for _, row := range orders {
		v, ok := byHandle[strings.TrimSpace(row.Handle)]
		if !ok {
			skipped++
			continue
		}
		v.TotalOrders = row.TotalOrders
		v.GMV = row.GMV
	}
	for _, row := range ratings {
		v, ok := byHandle[strings.TrimSpace(row.Handle)]
		if !ok {
			skipped++
			continue
		}
		v.Rating = row.Rating
	}
	for _, row := range geo {
		v, ok := byHandle[strings.TrimSpace(row.Handle)]
		if !ok {
			skipped++
			continue
		}
		v.City = row.City
		v.Country = row.Country
		v.IsInternational = row.IsInternational
	}

	out := make([]*domain.Vendor, 0, len(byHandle))
	for _, v := range byHandle {
		v.GMVTier = domain.GMVTierFor(v.TotalOrders, tiers)
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out, skipped
}

func (s *SyncService) upsertAll(ctx context.Context, vendors []*domain.Vendor, result *SyncResult) {
	for _, v := range vendors {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, err.Error())
			return
		}
		if err := s.vendors.Upsert(ctx, v); err != nil {
			result.Errors = append(result.Errors, v.Handle+": "+err.Error())
			continue
		}
		result.Upserted++
	}
}

// ApplyPushed upserts vendor rows pushed by the n8n receiver.
func (s *SyncService) ApplyPushed(ctx context.Context, records []n8n.VendorRecord) (*SyncResult, error) {
	if len(records) == 0 {
		return nil, apperrors.NewValidationError("no vendors in payload", nil)
	}
	now := s.now()
	result := &SyncResult{Source: domain.VendorSourceN8N, StartedAt: now, Errors: []string{}}
	vendors := make([]*domain.Vendor, 0, len(records))
	for _, r := range records {
		if strings.TrimSpace(r.Handle) == "" {
			result.Skipped++
			continue
		}
		v := vendorFromRecord(r, s.tiers, domain.VendorSourceN8N, now)
		if v.Name == "" {
			v.Name = v.Handle
		}
		vendors = append(vendors, v)
	}
	result.Fetched = len(vendors)
	s.upsertAll(ctx, vendors, result)
	result.FinishedAt = s.now()
	return result, nil
}

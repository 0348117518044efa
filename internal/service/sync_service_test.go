package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/integrations/bigquery"
	"github.com/spec-kit/flow-helpdesk/internal/integrations/n8n"
	"github.com/spec-kit/flow-helpdesk/internal/repository"
)

type fakeSource struct {
	signups []bigquery.SignupRow
	orders  []bigquery.OrderStatsRow
	ratings []bigquery.RatingRow
	geo     []bigquery.GeoRow

	since   time.Time
	block   chan struct{}
	entered chan struct{}
	failOn  string
	closed  bool
	mu      sync.Mutex
}

func (s *fakeSource) Signups(ctx context.Context, since time.Time) ([]bigquery.SignupRow, error) {
	s.mu.Lock()
	s.since = since
	s.mu.Unlock()
	if s.entered != nil {
		close(s.entered)
	}
	if s.block != nil {
		<-s.block
	}
	if s.failOn == "signups" {
		return nil, errors.New("quota exceeded")
	}
	return s.signups, nil
}

func (s *fakeSource) OrderStats(context.Context) ([]bigquery.OrderStatsRow, error) {
	return s.orders, nil
}

func (s *fakeSource) Ratings(context.Context) ([]bigquery.RatingRow, error) {
	return s.ratings, nil
}

func (s *fakeSource) Geo(context.Context) ([]bigquery.GeoRow, error) {
	return s.geo, nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func sampleSource() *fakeSource {
	return &fakeSource{
		signups: []bigquery.SignupRow{
			{Handle: "zeta", Name: "Zeta", Email: " Z@Zeta.com ", SignupDate: time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)},
			{Handle: "alpha", Name: ""},
			{Handle: "  "},
		},
		orders: []bigquery.OrderStatsRow{
			{Handle: "zeta", TotalOrders: 520, GMV: 12000.5},
			{Handle: "alpha", TotalOrders: 3},
			{Handle: "orphan", TotalOrders: 900},
		},
		ratings: []bigquery.RatingRow{{Handle: "zeta", Rating: 4.6}},
		geo: []bigquery.GeoRow{
			{Handle: "alpha", City: "Dubai", Country: "AE", IsInternational: true},
			{Handle: "ghost", City: "Lahore"},
		},
	}
}

func TestMergeVendorRows(t *testing.T) {
	src := sampleSource()
	at := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	vendors, skipped := MergeVendorRows(src.signups, src.orders, src.ratings, src.geo, nil, domain.DefaultGMVTiers, at)

	require.Len(t, vendors, 2)
	assert.Equal(t, 2, skipped)

	alpha, zeta := vendors[0], vendors[1]
	assert.Equal(t, "alpha", alpha.Handle)
	assert.Equal(t, "alpha", alpha.Name, "name falls back to handle")
	assert.Equal(t, "Bronze", alpha.GMVTier)
	assert.True(t, alpha.IsInternational)
	assert.Equal(t, "Dubai", alpha.City)
	assert.Nil(t, alpha.SignupDate)

	assert.Equal(t, "Platinum", zeta.GMVTier)
	assert.Equal(t, "z@zeta.com", zeta.Email)
	assert.InDelta(t, 4.6, zeta.Rating, 0.0001)
	assert.Equal(t, int64(520), zeta.TotalOrders)
	require.NotNil(t, zeta.SignupDate)
	require.NotNil(t, zeta.LastSyncedAt)
	assert.Equal(t, at, *zeta.LastSyncedAt)
	assert.Equal(t, domain.VendorSourceBigQuery, zeta.Source)
}

func TestSyncRunUpsertsAndRecordsLast(t *testing.T) {
	f := newFixture(t)
	src := sampleSource()
	svc := NewSyncService(SyncDependencies{
		VendorRepo:   f.store.Vendors,
		Source:       func(context.Context) (bigquery.RowSource, error) { return src, nil },
		LookbackDays: 30,
		Clock:        f.clock.Now,
	})
	assert.Nil(t, svc.Last())

	result, err := svc.Run(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Fetched)
	assert.Equal(t, 2, result.Upserted)
	assert.Equal(t, 2, result.Skipped)
	assert.Empty(t, result.Errors)
	assert.True(t, src.closed)
	assert.Equal(t, f.clock.Now().Add(-30*24*time.Hour), src.since)

	v, err := f.store.Vendors.GetByHandle(f.ctx, "zeta")
	require.NoError(t, err)
	assert.Equal(t, "Platinum", v.GMVTier)

	last := svc.Last()
	require.NotNil(t, last)
	assert.Equal(t, 2, last.Upserted)

	// a second run is idempotent on the handle key
	_, err = svc.Run(f.ctx)
	require.NoError(t, err)
	_, total, err := f.vendors.List(f.ctx, repository.VendorFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestMergeVendorRowsUpdatesKnownVendors(t *testing.T) {
	at := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	known := map[string]*domain.Vendor{
		"oldie": {Handle: "oldie", Name: "Oldie Foods", Email: "ops@oldie.com", TotalOrders: 3, GMVTier: "Bronze", Source: domain.VendorSourceImport},
	}
	orders := []bigquery.OrderStatsRow{{Handle: "oldie", TotalOrders: 900}, {Handle: "ghost", TotalOrders: 1}}
	ratings := []bigquery.RatingRow{{Handle: "oldie", Rating: 4.1}}

	vendors, skipped := MergeVendorRows(nil, orders, ratings, nil, known, domain.DefaultGMVTiers, at)
	require.Len(t, vendors, 1)
	assert.Equal(t, 1, skipped)

	oldie := vendors[0]
	assert.Equal(t, "Oldie Foods", oldie.Name)
	assert.Equal(t, "ops@oldie.com", oldie.Email)
	assert.Equal(t, int64(900), oldie.TotalOrders)
	assert.Equal(t, "Platinum", oldie.GMVTier)
	assert.InDelta(t, 4.1, oldie.Rating, 0.0001)
	require.NotNil(t, oldie.LastSyncedAt)
	assert.Equal(t, at, *oldie.LastSyncedAt)
	assert.Equal(t, int64(3), known["oldie"].TotalOrders, "input vendor is not mutated")
}

func TestSyncRunRefreshesVendorsOutsideLookback(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Vendors.Upsert(f.ctx, &domain.Vendor{
		Handle:      "oldie",
		Name:        "Oldie Foods",
		TotalOrders: 3,
		GMVTier:     "Bronze",
		Source:      domain.VendorSourceImport,
	}))
	src := &fakeSource{orders: []bigquery.OrderStatsRow{{Handle: "oldie", TotalOrders: 900}}}
	svc := NewSyncService(SyncDependencies{
		VendorRepo:   f.store.Vendors,
		Source:       func(context.Context) (bigquery.RowSource, error) { return src, nil },
		LookbackDays: 30,
		Clock:        f.clock.Now,
	})

	result, err := svc.Run(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Fetched)
	assert.Equal(t, 1, result.Upserted)
	assert.Equal(t, 0, result.Skipped)

	v, err := f.store.Vendors.GetByHandle(f.ctx, "oldie")
	require.NoError(t, err)
	assert.Equal(t, int64(900), v.TotalOrders)
	assert.Equal(t, "Platinum", v.GMVTier)
	assert.Equal(t, "Oldie Foods", v.Name)
}

func TestSyncRunDisabledAndFailures(t *testing.T) {
	f := newFixture(t)
	none := NewSyncService(SyncDependencies{VendorRepo: f.store.Vendors})
	_, err := none.Run(f.ctx)
	assertStatus(t, err, http.StatusBadRequest)

	disabled := NewSyncService(SyncDependencies{
		VendorRepo: f.store.Vendors,
		Source:     func(context.Context) (bigquery.RowSource, error) { return nil, bigquery.ErrDisabled },
	})
	_, err = disabled.Run(f.ctx)
	assertStatus(t, err, http.StatusBadRequest)

	src := sampleSource()
	src.failOn = "signups"
	failing := NewSyncService(SyncDependencies{
		VendorRepo: f.store.Vendors,
		Source:     func(context.Context) (bigquery.RowSource, error) { return src, nil },
	})
	_, err = failing.Run(f.ctx)
	assertStatus(t, err, http.StatusInternalServerError)
	assert.Nil(t, failing.Last())
	assert.True(t, src.closed)
}

func TestSyncRunIsSingleFlight(t *testing.T) {
	f := newFixture(t)
	src := sampleSource()
	src.block = make(chan struct{})
	src.entered = make(chan struct{})
	svc := NewSyncService(SyncDependencies{
		VendorRepo: f.store.Vendors,
		Source:     func(context.Context) (bigquery.RowSource, error) { return src, nil },
	})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Run(f.ctx)
		done <- err
	}()
	<-src.entered

	_, err := svc.Run(f.ctx)
	assertStatus(t, err, http.StatusConflict)

	close(src.block)
	require.NoError(t, <-done)
}

func TestApplyPushed(t *testing.T) {
	f := newFixture(t)
	svc := NewSyncService(SyncDependencies{VendorRepo: f.store.Vendors, Clock: f.clock.Now})

	_, err := svc.ApplyPushed(f.ctx, nil)
	assertStatus(t, err, http.StatusBadRequest)

	result, err := svc.ApplyPushed(f.ctx, []n8n.VendorRecord{
		{Handle: "pushed", TotalOrders: 250},
		{Handle: " "},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Fetched)
	assert.Equal(t, 1, result.Upserted)
	assert.Equal(t, 1, result.Skipped)

	v, err := f.store.Vendors.GetByHandle(f.ctx, "pushed")
	require.NoError(t, err)
	assert.Equal(t, "pushed", v.Name)
	assert.Equal(t, "Gold", v.GMVTier)
	assert.Equal(t, domain.VendorSourceN8N, v.Source)
}

package repository_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/flow-helpdesk/internal/config"
	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/persistence"
	"github.com/spec-kit/flow-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/flow-helpdesk/pkg/util/errorutil"
)

// openStore runs against a disposable database named by TEST_POSTGRES_DSN.
func openStore(t *testing.T) *repository.Store {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pg, err := persistence.NewPostgres(ctx, config.PostgresConfig{DSN: dsn, MaxConns: 8, MinConns: 1}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pg.Close)
	require.NoError(t, persistence.RunMigrations(ctx, pg.PoolHandle(), zap.NewNop()))
	return repository.NewPostgresStore(pg.PoolHandle())
}

func uniqueSuffix() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func TestPostgresTicketNumbering(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	suffix := uniqueSuffix()

	dept := &domain.Department{Name: "Numbering " + suffix, Code: "T" + suffix, IsActive: true}
	require.NoError(t, store.Departments.Create(ctx, dept))
	reporter := &domain.User{Email: strings.ToLower(suffix) + "@example.com", Name: "Reporter", Roles: []string{domain.RoleAgent}, DepartmentID: &dept.ID, IsActive: true}
	require.NoError(t, store.Users.Create(ctx, reporter))

	const workers = 8
	numbers := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ticket := &domain.Ticket{
				DepartmentID: dept.ID,
				CategoryID:   domain.UncategorizedCategoryID,
				Subject:      fmt.Sprintf("ticket %d", i),
				Status:       domain.TicketStatusNew,
				Tags:         []string{},
				TagsSnapshot: []string{},
				ReporterID:   reporter.ID,
				CreatedAt:    time.Now().UTC(),
			}
			if assert.NoError(t, store.Tickets.CreateNumbered(ctx, ticket, dept.Code)) {
				numbers[i] = ticket.TicketNumber
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]struct{}{}
	for _, n := range numbers {
		seen[n] = struct{}{}
	}
	assert.Len(t, seen, workers)
	for i := 1; i <= workers; i++ {
		assert.Contains(t, seen, domain.FormatTicketNumber(dept.Code, i))
	}

	got, err := store.Tickets.GetByNumber(ctx, strings.ToLower(domain.FormatTicketNumber(dept.Code, 1)))
	require.NoError(t, err)
	assert.Equal(t, dept.ID, got.DepartmentID)
}

func TestPostgresErrorMapping(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	suffix := uniqueSuffix()

	dept := &domain.Department{Name: "Dup " + suffix, Code: "D" + suffix, IsActive: true}
	require.NoError(t, store.Departments.Create(ctx, dept))
	err := store.Departments.Create(ctx, &domain.Department{Name: "Dup " + suffix, Code: "E" + suffix, IsActive: true})
	require.Error(t, err)
	derr := apperrors.ToDomainError(err)
	assert.Equal(t, 409, derr.HTTPStatus)

	missing := uuid.NewString()
	err = store.Users.Create(ctx, &domain.User{Email: strings.ToLower(suffix) + "@fk.example.com", Name: "Orphan", DepartmentID: &missing, IsActive: true})
	require.Error(t, err)
	assert.Equal(t, "INVALID_REFERENCE", apperrors.ToDomainError(err).Code)

	_, err = store.Departments.GetByID(ctx, uuid.NewString())
	assert.True(t, apperrors.IsNotFound(err))
}

func TestPostgresVendorUpsert(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	handle := "vendor-" + strings.ToLower(uniqueSuffix())

	v := &domain.Vendor{Handle: handle, Name: "First", TotalOrders: 10, GMVTier: "Bronze", Source: domain.VendorSourceImport}
	require.NoError(t, store.Vendors.Upsert(ctx, v))
	v2 := &domain.Vendor{Handle: handle, Name: "Second", TotalOrders: 600, GMVTier: "Platinum", Source: domain.VendorSourceBigQuery}
	require.NoError(t, store.Vendors.Upsert(ctx, v2))

	got, err := store.Vendors.GetByHandle(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, "Second", got.Name)
	assert.Equal(t, "Platinum", got.GMVTier)
	assert.Equal(t, domain.VendorSourceBigQuery, got.Source)

	list, total, err := store.Vendors.List(ctx, repository.VendorFilter{Search: handle})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, list, 1)
}

package service

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/repository"
)

func TestFormatFromFilename(t *testing.T) {
	got, err := FormatFromFilename("Vendors.CSV")
	require.NoError(t, err)
	assert.Equal(t, ImportCSV, got)

	got, err = FormatFromFilename("export.xlsx")
	require.NoError(t, err)
	assert.Equal(t, ImportXLSX, got)

	_, err = FormatFromFilename("vendors.xls")
	assertStatus(t, err, http.StatusBadRequest)
}

func TestImportCSV(t *testing.T) {
	f := newFixture(t)
	svc := NewImportService(f.store.Vendors, domain.DefaultGMVTiers, f.dispatcher, nil)
	csv := "\xef\xbb\xbfHandle,Name,Total Orders,GMV,Is-International\n" +
		"acme,Acme,\"1,200\",5000.5,yes\n" +
		",,,,\n" +
		"bad,Bad,many,,\n" +
		",Nameless,1,,\n" +
		"tiny,Tiny,0,,no\n"

	result, err := svc.ImportVendors(f.ctx, nil, ImportCSV, strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 4, result.Rows)
	assert.Equal(t, 2, result.Upserted)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, 4, result.Errors[0].Row)
	assert.Equal(t, "bad", result.Errors[0].Handle)
	assert.Equal(t, 5, result.Errors[1].Row)
	assert.Equal(t, "handle is required", result.Errors[1].Message)

	acme, err := f.store.Vendors.GetByHandle(f.ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(1200), acme.TotalOrders)
	assert.Equal(t, "Platinum", acme.GMVTier)
	assert.True(t, acme.IsInternational)
	assert.Equal(t, domain.VendorSourceImport, acme.Source)

	// re-importing updates in place
	_, err = svc.ImportVendors(f.ctx, nil, ImportCSV, strings.NewReader("handle,name,orders\nacme,Acme Two,60\n"))
	require.NoError(t, err)
	acme2, err := f.store.Vendors.GetByHandle(f.ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, acme.ID, acme2.ID)
	assert.Equal(t, "Silver", acme2.GMVTier)
	assert.Equal(t, "Acme Two", acme2.Name)
}

func TestImportRejectsBadFiles(t *testing.T) {
	f := newFixture(t)
	svc := NewImportService(f.store.Vendors, nil, nil, nil)

	_, err := svc.ImportVendors(f.ctx, nil, ImportCSV, strings.NewReader(""))
	assertStatus(t, err, http.StatusBadRequest)
	_, err = svc.ImportVendors(f.ctx, nil, ImportCSV, strings.NewReader("name,city\nAcme,Karachi\n"))
	assertStatus(t, err, http.StatusBadRequest)
	_, err = svc.ImportVendors(f.ctx, nil, ImportXLSX, strings.NewReader("not a zip"))
	assertStatus(t, err, http.StatusBadRequest)
	_, err = svc.ImportVendors(f.ctx, nil, ImportFormat("ods"), strings.NewReader("x"))
	assertStatus(t, err, http.StatusBadRequest)
}

func TestImportXLSX(t *testing.T) {
	f := newFixture(t)
	svc := NewImportService(f.store.Vendors, domain.DefaultGMVTiers, f.dispatcher, nil)

	book := excelize.NewFile()
	defer book.Close()
	sheet := book.GetSheetName(0)
	rows := [][]any{
		{"handle", "name", "city", "total_orders", "rating"},
		{"north", "North Traders", "Lahore", 75, 4.2},
		{"south", "South Traders", "Karachi", 0, ""},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, book.SetSheetRow(sheet, cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, book.Write(&buf))

	result, err := svc.ImportVendors(f.ctx, nil, ImportXLSX, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Rows)
	assert.Equal(t, 2, result.Upserted)
	assert.Empty(t, result.Errors)

	list, _, err := f.store.Vendors.List(f.ctx, repository.VendorFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "north", list[0].Handle)
	assert.Equal(t, "Silver", list[0].GMVTier)
	assert.Equal(t, "Lahore", list[0].City)
	assert.Equal(t, domain.GMVTierNew, list[1].GMVTier)
}

func TestImportIsAudited(t *testing.T) {
	f := newFixture(t)
	svc := NewImportService(f.store.Vendors, nil, f.dispatcher, nil)
	admin := f.principal(f.user(t, "ada", "CX", domain.RoleAdmin))

	_, err := svc.ImportVendors(f.ctx, admin, ImportCSV, strings.NewReader("handle,name\nx,X\n"))
	require.NoError(t, err)
	f.dispatcher.Wait()

	logs, err := f.store.Audit.List(f.ctx, repository.AuditFilter{EntityType: "vendor"})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "vendor.imported", logs[0].Action)
	assert.Equal(t, "ada@example.com", logs[0].ActorEmail)
}

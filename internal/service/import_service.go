package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/flow-helpdesk/internal/auth"
	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/events"
	"github.com/spec-kit/flow-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/flow-helpdesk/pkg/util/errorutil"
)

const maxImportBytes = 20 << 20

// ImportFormat is a supported spreadsheet format.
type ImportFormat string

const (
	ImportCSV  ImportFormat = "csv"
	ImportXLSX ImportFormat = "xlsx"
)

// FormatFromFilename picks the format by extension.
func FormatFromFilename(name string) (ImportFormat, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return ImportCSV, nil
	case ".xlsx":
		return ImportXLSX, nil
	}
	return "", apperrors.NewValidationError("unsupported file type, expected .csv or .xlsx", map[string]any{"file": name})
}

// ImportRowError describes one rejected row. Row numbers are 1-based and count the header.
type ImportRowError struct {
	Row     int    `json:"row"`
	Handle  string `json:"handle,omitempty"`
	Message string `json:"message"`
}

// ImportResult summarizes an import.
type ImportResult struct {
	Rows     int              `json:"rows"`
	Upserted int              `json:"upserted"`
	Errors   []ImportRowError `json:"errors"`
}

// ImportService loads vendor spreadsheets.
type ImportService struct {
	vendors    repository.VendorRepository
	tiers      []domain.GMVTierThreshold
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewImportService constructs the service.
func NewImportService(vendors repository.VendorRepository, tiers []domain.GMVTierThreshold, dispatcher events.Dispatcher, logger *zap.Logger) *ImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportService{vendors: vendors, tiers: tiers, dispatcher: dispatcher, logger: logger}
}

// ImportVendors upserts every valid row of r. Invalid rows are reported, not fatal.
func (s *ImportService) ImportVendors(ctx context.Context, actor *auth.Principal, format ImportFormat, r io.Reader) (*ImportResult, error) {
	raw, err := io.ReadAll(io.LimitReader(r, maxImportBytes+1))
	if err != nil {
		return nil, apperrors.NewValidationError("could not read upload", nil)
	}
	if len(raw) > maxImportBytes {
		return nil, apperrors.NewValidationError("file too large", map[string]any{"max_bytes": maxImportBytes})
	}
	var rows [][]string
	switch format {
	case ImportCSV:
		rows, err = readCSV(raw)
	case ImportXLSX:
		rows, err = readXLSX(raw)
	default:
		return nil, apperrors.NewValidationError("unsupported import format", map[string]any{"format": string(format)})
	}
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error(), nil)
	}
	if len(rows) == 0 {
		return nil, apperrors.NewValidationError("file is empty", nil)
	}

	header := indexHeader(rows[0])
	if _, ok := header["handle"]; !ok {
		return nil, apperrors.NewValidationError("missing handle column", nil)
	}
	result := &ImportResult{Errors: []ImportRowError{}}
	for i, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		result.Rows++
		rowNum := i + 2
		in, err := vendorInputFromRow(header, row)
		if err != nil {
			result.Errors = append(result.Errors, ImportRowError{Row: rowNum, Handle: in.Handle, Message: err.Error()})
			continue
		}
		v, err := in.toVendor(s.tiers)
		if err != nil {
			result.Errors = append(result.Errors, ImportRowError{Row: rowNum, Handle: in.Handle, Message: apperrors.ToDomainError(err).Message})
			continue
		}
		v.Source = domain.VendorSourceImport
		if err := s.vendors.Upsert(ctx, v); err != nil {
			result.Errors = append(result.Errors, ImportRowError{Row: rowNum, Handle: v.Handle, Message: apperrors.ToDomainError(err).Message})
			continue
		}
		result.Upserted++
	}
	s.logger.Info("vendor import finished",
		zap.String("format", string(format)),
		zap.Int("rows", result.Rows),
		zap.Int("upserted", result.Upserted),
		zap.Int("errors", len(result.Errors)),
	)
	auditChange(ctx, s.dispatcher, actor, "vendor.imported", "vendor", "", map[string]any{
		"rows":     result.Rows,
		"upserted": result.Upserted,
	})
	return result, nil
}

func readCSV(raw []byte) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("invalid csv: %w", err)
	}
	return rows, nil
}

func readXLSX(raw []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid xlsx: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

func indexHeader(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		key = strings.ReplaceAll(key, " ", "_")
		key = strings.ReplaceAll(key, "-", "_")
		if _, seen := idx[key]; !seen {
			idx[key] = i
		}
	}
	return idx
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func vendorInputFromRow(header map[string]int, row []string) (VendorInput, error) {
	cell := func(names ...string) string {
		for _, name := range names {
			if i, ok := header[name]; ok && i < len(row) {
				return strings.TrimSpace(row[i])
			}
		}
		return ""
	}
	in := VendorInput{
		Handle:      cell("handle", "vendor_handle"),
		Name:        cell("name", "vendor_name"),
		ContactName: cell("contact_name", "contact"),
		Email:       cell("email"),
		Phone:       cell("phone"),
		City:        cell("city"),
		Country:     cell("country"),
		Segment:     cell("segment"),
	}
	var err error
	if v := cell("total_orders", "orders"); v != "" {
		if in.TotalOrders, err = strconv.ParseInt(strings.ReplaceAll(v, ",", ""), 10, 64); err != nil {
			return in, fmt.Errorf("invalid total_orders %q", v)
		}
	}
	if v := cell("gmv"); v != "" {
		if in.GMV, err = strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64); err != nil {
			return in, fmt.Errorf("invalid gmv %q", v)
		}
	}
	if v := cell("rating"); v != "" {
		if in.Rating, err = strconv.ParseFloat(v, 64); err != nil {
			return in, fmt.Errorf("invalid rating %q", v)
		}
	}
	if v := cell("is_international", "international"); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "y":
			in.International = true
		case "0", "false", "no", "n":
		default:
			return in, fmt.Errorf("invalid is_international %q", v)
		}
	}
	return in, nil
}

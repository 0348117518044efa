// Package bigquery reads vendor facts from the marketplace warehouse.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	bq "cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/spec-kit/flow-helpdesk/internal/config"
)

// SignupRow is one vendor registration.
type SignupRow struct {
	Handle      string    `bigquery:"handle"`
	Name        string    `bigquery:"name"`
	ContactName string    `bigquery:"contact_name"`
	Email       string    `bigquery:"email"`
	Phone       string    `bigquery:"phone"`
	Segment     string    `bigquery:"segment"`
	SignupDate  time.Time `bigquery:"signup_date"`
}

// OrderStatsRow aggregates historical orders per vendor.
type OrderStatsRow struct {
	Handle      string  `bigquery:"handle"`
	TotalOrders int64   `bigquery:"total_orders"`
	GMV         float64 `bigquery:"gmv"`
}

// RatingRow is the average customer rating per vendor.
type RatingRow struct {
	Handle string  `bigquery:"handle"`
	Rating float64 `bigquery:"rating"`
}

// GeoRow holds location flags per vendor.
type GeoRow struct {
	Handle          string `bigquery:"handle"`
	City            string `bigquery:"city"`
	Country         string `bigquery:"country"`
	IsInternational bool   `bigquery:"is_international"`
}

// RowSource yields the warehouse datasets merged by the vendor sync.
type RowSource interface {
	Signups(ctx context.Context, since time.Time) ([]SignupRow, error)
	OrderStats(ctx context.Context) ([]OrderStatsRow, error)
	Ratings(ctx context.Context) ([]RatingRow, error)
	Geo(ctx context.Context) ([]GeoRow, error)
	Close() error
}

// ErrDisabled is returned when BigQuery sync is turned off.
var ErrDisabled = errors.New("bigquery sync disabled")

var identifier = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

// Source queries BigQuery with parameterized SQL.
type Source struct {
	client  *bq.Client
	project string
	dataset string
	home    string
}

// NewSource connects to BigQuery.
func NewSource(ctx context.Context, cfg config.BigQueryConfig) (*Source, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if !identifier.MatchString(cfg.ProjectID) || !identifier.MatchString(cfg.Dataset) {
		return nil, fmt.Errorf("invalid bigquery project %q or dataset %q", cfg.ProjectID, cfg.Dataset)
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := bq.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery client: %w", err)
	}
	return &Source{client: client, project: cfg.ProjectID, dataset: cfg.Dataset, home: cfg.HomeCountry}, nil
}

func (s *Source) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", s.project, s.dataset, name)
}

func (s *Source) Signups(ctx context.Context, since time.Time) ([]SignupRow, error) {
	sql := `SELECT handle,
            COALESCE(store_name, '') AS name,
            COALESCE(owner_name, '') AS contact_name,
            COALESCE(email, '') AS email,
            COALESCE(phone, '') AS phone,
            COALESCE(segment, '') AS segment,
            created_at AS signup_date
        FROM ` + s.table("vendor_signups") + `
        WHERE handle IS NOT NULL AND created_at >= @since`
	return readAll[SignupRow](ctx, s.client, sql, bq.QueryParameter{Name: "since", Value: since})
}

func (s *Source) OrderStats(ctx context.Context) ([]OrderStatsRow, error) {
	sql := `SELECT vendor_handle AS handle,
            COUNT(DISTINCT order_id) AS total_orders,
            COALESCE(SUM(order_value), 0) AS gmv
        FROM ` + s.table("orders") + `
        WHERE vendor_handle IS NOT NULL AND status != @cancelled
        GROUP BY vendor_handle`
	return readAll[OrderStatsRow](ctx, s.client, sql, bq.QueryParameter{Name: "cancelled", Value: "cancelled"})
}

func (s *Source) Ratings(ctx context.Context) ([]RatingRow, error) {
	sql := `SELECT vendor_handle AS handle, AVG(rating) AS rating
        FROM ` + s.table("vendor_reviews") + `
        WHERE vendor_handle IS NOT NULL AND rating BETWEEN @min AND @max
        GROUP BY vendor_handle`
	return readAll[RatingRow](ctx, s.client, sql,
		bq.QueryParameter{Name: "min", Value: 1},
		bq.QueryParameter{Name: "max", Value: 5},
	)
}

func (s *Source) Geo(ctx context.Context) ([]GeoRow, error) {
	sql := `SELECT handle,
            COALESCE(city, '') AS city,
            COALESCE(country, '') AS country,
            COALESCE(country != @home, FALSE) AS is_international
        FROM ` + s.table("vendor_locations") + `
        WHERE handle IS NOT NULL`
	return readAll[GeoRow](ctx, s.client, sql, bq.QueryParameter{Name: "home", Value: s.home})
}

// Close releases the BigQuery client.
func (s *Source) Close() error {
	return s.client.Close()
}

func readAll[T any](ctx context.Context, client *bq.Client, sql string, params ...bq.QueryParameter) ([]T, error) {
	q := client.Query(sql)
	q.Parameters = params
	it, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}
	var out []T
	for {
		var row T
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

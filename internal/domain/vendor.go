package domain

import "time"

// Vendor sources.
const (
	VendorSourceBigQuery = "bigquery"
	VendorSourceN8N      = "n8n"
	VendorSourceImport   = "import"
	VendorSourceManual   = "manual"
)

// Vendor is a seller known to the helpdesk, keyed by handle.
type Vendor struct {
	ID              string     `json:"id"`
	Handle          string     `json:"handle"`
	Name            string     `json:"name"`
	ContactName     string     `json:"contactName"`
	Email           string     `json:"email"`
	Phone           string     `json:"phone"`
	City            string     `json:"city"`
	Country         string     `json:"country"`
	GMVTier         string     `json:"gmvTier"`
	Segment         string     `json:"segment"`
	TotalOrders     int64      `json:"totalOrders"`
	GMV             float64    `json:"gmv"`
	Rating          float64    `json:"rating"`
	IsInternational bool       `json:"isInternational"`
	SignupDate      *time.Time `json:"signupDate,omitempty"`
	Source          string     `json:"source"`
	LastSyncedAt    *time.Time `json:"lastSyncedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// GMVTierThreshold maps a minimum order count to a tier name.
type GMVTierThreshold struct {
	MinOrders int64
	Tier      string
}

// DefaultGMVTiers is ordered from the highest threshold down.
var DefaultGMVTiers = []GMVTierThreshold{
	{MinOrders: 500, Tier: "Platinum"},
	{MinOrders: 200, Tier: "Gold"},
	{MinOrders: 50, Tier: "Silver"},
	{MinOrders: 1, Tier: "Bronze"},
}

// GMVTierNew is used when no threshold matches.
const GMVTierNew = "New"

// GMVTierFor derives a tier from historical order count.
func GMVTierFor(orders int64, thresholds []GMVTierThreshold) string {
	if len(thresholds) == 0 {
		thresholds = DefaultGMVTiers
	}
	for _, th := range thresholds {
		if orders >= th.MinOrders {
			return th.Tier
		}
	}
	return GMVTierNew
}

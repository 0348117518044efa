package dto

// VendorRequest payload for manual vendor writes.
type VendorRequest struct {
	Handle          string  `json:"handle"`
	Name            string  `json:"name"`
	ContactName     string  `json:"contactName"`
	Email           string  `json:"email"`
	Phone           string  `json:"phone"`
	City            string  `json:"city"`
	Country         string  `json:"country"`
	Segment         string  `json:"segment"`
	TotalOrders     int64   `json:"totalOrders"`
	GMV             float64 `json:"gmv"`
	Rating          float64 `json:"rating"`
	IsInternational bool    `json:"isInternational"`
}

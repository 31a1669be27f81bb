// backend/internal/domain/scraper.go
package domain

import "time"

// Details holds what a house detail page adds to a listing.
type Details struct {
	Price  *float64
	Expiry *time.Time
}

// backend/internal/domain/listing.go
package domain

import "time"

// Listing is a rentable house as shown on the Play Your Life user panel.
//
// A nil Owner means the house is available for rent. A nil Price means the
// summary table did not carry a numeric price and the detail page has to be
// consulted.
type Listing struct {
	ID         int
	X          int
	Y          int
	Name       string
	Location   string
	Owner      *string
	Price      *float64
	Expiry     *time.Time
	LastUpdate time.Time
}

// NeedsDetails reports whether price and expiry must come from the detail page.
func (l Listing) NeedsDetails() bool {
	return l.Price == nil
}

// SameOwner compares owners, treating two nil owners as equal.
func (l Listing) SameOwner(other Listing) bool {
	if l.Owner == nil || other.Owner == nil {
		return l.Owner == nil && other.Owner == nil
	}
	return *l.Owner == *other.Owner
}

// ApplyDetails merges a detail page into the listing. A page without a price
// line leaves the listing priced at zero, which makes the next run check it
// again.
func (l *Listing) ApplyDetails(d Details) {
	price := 0.0
	if d.Price != nil {
		price = *d.Price
	}
	l.Price = &price
	l.Expiry = d.Expiry
}

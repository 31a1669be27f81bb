package pylife

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/ps-vitor/pylife-houses/backend/internal/domain"
)

// ForRent is the owner cell text of a house nobody rents. An empty owner
// cell means the same.
const ForRent = "Do wynajęcia"

const (
	pricePhrase  = "za dobę"
	expiryPhrase = "Dom jest opłacony do"
)

var (
	priceRegex = regexp.MustCompile(`^\D*(\d+(?:\.\d+)?)`)
	dateRegex  = regexp.MustCompile(`[0-9]{4}-(?:0[1-9]|1[0-2])-(?:0[1-9]|[1-2][0-9]|3[0-1])`)
)

// ErrUnexpectedMarkup is returned when a page does not have the expected shape.
var ErrUnexpectedMarkup = errors.New("unexpected page markup")

// ParseListings reads every row of table#tdomy.
func ParseListings(doc *goquery.Document) ([]domain.Listing, error) {
	table := doc.Find("table#tdomy")
	if table.Length() == 0 {
		return nil, fmt.Errorf("%w: houses table not found", ErrUnexpectedMarkup)
	}

	var (
		listings []domain.Listing
		rowErr   error
	)

	table.Find("tbody tr").EachWithBreak(func(i int, row *goquery.Selection) bool {
		listing, err := parseRow(row)
		if err != nil {
			rowErr = fmt.Errorf("row %d: %w", i, err)
			return false
		}
		listings = append(listings, listing)
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}

	return listings, nil
}

func parseRow(row *goquery.Selection) (domain.Listing, error) {
	id, err := intAttr(row, "hid")
	if err != nil {
		return domain.Listing{}, err
	}
	x, err := coordAttr(row, "x")
	if err != nil {
		return domain.Listing{}, err
	}
	y, err := coordAttr(row, "y")
	if err != nil {
		return domain.Listing{}, err
	}

	cells := row.Find("td")
	if cells.Length() < 4 {
		return domain.Listing{}, fmt.Errorf("%w: house %d has %d cells", ErrUnexpectedMarkup, id, cells.Length())
	}
	cell := func(i int) string {
		return strings.TrimSpace(cells.Eq(i).Text())
	}

	listing := domain.Listing{
		ID:       id,
		X:        x,
		Y:        y,
		Name:     cell(0),
		Location: cell(1),
	}

	if owner := cell(2); owner != "" && owner != ForRent {
		listing.Owner = &owner
	}
	if price, err := strconv.ParseFloat(cell(3), 64); err == nil {
		listing.Price = &price
	}

	return listing, nil
}

func intAttr(row *goquery.Selection, name string) (int, error) {
	raw, ok := row.Attr(name)
	if !ok {
		return 0, fmt.Errorf("%w: missing %q attribute", ErrUnexpectedMarkup, name)
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %q attribute: %v", ErrUnexpectedMarkup, name, err)
	}
	return v, nil
}

// Coordinates come as decimals and are truncated.
func coordAttr(row *goquery.Selection, name string) (int, error) {
	raw, ok := row.Attr(name)
	if !ok {
		return 0, fmt.Errorf("%w: missing %q attribute", ErrUnexpectedMarkup, name)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q attribute: %v", ErrUnexpectedMarkup, name, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q attribute is not finite: %q", ErrUnexpectedMarkup, name, raw)
	}
	return int(v), nil
}

// ParseDetails scans the text of div#m_domy for the daily price and the
// paid-through date. Dates are midnight in loc.
func ParseDetails(doc *goquery.Document, loc *time.Location) (domain.Details, error) {
	body := doc.Find("div#m_domy")
	if body.Length() == 0 {
		return domain.Details{}, fmt.Errorf("%w: house details not found", ErrUnexpectedMarkup)
	}

	var details domain.Details
	for _, text := range textNodes(body.Nodes) {
		switch {
		case strings.Contains(text, pricePhrase):
			price, err := ParsePrice(text)
			if err != nil {
				return domain.Details{}, err
			}
			details.Price = &price
		case strings.Contains(text, expiryPhrase):
			expiry, err := ParseExpiry(text, loc)
			if err != nil {
				return domain.Details{}, err
			}
			details.Expiry = &expiry
		}
	}

	return details, nil
}

// ParsePrice extracts the first number of a price line such as "30.00 za dobę".
func ParsePrice(text string) (float64, error) {
	m := priceRegex.FindStringSubmatch(text)
	if m == nil {
		return 0, fmt.Errorf("%w: no price in %q", ErrUnexpectedMarkup, text)
	}
	return strconv.ParseFloat(m[1], 64)
}

// ParseExpiry extracts the first YYYY-MM-DD date of text in loc.
func ParseExpiry(text string, loc *time.Location) (time.Time, error) {
	m := dateRegex.FindString(text)
	if m == "" {
		return time.Time{}, fmt.Errorf("%w: no date in %q", ErrUnexpectedMarkup, text)
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(time.DateOnly, m, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrUnexpectedMarkup, err)
	}
	return t, nil
}

// textNodes returns the text nodes below nodes in document order.
func textNodes(nodes []*html.Node) []string {
	var out []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			out = append(out, n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return out
}

// backend/internal/scraping/collectors/pylife/collector.go
package pylife

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"golang.org/x/net/html/charset"

	"github.com/ps-vitor/pylife-houses/backend/internal/domain"
)

const (
	DefaultBaseURL   = "http://panel.pylife.pl"
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:73.0) Gecko/20100101 Firefox/73.0"
	DefaultTimeout   = 10 * time.Second
)

// Config describes the panel endpoints and the browser we pretend to be.
type Config struct {
	BaseURL    string
	HousesPath string
	HousePath  string
	UserAgent  string
	Referer    string
	Timeout    time.Duration
	Location   *time.Location
}

func (c *Config) setDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.HousesPath == "" {
		c.HousesPath = "/domy"
	}
	if c.HousePath == "" {
		c.HousePath = "/domy/"
	}
	if !strings.HasSuffix(c.HousePath, "/") {
		c.HousePath += "/"
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Referer == "" {
		c.Referer = c.BaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
}

// Collector downloads the houses panel. Requests are made one at a time and
// never retried.
type Collector struct {
	collector *colly.Collector
	cfg       Config
	logger    *slog.Logger
}

func NewCollector(cfg Config, logger *slog.Logger) (*Collector, error) {
	cfg.setDefaults()
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", cfg.BaseURL, err)
	}

	c := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	c.SetRequestTimeout(cfg.Timeout)

	return &Collector{
		collector: c,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// HousesURL is the summary table address.
func (p *Collector) HousesURL() string {
	return p.cfg.BaseURL + p.cfg.HousesPath
}

// HouseURL is the detail page address for a house.
func (p *Collector) HouseURL(id int) string {
	return p.cfg.BaseURL + p.cfg.HousePath + strconv.Itoa(id)
}

// FetchListings downloads and parses the summary table of all houses.
func (p *Collector) FetchListings(ctx context.Context) ([]domain.Listing, error) {
	doc, err := p.fetchDocument(ctx, p.HousesURL())
	if err != nil {
		return nil, err
	}
	return ParseListings(doc)
}

// FetchDetails downloads a house detail page and extracts price and expiry.
func (p *Collector) FetchDetails(ctx context.Context, id int) (domain.Details, error) {
	doc, err := p.fetchDocument(ctx, p.HouseURL(id))
	if err != nil {
		return domain.Details{}, err
	}
	details, err := ParseDetails(doc, p.cfg.Location)
	if err != nil {
		return domain.Details{}, fmt.Errorf("house %d: %w", id, err)
	}
	return details, nil
}

func (p *Collector) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		body        []byte
		contentType string
		fetchErr    error
	)

	c := p.collector.Clone()

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Referer", p.cfg.Referer)
		p.logger.Debug("requesting page", slog.String("url", r.URL.String()))
	})

	c.OnResponse(func(r *colly.Response) {
		body = r.Body
		contentType = r.Headers.Get("Content-Type")
	})

	c.OnError(func(r *colly.Response, e error) {
		fetchErr = fmt.Errorf("request URL %v failed with status %d: %w", r.Request.URL, r.StatusCode, e)
	})

	if err := c.Visit(pageURL); err != nil && fetchErr == nil {
		fetchErr = fmt.Errorf("request URL %v failed: %w", pageURL, err)
	}
	c.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}

	reader, err := decodeBody(body, contentType)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", pageURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}
	return doc, nil
}

// decodeBody turns a page into UTF-8. Colly already converts bodies whose
// Content-Type names a charset; for the rest the encoding comes from a BOM or
// the <meta> charset declaration.
func decodeBody(body []byte, contentType string) (io.Reader, error) {
	if strings.Contains(strings.ToLower(contentType), "charset") {
		return bytes.NewReader(body), nil
	}
	return charset.NewReader(bytes.NewReader(body), contentType)
}

// IsTimeout reports whether err was caused by the request timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/dealwatch/backend/internal/domain"
)

// Site describes one deal-listing page and the CSS selectors that locate
// candidate records on it. Title and link selectors are required; price
// and description are optional.
type Site struct {
	Name                string
	URL                 string
	ItemSelector        string
	TitleSelector       string
	LinkSelector        string
	PriceSelector       string
	DescriptionSelector string
}

// Scraper polls configured listing pages and extracts candidate deal
// records. It implements domain.DealSource. A page that fails to fetch or
// parse yields zero records and a warning; the run continues.
type Scraper struct {
	client    *http.Client
	sites     []Site
	userAgent string
	logger    *slog.Logger
	clock     domain.Clock
}

var _ domain.DealSource = (*Scraper)(nil)

// New wires an HTTP client with the given timeout over the configured
// sites.
func New(sites []Site, timeout time.Duration, userAgent string, logger *slog.Logger, clock domain.Clock) *Scraper {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if userAgent == "" {
		userAgent = "DealWatch Bot 1.0"
	}
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Scraper{
		client:    &http.Client{Timeout: timeout},
		sites:     sites,
		userAgent: userAgent,
		logger:    logger,
		clock:     clock,
	}
}

// FetchDeals scrapes every configured site and returns all extracted
// candidates. Per-site errors are logged and skipped.
func (s *Scraper) FetchDeals(ctx context.Context) ([]domain.DealRecord, error) {
	var records []domain.DealRecord
	for _, site := range s.sites {
		found, err := s.fetchSite(ctx, site)
		if err != nil {
			if ctx.Err() != nil {
				return records, ctx.Err()
			}
			s.logger.Warn("scrape failed, skipping site", "site", site.Name, "error", err)
			continue
		}
		s.logger.Info("scraped listing page", "site", site.Name, "candidates", len(found))
		records = append(records, found...)
	}
	return records, nil
}

func (s *Scraper) fetchSite(ctx context.Context, site Site) ([]domain.DealRecord, error) {
	doc, err := s.fetchDocument(ctx, site.URL)
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(site.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid site url %s: %w", site.URL, err)
	}

	var records []domain.DealRecord
	doc.Find(site.ItemSelector).Each(func(i int, item *goquery.Selection) {
		title := strings.TrimSpace(item.Find(site.TitleSelector).First().Text())

		link := item.Find(site.LinkSelector).First()
		href, _ := link.Attr("href")
		href = resolveHref(base, href)

		record := domain.DealRecord{
			Title:        title,
			URL:          href,
			DiscoveredAt: s.clock.Now().UTC(),
		}
		if site.PriceSelector != "" {
			record.Price = strings.TrimSpace(item.Find(site.PriceSelector).First().Text())
		}
		if site.DescriptionSelector != "" {
			record.Description = strings.TrimSpace(item.Find(site.DescriptionSelector).First().Text())
		}

		records = append(records, record)
	})

	return records, nil
}

func (s *Scraper) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing page returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return doc, nil
}

// resolveHref turns a relative listing link into an absolute URL against
// the page it was found on. Unparsable hrefs pass through untouched; the
// validator rejects them downstream.
func resolveHref(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

package parser

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"

	"StandardsScanner/internal/domain"
	"StandardsScanner/internal/infrastructure/browser"
	"StandardsScanner/internal/ports"
	"StandardsScanner/internal/scanner"
)

const (
	catalogHeadingSelector = ".heading-condensed"
	catalogRowSelector     = "tbody tr[ng-show*='pChecked']"
	catalogTitleSelector   = ".clearfix"
	catalogStageSelector   = "td[data-title*='Stage']"
	catalogTCSelector      = "td[data-title*='TC']"

	lifeCycleSelector       = "a[title*='Life cycle']"
	publicationDateSelector = "#publicationDate span"
	sampleLinkSelector      = "a:contains('Read sample')"
	sampleTextSelector      = "div.sts-standard"
)

var publicationDateLayouts = []string{
	"2006-01-02",
	"2006-01",
	"January 2006",
	"2 January 2006",
	time.RFC3339,
}

// ISOCatalogScanner walks ICS catalog tables, opening each standard page and
// its sample in secondary tabs.
type ISOCatalogScanner struct {
	session *browser.Session
	logger  *slog.Logger
}

var _ scanner.Scanner = (*ISOCatalogScanner)(nil)

// NewISOCatalogScanner wires the primary browser session.
func NewISOCatalogScanner(session *browser.Session, log *slog.Logger) *ISOCatalogScanner {
	return &ISOCatalogScanner{session: session, logger: log}
}

// Name identifies the strategy inside the registry.
func (s *ISOCatalogScanner) Name() string {
	return "iso-ics"
}

// Scan visits every catalog page and submits one document per listed standard.
func (s *ISOCatalogScanner) Scan(ctx context.Context, req scanner.Request, acceptor ports.Acceptor) error {
	if len(req.Categories) == 0 {
		return fmt.Errorf("no catalog pages provided for site %s", req.SiteName)
	}

	limit := scanner.PerFeedCap(req.MaximumMaterials, len(req.Categories))

	for _, cat := range req.Categories {
		rows, err := s.catalog(ctx, cat)
		if err != nil {
			return fmt.Errorf("catalog %s: %w", cat.Name, err)
		}

		if err := s.submit(ctx, rows, limit, acceptor); err != nil {
			return fmt.Errorf("catalog %s: %w", cat.Name, err)
		}
	}

	return nil
}

func (s *ISOCatalogScanner) submit(ctx context.Context, rows iter.Seq2[*domain.Document, error], limit int, acceptor ports.Acceptor) error {
	for doc, err := range scanner.Take(rows, limit) {
		if err != nil {
			return err
		}
		if err := acceptor.Accept(ctx, doc); err != nil {
			if domain.IsRestriction(err, domain.RestrictionFromDate) {
				return nil
			}
			return err
		}
	}
	return nil
}

// catalog loads the ICS page and returns its rows as a lazy sequence; each
// row's standard and sample pages are only visited when the row is pulled.
func (s *ISOCatalogScanner) catalog(ctx context.Context, cat scanner.Category) (iter.Seq2[*domain.Document, error], error) {
	if err := s.session.Navigate(ctx, cat.URL); err != nil {
		return nil, err
	}

	heading, err := s.session.Find(catalogHeadingSelector)
	if err != nil {
		return nil, fmt.Errorf("category heading: %w", err)
	}
	category := collapse(heading.First().Text())

	rows, err := s.session.Find(catalogRowSelector)
	if err != nil {
		return nil, fmt.Errorf("catalog rows: %w", err)
	}
	s.debug("catalog loaded", "category", category, "rows", rows.Length())

	return func(yield func(*domain.Document, error) bool) {
		for i := range rows.Length() {
			doc, err := s.row(ctx, rows.Eq(i), category, cat.URL)
			if !yield(doc, err) || err != nil {
				return
			}
		}
	}, nil
}

func (s *ISOCatalogScanner) row(ctx context.Context, row *goquery.Selection, category, categoryLink string) (*domain.Document, error) {
	titleCell := row.Find(catalogTitleSelector).First()
	title := collapse(titleCell.Text())
	href, ok := titleCell.Find("a").First().Attr("href")
	if !ok {
		return nil, fmt.Errorf("row %q has no standard link", title)
	}
	standardLink, err := s.session.Resolve(href)
	if err != nil {
		return nil, err
	}

	other := map[string]any{
		"category":       category,
		"category_link":  categoryLink,
		"stage":          collapse(row.Find(catalogStageSelector).First().Text()),
		"tech_committee": collapse(row.Find(catalogTCSelector).First().Text()),
		"standard_page":  standardLink,
	}

	standard := s.session.NewTab()
	defer standard.Close()

	if err := standard.Navigate(ctx, standardLink); err != nil {
		return nil, err
	}
	s.debug("enter standard", "link", standardLink)

	abstract, _ := probeText(standard, descriptionSelector)
	if status, ok := probeText(standard, lifeCycleSelector); ok {
		other["status"] = collapse(status)
	} else {
		other["status"] = nil
	}

	dateText, ok := probeText(standard, publicationDateSelector)
	if !ok {
		return nil, fmt.Errorf("standard %s: publication date not found", standardLink)
	}
	published, err := parsePublicationDate(dateText)
	if err != nil {
		return nil, fmt.Errorf("standard %s: %w", standardLink, err)
	}

	sampleAnchor, err := standard.Find(sampleLinkSelector)
	if err != nil {
		return nil, fmt.Errorf("standard %s: sample link: %w", standardLink, err)
	}
	sampleHref, _ := sampleAnchor.First().Attr("href")
	sampleLink, err := standard.Resolve(sampleHref)
	if err != nil {
		return nil, err
	}

	sample := s.session.NewTab()
	defer sample.Close()

	if err := sample.Navigate(ctx, sampleLink); err != nil {
		return nil, err
	}
	text, ok := probeText(sample, sampleTextSelector)
	if !ok {
		return nil, fmt.Errorf("sample %s: standard text not found", sampleLink)
	}

	return &domain.Document{
		Title:     title,
		Abstract:  abstract,
		Text:      text,
		Link:      sampleLink,
		Other:     other,
		Published: published,
	}, nil
}

func parsePublicationDate(value string) (time.Time, error) {
	value = collapse(value)
	for _, layout := range publicationDateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return domain.Naive(parsed.UTC()), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized publication date %q", value)
}

func (s *ISOCatalogScanner) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

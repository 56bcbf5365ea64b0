package parser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"StandardsScanner/internal/domain"
)

const (
	detailPageSuffix = ".html"

	descriptionSelector  = "div[itemprop='description']"
	statusSelector       = "#publicationStatus span"
	stepSelector         = ".step"
	currentStageSelector = ".stage-current"
)

// Page is the browser surface the enricher drives. Implementations hold one
// current page; only one call may be in flight at a time.
type Page interface {
	Navigate(ctx context.Context, link string) error
	Find(selector string) (*goquery.Selection, error)
}

// DetailEnricher fills abstract, status and stage from a standard's detail page.
type DetailEnricher struct {
	page   Page
	logger *slog.Logger
}

// NewDetailEnricher wires the shared page handle.
func NewDetailEnricher(page Page, log *slog.Logger) *DetailEnricher {
	return &DetailEnricher{page: page, logger: log}
}

// Enrich visits doc.Link when it points at a detail page and adds whatever
// fields it can find. Missing elements are not errors; only a failed
// navigation is.
func (e *DetailEnricher) Enrich(ctx context.Context, doc *domain.Document) error {
	if !strings.HasSuffix(doc.Link, detailPageSuffix) {
		return nil
	}

	if err := e.page.Navigate(ctx, doc.Link); err != nil {
		return fmt.Errorf("open detail page: %w", err)
	}

	if abstract, ok := probeText(e.page, descriptionSelector); ok {
		doc.Abstract = abstract
	}

	// Stage is only looked up once status was found; without status the
	// general group stays absent.
	status, ok := probeText(e.page, statusSelector)
	if !ok {
		e.debug("status not found", "link", doc.Link)
		return nil
	}

	general := map[string]any{"status": collapse(status)}
	if doc.Other == nil {
		doc.Other = map[string]any{}
	}
	doc.Other["general"] = general

	if stage, ok := probeStage(e.page); ok {
		general["stage"] = stage
	}

	return nil
}

// probeText returns the text of the first element matching selector.
func probeText(page Page, selector string) (string, bool) {
	sel, err := page.Find(selector)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(sel.First().Text()), true
}

// probeStage scans every step for the current-stage marker; the last match wins.
func probeStage(page Page) (string, bool) {
	steps, err := page.Find(stepSelector)
	if err != nil {
		return "", false
	}

	var (
		stage string
		found bool
	)
	steps.Each(func(_ int, step *goquery.Selection) {
		marker := step.Find(currentStageSelector)
		if marker.Length() == 0 {
			return
		}
		stage = collapse(marker.First().Text())
		found = true
	})
	return stage, found
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (e *DetailEnricher) debug(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}

package parser

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"StandardsScanner/internal/domain"
	"StandardsScanner/internal/ports"
	"StandardsScanner/internal/scanner"
)

// FeedReader yields the entries of one RSS feed as documents.
type FeedReader interface {
	Read(ctx context.Context, feedURL string) (iter.Seq2[*domain.Document, error], error)
}

// Enricher adds detail-page fields to a document in place.
type Enricher interface {
	Enrich(ctx context.Context, doc *domain.Document) error
}

// ISOFeedScanner walks the ISO ICS RSS feeds and enriches each entry from its detail page.
type ISOFeedScanner struct {
	reader   FeedReader
	enricher Enricher
	logger   *slog.Logger
}

var _ scanner.Scanner = (*ISOFeedScanner)(nil)

// NewISOFeedScanner wires the feed reader with the detail enricher.
func NewISOFeedScanner(reader FeedReader, enricher Enricher, log *slog.Logger) *ISOFeedScanner {
	return &ISOFeedScanner{reader: reader, enricher: enricher, logger: log}
}

// Name identifies the strategy inside the registry.
func (s *ISOFeedScanner) Name() string {
	return "iso-rss"
}

// Scan processes each feed in order. Reaching the from-date restriction ends
// the current feed only; any other acceptor error ends the scan.
func (s *ISOFeedScanner) Scan(ctx context.Context, req scanner.Request, acceptor ports.Acceptor) error {
	if len(req.Categories) == 0 {
		return fmt.Errorf("no feeds provided for site %s", req.SiteName)
	}

	limit := scanner.PerFeedCap(req.MaximumMaterials, len(req.Categories))
	s.debug("scan feeds", "site", req.SiteName, "feeds", len(req.Categories), "per_feed_cap", limit)

	for _, feed := range req.Categories {
		if err := s.scanFeed(ctx, feed, limit, acceptor); err != nil {
			return fmt.Errorf("feed %s: %w", feed.Name, err)
		}
	}

	return nil
}

func (s *ISOFeedScanner) scanFeed(ctx context.Context, feed scanner.Category, limit int, acceptor ports.Acceptor) error {
	entries, err := s.reader.Read(ctx, feed.URL)
	if err != nil {
		return err
	}

	submitted := 0
	for doc, err := range scanner.Take(entries, limit) {
		if err != nil {
			return err
		}

		if err := s.enricher.Enrich(ctx, doc); err != nil {
			return fmt.Errorf("enrich %s: %w", doc.Link, err)
		}

		if err := acceptor.Accept(ctx, doc); err != nil {
			if domain.IsRestriction(err, domain.RestrictionFromDate) {
				s.debug("feed reached from date", "feed", feed.Name, "link", doc.Link, "submitted", submitted)
				return nil
			}
			return err
		}
		submitted++
	}

	s.debug("feed done", "feed", feed.Name, "submitted", submitted)
	return nil
}

func (s *ISOFeedScanner) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

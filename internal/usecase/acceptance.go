package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"StandardsScanner/internal/domain"
	"StandardsScanner/internal/ports"
)

// Gate is the acceptance boundary for one site run: it applies the
// restrictions, drops duplicates and persists what is left.
type Gate struct {
	source       string
	restrictions domain.Restrictions
	repository   ports.DocumentRepository
	now          func() time.Time
	logger       *slog.Logger

	seen     map[string]struct{}
	accepted []domain.Document
	skipped  int
}

var _ ports.Acceptor = (*Gate)(nil)

// NewGate builds a gate; repository may be nil to keep documents in memory only.
func NewGate(source string, restrictions domain.Restrictions, repo ports.DocumentRepository, now func() time.Time, log *slog.Logger) *Gate {
	if now == nil {
		now = time.Now
	}
	return &Gate{
		source:       source,
		restrictions: restrictions,
		repository:   repo,
		now:          now,
		logger:       log,
		seen:         map[string]struct{}{},
	}
}

// Accept validates and stores doc. Skipped documents return nil; reached
// restrictions return a *domain.RestrictionError.
func (g *Gate) Accept(ctx context.Context, doc *domain.Document) error {
	if doc == nil {
		return fmt.Errorf("nil document")
	}
	if doc.Link == "" || doc.Title == "" {
		return fmt.Errorf("document is missing link or title: %+v", doc)
	}

	doc.Published = domain.Naive(doc.Published)
	r := g.restrictions

	if r.FromDate != nil && doc.Published.Before(domain.Naive(*r.FromDate)) {
		return &domain.RestrictionError{Kind: domain.RestrictionFromDate, Link: doc.Link}
	}
	if r.ToDate != nil && doc.Published.After(domain.Naive(*r.ToDate)) {
		g.skip("newer than to date", doc)
		return nil
	}
	if r.ToLastMaterial != "" && doc.Link == r.ToLastMaterial {
		return &domain.RestrictionError{Kind: domain.RestrictionToLastMaterial, Link: doc.Link}
	}

	if _, ok := g.seen[doc.Link]; ok {
		g.skip("duplicate in run", doc)
		return nil
	}
	if g.repository != nil {
		exists, err := g.repository.Exists(ctx, doc.Link)
		if err != nil {
			return fmt.Errorf("check %s: %w", doc.Link, err)
		}
		if exists {
			g.seen[doc.Link] = struct{}{}
			g.skip("already stored", doc)
			return nil
		}
	}

	if r.MaximumMaterials > 0 && len(g.accepted) >= r.MaximumMaterials {
		return &domain.RestrictionError{Kind: domain.RestrictionMaximumMaterials, Link: doc.Link}
	}

	doc.Source = g.source
	doc.Loaded = g.now().UTC()

	if g.repository != nil {
		err := g.repository.Save(ctx, doc)
		switch {
		case errors.Is(err, domain.ErrAlreadyStored):
			g.seen[doc.Link] = struct{}{}
			g.skip("stored concurrently", doc)
			return nil
		case err != nil:
			return fmt.Errorf("save %s: %w", doc.Link, err)
		}
	}

	g.seen[doc.Link] = struct{}{}
	g.accepted = append(g.accepted, *doc)
	g.debug("document accepted", "link", doc.Link, "count", len(g.accepted))
	return nil
}

// Accepted returns the documents accepted so far, in submission order.
func (g *Gate) Accepted() []domain.Document {
	return g.accepted
}

// Skipped returns how many documents were dropped without a restriction.
func (g *Gate) Skipped() int {
	return g.skipped
}

func (g *Gate) skip(reason string, doc *domain.Document) {
	g.skipped++
	g.debug("document skipped", "reason", reason, "link", doc.Link)
}

func (g *Gate) debug(msg string, args ...any) {
	if g.logger != nil {
		g.logger.Debug(msg, append(args, "source", g.source)...)
	}
}

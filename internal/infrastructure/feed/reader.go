package feed

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"StandardsScanner/internal/domain"
)

// ErrMissingPublished is yielded for entries whose publish date is absent or unparseable.
var ErrMissingPublished = errors.New("entry has no parsable published date")

// publishedLayouts are tried against the raw date so the feed's own wall
// clock survives; gofeed's parsed value is already shifted to UTC.
var publishedLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC822Z,
	time.RFC822,
}

// Reader turns RSS feeds into document sequences.
type Reader struct {
	parser *gofeed.Parser
	logger *slog.Logger
}

// NewReader wires a gofeed parser onto the given HTTP client.
func NewReader(client *http.Client, logger *slog.Logger) *Reader {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	fp := gofeed.NewParser()
	fp.Client = client
	return &Reader{parser: fp, logger: logger}
}

// Read fetches feedURL and returns its entries as a single-pass sequence of
// documents in feed order. Fetch and parse failures are returned directly;
// a bad entry is yielded as an error and ends the sequence.
func (r *Reader) Read(ctx context.Context, feedURL string) (iter.Seq2[*domain.Document, error], error) {
	parsed, err := r.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}
	r.debug("feed fetched", "url", feedURL, "title", parsed.Title, "entries", len(parsed.Items))

	items := parsed.Items
	consumed := false
	return func(yield func(*domain.Document, error) bool) {
		if consumed {
			return
		}
		consumed = true

		for _, item := range items {
			doc, err := toDocument(item)
			if err != nil {
				yield(nil, fmt.Errorf("feed %s: %w", feedURL, err))
				return
			}
			if !yield(doc, nil) {
				return
			}
		}
	}, nil
}

func toDocument(item *gofeed.Item) (*domain.Document, error) {
	published, ok := publishedAt(item)
	if !ok {
		return nil, fmt.Errorf("entry %q (%q): %w", item.Link, item.Published, ErrMissingPublished)
	}

	var summary any
	if item.Description != "" {
		summary = item.Description
	}

	return &domain.Document{
		Title:     item.Title,
		Link:      item.Link,
		Published: domain.Naive(published),
		Other:     map[string]any{"summary": summary},
	}, nil
}

func publishedAt(item *gofeed.Item) (time.Time, bool) {
	raw := strings.TrimSpace(item.Published)
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	if item.PublishedParsed != nil {
		return *item.PublishedParsed, true
	}
	return time.Time{}, false
}

func (r *Reader) debug(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}

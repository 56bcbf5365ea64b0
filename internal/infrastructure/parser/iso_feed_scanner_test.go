package parser

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"StandardsScanner/internal/domain"
	"StandardsScanner/internal/infrastructure/browser"
	"StandardsScanner/internal/infrastructure/feed"
	"StandardsScanner/internal/scanner"
)

type stubReader struct {
	entries map[string]int
	pulled  map[string]int
	err     error
}

func (r *stubReader) Read(_ context.Context, feedURL string) (iter.Seq2[*domain.Document, error], error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.pulled == nil {
		r.pulled = map[string]int{}
	}
	n := r.entries[feedURL]
	return func(yield func(*domain.Document, error) bool) {
		for i := range n {
			r.pulled[feedURL]++
			doc := &domain.Document{
				Title:     fmt.Sprintf("%s #%d", feedURL, i),
				Link:      fmt.Sprintf("%s/%d", feedURL, i),
				Published: time.Date(2024, time.January, 10-i, 0, 0, 0, 0, time.UTC),
				Other:     map[string]any{"summary": nil, "feed": feedURL},
			}
			if !yield(doc, nil) {
				return
			}
		}
	}, nil
}

type countingEnricher struct{ calls int }

func (e *countingEnricher) Enrich(context.Context, *domain.Document) error {
	e.calls++
	return nil
}

// recordingAcceptor rejects the n-th submission (1-based) of the feeds listed in rejectAt.
type recordingAcceptor struct {
	submitted []string
	perFeed   map[string]int
	rejectAt  map[string]int
	kind      domain.RestrictionKind
}

func (a *recordingAcceptor) Accept(_ context.Context, doc *domain.Document) error {
	if a.perFeed == nil {
		a.perFeed = map[string]int{}
	}
	feedURL, _ := doc.Other["feed"].(string)
	a.perFeed[feedURL]++
	if at, ok := a.rejectAt[feedURL]; ok && a.perFeed[feedURL] == at {
		return &domain.RestrictionError{Kind: a.kind, Link: doc.Link}
	}
	a.submitted = append(a.submitted, doc.Link)
	return nil
}

func feedRequest(maximum int, urls ...string) scanner.Request {
	req := scanner.Request{SiteName: "iso", MaximumMaterials: maximum}
	for _, u := range urls {
		req.Categories = append(req.Categories, scanner.Category{Name: u, URL: u})
	}
	return req
}

func TestFeedScannerFromDateStopsOnlyCurrentFeed(t *testing.T) {
	t.Parallel()

	reader := &stubReader{entries: map[string]int{"a": 10, "b": 5}}
	acceptor := &recordingAcceptor{rejectAt: map[string]int{"a": 3}, kind: domain.RestrictionFromDate}
	sc := NewISOFeedScanner(reader, &countingEnricher{}, nil)

	if err := sc.Scan(context.Background(), feedRequest(0, "a", "b"), acceptor); err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}

	if acceptor.perFeed["a"] != 3 {
		t.Fatalf("expected 3 submissions to feed a, got %d", acceptor.perFeed["a"])
	}
	if acceptor.perFeed["b"] != 5 {
		t.Fatalf("expected feed b to be fully processed, got %d", acceptor.perFeed["b"])
	}
	if len(acceptor.submitted) != 7 {
		t.Fatalf("expected 2 accepted from a and 5 from b, got %v", acceptor.submitted)
	}
	if reader.pulled["a"] != 3 {
		t.Fatalf("remaining entries of feed a should be abandoned, pulled %d", reader.pulled["a"])
	}
}

func TestFeedScannerAppliesPerFeedCap(t *testing.T) {
	t.Parallel()

	reader := &stubReader{entries: map[string]int{"a": 10, "b": 10, "c": 10, "d": 3}}
	acceptor := &recordingAcceptor{}
	enricher := &countingEnricher{}
	sc := NewISOFeedScanner(reader, enricher, nil)

	if err := sc.Scan(context.Background(), feedRequest(20, "a", "b", "c", "d"), acceptor); err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}

	for _, u := range []string{"a", "b", "c"} {
		if acceptor.perFeed[u] != 6 {
			t.Fatalf("feed %s: expected 6 submissions, got %d", u, acceptor.perFeed[u])
		}
		if reader.pulled[u] != 6 {
			t.Fatalf("feed %s: expected the reader to be pulled 6 times, got %d", u, reader.pulled[u])
		}
	}
	if acceptor.perFeed["d"] != 3 {
		t.Fatalf("feed d: expected 3 submissions, got %d", acceptor.perFeed["d"])
	}
	if enricher.calls != 21 {
		t.Fatalf("expected 21 enrichments, got %d", enricher.calls)
	}
}

func TestFeedScannerPropagatesOtherRestrictions(t *testing.T) {
	t.Parallel()

	reader := &stubReader{entries: map[string]int{"a": 10, "b": 5}}
	acceptor := &recordingAcceptor{rejectAt: map[string]int{"a": 2}, kind: domain.RestrictionMaximumMaterials}
	sc := NewISOFeedScanner(reader, &countingEnricher{}, nil)

	err := sc.Scan(context.Background(), feedRequest(0, "a", "b"), acceptor)
	if !domain.IsRestriction(err, domain.RestrictionMaximumMaterials) {
		t.Fatalf("expected maximum restriction to propagate, got %v", err)
	}
	if acceptor.perFeed["b"] != 0 {
		t.Fatalf("feed b must not be processed after propagation, got %d", acceptor.perFeed["b"])
	}
}

func TestFeedScannerReaderFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("feed unavailable")
	sc := NewISOFeedScanner(&stubReader{err: boom}, &countingEnricher{}, nil)

	if err := sc.Scan(context.Background(), feedRequest(0, "a"), &recordingAcceptor{}); !errors.Is(err, boom) {
		t.Fatalf("expected reader error, got %v", err)
	}
}

func TestFeedScannerRequiresFeeds(t *testing.T) {
	t.Parallel()

	sc := NewISOFeedScanner(&stubReader{}, &countingEnricher{}, nil)
	if err := sc.Scan(context.Background(), scanner.Request{SiteName: "iso"}, &recordingAcceptor{}); err == nil {
		t.Fatal("expected error without feeds")
	}
}

type collectingAcceptor struct{ docs []*domain.Document }

func (a *collectingAcceptor) Accept(_ context.Context, doc *domain.Document) error {
	a.docs = append(a.docs, doc)
	return nil
}

func TestFeedScannerEndToEnd(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/ics/35.020.rss", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `<?xml version="1.0"?>
<rss version="2.0"><channel><title>ICS</title>
  <item>
    <title>ISO/IEC 27001</title>
    <link>%[1]s/standard/27001.html</link>
    <pubDate>2024-01-01T00:00:00Z</pubDate>
    <description>Information security</description>
  </item>
  <item>
    <title>ISO/IEC 27002</title>
    <link>%[1]s/standard/27002</link>
    <pubDate>2023-12-01T00:00:00Z</pubDate>
  </item>
</channel></rss>`, server.URL)
	})
	mux.HandleFunc("/standard/27001.html", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>
		  <div itemprop="description"><p>Requirements for an ISMS.</p></div>
		  <div id="publicationStatus"><span>Published</span></div>
		  <ol><li class="step"><div class="stage-current">60.60</div></li></ol>
		</body></html>`))
	})
	mux.HandleFunc("/standard/27002", func(w http.ResponseWriter, r *http.Request) {
		t.Error("non-detail links must not be visited")
	})

	reader := feed.NewReader(server.Client(), nil)
	session := browser.NewSession(server.Client(), browser.Options{}, nil)
	sc := NewISOFeedScanner(reader, NewDetailEnricher(session, nil), nil)

	acceptor := &collectingAcceptor{}
	if err := sc.Scan(context.Background(), feedRequest(0, server.URL+"/ics/35.020.rss"), acceptor); err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}

	if len(acceptor.docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(acceptor.docs))
	}

	first := acceptor.docs[0]
	if first.Abstract != "Requirements for an ISMS." {
		t.Fatalf("unexpected abstract: %q", first.Abstract)
	}
	general, ok := first.Other["general"].(map[string]any)
	if !ok || general["status"] != "Published" || general["stage"] != "60.60" {
		t.Fatalf("unexpected general group: %v", first.Other["general"])
	}
	if first.Other["summary"] != "Information security" {
		t.Fatalf("unexpected summary: %v", first.Other["summary"])
	}

	second := acceptor.docs[1]
	if second.Abstract != "" || second.Other["general"] != nil {
		t.Fatalf("non-detail document was enriched: %+v", second)
	}
}

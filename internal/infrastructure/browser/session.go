package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var (
	// ErrNoSuchElement is returned by Find when the selector matches nothing.
	ErrNoSuchElement = errors.New("no such element")
	// ErrNoPage is returned by Find before the first successful Navigate.
	ErrNoPage = errors.New("no page loaded")
)

const defaultUserAgent = "StandardsScanner/1.0"

// Options tune how pages are loaded.
type Options struct {
	UserAgent string
	// Settle is a fixed wait after a page is loaded and before it is read.
	Settle time.Duration
}

// Session is a single navigation handle: it holds the current page and
// answers selector lookups against it. A Session is not safe for concurrent
// use; callers run one navigation or lookup at a time.
type Session struct {
	client  *http.Client
	opts    Options
	logger  *slog.Logger
	current *url.URL
	page    *goquery.Document
}

// NewSession wires an HTTP client; a nil client gets a 20s timeout.
func NewSession(client *http.Client, opts Options, logger *slog.Logger) *Session {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	return &Session{client: client, opts: opts, logger: logger}
}

// NewTab opens an independent handle sharing the client and options.
func (s *Session) NewTab() *Session {
	return &Session{client: s.client, opts: s.opts, logger: s.logger}
}

// Close drops the current page.
func (s *Session) Close() {
	s.current = nil
	s.page = nil
}

// Navigate loads link as the current page and waits the settle delay.
// Error statuses still load whatever page the server returned; only
// transport failures and cancellation are reported.
func (s *Session) Navigate(ctx context.Context, link string) error {
	target, err := url.Parse(link)
	if err != nil {
		return fmt.Errorf("invalid url %s: %w", link, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", s.opts.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", link, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.debug("page returned non-OK status", "url", link, "status", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return fmt.Errorf("parse page %s: %w", link, err)
	}

	s.current = resp.Request.URL
	s.page = doc
	s.debug("navigated", "url", s.current.String())

	return s.settle(ctx)
}

func (s *Session) settle(ctx context.Context) error {
	if s.opts.Settle <= 0 {
		return nil
	}
	timer := time.NewTimer(s.opts.Settle)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CurrentURL returns the address of the loaded page, or "" before navigation.
func (s *Session) CurrentURL() string {
	if s.current == nil {
		return ""
	}
	return s.current.String()
}

// Find returns every element matching selector on the current page.
func (s *Session) Find(selector string) (*goquery.Selection, error) {
	if s.page == nil {
		return nil, ErrNoPage
	}
	sel := s.page.Find(selector)
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%s: %w", selector, ErrNoSuchElement)
	}
	return sel, nil
}

// Resolve turns href into an absolute URL relative to the current page.
func (s *Session) Resolve(href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("invalid href %s: %w", href, err)
	}
	if s.current == nil {
		return ref.String(), nil
	}
	return s.current.ResolveReference(ref).String(), nil
}

func (s *Session) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

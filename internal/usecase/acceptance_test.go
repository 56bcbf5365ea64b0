package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"StandardsScanner/internal/domain"
)

type memoryRepository struct {
	stored    map[string]domain.Document
	existsErr error
	saveErr   error
	saves     int
}

func (m *memoryRepository) Exists(_ context.Context, link string) (bool, error) {
	if m.existsErr != nil {
		return false, m.existsErr
	}
	_, ok := m.stored[link]
	return ok, nil
}

func (m *memoryRepository) Save(_ context.Context, doc *domain.Document) error {
	if m.stored == nil {
		m.stored = map[string]domain.Document{}
	}
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	doc.ID = int64(m.saves)
	m.stored[doc.Link] = *doc
	return nil
}

var fixedNow = func() time.Time { return time.Date(2024, time.March, 1, 6, 0, 0, 0, time.UTC) }

func doc(link string, published time.Time) *domain.Document {
	return &domain.Document{Title: "Standard " + link, Link: link, Published: published}
}

func day(d int) time.Time {
	return time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC)
}

func TestGateAcceptsAndPersists(t *testing.T) {
	t.Parallel()

	repo := &memoryRepository{}
	gate := NewGate("iso", domain.Restrictions{}, repo, fixedNow, nil)

	d := doc("https://site/a.html", day(5))
	if err := gate.Accept(context.Background(), d); err != nil {
		t.Fatalf("Accept returned error: %v", err)
	}

	if d.Source != "iso" || !d.Loaded.Equal(fixedNow()) || d.ID != 1 {
		t.Fatalf("gate did not stamp the document: %+v", d)
	}
	if len(gate.Accepted()) != 1 || repo.saves != 1 {
		t.Fatalf("expected one accepted and saved document, got %d/%d", len(gate.Accepted()), repo.saves)
	}
}

func TestGateFromDate(t *testing.T) {
	t.Parallel()

	from := day(3)
	gate := NewGate("iso", domain.Restrictions{FromDate: &from}, nil, fixedNow, nil)

	if err := gate.Accept(context.Background(), doc("https://site/new.html", day(3))); err != nil {
		t.Fatalf("document on the from date must pass: %v", err)
	}

	err := gate.Accept(context.Background(), doc("https://site/old.html", day(2)))
	if !domain.IsRestriction(err, domain.RestrictionFromDate) {
		t.Fatalf("expected from date restriction, got %v", err)
	}
}

func TestGateNormalizesZone(t *testing.T) {
	t.Parallel()

	from := day(3)
	gate := NewGate("iso", domain.Restrictions{FromDate: &from}, nil, fixedNow, nil)

	zone := time.FixedZone("UTC+3", 3*60*60)
	d := doc("https://site/tz.html", time.Date(2024, time.January, 3, 1, 0, 0, 0, zone))
	if err := gate.Accept(context.Background(), d); err != nil {
		t.Fatalf("wall clock on the from date must pass: %v", err)
	}
	if d.Published.Location() != time.UTC || d.Published.Hour() != 1 {
		t.Fatalf("expected naive wall clock, got %v", d.Published)
	}
}

func TestGateToDateSkips(t *testing.T) {
	t.Parallel()

	to := day(10)
	gate := NewGate("iso", domain.Restrictions{ToDate: &to}, nil, fixedNow, nil)

	if err := gate.Accept(context.Background(), doc("https://site/future.html", day(11))); err != nil {
		t.Fatalf("newer documents are skipped, not rejected: %v", err)
	}
	if len(gate.Accepted()) != 0 || gate.Skipped() != 1 {
		t.Fatalf("expected a skip, got accepted=%d skipped=%d", len(gate.Accepted()), gate.Skipped())
	}
}

func TestGateToLastMaterial(t *testing.T) {
	t.Parallel()

	gate := NewGate("iso", domain.Restrictions{ToLastMaterial: "https://site/last.html"}, nil, fixedNow, nil)

	err := gate.Accept(context.Background(), doc("https://site/last.html", day(1)))
	if !domain.IsRestriction(err, domain.RestrictionToLastMaterial) {
		t.Fatalf("expected last material restriction, got %v", err)
	}
}

func TestGateDeduplicates(t *testing.T) {
	t.Parallel()

	repo := &memoryRepository{stored: map[string]domain.Document{"https://site/known.html": {}}}
	gate := NewGate("iso", domain.Restrictions{}, repo, fixedNow, nil)
	ctx := context.Background()

	for _, link := range []string{"https://site/known.html", "https://site/a.html", "https://site/a.html"} {
		if err := gate.Accept(ctx, doc(link, day(1))); err != nil {
			t.Fatalf("Accept(%s) returned error: %v", link, err)
		}
	}

	if len(gate.Accepted()) != 1 || gate.Skipped() != 2 {
		t.Fatalf("expected 1 accepted and 2 skipped, got %d/%d", len(gate.Accepted()), gate.Skipped())
	}
}

func TestGateMaximumMaterials(t *testing.T) {
	t.Parallel()

	gate := NewGate("iso", domain.Restrictions{MaximumMaterials: 2}, nil, fixedNow, nil)
	ctx := context.Background()

	_ = gate.Accept(ctx, doc("https://site/1.html", day(1)))
	_ = gate.Accept(ctx, doc("https://site/2.html", day(1)))
	err := gate.Accept(ctx, doc("https://site/3.html", day(1)))

	if !domain.IsRestriction(err, domain.RestrictionMaximumMaterials) {
		t.Fatalf("expected maximum restriction, got %v", err)
	}
	if len(gate.Accepted()) != 2 {
		t.Fatalf("expected 2 accepted, got %d", len(gate.Accepted()))
	}
}

func TestGateRepositoryFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("db down")
	gate := NewGate("iso", domain.Restrictions{}, &memoryRepository{existsErr: boom}, fixedNow, nil)

	err := gate.Accept(context.Background(), doc("https://site/a.html", day(1)))
	if !errors.Is(err, boom) || domain.IsRestriction(err, domain.RestrictionFromDate) {
		t.Fatalf("expected repository error, got %v", err)
	}
}

func TestGateRejectsIncompleteDocuments(t *testing.T) {
	t.Parallel()

	gate := NewGate("iso", domain.Restrictions{}, nil, fixedNow, nil)
	if err := gate.Accept(context.Background(), &domain.Document{Title: "no link"}); err == nil {
		t.Fatal("expected error for document without link")
	}
}

func TestGateSkipsDocumentStoredOnSave(t *testing.T) {
	t.Parallel()

	repo := &memoryRepository{saveErr: fmt.Errorf("insert document: %w", domain.ErrAlreadyStored)}
	gate := NewGate("iso", domain.Restrictions{MaximumMaterials: 1}, repo, fixedNow, nil)

	if err := gate.Accept(context.Background(), doc("https://site/raced.html", day(5))); err != nil {
		t.Fatalf("already stored document should be skipped, got %v", err)
	}
	if len(gate.Accepted()) != 0 || gate.Skipped() != 1 {
		t.Fatalf("expected skip without acceptance, accepted=%d skipped=%d", len(gate.Accepted()), gate.Skipped())
	}

	if err := gate.Accept(context.Background(), doc("https://site/raced.html", day(5))); err != nil {
		t.Fatalf("repeat submission should be skipped, got %v", err)
	}
	if repo.saves != 1 || gate.Skipped() != 2 {
		t.Fatalf("repeat submission must not reach the repository, saves=%d skipped=%d", repo.saves, gate.Skipped())
	}

	repo.saveErr = errors.New("connection reset")
	if err := gate.Accept(context.Background(), doc("https://site/b.html", day(6))); err == nil || errors.Is(err, domain.ErrAlreadyStored) {
		t.Fatalf("expected save failure to propagate, got %v", err)
	}
}

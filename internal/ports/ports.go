package ports

import (
	"context"
	"time"

	"StandardsScanner/internal/domain"
)

// Acceptor is the boundary every scanned document is submitted to.
// A *domain.RestrictionError signals that a restriction was reached.
type Acceptor interface {
	Accept(ctx context.Context, doc *domain.Document) error
}

// AcceptorFactory builds a fresh acceptor for a single site run.
type AcceptorFactory func(site string) Acceptor

// DocumentSource runs all configured scanners against per-site acceptors.
type DocumentSource interface {
	Collect(ctx context.Context, newAcceptor AcceptorFactory) error
}

// DocumentRepository persists accepted documents keyed by link.
type DocumentRepository interface {
	Exists(ctx context.Context, link string) (bool, error)
	Save(ctx context.Context, doc *domain.Document) error
}

// Notifier streams digests of new documents to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}

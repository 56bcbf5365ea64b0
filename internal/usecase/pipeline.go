package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"StandardsScanner/internal/domain"
	"StandardsScanner/internal/ports"
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source       ports.DocumentSource
	Repository   ports.DocumentRepository
	Notifier     ports.Notifier
	Restrictions domain.Restrictions
	Logger       *slog.Logger
	Now          func() time.Time
}

// Pipeline implements one scanning run across all configured sites.
type Pipeline struct {
	source       ports.DocumentSource
	repository   ports.DocumentRepository
	notifier     ports.Notifier
	restrictions domain.Restrictions
	logger       *slog.Logger
	now          func() time.Time
}

// Report summarizes a finished run.
type Report struct {
	Trigger  time.Time
	Accepted []domain.Document
	Skipped  int
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		source:       deps.Source,
		repository:   deps.Repository,
		notifier:     deps.Notifier,
		restrictions: deps.Restrictions,
		logger:       deps.Logger,
		now:          now,
	}
}

// Run collects documents from every site and publishes a digest of the new ones.
func (p *Pipeline) Run(ctx context.Context, trigger time.Time) (Report, error) {
	report := Report{Trigger: trigger}
	if p.source == nil {
		return report, nil
	}

	var gates []*Gate
	newAcceptor := func(site string) ports.Acceptor {
		gate := NewGate(site, p.restrictions, p.repository, p.now, p.logger)
		gates = append(gates, gate)
		return gate
	}

	collectErr := p.source.Collect(ctx, newAcceptor)

	for _, gate := range gates {
		report.Accepted = append(report.Accepted, gate.Accepted()...)
		report.Skipped += gate.Skipped()
	}
	p.info("run finished", "trigger", trigger.Format(time.RFC3339), "accepted", len(report.Accepted), "skipped", report.Skipped)

	if collectErr != nil {
		return report, fmt.Errorf("collect documents: %w", collectErr)
	}

	if len(report.Accepted) == 0 || p.notifier == nil {
		return report, nil
	}

	if err := p.notifier.PublishDigest(ctx, buildDigestMessage(report.Accepted)); err != nil {
		return report, fmt.Errorf("publish digest: %w", err)
	}

	return report, nil
}

func buildDigestMessage(docs []domain.Document) string {
	var b strings.Builder
	for _, doc := range docs {
		fmt.Fprintf(&b, "- %s\n", doc.Title)
		if status, stage := generalFields(doc); status != "" {
			fmt.Fprintf(&b, "Status: %s", status)
			if stage != "" {
				fmt.Fprintf(&b, " (stage %s)", stage)
			}
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Published: %s\n%s\n\n", doc.Published.Format("2006-01-02"), doc.Link)
	}
	return b.String()
}

func generalFields(doc domain.Document) (status, stage string) {
	general, ok := doc.Other["general"].(map[string]any)
	if !ok {
		return "", ""
	}
	status, _ = general["status"].(string)
	stage, _ = general["stage"].(string)
	return status, stage
}

func (p *Pipeline) info(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

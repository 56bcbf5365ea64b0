package parser

import (
	"context"
	"fmt"
	"log/slog"

	"StandardsScanner/internal/config"
	"StandardsScanner/internal/domain"
	"StandardsScanner/internal/ports"
	"StandardsScanner/internal/scanner"
)

// StrategySource implements DocumentSource via registered scanner strategies.
type StrategySource struct {
	registry         *scanner.Registry
	sites            []config.SiteConfig
	maximumMaterials int
	logger           *slog.Logger
}

var _ ports.DocumentSource = (*StrategySource)(nil)

// NewStrategySource wires scanner registry with config-defined sites.
func NewStrategySource(reg *scanner.Registry, sites []config.SiteConfig, maximumMaterials int, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry:         reg,
		sites:            sites,
		maximumMaterials: maximumMaterials,
		logger:           log,
	}
}

// Collect runs every configured site against its own acceptor. A site that
// hits its maximum or its last known material is finished, not failed.
func (s *StrategySource) Collect(ctx context.Context, newAcceptor ports.AcceptorFactory) error {
	if s.registry == nil {
		return fmt.Errorf("scanner registry is not configured")
	}
	if newAcceptor == nil {
		return fmt.Errorf("acceptor factory is not configured")
	}

	s.debug("collect", "sites", len(s.sites))

	for _, site := range s.sites {
		s.debug("process site", "site", site.Name, "scanner", site.Scanner, "categories", len(site.Categories))
		strategy, err := s.registry.Resolve(site.Scanner)
		if err != nil {
			return fmt.Errorf("site %s: %w", site.Name, err)
		}

		req := scanner.Request{
			SiteName:         site.Name,
			Options:          site.Options,
			Categories:       toScannerCategories(site.Categories),
			MaximumMaterials: s.maximumMaterials,
		}

		err = strategy.Scan(ctx, req, newAcceptor(site.Name))
		switch {
		case err == nil:
		case domain.IsRestriction(err, domain.RestrictionMaximumMaterials, domain.RestrictionToLastMaterial):
			s.debug("site stopped by restriction", "site", site.Name, "reason", err)
		default:
			return fmt.Errorf("scan site %s: %w", site.Name, err)
		}
	}

	return nil
}

func toScannerCategories(cfg []config.CategoryConfig) []scanner.Category {
	categories := make([]scanner.Category, 0, len(cfg))
	for _, cat := range cfg {
		categories = append(categories, scanner.Category{
			Name: cat.Name,
			URL:  cat.URL,
		})
	}
	return categories
}

func (s *StrategySource) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

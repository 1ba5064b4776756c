package parser

import (
	"log/slog"
	"strings"

	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/config"
	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/domain"
	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/extractor"
	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/ports"
)

// StrategySource implements FeedSource by resolving configured feeds against
// the extractor registry once at startup.
type StrategySource struct {
	feeds  []domain.FeedDefinition
	logger *slog.Logger
}

var _ ports.FeedSource = (*StrategySource)(nil)

// NewStrategySource builds feed definitions from config. A feed whose
// extractor cannot be resolved is skipped without affecting the others.
func NewStrategySource(reg *extractor.Registry, feeds []config.FeedConfig, log *slog.Logger) *StrategySource {
	s := &StrategySource{logger: log}

	seen := map[string]struct{}{}
	for _, fc := range feeds {
		url := strings.TrimSpace(fc.URL)
		if url == "" {
			s.warn("feed without url skipped", "feed", fc.Name)
			continue
		}
		if _, dup := seen[url]; dup {
			s.warn("duplicate feed url skipped", "feed", fc.Name, "url", url)
			continue
		}

		name := fc.Extractor
		if name == "" {
			name = ReadabilityExtractorName
		}
		ext, err := reg.Resolve(name, fc.Options)
		if err != nil {
			s.warn("feed extractor unresolved", "feed", fc.Name, "extractor", name, "error", err)
			continue
		}

		seen[url] = struct{}{}
		s.feeds = append(s.feeds, domain.FeedDefinition{
			ID:         fc.ID,
			Name:       fc.Name,
			URL:        url,
			Categories: trimAll(fc.Categories),
			Extractor:  ext,
		})
		s.debug("feed registered", "feed", fc.Name, "extractor", ext.Name(), "categories", len(fc.Categories))
	}

	return s
}

// Feeds returns the resolved feed definitions.
func (s *StrategySource) Feeds() []domain.FeedDefinition {
	out := make([]domain.FeedDefinition, len(s.feeds))
	copy(out, s.feeds)
	return out
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *StrategySource) warn(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

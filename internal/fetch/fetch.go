// Package fetch defines the upstream-metadata collaborator boundary: the
// engine never performs provider I/O itself, it consumes ready batches
// produced here and merges them synchronously.
package fetch

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tubelist/internal/core"
)

// Fetcher retrieves one page of a source's items from the upstream
// provider. more reports whether another page follows.
type Fetcher interface {
	Page(ctx context.Context, kind core.SourceKind, sourceID string, page int) (items []core.UpstreamItem, more bool, err error)
}

// Service drives upstream syncs: it pages through a source's items under a
// rate limit and hands the combined batch to the mutation pipeline.
type Service struct {
	fetcher    Fetcher
	dispatcher *core.Dispatcher
	limiter    *rate.Limiter
	maxPages   int
	pageSize   int
	logger     *zap.Logger
}

// NewService wires a sync service. MaxPages caps pagination per source; it
// is collaborator policy, the engine itself never consults it.
func NewService(fetcher Fetcher, dispatcher *core.Dispatcher, cfg core.FetchConfig, logger *zap.Logger) *Service {
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = core.DefaultConfig().Fetch.MaxPages
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = core.DefaultConfig().Fetch.PageSize
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = core.DefaultConfig().Fetch.RequestsPerSecond
	}
	return &Service{
		fetcher:    fetcher,
		dispatcher: dispatcher,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		maxPages:   maxPages,
		pageSize:   pageSize,
		logger:     logger,
	}
}

// PageSize is the page size the collaborator should request upstream.
func (s *Service) PageSize() int {
	return s.pageSize
}

// SyncSource fetches the source's items from upstream and merges them into
// the store. A zero-item result is a fetch failure
// (core.ErrEmptyUpstreamBatch) and nothing is merged. Returns the number
// of items merged.
func (s *Service) SyncSource(ctx context.Context, kind core.SourceKind, sourceID string) (int, error) {
	var items []core.UpstreamItem

	for page := 0; page < s.maxPages; page++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("sync %s %s: %w", kind, sourceID, err)
		}

		pageItems, more, err := s.fetcher.Page(ctx, kind, sourceID, page)
		if err != nil {
			return 0, fmt.Errorf("sync %s %s page %d: %w", kind, sourceID, page, err)
		}
		items = append(items, pageItems...)
		if !more {
			break
		}
		if page == s.maxPages-1 {
			s.logger.Warn("Upstream pagination cap reached",
				zap.String("kind", string(kind)),
				zap.String("sourceID", sourceID),
				zap.Int("maxPages", s.maxPages),
				zap.Int("maxItems", s.maxPages*s.pageSize))
		}
	}

	if err := s.dispatcher.MergeUpstream(ctx, kind, sourceID, items); err != nil {
		return 0, fmt.Errorf("sync %s %s: %w", kind, sourceID, err)
	}

	s.logger.Info("Source synced from upstream",
		zap.String("kind", string(kind)),
		zap.String("sourceID", sourceID),
		zap.Int("items", len(items)))
	return len(items), nil
}

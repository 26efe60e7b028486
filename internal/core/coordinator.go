package core

import (
	"context"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Coordinator is the reactive consistency maintainer. It runs one
// long-lived subscriber loop per trigger category over the event bus and
// issues compensating mutations through the dispatcher:
//
//   - source deleted / item deleted  -> dequeue the orphaned entries
//   - queue entries added            -> recompute labels per touched source
//   - queue entries removed          -> recompute labels per owning source
//   - queue cleared                  -> clear every source's labels
//
// Reactions never surface user-visible errors; a recompute on a missing
// source is a no-op. Each reaction reads the latest committed snapshot.
type Coordinator struct {
	dispatcher *Dispatcher
	bus        *Bus
	logger     *zap.Logger
	cascade    *Subscription
	labels     *Subscription
}

// NewCoordinator wires a coordinator to the dispatcher it compensates
// through and the bus it listens on. Subscriptions are registered here,
// not in Run, so no event published after construction is ever missed.
func NewCoordinator(dispatcher *Dispatcher, bus *Bus, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		dispatcher: dispatcher,
		bus:        bus,
		logger:     logger,
		cascade:    bus.Subscribe(EventSourceDeleted, EventItemDeleted),
		labels:     bus.Subscribe(EventQueueAdded, EventQueueRemoved, EventQueueCleared),
	}
}

// Run starts the subscriber loops and blocks until the context is
// cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info("Starting consistency coordinator")

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.runCascadeLoop(gCtx, c.cascade) })
	g.Go(func() error { return c.runLabelLoop(gCtx, c.labels) })

	err := g.Wait()
	c.logger.Info("Consistency coordinator stopped")
	return err
}

// runCascadeLoop dequeues queue entries whose source item records were
// deleted, per source or per item.
func (c *Coordinator) runCascadeLoop(ctx context.Context, sub *Subscription) error {
	for {
		ev, ok := sub.Next(ctx)
		if !ok {
			return nil
		}
		c.reactCascade(ctx, ev)
		sub.Ack()
	}
}

func (c *Coordinator) reactCascade(ctx context.Context, ev Event) {
	if len(ev.ItemIDs) == 0 {
		return
	}
	if err := c.dispatcher.dequeue(ctx, ev.ItemIDs, ev.Source, ev.SourceID); err != nil {
		c.logger.Warn("Cascade dequeue failed",
			zap.String("source", string(ev.Source)),
			zap.String("sourceID", ev.SourceID),
			zap.Int("items", len(ev.ItemIDs)),
			zap.Error(err))
	}
}

// runLabelLoop keeps allInPlaying/partialInPlaying consistent with the
// queue.
func (c *Coordinator) runLabelLoop(ctx context.Context, sub *Subscription) error {
	for {
		ev, ok := sub.Next(ctx)
		if !ok {
			return nil
		}
		c.reactLabels(ctx, ev)
		sub.Ack()
	}
}

func (c *Coordinator) reactLabels(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventQueueAdded:
		for kind, sourceIDs := range ev.ForeignKeys {
			c.recompute(ctx, kind, sourceIDs)
		}

	case EventQueueRemoved:
		touched := c.ownersOf(ev.ItemIDs)
		// The event's source hint covers owners whose item records are
		// already gone (cascade order: records first, queue second).
		if ev.SourceID != "" && ev.Source != "" {
			touched[ev.Source] = appendUnique(touched[ev.Source], ev.SourceID)
		}
		for kind, sourceIDs := range touched {
			c.recompute(ctx, kind, sourceIDs)
		}

	case EventQueueCleared:
		if err := c.dispatcher.clearLabels(ctx); err != nil {
			c.logger.Warn("Label clear failed", zap.Error(err))
		}
	}
}

// ownersOf finds every source that still lists one of the given item ids,
// in either table.
func (c *Coordinator) ownersOf(itemIDs []string) map[SourceKind][]string {
	snapshot := c.dispatcher.Snapshot()
	touched := make(map[SourceKind][]string)

	for _, kind := range []SourceKind{KindPlaylists, KindVideos} {
		for id, src := range snapshot.SourceTableOf(kind).Entities.Sources {
			for _, itemID := range src.Items {
				if slices.Contains(itemIDs, itemID) {
					touched[kind] = append(touched[kind], id)
					break
				}
			}
		}
	}
	return touched
}

func (c *Coordinator) recompute(ctx context.Context, kind SourceKind, sourceIDs []string) {
	if err := c.dispatcher.recomputeLabels(ctx, kind, sourceIDs); err != nil {
		c.logger.Warn("Label recompute failed",
			zap.String("kind", string(kind)),
			zap.Strings("sourceIDs", sourceIDs),
			zap.Error(err))
	}
}

func appendUnique(ids []string, id string) []string {
	if slices.Contains(ids, id) {
		return ids
	}
	return append(ids, id)
}

package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SnippetIndex is the fast-path duplicate index over queued snippet ids.
// It must stay a superset of the snippet ids currently in the queue; Lossy
// reports when it may have dropped entries and can no longer be trusted
// for negative answers.
type SnippetIndex interface {
	Has(snippetID string) bool
	Add(snippetID string)
	Remove(snippetID string)
	Load(snippetIDs []string)
	Clear()
	Lossy() bool
}

// intent is one queued mutation request: apply runs on the pipeline
// goroutine against a fresh draft, after runs post-commit on the same
// goroutine (index maintenance), reply reports the outcome to the caller.
type intent struct {
	id    string
	name  string
	apply func(draft *State) ([]Event, error)
	after func()
	reply chan error
}

// Dispatcher is the single logical writer over the entity store. All
// mutations funnel through one mailbox processed by one goroutine, so
// every commit is linearized and a published event always describes the
// exact post-state of its mutation.
type Dispatcher struct {
	logger  *zap.Logger
	bus     *Bus
	index   SnippetIndex
	mailbox chan *intent

	mu    sync.RWMutex
	state *State
}

// NewDispatcher creates a dispatcher over the given initial snapshot. A
// rehydrated snapshot is accepted as-is; the snippet index is rebuilt from
// it so the dedup fast path survives restarts.
func NewDispatcher(initial *State, index SnippetIndex, bus *Bus, logger *zap.Logger) *Dispatcher {
	if initial == nil {
		initial = NewState()
	}
	initial.Normalize()

	if index != nil {
		snippetIDs := make([]string, 0, len(initial.Queue.Result))
		for id := range queueSnippetIDs(initial) {
			snippetIDs = append(snippetIDs, id)
		}
		index.Load(snippetIDs)
	}

	return &Dispatcher{
		logger:  logger,
		bus:     bus,
		index:   index,
		mailbox: make(chan *intent, 64),
		state:   initial,
	}
}

// Snapshot returns the latest committed snapshot. The returned state is
// immutable by contract; readers never mutate it.
func (d *Dispatcher) Snapshot() *State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Run processes intents until the context is cancelled. Exactly one Run
// must be active for Dispatch calls to complete.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("Starting mutation pipeline")
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Mutation pipeline stopped")
			return nil
		case in := <-d.mailbox:
			d.process(in)
		}
	}
}

func (d *Dispatcher) process(in *intent) {
	draft := d.Snapshot().Clone()

	events, err := in.apply(draft)
	if err != nil {
		d.logger.Debug("Intent rejected",
			zap.String("intent", in.name),
			zap.String("intentID", in.id),
			zap.Error(err))
		in.reply <- err
		return
	}

	d.mu.Lock()
	d.state = draft
	d.mu.Unlock()

	if in.after != nil {
		in.after()
	}
	for _, ev := range events {
		d.bus.Publish(ev)
	}

	d.logger.Debug("Intent committed",
		zap.String("intent", in.name),
		zap.String("intentID", in.id),
		zap.Int("events", len(events)))
	in.reply <- nil
}

// do dispatches one intent and waits for its commit or rejection. The
// returned error is the mutation's own failure; a cancelled context aborts
// the wait.
func (d *Dispatcher) do(ctx context.Context, name string, apply func(draft *State) ([]Event, error), after func()) error {
	in := &intent{
		id:    uuid.NewString(),
		name:  name,
		apply: apply,
		after: after,
		reply: make(chan error, 1),
	}

	select {
	case d.mailbox <- in:
	case <-ctx.Done():
		return fmt.Errorf("dispatch %s: %w", name, ctx.Err())
	}

	select {
	case err := <-in.reply:
		return err
	case <-ctx.Done():
		return fmt.Errorf("dispatch %s: %w", name, ctx.Err())
	}
}

// MergeSource merges normalized entities and result into a source table.
// Covers both the idempotent AddSource insert and sync-from-upstream merge
// at the table level.
func (d *Dispatcher) MergeSource(ctx context.Context, kind SourceKind, entities SourceEntities, result []string) error {
	return d.do(ctx, "merge-source", func(draft *State) ([]Event, error) {
		MergeSource(draft, kind, entities, result)
		return nil, nil
	}, nil)
}

// MergeUpstream merges a freshly fetched item batch into one source.
// Empty batches are rejected with ErrEmptyUpstreamBatch before any merge.
func (d *Dispatcher) MergeUpstream(ctx context.Context, kind SourceKind, sourceID string, items []UpstreamItem) error {
	return d.do(ctx, "merge-upstream", func(draft *State) ([]Event, error) {
		return nil, MergeUpstream(draft, kind, sourceID, items)
	}, nil)
}

// DeleteSource deletes one source with its full cascade. The coordinator
// dequeues the deleted items in reaction.
func (d *Dispatcher) DeleteSource(ctx context.Context, kind SourceKind, id string) error {
	return d.do(ctx, "delete-source", func(draft *State) ([]Event, error) {
		itemIDs, ok := DeleteSourceByID(draft, kind, id)
		if !ok {
			return nil, nil
		}
		return []Event{{
			Kind:     EventSourceDeleted,
			Source:   kind,
			SourceID: id,
			ItemIDs:  itemIDs,
		}}, nil
	}, nil)
}

// DeleteSources deletes several sources, one element fully at a time; the
// per-source reactions are independent and order-insensitive.
func (d *Dispatcher) DeleteSources(ctx context.Context, kind SourceKind, ids []string) error {
	for _, id := range ids {
		if err := d.DeleteSource(ctx, kind, id); err != nil {
			return err
		}
	}
	return nil
}

// DeletePlaylistItem deletes one playlist item (with snippet GC); the
// coordinator dequeues its queue entry if present.
func (d *Dispatcher) DeletePlaylistItem(ctx context.Context, playlistID, itemID string) error {
	return d.do(ctx, "delete-playlist-item", func(draft *State) ([]Event, error) {
		if !DeletePlaylistItemByID(draft, playlistID, itemID) {
			return nil, nil
		}
		return []Event{{
			Kind:     EventItemDeleted,
			Source:   KindPlaylists,
			SourceID: playlistID,
			ItemIDs:  []string{itemID},
		}}, nil
	}, nil)
}

// RenameSource updates a source's display name; unknown ids are a silent
// no-op.
func (d *Dispatcher) RenameSource(ctx context.Context, kind SourceKind, id, name string) error {
	return d.do(ctx, "rename-source", func(draft *State) ([]Event, error) {
		RenameSourceByID(draft, kind, id, name)
		return nil, nil
	}, nil)
}

// ReorderSourceItem moves one item within a source's ordering.
func (d *Dispatcher) ReorderSourceItem(ctx context.Context, kind SourceKind, id string, from, to int) error {
	return d.do(ctx, "reorder-source-item", func(draft *State) ([]Event, error) {
		return nil, ReorderSourceItem(draft, kind, id, from, to)
	}, nil)
}

// ShuffleSourceItems randomly permutes a source's item ordering.
func (d *Dispatcher) ShuffleSourceItems(ctx context.Context, kind SourceKind, id string) error {
	return d.do(ctx, "shuffle-source-items", func(draft *State) ([]Event, error) {
		ShuffleSourceItems(draft, kind, id)
		return nil, nil
	}, nil)
}

// Enqueue adds candidates to the queue with snippet dedup. Duplicates are
// silently dropped; their count rides on the published event for
// observability.
func (d *Dispatcher) Enqueue(ctx context.Context, candidates []Candidate) error {
	var addedSnippets []string
	return d.do(ctx, "enqueue", func(draft *State) ([]Event, error) {
		addedSnippets = addedSnippets[:0]

		var maybeQueued func(string) bool
		if d.index != nil && !d.index.Lossy() {
			maybeQueued = d.index.Has
		}

		added := EnqueueUnique(draft, candidates, maybeQueued)
		for _, cand := range added {
			entities := draft.Playlists.Entities
			if cand.Ref.Schema == SchemaVideoItems {
				entities = draft.Videos.Entities
			}
			if snippetID, _ := SnippetByItemID(entities, cand.Ref.ID); snippetID != "" {
				addedSnippets = append(addedSnippets, snippetID)
			}
		}

		duplicates := len(candidates) - len(added)
		if len(added) == 0 && duplicates == 0 {
			return nil, nil
		}

		foreignKeys := make(map[SourceKind][]string)
		seen := make(map[string]struct{})
		addedIDs := make([]string, 0, len(added))
		for _, cand := range added {
			addedIDs = append(addedIDs, cand.Ref.ID)
			if _, dup := seen[cand.ForeignKey]; dup {
				continue
			}
			seen[cand.ForeignKey] = struct{}{}
			kind := KindPlaylists
			if cand.Ref.Schema == SchemaVideoItems {
				kind = KindVideos
			}
			foreignKeys[kind] = append(foreignKeys[kind], cand.ForeignKey)
		}

		return []Event{{
			Kind:        EventQueueAdded,
			ItemIDs:     addedIDs,
			ForeignKeys: foreignKeys,
			Duplicates:  duplicates,
		}}, nil
	}, func() {
		if d.index == nil {
			return
		}
		for _, id := range addedSnippets {
			d.index.Add(id)
		}
	})
}

// EnqueueSource adds every item of a source to the queue (subject to
// dedup).
func (d *Dispatcher) EnqueueSource(ctx context.Context, kind SourceKind, sourceID string) error {
	snapshot := d.Snapshot()
	src, ok := snapshot.SourceTableOf(kind).Entities.Sources[sourceID]
	if !ok {
		return nil
	}

	schema := kind.ItemSchema()
	candidates := make([]Candidate, 0, len(src.Items))
	for _, itemID := range src.Items {
		candidates = append(candidates, Candidate{
			Ref:        QueueRef{ID: itemID, Schema: schema},
			ForeignKey: sourceID,
		})
	}
	return d.Enqueue(ctx, candidates)
}

// Dequeue removes a single queue entry; absent ids are ignored.
func (d *Dispatcher) Dequeue(ctx context.Context, itemID string) error {
	return d.DequeueMany(ctx, []string{itemID})
}

// DequeueMany removes the matching queue entries, ignoring absent ids.
func (d *Dispatcher) DequeueMany(ctx context.Context, itemIDs []string) error {
	return d.dequeue(ctx, itemIDs, "", "")
}

// DequeueSource removes every queued item of one source.
func (d *Dispatcher) DequeueSource(ctx context.Context, kind SourceKind, sourceID string) error {
	snapshot := d.Snapshot()
	src, ok := snapshot.SourceTableOf(kind).Entities.Sources[sourceID]
	if !ok {
		return nil
	}
	return d.dequeue(ctx, append([]string(nil), src.Items...), kind, sourceID)
}

// dequeue is the shared removal path. When the owning source is known it is
// attached to the event so the label recompute does not depend on the
// (possibly already deleted) item records.
func (d *Dispatcher) dequeue(ctx context.Context, itemIDs []string, hintKind SourceKind, hintSourceID string) error {
	var removedSnippets []string
	return d.do(ctx, "dequeue", func(draft *State) ([]Event, error) {
		removedSnippets = removedSnippets[:0]

		removed := DequeueByIDs(draft, itemIDs)
		if len(removed) == 0 {
			return nil, nil
		}

		// Index entries are dropped only for snippets of entries that
		// actually left the queue, and only when no remaining entry still
		// resolves to the same snippet. Requested-but-not-queued ids must
		// not touch the index: their snippet may back a queued entry.
		// Entries whose item record is already gone (cascade order) leave
		// a stale index entry, which only costs an exact re-check later.
		still := queueSnippetIDs(draft)
		removedIDs := make([]string, 0, len(removed))
		for _, ref := range removed {
			removedIDs = append(removedIDs, ref.ID)

			entities := draft.Playlists.Entities
			if ref.Schema == SchemaVideoItems {
				entities = draft.Videos.Entities
			}
			snippetID, _ := SnippetByItemID(entities, ref.ID)
			if snippetID == "" {
				continue
			}
			if _, queued := still[snippetID]; queued {
				continue
			}
			removedSnippets = append(removedSnippets, snippetID)
		}
		return []Event{{
			Kind:     EventQueueRemoved,
			Source:   hintKind,
			SourceID: hintSourceID,
			ItemIDs:  removedIDs,
		}}, nil
	}, func() {
		if d.index == nil {
			return
		}
		for _, id := range removedSnippets {
			d.index.Remove(id)
		}
	})
}

// Clear empties the queue; the coordinator clears all in-playing labels in
// reaction.
func (d *Dispatcher) Clear(ctx context.Context) error {
	return d.do(ctx, "clear-queue", func(draft *State) ([]Event, error) {
		ClearQueue(draft)
		return []Event{{Kind: EventQueueCleared}}, nil
	}, func() {
		if d.index != nil {
			d.index.Clear()
		}
	})
}

// recomputeLabels re-derives the in-playing labels for the given sources.
// Coordinator-internal; recompute on unknown ids is a no-op.
func (d *Dispatcher) recomputeLabels(ctx context.Context, kind SourceKind, sourceIDs []string) error {
	if len(sourceIDs) == 0 {
		return nil
	}
	return d.do(ctx, "recompute-labels", func(draft *State) ([]Event, error) {
		for _, id := range sourceIDs {
			RecomputeInPlaying(draft, kind, id)
		}
		return nil, nil
	}, nil)
}

// clearLabels resets the labels of every known source, the reaction to a
// queue clear.
func (d *Dispatcher) clearLabels(ctx context.Context) error {
	return d.do(ctx, "clear-labels", func(draft *State) ([]Event, error) {
		for _, table := range []*SourceTable{&draft.Playlists, &draft.Videos} {
			for _, src := range table.Entities.Sources {
				src.AllInPlaying = false
				src.PartialInPlaying = false
			}
		}
		return nil, nil
	}, nil)
}

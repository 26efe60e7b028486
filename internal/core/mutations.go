package core

import (
	"fmt"
	"math/rand"
	"slices"
)

// Draft-mutating operations. Every function here mutates the draft it is
// given; the dispatcher owns the clone-commit cycle around them, so from
// the outside each operation is snapshot-in, snapshot-out.

// MergeSource deep-merges incoming entities and result into a source table.
// Entity records are merged field-wise with incoming precedence; the result
// list appends only ids not already present, so inserting an existing
// source is an idempotent no-op.
func MergeSource(draft *State, kind SourceKind, entities SourceEntities, result []string) {
	table := draft.SourceTableOf(kind)

	for id, src := range entities.Sources {
		table.Entities.Sources[id] = mergeSourceRecord(table.Entities.Sources[id], src)
	}
	for id, item := range entities.Items {
		cp := *item
		table.Entities.Items[id] = &cp
	}
	for id, sn := range entities.Snippets {
		cp := *sn
		table.Entities.Snippets[id] = &cp
	}

	for _, id := range result {
		if !slices.Contains(table.Result, id) {
			table.Result = append(table.Result, id)
		}
	}
}

// mergeSourceRecord merges an incoming source record over an existing one.
// Upstream fields win when set; local-only state (a retained rename, the
// derived labels) survives the merge.
func mergeSourceRecord(existing, incoming *Source) *Source {
	if existing == nil {
		cp := *incoming
		cp.Items = append([]string(nil), incoming.Items...)
		return &cp
	}
	merged := *existing
	if incoming.Name != "" {
		merged.Name = incoming.Name
	}
	if incoming.Items != nil {
		merged.Items = append([]string(nil), incoming.Items...)
	}
	return &merged
}

// UpstreamItem is one freshly fetched item of a source: the item record
// plus its snippet payload.
type UpstreamItem struct {
	ItemID    string
	SnippetID string
	Snippet   Snippet
}

// MergeUpstream merges a freshly fetched batch into the source's table.
// The batch is the authoritative item list for the source; local-only state
// is preserved. An empty batch is rejected before anything is touched.
func MergeUpstream(draft *State, kind SourceKind, sourceID string, items []UpstreamItem) error {
	if len(items) == 0 {
		return fmt.Errorf("merge %s %s: %w", kind, sourceID, ErrEmptyUpstreamBatch)
	}

	entities := SourceEntities{
		Sources:  make(map[string]*Source, 1),
		Items:    make(map[string]*Item, len(items)),
		Snippets: make(map[string]*Snippet, len(items)),
	}
	itemIDs := make([]string, 0, len(items))
	for _, it := range items {
		itemIDs = append(itemIDs, it.ItemID)
		entities.Items[it.ItemID] = &Item{
			ID:        it.ItemID,
			SourceID:  sourceID,
			SnippetID: it.SnippetID,
		}
		sn := it.Snippet
		entities.Snippets[it.SnippetID] = &sn
	}
	entities.Sources[sourceID] = &Source{ID: sourceID, Items: itemIDs}

	MergeSource(draft, kind, entities, []string{sourceID})
	return nil
}

// DeleteSourceByID removes a source and cascades through everything it
// owned: its item records, any snippet no longer referenced by a remaining
// item, and its id in the result list. Returns the deleted item ids so the
// coordinator can dequeue them. No-op on an unknown id.
func DeleteSourceByID(draft *State, kind SourceKind, id string) (itemIDs []string, ok bool) {
	table := draft.SourceTableOf(kind)
	src, ok := table.Entities.Sources[id]
	if !ok {
		return nil, false
	}

	itemIDs = append([]string(nil), src.Items...)
	snippetIDs := make([]string, 0, len(itemIDs))
	for _, itemID := range itemIDs {
		if item, found := table.Entities.Items[itemID]; found {
			snippetIDs = append(snippetIDs, item.SnippetID)
		}
	}

	delete(table.Entities.Sources, id)
	deleteItems(&table.Entities, itemIDs)
	deleteSnippets(&table.Entities, snippetIDs)
	table.Result = slices.DeleteFunc(table.Result, func(rid string) bool { return rid == id })

	return itemIDs, true
}

// DeletePlaylistItemByID removes one item from its playlist: the item
// record, its snippet when nothing else references it, and its slot in the
// playlist's item list. No-op when the item is unknown.
func DeletePlaylistItemByID(draft *State, playlistID, itemID string) bool {
	entities := &draft.Playlists.Entities
	item, ok := entities.Items[itemID]
	if !ok {
		return false
	}
	snippetID := item.SnippetID

	// Item first, snippet second: the reference check must not see the
	// item being deleted or it reports the snippet as still in use.
	deleteItems(entities, []string{itemID})
	deleteSnippets(entities, []string{snippetID})

	if playlist, found := entities.Sources[playlistID]; found {
		playlist.Items = slices.DeleteFunc(playlist.Items, func(id string) bool { return id == itemID })
	}
	return true
}

func deleteItems(entities *SourceEntities, itemIDs []string) {
	for _, id := range itemIDs {
		delete(entities.Items, id)
	}
}

// deleteSnippets drops the given snippets, skipping any that a remaining
// item still references. Callers delete items before calling this.
func deleteSnippets(entities *SourceEntities, snippetIDs []string) {
	for _, id := range snippetIDs {
		if SnippetReferenced(*entities, id) {
			continue
		}
		delete(entities.Snippets, id)
	}
}

// RenameSourceByID sets the display name of a source. Silent no-op on an
// unknown id.
func RenameSourceByID(draft *State, kind SourceKind, id, name string) {
	if src, ok := draft.SourceTableOf(kind).Entities.Sources[id]; ok {
		src.Name = name
	}
}

// ReorderSourceItem moves one element of the source's ordered item list
// from index from to index to. Out-of-range indices are a caller error and
// are rejected before anything mutates.
func ReorderSourceItem(draft *State, kind SourceKind, id string, from, to int) error {
	src, ok := draft.SourceTableOf(kind).Entities.Sources[id]
	if !ok {
		return fmt.Errorf("reorder %s %s: %w", kind, id, ErrSourceNotFound)
	}
	n := len(src.Items)
	if from < 0 || from >= n || to < 0 || to >= n {
		return fmt.Errorf("reorder %s %s (%d -> %d of %d): %w", kind, id, from, to, n, ErrInvalidReorder)
	}
	if from == to {
		return nil
	}

	moved := src.Items[from]
	src.Items = slices.Delete(src.Items, from, from+1)
	src.Items = slices.Insert(src.Items, to, moved)
	return nil
}

// ShuffleSourceItems replaces the source's item list with a uniformly
// random permutation of itself. Membership never changes. No-op on an
// unknown id.
func ShuffleSourceItems(draft *State, kind SourceKind, id string) {
	src, ok := draft.SourceTableOf(kind).Entities.Sources[id]
	if !ok {
		return
	}
	rand.Shuffle(len(src.Items), func(i, j int) {
		src.Items[i], src.Items[j] = src.Items[j], src.Items[i]
	})
}

// EnqueueUnique appends candidates to the queue, skipping any whose snippet
// is already queued. Dedup compares snippet ids, never item ids: the same
// content reached through two different items counts as one queue entry.
// Whether the foreign key should also participate in the comparison (same
// video queued via two playlists) is a possible product refinement; today
// the snippet id alone decides.
//
// maybeQueued is an optional fast pre-check that may return false positives
// but never false negatives (a Bloom-filter index qualifies); nil means no
// fast path. The exact snippet set is consulted only for maybe-positive
// candidates. Returns the candidates actually added, in queue order.
func EnqueueUnique(draft *State, candidates []Candidate, maybeQueued func(snippetID string) bool) []Candidate {
	// queued is the exact pre-existing snippet set, built lazily; batch
	// tracks snippets added while processing this candidate list.
	var queued map[string]struct{}
	batch := make(map[string]struct{}, len(candidates))

	added := make([]Candidate, 0, len(candidates))
	for _, cand := range candidates {
		var entities SourceEntities
		if cand.Ref.Schema == SchemaPlaylistItems {
			entities = draft.Playlists.Entities
		} else {
			entities = draft.Videos.Entities
		}
		snippetID, _ := SnippetByItemID(entities, cand.Ref.ID)
		if snippetID == "" {
			// Unresolvable candidate: without a snippet there is nothing
			// to dedup against, so it never enters the queue.
			continue
		}

		if _, dup := batch[snippetID]; dup {
			continue
		}
		if maybeQueued == nil || maybeQueued(snippetID) {
			if queued == nil {
				queued = queueSnippetIDs(draft)
			}
			if _, dup := queued[snippetID]; dup {
				continue
			}
		}

		draft.Queue.Entities.BySchema(cand.Ref.Schema)[cand.Ref.ID] = &QueueEntry{
			ID:         cand.Ref.ID,
			ForeignKey: cand.ForeignKey,
		}
		draft.Queue.Result = append(draft.Queue.Result, cand.Ref)
		batch[snippetID] = struct{}{}
		added = append(added, cand)
	}
	return added
}

// removeResultRef removes the entry with the given id from the queue result
// and returns it. Callers use it where prior existence is guaranteed; a
// miss is ErrItemNotFound, an internal programming-error signal.
func removeResultRef(draft *State, itemID string) (QueueRef, error) {
	for i, ref := range draft.Queue.Result {
		if ref.ID == itemID {
			draft.Queue.Result = slices.Delete(draft.Queue.Result, i, i+1)
			return ref, nil
		}
	}
	return QueueRef{}, fmt.Errorf("remove %s: %w", itemID, ErrItemNotFound)
}

// DequeueByID removes one queue entry and its entity record. Absent ids are
// ignored; the removed ref is returned when something was dequeued.
func DequeueByID(draft *State, itemID string) (QueueRef, bool) {
	found := false
	for _, ref := range draft.Queue.Result {
		if ref.ID == itemID {
			found = true
			break
		}
	}
	if !found {
		return QueueRef{}, false
	}

	ref, err := removeResultRef(draft, itemID)
	if err != nil {
		// Existence was just checked; reaching here is a bug.
		return QueueRef{}, false
	}
	delete(draft.Queue.Entities.BySchema(ref.Schema), ref.ID)
	return ref, true
}

// DequeueByIDs removes every matching queue entry, ignoring absent ids.
// Returns the refs actually removed.
func DequeueByIDs(draft *State, itemIDs []string) []QueueRef {
	removed := make([]QueueRef, 0, len(itemIDs))
	for _, id := range itemIDs {
		if ref, ok := DequeueByID(draft, id); ok {
			removed = append(removed, ref)
		}
	}
	return removed
}

// ClearQueue empties the queue entirely. Label cleanup is the
// coordinator's reaction, not part of the mutation.
func ClearQueue(draft *State) {
	draft.Queue.Entities.PlaylistItems = make(map[string]*QueueEntry)
	draft.Queue.Entities.VideoItems = make(map[string]*QueueEntry)
	draft.Queue.Result = nil
}

// RecomputeInPlaying re-derives the allInPlaying/partialInPlaying labels of
// one source from the current queue entities: all items queued sets
// allInPlaying, some but not all sets partialInPlaying, none clears both.
// No-op on an unknown source. Returns whether the labels changed.
func RecomputeInPlaying(draft *State, kind SourceKind, sourceID string) bool {
	src, ok := draft.SourceTableOf(kind).Entities.Sources[sourceID]
	if !ok {
		return false
	}

	entries := draft.Queue.Entities.BySchema(kind.ItemSchema())
	all, any := true, false
	for _, itemID := range src.Items {
		if _, queued := entries[itemID]; queued {
			any = true
		} else {
			all = false
		}
	}

	// An empty item list is vacuously all-in-playing, matching the label
	// check walking the item list and finding nothing missing.
	allIn := all
	partial := any && !allIn

	changed := src.AllInPlaying != allIn || src.PartialInPlaying != partial
	src.AllInPlaying = allIn
	src.PartialInPlaying = partial
	return changed
}

package core

import (
	"errors"
	"slices"
	"testing"
)

// stateWithPlaylist builds a snapshot with one playlist holding the given
// items; item i references snippet s via the parallel slices.
func stateWithPlaylist(playlistID string, itemIDs, snippetIDs []string) *State {
	s := NewState()
	addSource(s, KindPlaylists, playlistID, itemIDs, snippetIDs)
	return s
}

func addSource(s *State, kind SourceKind, sourceID string, itemIDs, snippetIDs []string) {
	table := s.SourceTableOf(kind)
	table.Entities.Sources[sourceID] = &Source{ID: sourceID, Items: append([]string(nil), itemIDs...)}
	for i, itemID := range itemIDs {
		table.Entities.Items[itemID] = &Item{ID: itemID, SourceID: sourceID, SnippetID: snippetIDs[i]}
		table.Entities.Snippets[snippetIDs[i]] = &Snippet{Title: "title " + snippetIDs[i]}
	}
	table.Result = append(table.Result, sourceID)
}

func enqueueAll(s *State, kind SourceKind, sourceID string) []Candidate {
	src := s.SourceTableOf(kind).Entities.Sources[sourceID]
	schema := kind.ItemSchema()
	candidates := make([]Candidate, 0, len(src.Items))
	for _, itemID := range src.Items {
		candidates = append(candidates, Candidate{
			Ref:        QueueRef{ID: itemID, Schema: schema},
			ForeignKey: sourceID,
		})
	}
	return EnqueueUnique(s, candidates, nil)
}

func TestMergeSource_Idempotent(t *testing.T) {
	s := NewState()
	entities := SourceEntities{
		Sources:  map[string]*Source{"p1": {ID: "p1", Name: "Mix", Items: []string{"i1"}}},
		Items:    map[string]*Item{"i1": {ID: "i1", SourceID: "p1", SnippetID: "sn1"}},
		Snippets: map[string]*Snippet{"sn1": {Title: "Song"}},
	}

	MergeSource(s, KindPlaylists, entities, []string{"p1"})
	MergeSource(s, KindPlaylists, entities, []string{"p1"})

	if got := len(s.Playlists.Result); got != 1 {
		t.Errorf("Result should hold p1 once, got %d entries", got)
	}
	if s.Playlists.Entities.Sources["p1"].Name != "Mix" {
		t.Errorf("Source name should survive re-merge, got %q", s.Playlists.Entities.Sources["p1"].Name)
	}
}

func TestMergeSource_PreservesLocalState(t *testing.T) {
	s := stateWithPlaylist("p1", []string{"i1"}, []string{"sn1"})
	s.Playlists.Entities.Sources["p1"].Name = "Renamed"
	s.Playlists.Entities.Sources["p1"].AllInPlaying = true

	incoming := SourceEntities{
		Sources:  map[string]*Source{"p1": {ID: "p1", Items: []string{"i1", "i2"}}},
		Items:    map[string]*Item{"i2": {ID: "i2", SourceID: "p1", SnippetID: "sn2"}},
		Snippets: map[string]*Snippet{"sn2": {Title: "New"}},
	}
	MergeSource(s, KindPlaylists, incoming, []string{"p1"})

	src := s.Playlists.Entities.Sources["p1"]
	if src.Name != "Renamed" {
		t.Errorf("Local rename should survive an upstream merge with empty name, got %q", src.Name)
	}
	if !src.AllInPlaying {
		t.Error("Derived labels should survive an upstream merge")
	}
	if !slices.Equal(src.Items, []string{"i1", "i2"}) {
		t.Errorf("Incoming item list should win, got %v", src.Items)
	}
}

func TestMergeUpstream_EmptyBatchRejected(t *testing.T) {
	s := stateWithPlaylist("p1", []string{"i1"}, []string{"sn1"})

	err := MergeUpstream(s, KindPlaylists, "p1", nil)
	if !errors.Is(err, ErrEmptyUpstreamBatch) {
		t.Fatalf("Empty batch should fail with ErrEmptyUpstreamBatch, got %v", err)
	}

	// Nothing may have been touched
	if !slices.Equal(s.Playlists.Entities.Sources["p1"].Items, []string{"i1"}) {
		t.Error("Rejected merge must not mutate the source")
	}
}

func TestMergeUpstream_MergesBatch(t *testing.T) {
	s := NewState()

	batch := []UpstreamItem{
		{ItemID: "i1", SnippetID: "sn1", Snippet: Snippet{Title: "One"}},
		{ItemID: "i2", SnippetID: "sn2", Snippet: Snippet{Title: "Two"}},
	}
	if err := MergeUpstream(s, KindVideos, "v1", batch); err != nil {
		t.Fatalf("MergeUpstream failed: %v", err)
	}

	src := s.Videos.Entities.Sources["v1"]
	if src == nil {
		t.Fatal("Source v1 should exist after merge")
	}
	if !slices.Equal(src.Items, []string{"i1", "i2"}) {
		t.Errorf("Item list should match the batch order, got %v", src.Items)
	}
	if s.Videos.Entities.Snippets["sn2"] == nil || s.Videos.Entities.Snippets["sn2"].Title != "Two" {
		t.Error("Snippet records should be stored from the batch")
	}
	if !slices.Contains(s.Videos.Result, "v1") {
		t.Error("Result should list the merged source")
	}
}

func TestDeleteSourceByID_Cascade(t *testing.T) {
	s := stateWithPlaylist("p1", []string{"i1", "i2"}, []string{"sn1", "sn2"})

	itemIDs, ok := DeleteSourceByID(s, KindPlaylists, "p1")
	if !ok {
		t.Fatal("Delete of an existing source should report ok")
	}
	if !slices.Equal(itemIDs, []string{"i1", "i2"}) {
		t.Errorf("Deleted item ids should be returned in order, got %v", itemIDs)
	}

	if s.Playlists.Entities.Sources["p1"] != nil {
		t.Error("Source record should be gone")
	}
	for _, id := range []string{"i1", "i2"} {
		if s.Playlists.Entities.Items[id] != nil {
			t.Errorf("Item %s should be gone", id)
		}
	}
	for _, id := range []string{"sn1", "sn2"} {
		if s.Playlists.Entities.Snippets[id] != nil {
			t.Errorf("Snippet %s should be garbage collected", id)
		}
	}
	if slices.Contains(s.Playlists.Result, "p1") {
		t.Error("Result should no longer list p1")
	}
}

func TestDeleteSourceByID_KeepsSharedSnippets(t *testing.T) {
	s := stateWithPlaylist("p1", []string{"i1"}, []string{"shared"})
	addSource(s, KindPlaylists, "p2", []string{"i2"}, []string{"shared"})

	if _, ok := DeleteSourceByID(s, KindPlaylists, "p1"); !ok {
		t.Fatal("Delete should succeed")
	}

	if s.Playlists.Entities.Snippets["shared"] == nil {
		t.Error("Snippet still referenced by p2's item must survive the cascade")
	}
}

func TestDeleteSourceByID_UnknownIsNoop(t *testing.T) {
	s := stateWithPlaylist("p1", []string{"i1"}, []string{"sn1"})

	itemIDs, ok := DeleteSourceByID(s, KindPlaylists, "missing")
	if ok || itemIDs != nil {
		t.Errorf("Unknown source should be a no-op, got ok=%v items=%v", ok, itemIDs)
	}
	if s.Playlists.Entities.Sources["p1"] == nil {
		t.Error("Existing sources must be untouched")
	}
}

func TestDeletePlaylistItemByID(t *testing.T) {
	s := stateWithPlaylist("p1", []string{"i1", "i2"}, []string{"sn1", "sn2"})

	if !DeletePlaylistItemByID(s, "p1", "i1") {
		t.Fatal("Delete of an existing item should report true")
	}

	if s.Playlists.Entities.Items["i1"] != nil {
		t.Error("Item record should be gone")
	}
	if s.Playlists.Entities.Snippets["sn1"] != nil {
		t.Error("Unreferenced snippet should be garbage collected")
	}
	if !slices.Equal(s.Playlists.Entities.Sources["p1"].Items, []string{"i2"}) {
		t.Errorf("Playlist item list should drop i1, got %v", s.Playlists.Entities.Sources["p1"].Items)
	}

	if DeletePlaylistItemByID(s, "p1", "i1") {
		t.Error("Deleting an already deleted item should report false")
	}
}

func TestDeletePlaylistItemByID_SharedSnippetSurvives(t *testing.T) {
	s := NewState()
	table := &s.Playlists
	table.Entities.Sources["p1"] = &Source{ID: "p1", Items: []string{"i1", "i2"}}
	table.Entities.Items["i1"] = &Item{ID: "i1", SourceID: "p1", SnippetID: "shared"}
	table.Entities.Items["i2"] = &Item{ID: "i2", SourceID: "p1", SnippetID: "shared"}
	table.Entities.Snippets["shared"] = &Snippet{Title: "Song"}
	table.Result = []string{"p1"}

	DeletePlaylistItemByID(s, "p1", "i1")

	if table.Entities.Snippets["shared"] == nil {
		t.Error("Snippet referenced by the remaining item must survive")
	}
}

func TestRenameSourceByID(t *testing.T) {
	s := stateWithPlaylist("p1", nil, nil)

	RenameSourceByID(s, KindPlaylists, "p1", "Evening mix")
	if got := s.Playlists.Entities.Sources["p1"].Name; got != "Evening mix" {
		t.Errorf("Name should be updated, got %q", got)
	}

	// Unknown id is a silent no-op
	RenameSourceByID(s, KindPlaylists, "missing", "whatever")
	if len(s.Playlists.Entities.Sources) != 1 {
		t.Error("Renaming an unknown source must not create records")
	}
}

func TestReorderSourceItem(t *testing.T) {
	s := stateWithPlaylist("p1", []string{"a", "b", "c", "d"}, []string{"s1", "s2", "s3", "s4"})

	if err := ReorderSourceItem(s, KindPlaylists, "p1", 0, 2); err != nil {
		t.Fatalf("Reorder failed: %v", err)
	}
	if got := s.Playlists.Entities.Sources["p1"].Items; !slices.Equal(got, []string{"b", "c", "a", "d"}) {
		t.Errorf("Reorder 0->2 should yield [b c a d], got %v", got)
	}

	if err := ReorderSourceItem(s, KindPlaylists, "p1", 3, 0); err != nil {
		t.Fatalf("Reorder failed: %v", err)
	}
	if got := s.Playlists.Entities.Sources["p1"].Items; !slices.Equal(got, []string{"d", "b", "c", "a"}) {
		t.Errorf("Reorder 3->0 should yield [d b c a], got %v", got)
	}

	// Same index is a no-op
	if err := ReorderSourceItem(s, KindPlaylists, "p1", 1, 1); err != nil {
		t.Errorf("Reorder to the same index should succeed, got %v", err)
	}
}

func TestReorderSourceItem_Errors(t *testing.T) {
	s := stateWithPlaylist("p1", []string{"a", "b"}, []string{"s1", "s2"})

	if err := ReorderSourceItem(s, KindPlaylists, "missing", 0, 1); !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("Unknown source should fail with ErrSourceNotFound, got %v", err)
	}

	for _, tc := range []struct{ from, to int }{
		{-1, 0}, {0, -1}, {2, 0}, {0, 2},
	} {
		err := ReorderSourceItem(s, KindPlaylists, "p1", tc.from, tc.to)
		if !errors.Is(err, ErrInvalidReorder) {
			t.Errorf("Reorder %d->%d should fail with ErrInvalidReorder, got %v", tc.from, tc.to, err)
		}
	}

	if got := s.Playlists.Entities.Sources["p1"].Items; !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("Rejected reorders must not mutate the list, got %v", got)
	}
}

func TestShuffleSourceItems_PreservesMembership(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	snippets := []string{"s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8"}
	s := stateWithPlaylist("p1", items, snippets)

	ShuffleSourceItems(s, KindPlaylists, "p1")

	got := s.Playlists.Entities.Sources["p1"].Items
	if len(got) != len(items) {
		t.Fatalf("Shuffle must not change length, got %d", len(got))
	}
	sorted := append([]string(nil), got...)
	slices.Sort(sorted)
	want := append([]string(nil), items...)
	slices.Sort(want)
	if !slices.Equal(sorted, want) {
		t.Errorf("Shuffle must be a permutation, got %v", got)
	}

	// Unknown id is a no-op
	ShuffleSourceItems(s, KindPlaylists, "missing")
}

func TestEnqueueUnique_SkipsQueuedSnippet(t *testing.T) {
	s := stateWithPlaylist("p1", []string{"i1"}, []string{"sn1"})
	addSource(s, KindPlaylists, "p2", []string{"i2"}, []string{"sn1"})

	added := enqueueAll(s, KindPlaylists, "p1")
	if len(added) != 1 {
		t.Fatalf("First enqueue should add one entry, got %d", len(added))
	}

	// i2 resolves to the same snippet as the queued i1
	added = enqueueAll(s, KindPlaylists, "p2")
	if len(added) != 0 {
		t.Errorf("Snippet-duplicate candidate should be dropped, got %d added", len(added))
	}
	if len(s.Queue.Result) != 1 {
		t.Errorf("Queue should hold one entry, got %d", len(s.Queue.Result))
	}
}

func TestEnqueueUnique_IntraBatchDedup(t *testing.T) {
	s := NewState()
	table := &s.Playlists
	table.Entities.Sources["p1"] = &Source{ID: "p1", Items: []string{"i1", "i2"}}
	table.Entities.Items["i1"] = &Item{ID: "i1", SourceID: "p1", SnippetID: "shared"}
	table.Entities.Items["i2"] = &Item{ID: "i2", SourceID: "p1", SnippetID: "shared"}
	table.Entities.Snippets["shared"] = &Snippet{Title: "Song"}

	// Fast path that never fires, the worst case for intra-batch duplicates
	added := EnqueueUnique(s, []Candidate{
		{Ref: QueueRef{ID: "i1", Schema: SchemaPlaylistItems}, ForeignKey: "p1"},
		{Ref: QueueRef{ID: "i2", Schema: SchemaPlaylistItems}, ForeignKey: "p1"},
	}, func(string) bool { return false })

	if len(added) != 1 {
		t.Fatalf("Two candidates of one snippet should add one entry, got %d", len(added))
	}
	if len(s.Queue.Result) != 1 {
		t.Errorf("Queue should hold one entry, got %d", len(s.Queue.Result))
	}
}

func TestEnqueueUnique_SkipsUnresolvable(t *testing.T) {
	s := NewState()

	added := EnqueueUnique(s, []Candidate{
		{Ref: QueueRef{ID: "ghost", Schema: SchemaVideoItems}, ForeignKey: "ghost"},
	}, nil)

	if len(added) != 0 || len(s.Queue.Result) != 0 {
		t.Errorf("Candidates without a snippet must never enter the queue, got %d added", len(added))
	}
}

func TestEnqueueUnique_FalsePositiveFastPath(t *testing.T) {
	s := stateWithPlaylist("p1", []string{"i1"}, []string{"sn1"})

	// A fast path that always claims maybe-queued must fall through to the
	// exact check and still enqueue
	added := EnqueueUnique(s, []Candidate{
		{Ref: QueueRef{ID: "i1", Schema: SchemaPlaylistItems}, ForeignKey: "p1"},
	}, func(string) bool { return true })

	if len(added) != 1 {
		t.Errorf("False positive from the fast path must not drop a fresh candidate, got %d added", len(added))
	}
}

func TestEnqueueUnique_PreservesOrder(t *testing.T) {
	s := stateWithPlaylist("p1", []string{"i1", "i2", "i3"}, []string{"s1", "s2", "s3"})

	enqueueAll(s, KindPlaylists, "p1")

	want := []string{"i1", "i2", "i3"}
	for i, ref := range s.Queue.Result {
		if ref.ID != want[i] {
			t.Fatalf("Queue order should follow enqueue order, got %v at %d", ref.ID, i)
		}
	}
}

func TestDequeueByID(t *testing.T) {
	s := stateWithPlaylist("p1", []string{"i1", "i2"}, []string{"s1", "s2"})
	enqueueAll(s, KindPlaylists, "p1")

	ref, ok := DequeueByID(s, "i1")
	if !ok {
		t.Fatal("Dequeue of a queued entry should succeed")
	}
	if ref.ID != "i1" || ref.Schema != SchemaPlaylistItems {
		t.Errorf("Removed ref should identify the entry, got %+v", ref)
	}
	if s.Queue.Entities.PlaylistItems["i1"] != nil {
		t.Error("Entity record should be removed with the ref")
	}
	if len(s.Queue.Result) != 1 {
		t.Errorf("Queue should hold one remaining entry, got %d", len(s.Queue.Result))
	}

	// Absent ids are ignored
	if _, ok := DequeueByID(s, "i1"); ok {
		t.Error("Dequeue of an absent id should report false")
	}
}

func TestDequeueByIDs_IgnoresAbsent(t *testing.T) {
	s := stateWithPlaylist("p1", []string{"i1", "i2"}, []string{"s1", "s2"})
	enqueueAll(s, KindPlaylists, "p1")

	removed := DequeueByIDs(s, []string{"i2", "missing", "i1"})
	if len(removed) != 2 {
		t.Errorf("Two of three ids were queued, got %d removed", len(removed))
	}
	if len(s.Queue.Result) != 0 {
		t.Errorf("Queue should be empty, got %d entries", len(s.Queue.Result))
	}
}

func TestClearQueue(t *testing.T) {
	s := stateWithPlaylist("p1", []string{"i1"}, []string{"s1"})
	enqueueAll(s, KindPlaylists, "p1")

	ClearQueue(s)

	if len(s.Queue.Result) != 0 {
		t.Errorf("Result should be empty after clear, got %d", len(s.Queue.Result))
	}
	if len(s.Queue.Entities.PlaylistItems) != 0 || len(s.Queue.Entities.VideoItems) != 0 {
		t.Error("Entity maps should be empty after clear")
	}
}

func TestRecomputeInPlaying(t *testing.T) {
	s := stateWithPlaylist("p1", []string{"i1", "i2"}, []string{"s1", "s2"})

	// Nothing queued: both labels off
	RecomputeInPlaying(s, KindPlaylists, "p1")
	src := s.Playlists.Entities.Sources["p1"]
	if src.AllInPlaying || src.PartialInPlaying {
		t.Errorf("No queued items: labels should be off, got all=%v partial=%v", src.AllInPlaying, src.PartialInPlaying)
	}

	// One of two queued: partial
	EnqueueUnique(s, []Candidate{{Ref: QueueRef{ID: "i1", Schema: SchemaPlaylistItems}, ForeignKey: "p1"}}, nil)
	changed := RecomputeInPlaying(s, KindPlaylists, "p1")
	if !changed {
		t.Error("Label change should be reported")
	}
	if src.AllInPlaying || !src.PartialInPlaying {
		t.Errorf("One of two queued: partial only, got all=%v partial=%v", src.AllInPlaying, src.PartialInPlaying)
	}

	// Both queued: all, not partial
	EnqueueUnique(s, []Candidate{{Ref: QueueRef{ID: "i2", Schema: SchemaPlaylistItems}, ForeignKey: "p1"}}, nil)
	RecomputeInPlaying(s, KindPlaylists, "p1")
	if !src.AllInPlaying || src.PartialInPlaying {
		t.Errorf("All queued: allInPlaying only, got all=%v partial=%v", src.AllInPlaying, src.PartialInPlaying)
	}

	// Recompute with no change reports false
	if RecomputeInPlaying(s, KindPlaylists, "p1") {
		t.Error("Unchanged labels should report false")
	}
}

func TestRecomputeInPlaying_EmptySourceIsAllIn(t *testing.T) {
	s := stateWithPlaylist("p1", nil, nil)

	RecomputeInPlaying(s, KindPlaylists, "p1")
	src := s.Playlists.Entities.Sources["p1"]
	if !src.AllInPlaying {
		t.Error("A source without items is vacuously all-in-playing")
	}
	if src.PartialInPlaying {
		t.Error("An empty source is never partial")
	}
}

func TestRecomputeInPlaying_UnknownSource(t *testing.T) {
	s := NewState()
	if RecomputeInPlaying(s, KindPlaylists, "missing") {
		t.Error("Recompute on an unknown source should be a no-op")
	}
}

package core

import "testing"

func TestDisplayNameOf(t *testing.T) {
	if got := DisplayNameOf(KindPlaylists, &Source{Name: "Mix"}); got != "Mix" {
		t.Errorf("Named source should use its name, got %q", got)
	}
	if got := DisplayNameOf(KindPlaylists, &Source{}); got != "Unnamed playlist" {
		t.Errorf("Unnamed playlist default wrong, got %q", got)
	}
	if got := DisplayNameOf(KindVideos, &Source{}); got != "Unnamed video" {
		t.Errorf("Unnamed video default wrong, got %q", got)
	}
}

func TestQueueSnippets(t *testing.T) {
	s := stateWithPlaylist("p1", []string{"i1", "i2"}, []string{"sn1", "sn2"})
	enqueueAll(s, KindPlaylists, "p1")

	snippets := QueueSnippets(s)
	if len(snippets) != 2 {
		t.Fatalf("Queue view should list both entries, got %d", len(snippets))
	}
	if snippets[0].Ref.ID != "i1" || snippets[0].ForeignKey != "p1" {
		t.Errorf("First entry wrong: %+v", snippets[0])
	}
	if snippets[0].Snippet == nil || snippets[0].Snippet.Title != "title sn1" {
		t.Error("Snippet should resolve through the source table")
	}
}

func TestQueueSnippets_PlaceholderForOrphans(t *testing.T) {
	s := stateWithPlaylist("p1", []string{"i1"}, []string{"sn1"})
	enqueueAll(s, KindPlaylists, "p1")

	// Remove the backing item; the entry becomes an orphan pending cascade
	delete(s.Playlists.Entities.Items, "i1")

	snippets := QueueSnippets(s)
	if len(snippets) != 1 {
		t.Fatalf("Orphaned entries still appear in the view, got %d", len(snippets))
	}
	if snippets[0].Snippet != nil {
		t.Error("Orphaned entry should carry a nil snippet placeholder")
	}
}

func TestSourcesByName(t *testing.T) {
	s := NewState()
	s.Playlists.Entities.Sources["p3"] = &Source{ID: "p3", Name: "beta"}
	s.Playlists.Entities.Sources["p1"] = &Source{ID: "p1", Name: "Alpha"}
	s.Playlists.Entities.Sources["p2"] = &Source{ID: "p2", Name: "gamma"}

	ordered := SourcesByName(s, KindPlaylists)
	if len(ordered) != 3 {
		t.Fatalf("All sources should be listed, got %d", len(ordered))
	}
	want := []string{"p1", "p3", "p2"}
	for i, src := range ordered {
		if src.ID != want[i] {
			t.Errorf("Position %d should be %s (case-insensitive name order), got %s", i, want[i], src.ID)
		}
	}
}

func TestSourcesByName_IDTiebreak(t *testing.T) {
	s := NewState()
	s.Playlists.Entities.Sources["b"] = &Source{ID: "b"}
	s.Playlists.Entities.Sources["a"] = &Source{ID: "a"}

	ordered := SourcesByName(s, KindPlaylists)
	if ordered[0].ID != "a" || ordered[1].ID != "b" {
		t.Errorf("Equal display names should fall back to id order, got %s %s", ordered[0].ID, ordered[1].ID)
	}
}

func TestLabels(t *testing.T) {
	s := stateWithPlaylist("p1", nil, nil)
	s.Playlists.Entities.Sources["p1"].PartialInPlaying = true

	all, partial := Labels(s, KindPlaylists, "p1")
	if all || !partial {
		t.Errorf("Labels should reflect the record, got all=%v partial=%v", all, partial)
	}

	all, partial = Labels(s, KindPlaylists, "missing")
	if all || partial {
		t.Error("Unknown source should report both labels off")
	}
}

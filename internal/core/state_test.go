package core

import (
	"encoding/json"
	"testing"
)

func TestCloneIsIndependent(t *testing.T) {
	s := stateWithPlaylist("p1", []string{"i1"}, []string{"sn1"})
	enqueueAll(s, KindPlaylists, "p1")

	clone := s.Clone()
	clone.Playlists.Entities.Sources["p1"].Name = "changed"
	clone.Playlists.Entities.Sources["p1"].Items[0] = "swapped"
	clone.Playlists.Entities.Snippets["sn1"].Title = "changed"
	clone.Queue.Result[0].ID = "swapped"
	delete(clone.Playlists.Entities.Items, "i1")

	if s.Playlists.Entities.Sources["p1"].Name == "changed" {
		t.Error("Clone must not share source records")
	}
	if s.Playlists.Entities.Sources["p1"].Items[0] != "i1" {
		t.Error("Clone must not share item id slices")
	}
	if s.Playlists.Entities.Snippets["sn1"].Title == "changed" {
		t.Error("Clone must not share snippet records")
	}
	if s.Queue.Result[0].ID != "i1" {
		t.Error("Clone must not share the queue result slice")
	}
	if s.Playlists.Entities.Items["i1"] == nil {
		t.Error("Clone must not share entity maps")
	}
}

func TestNormalizeAllocatesMaps(t *testing.T) {
	var s State
	s.Normalize()

	if s.Playlists.Entities.Sources == nil || s.Videos.Entities.Snippets == nil {
		t.Error("Normalize should allocate source table maps")
	}
	if s.Queue.Entities.PlaylistItems == nil || s.Queue.Entities.VideoItems == nil {
		t.Error("Normalize should allocate queue entity maps")
	}
}

func TestStateJSONRoundtrip(t *testing.T) {
	s := stateWithPlaylist("p1", []string{"i1"}, []string{"sn1"})
	enqueueAll(s, KindPlaylists, "p1")

	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var restored State
	if err := json.Unmarshal(raw, &restored); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	restored.Normalize()

	if restored.Playlists.Entities.Sources["p1"] == nil {
		t.Fatal("Source should survive the roundtrip")
	}
	if got := len(restored.Queue.Result); got != 1 {
		t.Errorf("Queue should survive the roundtrip, got %d entries", got)
	}
	if restored.Playlists.Entities.Snippets["sn1"].Title != "title sn1" {
		t.Error("Snippet payload should survive the roundtrip")
	}
}

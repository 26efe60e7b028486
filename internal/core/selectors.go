package core

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Snapshot-read functions. All are pure over a point-in-time *State and
// never mutate it.

// Default display strings for unnamed sources.
const (
	defaultPlaylistName = "Unnamed playlist"
	defaultVideoName    = "Unnamed video"
)

// DisplayNameOf returns the source's name or the kind's default display
// string when the source is unnamed.
func DisplayNameOf(kind SourceKind, src *Source) string {
	if src.Name != "" {
		return src.Name
	}
	if kind == KindPlaylists {
		return defaultPlaylistName
	}
	return defaultVideoName
}

// SourceByID returns the source record, or nil if unknown.
func SourceByID(s *State, kind SourceKind, id string) *Source {
	return s.SourceTableOf(kind).Entities.Sources[id]
}

// ItemIDsBySourceID returns the ordered item ids of a source; nil if the
// source is unknown.
func ItemIDsBySourceID(s *State, kind SourceKind, id string) []string {
	src := SourceByID(s, kind, id)
	if src == nil {
		return nil
	}
	return src.Items
}

// SnippetOf resolves an item id to its snippet within the given kind's
// table; nil on any missing hop.
func SnippetOf(s *State, kind SourceKind, itemID string) *Snippet {
	_, snippet := SnippetByItemID(s.SourceTableOf(kind).Entities, itemID)
	return snippet
}

// Labels returns the derived in-playing labels of a source; both false for
// an unknown id.
func Labels(s *State, kind SourceKind, id string) (allInPlaying, partialInPlaying bool) {
	src := SourceByID(s, kind, id)
	if src == nil {
		return false, false
	}
	return src.AllInPlaying, src.PartialInPlaying
}

// QueuedSnippet is one queue position resolved for display: the ref, its
// owning source and the snippet, which is nil when the source was deleted
// out from under the entry (readers render a placeholder; the cascade is
// expected to remove such entries promptly).
type QueuedSnippet struct {
	Ref        QueueRef `json:"ref"`
	ForeignKey string   `json:"foreignKey"`
	Snippet    *Snippet `json:"snippet"`
}

// QueueSnippets returns the queue in play order with each entry's snippet
// resolved through the source tables.
func QueueSnippets(s *State) []QueuedSnippet {
	out := make([]QueuedSnippet, 0, len(s.Queue.Result))
	for _, ref := range s.Queue.Result {
		entry := s.Queue.Entities.BySchema(ref.Schema)[ref.ID]
		if entry == nil {
			continue
		}
		kind := KindPlaylists
		if ref.Schema == SchemaVideoItems {
			kind = KindVideos
		}
		out = append(out, QueuedSnippet{
			Ref:        ref,
			ForeignKey: entry.ForeignKey,
			Snippet:    SnippetOf(s, kind, ref.ID),
		})
	}
	return out
}

// SourcesByName lists every source of a kind ordered by collated display
// name, with the id as tiebreaker.
func SourcesByName(s *State, kind SourceKind) []*Source {
	table := s.SourceTableOf(kind)
	out := make([]*Source, 0, len(table.Entities.Sources))
	for _, src := range table.Entities.Sources {
		out = append(out, src)
	}

	coll := collate.New(language.Und, collate.IgnoreCase)
	sort.Slice(out, func(i, j int) bool {
		ni, nj := DisplayNameOf(kind, out[i]), DisplayNameOf(kind, out[j])
		if cmp := coll.CompareString(ni, nj); cmp != 0 {
			return cmp < 0
		}
		return out[i].ID < out[j].ID
	})
	return out
}

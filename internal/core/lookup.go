package core

// Identity and lookup helpers. All of them are pure and total: a missing
// hop returns the zero answer instead of panicking, which is how orphaned
// queue entries (deleted upstream source) are detected by readers.

// IsSourceEntities reports whether a generically held entity set is
// source-shaped (playlists/videos with snippets) rather than queue-shaped.
// The mutation and selector paths work on concrete types and never need
// this; it is the discrimination hook for callers that carry either table
// form behind one value, such as generic merge or export plumbing.
func IsSourceEntities(entities any) bool {
	_, ok := entities.(SourceEntities)
	if !ok {
		_, ok = entities.(*SourceEntities)
	}
	return ok
}

// SnippetByItemID resolves item id -> snippet id -> snippet within one
// source table. Returns the snippet id alongside so callers can key dedup
// checks without a second lookup. Either hop missing yields ("", nil).
func SnippetByItemID(entities SourceEntities, itemID string) (string, *Snippet) {
	item, ok := entities.Items[itemID]
	if !ok {
		return "", nil
	}
	return item.SnippetID, entities.Snippets[item.SnippetID]
}

// SnippetReferenced reports whether at least one item in the table still
// references the snippet. Deleting a snippet is only allowed once this
// turns false, so item deletion must happen before the check.
func SnippetReferenced(entities SourceEntities, snippetID string) bool {
	for _, item := range entities.Items {
		if item.SnippetID == snippetID {
			return true
		}
	}
	return false
}

// ForeignKeyOf returns the owning source id of a queue entry resolved
// against the snapshot, or "" if the entry does not exist. Standalone
// videos own themselves, so their foreign key equals the entry id.
func ForeignKeyOf(s *State, ref QueueRef) string {
	entry, ok := s.Queue.Entities.BySchema(ref.Schema)[ref.ID]
	if !ok {
		return ""
	}
	return entry.ForeignKey
}

// queueSnippetIDs collects the snippet ids of every entry currently in the
// queue, resolved through the source tables. Entries whose source item is
// gone contribute nothing; the coordinator's cascades keep that transient.
func queueSnippetIDs(s *State) map[string]struct{} {
	ids := make(map[string]struct{}, len(s.Queue.Result))
	for _, ref := range s.Queue.Result {
		var entities SourceEntities
		if ref.Schema == SchemaPlaylistItems {
			entities = s.Playlists.Entities
		} else {
			entities = s.Videos.Entities
		}
		if snippetID, _ := SnippetByItemID(entities, ref.ID); snippetID != "" {
			ids[snippetID] = struct{}{}
		}
	}
	return ids
}

// sourceOwning returns the kind and source record that owns the given item
// id, or ("", nil) when no source table knows the item.
func sourceOwning(s *State, itemID string) (SourceKind, *Source) {
	if item, ok := s.Playlists.Entities.Items[itemID]; ok {
		return KindPlaylists, s.Playlists.Entities.Sources[item.SourceID]
	}
	if item, ok := s.Videos.Entities.Items[itemID]; ok {
		return KindVideos, s.Videos.Entities.Sources[item.SourceID]
	}
	return "", nil
}

package core

// RawPlayItem is a playable unit as delivered by the upstream collaborator,
// before normalization: a playlist item carries its owning playlist id, a
// standalone video carries only itself.
type RawPlayItem struct {
	ID         string
	Schema     Schema
	PlaylistID string
}

// NormalizeQueue turns raw play items into queue entities and an ordered
// result list. Playlist items keep their playlist as foreign key; videos
// use their own id, since a standalone video owns itself.
func NormalizeQueue(items []RawPlayItem) (QueueEntities, []QueueRef) {
	entities := QueueEntities{
		PlaylistItems: make(map[string]*QueueEntry),
		VideoItems:    make(map[string]*QueueEntry),
	}
	result := make([]QueueRef, 0, len(items))

	for _, item := range items {
		foreignKey := item.ID
		if item.Schema == SchemaPlaylistItems {
			foreignKey = item.PlaylistID
		}
		entities.BySchema(item.Schema)[item.ID] = &QueueEntry{
			ID:         item.ID,
			ForeignKey: foreignKey,
		}
		result = append(result, QueueRef{ID: item.ID, Schema: item.Schema})
	}

	return entities, result
}

// DenormalizeQueue flattens queue entities back into ordered candidates,
// following the result ordering. Refs without a matching entity are
// skipped.
func DenormalizeQueue(entities QueueEntities, result []QueueRef) []Candidate {
	out := make([]Candidate, 0, len(result))
	for _, ref := range result {
		entry, ok := entities.BySchema(ref.Schema)[ref.ID]
		if !ok {
			continue
		}
		out = append(out, Candidate{Ref: ref, ForeignKey: entry.ForeignKey})
	}
	return out
}

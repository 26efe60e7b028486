package core

// State is one immutable point-in-time snapshot of all three tables. Only
// the dispatcher produces new snapshots; readers treat a *State as frozen.
// Mutations deep-clone the current snapshot into a draft, mutate the draft
// and commit it, so a partially mutated state is never observable.
type State struct {
	Playlists SourceTable `json:"playlists"`
	Videos    SourceTable `json:"videos"`
	Queue     QueueTable  `json:"queue"`
}

// NewState returns an empty snapshot with all entity maps allocated.
func NewState() *State {
	return &State{
		Playlists: newSourceTable(),
		Videos:    newSourceTable(),
		Queue: QueueTable{
			Entities: QueueEntities{
				PlaylistItems: make(map[string]*QueueEntry),
				VideoItems:    make(map[string]*QueueEntry),
			},
		},
	}
}

func newSourceTable() SourceTable {
	return SourceTable{
		Entities: SourceEntities{
			Sources:  make(map[string]*Source),
			Items:    make(map[string]*Item),
			Snippets: make(map[string]*Snippet),
		},
	}
}

// SourceTableOf returns the table for the given kind. The returned pointer
// aliases the snapshot; callers must not mutate it outside a draft.
func (s *State) SourceTableOf(kind SourceKind) *SourceTable {
	if kind == KindPlaylists {
		return &s.Playlists
	}
	return &s.Videos
}

// Normalize ensures every entity map is non-nil. Rehydrated snapshots (from
// persistence or JSON) pass through here before first use so lookups never
// hit a nil map.
func (s *State) Normalize() *State {
	normalizeSourceTable(&s.Playlists)
	normalizeSourceTable(&s.Videos)
	if s.Queue.Entities.PlaylistItems == nil {
		s.Queue.Entities.PlaylistItems = make(map[string]*QueueEntry)
	}
	if s.Queue.Entities.VideoItems == nil {
		s.Queue.Entities.VideoItems = make(map[string]*QueueEntry)
	}
	return s
}

func normalizeSourceTable(t *SourceTable) {
	if t.Entities.Sources == nil {
		t.Entities.Sources = make(map[string]*Source)
	}
	if t.Entities.Items == nil {
		t.Entities.Items = make(map[string]*Item)
	}
	if t.Entities.Snippets == nil {
		t.Entities.Snippets = make(map[string]*Snippet)
	}
}

// Clone deep-copies the snapshot into a fresh draft.
func (s *State) Clone() *State {
	return &State{
		Playlists: cloneSourceTable(s.Playlists),
		Videos:    cloneSourceTable(s.Videos),
		Queue:     cloneQueueTable(s.Queue),
	}
}

func cloneSourceTable(t SourceTable) SourceTable {
	out := SourceTable{
		Entities: SourceEntities{
			Sources:  make(map[string]*Source, len(t.Entities.Sources)),
			Items:    make(map[string]*Item, len(t.Entities.Items)),
			Snippets: make(map[string]*Snippet, len(t.Entities.Snippets)),
		},
		Result: append([]string(nil), t.Result...),
	}
	for id, src := range t.Entities.Sources {
		cp := *src
		cp.Items = append([]string(nil), src.Items...)
		out.Entities.Sources[id] = &cp
	}
	for id, item := range t.Entities.Items {
		cp := *item
		out.Entities.Items[id] = &cp
	}
	for id, sn := range t.Entities.Snippets {
		cp := *sn
		out.Entities.Snippets[id] = &cp
	}
	return out
}

func cloneQueueTable(t QueueTable) QueueTable {
	out := QueueTable{
		Entities: QueueEntities{
			PlaylistItems: make(map[string]*QueueEntry, len(t.Entities.PlaylistItems)),
			VideoItems:    make(map[string]*QueueEntry, len(t.Entities.VideoItems)),
		},
		Result: append([]QueueRef(nil), t.Result...),
	}
	for id, e := range t.Entities.PlaylistItems {
		cp := *e
		out.Entities.PlaylistItems[id] = &cp
	}
	for id, e := range t.Entities.VideoItems {
		cp := *e
		out.Entities.VideoItems[id] = &cp
	}
	return out
}

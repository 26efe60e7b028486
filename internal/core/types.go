// Package core implements the normalized playlist/queue consistency engine:
// three entity tables (playlists, videos, list-to-play queue), a single-writer
// mutation pipeline and a reactive coordinator that keeps the queue and the
// derived in-playing labels consistent with their source collections.
package core

// Schema tags the two kinds of queue entries. The set is closed; no runtime
// schema registry is involved.
type Schema string

const (
	SchemaPlaylistItems Schema = "playlistItems"
	SchemaVideoItems    Schema = "videoItems"
)

// SourceKind selects one of the two source tables.
type SourceKind string

const (
	KindPlaylists SourceKind = "playlists"
	KindVideos    SourceKind = "videos"
)

// ItemSchema returns the queue schema used for items of this source kind.
func (k SourceKind) ItemSchema() Schema {
	if k == KindPlaylists {
		return SchemaPlaylistItems
	}
	return SchemaVideoItems
}

// Snippet holds the content metadata of a playable unit. Snippets are
// deduplicated: two items referencing the same underlying content share one
// snippet record, so a snippet may outlive any individual item.
type Snippet struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Thumbnail   string `json:"thumbnail,omitempty"`
	// PlaylistID is set for playlist item snippets only; video snippets
	// leave it empty.
	PlaylistID string `json:"playlistId,omitempty"`
}

// Item is a reference to a snippet owned by exactly one source.
type Item struct {
	ID        string `json:"id"`
	SourceID  string `json:"sourceId"`
	SnippetID string `json:"snippetId"`
}

// Source is a playlist or a standalone video group: a named ordered
// collection of item ids plus the derived in-playing labels.
type Source struct {
	ID    string   `json:"id"`
	Name  string   `json:"name,omitempty"`
	Items []string `json:"items"`

	// Derived by the coordinator, never set directly by callers.
	AllInPlaying     bool `json:"allInPlaying"`
	PartialInPlaying bool `json:"partialInPlaying"`
}

// SourceEntities is the entity half of a normalized source table.
type SourceEntities struct {
	Sources  map[string]*Source  `json:"sources"`
	Items    map[string]*Item    `json:"items"`
	Snippets map[string]*Snippet `json:"snippets"`
}

// SourceTable is a normalized playlists or videos table: entity maps plus an
// ordered result list of source ids.
type SourceTable struct {
	Entities SourceEntities `json:"entities"`
	Result   []string       `json:"result"`
}

// QueueEntry is the queue-side record of an item: just enough to resolve
// back to its source table. For a standalone video the foreign key is the
// video's own id.
type QueueEntry struct {
	ID         string `json:"id"`
	ForeignKey string `json:"foreignKey"`
}

// QueueRef addresses one queue entry by id and schema. The queue's result
// list is an ordered sequence of refs (order = play order).
type QueueRef struct {
	ID     string `json:"id"`
	Schema Schema `json:"schema"`
}

// QueueEntities stores queue entries per schema.
type QueueEntities struct {
	PlaylistItems map[string]*QueueEntry `json:"playlistItems"`
	VideoItems    map[string]*QueueEntry `json:"videoItems"`
}

// BySchema returns the entry map for the given schema.
func (q QueueEntities) BySchema(schema Schema) map[string]*QueueEntry {
	if schema == SchemaPlaylistItems {
		return q.PlaylistItems
	}
	return q.VideoItems
}

// QueueTable is the normalized list-to-play collection.
type QueueTable struct {
	Entities QueueEntities `json:"entities"`
	Result   []QueueRef    `json:"result"`
}

// Candidate is one enqueue request: the ref to append plus the owning
// source id.
type Candidate struct {
	Ref        QueueRef
	ForeignKey string
}

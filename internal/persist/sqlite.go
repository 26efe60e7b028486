// Package persist stores snapshots of the entity tables in a sqlite file
// so the engine can rehydrate its state across restarts.
package persist

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"tubelist/internal/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS sources (
	kind       TEXT NOT NULL,
	id         TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	all_in_playing     INTEGER NOT NULL DEFAULT 0,
	partial_in_playing INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (kind, id)
);

CREATE TABLE IF NOT EXISTS source_items (
	kind       TEXT NOT NULL,
	id         TEXT NOT NULL,
	source_id  TEXT NOT NULL,
	snippet_id TEXT NOT NULL,
	position   INTEGER NOT NULL,
	PRIMARY KEY (kind, id)
);

CREATE TABLE IF NOT EXISTS snippets (
	kind        TEXT NOT NULL,
	id          TEXT NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	thumbnail   TEXT NOT NULL DEFAULT '',
	playlist_id TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (kind, id)
);

CREATE TABLE IF NOT EXISTS source_result (
	kind     TEXT NOT NULL,
	id       TEXT NOT NULL,
	position INTEGER NOT NULL,
	PRIMARY KEY (kind, id)
);

CREATE TABLE IF NOT EXISTS queue_entries (
	id          TEXT NOT NULL,
	schema      TEXT NOT NULL,
	foreign_key TEXT NOT NULL,
	position    INTEGER NOT NULL,
	PRIMARY KEY (schema, id)
);
`

// SnapshotStore persists and restores engine snapshots.
type SnapshotStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the snapshot database at path.
func Open(path string, logger *zap.Logger) (*SnapshotStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot db %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap snapshot schema: %w", err)
	}
	return &SnapshotStore{db: db, logger: logger}, nil
}

// Close releases the underlying database.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}

// Save replaces the persisted snapshot with the given state in one
// transaction.
func (s *SnapshotStore) Save(ctx context.Context, state *core.State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot save: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"sources", "source_items", "snippets", "source_result", "queue_entries"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}

	for _, kind := range []core.SourceKind{core.KindPlaylists, core.KindVideos} {
		if err := saveSourceTable(ctx, tx, kind, state.SourceTableOf(kind)); err != nil {
			return err
		}
	}
	if err := saveQueue(ctx, tx, &state.Queue); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot save: %w", err)
	}
	s.logger.Debug("Snapshot saved",
		zap.Int("playlists", len(state.Playlists.Entities.Sources)),
		zap.Int("videos", len(state.Videos.Entities.Sources)),
		zap.Int("queued", len(state.Queue.Result)))
	return nil
}

func saveSourceTable(ctx context.Context, tx *sql.Tx, kind core.SourceKind, table *core.SourceTable) error {
	for _, src := range table.Entities.Sources {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sources (kind, id, name, all_in_playing, partial_in_playing) VALUES (?, ?, ?, ?, ?)`,
			string(kind), src.ID, src.Name, boolToInt(src.AllInPlaying), boolToInt(src.PartialInPlaying),
		); err != nil {
			return fmt.Errorf("save source %s/%s: %w", kind, src.ID, err)
		}
		for pos, itemID := range src.Items {
			item, ok := table.Entities.Items[itemID]
			if !ok {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO source_items (kind, id, source_id, snippet_id, position) VALUES (?, ?, ?, ?, ?)`,
				string(kind), item.ID, item.SourceID, item.SnippetID, pos,
			); err != nil {
				return fmt.Errorf("save item %s/%s: %w", kind, item.ID, err)
			}
		}
	}
	for id, sn := range table.Entities.Snippets {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO snippets (kind, id, title, description, thumbnail, playlist_id) VALUES (?, ?, ?, ?, ?, ?)`,
			string(kind), id, sn.Title, sn.Description, sn.Thumbnail, sn.PlaylistID,
		); err != nil {
			return fmt.Errorf("save snippet %s/%s: %w", kind, id, err)
		}
	}
	for pos, id := range table.Result {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO source_result (kind, id, position) VALUES (?, ?, ?)`,
			string(kind), id, pos,
		); err != nil {
			return fmt.Errorf("save result %s/%s: %w", kind, id, err)
		}
	}
	return nil
}

func saveQueue(ctx context.Context, tx *sql.Tx, queue *core.QueueTable) error {
	for pos, ref := range queue.Result {
		entry, ok := queue.Entities.BySchema(ref.Schema)[ref.ID]
		if !ok {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO queue_entries (id, schema, foreign_key, position) VALUES (?, ?, ?, ?)`,
			entry.ID, string(ref.Schema), entry.ForeignKey, pos,
		); err != nil {
			return fmt.Errorf("save queue entry %s: %w", entry.ID, err)
		}
	}
	return nil
}

// Load reads the persisted snapshot back. An empty database yields an
// empty state; no migration logic runs on rehydration.
func (s *SnapshotStore) Load(ctx context.Context) (*core.State, error) {
	state := core.NewState()

	rows, err := s.db.QueryContext(ctx, `SELECT kind, id, name, all_in_playing, partial_in_playing FROM sources`)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind, id, name string
		var allIn, partial int
		if err := rows.Scan(&kind, &id, &name, &allIn, &partial); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		state.SourceTableOf(core.SourceKind(kind)).Entities.Sources[id] = &core.Source{
			ID:               id,
			Name:             name,
			AllInPlaying:     allIn != 0,
			PartialInPlaying: partial != 0,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}

	if err := s.loadItems(ctx, state); err != nil {
		return nil, err
	}
	if err := s.loadSnippets(ctx, state); err != nil {
		return nil, err
	}
	if err := s.loadResults(ctx, state); err != nil {
		return nil, err
	}
	if err := s.loadQueue(ctx, state); err != nil {
		return nil, err
	}
	return state.Normalize(), nil
}

func (s *SnapshotStore) loadItems(ctx context.Context, state *core.State) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, id, source_id, snippet_id FROM source_items ORDER BY source_id, position`)
	if err != nil {
		return fmt.Errorf("load items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind, id, sourceID, snippetID string
		if err := rows.Scan(&kind, &id, &sourceID, &snippetID); err != nil {
			return fmt.Errorf("scan item: %w", err)
		}
		table := state.SourceTableOf(core.SourceKind(kind))
		table.Entities.Items[id] = &core.Item{ID: id, SourceID: sourceID, SnippetID: snippetID}
		if src, ok := table.Entities.Sources[sourceID]; ok {
			src.Items = append(src.Items, id)
		}
	}
	return rows.Err()
}

func (s *SnapshotStore) loadSnippets(ctx context.Context, state *core.State) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, id, title, description, thumbnail, playlist_id FROM snippets`)
	if err != nil {
		return fmt.Errorf("load snippets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind, id, title, description, thumbnail, playlistID string
		if err := rows.Scan(&kind, &id, &title, &description, &thumbnail, &playlistID); err != nil {
			return fmt.Errorf("scan snippet: %w", err)
		}
		state.SourceTableOf(core.SourceKind(kind)).Entities.Snippets[id] = &core.Snippet{
			Title:       title,
			Description: description,
			Thumbnail:   thumbnail,
			PlaylistID:  playlistID,
		}
	}
	return rows.Err()
}

func (s *SnapshotStore) loadResults(ctx context.Context, state *core.State) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, id FROM source_result ORDER BY kind, position`)
	if err != nil {
		return fmt.Errorf("load results: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind, id string
		if err := rows.Scan(&kind, &id); err != nil {
			return fmt.Errorf("scan result: %w", err)
		}
		table := state.SourceTableOf(core.SourceKind(kind))
		table.Result = append(table.Result, id)
	}
	return rows.Err()
}

func (s *SnapshotStore) loadQueue(ctx context.Context, state *core.State) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, schema, foreign_key FROM queue_entries ORDER BY position`)
	if err != nil {
		return fmt.Errorf("load queue: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, schemaTag, foreignKey string
		if err := rows.Scan(&id, &schemaTag, &foreignKey); err != nil {
			return fmt.Errorf("scan queue entry: %w", err)
		}
		ref := core.QueueRef{ID: id, Schema: core.Schema(schemaTag)}
		state.Queue.Entities.BySchema(ref.Schema)[id] = &core.QueueEntry{ID: id, ForeignKey: foreignKey}
		state.Queue.Result = append(state.Queue.Result, ref)
	}
	return rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

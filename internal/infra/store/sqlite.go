// Package store provides the SQLite-backed catalog store.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog/log"

	"github.com/lyrebird-audio/lyrebird/internal/domain/catalog"
)

// CurrentSchemaVersion is the current database schema version.
const CurrentSchemaVersion = "1"

// DB is the SQLite implementation of catalog.Store.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens the catalog database at path and initializes the schema.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	d := &DB{db: db, path: path}
	if err := d.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().Str("path", path).Msg("Catalog database opened")
	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) initSchema() error {
	if err := d.createSchema(); err != nil {
		return err
	}

	current := d.getMeta("schema_version")
	if current == "" {
		return d.setMeta("schema_version", CurrentSchemaVersion)
	}
	if current != CurrentSchemaVersion {
		log.Info().
			Str("current", current).
			Str("target", CurrentSchemaVersion).
			Msg("Migrating catalog schema")
		// Add migration logic here when schema changes
		return d.setMeta("schema_version", CurrentSchemaVersion)
	}
	return nil
}

func (d *DB) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tracks (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		title TEXT NOT NULL,
		artist TEXT NOT NULL DEFAULT '',
		album TEXT NOT NULL DEFAULT '',
		duration_sec REAL NOT NULL DEFAULT 0,
		local_path TEXT NOT NULL DEFAULT '',
		download_path TEXT NOT NULL DEFAULT '',
		remote_url TEXT NOT NULL DEFAULT '',
		position_sec REAL NOT NULL DEFAULT 0,
		play_count INTEGER NOT NULL DEFAULT 0,
		last_played TEXT,
		completed INTEGER NOT NULL DEFAULT 0,
		favorite INTEGER NOT NULL DEFAULT 0,
		added_at TEXT,
		updated_at TEXT DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS store_meta (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at TEXT DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_tracks_kind ON tracks(kind);
	CREATE INDEX IF NOT EXISTS idx_tracks_title ON tracks(title COLLATE NOCASE);
	CREATE INDEX IF NOT EXISTS idx_tracks_added ON tracks(added_at DESC);
	CREATE INDEX IF NOT EXISTS idx_tracks_last_played ON tracks(last_played DESC);
	`

	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (d *DB) getMeta(key string) string {
	var value string
	if err := d.db.QueryRow("SELECT value FROM store_meta WHERE key = ?", key).Scan(&value); err != nil {
		return ""
	}
	return value
}

func (d *DB) setMeta(key, value string) error {
	now := time.Now().Format(time.RFC3339)
	_, err := d.db.Exec(`
		INSERT INTO store_meta (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = ?
	`, key, value, now, value, now)
	return err
}

// Track returns the track with the given ID, or (nil, nil) when absent.
func (d *DB) Track(id string) (*catalog.Track, error) {
	row := d.db.QueryRow(selectColumns+" FROM tracks WHERE id = ?", id)
	t, err := scanTrack(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// Save inserts or updates a track.
func (d *DB) Save(t *catalog.Track) error {
	now := time.Now().Format(time.RFC3339)
	lastPlayed := ""
	if !t.LastPlayed.IsZero() {
		lastPlayed = t.LastPlayed.Format(time.RFC3339)
	}
	addedAt := ""
	if !t.AddedAt.IsZero() {
		addedAt = t.AddedAt.Format(time.RFC3339)
	}

	_, err := d.db.Exec(`
		INSERT INTO tracks (id, kind, title, artist, album, duration_sec,
			local_path, download_path, remote_url,
			position_sec, play_count, last_played, completed, favorite, added_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = ?, title = ?, artist = ?, album = ?, duration_sec = ?,
			local_path = ?, download_path = ?, remote_url = ?,
			position_sec = ?, play_count = ?, last_played = ?, completed = ?, favorite = ?,
			added_at = COALESCE(tracks.added_at, ?), updated_at = ?
	`,
		t.ID, t.Kind, t.Title, t.Artist, t.Album, t.DurationSec,
		t.Source.LocalPath, t.Source.DownloadPath, t.Source.RemoteURL,
		t.PositionSec, t.PlayCount, lastPlayed, boolToInt(t.Completed), boolToInt(t.Favorite), addedAt, now,
		t.Kind, t.Title, t.Artist, t.Album, t.DurationSec,
		t.Source.LocalPath, t.Source.DownloadPath, t.Source.RemoteURL,
		t.PositionSec, t.PlayCount, lastPlayed, boolToInt(t.Completed), boolToInt(t.Favorite),
		addedAt, now,
	)
	return err
}

// All returns every track in the catalog in the given order.
func (d *DB) All(sort catalog.SortOrder) ([]*catalog.Track, error) {
	rows, err := d.db.Query(selectColumns + " FROM tracks " + orderClause(sort))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTracks(rows)
}

// ByKind returns every track of the given kind in the given order.
func (d *DB) ByKind(kind catalog.MediaKind, sort catalog.SortOrder) ([]*catalog.Track, error) {
	rows, err := d.db.Query(selectColumns+" FROM tracks WHERE kind = ? "+orderClause(sort), kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTracks(rows)
}

// Delete removes a track from the catalog.
func (d *DB) Delete(id string) error {
	_, err := d.db.Exec("DELETE FROM tracks WHERE id = ?", id)
	return err
}

const selectColumns = `SELECT id, kind, title, artist, album, duration_sec,
	local_path, download_path, remote_url,
	position_sec, play_count, last_played, completed, favorite, added_at`

func orderClause(sort catalog.SortOrder) string {
	switch sort {
	case catalog.SortRecentlyAdded:
		return "ORDER BY added_at DESC"
	case catalog.SortLastPlayed:
		return "ORDER BY last_played DESC"
	case catalog.SortMostPlayed:
		return "ORDER BY play_count DESC"
	default:
		return "ORDER BY title COLLATE NOCASE ASC"
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrack(row rowScanner) (*catalog.Track, error) {
	t := &catalog.Track{}
	var lastPlayed, addedAt sql.NullString
	var completed, favorite int

	err := row.Scan(
		&t.ID, &t.Kind, &t.Title, &t.Artist, &t.Album, &t.DurationSec,
		&t.Source.LocalPath, &t.Source.DownloadPath, &t.Source.RemoteURL,
		&t.PositionSec, &t.PlayCount, &lastPlayed, &completed, &favorite, &addedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Completed = completed != 0
	t.Favorite = favorite != 0
	if lastPlayed.Valid && lastPlayed.String != "" {
		t.LastPlayed, _ = time.Parse(time.RFC3339, lastPlayed.String)
	}
	if addedAt.Valid && addedAt.String != "" {
		t.AddedAt, _ = time.Parse(time.RFC3339, addedAt.String)
	}
	return t, nil
}

func scanTracks(rows *sql.Rows) ([]*catalog.Track, error) {
	var tracks []*catalog.Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

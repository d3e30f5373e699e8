package index

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the index in a SQLite database so stacks survive a
// restart.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Image workers add concurrently; one connection serializes them.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS images (
			region_id INTEGER NOT NULL,
			channel TEXT NOT NULL,
			path TEXT NOT NULL,
			slice INTEGER NOT NULL,
			tile_x INTEGER NOT NULL,
			tile_y INTEGER NOT NULL,
			timestep INTEGER NOT NULL,
			PRIMARY KEY (region_id, path)
		);`,
		`CREATE INDEX IF NOT EXISTS images_order ON images(region_id, channel, timestep, slice, tile_y, tile_x);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Add(rec ImageRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO images(region_id, channel, path, slice, tile_x, tile_y, timestep) VALUES(?,?,?,?,?,?,?)
		ON CONFLICT(region_id, path) DO UPDATE SET
			channel=excluded.channel, slice=excluded.slice, tile_x=excluded.tile_x,
			tile_y=excluded.tile_y, timestep=excluded.timestep`,
		rec.RegionID, rec.Channel, rec.Path, rec.Slice, rec.TileX, rec.TileY, rec.Timestep,
	)
	if err != nil {
		return fmt.Errorf("index image %s: %w", rec.Path, err)
	}
	return nil
}

func (s *SQLiteStore) Stack(regionID int) ([]ImageRecord, error) {
	rows, err := s.db.Query(
		`SELECT channel, path, slice, tile_x, tile_y, timestep FROM images WHERE region_id=?
		ORDER BY channel, timestep, slice, tile_y, tile_x, path`, regionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ImageRecord
	for rows.Next() {
		rec := ImageRecord{RegionID: regionID}
		if err := rows.Scan(&rec.Channel, &rec.Path, &rec.Slice, &rec.TileX, &rec.TileY, &rec.Timestep); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Reset(regionID int) error {
	_, err := s.db.Exec(`DELETE FROM images WHERE region_id=?`, regionID)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

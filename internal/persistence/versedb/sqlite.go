// Package versedb persists rooms and their ordered verse lists in sqlite.
// It is the durable side of the room coordinator: verses are appended in
// insertion order and replayed to rebuild a grid at hydration time.
package versedb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"versechain.app/internal/poem/grid"
)

type SQLiteStore struct {
	db *sql.DB
}

func Open(path string) (*SQLiteStore, error) {
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

func (s *SQLiteStore) Close() error { return s.db.Close() }

func initPragmas(db *sql.DB) error {
	// WAL suits the append-style verse log; NORMAL is enough durability for
	// state that is also mirrored in memory while anyone is connected.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
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
		`CREATE TABLE IF NOT EXISTS rooms (
			code TEXT PRIMARY KEY,
			creator TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			last_activity TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS verses (
			room_code TEXT NOT NULL,
			seq INTEGER NOT NULL,
			id TEXT NOT NULL,
			text TEXT NOT NULL,
			direction TEXT NOT NULL,
			anchor_x INTEGER NOT NULL,
			anchor_y INTEGER NOT NULL,
			color TEXT NOT NULL DEFAULT '',
			connected_to TEXT NOT NULL DEFAULT '[]',
			author TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (room_code, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_verses_room_id ON verses(room_code, id);`,
	}
	for _, q := range stmts {
		if _, err := db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) CreateRoom(ctx context.Context, code, creator string, createdAt time.Time) error {
	at := createdAt.UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms(code, creator, created_at, last_activity) VALUES(?, ?, ?, ?)`,
		code, creator, at, at)
	return err
}

func (s *SQLiteStore) RoomExists(ctx context.Context, code string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM rooms WHERE code = ?`, code).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) TouchRoom(ctx context.Context, code string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE rooms SET last_activity = ? WHERE code = ?`,
		at.UTC().Format(time.RFC3339), code)
	return err
}

func (s *SQLiteStore) DeleteRoom(ctx context.Context, code string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM verses WHERE room_code = ?`, code); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rooms WHERE code = ?`, code); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) AppendVerse(ctx context.Context, code string, v *grid.Verse) error {
	rec := v.ToV1()
	connected, err := json.Marshal(rec.ConnectedTo)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO verses(room_code, seq, id, text, direction, anchor_x, anchor_y, color, connected_to, author, created_at)
		 VALUES(?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM verses WHERE room_code = ?), ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		code, code, rec.ID, rec.Text, rec.Direction, rec.AnchorX, rec.AnchorY, rec.Color, string(connected), rec.Author, rec.CreatedAt)
	return err
}

func (s *SQLiteStore) UpdateVerseText(ctx context.Context, code, verseID, text string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE verses SET text = ? WHERE room_code = ? AND id = ?`,
		text, code, verseID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("verse %s not found in room %s", verseID, code)
	}
	return nil
}

func (s *SQLiteStore) ClearVerses(ctx context.Context, code string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM verses WHERE room_code = ?`, code)
	return err
}

// LoadRoomVerses returns the room's verses in original insertion order.
func (s *SQLiteStore) LoadRoomVerses(ctx context.Context, code string) ([]*grid.Verse, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, direction, anchor_x, anchor_y, color, connected_to, author, created_at
		 FROM verses WHERE room_code = ? ORDER BY seq ASC`, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*grid.Verse
	for rows.Next() {
		var rec grid.VerseV1
		var connected string
		if err := rows.Scan(&rec.ID, &rec.Text, &rec.Direction, &rec.AnchorX, &rec.AnchorY,
			&rec.Color, &connected, &rec.Author, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(connected), &rec.ConnectedTo); err != nil {
			return nil, fmt.Errorf("verse %s: bad connected_to: %w", rec.ID, err)
		}
		v, err := grid.VerseFromV1(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListRooms returns room codes ordered by last activity, newest first.
func (s *SQLiteStore) ListRooms(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code FROM rooms ORDER BY last_activity DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, rows.Err()
}

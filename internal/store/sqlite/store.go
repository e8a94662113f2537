// Package sqlite persists named board snapshots so a drawn canvas
// survives restarts. Conversations are deliberately not stored here.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"agentboard/internal/board"

	_ "modernc.org/sqlite"
)

// AutosaveSlot is the reserved snapshot name written on shutdown and
// offered back on the next start.
const AutosaveSlot = "autosave"

var ErrNotFound = errors.New("board snapshot not found")

const schema = `
CREATE TABLE IF NOT EXISTS board_snapshots (
	name TEXT PRIMARY KEY,
	document TEXT NOT NULL,
	box_count INTEGER NOT NULL DEFAULT 0,
	connection_count INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_board_snapshots_updated ON board_snapshots(updated_at);
`

// SnapshotInfo describes a stored snapshot without its document body.
type SnapshotInfo struct {
	Name        string
	Boxes       int
	Connections int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set sqlite pragma %q: %w", stmt, err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Save upserts a snapshot under name, keeping the original created_at on
// overwrite.
func (s *Store) Save(ctx context.Context, name string, snap board.Snapshot) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("save board: name is empty")
	}

	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode board document: %w", err)
	}

	now := time.Now().UTC().Unix()
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO board_snapshots(name, document, box_count, connection_count, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			document = excluded.document,
			box_count = excluded.box_count,
			connection_count = excluded.connection_count,
			updated_at = excluded.updated_at`,
		name, string(doc), len(snap.Boxes), len(snap.Connections), now, now,
	)
	if err != nil {
		return fmt.Errorf("save board %q: %w", name, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, name string) (board.Snapshot, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT document FROM board_snapshots WHERE name = ?`,
		name,
	)
	var doc string
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return board.Snapshot{}, fmt.Errorf("load board %q: %w", name, ErrNotFound)
		}
		return board.Snapshot{}, fmt.Errorf("load board %q: %w", name, err)
	}

	var snap board.Snapshot
	if err := json.Unmarshal([]byte(doc), &snap); err != nil {
		return board.Snapshot{}, fmt.Errorf("decode board %q: %w", name, err)
	}
	return snap, nil
}

func (s *Store) List(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT name, box_count, connection_count, created_at, updated_at
		FROM board_snapshots ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()

	result := make([]SnapshotInfo, 0)
	for rows.Next() {
		var info SnapshotInfo
		var created, updated int64
		if err := rows.Scan(&info.Name, &info.Boxes, &info.Connections, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan board info: %w", err)
		}
		info.CreatedAt = unixToTime(created)
		info.UpdatedAt = unixToTime(updated)
		result = append(result, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate boards: %w", err)
	}
	return result, nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM board_snapshots WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete board %q: %w", name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete board %q: %w", name, err)
	}
	if affected == 0 {
		return fmt.Errorf("delete board %q: %w", name, ErrNotFound)
	}
	return nil
}

// Rename moves a snapshot to a new name. The target must not exist.
func (s *Store) Rename(ctx context.Context, oldName string, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return fmt.Errorf("rename board: new name is empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx rename board: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM board_snapshots WHERE name = ?`, newName).Scan(&exists); err != nil {
		return fmt.Errorf("check board %q: %w", newName, err)
	}
	if exists > 0 {
		return fmt.Errorf("rename board: %q already exists", newName)
	}

	res, err := tx.ExecContext(
		ctx,
		`UPDATE board_snapshots SET name = ?, updated_at = ? WHERE name = ?`,
		newName, time.Now().UTC().Unix(), oldName,
	)
	if err != nil {
		return fmt.Errorf("rename board %q: %w", oldName, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rename board %q: %w", oldName, err)
	}
	if affected == 0 {
		return fmt.Errorf("rename board %q: %w", oldName, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rename board: %w", err)
	}
	return nil
}

func unixToTime(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}

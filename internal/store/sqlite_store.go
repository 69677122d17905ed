package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Status is the lifecycle state of a content record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Record is one piece of content: the story plus the media selections and
// produced artifacts.
type Record struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	StoryText     string    `json:"story_text"`
	BackgroundID  string    `json:"background_id"`
	MusicID       string    `json:"music_id"`
	VoiceoverPath string    `json:"voiceover_path,omitempty"`
	VideoPath     string    `json:"video_path,omitempty"`
	Status        Status    `json:"status"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

//go:embed migrations/*.sql
var migrationFiles embed.FS

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

// Create inserts a new record, filling timestamps and defaulting the status
// to pending when unset.
func (s *SQLiteStore) Create(ctx context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("record is nil")
	}
	if rec.ID == "" {
		return fmt.Errorf("record id is required")
	}
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO content (
			id, title, story_text, background_id, music_id, voiceover_path, video_path, status, error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Title,
		rec.StoryText,
		rec.BackgroundID,
		rec.MusicID,
		rec.VoiceoverPath,
		rec.VideoPath,
		string(rec.Status),
		rec.Error,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	return err
}

// Get loads one record. The second return is false when the id is unknown.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, title, story_text, background_id, music_id, voiceover_path, video_path, status, error, created_at, updated_at
		 FROM content
		 WHERE id = ?`,
		id,
	)
	rec, err := scanRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	return rec, true, nil
}

// List returns all records, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, title, story_text, background_id, music_id, voiceover_path, video_path, status, error, created_at, updated_at
		 FROM content
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

// SetSelections records the media chosen for a piece of content.
func (s *SQLiteStore) SetSelections(ctx context.Context, id, backgroundID, musicID string) error {
	return s.update(ctx, id,
		`UPDATE content SET background_id = ?, music_id = ?, updated_at = ? WHERE id = ?`,
		backgroundID, musicID, time.Now().UTC(), id)
}

// MarkProcessing flips the record into the processing state.
func (s *SQLiteStore) MarkProcessing(ctx context.Context, id string) error {
	return s.update(ctx, id,
		`UPDATE content SET status = ?, error = '', updated_at = ? WHERE id = ?`,
		string(StatusProcessing), time.Now().UTC(), id)
}

// MarkCompleted records the produced artifacts and completes the record.
func (s *SQLiteStore) MarkCompleted(ctx context.Context, id, videoPath, voiceoverPath string) error {
	return s.update(ctx, id,
		`UPDATE content SET status = ?, video_path = ?, voiceover_path = ?, error = '', updated_at = ? WHERE id = ?`,
		string(StatusCompleted), videoPath, voiceoverPath, time.Now().UTC(), id)
}

// MarkFailed records the failure reason.
func (s *SQLiteStore) MarkFailed(ctx context.Context, id, errMsg string) error {
	return s.update(ctx, id,
		`UPDATE content SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(StatusFailed), errMsg, time.Now().UTC(), id)
}

func (s *SQLiteStore) update(ctx context.Context, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("content %s not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var status string
	if err := row.Scan(
		&rec.ID,
		&rec.Title,
		&rec.StoryText,
		&rec.BackgroundID,
		&rec.MusicID,
		&rec.VoiceoverPath,
		&rec.VideoPath,
		&status,
		&rec.Error,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	return rec, nil
}

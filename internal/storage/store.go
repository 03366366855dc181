package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"crucible/internal/config"
)

// Artifact kinds tracked by the index.
const (
	KindUpload = "upload"
	KindFixed  = "fixed"
)

// ErrArtifactNotFound indicates no indexed artifact matches the query.
var ErrArtifactNotFound = errors.New("artifact not found")

// Record is one indexed artifact file.
type Record struct {
	ID        int64
	TaskID    string
	Kind      string
	Filename  string
	Path      string
	SizeBytes int64
	SHA256    string
	CreatedAt time.Time
}

// Store persists artifact files on disk and indexes them in SQLite. Task
// state itself is volatile; this index is what survives restarts.
type Store struct {
	db         *sql.DB
	path       string
	uploadDir  string
	derivedDir string
}

// Open initializes or connects to the artifact index and ensures the
// artifact directories exist.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Paths.IndexDB)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{
		db:         db,
		path:       cfg.Paths.IndexDB,
		uploadDir:  cfg.Paths.UploadDir,
		derivedDir: cfg.Paths.DerivedDir,
	}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveUpload writes a submitted artifact under the upload directory and
// indexes it.
func (s *Store) SaveUpload(ctx context.Context, taskID, filename, content string) (Record, error) {
	return s.save(ctx, taskID, KindUpload, s.uploadDir, filename, content)
}

// SaveFixed writes a corrected artifact under the derived directory and
// indexes it.
func (s *Store) SaveFixed(ctx context.Context, taskID, filename, content string) (Record, error) {
	return s.save(ctx, taskID, KindFixed, s.derivedDir, filename, content)
}

func (s *Store) save(ctx context.Context, taskID, kind, dir, filename, content string) (Record, error) {
	cleaned := SanitizeFilename(filename)
	if cleaned == "" {
		return Record{}, fmt.Errorf("save %s: unusable filename %q", kind, filename)
	}
	if strings.TrimSpace(taskID) == "" {
		return Record{}, fmt.Errorf("save %s: task id required", kind)
	}

	path := filepath.Join(dir, taskID+"_"+cleaned)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return Record{}, fmt.Errorf("write %s artifact: %w", kind, err)
	}

	digest := sha256.Sum256([]byte(content))
	record := Record{
		TaskID:    taskID,
		Kind:      kind,
		Filename:  cleaned,
		Path:      path,
		SizeBytes: int64(len(content)),
		SHA256:    hex.EncodeToString(digest[:]),
		CreatedAt: time.Now().UTC(),
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO artifacts (task_id, kind, filename, path, size_bytes, sha256, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.TaskID,
		record.Kind,
		record.Filename,
		record.Path,
		record.SizeBytes,
		record.SHA256,
		record.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Record{}, fmt.Errorf("index %s artifact: %w", kind, err)
	}
	record.ID, err = res.LastInsertId()
	if err != nil {
		return Record{}, fmt.Errorf("last insert id: %w", err)
	}
	return record, nil
}

// GetByTask returns the newest indexed artifact of the given kind for a task.
func (s *Store) GetByTask(ctx context.Context, taskID, kind string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, task_id, kind, filename, path, size_bytes, sha256, created_at
         FROM artifacts WHERE task_id = ? AND kind = ?
         ORDER BY id DESC LIMIT 1`,
		taskID, kind,
	)
	return scanRecord(row)
}

// ListByTask returns every indexed artifact for a task, oldest first.
func (s *Store) ListByTask(ctx context.Context, taskID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, kind, filename, path, size_bytes, sha256, created_at
         FROM artifacts WHERE task_id = ? ORDER BY id ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return records, nil
}

// ReadContent loads the file a record points at.
func (s *Store) ReadContent(record Record) (string, error) {
	data, err := os.ReadFile(record.Path)
	if err != nil {
		return "", fmt.Errorf("read artifact %s: %w", record.Path, err)
	}
	return string(data), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var record Record
	var createdAt string
	err := row.Scan(
		&record.ID,
		&record.TaskID,
		&record.Kind,
		&record.Filename,
		&record.Path,
		&record.SizeBytes,
		&record.SHA256,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrArtifactNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("scan artifact: %w", err)
	}
	record.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Record{}, fmt.Errorf("parse created_at: %w", err)
	}
	return record, nil
}

// SanitizeFilename strips directory components and characters that are not
// safe in artifact filenames. It returns an empty string when nothing
// usable remains.
func SanitizeFilename(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return ""
	}
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	cleaned := strings.Trim(b.String(), "._")
	if cleaned == "" {
		return ""
	}
	return b.String()
}

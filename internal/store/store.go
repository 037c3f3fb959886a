// Package store keeps session metadata in SQLite and session artifacts in a
// per-session directory on disk.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/KaramelBytes/insighto/internal/dataset"
	"github.com/KaramelBytes/insighto/internal/utils"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusUploaded  Status = "uploaded"
	StatusAnalyzing Status = "analyzing"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Terminal reports whether no further run may start from s.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusError }

// Artifact names inside a session directory.
const (
	ArtifactProfile  = "profile.json"
	ArtifactCharts   = "charts.json"
	ArtifactInsights = "insights.txt"
	ArtifactReport   = "report.json"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrArtifactNotFound = errors.New("artifact not found")
)

// Session is the metadata row of one upload.
type Session struct {
	ID         string    `json:"session_id"`
	Filename   string    `json:"filename"`
	Path       string    `json:"filepath"`
	UploadedAt time.Time `json:"uploaded_at"`
	Status     Status    `json:"status"`
}

const schema = `CREATE TABLE IF NOT EXISTS sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT UNIQUE NOT NULL,
	filename TEXT NOT NULL,
	filepath TEXT NOT NULL,
	uploaded_at TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'uploaded'
)`

// Store is safe for concurrent use.
type Store struct {
	db   *sql.DB
	root string
	now  func() time.Time
}

// Open opens or creates the database at dbPath and uses root for session
// directories.
func Open(ctx context.Context, root, dbPath string) (*Store, error) {
	if err := utils.EnsureDir(root); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	if err := utils.EnsureDir(filepath.Dir(dbPath)); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	// One connection keeps writers serialized inside the process.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	s := NewWithDB(db, root)
	if err := s.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing handle. The schema is not created; call Init.
func NewWithDB(db *sql.DB, root string) *Store {
	return &Store{db: db, root: root, now: time.Now}
}

// Init creates the sessions table if needed.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Root returns the storage root directory.
func (s *Store) Root() string { return s.root }

// SessionDir returns the artifact directory of a session.
func (s *Store) SessionDir(id string) string { return filepath.Join(s.root, id) }

func validID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	return nil
}

// CreateSession copies the file at src into a new session directory and
// registers it with status uploaded. filename is the display name; an empty
// one uses the base name of src.
func (s *Store) CreateSession(ctx context.Context, filename, src string) (*Session, error) {
	if filename == "" {
		filename = filepath.Base(src)
	}
	sess := &Session{
		ID:         uuid.NewString(),
		Filename:   filename,
		UploadedAt: s.now().UTC().Truncate(time.Second),
		Status:     StatusUploaded,
	}
	dir := s.SessionDir(sess.ID)
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	sess.Path = filepath.Join(dir, storedName(filename))
	if err := copyFile(src, sess.Path); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, filename, filepath, uploaded_at, status) VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.Filename, sess.Path, sess.UploadedAt.Format(time.RFC3339), string(sess.Status))
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("register session: %w", err)
	}
	return sess, nil
}

// storedName keeps the extension, which selects the loader.
func storedName(filename string) string {
	base := filepath.Base(filename)
	ext := strings.ToLower(filepath.Ext(base))
	return utils.SafeFileStem(strings.TrimSuffix(base, filepath.Ext(base))) + ext
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create session copy: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy upload: %w", err)
	}
	return out.Close()
}

// GetSession returns the metadata of a session.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, filename, filepath, uploaded_at, status FROM sessions WHERE session_id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, filename, filepath, uploaded_at, status FROM sessions ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

type scanner interface{ Scan(dest ...any) error }

func scanSession(r scanner) (*Session, error) {
	var sess Session
	var uploaded, status string
	if err := r.Scan(&sess.ID, &sess.Filename, &sess.Path, &uploaded, &status); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, uploaded)
	if err != nil {
		return nil, fmt.Errorf("uploaded_at %q: %w", uploaded, err)
	}
	sess.UploadedAt = t
	sess.Status = Status(status)
	return &sess, nil
}

// SetSessionStatus updates the status of a session.
func (s *Store) SetSessionStatus(ctx context.Context, id string, status Status) error {
	if err := validID(id); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET status = ? WHERE session_id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// CleanedPath is where the cleaned dataset of a session is written.
func (s *Store) CleanedPath(id string) string {
	return filepath.Join(s.SessionDir(id), id+"_cleaned.csv")
}

// SaveDataset writes the cleaned dataset of a session as CSV.
func (s *Store) SaveDataset(id string, d *dataset.Dataset) (string, error) {
	if err := validID(id); err != nil {
		return "", err
	}
	path := s.CleanedPath(id)
	if err := d.SaveCSV(path); err != nil {
		return "", fmt.Errorf("save cleaned dataset: %w", err)
	}
	return path, nil
}

// LoadDataset reads a dataset file through the loader registry.
func (s *Store) LoadDataset(path string) (*dataset.Dataset, error) {
	return dataset.Load(path)
}

// SaveArtifact writes one named artifact atomically.
func (s *Store) SaveArtifact(id, name string, data []byte) error {
	if err := validID(id); err != nil {
		return err
	}
	if err := utils.SafeWriteFile(filepath.Join(s.SessionDir(id), filepath.Base(name)), data); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

// LoadArtifact reads one named artifact.
func (s *Store) LoadArtifact(id, name string) ([]byte, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.SessionDir(id), filepath.Base(name)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	return data, nil
}

// ClearSession permanently deletes the session directory. The metadata row
// is kept so the session id stays resolvable.
func (s *Store) ClearSession(ctx context.Context, id string) error {
	if _, err := s.GetSession(ctx, id); err != nil {
		return err
	}
	if err := os.RemoveAll(s.SessionDir(id)); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Package sqlite is a persistent flat vector index on modernc.org/sqlite,
// a pure Go SQLite implementation. Vectors are stored as little-endian
// float64 blobs and ranked by brute-force L2 distance.
//
// All operations are safe for concurrent use; writes are serialised by
// SQLite in WAL mode.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver

	"docrag/internal/domain"
	"docrag/internal/vectorstore"
	"docrag/internal/vectorstore/sqlite/migrations"
)

const dimensionKey = "dimension"

// Storage implements domain.VectorIndex on a SQLite database file.
type Storage struct {
	db   *sql.DB
	path string

	mu        sync.RWMutex
	dimension int
}

// Open opens or creates the database at path and runs pending migrations.
func Open(path string) (*Storage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &Storage{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if err := s.loadDimension(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *Storage) Path() string { return s.path }

func (s *Storage) Close() error { return s.db.Close() }

// migrate runs all pending migrations.
func (s *Storage) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *Storage) loadDimension() error {
	var v string
	err := s.db.QueryRow("SELECT value FROM index_meta WHERE key = ?", dimensionKey).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading dimension: %w", err)
	}
	dim, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("corrupt dimension %q: %w", v, err)
	}
	s.dimension = dim
	return nil
}

// Ensure Storage implements the interface.
var _ domain.VectorIndex = (*Storage)(nil)

// Upsert writes all entries in one transaction.
func (s *Storage) Upsert(ctx context.Context, entries []domain.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dim, err := vectorstore.CheckDimension(s.dimension, entries)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (id, title, source_file, chunk_index, token_length, embedding_model, document, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			source_file = excluded.source_file,
			chunk_index = excluded.chunk_index,
			token_length = excluded.token_length,
			embedding_model = excluded.embedding_model,
			document = excluded.document,
			embedding = excluded.embedding
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		m := e.Metadata
		if _, err := stmt.ExecContext(ctx, e.ID, m.Title, m.SourceFile, m.ChunkIndex, m.TokenLength, m.EmbeddingModel, e.Document, encodeVector(e.Embedding)); err != nil {
			return fmt.Errorf("upsert %s: %w", e.ID, err)
		}
	}
	if dim != s.dimension {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO index_meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, dimensionKey, strconv.Itoa(dim)); err != nil {
			return fmt.Errorf("store dimension: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.dimension = dim
	return nil
}

const selectEntries = `SELECT id, title, source_file, chunk_index, token_length, embedding_model, document, embedding FROM entries`

func (s *Storage) Get(ctx context.Context, filter domain.Filter) ([]domain.IndexEntry, error) {
	query, args := selectEntries, []any{}
	if filter.Title != "" {
		query += " WHERE title = ?"
		args = append(args, filter.Title)
	}
	query += " ORDER BY title, chunk_index, id"
	return s.queryEntries(ctx, query, args...)
}

func (s *Storage) Query(ctx context.Context, vector []float64, k int) ([]domain.Match, error) {
	if err := vectorstore.CheckQuery(s.Dimension(), vector); err != nil {
		return nil, err
	}
	all, err := s.queryEntries(ctx, selectEntries)
	if err != nil {
		return nil, err
	}
	return vectorstore.Nearest(all, vector, k), nil
}

func (s *Storage) Delete(ctx context.Context, filter domain.Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if filter.Title == "" {
		_, err = s.db.ExecContext(ctx, "DELETE FROM entries")
	} else {
		_, err = s.db.ExecContext(ctx, "DELETE FROM entries WHERE title = ?", filter.Title)
	}
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&n); err != nil {
		return fmt.Errorf("count: %w", err)
	}
	if n == 0 {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM index_meta WHERE key = ?", dimensionKey); err != nil {
			return fmt.Errorf("reset dimension: %w", err)
		}
		s.dimension = 0
	}
	return nil
}

func (s *Storage) Titles(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT title FROM entries ORDER BY title")
	if err != nil {
		return nil, fmt.Errorf("titles: %w", err)
	}
	defer rows.Close()
	out := make([]string, 0)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func (s *Storage) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

func (s *Storage) queryEntries(ctx context.Context, query string, args ...any) ([]domain.IndexEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()
	out := make([]domain.IndexEntry, 0)
	for rows.Next() {
		var e domain.IndexEntry
		var blob []byte
		if err := rows.Scan(&e.ID, &e.Metadata.Title, &e.Metadata.SourceFile, &e.Metadata.ChunkIndex,
			&e.Metadata.TokenLength, &e.Metadata.EmbeddingModel, &e.Document, &blob); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Embedding = decodeVector(blob)
		out = append(out, e)
	}
	return out, rows.Err()
}

// encodeVector converts a []float64 to a little-endian byte slice.
func encodeVector(v []float64) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

// decodeVector converts a byte slice back to []float64.
func decodeVector(data []byte) []float64 {
	out := make([]float64, len(data)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return out
}

// Package doccache is the fast key-document store holding fields extracted from uploaded documents.
package doccache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"case-explainer/types"

	_ "modernc.org/sqlite"
)

// Store keeps one JSON document of extracted fields per case, backed by SQLite.
type Store struct {
	db     *sql.DB
	ttl    time.Duration
	now    func() time.Time
	hits   atomic.Int64
	misses atomic.Int64
}

// Stats mirrors what the store can report without scanning documents.
type Stats struct {
	Entries int64 `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

const createDocumentsTable = `
CREATE TABLE IF NOT EXISTS extracted_documents (
	case_id TEXT PRIMARY KEY,
	fields BLOB NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	ttl_seconds INTEGER NOT NULL
);
`

// New opens (or creates) the SQLite file at dbPath. ttl <= 0 keeps documents forever.
func New(dbPath string, ttl time.Duration) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create document cache dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open document cache db: %w", err)
	}
	// SQLite serializes writers anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createDocumentsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate document cache db: %w", err)
	}
	return &Store{db: db, ttl: ttl, now: time.Now}, nil
}

// GetExtractedFields returns (nil, nil) when the case has no live document.
func (s *Store) GetExtractedFields(ctx context.Context, caseID string) (types.ExtractedFields, error) {
	var raw []byte
	var createdAt time.Time
	var ttlSeconds int64

	err := s.db.QueryRowContext(ctx,
		`SELECT fields, created_at, ttl_seconds FROM extracted_documents WHERE case_id = ?`,
		caseID,
	).Scan(&raw, &createdAt, &ttlSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		s.misses.Add(1)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("document cache get: %w", err)
	}

	if ttlSeconds > 0 && s.now().Sub(createdAt) > time.Duration(ttlSeconds)*time.Second {
		s.misses.Add(1)
		return nil, nil
	}

	var fields types.ExtractedFields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode extracted fields for %s: %w", caseID, err)
	}
	s.hits.Add(1)
	return fields, nil
}

// PutExtractedFields replaces the document for a case.
func (s *Store) PutExtractedFields(ctx context.Context, caseID string, fields types.ExtractedFields) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode extracted fields: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO extracted_documents (case_id, fields, created_at, ttl_seconds)
		 VALUES (?, ?, ?, ?)`,
		caseID, data, s.now().UTC(), int64(s.ttl.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("document cache put: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, caseID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM extracted_documents WHERE case_id = ?`, caseID); err != nil {
		return fmt.Errorf("document cache delete: %w", err)
	}
	return nil
}

// PurgeExpired removes documents past their TTL and returns how many were dropped.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM extracted_documents
		 WHERE ttl_seconds > 0 AND (julianday('now') - julianday(created_at)) * 86400 > ttl_seconds`)
	if err != nil {
		return 0, fmt.Errorf("document cache purge: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM extracted_documents`).Scan(&count); err != nil {
		return Stats{}, fmt.Errorf("document cache stats: %w", err)
	}
	return Stats{Entries: count, Hits: s.hits.Load(), Misses: s.misses.Load()}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

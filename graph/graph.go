package graph

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// Graph is the relationship layer of a case: similar-case links and
// recommended support programs, stored as edges in Postgres.
type Graph struct {
	db      *sql.DB
	logger  *zap.Logger
	enabled bool
}

// Edge types
const (
	EdgeSimilarTo  = "similar_to"
	EdgeRecommends = "recommends"
)

// New creates a new Graph instance.
// If enabled is false, all operations will no-op gracefully.
func New(db *sql.DB, logger *zap.Logger, enabled bool) *Graph {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Graph{
		db:      db,
		logger:  logger,
		enabled: enabled,
	}
}

// Enabled returns whether the graph is enabled.
func (g *Graph) Enabled() bool {
	return g != nil && g.enabled
}

// EnsureSchema creates the edge, program and metadata tables.
func (g *Graph) EnsureSchema(ctx context.Context) error {
	if !g.Enabled() {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS programs (
            program_id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT ''
        )`,
		`CREATE TABLE IF NOT EXISTS case_edges (
            id UUID PRIMARY KEY,
            from_case TEXT NOT NULL,
            to_id TEXT NOT NULL,
            edge_type TEXT NOT NULL,
            weight DOUBLE PRECISION NOT NULL DEFAULT 0,
            metadata JSONB DEFAULT '{}'::jsonb,
            created_at TIMESTAMPTZ DEFAULT NOW(),
            UNIQUE (from_case, to_id, edge_type)
        )`,
		`CREATE INDEX IF NOT EXISTS idx_case_edges_from_type ON case_edges(from_case, edge_type)`,
		`CREATE TABLE IF NOT EXISTS graph_metadata (
            case_id TEXT PRIMARY KEY,
            last_sync_at TIMESTAMPTZ,
            status TEXT,
            edge_count INTEGER
        )`,
	}
	for _, stmt := range stmts {
		if _, err := g.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute graph schema statement: %w", err)
		}
	}
	return nil
}

// Ping reports whether the backing database is reachable. A disabled graph is always healthy.
func (g *Graph) Ping(ctx context.Context) error {
	if !g.Enabled() {
		return nil
	}
	return g.db.PingContext(ctx)
}

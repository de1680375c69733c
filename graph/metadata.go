package graph

import (
	"context"

	"go.uber.org/zap"
)

// TouchMetadata records when the edges of a case were last written and how many it has.
func (g *Graph) TouchMetadata(ctx context.Context, caseID string) error {
	if !g.Enabled() {
		return nil
	}
	query := `
        INSERT INTO graph_metadata (case_id, last_sync_at, status, edge_count)
        VALUES ($1, NOW(), 'synced', (SELECT COUNT(*) FROM case_edges WHERE from_case = $1))
        ON CONFLICT (case_id)
        DO UPDATE SET last_sync_at = EXCLUDED.last_sync_at, status = EXCLUDED.status, edge_count = EXCLUDED.edge_count
    `
	_, err := g.db.ExecContext(ctx, query, caseID)
	return err
}

// touch is TouchMetadata for callers that must not fail on it.
func (g *Graph) touch(ctx context.Context, caseID string) {
	if err := g.TouchMetadata(ctx, caseID); err != nil {
		g.logger.Warn("Failed to update graph metadata", zap.String("case_id", caseID), zap.Error(err))
	}
}

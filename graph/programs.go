package graph

import (
	"context"
	"fmt"

	"case-explainer/types"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// UpsertProgram registers a support program node.
func (g *Graph) UpsertProgram(ctx context.Context, p types.ProgramRef) error {
	if !g.Enabled() {
		return nil
	}
	query := `
		INSERT INTO programs (program_id, name, description)
		VALUES ($1, $2, $3)
		ON CONFLICT (program_id) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description
	`
	if _, err := g.db.ExecContext(ctx, query, p.ProgramID, p.Name, p.Description); err != nil {
		return fmt.Errorf("failed to upsert program %s: %w", p.ProgramID, err)
	}
	return nil
}

// LinkPrograms replaces the recommends edges of a case. scores is parallel to programIDs.
func (g *Graph) LinkPrograms(ctx context.Context, caseID string, programIDs []string, scores []float64) error {
	if !g.Enabled() {
		return nil
	}
	if len(programIDs) != len(scores) {
		return fmt.Errorf("program ids and scores differ in length: %d vs %d", len(programIDs), len(scores))
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM case_edges WHERE from_case = $1 AND edge_type = $2`, caseID, EdgeRecommends); err != nil {
		return fmt.Errorf("failed to clear program edges: %w", err)
	}

	if len(programIDs) > 0 {
		query := `
			INSERT INTO case_edges (id, from_case, to_id, edge_type, weight)
			SELECT gen_random_uuid(), $1, p.program_id, $2, p.score
			FROM unnest($3::text[], $4::float8[]) AS p(program_id, score)
			ON CONFLICT (from_case, to_id, edge_type) DO UPDATE SET weight = EXCLUDED.weight
		`
		if _, err := tx.ExecContext(ctx, query, caseID, EdgeRecommends, pq.Array(programIDs), pq.Array(scores)); err != nil {
			return fmt.Errorf("failed to link programs: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	g.logger.Debug("Linked programs to case",
		zap.String("case_id", caseID),
		zap.Strings("programs", programIDs))

	g.touch(ctx, caseID)
	return nil
}

// GetRecommendedPrograms returns the programs a case's decision recommends, best match first.
func (g *Graph) GetRecommendedPrograms(ctx context.Context, caseID string) ([]types.ProgramRef, error) {
	if !g.Enabled() {
		return nil, nil
	}

	query := `
		SELECT p.program_id, p.name, p.description, e.weight
		FROM case_edges e
		JOIN programs p ON p.program_id = e.to_id
		WHERE e.from_case = $1 AND e.edge_type = $2
		ORDER BY e.weight DESC, p.program_id
	`
	rows, err := g.db.QueryContext(ctx, query, caseID, EdgeRecommends)
	if err != nil {
		return nil, fmt.Errorf("failed to query recommended programs: %w", err)
	}
	defer rows.Close()

	var programs []types.ProgramRef
	for rows.Next() {
		var p types.ProgramRef
		if err := rows.Scan(&p.ProgramID, &p.Name, &p.Description, &p.MatchScore); err != nil {
			return nil, fmt.Errorf("failed to scan program row: %w", err)
		}
		programs = append(programs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating program rows: %w", err)
	}
	return programs, nil
}

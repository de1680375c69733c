package graph

import (
	"context"
	"fmt"

	"github.com/lib/pq"
)

// GetSimilar returns up to limit case ids linked to caseID by a similar_to edge,
// strongest first. (nil, nil) means the case has no neighbours.
func (g *Graph) GetSimilar(ctx context.Context, caseID string, limit int) ([]string, error) {
	if !g.Enabled() || limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT COALESCE(array_agg(to_id ORDER BY weight DESC, to_id), '{}')
		FROM (
			SELECT to_id, weight FROM case_edges
			WHERE from_case = $1 AND edge_type = $2
			ORDER BY weight DESC, to_id
			LIMIT $3
		) top
	`
	var ids pq.StringArray
	if err := g.db.QueryRowContext(ctx, query, caseID, EdgeSimilarTo, limit).Scan(&ids); err != nil {
		return nil, fmt.Errorf("failed to query similar cases: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return []string(ids), nil
}

// LinkSimilarCases rebuilds the similar_to edges of caseID from the applications table:
// cases with the same employment status whose monthly income differs by less than incomeBand.
// Weight falls off linearly with the income difference. Edges are written in both
// directions so earlier cases also see the new one. It returns the number of neighbours.
func (g *Graph) LinkSimilarCases(ctx context.Context, caseID string, incomeBand float64) (int64, error) {
	if !g.Enabled() {
		return 0, nil
	}
	if incomeBand <= 0 {
		return 0, fmt.Errorf("income band must be positive")
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM case_edges WHERE edge_type = $2 AND (from_case = $1 OR to_id = $1)`,
		caseID, EdgeSimilarTo); err != nil {
		return 0, fmt.Errorf("failed to clear similar edges: %w", err)
	}

	query := `
		INSERT INTO case_edges (id, from_case, to_id, edge_type, weight)
		SELECT gen_random_uuid(), a.case_id, b.case_id, $2,
		       1 - ABS(a.monthly_income - b.monthly_income) / $3
		FROM applications a
		JOIN applications b
		  ON b.case_id <> a.case_id
		 AND b.employment_status = a.employment_status
		 AND ABS(a.monthly_income - b.monthly_income) < $3
		WHERE a.case_id = $1
		ON CONFLICT (from_case, to_id, edge_type) DO NOTHING
		RETURNING to_id
	`
	rows, err := tx.QueryContext(ctx, query, caseID, EdgeSimilarTo, incomeBand)
	if err != nil {
		return 0, fmt.Errorf("failed to link similar cases: %w", err)
	}
	var neighbours []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan similar case: %w", err)
		}
		neighbours = append(neighbours, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating similar cases: %w", err)
	}

	reverse := `
		INSERT INTO case_edges (id, from_case, to_id, edge_type, weight)
		SELECT gen_random_uuid(), to_id, from_case, edge_type, weight
		FROM case_edges
		WHERE from_case = $1 AND edge_type = $2
		ON CONFLICT (from_case, to_id, edge_type) DO UPDATE SET weight = EXCLUDED.weight
	`
	if _, err := tx.ExecContext(ctx, reverse, caseID, EdgeSimilarTo); err != nil {
		return 0, fmt.Errorf("failed to link reverse similar edges: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	g.touch(ctx, caseID)
	for _, id := range neighbours {
		g.touch(ctx, id)
	}
	return int64(len(neighbours)), nil
}

// DeleteEdgesByCase deletes every edge leaving caseID and the similar_to edges pointing at it.
func (g *Graph) DeleteEdgesByCase(ctx context.Context, caseID string) (int64, error) {
	if !g.Enabled() {
		return 0, nil
	}

	result, err := g.db.ExecContext(ctx,
		`DELETE FROM case_edges WHERE from_case = $1 OR (to_id = $1 AND edge_type = $2)`,
		caseID, EdgeSimilarTo)
	if err != nil {
		return 0, fmt.Errorf("failed to delete edges: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return count, nil
}

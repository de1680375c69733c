package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"case-explainer/types"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

// Embedder turns text into an embedding vector.
type Embedder func(ctx context.Context, text string) ([]float32, error)

// VectorIndex is the similarity side of the store: one embedded summary per case.
type VectorIndex struct {
	store  *PostgresStore
	embed  Embedder
	logger *zap.Logger
}

func NewVectorIndex(store *PostgresStore, embed Embedder, logger *zap.Logger) *VectorIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VectorIndex{store: store, embed: embed, logger: logger}
}

// Search embeds queryText and returns the limit nearest case summaries by cosine distance.
func (v *VectorIndex) Search(ctx context.Context, queryText string, limit int) ([]types.SemanticMatch, error) {
	queryText = strings.TrimSpace(queryText)
	if queryText == "" || limit <= 0 {
		return nil, nil
	}
	if v.embed == nil {
		return nil, fmt.Errorf("vector search: no embedder configured")
	}
	vec, err := v.embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	const query = `
		SELECT case_id, document, metadata, embedding <=> $1 AS distance
		FROM case_embeddings
		ORDER BY embedding <=> $1
		LIMIT $2
	`
	rows, err := v.store.DB.QueryContext(ctx, query, pgvector.NewVector(vec), limit)
	if err != nil {
		return nil, fmt.Errorf("vector search query: %w", err)
	}
	defer rows.Close()

	var matches []types.SemanticMatch
	for rows.Next() {
		var m types.SemanticMatch
		var metaJSON []byte
		if err := rows.Scan(&m.CaseID, &m.Document, &metaJSON, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan vector match: %w", err)
		}
		m.ID = m.CaseID
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &m.Metadata); err != nil {
				v.logger.Warn("Failed to unmarshal embedding metadata", zap.String("case_id", m.CaseID), zap.Error(err))
			}
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vector rows: %w", err)
	}
	return matches, nil
}

// UpsertCaseEmbedding embeds document and stores it as the case's summary vector.
func (v *VectorIndex) UpsertCaseEmbedding(ctx context.Context, caseID, document string, metadata map[string]any) error {
	if v.embed == nil {
		return fmt.Errorf("upsert embedding: no embedder configured")
	}
	vec, err := v.embed(ctx, document)
	if err != nil {
		return fmt.Errorf("embed case %s: %w", caseID, err)
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal embedding metadata: %w", err)
	}

	const query = `
		INSERT INTO case_embeddings (case_id, document, metadata, embedding, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (case_id)
		DO UPDATE SET document = EXCLUDED.document, metadata = EXCLUDED.metadata,
		              embedding = EXCLUDED.embedding, updated_at = NOW()
	`
	if _, err := v.store.DB.ExecContext(ctx, query, caseID, document, string(metaJSON), pgvector.NewVector(vec)); err != nil {
		return fmt.Errorf("failed to upsert case embedding: %w", err)
	}
	return nil
}

// CaseSummary is the text embedded for a case. Keep it stable: changing it
// invalidates every stored vector.
func CaseSummary(app types.Application, decision *types.Decision) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Applicant %s, status %s. ", app.ApplicantName, app.Status)
	fmt.Fprintf(&b, "Monthly income %.0f, expenses %.0f, family size %d, employment %s. ",
		app.MonthlyIncome, app.MonthlyExpenses, app.FamilySize, app.EmploymentStatus)
	fmt.Fprintf(&b, "Assets %.0f, liabilities %.0f, credit score %d.",
		app.TotalAssets, app.TotalLiabilities, app.CreditScore)
	if decision != nil {
		fmt.Fprintf(&b, " Decision %s: %s", decision.Outcome, decision.Reasoning)
	}
	return b.String()
}

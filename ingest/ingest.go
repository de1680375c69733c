// Package ingest writes case records into the relational, document, vector and
// graph stores so the engine has something to retrieve.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"case-explainer/database"
	apperrors "case-explainer/errors"
	"case-explainer/types"

	"go.uber.org/zap"
)

// SimilarIncomeBand is the maximum monthly income difference between two
// similar cases with the same employment status.
const SimilarIncomeBand = 2000.0

// Record is one case as found in an import file.
type Record struct {
	Application     types.Application     `json:"application"`
	Decision        *types.Decision       `json:"decision,omitempty"`
	Validation      *types.Validation     `json:"validation,omitempty"`
	ExtractedFields types.ExtractedFields `json:"extracted_fields,omitempty"`
	Programs        []types.ProgramRef    `json:"programs,omitempty"`
}

type CaseWriter interface {
	UpsertApplication(ctx context.Context, app types.Application) error
	InsertDecision(ctx context.Context, d types.Decision) error
	InsertValidation(ctx context.Context, v types.Validation) error
}

type DocumentWriter interface {
	PutExtractedFields(ctx context.Context, caseID string, fields types.ExtractedFields) error
}

type EmbeddingWriter interface {
	UpsertCaseEmbedding(ctx context.Context, caseID, document string, metadata map[string]any) error
}

type GraphWriter interface {
	UpsertProgram(ctx context.Context, p types.ProgramRef) error
	LinkPrograms(ctx context.Context, caseID string, programIDs []string, scores []float64) error
	LinkSimilarCases(ctx context.Context, caseID string, incomeBand float64) (int64, error)
	TouchMetadata(ctx context.Context, caseID string) error
}

// Ingester fans a record out to every configured store. Only Cases is required.
type Ingester struct {
	Cases      CaseWriter
	Documents  DocumentWriter
	Embeddings EmbeddingWriter
	Graph      GraphWriter
	Logger     *zap.Logger
}

// Result summarizes one ingested record.
type Result struct {
	CaseID       string `json:"case_id"`
	SimilarEdges int64  `json:"similar_edges"`
	Programs     int    `json:"programs"`
	Embedded     bool   `json:"embedded"`
	// Warnings lists the secondary stores that could not be written.
	Warnings []string `json:"warnings,omitempty"`
}

// Decode reads a JSON array of records.
func Decode(r io.Reader) ([]Record, error) {
	var records []Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: decode records: %v", apperrors.ErrInvalidInput, err)
	}
	for i, rec := range records {
		if rec.Application.CaseID == "" {
			return nil, fmt.Errorf("%w: record %d has no case_id", apperrors.ErrInvalidInput, i)
		}
	}
	return records, nil
}

// Ingest writes rec. A relational failure aborts; the other stores only add warnings.
func (in *Ingester) Ingest(ctx context.Context, rec Record) (Result, error) {
	logger := in.logger()
	caseID := rec.Application.CaseID
	res := Result{CaseID: caseID}

	if err := in.Cases.UpsertApplication(ctx, rec.Application); err != nil {
		return res, apperrors.WrapError(err, "write application")
	}
	if rec.Decision != nil {
		d := *rec.Decision
		d.CaseID = caseID
		if err := in.Cases.InsertDecision(ctx, d); err != nil {
			return res, apperrors.WrapError(err, "write decision")
		}
	}
	if rec.Validation != nil {
		v := *rec.Validation
		v.CaseID = caseID
		if err := in.Cases.InsertValidation(ctx, v); err != nil {
			return res, apperrors.WrapError(err, "write validation")
		}
	}

	warn := func(store string, err error) {
		logger.Warn("Secondary store write failed", zap.String("store", store), zap.String("case_id", caseID), zap.Error(err))
		res.Warnings = append(res.Warnings, store)
	}

	if in.Documents != nil && len(rec.ExtractedFields) > 0 {
		if err := in.Documents.PutExtractedFields(ctx, caseID, rec.ExtractedFields); err != nil {
			warn("document_cache", err)
		}
	}

	if in.Embeddings != nil {
		meta := map[string]any{
			"status":            rec.Application.Status,
			"employment_status": rec.Application.EmploymentStatus,
			"monthly_income":    rec.Application.MonthlyIncome,
		}
		if rec.Decision != nil {
			meta["decision"] = rec.Decision.Outcome
		}
		if err := in.Embeddings.UpsertCaseEmbedding(ctx, caseID, database.CaseSummary(rec.Application, rec.Decision), meta); err != nil {
			warn("vector", err)
		} else {
			res.Embedded = true
		}
	}

	if in.Graph != nil {
		in.writeGraph(ctx, rec, &res, warn)
	}

	logger.Info("Ingested case",
		zap.String("case_id", caseID),
		zap.Int64("similar_edges", res.SimilarEdges),
		zap.Int("programs", res.Programs),
		zap.Strings("warnings", res.Warnings))
	return res, nil
}

func (in *Ingester) writeGraph(ctx context.Context, rec Record, res *Result, warn func(string, error)) {
	caseID := rec.Application.CaseID

	ids := make([]string, 0, len(rec.Programs))
	scores := make([]float64, 0, len(rec.Programs))
	for _, p := range rec.Programs {
		if err := in.Graph.UpsertProgram(ctx, p); err != nil {
			warn("graph", err)
			return
		}
		ids = append(ids, p.ProgramID)
		scores = append(scores, p.MatchScore)
	}
	if err := in.Graph.LinkPrograms(ctx, caseID, ids, scores); err != nil {
		warn("graph", err)
		return
	}
	res.Programs = len(ids)

	n, err := in.Graph.LinkSimilarCases(ctx, caseID, SimilarIncomeBand)
	if err != nil {
		warn("graph", err)
		return
	}
	res.SimilarEdges = n

	if err := in.Graph.TouchMetadata(ctx, caseID); err != nil {
		warn("graph", err)
	}
}

// IngestAll writes every record, stopping at the first relational failure.
func (in *Ingester) IngestAll(ctx context.Context, records []Record) ([]Result, error) {
	results := make([]Result, 0, len(records))
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := in.Ingest(ctx, rec)
		if err != nil {
			return results, fmt.Errorf("case %s: %w", rec.Application.CaseID, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (in *Ingester) logger() *zap.Logger {
	if in.Logger == nil {
		return zap.NewNop()
	}
	return in.Logger
}

package rag

import (
	"context"

	"case-explainer/llmclient"
	"case-explainer/types"
)

// Every source follows the same contract: (nil, nil) means the store answered
// and had nothing for the case; a non-nil error means the store could not answer.

// RelationalSource is the system of record. Application and decision reads are mandatory.
type RelationalSource interface {
	GetApplication(ctx context.Context, caseID string) (*types.Application, error)
	GetDecision(ctx context.Context, caseID string) (*types.Decision, error)
	GetLatestValidation(ctx context.Context, caseID string) (*types.Validation, error)
}

// DocumentSource serves fields extracted from uploaded documents.
type DocumentSource interface {
	GetExtractedFields(ctx context.Context, caseID string) (types.ExtractedFields, error)
}

// VectorSource finds semantically similar case summaries.
type VectorSource interface {
	Search(ctx context.Context, queryText string, limit int) ([]types.SemanticMatch, error)
}

// GraphSource serves case relationships.
type GraphSource interface {
	GetSimilar(ctx context.Context, caseID string, limit int) ([]string, error)
	GetRecommendedPrograms(ctx context.Context, caseID string) ([]types.ProgramRef, error)
}

// TextGenerator is the external completion service.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string, opts llmclient.Options) (string, error)
}

// HistoryStore persists conversation turns.
type HistoryStore interface {
	StoreConversation(ctx context.Context, turn types.ConversationTurn) error
	GetConversation(ctx context.Context, caseID string, limit int) ([]types.ConversationTurn, error)
}

// Pinger is anything whose reachability can be checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Sources bundles the four retrieval stores. Only Relational is required;
// a nil optional source reads as empty.
type Sources struct {
	Relational RelationalSource
	Documents  DocumentSource
	Vectors    VectorSource
	Graph      GraphSource
}

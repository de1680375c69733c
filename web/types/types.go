package types

import (
	"time"

	"case-explainer/rag"
	domain "case-explainer/types"
)

// AnswerRequest is the body of POST /api/cases/:caseID/answer.
type AnswerRequest struct {
	Question string `json:"question" form:"question"`
}

// AnswerResponse is what the chat front end renders.
type AnswerResponse struct {
	CaseID          string    `json:"case_id"`
	Question        string    `json:"question"`
	Answer          string    `json:"answer"`
	Confidence      float64   `json:"confidence"`
	Sources         []string  `json:"sources"`
	QueryType       string    `json:"query_type"`
	Degraded        bool      `json:"degraded"`
	ServedFromCache bool      `json:"served_from_cache"`
	LatencyMs       int64     `json:"latency_ms"`
	CreatedAt       time.Time `json:"created_at"`
	// GenerationError is set when Answer is the fallback apology.
	GenerationError string `json:"generation_error,omitempty"`
}

func NewAnswerResponse(a *rag.GeneratedAnswer) AnswerResponse {
	return AnswerResponse{
		CaseID:          a.CaseID,
		Question:        a.Question,
		Answer:          a.Text,
		Confidence:      a.Confidence,
		Sources:         a.Sources,
		QueryType:       string(a.QueryType),
		Degraded:        a.Degraded,
		ServedFromCache: a.ServedFromCache,
		LatencyMs:       a.LatencyMs,
		CreatedAt:       a.CreatedAt,
	}
}

// InvalidateResponse reports how many cached answers were dropped.
type InvalidateResponse struct {
	CaseID         string `json:"case_id"`
	AnswersRemoved int    `json:"answers_removed"`
}

// HistoryResponse lists the stored turns of a case, oldest first.
type HistoryResponse struct {
	CaseID string                    `json:"case_id"`
	Turns  []domain.ConversationTurn `json:"turns"`
}

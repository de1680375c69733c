// Package types holds the records returned by the retrieval sources.
package types

import (
	"time"
)

// Application is the relational record of a benefits application.
type Application struct {
	CaseID           string    `json:"case_id"`
	ApplicantName    string    `json:"applicant_name"`
	Status           string    `json:"status"`
	MonthlyIncome    float64   `json:"monthly_income"`
	MonthlyExpenses  float64   `json:"monthly_expenses"`
	FamilySize       int       `json:"family_size"`
	EmploymentStatus string    `json:"employment_status"`
	CompanyName      string    `json:"company_name"`
	CurrentPosition  string    `json:"current_position"`
	TotalAssets      float64   `json:"total_assets"`
	TotalLiabilities float64   `json:"total_liabilities"`
	CreditScore      int       `json:"credit_score"`
	CreditRating     string    `json:"credit_rating"`
	SubmittedAt      time.Time `json:"submission_date"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Fields flattens the application for ranking and prompt rendering.
func (a *Application) Fields() map[string]any {
	if a == nil {
		return nil
	}
	f := map[string]any{
		"case_id":           a.CaseID,
		"applicant_name":    a.ApplicantName,
		"status":            a.Status,
		"monthly_income":    a.MonthlyIncome,
		"monthly_expenses":  a.MonthlyExpenses,
		"family_size":       a.FamilySize,
		"employment_status": a.EmploymentStatus,
		"company_name":      a.CompanyName,
		"current_position":  a.CurrentPosition,
		"total_assets":      a.TotalAssets,
		"total_liabilities": a.TotalLiabilities,
		"credit_score":      a.CreditScore,
		"credit_rating":     a.CreditRating,
	}
	putTime(f, "submission_date", a.SubmittedAt)
	putTime(f, "updated_at", a.UpdatedAt)
	return f
}

// Decision is the eligibility outcome recorded for a case.
type Decision struct {
	DecisionID     string    `json:"decision_id"`
	CaseID         string    `json:"case_id"`
	Outcome        string    `json:"decision"`
	PolicyScore    float64   `json:"policy_score"`
	Priority       string    `json:"priority"`
	Reasoning      string    `json:"reasoning"`
	SupportType    string    `json:"support_type"`
	SupportAmount  float64   `json:"support_amount"`
	DurationMonths int       `json:"duration_months"`
	Conditions     []string  `json:"conditions"`
	DecidedAt      time.Time `json:"decision_date"`
}

func (d *Decision) Fields() map[string]any {
	if d == nil {
		return nil
	}
	f := map[string]any{
		"case_id":         d.CaseID,
		"decision_id":     d.DecisionID,
		"decision":        d.Outcome,
		"policy_score":    d.PolicyScore,
		"priority":        d.Priority,
		"reasoning":       d.Reasoning,
		"support_type":    d.SupportType,
		"support_amount":  d.SupportAmount,
		"duration_months": d.DurationMonths,
		"conditions":      d.Conditions,
	}
	putTime(f, "decision_date", d.DecidedAt)
	return f
}

// Validation is the latest document-validation result for a case.
type Validation struct {
	CaseID      string    `json:"case_id"`
	Status      string    `json:"status"`
	Score       float64   `json:"score"`
	Issues      []string  `json:"issues"`
	ValidatedAt time.Time `json:"validated_at"`
}

func (v *Validation) Fields() map[string]any {
	if v == nil {
		return nil
	}
	f := map[string]any{
		"case_id":           v.CaseID,
		"validation_status": v.Status,
		"validation_score":  v.Score,
		"issues":            v.Issues,
	}
	putTime(f, "validated_at", v.ValidatedAt)
	return f
}

// ExtractedFields are the key/value pairs pulled from uploaded documents.
type ExtractedFields map[string]any

// SemanticMatch is one hit from the vector index. Smaller Distance is closer.
type SemanticMatch struct {
	ID       string         `json:"id"`
	CaseID   string         `json:"case_id"`
	Distance float64        `json:"distance"`
	Document string         `json:"document"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ProgramRef points at a support program recommended for a case.
type ProgramRef struct {
	ProgramID   string  `json:"program_id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	MatchScore  float64 `json:"match_score"`
}

// ConversationTurn is one question/answer exchange persisted for a case.
type ConversationTurn struct {
	ID         string    `json:"id"`
	CaseID     string    `json:"case_id"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Confidence float64   `json:"confidence"`
	Cached     bool      `json:"cached"`
	CreatedAt  time.Time `json:"created_at"`
}

func putTime(f map[string]any, key string, t time.Time) {
	if !t.IsZero() {
		f[key] = t.UTC().Format(time.RFC3339)
	}
}

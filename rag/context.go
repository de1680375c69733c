package rag

import (
	"strings"
	"time"

	"case-explainer/types"
)

// CaseContext is everything retrieved for one case. Instances held by the
// context cache are never mutated; updates go through clone.
type CaseContext struct {
	CaseID              string
	Application         *types.Application
	Decision            *types.Decision
	Validation          *types.Validation
	ExtractedFields     types.ExtractedFields
	SimilarCases        []string
	SemanticMatches     []types.SemanticMatch
	RecommendedPrograms []types.ProgramRef

	HasRealData      bool
	IsFullyProcessed bool
	// SemanticFetched is true once a vector lookup succeeded for this context.
	SemanticFetched bool
	// Degradations names the optional sources that failed while building the context.
	Degradations []string
	BuiltAt      time.Time
}

var processedStatuses = map[string]bool{
	"PROCESSED": true,
	"COMPLETED": true,
	"APPROVED":  true,
	"DECLINED":  true,
	"DECIDED":   true,
}

// hasRealData is true when any substantive applicant figure has been extracted.
func hasRealData(app *types.Application) bool {
	if app == nil {
		return false
	}
	employment := strings.ToLower(strings.TrimSpace(app.EmploymentStatus))
	return app.MonthlyIncome > 0 ||
		app.MonthlyExpenses > 0 ||
		app.CreditScore > 0 ||
		(employment != "" && employment != "unknown")
}

func isFullyProcessed(app *types.Application) bool {
	if app == nil {
		return false
	}
	return processedStatuses[strings.ToUpper(strings.TrimSpace(app.Status))]
}

// clone copies the context deeply enough that appending to or replacing any
// slice on the copy leaves the original untouched.
func (c *CaseContext) clone() *CaseContext {
	cp := *c
	cp.SimilarCases = append([]string(nil), c.SimilarCases...)
	cp.SemanticMatches = append([]types.SemanticMatch(nil), c.SemanticMatches...)
	cp.RecommendedPrograms = append([]types.ProgramRef(nil), c.RecommendedPrograms...)
	cp.Degradations = append([]string(nil), c.Degradations...)
	return &cp
}

func (c *CaseContext) degraded(source string) {
	for _, d := range c.Degradations {
		if d == source {
			return
		}
	}
	c.Degradations = append(c.Degradations, source)
}

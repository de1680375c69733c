package rag

import (
	"regexp"
	"strings"
)

// keywordCategory groups terms that signal one topic in a question and in retrieved data.
type keywordCategory struct {
	name  string
	terms []string
}

// keywordCategories is the only keyword taxonomy. The ranker and the question
// classifier both read it.
var keywordCategories = []keywordCategory{
	{"income", []string{"monthly_income", "income", "salary", "earnings"}},
	{"decision", []string{"decision", "approved", "declined", "eligibility"}},
	{"family", []string{"family_size", "dependents", "children"}},
	{"assets", []string{"total_assets", "assets", "property", "savings"}},
	{"debt", []string{"total_liabilities", "debt", "liabilities", "loans"}},
	{"employment", []string{"employment_status", "job", "work", "employer"}},
	{"credit", []string{"credit_score", "credit", "rating"}},
}

// comparisonKeywords trigger the vector lookup.
var comparisonKeywords = []string{"similar", "compare", "like", "other", "examples", "same"}

var comparisonPattern = regexp.MustCompile(`\b(` + strings.Join(comparisonKeywords, "|") + `)\b`)

// HasComparisonIntent reports whether the question asks about other cases.
// Matching is whole-word and case-insensitive.
func HasComparisonIntent(question string) bool {
	return comparisonPattern.MatchString(strings.ToLower(question))
}

// matchedCategories returns the categories with a term in both question and text.
// Both arguments must already be lowercase. Matching is by substring.
func matchedCategories(question, text string) int {
	n := 0
	for _, cat := range keywordCategories {
		if containsAny(question, cat.terms) && containsAny(text, cat.terms) {
			n++
		}
	}
	return n
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// QueryType selects the system instruction of a normal prompt.
type QueryType string

const (
	QueryGeneral     QueryType = "general"
	QueryExplanation QueryType = "explanation"
	QuerySimulation  QueryType = "simulation"
)

var (
	simulationPattern  = regexp.MustCompile(`\b(what if|what would|would i|if i|if my|suppose|hypothetical(ly)?|scenario)\b`)
	explanationPattern = regexp.MustCompile(`\b(why|explain|reason|reasons|how come|because)\b`)
)

// ClassifyQuestion picks the query type from the question text. Simulation wins over explanation.
func ClassifyQuestion(question string) QueryType {
	q := strings.ToLower(question)
	switch {
	case simulationPattern.MatchString(q):
		return QuerySimulation
	case explanationPattern.MatchString(q):
		return QueryExplanation
	default:
		return QueryGeneral
	}
}

package rag

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Fragment names
const (
	FragmentApplication     = "application"
	FragmentDecision        = "decision"
	FragmentValidation      = "validation"
	FragmentDocuments       = "extracted_documents"
	FragmentSimilarCases    = "similar_cases"
	FragmentSemanticMatches = "semantic_matches"
	FragmentGraph           = "graph_relations"
)

// RelevanceThreshold is the score a ranked fragment must exceed to reach the prompt.
const RelevanceThreshold = 0.3

const (
	keywordWeight      = 0.4
	completenessWeight = 0.3
	recencyWeight      = 0.2
	criticalWeight     = 0.1
)

var recencyKeys = []string{
	"timestamp", "created_at", "updated_at", "decision_date",
	"submission_date", "extracted_at", "validated_at",
}

var criticalKeys = []string{"case_id", "decision", "monthly_income"}

// RankedFragment is one named piece of context with its relevance score.
// Map-shaped fragments carry Fields; list-shaped ones carry Items.
type RankedFragment struct {
	Source         string
	Fields         map[string]any
	Items          []string
	Score          float64
	AlwaysIncluded bool
	// Comparison marks fragments fetched because the question asked for comparisons.
	Comparison bool
}

// text is the lowercase rendering used for keyword matching.
func (f RankedFragment) text() string {
	var b strings.Builder
	for _, k := range sortedKeys(f.Fields) {
		fmt.Fprintf(&b, "%s: %v\n", k, f.Fields[k])
	}
	for _, item := range f.Items {
		b.WriteString(item)
		b.WriteByte('\n')
	}
	return strings.ToLower(b.String())
}

// ScoreFragment applies the weighted relevance rubric. Completeness, recency and
// critical coverage only apply to map-shaped fragments.
func ScoreFragment(question string, f RankedFragment) float64 {
	q := strings.ToLower(question)
	score := keywordWeight * float64(matchedCategories(q, f.text())) / float64(len(keywordCategories))

	if f.Fields != nil && len(f.Fields) > 0 {
		nonEmpty := 0
		for _, v := range f.Fields {
			if !isEmptyValue(v) {
				nonEmpty++
			}
		}
		score += completenessWeight * float64(nonEmpty) / float64(len(f.Fields))

		for _, k := range recencyKeys {
			if v, ok := f.Fields[k]; ok && !isEmptyValue(v) {
				score += recencyWeight
				break
			}
		}

		present := 0
		for _, k := range criticalKeys {
			if v, ok := f.Fields[k]; ok && !isEmptyValue(v) {
				present++
			}
		}
		score += criticalWeight * float64(present) / float64(len(criticalKeys))
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// isEmptyValue treats nil, zero values and empty collections as empty.
func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array, reflect.String:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	default:
		return rv.IsZero()
	}
}

// fragments splits a context into named fragments. Empty sources produce none.
func fragments(cc *CaseContext) []RankedFragment {
	var out []RankedFragment
	if cc.Application != nil {
		out = append(out, RankedFragment{Source: FragmentApplication, Fields: cc.Application.Fields(), AlwaysIncluded: true})
	}
	if cc.Decision != nil {
		out = append(out, RankedFragment{Source: FragmentDecision, Fields: cc.Decision.Fields(), AlwaysIncluded: true})
	}
	if cc.Validation != nil {
		out = append(out, RankedFragment{Source: FragmentValidation, Fields: cc.Validation.Fields()})
	}
	if len(cc.ExtractedFields) > 0 {
		fields := make(map[string]any, len(cc.ExtractedFields))
		for k, v := range cc.ExtractedFields {
			fields[k] = v
		}
		out = append(out, RankedFragment{Source: FragmentDocuments, Fields: fields})
	}
	if len(cc.SimilarCases) > 0 {
		out = append(out, RankedFragment{Source: FragmentSimilarCases, Fields: similarCaseFields(cc)})
	}
	if len(cc.SemanticMatches) > 0 {
		items := make([]string, 0, len(cc.SemanticMatches))
		for _, m := range cc.SemanticMatches {
			items = append(items, fmt.Sprintf("%s (distance %.3f): %s", m.CaseID, m.Distance, m.Document))
		}
		out = append(out, RankedFragment{Source: FragmentSemanticMatches, Items: items, Comparison: true})
	}
	if len(cc.RecommendedPrograms) > 0 {
		names := make([]string, 0, len(cc.RecommendedPrograms))
		for _, p := range cc.RecommendedPrograms {
			names = append(names, p.Name)
		}
		out = append(out, RankedFragment{Source: FragmentGraph, Fields: map[string]any{
			"case_id":              cc.CaseID,
			"recommended_programs": names,
		}})
	}
	return out
}

// similarCaseFields describes the neighbours together with the attributes they were
// matched on, so the fragment carries the same signals as the applicant's own record.
func similarCaseFields(cc *CaseContext) map[string]any {
	fields := map[string]any{
		"case_id":          cc.CaseID,
		"similar_case_ids": append([]string(nil), cc.SimilarCases...),
		"matched_on":       "same employment status and a close monthly income",
	}
	if app := cc.Application; app != nil {
		fields["employment_status"] = app.EmploymentStatus
		fields["monthly_income"] = app.MonthlyIncome
	}
	return fields
}

// Rank scores every fragment of cc and drops those at or below the threshold.
// Always-included fragments come first, then the rest by descending score.
func Rank(question string, cc *CaseContext) []RankedFragment {
	if cc == nil {
		return nil
	}
	var kept []RankedFragment
	for _, f := range fragments(cc) {
		if f.AlwaysIncluded {
			f.Score = 1
			kept = append(kept, f)
			continue
		}
		f.Score = ScoreFragment(question, f)
		if f.Comparison || f.Score > RelevanceThreshold {
			kept = append(kept, f)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].AlwaysIncluded != kept[j].AlwaysIncluded {
			return kept[i].AlwaysIncluded
		}
		if kept[i].AlwaysIncluded {
			return false
		}
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		return kept[i].Source < kept[j].Source
	})
	return kept
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

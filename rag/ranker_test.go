package rag

import (
	"strings"
	"testing"

	"case-explainer/types"

	"pgregory.net/rapid"
)

func TestScoreFragment(t *testing.T) {
	tests := []struct {
		name     string
		question string
		frag     RankedFragment
		want     float64
	}{
		{
			name:     "items_without_keywords",
			question: "why was I approved",
			frag:     RankedFragment{Source: FragmentSimilarCases, Items: []string{"APP-1", "APP-2"}},
			want:     0,
		},
		{
			name:     "items_with_one_category",
			question: "why was I approved",
			frag:     RankedFragment{Source: FragmentSimilarCases, Items: []string{"APP-1 approved"}},
			want:     0.4 / 7,
		},
		{
			name:     "half_complete_no_recency",
			question: "hello",
			frag: RankedFragment{Source: FragmentDocuments, Fields: map[string]any{
				"employer": "ACME",
				"notes":    "",
			}},
			want: 0.15,
		},
		{
			name:     "complete_recent_critical",
			question: "what about my income and credit",
			frag: RankedFragment{Source: FragmentDocuments, Fields: map[string]any{
				"monthly_income": 4000.0,
				"credit_score":   700,
				"case_id":        "APP-1",
				"decision":       "APPROVED",
				"created_at":     "2026-01-01T00:00:00Z",
			}},
			// keywords 2/7, completeness 1, recency 1, critical 3/3
			want: 0.4*2/7 + 0.3 + 0.2 + 0.1,
		},
		{
			name:     "keys_count_as_text",
			question: "what about my dependents",
			frag: RankedFragment{Source: FragmentDocuments, Fields: map[string]any{
				"dependents": 0,
			}},
			want: 0.4 / 7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreFragment(tt.question, tt.frag)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("ScoreFragment() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRankOrdersAndFilters(t *testing.T) {
	cc := &CaseContext{
		CaseID:      "APP-1",
		Application: processedApplication("APP-1"),
		Decision:    approvedDecision("APP-1"),
		Validation:  &types.Validation{CaseID: "APP-1", Status: "VALID"},
		ExtractedFields: types.ExtractedFields{
			"monthly_income": 5000.0,
			"case_id":        "APP-1",
			"extracted_at":   "2026-03-02T00:00:00Z",
		},
		SimilarCases: []string{"APP-7"},
		SemanticMatches: []types.SemanticMatch{
			{CaseID: "APP-9", Distance: 0.2, Document: "unrelated"},
		},
	}

	got := Rank("what is my income", cc)

	var sources []string
	for _, f := range got {
		sources = append(sources, f.Source)
	}
	want := []string{FragmentApplication, FragmentDecision, FragmentDocuments, FragmentSimilarCases, FragmentSemanticMatches}
	if strings.Join(sources, ",") != strings.Join(want, ",") {
		t.Fatalf("Rank() sources = %v, want %v", sources, want)
	}
	if got[0].Score != 1 || got[1].Score != 1 {
		t.Errorf("always-included fragments should score 1, got %v and %v", got[0].Score, got[1].Score)
	}
	if got[4].Score > RelevanceThreshold {
		t.Errorf("semantic fragment was expected below threshold, got %v", got[4].Score)
	}
}

func TestSimilarCasesPassThreshold(t *testing.T) {
	cc := &CaseContext{
		CaseID:       "APP-1",
		Application:  processedApplication("APP-1"),
		Decision:     approvedDecision("APP-1"),
		SimilarCases: []string{"APP-7", "APP-8"},
	}

	questions := []string{
		"compare me to similar cases",
		"what about my income, decision, family, assets, debt, employment and credit?",
	}
	for _, q := range questions {
		t.Run(q, func(t *testing.T) {
			var similar *RankedFragment
			for _, f := range Rank(q, cc) {
				if f.Source == FragmentSimilarCases {
					f := f
					similar = &f
				}
			}
			if similar == nil {
				t.Fatalf("similar cases were dropped for %q", q)
			}
			if similar.Score <= RelevanceThreshold {
				t.Errorf("score %v not above threshold", similar.Score)
			}
			ids, _ := similar.Fields["similar_case_ids"].([]string)
			if strings.Join(ids, ",") != "APP-7,APP-8" {
				t.Errorf("similar_case_ids = %v", similar.Fields["similar_case_ids"])
			}
		})
	}
}

func TestRankNilContext(t *testing.T) {
	if got := Rank("anything", nil); got != nil {
		t.Errorf("Rank(nil) = %v, want nil", got)
	}
}

func TestIsEmptyValue(t *testing.T) {
	var nilSlice []string
	tests := []struct {
		name string
		v    any
		want bool
	}{
		{"nil", nil, true},
		{"empty_string", "", true},
		{"zero_int", 0, true},
		{"zero_float", 0.0, true},
		{"nil_slice", nilSlice, true},
		{"empty_map", map[string]any{}, true},
		{"false", false, true},
		{"text", "x", false},
		{"number", 12.5, false},
		{"list", []string{"a"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isEmptyValue(tt.v); got != tt.want {
				t.Errorf("isEmptyValue(%v) = %v, want %v", tt.v, got, tt.want)
			}
		})
	}
}

var questionWords = []string{
	"why", "was", "my", "income", "decision", "credit", "assets", "debt",
	"job", "family", "similar", "what", "if", "salary", "approved", "savings",
}

func genQuestion(t *rapid.T) string {
	words := rapid.SliceOfN(rapid.SampledFrom(questionWords), 1, 8).Draw(t, "words")
	return strings.Join(words, " ")
}

func genContext(t *rapid.T, realData bool) *CaseContext {
	app := &types.Application{
		CaseID:        "APP-1",
		ApplicantName: rapid.SampledFrom([]string{"", "Sara", "Ali"}).Draw(t, "name"),
		Status:        rapid.SampledFrom([]string{"PENDING", "COMPLETED", "PROCESSED", "submitted"}).Draw(t, "status"),
		FamilySize:    rapid.IntRange(0, 8).Draw(t, "family"),
		TotalAssets:   rapid.Float64Range(0, 1e6).Draw(t, "assets"),
		CompanyName:   rapid.SampledFrom([]string{"", "ACME"}).Draw(t, "company"),
	}
	if realData {
		app.MonthlyIncome = rapid.Float64Range(1, 50000).Draw(t, "income")
	} else {
		app.EmploymentStatus = rapid.SampledFrom([]string{"", "unknown", "Unknown"}).Draw(t, "employment")
	}

	cc := &CaseContext{
		CaseID:           "APP-1",
		Application:      app,
		HasRealData:      hasRealData(app),
		IsFullyProcessed: isFullyProcessed(app),
	}
	if rapid.Bool().Draw(t, "with_decision") {
		cc.Decision = approvedDecision("APP-1")
	}
	if rapid.Bool().Draw(t, "with_validation") {
		cc.Validation = &types.Validation{CaseID: "APP-1", Status: "VALID", Score: 0.8}
	}
	n := rapid.IntRange(0, 4).Draw(t, "n_fields")
	if n > 0 {
		cc.ExtractedFields = types.ExtractedFields{}
		keys := []string{"monthly_salary", "employer", "credit_score", "extracted_at", "notes"}
		for i := 0; i < n; i++ {
			k := rapid.SampledFrom(keys).Draw(t, "field_key")
			cc.ExtractedFields[k] = rapid.SampledFrom([]any{"", "x", 0.0, 1200.0}).Draw(t, "field_value")
		}
	}
	cc.SimilarCases = rapid.SliceOfN(rapid.SampledFrom([]string{"APP-2", "APP-3 approved"}), 0, 3).Draw(t, "similar")
	if rapid.Bool().Draw(t, "with_programs") {
		cc.RecommendedPrograms = []types.ProgramRef{{ProgramID: "P1", Name: "Upskilling"}}
	}
	if rapid.Bool().Draw(t, "with_semantic") {
		cc.SemanticMatches = []types.SemanticMatch{{CaseID: "APP-4", Document: "summary"}}
		cc.SemanticFetched = true
	}
	return cc
}

func TestRankingThresholdProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cc := genContext(t, true)
		q := genQuestion(t)

		kept := make(map[string]bool)
		for _, f := range Rank(q, cc) {
			kept[f.Source] = true
			if !f.AlwaysIncluded && !f.Comparison && f.Score <= RelevanceThreshold {
				t.Fatalf("fragment %s kept with score %v", f.Source, f.Score)
			}
		}
		for _, f := range fragments(cc) {
			if f.AlwaysIncluded || f.Comparison {
				if !kept[f.Source] {
					t.Fatalf("fragment %s should always be kept", f.Source)
				}
				continue
			}
			if ScoreFragment(q, f) <= RelevanceThreshold && kept[f.Source] {
				t.Fatalf("fragment %s at or below threshold was kept", f.Source)
			}
		}
	})
}

func TestGuardrailPrecedenceProperty(t *testing.T) {
	p := NewPromptAssembler(12000, "AED")
	rapid.Check(t, func(t *rapid.T) {
		cc := genContext(t, false)
		q := genQuestion(t)
		if cc.HasRealData {
			t.Fatalf("generator produced real data: %+v", cc.Application)
		}

		prompt, degraded, err := p.Build(q, ClassifyQuestion(q), cc, Rank(q, cc))
		if err != nil {
			t.Fatal(err)
		}
		if !degraded {
			t.Fatalf("context without real data was not degraded")
		}
		want, err := p.degraded(q, &CaseContext{CaseID: cc.CaseID, Application: cc.Application})
		if err != nil {
			t.Fatal(err)
		}
		if prompt != want {
			t.Fatalf("degraded prompt depends on context contents")
		}
	})
}

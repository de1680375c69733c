package rag

import "testing"

func TestHasComparisonIntent(t *testing.T) {
	tests := []struct {
		question string
		want     bool
	}{
		{"Were similar cases approved?", true},
		{"How do I COMPARE to others?", true},
		{"Show me examples", true},
		{"Is this the same for everyone?", true},
		{"Why was I approved", false},
		{"I liked the service", false},
		{"My brother applied too", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			if got := HasComparisonIntent(tt.question); got != tt.want {
				t.Errorf("HasComparisonIntent(%q) = %v, want %v", tt.question, got, tt.want)
			}
		})
	}
}

func TestClassifyQuestion(t *testing.T) {
	tests := []struct {
		question string
		want     QueryType
	}{
		{"Why was I declined?", QueryExplanation},
		{"Explain the decision", QueryExplanation},
		{"What if my income was 3000?", QuerySimulation},
		{"Why would I qualify if my income doubled?", QuerySimulation},
		{"Suppose I find a job next month", QuerySimulation},
		{"What is my support amount?", QueryGeneral},
		{"whyever not", QueryGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			if got := ClassifyQuestion(tt.question); got != tt.want {
				t.Errorf("ClassifyQuestion(%q) = %v, want %v", tt.question, got, tt.want)
			}
		})
	}
}

func TestMatchedCategories(t *testing.T) {
	tests := []struct {
		name     string
		question string
		text     string
		want     int
	}{
		{"none", "hello", "monthly_income: 5000", 0},
		{"question_only", "my income", "status: pending", 0},
		{"one", "my income", "monthly_income: 5000", 1},
		{"substring", "my salary", "monthly_salary: 5000", 1},
		{"three", "income credit debt", "monthly_income: 1\ncredit_score: 2\ntotal_liabilities: 3", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchedCategories(tt.question, tt.text); got != tt.want {
				t.Errorf("matchedCategories() = %d, want %d", got, tt.want)
			}
		})
	}
}

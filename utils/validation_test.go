package utils

import (
	"strings"
	"testing"

	apperrors "case-explainer/errors"
)

func TestValidateCaseID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"APP-000123", true},
		{"app_1.2:3", true},
		{"", false},
		{"-leading-dash", false},
		{"has space", false},
		{"drop;table", false},
		{strings.Repeat("a", 128), true},
		{strings.Repeat("a", 129), false},
	}
	for _, tt := range tests {
		err := ValidateCaseID(tt.id)
		if tt.valid && err != nil {
			t.Errorf("ValidateCaseID(%q) unexpected error: %v", tt.id, err)
		}
		if !tt.valid {
			if err == nil {
				t.Errorf("ValidateCaseID(%q) expected error", tt.id)
			} else if !apperrors.IsInvalidInput(err) {
				t.Errorf("ValidateCaseID(%q) error should be invalid input, got %v", tt.id, err)
			}
		}
	}
}

func TestValidateQuestion(t *testing.T) {
	q, err := ValidateQuestion("  Why was I declined?  ")
	if err != nil {
		t.Fatal(err)
	}
	if q != "Why was I declined?" {
		t.Errorf("expected trimmed question, got %q", q)
	}

	for _, bad := range []string{"", "   \n\t", strings.Repeat("x", MaxQuestionLength+1)} {
		if _, err := ValidateQuestion(bad); !apperrors.IsInvalidInput(err) {
			t.Errorf("expected invalid input for %d-char question, got %v", len(bad), err)
		}
	}
}

func TestGenerateTurnID(t *testing.T) {
	a, b := GenerateTurnID(), GenerateTurnID()
	if a == b {
		t.Error("turn ids should be unique")
	}
	if len(a) != 36 {
		t.Errorf("expected uuid string, got %q", a)
	}
}

package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	apperrors "case-explainer/errors"

	"github.com/google/uuid"
)

// MaxQuestionLength bounds the question text accepted by the engine, in runes.
const MaxQuestionLength = 2000

var caseIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,127}$`)

// ValidateCaseID checks that caseID is a plausible identifier: alphanumeric start,
// then letters, digits, '_', '.', ':' or '-', at most 128 characters.
func ValidateCaseID(caseID string) error {
	if !caseIDPattern.MatchString(caseID) {
		return fmt.Errorf("%w: malformed case id %q", apperrors.ErrInvalidInput, caseID)
	}
	return nil
}

// ValidateQuestion trims q and rejects empty or oversized questions.
func ValidateQuestion(q string) (string, error) {
	trimmed := strings.TrimSpace(q)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty question", apperrors.ErrInvalidInput)
	}
	if utf8.RuneCountInString(trimmed) > MaxQuestionLength {
		return "", fmt.Errorf("%w: question longer than %d characters", apperrors.ErrInvalidInput, MaxQuestionLength)
	}
	return trimmed, nil
}

// GenerateTurnID creates a unique conversation turn identifier using UUID v4.
func GenerateTurnID() string {
	return uuid.New().String()
}

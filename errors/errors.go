package errors

import (
	"errors"
	"fmt"
)

// Common error types for categorization and handling

var (
	// ErrNotFound indicates a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates invalid user input
	ErrInvalidInput = errors.New("invalid input")

	// ErrServiceUnavailable indicates a required service is unavailable
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrDatabaseOperation indicates a database operation failed
	ErrDatabaseOperation = errors.New("database operation failed")

	// ErrLLMCommunication indicates the text-generation service could not be reached
	// or returned an unusable response
	ErrLLMCommunication = errors.New("llm communication failed")

	// ErrSourceUnavailable marks a single retrieval source that failed or timed out.
	// Optional sources absorb it; the aggregator degrades the field to empty.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrMandatorySourceFailed means the relational store could not serve the case.
	// No answer can be assembled without it.
	ErrMandatorySourceFailed = errors.New("mandatory source failed")

	// ErrGenerationFailed is the parent of every generation failure surfaced to callers.
	ErrGenerationFailed = errors.New("answer generation failed")
)

var (
	// ErrGenerationTimeout wraps ErrGenerationFailed for deadline overruns.
	ErrGenerationTimeout = fmt.Errorf("generation timed out: %w", ErrGenerationFailed)

	// ErrGenerationTransport wraps ErrGenerationFailed for connection and protocol failures.
	ErrGenerationTransport = fmt.Errorf("generation transport error: %w", ErrGenerationFailed)
)

// WrapError wraps an error with context message and stack
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// WrapErrorf wraps an error with formatted context message
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// IsNotFound checks if error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidInput checks if error is an invalid input error
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsServiceUnavailable checks if error is a service unavailable error
func IsServiceUnavailable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable)
}

func IsSourceUnavailable(err error) bool {
	return errors.Is(err, ErrSourceUnavailable)
}

func IsMandatorySourceFailed(err error) bool {
	return errors.Is(err, ErrMandatorySourceFailed)
}

// IsGenerationFailure reports timeout and transport failures alike.
func IsGenerationFailure(err error) bool {
	return errors.Is(err, ErrGenerationFailed)
}

package handlers

import (
	"net/http"

	apperrors "case-explainer/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondWithError logs the technical error and returns a user-friendly message
func respondWithError(c *gin.Context, statusCode int, technicalError error, userMessage string, logger *zap.Logger, fields ...zap.Field) {
	if logger != nil {
		fields = append(fields, zap.Error(technicalError))
		logger.Error("Request failed", fields...)
	}

	c.JSON(statusCode, gin.H{"error": userMessage})
}

// respondWithClientError returns a client error (no logging needed for validation errors)
func respondWithClientError(c *gin.Context, statusCode int, userMessage string) {
	c.JSON(statusCode, gin.H{"error": userMessage})
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case apperrors.IsInvalidInput(err):
		return http.StatusBadRequest
	case apperrors.IsNotFound(err):
		return http.StatusNotFound
	case apperrors.IsMandatorySourceFailed(err), apperrors.IsServiceUnavailable(err):
		return http.StatusServiceUnavailable
	case apperrors.IsGenerationFailure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

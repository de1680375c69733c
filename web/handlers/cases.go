package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	apperrors "case-explainer/errors"
	"case-explainer/rag"
	domain "case-explainer/types"
	"case-explainer/utils"
	"case-explainer/web/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CaseService is the part of rag.Engine the HTTP layer needs.
type CaseService interface {
	Answer(ctx context.Context, caseID, question string) (*rag.GeneratedAnswer, error)
	Stats() rag.Stats
	Invalidate(caseID string) int
	History(ctx context.Context, caseID string, limit int) ([]domain.ConversationTurn, error)
	Health(ctx context.Context) rag.HealthReport
}

type CaseHandler struct {
	service CaseService
	logger  *zap.Logger
}

func NewCaseHandler(service CaseService, logger *zap.Logger) *CaseHandler {
	return &CaseHandler{service: service, logger: logger}
}

// Answer handles POST /api/cases/:caseID/answer.
func (h *CaseHandler) Answer(c *gin.Context) {
	caseID := c.Param("caseID")

	var req types.AnswerRequest
	if err := c.ShouldBind(&req); err != nil {
		respondWithClientError(c, http.StatusBadRequest, "Invalid request")
		return
	}

	ans, err := h.service.Answer(c.Request.Context(), caseID, req.Question)
	if err != nil {
		switch {
		case apperrors.IsInvalidInput(err):
			respondWithClientError(c, http.StatusBadRequest, err.Error())
		case apperrors.IsGenerationFailure(err) && ans != nil:
			// The apology is still a displayable answer.
			resp := types.NewAnswerResponse(ans)
			resp.GenerationError = generationErrorCode(err)
			h.logger.Warn("Serving fallback answer", zap.String("case_id", caseID), zap.Error(err))
			c.JSON(http.StatusOK, resp)
		case apperrors.IsMandatorySourceFailed(err):
			respondWithError(c, statusFor(err), err, "Case records are temporarily unavailable", h.logger,
				zap.String("case_id", caseID))
		default:
			respondWithError(c, statusFor(err), err, "Could not answer the question", h.logger,
				zap.String("case_id", caseID))
		}
		return
	}

	c.JSON(http.StatusOK, types.NewAnswerResponse(ans))
}

func generationErrorCode(err error) string {
	if errors.Is(err, apperrors.ErrGenerationTimeout) {
		return "generation_timeout"
	}
	return "generation_failed"
}

// Stats handles GET /api/stats.
func (h *CaseHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Stats())
}

// Invalidate handles DELETE /api/cases/:caseID/cache.
func (h *CaseHandler) Invalidate(c *gin.Context) {
	caseID := c.Param("caseID")
	if err := utils.ValidateCaseID(caseID); err != nil {
		respondWithClientError(c, http.StatusBadRequest, err.Error())
		return
	}
	removed := h.service.Invalidate(caseID)
	c.JSON(http.StatusOK, types.InvalidateResponse{CaseID: caseID, AnswersRemoved: removed})
}

// History handles GET /api/cases/:caseID/history?limit=N.
func (h *CaseHandler) History(c *gin.Context) {
	caseID := c.Param("caseID")

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondWithClientError(c, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	turns, err := h.service.History(c.Request.Context(), caseID, limit)
	if err != nil {
		if apperrors.IsInvalidInput(err) {
			respondWithClientError(c, http.StatusBadRequest, err.Error())
			return
		}
		respondWithError(c, statusFor(err), err, "Could not load conversation history", h.logger,
			zap.String("case_id", caseID))
		return
	}
	if turns == nil {
		turns = []domain.ConversationTurn{}
	}
	c.JSON(http.StatusOK, types.HistoryResponse{CaseID: caseID, Turns: turns})
}

// Health handles GET /healthz.
func (h *CaseHandler) Health(c *gin.Context) {
	report := h.service.Health(c.Request.Context())
	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/models"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/services"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/utils"
)

type AttemptHandler struct {
	BaseHandler
	attemptService services.AttemptService
}

func NewAttemptHandler(attemptService services.AttemptService, logger utils.Logger) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler:    NewBaseHandler(logger),
		attemptService: attemptService,
	}
}

// StartAttempt starts or resumes the caller's attempt at a published test.
// @Router /attempts/start [post]
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	var req models.StartAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err)
		return
	}
	p, ok := h.principal(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Starting test attempt", "test_id", req.TestID, "student_id", p.ID)

	resp, err := h.attemptService.Start(c.Request.Context(), &req, p.ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	status := http.StatusCreated
	if resp.Resumed {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

// GetAttempt returns the attempt state used to restore a session after reload.
// @Router /attempts/{id} [get]
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	p, ok := h.principal(c)
	if !ok {
		return
	}

	view, err := h.attemptService.Get(c.Request.Context(), id, p.ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// RecordAnswer upserts one answer. Last write wins.
// @Router /attempts/{id}/answers [put]
func (h *AttemptHandler) RecordAnswer(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	var req models.RecordAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err)
		return
	}
	p, ok := h.principal(c)
	if !ok {
		return
	}

	if err := h.attemptService.RecordAnswer(c.Request.Context(), id, &req, p.ID); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SubmitAttempt grades the attempt. An empty body submits the recorded answers.
// @Router /attempts/{id}/submit [post]
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	var req models.SubmitAttemptRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err)
			return
		}
	}
	req.AttemptID = id
	p, ok := h.principal(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Submitting test attempt", "attempt_id", id, "student_id", p.ID)

	result, err := h.attemptService.Submit(c.Request.Context(), &req, p.ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetResult returns the stored result to the student or the test author.
// @Router /attempts/{id}/result [get]
func (h *AttemptHandler) GetResult(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	p, ok := h.principal(c)
	if !ok {
		return
	}

	result, err := h.attemptService.GetResult(c.Request.Context(), id, p.ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetTimeRemaining reports whole seconds left on an attempt.
// @Router /attempts/{id}/time [get]
func (h *AttemptHandler) GetTimeRemaining(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	p, ok := h.principal(c)
	if !ok {
		return
	}

	resp, err := h.attemptService.TimeRemaining(c.Request.Context(), id, p.ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

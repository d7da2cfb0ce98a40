package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/models"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/services"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/utils"
)

type TestHandler struct {
	BaseHandler
	testService services.TestService
}

func NewTestHandler(testService services.TestService, logger utils.Logger) *TestHandler {
	return &TestHandler{
		BaseHandler: NewBaseHandler(logger),
		testService: testService,
	}
}

// ===== TEST ENDPOINTS =====

// CreateTest creates a draft test, optionally with its questions.
// @Router /tests [post]
func (h *TestHandler) CreateTest(c *gin.Context) {
	var req models.TestCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err)
		return
	}
	p, ok := h.principal(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Creating test", "teacher_id", p.ID)

	test, err := h.testService.Create(c.Request.Context(), &req, p.ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, test)
}

// ListMyTests lists the tests authored by the caller.
// @Router /tests [get]
func (h *TestHandler) ListMyTests(c *gin.Context) {
	p, ok := h.principal(c)
	if !ok {
		return
	}

	tests, err := h.testService.ListMine(c.Request.Context(), p.ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, tests)
}

// ListPublishedTests lists tests students can start.
// @Router /tests/published [get]
func (h *TestHandler) ListPublishedTests(c *gin.Context) {
	tests, err := h.testService.ListPublished(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	summaries := make([]gin.H, 0, len(tests))
	for _, t := range tests {
		summaries = append(summaries, gin.H{
			"id":             t.ID,
			"title":          t.Title,
			"description":    t.Description,
			"time_limit_sec": t.TimeLimitSec,
		})
	}
	c.JSON(http.StatusOK, summaries)
}

// GetTest returns a test with correctness data to its author.
// @Router /tests/{id} [get]
func (h *TestHandler) GetTest(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	p, ok := h.principal(c)
	if !ok {
		return
	}

	test, err := h.testService.Get(c.Request.Context(), id, p.ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, test)
}

// UpdateTest patches test settings.
// @Router /tests/{id} [put]
func (h *TestHandler) UpdateTest(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	var req models.TestUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err)
		return
	}
	p, ok := h.principal(c)
	if !ok {
		return
	}

	test, err := h.testService.Update(c.Request.Context(), id, &req, p.ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, test)
}

// PublishTest opens a draft test to students.
// @Router /tests/{id}/publish [post]
func (h *TestHandler) PublishTest(c *gin.Context) {
	h.changeStatus(c, h.testService.Publish)
}

// ArchiveTest closes a test for good.
// @Router /tests/{id}/archive [post]
func (h *TestHandler) ArchiveTest(c *gin.Context) {
	h.changeStatus(c, h.testService.Archive)
}

func (h *TestHandler) changeStatus(c *gin.Context, apply func(ctx context.Context, testID, teacherID string) (*models.Test, error)) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	p, ok := h.principal(c)
	if !ok {
		return
	}

	test, err := apply(c.Request.Context(), id, p.ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogRequest(c, "Test status changed", "test_id", id, "status", test.Status)
	c.JSON(http.StatusOK, test)
}

// ===== QUESTION ENDPOINTS =====

// AddQuestion appends a question to a test.
// @Router /tests/{id}/questions [post]
func (h *TestHandler) AddQuestion(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	var req models.QuestionCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err)
		return
	}
	p, ok := h.principal(c)
	if !ok {
		return
	}

	q, err := h.testService.AddQuestion(c.Request.Context(), id, &req, p.ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, q)
}

// UpdateQuestion replaces a question's definition.
// @Router /tests/{id}/questions/{question_id} [put]
func (h *TestHandler) UpdateQuestion(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	questionID, ok := h.parseIDParam(c, "question_id")
	if !ok {
		return
	}
	var req models.QuestionCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err)
		return
	}
	p, ok := h.principal(c)
	if !ok {
		return
	}

	q, err := h.testService.UpdateQuestion(c.Request.Context(), id, questionID, &req, p.ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

// RemoveQuestion deletes a question from a test.
// @Router /tests/{id}/questions/{question_id} [delete]
func (h *TestHandler) RemoveQuestion(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	questionID, ok := h.parseIDParam(c, "question_id")
	if !ok {
		return
	}
	p, ok := h.principal(c)
	if !ok {
		return
	}

	if err := h.testService.RemoveQuestion(c.Request.Context(), id, questionID, p.ID); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

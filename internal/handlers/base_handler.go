package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/models"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/repositories"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/services"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/utils"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/validator"
)

type ErrorResponse struct {
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

func (h *BaseHandler) log(c *gin.Context) utils.Logger {
	return utils.GetLogger(c, h.logger)
}

func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	args = append(args, "method", c.Request.Method, "path", c.FullPath())
	h.log(c).Info(msg, args...)
}

func (h *BaseHandler) LogError(c *gin.Context, err error, msg string, args ...any) {
	args = append(args, "error", err)
	h.log(c).Error(msg, args...)
}

func (h *BaseHandler) RespondWithError(c *gin.Context, status int, message string, err error) {
	resp := ErrorResponse{Message: message}
	if err != nil {
		resp.Details = err.Error()
	}
	c.JSON(status, resp)
}

// principal returns the caller set by the auth middleware, writing 401 when
// absent.
func (h *BaseHandler) principal(c *gin.Context) (*models.Principal, bool) {
	p, err := GetPrincipal(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
			Code:    "unauthenticated",
		})
		return nil, false
	}
	return p, true
}

// handleServiceError maps service error kinds onto HTTP responses.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	status, resp := describeError(err)
	if status == http.StatusInternalServerError {
		h.LogError(c, err, "Unhandled service error")
	}
	c.JSON(status, resp)
}

func describeError(err error) (int, ErrorResponse) {
	var (
		verrs   validator.ValidationErrors
		permErr *services.PermissionError
	)

	switch {
	case errors.Is(err, services.ErrValidationFailed):
		resp := ErrorResponse{Message: "Validation failed", Code: "validation_failed"}
		if errors.As(err, &verrs) {
			resp.Details = verrs
		} else {
			resp.Details = err.Error()
		}
		return http.StatusBadRequest, resp
	case errors.As(err, &permErr):
		return http.StatusForbidden, ErrorResponse{Message: "Access denied", Code: "unauthorized", Details: permErr.Reason}
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusForbidden, ErrorResponse{Message: "Access denied", Code: "unauthorized"}
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Message: err.Error(), Code: "not_found"}
	case errors.Is(err, services.ErrTestAlreadyCompleted):
		return http.StatusConflict, ErrorResponse{Message: "Test already completed", Code: "test_already_completed"}
	case errors.Is(err, services.ErrAttemptAlreadySubmitted):
		return http.StatusConflict, ErrorResponse{Message: "Attempt already submitted", Code: "attempt_already_submitted"}
	case errors.Is(err, services.ErrAttemptExpired):
		return http.StatusGone, ErrorResponse{Message: "Attempt time has expired", Code: "attempt_expired"}
	case errors.Is(err, services.ErrResultNotReady):
		return http.StatusConflict, ErrorResponse{Message: "Result not ready", Code: "result_not_ready"}
	case errors.Is(err, services.ErrTestNotEditable):
		return http.StatusConflict, ErrorResponse{Message: err.Error(), Code: "test_not_editable"}
	case repositories.IsConflictError(err):
		return http.StatusConflict, ErrorResponse{Message: "Concurrent modification, retry", Code: "conflict"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Message: "Internal server error", Code: "internal"}
	}
}

// parseIDParam reads a uuid path parameter, answering 400 when malformed.
func (h *BaseHandler) parseIDParam(c *gin.Context, name string) (string, bool) {
	raw := c.Param(name)
	if _, err := uuid.Parse(raw); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + name + " parameter",
			Code:    "invalid_id",
			Details: raw,
		})
		return "", false
	}
	return raw, true
}

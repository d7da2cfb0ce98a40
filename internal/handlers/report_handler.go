package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/services"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ReportHandler struct {
	BaseHandler
	reportService services.ReportService
}

func NewReportHandler(reportService services.ReportService, logger utils.Logger) *ReportHandler {
	return &ReportHandler{
		BaseHandler:   NewBaseHandler(logger),
		reportService: reportService,
	}
}

// GetSummary returns aggregated results of a test to its author.
// @Router /tests/{id}/summary [get]
func (h *ReportHandler) GetSummary(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	p, ok := h.principal(c)
	if !ok {
		return
	}

	summary, err := h.reportService.Summary(c.Request.Context(), id, p.ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ExportResults streams the results workbook.
// @Router /tests/{id}/export [get]
func (h *ReportHandler) ExportResults(c *gin.Context) {
	id, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}
	p, ok := h.principal(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Exporting results", "test_id", id)

	data, err := h.reportService.Export(c.Request.Context(), id, p.ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="results-%s.xlsx"`, id))
	c.Data(http.StatusOK, xlsxContentType, data)
}

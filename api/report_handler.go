package api

import (
	"strconv"

	"threatlens/service"
	"threatlens/utils"

	"github.com/gin-gonic/gin"
)

type ReportHandler struct {
	reportService *service.ReportService
}

func NewReportHandler(reportService *service.ReportService) *ReportHandler {
	return &ReportHandler{
		reportService: reportService,
	}
}

// ListReports returns stored assessment reports, newest first.
// GET /api/reports
func (h *ReportHandler) ListReports(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	reports, total, err := h.reportService.List(c.Request.Context(), page, pageSize)
	if err != nil {
		utils.InternalError(c, "failed to list reports")
		return
	}

	utils.Success(c, gin.H{
		"total":     total,
		"page":      page,
		"page_size": pageSize,
		"reports":   reports,
	})
}

// GetReport returns the latest report for a domain.
// GET /api/reports/:domain
func (h *ReportHandler) GetReport(c *gin.Context) {
	domain := c.Param("domain")

	report, err := h.reportService.GetByDomain(c.Request.Context(), domain)
	if err != nil {
		utils.NotFound(c, "no report for domain")
		return
	}

	utils.Success(c, report)
}

// DeleteReport removes a stored report.
// DELETE /api/reports/:domain
func (h *ReportHandler) DeleteReport(c *gin.Context) {
	domain := c.Param("domain")

	if err := h.reportService.Delete(c.Request.Context(), domain); err != nil {
		utils.NotFound(c, "no report for domain")
		return
	}

	utils.SuccessWithMessage(c, "report deleted", nil)
}

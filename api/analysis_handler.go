package api

import (
	"errors"

	"threatlens/service"
	"threatlens/utils"

	"github.com/gin-gonic/gin"
)

type AnalysisHandler struct {
	analysisService *service.AnalysisService
}

func NewAnalysisHandler(analysisService *service.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{
		analysisService: analysisService,
	}
}

// StartAnalysis runs the synchronous port phase and returns its result.
// CVE resolution and leak lookup continue in the background under the
// returned job_id.
// POST /api/port-analysis
func (h *AnalysisHandler) StartAnalysis(c *gin.Context) {
	var req struct {
		Target       string `json:"target" binding:"required"`
		IncludeLeaks bool   `json:"include_leaks"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "invalid request body")
		return
	}

	phase, err := h.analysisService.SubmitAnalysis(c.Request.Context(), req.Target, req.IncludeLeaks)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidTarget):
			utils.BadRequest(c, err.Error())
		case errors.Is(err, service.ErrNoHosts):
			utils.NotFound(c, err.Error())
		case errors.Is(err, service.ErrCancelled):
			utils.SuccessWithMessage(c, "analysis cancelled", nil)
		default:
			utils.InternalError(c, err.Error())
		}
		return
	}

	utils.Success(c, phase)
}

// GetJobStatus polls the background stage of a job. While the
// continuation runs the snapshot carries the port phase only; once it
// finishes the full result is included and the job record is consumed.
// GET /api/software-analysis/:job_id
func (h *AnalysisHandler) GetJobStatus(c *gin.Context) {
	jobID := c.Param("job_id")

	snapshot, err := h.analysisService.GetJobStatus(jobID)
	if err != nil {
		utils.NotFound(c, "job not found")
		return
	}

	utils.Success(c, snapshot)
}

// CancelJob cancels a specific running job.
// POST /api/cancel/:job_id
func (h *AnalysisHandler) CancelJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if !h.analysisService.CancelJob(jobID) {
		utils.NotFound(c, "job not found or already finished")
		return
	}

	utils.SuccessWithMessage(c, "job cancelled", gin.H{"job_id": jobID})
}

// CancelCurrent cancels whatever analysis is in flight, including the
// synchronous port phase.
// POST /api/cancel-current
func (h *AnalysisHandler) CancelCurrent(c *gin.Context) {
	if !h.analysisService.CancelCurrent() {
		utils.SuccessWithMessage(c, "no analysis in progress", nil)
		return
	}

	utils.SuccessWithMessage(c, "analysis cancelled", nil)
}

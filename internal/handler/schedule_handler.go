package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/service"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
	"github.com/noah-isme/timetable-engine/pkg/export"
	"github.com/noah-isme/timetable-engine/pkg/response"
)

type pipelineRunner interface {
	Submit(ctx context.Context, req dto.GenerateRequest) (string, error)
	SubmitStored(ctx context.Context, org, semester string) (string, error)
	Progress(jobID string) (dto.ProgressResponse, error)
	Result(jobID string) (*models.GenerationResult, error)
	Cancel(jobID string) error
}

// ScheduleHandler exposes generation job endpoints.
type ScheduleHandler struct {
	pipeline pipelineRunner
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
}

// NewScheduleHandler constructs the handler.
func NewScheduleHandler(pipeline *service.PipelineService) *ScheduleHandler {
	return &ScheduleHandler{
		pipeline: pipeline,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
	}
}

// Register mounts the schedule routes.
func (h *ScheduleHandler) Register(rg *gin.RouterGroup) {
	schedules := rg.Group("/schedules")
	schedules.POST("/generate", h.Generate)
	schedules.POST("/generate/stored", h.GenerateStored)
	schedules.GET("/jobs/:id/progress", h.Progress)
	schedules.GET("/jobs/:id/result", h.Result)
	schedules.GET("/jobs/:id/export", h.Export)
	schedules.POST("/jobs/:id/cancel", h.Cancel)
}

// Generate queues a generation run over an inline snapshot.
func (h *ScheduleHandler) Generate(c *gin.Context) {
	var req dto.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	jobID, err := h.pipeline.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, dto.GenerateResponse{JobID: jobID})
}

// GenerateStored queues a generation run over stored inputs.
func (h *ScheduleHandler) GenerateStored(c *gin.Context) {
	org := c.Query("org")
	semester := c.Query("semester")
	if org == "" || semester == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "org and semester query parameters are required"))
		return
	}
	jobID, err := h.pipeline.SubmitStored(c.Request.Context(), org, semester)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, dto.GenerateResponse{JobID: jobID})
}

// Progress returns the smoothed progress of a job.
func (h *ScheduleHandler) Progress(c *gin.Context) {
	progress, err := h.pipeline.Progress(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress)
}

// Result returns a completed job's schedule.
func (h *ScheduleHandler) Result(c *gin.Context) {
	result, err := h.pipeline.Result(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Export renders a completed job's schedule as CSV or a conflict report PDF.
func (h *ScheduleHandler) Export(c *gin.Context) {
	result, err := h.pipeline.Result(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	switch c.DefaultQuery("format", "csv") {
	case "csv":
		payload, err := h.csv.Render(export.AssignmentDataset(result))
		if err != nil {
			response.Error(c, err)
			return
		}
		name := fmt.Sprintf("schedule-%s.csv", result.JobID)
		c.Header("Content-Disposition", "attachment; filename="+name)
		c.Data(http.StatusOK, "text/csv", payload)
	case "pdf":
		payload, err := h.pdf.Render(export.ConflictDataset(result.Conflicts), "Conflict Report")
		if err != nil {
			response.Error(c, err)
			return
		}
		name := fmt.Sprintf("conflicts-%s.pdf", result.JobID)
		c.Header("Content-Disposition", "attachment; filename="+name)
		c.Data(http.StatusOK, "application/pdf", payload)
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
	}
}

// Cancel requests cooperative cancellation of a running job.
func (h *ScheduleHandler) Cancel(c *gin.Context) {
	if err := h.pipeline.Cancel(c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

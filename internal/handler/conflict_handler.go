package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/service"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
	"github.com/noah-isme/timetable-engine/pkg/response"
)

type conflictResolver interface {
	Detect(snapshot dto.ScheduleSnapshot) ([]models.Conflict, error)
	Resolve(ctx context.Context, req dto.ResolveRequest) (dto.ResolveResponse, error)
	AddCourse(req dto.AddCourseRequest) (dto.AddCourseResponse, error)
	RemoveCourse(req dto.RemoveCourseRequest) (dto.RemoveCourseResponse, error)
}

// ConflictHandler exposes conflict queries and incremental schedule edits.
type ConflictHandler struct {
	service conflictResolver
}

// NewConflictHandler constructs the handler.
func NewConflictHandler(svc *service.ConflictService) *ConflictHandler {
	return &ConflictHandler{service: svc}
}

// Register mounts the conflict and incremental-edit routes.
func (h *ConflictHandler) Register(rg *gin.RouterGroup) {
	conflicts := rg.Group("/conflicts")
	conflicts.POST("/detect", h.Detect)
	conflicts.POST("/resolve", h.Resolve)

	courses := rg.Group("/schedules/courses")
	courses.POST("/add", h.AddCourse)
	courses.POST("/remove", h.RemoveCourse)
}

// Detect lists every conflict in the submitted schedule.
func (h *ConflictHandler) Detect(c *gin.Context) {
	var snapshot dto.ScheduleSnapshot
	if err := c.ShouldBindJSON(&snapshot); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	conflicts, err := h.service.Detect(snapshot)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conflicts, map[string]interface{}{"total": len(conflicts)})
}

// Resolve repairs one named conflict, or all of them.
func (h *ConflictHandler) Resolve(c *gin.Context) {
	var req dto.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.Resolve(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// AddCourse places a new course without moving existing assignments.
func (h *ConflictHandler) AddCourse(c *gin.Context) {
	var req dto.AddCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.AddCourse(req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, result)
}

// RemoveCourse drops a course's sessions from the schedule.
func (h *ConflictHandler) RemoveCourse(c *gin.Context) {
	var req dto.RemoveCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.RemoveCourse(req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

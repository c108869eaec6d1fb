package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

type conflictMock struct {
	conflicts []models.Conflict
	resolve   dto.ResolveResponse
	add       dto.AddCourseResponse
	remove    dto.RemoveCourseResponse
	err       error
}

func (m *conflictMock) Detect(_ dto.ScheduleSnapshot) ([]models.Conflict, error) {
	return m.conflicts, m.err
}

func (m *conflictMock) Resolve(_ context.Context, _ dto.ResolveRequest) (dto.ResolveResponse, error) {
	return m.resolve, m.err
}

func (m *conflictMock) AddCourse(_ dto.AddCourseRequest) (dto.AddCourseResponse, error) {
	return m.add, m.err
}

func (m *conflictMock) RemoveCourse(_ dto.RemoveCourseRequest) (dto.RemoveCourseResponse, error) {
	return m.remove, m.err
}

func newConflictRouter(mock *conflictMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := &ConflictHandler{service: mock}
	h.Register(r.Group("/api/v1"))
	return r
}

func snapshotBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(dto.ScheduleSnapshot{
		Courses: []dto.CourseInput{{ID: "A", FacultyID: "F1", Duration: 1}},
		Rooms:   []dto.RoomInput{{ID: "R1", Capacity: 30}},
	})
	require.NoError(t, err)
	return body
}

func TestDetectReturnsConflicts(t *testing.T) {
	r := newConflictRouter(&conflictMock{conflicts: []models.Conflict{
		{ID: "FACULTY:F1:0", Type: models.ConflictFaculty, Severity: models.SeverityHard, Slot: 0},
	}})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/conflicts/detect", bytes.NewReader(snapshotBody(t)))
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "FACULTY:F1:0")
	assert.Contains(t, w.Body.String(), `"total":1`)
}

func TestResolvePropagatesInfeasible(t *testing.T) {
	r := newConflictRouter(&conflictMock{err: appErrors.Clone(appErrors.ErrNotFound, "conflict not found")})

	body, _ := json.Marshal(dto.ResolveRequest{ConflictID: "nope"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/conflicts/resolve", bytes.NewReader(body))
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAddCourseCreated(t *testing.T) {
	r := newConflictRouter(&conflictMock{add: dto.AddCourseResponse{
		AssignedSessions: []models.Assignment{
			{Session: models.SessionRef{CourseID: "B"}, Placement: models.Placement{Slot: 3, RoomID: "R1"}},
		},
	}})

	body, _ := json.Marshal(dto.AddCourseRequest{
		Course: dto.CourseInput{ID: "B", FacultyID: "F2", Duration: 1},
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/schedules/courses/add", bytes.NewReader(body))
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"slot":3`)
}

func TestRemoveCourseMalformedBody(t *testing.T) {
	r := newConflictRouter(&conflictMock{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/schedules/courses/remove", bytes.NewReader([]byte("not-json")))
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

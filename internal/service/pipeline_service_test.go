package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/progress"
	"github.com/noah-isme/timetable-engine/internal/repository"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

func newTestPipeline(t *testing.T, source SnapshotSource) *PipelineService {
	t.Helper()
	coordinator := progress.NewCoordinator(progress.DefaultBoundaries(), 10*time.Millisecond, nil)
	svc := NewPipelineService(PipelineConfig{
		Grid: models.TimeGrid{Days: 2, PeriodsPerDay: 4},
	}, coordinator, nil, nil, source, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)
	t.Cleanup(func() {
		cancel()
		svc.Stop()
	})
	return svc
}

func smallRequest() dto.GenerateRequest {
	return dto.GenerateRequest{
		Org:      "uni",
		Semester: "2026-fall",
		Courses: []dto.CourseInput{
			{ID: "A", FacultyID: "F1", Duration: 2, StudentIDs: []string{"S1"}},
			{ID: "B", FacultyID: "F2", Duration: 2, StudentIDs: []string{"S1"}},
		},
		Rooms: []dto.RoomInput{
			{ID: "R1", Capacity: 30},
			{ID: "R2", Capacity: 30},
		},
	}
}

func waitForCompletion(t *testing.T, svc *PipelineService, jobID string) dto.ProgressResponse {
	t.Helper()
	var last dto.ProgressResponse
	require.Eventually(t, func() bool {
		progress, err := svc.Progress(jobID)
		if err != nil {
			return false
		}
		last = progress
		return progress.Status == string(models.JobStatusCompleted)
	}, 30*time.Second, 20*time.Millisecond)
	return last
}

func TestPipelineRunsToCompletion(t *testing.T) {
	svc := newTestPipeline(t, nil)

	jobID, err := svc.Submit(context.Background(), smallRequest())
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	progress := waitForCompletion(t, svc, jobID)
	assert.Equal(t, 100.0, progress.ProgressPercent)

	result, err := svc.Result(jobID)
	require.NoError(t, err)
	assert.Equal(t, jobID, result.JobID)
	// Both courses fully placed: 2 courses x 2 sessions.
	assert.Len(t, result.Assignments, 4)
	assert.Empty(t, result.Conflicts)
}

func TestSubmitRejectsInvalidPayload(t *testing.T) {
	svc := newTestPipeline(t, nil)

	req := smallRequest()
	req.Org = ""
	_, err := svc.Submit(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	req = smallRequest()
	req.Courses[0].Duration = 0
	_, err = svc.Submit(context.Background(), req)
	require.Error(t, err)
}

func TestSubmitRejectsDuplicateCourseIDs(t *testing.T) {
	svc := newTestPipeline(t, nil)

	req := smallRequest()
	req.Courses = append(req.Courses, req.Courses[0])
	_, err := svc.Submit(context.Background(), req)
	require.Error(t, err)
}

func TestProgressUnknownJob(t *testing.T) {
	svc := newTestPipeline(t, nil)

	_, err := svc.Progress("nope")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrJobNotFound.Code, appErrors.FromError(err).Code)
}

func TestResultBeforeCompletion(t *testing.T) {
	svc := newTestPipeline(t, nil)

	_, err := svc.Result("nope")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrJobNotFound.Code, appErrors.FromError(err).Code)
}

func TestCancelFinishedJobIsTerminal(t *testing.T) {
	svc := newTestPipeline(t, nil)

	jobID, err := svc.Submit(context.Background(), smallRequest())
	require.NoError(t, err)
	waitForCompletion(t, svc, jobID)

	err = svc.Cancel(jobID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrJobTerminal.Code, appErrors.FromError(err).Code)
}

type stubSource struct {
	snapshot *repository.Snapshot
	err      error
}

func (s *stubSource) LoadSnapshot(_ context.Context, _, _ string) (*repository.Snapshot, error) {
	return s.snapshot, s.err
}

func TestSubmitStoredUsesSource(t *testing.T) {
	a, err := models.NewCourse("A", "A", "F1", 1, models.RoomTypeLecture, 0, nil)
	require.NoError(t, err)
	source := &stubSource{snapshot: &repository.Snapshot{
		Org:      "uni",
		Semester: "2026-fall",
		Courses:  map[string]*models.Course{"A": a},
		Rooms:    map[string]models.Room{"R1": {ID: "R1", Capacity: 30, Type: models.RoomTypeLecture}},
	}}
	svc := newTestPipeline(t, source)

	jobID, err := svc.SubmitStored(context.Background(), "uni", "2026-fall")
	require.NoError(t, err)
	waitForCompletion(t, svc, jobID)

	result, err := svc.Result(jobID)
	require.NoError(t, err)
	assert.Len(t, result.Assignments, 1)
}

func TestSubmitStoredWithoutSource(t *testing.T) {
	svc := newTestPipeline(t, nil)

	_, err := svc.SubmitStored(context.Background(), "uni", "2026-fall")
	require.Error(t, err)
}

package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/engine/cluster"
	"github.com/noah-isme/timetable-engine/internal/engine/repair"
	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

func newConflictService(grid models.TimeGrid) *ConflictService {
	repairer := repair.NewEngine(repair.Config{}, cluster.NewEngine(cluster.Config{}, nil), nil)
	return NewConflictService(grid, repairer, nil, nil)
}

// clashSnapshot schedules two same-faculty courses into the same slot.
func clashSnapshot() dto.ScheduleSnapshot {
	return dto.ScheduleSnapshot{
		Courses: []dto.CourseInput{
			{ID: "A", FacultyID: "F1", Duration: 1},
			{ID: "B", FacultyID: "F1", Duration: 1},
		},
		Rooms: []dto.RoomInput{
			{ID: "R1", Capacity: 30},
			{ID: "R2", Capacity: 30},
		},
		Assignments: []dto.AssignmentInput{
			{CourseID: "A", SessionIndex: 0, Slot: 0, RoomID: "R1"},
			{CourseID: "B", SessionIndex: 0, Slot: 0, RoomID: "R2"},
		},
	}
}

func TestDetectFindsFacultyClash(t *testing.T) {
	svc := newConflictService(models.TimeGrid{Days: 2, PeriodsPerDay: 4})

	conflicts, err := svc.Detect(clashSnapshot())
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictFaculty, conflicts[0].Type)
	assert.ElementsMatch(t, []string{"A", "B"}, conflicts[0].CourseIDs)
}

func TestDetectRejectsDanglingAssignment(t *testing.T) {
	svc := newConflictService(models.TimeGrid{Days: 2, PeriodsPerDay: 4})
	snapshot := clashSnapshot()
	snapshot.Assignments[0].CourseID = "GHOST"

	_, err := svc.Detect(snapshot)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestResolveAllClearsSchedule(t *testing.T) {
	svc := newConflictService(models.TimeGrid{Days: 2, PeriodsPerDay: 4})

	resp, err := svc.Resolve(context.Background(), dto.ResolveRequest{Snapshot: clashSnapshot(), Auto: true})
	require.NoError(t, err)
	assert.Positive(t, resp.Resolved)
	assert.True(t, resp.Applied)
	assert.Empty(t, resp.Details)
	assert.Len(t, resp.Assignments, 2)
	assert.Empty(t, resp.Proposed)
}

func TestResolvePreviewKeepsScheduleUntouched(t *testing.T) {
	svc := newConflictService(models.TimeGrid{Days: 2, PeriodsPerDay: 4})

	resp, err := svc.Resolve(context.Background(), dto.ResolveRequest{Snapshot: clashSnapshot()})
	require.NoError(t, err)
	assert.False(t, resp.Applied)
	assert.Positive(t, resp.Resolved)
	// Details describe what the proposal would leave behind.
	assert.Empty(t, resp.Details)

	// Returned assignments are exactly the submitted schedule.
	require.Len(t, resp.Assignments, 2)
	for _, a := range resp.Assignments {
		assert.Equal(t, 0, a.Placement.Slot)
	}

	// The repaired layout rides along as a proposal with at least one moved
	// session.
	require.Len(t, resp.Proposed, 2)
	moved := false
	for _, a := range resp.Proposed {
		if a.Placement.Slot != 0 {
			moved = true
		}
	}
	assert.True(t, moved)
}

func TestResolveNamedConflict(t *testing.T) {
	svc := newConflictService(models.TimeGrid{Days: 2, PeriodsPerDay: 4})
	conflicts, err := svc.Detect(clashSnapshot())
	require.NoError(t, err)
	require.NotEmpty(t, conflicts)

	resp, err := svc.Resolve(context.Background(), dto.ResolveRequest{
		Snapshot:   clashSnapshot(),
		ConflictID: conflicts[0].ID,
		Auto:       true,
	})
	require.NoError(t, err)
	assert.Positive(t, resp.Resolved)
}

func TestResolveUnknownConflictID(t *testing.T) {
	svc := newConflictService(models.TimeGrid{Days: 2, PeriodsPerDay: 4})

	_, err := svc.Resolve(context.Background(), dto.ResolveRequest{
		Snapshot:   clashSnapshot(),
		ConflictID: "FACULTY:F9:7",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAddCoursePlacesAllSessionsCleanly(t *testing.T) {
	svc := newConflictService(models.TimeGrid{Days: 1, PeriodsPerDay: 4})
	snapshot := dto.ScheduleSnapshot{
		Courses: []dto.CourseInput{{ID: "A", FacultyID: "F1", Duration: 2}},
		Rooms:   []dto.RoomInput{{ID: "R1", Capacity: 30}},
		Assignments: []dto.AssignmentInput{
			{CourseID: "A", SessionIndex: 0, Slot: 0, RoomID: "R1"},
			{CourseID: "A", SessionIndex: 1, Slot: 1, RoomID: "R1"},
		},
	}

	resp, err := svc.AddCourse(dto.AddCourseRequest{
		Snapshot: snapshot,
		Course:   dto.CourseInput{ID: "B", FacultyID: "F2", Duration: 2},
	})
	require.NoError(t, err)
	require.Len(t, resp.AssignedSessions, 2)

	// The only free capacity is slots 2 and 3; existing assignments must not
	// have been displaced to make room.
	for _, a := range resp.AssignedSessions {
		assert.GreaterOrEqual(t, a.Placement.Slot, 2)
	}
}

func TestAddCourseFailsWholeWhenPartialOnly(t *testing.T) {
	// One free slot but the new course needs two: the add must fail outright
	// rather than leave one session placed.
	svc := newConflictService(models.TimeGrid{Days: 1, PeriodsPerDay: 3})
	snapshot := dto.ScheduleSnapshot{
		Courses: []dto.CourseInput{{ID: "A", FacultyID: "F1", Duration: 2}},
		Rooms:   []dto.RoomInput{{ID: "R1", Capacity: 30}},
		Assignments: []dto.AssignmentInput{
			{CourseID: "A", SessionIndex: 0, Slot: 0, RoomID: "R1"},
			{CourseID: "A", SessionIndex: 1, Slot: 1, RoomID: "R1"},
		},
	}

	_, err := svc.AddCourse(dto.AddCourseRequest{
		Snapshot: snapshot,
		Course:   dto.CourseInput{ID: "B", FacultyID: "F2", Duration: 2},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInfeasible.Code, appErrors.FromError(err).Code)
}

func TestAddCourseRejectsDuplicate(t *testing.T) {
	svc := newConflictService(models.TimeGrid{Days: 1, PeriodsPerDay: 4})
	snapshot := dto.ScheduleSnapshot{
		Courses: []dto.CourseInput{{ID: "A", FacultyID: "F1", Duration: 1}},
		Rooms:   []dto.RoomInput{{ID: "R1", Capacity: 30}},
	}

	_, err := svc.AddCourse(dto.AddCourseRequest{
		Snapshot: snapshot,
		Course:   dto.CourseInput{ID: "A", FacultyID: "F1", Duration: 1},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestRemoveCourseListsSessions(t *testing.T) {
	svc := newConflictService(models.TimeGrid{Days: 1, PeriodsPerDay: 4})
	snapshot := dto.ScheduleSnapshot{
		Courses: []dto.CourseInput{{ID: "A", FacultyID: "F1", Duration: 2}},
		Rooms:   []dto.RoomInput{{ID: "R1", Capacity: 30}},
		Assignments: []dto.AssignmentInput{
			{CourseID: "A", SessionIndex: 0, Slot: 0, RoomID: "R1"},
			{CourseID: "A", SessionIndex: 1, Slot: 1, RoomID: "R1"},
		},
	}

	resp, err := svc.RemoveCourse(dto.RemoveCourseRequest{Snapshot: snapshot, CourseID: "A"})
	require.NoError(t, err)
	assert.Len(t, resp.RemovedSessions, 2)
}

func TestRemoveCourseUnknown(t *testing.T) {
	svc := newConflictService(models.TimeGrid{Days: 1, PeriodsPerDay: 4})
	snapshot := dto.ScheduleSnapshot{
		Courses: []dto.CourseInput{{ID: "A", FacultyID: "F1", Duration: 1}},
		Rooms:   []dto.RoomInput{{ID: "R1", Capacity: 30}},
	}

	_, err := svc.RemoveCourse(dto.RemoveCourseRequest{Snapshot: snapshot, CourseID: "Z"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

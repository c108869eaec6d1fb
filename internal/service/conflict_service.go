package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/engine/repair"
	"github.com/noah-isme/timetable-engine/internal/engine/schedule"
	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

// ConflictService answers conflict queries and performs incremental edits on
// an existing schedule without rerunning the full pipeline.
type ConflictService struct {
	grid      models.TimeGrid
	repairer  *repair.Engine
	validator *validator.Validate
	logger    *zap.Logger
}

// NewConflictService builds the service around the pipeline's repair engine.
func NewConflictService(grid models.TimeGrid, repairer *repair.Engine, validate *validator.Validate, logger *zap.Logger) *ConflictService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if grid.SlotCount() == 0 {
		grid = models.TimeGrid{Days: 5, PeriodsPerDay: 8}
	}
	return &ConflictService{grid: grid, repairer: repairer, validator: validate, logger: logger}
}

// Detect returns every conflict in the submitted schedule, ordered by ID.
func (s *ConflictService) Detect(snapshot dto.ScheduleSnapshot) ([]models.Conflict, error) {
	state, err := s.stateFrom(snapshot)
	if err != nil {
		return nil, err
	}
	return state.DetectConflicts(), nil
}

// Resolve repairs conflicts on the submitted schedule. An empty or "all"
// ConflictID targets every conflict; otherwise resolution is scoped to the
// named conflict's super-cluster. Swaps go through the same validated apply
// path as the pipeline's repair stage. Without Auto the pass runs on a clone
// and the repaired layout is reported as a proposal only.
func (s *ConflictService) Resolve(ctx context.Context, req dto.ResolveRequest) (dto.ResolveResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ResolveResponse{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resolve payload")
	}
	state, err := s.stateFrom(req.Snapshot)
	if err != nil {
		return dto.ResolveResponse{}, err
	}

	conflicts := state.DetectConflicts()
	if req.ConflictID != "" && req.ConflictID != "all" {
		conflicts = filterConflict(conflicts, req.ConflictID)
		if len(conflicts) == 0 {
			return dto.ResolveResponse{}, appErrors.Clone(appErrors.ErrNotFound,
				fmt.Sprintf("conflict %s not found in schedule", req.ConflictID))
		}
	}

	work := state
	if !req.Auto {
		work = state.Clone()
	}
	// Incremental runs start cold: the learned table belongs to full
	// pipeline runs and their org/semester key.
	resolved, manual := s.repairer.RepairPass(ctx, work, nil, conflicts, nil)

	resp := dto.ResolveResponse{
		Resolved:     resolved,
		ManualReview: manual,
		Applied:      req.Auto,
		Details:      work.DetectConflicts(),
		Assignments:  state.Assignments(),
	}
	if !req.Auto {
		resp.Proposed = work.Assignments()
	}
	s.logger.Sugar().Infow("conflict resolution finished",
		"requested", req.ConflictID, "applied", req.Auto, "resolved", resolved,
		"remaining", len(resp.Details), "manual_review", len(manual))
	return resp, nil
}

// AddCourse places every session of a new course into free oracle-clean
// slots. Existing assignments are never moved: the operation either places
// all sessions without new conflicts or fails whole, leaving the schedule
// exactly as submitted.
func (s *ConflictService) AddCourse(req dto.AddCourseRequest) (dto.AddCourseResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.AddCourseResponse{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid add payload")
	}
	state, err := s.stateFrom(req.Snapshot)
	if err != nil {
		return dto.AddCourseResponse{}, err
	}
	if _, exists := state.Course(req.Course.ID); exists {
		return dto.AddCourseResponse{}, appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("course %s already scheduled", req.Course.ID))
	}

	course, err := models.NewCourse(req.Course.ID, req.Course.Name, req.Course.FacultyID,
		req.Course.Duration, models.RoomType(req.Course.RoomType), req.Course.MinCapacity, req.Course.StudentIDs)
	if err != nil {
		return dto.AddCourseResponse{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course")
	}
	state.AddCourse(course)

	placed := make([]models.Assignment, 0, course.Duration)
	for idx := 0; idx < course.Duration; idx++ {
		ref := models.SessionRef{CourseID: course.ID, Index: idx}
		placement, found := s.firstCleanPlacement(state, ref, course)
		if !found {
			// All or nothing: undo this course's own placements only.
			state.RemoveCourse(course.ID)
			return dto.AddCourseResponse{}, appErrors.Clone(appErrors.ErrInfeasible,
				fmt.Sprintf("no conflict-free placement for session %d of course %s", idx, course.ID))
		}
		if err := state.Apply(ref, placement); err != nil {
			state.RemoveCourse(course.ID)
			return dto.AddCourseResponse{}, appErrors.Wrap(err, appErrors.ErrInfeasible.Code, appErrors.ErrInfeasible.Status, "placement rejected")
		}
		placed = append(placed, models.Assignment{Session: ref, Placement: placement})
	}

	s.logger.Sugar().Infow("course added incrementally",
		"course", course.ID, "sessions", len(placed))
	return dto.AddCourseResponse{AssignedSessions: placed}, nil
}

// RemoveCourse drops every session of a course from the schedule. Removal
// cannot introduce conflicts, so it always succeeds for a known course.
func (s *ConflictService) RemoveCourse(req dto.RemoveCourseRequest) (dto.RemoveCourseResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.RemoveCourseResponse{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid remove payload")
	}
	state, err := s.stateFrom(req.Snapshot)
	if err != nil {
		return dto.RemoveCourseResponse{}, err
	}
	if _, exists := state.Course(req.CourseID); !exists {
		return dto.RemoveCourseResponse{}, appErrors.Clone(appErrors.ErrNotFound,
			fmt.Sprintf("course %s not in schedule", req.CourseID))
	}

	removed := state.RemoveCourse(req.CourseID)
	sort.Slice(removed, func(i, j int) bool { return removed[i].Index < removed[j].Index })
	return dto.RemoveCourseResponse{RemovedSessions: removed}, nil
}

// stateFrom materialises a schedule state from a request snapshot. Submitted
// assignments are applied verbatim; conflicts they carry surface through
// detection rather than rejection.
func (s *ConflictService) stateFrom(snapshot dto.ScheduleSnapshot) (*schedule.State, error) {
	if err := s.validator.Struct(snapshot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule snapshot")
	}
	courses, rooms, err := buildSnapshot(snapshot.Courses, snapshot.Rooms)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid entity snapshot")
	}

	state := schedule.NewState(s.grid, courses, rooms)
	slots := s.grid.SlotCount()
	for _, a := range snapshot.Assignments {
		course, ok := courses[a.CourseID]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("assignment references unknown course %s", a.CourseID))
		}
		if a.SessionIndex >= course.Duration {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("session index %d out of range for course %s", a.SessionIndex, a.CourseID))
		}
		if _, ok := rooms[a.RoomID]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("assignment references unknown room %s", a.RoomID))
		}
		if a.Slot >= slots {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("slot %d outside the %d-slot grid", a.Slot, slots))
		}
		state.Force(models.SessionRef{CourseID: a.CourseID, Index: a.SessionIndex},
			models.Placement{Slot: a.Slot, RoomID: a.RoomID})
	}
	return state, nil
}

// firstCleanPlacement scans slots in order and returns the first placement
// the oracle accepts in a fitting room.
func (s *ConflictService) firstCleanPlacement(state *schedule.State, ref models.SessionRef, course *models.Course) (models.Placement, bool) {
	rooms := state.Rooms()
	roomIDs := make([]string, 0, len(rooms))
	for id := range rooms {
		if rooms[id].Fits(course) {
			roomIDs = append(roomIDs, id)
		}
	}
	sort.Strings(roomIDs)

	for slot := 0; slot < s.grid.SlotCount(); slot++ {
		for _, roomID := range roomIDs {
			candidate := models.Placement{Slot: slot, RoomID: roomID}
			if len(state.Oracle(ref, candidate)) == 0 {
				return candidate, true
			}
		}
	}
	return models.Placement{}, false
}

func filterConflict(conflicts []models.Conflict, id string) []models.Conflict {
	for _, c := range conflicts {
		if c.ID == id {
			return []models.Conflict{c}
		}
	}
	return nil
}

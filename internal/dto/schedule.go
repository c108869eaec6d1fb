package dto

import "github.com/noah-isme/timetable-engine/internal/models"

// CourseInput is one course in a generation request.
type CourseInput struct {
	ID          string   `json:"id" validate:"required"`
	Name        string   `json:"name"`
	FacultyID   string   `json:"facultyId" validate:"required"`
	Duration    int      `json:"duration" validate:"required,min=1"`
	RoomType    string   `json:"roomType"`
	MinCapacity int      `json:"minCapacity" validate:"min=0"`
	StudentIDs  []string `json:"studentIds"`
}

// RoomInput is one room in a generation request.
type RoomInput struct {
	ID       string `json:"id" validate:"required"`
	Capacity int    `json:"capacity" validate:"required,min=1"`
	Type     string `json:"type"`
}

// PreferenceInput is one department soft preference.
type PreferenceInput struct {
	Department string `json:"department"`
	CourseID   string `json:"courseId" validate:"required"`
	SlotFrom   int    `json:"slotFrom" validate:"min=0"`
	SlotTo     int    `json:"slotTo" validate:"min=0"`
	RoomID     string `json:"roomId"`
	Weight     int    `json:"weight"`
}

// GenerateRequest submits a full snapshot for schedule generation.
type GenerateRequest struct {
	Org         string            `json:"org" validate:"required"`
	Semester    string            `json:"semester" validate:"required"`
	Courses     []CourseInput     `json:"courses" validate:"required,min=1,dive"`
	Rooms       []RoomInput       `json:"rooms" validate:"required,min=1,dive"`
	Preferences []PreferenceInput `json:"preferences" validate:"dive"`
}

// GenerateResponse acknowledges a queued job.
type GenerateResponse struct {
	JobID string `json:"jobId"`
}

// ProgressResponse is the polled progress view. ProgressPercent always
// reflects the coordinator's smoothed value, never a raw stage jump.
type ProgressResponse struct {
	JobID           string  `json:"jobId"`
	Status          string  `json:"status"`
	Stage           string  `json:"stage,omitempty"`
	ProgressPercent float64 `json:"progressPercent"`
	ETASeconds      float64 `json:"etaSeconds,omitempty"`
	Message         string  `json:"message,omitempty"`
}

// AssignmentInput names an existing session placement for conflict and
// incremental operations.
type AssignmentInput struct {
	CourseID     string `json:"courseId" validate:"required"`
	SessionIndex int    `json:"sessionIndex" validate:"min=0"`
	Slot         int    `json:"slot" validate:"min=0"`
	RoomID       string `json:"roomId" validate:"required"`
}

// ScheduleSnapshot carries an existing assignment plus the entities needed
// to validate it.
type ScheduleSnapshot struct {
	Courses     []CourseInput     `json:"courses" validate:"required,min=1,dive"`
	Rooms       []RoomInput       `json:"rooms" validate:"required,min=1,dive"`
	Assignments []AssignmentInput `json:"assignments" validate:"dive"`
}

// ResolveRequest asks for conflict resolution on an existing schedule.
// ConflictID empty (or "all") targets every detected conflict. Auto applies
// confirmed swaps to the returned schedule; without it the run is a dry
// preview and the submitted assignments come back unchanged.
type ResolveRequest struct {
	Snapshot   ScheduleSnapshot `json:"snapshot" validate:"required"`
	ConflictID string           `json:"conflictId"`
	Auto       bool             `json:"auto"`
}

// ResolveResponse reports the outcome of a resolution run. On a preview run
// Assignments is the submitted schedule and Proposed carries the repaired
// layout the swaps would produce.
type ResolveResponse struct {
	Resolved     int                 `json:"resolved"`
	ManualReview [][]string          `json:"manualReview,omitempty"`
	Applied      bool                `json:"applied"`
	Details      []models.Conflict   `json:"details"`
	Assignments  []models.Assignment `json:"assignments"`
	Proposed     []models.Assignment `json:"proposed,omitempty"`
}

// AddCourseRequest adds one course to an existing schedule.
type AddCourseRequest struct {
	Snapshot ScheduleSnapshot `json:"snapshot" validate:"required"`
	Course   CourseInput      `json:"course" validate:"required"`
}

// AddCourseResponse lists the sessions placed for the added course.
type AddCourseResponse struct {
	AssignedSessions []models.Assignment `json:"assignedSessions"`
}

// RemoveCourseRequest removes a course from an existing schedule.
type RemoveCourseRequest struct {
	Snapshot ScheduleSnapshot `json:"snapshot" validate:"required"`
	CourseID string           `json:"courseId" validate:"required"`
}

// RemoveCourseResponse lists the sessions that were removed.
type RemoveCourseResponse struct {
	RemovedSessions []models.SessionRef `json:"removedSessions"`
}

package models

// ConflictType names the resource dimension a conflict occurs on.
type ConflictType string

const (
	ConflictFaculty ConflictType = "FACULTY"
	ConflictRoom    ConflictType = "ROOM"
	ConflictStudent ConflictType = "STUDENT"
)

// ConflictSeverity ranks conflicts for repair ordering.
type ConflictSeverity string

const (
	SeverityHard ConflictSeverity = "HARD"
	SeveritySoft ConflictSeverity = "SOFT"
)

// Conflict records a resource collision at one slot. Conflicts are derived
// from schedule state and recomputable at any time; they are never persisted
// independently.
type Conflict struct {
	ID        string           `json:"id"`
	Type      ConflictType     `json:"type"`
	Severity  ConflictSeverity `json:"severity"`
	Slot      int              `json:"slot"`
	CourseIDs []string         `json:"course_ids"`
	// ResourceID is the colliding faculty, room or student id.
	ResourceID string `json:"resource_id"`
}

// Involves reports whether the conflict touches the given course.
func (c Conflict) Involves(courseID string) bool {
	for _, id := range c.CourseIDs {
		if id == courseID {
			return true
		}
	}
	return false
}

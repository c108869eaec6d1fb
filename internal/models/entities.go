package models

import "fmt"

// RoomType categorises rooms for capacity/type pruning.
type RoomType string

const (
	RoomTypeLecture RoomType = "LECTURE"
	RoomTypeLab     RoomType = "LAB"
	RoomTypeSeminar RoomType = "SEMINAR"
)

// Course is an immutable snapshot of a schedulable course. Duration is the
// number of weekly sessions the course must receive.
type Course struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	FacultyID   string          `json:"faculty_id"`
	Duration    int             `json:"duration"`
	RoomType    RoomType        `json:"room_type"`
	MinCapacity int             `json:"min_capacity"`
	Students    map[string]bool `json:"-"`
}

// NewCourse validates and builds a course record.
func NewCourse(id, name, facultyID string, duration int, roomType RoomType, minCapacity int, students []string) (*Course, error) {
	if id == "" {
		return nil, fmt.Errorf("course id is required")
	}
	if facultyID == "" {
		return nil, fmt.Errorf("course %s: faculty id is required", id)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("course %s: duration must be positive, got %d", id, duration)
	}
	set := make(map[string]bool, len(students))
	for _, s := range students {
		if s != "" {
			set[s] = true
		}
	}
	return &Course{
		ID:          id,
		Name:        name,
		FacultyID:   facultyID,
		Duration:    duration,
		RoomType:    roomType,
		MinCapacity: minCapacity,
		Students:    set,
	}, nil
}

// Enrollment returns the number of enrolled students.
func (c *Course) Enrollment() int {
	return len(c.Students)
}

// Faculty carries identity only; conflict checks key off the ID.
type Faculty struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Room is a bookable room with a fixed capacity and type.
type Room struct {
	ID       string   `json:"id"`
	Capacity int      `json:"capacity"`
	Type     RoomType `json:"type"`
}

// Fits reports whether the room can host the course.
func (r Room) Fits(c *Course) bool {
	if c.RoomType != "" && r.Type != c.RoomType {
		return false
	}
	return r.Capacity >= c.MinCapacity && r.Capacity >= c.Enrollment()
}

// TimeGrid enumerates the fixed day-by-period slot domain. Slot ids run from
// 0 to SlotCount()-1 in day-major order.
type TimeGrid struct {
	Days          int `json:"days"`
	PeriodsPerDay int `json:"periods_per_day"`
}

// SlotCount returns the number of distinct time slots.
func (g TimeGrid) SlotCount() int {
	return g.Days * g.PeriodsPerDay
}

// Day returns the day index of a slot.
func (g TimeGrid) Day(slot int) int {
	if g.PeriodsPerDay == 0 {
		return 0
	}
	return slot / g.PeriodsPerDay
}

// Period returns the within-day period index of a slot.
func (g TimeGrid) Period(slot int) int {
	if g.PeriodsPerDay == 0 {
		return 0
	}
	return slot % g.PeriodsPerDay
}

// SessionRef identifies one schedulable occurrence of a course.
type SessionRef struct {
	CourseID string `json:"course_id"`
	Index    int    `json:"index"`
}

func (s SessionRef) String() string {
	return fmt.Sprintf("%s#%d", s.CourseID, s.Index)
}

// Placement is the (slot, room) pair assigned to one session.
type Placement struct {
	Slot   int    `json:"slot"`
	RoomID string `json:"room_id"`
}

// Assignment pairs a session with its placement for export and API payloads.
type Assignment struct {
	Session   SessionRef `json:"session"`
	Placement Placement  `json:"placement"`
}

// Preference is a soft department wish: schedule a course's sessions inside a
// slot window or into a named room.
type Preference struct {
	Department string `json:"department"`
	CourseID   string `json:"course_id"`
	SlotFrom   int    `json:"slot_from"`
	SlotTo     int    `json:"slot_to"`
	RoomID     string `json:"room_id,omitempty"`
	Weight     int    `json:"weight"`
}

// Matches reports whether the placement satisfies the preference.
func (p Preference) Matches(pl Placement) bool {
	if p.RoomID != "" && p.RoomID != pl.RoomID {
		return false
	}
	if p.SlotTo >= p.SlotFrom && (pl.Slot < p.SlotFrom || pl.Slot > p.SlotTo) {
		return false
	}
	return true
}

package schedule

import (
	"sort"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// DetectConflicts recomputes the full conflict set from the occupancy
// indices. Each (resource, slot) pair with more than one session yields one
// conflict listing the distinct colliding courses.
func (s *State) DetectConflicts() []models.Conflict {
	var out []models.Conflict
	out = append(out, scanOccupancy(s.facultyBusy, models.ConflictFaculty)...)
	out = append(out, scanOccupancy(s.roomBusy, models.ConflictRoom)...)
	out = append(out, scanOccupancy(s.studentBusy, models.ConflictStudent)...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ConflictCount is DetectConflicts without materialising the slice.
func (s *State) ConflictCount() int {
	return countOccupancy(s.facultyBusy) + countOccupancy(s.roomBusy) + countOccupancy(s.studentBusy)
}

// CapacityViolations counts placed sessions whose room fails the course's
// capacity or type requirement. Forced greedy placements can produce these.
func (s *State) CapacityViolations() int {
	violations := 0
	for ref, pl := range s.placements {
		course := s.courses[ref.CourseID]
		if course == nil {
			continue
		}
		room, ok := s.rooms[pl.RoomID]
		if !ok || !room.Fits(course) {
			violations++
		}
	}
	return violations
}

func scanOccupancy(o occupancy, kind models.ConflictType) []models.Conflict {
	var out []models.Conflict
	for resource, slots := range o {
		for slot, refs := range slots {
			if len(refs) < 2 {
				continue
			}
			first := refs[0]
			out = append(out, newConflict(kind, resource, slot, first.CourseID, refs[1:]))
		}
	}
	return out
}

func countOccupancy(o occupancy) int {
	n := 0
	for _, slots := range o {
		for _, refs := range slots {
			if len(refs) > 1 {
				n++
			}
		}
	}
	return n
}

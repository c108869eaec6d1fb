package solver

import (
	"sort"

	"github.com/noah-isme/timetable-engine/internal/engine/schedule"
	"github.com/noah-isme/timetable-engine/internal/models"
)

// greedy is the fallback scheduler: it processes unassigned sessions
// largest-enrollment first and takes the first available capacity-adequate
// (slot, room) pair. Availability is checked against a bounded sample of
// enrolled students to keep the pass cheap. When no conflict-free pair
// exists the check relaxes to capacity only and the resulting overlaps are
// recorded for later repair. The pass always terminates with a complete
// assignment.
func (s *Solver) greedy(courses []*models.Course, rooms map[string]models.Room, grid models.TimeGrid) (map[models.SessionRef]models.Placement, []models.Conflict) {
	sampled := make(map[string]*models.Course, len(courses))
	for _, course := range courses {
		sampled[course.ID] = sampleStudents(course, s.cfg.GreedySampleSize)
	}
	state := schedule.NewState(grid, sampled, rooms)

	ordered := append([]*models.Course(nil), courses...)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Enrollment() != ordered[j].Enrollment() {
			return ordered[i].Enrollment() > ordered[j].Enrollment()
		}
		return ordered[i].ID < ordered[j].ID
	})

	roomIDs := make([]string, 0, len(rooms))
	for id := range rooms {
		roomIDs = append(roomIDs, id)
	}
	// Smallest adequate room first so large rooms stay free for large courses.
	sort.Slice(roomIDs, func(i, j int) bool {
		if rooms[roomIDs[i]].Capacity != rooms[roomIDs[j]].Capacity {
			return rooms[roomIDs[i]].Capacity < rooms[roomIDs[j]].Capacity
		}
		return roomIDs[i] < roomIDs[j]
	})

	var forced []models.Conflict
	for _, course := range ordered {
		for idx := 0; idx < course.Duration; idx++ {
			ref := models.SessionRef{CourseID: course.ID, Index: idx}
			if pl, ok := s.greedyClean(state, sampled[course.ID], ref, roomIDs, rooms, grid); ok {
				_ = state.Apply(ref, pl)
				continue
			}
			pl := s.greedyForced(course, roomIDs, rooms, grid, state)
			forced = append(forced, state.Force(ref, pl)...)
		}
	}

	placements := make(map[models.SessionRef]models.Placement, state.Len())
	for _, a := range state.Assignments() {
		placements[a.Session] = a.Placement
	}
	return placements, forced
}

// greedyClean finds the first capacity-adequate pair the oracle accepts.
func (s *Solver) greedyClean(state *schedule.State, course *models.Course, ref models.SessionRef, roomIDs []string, rooms map[string]models.Room, grid models.TimeGrid) (models.Placement, bool) {
	for slot := 0; slot < grid.SlotCount(); slot++ {
		for _, roomID := range roomIDs {
			if !rooms[roomID].Fits(course) {
				continue
			}
			pl := models.Placement{Slot: slot, RoomID: roomID}
			if len(state.Oracle(ref, pl)) == 0 {
				return pl, true
			}
		}
	}
	return models.Placement{}, false
}

// greedyForced relaxes to capacity-only: the least loaded fitting pair, or
// the largest room outright when nothing fits.
func (s *Solver) greedyForced(course *models.Course, roomIDs []string, rooms map[string]models.Room, grid models.TimeGrid, state *schedule.State) models.Placement {
	for slot := 0; slot < grid.SlotCount(); slot++ {
		for _, roomID := range roomIDs {
			if rooms[roomID].Fits(course) {
				return models.Placement{Slot: slot, RoomID: roomID}
			}
		}
	}
	largest := roomIDs[len(roomIDs)-1]
	return models.Placement{Slot: 0, RoomID: largest}
}

// sampleStudents bounds a course's student set for conflict checking.
func sampleStudents(course *models.Course, bound int) *models.Course {
	if len(course.Students) <= bound {
		return course
	}
	students := make([]string, 0, len(course.Students))
	for student := range course.Students {
		students = append(students, student)
	}
	sort.Strings(students)
	stride := len(students) / bound
	if stride < 1 {
		stride = 1
	}
	subset := make(map[string]bool, bound)
	for i := 0; i < len(students) && len(subset) < bound; i += stride {
		subset[students[i]] = true
	}
	cp := *course
	cp.Students = subset
	return &cp
}

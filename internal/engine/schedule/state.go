package schedule

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// State is the live schedule: the session placement map plus derived
// occupancy indices for faculty, rooms and students. All mutation goes
// through Apply/Force/Remove so the indices can never drift from the map.
type State struct {
	grid    models.TimeGrid
	courses map[string]*models.Course
	rooms   map[string]models.Room

	placements map[models.SessionRef]models.Placement

	facultyBusy occupancy
	roomBusy    occupancy
	studentBusy occupancy
}

// occupancy maps resource id -> slot -> sessions holding the resource there.
type occupancy map[string]map[int][]models.SessionRef

func (o occupancy) add(resource string, slot int, ref models.SessionRef) {
	if o[resource] == nil {
		o[resource] = make(map[int][]models.SessionRef)
	}
	o[resource][slot] = append(o[resource][slot], ref)
}

func (o occupancy) remove(resource string, slot int, ref models.SessionRef) {
	slots := o[resource]
	if slots == nil {
		return
	}
	list := slots[slot]
	for i, held := range list {
		if held == ref {
			slots[slot] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(slots[slot]) == 0 {
		delete(slots, slot)
	}
}

func (o occupancy) clone() occupancy {
	out := make(occupancy, len(o))
	for resource, slots := range o {
		cp := make(map[int][]models.SessionRef, len(slots))
		for slot, refs := range slots {
			cp[slot] = append([]models.SessionRef(nil), refs...)
		}
		out[resource] = cp
	}
	return out
}

// NewState builds an empty schedule over the given entity snapshot.
func NewState(grid models.TimeGrid, courses map[string]*models.Course, rooms map[string]models.Room) *State {
	return &State{
		grid:        grid,
		courses:     courses,
		rooms:       rooms,
		placements:  make(map[models.SessionRef]models.Placement),
		facultyBusy: make(occupancy),
		roomBusy:    make(occupancy),
		studentBusy: make(occupancy),
	}
}

// Grid returns the slot domain.
func (s *State) Grid() models.TimeGrid { return s.grid }

// Course looks up a course by id.
func (s *State) Course(id string) (*models.Course, bool) {
	c, ok := s.courses[id]
	return c, ok
}

// Courses returns the course snapshot.
func (s *State) Courses() map[string]*models.Course { return s.courses }

// AddCourse registers a new course with the snapshot. Its sessions start
// unplaced.
func (s *State) AddCourse(course *models.Course) {
	s.courses[course.ID] = course
}

// Rooms returns the room snapshot.
func (s *State) Rooms() map[string]models.Room { return s.rooms }

// Len returns the number of placed sessions.
func (s *State) Len() int { return len(s.placements) }

// PlacementOf returns the current placement of a session.
func (s *State) PlacementOf(ref models.SessionRef) (models.Placement, bool) {
	p, ok := s.placements[ref]
	return p, ok
}

// Oracle reports the conflicts the candidate placement would introduce
// against the current state. An empty result means the placement is clean.
// The session's own current placement, if any, is ignored so the oracle can
// evaluate moves as well as fresh assignments.
func (s *State) Oracle(ref models.SessionRef, pl models.Placement) []models.Conflict {
	course, ok := s.courses[ref.CourseID]
	if !ok {
		return []models.Conflict{{
			Type:       models.ConflictRoom,
			Severity:   models.SeverityHard,
			Slot:       pl.Slot,
			ResourceID: pl.RoomID,
			CourseIDs:  []string{ref.CourseID},
		}}
	}

	var found []models.Conflict
	if clash := s.holders(s.roomBusy, pl.RoomID, pl.Slot, ref); len(clash) > 0 {
		found = append(found, newConflict(models.ConflictRoom, pl.RoomID, pl.Slot, ref.CourseID, clash))
	}
	if clash := s.holders(s.facultyBusy, course.FacultyID, pl.Slot, ref); len(clash) > 0 {
		found = append(found, newConflict(models.ConflictFaculty, course.FacultyID, pl.Slot, ref.CourseID, clash))
	}
	for student := range course.Students {
		if clash := s.holders(s.studentBusy, student, pl.Slot, ref); len(clash) > 0 {
			found = append(found, newConflict(models.ConflictStudent, student, pl.Slot, ref.CourseID, clash))
		}
	}
	return found
}

// holders returns sessions occupying (resource, slot), excluding the session
// under evaluation.
func (s *State) holders(o occupancy, resource string, slot int, exclude models.SessionRef) []models.SessionRef {
	var out []models.SessionRef
	for _, held := range o[resource][slot] {
		if held != exclude {
			out = append(out, held)
		}
	}
	return out
}

// Apply places a session only if the oracle confirms zero new conflicts.
func (s *State) Apply(ref models.SessionRef, pl models.Placement) error {
	if found := s.Oracle(ref, pl); len(found) > 0 {
		return fmt.Errorf("placement of %s at slot %d room %s introduces %d conflict(s)", ref, pl.Slot, pl.RoomID, len(found))
	}
	s.force(ref, pl)
	return nil
}

// Force places a session unconditionally and returns the conflicts it
// introduced. The greedy fallback uses this when no clean placement exists.
func (s *State) Force(ref models.SessionRef, pl models.Placement) []models.Conflict {
	found := s.Oracle(ref, pl)
	s.force(ref, pl)
	return found
}

func (s *State) force(ref models.SessionRef, pl models.Placement) {
	s.Remove(ref)
	course := s.courses[ref.CourseID]
	s.placements[ref] = pl
	s.roomBusy.add(pl.RoomID, pl.Slot, ref)
	if course != nil {
		s.facultyBusy.add(course.FacultyID, pl.Slot, ref)
		for student := range course.Students {
			s.studentBusy.add(student, pl.Slot, ref)
		}
	}
}

// Remove unplaces a session. Returns false when the session was not placed.
func (s *State) Remove(ref models.SessionRef) bool {
	pl, ok := s.placements[ref]
	if !ok {
		return false
	}
	delete(s.placements, ref)
	s.roomBusy.remove(pl.RoomID, pl.Slot, ref)
	if course := s.courses[ref.CourseID]; course != nil {
		s.facultyBusy.remove(course.FacultyID, pl.Slot, ref)
		for student := range course.Students {
			s.studentBusy.remove(student, pl.Slot, ref)
		}
	}
	return true
}

// RemoveCourse unplaces every session of a course and returns the removed refs.
func (s *State) RemoveCourse(courseID string) []models.SessionRef {
	var removed []models.SessionRef
	for ref := range s.placements {
		if ref.CourseID == courseID {
			removed = append(removed, ref)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].Index < removed[j].Index })
	for _, ref := range removed {
		s.Remove(ref)
	}
	return removed
}

// Clone deep-copies the state. Courses and rooms are shared read-only.
func (s *State) Clone() *State {
	cp := &State{
		grid:        s.grid,
		courses:     s.courses,
		rooms:       s.rooms,
		placements:  make(map[models.SessionRef]models.Placement, len(s.placements)),
		facultyBusy: s.facultyBusy.clone(),
		roomBusy:    s.roomBusy.clone(),
		studentBusy: s.studentBusy.clone(),
	}
	for ref, pl := range s.placements {
		cp.placements[ref] = pl
	}
	return cp
}

// Assignments exports the placement map sorted by course then session index.
func (s *State) Assignments() []models.Assignment {
	out := make([]models.Assignment, 0, len(s.placements))
	for ref, pl := range s.placements {
		out = append(out, models.Assignment{Session: ref, Placement: pl})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Session.CourseID == out[j].Session.CourseID {
			return out[i].Session.Index < out[j].Session.Index
		}
		return out[i].Session.CourseID < out[j].Session.CourseID
	})
	return out
}

// Signature returns a deterministic fingerprint of the placement map, used
// as a fitness cache key.
func (s *State) Signature() string {
	assignments := s.Assignments()
	buf := make([]byte, 0, len(assignments)*16)
	for _, a := range assignments {
		buf = append(buf, a.Session.CourseID...)
		buf = append(buf, '#')
		buf = strconv.AppendInt(buf, int64(a.Session.Index), 10)
		buf = append(buf, '@')
		buf = strconv.AppendInt(buf, int64(a.Placement.Slot), 10)
		buf = append(buf, ':')
		buf = append(buf, a.Placement.RoomID...)
		buf = append(buf, ';')
	}
	return string(buf)
}

func newConflict(kind models.ConflictType, resource string, slot int, courseID string, clash []models.SessionRef) models.Conflict {
	ids := []string{courseID}
	seen := map[string]bool{courseID: true}
	for _, ref := range clash {
		if !seen[ref.CourseID] {
			seen[ref.CourseID] = true
			ids = append(ids, ref.CourseID)
		}
	}
	severity := models.SeverityHard
	if kind == models.ConflictStudent {
		severity = models.SeveritySoft
	}
	return models.Conflict{
		ID:         fmt.Sprintf("%s:%s:%d", kind, resource, slot),
		Type:       kind,
		Severity:   severity,
		Slot:       slot,
		ResourceID: resource,
		CourseIDs:  ids,
	}
}

package solver

import (
	"sort"

	"github.com/samber/lo"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// Strategy selects which constraint families the model carries. Strategies
// are attempted in declaration order, each under its own wall-clock budget.
type Strategy int

const (
	// StrategyFull carries assignment, room, faculty and student constraints.
	StrategyFull Strategy = iota
	// StrategyRelaxedStudents keeps student constraints only for the
	// priority subset of students.
	StrategyRelaxedStudents
	// StrategyEssential keeps assignment, room and faculty constraints only.
	StrategyEssential
)

func (s Strategy) String() string {
	switch s {
	case StrategyFull:
		return "full"
	case StrategyRelaxedStudents:
		return "relaxed_students"
	case StrategyEssential:
		return "essential"
	default:
		return "unknown"
	}
}

// variable is one boolean decision: "this session sits at this slot in this
// room". Only triples surviving capacity/type pruning become variables.
type variable struct {
	session models.SessionRef
	slot    int
	room    string
}

// model is the per-cluster constraint instance. Sessions map to their
// candidate variables (the exactly-one groups); groups are at-most-one sets
// over variable indices for room, faculty and student resources.
type model struct {
	vars        []variable
	sessions    []models.SessionRef
	sessionVars map[models.SessionRef][]int
	groups      [][]int
	varGroups   [][]int
}

// buildModel prunes the (session, slot, room) domain and assembles the
// constraint groups for the chosen strategy.
//
// Faculty and student constraints are modelled at session granularity: every
// session of every course a faculty member teaches competes for the
// (faculty, slot) group individually. Summing whole courses against each
// other would spuriously forbid two multi-session courses from coexisting.
func buildModel(courses []*models.Course, rooms map[string]models.Room, grid models.TimeGrid, strategy Strategy, priority priorityStudents) *model {
	m := &model{sessionVars: make(map[models.SessionRef][]int)}

	roomIDs := lo.Keys(rooms)
	sort.Strings(roomIDs)

	// Domain reduction: invalid (capacity or type mismatch) triples are
	// pruned before variable creation.
	fitting := make(map[string][]string, len(courses))
	for _, course := range courses {
		for _, roomID := range roomIDs {
			if rooms[roomID].Fits(course) {
				fitting[course.ID] = append(fitting[course.ID], roomID)
			}
		}
	}

	for _, course := range courses {
		for idx := 0; idx < course.Duration; idx++ {
			ref := models.SessionRef{CourseID: course.ID, Index: idx}
			m.sessions = append(m.sessions, ref)
			for slot := 0; slot < grid.SlotCount(); slot++ {
				for _, roomID := range fitting[course.ID] {
					vi := len(m.vars)
					m.vars = append(m.vars, variable{session: ref, slot: slot, room: roomID})
					m.sessionVars[ref] = append(m.sessionVars[ref], vi)
				}
			}
		}
	}
	m.varGroups = make([][]int, len(m.vars))

	type resourceSlot struct {
		resource string
		slot     int
	}
	collect := func(key func(v variable) (string, bool)) {
		buckets := make(map[resourceSlot][]int)
		for vi, v := range m.vars {
			resource, ok := key(v)
			if !ok {
				continue
			}
			k := resourceSlot{resource: resource, slot: v.slot}
			buckets[k] = append(buckets[k], vi)
		}
		for _, members := range buckets {
			if len(members) < 2 {
				continue
			}
			gi := len(m.groups)
			m.groups = append(m.groups, members)
			for _, vi := range members {
				m.varGroups[vi] = append(m.varGroups[vi], gi)
			}
		}
	}

	byID := make(map[string]*models.Course, len(courses))
	for _, course := range courses {
		byID[course.ID] = course
	}

	// Room: at most one session per (room, slot).
	collect(func(v variable) (string, bool) { return v.room, true })

	// Faculty: at most one of the faculty's sessions per slot.
	collect(func(v variable) (string, bool) {
		course := byID[v.session.CourseID]
		return course.FacultyID, true
	})

	// Student: at most one enrolled session per slot. Exact for priority
	// students, sampled for the remainder; dropped entirely when essential.
	if strategy != StrategyEssential {
		students := enrolledStudents(courses)
		for _, student := range students {
			if !priority.include(student, strategy) {
				continue
			}
			collect(func(v variable) (string, bool) {
				course := byID[v.session.CourseID]
				if course.Students[student] {
					return student, true
				}
				return "", false
			})
		}
	}

	return m
}

func enrolledStudents(courses []*models.Course) []string {
	set := make(map[string]bool)
	for _, course := range courses {
		for student := range course.Students {
			set[student] = true
		}
	}
	students := lo.Keys(set)
	sort.Strings(students)
	return students
}

// priorityStudents picks which students get exact constraints under the
// relaxed strategy: the top N by total enrollment (the heavy cross-enrolled
// cohort), then every strideth student of the rest as a sample.
type priorityStudents struct {
	rank   map[string]int
	topN   int
	stride int
}

func rankStudents(all map[string]*models.Course, topN, stride int) priorityStudents {
	enrollment := make(map[string]int)
	for _, course := range all {
		for student := range course.Students {
			enrollment[student]++
		}
	}
	students := lo.Keys(enrollment)
	sort.Slice(students, func(i, j int) bool {
		if enrollment[students[i]] != enrollment[students[j]] {
			return enrollment[students[i]] > enrollment[students[j]]
		}
		return students[i] < students[j]
	})
	rank := make(map[string]int, len(students))
	for i, student := range students {
		rank[student] = i
	}
	if stride <= 0 {
		stride = 3
	}
	return priorityStudents{rank: rank, topN: topN, stride: stride}
}

func (p priorityStudents) include(student string, strategy Strategy) bool {
	if strategy == StrategyFull {
		return true
	}
	r, ok := p.rank[student]
	if !ok {
		return false
	}
	if r < p.topN {
		return true
	}
	return r%p.stride == 0
}

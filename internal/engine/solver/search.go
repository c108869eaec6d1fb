package solver

import (
	"time"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// Status is the outcome of one solve attempt.
type Status int

const (
	StatusFeasible Status = iota
	StatusInfeasible
	StatusTimeout
)

func (s Status) String() string {
	switch s {
	case StatusFeasible:
		return "feasible"
	case StatusInfeasible:
		return "infeasible"
	case StatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

const deadlineCheckInterval = 256

// search runs depth-first backtracking with forward checking over the
// at-most-one groups. Sessions are expanded most-constrained-first; a
// variable is selectable only while every group it belongs to is empty,
// which makes unit propagation implicit.
type search struct {
	m        *model
	deadline time.Time

	groupUsed []int
	chosen    map[models.SessionRef]int
	nodes     int
	timedOut  bool
}

func newSearch(m *model, deadline time.Time) *search {
	return &search{
		m:         m,
		deadline:  deadline,
		groupUsed: make([]int, len(m.groups)),
		chosen:    make(map[models.SessionRef]int, len(m.sessions)),
	}
}

func (s *search) run() (Status, map[models.SessionRef]models.Placement) {
	// A session with zero candidate variables can never be assigned; the
	// model is trivially infeasible regardless of search.
	for _, ref := range s.m.sessions {
		if len(s.m.sessionVars[ref]) == 0 {
			return StatusInfeasible, nil
		}
	}

	if !s.extend() {
		if s.timedOut {
			return StatusTimeout, nil
		}
		return StatusInfeasible, nil
	}

	placements := make(map[models.SessionRef]models.Placement, len(s.chosen))
	for ref, vi := range s.chosen {
		v := s.m.vars[vi]
		placements[ref] = models.Placement{Slot: v.slot, RoomID: v.room}
	}
	return StatusFeasible, placements
}

// extend assigns one more session, recursing until all are placed.
func (s *search) extend() bool {
	s.nodes++
	if s.nodes%deadlineCheckInterval == 0 && time.Now().After(s.deadline) {
		s.timedOut = true
		return false
	}

	ref, candidates, done := s.pickSession()
	if done {
		return true
	}
	if len(candidates) == 0 {
		return false
	}

	for _, vi := range candidates {
		s.assign(ref, vi)
		if s.extend() {
			return true
		}
		s.unassign(ref, vi)
		if s.timedOut {
			return false
		}
	}
	return false
}

// pickSession returns the unassigned session with the fewest selectable
// variables (MRV) together with those variables.
func (s *search) pickSession() (models.SessionRef, []int, bool) {
	var bestRef models.SessionRef
	var bestCandidates []int
	found := false

	for _, ref := range s.m.sessions {
		if _, ok := s.chosen[ref]; ok {
			continue
		}
		candidates := s.selectable(ref)
		if !found || len(candidates) < len(bestCandidates) {
			found = true
			bestRef = ref
			bestCandidates = candidates
			if len(candidates) == 0 {
				break
			}
		}
	}
	return bestRef, bestCandidates, !found
}

func (s *search) selectable(ref models.SessionRef) []int {
	var out []int
	for _, vi := range s.m.sessionVars[ref] {
		if s.available(vi) {
			out = append(out, vi)
		}
	}
	return out
}

func (s *search) available(vi int) bool {
	for _, gi := range s.m.varGroups[vi] {
		if s.groupUsed[gi] > 0 {
			return false
		}
	}
	return true
}

func (s *search) assign(ref models.SessionRef, vi int) {
	s.chosen[ref] = vi
	for _, gi := range s.m.varGroups[vi] {
		s.groupUsed[gi]++
	}
}

func (s *search) unassign(ref models.SessionRef, vi int) {
	delete(s.chosen, ref)
	for _, gi := range s.m.varGroups[vi] {
		s.groupUsed[gi]--
	}
}

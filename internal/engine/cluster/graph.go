package cluster

import (
	"sort"

	"github.com/samber/lo"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// facultyOverlapWeight biases the overlap graph toward keeping a faculty
// member's courses together; a shared lecturer constrains harder than a
// single shared student.
const facultyOverlapWeight = 2

// overlapGraph is a weighted undirected graph over course ids. Edge weight is
// the shared-student count plus a faculty-sharing bonus.
type overlapGraph struct {
	weights map[string]map[string]int
	degree  map[string]int
}

func buildOverlapGraph(courses map[string]*models.Course) *overlapGraph {
	g := &overlapGraph{
		weights: make(map[string]map[string]int, len(courses)),
		degree:  make(map[string]int, len(courses)),
	}

	ids := lo.Keys(courses)
	sort.Strings(ids)

	// Invert enrollment so overlap is computed per student, not per course
	// pair: O(students × coursesPerStudent²) instead of O(n²) scans.
	byStudent := make(map[string][]string)
	byFaculty := make(map[string][]string)
	for _, id := range ids {
		course := courses[id]
		byFaculty[course.FacultyID] = append(byFaculty[course.FacultyID], id)
		for student := range course.Students {
			byStudent[student] = append(byStudent[student], id)
		}
	}

	for _, enrolled := range byStudent {
		for i := 0; i < len(enrolled); i++ {
			for j := i + 1; j < len(enrolled); j++ {
				g.addEdge(enrolled[i], enrolled[j], 1)
			}
		}
	}
	for _, taught := range byFaculty {
		for i := 0; i < len(taught); i++ {
			for j := i + 1; j < len(taught); j++ {
				g.addEdge(taught[i], taught[j], facultyOverlapWeight)
			}
		}
	}
	return g
}

func (g *overlapGraph) addEdge(a, b string, w int) {
	if a == b {
		return
	}
	if g.weights[a] == nil {
		g.weights[a] = make(map[string]int)
	}
	if g.weights[b] == nil {
		g.weights[b] = make(map[string]int)
	}
	g.weights[a][b] += w
	g.weights[b][a] += w
	g.degree[a] += w
	g.degree[b] += w
}

// weightTo sums edge weights from a course into a set of courses.
func (g *overlapGraph) weightTo(id string, members map[string]bool) int {
	total := 0
	for other, w := range g.weights[id] {
		if members[other] {
			total += w
		}
	}
	return total
}

package cluster

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-engine/internal/models"
)

func course(t *testing.T, id, faculty string, students ...string) *models.Course {
	t.Helper()
	c, err := models.NewCourse(id, id, faculty, 1, models.RoomTypeLecture, 0, students)
	require.NoError(t, err)
	return c
}

func TestPartitionGroupsByStudentOverlap(t *testing.T) {
	courses := map[string]*models.Course{
		"A": course(t, "A", "F1", "S1", "S2"),
		"B": course(t, "B", "F2", "S1", "S2"),
		"C": course(t, "C", "F3", "S9"),
		"D": course(t, "D", "F4", "S9"),
	}
	engine := NewEngine(Config{MaxSize: 2}, nil)

	clusters := engine.Partition(courses)
	require.Len(t, clusters, 2)

	byCourse := make(map[string]int)
	for _, cl := range clusters {
		for _, id := range cl.CourseIDs {
			byCourse[id] = cl.ID
		}
	}
	assert.Equal(t, byCourse["A"], byCourse["B"])
	assert.Equal(t, byCourse["C"], byCourse["D"])
	assert.NotEqual(t, byCourse["A"], byCourse["C"])
}

func TestPartitionRespectsMaxSize(t *testing.T) {
	courses := make(map[string]*models.Course, 20)
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("C%02d", i)
		// Every course shares one student, forming a single dense component.
		courses[id] = course(t, id, fmt.Sprintf("F%02d", i), "S-common")
	}
	engine := NewEngine(Config{MaxSize: 6}, nil)

	clusters := engine.Partition(courses)
	total := 0
	for _, cl := range clusters {
		assert.LessOrEqual(t, len(cl.CourseIDs), 6)
		total += len(cl.CourseIDs)
	}
	assert.Equal(t, 20, total)
}

func TestPartitionSingletonForIsolatedCourse(t *testing.T) {
	courses := map[string]*models.Course{
		"A": course(t, "A", "F1"),
	}
	clusters := NewEngine(Config{}, nil).Partition(courses)
	require.Len(t, clusters, 1)
	assert.Equal(t, []string{"A"}, clusters[0].CourseIDs)
}

func TestSuperClustersPullInEnrollmentClosure(t *testing.T) {
	courses := map[string]*models.Course{
		"A": course(t, "A", "F1", "S1"),
		"B": course(t, "B", "F2", "S1"),
		// C shares S1 with the conflicting pair but is not itself conflicted.
		"C": course(t, "C", "F3", "S1", "S2"),
		// D is unrelated and must stay out.
		"D": course(t, "D", "F4", "S7"),
	}
	conflicts := []models.Conflict{
		{ID: "STUDENT:S1:0", Type: models.ConflictStudent, Slot: 0, CourseIDs: []string{"A", "B"}, ResourceID: "S1"},
	}

	clusters := NewEngine(Config{}, nil).SuperClusters(courses, conflicts)
	var all []string
	for _, cl := range clusters {
		all = append(all, cl.CourseIDs...)
	}
	assert.ElementsMatch(t, []string{"A", "B", "C"}, all)
}

func TestSuperClustersEmptyWithoutConflicts(t *testing.T) {
	courses := map[string]*models.Course{
		"A": course(t, "A", "F1", "S1"),
	}
	assert.Empty(t, NewEngine(Config{}, nil).SuperClusters(courses, nil))
}

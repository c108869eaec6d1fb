package refine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-engine/internal/engine/cluster"
	"github.com/noah-isme/timetable-engine/internal/engine/schedule"
	"github.com/noah-isme/timetable-engine/internal/models"
)

func course(t *testing.T, id, faculty string, students ...string) *models.Course {
	t.Helper()
	c, err := models.NewCourse(id, id, faculty, 1, models.RoomTypeLecture, 0, students)
	require.NoError(t, err)
	return c
}

// conflictedState builds a two-course schedule with a deliberate faculty
// clash that a single move can fix.
func conflictedState(t *testing.T) (*schedule.State, []cluster.Cluster) {
	t.Helper()
	a := course(t, "A", "F1")
	b := course(t, "B", "F1")
	courses := map[string]*models.Course{"A": a, "B": b}
	rooms := map[string]models.Room{
		"R1": {ID: "R1", Capacity: 30, Type: models.RoomTypeLecture},
		"R2": {ID: "R2", Capacity: 30, Type: models.RoomTypeLecture},
	}
	state := schedule.NewState(models.TimeGrid{Days: 2, PeriodsPerDay: 4}, courses, rooms)
	state.Force(models.SessionRef{CourseID: "A"}, models.Placement{Slot: 0, RoomID: "R1"})
	state.Force(models.SessionRef{CourseID: "B"}, models.Placement{Slot: 0, RoomID: "R2"})
	clusters := []cluster.Cluster{
		{ID: 0, CourseIDs: []string{"A"}},
		{ID: 1, CourseIDs: []string{"B"}},
	}
	return state, clusters
}

func TestRefineReducesConflicts(t *testing.T) {
	state, clusters := conflictedState(t)
	require.Equal(t, 1, state.ConflictCount())

	refiner := New(Config{PopulationSize: 10, Generations: 30, Seed: 7}, Weights{}, nil)
	best, fitness := refiner.Refine(context.Background(), state, clusters, nil, nil)

	assert.Zero(t, best.ConflictCount())
	assert.LessOrEqual(t, fitness, float64(0))
	// The input chromosome is never mutated in place.
	assert.Equal(t, 1, state.ConflictCount())
}

func TestRefineNeverReturnsWorseThanBase(t *testing.T) {
	state, clusters := conflictedState(t)
	baseFitness := evaluate(state, nil, DefaultWeights())

	refiner := New(Config{PopulationSize: 6, Generations: 5, Seed: 3}, Weights{}, nil)
	_, fitness := refiner.Refine(context.Background(), state, clusters, nil, nil)

	// The base chromosome seeds the population, so the best result can only
	// match or beat it.
	assert.LessOrEqual(t, fitness, baseFitness)
}

func TestRefineReportsProgress(t *testing.T) {
	state, clusters := conflictedState(t)
	refiner := New(Config{PopulationSize: 4, Generations: 6, PlateauWindow: 100, Seed: 1}, Weights{}, nil)

	var reports [][2]int
	refiner.Refine(context.Background(), state, clusters, nil, func(done, total int) {
		reports = append(reports, [2]int{done, total})
	})

	require.NotEmpty(t, reports)
	final := reports[len(reports)-1]
	// The final report always closes the stage regardless of plateau exits.
	assert.Equal(t, final[1], final[0])
}

func TestRefineHonoursCancellation(t *testing.T) {
	state, clusters := conflictedState(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	refiner := New(Config{PopulationSize: 4, Generations: 1000, Seed: 1}, Weights{}, nil)
	best, _ := refiner.Refine(ctx, state, clusters, nil, nil)
	require.NotNil(t, best)
}

func TestEvaluatePreferenceSatisfaction(t *testing.T) {
	a := course(t, "A", "F1")
	courses := map[string]*models.Course{"A": a}
	rooms := map[string]models.Room{"R1": {ID: "R1", Capacity: 30, Type: models.RoomTypeLecture}}
	state := schedule.NewState(models.TimeGrid{Days: 1, PeriodsPerDay: 8}, courses, rooms)
	require.NoError(t, state.Apply(models.SessionRef{CourseID: "A"}, models.Placement{Slot: 2, RoomID: "R1"}))

	inWindow := []models.Preference{{CourseID: "A", SlotFrom: 0, SlotTo: 4, Weight: 2}}
	outOfWindow := []models.Preference{{CourseID: "A", SlotFrom: 5, SlotTo: 7, Weight: 2}}

	assert.Less(t, evaluate(state, inWindow, DefaultWeights()), evaluate(state, outOfWindow, DefaultWeights()))
}

func TestFitnessCacheStaysBounded(t *testing.T) {
	cache := newFitnessCache(100, 5)
	for i := 0; i < 1000; i++ {
		cache.put(fmt.Sprintf("key-%d", i), float64(i), 0)
	}
	assert.LessOrEqual(t, cache.size(), 100)
}

func TestFitnessCacheReclaimsStaleEntries(t *testing.T) {
	cache := newFitnessCache(100, 2)
	cache.put("old", 1, 0)
	cache.put("fresh", 2, 9)

	cache.reclaim(10)

	_, ok := cache.get("old")
	assert.False(t, ok)
	_, ok = cache.get("fresh")
	assert.True(t, ok)
}

func TestFitnessCacheEvictClearsAll(t *testing.T) {
	cache := newFitnessCache(100, 5)
	cache.put("a", 1, 0)
	cache.put("b", 2, 0)
	cache.evict()
	assert.Zero(t, cache.size())
}

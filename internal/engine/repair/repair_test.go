package repair

import (
	"context"
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

func newRepairEngine(cfg Config) *Engine {
	return NewEngine(cfg, cluster.NewEngine(cluster.Config{}, nil), nil)
}

// clashState places two same-faculty courses into one slot.
func clashState(t *testing.T) *schedule.State {
	t.Helper()
	courses := map[string]*models.Course{
		"A": course(t, "A", "F1", "S1"),
		"B": course(t, "B", "F1", "S1"),
	}
	rooms := map[string]models.Room{
		"R1": {ID: "R1", Capacity: 30, Type: models.RoomTypeLecture},
		"R2": {ID: "R2", Capacity: 30, Type: models.RoomTypeLecture},
	}
	state := schedule.NewState(models.TimeGrid{Days: 2, PeriodsPerDay: 4}, courses, rooms)
	state.Force(models.SessionRef{CourseID: "A"}, models.Placement{Slot: 0, RoomID: "R1"})
	state.Force(models.SessionRef{CourseID: "B"}, models.Placement{Slot: 0, RoomID: "R2"})
	return state
}

func TestRepairResolvesFacultyClash(t *testing.T) {
	state := clashState(t)
	require.Positive(t, state.ConflictCount())

	engine := newRepairEngine(Config{})
	outcome := engine.Repair(context.Background(), state, NewSearchContext(0.3), nil)

	assert.Zero(t, state.ConflictCount())
	assert.Positive(t, outcome.Resolved)
	assert.Zero(t, outcome.ConflictsAfter)
	assert.Empty(t, outcome.ManualReview)
}

func TestRepairWorksWithColdContext(t *testing.T) {
	// A nil search context disables learned ranking entirely; repair must
	// still resolve through the static earliest-slot heuristic.
	state := clashState(t)
	engine := newRepairEngine(Config{})

	outcome := engine.Repair(context.Background(), state, nil, nil)
	assert.Zero(t, state.ConflictCount())
	assert.Positive(t, outcome.Resolved)
}

func TestRepairNeverRegresses(t *testing.T) {
	// Saturated grid: one slot, one fitting room, three same-faculty courses.
	// No move can help, and the conflict count must not grow.
	courses := map[string]*models.Course{
		"A": course(t, "A", "F1"),
		"B": course(t, "B", "F1"),
		"C": course(t, "C", "F1"),
	}
	rooms := map[string]models.Room{
		"R1": {ID: "R1", Capacity: 30, Type: models.RoomTypeLecture},
	}
	state := schedule.NewState(models.TimeGrid{Days: 1, PeriodsPerDay: 1}, courses, rooms)
	state.Force(models.SessionRef{CourseID: "A"}, models.Placement{Slot: 0, RoomID: "R1"})
	state.Force(models.SessionRef{CourseID: "B"}, models.Placement{Slot: 0, RoomID: "R1"})
	state.Force(models.SessionRef{CourseID: "C"}, models.Placement{Slot: 0, RoomID: "R1"})
	before := state.ConflictCount()

	engine := newRepairEngine(Config{})
	outcome := engine.Repair(context.Background(), state, NewSearchContext(0.3), nil)

	assert.LessOrEqual(t, state.ConflictCount(), before)
	assert.LessOrEqual(t, outcome.ConflictsAfter, outcome.ConflictsBefore)
}

func TestRepairRewardsAppliedSwaps(t *testing.T) {
	state := clashState(t)
	sctx := NewSearchContext(0.5)

	engine := newRepairEngine(Config{})
	outcome := engine.Repair(context.Background(), state, sctx, nil)

	require.Positive(t, outcome.Resolved)
	// Only oracle-confirmed swaps feed the table.
	assert.Equal(t, outcome.Resolved, sctx.Len())
}

func TestRepairPassScopedToSingleConflict(t *testing.T) {
	state := clashState(t)
	conflicts := state.DetectConflicts()
	require.NotEmpty(t, conflicts)

	engine := newRepairEngine(Config{})
	resolved, manual := engine.RepairPass(context.Background(), state, nil, conflicts[:1], nil)

	assert.Positive(t, resolved)
	assert.Empty(t, manual)
	assert.Zero(t, state.ConflictCount())
}

func TestSearchContextRewardConverges(t *testing.T) {
	sctx := NewSearchContext(0.5)
	key := actionKey("A", models.ConflictFaculty, models.Placement{Slot: 1, RoomID: "R1"})

	sctx.Reward(key, 1)
	v1, ok := sctx.Value(key)
	require.True(t, ok)
	assert.InDelta(t, 0.5, v1, 1e-9)

	sctx.Reward(key, 1)
	v2, _ := sctx.Value(key)
	assert.Greater(t, v2, v1)
	assert.LessOrEqual(t, v2, 1.0)
}

func TestSearchContextExportImportRoundTrip(t *testing.T) {
	src := NewSearchContext(0.3)
	src.Reward("k1", 1)
	src.Reward("k2", -1)

	dst := NewSearchContext(0.3)
	dst.Import(src.Export())

	assert.Equal(t, src.Len(), dst.Len())
	v, ok := dst.Value("k1")
	require.True(t, ok)
	want, _ := src.Value("k1")
	assert.Equal(t, want, v)
}

package solver

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// Config tunes solve behaviour. Zero values fall back to defaults.
type Config struct {
	// StrategyBudget is the wall-clock budget per relaxation strategy.
	StrategyBudget time.Duration
	// CapacityThreshold is the minimum slot-room coverage ratio required to
	// attempt exact solving at all.
	CapacityThreshold float64
	// PriorityStudents is how many top cross-enrolled students keep exact
	// constraints under the relaxed strategy.
	PriorityStudents int
	// StudentSampleStride samples every Nth non-priority student.
	StudentSampleStride int
	// GreedySampleSize bounds how many enrolled students the greedy fallback
	// checks per placement.
	GreedySampleSize int
}

func (c Config) withDefaults() Config {
	if c.StrategyBudget <= 0 {
		c.StrategyBudget = 5 * time.Second
	}
	if c.CapacityThreshold <= 0 {
		c.CapacityThreshold = 0.5
	}
	if c.PriorityStudents <= 0 {
		c.PriorityStudents = 30
	}
	if c.StudentSampleStride <= 0 {
		c.StudentSampleStride = 3
	}
	if c.GreedySampleSize <= 0 {
		c.GreedySampleSize = 12
	}
	return c
}

// instantInfeasibleWindow flags "infeasible in ~0 time" results: on a model
// with a large pruned domain that is a modeling defect, not a true
// infeasibility.
const (
	instantInfeasibleWindow = 100 * time.Millisecond
	largeDomainVars         = 10000
)

// Result is the outcome of solving one cluster. Placements is always
// complete for the cluster's sessions; Forced lists conflicts the greedy
// fallback accepted when no clean placement existed.
type Result struct {
	Placements map[models.SessionRef]models.Placement
	Forced     []models.Conflict
	Strategy   Strategy
	Status     Status
	Fallback   bool
	// DefectSignal is set when a strategy returned infeasible in near-zero
	// time against a large domain.
	DefectSignal bool
	Elapsed      time.Duration
}

// Solver assigns one cluster's sessions to (slot, room) pairs. Instances are
// cheap; the pipeline creates one per cluster worker.
type Solver struct {
	cfg    Config
	logger *zap.Logger
}

// New builds a solver.
func New(cfg Config, logger *zap.Logger) *Solver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Solver{cfg: cfg.withDefaults(), logger: logger}
}

// RankStudents precomputes the priority-student ranking over the full course
// snapshot. The same ranking is shared by every cluster solve.
func (s *Solver) RankStudents(all map[string]*models.Course) priorityStudents {
	return rankStudents(all, s.cfg.PriorityStudents, s.cfg.StudentSampleStride)
}

// SolveCluster attempts the relaxation ladder and falls back to greedy
// placement. It always returns a complete assignment for the cluster.
func (s *Solver) SolveCluster(
	ctx context.Context,
	courses []*models.Course,
	rooms map[string]models.Room,
	grid models.TimeGrid,
	priority priorityStudents,
) Result {
	started := time.Now()

	if !s.capacityPlausible(courses, rooms, grid) {
		s.logger.Sugar().Warnw("cluster capacity below threshold, skipping exact solve",
			"courses", len(courses))
		return s.fallback(courses, rooms, grid, started, StatusInfeasible, StrategyFull, false)
	}

	defect := false
	for _, strategy := range []Strategy{StrategyFull, StrategyRelaxedStudents, StrategyEssential} {
		if ctx.Err() != nil {
			break
		}
		m := buildModel(courses, rooms, grid, strategy, priority)

		attemptStart := time.Now()
		deadline := attemptStart.Add(s.cfg.StrategyBudget)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		status, placements := newSearch(m, deadline).run()
		attemptElapsed := time.Since(attemptStart)

		if status == StatusFeasible {
			return Result{
				Placements: placements,
				Strategy:   strategy,
				Status:     StatusFeasible,
				Elapsed:    time.Since(started),
			}
		}
		if status == StatusInfeasible && attemptElapsed < instantInfeasibleWindow && len(m.vars) >= largeDomainVars {
			defect = true
			s.logger.Sugar().Errorw("instant infeasible on large pruned domain, likely modeling defect",
				"strategy", strategy.String(), "variables", len(m.vars), "elapsed", attemptElapsed)
		}
		s.logger.Sugar().Infow("strategy exhausted",
			"strategy", strategy.String(), "status", status.String(),
			"variables", len(m.vars), "elapsed", attemptElapsed)
	}

	return s.fallback(courses, rooms, grid, started, StatusInfeasible, StrategyEssential, defect)
}

// capacityPlausible estimates whether the cluster's (slot × room) capacity
// can cover the required session count at the relaxed threshold.
func (s *Solver) capacityPlausible(courses []*models.Course, rooms map[string]models.Room, grid models.TimeGrid) bool {
	required := 0
	for _, course := range courses {
		required += course.Duration
	}
	if required == 0 {
		return true
	}
	pairs := grid.SlotCount() * len(rooms)
	return float64(pairs) >= s.cfg.CapacityThreshold*float64(required)
}

func (s *Solver) fallback(courses []*models.Course, rooms map[string]models.Room, grid models.TimeGrid, started time.Time, status Status, strategy Strategy, defect bool) Result {
	placements, forced := s.greedy(courses, rooms, grid)
	return Result{
		Placements:   placements,
		Forced:       forced,
		Strategy:     strategy,
		Status:       status,
		Fallback:     true,
		DefectSignal: defect,
		Elapsed:      time.Since(started),
	}
}

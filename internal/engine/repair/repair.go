package repair

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/engine/cluster"
	"github.com/noah-isme/timetable-engine/internal/engine/schedule"
	"github.com/noah-isme/timetable-engine/internal/models"
)

// Config tunes the repair pass.
type Config struct {
	// MaxCandidates bounds how many oracle-clean placements are ranked per
	// conflicted session.
	MaxCandidates int
	// MaxPasses bounds full repair sweeps over the conflict set.
	MaxPasses int
	// LearningRate is the step size for search-context value updates.
	LearningRate float64
}

func (c Config) withDefaults() Config {
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = 20
	}
	if c.MaxPasses <= 0 {
		c.MaxPasses = 3
	}
	if c.LearningRate <= 0 || c.LearningRate > 1 {
		c.LearningRate = 0.3
	}
	return c
}

// Outcome summarises a repair run. ManualReview lists super-cluster course
// sets whose pass regressed and was rolled back.
type Outcome struct {
	Resolved        int
	ConflictsBefore int
	ConflictsAfter  int
	ManualReview    [][]string
}

// Engine resolves residual conflicts through validated slot/room swaps
// inside super-clusters.
type Engine struct {
	cfg       Config
	clusterer *cluster.Engine
	logger    *zap.Logger
}

// NewEngine builds a repair engine sharing the pipeline's clusterer.
func NewEngine(cfg Config, clusterer *cluster.Engine, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg.withDefaults(), clusterer: clusterer, logger: logger}
}

// Repair runs bounded sweeps over the current conflict set. Swaps within a
// super-cluster apply sequentially: each application changes the feasible
// set for the next. Super-clusters also apply sequentially here because
// every scope mutates the one shared placement map; their footprints are
// rarely disjoint once student overlap is honoured.
//
// Invariant: per scope and globally, the conflict count after a pass never
// exceeds the count before it. A regressing scope is rolled back and queued
// for manual review instead of committed.
func (e *Engine) Repair(ctx context.Context, state *schedule.State, sctx *SearchContext, report func(done, total int)) Outcome {
	outcome := Outcome{ConflictsBefore: state.ConflictCount()}
	outcome.ConflictsAfter = outcome.ConflictsBefore

	for pass := 0; pass < e.cfg.MaxPasses; pass++ {
		if ctx.Err() != nil {
			break
		}
		conflicts := state.DetectConflicts()
		if len(conflicts) == 0 {
			break
		}
		resolved, manual := e.RepairPass(ctx, state, sctx, conflicts, func(done, total int) {
			if report != nil {
				report(pass*total+done, e.cfg.MaxPasses*total)
			}
		})
		outcome.Resolved += resolved
		outcome.ManualReview = append(outcome.ManualReview, manual...)
		after := state.ConflictCount()
		if after == outcome.ConflictsAfter {
			// No progress this sweep; further passes would repeat it.
			break
		}
		outcome.ConflictsAfter = after
	}

	outcome.ConflictsAfter = state.ConflictCount()
	e.logger.Sugar().Infow("repair finished",
		"resolved_swaps", outcome.Resolved,
		"conflicts_before", outcome.ConflictsBefore,
		"conflicts_after", outcome.ConflictsAfter,
		"manual_review", len(outcome.ManualReview))
	return outcome
}

// RepairPass runs one sweep over the given conflicts: super-clusters are
// built from them and each scope is repaired with rollback on regression.
// Callers can pass a filtered conflict slice to scope resolution to a single
// conflict.
func (e *Engine) RepairPass(ctx context.Context, state *schedule.State, sctx *SearchContext, conflicts []models.Conflict, report func(done, total int)) (int, [][]string) {
	supers := e.clusterer.SuperClusters(state.Courses(), conflicts)
	resolved := 0
	var manual [][]string
	for i, super := range supers {
		if ctx.Err() != nil {
			break
		}
		n, reviewed := e.repairScope(state, sctx, super, conflicts)
		resolved += n
		if reviewed {
			manual = append(manual, super.CourseIDs)
		}
		if report != nil {
			report(i+1, len(supers))
		}
	}
	return resolved, manual
}

// repairScope repairs one super-cluster, rolling back if the scope regresses.
func (e *Engine) repairScope(state *schedule.State, sctx *SearchContext, super cluster.Cluster, conflicts []models.Conflict) (int, bool) {
	scope := make(map[string]bool, len(super.CourseIDs))
	for _, id := range super.CourseIDs {
		scope[id] = true
	}

	before := conflictsInScope(state, scope)
	if before == 0 {
		return 0, false
	}
	snapshot := snapshotScope(state, scope)

	resolved := 0
	for _, target := range rankTargets(conflicts, scope) {
		if e.repairSession(state, sctx, target) {
			resolved++
		}
	}

	after := conflictsInScope(state, scope)
	if after > before {
		restoreScope(state, scope, snapshot)
		e.logger.Sugar().Warnw("repair pass regressed, rolled back scope",
			"courses", len(super.CourseIDs), "before", before, "after", after)
		return 0, true
	}
	return resolved, false
}

// target is one conflicted session to move.
type target struct {
	session      models.SessionRef
	conflictType models.ConflictType
}

// rankTargets orders conflicted sessions worst-first: sessions implicated in
// the most conflicts move first, which frees the most contested resources.
func rankTargets(conflicts []models.Conflict, scope map[string]bool) []target {
	load := make(map[string]int)
	kind := make(map[string]models.ConflictType)
	for _, conflict := range conflicts {
		for _, id := range conflict.CourseIDs {
			if scope[id] {
				load[id]++
				if _, ok := kind[id]; !ok {
					kind[id] = conflict.Type
				}
			}
		}
	}

	ids := make([]string, 0, len(load))
	for id := range load {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if load[ids[i]] != load[ids[j]] {
			return load[ids[i]] > load[ids[j]]
		}
		return ids[i] < ids[j]
	})

	var out []target
	for _, id := range ids {
		// One session per course per pass keeps moves small and revalidated.
		out = append(out, target{
			session:      models.SessionRef{CourseID: id, Index: 0},
			conflictType: kind[id],
		})
	}
	return out
}

// repairSession finds the session's worst-conflicted placement and moves it
// to the best oracle-clean candidate. Returns true only when the oracle
// confirmed the applied swap; unvalidated moves are never counted.
func (e *Engine) repairSession(state *schedule.State, sctx *SearchContext, t target) bool {
	session, ok := worstSession(state, t.session.CourseID)
	if !ok {
		return false
	}
	candidates := e.feasiblePlacements(state, session)
	if len(candidates) == 0 {
		return false
	}
	e.rank(sctx, t.session.CourseID, t.conflictType, candidates)

	// Apply validates through the oracle and leaves the session untouched on
	// rejection, so a failed candidate needs no restore.
	for _, candidate := range candidates {
		if err := state.Apply(session, candidate); err != nil {
			continue
		}
		if sctx != nil {
			sctx.Reward(actionKey(t.session.CourseID, t.conflictType, candidate), 1)
		}
		return true
	}
	return false
}

// worstSession picks the course session currently involved in conflicts.
func worstSession(state *schedule.State, courseID string) (models.SessionRef, bool) {
	course, ok := state.Course(courseID)
	if !ok {
		return models.SessionRef{}, false
	}
	for idx := 0; idx < course.Duration; idx++ {
		ref := models.SessionRef{CourseID: courseID, Index: idx}
		pl, placed := state.PlacementOf(ref)
		if !placed {
			continue
		}
		if len(state.Oracle(ref, pl)) > 0 {
			return ref, true
		}
	}
	return models.SessionRef{}, false
}

// feasiblePlacements enumerates capacity-adequate candidates the oracle
// accepts against the current state, earliest slot first.
func (e *Engine) feasiblePlacements(state *schedule.State, session models.SessionRef) []models.Placement {
	course, ok := state.Course(session.CourseID)
	if !ok {
		return nil
	}
	grid := state.Grid()
	rooms := state.Rooms()
	roomIDs := make([]string, 0, len(rooms))
	for id := range rooms {
		if rooms[id].Fits(course) {
			roomIDs = append(roomIDs, id)
		}
	}
	sort.Strings(roomIDs)

	var out []models.Placement
	for slot := 0; slot < grid.SlotCount() && len(out) < e.cfg.MaxCandidates; slot++ {
		for _, roomID := range roomIDs {
			candidate := models.Placement{Slot: slot, RoomID: roomID}
			if len(state.Oracle(session, candidate)) == 0 {
				out = append(out, candidate)
				break
			}
		}
	}
	return out
}

// rank orders candidates by learned value when the table has entries, else
// keeps the static earliest-slot order.
func (e *Engine) rank(sctx *SearchContext, courseID string, conflictType models.ConflictType, candidates []models.Placement) {
	if sctx == nil || sctx.Len() == 0 {
		return
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		vi, _ := sctx.Value(actionKey(courseID, conflictType, candidates[i]))
		vj, _ := sctx.Value(actionKey(courseID, conflictType, candidates[j]))
		return vi > vj
	})
}

func conflictsInScope(state *schedule.State, scope map[string]bool) int {
	count := 0
	for _, conflict := range state.DetectConflicts() {
		for _, id := range conflict.CourseIDs {
			if scope[id] {
				count++
				break
			}
		}
	}
	return count
}

func snapshotScope(state *schedule.State, scope map[string]bool) map[models.SessionRef]models.Placement {
	snapshot := make(map[models.SessionRef]models.Placement)
	for _, a := range state.Assignments() {
		if scope[a.Session.CourseID] {
			snapshot[a.Session] = a.Placement
		}
	}
	return snapshot
}

func restoreScope(state *schedule.State, scope map[string]bool, snapshot map[models.SessionRef]models.Placement) {
	for courseID := range scope {
		state.RemoveCourse(courseID)
	}
	for ref, pl := range snapshot {
		state.Force(ref, pl)
	}
}

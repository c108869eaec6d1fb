package refine

import (
	"context"
	"math/rand"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/engine/cluster"
	"github.com/noah-isme/timetable-engine/internal/engine/schedule"
	"github.com/noah-isme/timetable-engine/internal/models"
)

// Config tunes the generational loop.
type Config struct {
	PopulationSize int
	Generations    int
	// MutationRate is the fraction of sessions reassigned per mutation;
	// kept small to bound per-generation allocations.
	MutationRate    float64
	TournamentSize  int
	EliteCount      int
	PlateauWindow   int
	CacheMaxSize    int
	CacheEvictEvery int
	Seed            int64
}

func (c Config) withDefaults() Config {
	if c.PopulationSize <= 0 {
		c.PopulationSize = 20
	}
	if c.Generations <= 0 {
		c.Generations = 40
	}
	if c.MutationRate <= 0 {
		c.MutationRate = 0.02
	}
	if c.TournamentSize <= 0 {
		c.TournamentSize = 3
	}
	if c.EliteCount <= 0 {
		c.EliteCount = 2
	}
	if c.PlateauWindow <= 0 {
		c.PlateauWindow = 10
	}
	if c.CacheEvictEvery <= 0 {
		c.CacheEvictEvery = 5
	}
	return c
}

// Refiner evolves complete candidate schedules to reduce conflicts and
// improve soft-preference satisfaction across cluster boundaries.
type Refiner struct {
	cfg     Config
	weights Weights
	logger  *zap.Logger
}

// New builds a refiner.
func New(cfg Config, weights Weights, logger *zap.Logger) *Refiner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	return &Refiner{cfg: cfg.withDefaults(), weights: weights, logger: logger}
}

type individual struct {
	state   *schedule.State
	fitness float64
}

// Refine runs the generational loop and returns the best chromosome found
// together with its fitness. The input state is not mutated. report, when
// non-nil, receives (generationsDone, totalGenerations) after every
// generation.
func (r *Refiner) Refine(
	ctx context.Context,
	base *schedule.State,
	clusters []cluster.Cluster,
	prefs []models.Preference,
	report func(done, total int),
) (*schedule.State, float64) {
	cfg := r.cfg
	rng := rand.New(rand.NewSource(cfg.Seed))
	cache := newFitnessCache(cfg.CacheMaxSize, cfg.CacheEvictEvery)

	population := make([]individual, 0, cfg.PopulationSize)
	population = append(population, individual{state: base.Clone()})
	for len(population) < cfg.PopulationSize {
		mutant := base.Clone()
		r.mutate(mutant, rng)
		population = append(population, individual{state: mutant})
	}
	r.score(population, prefs, cache, 0)
	sortByFitness(population)

	best := population[0]
	plateau := 0

	for generation := 1; generation <= cfg.Generations; generation++ {
		if ctx.Err() != nil {
			break
		}

		next := make([]individual, 0, cfg.PopulationSize)
		for i := 0; i < cfg.EliteCount && i < len(population); i++ {
			next = append(next, individual{state: population[i].state.Clone()})
		}
		for len(next) < cfg.PopulationSize {
			parentA := r.tournament(population, rng)
			parentB := r.tournament(population, rng)
			child := r.crossover(parentA.state, parentB.state, clusters, rng)
			r.mutate(child, rng)
			next = append(next, individual{state: child})
		}

		r.score(next, prefs, cache, generation)
		sortByFitness(next)
		population = next

		if population[0].fitness < best.fitness {
			best = individual{state: population[0].state.Clone(), fitness: population[0].fitness}
			plateau = 0
		} else {
			plateau++
		}

		cache.reclaim(generation)
		if generation%r.cfg.CacheEvictEvery == 0 {
			cache.evict()
		}
		if report != nil {
			report(generation, cfg.Generations)
		}
		if plateau >= cfg.PlateauWindow {
			r.logger.Sugar().Infow("fitness plateau reached",
				"generation", generation, "best_fitness", best.fitness)
			break
		}
	}

	if report != nil {
		report(cfg.Generations, cfg.Generations)
	}
	r.logger.Sugar().Infow("refinement finished",
		"best_fitness", best.fitness, "conflicts", best.state.ConflictCount(),
		"cache_size", cache.size())
	return best.state, best.fitness
}

// score evaluates fitness for the generation; individuals within a
// generation are independent, so evaluation fans out across goroutines.
func (r *Refiner) score(population []individual, prefs []models.Preference, cache *fitnessCache, generation int) {
	var wg sync.WaitGroup
	for i := range population {
		key := population[i].state.Signature()
		if value, ok := cache.get(key); ok {
			population[i].fitness = value
			continue
		}
		wg.Add(1)
		go func(ind *individual, key string) {
			defer wg.Done()
			ind.fitness = evaluate(ind.state, prefs, r.weights)
			cache.put(key, ind.fitness, generation)
		}(&population[i], key)
	}
	wg.Wait()
}

func (r *Refiner) tournament(population []individual, rng *rand.Rand) individual {
	best := population[rng.Intn(len(population))]
	for i := 1; i < r.cfg.TournamentSize; i++ {
		challenger := population[rng.Intn(len(population))]
		if challenger.fitness < best.fitness {
			best = challenger
		}
	}
	return best
}

// crossover exchanges contiguous cluster-aligned sub-maps: the child starts
// as parent A and inherits whole clusters from parent B, preserving the
// locally consistent sub-schedules exact solving produced.
func (r *Refiner) crossover(a, b *schedule.State, clusters []cluster.Cluster, rng *rand.Rand) *schedule.State {
	child := a.Clone()
	if len(clusters) < 2 {
		return child
	}
	take := rng.Intn(len(clusters)/2) + 1
	start := rng.Intn(len(clusters))
	for i := 0; i < take; i++ {
		donor := clusters[(start+i)%len(clusters)]
		for _, courseID := range donor.CourseIDs {
			child.RemoveCourse(courseID)
		}
		for _, courseID := range donor.CourseIDs {
			course, ok := b.Course(courseID)
			if !ok {
				continue
			}
			for idx := 0; idx < course.Duration; idx++ {
				ref := models.SessionRef{CourseID: courseID, Index: idx}
				if pl, ok := b.PlacementOf(ref); ok {
					child.Force(ref, pl)
				}
			}
		}
	}
	return child
}

// mutate reassigns a small fraction of sessions to an alternate valid
// placement. Candidates failing the oracle are skipped rather than forced.
func (r *Refiner) mutate(state *schedule.State, rng *rand.Rand) {
	assignments := state.Assignments()
	if len(assignments) == 0 {
		return
	}
	grid := state.Grid()
	rooms := state.Rooms()
	roomIDs := make([]string, 0, len(rooms))
	for id := range rooms {
		roomIDs = append(roomIDs, id)
	}
	sort.Strings(roomIDs)

	budget := int(float64(len(assignments)) * r.cfg.MutationRate)
	if budget < 1 {
		budget = 1
	}
	for i := 0; i < budget; i++ {
		target := assignments[rng.Intn(len(assignments))]
		course, ok := state.Course(target.Session.CourseID)
		if !ok {
			continue
		}
		for attempt := 0; attempt < 4; attempt++ {
			roomID := roomIDs[rng.Intn(len(roomIDs))]
			if !rooms[roomID].Fits(course) {
				continue
			}
			candidate := models.Placement{Slot: rng.Intn(grid.SlotCount()), RoomID: roomID}
			prev := target.Placement
			state.Remove(target.Session)
			if err := state.Apply(target.Session, candidate); err == nil {
				break
			}
			state.Force(target.Session, prev)
		}
	}
}

func sortByFitness(population []individual) {
	sort.Slice(population, func(i, j int) bool {
		return population[i].fitness < population[j].fitness
	})
}

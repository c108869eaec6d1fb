package refine

import (
	"sync"

	"github.com/noah-isme/timetable-engine/internal/engine/schedule"
	"github.com/noah-isme/timetable-engine/internal/models"
)

// Weights balance the fitness terms. Conflicts must dominate: refinement is
// never allowed to trade a conflict away for preference satisfaction.
type Weights struct {
	Conflict   float64
	Capacity   float64
	Preference float64
}

// DefaultWeights keeps conflicts two orders of magnitude above preferences.
func DefaultWeights() Weights {
	return Weights{Conflict: 1000, Capacity: 50, Preference: 10}
}

// evaluate scores a chromosome; lower is better.
func evaluate(state *schedule.State, prefs []models.Preference, w Weights) float64 {
	score := w.Conflict * float64(state.ConflictCount())
	score += w.Capacity * float64(state.CapacityViolations())

	satisfied := 0
	for _, pref := range prefs {
		for idx := 0; ; idx++ {
			ref := models.SessionRef{CourseID: pref.CourseID, Index: idx}
			pl, ok := state.PlacementOf(ref)
			if !ok {
				break
			}
			if pref.Matches(pl) {
				satisfied += pref.Weight
			}
		}
	}
	score -= w.Preference * float64(satisfied)
	return score
}

// fitnessCache memoises chromosome fitness keyed by placement signature.
// Large chromosomes produce large keys, so the cache is hard-bounded and
// reclaimed continuously; unbounded growth here has caused out-of-memory
// terminations on multi-thousand-session runs.
type fitnessCache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	maxEntries int
	keepWindow int
}

type cacheEntry struct {
	value      float64
	generation int
}

func newFitnessCache(maxEntries, keepWindow int) *fitnessCache {
	if maxEntries <= 0 {
		maxEntries = 2048
	}
	if keepWindow <= 0 {
		keepWindow = 5
	}
	return &fitnessCache{
		entries:    make(map[string]cacheEntry),
		maxEntries: maxEntries,
		keepWindow: keepWindow,
	}
}

func (c *fitnessCache) get(key string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	return entry.value, ok
}

func (c *fitnessCache) put(key string, value float64, generation int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxEntries {
		c.dropOldestLocked(len(c.entries) / 4)
	}
	c.entries[key] = cacheEntry{value: value, generation: generation}
}

// reclaim runs every generation: entries unused for keepWindow generations
// are released so memory stays flat across long runs.
func (c *fitnessCache) reclaim(generation int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if generation-entry.generation > c.keepWindow {
			delete(c.entries, key)
		}
	}
}

// evict clears the cache wholesale on the fixed eviction cadence.
func (c *fitnessCache) evict() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

func (c *fitnessCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *fitnessCache) dropOldestLocked(n int) {
	if n <= 0 {
		n = 1
	}
	for key := range c.entries {
		delete(c.entries, key)
		n--
		if n == 0 {
			return
		}
	}
}

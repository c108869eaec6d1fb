package repair

import (
	"fmt"
	"sync"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// SearchContext owns the learned value table used to rank repair candidates.
// It is passed explicitly through the repair stage rather than held as shared
// module state, so runs stay isolated and the table can be transferred
// between runs (e.g. via the redis store).
type SearchContext struct {
	mu    sync.Mutex
	alpha float64
	table map[string]float64
}

// NewSearchContext builds an empty context with the given learning rate.
func NewSearchContext(alpha float64) *SearchContext {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.3
	}
	return &SearchContext{alpha: alpha, table: make(map[string]float64)}
}

// actionKey fingerprints a (conflicted course, candidate placement) pair.
func actionKey(courseID string, conflictType models.ConflictType, pl models.Placement) string {
	return fmt.Sprintf("%s|%s|%d|%s", courseID, conflictType, pl.Slot, pl.RoomID)
}

// Value returns the learned value for an action, if any.
func (c *SearchContext) Value(key string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.table[key]
	return v, ok
}

// Reward nudges an action's value toward the observed reward.
func (c *SearchContext) Reward(key string, reward float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.table[key]
	c.table[key] = current + c.alpha*(reward-current)
}

// Len reports the number of learned entries. A zero-length table disables
// learned ranking in favour of the static heuristic.
func (c *SearchContext) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.table)
}

// Export snapshots the table for persistence.
func (c *SearchContext) Export() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64, len(c.table))
	for k, v := range c.table {
		out[k] = v
	}
	return out
}

// Import merges a previously exported table, enabling transfer from a prior
// run.
func (c *SearchContext) Import(table map[string]float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range table {
		c.table[k] = v
	}
}

package cluster

import (
	"sort"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// Cluster is a bounded group of courses solved as one constraint model.
type Cluster struct {
	ID        int
	CourseIDs []string
}

// Config bounds cluster sizes. MaxSize keeps exact solving tractable;
// SuperMaxSize is the larger bound used for conflict repair, where a
// student's entire cross-enrolled course set must land in one group.
type Config struct {
	MaxSize      int
	SuperMaxSize int
}

// Engine partitions the course set along the shared-student/shared-faculty
// overlap graph.
type Engine struct {
	cfg    Config
	logger *zap.Logger
}

// NewEngine builds a clustering engine.
func NewEngine(cfg Config, logger *zap.Logger) *Engine {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 15
	}
	if cfg.SuperMaxSize <= 0 {
		cfg.SuperMaxSize = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, logger: logger}
}

// Partition groups courses into clusters no larger than MaxSize using a
// greedy modularity pass: courses join the cluster they share the most
// overlap weight with, heaviest courses first. Singleton clusters are valid.
func (e *Engine) Partition(courses map[string]*models.Course) []Cluster {
	clusters := e.partition(courses, nil, e.cfg.MaxSize)
	if len(clusters) == 1 && len(courses) > e.cfg.MaxSize {
		// Degenerate but workable: downstream stages lose tractability only.
		e.logger.Sugar().Warnw("clustering degenerated to a single cluster",
			"courses", len(courses), "max_size", e.cfg.MaxSize)
	}
	e.logger.Sugar().Infow("courses partitioned",
		"courses", len(courses), "clusters", len(clusters))
	return clusters
}

// SuperClusters groups the conflicting subset of courses using the larger
// repair bound, pulling in each involved student's full enrolled course set
// so cross-department overlaps are visible to the repair stage.
func (e *Engine) SuperClusters(courses map[string]*models.Course, conflicts []models.Conflict) []Cluster {
	seed := make(map[string]bool)
	for _, conflict := range conflicts {
		for _, id := range conflict.CourseIDs {
			seed[id] = true
		}
	}

	// Enrollment closure: any course sharing a student with a seeded course
	// joins the candidate set.
	cohort := make(map[string]bool)
	for id := range seed {
		course, ok := courses[id]
		if !ok {
			continue
		}
		for student := range course.Students {
			cohort[student] = true
		}
	}
	candidates := make(map[string]*models.Course)
	for id, course := range courses {
		if seed[id] {
			candidates[id] = course
			continue
		}
		for student := range course.Students {
			if cohort[student] {
				candidates[id] = course
				break
			}
		}
	}

	return e.partition(candidates, seed, e.cfg.SuperMaxSize)
}

// partition runs the greedy pass. When seed is non-nil, seeded courses are
// placed first so every cluster anchors on at least one conflicting course.
func (e *Engine) partition(courses map[string]*models.Course, seed map[string]bool, maxSize int) []Cluster {
	if len(courses) == 0 {
		return nil
	}
	graph := buildOverlapGraph(courses)

	order := lo.Keys(courses)
	sort.Slice(order, func(i, j int) bool {
		if seed != nil && seed[order[i]] != seed[order[j]] {
			return seed[order[i]]
		}
		if graph.degree[order[i]] != graph.degree[order[j]] {
			return graph.degree[order[i]] > graph.degree[order[j]]
		}
		return order[i] < order[j]
	})

	var memberships []map[string]bool
	for _, id := range order {
		best := -1
		bestWeight := 0
		for ci, members := range memberships {
			if len(members) >= maxSize {
				continue
			}
			if w := graph.weightTo(id, members); w > bestWeight {
				best, bestWeight = ci, w
			}
		}
		if best == -1 {
			memberships = append(memberships, map[string]bool{id: true})
			continue
		}
		memberships[best][id] = true
	}

	clusters := make([]Cluster, 0, len(memberships))
	for i, members := range memberships {
		ids := lo.Keys(members)
		sort.Strings(ids)
		clusters = append(clusters, Cluster{ID: i, CourseIDs: ids})
	}
	return clusters
}

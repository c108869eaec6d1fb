package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// StageBoundary declares the [Start%, End%] band a pipeline stage owns.
type StageBoundary struct {
	Stage models.PipelineStage
	Start float64
	End   float64
}

// DefaultBoundaries apportions the displayed range across the four stages.
func DefaultBoundaries() []StageBoundary {
	return []StageBoundary{
		{Stage: models.StageClustering, Start: 0, End: 10},
		{Stage: models.StageSolving, Start: 10, End: 55},
		{Stage: models.StageRefining, Start: 55, End: 80},
		{Stage: models.StageRepairing, Start: 80, End: 100},
	}
}

// Snapshot is the client-visible progress view.
type Snapshot struct {
	Status  models.JobStatus
	Stage   models.PipelineStage
	Percent float64
	ETA     time.Duration
	Message string
}

// Tracker accumulates raw work reports for one job. Stages write only the
// atomic counters; they never touch the displayed percentage.
type Tracker struct {
	jobID string

	stageIdx int64
	done     int64
	total    int64
}

// SetStage moves the tracker into a stage band and resets the raw counters.
func (t *Tracker) SetStage(idx int) {
	atomic.StoreInt64(&t.done, 0)
	atomic.StoreInt64(&t.total, 0)
	atomic.StoreInt64(&t.stageIdx, int64(idx))
}

// Report records raw work completed, e.g. "generation 7 of 20". Reports may
// arrive bursty or out of order; the smoothing loop tolerates both.
func (t *Tracker) Report(done, total int) {
	atomic.StoreInt64(&t.total, int64(total))
	atomic.StoreInt64(&t.done, int64(done))
}

type jobState struct {
	tracker   *Tracker
	status    models.JobStatus
	message   string
	displayed float64
	startedAt time.Time
}

// Coordinator owns the smoothed, monotonic, client-visible percentage for
// every job. A single timer-driven loop advances displayed values toward
// each stage's target; no worker writes the percentage directly.
type Coordinator struct {
	boundaries []StageBoundary
	interval   time.Duration
	logger     *zap.Logger

	mu     sync.Mutex
	jobs   map[string]*jobState
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCoordinator builds a coordinator over the given stage boundaries.
func NewCoordinator(boundaries []StageBoundary, interval time.Duration, logger *zap.Logger) *Coordinator {
	if len(boundaries) == 0 {
		boundaries = DefaultBoundaries()
	}
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		boundaries: boundaries,
		interval:   interval,
		logger:     logger,
		jobs:       make(map[string]*jobState),
	}
}

// StageIndex resolves a stage to its boundary index.
func (c *Coordinator) StageIndex(stage models.PipelineStage) int {
	for i, b := range c.boundaries {
		if b.Stage == stage {
			return i
		}
	}
	return 0
}

// Register creates tracking state for a queued job.
func (c *Coordinator) Register(jobID string) *Tracker {
	tracker := &Tracker{jobID: jobID}
	c.mu.Lock()
	c.jobs[jobID] = &jobState{tracker: tracker, status: models.JobStatusQueued}
	c.mu.Unlock()
	return tracker
}

// MarkRunning transitions a queued job to running.
func (c *Coordinator) MarkRunning(jobID string) error {
	return c.transition(jobID, models.JobStatusRunning, "")
}

// Finish moves a job to a terminal status. Completed jobs snap to 100%.
func (c *Coordinator) Finish(jobID string, status models.JobStatus, message string) error {
	if !status.Terminal() {
		return fmt.Errorf("status %s is not terminal", status)
	}
	return c.transition(jobID, status, message)
}

func (c *Coordinator) transition(jobID string, next models.JobStatus, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok := c.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s not registered", jobID)
	}
	if job.status.Terminal() {
		return fmt.Errorf("job %s already %s", jobID, job.status)
	}
	if next == models.JobStatusRunning {
		if job.status != models.JobStatusQueued {
			return fmt.Errorf("job %s cannot start from %s", jobID, job.status)
		}
		job.startedAt = time.Now()
	}
	job.status = next
	job.message = message
	if next == models.JobStatusCompleted {
		job.displayed = 100
	}
	return nil
}

// Snapshot returns the current client-visible view for a job.
func (c *Coordinator) Snapshot(jobID string) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok := c.jobs[jobID]
	if !ok {
		return Snapshot{}, false
	}
	boundary := c.boundaries[atomic.LoadInt64(&job.tracker.stageIdx)]
	snap := Snapshot{
		Status:  job.status,
		Stage:   boundary.Stage,
		Percent: job.displayed,
		Message: job.message,
	}
	if job.status == models.JobStatusRunning && job.displayed > 0 && !job.startedAt.IsZero() {
		elapsed := time.Since(job.startedAt)
		snap.ETA = time.Duration(float64(elapsed) / job.displayed * (100 - job.displayed))
	}
	return snap, true
}

// Forget drops a finished job's progress state.
func (c *Coordinator) Forget(jobID string) {
	c.mu.Lock()
	delete(c.jobs, jobID)
	c.mu.Unlock()
}

// Start launches the reporting loop.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Tick()
			}
		}
	}()
}

// Stop halts the reporting loop.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

// smoothing constants: large steps close most of the distance when the
// display lags the target, a minimal creep keeps motion visible when at or
// ahead, and the value never decreases.
const (
	catchUpFraction = 0.25
	minStep         = 0.5
	creepStep       = 0.05
)

// Tick advances every running job's displayed percentage toward its target.
// Exported so tests can drive smoothing deterministically.
func (c *Coordinator) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, job := range c.jobs {
		if job.status != models.JobStatusRunning {
			continue
		}
		boundary := c.boundaries[atomic.LoadInt64(&job.tracker.stageIdx)]
		target := c.targetLocked(job.tracker)
		job.displayed = advance(job.displayed, target, boundary.End)
	}
}

func (c *Coordinator) targetLocked(t *Tracker) float64 {
	boundary := c.boundaries[atomic.LoadInt64(&t.stageIdx)]
	done := atomic.LoadInt64(&t.done)
	total := atomic.LoadInt64(&t.total)
	if total <= 0 {
		return boundary.Start
	}
	fraction := float64(done) / float64(total)
	if fraction > 1 {
		fraction = 1
	}
	if fraction < 0 {
		fraction = 0
	}
	return boundary.Start + fraction*(boundary.End-boundary.Start)
}

func advance(displayed, target, stageEnd float64) float64 {
	var next float64
	if displayed < target {
		step := (target - displayed) * catchUpFraction
		if step < minStep {
			step = minStep
		}
		next = displayed + step
		if next > target {
			next = target
		}
	} else {
		// At or ahead of target: minimal forward creep bounded by the stage
		// band, never a decrease.
		next = displayed + creepStep
		if next > stageEnd {
			next = stageEnd
		}
	}
	if next < displayed {
		next = displayed
	}
	if next > 100 {
		next = 100
	}
	return next
}

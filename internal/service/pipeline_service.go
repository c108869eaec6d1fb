package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/engine/cluster"
	"github.com/noah-isme/timetable-engine/internal/engine/refine"
	"github.com/noah-isme/timetable-engine/internal/engine/repair"
	"github.com/noah-isme/timetable-engine/internal/engine/schedule"
	"github.com/noah-isme/timetable-engine/internal/engine/solver"
	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/progress"
	"github.com/noah-isme/timetable-engine/internal/repository"
	"github.com/noah-isme/timetable-engine/pkg/cache"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
	"github.com/noah-isme/timetable-engine/pkg/jobs"
)

// SnapshotSource loads stored scheduling inputs for an org and semester.
type SnapshotSource interface {
	LoadSnapshot(ctx context.Context, org, semester string) (*repository.Snapshot, error)
}

// PipelineConfig aggregates stage tuning for one engine instance.
type PipelineConfig struct {
	Grid          models.TimeGrid
	Cluster       cluster.Config
	Solver        solver.Config
	SolverWorkers int
	Refiner       refine.Config
	Repair        repair.Config
	QueueWorkers  int
	QueueBuffer   int
}

// PipelineService runs the generation pipeline:
// clustering → per-cluster solving → refinement → conflict repair.
type PipelineService struct {
	cfg         PipelineConfig
	clusterer   *cluster.Engine
	refiner     *refine.Refiner
	repairer    *repair.Engine
	coordinator *progress.Coordinator
	qtables     *cache.QTableStore
	metrics     *MetricsService
	source      SnapshotSource
	validator   *validator.Validate
	logger      *zap.Logger
	queue       *jobs.Queue

	mu      sync.RWMutex
	records map[string]*jobRecord
}

type jobRecord struct {
	job         models.GenerationJob
	tracker     *progress.Tracker
	cancel      context.CancelFunc
	result      *models.GenerationResult
	lastPercent float64

	org      string
	semester string
	courses  map[string]*models.Course
	rooms    map[string]models.Room
	prefs    []models.Preference
}

// NewPipelineService wires the pipeline stages.
func NewPipelineService(
	cfg PipelineConfig,
	coordinator *progress.Coordinator,
	qtables *cache.QTableStore,
	metrics *MetricsService,
	source SnapshotSource,
	validate *validator.Validate,
	logger *zap.Logger,
) *PipelineService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Grid.SlotCount() == 0 {
		cfg.Grid = models.TimeGrid{Days: 5, PeriodsPerDay: 8}
	}
	if cfg.SolverWorkers <= 0 {
		cfg.SolverWorkers = 4
	}

	clusterer := cluster.NewEngine(cfg.Cluster, logger)
	s := &PipelineService{
		cfg:         cfg,
		clusterer:   clusterer,
		refiner:     refine.New(cfg.Refiner, refine.DefaultWeights(), logger),
		repairer:    repair.NewEngine(cfg.Repair, clusterer, logger),
		coordinator: coordinator,
		qtables:     qtables,
		metrics:     metrics,
		source:      source,
		validator:   validate,
		logger:      logger,
		records:     make(map[string]*jobRecord),
	}
	s.queue = jobs.NewQueue("generation", s.handleJob, jobs.QueueConfig{
		Workers:    cfg.QueueWorkers,
		BufferSize: cfg.QueueBuffer,
		Logger:     logger,
	})
	return s
}

// Start launches the job queue and the progress reporting loop.
func (s *PipelineService) Start(ctx context.Context) {
	s.coordinator.Start(ctx)
	s.queue.Start(ctx)
}

// Stop shuts both down, waiting for in-flight jobs.
func (s *PipelineService) Stop() {
	s.queue.Stop()
	s.coordinator.Stop()
}

// Submit validates the snapshot, registers a job and enqueues the run.
func (s *PipelineService) Submit(ctx context.Context, req dto.GenerateRequest) (string, error) {
	if err := s.validator.Struct(req); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation payload")
	}

	courses, rooms, err := buildSnapshot(req.Courses, req.Rooms)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid entity snapshot")
	}
	return s.enqueueRun(req.Org, req.Semester, courses, rooms, buildPreferences(req.Preferences))
}

// SubmitStored runs the pipeline over inputs loaded from the entity store
// instead of an inline payload.
func (s *PipelineService) SubmitStored(ctx context.Context, org, semester string) (string, error) {
	if s.source == nil {
		return "", appErrors.Clone(appErrors.ErrInternal, "no snapshot source configured")
	}
	snapshot, err := s.source.LoadSnapshot(ctx, org, semester)
	if err != nil {
		return "", err
	}
	return s.enqueueRun(org, semester, snapshot.Courses, snapshot.Rooms, snapshot.Preferences)
}

func (s *PipelineService) enqueueRun(org, semester string, courses map[string]*models.Course, rooms map[string]models.Room, prefs []models.Preference) (string, error) {
	jobID := uuid.NewString()
	record := &jobRecord{
		job: models.GenerationJob{
			ID:          jobID,
			Status:      models.JobStatusQueued,
			SubmittedAt: time.Now().UTC(),
		},
		org:      org,
		semester: semester,
		courses:  courses,
		rooms:    rooms,
		prefs:    prefs,
	}

	record.tracker = s.coordinator.Register(jobID)
	s.mu.Lock()
	s.records[jobID] = record
	s.mu.Unlock()

	if err := s.queue.Enqueue(jobs.Job{ID: jobID, Kind: "generate"}); err != nil {
		s.mu.Lock()
		delete(s.records, jobID)
		s.mu.Unlock()
		s.coordinator.Forget(jobID)
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue generation job")
	}
	s.logger.Sugar().Infow("generation job submitted",
		"job_id", jobID, "courses", len(courses), "rooms", len(rooms))
	return jobID, nil
}

// Progress returns the smoothed client-visible progress for a job.
func (s *PipelineService) Progress(jobID string) (dto.ProgressResponse, error) {
	s.mu.RLock()
	record, ok := s.records[jobID]
	s.mu.RUnlock()
	if !ok {
		return dto.ProgressResponse{}, appErrors.Clone(appErrors.ErrJobNotFound, "")
	}

	resp := dto.ProgressResponse{
		JobID:   jobID,
		Status:  string(record.job.Status),
		Stage:   string(record.job.Stage),
		Message: record.job.Message,
	}
	if snap, tracked := s.coordinator.Snapshot(jobID); tracked {
		resp.ProgressPercent = snap.Percent
		resp.ETASeconds = snap.ETA.Seconds()
		return resp, nil
	}
	// Progress state is discarded once a job completes.
	resp.ProgressPercent = record.lastPercent
	return resp, nil
}

// Result returns the completed output of a job.
func (s *PipelineService) Result(jobID string) (*models.GenerationResult, error) {
	s.mu.RLock()
	record, ok := s.records[jobID]
	s.mu.RUnlock()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrJobNotFound, "")
	}
	if record.job.Status != models.JobStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrJobNotCompleted,
			fmt.Sprintf("job %s is %s", jobID, record.job.Status))
	}
	return record.result, nil
}

// Cancel requests cooperative cancellation. The job transitions at its next
// checkpoint; in-flight solver calls are time-boxed, so latency is bounded
// by the active strategy's budget.
func (s *PipelineService) Cancel(jobID string) error {
	s.mu.Lock()
	record, ok := s.records[jobID]
	if !ok {
		s.mu.Unlock()
		return appErrors.Clone(appErrors.ErrJobNotFound, "")
	}
	if record.job.Status.Terminal() {
		s.mu.Unlock()
		return appErrors.Clone(appErrors.ErrJobTerminal, "")
	}
	cancel := record.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// handleJob executes the pipeline for one queued job. Internal panics are
// converted to a failed status; nothing escapes the pipeline boundary.
func (s *PipelineService) handleJob(ctx context.Context, job jobs.Job) (err error) {
	s.mu.Lock()
	record, ok := s.records[job.ID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("job %s has no record", job.ID)
	}
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	record.cancel = cancel
	record.job.Status = models.JobStatusRunning
	now := time.Now().UTC()
	record.job.StartedAt = &now
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Sugar().Errorw("pipeline panic", "job_id", job.ID, "panic", r)
			s.finish(job.ID, models.JobStatusFailed, fmt.Sprintf("internal failure: %v", r))
			err = nil
		}
	}()

	if err := s.coordinator.MarkRunning(job.ID); err != nil {
		return err
	}

	state, fitness, cancelled := s.runStages(jobCtx, record, record.tracker)
	if cancelled {
		s.finish(job.ID, models.JobStatusCancelled, "cancelled at stage checkpoint")
		return nil
	}

	result := &models.GenerationResult{
		JobID:       job.ID,
		Assignments: state.Assignments(),
		Conflicts:   state.DetectConflicts(),
		Fitness:     fitness,
		GeneratedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	record.result = result
	s.mu.Unlock()
	s.finish(job.ID, models.JobStatusCompleted, "")
	return nil
}

// runStages executes the four pipeline stages, polling cancellation at
// every stage boundary, generation and repair iteration.
func (s *PipelineService) runStages(ctx context.Context, record *jobRecord, tracker *progress.Tracker) (*schedule.State, float64, bool) {
	jobID := record.job.ID

	// Clustering.
	s.setStage(jobID, models.StageClustering, tracker)
	stageStart := time.Now()
	clusters := s.clusterer.Partition(record.courses)
	tracker.Report(1, 1)
	s.metrics.ObserveStage(string(models.StageClustering), time.Since(stageStart))
	if ctx.Err() != nil {
		return nil, 0, true
	}

	// Per-cluster solving across a bounded worker pool; each worker owns
	// its Solver instance and only read-only snapshot data.
	s.setStage(jobID, models.StageSolving, tracker)
	stageStart = time.Now()
	state := s.solveClusters(ctx, record, clusters, tracker)
	s.metrics.ObserveStage(string(models.StageSolving), time.Since(stageStart))
	if ctx.Err() != nil {
		return nil, 0, true
	}

	// Global refinement.
	s.setStage(jobID, models.StageRefining, tracker)
	stageStart = time.Now()
	refined, fitness := s.refiner.Refine(ctx, state, clusters, record.prefs, tracker.Report)
	state = refined
	s.metrics.ObserveStage(string(models.StageRefining), time.Since(stageStart))
	if ctx.Err() != nil {
		return nil, 0, true
	}

	// Conflict repair with Q-table transfer.
	s.setStage(jobID, models.StageRepairing, tracker)
	stageStart = time.Now()
	sctx := repair.NewSearchContext(s.cfg.Repair.LearningRate)
	if table, err := s.qtables.Load(ctx, record.org, record.semester); err != nil {
		s.logger.Sugar().Warnw("qtable load failed, starting cold", "error", err)
	} else if len(table) > 0 {
		sctx.Import(table)
	}
	outcome := s.repairer.Repair(ctx, state, sctx, tracker.Report)
	s.qtables.Save(ctx, record.org, record.semester, sctx.Export())
	s.metrics.ObserveStage(string(models.StageRepairing), time.Since(stageStart))
	s.metrics.RecordRepair(outcome.Resolved, outcome.ConflictsAfter)
	if ctx.Err() != nil {
		return nil, 0, true
	}

	s.logger.Sugar().Infow("pipeline stages complete",
		"job_id", jobID, "fitness", fitness,
		"conflicts", outcome.ConflictsAfter, "manual_review", len(outcome.ManualReview))
	return state, fitness, false
}

// solveClusters fans clusters out over the worker pool and merges results
// into one shared state. Merging is serialized; cross-cluster collisions are
// recorded as conflicts for the later stages.
func (s *PipelineService) solveClusters(ctx context.Context, record *jobRecord, clusters []cluster.Cluster, tracker *progress.Tracker) *schedule.State {
	priority := solver.New(s.cfg.Solver, s.logger).RankStudents(record.courses)
	results := make([]solver.Result, len(clusters))

	var done int64
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.cfg.SolverWorkers)
	for i := range clusters {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			courses := make([]*models.Course, 0, len(clusters[idx].CourseIDs))
			for _, id := range clusters[idx].CourseIDs {
				courses = append(courses, record.courses[id])
			}
			sv := solver.New(s.cfg.Solver, s.logger)
			results[idx] = sv.SolveCluster(ctx, courses, record.rooms, s.cfg.Grid, priority)
			tracker.Report(int(atomic.AddInt64(&done, 1)), len(clusters))
		}(i)
	}
	wg.Wait()

	state := schedule.NewState(s.cfg.Grid, record.courses, record.rooms)
	for i, result := range results {
		s.metrics.RecordSolve(result.Strategy.String(), result.Status.String(), result.DefectSignal)
		if result.Fallback {
			s.logger.Sugar().Infow("cluster used greedy fallback",
				"cluster", clusters[i].ID, "forced_conflicts", len(result.Forced))
		}
		for ref, pl := range result.Placements {
			if err := state.Apply(ref, pl); err != nil {
				// Cross-cluster collision; keep the placement and let
				// refinement and repair work it off.
				state.Force(ref, pl)
			}
		}
	}
	return state
}

func (s *PipelineService) setStage(jobID string, stage models.PipelineStage, tracker *progress.Tracker) {
	s.mu.Lock()
	if record, ok := s.records[jobID]; ok {
		record.job.Stage = stage
	}
	s.mu.Unlock()
	tracker.SetStage(s.coordinator.StageIndex(stage))
	s.logger.Sugar().Infow("stage started", "job_id", jobID, "stage", stage)
}

func (s *PipelineService) finish(jobID string, status models.JobStatus, message string) {
	var lastPercent float64
	if snap, ok := s.coordinator.Snapshot(jobID); ok {
		lastPercent = snap.Percent
	}
	if status == models.JobStatusCompleted {
		lastPercent = 100
	}
	if err := s.coordinator.Finish(jobID, status, message); err != nil {
		s.logger.Sugar().Warnw("progress finish failed", "job_id", jobID, "error", err)
	}
	s.coordinator.Forget(jobID)

	s.mu.Lock()
	if record, ok := s.records[jobID]; ok {
		record.job.Status = status
		record.job.Message = message
		record.lastPercent = lastPercent
		now := time.Now().UTC()
		record.job.FinishedAt = &now
	}
	s.mu.Unlock()
	s.metrics.RecordJob(string(status))
	s.logger.Sugar().Infow("generation job finished", "job_id", jobID, "status", status)
}

// buildSnapshot converts request inputs into validated domain records.
func buildSnapshot(courseInputs []dto.CourseInput, roomInputs []dto.RoomInput) (map[string]*models.Course, map[string]models.Room, error) {
	courses := make(map[string]*models.Course, len(courseInputs))
	for _, in := range courseInputs {
		course, err := models.NewCourse(in.ID, in.Name, in.FacultyID, in.Duration, models.RoomType(in.RoomType), in.MinCapacity, in.StudentIDs)
		if err != nil {
			return nil, nil, err
		}
		if _, dup := courses[course.ID]; dup {
			return nil, nil, fmt.Errorf("duplicate course id %s", course.ID)
		}
		courses[course.ID] = course
	}
	rooms := make(map[string]models.Room, len(roomInputs))
	for _, in := range roomInputs {
		if _, dup := rooms[in.ID]; dup {
			return nil, nil, fmt.Errorf("duplicate room id %s", in.ID)
		}
		rooms[in.ID] = models.Room{ID: in.ID, Capacity: in.Capacity, Type: models.RoomType(in.Type)}
	}
	return courses, rooms, nil
}

func buildPreferences(inputs []dto.PreferenceInput) []models.Preference {
	prefs := make([]models.Preference, 0, len(inputs))
	for _, in := range inputs {
		weight := in.Weight
		if weight <= 0 {
			weight = 1
		}
		prefs = append(prefs, models.Preference{
			Department: in.Department,
			CourseID:   in.CourseID,
			SlotFrom:   in.SlotFrom,
			SlotTo:     in.SlotTo,
			RoomID:     in.RoomID,
			Weight:     weight,
		})
	}
	return prefs
}

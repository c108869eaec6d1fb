package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/timetable-engine/internal/engine/cluster"
	"github.com/noah-isme/timetable-engine/internal/engine/refine"
	"github.com/noah-isme/timetable-engine/internal/engine/repair"
	"github.com/noah-isme/timetable-engine/internal/engine/solver"
	"github.com/noah-isme/timetable-engine/internal/handler"
	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/progress"
	"github.com/noah-isme/timetable-engine/internal/repository"
	"github.com/noah-isme/timetable-engine/internal/service"
	"github.com/noah-isme/timetable-engine/pkg/cache"
	"github.com/noah-isme/timetable-engine/pkg/config"
	"github.com/noah-isme/timetable-engine/pkg/logger"
	reqidmiddleware "github.com/noah-isme/timetable-engine/pkg/middleware/requestid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, continuing without qtable transfer", "error", err)
	}
	qtables := cache.NewQTableStore(redisClient, 0, logr)

	var source service.SnapshotSource
	if db, err := repository.NewDB(cfg.Database); err != nil {
		logr.Sugar().Warnw("database unavailable, stored-snapshot runs disabled", "error", err)
	} else {
		defer db.Close() //nolint:errcheck
		source = repository.NewSnapshotRepository(db)
	}

	grid := models.TimeGrid{Days: cfg.Grid.Days, PeriodsPerDay: cfg.Grid.PeriodsPerDay}
	coordinator := progress.NewCoordinator(progress.DefaultBoundaries(), cfg.Progress.Interval, logr)
	metrics := service.NewMetricsService()
	validate := validator.New()

	pipeline := service.NewPipelineService(service.PipelineConfig{
		Grid: grid,
		Cluster: cluster.Config{
			MaxSize:      cfg.Cluster.MaxSize,
			SuperMaxSize: cfg.Cluster.SuperMaxSize,
		},
		Solver: solver.Config{
			StrategyBudget:      cfg.Solver.StrategyBudget,
			CapacityThreshold:   cfg.Solver.CapacityThreshold,
			PriorityStudents:    cfg.Solver.PriorityStudents,
			StudentSampleStride: cfg.Solver.StudentSampleStride,
			GreedySampleSize:    cfg.Solver.GreedySampleSize,
		},
		SolverWorkers: cfg.Solver.Workers,
		Refiner: refine.Config{
			PopulationSize:  cfg.Refiner.PopulationSize,
			Generations:     cfg.Refiner.Generations,
			MutationRate:    cfg.Refiner.MutationRate,
			TournamentSize:  cfg.Refiner.TournamentSize,
			EliteCount:      cfg.Refiner.EliteCount,
			PlateauWindow:   cfg.Refiner.PlateauWindow,
			CacheMaxSize:    cfg.Refiner.CacheMaxSize,
			CacheEvictEvery: cfg.Refiner.CacheEvictEvery,
		},
		Repair: repair.Config{
			MaxCandidates: cfg.Repair.MaxCandidates,
			MaxPasses:     cfg.Repair.MaxPasses,
			LearningRate:  cfg.Repair.LearningRate,
		},
		QueueWorkers: cfg.Queue.Workers,
		QueueBuffer:  cfg.Queue.BufferSize,
	}, coordinator, qtables, metrics, source, validate, logr)

	repairer := repair.NewEngine(repair.Config{
		MaxCandidates: cfg.Repair.MaxCandidates,
		MaxPasses:     cfg.Repair.MaxPasses,
		LearningRate:  cfg.Repair.LearningRate,
	}, cluster.NewEngine(cluster.Config{
		MaxSize:      cfg.Cluster.MaxSize,
		SuperMaxSize: cfg.Cluster.SuperMaxSize,
	}, logr), logr)
	conflicts := service.NewConflictService(grid, repairer, validate, logr)

	pipeline.Start(ctx)
	defer pipeline.Stop()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group(cfg.APIPrefix)
	handler.NewScheduleHandler(pipeline).Register(api)
	handler.NewConflictHandler(conflicts).Register(api)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		logr.Sugar().Infow("engine starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown incomplete", "error", err)
	}
}

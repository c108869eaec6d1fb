package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	Log      LogConfig

	Grid     GridConfig
	Cluster  ClusterConfig
	Solver   SolverConfig
	Refiner  RefinerConfig
	Repair   RepairConfig
	Progress ProgressConfig
	Queue    QueueConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	// Enabled gates Q-table transfer and result caching; the engine runs
	// fully without redis.
	Enabled bool
}

type LogConfig struct {
	Level  string
	Format string
}

// GridConfig defines the fixed slot domain.
type GridConfig struct {
	Days          int
	PeriodsPerDay int
}

// ClusterConfig bounds course group sizes. The defaults are empirically
// tuned, not derived; treat them as tuning knobs.
type ClusterConfig struct {
	MaxSize      int
	SuperMaxSize int
}

// SolverConfig governs the per-cluster constraint solver.
type SolverConfig struct {
	StrategyBudget      time.Duration
	CapacityThreshold   float64
	PriorityStudents    int
	StudentSampleStride int
	GreedySampleSize    int
	Workers             int
}

// RefinerConfig governs the population refiner.
type RefinerConfig struct {
	PopulationSize  int
	Generations     int
	MutationRate    float64
	TournamentSize  int
	EliteCount      int
	PlateauWindow   int
	CacheMaxSize    int
	CacheEvictEvery int
}

// RepairConfig governs local-search conflict repair.
type RepairConfig struct {
	MaxCandidates int
	MaxPasses     int
	LearningRate  float64
}

// ProgressConfig tunes the reporting loop.
type ProgressConfig struct {
	Interval time.Duration
}

// QueueConfig sizes the generation job queue.
type QueueConfig struct {
	Workers    int
	BufferSize int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
		Enabled:  v.GetBool("REDIS_ENABLED"),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Grid = GridConfig{
		Days:          v.GetInt("GRID_DAYS"),
		PeriodsPerDay: v.GetInt("GRID_PERIODS_PER_DAY"),
	}

	cfg.Cluster = ClusterConfig{
		MaxSize:      v.GetInt("CLUSTER_MAX_SIZE"),
		SuperMaxSize: v.GetInt("SUPER_CLUSTER_MAX_SIZE"),
	}

	cfg.Solver = SolverConfig{
		StrategyBudget:      parseDuration(v.GetString("SOLVER_STRATEGY_BUDGET"), 5*time.Second),
		CapacityThreshold:   v.GetFloat64("SOLVER_CAPACITY_THRESHOLD"),
		PriorityStudents:    v.GetInt("SOLVER_PRIORITY_STUDENTS"),
		StudentSampleStride: v.GetInt("SOLVER_STUDENT_SAMPLE_STRIDE"),
		GreedySampleSize:    v.GetInt("SOLVER_GREEDY_SAMPLE_SIZE"),
		Workers:             v.GetInt("SOLVER_WORKERS"),
	}

	cfg.Refiner = RefinerConfig{
		PopulationSize:  v.GetInt("REFINER_POPULATION_SIZE"),
		Generations:     v.GetInt("REFINER_GENERATIONS"),
		MutationRate:    v.GetFloat64("REFINER_MUTATION_RATE"),
		TournamentSize:  v.GetInt("REFINER_TOURNAMENT_SIZE"),
		EliteCount:      v.GetInt("REFINER_ELITE_COUNT"),
		PlateauWindow:   v.GetInt("REFINER_PLATEAU_WINDOW"),
		CacheMaxSize:    v.GetInt("REFINER_CACHE_MAX_SIZE"),
		CacheEvictEvery: v.GetInt("REFINER_CACHE_EVICT_EVERY"),
	}

	cfg.Repair = RepairConfig{
		MaxCandidates: v.GetInt("REPAIR_MAX_CANDIDATES"),
		MaxPasses:     v.GetInt("REPAIR_MAX_PASSES"),
		LearningRate:  v.GetFloat64("REPAIR_LEARNING_RATE"),
	}

	cfg.Progress = ProgressConfig{
		Interval: parseDuration(v.GetString("PROGRESS_INTERVAL"), 200*time.Millisecond),
	}

	cfg.Queue = QueueConfig{
		Workers:    v.GetInt("QUEUE_WORKERS"),
		BufferSize: v.GetInt("QUEUE_BUFFER_SIZE"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "timetable_engine")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_ENABLED", false)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("GRID_DAYS", 5)
	v.SetDefault("GRID_PERIODS_PER_DAY", 8)

	v.SetDefault("CLUSTER_MAX_SIZE", 15)
	v.SetDefault("SUPER_CLUSTER_MAX_SIZE", 50)

	v.SetDefault("SOLVER_STRATEGY_BUDGET", "5s")
	v.SetDefault("SOLVER_CAPACITY_THRESHOLD", 0.5)
	v.SetDefault("SOLVER_PRIORITY_STUDENTS", 30)
	v.SetDefault("SOLVER_STUDENT_SAMPLE_STRIDE", 3)
	v.SetDefault("SOLVER_GREEDY_SAMPLE_SIZE", 12)
	v.SetDefault("SOLVER_WORKERS", 4)

	v.SetDefault("REFINER_POPULATION_SIZE", 20)
	v.SetDefault("REFINER_GENERATIONS", 40)
	v.SetDefault("REFINER_MUTATION_RATE", 0.02)
	v.SetDefault("REFINER_TOURNAMENT_SIZE", 3)
	v.SetDefault("REFINER_ELITE_COUNT", 2)
	v.SetDefault("REFINER_PLATEAU_WINDOW", 10)
	v.SetDefault("REFINER_CACHE_MAX_SIZE", 2048)
	v.SetDefault("REFINER_CACHE_EVICT_EVERY", 5)

	v.SetDefault("REPAIR_MAX_CANDIDATES", 20)
	v.SetDefault("REPAIR_MAX_PASSES", 3)
	v.SetDefault("REPAIR_LEARNING_RATE", 0.3)

	v.SetDefault("PROGRESS_INTERVAL", "200ms")

	v.SetDefault("QUEUE_WORKERS", 2)
	v.SetDefault("QUEUE_BUFFER_SIZE", 8)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

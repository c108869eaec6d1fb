package models

import "time"

// JobStatus is the generation job lifecycle state.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "QUEUED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// Terminal reports whether the status permits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// PipelineStage names the generation stages in execution order.
type PipelineStage string

const (
	StageClustering PipelineStage = "CLUSTERING"
	StageSolving    PipelineStage = "SOLVING"
	StageRefining   PipelineStage = "REFINING"
	StageRepairing  PipelineStage = "REPAIRING"
)

// GenerationJob tracks one schedule generation run.
type GenerationJob struct {
	ID          string        `json:"id"`
	Status      JobStatus     `json:"status"`
	Stage       PipelineStage `json:"stage,omitempty"`
	Message     string        `json:"message,omitempty"`
	SubmittedAt time.Time     `json:"submitted_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
}

// GenerationResult is the completed output of a job.
type GenerationResult struct {
	JobID       string       `json:"job_id"`
	Assignments []Assignment `json:"assignments"`
	Conflicts   []Conflict   `json:"conflicts"`
	Fitness     float64      `json:"fitness"`
	GeneratedAt time.Time    `json:"generated_at"`
}

package pipeline

import (
	"time"

	"github.com/justsurfingit/careerboost/internal/normalizer"
)

// State is the lifecycle state of a run.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Status describes how a finished stage went.
type Status string

const (
	// StatusSucceeded means the stage produced a structured value.
	StatusSucceeded Status = "succeeded"
	// StatusDegraded means the model answered but the answer could not be
	// parsed; the ErrorResult is kept and later stages still run.
	StatusDegraded Status = "degraded"
)

// StageResult is the recorded outcome of one stage.
type StageResult struct {
	Name     string            `json:"name"`
	Status   Status            `json:"status"`
	Output   normalizer.Result `json:"output"`
	Attempts int               `json:"attempts"`
	Duration time.Duration     `json:"duration"`
}

// Result accumulates the outputs of one run in stage order. It is owned by
// the run that created it.
type Result struct {
	RunID       string        `json:"run_id"`
	State       State         `json:"state"`
	FailedStage string        `json:"failed_stage,omitempty"`
	Stages      []StageResult `json:"stages"`
}

// Stage returns the recorded result of the named stage.
func (r *Result) Stage(name string) (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageResult{}, false
}

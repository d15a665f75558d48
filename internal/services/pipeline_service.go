package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/justsurfingit/careerboost/internal/logger"
	"github.com/justsurfingit/careerboost/internal/models"
	"github.com/justsurfingit/careerboost/internal/pipeline"
	"github.com/justsurfingit/careerboost/internal/stages"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Runner is the part of the orchestrator the service needs.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	RunMany(ctx context.Context, reqs []pipeline.Request, limit int) ([]*pipeline.Result, []error)
}

// RunOutcome is a finished run plus what was done with its outputs.
type RunOutcome struct {
	Result      *pipeline.Result
	Err         error
	Artifacts   map[string]string
	Submissions []Submission
	// Warnings lists side effects that failed after the run. They never
	// change the run state.
	Warnings []string
}

// PipelineService runs the resume pipeline and persists what it produced:
// artifacts on disk, and, with a database, run history, found jobs and
// submitted applications.
type PipelineService struct {
	Runner      Runner
	Artifacts   *ArtifactService
	DB          *gorm.DB
	Jobs        *JobService
	Submissions *SubmissionService
	Logger      *zap.Logger
	// MaxConcurrency caps the runs of one batch in flight; 0 means no cap.
	MaxConcurrency int
}

func NewPipelineService(runner Runner, artifacts *ArtifactService, db *gorm.DB, log *zap.Logger) *PipelineService {
	s := &PipelineService{Runner: runner, Artifacts: artifacts, DB: db, Logger: logger.OrNop(log)}
	if db != nil {
		s.Jobs = NewJobService(db)
	}
	s.Submissions = NewSubmissionService(db, s.Jobs, s.Logger)
	return s
}

// Run validates the request, runs the pipeline and stores its outputs. The
// returned error is non-nil only for requests rejected before running.
func (s *PipelineService) Run(ctx context.Context, req pipeline.Request) (*RunOutcome, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	res, runErr := s.Runner.Run(ctx, req)
	return s.finish(req, res, runErr), nil
}

// BatchItem is the outcome of one request of a batch. Rejected holds the
// validation error of a request that never ran.
type BatchItem struct {
	Outcome  *RunOutcome
	Rejected error
}

// RunBatch runs independent requests with at most MaxConcurrency in flight.
// Items are returned in request order; invalid requests are rejected without
// stopping the others.
func (s *PipelineService) RunBatch(ctx context.Context, reqs []pipeline.Request) []BatchItem {
	items := make([]BatchItem, len(reqs))
	valid := make([]pipeline.Request, 0, len(reqs))
	index := make([]int, 0, len(reqs))
	for i, req := range reqs {
		if err := validateRequest(req); err != nil {
			items[i].Rejected = err
			continue
		}
		valid = append(valid, req)
		index = append(index, i)
	}
	if len(valid) == 0 {
		return items
	}

	s.Logger.Info("pipeline batch started",
		zap.Int("runs", len(valid)),
		zap.Int("rejected", len(reqs)-len(valid)),
		zap.Int("max_concurrency", s.MaxConcurrency),
	)
	results, errs := s.Runner.RunMany(ctx, valid, s.MaxConcurrency)
	for j, i := range index {
		items[i].Outcome = s.finish(valid[j], results[j], errs[j])
	}
	return items
}

func validateRequest(req pipeline.Request) error {
	if req.Applies() {
		return ValidateUserInfo(req.UserInfo)
	}
	return nil
}

// finish stores what a run produced. Failures here never change the run
// state; they are reported as warnings.
func (s *PipelineService) finish(req pipeline.Request, res *pipeline.Result, runErr error) *RunOutcome {
	out := &RunOutcome{Result: res, Err: runErr}
	log := s.Logger.With(zap.String("run_id", res.RunID))

	warn := func(msg string, err error) {
		log.Warn(msg, zap.Error(err))
		out.Warnings = append(out.Warnings, fmt.Sprintf("%s: %v", msg, err))
	}

	if s.Artifacts != nil && len(res.Stages) > 0 {
		paths, err := s.Artifacts.Save(res)
		if err != nil {
			warn("failed to write artifacts", err)
		}
		out.Artifacts = paths
	}

	if s.Jobs != nil {
		if search, ok := res.Stage(stages.SearchJobs); ok {
			if listings := ParseListings(search.Output); len(listings) > 0 {
				if _, err := s.Jobs.UpsertListings(res.RunID, listings); err != nil {
					warn("failed to track job listings", err)
				}
			}
		}
	}

	if apply, ok := res.Stage(stages.ApplyToJob); ok && apply.Output.OK() {
		subs, err := s.Submissions.Submit(res.RunID, req.UserInfo, ParseApplications(apply.Output))
		if err != nil {
			warn("failed to submit applications", err)
		} else {
			out.Submissions = subs
			if s.Artifacts != nil {
				path, err := s.Artifacts.SaveSubmissions(res.RunID, subs)
				if err != nil {
					warn("failed to write application results", err)
				} else {
					if out.Artifacts == nil {
						out.Artifacts = map[string]string{}
					}
					out.Artifacts[stages.ApplyToJob] = path
				}
			}
		}
	}

	if s.DB != nil {
		if err := s.record(req, res, runErr); err != nil {
			warn("failed to record run", err)
		}
	}
	return out
}

func (s *PipelineService) record(req pipeline.Request, res *pipeline.Result, runErr error) error {
	run := models.PipelineRun{
		ID:           res.RunID,
		DocumentPath: req.DocumentPath,
		JobKeywords:  req.JobKeywords,
		Location:     req.Location,
		State:        string(res.State),
		FailedStage:  res.FailedStage,
	}
	if runErr != nil {
		run.ErrorKind = pipeline.ErrorKind(runErr)
		run.Error = runErr.Error()
	}
	for i, st := range res.Stages {
		data, err := json.Marshal(st.Output)
		if err != nil {
			return err
		}
		run.Stages = append(run.Stages, models.StageRecord{
			RunID:      res.RunID,
			Position:   i,
			Name:       st.Name,
			Status:     string(st.Status),
			Method:     string(st.Output.Method),
			Attempts:   st.Attempts,
			DurationMS: st.Duration.Milliseconds(),
			Output:     string(data),
		})
	}
	return s.DB.Create(&run).Error
}

// GetRun loads a recorded run with its stages.
func (s *PipelineService) GetRun(id string) (*models.PipelineRun, error) {
	if s.DB == nil {
		return nil, gorm.ErrRecordNotFound
	}
	var run models.PipelineRun
	err := s.DB.Preload("Stages", func(db *gorm.DB) *gorm.DB {
		return db.Order("position")
	}).First(&run, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

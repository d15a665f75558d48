// Package pipeline sequences the resume stages of one run:
// analyze_resume, search_jobs, improve_resume and, when the request carries
// applicant details, apply_to_job.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/justsurfingit/careerboost/internal/extractor"
	"github.com/justsurfingit/careerboost/internal/llm"
	"github.com/justsurfingit/careerboost/internal/logger"
	"github.com/justsurfingit/careerboost/internal/normalizer"
	"github.com/justsurfingit/careerboost/internal/stages"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// StageRunner executes one attempt of a stage.
type StageRunner interface {
	Run(ctx context.Context, spec *stages.Spec, in stages.Input) (normalizer.Result, error)
}

// Request is one pipeline invocation. DocumentPath takes precedence over
// ResumeText.
type Request struct {
	RunID           string         `json:"run_id,omitempty"`
	DocumentPath    string         `json:"document_path,omitempty"`
	ResumeText      string         `json:"resume_text,omitempty"`
	JobKeywords     string         `json:"job_keywords,omitempty"`
	Location        string         `json:"location,omitempty"`
	ExperienceLevel string         `json:"experience_level,omitempty"`
	UserInfo        map[string]any `json:"user_info,omitempty"`
}

// Applies reports whether the run includes the apply stage.
func (r Request) Applies() bool {
	return len(r.UserInfo) > 0
}

var allStages = []string{stages.AnalyzeResume, stages.SearchJobs, stages.ImproveResume, stages.ApplyToJob}

// Stages lists the stages a request runs, in order.
func (r Request) Stages() []string {
	if r.Applies() {
		return append([]string(nil), allStages...)
	}
	return append([]string(nil), allStages[:3]...)
}

// Config wires an Orchestrator.
type Config struct {
	Extractor *extractor.Extractor
	Runner    StageRunner
	Catalog   *stages.Catalog
	// Wiring defaults to DefaultWiring.
	Wiring Wiring
	Logger *zap.Logger
}

// Orchestrator runs pipelines. Runs share nothing but the runner, so
// independent runs may execute concurrently.
type Orchestrator struct {
	extractor *extractor.Extractor
	runner    StageRunner
	specs     map[string]*stages.Spec
	wiring    Wiring
	logger    *zap.Logger
}

// New validates the wiring against the catalog before any run starts.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Runner == nil {
		return nil, errors.New("pipeline: runner is required")
	}
	if cfg.Catalog == nil {
		return nil, errors.New("pipeline: stage catalog is required")
	}
	if cfg.Extractor == nil {
		cfg.Extractor = extractor.New(extractor.Config{Logger: cfg.Logger})
	}
	if cfg.Wiring == nil {
		cfg.Wiring = DefaultWiring()
	}
	cfg.Logger = logger.OrNop(cfg.Logger)

	specs := make(map[string]*stages.Spec, len(allStages))
	for _, name := range allStages {
		spec, err := cfg.Catalog.Get(name)
		if err != nil {
			return nil, err
		}
		specs[name] = spec
	}
	if err := cfg.Wiring.validate(allStages, specs); err != nil {
		return nil, err
	}

	return &Orchestrator{
		extractor: cfg.Extractor,
		runner:    cfg.Runner,
		specs:     specs,
		wiring:    cfg.Wiring,
		logger:    cfg.Logger,
	}, nil
}

// Run executes req. The accumulated Result is returned in every case; on a
// halting error it is in StateFailed and the error is a *StageError.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	res := &Result{RunID: req.RunID, State: StatePending, Stages: []StageResult{}}
	log := o.logger.With(zap.String("run_id", req.RunID))

	res.State = StateRunning
	log.Info("pipeline started", zap.Strings("stages", req.Stages()))

	// Extraction feeds analyze_resume, so its failures halt the run there.
	text, err := o.resumeText(ctx, req)
	if err != nil {
		return o.fail(log, res, stages.AnalyzeResume, 0, err)
	}

	fields := map[string]any{
		FieldDocumentPath:    req.DocumentPath,
		FieldResumeText:      text,
		FieldJobKeywords:     req.JobKeywords,
		FieldLocation:        req.Location,
		FieldExperienceLevel: req.ExperienceLevel,
		FieldUserInfo:        nil,
	}
	if req.Applies() {
		fields[FieldUserInfo] = req.UserInfo
	}

	outputs := make(map[string]normalizer.Result, 4)
	for _, name := range req.Stages() {
		spec := o.specs[name]
		in := o.wiring.inputs(name, fields, outputs)
		stageLog := log.With(zap.String("stage", name))

		start := time.Now()
		var out normalizer.Result
		attempts, err := retry(ctx, spec.MaxAttempts, spec.Backoff, llm.IsRetryable, func(attempt int) error {
			var runErr error
			out, runErr = o.runner.Run(ctx, spec, in)
			if runErr != nil {
				stageLog.Warn("stage attempt failed", zap.Int("attempt", attempt), zap.Error(runErr))
			}
			return runErr
		})
		if err != nil {
			return o.fail(log, res, name, attempts, err)
		}

		status := StatusSucceeded
		if !out.OK() {
			status = StatusDegraded
		}
		sr := StageResult{
			Name:     name,
			Status:   status,
			Output:   out,
			Attempts: attempts,
			Duration: time.Since(start),
		}
		res.Stages = append(res.Stages, sr)
		outputs[name] = out

		stageLog.Info("stage finished",
			zap.String("status", string(status)),
			zap.String("method", string(out.Method)),
			zap.Int("attempt", attempts),
			zap.Duration("duration", sr.Duration),
		)
	}

	res.State = StateCompleted
	log.Info("pipeline completed", zap.Int("stages", len(res.Stages)))
	return res, nil
}

func (o *Orchestrator) resumeText(ctx context.Context, req Request) (string, error) {
	if req.DocumentPath == "" {
		if req.ResumeText == "" {
			return "", ErrNoResume
		}
		return req.ResumeText, nil
	}
	doc, err := extractor.NewDocument(req.DocumentPath)
	if err != nil {
		return "", err
	}
	return o.extractor.Extract(ctx, doc)
}

func (o *Orchestrator) fail(log *zap.Logger, res *Result, stage string, attempts int, err error) (*Result, error) {
	res.State = StateFailed
	res.FailedStage = stage
	log.Error("pipeline failed",
		zap.String("stage", stage),
		zap.String("kind", ErrorKind(err)),
		zap.Int("attempt", attempts),
		zap.Error(err),
	)
	return res, &StageError{Stage: stage, Attempts: attempts, Err: err}
}

// RunMany executes independent requests with at most limit runs in flight.
// results[i] and errs[i] belong to reqs[i].
func (o *Orchestrator) RunMany(ctx context.Context, reqs []Request, limit int) ([]*Result, []error) {
	results := make([]*Result, len(reqs))
	errs := make([]error, len(reqs))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, req := range reqs {
		g.Go(func() error {
			results[i], errs[i] = o.Run(ctx, req)
			return nil
		})
	}
	_ = g.Wait()
	return results, errs
}

package dtos

import "github.com/justsurfingit/careerboost/internal/normalizer"

type PipelineRunRequest struct {
	DocumentPath    string         `json:"document_path"`
	ResumeText      string         `json:"resume_text"`
	JobKeywords     string         `json:"job_keywords"`
	Location        string         `json:"location"`
	ExperienceLevel string         `json:"experience_level" binding:"omitempty,oneof=entry mid senior"`
	UserInfo        map[string]any `json:"user_info"`
}

type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type StageBody struct {
	Status   string                  `json:"status"`
	Attempts int                     `json:"attempts"`
	Value    any                     `json:"value,omitempty"`
	Error    *normalizer.ErrorResult `json:"error,omitempty"`
}

type PipelineRunResponse struct {
	RunID       string               `json:"run_id"`
	State       string               `json:"state"`
	FailedStage string               `json:"failed_stage,omitempty"`
	Error       *ErrorBody           `json:"error,omitempty"`
	Stages      map[string]StageBody `json:"stages"`
	Submissions any                  `json:"submissions,omitempty"`
	Artifacts   map[string]string    `json:"artifacts,omitempty"`
}

type ResumeUploadResponse struct {
	Path   string `json:"path"`
	Format string `json:"format"`
	Size   int64  `json:"size"`
}

type PipelineBatchRequest struct {
	Runs []PipelineRunRequest `json:"runs" binding:"required,min=1,max=20,dive"`
}

// PipelineBatchItem is one run of a batch with the HTTP status it would have
// had on its own.
type PipelineBatchItem struct {
	StatusCode int `json:"status_code"`
	PipelineRunResponse
}

type PipelineBatchResponse struct {
	Runs []PipelineBatchItem `json:"runs"`
}

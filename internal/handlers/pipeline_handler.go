package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/justsurfingit/careerboost/internal/dtos"
	"github.com/justsurfingit/careerboost/internal/pipeline"
	"github.com/justsurfingit/careerboost/internal/services"
	"gorm.io/gorm"
)

type PipelineHandler struct {
	Service *services.PipelineService
	Uploads *ResumeHandler
}

func NewPipelineHandler(svc *services.PipelineService, uploads *ResumeHandler) *PipelineHandler {
	return &PipelineHandler{Service: svc, Uploads: uploads}
}

// Run is the POST /pipeline/run endpoint
func (h *PipelineHandler) Run(c *gin.Context) {
	var req dtos.PipelineRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format: " + err.Error()})
		return
	}

	outcome, err := h.Service.Run(c.Request.Context(), h.request(req))
	if err != nil {
		if errors.Is(err, services.ErrMissingUserInfo) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := runResponse(outcome)
	status := http.StatusOK
	if outcome.Err != nil {
		status = statusFor(outcome.Err)
	}
	c.JSON(status, resp)
}

// RunBatch is the POST /pipeline/runs endpoint. Each request runs
// independently; the response carries one item per request, in order.
func (h *PipelineHandler) RunBatch(c *gin.Context) {
	var req dtos.PipelineBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format: " + err.Error()})
		return
	}

	reqs := make([]pipeline.Request, len(req.Runs))
	for i, r := range req.Runs {
		reqs[i] = h.request(r)
	}

	items := h.Service.RunBatch(c.Request.Context(), reqs)
	resp := dtos.PipelineBatchResponse{Runs: make([]dtos.PipelineBatchItem, len(items))}
	for i, item := range items {
		if item.Rejected != nil {
			resp.Runs[i] = dtos.PipelineBatchItem{
				StatusCode: http.StatusBadRequest,
				PipelineRunResponse: dtos.PipelineRunResponse{
					Error: &dtos.ErrorBody{Kind: pipeline.KindInvalidRequest, Message: item.Rejected.Error()},
				},
			}
			continue
		}
		status := http.StatusOK
		if item.Outcome.Err != nil {
			status = statusFor(item.Outcome.Err)
		}
		resp.Runs[i] = dtos.PipelineBatchItem{StatusCode: status, PipelineRunResponse: runResponse(item.Outcome)}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *PipelineHandler) request(req dtos.PipelineRunRequest) pipeline.Request {
	docPath := req.DocumentPath
	if h.Uploads != nil {
		docPath = h.Uploads.resolveUpload(docPath)
	}
	return pipeline.Request{
		DocumentPath:    docPath,
		ResumeText:      req.ResumeText,
		JobKeywords:     req.JobKeywords,
		Location:        req.Location,
		ExperienceLevel: req.ExperienceLevel,
		UserInfo:        req.UserInfo,
	}
}

// GetRun is the GET /pipeline/runs/:id endpoint
func (h *PipelineHandler) GetRun(c *gin.Context) {
	run, err := h.Service.GetRun(c.Param("id"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

func runResponse(o *services.RunOutcome) dtos.PipelineRunResponse {
	res := o.Result
	resp := dtos.PipelineRunResponse{
		RunID:       res.RunID,
		State:       string(res.State),
		FailedStage: res.FailedStage,
		Error:       errorBody(o.Err),
		Stages:      make(map[string]dtos.StageBody, len(res.Stages)),
		Artifacts:   o.Artifacts,
	}
	if len(o.Submissions) > 0 {
		resp.Submissions = o.Submissions
	}
	for _, st := range res.Stages {
		body := dtos.StageBody{Status: string(st.Status), Attempts: st.Attempts}
		if st.Output.OK() {
			body.Value = st.Output.Value
		} else {
			body.Error = st.Output.Err
		}
		resp.Stages[st.Name] = body
	}
	return resp
}

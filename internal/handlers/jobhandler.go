package handlers

import (
	"net/http"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/justsurfingit/careerboost/internal/dtos"
	"github.com/justsurfingit/careerboost/internal/pipeline"
	"github.com/justsurfingit/careerboost/internal/services"
	"github.com/justsurfingit/careerboost/internal/stages"
)

// maxRawContent caps the posting text sent to the model.
const maxRawContent = 20000

type JobHandler struct {
	Runner     pipeline.StageRunner
	Catalog    *stages.Catalog
	JobService *services.JobService
}

// NewJobHandler creates the handler with dependencies. A nil job service
// disables the tracker endpoints.
func NewJobHandler(runner pipeline.StageRunner, catalog *stages.Catalog, j *services.JobService) *JobHandler {
	return &JobHandler{
		Runner:     runner,
		Catalog:    catalog,
		JobService: j,
	}
}

// ParseJob is the POST /jobs/extract endpoint
func (h *JobHandler) ParseJob(c *gin.Context) {
	var req dtos.JobExtractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format: " + err.Error()})
		return
	}

	spec, err := h.Catalog.Get(stages.ExtractJobDetails)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out, _, err := pipeline.RunStage(c.Request.Context(), h.Runner, spec, stages.Input{"raw_content": clip(req.RawHTML, maxRawContent)})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "AI extraction failed: " + err.Error()})
		return
	}
	if !out.OK() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "error": out.Err})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    out.Value,
	})
}

// CreateJob is the POST /jobs endpoint
func (h *JobHandler) CreateJob(c *gin.Context) {
	if h.JobService == nil {
		trackerDisabled(c)
		return
	}
	var req dtos.JobCreationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format: " + err.Error()})
		return
	}
	job, err := h.JobService.CreateJob(&req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create job: " + err.Error()})
		return
	}
	c.JSON(http.StatusCreated, job)
}

// ListJobs is the GET /jobs endpoint
func (h *JobHandler) ListJobs(c *gin.Context) {
	if h.JobService == nil {
		trackerDisabled(c)
		return
	}
	var q dtos.JobListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query: " + err.Error()})
		return
	}
	jobs, err := h.JobService.ListJobs(q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list jobs: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, jobs)
}

func trackerDisabled(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "job tracker is disabled (no database configured)"})
}

// clip cuts s to at most n bytes without splitting a rune.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

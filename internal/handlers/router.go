package handlers

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/justsurfingit/careerboost/internal/logger"
	"go.uber.org/zap"
)

// Router bundles the handlers served under /api/v1.
type Router struct {
	Jobs           *JobHandler
	Resumes        *ResumeHandler
	Pipeline       *PipelineHandler
	AllowedOrigins []string
	Logger         *zap.Logger
}

// Engine builds the gin engine with CORS, recovery and request logging.
func (r *Router) Engine() *gin.Engine {
	log := logger.OrNop(r.Logger)

	e := gin.New()
	e.Use(gin.Recovery(), requestLogger(log))

	config := cors.DefaultConfig()
	if len(r.AllowedOrigins) == 0 {
		config.AllowAllOrigins = true // For development only
	} else {
		config.AllowOrigins = r.AllowedOrigins
	}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	e.Use(cors.New(config))

	api := e.Group("/api/v1")
	{
		api.GET("/health", HealthCheck)

		if r.Resumes != nil {
			api.POST("/resumes", r.Resumes.Upload)
		}
		if r.Pipeline != nil {
			api.POST("/pipeline/run", r.Pipeline.Run)
			api.POST("/pipeline/runs", r.Pipeline.RunBatch)
			api.GET("/pipeline/runs/:id", r.Pipeline.GetRun)
		}

		// Job Routes
		if r.Jobs != nil {
			api.POST("/jobs/extract", r.Jobs.ParseJob)
			api.POST("/jobs", r.Jobs.CreateJob)
			api.GET("/jobs", r.Jobs.ListJobs)
		}
	}
	return e
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

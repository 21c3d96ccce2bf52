package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/auditlens/auditlens-backend/internal/handlers"
	"github.com/auditlens/auditlens-backend/internal/middleware"
)

type RouterConfig struct {
	ServiceName    string
	AllowedOrigins []string
}

type Handlers struct {
	Auth      *handlers.AuthHandler
	Rcm       *handlers.RcmHandler
	Evidence  *handlers.EvidenceHandler
	Execution *handlers.ExecutionHandler
	Prompt    *handlers.PromptHandler
	Job       *handlers.ExtractionJobHandler
}

func NewRouter(cfg RouterConfig, h Handlers, auth *middleware.AuthMiddleware) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.ServiceName))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.POST("/auth/register", h.Auth.Register)
		api.POST("/auth/login", h.Auth.Login)
	}

	protected := api.Group("")
	protected.Use(auth.RequireAuth())
	{
		protected.POST("/rcms", h.Rcm.Create)
		protected.GET("/rcms", h.Rcm.List)
		protected.GET("/rcms/:id", h.Rcm.Get)
		protected.POST("/rcms/:id/attributes", h.Rcm.CreateAttribute)
		protected.PUT("/test-attributes/:id", h.Rcm.UpdateAttribute)
		protected.DELETE("/test-attributes/:id", h.Rcm.DeleteAttribute)

		protected.POST("/evidences", h.Evidence.Create)
		protected.GET("/evidences", h.Evidence.List)
		protected.GET("/evidences/:id", h.Evidence.Get)
		protected.DELETE("/evidences/:id", h.Evidence.Delete)
		protected.POST("/evidence-documents/:id/extract", h.Evidence.Extract)

		protected.POST("/test-executions", h.Execution.Create)
		protected.GET("/test-executions", h.Execution.List)
		protected.GET("/test-executions/:id", h.Execution.Get)
		protected.PUT("/test-executions/:id/remarks", h.Execution.UpdateRemarks)
		protected.PUT("/test-executions/:id/status", h.Execution.UpdateStatusAndResult)
		protected.POST("/test-executions/:id/compare", h.Execution.Compare)
		protected.PUT("/test-executions/:id/result", h.Execution.UpdateManualResult)
		protected.POST("/test-executions/:id/evaluate-sample", h.Execution.EvaluateSample)
		protected.POST("/test-executions/:id/evaluate", h.Execution.Evaluate)

		protected.PUT("/ai-prompts", h.Prompt.Upsert)
		protected.GET("/ai-prompts/resolve", h.Prompt.Resolve)

		protected.GET("/extraction-jobs/:id", h.Job.Get)
	}

	return r
}

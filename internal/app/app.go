package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/auditlens/auditlens-backend/internal/db"
	"github.com/auditlens/auditlens-backend/internal/handlers"
	"github.com/auditlens/auditlens-backend/internal/middleware"
	"github.com/auditlens/auditlens-backend/internal/observability"
	"github.com/auditlens/auditlens-backend/internal/platform/logger"
	"github.com/auditlens/auditlens-backend/internal/repos"
	"github.com/auditlens/auditlens-backend/internal/server"
	"github.com/auditlens/auditlens-backend/internal/services"
)

type Repos struct {
	Users      repos.UserRepo
	RCMs       repos.RCMRepo
	Attributes repos.TestAttributeRepo
	Evidences  repos.EvidenceRepo
	Documents  repos.EvidenceDocumentRepo
	Executions repos.TestExecutionRepo
	Evals      repos.EvaluationRepo
	Prompts    repos.AIPromptRepo
	Jobs       repos.ExtractionJobRepo
	CallLog    repos.AICallLogRepo
}

type Services struct {
	Auth        services.AuthService
	Rcms        services.RcmService
	Cache       services.CacheService
	Prompts     services.PromptService
	Gemini      services.GeminiClient
	Limiter     *services.RateLimiter
	Extraction  services.ExtractionService
	Jobs        services.ExtractionJobService
	Evidence    services.EvidenceService
	Executions  services.ExecutionService
	Comparison  services.ComparisonService
	Aggregation services.AggregationService
	Annotator   services.Annotator
}

type App struct {
	Log      *logger.Logger
	Cfg      *Config
	Postgres *db.PostgresService
	Redis    *redis.Client
	Repos    Repos
	Services Services
	Router   *gin.Engine

	otelShutdown func(context.Context) error
	httpServer   *http.Server
}

func New() (*App, error) {
	log, err := logger.New(getMode())
	if err != nil {
		return nil, err
	}

	cfg, err := LoadConfig(log)
	if err != nil {
		return nil, err
	}

	a := &App{Log: log, Cfg: cfg}
	a.otelShutdown = observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	a.Postgres, err = db.NewPostgresService(log)
	if err != nil {
		return nil, err
	}
	if err := a.Postgres.AutoMigrateAll(); err != nil {
		return nil, err
	}
	a.Redis = db.NewRedisClient(log)

	a.wireRepos()
	if err := a.wireServices(); err != nil {
		return nil, err
	}
	a.wireRouter()
	return a, nil
}

func getMode() string {
	// zap picks console vs json encoding off this
	if v := gin.Mode(); v == gin.ReleaseMode {
		return "prod"
	}
	return "dev"
}

func (a *App) wireRepos() {
	gdb := a.Postgres.DB
	a.Repos = Repos{
		Users:      repos.NewUserRepo(gdb, a.Log),
		RCMs:       repos.NewRCMRepo(gdb, a.Log),
		Attributes: repos.NewTestAttributeRepo(gdb, a.Log),
		Evidences:  repos.NewEvidenceRepo(gdb, a.Log),
		Documents:  repos.NewEvidenceDocumentRepo(gdb, a.Log),
		Executions: repos.NewTestExecutionRepo(gdb, a.Log),
		Evals:      repos.NewEvaluationRepo(gdb, a.Log),
		Prompts:    repos.NewAIPromptRepo(gdb, a.Log),
		Jobs:       repos.NewExtractionJobRepo(gdb, a.Log),
		CallLog:    repos.NewAICallLogRepo(gdb, a.Log),
	}
}

func (a *App) wireServices() error {
	limiter := services.NewRateLimiter(a.Log)
	gemini, err := services.NewGeminiClient(a.Log, limiter)
	if err != nil {
		return err
	}

	cache := services.NewCacheService(a.Log, a.Redis)
	prompts := services.NewPromptService(a.Log, a.Repos.Prompts, cache)
	annotator := services.NewAnnotator(a.Log)
	extraction := services.NewExtractionService(a.Log, a.Repos.Documents, a.Repos.CallLog, gemini)
	jobs := services.NewExtractionJobService(a.Log, a.Repos.Jobs, extraction)
	comparison := services.NewComparisonService(
		a.Log,
		a.Repos.Executions,
		a.Repos.Documents,
		a.Repos.Attributes,
		a.Repos.Evals,
		a.Repos.RCMs,
		a.Repos.CallLog,
		prompts,
		gemini,
		annotator,
	)

	a.Services = Services{
		Auth:        services.NewAuthService(a.Log, a.Repos.Users),
		Rcms:        services.NewRcmService(a.Log, a.Repos.RCMs, a.Repos.Attributes),
		Cache:       cache,
		Prompts:     prompts,
		Gemini:      gemini,
		Limiter:     limiter,
		Extraction:  extraction,
		Jobs:        jobs,
		Evidence:    services.NewEvidenceService(a.Log, a.Postgres.DB, a.Repos.Evidences, a.Repos.Documents, jobs),
		Executions:  services.NewExecutionService(a.Log, a.Repos.Executions, a.Repos.Evals, a.Repos.RCMs),
		Comparison:  comparison,
		Aggregation: services.NewAggregationService(a.Log, a.Repos.Executions, a.Repos.Documents, a.Repos.Attributes, extraction, comparison),
		Annotator:   annotator,
	}
	return nil
}

func (a *App) wireRouter() {
	authMW := middleware.NewAuthMiddleware(a.Log, a.Services.Auth)
	a.Router = server.NewRouter(
		server.RouterConfig{
			ServiceName:    a.Cfg.ServiceName,
			AllowedOrigins: a.Cfg.AllowedOrigins,
		},
		server.Handlers{
			Auth:      handlers.NewAuthHandler(a.Log, a.Services.Auth),
			Rcm:       handlers.NewRcmHandler(a.Log, a.Services.Rcms),
			Evidence:  handlers.NewEvidenceHandler(a.Log, a.Services.Evidence, a.Services.Extraction),
			Execution: handlers.NewExecutionHandler(a.Log, a.Services.Executions, a.Services.Comparison, a.Services.Aggregation),
			Prompt:    handlers.NewPromptHandler(a.Log, a.Services.Prompts),
			Job:       handlers.NewExtractionJobHandler(a.Log, a.Services.Jobs),
		},
		authMW,
	)
}

// Start runs the extraction worker and the HTTP server. Blocks until the
// server exits.
func (a *App) Start() error {
	a.Services.Jobs.Start()

	a.httpServer = &http.Server{
		Addr:              ":" + a.Cfg.Port,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.Log.Info("server listening", "port", a.Cfg.Port)
	if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Close(ctx context.Context) {
	if a.httpServer != nil {
		_ = a.httpServer.Shutdown(ctx)
	}
	a.Services.Jobs.Stop()
	if a.otelShutdown != nil {
		_ = a.otelShutdown(ctx)
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Postgres != nil {
		_ = a.Postgres.Close()
	}
	a.Log.Sync()
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/justsurfingit/careerboost/internal/auth"
	"github.com/justsurfingit/careerboost/internal/config"
	"github.com/justsurfingit/careerboost/internal/database"
	"github.com/justsurfingit/careerboost/internal/extractor"
	"github.com/justsurfingit/careerboost/internal/handlers"
	"github.com/justsurfingit/careerboost/internal/llm"
	"github.com/justsurfingit/careerboost/internal/logger"
	"github.com/justsurfingit/careerboost/internal/normalizer"
	"github.com/justsurfingit/careerboost/internal/pipeline"
	"github.com/justsurfingit/careerboost/internal/services"
	"github.com/justsurfingit/careerboost/internal/stages"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	configPath := flag.String("config", os.Getenv("CAREERBOOST_CONFIG"), "path to the YAML config file")
	gmailLogin := flag.Bool("gmail-login", false, "authorize Gmail interactively when no token is saved")
	flag.Parse()

	if err := run(*configPath, *gmailLogin); err != nil {
		fmt.Fprintln(os.Stderr, "careerboost:", err)
		os.Exit(1)
	}
}

func run(configPath string, gmailLogin bool) error {
	// 1. Load configuration and logging
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database connection (optional)
	var db *gorm.DB
	if cfg.Database.Enabled() {
		db, err = database.Connect(cfg.Database, log)
		if err != nil {
			return err
		}
	} else {
		log.Warn("no database configured, run history and job tracking are disabled")
	}

	// 3. Initialize core services
	gateway, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		return err
	}
	catalog, err := stages.LoadCatalog(cfg.Pipeline.StagesDir, stages.Defaults{
		Timeout:     cfg.Pipeline.StageTimeout,
		MaxAttempts: cfg.Pipeline.MaxAttempts,
		Backoff:     cfg.Pipeline.Backoff,
	})
	if err != nil {
		return err
	}
	log.Info("stage catalog loaded", zap.Strings("stages", catalog.Names()))
	runner := stages.NewRunner(gateway,
		normalizer.New(normalizer.WithRelaxedLiterals(cfg.Normalizer.RelaxedLiterals)),
		log.Named("stages"),
	)
	ext := extractor.New(extractor.Config{MaxFileSize: cfg.Extractor.MaxFileSize, Logger: log.Named("extractor")})
	orchestrator, err := pipeline.New(pipeline.Config{
		Extractor: ext,
		Runner:    runner,
		Catalog:   catalog,
		Logger:    log.Named("pipeline"),
	})
	if err != nil {
		return err
	}

	pipelineService := services.NewPipelineService(orchestrator,
		services.NewArtifactService(cfg.Storage.ArtifactsDir), db, log.Named("services"))
	pipelineService.MaxConcurrency = cfg.Pipeline.MaxConcurrency

	// 4. Email watcher (optional)
	var watcherDone <-chan struct{}
	if cfg.Gmail.Enabled && db != nil {
		var prompt io.ReadWriter
		if gmailLogin {
			prompt = struct {
				io.Reader
				io.Writer
			}{os.Stdin, os.Stdout}
		}
		gmailService, err := auth.NewGmailService(ctx, cfg.Gmail, prompt)
		if err != nil {
			log.Warn("failed to create Gmail service, watcher disabled", zap.Error(err))
		} else {
			log.Info("gmail service connected")
			emailService := services.NewEmailService(db, runner, catalog,
				&services.GmailMailbox{Service: gmailService},
				services.NewMatcherService(db), cfg.Gmail, log.Named("email"))
			watcherDone = emailService.StartWatcher(ctx)
		}
	} else if cfg.Gmail.Enabled {
		log.Warn("gmail watcher needs a database, watcher disabled")
	}

	// 5. Initialize handlers
	var jobService *services.JobService
	if db != nil {
		jobService = pipelineService.Jobs
	}
	resumes := handlers.NewResumeHandler(cfg.Storage.UploadDir, ext.MaxFileSize(), log.Named("http"))
	router := &handlers.Router{
		Jobs:           handlers.NewJobHandler(runner, catalog, jobService),
		Resumes:        resumes,
		Pipeline:       handlers.NewPipelineHandler(pipelineService, resumes),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         log.Named("http"),
	}
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed to start: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	stop()
	if watcherDone != nil {
		<-watcherDone
	}
	return nil
}

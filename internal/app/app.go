package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/labguard/detection-service/internal/config"
	"github.com/labguard/detection-service/internal/delivery/httpd"
	"github.com/labguard/detection-service/internal/preprocessor"
	"github.com/labguard/detection-service/internal/repository"
	"github.com/labguard/detection-service/internal/service"
	"github.com/labguard/detection-service/internal/service/analyzer"
	"github.com/labguard/detection-service/internal/service/integration"
	"github.com/labguard/detection-service/internal/worker"
	"github.com/labguard/detection-service/internal/worker/queue"
)

type App struct {
	server          *http.Server
	logger          zerolog.Logger
	config          *config.Config
	db              *sql.DB
	detectionWorker worker.DetectionWorker
	rabbitMQRepo    repository.RabbitMQRepository
}

func New(cfg *config.Config, log zerolog.Logger, db *sql.DB) (*App, error) {
	rabbitMQRepo, err := repository.NewRabbitMQRepository(cfg.RabbitMQ.URL, log)
	if err != nil {
		return nil, err
	}

	if err := rabbitMQRepo.SetupQueue(
		cfg.RabbitMQ.Exchange,
		cfg.RabbitMQ.QueueName,
		cfg.RabbitMQ.RoutingKey,
	); err != nil {
		return nil, err
	}

	runRepo := repository.NewRunRepository(db, log)
	scoreCache := repository.NewPostgresScoreCache(db, log)

	var judge analyzer.Judge = analyzer.NoJudge{}
	if cfg.Judge.Enabled {
		geminiJudge, err := integration.NewGeminiJudge(
			context.Background(),
			cfg.Judge.APIKey,
			cfg.Judge.Model,
			cfg.Judge.Timeout,
			log,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize judge: %w", err)
		}
		judge = geminiJudge
	}

	anomalyCfg := analyzer.DefaultAnomalyConfig()
	anomalyCfg.MinInstructions = cfg.Detection.MinInstructions
	anomalyCfg.KeyInstructions = cfg.Detection.KeyInstructions
	anomalyCfg.CommentRatioCeiling = cfg.Detection.CommentRatioCeiling
	anomalyCfg.BlankRatioCeiling = cfg.Detection.BlankRatioCeiling
	anomalyCfg.MinHexBytes = cfg.Detection.MinHexBytes

	filter, err := analyzer.NewCandidateFilter(analyzer.FilterConfig{
		Mode:            analyzer.FilterMode(cfg.Detection.FilterMode),
		SourceThreshold: cfg.Detection.SourceThreshold,
		HexThreshold:    cfg.Detection.HexThreshold,
		TopPercent:      cfg.Detection.TopPercent,
		Metric:          analyzer.RankMetric(cfg.Detection.RankMetric),
	})
	if err != nil {
		return nil, fmt.Errorf("invalid filter configuration: %w", err)
	}

	comparator := analyzer.NewComparator(cfg.Detection.MaxWorkers, scoreCache, log)
	resolver := analyzer.NewResolver(judge, cfg.Detection.FallbackThreshold, cfg.Judge.Timeout, log)
	detector := analyzer.NewAnomalyDetector(anomalyCfg, log)

	detectionService := service.NewDetectionService(
		runRepo,
		rabbitMQRepo,
		comparator,
		filter,
		resolver,
		detector,
		preprocessor.UnavailableCompiler{},
		cfg.RabbitMQ,
		cfg.Detection.FilterMode,
		cfg.Judge.Enabled,
		log,
	)

	reportService := service.NewReportService(runRepo, log)

	workerPool := worker.NewWorkerPool(cfg.Detection.MaxWorkers, log)
	consumer := queue.NewConsumer(
		rabbitMQRepo,
		cfg.RabbitMQ.QueueName,
		cfg.RabbitMQ.ConsumerTag,
		cfg.RabbitMQ.PrefetchCount,
		log,
	)

	detectionWorker := worker.NewDetectionWorker(
		workerPool,
		consumer,
		runRepo,
		detectionService,
		log,
	)

	handler := httpd.NewHandler(
		detectionService,
		reportService,
		detectionWorker,
		log,
	)

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	}))

	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &App{
		server:          server,
		logger:          log,
		config:          cfg,
		db:              db,
		detectionWorker: detectionWorker,
		rabbitMQRepo:    rabbitMQRepo,
	}, nil
}

func (a *App) Run() error {
	ctx := context.Background()
	if err := a.detectionWorker.Start(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Failed to start detection worker")
		return err
	}

	a.logger.Info().Msgf("Starting detection service on %s", a.config.Server.Address)
	return a.server.ListenAndServe()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info().Msg("Shutting down detection service...")

	if err := a.detectionWorker.Stop(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to stop detection worker")
	}

	if a.rabbitMQRepo != nil {
		if err := a.rabbitMQRepo.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close RabbitMQ connection")
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close database connection")
		}
	}

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Failed to shutdown HTTP server")
		return err
	}

	a.logger.Info().Msg("Detection service stopped")
	return nil
}

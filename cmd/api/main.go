package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"adgenerator/internal/cache"
	"adgenerator/internal/export"
	"adgenerator/internal/health"
	"adgenerator/internal/history"
	"adgenerator/internal/http/handlers"
	httpapi "adgenerator/internal/http/httpapi"
	"adgenerator/internal/infra"
	"adgenerator/internal/pipeline"
	"adgenerator/internal/progress"
	"adgenerator/internal/providers/image"
	"adgenerator/internal/providers/prompt"
)

const (
	shutdownTimeout = 30 * time.Second
	sseHeartbeat    = 25 * time.Second
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)
	started := time.Now()
	ctx := context.Background()

	cacheOpts := cache.Options{TTL: cfg.CacheTTL, Logger: logger}
	redisClient, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, using in-memory cache until it answers")
		cacheOpts.Offline = true
	}
	if redisClient != nil {
		cacheOpts.Redis = redisClient
		defer redisClient.Close()
	}
	store := cache.New(cacheOpts)

	tracker := progress.NewTracker(progress.Options{Logger: logger, GraceWindow: cfg.ProgressGraceWindow})

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	var executor infra.SQLExecutor
	if dbpool != nil {
		defer dbpool.Close()
		executor = infra.NewSQLRunner(dbpool, logger)
	}
	historyStore := history.NewStore(executor)
	var recorder pipeline.Recorder
	if historyStore.Enabled() {
		if err := historyStore.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare history schema")
		}
		recorder = historyStore
	}

	driver, err := pipeline.NewDriver(pipeline.Options{
		Tracker:      tracker,
		Prompts:      newPromptGenerator(cfg, logger),
		Images:       newImageGenerator(cfg, logger),
		Cache:        store,
		History:      recorder,
		PromptsCount: cfg.PromptsCount,
		Concurrency:  cfg.PipelineConcurrency,
		Timeout:      cfg.PipelineTimeout,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build pipeline")
	}

	exporter := export.New(export.Options{
		Client:       resty.New().SetTimeout(export.DefaultTimeout),
		Concurrency:  cfg.ExportConcurrency,
		AllowedHosts: cfg.ExportHostAllowlist,
		Logger:       logger,
	})
	checker := health.NewChecker(health.Options{
		Environment:   cfg.AppEnv,
		Version:       cfg.Version,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		IdeogramKey:   cfg.IdeogramAPIKey,
		Cache:         store,
		Progress:      tracker,
		History:       historyStore,
		Started:       started,
	})

	scheduler := infra.NewScheduler(logger)
	if err := scheduler.Every(cfg.ProgressSweepInterval, "progress-sweep", func() {
		if n := tracker.Cleanup(); n > 0 {
			logger.Debug().Int("purged", n).Msg("progress sweep")
		}
	}); err != nil {
		logger.Fatal().Err(err).Msg("failed to schedule progress sweep")
	}
	if err := scheduler.Every(time.Minute, "cache-maintain", func() {
		mctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store.Maintain(mctx)
	}); err != nil {
		logger.Fatal().Err(err).Msg("failed to schedule cache maintenance")
	}
	scheduler.Start()

	stopping := make(chan struct{})
	app := &handlers.App{
		Tracker:      tracker,
		Pipeline:     driver,
		Exporter:     exporter,
		Checker:      checker,
		HistoryStore: historyStore,
		Limits:       cfg.UploadLimits(),
		Logger:       logger,
		Heartbeat:    sseHeartbeat,
		Stopping:     stopping,
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		CORSOrigins: cfg.CORSOrigins,
		StaticDir:   cfg.StaticDir,
		Logger:      logger,
	})
	server := infra.NewHTTPServer(cfg, router)
	server.RegisterOnShutdown(func() { close(stopping) })

	go func() {
		logger.Info().Str("addr", server.Addr()).Str("env", cfg.AppEnv).Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	scheduler.Stop()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer drainCancel()
	if err := driver.Shutdown(drainCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error().Err(err).Msg("failed to drain pipelines")
	}
	logger.Info().Msg("server stopped")
}

func newPromptGenerator(cfg *infra.Config, logger zerolog.Logger) prompt.Generator {
	gen, err := prompt.NewOpenAIGenerator(prompt.OpenAIOptions{
		APIKey:       cfg.OpenAIAPIKey,
		Model:        cfg.OpenAIModel,
		BaseURL:      cfg.OpenAIBaseURL,
		Organization: cfg.OpenAIOrg,
		MaxTokens:    cfg.OpenAIMaxTokens,
		Temperature:  cfg.OpenAITemperature,
		Timeout:      cfg.APITimeout,
		OnWarning: func(reason, detail string) {
			logger.Warn().Str("provider", "openai").Str("reason", reason).Msg(detail)
		},
	})
	if err != nil {
		logger.Warn().Err(err).Msg("OPENAI_API_KEY not set, using static prompt generator")
		return prompt.NewStaticGenerator()
	}
	logger.Info().Str("provider", gen.Name()).Str("model", gen.Model()).Msg("prompt generator ready")
	return gen
}

func newImageGenerator(cfg *infra.Config, logger zerolog.Logger) image.Generator {
	gen, err := image.NewIdeogramGenerator(image.IdeogramOptions{
		APIKey:         cfg.IdeogramAPIKey,
		BaseURL:        cfg.IdeogramBaseURL,
		RenderingSpeed: cfg.IdeogramRenderingSpeed,
		MagicPrompt:    cfg.IdeogramMagicPrompt,
		Timeout:        cfg.APITimeout,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("IDEOGRAM_API_KEY not set, using synthetic image generator")
		return image.NewSyntheticGenerator("")
	}
	logger.Info().Str("provider", gen.Name()).Msg("image generator ready")
	return gen
}

package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clipdigest/bots/internal/client"
	"github.com/clipdigest/bots/internal/config"
	"github.com/clipdigest/bots/internal/handler"
	"github.com/clipdigest/bots/internal/logger"
	"github.com/clipdigest/bots/internal/middleware"
	"github.com/clipdigest/bots/internal/service"
	"github.com/clipdigest/bots/internal/store"
	"github.com/clipdigest/bots/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLog := logger.New(cfg.Server.LogLevel, cfg.Server.Env)

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		appLog.Warn().Err(err).Msg("redis not available")
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize external clients
	openaiClient := client.NewOpenAIClient(&cfg.OpenAI)
	geminiClient := client.NewGeminiClient(&cfg.ImageGen, appLog)
	youtubeClient := client.NewYouTubeClient(&cfg.YouTube)
	newsClient := client.NewNewsClient(&cfg.News)
	scrapeClient := client.NewScrapeClient(&cfg.Scrape)
	blogClient := client.NewBlogClient(&cfg.Blog, appLog)
	discordClient := client.NewDiscordClient(&cfg.Discord, appLog)

	// Initialize R2 storage (optional - thumbnails are skipped without it)
	var storage client.StorageClient
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			appLog.Warn().Err(err).Msg("r2 client not initialized")
		} else {
			storage = r2Client
		}
	} else {
		appLog.Info().Msg("object storage not configured, posts will ship without thumbnails")
	}

	// Initialize job store and services
	jobStore := store.NewJobStore(cfg.Digest.CachePath, appLog)

	digestService := service.NewDigestService(&cfg.Digest, jobStore, openaiClient, geminiClient, storage, youtubeClient, newsClient, blogClient, discordClient, appLog)
	portfolioService := service.NewPortfolioService(scrapeClient, openaiClient, blogClient, discordClient, appLog)
	poller := service.NewPoller(jobStore, openaiClient, geminiClient, digestService, discordClient, appLog)
	runsService := service.NewRunsService(asynqClient, appLog)
	jobsService := service.NewJobsService(jobStore, appLog)

	// Initialize handlers
	runsHandler := handler.NewRunsHandler(runsService, validate)
	jobsHandler := handler.NewJobsHandler(jobsService)
	authHandler := handler.NewAuthHandler(cfg.JWT.Secret)

	// Initialize middleware
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind the gateway: auth is handled by ForwardAuth, read X-User-* headers
		appLog.Info().Msg("gateway mode enabled, using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		apiAuthMiddleware = middleware.NewAuthMiddleware(cfg.JWT.Secret, cfg.JWT.Expiration).Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams}\n"
	}
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"redis":   redisClient.Ping(c.Context()).Err() == nil,
				"openai":  openaiClient.IsConfigured(),
				"images":  geminiClient.IsConfigured(),
				"youtube": youtubeClient.IsConfigured(),
				"news":    newsClient.IsConfigured(),
				"scrape":  scrapeClient.IsConfigured(),
				"blog":    blogClient.IsConfigured(),
				"discord": discordClient.IsConfigured(),
				"storage": storage != nil,
				"auth":    cfg.JWT.Secret != "",
			},
		})
	})

	// ForwardAuth verification endpoint (internal, called by the gateway)
	app.Get("/auth/verify", authHandler.Verify)

	// API routes
	api := app.Group("/api", apiAuthMiddleware)

	jobs := api.Group("/jobs", rateLimiter.JobsLimit(cfg.RateLimit.JobsPerMin))
	jobs.Get("/", jobsHandler.List)
	jobs.Delete("/*", jobsHandler.Abandon)

	runs := api.Group("/runs", rateLimiter.RunsLimit(cfg.RateLimit.RunsPerHour))
	runs.Post("/digest", runsHandler.Digest)
	runs.Post("/portfolio", runsHandler.Portfolio)
	runs.Post("/poll", runsHandler.Poll)

	// Start Asynq worker server and scheduler
	go startWorkerServer(cfg, redisOpt, digestService, portfolioService, poller, runsService, appLog)
	go startScheduler(cfg, redisOpt, appLog)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		appLog.Info().Msg("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			appLog.Error().Err(err).Msg("server shutdown error")
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	appLog.Info().Str("addr", addr).Msg("server starting")
	if err := app.Listen(addr); err != nil {
		appLog.Fatal().Err(err).Msg("server error")
	}
}

func startWorkerServer(
	cfg *config.Config,
	redisOpt asynq.RedisClientOpt,
	digestService *service.DigestService,
	portfolioService *service.PortfolioService,
	poller *service.Poller,
	runsService *service.RunsService,
	appLog zerolog.Logger,
) {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		// One worker: runs are exclusive, batch waiting happens externally.
		Concurrency: 1,
		Queues: map[string]int{
			"bots": 1,
		},
		Logger:   logger.NewAsynqLogger(appLog),
		LogLevel: asynqLogLevel(cfg.Server.LogLevel),
	})

	digestWorker := worker.NewDigestWorker(digestService, appLog)
	portfolioWorker := worker.NewPortfolioWorker(portfolioService, appLog)
	pollWorker := worker.NewPollWorker(poller, appLog)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeDigest, digestWorker.ProcessTask)
	mux.HandleFunc(service.TaskTypePortfolio, portfolioWorker.ProcessTask)
	mux.HandleFunc(service.TaskTypePoll, pollWorker.ProcessTask)

	// Dispatch handlers re-enqueue through RunsService so scheduled runs
	// get the same date-scoped task ids as manual triggers.
	mux.HandleFunc(service.TaskTypeDigestDispatch, func(ctx context.Context, t *asynq.Task) error {
		_, err := runsService.EnqueueDigest(ctx, "")
		return err
	})
	mux.HandleFunc(service.TaskTypePortfolioDispatch, func(ctx context.Context, t *asynq.Task) error {
		_, err := runsService.EnqueuePortfolio(ctx)
		return err
	})

	if err := srv.Run(mux); err != nil {
		appLog.Error().Err(err).Msg("asynq worker error")
	}
}

func startScheduler(cfg *config.Config, redisOpt asynq.RedisClientOpt, appLog zerolog.Logger) {
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: time.UTC,
		Logger:   logger.NewAsynqLogger(appLog),
		LogLevel: asynqLogLevel(cfg.Server.LogLevel),
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			// A task id conflict is overlap suppression working, not a fault.
			if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
				appLog.Error().Err(err).Msg("scheduler enqueue failed")
			}
		},
	})

	entries := []struct {
		spec string
		task *asynq.Task
		opts []asynq.Option
	}{
		{cfg.Digest.Cron, asynq.NewTask(service.TaskTypeDigestDispatch, nil), []asynq.Option{asynq.Queue("bots")}},
		{cfg.Portfolio.Cron, asynq.NewTask(service.TaskTypePortfolioDispatch, nil), []asynq.Option{asynq.Queue("bots")}},
		{cfg.Digest.PollCron, asynq.NewTask(service.TaskTypePoll, nil), []asynq.Option{
			asynq.Queue("bots"),
			asynq.TaskID(service.TaskTypePoll),
			asynq.Timeout(15 * time.Minute),
		}},
	}
	for _, e := range entries {
		if _, err := scheduler.Register(e.spec, e.task, e.opts...); err != nil {
			appLog.Fatal().Err(err).Str("spec", e.spec).Str("task", e.task.Type()).Msg("failed to register schedule")
		}
	}

	if err := scheduler.Run(); err != nil {
		appLog.Error().Err(err).Msg("scheduler error")
	}
}

func asynqLogLevel(level string) asynq.LogLevel {
	asynqLevel := asynq.InfoLevel
	if strings.EqualFold(level, "debug") {
		asynqLevel = asynq.DebugLevel
	} else if strings.EqualFold(level, "warn") {
		asynqLevel = asynq.WarnLevel
	} else if strings.EqualFold(level, "error") {
		asynqLevel = asynq.ErrorLevel
	}
	return asynqLevel
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}

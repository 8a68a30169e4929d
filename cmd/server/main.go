package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"

	"github.com/tidyplan/tidyplan-api/internal/config"
	"github.com/tidyplan/tidyplan-api/internal/database"
	"github.com/tidyplan/tidyplan-api/internal/handlers"
	"github.com/tidyplan/tidyplan-api/internal/logger"
	"github.com/tidyplan/tidyplan-api/internal/middleware"
	"github.com/tidyplan/tidyplan-api/internal/queue"
	"github.com/tidyplan/tidyplan-api/internal/services/ai"
	"github.com/tidyplan/tidyplan-api/internal/services/backboard"
	"github.com/tidyplan/tidyplan-api/internal/services/firebase"
	"github.com/tidyplan/tidyplan-api/internal/telemetry"
	"github.com/tidyplan/tidyplan-api/internal/ws"
)

const version = "1.0.0"

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = zapLogger.Sync()
	}()

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("frontend_url", cfg.FrontendURL),
		zap.String("ai_provider", cfg.AIProvider),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	// OpenTelemetry tracing, opt-in
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else {
			tp, err := telemetry.InitTracer(context.Background(), "tidyplan-api", cfg.OTELEndpoint)
			if err != nil {
				zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
			} else {
				zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
				defer func() {
					shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer shutdownCancel()
					if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
						zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
					}
				}()
			}
		}
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		zapLogger.Fatal("invalid_redis_url", zap.Error(err))
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() {
		if err := redisClient.Close(); err != nil {
			zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_redis")

	// RabbitMQ is optional for the API server; the worker binary requires it.
	// When configured it feeds the extended health check.
	var jobQueue queue.JobQueue
	if cfg.RabbitMQURL != "" {
		jobQueue, err = queue.ConnectWithRetry(cfg.RabbitMQURL, zapLogger)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_rabbitmq_after_retries", zap.Error(err))
		}
		defer func() {
			if err := jobQueue.Close(); err != nil {
				zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
			}
		}()
		zapLogger.Info("connected_to_rabbitmq")
	}

	// Repositories
	userRepo := database.NewUserRepository(db)
	taskRepo := database.NewTaskRepository(db)
	tagRepo := database.NewTagRepository(db)
	reminderRepo := database.NewReminderRepository(db)
	memoryRepo := database.NewMemoryRepository(db)
	sessionRepo := database.NewSessionRepository(db)
	corsConfigRepo := database.NewCorsConfigRepository(db)
	ratelimitConfigRepo := database.NewRatelimitConfigRepository(db)

	// Firebase token verification
	jwksManager := firebase.NewJWKSManager()
	verifier := firebase.NewVerifier(jwksManager, cfg.FirebaseIssuer(), cfg.FirebaseProjectID)
	authMW := middleware.Auth(userRepo, verifier, cfg.AuthAllowHeader, zapLogger)

	// Backboard wrapper, shared by the chat endpoints, the memory mirror,
	// and the backboard AI provider
	var wrapper *backboard.Wrapper
	if cfg.BackboardAPIKey != "" {
		client := backboard.NewClient(cfg.BackboardAPIKey, cfg.BackboardBaseURL)
		wrapper = backboard.NewWrapper(client, sessionRepo, cfg.SessionTTL)
	}

	aiProvider, err := createAIProvider(cfg, wrapper, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_create_ai_provider", zap.Error(err))
	}
	workflow := ai.NewWorkflow(aiProvider, taskRepo, zapLogger)

	// Handlers
	taskHandler := handlers.NewTaskHandler(taskRepo)
	tagHandler := handlers.NewTagHandler(tagRepo)
	reminderHandler := handlers.NewReminderHandler(reminderRepo, taskRepo)
	healthChecker := handlers.NewHealthChecker(db, redisClient, jobQueue, version)

	var memoryMirror handlers.Rememberer
	if wrapper != nil {
		memoryMirror = wrapper
	}
	memoryHandler := handlers.NewMemoryHandler(memoryRepo, memoryMirror, zapLogger)

	var chatHandler *handlers.ChatHandler
	if wrapper != nil {
		chatHandler = handlers.NewChatHandler(wrapper, zapLogger)
	}

	// WebSocket chat
	hub := ws.NewHub(zapLogger)
	var docLister ws.DocumentLister
	if wrapper != nil {
		docLister = wrapper
	}
	wsHandler := ws.NewHandler(hub, workflow, docLister, zapLogger)

	r := mux.NewRouter()

	// Outer middleware applies to everything, including the WebSocket
	// upgrade. Body limits, content-type checks, and the request timeout go
	// on the REST subrouter only: http.TimeoutHandler cannot hijack.
	if cfg.OTELEnabled {
		r.Use(otelmux.Middleware("tidyplan-api"))
	}
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	corsReloader := middleware.NewCORSReloader(corsConfigRepo, cfg.FrontendURL, zapLogger, 1*time.Minute)
	r.Use(corsReloader.Middleware())
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.Logging(zapLogger))

	rateLimitReloader := middleware.NewRateLimitReloader(redisClient, ratelimitConfigRepo, "100-M", zapLogger, 1*time.Minute)
	if rateLimitReloader == nil {
		zapLogger.Fatal("failed_to_create_rate_limit_reloader")
	}

	// Public routes
	r.HandleFunc("/api/health", healthChecker.Health).Methods("GET")
	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods("GET")
	r.HandleFunc("/version", healthChecker.Version).Methods("GET")

	// REST API routes (protected). Body size limits are per resource: the
	// chat upload route accepts larger multipart bodies than the JSON API.
	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.Use(middleware.ContentType)
	apiRouter.Use(middleware.Timeout(30 * time.Second))
	apiRouter.Use(rateLimitReloader.Middleware())
	apiRouter.Use(authMW)

	jsonLimit := middleware.MaxRequestSize(middleware.DefaultMaxRequestSize)

	tasksRouter := apiRouter.PathPrefix("/tasks").Subrouter()
	tasksRouter.Use(jsonLimit)
	taskHandler.RegisterRoutes(tasksRouter)
	reminderHandler.RegisterTaskRoutes(tasksRouter)

	tagsRouter := apiRouter.PathPrefix("/tags").Subrouter()
	tagsRouter.Use(jsonLimit)
	tagHandler.RegisterRoutes(tagsRouter)

	remindersRouter := apiRouter.PathPrefix("/reminders").Subrouter()
	remindersRouter.Use(jsonLimit)
	reminderHandler.RegisterRoutes(remindersRouter)

	memoriesRouter := apiRouter.PathPrefix("/memories").Subrouter()
	memoriesRouter.Use(jsonLimit)
	memoryHandler.RegisterRoutes(memoriesRouter)

	if chatHandler != nil {
		chatRouter := apiRouter.PathPrefix("/chat").Subrouter()
		chatRouter.Use(middleware.MaxRequestSize(middleware.UploadMaxRequestSize))
		chatHandler.RegisterRoutes(chatRouter)
	}

	// WebSocket route (protected, no timeout middleware)
	wsRouter := r.PathPrefix("/ws").Subrouter()
	wsRouter.Use(authMW)
	wsRouter.Handle("", wsHandler).Methods("GET")

	// Preflight catch-all; CORS headers are set by the middleware
	r.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        r,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   0, // WebSocket connections outlive any fixed write timeout
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// Config hot-reload loops
	reloadCtx, reloadCancel := context.WithCancel(context.Background())
	defer reloadCancel()
	go corsReloader.Start(reloadCtx)
	go rateLimitReloader.Start(reloadCtx)

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")
	reloadCancel()
	hub.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Fatal("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}

// createAIProvider builds the configured chat provider through the registry.
func createAIProvider(cfg *config.Config, wrapper *backboard.Wrapper, zapLogger *zap.Logger) (ai.Provider, error) {
	registry := ai.NewProviderRegistry()

	registry.Register("backboard", func(map[string]string) (ai.Provider, error) {
		if wrapper == nil {
			return nil, fmt.Errorf("backboard provider requires BACKBOARD_API_KEY")
		}
		return ai.NewBackboardProvider(wrapper, cfg.BackboardProvider, cfg.BackboardModel, zapLogger), nil
	})
	registry.Register("openai", func(conf map[string]string) (ai.Provider, error) {
		if conf["api_key"] == "" {
			return nil, fmt.Errorf("openai provider requires OPENAI_API_KEY")
		}
		return ai.NewOpenAIProvider(conf["api_key"], conf["base_url"], conf["model"], zapLogger), nil
	})
	registry.Register("bedrock", func(conf map[string]string) (ai.Provider, error) {
		return ai.NewBedrockProvider(context.Background(), conf["region"], conf["bedrock_model_id"], zapLogger)
	})

	return registry.GetProvider(cfg.AIProvider, map[string]string{
		"api_key":          cfg.OpenAIKey,
		"base_url":         cfg.AIBaseURL,
		"model":            cfg.AIModel,
		"region":           cfg.BedrockRegion,
		"bedrock_model_id": cfg.BedrockModelID,
	})
}

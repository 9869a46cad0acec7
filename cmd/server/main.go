package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"github.com/studymate/studymate-backend/internal/api"
	"github.com/studymate/studymate-backend/internal/auth"
	"github.com/studymate/studymate-backend/internal/config"
	"github.com/studymate/studymate-backend/internal/database"
	"github.com/studymate/studymate-backend/internal/llm"
	"github.com/studymate/studymate-backend/internal/providers"
	"github.com/studymate/studymate-backend/internal/providers/groq"
	"github.com/studymate/studymate-backend/internal/repository"
	"github.com/studymate/studymate-backend/internal/repository/postgres"
	"github.com/studymate/studymate-backend/internal/services"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	log := newLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database is optional; without it chats are answered but not stored
	var (
		db       *database.DB
		listener repository.MessageListener
	)
	if cfg.DatabaseEnabled() {
		db, err = database.NewConnection(cfg.Database)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to database")
		}
		defer db.Close()

		if err := database.RunMigrations(cfg.Database); err != nil {
			log.WithError(err).Fatal("Failed to run migrations")
		}
		listener = postgres.NewListener(cfg.Database.DSN(), log)
	} else {
		log.Warn("No database configured, conversation history is disabled")
	}

	// Upstream provider behind the completion proxy
	var (
		provider    providers.Provider
		transcriber providers.Transcriber
	)
	groqProvider, err := groq.NewProvider(groq.Config{
		APIKey:  cfg.Groq.APIKey,
		BaseURL: cfg.Groq.BaseURL,
	})
	if err != nil {
		log.WithError(err).Warn("Groq provider disabled, proxy endpoints will fail")
	} else {
		provider = groqProvider
		transcriber = groqProvider
	}

	metrics := llm.NewMetricsCollector()
	routerOpts := []llm.RouterOption{
		llm.WithLogger(log),
		llm.WithMetrics(metrics),
	}
	if cfg.Router.Budget {
		routerOpts = append(routerOpts, llm.WithBudget(llm.NewBudget()))
	}
	router, err := llm.NewProviderRouter(cfg.RouterConfig(), routerOpts...)
	if err != nil {
		log.WithError(err).Fatal("Failed to create provider router")
	}

	svc := services.NewServices(router, metrics, db.SQLX(), listener, log)
	if svc.Hub != nil {
		go func() {
			if err := svc.Hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("Live feed stopped")
			}
		}()
	}

	validator := auth.NewTokenValidator(cfg.Auth.JWTSecret, cfg.Auth.Audience)
	if !validator.Enabled() {
		log.Warn("No JWT secret configured, every caller is treated as a guest")
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "StudyMate Backend",
		ErrorHandler: customErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.Server.CORSOrigins, ","),
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, DELETE, OPTIONS",
		AllowCredentials: !containsWildcard(cfg.Server.CORSOrigins),
	}))

	api.SetupRoutes(app, api.Dependencies{
		Services:          svc,
		Validator:         validator,
		Provider:          provider,
		Transcriber:       transcriber,
		DefaultModel:      cfg.Groq.DefaultModel,
		ProxyKey:          cfg.Router.ProxyKey,
		RequestsPerMinute: cfg.Server.RequestsPerMinute,
		Logger:            log,
	})

	go func() {
		<-ctx.Done()
		log.Info("Shutting down")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			log.WithError(err).Error("Shutdown did not complete cleanly")
		}
	}()

	log.WithField("addr", cfg.Addr()).Info("StudyMate backend starting")
	if err := app.Listen(cfg.Addr()); err != nil {
		log.WithError(err).Fatal("Failed to start server")
	}
}

func newLogger(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		log.SetLevel(level)
	}
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}

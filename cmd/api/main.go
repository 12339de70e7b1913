package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jerllllllllyn/smart-grade/internal/config"
	"github.com/jerllllllllyn/smart-grade/internal/handler"
	"github.com/jerllllllllyn/smart-grade/internal/middleware"
	"github.com/jerllllllllyn/smart-grade/internal/router"
	"github.com/jerllllllllyn/smart-grade/internal/service"
	"github.com/jerllllllllyn/smart-grade/pkg/ai"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	invoker, err := buildInvoker(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to create model invoker: %v", err)
	}
	logger.Info().Str("invoker", invoker.Name()).Msg("model invoker ready")

	validate := validator.New(validator.WithRequiredStructEnabled())

	composer := service.NewRequestComposer(service.ComposerConfig{
		PrimaryLanguage:   cfg.PrimaryLanguage,
		SecondaryLanguage: cfg.SecondaryLanguage,
	})
	schema := service.NewResultSchema()
	encoder := service.NewMediaEncoder(cfg.MaxUploadMB, logger)

	sessions := service.NewSessionRegistry(cfg.SessionTTL, logger)
	sessions.Start(ctx)

	gradingService := service.NewGradingService(invoker, composer, schema, cfg.Temperature, logger)
	gradingHandler := handler.NewGradingHandler(sessions, gradingService, encoder, validate, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		// Room for a batch of scan pages at the per-page cap.
		BodyLimit: cfg.MaxUploadMB * 16 * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})

	var jwtMiddleware fiber.Handler
	if cfg.JWTSecret != "" {
		jwtMiddleware = middleware.JWTProtected(cfg.JWTSecret)
	} else {
		logger.Warn().Msg("no jwt secret configured, grading endpoints are unauthenticated")
	}

	router.Register(app, cfg, router.Dependencies{
		GradingHandler: gradingHandler,
		JWTMiddleware:  jwtMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(ctx, app)
}

func buildInvoker(ctx context.Context, cfg config.Config, logger zerolog.Logger) (ai.Invoker, error) {
	switch cfg.AIProvider {
	case "openai":
		return ai.NewOpenAIInvoker(ai.OpenAIConfig{
			APIKey:    cfg.OpenAIAPIKey,
			Model:     cfg.OpenAIModel,
			MaxTokens: cfg.MaxOutputTokens,
			BaseURL:   cfg.OpenAIBaseURL,
			Logger:    logger,
		})
	default:
		return ai.NewGeminiInvoker(ctx, ai.GeminiConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GeminiModel,
			Logger: logger,
		})
	}
}

func waitForShutdown(ctx context.Context, app *fiber.App) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}

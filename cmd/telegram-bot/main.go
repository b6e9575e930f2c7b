package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mcdickies/savor/internal/app"
	"github.com/mcdickies/savor/internal/config"
	"github.com/mcdickies/savor/internal/observability"
	"github.com/mcdickies/savor/internal/telegram"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.RequireTelegram(); err != nil {
		log.Fatalf("Invalid Telegram config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// 2. Initialize storage, keystore and the draft service
	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer application.Close()

	// 3. Initialize Telegram Bot
	api, err := telegram.NewBotAPI(cfg.TelegramBotToken, cfg.TelegramWebhookURL, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Telegram Bot", zap.Error(err))
	}

	bot := telegram.NewBot(telegram.Deps{
		API:         api,
		Drafts:      application.Drafts(),
		Clipper:     application.Clipper(),
		Transcriber: application.Transcriber(),
		Sessions:    telegram.NewSessionStore(application.Posts()),
		Usage:       application.Metrics(),
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		Allowed:     cfg.AllowsTelegramUser,
		Logger:      logger,
	})

	// 4. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           application.Router(bot),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Telegram Bot Server listening", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}

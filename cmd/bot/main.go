package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/marketvision/cardgenbot/internal/config"
	"github.com/marketvision/cardgenbot/internal/database"
	"github.com/marketvision/cardgenbot/internal/gemini"
	"github.com/marketvision/cardgenbot/internal/repository"
	"github.com/marketvision/cardgenbot/internal/service"
	"github.com/marketvision/cardgenbot/internal/telegram"
	"github.com/marketvision/cardgenbot/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatalf("telegram bot: %v", err)
	}

	geminiClient := gemini.NewClient(cfg, logr)

	userRepo := repository.NewUserRepository(db)
	stateRepo := repository.NewStateRepository(db)
	usageRepo := repository.NewUsageRepository(db)

	userService := service.NewUserService(userRepo)
	ledgerService := service.NewLedgerService(cfg, logr, userRepo, usageRepo)
	intentService := service.NewIntentService(cfg, logr, geminiClient)
	generationService := service.NewGenerationService(cfg, logr, ledgerService, intentService, geminiClient)
	analysisService := service.NewAnalysisService(cfg, logr, ledgerService, geminiClient)

	bot := telegram.NewBot(cfg, botAPI, logr, userService, stateRepo, ledgerService, generationService, analysisService)

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("bot stopped", "err", err)
	}
}

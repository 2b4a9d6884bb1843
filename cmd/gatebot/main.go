package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"google.golang.org/api/option"

	"github.com/dstaley/gatebot/pkg/agent/gemini"
	"github.com/dstaley/gatebot/pkg/blob"
	"github.com/dstaley/gatebot/pkg/config"
	"github.com/dstaley/gatebot/pkg/orchestrator"
	"github.com/dstaley/gatebot/pkg/server"
	"github.com/dstaley/gatebot/pkg/session"
	"github.com/dstaley/gatebot/pkg/workspace"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	// Config.
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger.
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Object store.
	var storeOpts []option.ClientOption
	if cfg.Storage.ProjectID != "" {
		storeOpts = append(storeOpts, option.WithQuotaProject(cfg.Storage.ProjectID))
	}
	blobs, err := blob.NewGCS(ctx, cfg.Storage.Bucket, storeOpts...)
	if err != nil {
		slog.Error("Failed to initialize object store", "error", err)
		os.Exit(1)
	}
	defer blobs.Close()
	slog.Info("Using GCS bucket", "bucket", blobs.Bucket())

	// Agent backend.
	runner, err := gemini.New(ctx, cfg.Agent.GeminiAPIKey, cfg.Agent.Model)
	if err != nil {
		slog.Error("Failed to initialize Gemini runner", "error", err)
		os.Exit(1)
	}
	defer runner.Close()

	// Sync engine.
	orch := orchestrator.New(
		blobs,
		session.NewStore(blobs),
		workspace.NewSynchronizer(blobs),
		runner,
		orchestrator.Options{
			WorkspaceRoot: cfg.WorkspaceRoot,
			HistoryLimit:  cfg.HistoryLimit,
		},
	)

	// Telegram client.
	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		slog.Error("Failed to initialize Telegram client", "error", err)
		os.Exit(1)
	}
	slog.Info("Telegram bot authorized", "username", bot.Self.UserName)

	// Front door.
	srv := server.New(orch, bot, cfg.Telegram.AllowedUsers)
	if err := srv.Start(cfg.ListenAddr); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

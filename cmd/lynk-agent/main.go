package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/vincentbai/lynk-embed/internal/database"
	xlog "github.com/vincentbai/lynk-embed/internal/log"
	"github.com/vincentbai/lynk-embed/internal/server"
)

func main() {
	xlog.Configure(xlog.Config{Service: "lynk-agent"})
	logger := xlog.WithComponent("main")

	// app data dir: platform-specific
	homeDirectory, err := os.UserHomeDir()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to get user home directory")
	}

	var applicationDirectory string
	switch runtime.GOOS {
	case "darwin":
		applicationDirectory = filepath.Join(homeDirectory, "Library", "Application Support", "Lynk")
	case "windows":
		applicationDirectory = filepath.Join(homeDirectory, "AppData", "Roaming", "Lynk")
	default: // linux and others
		applicationDirectory = filepath.Join(homeDirectory, ".local", "share", "Lynk")
	}
	if err := os.MkdirAll(applicationDirectory, 0o755); err != nil {
		logger.Fatal().Err(err).Msg("Failed to create application directory")
	}
	databasePath := os.Getenv("LYNK_AGENT_DB")
	if databasePath == "" {
		databasePath = filepath.Join(applicationDirectory, "collector.db")
	}

	// Initialize database
	db, err := database.NewDatabase(databasePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	if err := db.SeedDemo(context.Background(), time.Now()); err != nil {
		logger.Fatal().Err(err).Msg("Failed to seed demo catalog")
	}

	// Get server address from environment or use default
	serverAddress := os.Getenv("LYNK_AGENT_ADDRESS")
	if serverAddress == "" {
		serverAddress = "127.0.0.1:8123"
	}
	var apiKeys []string
	if keys := os.Getenv("LYNK_AGENT_API_KEYS"); keys != "" {
		apiKeys = strings.Split(keys, ",")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize and start server
	srv := server.NewServer(db, server.Config{
		Address:   serverAddress,
		APIKeys:   apiKeys,
		Tracing:   os.Getenv("LYNK_AGENT_TRACING") == "true",
		PublicURL: os.Getenv("LYNK_AGENT_PUBLIC_URL"),
	})
	if err := srv.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("Server failed")
		db.Close()
		os.Exit(1)
	}
}

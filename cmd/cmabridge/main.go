package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/cmabridge/internal/app"
	"github.com/ternarybob/cmabridge/internal/common"
	"github.com/ternarybob/cmabridge/internal/models"
	"github.com/ternarybob/cmabridge/internal/server"
)

var (
	// Command-line flags
	configFiles  = pflag.StringArrayP("config", "c", nil, "Configuration file path (repeatable, later files override earlier ones)")
	serverPort   = pflag.IntP("port", "p", 0, "Server port (overrides config)")
	serverHost   = pflag.String("host", "", "Server host (overrides config)")
	loginProfile = pflag.String("profile", "", "Start a background login with this profile when no session is stored")
	showVersion  = pflag.BoolP("version", "v", false, "Print version information")
)

func main() {
	pflag.Parse()

	if *showVersion {
		fmt.Printf("cmabridge version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	common.LoadVersionFromFile()

	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Apply CLI overrides (highest priority)
	// 3. Initialize logger
	// 4. Print banner
	paths := *configFiles
	if len(paths) == 0 {
		if _, err := os.Stat("cmabridge.toml"); err == nil {
			paths = append(paths, "cmabridge.toml")
		} else if _, err := os.Stat("deployments/local/cmabridge.toml"); err == nil {
			paths = append(paths, "deployments/local/cmabridge.toml")
		}
	}

	config, err := common.LoadFromFiles(paths...)
	if err != nil {
		arbor.NewLogger().Fatal().Strs("paths", paths).Err(err).Msg("Failed to load configuration files")
		os.Exit(1)
	}

	common.ApplyFlagOverrides(config, *serverPort, *serverHost)

	if err := config.Validate(); err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Invalid configuration")
		os.Exit(1)
	}

	logger := common.InitLogger(config)
	common.InstallCrashHandler(crashDir())
	common.PrintBanner(common.GetVersion())

	logger.Info().
		Strs("config_files", paths).
		Str("tenant", config.CMA.Tenant).
		Str("driver", config.Browser.Driver).
		Int("port", config.Server.Port).
		Str("host", config.Server.Host).
		Msg("Application configuration loaded")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}

	// Create shutdown channel for HTTP endpoint to trigger shutdown
	shutdownChan := make(chan struct{})

	srv := server.New(application)
	srv.SetShutdownChannel(shutdownChan)

	go func() {
		defer common.RecoverWithCrashFile()

		if err := srv.Start(); err != nil {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	if *loginProfile != "" {
		autoLogin(application, *loginProfile, logger)
	}

	logger.Info().
		Str("url", fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)).
		Msg("Server ready - Press Ctrl+C to stop")

	// Wait for interrupt signal or HTTP shutdown request
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info().Msg("Interrupt signal received")
	case <-shutdownChan:
		logger.Info().Msg("Shutdown requested via HTTP")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}

	if err := application.Close(); err != nil {
		logger.Error().Err(err).Msg("Application close failed")
	}

	logger.Info().Msg("Server stopped")
}

// autoLogin starts a background login unless a session is already stored
func autoLogin(application *app.App, profile string, logger arbor.ILogger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := application.Sessions.Login(ctx, profile)
	if err != nil {
		logger.Error().Str("profile", profile).Err(err).Msg("Automatic login not started")
		return
	}

	switch result.Status {
	case models.LoginAlreadyLoggedIn:
		logger.Info().Msg("Stored session found, automatic login skipped")
	default:
		logger.Info().Str("profile", profile).Str("task_id", result.TaskID).Msg("Automatic login started")
	}
}

func crashDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "logs"
	}
	return filepath.Join(filepath.Dir(exe), "logs")
}

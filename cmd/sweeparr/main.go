// Copyright (c) 2026, the sweeparr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sweeparr/sweeparr/internal/api"
	"github.com/sweeparr/sweeparr/internal/arr"
	"github.com/sweeparr/sweeparr/internal/buildinfo"
	"github.com/sweeparr/sweeparr/internal/cleaner"
	"github.com/sweeparr/sweeparr/internal/config"
	"github.com/sweeparr/sweeparr/internal/database"
	"github.com/sweeparr/sweeparr/internal/metrics"
	"github.com/sweeparr/sweeparr/internal/models"
)

func main() {
	config.InitDefaultLogger(buildinfo.Version)

	var rootCmd = &cobra.Command{
		Use:   "sweeparr",
		Short: "Automatic queue cleaner for Sonarr and Radarr",
		Long: `sweeparr - A self-hosted service that prunes stuck, failed, and
policy-violating entries from Sonarr/Radarr download queues.`,
	}

	rootCmd.Version = buildinfo.Version

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunVersionCommand(buildinfo.Version))
	rootCmd.AddCommand(RunGenerateConfigCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RunServeCommand() *cobra.Command {
	var (
		configDir string
		dataDir   string
		logPath   string
		pprofFlag bool
	)

	var command = &cobra.Command{
		Use:   "serve",
		Short: "Start the server",
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory path (default is OS-specific: ~/.config/sweeparr/). Can also be a direct path to a .toml file")
	command.Flags().StringVar(&dataDir, "data-dir", "", "data directory for database and other files (default is next to config file)")
	command.Flags().StringVar(&logPath, "log-path", "", "log file path (default is stdout)")
	command.Flags().BoolVar(&pprofFlag, "pprof", false, "enable pprof server on :6060")

	command.Run = func(cmd *cobra.Command, args []string) {
		app := NewApplication(configDir, dataDir, logPath, pprofFlag)
		app.runServer()
	}

	return command
}

func RunVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of sweeparr",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		Long:  "Generate a default configuration file without starting the server.",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := configDir
			if dir == "" {
				dir = config.GetDefaultConfigDir()
			}

			path := dir
			if filepath.Ext(path) != ".toml" {
				path = filepath.Join(dir, "config.toml")
			}

			if _, err := os.Stat(path); err == nil {
				return errors.Errorf("config file already exists at %s", path)
			}

			if err := config.WriteDefaultConfig(path); err != nil {
				return errors.Wrap(err, "failed to write default config")
			}

			fmt.Printf("Generated default config at %s\n", path)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory path")

	return command
}

type Application struct {
	configDir string
	dataDir   string
	logPath   string
	pprofFlag bool
}

func NewApplication(configDir, dataDir, logPath string, pprofFlag bool) *Application {
	return &Application{
		configDir: configDir,
		dataDir:   dataDir,
		logPath:   logPath,
		pprofFlag: pprofFlag,
	}
}

func (app *Application) runServer() {
	cfg, err := config.New(app.configDir, buildinfo.Version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize configuration")
	}

	// Override with CLI flags if provided
	if app.dataDir != "" {
		os.Setenv("SWEEPARR__DATA_DIR", app.dataDir)
		cfg.SetDataDir(app.dataDir)
	}
	if app.logPath != "" {
		os.Setenv("SWEEPARR__LOG_PATH", app.logPath)
		cfg.Config.LogPath = app.logPath
	}
	if app.pprofFlag {
		cfg.Config.PprofEnabled = true
	}

	cfg.ApplyLogConfig()

	log.Info().Str("version", buildinfo.Version).Msg("Starting sweeparr")

	db, err := database.New(cfg.GetDatabasePath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	instanceStore, err := models.NewInstanceStore(db, cfg.GetEncryptionKey())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize instance store")
	}
	configStore := models.NewCleanerConfigStore(db)
	strikeStore := models.NewStrikeStore(db)
	attemptStore := models.NewImportAttemptStore(db)
	logStore := models.NewCleanerLogStore(db)

	var m *metrics.Metrics
	if cfg.Config.MetricsEnabled {
		m = metrics.New()
	}

	clientFactory := arr.ClientFactory(arr.NewHTTPClient)

	cleanerService := cleaner.NewService(instanceStore, configStore, strikeStore, attemptStore, logStore, clientFactory, m)
	scheduler := cleaner.NewScheduler(cleanerService, instanceStore, configStore, m)

	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	go scheduler.Start(schedulerCtx)

	httpServer := api.NewServer(&api.Dependencies{
		Config:         cfg,
		Version:        buildinfo.Version,
		DB:             db,
		InstanceStore:  instanceStore,
		ConfigStore:    configStore,
		LogStore:       logStore,
		CleanerService: cleanerService,
		Scheduler:      scheduler,
		ClientFactory:  clientFactory,
	})

	errorChannel := make(chan error)
	serverReady := make(chan struct{}, 1)
	go func() {
		if err := httpServer.ListenAndServeReady(serverReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errorChannel <- err
		}
	}()

	select {
	case <-serverReady:
	case err := <-errorChannel:
		log.Fatal().Err(err).Msg("failed to start HTTP server")
	}

	if cfg.Config.MetricsEnabled {
		go func() {
			metricsServer := metrics.NewServer(
				m,
				cfg.Config.MetricsHost,
				cfg.Config.MetricsPort,
				cfg.Config.MetricsBasicAuthUsers,
			)
			errorChannel <- metricsServer.ListenAndServe()
		}()
	}

	if cfg.Config.PprofEnabled {
		go func() {
			log.Info().Msg("Starting pprof server on :6060")
			if err := http.ListenAndServe(":6060", nil); err != nil {
				log.Error().Err(err).Msg("Profiling server failed")
			}
		}()
	}

	// Wait for interrupt signal to gracefully shutdown the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Msgf("got signal %v, shutting down server", sig.String())
	case err := <-errorChannel:
		log.Error().Err(err).Msg("got unexpected error from server")
	}

	stopScheduler()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("got error during graceful http shutdown")
		os.Exit(1)
	}
}

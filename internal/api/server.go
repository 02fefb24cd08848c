// Copyright (c) 2026, the sweeparr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/CAFxX/httpcompression"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sweeparr/sweeparr/internal/api/handlers"
	"github.com/sweeparr/sweeparr/internal/arr"
	"github.com/sweeparr/sweeparr/internal/cleaner"
	"github.com/sweeparr/sweeparr/internal/config"
	"github.com/sweeparr/sweeparr/internal/models"
)

type Server struct {
	server  *http.Server
	logger  zerolog.Logger
	config  *config.AppConfig
	version string

	db             *sql.DB
	instanceStore  *models.InstanceStore
	configStore    *models.CleanerConfigStore
	logStore       *models.CleanerLogStore
	cleanerService *cleaner.Service
	scheduler      *cleaner.Scheduler
	clientFactory  arr.ClientFactory
}

type Dependencies struct {
	Config         *config.AppConfig
	Version        string
	DB             *sql.DB
	InstanceStore  *models.InstanceStore
	ConfigStore    *models.CleanerConfigStore
	LogStore       *models.CleanerLogStore
	CleanerService *cleaner.Service
	Scheduler      *cleaner.Scheduler
	ClientFactory  arr.ClientFactory
}

func NewServer(deps *Dependencies) *Server {
	return &Server{
		server: &http.Server{
			ReadHeaderTimeout: time.Second * 15,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      120 * time.Second,
			IdleTimeout:       180 * time.Second,
		},
		logger:         log.Logger.With().Str("module", "api").Logger(),
		config:         deps.Config,
		version:        deps.Version,
		db:             deps.DB,
		instanceStore:  deps.InstanceStore,
		configStore:    deps.ConfigStore,
		logStore:       deps.LogStore,
		cleanerService: deps.CleanerService,
		scheduler:      deps.Scheduler,
		clientFactory:  deps.ClientFactory,
	}
}

func (s *Server) ListenAndServe() error {
	return s.open(nil)
}

// ListenAndServeReady behaves like ListenAndServe but signals once the listener is active.
func (s *Server) ListenAndServeReady(ready chan<- struct{}) error {
	return s.open(ready)
}

func (s *Server) open(ready chan<- struct{}) error {
	addr := fmt.Sprintf("%s:%d", s.config.Config.Host, s.config.Config.Port)

	var lastErr error
	for _, proto := range []string{"tcp", "tcp4", "tcp6"} {
		err := s.tryToServe(addr, proto, ready)
		if err == nil {
			return nil
		}

		if errors.Is(err, http.ErrServerClosed) {
			return err
		}

		s.logger.Error().Err(err).Str("addr", addr).Str("proto", proto).Msg("Failed to start server")
		lastErr = err
	}

	return lastErr
}

func (s *Server) tryToServe(addr, protocol string, ready chan<- struct{}) error {
	listener, err := net.Listen(protocol, addr)
	if err != nil {
		return err
	}

	host := listener.Addr().String()
	// Replace 0.0.0.0 or :: with localhost for clickable links
	if strings.HasPrefix(host, "0.0.0.0:") || strings.HasPrefix(host, "[::]:") {
		host = strings.Replace(host, "0.0.0.0:", "localhost:", 1)
		host = strings.Replace(host, "[::]:", "localhost:", 1)
	}

	s.logger.Info().
		Str("protocol", protocol).
		Str("addr", listener.Addr().String()).
		Str("base_url", s.config.Config.BaseURL).
		Msgf("Starting API server - Open: http://%s%s", host, s.config.Config.BaseURL)

	s.server.Handler = s.Handler()

	if ready != nil {
		select {
		case ready <- struct{}{}:
		default:
		}
	}

	return s.server.Serve(listener)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) Handler() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)

	compressor, err := httpcompression.DefaultAdapter(
		httpcompression.MinSize(1024),
		httpcompression.GzipCompressionLevel(2),
		httpcompression.Prefer(httpcompression.PreferServer),
	)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create HTTP compression adapter")
	} else {
		r.Use(compressor)
	}

	corsMiddleware := cors.New(cors.Options{
		AllowCredentials: true,
		AllowedMethods:   []string{"HEAD", "OPTIONS", "GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowOriginFunc:  func(origin string) bool { return true },
		MaxAge:           300,
	})
	r.Use(corsMiddleware.Handler)

	healthHandler := handlers.NewHealthHandler(s.db)
	instancesHandler := handlers.NewInstancesHandler(s.instanceStore, s.configStore, s.clientFactory)
	cleanerHandler := handlers.NewCleanerHandler(s.cleanerService, s.scheduler, s.instanceStore, s.configStore, s.logStore)

	apiRouter := chi.NewRouter()
	apiRouter.Use(chimiddleware.Throttle(100))

	apiRouter.Get("/health/liveness", healthHandler.Liveness)
	apiRouter.Get("/health/readiness", healthHandler.Readiness)

	apiRouter.Route("/instances", func(r chi.Router) {
		r.Get("/", instancesHandler.ListInstances)
		r.Post("/", instancesHandler.CreateInstance)

		r.Route("/{instanceID}", func(r chi.Router) {
			r.Put("/", instancesHandler.UpdateInstance)
			r.Delete("/", instancesHandler.DeleteInstance)
			r.Post("/test", instancesHandler.TestConnection)
		})
	})

	apiRouter.Get("/status", cleanerHandler.GetStatus)

	apiRouter.Route("/configs", func(r chi.Router) {
		r.Get("/", cleanerHandler.ListConfigs)
		r.Post("/", cleanerHandler.CreateConfig)
		r.Patch("/{instanceID}", cleanerHandler.UpdateConfig)
		r.Delete("/{instanceID}", cleanerHandler.DeleteConfig)
	})

	apiRouter.Post("/trigger/{instanceID}", cleanerHandler.Trigger)
	apiRouter.Post("/preview/{instanceID}", cleanerHandler.Preview)
	apiRouter.Post("/dry-run/{instanceID}", cleanerHandler.DryRun)
	apiRouter.Get("/logs", cleanerHandler.ListLogs)
	apiRouter.Get("/statistics", cleanerHandler.GetStatistics)
	apiRouter.Post("/scheduler/toggle", cleanerHandler.ToggleScheduler)

	baseURL := s.config.Config.BaseURL
	if baseURL == "" || baseURL == "/" {
		r.Mount("/api", apiRouter)
	} else {
		r.Route(strings.TrimSuffix(baseURL, "/"), func(sub chi.Router) {
			sub.Mount("/api", apiRouter)
		})
	}

	return r
}

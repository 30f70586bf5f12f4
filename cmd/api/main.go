package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/hiring-api/internal/bootstrap"
	"github.com/jwalitptl/hiring-api/internal/config"
	applicationhandler "github.com/jwalitptl/hiring-api/internal/handler/application"
	"github.com/jwalitptl/hiring-api/internal/handler/health"
	promhandler "github.com/jwalitptl/hiring-api/internal/handler/prometheus"
	userhandler "github.com/jwalitptl/hiring-api/internal/handler/user"
	"github.com/jwalitptl/hiring-api/internal/middleware"
	"github.com/jwalitptl/hiring-api/internal/repository/postgres"
	"github.com/jwalitptl/hiring-api/internal/router"
	"github.com/jwalitptl/hiring-api/internal/service/application"
	"github.com/jwalitptl/hiring-api/internal/service/event"
	"github.com/jwalitptl/hiring-api/internal/service/preferences"
	"github.com/jwalitptl/hiring-api/pkg/auth"
)

func main() {
	configFile := flag.String("config", "", "path to config.yml")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger := bootstrap.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal(err, "failed to initialize infrastructure")
	}
	defer infra.Close()

	// Repositories
	applicationRepo := postgres.NewApplicationRepository(infra.Base)
	userRepo := postgres.NewUserRepository(infra.Base)
	jobRepo := postgres.NewJobRepository(infra.Base)
	prefsRepo := postgres.NewPreferencesRepository(infra.Base)

	// Delivery pipeline
	delivery, err := infra.NewDelivery()
	if err != nil {
		logger.Fatal(err, "failed to initialize notification delivery")
	}

	broker := infra.Broker()
	defer broker.Close()

	publisher := event.NewPublisher(broker, cfg.Events.Channel, logger, infra.Metrics)
	prefsSvc := preferences.NewService(prefsRepo)
	dispatcher := event.NewDispatcher(broker, cfg.Events.Channel, cfg.Events.Group, delivery.Service, prefsSvc, userRepo, jobRepo, logger)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		delivery.Worker.Start(workerCtx)
	}()

	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	if err := dispatcher.Start(dispatchCtx); err != nil {
		logger.Fatal(err, "failed to subscribe to application events")
	}

	// Services
	applicationSvc := application.NewService(applicationRepo, jobRepo, publisher, logger)

	// HTTP
	var jwtSvc auth.JWTService
	if cfg.Auth.JWTSecret != "" {
		jwtSvc = auth.NewJWTService(cfg.Auth.JWTSecret, time.Hour)
	} else if !cfg.Auth.TrustUserHeader {
		logger.Warn("no identity source configured; every API request will be rejected")
	}
	authMiddleware := middleware.NewAuthMiddleware(jwtSvc, cfg.Auth.TrustUserHeader, infra.Limiter, infra.Auth)

	gin.SetMode(gin.ReleaseMode)
	r := router.NewRouter(
		authMiddleware,
		health.NewHandler(infra.HealthChecks()),
		promhandler.New(bootstrap.MetricsNamespace, infra.Registry),
		router.RouterConfig{
			Limiter:    infra.Limiter,
			APIClass:   infra.API,
			CORSConfig: middleware.DefaultCORSConfig(cfg.Server.CORSOrigins...),
			Logger:     logger,
		},
		applicationhandler.NewHandler(applicationSvc),
		userhandler.NewHandler(delivery.Service, prefsSvc),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warn("failed to notify systemd", "error", err.Error())
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
	case err := <-serveErr:
		logger.Error(err, "http server failed")
	}
	daemon.SdNotify(false, daemon.SdNotifyStopping)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "server forced to shutdown")
	}

	// Stop accepting events first, then let the worker drop what is left.
	stopDispatch()
	dispatcher.Wait()
	stopWorker()
	<-workerDone

	logger.Info("server exited properly")
}

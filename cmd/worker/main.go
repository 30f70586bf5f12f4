package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/hiring-api/internal/bootstrap"
	"github.com/jwalitptl/hiring-api/internal/config"
	"github.com/jwalitptl/hiring-api/internal/handler/health"
	promhandler "github.com/jwalitptl/hiring-api/internal/handler/prometheus"
	"github.com/jwalitptl/hiring-api/internal/middleware"
	"github.com/jwalitptl/hiring-api/internal/repository/postgres"
	"github.com/jwalitptl/hiring-api/internal/service/digest"
)

func main() {
	configFile := flag.String("config", "", "path to config.yml")
	runNow := flag.Bool("run-now", false, "send the digest once at startup in addition to the schedule")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger := bootstrap.NewLogger(cfg.Log).With("process", "worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal(err, "failed to initialize infrastructure")
	}
	defer infra.Close()

	delivery, err := infra.NewDelivery()
	if err != nil {
		logger.Fatal(err, "failed to initialize notification delivery")
	}

	digestSvc := digest.NewService(
		postgres.NewUserRepository(infra.Base),
		postgres.NewJobRepository(infra.Base),
		delivery.Service,
		digest.Config{
			Lookback:  cfg.Digest.Lookback,
			MaxJobs:   cfg.Digest.MaxJobs,
			PageSize:  cfg.Digest.PageSize,
			PublicURL: cfg.Server.PublicURL,
		},
		logger,
	)

	scheduler, err := digest.NewScheduler(ctx, cfg.Digest.Schedule, cfg.Digest.Timezone, digestSvc, logger)
	if err != nil {
		logger.Fatal(err, "failed to configure digest schedule")
	}

	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		delivery.Worker.Start(workerCtx)
	}()

	scheduler.Start()
	if *runNow {
		go func() {
			result, err := digestSvc.Run(ctx)
			if err != nil {
				logger.Error(err, "startup digest run failed")
				return
			}
			logger.Info("startup digest run finished", "enqueued", result.Enqueued, "failed", result.Failed)
		}()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(middleware.RequestID(), middleware.Recovery(logger))
	health.NewHandler(infra.HealthChecks()).RegisterRoutes(engine.Group(""))
	engine.GET("/metrics", promhandler.New(bootstrap.MetricsNamespace, infra.Registry).Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.WorkerPort),
		Handler: engine,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "health server failed")
		}
	}()

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warn("failed to notify systemd", "error", err.Error())
	}

	<-ctx.Done()
	logger.Info("shutting down worker")
	daemon.SdNotify(false, daemon.SdNotifyStopping)

	// Stop waits for a digest run in progress before delivery stops.
	scheduler.Stop()
	stopWorker()
	<-workerDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "health server forced to shutdown")
	}

	logger.Info("worker exited properly")
}

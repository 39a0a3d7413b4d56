package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/markethub/markethub/internal/api"
	"github.com/markethub/markethub/internal/config"
	"github.com/markethub/markethub/internal/db"
	"github.com/markethub/markethub/internal/enhancer"
	"github.com/markethub/markethub/internal/health"
	"github.com/markethub/markethub/internal/logging"
	"github.com/markethub/markethub/internal/marketplace"
	"github.com/markethub/markethub/internal/metrics"
	"github.com/markethub/markethub/internal/queue"
	"github.com/markethub/markethub/internal/saga"
	"github.com/markethub/markethub/internal/store"
	"github.com/markethub/markethub/internal/tracing"
	"github.com/markethub/markethub/internal/webhook"
)

func main() {
	_ = godotenv.Load()

	logger := logging.New("markethub-api")

	cfg, err := config.Load()
	if err != nil {
		logger.Plain().WithError(err).Fatal("config load failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	shutdownTracing, err := tracing.InitTracing(ctx, "markethub-api")
	if err != nil {
		logger.Plain().WithError(err).Fatal("tracing init failed")
	}
	defer shutdownTracing()

	pool, err := db.Connect(ctx, cfg.DSN(), cfg.DB.MaxConns)
	if err != nil {
		logger.Plain().WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()

	producer, err := queue.NewProducer(cfg.NSQ.NsqdTCPAddr)
	if err != nil {
		logger.Plain().WithError(err).Fatal("nsq producer creation failed")
	}
	defer producer.Stop()

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	st := store.New(pool)
	engine := saga.NewEngine(saga.Deps{
		Tasks:     st,
		Catalog:   st,
		Events:    st,
		Enhancer:  enhancer.New(cfg.Enhancer),
		Publisher: marketplace.NewService(),
		Webhooks:  webhook.NewClient(cfg.Webhook),
		Producer:  producer,
	}, cfg)
	dispatcher := webhook.NewDispatcher(st, producer, cfg)

	server := api.NewServer(engine, st, st, dispatcher)
	handler := server.Router(
		health.HTTPHandler(pool, producer),
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	)

	srv := &http.Server{
		Addr:         cfg.HTTPPort,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 65 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Plain().WithField("addr", srv.Addr).Info("api server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Plain().WithError(err).Fatal("api server failed")
		}
	}()

	<-ctx.Done()

	logger.Plain().Info("shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Plain().WithError(err).Error("api server shutdown failed")
	}
	logger.Plain().Info("api server stopped")
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nsqio/go-nsq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

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

// requeueDelay is the redelivery delay for infrastructure faults (db or
// nsqd down mid-step). Step-level retries never use it; they ride fresh
// deferred messages published by the handlers themselves.
const requeueDelay = 15 * time.Second

func main() {
	_ = godotenv.Load()

	logger := logging.New("markethub-worker")

	cfg, err := config.Load()
	if err != nil {
		logger.Plain().WithError(err).Fatal("config load failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	shutdownTracing, err := tracing.InitTracing(ctx, "markethub-worker")
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
	client := webhook.NewClient(cfg.Webhook)
	engine := saga.NewEngine(saga.Deps{
		Tasks:     st,
		Catalog:   st,
		Events:    st,
		Enhancer:  enhancer.New(cfg.Enhancer),
		Publisher: marketplace.NewService(),
		Webhooks:  client,
		Producer:  producer,
	}, cfg)
	deliverer := webhook.NewDeliverer(st, client, producer, cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.HTTPHandler(pool, producer))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpSrv := &http.Server{Addr: cfg.Worker.HTTPPort, Handler: mux}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("worker HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Plain().WithError(err).Fatal("worker HTTP server failed")
		}
	}()

	stepHandler := messageHandler(logger, func(body []byte) error {
		var msg saga.StepMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return errBadPayload
		}
		return engine.HandleStep(ctx, msg)
	})
	stepConsumer, err := queue.NewConsumer(cfg.NSQ.StepsTopic, cfg.NSQ.WorkerChannel, cfg.Worker.MaxInFlight, stepHandler)
	if err != nil {
		logger.Plain().WithError(err).Fatal("steps consumer creation failed")
	}

	deliveryHandler := messageHandler(logger, func(body []byte) error {
		var msg webhook.DeliveryMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return errBadPayload
		}
		return deliverer.HandleDelivery(ctx, msg)
	})
	deliveryConsumer, err := queue.NewConsumer(cfg.NSQ.WebhookTopic, cfg.NSQ.WorkerChannel, cfg.Worker.MaxInFlight, deliveryHandler)
	if err != nil {
		logger.Plain().WithError(err).Fatal("deliveries consumer creation failed")
	}

	for _, c := range []*nsq.Consumer{stepConsumer, deliveryConsumer} {
		if err := queue.Connect(c, cfg.NSQ.NsqdTCPAddr, cfg.NSQ.LookupHTTPAddr); err != nil {
			logger.Plain().WithError(err).Fatal("nsq connect failed")
		}
	}

	logger.Plain().Info("worker service started")

	<-ctx.Done()

	logger.Plain().Info("shutting down worker service")
	stepConsumer.Stop()
	deliveryConsumer.Stop()
	<-stepConsumer.StopChan
	<-deliveryConsumer.StopChan
	_ = httpSrv.Shutdown(context.Background())
	logger.Plain().Info("worker service stopped")
}

// errBadPayload marks a message that can never be processed. It is
// finished, not requeued.
var errBadPayload = errors.New("bad message payload")

// messageHandler adapts a body-level handler to NSQ message semantics: a
// nil return finishes the message, errBadPayload drops it, anything else
// is an infrastructure fault requeued with a flat delay. Handlers publish
// their own deferred retry messages, so the in-flight message never
// carries backoff state.
func messageHandler(logger *logging.Logger, handle func(body []byte) error) nsq.Handler {
	return nsq.HandlerFunc(func(m *nsq.Message) error {
		m.DisableAutoResponse()
		defer func() {
			if !m.HasResponded() {
				logger.Plain().Warn("message had no response, finishing")
				m.Finish()
			}
		}()

		err := handle(m.Body)
		switch {
		case err == nil:
			m.Finish()
		case errors.Is(err, errBadPayload):
			logger.Plain().WithError(err).Error("dropping undecodable message")
			m.Finish()
		default:
			logger.Plain().WithError(err).WithField("delay", requeueDelay.String()).Warn("handler fault, requeueing message")
			m.Requeue(requeueDelay)
		}
		return nil
	})
}

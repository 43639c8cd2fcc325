package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"payment-service/internal/api"
	"payment-service/internal/config"
	"payment-service/internal/db"
	"payment-service/internal/gateway"
	"payment-service/internal/kafka"
	"payment-service/internal/logging"
	"payment-service/internal/metrics"
	"payment-service/internal/model"
	"payment-service/internal/notify"
	"payment-service/internal/order"
	"payment-service/internal/payment"
	"payment-service/internal/webhook"
)

func main() {
	cfg := config.MustLoadConfig(config.GetString("CONFIG_PATH", "."))

	logger := logging.GetLogger(cfg.Logs)
	metrics.Setup(cfg.Metrics, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	connStr := db.GetConnStr(cfg.Database)
	if err := db.RunMigrations(connStr, config.GetString("MIGRATIONS_DIR", "migrations")); err != nil {
		log.Fatal(err)
	}

	dbpool, err := db.GetPool(ctx, connStr)
	if err != nil {
		log.Fatal(err)
	}
	defer dbpool.Close()

	orders := db.NewOrderRepository(dbpool)
	payments := db.NewPaymentRepository(dbpool)
	refunds := db.NewRefundRepository(dbpool)
	events := db.NewWebhookEventRepository(dbpool)
	transitions := db.NewTransitionRepository(dbpool)

	machine := order.NewMachine(orders, logger, func(ctx context.Context, o *model.Order, t model.OrderTransition) {
		logger.InfoContext(ctx, "Order state changed", "code", o.Code, "from", t.From, "to", t.To)
	})

	gw := gateway.NewRazorpay(cfg.Gateway, logger)
	credentials := config.NewStaticCredentials(cfg.Gateway.Channels)

	initiator := payment.NewInitiator(orders, credentials, gw, payment.InitiatorOptions{
		Currency:           cfg.Gateway.Currency,
		ReuseCorrelationID: cfg.Gateway.ReuseCorrelationID,
	}, logger)
	service := payment.NewService(orders, payments, refunds, credentials, machine,
		payment.NewVerifier(gw, logger), payment.NewRefunder(gw, logger), logger)
	ingestor := webhook.NewIngestor(cfg.Webhook.Secret, events, orders, machine, logger)

	transitionWriter := kafka.NewWriter(cfg.Kafka)
	defer transitionWriter.Close()

	notify.NewProducer(transitions, transitionWriter, cfg.Notify.Producer, logger).Start(ctx)

	if cfg.Notify.Sender.URL != "" {
		transitionReader := kafka.NewReader(cfg.Kafka)
		defer transitionReader.Close()

		processor := notify.NewProcessor(notify.NewSender(cfg.Notify.Sender, logger), cfg.Notify, logger)
		go kafka.ReadOrderTransitions(ctx, transitionReader, processor, logger)
		defer processor.Wait()
	} else {
		logger.Warn("notify.sender.url is not set, transition notifications are disabled")
	}

	handler := api.NewHandler(initiator, service, ingestor, cfg.Webhook.SignatureHeader, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("http listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	logger.Info("payment-service shutdown complete")
}

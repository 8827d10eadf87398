package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/cloudhut/kafka-web/api"
	"github.com/cloudhut/kafka-web/browse"
	"github.com/cloudhut/kafka-web/groups"
	"github.com/cloudhut/kafka-web/kafka"
	"github.com/cloudhut/kafka-web/lag"
	"github.com/cloudhut/kafka-web/logging"
	"github.com/cloudhut/kafka-web/prometheus"
)

func main() {
	startupLogger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}

	cfg, err := newConfig(startupLogger)
	if err != nil {
		startupLogger.Fatal("failed to parse config", zap.Error(err))
	}

	registry := promclient.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	namespace := cfg.Exporter.Namespace

	logger := logging.NewLogger(cfg.Logger, namespace, registry).Named("main")

	// Setup context that stops when the application receives an interrupt signal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kafkaSvc, err := kafka.NewService(cfg.Kafka, logger.Named("kafka"), namespace, registry)
	if err != nil {
		logger.Fatal("failed to setup kafka service", zap.Error(err))
	}

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err = kafkaSvc.TestConnection(connectCtx)
	cancel()
	if err != nil {
		logger.Fatal("failed to test connectivity to Kafka cluster", zap.Error(err))
	}

	calculator := lag.NewCalculator(cfg.Lag, logger.Named("lag"), kafkaSvc)
	defer func() {
		_ = calculator.Close()
	}()

	remover, err := groups.NewRemover(cfg.Groups, logger.Named("groups"), kafkaSvc, namespace, registry)
	if err != nil {
		logger.Fatal("failed to setup consumer group remover", zap.Error(err))
	}

	exporter, err := prometheus.NewExporter(cfg.Exporter, logger.Named("prometheus"), calculator, registry)
	if err != nil {
		logger.Fatal("failed to setup prometheus exporter", zap.Error(err))
	}
	registry.MustRegister(exporter)

	server := api.NewServer(cfg.API, logger.Named("api"), api.Dependencies{
		Connector: kafkaSvc,
		Producer:  kafkaSvc,
		Lag:       calculator,
		Remover:   remover,
		Browser:   browse.NewService(cfg.Browse, logger.Named("browse"), kafkaSvc, namespace, registry),
		Sessions:  browse.NewSessions(cfg.Browse.SessionTTL),
		Gatherer:  registry,
	})
	if err := server.Run(ctx); err != nil {
		logger.Error("failed to serve api", zap.Error(err))
	}
	logger.Info("kafka-web stopped")
}

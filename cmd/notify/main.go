package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/earthquake-notify/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/earthquake-notify/internal/adapter/kafka"
	"github.com/couchcryptid/earthquake-notify/internal/adapter/pushgateway"
	"github.com/couchcryptid/earthquake-notify/internal/adapter/sound"
	"github.com/couchcryptid/earthquake-notify/internal/adapter/twitter"
	"github.com/couchcryptid/earthquake-notify/internal/adapter/voicetext"
	"github.com/couchcryptid/earthquake-notify/internal/config"
	"github.com/couchcryptid/earthquake-notify/internal/observability"
	"github.com/couchcryptid/earthquake-notify/internal/relay"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat).With("service", "earthquake-notify")
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Deliveries outlive the signal so in-flight announcements can finish
	// during the shutdown window.
	tasks := relay.NewTasks(context.Background(), logger, func(name string, _ error) {
		metrics.DeliveryFailures.WithLabelValues(name).Inc()
	})

	speech := voicetext.NewClient(cfg.VoiceTextURL, cfg.HTTPClientTimeout, logger)
	player := sound.NewPlayer(cfg.BeepPlayer, cfg.BeepSoundFile, logger)
	reporter := pushgateway.NewReporter(pushgateway.Options{
		URL:        cfg.PushGatewayURL,
		Username:   cfg.PushGatewayUser,
		Password:   cfg.PushGatewayPassword,
		Job:        cfg.PushGatewayJob,
		MetricName: cfg.MetricName,
		Timeout:    cfg.HTTPClientTimeout,
	}, logger)

	var (
		stream relay.Stream
		reader *kafkaadapter.Reader
	)
	switch cfg.StreamSource {
	case config.SourceKafka:
		reader = kafkaadapter.NewReader(cfg, logger)
		stream = reader
		logger.Info("stream source: kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	default:
		stream = twitter.NewStream(twitter.Options{
			BaseURL:     cfg.TwitterAPIURL,
			BearerToken: cfg.TwitterBearerToken,
			Timeout:     cfg.HTTPClientTimeout,
			DedupSize:   cfg.DedupCacheSize,
		}, logger, metrics)
		logger.Info("stream source: twitter", "api", cfg.TwitterAPIURL)
	}

	r := relay.New(speech, player, reporter, tasks, logger, metrics)
	srv := httpadapter.NewServer(cfg.HTTPAddr, r, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start relay.
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		if err := r.Run(ctx, stream); err != nil {
			logger.Error("relay error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	// A post fetched before the signal may still be dispatching; let it
	// start its tasks before the group stops accepting work.
	select {
	case <-relayDone:
	case <-shutdownCtx.Done():
		logger.Warn("relay did not stop before shutdown timeout")
	}
	tasks.Close()
	if err := tasks.Wait(shutdownCtx); err != nil {
		logger.Warn("abandoning in-flight deliveries", "error", err)
		tasks.Stop(shutdownCtx) //nolint:errcheck // deadline already passed, only cancels
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
